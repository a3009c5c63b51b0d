//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("PROBE_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

// TestResearchJourneyIntegration walks the full loop against a running
// server: register, build a survey, answer it as a respondent via the share
// token, analyse, export.
func TestResearchJourneyIntegration(t *testing.T) {
	client := &http.Client{Timeout: 10 * time.Second}
	base := baseURL()

	userEmail := fmt.Sprintf("integration_%d@example.com", time.Now().UnixNano())
	password := "Secret123!"

	var registerResp struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/auth/register", "", map[string]any{
		"email":     userEmail,
		"password":  password,
		"full_name": "Integration Tester",
	}, &registerResp)
	if registerResp.Token == "" || registerResp.UserID == "" {
		t.Fatalf("unexpected register response: %+v", registerResp)
	}
	token := registerResp.Token

	var survey struct {
		ID         string `json:"id"`
		ShareToken string `json:"share_token"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/surveys", token, map[string]any{
		"title": "Integration survey",
		"goal":  "our integration harness",
	}, &survey)
	if survey.ID == "" || survey.ShareToken == "" {
		t.Fatalf("expected survey id and share token, got %+v", survey)
	}

	var questions []struct {
		ID string `json:"id"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/surveys/"+survey.ID+"/questions", token, []map[string]any{
		{"text": "What did you expect from this?"},
		{"text": "What surprised you?"},
	}, &questions)
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	// Respondent side: resolve the share token without credentials.
	var public struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
	}
	doJSON(t, client, http.MethodGet, base+"/api/surveys/token/"+survey.ShareToken, "", nil, &public)
	if public.ID != survey.ID {
		t.Fatalf("token resolution returned wrong survey: %+v", public)
	}
	if public.UserID != "" {
		t.Fatalf("token resolution leaked owner id")
	}

	var start struct {
		SessionID string `json:"session_id"`
		Question  struct {
			ID string `json:"id"`
		} `json:"question"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/surveys/"+public.ID+"/sessions", "", map[string]any{
		"respondent_name": "Integration Bot",
	}, &start)
	if start.SessionID == "" {
		t.Fatalf("session did not start: %+v", start)
	}

	questionID := start.Question.ID
	for {
		var turn struct {
			Done     bool `json:"done"`
			Question *struct {
				ID string `json:"id"`
			} `json:"question"`
		}
		doJSON(t, client, http.MethodPost, base+"/api/surveys/"+public.ID+"/respond", "", map[string]any{
			"session_id":  start.SessionID,
			"question_id": questionID,
			"answer":      "it was great and easy to use",
		}, &turn)
		if turn.Done {
			break
		}
		if turn.Question == nil {
			t.Fatalf("turn neither done nor carrying a question")
		}
		questionID = turn.Question.ID
	}

	var report struct {
		ResponseCount int `json:"response_count"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/surveys/"+survey.ID+"/analyse", token, nil, &report)
	if report.ResponseCount != 1 {
		t.Fatalf("expected response_count 1, got %d", report.ResponseCount)
	}

	req, err := http.NewRequest(http.MethodGet, base+"/api/surveys/"+survey.ID+"/export", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("export request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("export status %d body %s", resp.StatusCode, string(body))
	}
	csvData, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read export data: %v", err)
	}
	if !strings.Contains(string(csvData), start.SessionID) {
		t.Fatalf("export csv did not contain session id; csv=%s", string(csvData))
	}
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body, out any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
}
