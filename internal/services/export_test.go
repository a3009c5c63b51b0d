package services

import (
	"strings"
	"testing"
	"time"
)

type exportStubStore struct {
	survey    *Survey
	sessions  []*Session
	responses map[string][]*Response
}

func (s *exportStubStore) GetSurvey(id string) (*Survey, error) {
	if s.survey != nil && s.survey.ID == id {
		cp := *s.survey
		return &cp, nil
	}
	return nil, nil
}

func (s *exportStubStore) ListSessions(surveyID string) ([]*Session, error) {
	return s.sessions, nil
}

func (s *exportStubStore) ListResponsesBySession(sessionID string) ([]*Response, error) {
	return s.responses[sessionID], nil
}

func TestTranscriptCSV(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &exportStubStore{
		survey: &Survey{ID: "sv1", UserID: "u1"},
		sessions: []*Session{
			{ID: "s1", SurveyID: "sv1", RespondentName: "Ada"},
			{ID: "s2", SurveyID: "sv1"},
		},
		responses: map[string][]*Response{
			"s1": {{ID: "r1", SessionID: "s1", QuestionID: "q1", Answer: "loved it", Category: "general", CreatedAt: at}},
			"s2": {{ID: "r2", SessionID: "s2", QuestionID: "q1", Answer: "meh", Category: "general", CreatedAt: at}},
		},
	}
	svc := NewExportService(store)

	b, err := svc.TranscriptCSV("u1", "sv1")
	if err != nil {
		t.Fatalf("TranscriptCSV: %v", err)
	}
	out := string(b)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines: %s", len(lines), out)
	}
	if lines[0] != "session_id,respondent,question_id,category,answer,submitted_at" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(out, "s1,Ada,q1,general,loved it,2025-06-01T12:00:00Z") {
		t.Fatalf("missing s1 row in %s", out)
	}
	if !strings.Contains(out, "s2,Anonymous,") {
		t.Fatalf("nameless respondent should export as Anonymous: %s", out)
	}
}

func TestTranscriptCSVAuthorization(t *testing.T) {
	store := &exportStubStore{survey: &Survey{ID: "sv1", UserID: "u1"}}
	svc := NewExportService(store)

	if _, err := svc.TranscriptCSV("", "sv1"); err == nil {
		t.Fatalf("expected unauthorized")
	}
	if _, err := svc.TranscriptCSV("intruder", "sv1"); err == nil {
		t.Fatalf("expected forbidden for non-owner")
	}
	if _, err := svc.TranscriptCSV("u1", "missing"); err == nil {
		t.Fatalf("expected not found")
	}
}
