package services

import (
	"errors"
	"testing"
	"time"
)

type analysisStubStore struct {
	survey      *Survey
	sessions    []*Session
	responses   map[string][]*Response
	analyses    []*Analysis
	transitions []string
	insertErr   error
}

func newAnalysisStubStore(sv *Survey) *analysisStubStore {
	return &analysisStubStore{survey: sv, responses: map[string][]*Response{}}
}

func (s *analysisStubStore) GetSurvey(id string) (*Survey, error) {
	if s.survey != nil && s.survey.ID == id {
		cp := *s.survey
		return &cp, nil
	}
	return nil, nil
}

func (s *analysisStubStore) UpdateSurveyStatus(id string, from, to SurveyStatus) (bool, error) {
	if s.survey == nil || s.survey.ID != id || s.survey.Status != from {
		return false, nil
	}
	s.survey.Status = to
	s.transitions = append(s.transitions, string(from)+"->"+string(to))
	return true, nil
}

func (s *analysisStubStore) ListSessions(surveyID string) ([]*Session, error) {
	return s.sessions, nil
}

func (s *analysisStubStore) ListResponsesBySession(sessionID string) ([]*Response, error) {
	return s.responses[sessionID], nil
}

func (s *analysisStubStore) InsertAnalysis(a *Analysis) (*Analysis, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	cp := *a
	s.analyses = append(s.analyses, &cp)
	out := cp
	return &out, nil
}

func (s *analysisStubStore) LatestAnalysis(surveyID string) (*Analysis, error) {
	if len(s.analyses) == 0 {
		return nil, nil
	}
	cp := *s.analyses[len(s.analyses)-1]
	return &cp, nil
}

func (s *analysisStubStore) addSession(id string, answers ...string) {
	sess := &Session{ID: id, SurveyID: s.survey.ID, CreatedAt: time.Unix(0, 0)}
	s.sessions = append(s.sessions, sess)
	for i, a := range answers {
		s.responses[id] = append(s.responses[id], &Response{
			ID: id + "-r" + string(rune('1'+i)), SessionID: id, QuestionID: "q1",
			Answer: a, Category: GeneralCategory, CreatedAt: time.Unix(int64(i), 0),
		})
	}
}

func TestAnalysisZeroSessionsRollsBack(t *testing.T) {
	store := newAnalysisStubStore(&Survey{ID: "sv1", UserID: "u1", Goal: "our app", Status: StatusCollecting})
	svc := NewAnalysisService(store, nil, nil)

	_, err := svc.Run("u1", "sv1")
	if !errors.Is(err, ErrNoSessions) {
		t.Fatalf("expected ErrNoSessions, got %v", err)
	}
	if store.survey.Status != StatusCollecting {
		t.Fatalf("expected rollback to COLLECTING, got %s", store.survey.Status)
	}
	if len(store.analyses) != 0 {
		t.Fatalf("no analysis row may be written for an empty run")
	}
}

func TestAnalysisRunCountsSessions(t *testing.T) {
	store := newAnalysisStubStore(&Survey{ID: "sv1", UserID: "u1", Goal: "our app", Status: StatusCollecting})
	store.addSession("s1", "I love it, really great and easy")
	store.addSession("s2", "confusing and slow", "still frustrating")
	store.addSession("s3")
	rec := &eventRecorder{}
	svc := NewAnalysisService(store, nil, rec)

	report, err := svc.Run("u1", "sv1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ResponseCount != 3 {
		t.Fatalf("response_count counts sessions, expected 3, got %d", report.ResponseCount)
	}
	if store.survey.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", store.survey.Status)
	}
	if rec.count(EventAnalysisReady) != 1 {
		t.Fatalf("expected one analysis_ready event")
	}
	if report.ExecutiveSummary == "" || len(report.Themes) == 0 {
		t.Fatalf("report shape incomplete: %+v", report)
	}
}

func TestAnalysisRerunAppends(t *testing.T) {
	store := newAnalysisStubStore(&Survey{ID: "sv1", UserID: "u1", Goal: "our app", Status: StatusCollecting})
	store.addSession("s1", "great")
	svc := NewAnalysisService(store, nil, nil)

	first, err := svc.Run("u1", "sv1")
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := svc.Run("u1", "sv1")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(store.analyses) != 2 {
		t.Fatalf("re-analysis must append, got %d rows", len(store.analyses))
	}
	if first.ID == second.ID {
		t.Fatalf("each run gets its own id")
	}
	latest, err := svc.Latest("u1", "sv1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != second.ID {
		t.Fatalf("Latest must return the newest row")
	}
}

func TestAnalysisInsertFailureRollsBack(t *testing.T) {
	store := newAnalysisStubStore(&Survey{ID: "sv1", UserID: "u1", Goal: "our app", Status: StatusCollecting})
	store.addSession("s1", "great")
	store.insertErr = errors.New("disk full")
	svc := NewAnalysisService(store, nil, nil)

	if _, err := svc.Run("u1", "sv1"); err == nil {
		t.Fatalf("expected insert failure to surface")
	}
	if store.survey.Status != StatusCollecting {
		t.Fatalf("failed insert must roll back to COLLECTING, got %s", store.survey.Status)
	}
	if len(store.analyses) != 0 {
		t.Fatalf("no analysis row may exist after a failed insert")
	}
}

func TestAnalysisConflictsWhileRunning(t *testing.T) {
	store := newAnalysisStubStore(&Survey{ID: "sv1", UserID: "u1", Goal: "g", Status: StatusAnalysing})
	svc := NewAnalysisService(store, nil, nil)
	_, err := svc.Run("u1", "sv1")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("expected conflict while ANALYSING, got %v", err)
	}
}

func TestAnalysisOwnership(t *testing.T) {
	store := newAnalysisStubStore(&Survey{ID: "sv1", UserID: "u1", Goal: "g", Status: StatusCollecting})
	svc := NewAnalysisService(store, nil, nil)
	if _, err := svc.Run("", "sv1"); err == nil {
		t.Fatalf("expected unauthorized without user")
	}
	if _, err := svc.Run("intruder", "sv1"); err == nil {
		t.Fatalf("expected forbidden for non-owner")
	}
	if _, err := svc.Latest("u1", "sv1"); err == nil {
		t.Fatalf("expected not found before any run")
	}
}
