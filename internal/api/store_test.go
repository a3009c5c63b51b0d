package api

import (
	"testing"
	"time"

	"github.com/soaringjerry/ProbeAI/internal/services"
)

func seedSurvey(t *testing.T, store Store) *services.Survey {
	t.Helper()
	sv, err := store.InsertSurvey(&services.Survey{
		ID: "sv1", UserID: "u1", Title: "T", Goal: "G",
		Status: services.StatusCollecting, ShareToken: "tok12345", CreatedAt: time.Unix(0, 0),
	})
	if err != nil {
		t.Fatalf("InsertSurvey: %v", err)
	}
	return sv
}

func TestMemoryStoreStatusCAS(t *testing.T) {
	store := NewMemoryStore()
	seedSurvey(t, store)

	ok, err := store.UpdateSurveyStatus("sv1", services.StatusCollecting, services.StatusAnalysing)
	if err != nil || !ok {
		t.Fatalf("expected CAS to apply, ok=%v err=%v", ok, err)
	}
	// Stale expectation must not apply.
	ok, err = store.UpdateSurveyStatus("sv1", services.StatusCollecting, services.StatusCompleted)
	if err != nil || ok {
		t.Fatalf("stale CAS must not apply, ok=%v err=%v", ok, err)
	}
	sv, _ := store.GetSurvey("sv1")
	if sv.Status != services.StatusAnalysing {
		t.Fatalf("expected ANALYSING, got %s", sv.Status)
	}
}

func TestMemoryStoreUpdateSurveyKeepsStatus(t *testing.T) {
	store := NewMemoryStore()
	seedSurvey(t, store)

	ok, err := store.UpdateSurveyStatus("sv1", services.StatusCollecting, services.StatusAnalysing)
	if err != nil || !ok {
		t.Fatalf("CAS: ok=%v err=%v", ok, err)
	}
	// A field write carrying a stale status snapshot must not undo the CAS.
	stale := &services.Survey{ID: "sv1", UserID: "u1", Title: "Renamed", Goal: "G",
		Status: services.StatusCollecting, ShareToken: "tok12345"}
	if err := store.UpdateSurvey(stale); err != nil {
		t.Fatalf("UpdateSurvey: %v", err)
	}
	sv, _ := store.GetSurvey("sv1")
	if sv.Status != services.StatusAnalysing {
		t.Fatalf("field update overwrote status, got %s", sv.Status)
	}
	if sv.Title != "Renamed" {
		t.Fatalf("title not updated, got %q", sv.Title)
	}
}

func TestMemoryStoreCompleteSessionOnce(t *testing.T) {
	store := NewMemoryStore()
	seedSurvey(t, store)
	if _, err := store.InsertSession(&services.Session{ID: "s1", SurveyID: "sv1", CreatedAt: time.Unix(0, 0)}); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}

	at := time.Unix(100, 0)
	sess, newly, err := store.CompleteSession("s1", at)
	if err != nil || !newly || sess.CompletedAt == nil {
		t.Fatalf("first completion: sess=%+v newly=%v err=%v", sess, newly, err)
	}
	sess, newly, err = store.CompleteSession("s1", time.Unix(200, 0))
	if err != nil || newly {
		t.Fatalf("second completion must not be new, newly=%v err=%v", newly, err)
	}
	if !sess.CompletedAt.Equal(at) {
		t.Fatalf("completed_at must keep the first timestamp, got %v", sess.CompletedAt)
	}

	if sess, newly, err := store.CompleteSession("missing", at); sess != nil || newly || err != nil {
		t.Fatalf("missing session completion: %+v %v %v", sess, newly, err)
	}
}

func TestMemoryStoreCascadeDelete(t *testing.T) {
	store := NewMemoryStore()
	seedSurvey(t, store)
	_ = store.ReplaceQuestions("sv1", []*services.Question{{ID: "q1", SurveyID: "sv1", Text: "?"}})
	_, _ = store.InsertSession(&services.Session{ID: "s1", SurveyID: "sv1", CreatedAt: time.Unix(0, 0)})
	_ = store.InsertResponse(&services.Response{ID: "r1", SessionID: "s1", QuestionID: "q1", Answer: "a"})

	if err := store.DeleteSurvey("sv1"); err != nil {
		t.Fatalf("DeleteSurvey: %v", err)
	}
	if sess, _ := store.GetSession("s1"); sess != nil {
		t.Fatalf("sessions must be deleted with their survey")
	}
	if rs, _ := store.ListResponsesBySession("s1"); len(rs) != 0 {
		t.Fatalf("responses must be deleted with their session")
	}
	if qs, _ := store.ListQuestions("sv1"); len(qs) != 0 {
		t.Fatalf("questions must be deleted with their survey")
	}
}

func TestMemoryStoreListOrdering(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.InsertSurvey(&services.Survey{ID: "old", UserID: "u1", Title: "T", Goal: "G", ShareToken: "a", CreatedAt: time.Unix(0, 0)})
	_, _ = store.InsertSurvey(&services.Survey{ID: "new", UserID: "u1", Title: "T", Goal: "G", ShareToken: "b", CreatedAt: time.Unix(100, 0)})

	out, err := store.ListSurveysByOwner("u1")
	if err != nil {
		t.Fatalf("ListSurveysByOwner: %v", err)
	}
	if len(out) != 2 || out[0].ID != "new" {
		t.Fatalf("expected newest first, got %+v", out)
	}
}
