package services

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrNoSessions is returned when analysis is requested before any respondent
// has started a session. The survey status is rolled back to COLLECTING.
var ErrNoSessions = errors.New("no sessions to analyze")

// AnalysisStore abstracts persistence for the analysis aggregator.
type AnalysisStore interface {
	GetSurvey(id string) (*Survey, error)
	UpdateSurveyStatus(id string, from, to SurveyStatus) (bool, error)
	ListSessions(surveyID string) ([]*Session, error)
	ListResponsesBySession(sessionID string) ([]*Response, error)
	InsertAnalysis(a *Analysis) (*Analysis, error)
	LatestAnalysis(surveyID string) (*Analysis, error)
}

// SessionTranscript pairs a session with its collected responses.
type SessionTranscript struct {
	Session   *Session
	Responses []*Response
}

// AnalysisStrategy reduces a survey's transcripts to a report. The default is
// deterministic; a model-backed strategy can be swapped in behind the same
// contract.
type AnalysisStrategy interface {
	Analyze(sv *Survey, transcripts []*SessionTranscript) *Analysis
}

type AnalysisService struct {
	store    AnalysisStore
	strategy AnalysisStrategy
	events   Broadcaster
	now      func() time.Time
	idGen    func() string
}

func NewAnalysisService(store AnalysisStore, strategy AnalysisStrategy, events Broadcaster) *AnalysisService {
	if strategy == nil {
		strategy = LexiconStrategy{}
	}
	return &AnalysisService{
		store:    store,
		strategy: strategy,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    func() string { return shortID(12) },
	}
}

// Run aggregates all of a survey's sessions into one analysis row.
// Status walks * -> ANALYSING -> COMPLETED; a run with zero sessions rolls
// back to COLLECTING and reports ErrNoSessions.
func (s *AnalysisService) Run(userID, surveyID string) (*Analysis, error) {
	sv, err := s.ownedSurvey(userID, surveyID)
	if err != nil {
		return nil, err
	}
	if sv.Status == StatusAnalysing {
		return nil, NewConflictError("analysis already running")
	}
	ok, err := s.store.UpdateSurveyStatus(surveyID, sv.Status, StatusAnalysing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewConflictError("survey status changed concurrently")
	}

	sessions, err := s.store.ListSessions(surveyID)
	if err != nil {
		s.rollback(surveyID)
		return nil, err
	}
	if len(sessions) == 0 {
		s.rollback(surveyID)
		return nil, ErrNoSessions
	}

	transcripts := make([]*SessionTranscript, 0, len(sessions))
	for _, sess := range sessions {
		responses, err := s.store.ListResponsesBySession(sess.ID)
		if err != nil {
			log.Printf("analysis %s: load responses for session %s: %v", surveyID, sess.ID, err)
			responses = nil
		}
		transcripts = append(transcripts, &SessionTranscript{Session: sess, Responses: responses})
	}

	report := s.strategy.Analyze(sv, transcripts)
	report.ID = s.idGen()
	report.SurveyID = surveyID
	report.CreatedAt = s.now()

	created, err := s.store.InsertAnalysis(report)
	if err != nil {
		// No row landed, so the run effectively never happened; hand the
		// survey back to collection instead of leaving it stuck ANALYSING.
		s.rollback(surveyID)
		return nil, err
	}
	if created != nil {
		report = created
	}

	if ok, err := s.store.UpdateSurveyStatus(surveyID, StatusAnalysing, StatusCompleted); err != nil || !ok {
		// Lost the completion race (e.g. a concurrent run finished first).
		// The analysis row itself is already committed.
		log.Printf("analysis %s: complete transition skipped (ok=%v err=%v)", surveyID, ok, err)
	}

	if s.events != nil {
		s.events.Publish(surveyID, EventAnalysisReady, map[string]any{"survey_id": surveyID})
	}
	return report, nil
}

// Latest returns the most recent analysis row for the survey.
func (s *AnalysisService) Latest(userID, surveyID string) (*Analysis, error) {
	if _, err := s.ownedSurvey(userID, surveyID); err != nil {
		return nil, err
	}
	a, err := s.store.LatestAnalysis(surveyID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewNotFoundError("analysis not found")
	}
	return a, nil
}

func (s *AnalysisService) rollback(surveyID string) {
	if ok, err := s.store.UpdateSurveyStatus(surveyID, StatusAnalysing, StatusCollecting); err != nil || !ok {
		log.Printf("analysis %s: rollback to collecting skipped (ok=%v err=%v)", surveyID, ok, err)
	}
}

func (s *AnalysisService) ownedSurvey(userID, id string) (*Survey, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	sv, err := s.store.GetSurvey(id)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	if sv.UserID != userID {
		return nil, NewForbiddenError("forbidden")
	}
	return sv, nil
}

func respondentNoun(n int) string {
	if n == 1 {
		return "respondent"
	}
	return "respondents"
}

func summarySentence(goal string, sessions int) string {
	return fmt.Sprintf(
		"We spoke with %d %s about %q. Their feedback highlights a mix of clear value, specific friction points, and concrete opportunities to improve the experience. This report clusters what people said into themes you can act on immediately.",
		sessions, respondentNoun(sessions), goalOrDefault(goal))
}
