package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// SessionStore abstracts persistence for the interview session engine.
type SessionStore interface {
	GetSurvey(id string) (*Survey, error)
	ListQuestions(surveyID string) ([]*Question, error)
	InsertSession(sess *Session) (*Session, error)
	// CompleteSession sets completed_at exactly once and reports whether this
	// call was the one that completed it. Completing twice is not an error.
	CompleteSession(id string, at time.Time) (*Session, bool, error)
	InsertResponse(r *Response) error
}

// FollowUpJudgment is the structured verdict the generative collaborator
// returns about one answer.
type FollowUpJudgment struct {
	ShouldFollowUp   bool   `json:"should_follow_up"`
	FollowUpQuestion string `json:"follow_up_question"`
	Reason           string `json:"reason"`
}

// FollowUpJudge decides whether an answer is shallow enough to probe.
// Implementations are expected to fail open: any error or malformed output
// resolves to "no follow-up" on the engine side.
type FollowUpJudge interface {
	Judge(ctx context.Context, questionText, answer, goal string) (*FollowUpJudgment, error)
}

// typingDelayMS paces the chat UI between turns. Purely presentational.
const typingDelayMS = 1200

// sessionState is the per-session runtime the engine keeps between turns.
// The question list is fixed at session start; probeCount is the engine-owned
// depth guard, so a misbehaving judge can never chain probes.
type sessionState struct {
	surveyID     string
	respondent   string
	goal         string
	questions    []*Question
	index        int
	probeCount   map[int]int
	pendingProbe *TurnQuestion
	completed    bool
}

// SessionService drives one respondent's chat traversal of a survey:
// questions in ascending order, at most one adaptive probe per question,
// completion marked once.
type SessionService struct {
	store  SessionStore
	judge  FollowUpJudge
	events Broadcaster
	now    func() time.Time
	idGen  func() string

	mu     sync.Mutex
	active map[string]*sessionState
}

// NewSessionService wires the engine to its collaborators. judge and events
// may be nil; a nil judge means no follow-ups are ever asked.
func NewSessionService(store SessionStore, judge FollowUpJudge, events Broadcaster) *SessionService {
	return &SessionService{
		store:  store,
		judge:  judge,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
		idGen:  func() string { return shortID(12) },
		active: map[string]*sessionState{},
	}
}

func (s *SessionService) publish(surveyID, event string, payload any) {
	if s.events == nil {
		return
	}
	s.events.Publish(surveyID, event, payload)
}

// TurnQuestion is the respondent-facing view of the turn being asked.
type TurnQuestion struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Required bool   `json:"is_required"`
}

func turnQuestion(q *Question) *TurnQuestion {
	return &TurnQuestion{ID: q.ID, Text: q.Text, Type: q.Type, Category: q.Category, Required: q.IsRequired}
}

// SessionStart is the engine's reply to a respondent submitting onboarding.
type SessionStart struct {
	SessionID     string        `json:"session_id"`
	Greeting      string        `json:"greeting"`
	Question      *TurnQuestion `json:"question"`
	QuestionCount int           `json:"question_count"`
	TypingDelayMS int           `json:"typing_delay_ms"`
}

// Turn is the engine's reply to an answer: either the next question (possibly
// a probe) or completion.
type Turn struct {
	SessionID     string        `json:"session_id"`
	Done          bool          `json:"done"`
	Probe         bool          `json:"probe,omitempty"`
	Question      *TurnQuestion `json:"question,omitempty"`
	TypingDelayMS int           `json:"typing_delay_ms,omitempty"`
}

type StartSessionInput struct {
	SurveyID        string         `json:"-"`
	RespondentName  string         `json:"respondent_name"`
	RespondentEmail string         `json:"respondent_email"`
	RespondentMeta  map[string]any `json:"respondent_meta"`
}

// Start creates the Session row, resolves the question list (falling back to
// the deterministic script when the survey has none persisted) and hands the
// respondent the first question.
func (s *SessionService) Start(in StartSessionInput) (*SessionStart, error) {
	sv, err := s.store.GetSurvey(in.SurveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}

	sess := &Session{
		ID:              s.idGen(),
		SurveyID:        sv.ID,
		RespondentName:  strings.TrimSpace(in.RespondentName),
		RespondentEmail: strings.TrimSpace(in.RespondentEmail),
		CreatedAt:       s.now(),
	}
	if in.RespondentMeta != nil {
		if b, err := json.Marshal(in.RespondentMeta); err == nil {
			sess.RespondentMeta = b
		}
	}
	created, err := s.store.InsertSession(sess)
	if err != nil {
		// Session creation is the one critical write at the start of the
		// flow; no partial engine state is retained on failure.
		return nil, NewBadGatewayError("could not start session: " + err.Error())
	}
	if created != nil {
		sess = created
	}

	qs, err := s.store.ListQuestions(sv.ID)
	if err != nil {
		log.Printf("session %s: list questions: %v", sess.ID, err)
		qs = nil
	}
	if len(qs) == 0 {
		qs = FallbackQuestionScript(sv.ID, sv.Goal)
	}

	s.mu.Lock()
	s.active[sess.ID] = &sessionState{
		surveyID:   sv.ID,
		respondent: sess.RespondentName,
		goal:       sv.Goal,
		questions:  qs,
		probeCount: map[int]int{},
	}
	s.mu.Unlock()

	s.publish(sv.ID, EventSessionStarted, map[string]any{
		"respondent_name": orIncognito(sess.RespondentName),
		"timestamp":       s.now(),
	})

	greeting := fmt.Sprintf(
		"Thanks for joining! I'll ask a few quick questions about your experience with %s. Take your time and be as honest as you like.",
		goalOrDefault(sv.Goal))
	return &SessionStart{
		SessionID:     sess.ID,
		Greeting:      greeting,
		Question:      turnQuestion(qs[0]),
		QuestionCount: len(qs),
		TypingDelayMS: typingDelayMS,
	}, nil
}

type AnswerInput struct {
	SessionID  string `json:"session_id"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// Answer records the respondent's reply to the current turn and returns what
// comes next. The response write is fire-and-forget: its failure is logged
// but never stalls the conversation. Judge failures resolve to "advance".
func (s *SessionService) Answer(ctx context.Context, in AnswerInput) (*Turn, error) {
	answer := strings.TrimSpace(in.Answer)

	s.mu.Lock()
	st, ok := s.active[in.SessionID]
	if !ok {
		s.mu.Unlock()
		return nil, NewNotFoundError("session not active")
	}
	if st.completed || st.index >= len(st.questions) {
		s.mu.Unlock()
		return nil, NewConflictError("session already completed")
	}

	isProbe := st.pendingProbe != nil
	var current *TurnQuestion
	if isProbe {
		current = st.pendingProbe
	} else {
		current = turnQuestion(st.questions[st.index])
	}
	if in.QuestionID != "" && in.QuestionID != current.ID {
		s.mu.Unlock()
		return nil, NewConflictError("question out of order")
	}
	if current.Required && answer == "" {
		s.mu.Unlock()
		return nil, NewInvalidError("an answer is required for this question")
	}

	index := st.index
	goal := st.goal
	surveyID := st.surveyID
	respondent := st.respondent
	// Probe depth guard: only an original question with follow-ups enabled
	// and zero probes so far may consult the judge. Engine-owned; the judge's
	// own "no double probe" discipline is not trusted.
	canProbe := !isProbe && st.questions[index].AllowFollowUp && st.probeCount[index] == 0 && s.judge != nil
	s.mu.Unlock()

	resp := &Response{
		ID:         s.idGen(),
		SessionID:  in.SessionID,
		QuestionID: current.ID,
		Answer:     answer,
		Category:   current.Category,
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertResponse(resp); err != nil {
		log.Printf("session %s: record response: %v", in.SessionID, err)
	}
	s.publish(surveyID, EventNewResponse, map[string]any{
		"respondent_name":   orAnonymous(respondent),
		"question_category": current.Category,
		"timestamp":         s.now(),
	})

	if canProbe {
		verdict, err := s.judge.Judge(ctx, current.Text, answer, goal)
		if err != nil {
			// Fail open: an unreachable or misbehaving judge must never
			// block progression.
			log.Printf("session %s: follow-up judge: %v", in.SessionID, err)
			verdict = nil
		}
		if verdict != nil && verdict.ShouldFollowUp && strings.TrimSpace(verdict.FollowUpQuestion) != "" {
			probe := &TurnQuestion{
				ID:       s.idGen(),
				Text:     strings.TrimSpace(verdict.FollowUpQuestion),
				Type:     QuestionOpen,
				Category: ProbeCategory,
			}
			s.mu.Lock()
			// The judge call ran unlocked; only attach the probe if this
			// answer is still the session's latest turn.
			if st.pendingProbe == nil && st.index == index && !st.completed {
				st.probeCount[index]++
				st.pendingProbe = probe
				s.mu.Unlock()
				return &Turn{SessionID: in.SessionID, Probe: true, Question: probe, TypingDelayMS: typingDelayMS}, nil
			}
			s.mu.Unlock()
			return nil, NewConflictError("session advanced concurrently")
		}
	}

	s.mu.Lock()
	if st.index != index || (st.pendingProbe != nil) != isProbe {
		s.mu.Unlock()
		return nil, NewConflictError("session advanced concurrently")
	}
	st.pendingProbe = nil
	st.index = index + 1
	done := st.index >= len(st.questions)
	var next *TurnQuestion
	if !done {
		next = turnQuestion(st.questions[st.index])
	}
	s.mu.Unlock()

	if done {
		if _, err := s.Complete(in.SessionID); err != nil {
			log.Printf("session %s: complete: %v", in.SessionID, err)
		}
		return &Turn{SessionID: in.SessionID, Done: true}, nil
	}
	return &Turn{SessionID: in.SessionID, Question: next, TypingDelayMS: typingDelayMS}, nil
}

// Complete marks the session finished. Idempotent: the completion timestamp
// is written once and the session_completed event fires at most once.
func (s *SessionService) Complete(sessionID string) (*Session, error) {
	sess, newly, err := s.store.CompleteSession(sessionID, s.now())
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	s.mu.Lock()
	if st, ok := s.active[sessionID]; ok {
		st.completed = true
		delete(s.active, sessionID)
	}
	s.mu.Unlock()
	if newly {
		s.publish(sess.SurveyID, EventSessionCompleted, map[string]any{
			"respondent_name": orAnonymous(sess.RespondentName),
			"timestamp":       s.now(),
		})
	}
	return sess, nil
}

func orIncognito(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Incognito"
	}
	return name
}

func orAnonymous(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Anonymous"
	}
	return name
}
