package services

import (
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorBadGateway   ErrorCode = "bad_gateway"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewBadGatewayError(msg string) error { return &ServiceError{Code: ErrorBadGateway, Message: msg} }

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// SurveyStore abstracts the persistence operations used by SurveyService.
type SurveyStore interface {
	InsertSurvey(sv *Survey) (*Survey, error)
	GetSurvey(id string) (*Survey, error)
	GetSurveyByToken(token string) (*Survey, error)
	// UpdateSurvey writes the editable fields only; it never touches status.
	// Status moves exclusively through UpdateSurveyStatus, so a field edit
	// racing a status change cannot clobber it.
	UpdateSurvey(sv *Survey) error
	// UpdateSurveyStatus performs a compare-and-set: the write only happens
	// if the stored status still equals from. Returns whether it applied.
	UpdateSurveyStatus(id string, from, to SurveyStatus) (bool, error)
	DeleteSurvey(id string) error
	DeleteSurveysByOwner(userID string) (int, error)
	ListSurveysByOwner(userID string) ([]*SurveyOverview, error)
	ReplaceRespondentFields(surveyID string, fields []*RespondentField) error
	ListRespondentFields(surveyID string) ([]*RespondentField, error)
	ReplaceQuestions(surveyID string, qs []*Question) error
	ListQuestions(surveyID string) ([]*Question, error)
	GetQuestion(id string) (*Question, error)
	DeleteQuestion(id string) error
	CountSessions(surveyID string) (int, error)
}

type SurveyService struct {
	store SurveyStore
	now   func() time.Time
	idGen func() string
}

func NewSurveyService(store SurveyStore) *SurveyService {
	return &SurveyService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

const shareTokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newShareToken returns an unguessable n-char capability string.
func newShareToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is not survivable in any useful way; fall back
		// to a uuid-derived token rather than panicking.
		return shortID(n)
	}
	for i, b := range buf {
		buf[i] = shareTokenAlphabet[int(b)%len(shareTokenAlphabet)]
	}
	return string(buf)
}

type CreateSurveyInput struct {
	Title          string `json:"title"`
	Goal           string `json:"goal"`
	TargetAudience string `json:"target_audience"`
	Context        string `json:"context"`
}

func (s *SurveyService) Create(userID string, in CreateSurveyInput) (*Survey, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, NewInvalidError("title required")
	}
	if strings.TrimSpace(in.Goal) == "" {
		return nil, NewInvalidError("goal required")
	}
	sv := &Survey{
		ID:             s.idGen(),
		UserID:         userID,
		Title:          strings.TrimSpace(in.Title),
		Goal:           strings.TrimSpace(in.Goal),
		TargetAudience: strings.TrimSpace(in.TargetAudience),
		Context:        strings.TrimSpace(in.Context),
		Status:         StatusDraft,
		ShareToken:     newShareToken(8),
		CreatedAt:      s.now(),
	}
	created, err := s.store.InsertSurvey(sv)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return sv, nil
	}
	return created, nil
}

func (s *SurveyService) List(userID string) ([]*SurveyOverview, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	return s.store.ListSurveysByOwner(userID)
}

// SurveyDetail bundles a survey with its ordered children.
type SurveyDetail struct {
	Survey
	Questions    []*Question        `json:"questions"`
	Fields       []*RespondentField `json:"respondent_fields"`
	SessionCount int                `json:"session_count"`
}

func (s *SurveyService) Get(id string) (*SurveyDetail, error) {
	sv, err := s.store.GetSurvey(id)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	return s.detail(sv)
}

// GetByToken resolves a public share token. The token is the capability; no
// auth is required and the owner id is stripped from the result.
func (s *SurveyService) GetByToken(token string) (*SurveyDetail, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewInvalidError("token required")
	}
	sv, err := s.store.GetSurveyByToken(token)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	d, err := s.detail(sv)
	if err != nil {
		return nil, err
	}
	d.UserID = ""
	return d, nil
}

func (s *SurveyService) detail(sv *Survey) (*SurveyDetail, error) {
	qs, err := s.store.ListQuestions(sv.ID)
	if err != nil {
		return nil, err
	}
	fields, err := s.store.ListRespondentFields(sv.ID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountSessions(sv.ID)
	if err != nil {
		return nil, err
	}
	if qs == nil {
		qs = []*Question{}
	}
	if fields == nil {
		fields = []*RespondentField{}
	}
	return &SurveyDetail{Survey: *sv, Questions: qs, Fields: fields, SessionCount: count}, nil
}

type UpdateSurveyInput struct {
	Title          *string       `json:"title"`
	Goal           *string       `json:"goal"`
	TargetAudience *string       `json:"target_audience"`
	Context        *string       `json:"context"`
	Status         *SurveyStatus `json:"status"`
}

func (s *SurveyService) Update(userID, id string, in UpdateSurveyInput) (*Survey, error) {
	sv, err := s.ownedSurvey(userID, id)
	if err != nil {
		return nil, err
	}
	updated := *sv
	if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
		updated.Title = strings.TrimSpace(*in.Title)
	}
	if in.Goal != nil && strings.TrimSpace(*in.Goal) != "" {
		updated.Goal = strings.TrimSpace(*in.Goal)
	}
	if in.TargetAudience != nil {
		updated.TargetAudience = strings.TrimSpace(*in.TargetAudience)
	}
	if in.Context != nil {
		updated.Context = strings.TrimSpace(*in.Context)
	}
	if in.Status != nil && *in.Status != sv.Status {
		if !CanTransition(sv.Status, *in.Status) {
			return nil, NewInvalidError("illegal status transition " + string(sv.Status) + " -> " + string(*in.Status))
		}
		ok, err := s.store.UpdateSurveyStatus(id, sv.Status, *in.Status)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewConflictError("survey status changed concurrently")
		}
		updated.Status = *in.Status
	}
	if err := s.store.UpdateSurvey(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *SurveyService) Delete(userID, id string) error {
	if _, err := s.ownedSurvey(userID, id); err != nil {
		return err
	}
	return s.store.DeleteSurvey(id)
}

// DeleteOwned removes every survey belonging to userID. Used by account
// deletion; auth users themselves are kept.
func (s *SurveyService) DeleteOwned(userID string) (int, error) {
	if userID == "" {
		return 0, NewUnauthorizedError("unauthorized")
	}
	return s.store.DeleteSurveysByOwner(userID)
}

// ReplaceFields swaps the survey's onboarding fields for the given set.
// Per-field identity is not preserved; order follows slice order.
func (s *SurveyService) ReplaceFields(userID, surveyID string, fields []*RespondentField) ([]*RespondentField, error) {
	if _, err := s.ownedSurvey(userID, surveyID); err != nil {
		return nil, err
	}
	out := make([]*RespondentField, 0, len(fields))
	for i, f := range fields {
		if f == nil || strings.TrimSpace(f.Label) == "" {
			return nil, NewInvalidError("field label required")
		}
		cp := *f
		cp.ID = s.idGen()
		cp.SurveyID = surveyID
		cp.OrderIndex = i
		if cp.FieldType == "" {
			cp.FieldType = "text"
		}
		out = append(out, &cp)
	}
	if err := s.store.ReplaceRespondentFields(surveyID, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceQuestions swaps the survey's question script for the given set,
// applying the same defaults the setup wizard relies on.
func (s *SurveyService) ReplaceQuestions(userID, surveyID string, qs []*Question) ([]*Question, error) {
	if _, err := s.ownedSurvey(userID, surveyID); err != nil {
		return nil, err
	}
	out := make([]*Question, 0, len(qs))
	for i, q := range qs {
		if q == nil || strings.TrimSpace(q.Text) == "" {
			return nil, NewInvalidError("question text required")
		}
		cp := *q
		cp.ID = s.idGen()
		cp.SurveyID = surveyID
		cp.OrderIndex = i
		applyQuestionDefaults(&cp)
		out = append(out, &cp)
	}
	if err := s.store.ReplaceQuestions(surveyID, out); err != nil {
		return nil, err
	}
	return out, nil
}

func applyQuestionDefaults(q *Question) {
	if q.Type == "" {
		q.Type = QuestionOpen
	}
	if q.Category == "" {
		q.Category = GeneralCategory
	}
	if q.ScaleMin == 0 {
		q.ScaleMin = 1
	}
	if q.ScaleMax == 0 {
		q.ScaleMax = 10
	}
	if q.ScaleMinLabel == "" {
		q.ScaleMinLabel = "Not at all"
	}
	if q.ScaleMaxLabel == "" {
		q.ScaleMaxLabel = "Absolutely"
	}
	if q.StarCount == 0 {
		q.StarCount = 5
	}
}

// GenerateQuestions builds a deterministic question script from the survey
// goal. Nothing is persisted; the caller reviews and bulk-saves the result.
func (s *SurveyService) GenerateQuestions(userID, surveyID string, count int) ([]*Question, error) {
	sv, err := s.ownedSurvey(userID, surveyID)
	if err != nil {
		return nil, err
	}
	return BuildQuestionScript(sv.Goal, count), nil
}

// DeleteQuestion removes a single question after resolving it back to its
// survey and checking ownership; the question id alone is not a capability.
func (s *SurveyService) DeleteQuestion(userID, questionID string) error {
	if userID == "" {
		return NewUnauthorizedError("unauthorized")
	}
	q, err := s.store.GetQuestion(questionID)
	if err != nil {
		return err
	}
	if q == nil {
		return NewNotFoundError("question not found")
	}
	if _, err := s.ownedSurvey(userID, q.SurveyID); err != nil {
		return err
	}
	return s.store.DeleteQuestion(questionID)
}

func (s *SurveyService) ownedSurvey(userID, id string) (*Survey, error) {
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
