package services

import (
	"encoding/json"
	"time"
)

// SurveyStatus is the researcher-facing lifecycle of a survey.
type SurveyStatus string

const (
	StatusDraft      SurveyStatus = "DRAFT"
	StatusCollecting SurveyStatus = "COLLECTING"
	StatusAnalysing  SurveyStatus = "ANALYSING"
	StatusCompleted  SurveyStatus = "COMPLETED"
)

// surveyTransitions is the validated transition table. Analysis may start
// from any non-terminal state; ANALYSING rolls back to COLLECTING when a run
// aborts with no data.
var surveyTransitions = map[SurveyStatus][]SurveyStatus{
	StatusDraft:      {StatusCollecting, StatusAnalysing},
	StatusCollecting: {StatusAnalysing},
	StatusAnalysing:  {StatusCompleted, StatusCollecting},
	StatusCompleted:  {StatusAnalysing},
}

// CanTransition reports whether from -> to is a legal status change.
// A no-op transition (from == to) is always allowed.
func CanTransition(from, to SurveyStatus) bool {
	if from == to {
		return true
	}
	for _, next := range surveyTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Question modalities. ProbeCategory tags adaptively inserted follow-up
// turns; it is a reserved category, not a persisted question type.
const (
	QuestionOpen       = "OPEN"
	QuestionScale      = "SCALE"
	QuestionChoice     = "CHOICE"
	QuestionYesNo      = "YES_NO"
	QuestionStarRating = "STAR_RATING"
	QuestionRanking    = "RANKING"

	ProbeCategory   = "PROBE"
	GeneralCategory = "general"
)

// Realtime event names, matching the dashboard's socket contract.
const (
	EventSessionStarted   = "session_started"
	EventNewResponse      = "new_response"
	EventSessionCompleted = "session_completed"
	EventAnalysisReady    = "analysis_ready"
)

// Broadcaster fans a survey-scoped event out to live observers. Delivery is
// best effort; implementations must never block the caller.
type Broadcaster interface {
	Publish(surveyID, event string, payload any)
}

// User is a registered researcher account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	PassHash  []byte    `json:"-"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Survey is one configured interview definition.
type Survey struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id,omitempty"`
	Title          string       `json:"title"`
	Goal           string       `json:"goal"`
	TargetAudience string       `json:"target_audience,omitempty"`
	Context        string       `json:"context,omitempty"`
	Status         SurveyStatus `json:"status"`
	ShareToken     string       `json:"share_token"`
	CreatedAt      time.Time    `json:"created_at"`
}

// SurveyOverview is a dashboard listing row.
type SurveyOverview struct {
	Survey
	QuestionCount int `json:"question_count"`
	SessionCount  int `json:"session_count"`
}

// RespondentField is one onboarding input shown before the interview starts.
// Fields carry no stable identity across edits; saving replaces the whole set.
type RespondentField struct {
	ID         string   `json:"id"`
	SurveyID   string   `json:"survey_id"`
	Label      string   `json:"label"`
	FieldType  string   `json:"field_type"`
	IsRequired bool     `json:"is_required"`
	Options    []string `json:"options,omitempty"`
	OrderIndex int      `json:"order_index"`
}

// Question is an ordered interview item. Replaced wholesale on bulk save.
type Question struct {
	ID            string   `json:"id"`
	SurveyID      string   `json:"survey_id"`
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Category      string   `json:"category"`
	Options       []string `json:"options,omitempty"`
	ScaleMin      int      `json:"scale_min,omitempty"`
	ScaleMax      int      `json:"scale_max,omitempty"`
	ScaleMinLabel string   `json:"scale_min_label,omitempty"`
	ScaleMaxLabel string   `json:"scale_max_label,omitempty"`
	StarCount     int      `json:"star_count,omitempty"`
	IsRequired    bool     `json:"is_required"`
	AllowFollowUp bool     `json:"allow_followup"`
	OrderIndex    int      `json:"order_index"`
}

// Session is one respondent's pass through a survey. CompletedAt stays nil
// forever for abandoned sessions; that is an accepted terminal state.
type Session struct {
	ID              string          `json:"id"`
	SurveyID        string          `json:"survey_id"`
	RespondentName  string          `json:"respondent_name,omitempty"`
	RespondentEmail string          `json:"respondent_email,omitempty"`
	RespondentMeta  json.RawMessage `json:"respondent_meta,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Response is one chat answer. Probe turns reference synthetic question ids
// that have no questions row, so QuestionID is informational, not relational.
type Response struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	QuestionID string    `json:"question_id"`
	Answer     string    `json:"answer"`
	Category   string    `json:"category"`
	CreatedAt  time.Time `json:"created_at"`
}

// Analysis is one synthesized report. Re-running analysis appends a new row;
// the latest row wins by creation time.
type Analysis struct {
	ID               string        `json:"id"`
	SurveyID         string        `json:"survey_id"`
	ExecutiveSummary string        `json:"executive_summary"`
	OverallSentiment float64       `json:"overall_sentiment"`
	NPSScore         float64       `json:"nps_score"`
	ResponseCount    int           `json:"response_count"`
	Themes           []Theme       `json:"themes"`
	PainPoints       []PainPoint   `json:"pain_points"`
	Opportunities    []Opportunity `json:"opportunities"`
	ActionPlan       []ActionItem  `json:"action_plan"`
	CreatedAt        time.Time     `json:"created_at"`
}

type Theme struct {
	Theme     string   `json:"theme"`
	Summary   string   `json:"summary"`
	Sentiment float64  `json:"sentiment"`
	Quotes    []string `json:"quotes,omitempty"`
}

type PainPoint struct {
	Point    string `json:"point"`
	Severity int    `json:"severity"`
	Evidence string `json:"evidence"`
}

type Opportunity struct {
	Opportunity string `json:"opportunity"`
	Impact      string `json:"impact"`
	Effort      string `json:"effort"`
	Evidence    string `json:"evidence"`
}

type ActionItem struct {
	Action    string `json:"action"`
	Priority  string `json:"priority"`
	Rationale string `json:"rationale"`
}

// Notification is a best-effort researcher event log entry.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
