package api

import (
	"time"

	"github.com/soaringjerry/ProbeAI/internal/services"
)

// Store is the persistence surface the HTTP layer wires into the services.
// It is the union of the per-service store interfaces plus the notification
// log; the assertions below keep it structurally in sync with each one.
type Store interface {
	// Users.
	FindUserByEmail(email string) (*services.User, error)
	AddUser(u *services.User) error
	DeleteUser(id string) error

	// Surveys and their children.
	InsertSurvey(sv *services.Survey) (*services.Survey, error)
	GetSurvey(id string) (*services.Survey, error)
	GetSurveyByToken(token string) (*services.Survey, error)
	UpdateSurvey(sv *services.Survey) error
	UpdateSurveyStatus(id string, from, to services.SurveyStatus) (bool, error)
	DeleteSurvey(id string) error
	DeleteSurveysByOwner(userID string) (int, error)
	ListSurveysByOwner(userID string) ([]*services.SurveyOverview, error)
	ReplaceRespondentFields(surveyID string, fields []*services.RespondentField) error
	ListRespondentFields(surveyID string) ([]*services.RespondentField, error)
	ReplaceQuestions(surveyID string, qs []*services.Question) error
	ListQuestions(surveyID string) ([]*services.Question, error)
	GetQuestion(id string) (*services.Question, error)
	DeleteQuestion(id string) error

	// Sessions and responses.
	InsertSession(sess *services.Session) (*services.Session, error)
	GetSession(id string) (*services.Session, error)
	CompleteSession(id string, at time.Time) (*services.Session, bool, error)
	CountSessions(surveyID string) (int, error)
	ListSessions(surveyID string) ([]*services.Session, error)
	InsertResponse(r *services.Response) error
	ListResponsesBySession(sessionID string) ([]*services.Response, error)

	// Analysis reports.
	InsertAnalysis(a *services.Analysis) (*services.Analysis, error)
	LatestAnalysis(surveyID string) (*services.Analysis, error)

	// Notifications.
	AddNotification(n *services.Notification) error
	ListNotifications(userID string, limit int) ([]*services.Notification, error)
}

var (
	_ services.AuthStore     = Store(nil)
	_ services.SurveyStore   = Store(nil)
	_ services.SessionStore  = Store(nil)
	_ services.AnalysisStore = Store(nil)
	_ services.ExportStore   = Store(nil)
)
