package services

import (
	"bytes"
	"encoding/csv"
	"time"
)

// TranscriptRow is one line of the long-format interview export.
type TranscriptRow struct {
	SessionID   string
	Respondent  string
	QuestionID  string
	Category    string
	Answer      string
	SubmittedAt string // RFC3339
}

// ExportStore abstracts persistence for transcript export.
type ExportStore interface {
	GetSurvey(id string) (*Survey, error)
	ListSessions(surveyID string) ([]*Session, error)
	ListResponsesBySession(sessionID string) ([]*Response, error)
}

type ExportService struct {
	store ExportStore
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store}
}

// TranscriptCSV renders every response of every session of the survey as a
// long-format CSV, one answer per row, session order preserved.
func (s *ExportService) TranscriptCSV(userID, surveyID string) ([]byte, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	sv, err := s.store.GetSurvey(surveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	if sv.UserID != userID {
		return nil, NewForbiddenError("forbidden")
	}
	sessions, err := s.store.ListSessions(surveyID)
	if err != nil {
		return nil, err
	}
	rows := make([]TranscriptRow, 0, len(sessions)*4)
	for _, sess := range sessions {
		responses, err := s.store.ListResponsesBySession(sess.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range responses {
			rows = append(rows, TranscriptRow{
				SessionID:   sess.ID,
				Respondent:  orAnonymous(sess.RespondentName),
				QuestionID:  r.QuestionID,
				Category:    r.Category,
				Answer:      r.Answer,
				SubmittedAt: r.CreatedAt.Format(time.RFC3339),
			})
		}
	}
	return renderTranscriptCSV(rows)
}

func renderTranscriptCSV(rows []TranscriptRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"session_id", "respondent", "question_id", "category", "answer", "submitted_at"})
	for _, r := range rows {
		rec := []string{r.SessionID, r.Respondent, r.QuestionID, r.Category, r.Answer, r.SubmittedAt}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
