package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/soaringjerry/ProbeAI/internal/api"
	"github.com/soaringjerry/ProbeAI/internal/services"
)

// SQLiteStore implements api.Store on a single sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ api.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeStringSlice(ns sql.NullString) []string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sqlite store: decode string slice: %v", err)
		return nil
	}
	return out
}

func decodeInto(ns sql.NullString, v any) {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return
	}
	if err := json.Unmarshal([]byte(ns.String), v); err != nil {
		log.Printf("sqlite store: decode json column: %v", err)
	}
}

// --- users ---

func (s *SQLiteStore) FindUserByEmail(email string) (*services.User, error) {
	row := s.db.QueryRow(
		`SELECT id, email, pass_hash, full_name, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	u := &services.User{}
	var fullName sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.PassHash, &fullName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.FullName = fullName.String
	return u, nil
}

func (s *SQLiteStore) AddUser(u *services.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, pass_hash, full_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, toNullString(u.FullName), u.CreatedAt)
	return err
}

func (s *SQLiteStore) DeleteUser(id string) error {
	if _, err := s.db.Exec(`DELETE FROM notifications WHERE user_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	return err
}

// --- surveys ---

const surveyColumns = `id, user_id, title, goal, target_audience, context, status, share_token, created_at`

func scanSurvey(row interface{ Scan(...any) error }) (*services.Survey, error) {
	sv := &services.Survey{}
	var audience, context sql.NullString
	var status string
	err := row.Scan(&sv.ID, &sv.UserID, &sv.Title, &sv.Goal, &audience, &context, &status, &sv.ShareToken, &sv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sv.TargetAudience = audience.String
	sv.Context = context.String
	sv.Status = services.SurveyStatus(status)
	return sv, nil
}

func (s *SQLiteStore) InsertSurvey(sv *services.Survey) (*services.Survey, error) {
	_, err := s.db.Exec(
		`INSERT INTO surveys (`+surveyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sv.ID, sv.UserID, sv.Title, sv.Goal, toNullString(sv.TargetAudience), toNullString(sv.Context),
		string(sv.Status), sv.ShareToken, sv.CreatedAt)
	if err != nil {
		return nil, err
	}
	cp := *sv
	return &cp, nil
}

func (s *SQLiteStore) GetSurvey(id string) (*services.Survey, error) {
	return scanSurvey(s.db.QueryRow(`SELECT `+surveyColumns+` FROM surveys WHERE id = ?`, id))
}

func (s *SQLiteStore) GetSurveyByToken(token string) (*services.Survey, error) {
	return scanSurvey(s.db.QueryRow(`SELECT `+surveyColumns+` FROM surveys WHERE share_token = ?`, token))
}

func (s *SQLiteStore) UpdateSurvey(sv *services.Survey) error {
	res, err := s.db.Exec(
		`UPDATE surveys SET title = ?, goal = ?, target_audience = ?, context = ? WHERE id = ?`,
		sv.Title, sv.Goal, toNullString(sv.TargetAudience), toNullString(sv.Context), sv.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("survey %s not found", sv.ID)
	}
	return nil
}

func (s *SQLiteStore) UpdateSurveyStatus(id string, from, to services.SurveyStatus) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE surveys SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) DeleteSurvey(id string) error {
	_, err := s.db.Exec(`DELETE FROM surveys WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) DeleteSurveysByOwner(userID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM surveys WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) ListSurveysByOwner(userID string) ([]*services.SurveyOverview, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.user_id, s.title, s.goal, s.target_audience, s.context, s.status, s.share_token, s.created_at,
		       (SELECT COUNT(*) FROM questions q WHERE q.survey_id = s.id),
		       (SELECT COUNT(*) FROM sessions x WHERE x.survey_id = s.id)
		FROM surveys s
		WHERE s.user_id = ?
		ORDER BY s.created_at DESC, s.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.SurveyOverview{}
	for rows.Next() {
		ov := &services.SurveyOverview{}
		var audience, context sql.NullString
		var status string
		if err := rows.Scan(&ov.ID, &ov.UserID, &ov.Title, &ov.Goal, &audience, &context, &status,
			&ov.ShareToken, &ov.CreatedAt, &ov.QuestionCount, &ov.SessionCount); err != nil {
			return nil, err
		}
		ov.TargetAudience = audience.String
		ov.Context = context.String
		ov.Status = services.SurveyStatus(status)
		out = append(out, ov)
	}
	return out, rows.Err()
}

// --- respondent fields ---

func (s *SQLiteStore) ReplaceRespondentFields(surveyID string, fields []*services.RespondentField) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM respondent_fields WHERE survey_id = ?`, surveyID); err != nil {
		return err
	}
	for _, f := range fields {
		opts, err := encodeJSON(f.Options)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO respondent_fields (id, survey_id, label, field_type, is_required, options, order_index)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ID, surveyID, f.Label, f.FieldType, boolToInt64(f.IsRequired), opts, f.OrderIndex); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListRespondentFields(surveyID string) ([]*services.RespondentField, error) {
	rows, err := s.db.Query(
		`SELECT id, survey_id, label, field_type, is_required, options, order_index
		 FROM respondent_fields WHERE survey_id = ? ORDER BY order_index`, surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.RespondentField{}
	for rows.Next() {
		f := &services.RespondentField{}
		var required int64
		var opts sql.NullString
		if err := rows.Scan(&f.ID, &f.SurveyID, &f.Label, &f.FieldType, &required, &opts, &f.OrderIndex); err != nil {
			return nil, err
		}
		f.IsRequired = required != 0
		f.Options = decodeStringSlice(opts)
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- questions ---

func (s *SQLiteStore) ReplaceQuestions(surveyID string, qs []*services.Question) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM questions WHERE survey_id = ?`, surveyID); err != nil {
		return err
	}
	for _, q := range qs {
		opts, err := encodeJSON(q.Options)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO questions (id, survey_id, text, type, category, options, scale_min, scale_max,
			                        scale_min_label, scale_max_label, star_count, is_required, allow_followup, order_index)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, surveyID, q.Text, q.Type, q.Category, opts, q.ScaleMin, q.ScaleMax,
			toNullString(q.ScaleMinLabel), toNullString(q.ScaleMaxLabel), q.StarCount,
			boolToInt64(q.IsRequired), boolToInt64(q.AllowFollowUp), q.OrderIndex); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListQuestions(surveyID string) ([]*services.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, survey_id, text, type, category, options, scale_min, scale_max,
		        scale_min_label, scale_max_label, star_count, is_required, allow_followup, order_index
		 FROM questions WHERE survey_id = ? ORDER BY order_index`, surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.Question{}
	for rows.Next() {
		q := &services.Question{}
		var opts, minLabel, maxLabel sql.NullString
		var required, followUp int64
		if err := rows.Scan(&q.ID, &q.SurveyID, &q.Text, &q.Type, &q.Category, &opts, &q.ScaleMin, &q.ScaleMax,
			&minLabel, &maxLabel, &q.StarCount, &required, &followUp, &q.OrderIndex); err != nil {
			return nil, err
		}
		q.Options = decodeStringSlice(opts)
		q.ScaleMinLabel = minLabel.String
		q.ScaleMaxLabel = maxLabel.String
		q.IsRequired = required != 0
		q.AllowFollowUp = followUp != 0
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetQuestion(id string) (*services.Question, error) {
	row := s.db.QueryRow(
		`SELECT id, survey_id, text, type, category, options, scale_min, scale_max,
		        scale_min_label, scale_max_label, star_count, is_required, allow_followup, order_index
		 FROM questions WHERE id = ?`, id)
	q := &services.Question{}
	var opts, minLabel, maxLabel sql.NullString
	var required, followUp int64
	err := row.Scan(&q.ID, &q.SurveyID, &q.Text, &q.Type, &q.Category, &opts, &q.ScaleMin, &q.ScaleMax,
		&minLabel, &maxLabel, &q.StarCount, &required, &followUp, &q.OrderIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Options = decodeStringSlice(opts)
	q.ScaleMinLabel = minLabel.String
	q.ScaleMaxLabel = maxLabel.String
	q.IsRequired = required != 0
	q.AllowFollowUp = followUp != 0
	return q, nil
}

func (s *SQLiteStore) DeleteQuestion(id string) error {
	_, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
	return err
}

// --- sessions and responses ---

func (s *SQLiteStore) InsertSession(sess *services.Session) (*services.Session, error) {
	var meta sql.NullString
	if len(sess.RespondentMeta) > 0 {
		meta = sql.NullString{String: string(sess.RespondentMeta), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, survey_id, respondent_name, respondent_email, respondent_meta, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		sess.ID, sess.SurveyID, toNullString(sess.RespondentName), toNullString(sess.RespondentEmail), meta, sess.CreatedAt)
	if err != nil {
		return nil, err
	}
	cp := *sess
	return &cp, nil
}

func scanSession(row interface{ Scan(...any) error }) (*services.Session, error) {
	sess := &services.Session{}
	var name, email, meta sql.NullString
	var completed sql.NullTime
	err := row.Scan(&sess.ID, &sess.SurveyID, &name, &email, &meta, &sess.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.RespondentName = name.String
	sess.RespondentEmail = email.String
	if meta.Valid {
		sess.RespondentMeta = json.RawMessage(meta.String)
	}
	if completed.Valid {
		t := completed.Time
		sess.CompletedAt = &t
	}
	return sess, nil
}

const sessionColumns = `id, survey_id, respondent_name, respondent_email, respondent_meta, created_at, completed_at`

func (s *SQLiteStore) GetSession(id string) (*services.Session, error) {
	return scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
}

func (s *SQLiteStore) CompleteSession(id string, at time.Time) (*services.Session, bool, error) {
	res, err := s.db.Exec(`UPDATE sessions SET completed_at = ? WHERE id = ? AND completed_at IS NULL`, at, id)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, false, err
	}
	if sess == nil {
		return nil, false, nil
	}
	return sess, n > 0, nil
}

func (s *SQLiteStore) CountSessions(surveyID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE survey_id = ?`, surveyID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) ListSessions(surveyID string) ([]*services.Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions WHERE survey_id = ? ORDER BY created_at, id`, surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertResponse(r *services.Response) error {
	_, err := s.db.Exec(
		`INSERT INTO responses (id, session_id, question_id, answer, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.QuestionID, r.Answer, r.Category, r.CreatedAt)
	return err
}

func (s *SQLiteStore) ListResponsesBySession(sessionID string) ([]*services.Response, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, question_id, answer, category, created_at
		 FROM responses WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.Response{}
	for rows.Next() {
		r := &services.Response{}
		if err := rows.Scan(&r.ID, &r.SessionID, &r.QuestionID, &r.Answer, &r.Category, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- analyses ---

func (s *SQLiteStore) InsertAnalysis(a *services.Analysis) (*services.Analysis, error) {
	themes, err := encodeJSON(a.Themes)
	if err != nil {
		return nil, err
	}
	pains, err := encodeJSON(a.PainPoints)
	if err != nil {
		return nil, err
	}
	opps, err := encodeJSON(a.Opportunities)
	if err != nil {
		return nil, err
	}
	plan, err := encodeJSON(a.ActionPlan)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`INSERT INTO analyses (id, survey_id, executive_summary, overall_sentiment, nps_score, response_count,
		                       themes, pain_points, opportunities, action_plan, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SurveyID, a.ExecutiveSummary, a.OverallSentiment, a.NPSScore, a.ResponseCount,
		themes, pains, opps, plan, a.CreatedAt)
	if err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

func (s *SQLiteStore) LatestAnalysis(surveyID string) (*services.Analysis, error) {
	row := s.db.QueryRow(
		`SELECT id, survey_id, executive_summary, overall_sentiment, nps_score, response_count,
		        themes, pain_points, opportunities, action_plan, created_at
		 FROM analyses WHERE survey_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, surveyID)
	a := &services.Analysis{}
	var themes, pains, opps, plan sql.NullString
	err := row.Scan(&a.ID, &a.SurveyID, &a.ExecutiveSummary, &a.OverallSentiment, &a.NPSScore, &a.ResponseCount,
		&themes, &pains, &opps, &plan, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	decodeInto(themes, &a.Themes)
	decodeInto(pains, &a.PainPoints)
	decodeInto(opps, &a.Opportunities)
	decodeInto(plan, &a.ActionPlan)
	return a, nil
}

// --- notifications ---

func (s *SQLiteStore) AddNotification(n *services.Notification) error {
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, user_id, message, type, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Message, toNullString(n.Type), n.CreatedAt)
	return err
}

func (s *SQLiteStore) ListNotifications(userID string, limit int) ([]*services.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, user_id, message, type, created_at
		 FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.Notification{}
	for rows.Next() {
		n := &services.Notification{}
		var typ sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &typ, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = typ.String
		out = append(out, n)
	}
	return out, rows.Err()
}
