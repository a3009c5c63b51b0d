package api

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soaringjerry/ProbeAI/internal/services"
)

// memoryStore is an in-memory Store used by tests and DB-less runs. All
// methods copy on the way in and out so callers never share struct memory
// with the store.
type memoryStore struct {
	mu            sync.RWMutex
	users         map[string]*services.User
	surveys       map[string]*services.Survey
	fields        map[string][]*services.RespondentField
	questions     map[string][]*services.Question
	sessions      map[string]*services.Session
	sessionOrder  map[string][]string
	responses     map[string][]*services.Response
	analyses      map[string][]*services.Analysis
	notifications map[string][]*services.Notification
}

var _ Store = (*memoryStore)(nil)

func NewMemoryStore() Store {
	return &memoryStore{
		users:         map[string]*services.User{},
		surveys:       map[string]*services.Survey{},
		fields:        map[string][]*services.RespondentField{},
		questions:     map[string][]*services.Question{},
		sessions:      map[string]*services.Session{},
		sessionOrder:  map[string][]string{},
		responses:     map[string][]*services.Response{},
		analyses:      map[string][]*services.Analysis{},
		notifications: map[string][]*services.Notification{},
	}
}

func (m *memoryStore) FindUserByEmail(email string) (*services.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) AddUser(u *services.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("user %s exists", u.ID)
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	delete(m.notifications, id)
	return nil
}

func (m *memoryStore) InsertSurvey(sv *services.Survey) (*services.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.surveys[sv.ID]; ok {
		return nil, fmt.Errorf("survey %s exists", sv.ID)
	}
	cp := *sv
	m.surveys[sv.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memoryStore) GetSurvey(id string) (*services.Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sv, ok := m.surveys[id]
	if !ok {
		return nil, nil
	}
	cp := *sv
	return &cp, nil
}

func (m *memoryStore) GetSurveyByToken(token string) (*services.Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sv := range m.surveys {
		if sv.ShareToken == token {
			cp := *sv
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) UpdateSurvey(sv *services.Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.surveys[sv.ID]
	if !ok {
		return fmt.Errorf("survey %s not found", sv.ID)
	}
	cp := *sv
	cp.Status = cur.Status
	m.surveys[sv.ID] = &cp
	return nil
}

func (m *memoryStore) UpdateSurveyStatus(id string, from, to services.SurveyStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sv, ok := m.surveys[id]
	if !ok || sv.Status != from {
		return false, nil
	}
	sv.Status = to
	return true, nil
}

func (m *memoryStore) DeleteSurvey(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteSurveyLocked(id)
	return nil
}

func (m *memoryStore) deleteSurveyLocked(id string) {
	delete(m.surveys, id)
	delete(m.fields, id)
	delete(m.questions, id)
	delete(m.analyses, id)
	for _, sid := range m.sessionOrder[id] {
		delete(m.sessions, sid)
		delete(m.responses, sid)
	}
	delete(m.sessionOrder, id)
}

func (m *memoryStore) DeleteSurveysByOwner(userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, sv := range m.surveys {
		if sv.UserID == userID {
			m.deleteSurveyLocked(id)
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) ListSurveysByOwner(userID string) ([]*services.SurveyOverview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*services.SurveyOverview{}
	for id, sv := range m.surveys {
		if sv.UserID != userID {
			continue
		}
		cp := *sv
		out = append(out, &services.SurveyOverview{
			Survey:        cp,
			QuestionCount: len(m.questions[id]),
			SessionCount:  len(m.sessionOrder[id]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) ReplaceRespondentFields(surveyID string, fields []*services.RespondentField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*services.RespondentField, 0, len(fields))
	for _, f := range fields {
		c := *f
		c.Options = append([]string(nil), f.Options...)
		cp = append(cp, &c)
	}
	m.fields[surveyID] = cp
	return nil
}

func (m *memoryStore) ListRespondentFields(surveyID string) ([]*services.RespondentField, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*services.RespondentField, 0, len(m.fields[surveyID]))
	for _, f := range m.fields[surveyID] {
		c := *f
		c.Options = append([]string(nil), f.Options...)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *memoryStore) ReplaceQuestions(surveyID string, qs []*services.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*services.Question, 0, len(qs))
	for _, q := range qs {
		c := *q
		c.Options = append([]string(nil), q.Options...)
		cp = append(cp, &c)
	}
	m.questions[surveyID] = cp
	return nil
}

func (m *memoryStore) ListQuestions(surveyID string) ([]*services.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*services.Question, 0, len(m.questions[surveyID]))
	for _, q := range m.questions[surveyID] {
		c := *q
		c.Options = append([]string(nil), q.Options...)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *memoryStore) GetQuestion(id string) (*services.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, qs := range m.questions {
		for _, q := range qs {
			if q.ID == id {
				c := *q
				c.Options = append([]string(nil), q.Options...)
				return &c, nil
			}
		}
	}
	return nil, nil
}

func (m *memoryStore) DeleteQuestion(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for surveyID, qs := range m.questions {
		for i, q := range qs {
			if q.ID == id {
				m.questions[surveyID] = append(qs[:i:i], qs[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (m *memoryStore) InsertSession(sess *services.Session) (*services.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.ID]; ok {
		return nil, fmt.Errorf("session %s exists", sess.ID)
	}
	cp := *sess
	m.sessions[sess.ID] = &cp
	m.sessionOrder[sess.SurveyID] = append(m.sessionOrder[sess.SurveyID], sess.ID)
	out := cp
	return &out, nil
}

func (m *memoryStore) GetSession(id string) (*services.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (m *memoryStore) CompleteSession(id string, at time.Time) (*services.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, false, nil
	}
	if sess.CompletedAt != nil {
		cp := *sess
		return &cp, false, nil
	}
	ts := at
	sess.CompletedAt = &ts
	cp := *sess
	return &cp, true, nil
}

func (m *memoryStore) CountSessions(surveyID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessionOrder[surveyID]), nil
}

func (m *memoryStore) ListSessions(surveyID string) ([]*services.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*services.Session, 0, len(m.sessionOrder[surveyID]))
	for _, sid := range m.sessionOrder[surveyID] {
		if sess, ok := m.sessions[sid]; ok {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryStore) InsertResponse(r *services.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.responses[r.SessionID] = append(m.responses[r.SessionID], &cp)
	return nil
}

func (m *memoryStore) ListResponsesBySession(sessionID string) ([]*services.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*services.Response, 0, len(m.responses[sessionID]))
	for _, r := range m.responses[sessionID] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memoryStore) InsertAnalysis(a *services.Analysis) (*services.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.analyses[a.SurveyID] = append(m.analyses[a.SurveyID], &cp)
	out := cp
	return &out, nil
}

func (m *memoryStore) LatestAnalysis(surveyID string) (*services.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.analyses[surveyID]
	if len(rows) == 0 {
		return nil, nil
	}
	cp := *rows[len(rows)-1]
	return &cp, nil
}

func (m *memoryStore) AddNotification(n *services.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.UserID] = append(m.notifications[n.UserID], &cp)
	return nil
}

func (m *memoryStore) ListNotifications(userID string, limit int) ([]*services.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.notifications[userID]
	out := make([]*services.Notification, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		cp := *rows[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
