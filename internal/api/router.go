package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/ProbeAI/internal/middleware"
	"github.com/soaringjerry/ProbeAI/internal/realtime"
	"github.com/soaringjerry/ProbeAI/internal/services"
)

type Router struct {
	store Store
	hub   *realtime.Hub
	judge services.FollowUpJudge

	auth     *services.AuthService
	surveys  *services.SurveyService
	sessions *services.SessionService
	analysis *services.AnalysisService
	export   *services.ExportService
}

// NewRouter wires the service layer onto one Store. judge and hub may be nil:
// a nil judge disables follow-ups, a nil hub disables the events endpoint.
func NewRouter(store Store, judge services.FollowUpJudge, hub *realtime.Hub) *Router {
	var events services.Broadcaster
	if hub != nil {
		events = hub
	}
	return &Router{
		store:    store,
		hub:      hub,
		judge:    judge,
		auth:     services.NewAuthService(store, middleware.SignToken),
		surveys:  services.NewSurveyService(store),
		sessions: services.NewSessionService(store, judge, events),
		analysis: services.NewAnalysisService(store, nil, events),
		export:   services.NewExportService(store),
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", rt.handleRegister) // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)       // POST
	mux.HandleFunc("/api/surveys", rt.handleSurveys)        // GET list, POST create
	mux.HandleFunc("/api/surveys/token/", rt.handleSurveyByToken)
	mux.HandleFunc("/api/surveys/", rt.handleSurveyScoped)
	mux.HandleFunc("/api/sessions/", rt.handleSessionScoped)
	mux.HandleFunc("/api/questions/", rt.handleQuestionScoped)
	mux.HandleFunc("/api/account", rt.handleAccount)             // DELETE
	mux.HandleFunc("/api/notifications", rt.handleNotifications) // GET, POST
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrNoSessions) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if se, ok := services.AsServiceError(err); ok {
		writeJSON(w, statusFor(se.Code), map[string]any{"error": se.Message, "code": string(se.Code)})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
}

func userID(r *http.Request) string {
	uid, _ := middleware.UserIDFromContext(r.Context())
	return uid
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Register(req.Email, req.Password, req.FullName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"token": res.Token, "user_id": res.UserID, "email": res.Email})
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "user_id": res.UserID, "email": res.Email})
}

// GET|POST /api/surveys
func (rt *Router) handleSurveys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		out, err := rt.surveys.List(userID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var in services.CreateSurveyInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sv, err := rt.surveys.Create(userID(r), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sv)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/surveys/token/{token} — public capability resolution.
func (rt *Router) handleSurveyByToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/api/surveys/token/")
	if token == "" || strings.Contains(token, "/") {
		http.NotFound(w, r)
		return
	}
	d, err := rt.surveys.GetByToken(token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// /api/surveys/{id} and its sub-resources.
func (rt *Router) handleSurveyScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/surveys/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			rt.surveyGet(w, r, id)
		case http.MethodPatch:
			rt.surveyPatch(w, r, id)
		case http.MethodDelete:
			rt.surveyDelete(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	switch parts[1] {
	case "fields":
		rt.surveyReplaceFields(w, r, id)
	case "questions":
		rt.surveyReplaceQuestions(w, r, id)
	case "generate-questions":
		rt.surveyGenerateQuestions(w, r, id)
	case "sessions":
		rt.sessionStart(w, r, id)
	case "respond":
		rt.sessionRespond(w, r)
	case "followup":
		rt.followUp(w, r)
	case "analyse":
		rt.analysisRun(w, r, id)
	case "analysis":
		rt.analysisLatest(w, r, id)
	case "export":
		rt.exportCSV(w, r, id)
	case "events":
		rt.surveyEvents(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// GET /api/surveys/{id} — owner view. Respondents resolve by share token.
func (rt *Router) surveyGet(w http.ResponseWriter, r *http.Request, id string) {
	uid := userID(r)
	if uid == "" {
		writeError(w, services.NewUnauthorizedError("unauthorized"))
		return
	}
	d, err := rt.surveys.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if d.UserID != uid {
		writeError(w, services.NewForbiddenError("forbidden"))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (rt *Router) surveyPatch(w http.ResponseWriter, r *http.Request, id string) {
	var in services.UpdateSurveyInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sv, err := rt.surveys.Update(userID(r), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (rt *Router) surveyDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := rt.surveys.Delete(userID(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /api/surveys/{id}/fields — full replace, body is the new field list.
func (rt *Router) surveyReplaceFields(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var fields []*services.RespondentField
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := rt.surveys.ReplaceFields(userID(r), id, fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/surveys/{id}/questions — full replace, body is the new script.
func (rt *Router) surveyReplaceQuestions(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var qs []*services.Question
	if err := json.NewDecoder(r.Body).Decode(&qs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := rt.surveys.ReplaceQuestions(userID(r), id, qs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/surveys/{id}/generate-questions — nothing is persisted; the
// caller reviews the draft and bulk-saves via the questions endpoint.
func (rt *Router) surveyGenerateQuestions(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Count int `json:"count"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	qs, err := rt.surveys.GenerateQuestions(userID(r), id, req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

// POST /api/surveys/{id}/sessions — public; the share token already gated
// discovery of the survey id.
func (rt *Router) sessionStart(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in services.StartSessionInput
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in)
	}
	in.SurveyID = id
	out, err := rt.sessions.Start(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// POST /api/surveys/{id}/respond — the session id in the body identifies the
// turn; the survey id in the path is routing only.
func (rt *Router) sessionRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in services.AnswerInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := rt.sessions.Answer(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/surveys/{id}/followup — direct judge pass-through for clients
// that drive their own conversation. Always answers, never errors: with no
// judge configured (or a failing one) the verdict is "do not follow up".
func (rt *Router) followUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		QuestionText string `json:"question_text"`
		Answer       string `json:"answer"`
		SurveyGoal   string `json:"survey_goal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rt.judge == nil {
		writeJSON(w, http.StatusOK, &services.FollowUpJudgment{Reason: "follow-up judge not configured"})
		return
	}
	verdict, err := rt.judge.Judge(r.Context(), req.QuestionText, req.Answer, req.SurveyGoal)
	if err != nil || verdict == nil {
		writeJSON(w, http.StatusOK, &services.FollowUpJudgment{Reason: "judge unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// POST /api/surveys/{id}/analyse
func (rt *Router) analysisRun(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uid := userID(r)
	report, err := rt.analysis.Run(uid, id)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.notify(uid, "Your analysis report is ready.", "analysis_ready")
	writeJSON(w, http.StatusOK, report)
}

// GET /api/surveys/{id}/analysis
func (rt *Router) analysisLatest(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	report, err := rt.analysis.Latest(userID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /api/surveys/{id}/export — long-format CSV transcript.
func (rt *Router) exportCSV(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	b, err := rt.export.TranscriptCSV(userID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=transcript.csv")
	_, _ = w.Write(b)
}

// GET /api/surveys/{id}/events — websocket stream of survey events.
func (rt *Router) surveyEvents(w http.ResponseWriter, r *http.Request, id string) {
	if rt.hub == nil {
		http.Error(w, "events unavailable", http.StatusServiceUnavailable)
		return
	}
	realtime.ServeSurveyEvents(rt.hub, id, w, r)
}

// PATCH /api/sessions/{id}/complete
func (rt *Router) handleSessionScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "complete" || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, err := rt.sessions.Complete(parts[0])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// DELETE /api/questions/{id}
func (rt *Router) handleQuestionScoped(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/questions/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := rt.surveys.DeleteQuestion(userID(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// DELETE /api/account — purges the caller's surveys and account row.
func (rt *Router) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uid := userID(r)
	n, err := rt.surveys.DeleteOwned(uid)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rt.store.DeleteUser(uid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted_surveys": n})
}

// GET|POST /api/notifications — best-effort event log. Writes never error;
// a failed append reports success=false and moves on.
func (rt *Router) handleNotifications(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	switch r.Method {
	case http.MethodGet:
		if uid == "" {
			writeError(w, services.NewUnauthorizedError("unauthorized"))
			return
		}
		rows, err := rt.store.ListNotifications(uid, 50)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	case http.MethodPost:
		var req struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || uid == "" || strings.TrimSpace(req.Message) == "" {
			writeJSON(w, http.StatusOK, map[string]any{"success": false})
			return
		}
		ok := rt.notify(uid, req.Message, req.Type)
		writeJSON(w, http.StatusOK, map[string]any{"success": ok})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) notify(uid, message, typ string) bool {
	if uid == "" {
		return false
	}
	err := rt.store.AddNotification(&services.Notification{
		ID:        newID(),
		UserID:    uid,
		Message:   message,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	})
	return err == nil
}
