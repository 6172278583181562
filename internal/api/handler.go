// Package api exposes the coach over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nroy/coachd/internal/auth"
	"github.com/nroy/coachd/internal/coach"
	"github.com/nroy/coachd/internal/cv"
	"github.com/nroy/coachd/internal/profile"
	"github.com/nroy/coachd/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxCVSize          = 10 << 20 // 10MB
)

// Server holds the wired dependencies behind the HTTP surface.
type Server struct {
	verifier  *auth.Verifier
	profiles  *profile.Manager
	coach     *coach.Coach
	llm       cv.ChatClient
	store     *storage.Store
	sessions  *Sessions
	exportDir string
}

// NewServer wires the HTTP surface. store may be nil when the interaction
// log is disabled.
func NewServer(verifier *auth.Verifier, profiles *profile.Manager, c *coach.Coach, llmClient cv.ChatClient, store *storage.Store, exportDir string) *Server {
	return &Server{
		verifier:  verifier,
		profiles:  profiles,
		coach:     c,
		llm:       llmClient,
		store:     store,
		sessions:  NewSessions(),
		exportDir: exportDir,
	}
}

// Handler returns the chi router for the full API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/login", s.handleLogin)
	r.Post("/signup", s.handleSignup)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Post("/logout", s.handleLogout)

		r.Get("/profiles", s.handleListProfiles)
		r.Post("/profiles", s.handleCreateProfile)
		r.Get("/profiles/{name}", s.handleGetProfile)
		r.Patch("/profiles/{name}", s.handlePatchProfile)
		r.Post("/profiles/{name}/cv", s.handleUploadCV)

		r.Get("/profiles/{name}/history", s.handleListHistory)
		r.Put("/profiles/{name}/history/{index}", s.handleEditHistory)
		r.Delete("/profiles/{name}/history/{index}", s.handleDeleteHistory)

		r.Post("/session/start", s.handleSessionStart)
		r.Post("/session/answer", s.handleSessionAnswer)
		r.Post("/session/exit", s.handleSessionExit)
		r.Get("/session", s.handleSessionState)

		r.Post("/ask", s.handleAsk)

		r.Get("/interactions", s.handleListInteractions)
		r.Get("/interactions/{id}", s.handleGetInteraction)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/admin/signups", s.handleListSignups)
			r.Post("/admin/signups/{username}/approve", s.handleReviewSignup(storage.SignupApproved))
			r.Post("/admin/signups/{username}/reject", s.handleReviewSignup(storage.SignupRejected))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// --- Auth ---

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}

	id, err := s.verifier.Verify(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		httpError(w, http.StatusUnauthorized, "authentication_error", "invalid username or password")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "verifying credentials: %v", err)
		return
	}

	sess := s.sessions.Create(id)
	slog.Info("login", "username", id.Username, "admin", id.Admin)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    sess.Token,
		"username": sess.Username,
		"admin":    sess.Admin,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.sessions.Delete(sess.Token)
	slog.Info("logout", "username", sess.Username)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged out"})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httpError(w, http.StatusNotImplemented, "invalid_request_error", "signups are not enabled")
		return
	}

	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	username := profile.Normalize(req.Username)
	if username == "" || req.Password == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "username and password are required")
		return
	}

	if err := s.store.CreateSignup(username, req.Password); err != nil {
		httpError(w, http.StatusConflict, "invalid_request_error", "signup already exists for %q", username)
		return
	}
	slog.Info("signup requested", "username", username)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": storage.SignupPending, "username": username})
}

func (s *Server) handleListSignups(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = storage.SignupPending
	}
	signups, err := s.store.ListSignups(status)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "listing signups: %v", err)
		return
	}

	type signupView struct {
		Username    string `json:"username"`
		Status      string `json:"status"`
		RequestedAt string `json:"requestedAt"`
	}
	views := make([]signupView, len(signups))
	for i, sg := range signups {
		views[i] = signupView{
			Username:    sg.Username,
			Status:      sg.Status,
			RequestedAt: sg.RequestedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"signups": views})
}

func (s *Server) handleReviewSignup(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := profile.Normalize(chi.URLParam(r, "username"))
		if err := s.store.UpdateSignupStatus(username, status); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "no signup for %q", username)
				return
			}
			httpError(w, http.StatusInternalServerError, "server_error", "reviewing signup: %v", err)
			return
		}
		slog.Info("signup reviewed", "username", username, "status", status)
		writeJSON(w, http.StatusOK, map[string]any{"username": username, "status": status})
	}
}

// --- Profiles ---

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	names, err := s.profiles.ListProfiles(r.Context(), sess.Username)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "listing profiles: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": names})
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.Name == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "profile name is required")
		return
	}

	bundle, warning, err := s.profiles.CreateProfile(r.Context(), sess.Username, req.Name)
	if errors.Is(err, profile.ErrExists) {
		httpError(w, http.StatusConflict, "invalid_request_error", "profile %q already exists", req.Name)
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "creating profile: %v", err)
		return
	}
	writeBundle(w, http.StatusCreated, bundle, warning)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	bundle, err := s.profiles.GetBundle(r.Context(), sess.Username, chi.URLParam(r, "name"))
	if err != nil {
		profileError(w, err)
		return
	}
	writeBundle(w, http.StatusOK, bundle, "")
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var patch profile.FieldPatch
	if err := decodeBody(w, r, &patch); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}

	bundle, warning, err := s.profiles.UpdateFields(r.Context(), sess.Username, chi.URLParam(r, "name"), patch)
	if err != nil {
		profileError(w, err)
		return
	}
	writeBundle(w, http.StatusOK, bundle, warning)
}

func (s *Server) handleUploadCV(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	name := chi.URLParam(r, "name")

	r.Body = http.MaxBytesReader(w, r.Body, maxCVSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "multipart field \"file\" is required: %v", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
		return
	}

	text, err := cv.ExtractText(header.Filename, data)
	if err != nil {
		httpError(w, http.StatusBadRequest, "extraction_error", "%v", err)
		return
	}
	if len(text) == 0 {
		httpError(w, http.StatusBadRequest, "extraction_error", "no text could be extracted from %q", header.Filename)
		return
	}

	extracted, err := cv.Autofill(r.Context(), s.llm, text)
	if err != nil {
		httpError(w, http.StatusBadGateway, "api_error", "autofill failed: %v", err)
		return
	}

	bundle, warning, err := s.profiles.ApplyCV(r.Context(), sess.Username, name, text, extracted)
	if err != nil {
		profileError(w, err)
		return
	}
	slog.Info("cv applied", "username", sess.Username, "profile", name, "file", header.Filename)
	writeBundle(w, http.StatusOK, bundle, warning)
}

// --- History ---

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	history, err := s.profiles.History(r.Context(), sess.Username, chi.URLParam(r, "name"))
	if err != nil {
		profileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleEditHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "index must be an integer")
		return
	}

	var req struct {
		Answer string `json:"answer"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.Answer == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "answer is required")
		return
	}

	warning, err := s.profiles.EditHistory(r.Context(), sess.Username, chi.URLParam(r, "name"), index, req.Answer)
	if err != nil {
		profileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "warning": warning})
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "index must be an integer")
		return
	}

	warning, err := s.profiles.DeleteHistory(r.Context(), sess.Username, chi.URLParam(r, "name"), index)
	if err != nil {
		profileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "warning": warning})
}

// --- Guided session ---

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req struct {
		Profile   string `json:"profile"`
		Questions int    `json:"questions"`
		Single    bool   `json:"single"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.Profile == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "profile is required")
		return
	}
	if wizard := sess.Wizard(); wizard != nil && wizard.State() == coach.StateAwaiting {
		httpError(w, http.StatusConflict, "invalid_request_error", "a guided session is already in progress; answer or exit it first")
		return
	}

	wizard, err := s.coach.StartSession(r.Context(), sess.Username, req.Profile, coach.SessionOptions{
		Questions: req.Questions,
		Single:    req.Single,
	})
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			profileError(w, err)
			return
		}
		httpError(w, http.StatusBadGateway, "api_error", "starting session: %v", err)
		return
	}

	sess.SetWizard(wizard)
	slog.Info("guided session started", "username", sess.Username, "profile", req.Profile)
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    wizard.State(),
		"question": wizard.Question(),
	})
}

func (s *Server) handleSessionAnswer(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	wizard := sess.Wizard()
	if wizard == nil {
		httpError(w, http.StatusConflict, "invalid_request_error", "no guided session in progress")
		return
	}

	var req struct {
		Answer string `json:"answer"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}

	res, err := wizard.Submit(r.Context(), req.Answer)
	if err != nil {
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    wizard.State(),
		"question": res.Next,
		"done":     res.Done,
		"added":    res.Added,
		"warning":  res.Warning,
	})
}

func (s *Server) handleSessionExit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	wizard := sess.Wizard()
	if wizard == nil {
		httpError(w, http.StatusConflict, "invalid_request_error", "no guided session in progress")
		return
	}

	res, err := wizard.Exit(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
		return
	}
	sess.SetWizard(nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   coach.StateComplete,
		"added":   res.Added,
		"warning": res.Warning,
	})
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	wizard := sess.Wizard()
	if wizard == nil {
		writeJSON(w, http.StatusOK, map[string]any{"state": coach.StateIdle})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    wizard.State(),
		"question": wizard.Question(),
		"answered": wizard.Answered(),
	})
}

// --- Simulator ---

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req struct {
		Profile  string `json:"profile"`
		Question string `json:"question"`
		Export   bool   `json:"export"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.Profile == "" || req.Question == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "profile and question are required")
		return
	}

	answer, err := s.coach.Answer(r.Context(), sess.Username, req.Profile, req.Question)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			profileError(w, err)
			return
		}
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
		return
	}

	var exportFile, warning string
	if req.Export {
		exportFile, err = coach.Export(s.exportDir, sess.Username, req.Profile, req.Question, answer, time.Now())
		if err != nil {
			warning = fmt.Sprintf("answer generated but export failed: %v", err)
		}
	}

	resp := map[string]any{
		"answer":     answer,
		"exportFile": exportFile,
		"warning":    warning,
	}

	if s.store != nil {
		rec := storage.Interaction{
			ID:         uuid.New().String(),
			CreatedAt:  time.Now().UTC(),
			Username:   sess.Username,
			Profile:    req.Profile,
			Question:   req.Question,
			Answer:     answer,
			Model:      s.coach.ModelName(),
			ExportFile: exportFile,
		}
		if err := s.store.SaveInteraction(rec); err != nil {
			slog.Warn("recording interaction failed", "error", err)
		} else {
			resp["interactionId"] = rec.ID
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Interaction log ---

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httpError(w, http.StatusNotImplemented, "invalid_request_error", "interaction log is not enabled")
		return
	}
	sess := sessionFrom(r.Context())

	limit := queryInt(r, "limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	// Admins see everything; everyone else sees their own.
	username := sess.Username
	if sess.Admin {
		username = r.URL.Query().Get("username")
	}

	interactions, err := s.store.ListInteractions(username, limit, offset)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "listing interactions: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": interactionViews(interactions)})
}

func (s *Server) handleGetInteraction(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httpError(w, http.StatusNotImplemented, "invalid_request_error", "interaction log is not enabled")
		return
	}
	sess := sessionFrom(r.Context())

	rec, err := s.store.GetInteraction(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !sess.Admin && rec.Username != sess.Username) {
		httpError(w, http.StatusNotFound, "not_found", "no such interaction")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "loading interaction: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, interactionViews([]storage.Interaction{rec})[0])
}

type interactionView struct {
	ID         string `json:"id"`
	CreatedAt  string `json:"createdAt"`
	Username   string `json:"username"`
	Profile    string `json:"profile"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Model      string `json:"model,omitempty"`
	ExportFile string `json:"exportFile,omitempty"`
}

func interactionViews(recs []storage.Interaction) []interactionView {
	views := make([]interactionView, len(recs))
	for i, rec := range recs {
		views[i] = interactionView{
			ID:         rec.ID,
			CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
			Username:   rec.Username,
			Profile:    rec.Profile,
			Question:   rec.Question,
			Answer:     rec.Answer,
			Model:      rec.Model,
			ExportFile: rec.ExportFile,
		}
	}
	return views
}

// --- Helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeBundle(w http.ResponseWriter, code int, b profile.Bundle, warning string) {
	writeJSON(w, code, map[string]any{
		"profile":  b.Profile,
		"advanced": b.Advanced,
		"warning":  warning,
	})
}

// profileError maps profile manager failures onto the error envelope.
func profileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profile.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, profile.ErrBadIndex):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
