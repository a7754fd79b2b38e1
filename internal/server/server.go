// Package server exposes the HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pathwise/internal/app"
	"pathwise/internal/ratelimit"
	"pathwise/internal/usertoken"
	"pathwise/internal/util"
	"pathwise/pkg/billing"
	"pathwise/pkg/domain"
	"pathwise/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	Store         store.Store
	TokenVerifier *usertoken.Verifier
	Limiter       *ratelimit.FixedWindowLimiter
	Billing       *billing.Client
}

// Server routes API requests into the application.
type Server struct {
	app      *app.App
	store    store.Store
	verifier *usertoken.Verifier
	limiter  *ratelimit.FixedWindowLimiter
	billing  *billing.Client
	mux      *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required")
	}
	s := &Server{
		app:      cfg.App,
		store:    cfg.Store,
		verifier: cfg.TokenVerifier,
		limiter:  cfg.Limiter,
		billing:  cfg.Billing,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the standard middleware.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/billing/price", s.handlePrice)

	s.mux.Handle("/api/profile", s.withUser(s.handleProfile))
	s.mux.Handle("/api/payment/confirm", s.withUser(s.handlePaymentConfirm))

	s.mux.Handle("/api/transcript", s.withUser(s.handleTranscript))
	s.mux.Handle("/api/transcript/", s.withUser(s.handleTranscriptSub))

	s.mux.Handle("/api/serious-plan", s.withUser(s.handlePlan))
	s.mux.Handle("/api/serious-plan/", s.withUser(s.handlePlanByID))

	s.mux.Handle("/api/coach-chat/", s.withUser(s.handleCoachChat))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// withUser verifies the bearer session token and resolves the user row,
// creating a minimal one on first sight. Account identity lives in the
// external auth system; this service only needs the subject ID.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		subject, err := s.verifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok, err := s.store.GetUserByID(subject)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !ok {
			user = domain.User{ID: subject, CreatedAt: time.Now().UTC()}
			if err := s.store.SaveUser(user); err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
		}
		next(w, r, user)
	})
}

func (s *Server) allow(key string) bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow(key)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, user)
	case http.MethodPost:
		var req struct {
			Email       string `json:"email"`
			DisplayName string `json:"displayName"`
			PromoCode   string `json:"promoCode"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Email != "" {
			user.Email = strings.TrimSpace(req.Email)
		}
		if req.DisplayName != "" {
			user.DisplayName = strings.TrimSpace(req.DisplayName)
		}
		if req.PromoCode != "" {
			user.PromoCode = strings.TrimSpace(req.PromoCode)
		}
		user.UpdatedAt = time.Now().UTC()
		if err := s.store.SaveUser(user); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, user)
	default:
		methodNotAllowed(w)
	}
}

// handlePrice exposes the checkout price, with an optional promo code lookup.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.billing == nil {
		writeError(w, http.StatusServiceUnavailable, "billing not configured")
		return
	}
	price, err := s.billing.PlanPrice(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "billing lookup failed")
		return
	}
	resp := map[string]any{"price": price}
	if code := r.URL.Query().Get("code"); code != "" {
		promo, ok, err := s.billing.LookupPromo(r.Context(), code)
		if err != nil {
			writeError(w, http.StatusBadGateway, "billing lookup failed")
			return
		}
		if ok {
			resp["promo"] = promo
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePaymentConfirm flips the payment flag after checkout. The payment
// provider's webhook is the authoritative confirmation path; this endpoint
// covers the post-redirect flow.
func (s *Server) handlePaymentConfirm(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.store.SetPaymentVerified(user.ID, true); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	t, err := s.app.Transcript(r.Context(), user.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// /api/transcript/message, /api/transcript/interview/complete,
// /api/transcript/module/{n}/complete
func (s *Server) handleTranscriptSub(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/transcript/")
	switch {
	case path == "message":
		s.handleTranscriptMessage(w, r, user)
	case path == "interview/complete":
		s.handleInterviewComplete(w, r, user)
	case strings.HasPrefix(path, "module/"):
		s.handleModuleComplete(w, r, user, strings.TrimPrefix(path, "module/"))
	default:
		notFound(w)
	}
}

func (s *Server) handleTranscriptMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow("transcript:" + user.ID) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req struct {
		Target  string `json:"target"`
		Content string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.app.AppendMessage(r.Context(), user.ID, req.Target, req.Content)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

// The dossier produced here is internal-only; the response deliberately
// carries just the plan card and a status.
func (s *Server) handleInterviewComplete(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if _, err := s.app.ConcludeInterview(r.Context(), user.ID); err != nil {
		writeAppError(w, err)
		return
	}
	t, err := s.app.Transcript(r.Context(), user.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "analyzed",
		"planCard": t.PlanCard,
	})
}

// module/{n}/complete
func (s *Server) handleModuleComplete(w http.ResponseWriter, r *http.Request, user domain.User, rest string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[1] != "complete" {
		notFound(w)
		return
	}
	module, err := strconv.Atoi(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid module number")
		return
	}
	t, _, err := s.app.CompleteModule(r.Context(), user.ID, module)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		res, err := s.app.InitPlan(r.Context(), user.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{
			"plan":      res.Plan,
			"artifacts": res.Artifacts,
			"created":   res.Created,
		})
	case http.MethodGet:
		plan, artifacts, err := s.app.PlanForUser(r.Context(), user.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"plan":      plan,
			"artifacts": artifacts,
		})
	default:
		methodNotAllowed(w)
	}
}

// /api/serious-plan/{id}, /{id}/regenerate, /{id}/pdf,
// /{id}/artifacts/{key}/pdf
func (s *Server) handlePlanByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/serious-plan/")
	parts := strings.Split(path, "/")
	planID := parts[0]
	if planID == "" {
		notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		plan, artifacts, err := s.app.PlanByID(r.Context(), user.ID, planID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"plan": plan, "artifacts": artifacts})
	case len(parts) == 2 && parts[1] == "regenerate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allow("regenerate:" + user.ID) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		res, err := s.app.Regenerate(r.Context(), user.ID, planID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"plan":      res.Plan,
			"artifacts": res.Artifacts,
		})
	case len(parts) == 2 && parts[1] == "pdf":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if _, err := s.app.RenderBundlePDF(r.Context(), user.ID, planID); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "rendering"})
	case len(parts) == 4 && parts[1] == "artifacts" && parts[3] == "pdf":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if _, err := s.app.RenderArtifactPDF(r.Context(), user.ID, planID, parts[2]); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "rendering"})
	default:
		notFound(w)
	}
}

// /api/coach-chat/{planId}/message
func (s *Server) handleCoachChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/coach-chat/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "message" || parts[0] == "" {
		notFound(w)
		return
	}
	planID := parts[0]
	switch r.Method {
	case http.MethodGet:
		msgs, err := s.app.CoachMessages(r.Context(), user.ID, planID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": msgs, "count": len(msgs)})
	case http.MethodPost:
		if !s.allow("chat:" + user.ID) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		var req struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		reply, err := s.app.CoachChat(r.Context(), user.ID, planID, req.Content)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	default:
		methodNotAllowed(w)
	}
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

// writeAppError maps application sentinels to HTTP statuses. Not-ready
// conditions clear on their own, so those responses carry retryable:true.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNotReady), errors.Is(err, app.ErrGenerationInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Retryable: true})
	case errors.Is(err, app.ErrPaymentRequired):
		writeError(w, http.StatusPaymentRequired, "payment not verified")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrInvalidModule), errors.Is(err, app.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
