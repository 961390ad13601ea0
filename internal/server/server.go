// Package server exposes the HTTP API: auth, topics, preferences,
// conversation history, and the streaming advisor endpoint.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"advisorai/internal/app"
	"advisorai/internal/ratelimit"
	"advisorai/internal/util"
	"advisorai/pkg/auth"
	"advisorai/pkg/domain"
	"advisorai/pkg/prefs"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// RedisAddr enables distributed rate limiting on the auth and message
	// endpoints. Empty disables limiting.
	RedisAddr          string
	RedisPassword      string
	AuthRateLimit      int
	MessageRateLimit   int
	RateLimitKeyPrefix string
}

// Server exposes HTTP endpoints for the advisor service.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	authLimiter    *ratelimit.FixedWindowLimiter
	messageLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	s := &Server{
		app: cfg.App,
		mux: http.NewServeMux(),
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		prefix := strings.TrimSpace(cfg.RateLimitKeyPrefix)
		if prefix == "" {
			prefix = "advisor:ratelimit"
		}
		authLimit := cfg.AuthRateLimit
		if authLimit <= 0 {
			authLimit = 10
		}
		messageLimit := cfg.MessageRateLimit
		if messageLimit <= 0 {
			messageLimit = 30
		}
		var err error
		s.authLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix+":auth", authLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init auth limiter: %w", err)
		}
		s.messageLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix+":message", messageLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init message limiter: %w", err)
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("advisor", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/users/me", s.withUser(s.handleMe))

	s.mux.HandleFunc("/api/topics", s.handleTopics)
	s.mux.Handle("/api/prefs", s.withUser(s.handlePrefs))

	s.mux.Handle("/api/conversations", s.withUser(s.handleConversations))
	s.mux.Handle("/api/conversations/", s.withUser(s.handleConversationByID))
	s.mux.Handle("/api/messages", s.withUser(s.handleMessages))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.authLimiter, "too many signup attempts") {
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.SignUp(req.Email, req.Username, req.Password)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, app.ErrEmailAlreadyExists) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{User: user, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.authLimiter, "too many login attempts") {
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Token: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	lang := domain.NormalizeLanguage(r.URL.Query().Get("lang"))
	writeJSON(w, http.StatusOK, map[string]any{"topics": s.app.Topics(lang)})
}

func (s *Server) handlePrefs(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		p, err := s.app.Preferences(r.Context(), user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load preferences failed")
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPut:
		var p prefs.Preferences
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.SavePreferences(r.Context(), user.ID, p); err != nil {
			writeError(w, http.StatusInternalServerError, "save preferences failed")
			return
		}
		writeJSON(w, http.StatusOK, p)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	buckets, err := s.app.ConversationBuckets(user.ID, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list conversations failed")
		return
	}
	writeJSON(w, http.StatusOK, toBucketsView(buckets))
}

func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		conv, err := s.app.GetConversation(user.ID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConversationView(conv))
	case http.MethodDelete:
		if err := s.app.DeleteConversation(user.ID, id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

type messageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	TopicID        string `json:"topicId"`
	Language       string `json:"language"`
}

// handleMessages streams the advisor reply as server-sent events: one
// snapshot per delta, then a final conversation event.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.messageLimiter, "too many messages") {
		return
	}
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	lang := domain.NormalizeLanguage(req.Language)

	sse := newSSEWriter(w)
	observer := func(snap domain.Snapshot) {
		sse.sendEvent("snapshot", snap)
	}

	var conv domain.Conversation
	var err error
	if strings.TrimSpace(req.TopicID) != "" {
		conv, err = s.app.SelectTopic(r.Context(), user, req.TopicID, lang, observer)
	} else {
		conv, err = s.app.SendMessage(r.Context(), user, req.ConversationID, req.Content, lang, observer)
	}
	if err != nil {
		if sse.started {
			util.LoggerFromContext(r.Context()).Error("advisor turn", "error", err)
			return
		}
		writeAppError(w, err)
		return
	}
	sse.sendEvent("conversation", toConversationView(conv))
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrConversationNotFound), errors.Is(err, app.ErrTopicNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrConversationForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrQuotaExhausted):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrTurnInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrMessageRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, nil)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
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
