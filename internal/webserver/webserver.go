// Package webserver exposes the rehab dashboard API: account handling,
// session saving through the progress engine, history aggregation, the
// telemetry websocket and an SSE stream for progress toasts.
package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nattapongd/rehab-hub/internal/config"
	"github.com/nattapongd/rehab-hub/internal/db"
	"github.com/nattapongd/rehab-hub/internal/events"
	"github.com/nattapongd/rehab-hub/internal/hub"
	"github.com/nattapongd/rehab-hub/internal/progress"
)

type Server struct {
	store  *db.DB
	cfg    config.Config
	hub    *hub.Hub
	engine *progress.Engine
	logger *slog.Logger

	mu      sync.Mutex
	clients map[chan events.Event]struct{}
}

func New(store *db.DB, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:   store,
		cfg:     cfg,
		hub:     hub.New(logger),
		logger:  logger,
		clients: make(map[chan events.Event]struct{}),
	}
	s.engine = progress.NewEngine(store, s, logger)
	return s
}

// Hub exposes the relay hub, mainly for tests.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Broadcast implements events.Broadcaster for SSE clients.
func (s *Server) Broadcast(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

func (s *Server) addClient(ch chan events.Event) {
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(ch chan events.Event) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /forgot-password", s.handleForgotPassword)

	mux.HandleFunc("GET /api/user", s.withAuth(s.handleUser))
	mux.HandleFunc("POST /api/user/avatar", s.withAuth(s.handleAvatarURL))
	mux.HandleFunc("POST /api/user/avatar-upload", s.withAuth(s.handleAvatarUpload))
	mux.HandleFunc("POST /api/save", s.withAuth(s.handleSave))
	mux.HandleFunc("GET /api/results", s.withAuth(s.handleResults))
	mux.HandleFunc("GET /api/history", s.withAuth(s.handleHistory))
	mux.HandleFunc("GET /events", s.withAuth(s.handleSSE))

	// The device has no login session, so the relay endpoint is public.
	mux.HandleFunc("GET /ws", s.handleWS)

	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(s.cfg.UploadsDir))))
	mux.Handle("GET /", http.FileServer(staticFiles()))
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Webserver.Host, s.cfg.Webserver.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	switch s.cfg.Webserver.TLS.Mode {
	case "self-signed":
		cacheDir := s.cfg.Webserver.TLS.CacheDir
		if cacheDir == "" {
			cacheDir = config.CertsDir()
		}
		tlsCfg, err := selfSignedTLS(cacheDir)
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		srv.TLSConfig = tlsCfg
	case "manual":
		// Cert paths are handed to ListenAndServeTLS below.
	case "":
	default:
		return fmt.Errorf("unknown tls mode %q", s.cfg.Webserver.TLS.Mode)
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		switch s.cfg.Webserver.TLS.Mode {
		case "self-signed":
			err = srv.ListenAndServeTLS("", "")
		case "manual":
			err = srv.ListenAndServeTLS(s.cfg.Webserver.TLS.CertFile, s.cfg.Webserver.TLS.KeyFile)
		default:
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	s.logger.Info("webserver listening", "addr", addr, "tls", s.cfg.Webserver.TLS.Mode)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ---- response helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorBody(message string) map[string]any {
	return map[string]any{"success": false, "message": message}
}

// storeError maps a persistence failure to a retryable 500.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("store error", "op", op, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false, "message": "storage failure, please retry", "retryable": true,
	})
}

// ---- auth endpoints ----

const avatarURLFormat = "https://ui-avatars.com/api/?name=%s&background=random"

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request"))
		return
	}
	if body.Username == "" || body.Email == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("username, email and password are required"))
		return
	}

	// Username and email conflicts get distinct messages, matching the
	// dashboard's signup form.
	if _, err := s.store.GetAccountByUsername(body.Username); err == nil {
		writeJSON(w, http.StatusConflict, errorBody("Username already taken"))
		return
	}
	if _, err := s.store.GetAccountByEmail(body.Email); err == nil {
		writeJSON(w, http.StatusConflict, errorBody("Email already in use"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		s.storeError(w, "hash password", err)
		return
	}

	avatar := fmt.Sprintf(avatarURLFormat, body.Username)
	if _, err := s.store.CreateAccount(body.Username, body.Email, string(hash), avatar); err != nil {
		if errors.Is(err, db.ErrConflict) {
			writeJSON(w, http.StatusConflict, errorBody("Username or email already in use"))
			return
		}
		s.storeError(w, "create account", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Account created"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request"))
		return
	}

	acc, err := s.store.GetAccountByLogin(body.Login)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusUnauthorized, errorBody("Invalid credentials"))
		return
	}
	if err != nil {
		s.storeError(w, "load account", err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(body.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody("Invalid credentials"))
		return
	}

	access, err := IssueAccessToken(s.cfg.Auth.JWTSecret, acc.Username, s.accessTTL())
	if err != nil {
		s.storeError(w, "issue token", err)
		return
	}
	refresh, err := GenerateRefreshToken()
	if err != nil {
		s.storeError(w, "refresh token", err)
		return
	}
	if err := s.store.InsertRefreshToken(refresh, acc.ID, time.Now().Add(s.refreshTTL())); err != nil {
		s.storeError(w, "store refresh token", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"token":        access,
		"refreshToken": refresh,
		"username":     acc.Username,
	})
}

func (s *Server) accessTTL() time.Duration {
	return time.Duration(s.cfg.Auth.AccessTokenTTL) * time.Minute
}

func (s *Server) refreshTTL() time.Duration {
	return time.Duration(s.cfg.Auth.RefreshTTLDays) * 24 * time.Hour
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request"))
		return
	}

	rt, err := s.store.GetRefreshToken(body.RefreshToken)
	if errors.Is(err, db.ErrNotFound) || (err == nil && time.Now().After(rt.ExpiresAt)) {
		writeJSON(w, http.StatusUnauthorized, errorBody("Not logged in"))
		return
	}
	if err != nil {
		s.storeError(w, "load refresh token", err)
		return
	}

	// Refresh tokens rotate on use.
	acc, err := s.store.GetAccountByID(rt.AccountID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody("Not logged in"))
		return
	}

	next, err := GenerateRefreshToken()
	if err != nil {
		s.storeError(w, "refresh token", err)
		return
	}
	if err := s.store.DeleteRefreshToken(rt.Token); err != nil {
		s.storeError(w, "rotate refresh token", err)
		return
	}
	if err := s.store.InsertRefreshToken(next, acc.ID, time.Now().Add(s.refreshTTL())); err != nil {
		s.storeError(w, "store refresh token", err)
		return
	}
	access, err := IssueAccessToken(s.cfg.Auth.JWTSecret, acc.Username, s.accessTTL())
	if err != nil {
		s.storeError(w, "issue token", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"token":        access,
		"refreshToken": next,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request"))
		return
	}
	if body.RefreshToken != "" {
		if err := s.store.DeleteRefreshToken(body.RefreshToken); err != nil {
			s.storeError(w, "delete refresh token", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request"))
		return
	}
	if _, err := s.store.GetAccountByEmail(body.Email); errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("No account with that email"))
		return
	} else if err != nil {
		s.storeError(w, "load account", err)
		return
	}
	// Delivery is handled outside this service; here we only confirm the
	// address is known.
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password reset initiated, check your email",
	})
}
