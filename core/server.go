package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jdelaire/dirtylaunderer/core/identity"
	"github.com/jdelaire/dirtylaunderer/internal/proxies"
	"github.com/jdelaire/dirtylaunderer/internal/store"
	"github.com/jdelaire/dirtylaunderer/internal/webhookcheck"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

const (
	healthTimeout = 3 * time.Second
	maxRequestID  = 64
)

type requestIDKey struct{}

// RequestID returns the correlation ID attached by the server, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// WebhookChecker reconciles the registered bot webhook.
type WebhookChecker interface {
	Run(ctx context.Context) (webhookcheck.Result, error)
}

// ProxySyncer refreshes the validated proxy catalog.
type ProxySyncer interface {
	Run(ctx context.Context) (proxies.SyncResult, error)
}

// Server exposes the bot webhook and the function endpoints over HTTP.
type Server struct {
	addr    string
	repo    store.Repository
	hasher  *identity.Hasher
	webhook http.Handler
	checker WebhookChecker
	syncer  ProxySyncer
	checks  map[string]HealthCheck
	logger  *slog.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewServer creates a server that will listen on addr.
func NewServer(addr string, repo store.Repository, hasher *identity.Hasher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hasher == nil {
		hasher = identity.NewHasher("")
	}
	return &Server{
		addr:   addr,
		repo:   repo,
		hasher: hasher,
		checks: make(map[string]HealthCheck),
		logger: logger,
	}
}

// WithWebhook mounts the Telegram update handler on POST /.
func (s *Server) WithWebhook(h http.Handler) *Server {
	s.webhook = h
	return s
}

// WithWebhookChecker enables POST /webhook-check.
func (s *Server) WithWebhookChecker(c WebhookChecker) *Server {
	s.checker = c
	return s
}

// WithProxySyncer enables POST /proxy-sync.
func (s *Server) WithProxySyncer(p ProxySyncer) *Server {
	s.syncer = p
	return s
}

// WithHealthCheck adds a named dependency check to GET /healthz.
func (s *Server) WithHealthCheck(name string, check HealthCheck) *Server {
	if check != nil {
		s.checks[name] = check
	}
	return s
}

// Handler builds the router. Endpoints whose dependency is not configured
// are not mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)

	if s.webhook != nil {
		r.Handle("/", s.webhook)
	}
	if s.checker != nil {
		r.Post("/webhook-check", s.handleWebhookCheck)
	}
	if s.syncer != nil {
		r.Post("/proxy-sync", s.handleProxySync)
	}
	if s.repo != nil {
		r.Post("/config", s.handleConfig)
	}
	r.Get("/healthz", s.handleHealth)

	return r
}

// Start begins listening. The server runs until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.srv = srv
	s.listener = ln
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("listening", "addr", ln.Addr().String())

	go func() {
		defer close(s.done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	<-done
	return err
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestID {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))

		s.logger.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleWebhookCheck(w http.ResponseWriter, r *http.Request) {
	res, err := s.checker.Run(r.Context())
	if err != nil {
		s.logger.Error("webhook check failed", "request_id", RequestID(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProxySync(w http.ResponseWriter, r *http.Request) {
	res, err := s.syncer.Run(r.Context())
	if err != nil {
		s.logger.Error("proxy sync failed", "request_id", RequestID(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "proxy sync failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": res.Message(),
		"result":  res,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read error"})
		return
	}

	req, err := ValidateConfigRequest(data)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": reqErr.Msg})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	status, body := s.dispatchConfig(r.Context(), req)
	writeJSON(w, status, body)
}

// dispatchConfig runs a validated config action. Repository failures are
// logged and answered with the same fallbacks a missing document gets, so
// callers always receive a well-formed body.
func (s *Server) dispatchConfig(ctx context.Context, req *ConfigRequest) (int, any) {
	logger := s.logger.With("request_id", RequestID(ctx), "action", req.Action)

	switch req.Action {
	case ActionGetGroupConfig:
		cfg, err := s.repo.GroupConfig(ctx, string(req.ChatID))
		if err != nil {
			logger.Error("get group config", "error", err)
			cfg = store.DefaultGroupConfig()
		}
		return http.StatusOK, map[string]any{"config": cfg}

	case ActionUpdateGroupConfig:
		cfg, err := req.GroupConfig()
		if err != nil {
			return http.StatusBadRequest, map[string]string{"error": err.Error()}
		}
		err = s.repo.UpdateGroupConfig(ctx, string(req.ChatID), cfg)
		if err != nil {
			logger.Error("update group config", "error", err)
		}
		return http.StatusOK, map[string]bool{"success": err == nil}

	case ActionGetProxyConfig:
		cfg, err := s.repo.ProxyConfig(ctx)
		if err != nil {
			logger.Error("get proxy config", "error", err)
			cfg = map[string][]string{}
		}
		return http.StatusOK, map[string]any{"config": cfg}

	case ActionUpdateProxyConfig:
		cfg, err := req.ProxyConfig()
		if err != nil {
			return http.StatusBadRequest, map[string]string{"error": err.Error()}
		}
		err = s.repo.UpdateProxyConfig(ctx, cfg)
		if err != nil {
			logger.Error("update proxy config", "error", err)
		}
		return http.StatusOK, map[string]bool{"success": err == nil}

	case ActionGetUserConsent:
		ok, err := s.repo.UserConsent(ctx, s.consentKey(req.UserID))
		if err != nil {
			logger.Error("get user consent", "error", err)
			ok = false
		}
		return http.StatusOK, map[string]bool{"has_consent": ok}

	case ActionSetUserConsent:
		err := s.repo.SetUserConsent(ctx, s.consentKey(req.UserID), req.Consent())
		if err != nil {
			logger.Error("set user consent", "error", err)
		}
		return http.StatusOK, map[string]bool{"success": err == nil}
	}

	return http.StatusBadRequest, map[string]string{"error": "Unknown action: " + req.Action}
}

// consentKey turns a numeric Telegram user ID into its salted key. Anything
// else is taken to be a key already.
func (s *Server) consentKey(id FlexID) string {
	if n, ok := id.Int64(); ok {
		return s.hasher.UserKey(n)
	}
	return string(id)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := make(map[string]string)
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.Warn("health check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
