package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"gamevault/internal/api"
	"gamevault/internal/config"
	"gamevault/internal/documents"
	"gamevault/internal/logging"
	"gamevault/internal/services"
	"gamevault/internal/webhooks"
)

const (
	maxRequestBytes  = 64 << 10
	defaultEventPage = 200
	eventFollowWait  = 30 * time.Second
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(strings.TrimSpace(cfg.Paths.APIToken)))
		r.Get("/status", srv.handleStatus)
		r.Get("/events", srv.handleEvents)
		r.Post("/webhooks/retry", srv.handleRetryFailures)
		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/library", srv.handleLibrary)
			r.Get("/unresolved", srv.handleUnresolved)
			r.Post("/entries", srv.handleIngest)
			r.Post("/entries/{key}/approve", srv.handleApprove)
			r.Post("/entries/{key}/unmatch", srv.handleUnmatch)
			r.Delete("/entries/{key}", srv.handleRemove)
			r.Delete("/storefronts/{storefront}", srv.handleRemoveStorefront)
			r.Post("/reconcile", srv.handleReconcile)
		})
	})
	r.Method(http.MethodGet, "/metrics", d.engine.Metrics.Handler())
	if cfg.Webhooks.Enabled {
		intake := webhooks.NewHTTPHandler(cfg.Webhooks.Secret, d.engine.Dispatcher, logger)
		r.Mount("/webhooks", intake.Routes())
	}
	srv.handler = r
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled, no bind address configured")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Reconcile passes and event follows hold the response open.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	repo := s.daemon.engine.Repository
	users, err := repo.Users(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	failures, err := repo.Failures(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	cfg := s.daemon.cfg
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		StartedAt:    api.FormatTime(status.StartedAt),
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Catalog: api.CatalogStatus{
			BaseURL: cfg.Catalog.BaseURL,
			QPS:     cfg.Catalog.QPS,
		},
		Webhooks: api.WebhookStatus{
			Enabled:  status.WebhooksEnabled,
			Pending:  status.WebhooksPending,
			Failures: len(failures),
			Stats:    status.Webhooks,
		},
		Reconcile: api.ReconcileStatus{
			Enabled:         status.ReconcileEnabled,
			IntervalMinutes: cfg.Reconcile.IntervalMinutes,
			Users:           len(users),
		},
	})
}

func (s *apiServer) handleLibrary(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathParam(w, r, "user")
	if !ok {
		return
	}
	lib, err := s.daemon.engine.Repository.Library(r.Context(), user)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, lib)
}

func (s *apiServer) handleUnresolved(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathParam(w, r, "user")
	if !ok {
		return
	}
	lib, err := s.daemon.engine.Repository.Library(r.Context(), user)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromUnresolved(user, lib.Unresolved))
}

func (s *apiServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathParam(w, r, "user")
	if !ok {
		return
	}
	var entry documents.StoreEntry
	if !s.decode(w, r, &entry) {
		return
	}
	outcome, err := s.daemon.engine.Resolver.Resolve(r.Context(), user, entry)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ResolveResponse{Key: entry.Key(), Outcome: outcome})
}

func (s *apiServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathParam(w, r, "user")
	if !ok {
		return
	}
	key, ok := s.pathParam(w, r, "key")
	if !ok {
		return
	}
	var req api.ApproveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.GameID <= 0 {
		s.writeError(w, http.StatusBadRequest, "gameId must be positive", "validation")
		return
	}
	entry, err := s.daemon.engine.Resolver.Approve(r.Context(), user, key, req.GameID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *apiServer) handleUnmatch(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathParam(w, r, "user")
	if !ok {
		return
	}
	key, ok := s.pathParam(w, r, "key")
	if !ok {
		return
	}
	if err := s.daemon.engine.Resolver.Unmatch(r.Context(), user, key); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathParam(w, r, "user")
	if !ok {
		return
	}
	key, ok := s.pathParam(w, r, "key")
	if !ok {
		return
	}
	if err := s.daemon.engine.Resolver.Remove(r.Context(), user, key); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRemoveStorefront(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathParam(w, r, "user")
	if !ok {
		return
	}
	raw, ok := s.pathParam(w, r, "storefront")
	if !ok {
		return
	}
	sf, err := documents.ParseStorefront(raw)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	removed, err := s.daemon.engine.Resolver.RemoveStorefront(r.Context(), user, sf)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RemoveStorefrontResponse{Storefront: sf, Removed: removed})
}

func (s *apiServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathParam(w, r, "user")
	if !ok {
		return
	}
	report, err := s.daemon.engine.Reconciler.Run(r.Context(), user)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromReport(report))
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultEventPage
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")

	ctx := r.Context()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eventFollowWait)
		defer cancel()
	}
	records, next, err := s.daemon.engine.Events.Fetch(ctx, since, limit, follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error(), services.Kind(err))
		return
	}
	converted, err := api.FromRecords(records)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "encode")
		return
	}
	s.writeJSON(w, http.StatusOK, api.EventsResponse{Events: converted, Next: next})
}

func (s *apiServer) handleRetryFailures(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.engine.Pipeline.RetryFailures(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || strings.TrimSpace(value) == "" {
		s.writeError(w, http.StatusBadRequest, "invalid "+name, "validation")
		return "", false
	}
	return value, true
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request too large", "validation")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid request body", "validation")
		return false
	}
	return true
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error(), services.Kind(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAuth):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}
