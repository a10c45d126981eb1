package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"flowq/internal/cleanup"
	"flowq/internal/logging"
	"flowq/internal/queue"
	"flowq/internal/scheduler"
	"flowq/internal/telemetry"
)

// Server wires HTTP handlers for agents and operators.
type Server struct {
	scheduler *scheduler.Service
	cleanup   *cleanup.Service
	logger    *slog.Logger
	token     string

	listener net.Listener
	server   *http.Server
}

// New constructs the API server. An empty token disables authentication.
func New(svc *scheduler.Service, maint *cleanup.Service, token string, logger *slog.Logger) (*Server, error) {
	if svc == nil || maint == nil {
		return nil, errors.New("api server requires scheduler and cleanup services")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		scheduler: svc,
		cleanup:   maint,
		logger:    logging.NewComponentLogger(logger, "api-server"),
		token:     strings.TrimSpace(token),
	}, nil
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(s.token))

		r.Get("/projects/{project}/queues", s.handleListQueues)
		r.Post("/projects/{project}/queues", s.handleCreateQueue)

		r.Route("/queues/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetQueue)
			r.Patch("/", s.handleUpdateQueue)
			r.Delete("/", s.handleDeleteQueue)
			r.Post("/pause", s.handleSetActive(false))
			r.Post("/resume", s.handleSetActive(true))
			r.Get("/items", s.handleListItems)
			r.Post("/items", s.handleEnqueue)
			r.Post("/claim", s.handleClaim)
			r.Get("/stats", s.handleStats)
			r.Get("/health", s.handleHealth)
			r.Post("/reset", s.handleReset)
		})

		r.Route("/items/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetItem)
			r.Delete("/", s.handleRemoveItem)
			r.Post("/complete", s.handleComplete)
			r.Post("/cancel", s.handleCancel)
			r.Post("/requeue", s.handleRequeue)
		})

		r.Post("/move", s.handleMove)
		r.Post("/tickets/{id}/enqueue", s.handleEnqueueTicket)
	})
	return r
}

// Start listens on bind and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

// authMiddleware validates bearer tokens. An empty token lets every request through.
func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusForError maps queue error kinds onto HTTP statuses.
func statusForError(err error) int {
	switch queue.ErrorKind(err) {
	case queue.KindNotFound:
		return http.StatusNotFound
	case queue.KindInvalidArgument:
		return http.StatusBadRequest
	case queue.KindInvalidState, queue.KindTimeout:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_error",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: string(queue.ErrorKind(err))})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json: %v", queue.ErrInvalidArgument, err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", queue.ErrInvalidArgument, name, raw)
	}
	return id, nil
}
