package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/lockstep/internal/config"
	"github.com/aretw0/lockstep/internal/logging"
	"github.com/aretw0/lockstep/pkg/dialog"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/locks"
	"github.com/aretw0/lockstep/pkg/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MaxBodySize bounds request bodies in bytes.
const MaxBodySize = 4096

//go:embed openapi.yaml
var openapiSpec []byte

// Dialogs is the dialog surface the server drives.
type Dialogs interface {
	OpenDialog(ctx context.Context, id string, dismissal *domain.DismissalPolicy) error
	CloseDialog(ctx context.Context, id string) error
	CloseAllDialogs(ctx context.Context) error
	OnReset(ctx context.Context) error
	Policies() map[string]domain.PolicyID
}

// Inspector exposes the scheduler state for read-only endpoints.
type Inspector interface {
	Snapshot() scheduler.Snapshot
	Actions() []domain.Descriptor
	Registry() *locks.Registry
}

// OpenRequest is the optional body of POST /dialogs/{id}/open.
type OpenRequest struct {
	Dismissal map[string]any `json:"dismissal,omitempty"`
}

// Server serves the dialog manager over HTTP.
type Server struct {
	Dialogs   Dialogs
	Scheduler Inspector
	Streams   *StreamManager

	metrics http.Handler
	version string
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams serves lifecycle events from sm on GET /events.
// sm must also be installed as scheduler hooks to receive anything.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = strings.TrimSpace(v)
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler.
func NewHandler(dialogs Dialogs, sched Inspector, opts ...Option) http.Handler {
	s := &Server{
		Dialogs:   dialogs,
		Scheduler: sched,
		version:   "dev",
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})

	r.Post("/dialogs/close-all", s.CloseAll)
	r.Post("/dialogs/{id}/open", s.Open)
	r.Post("/dialogs/{id}/close", s.Close)
	r.Post("/reset", s.Reset)

	r.Get("/policies", s.GetPolicies)
	r.Get("/status", s.GetStatus)
	r.Get("/actions", s.GetActions)
	r.Get("/locks", s.GetLocks)
	r.Get("/events", s.SubscribeEvents)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return enableCORS(r)
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>lockstep API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Open handles POST /dialogs/{id}/open.
func (s *Server) Open(w http.ResponseWriter, r *http.Request) {
	id, err := dialog.SanitizeID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var body OpenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.writeError(w, status, fmt.Errorf("invalid request body: %w", err))
		return
	}
	var raw any
	if body.Dismissal != nil {
		raw = body.Dismissal
	}
	dismissal, err := config.DecodeDismissal(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.Dialogs.OpenDialog(r.Context(), id, dismissal); err != nil {
		s.actionFailed(w, r, "open", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"dialog": id, "state": "open"})
}

// Close handles POST /dialogs/{id}/close.
func (s *Server) Close(w http.ResponseWriter, r *http.Request) {
	id, err := dialog.SanitizeID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Dialogs.CloseDialog(r.Context(), id); err != nil {
		s.actionFailed(w, r, "close", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"dialog": id, "state": "closed"})
}

// CloseAll handles POST /dialogs/close-all.
func (s *Server) CloseAll(w http.ResponseWriter, r *http.Request) {
	if err := s.Dialogs.CloseAllDialogs(r.Context()); err != nil {
		s.actionFailed(w, r, "close-all", "", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"state": "closed"})
}

// Reset handles POST /reset.
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	if err := s.Dialogs.OnReset(r.Context()); err != nil {
		s.actionFailed(w, r, "reset", "", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"state": "reset"})
}

// GetPolicies handles GET /policies.
func (s *Server) GetPolicies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Dialogs.Policies())
}

// GetStatus handles GET /status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Scheduler.Snapshot())
}

// GetActions handles GET /actions.
func (s *Server) GetActions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Scheduler.Actions())
}

// GetLocks handles GET /locks.
func (s *Server) GetLocks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Scheduler.Registry().All())
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "lockstep-http",
		"version": s.version,
	})
}

// SubscribeEvents handles GET /events (SSE). ?action= filters by action name.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	var filter map[string]bool
	if v := r.URL.Query().Get("action"); v != "" {
		filter = make(map[string]bool)
		for _, name := range strings.Split(v, ",") {
			filter[strings.TrimSpace(name)] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE Client Disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if filter != nil && !filter[msg.Action] {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, msg.Data)
			flusher.Flush()
		}
	}
}

// actionFailed maps a failed action to a status. Downstream store and gateway failures surface
// as 502; a timeout of the caller's own wait is 504 even though the action keeps running.
func (s *Server) actionFailed(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrArbitration), errors.Is(err, domain.ErrActionPanicked):
		status = http.StatusInternalServerError
	}
	s.logger.ErrorContext(r.Context(), "Dialog action failed", "op", op, "dialog", id, "err", err)
	s.writeError(w, status, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
