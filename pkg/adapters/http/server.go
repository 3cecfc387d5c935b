package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const refreshReadTimeout = 5 * time.Second

// SSE event names.
const (
	EventMoved   = "moved"
	EventRefresh = "refresh"
)

// Engine is the part of marktree.Engine the HTTP API exposes.
type Engine interface {
	Tree(ctx context.Context) (*domain.Snapshot, error)
	Children(ctx context.Context, parentID string) ([]*domain.Node, error)
	Move(ctx context.Context, itemID string, dest domain.Destination) (*domain.Node, error)
	Drop(ctx context.Context, candidate domain.DragCandidate, target domain.InsertionTarget) (*domain.Node, error)
	OnMoved(fn func(domain.MovedNotification)) (cancel func())
	OnRefresh(fn func()) (cancel func())
}

// Server serves the tree API.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	metrics http.Handler
	version string
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion reports v on GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a server and subscribes its event streams to engine.
// The returned cancel func detaches those subscriptions.
func NewServer(engine Engine, opts ...Option) (*Server, func()) {
	s := &Server{
		Engine:  engine,
		version: "dev",
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)

	cancelMoved := engine.OnMoved(s.broadcastMoved)
	cancelRefresh := engine.OnRefresh(s.broadcastRefresh)
	return s, func() {
		cancelMoved()
		cancelRefresh()
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s, _ := NewServer(engine, opts...)
	return s.Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/tree", s.GetTree)
	r.Get("/nodes/{id}/children", s.GetChildren)
	r.Post("/moves", s.PostMove)
	r.Post("/drops", s.PostDrop)
	r.Get("/events", s.SubscribeEvents)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return enableCORS(r)
}

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

// MoveRequest is the body of POST /moves. A missing index appends.
type MoveRequest struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
	Index    *int   `json:"index,omitempty"`
}

// DropRequest is the body of POST /drops.
type DropRequest struct {
	Candidate domain.DragCandidate   `json:"candidate"`
	Target    domain.InsertionTarget `json:"target"`
}

// DropResponse reports how a drop ended. Node is set when the item moved.
type DropResponse struct {
	Outcome string       `json:"outcome"`
	Node    *domain.Node `json:"node,omitempty"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "marktree-http",
		"version": strings.TrimSpace(s.version),
	}, s.logger)
}

// GetTree handles the GET /tree request.
func (s *Server) GetTree(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Engine.Tree(r.Context())
	if err != nil {
		s.fail(w, "GetTree", err)
		return
	}
	writeJSON(w, http.StatusOK, snap, s.logger)
}

// GetChildren handles the GET /nodes/{id}/children request.
func (s *Server) GetChildren(w http.ResponseWriter, r *http.Request) {
	children, err := s.Engine.Children(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "GetChildren", err)
		return
	}
	if children == nil {
		children = []*domain.Node{}
	}
	writeJSON(w, http.StatusOK, children, s.logger)
}

// PostMove handles the POST /moves request.
func (s *Server) PostMove(w http.ResponseWriter, r *http.Request) {
	var body MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostMove: Invalid request body", "err", err)
		return
	}

	node, err := s.Engine.Move(r.Context(), body.ID, domain.Destination{ParentID: body.ParentID, Index: body.Index})
	if err != nil {
		s.fail(w, "PostMove", err)
		return
	}
	writeJSON(w, http.StatusOK, node, s.logger)
}

// PostDrop handles the POST /drops request. Local no-ops answer 200 with their outcome.
func (s *Server) PostDrop(w http.ResponseWriter, r *http.Request) {
	var body DropRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostDrop: Invalid request body", "err", err)
		return
	}

	node, err := s.Engine.Drop(r.Context(), body.Candidate, body.Target)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, DropResponse{Outcome: "moved", Node: node}, s.logger)
	case errors.Is(err, domain.ErrDegenerateMove):
		writeJSON(w, http.StatusOK, DropResponse{Outcome: "no_op"}, s.logger)
	case errors.Is(err, domain.ErrNoResolvableTarget):
		writeJSON(w, http.StatusOK, DropResponse{Outcome: "no_target"}, s.logger)
	default:
		s.fail(w, "PostDrop", err)
	}
}

// SubscribeEvents handles the GET /events request (SSE).
// The optional watch parameter filters event names, e.g. ?watch=moved.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	watch := []string{EventMoved, EventRefresh}
	if raw := r.URL.Query().Get("watch"); raw != "" {
		watch = watch[:0]
		for _, name := range strings.Split(raw, ",") {
			switch name = strings.TrimSpace(name); name {
			case EventMoved, EventRefresh:
				watch = append(watch, name)
			}
		}
		if len(watch) == 0 {
			http.Error(w, fmt.Sprintf("Unknown watch filter %q", raw), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(watch...)
	defer cancel()
	s.logger.Info("SSE: Client subscribed", "watch", strings.Join(watch, ","))

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}

func (s *Server) broadcastMoved(n domain.MovedNotification) {
	data, err := json.Marshal(n)
	if err != nil {
		s.logger.Error("Moved notification encode failed", "err", err)
		return
	}
	s.Streams.Broadcast(Message{Event: EventMoved, Data: string(data)})
}

func (s *Server) broadcastRefresh() {
	payload := map[string]uint64{}
	// Usually served from the snapshot the refresh just stored. A newer event or a
	// refresh that straddled an invalidation leaves the cache empty and this fetches.
	ctx, cancel := context.WithTimeout(context.Background(), refreshReadTimeout)
	defer cancel()
	if snap, err := s.Engine.Tree(ctx); err == nil {
		payload["version"] = snap.Version
	} else {
		s.logger.Warn("Refresh sent without version", "err", err)
	}
	data, _ := json.Marshal(payload)
	s.Streams.Broadcast(Message{Event: EventRefresh, Data: string(data)})
}

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTarget), errors.Is(err, domain.ErrNoResolvableTarget):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyInFlight):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrMoveRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrFetchFailed):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Warn(op+" rejected", "err", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Response encode failed", "err", err)
	}
}
