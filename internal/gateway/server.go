// Package gateway exposes the agent over HTTP: a streaming chat endpoint,
// read-only views of todos and memory, and a WebSocket event bridge.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dohr-michael/paula/internal/agent"
	"github.com/dohr-michael/paula/internal/events"
	"github.com/dohr-michael/paula/internal/gateway/ws"
	"github.com/dohr-michael/paula/internal/memory"
	"github.com/dohr-michael/paula/internal/todo"
)

// Options wires the server's collaborators.
type Options struct {
	Bus       *events.Bus
	Runner    ws.ChatRunner
	Todos     todo.Store
	Memory    memory.Store
	Retriever *memory.Retriever
	Host      string
	Port      int
	Logger    *slog.Logger
}

// Server is the gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	runner     ws.ChatRunner
	todos      todo.Store
	memory     memory.Store
	retriever  *memory.Retriever
	logger     *slog.Logger
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		hub:       ws.NewHub(opts.Bus, opts.Runner),
		bus:       opts.Bus,
		runner:    opts.Runner,
		todos:     opts.Todos,
		memory:    opts.Memory,
		retriever: opts.Retriever,
		logger:    logger.With("component", "gateway"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", s.hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Post("/api/chat", s.handleChat)
	r.Get("/api/threads", s.handleThreads)
	r.Get("/api/todos/{thread}", s.handleTodos)
	r.Get("/api/memory/{scope}", s.handleMemory)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler: r,
	}

	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type chatRequest struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
}

// handleChat runs one turn and streams the thread's events as NDJSON.
// The stream ends after the terminal turn.completed event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the turn starts so no event is missed.
	ch, unsub := s.bus.SubscribeThread(req.ThreadID, 256)
	defer unsub()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Thread-ID", req.ThreadID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.runner.Run(r.Context(), agent.Request{
			ThreadID: req.ThreadID,
			UserID:   req.UserID,
			Message:  req.Message,
		}); err != nil {
			s.logger.Error("turn failed", "thread", req.ThreadID, "error", err)
		}
	}()

	enc := json.NewEncoder(w)
	var finished bool
	for !finished {
		select {
		case e, ok := <-ch:
			if !ok {
				finished = true
				break
			}
			if err := enc.Encode(e); err != nil {
				finished = true
				break
			}
			flusher.Flush()
			if e.Type == events.EventTurnCompleted {
				finished = true
			}
		case <-r.Context().Done():
			finished = true
		}
	}
	<-done
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}

	history := s.bus.History(limit)

	type eventJSON struct {
		ID        string             `json:"id"`
		ThreadID  string             `json:"thread_id,omitempty"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}

	result := make([]eventJSON, len(history))
	for i, e := range history {
		result[i] = eventJSON{
			ID:        e.ID,
			ThreadID:  e.ThreadID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleThreads lists every scope with recorded conversation history.
func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	scopes, err := s.memory.Scopes(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scopes)
}

func (s *Server) handleTodos(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread")

	items, err := s.todos.Get(r.Context(), threadID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// handleMemory returns a scope's recent turns, or a relevance search when
// a query is given.
func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	w.Header().Set("Content-Type", "application/json")

	if q := r.URL.Query().Get("q"); q != "" && s.retriever != nil {
		hits, err := s.retriever.Search(r.Context(), scope, q, 10)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(hits)
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	records, err := s.memory.Recent(r.Context(), scope, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(records)
}
