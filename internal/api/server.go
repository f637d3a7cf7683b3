package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/h1v3-io/pulse/internal/hub"
	"github.com/h1v3-io/pulse/internal/logbuf"
	"github.com/h1v3-io/pulse/pkg/protocol"
)

const (
	maxBodyBytes      = 1 << 20
	defaultEventLimit = 100
)

// LogQuerier abstracts log entry querying to avoid coupling to logbuf directly.
type LogQuerier interface {
	Query(since time.Time, minLevel slog.Level, limit int) []logbuf.Entry
}

// Hub is what the server needs from the event hub.
type Hub interface {
	Ingest(ctx context.Context, ev protocol.Event) error
	Shutdown(ctx context.Context, producerID, name string) error
	Health(ctx context.Context) (hub.Health, error)
	Producers(ctx context.Context) (agents, services []protocol.Producer, err error)
	Events(ctx context.Context, limit int) ([]protocol.Event, error)
	Subscribe(ctx context.Context, conn hub.Conn) (uint64, error)
	Unsubscribe(ctx context.Context, id uint64) error
}

// Config holds API server configuration.
type Config struct {
	Host            string
	Port            int
	HistoryCapacity int // upper bound for GET /events?limit
}

// Server is the pulse HTTP and websocket server.
type Server struct {
	hub    Hub
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	srv    *http.Server
}

// NewServer creates a new API server. logs may be nil.
func NewServer(h Hub, cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hub:    h,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /events/agent", s.handleIngest(protocol.SourceAgent))
	mux.HandleFunc("POST /events/service", s.handleIngest(protocol.SourceService))
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /producers", s.handleProducers)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /logs", s.handleGetLogs)
	mux.HandleFunc("GET /ws", s.handleSubscribe)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

// ingestRequest is the producer-submitted event body. details may be a
// string or any JSON value; non-string values are kept as raw JSON text.
type ingestRequest struct {
	ProducerID string          `json:"producerId"`
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Icon       string          `json:"icon"`
	Status     string          `json:"status"`
	Activity   string          `json:"activity"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details"`
}

func (req ingestRequest) event(src protocol.Source) protocol.Event {
	return protocol.Event{
		Source:       src,
		Type:         req.Type,
		ProducerID:   req.ProducerID,
		ProducerName: req.Name,
		Icon:         req.Icon,
		Status:       protocol.Status(req.Status),
		Activity:     req.Activity,
		Message:      req.Message,
		Details:      detailsText(req.Details),
	}
}

func detailsText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (s *Server) handleIngest(src protocol.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if err := s.hub.Ingest(r.Context(), req.event(src)); err != nil {
			s.writeHubError(w, err, "source", src, "producer", req.ProducerID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

type shutdownRequest struct {
	ProducerID string `json:"producerId"`
	Name       string `json:"name"`
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req shutdownRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.hub.Shutdown(r.Context(), req.ProducerID, req.Name); err != nil {
		s.writeHubError(w, err, "producer", req.ProducerID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) writeHubError(w http.ResponseWriter, err error, attrs ...any) {
	var verr *hub.ValidationError
	if errors.As(err, &verr) {
		s.logger.Warn("event rejected", append(attrs, "error", err)...)
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	s.logger.Error("hub unavailable", append(attrs, "error", err)...)
	writeError(w, http.StatusServiceUnavailable, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.hub.Health(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleProducers(w http.ResponseWriter, r *http.Request) {
	agents, services, err := s.hub.Producers(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]protocol.Producer{
		"agents":   agents,
		"services": services,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if s.cfg.HistoryCapacity > 0 && limit > s.cfg.HistoryCapacity {
		limit = s.cfg.HistoryCapacity
	}

	events, err := s.hub.Events(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if events == nil {
		events = []protocol.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	minLevel := slog.LevelDebug
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		minLevel = logbuf.ParseLevel(strings.ToUpper(lvl))
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Query(since, minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
