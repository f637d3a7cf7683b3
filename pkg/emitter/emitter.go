// Package emitter is the producer-side client for a pulse hub. Reporting
// is fire-and-forget: a short timeout, no retries, and failures never reach
// the caller's control flow.
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

// DefaultTimeout bounds every request to the hub.
const DefaultTimeout = time.Second

// Emitter reports one producer's events to a hub.
type Emitter struct {
	client  *http.Client
	baseURL string
	source  protocol.Source
	id      string
	name    string
	icon    string
	logger  *slog.Logger

	wg sync.WaitGroup
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithName sets the display name sent with every event.
func WithName(name string) Option {
	return func(e *Emitter) { e.name = name }
}

// WithIcon sets the display icon sent with every event.
func WithIcon(icon string) Option {
	return func(e *Emitter) { e.icon = icon }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Emitter) { e.client = c }
}

// WithLogger sets the logger failures are reported to at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) { e.logger = l }
}

// New creates an emitter for producer id of the given source.
func New(baseURL string, source protocol.Source, id string, opts ...Option) *Emitter {
	e := &Emitter{
		client:  &http.Client{Timeout: DefaultTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		source:  source,
		id:      id,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Event is what a producer reports. Details may be a string or any value
// that marshals to JSON.
type Event struct {
	Type     string
	Message  string
	Status   protocol.Status
	Activity string
	Details  any
}

type ingestRequest struct {
	ProducerID string          `json:"producerId"`
	Type       string          `json:"type"`
	Name       string          `json:"name,omitempty"`
	Icon       string          `json:"icon,omitempty"`
	Status     protocol.Status `json:"status,omitempty"`
	Activity   string          `json:"activity,omitempty"`
	Message    string          `json:"message,omitempty"`
	Details    any             `json:"details,omitempty"`
}

type shutdownRequest struct {
	ProducerID string `json:"producerId"`
	Name       string `json:"name,omitempty"`
}

// Send posts ev and reports the outcome. Most callers want Emit.
func (e *Emitter) Send(ctx context.Context, ev Event) error {
	path := "/events/agent"
	if e.source == protocol.SourceService {
		path = "/events/service"
	}
	return e.post(ctx, path, ingestRequest{
		ProducerID: e.id,
		Type:       ev.Type,
		Name:       e.name,
		Icon:       e.icon,
		Status:     ev.Status,
		Activity:   ev.Activity,
		Message:    ev.Message,
		Details:    ev.Details,
	})
}

// Emit sends ev in the background. Errors are logged and dropped.
func (e *Emitter) Emit(ev Event) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Send(context.Background(), ev); err != nil {
			e.logger.Debug("emit failed", "producer", e.id, "type", ev.Type, "error", err)
		}
	}()
}

// Heartbeat sends a heartbeat immediately and then every interval until
// ctx is cancelled, at which point it announces shutdown and returns.
func (e *Emitter) Heartbeat(ctx context.Context, interval time.Duration, activity func() string) {
	beat := func() {
		ev := Event{Type: protocol.TypeHeartbeat}
		if activity != nil {
			ev.Activity = activity()
		}
		if err := e.Send(ctx, ev); err != nil {
			e.logger.Debug("heartbeat failed", "producer", e.id, "error", err)
		}
	}

	beat()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := e.Shutdown(context.Background()); err != nil {
				e.logger.Debug("shutdown notice failed", "producer", e.id, "error", err)
			}
			return
		case <-ticker.C:
			beat()
		}
	}
}

// Shutdown tells the hub this producer is going away.
func (e *Emitter) Shutdown(ctx context.Context) error {
	return e.post(ctx, "/shutdown", shutdownRequest{ProducerID: e.id, Name: e.name})
}

// Wait blocks until all background emits have finished.
func (e *Emitter) Wait() { e.wg.Wait() }

func (e *Emitter) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("hub error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
