// Package watch keeps a live subscription to a hub and feeds every frame
// into a projector. A dropped connection clears local state and is retried
// at a fixed interval until the context ends.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/h1v3-io/pulse/internal/projector"
	"github.com/h1v3-io/pulse/pkg/protocol"
)

// DefaultRetryInterval is the fixed delay between reconnect attempts.
const DefaultRetryInterval = 3 * time.Second

// State is the connection state reported to observers.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Config configures a Client.
type Config struct {
	// URL is the hub base URL (http, https, ws or wss). The /ws path is
	// appended when missing.
	URL           string
	RetryInterval time.Duration
	LogCapacity   int
	Dialer        *websocket.Dialer
	Header        http.Header
}

// Client owns a projector and the socket that feeds it.
type Client struct {
	url    string
	retry  time.Duration
	dialer *websocket.Dialer
	header http.Header
	proj   *projector.Projector
	logger *slog.Logger

	onUpdate func(projector.Views)
	onState  func(State, error)
}

// New validates the URL and builds a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	u, err := SocketURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		url:    u,
		retry:  cfg.RetryInterval,
		dialer: cfg.Dialer,
		header: cfg.Header,
		proj:   projector.New(cfg.LogCapacity),
		logger: logger.With("component", "watch"),
	}, nil
}

// OnUpdate registers a callback invoked with fresh views after every
// applied frame. It runs on the session goroutine.
func (c *Client) OnUpdate(fn func(projector.Views)) { c.onUpdate = fn }

// OnState registers a callback for connection state transitions.
func (c *Client) OnState(fn func(State, error)) { c.onState = fn }

// SocketURL converts a hub base URL to its websocket endpoint.
func SocketURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("watch: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("watch: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("watch: url %q has no host", raw)
	}
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	}
	return u.String(), nil
}

// Run connects and re-connects until ctx is cancelled. It always returns
// ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	for {
		c.setState(StateConnecting, nil)
		err := c.session(ctx)
		if c.proj.Synced() {
			c.proj.Clear()
			if c.onUpdate != nil {
				c.onUpdate(c.proj.Views())
			}
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected, nil)
			return ctx.Err()
		}
		c.logger.Warn("hub connection lost", "url", c.url, "error", err, "retry_in", c.retry)
		c.setState(StateDisconnected, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retry):
		}
	}
}

// session runs one connection until it fails or ctx ends.
func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("watch: dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.logger.Info("hub connected", "url", c.url)
	c.setState(StateConnected, nil)

	for {
		var msg protocol.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("watch: read: %w", err)
		}
		if !c.proj.Apply(msg) {
			c.logger.Debug("frame ignored", "type", msg.Type)
			continue
		}
		if c.onUpdate != nil {
			c.onUpdate(c.proj.Views())
		}
	}
}

func (c *Client) setState(s State, err error) {
	if c.onState != nil {
		c.onState(s, err)
	}
}
