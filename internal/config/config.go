package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

// Config is the top-level pulse hub configuration.
type Config struct {
	Hub     HubConfig     `json:"hub"`
	API     APIConfig     `json:"api"`
	Archive ArchiveConfig `json:"archive"`
	Notify  NotifyConfig  `json:"notify"`
}

// HubConfig holds liveness and buffering settings.
type HubConfig struct {
	HistoryCapacity int `json:"history_capacity"`
	// HeartbeatInterval is how often producers are expected to report.
	// StaleThreshold must be at least three times this.
	HeartbeatInterval Duration `json:"heartbeat_interval"`
	StaleThreshold    Duration `json:"stale_threshold"`
	SweepInterval     Duration `json:"sweep_interval"`
	OutboxSize        int      `json:"outbox_size"`
	SinkQueue         int      `json:"sink_queue"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ArchiveConfig enables the SQLite event archive when Path is set.
type ArchiveConfig struct {
	Path string `json:"path,omitempty"`
}

// NotifyConfig holds settings for liveness alert destinations.
type NotifyConfig struct {
	Slack    *SlackConfig    `json:"slack,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Webhooks []WebhookConfig `json:"webhooks,omitempty"`
}

// SlackConfig holds Slack bot settings.
type SlackConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
	APIURL  string `json:"api_url,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// WebhookConfig holds an outbound alert webhook.
type WebhookConfig struct {
	URL         string `json:"url"`
	Secret      string `json:"secret,omitempty"`
	BearerToken string `json:"bearer_token,omitempty"`
}

// Duration is a time.Duration that reads "90s"-style strings or a number of
// seconds from JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(time.Duration(x * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q", x)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// Default returns a config with every field at its default.
func Default() *Config {
	return &Config{
		Hub: HubConfig{
			HistoryCapacity:   500,
			HeartbeatInterval: Duration(30 * time.Second),
			StaleThreshold:    Duration(90 * time.Second),
			SweepInterval:     Duration(10 * time.Second),
			OutboxSize:        64,
			SinkQueue:         256,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
	}
}

// Load reads configuration from a JSON file. Comments and trailing commas
// are allowed. Fields missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds a config from environment variables with PULSE_ prefix.
func LoadFromEnv() (*Config, error) {
	d := Default()
	cfg := &Config{
		Hub: HubConfig{
			HistoryCapacity:   getenvInt("PULSE_HISTORY_CAPACITY", d.Hub.HistoryCapacity),
			HeartbeatInterval: getenvDuration("PULSE_HEARTBEAT_INTERVAL", d.Hub.HeartbeatInterval),
			StaleThreshold:    getenvDuration("PULSE_STALE_THRESHOLD", d.Hub.StaleThreshold),
			SweepInterval:     getenvDuration("PULSE_SWEEP_INTERVAL", d.Hub.SweepInterval),
			OutboxSize:        getenvInt("PULSE_OUTBOX_SIZE", d.Hub.OutboxSize),
			SinkQueue:         getenvInt("PULSE_SINK_QUEUE", d.Hub.SinkQueue),
		},
		API: APIConfig{
			Host: getenv("PULSE_API_HOST", d.API.Host),
			Port: getenvInt("PULSE_API_PORT", d.API.Port),
		},
		Archive: ArchiveConfig{
			Path: os.Getenv("PULSE_ARCHIVE_PATH"),
		},
	}

	if token := os.Getenv("PULSE_SLACK_TOKEN"); token != "" {
		cfg.Notify.Slack = &SlackConfig{
			Token:   token,
			Channel: os.Getenv("PULSE_SLACK_CHANNEL"),
		}
	}

	if token := os.Getenv("PULSE_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.Telegram = &TelegramConfig{Token: token}
		if id := os.Getenv("PULSE_TELEGRAM_CHAT_ID"); id != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("config: PULSE_TELEGRAM_CHAT_ID: invalid integer %q", id)
			}
			cfg.Notify.Telegram.ChatID = n
		}
	}

	if url := os.Getenv("PULSE_WEBHOOK_URL"); url != "" {
		cfg.Notify.Webhooks = append(cfg.Notify.Webhooks, WebhookConfig{
			URL:    url,
			Secret: os.Getenv("PULSE_WEBHOOK_SECRET"),
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and required fields, reporting every problem.
func (c *Config) Validate() error {
	var errs []string

	h := c.Hub
	if h.HistoryCapacity <= 0 {
		errs = append(errs, "hub.history_capacity must be positive")
	}
	if h.HeartbeatInterval <= 0 {
		errs = append(errs, "hub.heartbeat_interval must be positive")
	}
	if h.SweepInterval <= 0 {
		errs = append(errs, "hub.sweep_interval must be positive")
	}
	if h.StaleThreshold < 3*h.HeartbeatInterval {
		errs = append(errs, fmt.Sprintf("hub.stale_threshold (%s) must be at least 3x hub.heartbeat_interval (%s)",
			h.StaleThreshold, h.HeartbeatInterval))
	}
	if h.OutboxSize < 0 {
		errs = append(errs, "hub.outbox_size must not be negative")
	}
	if h.SinkQueue < 0 {
		errs = append(errs, "hub.sink_queue must not be negative")
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d out of range", c.API.Port))
	}

	if s := c.Notify.Slack; s != nil {
		if s.Token == "" {
			errs = append(errs, "notify.slack.token is required")
		}
		if s.Channel == "" {
			errs = append(errs, "notify.slack.channel is required")
		}
	}
	if tg := c.Notify.Telegram; tg != nil {
		if tg.Token == "" {
			errs = append(errs, "notify.telegram.token is required")
		}
		if tg.ChatID == 0 {
			errs = append(errs, "notify.telegram.chat_id is required")
		}
	}
	for i, w := range c.Notify.Webhooks {
		if w.URL == "" {
			errs = append(errs, fmt.Sprintf("notify.webhooks[%d].url is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return fallback
}
