package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

// SlackConfig holds Slack notifier configuration.
type SlackConfig struct {
	Token   string // xoxb-... Bot User OAuth Token
	Channel string // Channel ID or name to post alerts to
	APIURL  string // Optional: override the Slack Web API base URL
}

// Slack posts alerts with chat.postMessage.
type Slack struct {
	api     *slack.Client
	channel string
}

// NewSlack creates a Slack notifier. No request is made until the first alert.
func NewSlack(cfg SlackConfig) (*Slack, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("slack: token is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Slack{api: slack.New(cfg.Token, opts...), channel: cfg.Channel}, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Notify(ctx context.Context, _ protocol.Event, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}
