package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackOptions configures the Slack notifier.
type SlackOptions struct {
	BotToken  string
	ChannelID string
	Username  string
	IconEmoji string
	// APIURL overrides the Slack endpoint.
	APIURL string
}

// SlackAdapter posts chat-worthy events to one Slack channel.
type SlackAdapter struct {
	opts   SlackOptions
	client *slack.Client

	mu          sync.RWMutex
	connected   bool
	connectedAt time.Time
	botUser     string
	lastError   string
	logger      *zap.Logger
}

// NewSlackAdapter creates a Slack adapter. BotToken is the Bot User OAuth
// Token (xoxb-...).
func NewSlackAdapter(opts SlackOptions, logger *zap.Logger) *SlackAdapter {
	var clientOpts []slack.Option
	if opts.APIURL != "" {
		clientOpts = append(clientOpts, slack.OptionAPIURL(opts.APIURL))
	}
	return &SlackAdapter{
		opts:   opts,
		client: slack.New(opts.BotToken, clientOpts...),
		logger: logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

// Connect verifies the token.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	if a.opts.ChannelID == "" {
		return fmt.Errorf("slack channel is required")
	}
	resp, err := a.client.AuthTestContext(ctx)
	if err != nil {
		a.setError(err)
		return fmt.Errorf("slack auth: %w", err)
	}
	a.mu.Lock()
	a.connected = true
	a.connectedAt = time.Now()
	a.botUser = resp.User
	a.lastError = ""
	a.mu.Unlock()
	a.logger.Info("slack adapter connected",
		zap.String("user", resp.User), zap.String("team", resp.Team))
	return nil
}

func (a *SlackAdapter) setError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = err.Error()
}

// Accepts reports whether evt is worth a chat message.
func (a *SlackAdapter) Accepts(evt *Event) bool { return evt.Chatty() }

// Broadcast posts evt to the configured channel. Breath marks are ignored.
func (a *SlackAdapter) Broadcast(ctx context.Context, evt *Event) error {
	if !a.Accepts(evt) {
		return nil
	}
	opts := []slack.MsgOption{
		slack.MsgOptionText(chatText(evt, "*"), false),
	}
	if a.opts.Username != "" {
		opts = append(opts, slack.MsgOptionUsername(a.opts.Username))
	}
	if a.opts.IconEmoji != "" {
		opts = append(opts, slack.MsgOptionIconEmoji(a.opts.IconEmoji))
	}

	if _, _, err := a.client.PostMessageContext(ctx, a.opts.ChannelID, opts...); err != nil {
		a.setError(err)
		a.logger.Error("slack send failed",
			zap.String("channel", a.opts.ChannelID), zap.Error(err))
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// Close is a no-op; the web API client holds no connection.
func (a *SlackAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *SlackAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  "slack",
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = fmt.Sprintf("bot=%s, channel=%s", a.botUser, a.opts.ChannelID)
	}
	return s
}
