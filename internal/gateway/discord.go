package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordAdapter posts chat-worthy events through a Discord bot.
type DiscordAdapter struct {
	token     string
	channelID string
	session   *discordgo.Session

	mu          sync.RWMutex
	connected   bool
	connectedAt time.Time
	lastError   string
	logger      *zap.Logger
}

// NewDiscordAdapter creates a Discord adapter. With no channelID events go
// to the first text channel of every guild the bot is in.
func NewDiscordAdapter(token, channelID string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		token:     token,
		channelID: channelID,
		logger:    logger,
	}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

// Connect opens the Discord gateway websocket and verifies guild membership.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.setError(fmt.Sprintf("session create: %v", err))
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		a.setError(fmt.Sprintf("open failed: %v", err))
		return fmt.Errorf("discord open: %w", err)
	}

	a.mu.Lock()
	a.session = session
	a.connected = true
	a.connectedAt = time.Now()
	a.lastError = ""
	a.mu.Unlock()

	guildCount := len(session.State.Guilds)
	if guildCount == 0 && a.channelID == "" {
		a.logger.Warn("discord bot is not in any server and no channel is configured")
	}
	a.logger.Info("discord adapter connected",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", guildCount))
	return nil
}

func (a *DiscordAdapter) setError(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = msg
	a.connected = false
}

// Accepts reports whether evt is worth a chat message.
func (a *DiscordAdapter) Accepts(evt *Event) bool { return evt.Chatty() }

// Broadcast posts evt. Breath marks are ignored.
func (a *DiscordAdapter) Broadcast(ctx context.Context, evt *Event) error {
	if !a.Accepts(evt) {
		return nil
	}
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session == nil {
		return fmt.Errorf("discord not connected")
	}
	content := chatText(evt, "**")

	if a.channelID != "" {
		if _, err := session.ChannelMessageSend(a.channelID, content, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
		return nil
	}

	for _, guild := range session.State.Guilds {
		channels, err := session.GuildChannels(guild.ID, discordgo.WithContext(ctx))
		if err != nil {
			a.logger.Warn("discord list channels failed",
				zap.String("guild", guild.ID), zap.Error(err))
			continue
		}
		for _, ch := range channels {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			if _, err := session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err == nil {
				break
			}
		}
	}
	return nil
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	a.mu.Lock()
	session := a.session
	a.session = nil
	a.connected = false
	a.mu.Unlock()
	if session != nil {
		return session.Close()
	}
	return nil
}

func (a *DiscordAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  "discord",
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected && a.session != nil && a.session.State != nil {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = fmt.Sprintf("bot=%s, guilds=%d",
			a.session.State.User.Username, len(a.session.State.Guilds))
	}
	return s
}
