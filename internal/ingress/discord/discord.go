// Package discord adapts bwmarrin/discordgo into the relay's Ingress
// and ChatSender contracts. Session lifecycle, intents, message
// chunking, and the attachment/placeholder handling idiom are
// grounded on the teacher project's internal/channels/discord/discord.go,
// generalized from a single hard-wired bot to the configured
// discord_bots[] set and re-pointed at the relay's routing/enqueue
// path instead of an in-process message bus.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/ingress"
	"github.com/nextlevelbuilder/chatrelay/pkg/retry"
)

// sendRetryConfig backs off outbound Discord sends that hit a rate
// limit or a transient 5xx, the same classifier the webhook
// dispatcher uses, adapted to discordgo's error shape.
var sendRetryConfig = retry.Config{
	Attempts: 4,
	MinDelay: 250 * time.Millisecond,
	MaxDelay: 5 * time.Second,
	Jitter:   0.2,
}

const maxMessageLen = 2000

type bot struct {
	id        string
	session   *discordgo.Session
	cfg       config.DiscordBotConfig
	botUserID string
}

// Adapter runs one discordgo session per enabled discord_bots[] entry
// and satisfies both ingress.Ingress and ingress.ChatSender across the
// whole set, keyed by chat_bot_id.
type Adapter struct {
	bots    map[string]*bot
	logger  *slog.Logger
	handler ingress.Handler
}

var _ ingress.Ingress = (*Adapter)(nil)
var _ ingress.ChatSender = (*Adapter)(nil)

// New builds sessions for every enabled bot in cfgs. Disabled bots are
// skipped entirely — never connected, never sendable to.
func New(cfgs []config.DiscordBotConfig, logger *slog.Logger) (*Adapter, error) {
	bots := make(map[string]*bot)
	for _, c := range cfgs {
		if !c.Enabled {
			continue
		}
		token, err := c.ResolvedToken()
		if err != nil {
			return nil, err
		}
		session, err := discordgo.New("Bot " + token)
		if err != nil {
			return nil, fmt.Errorf("discord: create session for %q: %w", c.ID, err)
		}
		session.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent

		bots[c.ID] = &bot{id: c.ID, session: session, cfg: c}
	}
	return &Adapter{bots: bots, logger: logger}, nil
}

// Start opens every bot's gateway connection and registers the
// message handler that feeds evt into handler.
func (a *Adapter) Start(ctx context.Context, handler ingress.Handler) error {
	a.handler = handler

	for id, b := range a.bots {
		b := b
		b.session.AddHandler(a.onMessageCreate(b))

		if err := b.session.Open(); err != nil {
			return fmt.Errorf("discord: open session for %q: %w", id, err)
		}

		user, err := b.session.User("@me")
		if err != nil {
			b.session.Close()
			return fmt.Errorf("discord: fetch identity for %q: %w", id, err)
		}
		b.botUserID = user.ID
		a.logger.Info("discord bot connected", "chat_bot_id", id, "username", user.Username)
	}
	return nil
}

// Stop closes every open gateway connection. The first error
// encountered is returned; every session is still given a chance to
// close.
func (a *Adapter) Stop(ctx context.Context) error {
	var firstErr error
	for id, b := range a.bots {
		if err := b.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("discord: close session for %q: %w", id, err)
		}
	}
	return firstErr
}

func (a *Adapter) onMessageCreate(b *bot) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.ID == b.botUserID || m.Author.Bot {
			return
		}

		isDM := m.GuildID == ""
		channelID := m.ChannelID

		if !isDM && !channelAllowed(b.cfg, channelID) {
			a.logger.Debug("discord message rejected by channel allowlist",
				"chat_bot_id", b.id, "channel_id", channelID)
			return
		}

		content := m.Content
		for _, att := range m.Attachments {
			if content != "" {
				content += "\n"
			}
			content += fmt.Sprintf("[attachment: %s]", att.URL)
		}

		a.handler(context.Background(), ingress.MessageEvent{
			ChatBotID:     b.id,
			ChatMessageID: m.ID,
			AuthorID:      m.Author.ID,
			AuthorName:    m.Author.Username,
			ChannelID:     channelID,
			GuildID:       m.GuildID,
			IsDM:          isDM,
			Content:       content,
			Timestamp:     m.Timestamp,
		})
	}
}

// channelAllowed enforces channel_allowlist for non-DM messages only;
// an empty allowlist means no restriction. allow_all_channels is
// parsed into config but never consulted here — see SPEC_FULL.md's
// Open Question decision on that field.
func channelAllowed(cfg config.DiscordBotConfig, channelID string) bool {
	if len(cfg.ChannelAllowlist) == 0 {
		return true
	}
	for _, id := range cfg.ChannelAllowlist {
		if id == channelID {
			return true
		}
	}
	return false
}

// Send delivers content to dest on behalf of chatBotID, chunking at
// Discord's 2000-character message limit, and returns the last sent
// message's platform ID.
func (a *Adapter) Send(ctx context.Context, chatBotID string, dest ingress.Destination, content string, replyToChatMessageID string) (string, string, error) {
	b, ok := a.bots[chatBotID]
	if !ok {
		return "", "", fmt.Errorf("discord: unknown or disabled chat bot %q", chatBotID)
	}

	var channelID string
	switch dest.Type {
	case ingress.DestinationDM:
		ch, err := b.session.UserChannelCreate(dest.UserID)
		if err != nil {
			return "", "", fmt.Errorf("discord: open DM channel with %q: %w", dest.UserID, err)
		}
		channelID = ch.ID
	case ingress.DestinationChannel:
		if dest.ChannelID == "" {
			return "", "", fmt.Errorf("discord: channel destination missing channel_id")
		}
		channelID = dest.ChannelID
	default:
		return "", "", fmt.Errorf("discord: unsupported destination type %q", dest.Type)
	}

	chatMessageID, err := a.sendChunked(ctx, b.session, channelID, content)
	if err != nil {
		return "", "", err
	}
	return chatMessageID, channelID, nil
}

func (a *Adapter) sendChunked(ctx context.Context, session *discordgo.Session, channelID, content string) (string, error) {
	ctx = retry.WithHook(ctx, func(attempt, maxAttempts int, err error) {
		a.logger.Warn("discord send retrying", "channel_id", channelID, "attempt", attempt, "max_attempts", maxAttempts, "error", err)
	})

	var lastID string
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxMessageLen {
			cutAt := maxMessageLen
			if idx := strings.LastIndexByte(content[:maxMessageLen], '\n'); idx > maxMessageLen/2 {
				cutAt = idx + 1
			}
			chunk = content[:cutAt]
			content = content[cutAt:]
		} else {
			content = ""
		}

		sent, err := retry.Do(ctx, sendRetryConfig, func() (*discordgo.Message, error) {
			m, sendErr := session.ChannelMessageSend(channelID, chunk)
			if sendErr != nil {
				return nil, classifyDiscordErr(sendErr)
			}
			return m, nil
		})
		if err != nil {
			return "", fmt.Errorf("discord: send message: %w", err)
		}
		lastID = sent.ID
	}
	return lastID, nil
}

// classifyDiscordErr turns a discordgo REST error into a
// retry.HTTPError so retry.IsRetryable and its Retry-After handling
// apply to Discord sends the same way they apply to webhook POSTs.
func classifyDiscordErr(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		retryAfter := retry.ParseRetryAfter(restErr.Response.Header.Get("Retry-After"))
		return &retry.HTTPError{
			Status:     restErr.Response.StatusCode,
			Body:       err.Error(),
			RetryAfter: retryAfter,
		}
	}
	return err
}
