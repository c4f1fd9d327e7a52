// Package ingress defines the contract between the relay and a chat
// platform connector: Ingress delivers inbound MessageEvents to a
// handler, ChatSender carries outbound replies back out. The contract
// itself is intentionally thin — platform specifics live in
// implementing packages such as internal/ingress/discord.
package ingress

import (
	"context"
	"time"
)

// MessageEvent is a chat platform message normalized to the shape the
// routing resolver and queue engine need.
type MessageEvent struct {
	ChatBotID     string
	ChatMessageID string
	AuthorID      string
	AuthorName    string
	ChannelID     string // for a DM, the DM channel's ID
	GuildID       string // empty for a DM
	IsDM          bool
	Content       string
	Timestamp     time.Time
}

// Handler receives every inbound MessageEvent an Ingress produces.
type Handler func(ctx context.Context, evt MessageEvent)

// Ingress is a chat platform connector: it owns its own connection
// lifecycle and invokes a Handler for every inbound message for as
// long as it's running.
type Ingress interface {
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}

// DestinationType distinguishes a direct-message reply target from a
// channel reply target.
type DestinationType string

const (
	DestinationDM      DestinationType = "dm"
	DestinationChannel DestinationType = "channel"
)

// Destination names where an outbound reply should land.
type Destination struct {
	Type      DestinationType
	UserID    string
	ChannelID string
}

// ChatSender delivers an outbound reply on behalf of a chat bot and
// reports the platform-assigned message ID and the channel it landed
// in (resolved even for a DM destination, where the channel is
// created on first send).
type ChatSender interface {
	Send(ctx context.Context, chatBotID string, dest Destination, content string, replyToChatMessageID string) (chatMessageID string, channelID string, err error)
}
