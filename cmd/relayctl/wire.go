package main

import "time"

// The types below mirror the relay's JSON wire format (internal/httpapi/types.go).
// relayctl is a separate binary talking over HTTP, not a package import,
// so it keeps its own copies of the request/response shapes.

type chatMessageSource struct {
	IsDM       bool   `json:"is_dm"`
	GuildID    string `json:"guild_id"`
	ChannelID  string `json:"channel_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
}

type chatMessage struct {
	ChatMessageID string            `json:"chat_message_id"`
	ChatBotID     string            `json:"chat_bot_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Content       string            `json:"content"`
	Source        chatMessageSource `json:"source"`
}

type messageEnvelope struct {
	DeliveryID     string     `json:"delivery_id"`
	LeaseID        string     `json:"lease_id"`
	ChatBotID      string     `json:"chat_bot_id"`
	ChatMessage    chatMessage `json:"chat_message"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

type leaseResponse struct {
	Messages            []messageEnvelope `json:"messages"`
	ConversationHistory []chatMessage     `json:"conversation_history,omitempty"`
}

type ackResponse struct {
	AcknowledgedCount int `json:"acknowledged_count"`
}

type nackResponse struct {
	NackedCount int `json:"nacked_count"`
}

type sendDestination struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

type sendRequest struct {
	ChatBotID            string          `json:"chat_bot_id"`
	Destination          sendDestination `json:"destination"`
	Content              string          `json:"content"`
	ReplyToChatMessageID string          `json:"reply_to_chat_message_id,omitempty"`
}

type sendResponse struct {
	ChatMessageID string `json:"chat_message_id"`
	ChannelID     string `json:"channel_id,omitempty"`
}
