package httpapi

import (
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/model"
)

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

func toChatMessage(m model.Message) chatMessage {
	return chatMessage{
		ChatMessageID: m.ChatMessageID,
		ChatBotID:     m.ChatBotID,
		Timestamp:     m.Timestamp,
		Content:       m.Content,
		Source: chatMessageSource{
			IsDM:       m.IsDM,
			GuildID:    m.GuildID,
			ChannelID:  m.ChannelID,
			AuthorID:   m.AuthorID,
			AuthorName: m.AuthorName,
		},
	}
}

func toEnvelope(rec model.LeasedDeliveryRecord) messageEnvelope {
	expiresAt := rec.LeaseExpiresAt
	return messageEnvelope{
		DeliveryID:     rec.DeliveryID,
		LeaseID:        rec.LeaseID,
		ChatBotID:      rec.Message.ChatBotID,
		ChatMessage:    toChatMessage(rec.Message),
		LeaseExpiresAt: &expiresAt,
	}
}

type leaseRequest struct {
	Limit                      int  `json:"limit"`
	LeaseSeconds               int  `json:"lease_seconds"`
	IncludeConversationHistory bool `json:"include_conversation_history"`
	ConversationHistoryLimit   int  `json:"conversation_history_limit"`
}

type leaseResponse struct {
	Messages               []messageEnvelope `json:"messages"`
	ConversationHistory    []chatMessage     `json:"conversation_history,omitempty"`
}

type ackRequest struct {
	DeliveryIDs []string `json:"delivery_ids"`
	LeaseID     string   `json:"lease_id"`
}

type ackResponse struct {
	AcknowledgedCount int `json:"acknowledged_count"`
}

type nackRequest struct {
	DeliveryIDs []string `json:"delivery_ids"`
	LeaseID     string   `json:"lease_id"`
	Reason      string   `json:"reason"`
}

type nackResponse struct {
	NackedCount int `json:"nacked_count"`
}

type sendDestination struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

type sendRequest struct {
	ChatBotID            string          `json:"chat_bot_id"`
	Destination          sendDestination `json:"destination"`
	Content              string          `json:"content"`
	ReplyToChatMessageID string          `json:"reply_to_chat_message_id"`
}

type sendResponse struct {
	ChatMessageID string `json:"chat_message_id"`
	ChannelID     string `json:"channel_id,omitempty"`
}

type healthResponse struct {
	Status     string `json:"status"`
	ConfigPath string `json:"config_path"`
}
