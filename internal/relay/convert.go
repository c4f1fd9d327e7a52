package relay

import (
	"net"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chatrelay/internal/ingress"
	"github.com/nextlevelbuilder/chatrelay/internal/model"
)

func toModelMessage(evt ingress.MessageEvent, dedupeKey string) model.Message {
	return model.Message{
		ID:            uuid.NewString(),
		ChatBotID:     evt.ChatBotID,
		ChatMessageID: evt.ChatMessageID,
		AuthorID:      evt.AuthorID,
		AuthorName:    evt.AuthorName,
		ChannelID:     evt.ChannelID,
		GuildID:       evt.GuildID,
		IsDM:          evt.IsDM,
		Content:       evt.Content,
		Timestamp:     evt.Timestamp,
		DedupeKey:     dedupeKey,
	}
}

func newListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
