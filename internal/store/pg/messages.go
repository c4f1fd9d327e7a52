package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/model"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

func (s *Store) InsertMessage(ctx context.Context, msg model.Message) error {
	const q = `
		INSERT INTO messages
			(id, chat_bot_id, chat_message_id, author_id, author_name,
			 channel_id, guild_id, is_dm, content, "timestamp", dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.conn.ExecContext(ctx, q,
		msg.ID, msg.ChatBotID, msg.ChatMessageID, msg.AuthorID, msg.AuthorName,
		nullIfEmpty(msg.ChannelID), nullIfEmpty(msg.GuildID), msg.IsDM, msg.Content, msg.Timestamp, msg.DedupeKey,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateDedupeKey
		}
		return fmt.Errorf("pg: insert message: %w", err)
	}
	return nil
}

func (s *Store) MessagesInChannelBefore(ctx context.Context, channelID string, before time.Time, limit int) ([]model.Message, error) {
	const q = `
		SELECT id, chat_bot_id, chat_message_id, author_id, author_name,
		       COALESCE(channel_id, ''), COALESCE(guild_id, ''), is_dm, content, "timestamp", dedupe_key, created_at
		FROM messages
		WHERE channel_id = $1 AND "timestamp" <= $2
		ORDER BY "timestamp" DESC
		LIMIT $3`

	rows, err := s.conn.QueryContext(ctx, q, channelID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: messages in channel before: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(
			&m.ID, &m.ChatBotID, &m.ChatMessageID, &m.AuthorID, &m.AuthorName,
			&m.ChannelID, &m.GuildID, &m.IsDM, &m.Content, &m.Timestamp, &m.DedupeKey, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("pg: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
