package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/model"
)

func (s *Store) InsertDelivery(ctx context.Context, d model.Delivery) error {
	const q = `
		INSERT INTO deliveries (id, message_id, backend_bot_id, state, attempts)
		VALUES ($1, $2, $3, $4, $5)`

	state := d.State
	if state == "" {
		state = model.DeliveryPending
	}
	_, err := s.conn.ExecContext(ctx, q, d.ID, d.MessageID, d.BackendBotID, state, d.Attempts)
	if err != nil {
		return fmt.Errorf("pg: insert delivery: %w", err)
	}
	return nil
}

// LeasePending locks up to limit pending deliveries for backendBotID
// with SELECT ... FOR UPDATE OF d SKIP LOCKED — only the deliveries
// row is locked, not the joined message — so concurrent leasers never
// block on each other and never double-hand the same row out. Matches
// the original implementation's queue.py lease_messages, which takes
// the equivalent row lock via SQLAlchemy's with_for_update().
func (s *Store) LeasePending(ctx context.Context, backendBotID string, limit int, leaseID string, leaseExpiresAt time.Time) ([]model.LeasedDeliveryRecord, error) {
	const selectQ = `
		SELECT d.id, d.attempts,
		       m.id, m.chat_bot_id, m.chat_message_id, m.author_id, m.author_name,
		       COALESCE(m.channel_id, ''), COALESCE(m.guild_id, ''), m.is_dm, m.content, m."timestamp", m.dedupe_key, m.created_at
		FROM deliveries d
		JOIN messages m ON m.id = d.message_id
		WHERE d.backend_bot_id = $1 AND d.state = 'pending'
		ORDER BY d.created_at ASC, d.id ASC
		LIMIT $2
		FOR UPDATE OF d SKIP LOCKED`

	rows, err := s.conn.QueryContext(ctx, selectQ, backendBotID, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: lease pending select: %w", err)
	}

	type locked struct {
		deliveryID string
		attempts   int
		msg        model.Message
	}
	var batch []locked
	for rows.Next() {
		var l locked
		if err := rows.Scan(
			&l.deliveryID, &l.attempts,
			&l.msg.ID, &l.msg.ChatBotID, &l.msg.ChatMessageID, &l.msg.AuthorID, &l.msg.AuthorName,
			&l.msg.ChannelID, &l.msg.GuildID, &l.msg.IsDM, &l.msg.Content, &l.msg.Timestamp, &l.msg.DedupeKey, &l.msg.CreatedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("pg: scan leasable delivery: %w", err)
		}
		batch = append(batch, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(batch) == 0 {
		return nil, nil
	}

	const updateQ = `
		UPDATE deliveries
		SET state = 'leased', lease_id = $1, lease_expires_at = $2, attempts = attempts + 1
		WHERE id = $3`

	out := make([]model.LeasedDeliveryRecord, 0, len(batch))
	for _, l := range batch {
		if _, err := s.conn.ExecContext(ctx, updateQ, leaseID, leaseExpiresAt, l.deliveryID); err != nil {
			return nil, fmt.Errorf("pg: lease delivery %s: %w", l.deliveryID, err)
		}
		out = append(out, model.LeasedDeliveryRecord{
			DeliveryID:     l.deliveryID,
			LeaseID:        leaseID,
			BackendBotID:   backendBotID,
			Message:        l.msg,
			LeaseExpiresAt: leaseExpiresAt,
		})
	}
	return out, nil
}

func (s *Store) AckLeased(ctx context.Context, backendBotID string, deliveryIDs []string, leaseID string) (int, error) {
	if len(deliveryIDs) == 0 {
		return 0, nil
	}
	q := fmt.Sprintf(`
		UPDATE deliveries
		SET state = 'delivered', delivered_at = now()
		WHERE backend_bot_id = $1 AND lease_id = $2 AND state = 'leased' AND id IN (%s)`,
		placeholders(3, len(deliveryIDs)))

	args := make([]any, 0, 2+len(deliveryIDs))
	args = append(args, backendBotID, leaseID)
	for _, id := range deliveryIDs {
		args = append(args, id)
	}

	res, err := s.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("pg: ack leased: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) NackLeased(ctx context.Context, backendBotID string, deliveryIDs []string, leaseID string, reason string) (int, error) {
	if len(deliveryIDs) == 0 {
		return 0, nil
	}
	q := fmt.Sprintf(`
		UPDATE deliveries
		SET state = 'pending', lease_id = NULL, lease_expires_at = NULL, last_error = $3
		WHERE backend_bot_id = $1 AND lease_id = $2 AND state = 'leased' AND id IN (%s)`,
		placeholders(4, len(deliveryIDs)))

	args := make([]any, 0, 3+len(deliveryIDs))
	args = append(args, backendBotID, leaseID, reason)
	for _, id := range deliveryIDs {
		args = append(args, id)
	}

	res, err := s.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("pg: nack leased: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ReapExpiredLeases reverts every leased delivery whose lease expired
// before now back to pending, mirroring the original
// reap_expired_leases sweep. attempts is left untouched — a reap is
// not a new delivery attempt, just recovery of an abandoned one.
func (s *Store) ReapExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	const q = `
		UPDATE deliveries
		SET state = 'pending', lease_id = NULL, lease_expires_at = NULL, last_error = 'Lease expired'
		WHERE state = 'leased' AND lease_expires_at IS NOT NULL AND lease_expires_at < $1`

	res, err := s.conn.ExecContext(ctx, q, now)
	if err != nil {
		return 0, fmt.Errorf("pg: reap expired leases: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
