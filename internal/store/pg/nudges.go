package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/model"
)

// UpsertNudge inserts or refreshes the single outbox row for a
// backend in one statement, the same ON CONFLICT ... DO UPDATE upsert
// idiom the teacher uses for its own per-key outbox rows. An existing
// nudge in any state is put back to pending and its next_attempt_at
// unconditionally slides forward to the freshly computed value —
// successive ingress debounces the outbound further out, it never
// pulls it earlier. A FAILED nudge also has attempts reset to 0 and
// last_error cleared; a SENDING one keeps its attempts, so a row left
// SENDING by a stopped dispatcher is picked up again.
func (s *Store) UpsertNudge(ctx context.Context, backendBotID, chatBotID, dedupeKey string, nextAttemptAt, now time.Time) error {
	const q = `
		INSERT INTO webhook_nudges
			(id, backend_bot_id, chat_bot_id, last_dedupe_key, state, attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, $5, $6, $6)
		ON CONFLICT (backend_bot_id) DO UPDATE SET
			chat_bot_id     = EXCLUDED.chat_bot_id,
			last_dedupe_key = EXCLUDED.last_dedupe_key,
			next_attempt_at = EXCLUDED.next_attempt_at,
			state           = 'pending',
			attempts        = CASE WHEN webhook_nudges.state = 'failed' THEN 0 ELSE webhook_nudges.attempts END,
			last_error      = CASE WHEN webhook_nudges.state = 'failed' THEN NULL ELSE webhook_nudges.last_error END,
			updated_at      = EXCLUDED.updated_at`

	_, err := s.conn.ExecContext(ctx, q, genID(), backendBotID, chatBotID, dedupeKey, nextAttemptAt, now)
	if err != nil {
		return fmt.Errorf("pg: upsert nudge: %w", err)
	}
	return nil
}

// ClaimDueNudges locks up to limit due nudge rows with SELECT ... FOR
// UPDATE SKIP LOCKED and then transitions each to SENDING; run inside
// WithTx, the row locks hold until commit, so two dispatcher ticks can
// never claim the same backend's nudge concurrently.
func (s *Store) ClaimDueNudges(ctx context.Context, now time.Time, limit int) ([]model.WebhookNudge, error) {
	const selectQ = `
		SELECT id
		FROM webhook_nudges
		WHERE state = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := s.conn.QueryContext(ctx, selectQ, now, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: claim due nudges select: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("pg: scan due nudge id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	const updateQ = `
		UPDATE webhook_nudges
		SET state = 'sending', updated_at = $1
		WHERE id = $2
		RETURNING id, backend_bot_id, chat_bot_id, COALESCE(last_dedupe_key, ''), state, attempts, next_attempt_at, COALESCE(last_error, ''), created_at, updated_at`

	out := make([]model.WebhookNudge, 0, len(ids))
	for _, id := range ids {
		var n model.WebhookNudge
		row := s.conn.QueryRowContext(ctx, updateQ, now, id)
		if err := row.Scan(
			&n.ID, &n.BackendBotID, &n.ChatBotID, &n.LastDedupeKey, &n.State, &n.Attempts,
			&n.NextAttemptAt, &n.LastError, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("pg: claim nudge %s: %w", id, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) DeleteNudge(ctx context.Context, id string) error {
	const q = `DELETE FROM webhook_nudges WHERE id = $1`
	if _, err := s.conn.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("pg: delete nudge: %w", err)
	}
	return nil
}

func (s *Store) MarkNudgeFailed(ctx context.Context, id, lastError string, now time.Time) error {
	const q = `
		UPDATE webhook_nudges
		SET state = 'failed', last_error = $2, updated_at = $3
		WHERE id = $1`
	if _, err := s.conn.ExecContext(ctx, q, id, lastError, now); err != nil {
		return fmt.Errorf("pg: mark nudge failed: %w", err)
	}
	return nil
}

func (s *Store) RescheduleNudge(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) error {
	const q = `
		UPDATE webhook_nudges
		SET state = 'pending', attempts = $2, next_attempt_at = $3, last_error = $4, updated_at = $5
		WHERE id = $1`
	if _, err := s.conn.ExecContext(ctx, q, id, attempts, nextAttemptAt, lastError, now); err != nil {
		return fmt.Errorf("pg: reschedule nudge: %w", err)
	}
	return nil
}
