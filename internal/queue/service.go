// Package queue implements the durable delivery pipeline: enqueueing
// inbound chat messages, leasing them out to backends, and the
// ack/nack/reap lifecycle that follows. Grounded on the original
// implementation's queue.py (enqueue_message, lease_messages,
// acknowledge_deliveries, negative_acknowledge_deliveries,
// reap_expired_leases), re-expressed against this module's Store
// interface and run through a bounded queuework.Pool.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/model"
	"github.com/nextlevelbuilder/chatrelay/internal/queuework"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// legacyLeaseDuration stands in for "lease_seconds=∞" on the
// deprecated pending endpoint: long enough that no real reap cycle
// will ever observe it expired, since the handler acks it within the
// same transaction anyway.
const legacyLeaseDuration = 100 * 365 * 24 * time.Hour

// Service is the durable delivery engine: Enqueue, Lease, Ack, Nack,
// and ReapExpiredLeases, plus the legacy pending-fetch composition.
type Service struct {
	store  store.Store
	pool   *queuework.Pool
	dedupe *lru.Cache[string, struct{}]
	logger *slog.Logger

	// debounce holds send_debounce_seconds for every backend with a
	// configured webhook; backends absent from this map never get a
	// nudge scheduled.
	debounce map[string]time.Duration
}

// New builds a Service. cfg supplies each backend's webhook debounce
// setting; backends without a webhook block never schedule nudges.
func New(st store.Store, pool *queuework.Pool, cfg *config.Config, logger *slog.Logger) *Service {
	debounce := make(map[string]time.Duration)
	for _, b := range cfg.BackendBots {
		if b.Webhook == nil {
			continue
		}
		d := b.Webhook.SendDebounceSeconds
		if d < 0 {
			d = 0
		}
		debounce[b.ID] = time.Duration(d * float64(time.Second))
	}

	return &Service{
		store:    st,
		pool:     pool,
		dedupe:   newDedupeCache(),
		logger:   logger,
		debounce: debounce,
	}
}

// Enqueue inserts msg and a PENDING delivery for backendBotID inside
// one transaction. A duplicate msg.DedupeKey is not an error: it
// returns inserted=false. On a fresh insert, nudge scheduling runs in
// its own transaction and its failure is logged, never propagated —
// the message is already safely durable and pull-reachable either way.
func (s *Service) Enqueue(ctx context.Context, backendBotID string, msg model.Message) (bool, error) {
	if _, hit := s.dedupe.Get(msg.DedupeKey); hit {
		return false, nil
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	inserted, err := queuework.Submit(ctx, s.pool, func(ctx context.Context) (bool, error) {
		var inserted bool
		err := s.store.WithTx(ctx, func(tx store.Store) error {
			if err := tx.InsertMessage(ctx, msg); err != nil {
				if err == store.ErrDuplicateDedupeKey {
					inserted = false
					return nil
				}
				return err
			}
			if err := tx.InsertDelivery(ctx, model.Delivery{
				ID:           uuid.NewString(),
				MessageID:    msg.ID,
				BackendBotID: backendBotID,
				State:        model.DeliveryPending,
			}); err != nil {
				return fmt.Errorf("insert delivery: %w", err)
			}
			inserted = true
			return nil
		})
		return inserted, err
	})
	if err != nil {
		return false, err
	}

	s.dedupe.Add(msg.DedupeKey, struct{}{})

	if inserted {
		s.scheduleNudge(ctx, backendBotID, msg)
	}

	return inserted, nil
}

func (s *Service) scheduleNudge(ctx context.Context, backendBotID string, msg model.Message) {
	debounce, ok := s.debounce[backendBotID]
	if !ok {
		return
	}

	now := time.Now().UTC()
	nextAttempt := now.Add(debounce)

	_, err := queuework.Submit(ctx, s.pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.WithTx(ctx, func(tx store.Store) error {
			return tx.UpsertNudge(ctx, backendBotID, msg.ChatBotID, msg.DedupeKey, nextAttempt, now)
		})
	})
	if err != nil {
		s.logger.Warn("nudge scheduling failed after successful enqueue",
			"backend_bot_id", backendBotID, "error", err)
	}
}

// Lease selects up to limit PENDING deliveries for backendBotID,
// transitions them to LEASED under a single lease_id, and optionally
// fetches surrounding channel history for the earliest leased message.
func (s *Service) Lease(ctx context.Context, backendBotID string, limit int, leaseSeconds int, includeHistory bool, historyLimit int) ([]model.LeasedDeliveryRecord, []model.Message, error) {
	leaseID := uuid.NewString()
	leaseExpiresAt := time.Now().UTC().Add(time.Duration(leaseSeconds) * time.Second)

	type leaseResult struct {
		leased  []model.LeasedDeliveryRecord
		history []model.Message
	}

	res, err := queuework.Submit(ctx, s.pool, func(ctx context.Context) (leaseResult, error) {
		var out leaseResult
		err := s.store.WithTx(ctx, func(tx store.Store) error {
			leased, err := tx.LeasePending(ctx, backendBotID, limit, leaseID, leaseExpiresAt)
			if err != nil {
				return err
			}
			out.leased = leased

			if !includeHistory || len(leased) == 0 {
				return nil
			}
			first := leased[0]
			if first.Message.ChannelID == "" {
				return nil
			}
			history, err := tx.MessagesInChannelBefore(ctx, first.Message.ChannelID, first.Message.Timestamp, historyLimit)
			if err != nil {
				return fmt.Errorf("fetch conversation history: %w", err)
			}
			reverse(history)
			out.history = history
			return nil
		})
		return out, err
	})
	if err != nil {
		return nil, nil, err
	}
	return res.leased, res.history, nil
}

// LeasePendingLegacy serves the deprecated /v1/messages/pending
// endpoint: a lease with an effectively infinite duration, immediately
// acked inside the same transaction, so it shares the exact state
// transition code the lease/ack pair uses rather than duplicating it.
func (s *Service) LeasePendingLegacy(ctx context.Context, backendBotID string, limit int) ([]model.LeasedDeliveryRecord, error) {
	leaseID := uuid.NewString()
	leaseExpiresAt := time.Now().UTC().Add(legacyLeaseDuration)

	leased, err := queuework.Submit(ctx, s.pool, func(ctx context.Context) ([]model.LeasedDeliveryRecord, error) {
		var out []model.LeasedDeliveryRecord
		err := s.store.WithTx(ctx, func(tx store.Store) error {
			leased, err := tx.LeasePending(ctx, backendBotID, limit, leaseID, leaseExpiresAt)
			if err != nil {
				return err
			}
			if len(leased) == 0 {
				return nil
			}
			ids := make([]string, len(leased))
			for i, l := range leased {
				ids[i] = l.DeliveryID
			}
			if _, err := tx.AckLeased(ctx, backendBotID, ids, leaseID); err != nil {
				return fmt.Errorf("ack legacy lease: %w", err)
			}
			out = leased
			return nil
		})
		return out, err
	})
	return leased, err
}

// Ack transitions the given deliveries from LEASED to DELIVERED.
// Returns the number actually transitioned.
func (s *Service) Ack(ctx context.Context, backendBotID string, deliveryIDs []string, leaseID string) (int, error) {
	return queuework.Submit(ctx, s.pool, func(ctx context.Context) (int, error) {
		return s.store.AckLeased(ctx, backendBotID, deliveryIDs, leaseID)
	})
}

// Nack returns the given deliveries to PENDING without decrementing
// attempts. Returns the number actually transitioned.
func (s *Service) Nack(ctx context.Context, backendBotID string, deliveryIDs []string, leaseID, reason string) (int, error) {
	return queuework.Submit(ctx, s.pool, func(ctx context.Context) (int, error) {
		return s.store.NackLeased(ctx, backendBotID, deliveryIDs, leaseID, reason)
	})
}

// ReapExpiredLeases reverts every delivery whose lease expired before
// now back to PENDING. Returns the number reaped.
func (s *Service) ReapExpiredLeases(ctx context.Context) (int, error) {
	return queuework.Submit(ctx, s.pool, func(ctx context.Context) (int, error) {
		return s.store.ReapExpiredLeases(ctx, time.Now().UTC())
	})
}

func reverse(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
