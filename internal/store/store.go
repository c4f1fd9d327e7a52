// Package store defines the persistence contract the queue engine
// and webhook dispatcher are built against; internal/store/pg
// supplies the Postgres implementation. Mirrors the teacher's own
// split between a narrow repository interface (internal/store) and
// a concrete SQL-backed implementation package (internal/store/pg).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/model"
)

// ErrNotFound is returned when a lookup by ID finds nothing.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateDedupeKey is returned by InsertMessage when the
// dedupe_key uniqueness constraint fires — the enqueue path's only
// expected, silently-handled error.
var ErrDuplicateDedupeKey = errors.New("store: duplicate dedupe key")

// Store is the full persistence surface. A concrete implementation's
// WithTx must give fn a Store bound to the same transaction so
// nested repository calls participate in it.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Messages
	InsertMessage(ctx context.Context, msg model.Message) error
	MessagesInChannelBefore(ctx context.Context, channelID string, before time.Time, limit int) ([]model.Message, error)

	// Deliveries
	InsertDelivery(ctx context.Context, d model.Delivery) error
	LeasePending(ctx context.Context, backendBotID string, limit int, leaseID string, leaseExpiresAt time.Time) ([]model.LeasedDeliveryRecord, error)
	AckLeased(ctx context.Context, backendBotID string, deliveryIDs []string, leaseID string) (int, error)
	NackLeased(ctx context.Context, backendBotID string, deliveryIDs []string, leaseID string, reason string) (int, error)
	ReapExpiredLeases(ctx context.Context, now time.Time) (int, error)

	// WebhookNudges
	UpsertNudge(ctx context.Context, backendBotID, chatBotID, dedupeKey string, nextAttemptAt, now time.Time) error
	ClaimDueNudges(ctx context.Context, now time.Time, limit int) ([]model.WebhookNudge, error)
	DeleteNudge(ctx context.Context, id string) error
	MarkNudgeFailed(ctx context.Context, id, lastError string, now time.Time) error
	RescheduleNudge(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) error

	Close() error
}
