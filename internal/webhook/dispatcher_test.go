package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/model"
	"github.com/nextlevelbuilder/chatrelay/internal/queuework"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
	"github.com/nextlevelbuilder/chatrelay/internal/webhook"
)

// memNudgeStore is a minimal store.Store fake exercising only the
// webhook_nudges surface; the other methods are never called by the
// dispatcher and panic if they are.
type memNudgeStore struct {
	mu     sync.Mutex
	nudges map[string]model.WebhookNudge
}

func (m *memNudgeStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m)
}
func (m *memNudgeStore) InsertMessage(ctx context.Context, msg model.Message) error { panic("unused") }
func (m *memNudgeStore) MessagesInChannelBefore(ctx context.Context, channelID string, before time.Time, limit int) ([]model.Message, error) {
	panic("unused")
}
func (m *memNudgeStore) InsertDelivery(ctx context.Context, d model.Delivery) error { panic("unused") }
func (m *memNudgeStore) LeasePending(ctx context.Context, backendBotID string, limit int, leaseID string, leaseExpiresAt time.Time) ([]model.LeasedDeliveryRecord, error) {
	panic("unused")
}
func (m *memNudgeStore) AckLeased(ctx context.Context, backendBotID string, deliveryIDs []string, leaseID string) (int, error) {
	panic("unused")
}
func (m *memNudgeStore) NackLeased(ctx context.Context, backendBotID string, deliveryIDs []string, leaseID string, reason string) (int, error) {
	panic("unused")
}
func (m *memNudgeStore) ReapExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	panic("unused")
}
func (m *memNudgeStore) UpsertNudge(ctx context.Context, backendBotID, chatBotID, dedupeKey string, nextAttemptAt, now time.Time) error {
	panic("unused")
}
func (m *memNudgeStore) ClaimDueNudges(ctx context.Context, now time.Time, limit int) ([]model.WebhookNudge, error) {
	var out []model.WebhookNudge
	for id, n := range m.nudges {
		if n.State == model.NudgePending && !n.NextAttemptAt.After(now) {
			n.State = model.NudgeSending
			m.nudges[id] = n
			out = append(out, n)
		}
	}
	return out, nil
}
func (m *memNudgeStore) DeleteNudge(ctx context.Context, id string) error {
	delete(m.nudges, id)
	return nil
}
func (m *memNudgeStore) MarkNudgeFailed(ctx context.Context, id, lastError string, now time.Time) error {
	n := m.nudges[id]
	n.State = model.NudgeFailed
	n.LastError = lastError
	m.nudges[id] = n
	return nil
}
func (m *memNudgeStore) RescheduleNudge(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) error {
	n := m.nudges[id]
	n.State = model.NudgePending
	n.Attempts = attempts
	n.NextAttemptAt = nextAttemptAt
	n.LastError = lastError
	m.nudges[id] = n
	return nil
}
func (m *memNudgeStore) Close() error { return nil }

func TestDispatcher_SignedPostClearsOutbox(t *testing.T) {
	const secret = "test-secret"

	var gotTimestamp, gotSignature string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTimestamp = r.Header.Get("X-Relay-Timestamp")
		gotSignature = r.Header.Get("X-Relay-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	nudgeID := uuid.NewString()
	st := &memNudgeStore{nudges: map[string]model.WebhookNudge{
		nudgeID: {
			ID: nudgeID, BackendBotID: "alpha", ChatBotID: "discord_a",
			LastDedupeKey: "discord_a:1", State: model.NudgePending,
			NextAttemptAt: time.Now().Add(-time.Second),
		},
	}}

	cfg := &config.Config{BackendBots: []config.BackendBotConfig{
		{ID: "alpha", Enabled: true, Webhook: &config.WebhookConfig{
			URL: srv.URL, Secret: secret, RequestTimeoutSeconds: 5,
			MaxRetries: 3, RetryBackoffSeconds: []float64{1},
		}},
	}}

	pool := queuework.New(2)
	defer pool.Stop()

	d := webhook.New(st, pool, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	require.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		_, exists := st.nudges[nudgeID]
		return !exists
	}, 500*time.Millisecond, 10*time.Millisecond)

	require.NotEmpty(t, gotTimestamp)
	ts, err := strconv.ParseInt(gotTimestamp, 10, 64)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gotTimestamp))
	mac.Write([]byte("."))
	mac.Write(gotBody)
	require.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSignature)
	require.Greater(t, ts, int64(0))
}

func TestDispatcher_RetryableStatusReschedules(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	nudgeID := uuid.NewString()
	st := &memNudgeStore{nudges: map[string]model.WebhookNudge{
		nudgeID: {
			ID: nudgeID, BackendBotID: "alpha", ChatBotID: "discord_a",
			State: model.NudgePending, NextAttemptAt: time.Now().Add(-time.Second),
		},
	}}

	cfg := &config.Config{BackendBots: []config.BackendBotConfig{
		{ID: "alpha", Enabled: true, Webhook: &config.WebhookConfig{
			URL: srv.URL, Secret: "s", RequestTimeoutSeconds: 5,
			MaxRetries: 3, RetryBackoffSeconds: []float64{60},
		}},
	}}

	pool := queuework.New(2)
	defer pool.Stop()

	d := webhook.New(st, pool, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Start(ctx)
	<-ctx.Done()
	d.Stop()

	st.mu.Lock()
	defer st.mu.Unlock()
	n, ok := st.nudges[nudgeID]
	require.True(t, ok)
	require.Equal(t, model.NudgePending, n.State)
	require.Equal(t, 1, n.Attempts)
	require.Equal(t, "http_status:503", n.LastError)
}
