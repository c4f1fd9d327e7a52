package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/auth"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/httpapi"
	"github.com/nextlevelbuilder/chatrelay/internal/ingress"
	"github.com/nextlevelbuilder/chatrelay/internal/model"
	"github.com/nextlevelbuilder/chatrelay/internal/queue"
	"github.com/nextlevelbuilder/chatrelay/internal/queuework"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// fakeStore is a minimal in-memory store.Store for end-to-end REST
// scenarios; internal/store/pg/store_test.go covers the real
// row-locking semantics against Postgres.
type fakeStore struct {
	mu         sync.Mutex
	messages   map[string]model.Message
	dedupeSet  map[string]string
	deliveries map[string]model.Delivery
	nudges     map[string]model.WebhookNudge
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:   make(map[string]model.Message),
		dedupeSet:  make(map[string]string),
		deliveries: make(map[string]model.Delivery),
		nudges:     make(map[string]model.WebhookNudge),
	}
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f)
}
func (f *fakeStore) InsertMessage(ctx context.Context, msg model.Message) error {
	if _, ok := f.dedupeSet[msg.DedupeKey]; ok {
		return store.ErrDuplicateDedupeKey
	}
	f.messages[msg.ID] = msg
	f.dedupeSet[msg.DedupeKey] = msg.ID
	return nil
}
func (f *fakeStore) MessagesInChannelBefore(ctx context.Context, channelID string, before time.Time, limit int) ([]model.Message, error) {
	return nil, nil
}
func (f *fakeStore) InsertDelivery(ctx context.Context, d model.Delivery) error {
	if d.State == "" {
		d.State = model.DeliveryPending
	}
	f.deliveries[d.ID] = d
	return nil
}
func (f *fakeStore) LeasePending(ctx context.Context, backendBotID string, limit int, leaseID string, leaseExpiresAt time.Time) ([]model.LeasedDeliveryRecord, error) {
	var out []model.LeasedDeliveryRecord
	for id, d := range f.deliveries {
		if len(out) >= limit {
			break
		}
		if d.BackendBotID != backendBotID || d.State != model.DeliveryPending {
			continue
		}
		d.State = model.DeliveryLeased
		d.LeaseID = leaseID
		exp := leaseExpiresAt
		d.LeaseExpiresAt = &exp
		d.Attempts++
		f.deliveries[id] = d
		out = append(out, model.LeasedDeliveryRecord{
			DeliveryID: d.ID, LeaseID: leaseID, BackendBotID: backendBotID,
			Message: f.messages[d.MessageID], LeaseExpiresAt: leaseExpiresAt,
		})
	}
	return out, nil
}
func (f *fakeStore) AckLeased(ctx context.Context, backendBotID string, deliveryIDs []string, leaseID string) (int, error) {
	n := 0
	for _, id := range deliveryIDs {
		d, ok := f.deliveries[id]
		if !ok || d.BackendBotID != backendBotID || d.State != model.DeliveryLeased || d.LeaseID != leaseID {
			continue
		}
		d.State = model.DeliveryDelivered
		f.deliveries[id] = d
		n++
	}
	return n, nil
}
func (f *fakeStore) NackLeased(ctx context.Context, backendBotID string, deliveryIDs []string, leaseID string, reason string) (int, error) {
	n := 0
	for _, id := range deliveryIDs {
		d, ok := f.deliveries[id]
		if !ok || d.BackendBotID != backendBotID || d.State != model.DeliveryLeased || d.LeaseID != leaseID {
			continue
		}
		d.State = model.DeliveryPending
		d.LeaseID = ""
		d.LeaseExpiresAt = nil
		d.LastError = reason
		f.deliveries[id] = d
		n++
	}
	return n, nil
}
func (f *fakeStore) ReapExpiredLeases(ctx context.Context, now time.Time) (int, error) { return 0, nil }
func (f *fakeStore) UpsertNudge(ctx context.Context, backendBotID, chatBotID, dedupeKey string, nextAttemptAt, now time.Time) error {
	return nil
}
func (f *fakeStore) ClaimDueNudges(ctx context.Context, now time.Time, limit int) ([]model.WebhookNudge, error) {
	return nil, nil
}
func (f *fakeStore) DeleteNudge(ctx context.Context, id string) error { return nil }
func (f *fakeStore) MarkNudgeFailed(ctx context.Context, id, lastError string, now time.Time) error {
	return nil
}
func (f *fakeStore) RescheduleNudge(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }

type fakeSender struct{}

func (fakeSender) Send(ctx context.Context, chatBotID string, dest ingress.Destination, content, replyTo string) (string, string, error) {
	return uuid.NewString(), dest.ChannelID, nil
}

func testServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	pool := queuework.New(4)
	t.Cleanup(pool.Stop)

	cfg := &config.Config{
		DiscordBots: []config.DiscordBotConfig{{ID: "discord_a", Enabled: true}},
		BackendBots: []config.BackendBotConfig{{ID: "alpha", Enabled: true, APIKey: "alpha-key"}},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queueSvc := queue.New(fs, pool, cfg, logger)
	authSvc, err := auth.New(cfg)
	require.NoError(t, err)

	srv := httpapi.New(queueSvc, authSvc, fakeSender{}, cfg, "/etc/chatrelay/config.yaml", logger)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, fs
}

func enqueue(t *testing.T, fs *fakeStore, dedupeKey, content string) {
	t.Helper()
	id := uuid.NewString()
	msg := model.Message{
		ID: id, ChatBotID: "discord_a", ChatMessageID: dedupeKey, AuthorID: "u1",
		AuthorName: "U1", ChannelID: "c1", Content: content, Timestamp: time.Now(), DedupeKey: dedupeKey,
	}
	require.NoError(t, fs.InsertMessage(context.Background(), msg))
	require.NoError(t, fs.InsertDelivery(context.Background(), model.Delivery{
		ID: uuid.NewString(), MessageID: id, BackendBotID: "alpha",
	}))
}

func doJSON(t *testing.T, method, url, apiKey string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestS1_IngestAndPull(t *testing.T) {
	ts, fs := testServer(t)
	enqueue(t, fs, "discord_a:55", "hello relay")

	resp := doJSON(t, http.MethodGet, ts.URL+"/v1/messages/pending?limit=10", "alpha-key", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Messages []struct {
			ChatMessage struct {
				Content string `json:"content"`
			} `json:"chat_message"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got.Messages, 1)
	require.Equal(t, "hello relay", got.Messages[0].ChatMessage.Content)

	resp2 := doJSON(t, http.MethodGet, ts.URL+"/v1/messages/pending?limit=10", "alpha-key", nil)
	defer resp2.Body.Close()
	var got2 struct {
		Messages []any `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&got2))
	require.Empty(t, got2.Messages)
}

func TestS2_LeaseAckRoundTrip(t *testing.T) {
	ts, fs := testServer(t)
	enqueue(t, fs, "discord_a:1", "hi")

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/messages/lease", "alpha-key", map[string]any{
		"limit": 10, "lease_seconds": 300, "include_conversation_history": false, "conversation_history_limit": 20,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var leaseResp struct {
		Messages []struct {
			DeliveryID string `json:"delivery_id"`
			LeaseID    string `json:"lease_id"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&leaseResp))
	require.Len(t, leaseResp.Messages, 1)

	ackResp := doJSON(t, http.MethodPost, ts.URL+"/v1/messages/ack", "alpha-key", map[string]any{
		"delivery_ids": []string{leaseResp.Messages[0].DeliveryID},
		"lease_id":     leaseResp.Messages[0].LeaseID,
	})
	defer ackResp.Body.Close()
	var ackBody struct {
		AcknowledgedCount int `json:"acknowledged_count"`
	}
	require.NoError(t, json.NewDecoder(ackResp.Body).Decode(&ackBody))
	require.Equal(t, 1, ackBody.AcknowledgedCount)

	resp2 := doJSON(t, http.MethodPost, ts.URL+"/v1/messages/lease", "alpha-key", map[string]any{
		"limit": 10, "lease_seconds": 300, "conversation_history_limit": 20,
	})
	defer resp2.Body.Close()
	var leaseResp2 struct {
		Messages []any `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&leaseResp2))
	require.Empty(t, leaseResp2.Messages)
}

func TestS3_NackRestoresPending(t *testing.T) {
	ts, fs := testServer(t)
	enqueue(t, fs, "discord_a:2", "hi")

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/messages/lease", "alpha-key", map[string]any{
		"limit": 10, "lease_seconds": 300, "conversation_history_limit": 20,
	})
	var leaseResp struct {
		Messages []struct {
			DeliveryID string `json:"delivery_id"`
			LeaseID    string `json:"lease_id"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&leaseResp))
	resp.Body.Close()
	require.Len(t, leaseResp.Messages, 1)

	nackResp := doJSON(t, http.MethodPost, ts.URL+"/v1/messages/nack", "alpha-key", map[string]any{
		"delivery_ids": []string{leaseResp.Messages[0].DeliveryID},
		"lease_id":     leaseResp.Messages[0].LeaseID,
		"reason":       "boom",
	})
	var nackBody struct {
		NackedCount int `json:"nacked_count"`
	}
	require.NoError(t, json.NewDecoder(nackResp.Body).Decode(&nackBody))
	nackResp.Body.Close()
	require.Equal(t, 1, nackBody.NackedCount)

	resp2 := doJSON(t, http.MethodPost, ts.URL+"/v1/messages/lease", "alpha-key", map[string]any{
		"limit": 10, "lease_seconds": 300, "conversation_history_limit": 20,
	})
	var leaseResp2 struct {
		Messages []struct {
			DeliveryID string `json:"delivery_id"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&leaseResp2))
	resp2.Body.Close()
	require.Len(t, leaseResp2.Messages, 1)
	require.Equal(t, leaseResp.Messages[0].DeliveryID, leaseResp2.Messages[0].DeliveryID)
	require.Equal(t, 2, fs.deliveries[leaseResp2.Messages[0].DeliveryID].Attempts)
}

func TestUnauthorized(t *testing.T) {
	ts, _ := testServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/v1/messages/pending", "wrong-key", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSend_UnknownChatBot(t *testing.T) {
	ts, _ := testServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/messages/send", "alpha-key", map[string]any{
		"chat_bot_id": "nope", "destination": map[string]string{"type": "dm", "user_id": "u1"}, "content": "hi",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSend_Success(t *testing.T) {
	ts, _ := testServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/messages/send", "alpha-key", map[string]any{
		"chat_bot_id": "discord_a", "destination": map[string]string{"type": "channel", "channel_id": "c1"}, "content": "hi",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
