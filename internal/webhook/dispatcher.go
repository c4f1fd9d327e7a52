// Package webhook implements the nudge outbox dispatcher: a single
// cooperative worker that claims due WebhookNudge rows, signs and
// POSTs a notification to each backend's configured URL, and resolves
// the outcome back into the outbox state machine. Grounded on the
// original implementation's webhooks.py WebhookDispatcher
// (claim/deliver/reschedule cycle), with retryable-status
// classification reusing this module's pkg/retry (adapted from
// internal/providers/retry.go in the teacher); the backoff between
// attempts is the webhook's own retry_backoff_seconds schedule.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/model"
	"github.com/nextlevelbuilder/chatrelay/internal/queuework"
	"github.com/nextlevelbuilder/chatrelay/internal/relayerr"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
	"github.com/nextlevelbuilder/chatrelay/pkg/retry"
)

const defaultClaimBatch = 25

// Dispatcher runs the dispatch loop described in SPEC_FULL.md §4.5.b.
type Dispatcher struct {
	store  store.Store
	pool   *queuework.Pool
	client *http.Client
	logger *slog.Logger

	webhooks map[string]config.WebhookConfig

	pollInterval time.Duration
	claimBatch   int
	// limiter caps how many POSTs may start per second (burst of the
	// same size), using the largest max_concurrent_sends across all
	// webhooks; it does not cap how many POSTs are in flight at once.
	// nil = no limit.
	limiter *rate.Limiter

	stop   chan struct{}
	stopWg sync.WaitGroup
}

// New builds a Dispatcher from every backend_bots[].webhook block in
// cfg. pollInterval defaults to 1s when <= 0.
func New(st store.Store, pool *queuework.Pool, cfg *config.Config, logger *slog.Logger, pollInterval time.Duration) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	webhooks := make(map[string]config.WebhookConfig)
	var maxConcurrent int
	for _, b := range cfg.BackendBots {
		if b.Webhook == nil {
			continue
		}
		webhooks[b.ID] = *b.Webhook
		if b.Webhook.MaxConcurrentSends > maxConcurrent {
			maxConcurrent = b.Webhook.MaxConcurrentSends
		}
	}

	var limiter *rate.Limiter
	if maxConcurrent > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxConcurrent), maxConcurrent)
	}

	return &Dispatcher{
		store:        st,
		pool:         pool,
		client:       &http.Client{},
		logger:       logger,
		webhooks:     webhooks,
		pollInterval: pollInterval,
		claimBatch:   defaultClaimBatch,
		limiter:      limiter,
		stop:         make(chan struct{}),
	}
}

// Start runs the dispatch loop in a background goroutine until Stop
// is called or ctx is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.stopWg.Add(1)
	go func() {
		defer d.stopWg.Done()
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stop:
				return
			case <-ticker.C:
				d.runOnce(ctx)
			}
		}
	}()
}

// Stop cancels the dispatch loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.stopWg.Wait()
}

// runOnce claims every due nudge and delivers each independently.
func (d *Dispatcher) runOnce(ctx context.Context) {
	claimed, err := queuework.Submit(ctx, d.pool, func(ctx context.Context) ([]model.WebhookNudge, error) {
		var out []model.WebhookNudge
		err := d.store.WithTx(ctx, func(tx store.Store) error {
			nudges, err := tx.ClaimDueNudges(ctx, time.Now().UTC(), d.claimBatch)
			out = nudges
			return err
		})
		return out, err
	})
	if err != nil {
		d.logger.Error("claim due nudges failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, n := range claimed {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					return
				}
			}
			d.deliver(ctx, n)
		}()
	}
	wg.Wait()
}

type nudgePayload struct {
	Event        string `json:"event"`
	BackendBotID string `json:"backend_bot_id"`
	ChatBotID    string `json:"chat_bot_id"`
	SentAt       string `json:"sent_at"`
	DedupeKey    string `json:"dedupe_key"`
}

// deliver sends a single nudge and resolves the outbox row according
// to the outcome classification in SPEC_FULL.md §4.5.c.
func (d *Dispatcher) deliver(ctx context.Context, n model.WebhookNudge) {
	wh, ok := d.webhooks[n.BackendBotID]
	if !ok {
		d.forget(ctx, n.ID)
		return
	}

	secret, err := wh.ResolvedSecret()
	if err != nil {
		d.fail(ctx, n.ID, &relayerr.UpstreamPermanent{Reason: fmt.Sprintf("secret_error:%v", err)})
		return
	}

	body, err := json.Marshal(nudgePayload{
		Event:        "messages_available",
		BackendBotID: n.BackendBotID,
		ChatBotID:    n.ChatBotID,
		SentAt:       time.Now().UTC().Format(time.RFC3339),
		DedupeKey:    n.LastDedupeKey,
	})
	if err != nil {
		d.fail(ctx, n.ID, &relayerr.UpstreamPermanent{Reason: fmt.Sprintf("request_error:%v", err)})
		return
	}

	timestamp := time.Now().Unix()
	signature := Sign(secret, timestamp, body)

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(wh.RequestTimeoutSeconds*float64(time.Second)))
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		d.fail(ctx, n.ID, &relayerr.UpstreamPermanent{Reason: fmt.Sprintf("request_error:%v", err)})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Relay-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Relay-Signature", signature)

	resp, err := d.client.Do(req)
	if err != nil {
		d.reschedule(ctx, n, &relayerr.UpstreamTransient{Reason: fmt.Sprintf("request_error:%v", err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.forget(ctx, n.ID)
		return
	}

	httpErr := &retry.HTTPError{Status: resp.StatusCode}
	reason := fmt.Sprintf("http_status:%d", resp.StatusCode)
	if retry.IsRetryable(httpErr) {
		d.reschedule(ctx, n, &relayerr.UpstreamTransient{Reason: reason})
		return
	}
	d.fail(ctx, n.ID, &relayerr.UpstreamPermanent{Reason: reason})
}

func (d *Dispatcher) forget(ctx context.Context, nudgeID string) {
	_, err := queuework.Submit(ctx, d.pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.store.DeleteNudge(ctx, nudgeID)
	})
	if err != nil {
		d.logger.Error("delete delivered nudge failed", "nudge_id", nudgeID, "error", err)
	}
}

// fail marks a nudge FAILED terminally. cause is always an
// *relayerr.UpstreamPermanent — logged at warn since it needs operator
// attention, unlike a transient reschedule.
func (d *Dispatcher) fail(ctx context.Context, nudgeID string, cause *relayerr.UpstreamPermanent) {
	d.logger.Warn("webhook nudge permanently failed", "nudge_id", nudgeID, "reason", cause.Error())
	_, err := queuework.Submit(ctx, d.pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.store.MarkNudgeFailed(ctx, nudgeID, cause.Error(), time.Now().UTC())
	})
	if err != nil {
		d.logger.Error("mark nudge failed failed", "nudge_id", nudgeID, "error", err)
	}
}

// reschedule implements §4.5.d: bump attempts, mark FAILED past
// max_retries, otherwise compute the backoff index and slide
// next_attempt_at forward.
func (d *Dispatcher) reschedule(ctx context.Context, n model.WebhookNudge, cause *relayerr.UpstreamTransient) {
	wh := d.webhooks[n.BackendBotID]
	k := n.Attempts + 1
	now := time.Now().UTC()

	if k > wh.MaxRetries {
		d.fail(ctx, n.ID, &relayerr.UpstreamPermanent{Reason: cause.Error()})
		return
	}

	idx := clamp(k-1, 0, len(wh.RetryBackoffSeconds)-1)
	backoff := time.Duration(wh.RetryBackoffSeconds[idx] * float64(time.Second))
	next := now.Add(backoff)

	_, err := queuework.Submit(ctx, d.pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.store.RescheduleNudge(ctx, n.ID, k, next, cause.Error(), now)
	})
	if err != nil {
		d.logger.Error("reschedule nudge failed", "nudge_id", n.ID, "error", err)
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
