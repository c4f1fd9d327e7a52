package reaper_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/reaper"
)

func TestReaper_FixedIntervalStartStop(t *testing.T) {
	var calls int32
	reap := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, nil
	}

	r := reaper.New(config.ReapConfig{IntervalSeconds: 0}, reap, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// IntervalSeconds: 0 falls back to the 60s default; this test only
	// asserts Start/Stop don't deadlock, not that a sweep fires within
	// the test's short lifetime.
	r.Start(ctx)
	r.Stop()
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(0))
}

func TestReaper_StopWhileRunning(t *testing.T) {
	reap := func(ctx context.Context) (int, error) { return 0, nil }
	r := reaper.New(config.ReapConfig{IntervalSeconds: 1}, reap, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	r.Stop()
}
