package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/pkg/retry"
)

func TestDo_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	cfg := retry.Config{Attempts: 3, MinDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	got, err := retry.Do(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", &retry.HTTPError{Status: 503}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, attempts)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	cfg := retry.Config{Attempts: 5, MinDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	_, err := retry.Do(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", &retry.HTTPError{Status: 400}
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	cfg := retry.Config{Attempts: 5, MinDelay: 50 * time.Millisecond, MaxDelay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := retry.Do(ctx, cfg, func() (string, error) {
		return "", &retry.HTTPError{Status: 503}
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	require.True(t, retry.IsRetryable(&retry.HTTPError{Status: 429}))
	require.True(t, retry.IsRetryable(&retry.HTTPError{Status: 503}))
	require.False(t, retry.IsRetryable(&retry.HTTPError{Status: 400}))
	require.False(t, retry.IsRetryable(nil))
	require.True(t, retry.IsRetryable(errors.New("dial tcp: i/o timeout")))
}

func TestParseRetryAfter_Seconds(t *testing.T) {
	require.Equal(t, 5*time.Second, retry.ParseRetryAfter("5"))
	require.Equal(t, time.Duration(0), retry.ParseRetryAfter(""))
}
