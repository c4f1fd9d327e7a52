package webhook_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/webhook"
)

func TestSign_IsDeterministicHexHMAC(t *testing.T) {
	got := webhook.Sign("test-secret", 1700000000, []byte(`{"a":1}`))
	require.Len(t, got, 64)

	again := webhook.Sign("test-secret", 1700000000, []byte(`{"a":1}`))
	require.Equal(t, got, again)

	changed := webhook.Sign("test-secret", 1700000001, []byte(`{"a":1}`))
	require.NotEqual(t, got, changed)
}
