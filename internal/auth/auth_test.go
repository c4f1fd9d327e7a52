package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
)

func TestAuthenticate(t *testing.T) {
	svc, err := New(&config.Config{
		BackendBots: []config.BackendBotConfig{
			{ID: "alpha", Name: "Alpha", Enabled: true, APIKey: "alpha-key"},
			{ID: "beta", Name: "Beta", Enabled: false, APIKey: "beta-key"},
		},
	})
	require.NoError(t, err)

	id, ok := svc.Authenticate("alpha-key")
	require.True(t, ok)
	require.Equal(t, "alpha", id.ID)

	_, ok = svc.Authenticate("beta-key")
	require.False(t, ok, "disabled backends must not authenticate")

	_, ok = svc.Authenticate("unknown")
	require.False(t, ok)
}

func TestNew_DuplicateAPIKey(t *testing.T) {
	_, err := New(&config.Config{
		BackendBots: []config.BackendBotConfig{
			{ID: "alpha", Enabled: true, APIKey: "same-key"},
			{ID: "beta", Enabled: true, APIKey: "same-key"},
		},
	})
	require.Error(t, err)
}
