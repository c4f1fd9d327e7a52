// Package config loads and validates the relay's YAML configuration,
// resolving "_env" secret references and aggregating every validation
// failure into a single relayerr.ConfigError, in the same spirit as
// the teacher's internal/config: YAML-first, env-resolved, validated
// once at startup and never mutated after.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/chatrelay/internal/relayerr"
)

const (
	ScopeDMUser  = "dm_user"
	ScopeChannel = "channel"
	ScopeGuild   = "guild"
	ScopeDefault = "default"
)

type ServerConfig struct {
	BindHost  string `yaml:"bind_host"`
	BindPort  int    `yaml:"bind_port"`
	BaseURL   string `yaml:"base_url"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type DiscordBotConfig struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Token            string   `yaml:"token"`
	TokenEnv         string   `yaml:"token_env"`
	Enabled          bool     `yaml:"enabled"`
	AllowAllChannels bool     `yaml:"allow_all_channels"` // parsed, never consulted: see SPEC_FULL.md open question
	ChannelAllowlist []string `yaml:"channel_allowlist"`
}

// ResolvedToken returns the literal token, falling back to the
// environment variable named by TokenEnv.
func (b DiscordBotConfig) ResolvedToken() (string, error) {
	if b.Token != "" {
		return b.Token, nil
	}
	if b.TokenEnv != "" {
		if v := os.Getenv(b.TokenEnv); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("discord bot %q is missing a token (set 'token' or 'token_env')", b.ID)
}

type WebhookConfig struct {
	URL                  string  `yaml:"url"`
	Secret               string  `yaml:"secret"`
	SecretEnv            string  `yaml:"secret_env"`
	SendDebounceSeconds  float64 `yaml:"send_debounce_seconds"`
	RequestTimeoutSeconds float64 `yaml:"request_timeout_seconds"`
	MaxRetries           int     `yaml:"max_retries"`
	RetryBackoffSeconds  []float64 `yaml:"retry_backoff_seconds"`
	MaxConcurrentSends   int     `yaml:"max_concurrent_sends"`
}

// ResolvedSecret returns the literal secret, falling back to SecretEnv.
func (w WebhookConfig) ResolvedSecret() (string, error) {
	if w.Secret != "" {
		return w.Secret, nil
	}
	if w.SecretEnv != "" {
		if v := os.Getenv(w.SecretEnv); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("webhook secret unresolved (set 'secret' or 'secret_env')")
}

type BackendBotConfig struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	APIKey    string         `yaml:"api_key"`
	APIKeyEnv string         `yaml:"api_key_env"`
	Enabled   bool           `yaml:"enabled"`
	Webhook   *WebhookConfig `yaml:"webhook"`
}

// ResolvedAPIKey returns the literal key, falling back to APIKeyEnv.
func (b BackendBotConfig) ResolvedAPIKey() (string, error) {
	if b.APIKey != "" {
		return b.APIKey, nil
	}
	if b.APIKeyEnv != "" {
		if v := os.Getenv(b.APIKeyEnv); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("backend bot %q is missing an api key (set 'api_key' or 'api_key_env')", b.ID)
}

type RouteConfig struct {
	ChatBotID    string `yaml:"chat_bot_id"`
	ScopeType    string `yaml:"scope_type"`
	ScopeID      string `yaml:"scope_id"`
	BackendBotID string `yaml:"backend_bot_id"`
}

type RoutingConfig struct {
	Mode       string            `yaml:"mode"`
	Precedence []string          `yaml:"precedence"`
	Defaults   map[string]string `yaml:"defaults"`
}

type ReapConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	Cron            string `yaml:"cron"`
}

type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Storage     StorageConfig      `yaml:"storage"`
	DiscordBots []DiscordBotConfig `yaml:"discord_bots"`
	BackendBots []BackendBotConfig `yaml:"backend_bots"`
	Routing     RoutingConfig      `yaml:"routing"`
	Routes      []RouteConfig      `yaml:"routes"`
	Reap        ReapConfig         `yaml:"reap"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			BindHost: "0.0.0.0",
			BindPort: 8080,
			LogLevel: "info",
		},
		Storage: StorageConfig{
			DatabaseURL: "postgres:///chatrelay?sslmode=disable",
		},
		Routing: RoutingConfig{
			Mode:       "first_match",
			Precedence: []string{ScopeDMUser, ScopeChannel, ScopeGuild, ScopeDefault},
		},
		Reap: ReapConfig{IntervalSeconds: 60},
	}
}

// Load reads and validates path, expanding DATABASE_URL and _env
// fields. On any problem it returns a single *relayerr.ConfigError
// listing every failure found, not just the first.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &relayerr.ConfigError{Errors: []string{fmt.Sprintf("reading %s: %v", path, err)}}
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &relayerr.ConfigError{Errors: []string{fmt.Sprintf("parsing %s: %v", path, err)}}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Storage.DatabaseURL == defaultConfig().Storage.DatabaseURL {
		cfg.Storage.DatabaseURL = v
	}

	if cerr := validate(&cfg); !cerr.OK() {
		return nil, cerr
	}
	return &cfg, nil
}

func validate(cfg *Config) *relayerr.ConfigError {
	cerr := &relayerr.ConfigError{}

	discordIDs := map[string]bool{}
	for _, b := range cfg.DiscordBots {
		if discordIDs[b.ID] {
			cerr.Add("duplicate discord_bots id %q", b.ID)
		}
		discordIDs[b.ID] = true
		if b.Enabled {
			if _, err := b.ResolvedToken(); err != nil {
				cerr.Add("%v", err)
			}
		}
	}

	backendIDs := map[string]bool{}
	apiKeys := map[string]string{}
	for _, b := range cfg.BackendBots {
		if backendIDs[b.ID] {
			cerr.Add("duplicate backend_bots id %q", b.ID)
		}
		backendIDs[b.ID] = true
		if !b.Enabled {
			continue
		}
		key, err := b.ResolvedAPIKey()
		if err != nil {
			cerr.Add("%v", err)
			continue
		}
		if owner, ok := apiKeys[key]; ok {
			cerr.Add("backend_bots %q and %q resolve to the same api key", owner, b.ID)
			continue
		}
		apiKeys[key] = b.ID
		if b.Webhook != nil {
			validateWebhook(cerr, b.ID, b.Webhook)
		}
	}

	seenScope := map[string]bool{}
	for _, s := range cfg.Routing.Precedence {
		switch s {
		case ScopeDMUser, ScopeChannel, ScopeGuild, ScopeDefault:
		default:
			cerr.Add("routing.precedence: unknown scope %q", s)
			continue
		}
		if seenScope[s] {
			cerr.Add("routing.precedence contains duplicate scope %q", s)
		}
		seenScope[s] = true
	}
	for botID, backendID := range cfg.Routing.Defaults {
		if !discordIDs[botID] {
			cerr.Add("routing.defaults references unknown discord bot %q", botID)
		}
		if !backendIDs[backendID] {
			cerr.Add("routing.defaults: chat bot %q maps to unknown backend_bot_id %q", botID, backendID)
		}
	}

	seenRoute := map[string]bool{}
	for _, r := range cfg.Routes {
		if !discordIDs[r.ChatBotID] {
			cerr.Add("routes: unknown chat_bot_id %q", r.ChatBotID)
		}
		if !backendIDs[r.BackendBotID] {
			cerr.Add("routes: unknown backend_bot_id %q", r.BackendBotID)
		}
		switch r.ScopeType {
		case ScopeDMUser, ScopeChannel, ScopeGuild:
		default:
			cerr.Add("routes: unsupported scope_type %q", r.ScopeType)
			continue
		}
		key := strings.Join([]string{r.ChatBotID, r.ScopeType, r.ScopeID}, "\x00")
		if seenRoute[key] {
			cerr.Add("routes: multiple routes for %s scope %q under chat bot %q", r.ScopeType, r.ScopeID, r.ChatBotID)
		}
		seenRoute[key] = true
	}

	return cerr
}

func validateWebhook(cerr *relayerr.ConfigError, backendID string, w *WebhookConfig) {
	if w.URL == "" {
		cerr.Add("backend_bots %q: webhook.url is required", backendID)
	}
	if _, err := w.ResolvedSecret(); err != nil {
		cerr.Add("backend_bots %q: %v", backendID, err)
	}
	if w.RequestTimeoutSeconds <= 0 {
		cerr.Add("backend_bots %q: webhook.request_timeout_seconds must be > 0", backendID)
	}
	if w.MaxRetries < 0 {
		cerr.Add("backend_bots %q: webhook.max_retries must be >= 0", backendID)
	}
	if len(w.RetryBackoffSeconds) == 0 {
		cerr.Add("backend_bots %q: webhook.retry_backoff_seconds must be non-empty", backendID)
	}
	for _, s := range w.RetryBackoffSeconds {
		if s <= 0 {
			cerr.Add("backend_bots %q: webhook.retry_backoff_seconds entries must be > 0", backendID)
			break
		}
	}
	if w.SendDebounceSeconds < 0 {
		cerr.Add("backend_bots %q: webhook.send_debounce_seconds must be >= 0", backendID)
	}
}
