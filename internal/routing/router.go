// Package routing resolves the backend bot a given inbound message
// should be delivered to, from a precomputed, immutable table built
// once from config. Grounded on the interface-based resolver shape of
// the pack's gateway router (explicit sentinel-free "first match
// wins" scan) generalized from a single binding lookup to the
// spec's four-scope precedence scan.
package routing

import (
	"fmt"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/relayerr"
)

// Context carries everything Resolve needs to pick a backend.
type Context struct {
	ChatBotID string
	AuthorID  string
	ChannelID string
	GuildID   string
	IsDM      bool
}

// Router is immutable after construction and safe for concurrent use
// without synchronization.
type Router struct {
	precedence   []string
	defaults     map[string]string
	dmRoutes     map[string]map[string]string // chat_bot_id -> author_id -> backend
	channelRoutes map[string]map[string]string // chat_bot_id -> channel_id -> backend
	guildRoutes  map[string]map[string]string // chat_bot_id -> guild_id -> backend
}

// New builds a Router from cfg, validating every referenced chat/
// backend ID exists. Returns a *relayerr.ConfigError naming the first
// invalid reference found; config.Load already runs most of this
// validation, but Router re-validates since it can be constructed
// directly by tests without going through Load.
func New(cfg *config.Config) (*Router, error) {
	discordIDs := map[string]bool{}
	for _, b := range cfg.DiscordBots {
		discordIDs[b.ID] = true
	}
	backendIDs := map[string]bool{}
	for _, b := range cfg.BackendBots {
		backendIDs[b.ID] = true
	}

	r := &Router{
		precedence:    cfg.Routing.Precedence,
		defaults:      map[string]string{},
		dmRoutes:      map[string]map[string]string{},
		channelRoutes: map[string]map[string]string{},
		guildRoutes:   map[string]map[string]string{},
	}
	for k, v := range cfg.Routing.Defaults {
		r.defaults[k] = v
	}

	for _, route := range cfg.Routes {
		if !discordIDs[route.ChatBotID] {
			return nil, configErr("route references unknown chat_bot_id %q", route.ChatBotID)
		}
		if !backendIDs[route.BackendBotID] {
			return nil, configErr("route references unknown backend_bot_id %q", route.BackendBotID)
		}

		var table map[string]map[string]string
		switch route.ScopeType {
		case config.ScopeDMUser:
			table = r.dmRoutes
		case config.ScopeChannel:
			table = r.channelRoutes
		case config.ScopeGuild:
			table = r.guildRoutes
		default:
			return nil, configErr("unsupported scope type: %s", route.ScopeType)
		}

		scoped, ok := table[route.ChatBotID]
		if !ok {
			scoped = map[string]string{}
			table[route.ChatBotID] = scoped
		}
		if _, exists := scoped[route.ScopeID]; exists {
			return nil, configErr("multiple routes defined for %s %q under chat bot %q", route.ScopeType, route.ScopeID, route.ChatBotID)
		}
		scoped[route.ScopeID] = route.BackendBotID
	}

	for botID, backendID := range r.defaults {
		if !discordIDs[botID] {
			return nil, configErr("default route references unknown chat bot %q", botID)
		}
		if !backendIDs[backendID] {
			return nil, configErr("default route for chat bot %q references unknown backend_bot_id %q", botID, backendID)
		}
	}

	return r, nil
}

func configErr(format string, args ...any) *relayerr.ConfigError {
	return &relayerr.ConfigError{Errors: []string{fmt.Sprintf(format, args...)}}
}

// Resolve scans the precedence order and returns the first matching
// backend ID, or "" if nothing matches.
func (r *Router) Resolve(ctx Context) string {
	for _, scope := range r.precedence {
		switch scope {
		case config.ScopeDMUser:
			if ctx.IsDM {
				if backend := r.dmRoutes[ctx.ChatBotID][ctx.AuthorID]; backend != "" {
					return backend
				}
			}
		case config.ScopeChannel:
			if !ctx.IsDM && ctx.ChannelID != "" {
				if backend := r.channelRoutes[ctx.ChatBotID][ctx.ChannelID]; backend != "" {
					return backend
				}
			}
		case config.ScopeGuild:
			if ctx.GuildID != "" {
				if backend := r.guildRoutes[ctx.ChatBotID][ctx.GuildID]; backend != "" {
					return backend
				}
			}
		case config.ScopeDefault:
			if backend := r.defaults[ctx.ChatBotID]; backend != "" {
				return backend
			}
		}
	}
	return ""
}
