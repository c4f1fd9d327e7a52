// Package httpapi is the relay's pull REST surface: health, the
// legacy pending fetch, lease/ack/nack, and the outbound send
// endpoint. Routing follows the teacher's internal/http convention —
// Go 1.22+ http.ServeMux with method-prefixed patterns, one writeJSON
// response helper, bearer-token middleware
// wrapping every handler but health.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/chatrelay/internal/auth"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/ingress"
	"github.com/nextlevelbuilder/chatrelay/internal/queue"
)

// Server holds every dependency the REST handlers need.
type Server struct {
	queue          *queue.Service
	auth           *auth.Service
	sender         ingress.ChatSender
	configPath     string
	chatBotEnabled map[string]bool
	logger         *slog.Logger
}

// New builds a Server. cfg supplies the set of enabled discord_bots[]
// IDs that /v1/messages/send is allowed to target.
func New(queueSvc *queue.Service, authSvc *auth.Service, sender ingress.ChatSender, cfg *config.Config, configPath string, logger *slog.Logger) *Server {
	enabled := make(map[string]bool)
	for _, b := range cfg.DiscordBots {
		if b.Enabled {
			enabled[b.ID] = true
		}
	}
	return &Server{
		queue:          queueSvc,
		auth:           authSvc,
		sender:         sender,
		configPath:     configPath,
		chatBotEnabled: enabled,
		logger:         logger,
	}
}

// Routes builds the ServeMux, wrapping every handler in request
// logging and wrapping every handler but health with bearer-token
// auth.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// requireAuth runs first so the backend_bot_id it resolves into
	// the request context is visible to withLogging; withLogging then
	// wraps the innermost handler so it still times the handler body
	// and not auth itself.
	mux.HandleFunc("GET /v1/health", s.withLogging(s.handleHealth))
	mux.HandleFunc("GET /v1/messages/pending", requireAuth(s.auth, s.withLogging(s.handlePending)))
	mux.HandleFunc("POST /v1/messages/lease", requireAuth(s.auth, s.withLogging(s.handleLease)))
	mux.HandleFunc("POST /v1/messages/ack", requireAuth(s.auth, s.withLogging(s.handleAck)))
	mux.HandleFunc("POST /v1/messages/nack", requireAuth(s.auth, s.withLogging(s.handleNack)))
	mux.HandleFunc("POST /v1/messages/send", requireAuth(s.auth, s.withLogging(s.handleSend)))

	return mux
}
