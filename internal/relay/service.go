// Package relay wires the durable queue, webhook dispatcher, lease
// reaper, REST API, and chat ingress into one Service value with
// explicit Start/Stop — the re-architected form of a process-wide app
// framework with lifespan hooks (SPEC_FULL.md §9): no globals, no
// framework-owned goroutines, just a value the entrypoint owns.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/auth"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/httpapi"
	"github.com/nextlevelbuilder/chatrelay/internal/ingress"
	"github.com/nextlevelbuilder/chatrelay/internal/ingress/discord"
	"github.com/nextlevelbuilder/chatrelay/internal/queue"
	"github.com/nextlevelbuilder/chatrelay/internal/queuework"
	"github.com/nextlevelbuilder/chatrelay/internal/reaper"
	"github.com/nextlevelbuilder/chatrelay/internal/routing"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
	"github.com/nextlevelbuilder/chatrelay/internal/store/pg"
	"github.com/nextlevelbuilder/chatrelay/internal/webhook"
)

const defaultWorkerPoolSize = 16

// Service owns every long-lived piece of the relay. Build one with
// New, call Start, and Stop it on shutdown.
type Service struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger

	st         store.Store
	pool       *queuework.Pool
	router     *routing.Router
	authSvc    *auth.Service
	queueSvc   *queue.Service
	dispatcher *webhook.Dispatcher
	reap       *reaper.Reaper
	ingressAdp *discord.Adapter
	httpSrv    *http.Server
}

// New validates cfg's dependent components (router, auth) and opens
// the store, but does not yet start any background work — that's
// Start's job.
func New(cfg *config.Config, configPath string, logger *slog.Logger) (*Service, error) {
	router, err := routing.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("relay: build router: %w", err)
	}
	authSvc, err := auth.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("relay: build auth: %w", err)
	}

	if err := pg.Migrate(cfg.Storage.DatabaseURL); err != nil {
		return nil, fmt.Errorf("relay: migrate: %w", err)
	}
	db, err := pg.Open(cfg.Storage.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("relay: open store: %w", err)
	}
	st := pg.New(db)

	pool := queuework.New(defaultWorkerPoolSize)
	queueSvc := queue.New(st, pool, cfg, logger)
	dispatcher := webhook.New(st, pool, cfg, logger, time.Second)
	reap := reaper.New(cfg.Reap, queueSvc.ReapExpiredLeases, logger)

	ingressAdp, err := discord.New(cfg.DiscordBots, logger)
	if err != nil {
		pool.Stop()
		st.Close()
		return nil, fmt.Errorf("relay: build discord adapter: %w", err)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.BindHost, cfg.Server.BindPort),
		Handler: httpapi.New(queueSvc, authSvc, ingressAdp, cfg, configPath, logger).Routes(),
	}

	return &Service{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		st:         st,
		pool:       pool,
		router:     router,
		authSvc:    authSvc,
		queueSvc:   queueSvc,
		dispatcher: dispatcher,
		reap:       reap,
		ingressAdp: ingressAdp,
		httpSrv:    httpSrv,
	}, nil
}

// Start opens the chat ingress connection(s), launches the webhook
// dispatcher and lease reaper, and begins serving HTTP. It returns
// once the HTTP listener is accepting connections; the listen loop
// itself runs in a background goroutine.
func (s *Service) Start(ctx context.Context) error {
	if err := s.ingressAdp.Start(ctx, s.handleInboundMessage); err != nil {
		return fmt.Errorf("relay: start ingress: %w", err)
	}

	s.dispatcher.Start(ctx)
	s.reap.Start(ctx)

	ln, err := newListener(s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("relay: listen: %w", err)
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server exited", "error", err)
		}
	}()

	s.logger.Info("relay started", "addr", s.httpSrv.Addr)
	return nil
}

// handleInboundMessage routes an ingress.MessageEvent to exactly one
// backend and enqueues it; unroutable messages are logged and
// dropped.
func (s *Service) handleInboundMessage(ctx context.Context, evt ingress.MessageEvent) {
	backendID := s.router.Resolve(routing.Context{
		ChatBotID: evt.ChatBotID,
		AuthorID:  evt.AuthorID,
		ChannelID: evt.ChannelID,
		GuildID:   evt.GuildID,
		IsDM:      evt.IsDM,
	})
	if backendID == "" {
		s.logger.Warn("no backend resolved for inbound message",
			"chat_bot_id", evt.ChatBotID, "channel_id", evt.ChannelID, "guild_id", evt.GuildID)
		return
	}

	dedupeKey := fmt.Sprintf("%s:%s", evt.ChatBotID, evt.ChatMessageID)
	msg := toModelMessage(evt, dedupeKey)

	if _, err := s.queueSvc.Enqueue(ctx, backendID, msg); err != nil {
		s.logger.Error("enqueue failed", "chat_bot_id", evt.ChatBotID, "error", err)
	}
}

// Stop cancels the dispatcher and reaper, closes the HTTP server and
// ingress connections, and releases the store. Safe to call once.
func (s *Service) Stop(ctx context.Context) error {
	s.dispatcher.Stop()
	s.reap.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http server shutdown error", "error", err)
	}

	if err := s.ingressAdp.Stop(ctx); err != nil {
		s.logger.Error("ingress stop error", "error", err)
	}

	s.pool.Stop()
	return s.st.Close()
}
