package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/lumenchat/chatd/internal/bridge"
	"github.com/lumenchat/chatd/internal/config"
	"github.com/lumenchat/chatd/internal/handler"
	"github.com/lumenchat/chatd/internal/history"
	"github.com/lumenchat/chatd/internal/hub"
	"github.com/lumenchat/chatd/internal/log"
	"github.com/lumenchat/chatd/internal/presence"
	"github.com/lumenchat/chatd/internal/reaction"
	"github.com/lumenchat/chatd/internal/service"
	"github.com/lumenchat/chatd/internal/store"
	"github.com/lumenchat/chatd/internal/typing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chatd")

	// Journal
	var journal store.Journal = store.NopJournal{}
	if cfg.Journal.Enabled {
		pj, err := store.OpenPebble(cfg.Journal.Path)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to open journal")
		}
		journal = pj
	}
	defer journal.Close()

	// Message store with replay
	msgStore := store.New(journal)
	if err := msgStore.Replay(context.Background()); err != nil {
		l.Fatal().Err(err).Msg("failed to replay journal")
	}

	// Hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	// Dispatcher: plain hub, or redis relay when bridging is enabled
	var dispatcher service.Dispatcher = wsHub
	if cfg.Bridge.Enabled {
		relay, err := bridge.NewRelay(wsHub, cfg.Bridge)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to connect bridge")
		}
		defer relay.Close()
		relay.Start(context.Background())
		dispatcher = relay
		l.Info().Str("address", cfg.Bridge.Address).Msg("cross-instance bridge enabled")
	}

	// Core components
	registry := presence.NewRegistry()
	typingCoord := typing.NewCoordinator(cfg.Chat.TypingIdle)
	defer typingCoord.Close()
	historySvc := history.NewService(msgStore, cfg.Chat.HistoryPageSize, cfg.Chat.MaxHistoryLimit)
	aggregator := reaction.NewAggregator(msgStore)

	chatSvc := service.NewChatService(dispatcher, registry, msgStore, aggregator, typingCoord, historySvc, cfg.Chat)

	// HTTP surface
	router := mux.NewRouter()
	handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket).RegisterRoutes(router)
	handler.NewHTTPHandler(registry, msgStore, historySvc).RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("chatd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down chatd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("chatd stopped")
}
