package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jovemegidio/concord-sync/config"
	"github.com/jovemegidio/concord-sync/internal/gateway"
	"github.com/jovemegidio/concord-sync/internal/postgres"
	"github.com/jovemegidio/concord-sync/internal/presence"
	"github.com/jovemegidio/concord-sync/internal/registry"
	"github.com/jovemegidio/concord-sync/internal/rooms"
	"github.com/jovemegidio/concord-sync/internal/security"
	httpx "github.com/jovemegidio/concord-sync/internal/transport/http"
	"github.com/jovemegidio/concord-sync/internal/transport/ws"
	"github.com/jovemegidio/concord-sync/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting sync-core",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- presence store ---
	ctx := context.Background()

	var store presence.Store
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		pg := postgres.NewPresenceStore(pool)
		store = pg

		// Фоновая уборка протухших presence-записей: TTL скрывает их
		// от чтения, но строки упавших процессов надо удалять физически.
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if n, err := pg.Sweep(ctx); err != nil {
					slog.Warn("presence sweep failed", "err", err)
				} else if n > 0 {
					slog.Debug("presence sweep", "removed", n)
				}
			}
		}()
	} else {
		slog.Warn("postgres dsn empty, presence is process-local")
		store = presence.NewMemStore()
	}

	tracker := presence.NewTracker(store)
	tracker.SetTTL(cfg.PresenceTTL())

	// --- auth ---
	pemBytes, err := os.ReadFile(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("read jwt public key: %v", err)
	}
	pub, err := security.LoadRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		log.Fatalf("parse jwt public key: %v", err)
	}
	verifier := security.NewTokenVerifier(pub, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.ClockSkew())

	// --- core: registry, rooms, gateway ---
	reg := registry.New()
	router := rooms.NewRouter()
	gw := gateway.New(reg, router, tracker)

	// --- transport ---
	wsServer := ws.NewServer(gw, verifier)
	handler := httpx.NewHandler(gw)
	mux := httpx.NewRouter(handler, wsServer, cfg.Internal.Token, cfg.HTTP.AllowedOrigins)

	httpSrv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// WriteTimeout ставить нельзя: он убивает долгоживущие WS.
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
