// Package main is the entry point for the NeuralHub server. A single binary
// runs the API server (JSON-RPC tool surface and REST routes) and the message
// hub (WebSocket push) with shared infrastructure.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/agent/registry"
	"github.com/neuralhub/neuralhub/internal/auth"
	"github.com/neuralhub/neuralhub/internal/cache"
	"github.com/neuralhub/neuralhub/internal/common/config"
	"github.com/neuralhub/neuralhub/internal/common/database"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/common/tracing"
	"github.com/neuralhub/neuralhub/internal/events/bus"
	"github.com/neuralhub/neuralhub/internal/hub"
	"github.com/neuralhub/neuralhub/internal/memory"
	"github.com/neuralhub/neuralhub/internal/memory/sqlstore"
	"github.com/neuralhub/neuralhub/internal/notify"
	"github.com/neuralhub/neuralhub/internal/router"
	"github.com/neuralhub/neuralhub/internal/session"
	"github.com/neuralhub/neuralhub/internal/tools"
	"github.com/neuralhub/neuralhub/internal/vector"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting NeuralHub...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Open the primary store
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	vec := vector.NewFromConfig(cfg.Vector, log)
	store, err := sqlstore.New(db, vec, cfg.Vector.IndexWrites, log)
	if err != nil {
		log.Fatal("Failed to initialize store", zap.Error(err))
	}

	// 4. Event bus: in-memory by default, NATS when configured
	eventBus, err := bus.NewFromConfig(cfg.NATS, log)
	if err != nil {
		log.Fatal("Failed to connect event bus", zap.Error(err))
	}
	defer eventBus.Close()

	// 5. Shared components
	c := cache.New(cfg.Cache.TTLDuration())
	defer c.Close()

	reg := registry.New(store, c, eventBus,
		cfg.Registry.StaleAfterDuration(), cfg.Registry.SweepInterval(), log)
	reg.StartSweeper(ctx)
	defer reg.Stop()

	rt := router.New(store, reg, eventBus, log)
	sm := session.New(store, eventBus,
		cfg.Session.HandoffRetention(), cfg.Session.ContextLearnings, cfg.Session.ContextEntities, log)

	dispatcher, err := tools.New(store, reg, rt, sm, c, log)
	if err != nil {
		log.Fatal("Failed to build tool dispatcher", zap.Error(err))
	}

	// 6. Authentication
	if err := bootstrapAuth(ctx, store, cfg.Auth); err != nil {
		log.Fatal("Failed to bootstrap credentials", zap.Error(err))
	}
	resolver := auth.NewResolver(store, cfg.Auth, log)
	limiter := auth.NewRateLimiter(cfg.RateLimit)

	// 7. WebSocket fan-out and optional Slack notifier
	wshub := hub.NewWSHub(reg, log)
	if err := wshub.Start(eventBus); err != nil {
		log.Fatal("Failed to start websocket hub", zap.Error(err))
	}
	defer wshub.Stop()

	if notifier := notify.NewSlackNotifier(cfg.Slack, log); notifier != nil {
		if err := notifier.Start(eventBus); err != nil {
			log.Warn("Failed to start slack notifier", zap.Error(err))
		} else {
			defer notifier.Stop()
		}
	}

	// 8. HTTP servers
	apiServer := hub.NewServer(cfg, store, reg, rt, dispatcher, wshub, eventBus, vec, resolver, limiter, log)
	wsServer := hub.NewWSServer(cfg, wshub, resolver, limiter, log)

	errCh := make(chan error, 2)
	go func() { errCh <- apiServer.Start() }()
	go func() { errCh <- wsServer.Start() }()

	// 9. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("API server shutdown failed", zap.Error(err))
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Hub server shutdown failed", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Warn("Tracer shutdown failed", zap.Error(err))
	}

	log.Info("NeuralHub stopped")
}

// bootstrapAuth seeds the default tenant and, when a bootstrap API key is
// configured, maps it to that tenant. Idempotent across restarts.
func bootstrapAuth(ctx context.Context, store memory.Store, cfg config.AuthConfig) error {
	tenant := cfg.DefaultTenant
	if tenant == "" {
		tenant = "default"
	}
	if err := store.EnsureTenant(ctx, tenant); err != nil {
		return err
	}
	if cfg.BootstrapKey == "" {
		return nil
	}
	return store.EnsureAPIKey(ctx, &memory.APIKey{
		ID:       uuid.New().String(),
		TenantID: tenant,
		UserID:   "bootstrap",
		KeyHash:  auth.HashKey(cfg.BootstrapKey),
		Scopes:   nil,
	})
}
