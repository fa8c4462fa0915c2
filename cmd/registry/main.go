// Package main is the entry point for the registry service: the graph of
// agents and users, the planner chat endpoint, and the event log.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/agenttools"
	"github.com/agentmesh/agentmesh/internal/common/config"
	"github.com/agentmesh/agentmesh/internal/common/logger"
	"github.com/agentmesh/agentmesh/internal/filestore"
	"github.com/agentmesh/agentmesh/internal/gateway"
	"github.com/agentmesh/agentmesh/internal/registry"
	"github.com/agentmesh/agentmesh/internal/registry/api"
	regclient "github.com/agentmesh/agentmesh/internal/registry/client"
	"github.com/agentmesh/agentmesh/internal/registry/graph"
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

	log.Info("Starting registry service...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize the file store. The registry owns the store's lifecycle
	// and starts every run from an empty one.
	files, err := filestore.New(cfg.FileStore.Dir, log)
	if err != nil {
		log.Fatal("Failed to initialize file store", zap.Error(err))
	}
	if err := files.ClearAll(); err != nil {
		log.Fatal("Failed to clear file store", zap.Error(err))
	}

	// 5. Create the graph store
	graphStore := graph.NewStore(log)

	// 6. Create the reasoning-model gateway
	gw, err := gateway.New(cfg.APIService, cfg.Proxy, log)
	if err != nil {
		log.Fatal("Failed to initialize model gateway", zap.Error(err))
	}

	// 7. Wire the planner's tool transport. Tool calls go through the
	// registry's own HTTP API so they behave exactly like a worker's.
	loopback := regclient.New(cfg.System.RegistryURL())
	tools := func(agentID, role string) (gateway.ToolTransport, error) {
		return agenttools.NewTransport(ctx, agenttools.Identity{AgentID: agentID, Role: role}, loopback, files, log)
	}

	// 8. Create the planner chat service
	chat := registry.NewChatService(graphStore, gw, files, cfg.PlannerPrompt(), tools, log)

	// 9. Start the keep-alive evictor
	evictor := registry.NewEvictor(graphStore,
		cfg.System.KeepAliveIntervalDuration(),
		cfg.System.KeepAliveThresholdDuration(),
		log)
	evictor.Start(ctx)

	// 10. Setup HTTP server
	handlers := api.NewHandlers(graphStore, chat, log)
	router := api.SetupRouter(handlers, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.System.Port),
		Handler:      router,
		ReadTimeout:  cfg.System.ReadTimeoutDuration(),
		WriteTimeout: cfg.System.WriteTimeoutDuration(),
	}

	// 11. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.System.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 12. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down registry service...")

	// 13. Graceful shutdown
	cancel()
	evictor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Registry service stopped")
}
