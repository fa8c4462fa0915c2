// Package main is the entry point for a worker agent. The personality is
// selected by name from the agents section of the configuration; every worker
// runs the same code.
package main

import (
	"context"
	"flag"
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
	"github.com/agentmesh/agentmesh/internal/events/bus"
	"github.com/agentmesh/agentmesh/internal/filestore"
	"github.com/agentmesh/agentmesh/internal/gateway"
	regclient "github.com/agentmesh/agentmesh/internal/registry/client"
	"github.com/agentmesh/agentmesh/internal/runtime"
)

func main() {
	var agentName string
	flag.StringVar(&agentName, "name", os.Getenv("AGENTMESH_AGENT"), "agent personality to run (key under agents in config)")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	agentCfg, ok := cfg.Agents[agentName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown agent %q: not present in the agents configuration\n", agentName)
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
	log = log.WithFields(zap.String("agent", agentName))

	log.Info("Starting worker agent...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Open the shared file store. The registry owns its lifecycle; the
	// worker only reads and writes entries.
	files, err := filestore.New(cfg.FileStore.Dir, log)
	if err != nil {
		log.Fatal("Failed to open file store", zap.Error(err))
	}

	// 5. Select the event bus: NATS when configured, in-memory otherwise
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		eventBus, err = bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		log.Info("Connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	} else {
		eventBus = bus.NewMemoryEventBus(log)
	}
	defer eventBus.Close()

	// 6. Create the reasoning-model gateway
	gw, err := gateway.New(cfg.APIService, cfg.Proxy, log)
	if err != nil {
		log.Fatal("Failed to initialize model gateway", zap.Error(err))
	}

	// 7. Create the registry client and the tool transport factory
	registry := regclient.New(cfg.System.RegistryURL())
	tools := func(agentID, role string) (gateway.ToolTransport, error) {
		return agenttools.NewTransport(ctx, agenttools.Identity{AgentID: agentID, Role: role}, registry, files, log)
	}

	// 8. Create the worker
	worker := runtime.NewWorker(agentName, agentCfg, cfg.System, registry, gw, files, eventBus, tools, log)

	// 9. Register with the registry, retrying until it is reachable
	for {
		if err := worker.Start(ctx); err == nil {
			break
		} else {
			log.WithError(err).Warn("Registration failed, retrying")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}

	// 10. Setup HTTP server
	router := runtime.NewServer(worker, log).SetupRouter()
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", agentCfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.System.ReadTimeoutDuration(),
		WriteTimeout: cfg.System.WriteTimeoutDuration(),
	}

	// 11. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", agentCfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 12. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker agent...")

	// 13. Graceful shutdown: stop heartbeats and unregister, then drain HTTP
	worker.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Worker agent stopped")
}
