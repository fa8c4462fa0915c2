// Package runtime implements a worker agent: a single process that serves the
// streaming task protocol, keeps itself registered with the registry, and
// answers each incoming task with one pass of the reasoning loop. Workers
// differ only by configuration; the code is the same for every personality.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/config"
	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/common/logger"
	"github.com/agentmesh/agentmesh/internal/events/bus"
	"github.com/agentmesh/agentmesh/internal/filestore"
	"github.com/agentmesh/agentmesh/internal/gateway"
	"github.com/agentmesh/agentmesh/internal/registry/client"
	"github.com/agentmesh/agentmesh/pkg/a2a"
	v1 "github.com/agentmesh/agentmesh/pkg/api/v1"
)

const defaultCardVersion = "1.0.0"

// chatGateway is the reasoning-loop surface the executor needs.
type chatGateway interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessage, transport gateway.ToolTransport) ([]openai.ChatCompletionMessage, string, error)
}

// ToolTransportFactory opens a peer-invocation tool session scoped to this
// worker's identity.
type ToolTransportFactory func(agentID, role string) (gateway.ToolTransport, error)

// Worker is one agent personality: its card, its task executor, and its
// registration lifecycle against the registry.
type Worker struct {
	name     string
	cfg      config.AgentConfig
	system   config.SystemConfig
	registry client.RegistryClient
	gw       chatGateway
	files    *filestore.Store
	bus      bus.EventBus
	tools    ToolTransportFactory
	tasks    *TaskStore
	logger   *logger.Logger

	mu      sync.RWMutex
	agentID string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a worker from its configuration entry.
func NewWorker(name string, cfg config.AgentConfig, system config.SystemConfig, registry client.RegistryClient, gw chatGateway, files *filestore.Store, eventBus bus.EventBus, tools ToolTransportFactory, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Default()
	}
	return &Worker{
		name:     name,
		cfg:      cfg,
		system:   system,
		registry: registry,
		gw:       gw,
		files:    files,
		bus:      eventBus,
		tools:    tools,
		tasks:    NewTaskStore(),
		logger:   log.WithFields(zap.String("agent", name)),
	}
}

// URL returns the base URL this worker serves on.
func (w *Worker) URL() string {
	return fmt.Sprintf("http://localhost:%d", w.cfg.Port)
}

// AgentID returns the id the registry assigned on registration.
func (w *Worker) AgentID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.agentID
}

// Card builds the self-description served from the well-known endpoint.
func (w *Worker) Card() a2a.AgentCard {
	version := w.cfg.Version
	if version == "" {
		version = defaultCardVersion
	}
	skills := make([]a2a.AgentSkill, 0, len(w.cfg.Skills))
	for _, s := range w.cfg.Skills {
		skills = append(skills, a2a.AgentSkill{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
		})
	}
	inputModes := append([]string{"text/plain"}, w.system.SupportedMediaTypes...)
	return a2a.AgentCard{
		Name:               w.name,
		Description:        w.cfg.Description,
		URL:                w.URL(),
		Version:            version,
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		Skills:             skills,
		DefaultInputModes:  inputModes,
		DefaultOutputModes: []string{"text/plain"},
	}
}

// Start registers the worker and launches the keep-alive loop. The worker
// re-registers when the registry has evicted it between heartbeats.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.register(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.keepAliveLoop(ctx)
	return nil
}

// Stop ends the keep-alive loop and unregisters from the registry.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.registry.Unregister(ctx, w.AgentID()); err != nil {
		w.logger.WithError(err).Warn("Failed to unregister")
	}
}

func (w *Worker) register(ctx context.Context) error {
	req := v1.RegisterAgentRequest{
		Name:     w.name,
		URL:      w.URL(),
		Category: w.cfg.Category,
		Expose:   w.cfg.Expose,
	}
	if w.cfg.VisibleTo != nil {
		visibleTo := w.cfg.VisibleTo
		req.VisibleTo = &visibleTo
	}

	agentID, err := w.registry.Register(ctx, req)
	if err != nil {
		return errors.Wrap(err, "registration failed")
	}

	w.mu.Lock()
	w.agentID = agentID
	w.mu.Unlock()

	w.logger.Info("Registered with registry",
		zap.String("agent_id", agentID),
		zap.String("url", w.URL()))
	return nil
}

func (w *Worker) keepAliveLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.system.KeepAliveIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.registry.KeepAlive(ctx, w.AgentID())
			if err == nil {
				continue
			}
			if errors.IsNotFound(err) {
				// Evicted while we were away; re-register under a new id.
				w.logger.Warn("Registration lost, re-registering")
				if err := w.register(ctx); err != nil {
					w.logger.WithError(err).Error("Re-registration failed")
				}
				continue
			}
			w.logger.WithError(err).Warn("Keep-alive failed")
		}
	}
}
