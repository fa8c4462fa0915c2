package registry

import (
	"context"
	"time"

	"github.com/agentmesh/agentmesh/internal/common/logger"
	"github.com/agentmesh/agentmesh/internal/registry/graph"
)

// Evictor periodically removes public agents whose keep-alive has lapsed.
type Evictor struct {
	graph     *graph.Store
	interval  time.Duration
	threshold time.Duration
	logger    *logger.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewEvictor creates a keep-alive evictor. The interval must be strictly
// below the threshold; config validation enforces this.
func NewEvictor(g *graph.Store, interval, threshold time.Duration, log *logger.Logger) *Evictor {
	if log == nil {
		log = logger.Default()
	}
	return &Evictor{
		graph:     g,
		interval:  interval,
		threshold: threshold,
		logger:    log,
	}
}

// Start launches the eviction loop.
func (e *Evictor) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.graph.Evict(e.threshold)
			}
		}
	}()
}

// Stop halts the eviction loop and waits for it to exit.
func (e *Evictor) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}
