// Package agenttools implements the two peer-invocation tools exposed to the
// reasoning model: discovering peers through the registry and sending a
// message to a peer over the streaming task protocol. Every runtime and the
// registry's chat endpoint instantiate a tool server scoped to their own
// identity.
package agenttools

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/common/logger"
	"github.com/agentmesh/agentmesh/internal/filestore"
	"github.com/agentmesh/agentmesh/internal/registry/client"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

// Identity roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Identity names the caller a tool session acts for.
type Identity struct {
	AgentID string
	Role    string // user or agent
}

// DiscoveredAgent is one peer returned by the discover tool.
type DiscoveredAgent struct {
	URL  string         `json:"url"`
	Name string         `json:"name"`
	Card *a2a.AgentCard `json:"card,omitempty"`
}

// peerClient is the slice of the task-protocol client the send tool needs.
type peerClient interface {
	SendMessageStreaming(ctx context.Context, params a2a.MessageSendParams, handler func(a2a.StreamEvent) error) error
	GetTask(ctx context.Context, taskID string) (*a2a.Task, error)
}

// Service carries the dependencies of both tools for one identity.
type Service struct {
	identity Identity
	registry client.RegistryClient
	files    *filestore.Store
	logger   *logger.Logger

	// Replaceable in tests.
	resolveCard func(ctx context.Context, url string) (*a2a.AgentCard, error)
	newPeer     func(url string) peerClient
}

// NewService creates the tool service for one identity.
func NewService(identity Identity, registry client.RegistryClient, files *filestore.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		identity:    identity,
		registry:    registry,
		files:       files,
		logger:      log.WithAgentID(identity.AgentID),
		resolveCard: a2a.ResolveCard,
		newPeer: func(url string) peerClient {
			return a2a.NewClient(url)
		},
	}
}

// Discover lists the peers visible to this identity, with each peer's agent
// card fetched from its URL. A peer whose card cannot be fetched is returned
// without one rather than failing the whole discovery.
func (s *Service) Discover(ctx context.Context) ([]DiscoveredAgent, error) {
	agents, err := s.registry.Discover(ctx, s.identity.AgentID)
	if err != nil {
		return nil, errors.ToolError("discovery failed", err)
	}

	result := make([]DiscoveredAgent, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range agents {
		i, agent := i, agent
		result[i] = DiscoveredAgent{URL: agent.URL, Name: agent.Name}
		g.Go(func() error {
			card, err := s.resolveCard(gctx, agent.URL)
			if err != nil {
				s.logger.WithError(err).Warn("Failed to fetch agent card", zap.String("url", agent.URL))
				return nil
			}
			result[i].Card = card
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.ToolError("discovery failed", err)
	}
	return result, nil
}

// SendMessage invokes a peer at agentURL: it opens an interaction edge,
// rewrites file references to inline bytes, streams the message, forwards
// every observed event to the registry, and returns the peer's final task.
// The interaction edge is released on every exit path.
func (s *Service) SendMessage(ctx context.Context, agentURL string, parts []a2a.Part, taskID, contextID string) (*a2a.Task, error) {
	targetID, err := s.lookupByURL(ctx, agentURL)
	if err != nil {
		return nil, err
	}

	if err := s.registry.AddInteraction(ctx, s.identity.AgentID, targetID, a2a.TextOf(parts, "\n")); err != nil {
		return nil, errors.ToolError("failed to add interaction", err)
	}
	defer func() {
		if err := s.registry.DeleteInteraction(context.WithoutCancel(ctx), s.identity.AgentID, targetID); err != nil {
			s.logger.WithError(err).Warn("Failed to delete interaction", zap.String("dst_id", targetID))
		}
	}()

	inlined, err := s.inlineFileParts(parts)
	if err != nil {
		return nil, err
	}

	message := a2a.Message{
		Role:      a2a.RoleUser,
		Parts:     inlined,
		MessageID: a2a.NewID(),
		TaskID:    taskID,
		ContextID: contextID,
	}

	peer := s.newPeer(agentURL)
	finalTaskID := taskID
	err = peer.SendMessageStreaming(ctx, a2a.MessageSendParams{Message: message}, func(ev a2a.StreamEvent) error {
		switch {
		case ev.Task != nil:
			finalTaskID = ev.Task.ID
		case ev.StatusUpdate != nil:
			if finalTaskID == "" {
				finalTaskID = ev.StatusUpdate.TaskID
			}
		case ev.ArtifactUpdate != nil:
			if finalTaskID == "" {
				finalTaskID = ev.ArtifactUpdate.TaskID
			}
		}
		s.forward(ctx, ev)
		return nil
	})
	if err != nil {
		return nil, errors.ToolError("streaming session failed", err)
	}
	if finalTaskID == "" {
		return nil, errors.ToolError("peer produced no task", nil)
	}

	task, err := peer.GetTask(ctx, finalTaskID)
	if err != nil {
		return nil, errors.ToolError("failed to fetch final task", err)
	}
	return task, nil
}

// lookupByURL resolves a peer's agent id by matching discovery output.
func (s *Service) lookupByURL(ctx context.Context, agentURL string) (string, error) {
	agents, err := s.registry.Discover(ctx, s.identity.AgentID)
	if err != nil {
		return "", errors.ToolError("discovery failed", err)
	}
	want := strings.TrimRight(agentURL, "/")
	for _, agent := range agents {
		if strings.TrimRight(agent.URL, "/") == want {
			return agent.AgentID, nil
		}
	}
	return "", errors.ToolError("no visible agent at "+agentURL, nil)
}

// inlineFileParts replaces file-id references with inline bytes so the
// receiver never needs file store access for this message.
func (s *Service) inlineFileParts(parts []a2a.Part) ([]a2a.Part, error) {
	out := make([]a2a.Part, len(parts))
	for i, part := range parts {
		out[i] = part
		if part.Kind != a2a.PartKindFile || part.File == nil || part.File.FileID == "" {
			continue
		}
		file, err := s.files.Get(part.File.FileID)
		if err != nil {
			return nil, errors.ToolError("unknown file id "+part.File.FileID, err)
		}
		out[i] = a2a.NewFilePart(file.Bytes, file.MediaType)
	}
	return out, nil
}

// forward pushes a stream event into the registry's event store. Only user
// identities own an event log; forwarding failures are logged, not fatal to
// the stream.
func (s *Service) forward(ctx context.Context, ev a2a.StreamEvent) {
	if s.identity.Role != RoleUser {
		return
	}

	var err error
	switch {
	case ev.Task != nil:
		err = s.registry.ForwardTask(ctx, s.identity.AgentID, ev.Task)
	case ev.StatusUpdate != nil:
		err = s.registry.ForwardTaskStatus(ctx, s.identity.AgentID, ev.StatusUpdate)
	case ev.ArtifactUpdate != nil:
		err = s.registry.ForwardTaskArtifact(ctx, s.identity.AgentID, ev.ArtifactUpdate)
	}
	if err != nil {
		s.logger.WithError(err).Warn("Failed to forward stream event")
	}
}
