// Package registry wires the graph store, the planner chat service, and the
// keep-alive evictor into the registry process.
package registry

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/common/logger"
	"github.com/agentmesh/agentmesh/internal/filestore"
	"github.com/agentmesh/agentmesh/internal/gateway"
	"github.com/agentmesh/agentmesh/internal/registry/graph"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

// ChatGateway is the reasoning-loop surface the chat service needs.
type ChatGateway interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessage, transport gateway.ToolTransport) ([]openai.ChatCompletionMessage, string, error)
}

// ToolTransportFactory opens a peer-invocation tool session scoped to one
// identity. Role is "user" for planner chats and "agent" for workers.
type ToolTransportFactory func(agentID, role string) (gateway.ToolTransport, error)

// ChatService drives a user's planner conversation: it loads the transcript,
// ingests inline files, and runs the reasoning loop with user-scoped tools.
type ChatService struct {
	graph   *graph.Store
	gw      ChatGateway
	files   *filestore.Store
	prompt  string
	tools   ToolTransportFactory
	logger  *logger.Logger
}

// NewChatService creates the planner chat service.
func NewChatService(g *graph.Store, gw ChatGateway, files *filestore.Store, plannerPrompt string, tools ToolTransportFactory, log *logger.Logger) *ChatService {
	if log == nil {
		log = logger.Default()
	}
	return &ChatService{
		graph:  g,
		gw:     gw,
		files:  files,
		prompt: plannerPrompt,
		tools:  tools,
		logger: log,
	}
}

// Chat runs one user turn in the named conversation and returns the planner's
// final text. New conversations are seeded with the planner system prompt.
func (s *ChatService) Chat(ctx context.Context, userID, conversationID string, parts []a2a.Part) (string, error) {
	messages, err := s.graph.LoadOrSeedConversation(userID, conversationID, s.prompt)
	if err != nil {
		return "", err
	}

	content, err := s.contentFromParts(parts)
	if err != nil {
		return "", err
	}
	messages = append(messages, gateway.UserMessage(content))

	transport, err := s.tools(userID, "user")
	if err != nil {
		return "", errors.ToolError("failed to open tool transport", err)
	}
	defer transport.Close()

	updated, reply, err := s.gw.Chat(ctx, messages, transport)
	if err != nil {
		return "", err
	}

	if err := s.graph.SaveConversation(userID, conversationID, updated); err != nil {
		return "", err
	}

	s.logger.Info("Planner turn completed",
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID))
	return reply, nil
}

// contentFromParts converts message parts to provider content. Inline files
// are moved into the file store and a synthetic text part announces each
// file's id so the planner can pass it on by reference.
func (s *ChatService) contentFromParts(parts []a2a.Part) ([]openai.ChatMessagePart, error) {
	var content []openai.ChatMessagePart
	for _, part := range parts {
		switch part.Kind {
		case a2a.PartKindText:
			content = append(content, gateway.TextPart(part.Text))
		case a2a.PartKindFile:
			if part.File == nil {
				return nil, errors.InvalidInput("file part without file content")
			}
			fileID := part.File.FileID
			payload := part.File.Bytes
			if payload != "" {
				id, err := s.files.Put(payload, part.File.MimeType)
				if err != nil {
					return nil, err
				}
				fileID = id
			} else {
				file, err := s.files.Get(fileID)
				if err != nil {
					return nil, err
				}
				payload = file.Bytes
			}
			content = append(content,
				gateway.MediaPart(part.File.MimeType, payload),
				gateway.TextPart("the ID of this file is "+fileID))
		default:
			return nil, errors.InvalidInput("unknown part kind: " + part.Kind)
		}
	}
	if len(content) == 0 {
		return nil, errors.InvalidInput("message has no parts")
	}
	return content, nil
}
