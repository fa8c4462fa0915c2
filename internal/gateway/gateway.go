// Package gateway adapts the mesh to one reasoning-model provider. It owns
// the multi-turn chat loop: advertise tools, send the transcript, execute the
// provider's tool calls, and repeat until the provider produces a final
// answer.
package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/config"
	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/common/logger"
)

// maxToolRounds bounds the reasoning loop against a provider that never stops
// calling tools.
const maxToolRounds = 50

// ToolDef describes one tool advertised to the provider.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema
}

// ToolTransport enumerates and executes tools on behalf of the reasoning
// loop. Implementations wrap an MCP session scoped to the calling identity.
type ToolTransport interface {
	ListTools(ctx context.Context) ([]ToolDef, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Close() error
}

// completer is the slice of the provider client the loop needs.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Gateway drives chat completions against the configured provider.
type Gateway struct {
	client       completer
	model        string
	toolsEnabled bool
	logger       *logger.Logger
}

// New creates a gateway from provider and proxy configuration.
func New(cfg config.APIServiceConfig, proxy config.ProxyConfig, log *logger.Logger) (*Gateway, error) {
	if log == nil {
		log = logger.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if proxy.Enabled && proxy.URL != "" {
		proxyURL, err := url.Parse(proxy.URL)
		if err != nil {
			return nil, errors.InvalidInput("invalid proxy url: " + proxy.URL)
		}
		clientCfg.HTTPClient = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	return &Gateway{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		toolsEnabled: cfg.Tools,
		logger:       log,
	}, nil
}

// Chat runs the reasoning loop: it sends the transcript plus the transport's
// tool catalog to the provider, executes the first tool call of every
// tool-call response, and returns once the provider answers without calling a
// tool. The returned transcript includes every assistant and tool message
// appended along the way; the string is the final assistant text.
func (g *Gateway) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, transport ToolTransport) ([]openai.ChatCompletionMessage, string, error) {
	var tools []openai.Tool
	if transport != nil && g.toolsEnabled {
		defs, err := transport.ListTools(ctx)
		if err != nil {
			return messages, "", errors.GatewayError("failed to list tools", err)
		}
		for _, def := range defs {
			tools = append(tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.Parameters,
				},
			})
		}
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    g.model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return messages, "", errors.GatewayError("provider request failed", err)
		}
		if len(resp.Choices) == 0 {
			return messages, "", errors.GatewayError("provider returned no choices", nil)
		}

		choice := resp.Choices[0]
		if choice.FinishReason != openai.FinishReasonToolCalls || len(choice.Message.ToolCalls) == 0 {
			messages = append(messages, choice.Message)
			return messages, choice.Message.Content, nil
		}

		// Only the first call of a multi-call response is executed; the
		// provider re-issues the rest on the next round.
		call := choice.Message.ToolCalls[0]
		messages = append(messages, choice.Message)

		args, err := parseToolArguments(call.Function.Arguments)
		if err != nil {
			return messages, "", errors.GatewayError("unparsable tool arguments", err)
		}

		g.logger.Info("Executing tool call",
			zap.String("tool", call.Function.Name),
			zap.String("call_id", call.ID))

		result, err := transport.CallTool(ctx, call.Function.Name, args)
		if err != nil {
			// Fed back to the provider so it can recover or report.
			result = "tool error: " + err.Error()
			g.logger.WithError(err).Warn("Tool call failed", zap.String("tool", call.Function.Name))
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    result,
			ToolCallID: call.ID,
		})
	}

	return messages, "", errors.GatewayError("tool loop exceeded maximum rounds", nil)
}

// parseToolArguments decodes a tool call's arguments, tolerating prose around
// the JSON body by slicing from the first '{' to the last '}'.
func parseToolArguments(raw string) (map[string]interface{}, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, errors.InvalidInput("no JSON object in tool arguments")
	}
	return decodeArgs(raw[start : end+1])
}
