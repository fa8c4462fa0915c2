package agenttools

import (
	"context"
	"encoding/json"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/common/logger"
	"github.com/agentmesh/agentmesh/internal/filestore"
	"github.com/agentmesh/agentmesh/internal/gateway"
	"github.com/agentmesh/agentmesh/internal/registry/client"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

const serverVersion = "1.0.0"

// NewMCPServer builds the MCP server exposing the two peer-invocation tools
// backed by svc.
func NewMCPServer(svc *Service) *server.MCPServer {
	s := server.NewMCPServer(
		"agentmesh-tools",
		serverVersion,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("agent_discover",
			mcp.WithDescription("Discover the agents in the network that are visible to you. "+
				"Returns each agent's URL, name and agent card describing its skills."),
		),
		discoverHandler(svc),
	)

	s.AddTool(
		mcp.NewTool("agent_send_message",
			mcp.WithDescription("Send a message to another agent in the network and wait for its final task result. "+
				"Use agent_discover first to learn the available agent URLs."),
			mcp.WithString("agent_url",
				mcp.Required(),
				mcp.Description("The URL of the destination agent, as returned by agent_discover"),
			),
			mcp.WithArray("parts",
				mcp.Required(),
				mcp.Description(`The message parts. Each part is {"kind":"text","text":...} or `+
					`{"kind":"file","file":{"file_id":...,"mimeType":...}}`),
				mcp.Items(map[string]any{"type": "object"}),
			),
			mcp.WithString("task_id",
				mcp.Description("Task id to resume a previous exchange with the same agent (optional)"),
			),
			mcp.WithString("context_id",
				mcp.Description("Context id grouping related tasks (optional)"),
			),
		),
		sendMessageHandler(svc),
	)

	return s
}

func discoverHandler(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agents, err := svc.Discover(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		formatted, err := json.Marshal(agents)
		if err != nil {
			return mcp.NewToolResultError("failed to encode discovery result: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

func sendMessageHandler(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentURL, err := req.RequireString("agent_url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		parts, err := partsArgument(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := svc.SendMessage(ctx, agentURL, parts,
			req.GetString("task_id", ""),
			req.GetString("context_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		formatted, err := json.Marshal(task)
		if err != nil {
			return mcp.NewToolResultError("failed to encode task: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(formatted)), nil
	}
}

// partsArgument decodes the tool's parts argument into message parts.
func partsArgument(args map[string]any) ([]a2a.Part, error) {
	raw, ok := args["parts"]
	if !ok {
		return nil, errors.InvalidInput("missing required argument: parts")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.InvalidInput("invalid parts argument")
	}
	var parts []a2a.Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, errors.InvalidInput("invalid parts argument: " + err.Error())
	}
	if len(parts) == 0 {
		return nil, errors.InvalidInput("parts must not be empty")
	}
	return parts, nil
}

// mcpTransport adapts an MCP client session to the gateway's tool transport.
type mcpTransport struct {
	client *mcpclient.Client
}

var _ gateway.ToolTransport = (*mcpTransport)(nil)

// NewTransport opens an in-process MCP session scoped to the given identity.
// The returned transport is what the reasoning loop drives; closing it ends
// the session.
func NewTransport(ctx context.Context, identity Identity, registry client.RegistryClient, files *filestore.Store, log *logger.Logger) (gateway.ToolTransport, error) {
	svc := NewService(identity, registry, files, log)
	mcpServer := NewMCPServer(svc)

	c, err := mcpclient.NewInProcessClient(mcpServer)
	if err != nil {
		return nil, errors.ToolError("failed to create tool client", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, errors.ToolError("failed to start tool client", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentmesh", Version: serverVersion}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, errors.ToolError("failed to initialize tool session", err)
	}

	return &mcpTransport{client: c}, nil
}

func (t *mcpTransport) ListTools(ctx context.Context) ([]gateway.ToolDef, error) {
	result, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	defs := make([]gateway.ToolDef, 0, len(result.Tools))
	for _, tool := range result.Tools {
		schema, err := schemaMap(tool.InputSchema)
		if err != nil {
			return nil, err
		}
		defs = append(defs, gateway.ToolDef{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		})
	}
	return defs, nil
}

func (t *mcpTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := t.client.CallTool(ctx, req)
	if err != nil {
		return "", err
	}

	var texts []string
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if result.IsError {
		return "", errors.ToolError(text, nil)
	}
	return text, nil
}

func (t *mcpTransport) Close() error {
	return t.client.Close()
}

func schemaMap(schema mcp.ToolInputSchema) (map[string]interface{}, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
