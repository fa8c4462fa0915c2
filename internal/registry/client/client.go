// Package client provides the HTTP client that workers and peer-invocation
// tools use against the registry service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/pkg/a2a"
	v1 "github.com/agentmesh/agentmesh/pkg/api/v1"
)

// RegistryClient is the registry surface the rest of the mesh depends on.
type RegistryClient interface {
	Register(ctx context.Context, req v1.RegisterAgentRequest) (string, error)
	KeepAlive(ctx context.Context, agentID string) error
	Unregister(ctx context.Context, agentID string) error
	Discover(ctx context.Context, agentID string) ([]v1.AgentInfo, error)

	AddInteraction(ctx context.Context, srcID, dstID, message string) error
	DeleteInteraction(ctx context.Context, srcID, dstID string) error

	TaskCountAdd(ctx context.Context, agentID string) error
	TaskCountDelete(ctx context.Context, agentID string) error

	ForwardTask(ctx context.Context, userID string, task *a2a.Task) error
	ForwardTaskStatus(ctx context.Context, userID string, ev *a2a.TaskStatusUpdateEvent) error
	ForwardTaskArtifact(ctx context.Context, userID string, ev *a2a.TaskArtifactUpdateEvent) error
}

// HTTPClient implements RegistryClient over the registry's JSON API.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
}

var _ RegistryClient = (*HTTPClient)(nil)

// New creates a client for the registry at baseURL.
func New(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Register registers a public agent and returns its allocated id.
func (c *HTTPClient) Register(ctx context.Context, req v1.RegisterAgentRequest) (string, error) {
	var resp v1.RegisterAgentResponse
	if err := c.post(ctx, "/agents/register", req, &resp); err != nil {
		return "", err
	}
	if resp.AgentID == "" {
		return "", errors.InternalError("registry returned no agent id", nil)
	}
	return resp.AgentID, nil
}

// KeepAlive refreshes the agent's liveness. A NOT_FOUND error means the
// registry evicted the agent and it should re-register.
func (c *HTTPClient) KeepAlive(ctx context.Context, agentID string) error {
	return c.post(ctx, "/agents/keepalive", v1.AgentIDRequest{AgentID: agentID}, nil)
}

// Unregister removes the agent from the registry.
func (c *HTTPClient) Unregister(ctx context.Context, agentID string) error {
	return c.post(ctx, "/agents/unregister", v1.AgentIDRequest{AgentID: agentID}, nil)
}

// Discover returns the public agents visible to the requester.
func (c *HTTPClient) Discover(ctx context.Context, agentID string) ([]v1.AgentInfo, error) {
	var env v1.TypedEnvelope[[]v1.AgentInfo]
	if err := c.post(ctx, "/agents/discover", v1.AgentIDRequest{AgentID: agentID}, &env); err != nil {
		return nil, err
	}
	return env.Content, nil
}

// AddInteraction opens a directed interaction edge.
func (c *HTTPClient) AddInteraction(ctx context.Context, srcID, dstID, message string) error {
	return c.post(ctx, "/interactions/add", v1.InteractionAddRequest{
		SrcID:   srcID,
		DstID:   dstID,
		Message: message,
	}, nil)
}

// DeleteInteraction closes a directed interaction edge.
func (c *HTTPClient) DeleteInteraction(ctx context.Context, srcID, dstID string) error {
	return c.post(ctx, "/interactions/delete", v1.InteractionDeleteRequest{
		SrcID: srcID,
		DstID: dstID,
	}, nil)
}

// TaskCountAdd increments the agent's in-flight counter.
func (c *HTTPClient) TaskCountAdd(ctx context.Context, agentID string) error {
	return c.post(ctx, "/task_count/add", v1.AgentIDRequest{AgentID: agentID}, nil)
}

// TaskCountDelete decrements the agent's in-flight counter.
func (c *HTTPClient) TaskCountDelete(ctx context.Context, agentID string) error {
	return c.post(ctx, "/task_count/delete", v1.AgentIDRequest{AgentID: agentID}, nil)
}

// ForwardTask stores a full task snapshot under a user.
func (c *HTTPClient) ForwardTask(ctx context.Context, userID string, task *a2a.Task) error {
	return c.post(ctx, "/events/task/"+userID, task, nil)
}

// ForwardTaskStatus forwards a status update event.
func (c *HTTPClient) ForwardTaskStatus(ctx context.Context, userID string, ev *a2a.TaskStatusUpdateEvent) error {
	return c.post(ctx, "/events/task_status/"+userID, ev, nil)
}

// ForwardTaskArtifact forwards an artifact update event.
func (c *HTTPClient) ForwardTaskArtifact(ctx context.Context, userID string, ev *a2a.TaskArtifactUpdateEvent) error {
	return c.post(ctx, "/events/task_artifact/"+userID, ev, nil)
}

// post sends a JSON request and decodes the response into out when non-nil.
// Error envelopes come back as AppErrors carrying the registry's code.
func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.InternalError("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return errors.InternalError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("registry request %s failed", path))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.InternalError("read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, payload)
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return errors.InternalError("decode response", err)
		}
	}
	return nil
}

// decodeError maps an error envelope plus HTTP status back to an AppError.
func decodeError(status int, payload []byte) error {
	var env v1.Envelope
	message := string(payload)
	if err := json.Unmarshal(payload, &env); err == nil && env.Message != "" {
		message = env.Message
	}

	appErr := &errors.AppError{
		Message:    message,
		HTTPStatus: status,
	}
	switch status {
	case http.StatusNotFound:
		appErr.Code = errors.ErrCodeNotFound
	case http.StatusConflict:
		appErr.Code = errors.ErrCodeAlreadyExists
	case http.StatusBadRequest:
		appErr.Code = errors.ErrCodeInvalidInput
	case http.StatusNotImplemented:
		appErr.Code = errors.ErrCodeUnsupported
	case http.StatusBadGateway:
		appErr.Code = errors.ErrCodeGatewayError
	default:
		appErr.Code = errors.ErrCodeInternalError
	}
	return appErr
}
