package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks the task protocol to one worker agent.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a client for the worker at baseURL. Streaming sessions can
// span minutes, so the default client carries no overall timeout; callers
// bound it with a context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
	}
}

// ResolveCard fetches the agent card from the well-known endpoint.
func ResolveCard(ctx context.Context, baseURL string) (*AgentCard, error) {
	url := strings.TrimRight(baseURL, "/") + AgentCardPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	httpc := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch agent card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch agent card: unexpected status %d", resp.StatusCode)
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode agent card: %w", err)
	}
	return &card, nil
}

type taskEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Content *Task  `json:"content,omitempty"`
}

// SendMessage sends a message and blocks until the final task is returned.
func (c *Client) SendMessage(ctx context.Context, params MessageSendParams) (*Task, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages/send", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env taskEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode send response: %w", err)
	}
	if env.Status != "success" || env.Content == nil {
		return nil, fmt.Errorf("send message: %s", env.Message)
	}
	return env.Content, nil
}

// SendMessageStreaming opens a streaming session and invokes handler for every
// event received, in order. It returns after the stream closes; the handler
// aborting the stream is reported as an error.
func (c *Client) SendMessageStreaming(ctx context.Context, params MessageSendParams, handler func(StreamEvent) error) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("open stream: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		event, err := DecodeStreamEvent([]byte(strings.TrimPrefix(line, "data: ")))
		if err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}
		if err := handler(*event); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// GetTask fetches a task by id from the worker.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env taskEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode task response: %w", err)
	}
	if env.Status != "success" || env.Content == nil {
		return nil, fmt.Errorf("get task: %s", env.Message)
	}
	return env.Content, nil
}

// DecodeStreamEvent parses one event payload by its kind discriminator.
func DecodeStreamEvent(data []byte) (*StreamEvent, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Kind {
	case EventKindTask, "":
		// a Task carries no kind field in the original wire format
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, err
		}
		return &StreamEvent{Task: &task}, nil
	case EventKindStatusUpdate:
		var ev TaskStatusUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &StreamEvent{StatusUpdate: &ev}, nil
	case EventKindArtifactUpdate:
		var ev TaskArtifactUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &StreamEvent{ArtifactUpdate: &ev}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", probe.Kind)
	}
}

// EncodeStreamEvent renders an event payload for the wire.
func EncodeStreamEvent(ev StreamEvent) ([]byte, error) {
	switch {
	case ev.Task != nil:
		return json.Marshal(ev.Task)
	case ev.StatusUpdate != nil:
		return json.Marshal(ev.StatusUpdate)
	case ev.ArtifactUpdate != nil:
		return json.Marshal(ev.ArtifactUpdate)
	}
	return nil, fmt.Errorf("empty stream event")
}
