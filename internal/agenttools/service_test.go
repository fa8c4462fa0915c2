package agenttools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/filestore"
	"github.com/agentmesh/agentmesh/pkg/a2a"
	v1 "github.com/agentmesh/agentmesh/pkg/api/v1"
)

type fakeRegistry struct {
	agents       []v1.AgentInfo
	discoverErr  error
	interactions []string // "add:src:dst" / "del:src:dst"
	forwarded    []string // event kinds in arrival order
	forwardUser  string
}

func (f *fakeRegistry) Register(ctx context.Context, req v1.RegisterAgentRequest) (string, error) {
	return "id", nil
}
func (f *fakeRegistry) KeepAlive(ctx context.Context, agentID string) error  { return nil }
func (f *fakeRegistry) Unregister(ctx context.Context, agentID string) error { return nil }

func (f *fakeRegistry) Discover(ctx context.Context, agentID string) ([]v1.AgentInfo, error) {
	return f.agents, f.discoverErr
}

func (f *fakeRegistry) AddInteraction(ctx context.Context, srcID, dstID, message string) error {
	f.interactions = append(f.interactions, fmt.Sprintf("add:%s:%s", srcID, dstID))
	return nil
}

func (f *fakeRegistry) DeleteInteraction(ctx context.Context, srcID, dstID string) error {
	f.interactions = append(f.interactions, fmt.Sprintf("del:%s:%s", srcID, dstID))
	return nil
}

func (f *fakeRegistry) TaskCountAdd(ctx context.Context, agentID string) error    { return nil }
func (f *fakeRegistry) TaskCountDelete(ctx context.Context, agentID string) error { return nil }

func (f *fakeRegistry) ForwardTask(ctx context.Context, userID string, task *a2a.Task) error {
	f.forwardUser = userID
	f.forwarded = append(f.forwarded, "task")
	return nil
}

func (f *fakeRegistry) ForwardTaskStatus(ctx context.Context, userID string, ev *a2a.TaskStatusUpdateEvent) error {
	f.forwarded = append(f.forwarded, "status:"+string(ev.Status.State))
	return nil
}

func (f *fakeRegistry) ForwardTaskArtifact(ctx context.Context, userID string, ev *a2a.TaskArtifactUpdateEvent) error {
	f.forwarded = append(f.forwarded, "artifact")
	return nil
}

type fakePeer struct {
	events    []a2a.StreamEvent
	streamErr error
	final     *a2a.Task
	sent      *a2a.MessageSendParams
}

func (f *fakePeer) SendMessageStreaming(ctx context.Context, params a2a.MessageSendParams, handler func(a2a.StreamEvent) error) error {
	f.sent = &params
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, ev := range f.events {
		if err := handler(ev); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePeer) GetTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	if f.final == nil {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return f.final, nil
}

func workerEvents(taskID string) []a2a.StreamEvent {
	task := &a2a.Task{ID: taskID, ContextID: "ctx", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted}}
	return []a2a.StreamEvent{
		{Task: task},
		{StatusUpdate: &a2a.TaskStatusUpdateEvent{Kind: a2a.EventKindStatusUpdate, TaskID: taskID, Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}},
		{ArtifactUpdate: &a2a.TaskArtifactUpdateEvent{Kind: a2a.EventKindArtifactUpdate, TaskID: taskID, Artifact: a2a.Artifact{ArtifactID: "a1"}}},
		{StatusUpdate: &a2a.TaskStatusUpdateEvent{Kind: a2a.EventKindStatusUpdate, TaskID: taskID, Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}, Final: true}},
	}
}

func newTestService(t *testing.T, role string, reg *fakeRegistry, peer *fakePeer) *Service {
	t.Helper()
	files, err := filestore.New(t.TempDir(), nil)
	require.NoError(t, err)

	svc := NewService(Identity{AgentID: "self", Role: role}, reg, files, nil)
	svc.newPeer = func(url string) peerClient { return peer }
	svc.resolveCard = func(ctx context.Context, url string) (*a2a.AgentCard, error) {
		if url == "http://localhost:9002" {
			return nil, fmt.Errorf("connection refused")
		}
		return &a2a.AgentCard{Name: "card-of-" + url, URL: url}, nil
	}
	return svc
}

func TestDiscoverFetchesCards(t *testing.T) {
	reg := &fakeRegistry{agents: []v1.AgentInfo{
		{AgentID: "a1", Name: "writer", URL: "http://localhost:9001"},
		{AgentID: "a2", Name: "broken", URL: "http://localhost:9002"},
	}}
	svc := newTestService(t, RoleUser, reg, nil)

	agents, err := svc.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "writer", agents[0].Name)
	require.NotNil(t, agents[0].Card)
	assert.Equal(t, "card-of-http://localhost:9001", agents[0].Card.Name)
	// A failed card fetch does not fail discovery.
	assert.Nil(t, agents[1].Card)
}

func TestDiscoverRegistryFailure(t *testing.T) {
	reg := &fakeRegistry{discoverErr: fmt.Errorf("registry down")}
	svc := newTestService(t, RoleUser, reg, nil)

	_, err := svc.Discover(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeToolError, errors.Code(err))
}

func TestSendMessageFlow(t *testing.T) {
	reg := &fakeRegistry{agents: []v1.AgentInfo{
		{AgentID: "dst", Name: "writer", URL: "http://localhost:9001"},
	}}
	peer := &fakePeer{
		events: workerEvents("t1"),
		final:  &a2a.Task{ID: "t1", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}},
	}
	svc := newTestService(t, RoleUser, reg, peer)

	task, err := svc.SendMessage(context.Background(), "http://localhost:9001/", []a2a.Part{a2a.NewTextPart("hello")}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)

	// Edge acquired before the stream, released after.
	assert.Equal(t, []string{"add:self:dst", "del:self:dst"}, reg.interactions)

	// Events forwarded in arrival order under the caller's user id.
	assert.Equal(t, []string{"task", "status:working", "artifact", "status:completed"}, reg.forwarded)
	assert.Equal(t, "self", reg.forwardUser)
}

func TestSendMessageAgentRoleDoesNotForward(t *testing.T) {
	reg := &fakeRegistry{agents: []v1.AgentInfo{
		{AgentID: "dst", Name: "writer", URL: "http://localhost:9001"},
	}}
	peer := &fakePeer{
		events: workerEvents("t1"),
		final:  &a2a.Task{ID: "t1", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}},
	}
	svc := newTestService(t, RoleAgent, reg, peer)

	_, err := svc.SendMessage(context.Background(), "http://localhost:9001", []a2a.Part{a2a.NewTextPart("hi")}, "", "")
	require.NoError(t, err)
	assert.Empty(t, reg.forwarded)
}

func TestSendMessageInlinesFileReferences(t *testing.T) {
	reg := &fakeRegistry{agents: []v1.AgentInfo{
		{AgentID: "dst", Name: "writer", URL: "http://localhost:9001"},
	}}
	peer := &fakePeer{
		events: workerEvents("t1"),
		final:  &a2a.Task{ID: "t1"},
	}
	svc := newTestService(t, RoleUser, reg, peer)

	fileID, err := svc.files.Put("aW1hZ2U=", "image/png")
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), "http://localhost:9001", []a2a.Part{
		a2a.NewTextPart("see attachment"),
		a2a.NewFileRefPart(fileID, "image/png"),
	}, "", "")
	require.NoError(t, err)

	require.NotNil(t, peer.sent)
	parts := peer.sent.Message.Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "aW1hZ2U=", parts[1].File.Bytes)
	assert.Empty(t, parts[1].File.FileID)
}

func TestSendMessageUnknownURL(t *testing.T) {
	reg := &fakeRegistry{}
	svc := newTestService(t, RoleUser, reg, nil)

	_, err := svc.SendMessage(context.Background(), "http://localhost:9999", []a2a.Part{a2a.NewTextPart("hi")}, "", "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeToolError, errors.Code(err))
	// No edge was acquired.
	assert.Empty(t, reg.interactions)
}

func TestSendMessageStreamFailureReleasesEdge(t *testing.T) {
	reg := &fakeRegistry{agents: []v1.AgentInfo{
		{AgentID: "dst", Name: "writer", URL: "http://localhost:9001"},
	}}
	peer := &fakePeer{streamErr: fmt.Errorf("connection reset")}
	svc := newTestService(t, RoleUser, reg, peer)

	_, err := svc.SendMessage(context.Background(), "http://localhost:9001", []a2a.Part{a2a.NewTextPart("hi")}, "", "")
	require.Error(t, err)
	assert.Equal(t, []string{"add:self:dst", "del:self:dst"}, reg.interactions)
}

func TestSendMessageUnknownFileID(t *testing.T) {
	reg := &fakeRegistry{agents: []v1.AgentInfo{
		{AgentID: "dst", Name: "writer", URL: "http://localhost:9001"},
	}}
	svc := newTestService(t, RoleUser, reg, &fakePeer{})

	_, err := svc.SendMessage(context.Background(), "http://localhost:9001", []a2a.Part{
		a2a.NewFileRefPart("ghost", "image/png"),
	}, "", "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeToolError, errors.Code(err))
	// Edge still released.
	assert.Equal(t, []string{"add:self:dst", "del:self:dst"}, reg.interactions)
}

func TestPartsArgument(t *testing.T) {
	parts, err := partsArgument(map[string]any{
		"parts": []any{
			map[string]any{"kind": "text", "text": "hello"},
			map[string]any{"kind": "file", "file": map[string]any{"file_id": "f1", "mimeType": "image/png"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "hello", parts[0].Text)
	assert.Equal(t, "f1", parts[1].File.FileID)

	_, err = partsArgument(map[string]any{})
	require.Error(t, err)

	_, err = partsArgument(map[string]any{"parts": []any{}})
	require.Error(t, err)
}
