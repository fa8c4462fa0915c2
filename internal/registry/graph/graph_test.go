package graph

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

func register(t *testing.T, s *Store, name, url, category string, expose bool, visibleTo []string) string {
	t.Helper()
	id, err := s.RegisterAgent(name, url, category, expose, visibleTo)
	require.NoError(t, err)
	return id
}

func discoverIDs(t *testing.T, s *Store, requester string) map[string]bool {
	t.Helper()
	agents, err := s.Discover(requester)
	require.NoError(t, err)
	ids := make(map[string]bool, len(agents))
	for _, a := range agents {
		ids[a.AgentID] = true
	}
	return ids
}

func TestRegisterAgentDuplicateURL(t *testing.T) {
	s := NewStore(nil)

	register(t, s, "writer", "http://localhost:9001", "writing", true, nil)
	_, err := s.RegisterAgent("other", "http://localhost:9001", "writing", true, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAlreadyExists, errors.Code(err))
}

func TestKeepAliveRoleChecks(t *testing.T) {
	s := NewStore(nil)
	id := register(t, s, "writer", "http://localhost:9001", "writing", true, nil)
	require.NoError(t, s.RegisterUser("u1", "alice"))

	assert.NoError(t, s.KeepAlive(id))
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(s.KeepAlive("missing")))
	assert.Equal(t, errors.ErrCodeInvalidRole, errors.Code(s.KeepAlive("u1")))
}

func TestUnregisterRestoresDiscovery(t *testing.T) {
	s := NewStore(nil)
	requester := register(t, s, "asker", "http://localhost:9000", "writing", true, nil)

	before := discoverIDs(t, s, requester)
	id := register(t, s, "writer", "http://localhost:9001", "writing", true, nil)
	assert.True(t, discoverIDs(t, s, requester)[id])

	require.NoError(t, s.UnregisterAgent(id))
	assert.Equal(t, before, discoverIDs(t, s, requester))
}

func TestDiscoverVisibility(t *testing.T) {
	s := NewStore(nil)

	requester := register(t, s, "requester", "http://localhost:9000", "medical", true, nil)
	sameCategory := register(t, s, "peer", "http://localhost:9001", "medical", false, nil)
	exposedToAll := register(t, s, "open", "http://localhost:9002", "writing", true, nil)
	exposedToMedical := register(t, s, "scoped", "http://localhost:9003", "writing", true, []string{"medical"})
	exposedToOther := register(t, s, "elsewhere", "http://localhost:9004", "writing", true, []string{"finance"})
	hidden := register(t, s, "hidden", "http://localhost:9005", "writing", false, nil)

	ids := discoverIDs(t, s, requester)
	assert.True(t, ids[sameCategory], "same category is visible regardless of expose")
	assert.True(t, ids[exposedToAll], "exposed with nil visible_to is visible to all")
	assert.True(t, ids[exposedToMedical])
	assert.False(t, ids[exposedToOther])
	assert.False(t, ids[hidden])
	assert.True(t, ids[requester], "requester shares its own category and sees itself")
}

func TestDiscoverIncludesRequester(t *testing.T) {
	s := NewStore(nil)

	// Unexposed A and B scoped to A's own category: both see both.
	a := register(t, s, "a", "http://localhost:9001", "X", false, nil)
	b := register(t, s, "b", "http://localhost:9002", "X", true, []string{"X"})

	fromA := discoverIDs(t, s, a)
	assert.Equal(t, map[string]bool{a: true, b: true}, fromA)

	fromB := discoverIDs(t, s, b)
	assert.Equal(t, map[string]bool{a: true, b: true}, fromB)
}

func TestDiscoverForUser(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.RegisterUser("u1", "alice"))

	open := register(t, s, "open", "http://localhost:9002", "writing", true, nil)
	scoped := register(t, s, "scoped", "http://localhost:9003", "writing", true, []string{UserCategory})
	hidden := register(t, s, "hidden", "http://localhost:9004", "writing", false, nil)

	ids := discoverIDs(t, s, "u1")
	assert.True(t, ids[open])
	assert.True(t, ids[scoped])
	assert.False(t, ids[hidden])

	_, err := s.Discover("missing")
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}

func TestEvict(t *testing.T) {
	s := NewStore(nil)
	base := time.Now()
	s.now = func() time.Time { return base }

	stale := register(t, s, "stale", "http://localhost:9001", "writing", true, nil)
	fresh := register(t, s, "fresh", "http://localhost:9002", "writing", true, nil)

	s.now = func() time.Time { return base.Add(20 * time.Second) }
	require.NoError(t, s.KeepAlive(fresh))

	s.now = func() time.Time { return base.Add(40 * time.Second) }
	evicted := s.Evict(30 * time.Second)
	assert.Equal(t, []string{stale}, evicted)

	all := s.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, fresh, all[0].AgentID)
}

func TestInteractions(t *testing.T) {
	s := NewStore(nil)
	src := register(t, s, "a", "http://localhost:9001", "writing", true, nil)
	dst := register(t, s, "b", "http://localhost:9002", "writing", true, nil)

	require.NoError(t, s.AddInteraction(src, dst, "please summarize this"))
	// Second add for the same pair is a no-op.
	require.NoError(t, s.AddInteraction(src, dst, "another message"))
	assert.Len(t, s.Interactions(), 1)
	assert.Equal(t, [2]string{src, dst}, s.Interactions()[0])

	require.NoError(t, s.DeleteInteraction(src, dst))
	assert.Empty(t, s.Interactions())
	// Deleting again is a no-op.
	require.NoError(t, s.DeleteInteraction(src, dst))

	err := s.AddInteraction(src, "missing", "hi")
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
	err = s.AddInteraction("missing", dst, "hi")
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}

func TestInteractionExcerpt(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.RegisterUser("u1", "alice"))
	dst := register(t, s, "b", "http://localhost:9002", "writing", true, nil)

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, s.AddInteraction("u1", dst, string(long)))

	edges, err := s.UserInteractions("u1")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, dst, edges[0][0])
	assert.Equal(t, "b", edges[0][1])
}

func TestExcerptRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", excerptLimit+40)
	out := excerpt(long)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, excerptLimit, utf8.RuneCountInString(out))

	assert.Equal(t, "héllo", excerpt("héllo"))
}

func TestTaskCounters(t *testing.T) {
	s := NewStore(nil)
	id := register(t, s, "a", "http://localhost:9001", "writing", true, nil)

	count, err := s.TaskCount(id)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, s.TaskCountAdd(id))
	require.NoError(t, s.TaskCountAdd(id))
	count, _ = s.TaskCount(id)
	assert.Equal(t, 2, count)

	require.NoError(t, s.TaskCountDelete(id))
	require.NoError(t, s.TaskCountDelete(id))
	// Clamped at zero.
	require.NoError(t, s.TaskCountDelete(id))
	count, _ = s.TaskCount(id)
	assert.Equal(t, 0, count)

	assert.Equal(t, map[string]int{id: 0}, s.TaskCounts())
}

func TestTaskCounterRoleChecks(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.RegisterUser("u1", "alice"))

	assert.Equal(t, errors.ErrCodeInvalidRole, errors.Code(s.TaskCountAdd("u1")))
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(s.TaskCountAdd("missing")))
}

func newTask(id string, state a2a.TaskState) *a2a.Task {
	return &a2a.Task{
		ID:        id,
		ContextID: "ctx-" + id,
		Status:    a2a.TaskStatus{State: state},
	}
}

func TestStoreTaskRequiresUser(t *testing.T) {
	s := NewStore(nil)
	agent := register(t, s, "a", "http://localhost:9001", "writing", true, nil)

	err := s.StoreTask("missing", newTask("t1", a2a.TaskStateSubmitted))
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
	err = s.StoreTask(agent, newTask("t1", a2a.TaskStateSubmitted))
	assert.Equal(t, errors.ErrCodeInvalidRole, errors.Code(err))
}

func TestTaskStatusUpdates(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.RegisterUser("u1", "alice"))
	require.NoError(t, s.StoreTask("u1", newTask("t1", a2a.TaskStateSubmitted)))

	update := func(state a2a.TaskState) error {
		return s.UpdateTaskStatus("u1", &a2a.TaskStatusUpdateEvent{
			TaskID: "t1",
			Status: a2a.TaskStatus{State: state},
		})
	}

	require.NoError(t, update(a2a.TaskStateWorking))
	require.NoError(t, update(a2a.TaskStateCompleted))

	// Terminal tasks do not change.
	require.NoError(t, update(a2a.TaskStateWorking))
	tasks, err := s.Tasks("u1")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, tasks["t1"].Status.State)

	err = s.UpdateTaskStatus("u1", &a2a.TaskStatusUpdateEvent{TaskID: "missing"})
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}

func TestTaskArtifactUpdates(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.RegisterUser("u1", "alice"))
	require.NoError(t, s.StoreTask("u1", newTask("t1", a2a.TaskStateWorking)))

	// Append to a task with no artifacts fails.
	err := s.UpdateTaskArtifact("u1", &a2a.TaskArtifactUpdateEvent{
		TaskID:   "t1",
		Artifact: a2a.Artifact{ArtifactID: "a1", Parts: []a2a.Part{a2a.NewTextPart("x")}},
		Append:   true,
	})
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))

	// New artifact.
	require.NoError(t, s.UpdateTaskArtifact("u1", &a2a.TaskArtifactUpdateEvent{
		TaskID:   "t1",
		Artifact: a2a.Artifact{ArtifactID: "a1", Name: "writer response", Parts: []a2a.Part{a2a.NewTextPart("hello")}},
	}))

	// Appending n times equals one concatenated update.
	for _, chunk := range []string{" there", ", world"} {
		require.NoError(t, s.UpdateTaskArtifact("u1", &a2a.TaskArtifactUpdateEvent{
			TaskID:   "t1",
			Artifact: a2a.Artifact{ArtifactID: "a1", Parts: []a2a.Part{a2a.NewTextPart(chunk)}},
			Append:   true,
		}))
	}

	artifacts, err := s.Artifacts("u1")
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "hello there, world", a2a.TextOf(artifacts[0].Parts, ""))

	// Appending to an unknown artifact id fails even when others exist.
	err = s.UpdateTaskArtifact("u1", &a2a.TaskArtifactUpdateEvent{
		TaskID:   "t1",
		Artifact: a2a.Artifact{ArtifactID: "a2", Parts: []a2a.Part{a2a.NewTextPart("x")}},
		Append:   true,
	})
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}

func TestAllTasksAndArtifacts(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.RegisterUser("u1", "alice"))
	require.NoError(t, s.RegisterUser("u2", "bob"))
	require.NoError(t, s.StoreTask("u1", newTask("t1", a2a.TaskStateWorking)))
	require.NoError(t, s.UpdateTaskArtifact("u1", &a2a.TaskArtifactUpdateEvent{
		TaskID:   "t1",
		Artifact: a2a.Artifact{ArtifactID: "a1", Parts: []a2a.Part{a2a.NewTextPart("hi")}},
	}))

	all := s.AllTasks()
	require.Len(t, all, 2)
	assert.Len(t, all["u1"], 1)
	assert.Empty(t, all["u2"])

	artifacts := s.AllArtifacts()
	assert.Len(t, artifacts["u1"], 1)
	assert.Empty(t, artifacts["u2"])
}

func TestUserLifecycle(t *testing.T) {
	s := NewStore(nil)

	require.NoError(t, s.RegisterUser("u1", "alice"))
	err := s.RegisterUser("u1", "alice")
	assert.Equal(t, errors.ErrCodeAlreadyExists, errors.Code(err))

	assert.True(t, s.UserExists("u1"))
	require.NoError(t, s.UnregisterUser("u1"))
	assert.False(t, s.UserExists("u1"))
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(s.UnregisterUser("u1")))

	require.NoError(t, s.RegisterUser("u2", "bob"))
	require.NoError(t, s.RegisterUser("u3", "carol"))
	assert.Equal(t, 2, s.UnregisterAllUsers())
}

func TestConversations(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.RegisterUser("u1", "alice"))

	_, err := s.ConversationMessages("u1", "c1")
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))

	messages, err := s.LoadOrSeedConversation("u1", "c1", "you are a planner")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "you are a planner", messages[0].Content)

	// Seeding again returns the existing transcript.
	messages = append(messages, ProviderMessage{Role: "user", Content: "hi"})
	require.NoError(t, s.SaveConversation("u1", "c1", messages))

	again, err := s.LoadOrSeedConversation("u1", "c1", "ignored")
	require.NoError(t, err)
	assert.Len(t, again, 2)

	ids, err := s.Conversations("u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func TestSnapshot(t *testing.T) {
	s := NewStore(nil)
	id := register(t, s, "a", "http://localhost:9001", "writing", true, nil)
	require.NoError(t, s.RegisterUser("u1", "alice"))

	view := s.Snapshot()
	require.Len(t, view, 2)
	agent := view[id].(*PublicAgent)
	assert.Equal(t, KindPublic, agent.Kind)
	user := view["u1"].(*User)
	assert.Equal(t, KindUser, user.Kind)
	assert.Equal(t, UserCategory, user.Category)
}

func TestSnapshotDetachedFromStore(t *testing.T) {
	s := NewStore(nil)
	id := register(t, s, "a", "http://localhost:9001", "writing", true, []string{"medical"})
	require.NoError(t, s.RegisterUser("u1", "alice"))
	require.NoError(t, s.StoreTask("u1", newTask("t1", a2a.TaskStateWorking)))
	require.NoError(t, s.UpdateTaskArtifact("u1", &a2a.TaskArtifactUpdateEvent{
		TaskID:   "t1",
		Artifact: a2a.Artifact{ArtifactID: "a1", Parts: []a2a.Part{a2a.NewTextPart("hello")}},
	}))

	// Mutating a snapshot must not reach the store.
	view := s.Snapshot()
	view[id].(*PublicAgent).VisibleTo[0] = "finance"
	user := view["u1"].(*User)
	user.Tasks["t1"].Artifacts[0].Parts[0].Text = "clobbered"
	user.Tasks["t2"] = newTask("t2", a2a.TaskStateSubmitted)

	again := s.Snapshot()
	assert.Equal(t, []string{"medical"}, again[id].(*PublicAgent).VisibleTo)
	fresh := again["u1"].(*User)
	require.Len(t, fresh.Tasks, 1)
	assert.Equal(t, "hello", a2a.TextOf(fresh.Tasks["t1"].Artifacts[0].Parts, ""))
}

func TestTasksDetachedFromStore(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.RegisterUser("u1", "alice"))
	require.NoError(t, s.StoreTask("u1", newTask("t1", a2a.TaskStateWorking)))
	require.NoError(t, s.UpdateTaskArtifact("u1", &a2a.TaskArtifactUpdateEvent{
		TaskID:   "t1",
		Artifact: a2a.Artifact{ArtifactID: "a1", Parts: []a2a.Part{a2a.NewTextPart("hello")}},
	}))

	tasks, err := s.Tasks("u1")
	require.NoError(t, err)
	tasks["t1"].Artifacts[0].Parts[0].Text = "clobbered"

	artifacts, err := s.Artifacts("u1")
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "hello", a2a.TextOf(artifacts[0].Parts, ""))
}
