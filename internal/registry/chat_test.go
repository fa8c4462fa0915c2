package registry

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/filestore"
	"github.com/agentmesh/agentmesh/internal/gateway"
	"github.com/agentmesh/agentmesh/internal/registry/graph"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

type fakeGateway struct {
	reply    string
	err      error
	received []openai.ChatCompletionMessage
}

func (f *fakeGateway) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, transport gateway.ToolTransport) ([]openai.ChatCompletionMessage, string, error) {
	f.received = messages
	if f.err != nil {
		return messages, "", f.err
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: f.reply,
	})
	return messages, f.reply, nil
}

type nopTransport struct {
	closed bool
}

func (n *nopTransport) ListTools(ctx context.Context) ([]gateway.ToolDef, error) { return nil, nil }
func (n *nopTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	return "", nil
}
func (n *nopTransport) Close() error {
	n.closed = true
	return nil
}

func newChatFixture(t *testing.T) (*ChatService, *graph.Store, *fakeGateway, *filestore.Store, *nopTransport) {
	t.Helper()
	g := graph.NewStore(nil)
	require.NoError(t, g.RegisterUser("u1", "alice"))

	files, err := filestore.New(t.TempDir(), nil)
	require.NoError(t, err)

	gw := &fakeGateway{reply: "delegated to the writer agent"}
	transport := &nopTransport{}
	svc := NewChatService(g, gw, files, "you are a planner", func(agentID, role string) (gateway.ToolTransport, error) {
		assert.Equal(t, "u1", agentID)
		assert.Equal(t, "user", role)
		return transport, nil
	}, nil)
	return svc, g, gw, files, transport
}

func TestChatSeedsConversation(t *testing.T) {
	svc, g, gw, _, transport := newChatFixture(t)

	reply, err := svc.Chat(context.Background(), "u1", "c1", []a2a.Part{a2a.NewTextPart("write me a poem")})
	require.NoError(t, err)
	assert.Equal(t, "delegated to the writer agent", reply)
	assert.True(t, transport.closed)

	// System prompt first, then the user turn.
	require.Len(t, gw.received, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, gw.received[0].Role)
	assert.Equal(t, "you are a planner", gw.received[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, gw.received[1].Role)

	// Transcript persisted with the assistant reply.
	messages, err := g.ConversationMessages("u1", "c1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, openai.ChatMessageRoleAssistant, messages[2].Role)
}

func TestChatMultiTurn(t *testing.T) {
	svc, _, gw, _, _ := newChatFixture(t)
	ctx := context.Background()

	_, err := svc.Chat(ctx, "u1", "c1", []a2a.Part{a2a.NewTextPart("first")})
	require.NoError(t, err)
	_, err = svc.Chat(ctx, "u1", "c1", []a2a.Part{a2a.NewTextPart("second")})
	require.NoError(t, err)

	// system + first + assistant + second
	assert.Len(t, gw.received, 4)
}

func TestChatIngestsInlineFiles(t *testing.T) {
	svc, _, gw, files, _ := newChatFixture(t)

	_, err := svc.Chat(context.Background(), "u1", "c1", []a2a.Part{
		a2a.NewTextPart("look at this image"),
		a2a.NewFilePart("aGVsbG8=", "image/png"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, files.Len())

	user := gw.received[1]
	require.Len(t, user.MultiContent, 3)
	assert.Equal(t, openai.ChatMessagePartTypeText, user.MultiContent[0].Type)
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, user.MultiContent[1].Type)
	assert.Contains(t, user.MultiContent[1].ImageURL.URL, "data:image/png;base64,")
	assert.Contains(t, user.MultiContent[2].Text, "the ID of this file is ")
}

func TestChatResolvesFileReferences(t *testing.T) {
	svc, _, gw, files, _ := newChatFixture(t)

	id, err := files.Put("cGF5bG9hZA==", "image/jpeg")
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), "u1", "c1", []a2a.Part{
		a2a.NewFileRefPart(id, "image/jpeg"),
	})
	require.NoError(t, err)

	user := gw.received[1]
	require.Len(t, user.MultiContent, 2)
	assert.Contains(t, user.MultiContent[0].ImageURL.URL, "cGF5bG9hZA==")
	assert.Contains(t, user.MultiContent[1].Text, id)
}

func TestChatUnknownUser(t *testing.T) {
	svc, _, _, _, _ := newChatFixture(t)

	_, err := svc.Chat(context.Background(), "ghost", "c1", []a2a.Part{a2a.NewTextPart("hi")})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestChatUnknownFileReference(t *testing.T) {
	svc, _, _, _, _ := newChatFixture(t)

	_, err := svc.Chat(context.Background(), "u1", "c1", []a2a.Part{
		a2a.NewFileRefPart("no-such-file", "image/png"),
	})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestChatGatewayErrorLeavesTranscriptUnsaved(t *testing.T) {
	svc, g, gw, _, _ := newChatFixture(t)
	gw.err = errors.GatewayError("provider returned no choices", nil)

	_, err := svc.Chat(context.Background(), "u1", "c1", []a2a.Part{a2a.NewTextPart("hi")})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGatewayError, errors.Code(err))

	// Seeded conversation exists but holds only the system prompt.
	messages, err := g.ConversationMessages("u1", "c1")
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestEvictorRemovesStaleAgents(t *testing.T) {
	g := graph.NewStore(nil)
	_, err := g.RegisterAgent("stale", "http://localhost:9001", "writing", true, nil)
	require.NoError(t, err)

	evictor := NewEvictor(g, 10*time.Millisecond, 30*time.Millisecond, nil)
	evictor.Start(context.Background())
	defer evictor.Stop()

	require.Eventually(t, func() bool {
		return len(g.GetAll()) == 0
	}, time.Second, 10*time.Millisecond)
}
