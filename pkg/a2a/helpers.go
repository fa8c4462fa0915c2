package a2a

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh opaque identifier (uuid4, lowercase hex, no dashes).
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewTextPart builds a text part.
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// NewFilePart builds an inline file part from base64 bytes.
func NewFilePart(b64 string, mimeType string) Part {
	return Part{Kind: PartKindFile, File: &FileContent{Bytes: b64, MimeType: mimeType}}
}

// NewFileRefPart builds a file part that references the file store by id.
func NewFileRefPart(fileID string, mimeType string) Part {
	return Part{Kind: PartKindFile, File: &FileContent{FileID: fileID, MimeType: mimeType}}
}

// NewTask creates a submitted task for an incoming message. A missing task or
// context id on the message is filled in with a fresh one.
func NewTask(msg Message) *Task {
	taskID := msg.TaskID
	if taskID == "" {
		taskID = NewID()
	}
	contextID := msg.ContextID
	if contextID == "" {
		contextID = NewID()
	}
	m := msg
	m.TaskID = taskID
	m.ContextID = contextID
	return &Task{
		ID:        taskID,
		ContextID: contextID,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Message:   &m,
			Timestamp: time.Now().UTC(),
		},
		CreatedAt: time.Now().UTC(),
	}
}

// NewAgentTextMessage builds an agent-role message with a single text part.
func NewAgentTextMessage(text, taskID, contextID string) *Message {
	return &Message{
		Role:      RoleAgent,
		Parts:     []Part{NewTextPart(text)},
		MessageID: NewID(),
		TaskID:    taskID,
		ContextID: contextID,
	}
}

// Clone returns a deep copy of the task: status message, artifacts and their
// parts share nothing with the original.
func (t *Task) Clone() *Task {
	copied := *t
	if t.Status.Message != nil {
		msg := *t.Status.Message
		msg.Parts = append([]Part(nil), t.Status.Message.Parts...)
		copied.Status.Message = &msg
	}
	copied.Artifacts = CloneArtifacts(t.Artifacts)
	return &copied
}

// CloneArtifacts deep-copies an artifact list, including each part slice.
func CloneArtifacts(artifacts []Artifact) []Artifact {
	if artifacts == nil {
		return nil
	}
	out := make([]Artifact, len(artifacts))
	for i, a := range artifacts {
		out[i] = a
		out[i].Parts = append([]Part(nil), a.Parts...)
	}
	return out
}

// TextOf concatenates the text parts of a message with the given delimiter.
func TextOf(parts []Part, delimiter string) string {
	var texts []string
	for _, p := range parts {
		if p.Kind == PartKindText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, delimiter)
}
