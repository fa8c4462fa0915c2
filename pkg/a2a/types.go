// Package a2a defines the streaming task protocol spoken between agents:
// messages made of parts, tasks with a state machine, artifacts, and the
// update events emitted while a task runs. The wire format is JSON over HTTP,
// with streaming responses delivered as server-sent events.
package a2a

import "time"

// Part kinds.
const (
	PartKindText = "text"
	PartKindFile = "file"
)

// Part is one unit of message or artifact content: either text or a file.
type Part struct {
	Kind string       `json:"kind"`
	Text string       `json:"text,omitempty"`
	File *FileContent `json:"file,omitempty"`
}

// FileContent carries a file either inline (base64 bytes) or by reference to
// the content-addressed file store. Exactly one of Bytes and FileID is set.
type FileContent struct {
	Bytes    string `json:"bytes,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAgent     = "agent"
	RoleSystem    = "system"
	RoleAssistant = "assistant"
)

// Message is a single exchange between a caller and an agent.
type Message struct {
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId"`
	TaskID    string `json:"taskId,omitempty"`
	ContextID string `json:"contextId,omitempty"`
}

// TaskState enumerates the task state machine.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input_required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
)

// Terminal reports whether no further state or artifact mutations are
// accepted in this state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// TaskStatus is the current state of a task plus the message that produced it.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Artifact is a named list of parts produced during a task.
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
}

// Task is a unit of work with a state machine and a list of artifacts.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
}

// Event kinds carried on a task update stream.
const (
	EventKindTask           = "task"
	EventKindStatusUpdate   = "status-update"
	EventKindArtifactUpdate = "artifact-update"
)

// TaskStatusUpdateEvent reports a state transition on a task.
type TaskStatusUpdateEvent struct {
	Kind      string     `json:"kind"`
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final,omitempty"`
}

// TaskArtifactUpdateEvent carries a new artifact or an extension of an
// existing one. Append extends the parts of the artifact with the matching
// id; LastChunk marks the end of that artifact's streaming.
type TaskArtifactUpdateEvent struct {
	Kind      string   `json:"kind"`
	TaskID    string   `json:"taskId"`
	ContextID string   `json:"contextId"`
	Artifact  Artifact `json:"artifact"`
	Append    bool     `json:"append,omitempty"`
	LastChunk bool     `json:"lastChunk,omitempty"`
}

// StreamEvent is the union delivered on a streaming session: exactly one of
// the three fields is non-nil.
type StreamEvent struct {
	Task           *Task
	StatusUpdate   *TaskStatusUpdateEvent
	ArtifactUpdate *TaskArtifactUpdateEvent
}

// MessageSendParams is the body of a send request against a worker.
type MessageSendParams struct {
	Message Message `json:"message"`
}

// AgentSkill describes one capability advertised on an agent card.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// AgentCapabilities advertises protocol-level features of an agent.
type AgentCapabilities struct {
	Streaming bool `json:"streaming"`
}

// AgentCard is the self-description an agent serves from its URL.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	URL                string            `json:"url"`
	Version            string            `json:"version,omitempty"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	Skills             []AgentSkill      `json:"skills,omitempty"`
	DefaultInputModes  []string          `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string          `json:"defaultOutputModes,omitempty"`
}

// AgentCardPath is the well-known path a card is served from.
const AgentCardPath = "/.well-known/agent.json"
