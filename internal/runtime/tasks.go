package runtime

import (
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

// TaskStore holds the worker's tasks and their per-task transcripts.
// Transcripts are keyed by task id so a caller supplying the same task id
// resumes the earlier exchange.
type TaskStore struct {
	mu          sync.RWMutex
	tasks       map[string]*a2a.Task
	transcripts map[string][]openai.ChatCompletionMessage
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:       make(map[string]*a2a.Task),
		transcripts: make(map[string][]openai.ChatCompletionMessage),
	}
}

// Get returns the task with the given id.
func (s *TaskStore) Get(taskID string) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, errors.NotFound("task", taskID)
	}
	return task.Clone(), nil
}

// Save stores a task snapshot.
func (s *TaskStore) Save(task *a2a.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
}

// Transcript returns a copy of the task's transcript, or nil when none exists.
func (s *TaskStore) Transcript(taskID string) []openai.ChatCompletionMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages, ok := s.transcripts[taskID]
	if !ok {
		return nil
	}
	out := make([]openai.ChatCompletionMessage, len(messages))
	copy(out, messages)
	return out
}

// SaveTranscript replaces the task's transcript.
func (s *TaskStore) SaveTranscript(taskID string, messages []openai.ChatCompletionMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]openai.ChatCompletionMessage, len(messages))
	copy(out, messages)
	s.transcripts[taskID] = out
}
