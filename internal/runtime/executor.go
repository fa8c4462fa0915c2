package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/events/bus"
	"github.com/agentmesh/agentmesh/internal/gateway"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

// taskSubject is the bus subject carrying one task's update events.
func taskSubject(taskID string) string {
	return "task.updates." + taskID
}

// Submit resolves the task for an incoming message, creating a submitted task
// when the message references none, and emits the initial Task event. The
// returned task is what a streaming response writes first. A known task is
// resumable only while non-terminal (in practice, from input_required); a
// terminal task accepts no further mutations.
func (w *Worker) Submit(ctx context.Context, msg a2a.Message) (*a2a.Task, error) {
	if msg.TaskID != "" {
		if task, err := w.tasks.Get(msg.TaskID); err == nil {
			if task.Status.State.Terminal() {
				return nil, errors.InvalidInput("task " + task.ID + " is in terminal state " + string(task.Status.State))
			}
			w.publish(ctx, a2a.StreamEvent{Task: task})
			return task, nil
		}
	}

	task := a2a.NewTask(msg)
	w.tasks.Save(task)
	w.publish(ctx, a2a.StreamEvent{Task: task})
	w.logger.WithTaskID(task.ID).Info("Task submitted")
	return task, nil
}

// Execute runs the reasoning loop for one task and returns it once no more
// work is possible: completed, failed, or input_required awaiting the caller's
// next message. Failures are reported through the task state machine, never
// as an error.
func (w *Worker) Execute(ctx context.Context, task *a2a.Task, msg a2a.Message) *a2a.Task {
	log := w.logger.WithTaskID(task.ID)

	if err := w.registry.TaskCountAdd(ctx, w.AgentID()); err != nil {
		log.WithError(err).Warn("Failed to increment task counter")
	}
	defer func() {
		if err := w.registry.TaskCountDelete(context.WithoutCancel(ctx), w.AgentID()); err != nil {
			log.WithError(err).Warn("Failed to decrement task counter")
		}
	}()

	w.setStatus(ctx, task, a2a.TaskStateWorking,
		a2a.NewAgentTextMessage("Starting "+w.name+" task...", task.ID, task.ContextID), false)

	content, err := w.contentFromParts(msg.Parts)
	if err != nil {
		return w.fail(ctx, task, err.Error())
	}

	transcript := w.tasks.Transcript(task.ID)
	if transcript == nil {
		transcript = []openai.ChatCompletionMessage{gateway.SystemMessage(w.cfg.SystemPrompt)}
	}
	transcript = append(transcript, gateway.UserMessage(content))

	transport, err := w.tools(w.AgentID(), "agent")
	if err != nil {
		return w.fail(ctx, task, errors.ToolError("failed to open tool transport", err).Error())
	}
	defer transport.Close()

	updated, reply, err := w.gw.Chat(ctx, transcript, transport)
	if err != nil {
		return w.fail(ctx, task, err.Error())
	}
	w.tasks.SaveTranscript(task.ID, updated)

	verdict, text := classifyReply(reply)
	switch verdict {
	case replyNeedsInput:
		w.setStatus(ctx, task, a2a.TaskStateInputRequired,
			a2a.NewAgentTextMessage(text, task.ID, task.ContextID), true)
		log.Info("Task awaiting caller input")
		return task
	case replyError:
		return w.fail(ctx, task, text)
	}

	artifact := a2a.Artifact{
		ArtifactID: a2a.NewID(),
		Name:       w.name + " response",
		Parts:      []a2a.Part{a2a.NewTextPart(text)},
	}
	task.Artifacts = append(task.Artifacts, artifact)
	w.tasks.Save(task)
	w.publish(ctx, a2a.StreamEvent{ArtifactUpdate: &a2a.TaskArtifactUpdateEvent{
		Kind:      a2a.EventKindArtifactUpdate,
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Artifact:  artifact,
		LastChunk: true,
	}})

	w.setStatus(ctx, task, a2a.TaskStateCompleted, nil, true)
	log.Info("Task completed")
	return task
}

// fail moves the task to the failed state, carrying the failure text as an
// agent message.
func (w *Worker) fail(ctx context.Context, task *a2a.Task, text string) *a2a.Task {
	w.logger.WithTaskID(task.ID).Error("Task failed", zap.String("reason", text))
	msg := a2a.NewAgentTextMessage(text, task.ID, task.ContextID)
	w.setStatus(ctx, task, a2a.TaskStateFailed, msg, true)
	return task
}

// Reply verdicts.
const (
	replyOK         = "ok"
	replyNeedsInput = "needs_input"
	replyError      = "error"
)

// classifyReply inspects the model's final text for the structured
// {"status": ok|needs_input|error, "result": ...} form that lets an agent
// report incomplete input instead of answering. Text around the JSON body is
// tolerated; a reply without the form is treated as a plain ok answer. A
// recognized form with an unknown status is an error: the personality asked
// for structure and the model broke it.
func classifyReply(reply string) (string, string) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end <= start {
		return replyOK, reply
	}

	var structured struct {
		Status string      `json:"status"`
		Result interface{} `json:"result"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &structured); err != nil || structured.Status == "" {
		return replyOK, reply
	}

	text := resultText(structured.Result)
	switch structured.Status {
	case replyOK, replyNeedsInput, replyError:
		return structured.Status, text
	}
	return replyError, "invalid response from the model, please try again later"
}

func resultText(result interface{}) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func (w *Worker) setStatus(ctx context.Context, task *a2a.Task, state a2a.TaskState, msg *a2a.Message, final bool) {
	task.Status = a2a.TaskStatus{
		State:     state,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	}
	w.tasks.Save(task)
	w.publish(ctx, a2a.StreamEvent{StatusUpdate: &a2a.TaskStatusUpdateEvent{
		Kind:      a2a.EventKindStatusUpdate,
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Status:    task.Status,
		Final:     final,
	}})
}

// publish fans a stream event out on the task's bus subject. Events ride the
// bus pre-encoded so the NATS backend carries the same payload the memory
// backend does.
func (w *Worker) publish(ctx context.Context, ev a2a.StreamEvent) {
	data, err := a2a.EncodeStreamEvent(ev)
	if err != nil {
		w.logger.WithError(err).Error("Failed to encode stream event")
		return
	}

	var taskID, kind string
	switch {
	case ev.Task != nil:
		taskID, kind = ev.Task.ID, a2a.EventKindTask
	case ev.StatusUpdate != nil:
		taskID, kind = ev.StatusUpdate.TaskID, a2a.EventKindStatusUpdate
	case ev.ArtifactUpdate != nil:
		taskID, kind = ev.ArtifactUpdate.TaskID, a2a.EventKindArtifactUpdate
	}

	if err := w.bus.Publish(ctx, taskSubject(taskID), bus.NewEvent(kind, w.name, string(data))); err != nil {
		w.logger.WithError(err).Error("Failed to publish stream event",
			zap.String("task_id", taskID))
	}
}

// contentFromParts converts the incoming message parts to provider content.
// File references are resolved against the file store; inline files are moved
// into the store first so every file can be announced to the model by id.
func (w *Worker) contentFromParts(parts []a2a.Part) ([]openai.ChatMessagePart, error) {
	var content []openai.ChatMessagePart
	for _, part := range parts {
		switch part.Kind {
		case a2a.PartKindText:
			content = append(content, gateway.TextPart(part.Text))
		case a2a.PartKindFile:
			if part.File == nil {
				return nil, errors.InvalidInput("file part without file content")
			}
			if !w.mediaSupported(part.File.MimeType) {
				return nil, errors.InvalidInput("unsupported media type: " + part.File.MimeType)
			}
			fileID := part.File.FileID
			payload := part.File.Bytes
			if payload != "" {
				id, err := w.files.Put(payload, part.File.MimeType)
				if err != nil {
					return nil, err
				}
				fileID = id
			} else {
				file, err := w.files.Get(fileID)
				if err != nil {
					return nil, err
				}
				payload = file.Bytes
			}
			content = append(content,
				gateway.MediaPart(part.File.MimeType, payload),
				gateway.TextPart("the ID of this file is "+fileID))
		default:
			return nil, errors.InvalidInput("unknown part kind: " + part.Kind)
		}
	}
	if len(content) == 0 {
		return nil, errors.InvalidInput("message has no parts")
	}
	return content, nil
}

func (w *Worker) mediaSupported(mimeType string) bool {
	if len(w.system.SupportedMediaTypes) == 0 {
		return true
	}
	for _, mt := range w.system.SupportedMediaTypes {
		if mt == mimeType {
			return true
		}
	}
	return false
}
