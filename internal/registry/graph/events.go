package graph

import (
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

// StoreTask records a full task snapshot under the user it belongs to,
// stamped with the current time and overwriting any prior copy.
func (s *Store) StoreTask(userID string, task *a2a.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.userLocked(userID)
	if err != nil {
		return err
	}

	stamped := task.Clone()
	stamped.CreatedAt = s.now()
	user.Tasks[task.ID] = stamped

	s.logger.Info("Task stored",
		zap.String("user_id", userID),
		zap.String("task_id", task.ID),
		zap.String("state", string(task.Status.State)))
	return nil
}

// UpdateTaskStatus replaces a stored task's status. Updates against a task
// already in a terminal state are ignored.
func (s *Store) UpdateTaskStatus(userID string, ev *a2a.TaskStatusUpdateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.userLocked(userID)
	if err != nil {
		return err
	}
	task, ok := user.Tasks[ev.TaskID]
	if !ok {
		return errors.NotFound("task", ev.TaskID)
	}
	if task.Status.State.Terminal() {
		return nil
	}
	task.Status = ev.Status

	s.logger.Info("Task status updated",
		zap.String("user_id", userID),
		zap.String("task_id", ev.TaskID),
		zap.String("state", string(ev.Status.State)))
	return nil
}

// UpdateTaskArtifact applies an artifact update to a stored task. With
// append set, the parts extend the artifact with the matching id and a
// missing artifact is an error; otherwise the artifact is added to the task.
// Updates against a terminal task are ignored.
func (s *Store) UpdateTaskArtifact(userID string, ev *a2a.TaskArtifactUpdateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.userLocked(userID)
	if err != nil {
		return err
	}
	task, ok := user.Tasks[ev.TaskID]
	if !ok {
		return errors.NotFound("task", ev.TaskID)
	}
	if task.Status.State.Terminal() {
		return nil
	}

	if ev.Append {
		for i := range task.Artifacts {
			if task.Artifacts[i].ArtifactID == ev.Artifact.ArtifactID {
				task.Artifacts[i].Parts = append(task.Artifacts[i].Parts, ev.Artifact.Parts...)
				return nil
			}
		}
		return errors.NotFound("artifact", ev.Artifact.ArtifactID)
	}

	task.Artifacts = append(task.Artifacts, ev.Artifact)

	s.logger.Info("Task artifact stored",
		zap.String("user_id", userID),
		zap.String("task_id", ev.TaskID),
		zap.String("artifact_id", ev.Artifact.ArtifactID))
	return nil
}

// Tasks returns copies of the tasks stored under a user.
func (s *Store) Tasks(userID string) (map[string]*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, err := s.userLocked(userID)
	if err != nil {
		return nil, err
	}
	return copyTasks(user.Tasks), nil
}

// AllTasks returns the tasks of every user, keyed by user id.
func (s *Store) AllTasks() map[string]map[string]*a2a.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]map[string]*a2a.Task, len(s.users))
	for id, user := range s.users {
		result[id] = copyTasks(user.Tasks)
	}
	return result
}

// Artifacts returns every artifact across a user's tasks.
func (s *Store) Artifacts(userID string) ([]a2a.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, err := s.userLocked(userID)
	if err != nil {
		return nil, err
	}
	return collectArtifacts(user.Tasks), nil
}

// AllArtifacts returns the artifacts of every user, keyed by user id.
func (s *Store) AllArtifacts() map[string][]a2a.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string][]a2a.Artifact, len(s.users))
	for id, user := range s.users {
		result[id] = collectArtifacts(user.Tasks)
	}
	return result
}

func copyTasks(tasks map[string]*a2a.Task) map[string]*a2a.Task {
	out := make(map[string]*a2a.Task, len(tasks))
	for id, task := range tasks {
		out[id] = task.Clone()
	}
	return out
}

func collectArtifacts(tasks map[string]*a2a.Task) []a2a.Artifact {
	var artifacts []a2a.Artifact
	for _, task := range tasks {
		artifacts = append(artifacts, a2a.CloneArtifacts(task.Artifacts)...)
	}
	return artifacts
}
