package graph

import (
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/errors"
)

// AddInteraction opens a directed edge from src to dst, recording an excerpt
// of the opening message. At most one edge per (src, dst) pair is kept.
func (s *Store) AddInteraction(srcID, dstID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.nodeInteractionsLocked(srcID)
	if err != nil {
		return err
	}
	if _, err := s.categoryLocked(dstID); err != nil {
		return errors.NotFound("agent", dstID)
	}

	for _, edge := range *src {
		if edge.DstID == dstID {
			return nil
		}
	}
	*src = append(*src, Interaction{DstID: dstID, MessageExcerpt: excerpt(message)})

	s.logger.Info("Interaction added",
		zap.String("src_id", srcID),
		zap.String("dst_id", dstID))
	return nil
}

// DeleteInteraction closes the edge from src to dst. Removing an edge that
// does not exist is not an error.
func (s *Store) DeleteInteraction(srcID, dstID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.nodeInteractionsLocked(srcID)
	if err != nil {
		return err
	}
	if _, err := s.categoryLocked(dstID); err != nil {
		return errors.NotFound("agent", dstID)
	}

	for i, edge := range *src {
		if edge.DstID == dstID {
			*src = append((*src)[:i], (*src)[i+1:]...)
			s.logger.Info("Interaction deleted",
				zap.String("src_id", srcID),
				zap.String("dst_id", dstID))
			return nil
		}
	}
	return nil
}

// Interactions returns every live edge as [src, dst] pairs.
func (s *Store) Interactions() [][2]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result [][2]string
	for id, agent := range s.agents {
		for _, edge := range agent.Interactions {
			result = append(result, [2]string{id, edge.DstID})
		}
	}
	for id, user := range s.users {
		for _, edge := range user.Interactions {
			result = append(result, [2]string{id, edge.DstID})
		}
	}
	return result
}

// UserInteractions returns the live edges leaving a user node as
// [dst_id, dst_name] pairs. Edges whose destination has since been evicted
// carry an empty name.
func (s *Store) UserInteractions(userID string) ([][2]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, err := s.userLocked(userID)
	if err != nil {
		return nil, err
	}

	result := make([][2]string, 0, len(user.Interactions))
	for _, edge := range user.Interactions {
		name := ""
		if dst, ok := s.agents[edge.DstID]; ok {
			name = dst.Name
		}
		result = append(result, [2]string{edge.DstID, name})
	}
	return result, nil
}

// TaskCountAdd increments a public agent's in-flight counter.
func (s *Store) TaskCountAdd(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, err := s.publicLocked(agentID)
	if err != nil {
		return err
	}
	agent.TaskCount++
	return nil
}

// TaskCountDelete decrements a public agent's in-flight counter, never below
// zero.
func (s *Store) TaskCountDelete(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, err := s.publicLocked(agentID)
	if err != nil {
		return err
	}
	if agent.TaskCount > 0 {
		agent.TaskCount--
	}
	return nil
}

// TaskCount returns a public agent's in-flight counter.
func (s *Store) TaskCount(agentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, err := s.publicLocked(agentID)
	if err != nil {
		return 0, err
	}
	return agent.TaskCount, nil
}

// TaskCounts returns the in-flight counters of all public agents.
func (s *Store) TaskCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int, len(s.agents))
	for id, agent := range s.agents {
		result[id] = agent.TaskCount
	}
	return result
}

// nodeInteractionsLocked resolves the interaction slice of any node kind.
func (s *Store) nodeInteractionsLocked(id string) (*[]Interaction, error) {
	if agent, ok := s.agents[id]; ok {
		return &agent.Interactions, nil
	}
	if user, ok := s.users[id]; ok {
		return &user.Interactions, nil
	}
	return nil, errors.NotFound("agent", id)
}
