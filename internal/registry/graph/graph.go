// Package graph holds the registry's in-memory network graph: public agent
// nodes, user nodes, interaction edges, in-flight task counters, and the task
// event store. A single RWMutex guards the whole structure; no method holds
// the lock across I/O.
package graph

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/common/logger"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

// Node kinds.
const (
	KindPublic = "public"
	KindUser   = "user"
)

// UserCategory is the category every user node carries for visibility checks.
const UserCategory = "User"

// excerptLimit caps the stored interaction message excerpt.
const excerptLimit = 120

// Interaction is one directed edge in the live call graph.
type Interaction struct {
	DstID          string `json:"dst_id"`
	MessageExcerpt string `json:"message_excerpt,omitempty"`
}

// PublicAgent is a registered worker node.
type PublicAgent struct {
	ID           string               `json:"agent_id"`
	Kind         string               `json:"kind"`
	Name         string               `json:"name"`
	URL          string               `json:"url"`
	Category     string               `json:"category"`
	Expose       bool                 `json:"expose"`
	VisibleTo    []string             `json:"visible_to,omitempty"` // nil = visible to all
	LastSeen     time.Time            `json:"last_seen"`
	TaskCount    int                  `json:"task_count"`
	Interactions []Interaction        `json:"interactions"`
	Tasks        map[string]*a2a.Task `json:"tasks"`
}

// User is a registered user node. Conversations hold the raw provider
// transcripts of the planner chat, keyed by conversation id.
type User struct {
	ID            string                       `json:"user_id"`
	Kind          string                       `json:"kind"`
	Name          string                       `json:"name"`
	Category      string                       `json:"category"`
	Interactions  []Interaction                `json:"interactions"`
	Tasks         map[string]*a2a.Task         `json:"tasks"`
	Conversations map[string][]ProviderMessage `json:"conversations"`
}

// AgentInfo is the discovery view of one public agent.
type AgentInfo struct {
	AgentID  string
	Name     string
	URL      string
	Category string
}

// Store is the shared network graph.
type Store struct {
	mu     sync.RWMutex
	agents map[string]*PublicAgent
	users  map[string]*User
	logger *logger.Logger
	now    func() time.Time
}

// NewStore creates an empty graph.
func NewStore(log *logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	return &Store{
		agents: make(map[string]*PublicAgent),
		users:  make(map[string]*User),
		logger: log,
		now:    time.Now,
	}
}

// RegisterAgent inserts a public node and returns its fresh id. Registration
// is rejected when another public node already claims the URL.
func (s *Store) RegisterAgent(name, url, category string, expose bool, visibleTo []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, agent := range s.agents {
		if agent.URL == url {
			return "", errors.AlreadyExists("agent", url)
		}
	}

	id := a2a.NewID()
	s.agents[id] = &PublicAgent{
		ID:        id,
		Kind:      KindPublic,
		Name:      name,
		URL:       url,
		Category:  category,
		Expose:    expose,
		VisibleTo: visibleTo,
		LastSeen:  s.now(),
		Tasks:     make(map[string]*a2a.Task),
	}

	s.logger.Info("Agent registered",
		zap.String("agent_id", id),
		zap.String("name", name),
		zap.String("url", url),
		zap.String("category", category))
	return id, nil
}

// KeepAlive refreshes a public node's last-seen timestamp.
func (s *Store) KeepAlive(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, err := s.publicLocked(agentID)
	if err != nil {
		return err
	}
	agent.LastSeen = s.now()
	return nil
}

// UnregisterAgent removes a public node.
func (s *Store) UnregisterAgent(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.publicLocked(agentID); err != nil {
		return err
	}
	delete(s.agents, agentID)
	s.logger.Info("Agent unregistered", zap.String("agent_id", agentID))
	return nil
}

// Discover returns the public agents visible to the requester. An agent A is
// visible to requester R iff A.category == R.category, or A is exposed and
// its visible_to list is nil or contains R's category. The requester itself
// satisfies the same-category clause and is included in its own result.
func (s *Store) Discover(requesterID string) ([]AgentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, err := s.categoryLocked(requesterID)
	if err != nil {
		return nil, err
	}

	var result []AgentInfo
	for id, agent := range s.agents {
		if !visible(agent, category) {
			continue
		}
		result = append(result, AgentInfo{
			AgentID:  id,
			Name:     agent.Name,
			URL:      agent.URL,
			Category: agent.Category,
		})
	}
	return result, nil
}

// GetAll returns every public agent regardless of visibility.
func (s *Store) GetAll() []AgentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]AgentInfo, 0, len(s.agents))
	for id, agent := range s.agents {
		result = append(result, AgentInfo{
			AgentID:  id,
			Name:     agent.Name,
			URL:      agent.URL,
			Category: agent.Category,
		})
	}
	return result
}

// Evict removes public nodes not seen within threshold and returns their ids.
// In-flight interaction edges pointing at evicted nodes are left dangling.
func (s *Store) Evict(threshold time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var evicted []string
	for id, agent := range s.agents {
		if now.Sub(agent.LastSeen) > threshold {
			delete(s.agents, id)
			evicted = append(evicted, id)
			s.logger.Warn("Agent evicted, keep-alive expired",
				zap.String("agent_id", id),
				zap.String("name", agent.Name))
		}
	}
	return evicted
}

// Snapshot returns a detached copy of the whole graph keyed by node id. The
// caller marshals it after the lock is released, so every map and slice is
// deep-copied.
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := make(map[string]interface{}, len(s.agents)+len(s.users))
	for id, agent := range s.agents {
		copied := *agent
		copied.VisibleTo = append([]string(nil), agent.VisibleTo...)
		copied.Interactions = append([]Interaction(nil), agent.Interactions...)
		copied.Tasks = copyTasks(agent.Tasks)
		view[id] = &copied
	}
	for id, user := range s.users {
		copied := *user
		copied.Interactions = append([]Interaction(nil), user.Interactions...)
		copied.Tasks = copyTasks(user.Tasks)
		copied.Conversations = make(map[string][]ProviderMessage, len(user.Conversations))
		for cid, msgs := range user.Conversations {
			copied.Conversations[cid] = append([]ProviderMessage(nil), msgs...)
		}
		view[id] = &copied
	}
	return view
}

func visible(agent *PublicAgent, requesterCategory string) bool {
	if agent.Category == requesterCategory {
		return true
	}
	if !agent.Expose {
		return false
	}
	if agent.VisibleTo == nil {
		return true
	}
	for _, c := range agent.VisibleTo {
		if c == requesterCategory {
			return true
		}
	}
	return false
}

// publicLocked returns the public node for id; a user id yields InvalidRole.
func (s *Store) publicLocked(agentID string) (*PublicAgent, error) {
	if agent, ok := s.agents[agentID]; ok {
		return agent, nil
	}
	if _, ok := s.users[agentID]; ok {
		return nil, errors.InvalidRole(agentID, KindPublic)
	}
	return nil, errors.NotFound("agent", agentID)
}

// userLocked returns the user node for id; a public id yields InvalidRole.
func (s *Store) userLocked(userID string) (*User, error) {
	if user, ok := s.users[userID]; ok {
		return user, nil
	}
	if _, ok := s.agents[userID]; ok {
		return nil, errors.InvalidRole(userID, KindUser)
	}
	return nil, errors.NotFound("user", userID)
}

// categoryLocked resolves the category of any node.
func (s *Store) categoryLocked(id string) (string, error) {
	if agent, ok := s.agents[id]; ok {
		return agent.Category, nil
	}
	if user, ok := s.users[id]; ok {
		return user.Category, nil
	}
	return "", errors.NotFound("agent", id)
}

// excerpt truncates on a rune boundary so multi-byte text stays valid UTF-8.
func excerpt(message string) string {
	runes := []rune(message)
	if len(runes) <= excerptLimit {
		return message
	}
	return string(runes[:excerptLimit])
}
