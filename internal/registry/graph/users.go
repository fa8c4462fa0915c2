package graph

import (
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/pkg/a2a"
)

// ProviderMessage is one transcript entry of a planner conversation, in the
// reasoning-model provider's own message format.
type ProviderMessage = openai.ChatCompletionMessage

// RegisterUser creates a user node with an empty conversation map.
func (s *Store) RegisterUser(userID, userName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; ok {
		return errors.AlreadyExists("user", userID)
	}
	if _, ok := s.agents[userID]; ok {
		return errors.AlreadyExists("user", userID)
	}

	s.users[userID] = &User{
		ID:            userID,
		Kind:          KindUser,
		Name:          userName,
		Category:      UserCategory,
		Tasks:         make(map[string]*a2a.Task),
		Conversations: make(map[string][]ProviderMessage),
	}

	s.logger.Info("User registered",
		zap.String("user_id", userID),
		zap.String("user_name", userName))
	return nil
}

// UnregisterUser removes a user node.
func (s *Store) UnregisterUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.userLocked(userID); err != nil {
		return err
	}
	delete(s.users, userID)
	s.logger.Info("User unregistered", zap.String("user_id", userID))
	return nil
}

// UnregisterAllUsers removes every user node and returns how many were removed.
func (s *Store) UnregisterAllUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.users)
	s.users = make(map[string]*User)
	if n > 0 {
		s.logger.Info("All users unregistered", zap.Int("count", n))
	}
	return n
}

// UserExists reports whether a user node exists.
func (s *Store) UserExists(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// ConversationMessages returns a copy of a conversation transcript.
func (s *Store) ConversationMessages(userID, conversationID string) ([]ProviderMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, err := s.userLocked(userID)
	if err != nil {
		return nil, err
	}
	messages, ok := user.Conversations[conversationID]
	if !ok {
		return nil, errors.NotFound("conversation", conversationID)
	}
	out := make([]ProviderMessage, len(messages))
	copy(out, messages)
	return out, nil
}

// LoadOrSeedConversation returns a copy of the named conversation, creating
// it seeded with the given system prompt when it does not exist yet.
func (s *Store) LoadOrSeedConversation(userID, conversationID, systemPrompt string) ([]ProviderMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.userLocked(userID)
	if err != nil {
		return nil, err
	}
	messages, ok := user.Conversations[conversationID]
	if !ok {
		messages = []ProviderMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		}}
		user.Conversations[conversationID] = messages
		s.logger.Info("Conversation created",
			zap.String("user_id", userID),
			zap.String("conversation_id", conversationID))
	}
	out := make([]ProviderMessage, len(messages))
	copy(out, messages)
	return out, nil
}

// SaveConversation replaces a conversation transcript.
func (s *Store) SaveConversation(userID, conversationID string, messages []ProviderMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.userLocked(userID)
	if err != nil {
		return err
	}
	out := make([]ProviderMessage, len(messages))
	copy(out, messages)
	user.Conversations[conversationID] = out
	return nil
}

// Conversations lists a user's conversation ids.
func (s *Store) Conversations(userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, err := s.userLocked(userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(user.Conversations))
	for id := range user.Conversations {
		ids = append(ids, id)
	}
	return ids, nil
}
