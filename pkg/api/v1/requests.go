package v1

import "github.com/agentmesh/agentmesh/pkg/a2a"

// RegisterAgentRequest registers a public agent with the registry.
type RegisterAgentRequest struct {
	Name      string    `json:"name" binding:"required"`
	URL       string    `json:"url" binding:"required"`
	Category  string    `json:"category" binding:"required"`
	Expose    bool      `json:"expose"`
	VisibleTo *[]string `json:"visible_to,omitempty"` // nil = visible to all
}

// RegisterAgentResponse carries the allocated agent id.
type RegisterAgentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
}

// AgentIDRequest addresses one agent (keepalive, unregister, discover,
// task counters).
type AgentIDRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

// AgentInfo is the discovery view of one public agent.
type AgentInfo struct {
	AgentID  string `json:"agent_id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
}

// InteractionAddRequest opens a directed interaction edge.
type InteractionAddRequest struct {
	SrcID   string `json:"src_id" binding:"required"`
	DstID   string `json:"dst_id" binding:"required"`
	Message string `json:"message,omitempty"`
}

// InteractionDeleteRequest closes a directed interaction edge.
type InteractionDeleteRequest struct {
	SrcID string `json:"src_id" binding:"required"`
	DstID string `json:"dst_id" binding:"required"`
}

// UserRegisterRequest creates a user node in the graph.
type UserRegisterRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	UserName string `json:"user_name"`
}

// UserUnregisterRequest removes a user node.
type UserUnregisterRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// UserChatRequest is the system entry point: one user turn in a named
// conversation. Message parts may carry inline files; the registry moves
// them into the file store on ingress.
type UserChatRequest struct {
	UserID         string     `json:"user_id" binding:"required"`
	ConversationID string     `json:"conversation_id" binding:"required"`
	Message        []a2a.Part `json:"message" binding:"required"`
}

// TaskSummary is the read view of one stored task.
type TaskSummary struct {
	ID      string       `json:"id"`
	Status  string       `json:"status"`
	Message *a2a.Message `json:"message,omitempty"`
}

// ConversationsResponse lists a user's conversation ids.
type ConversationsResponse struct {
	UserID        string   `json:"user_id"`
	Conversations []string `json:"conversations"`
}
