// Package api exposes the registry's HTTP surface.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/common/logger"
	"github.com/agentmesh/agentmesh/internal/registry/graph"
	"github.com/agentmesh/agentmesh/pkg/a2a"
	v1 "github.com/agentmesh/agentmesh/pkg/api/v1"
)

// ChatService drives a user's planner conversation. Implemented by the
// registry chat service; abstracted here so handler tests can fake it.
type ChatService interface {
	Chat(ctx context.Context, userID, conversationID string, parts []a2a.Part) (string, error)
}

// Handlers carries the dependencies of the registry endpoints.
type Handlers struct {
	graph  *graph.Store
	chat   ChatService
	logger *logger.Logger
}

// NewHandlers creates the registry endpoint handlers.
func NewHandlers(g *graph.Store, chat ChatService, log *logger.Logger) *Handlers {
	if log == nil {
		log = logger.Default()
	}
	return &Handlers{graph: g, chat: chat, logger: log}
}

func respondError(c *gin.Context, err error) {
	c.JSON(errors.GetHTTPStatus(err), v1.Error(err.Error()))
}

func bindJSON(c *gin.Context, out interface{}) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, v1.Error("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// RegisterAgent handles POST /agents/register.
func (h *Handlers) RegisterAgent(c *gin.Context) {
	var req v1.RegisterAgentRequest
	if !bindJSON(c, &req) {
		return
	}

	var visibleTo []string
	if req.VisibleTo != nil {
		visibleTo = *req.VisibleTo
	}
	agentID, err := h.graph.RegisterAgent(req.Name, req.URL, req.Category, req.Expose, visibleTo)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.RegisterAgentResponse{
		Status:  v1.StatusSuccess,
		AgentID: agentID,
	})
}

// KeepAlive handles POST /agents/keepalive.
func (h *Handlers) KeepAlive(c *gin.Context) {
	var req v1.AgentIDRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.graph.KeepAlive(req.AgentID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// UnregisterAgent handles POST /agents/unregister.
func (h *Handlers) UnregisterAgent(c *gin.Context) {
	var req v1.AgentIDRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.graph.UnregisterAgent(req.AgentID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// Discover handles POST /agents/discover.
func (h *Handlers) Discover(c *gin.Context) {
	var req v1.AgentIDRequest
	if !bindJSON(c, &req) {
		return
	}
	agents, err := h.graph.Discover(req.AgentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.Success(toAgentInfos(agents)))
}

// GetAllAgents handles GET /agents/all.
func (h *Handlers) GetAllAgents(c *gin.Context) {
	c.JSON(http.StatusOK, v1.Success(toAgentInfos(h.graph.GetAll())))
}

// AddInteraction handles POST /interactions/add.
func (h *Handlers) AddInteraction(c *gin.Context) {
	var req v1.InteractionAddRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.graph.AddInteraction(req.SrcID, req.DstID, req.Message); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// DeleteInteraction handles POST /interactions/delete.
func (h *Handlers) DeleteInteraction(c *gin.Context) {
	var req v1.InteractionDeleteRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.graph.DeleteInteraction(req.SrcID, req.DstID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// GetInteractions handles GET /interactions.
func (h *Handlers) GetInteractions(c *gin.Context) {
	c.JSON(http.StatusOK, v1.Success(h.graph.Interactions()))
}

// GetUserInteractions handles GET /interactions/user/:user_id.
func (h *Handlers) GetUserInteractions(c *gin.Context) {
	edges, err := h.graph.UserInteractions(c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.Success(edges))
}

// TaskCountAdd handles POST /task_count/add.
func (h *Handlers) TaskCountAdd(c *gin.Context) {
	var req v1.AgentIDRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.graph.TaskCountAdd(req.AgentID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// TaskCountDelete handles POST /task_count/delete.
func (h *Handlers) TaskCountDelete(c *gin.Context) {
	var req v1.AgentIDRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.graph.TaskCountDelete(req.AgentID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// GetTaskCount handles GET /task_count/:agent_id.
func (h *Handlers) GetTaskCount(c *gin.Context) {
	count, err := h.graph.TaskCount(c.Param("agent_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.Success(count))
}

// GetAllTaskCounts handles GET /task_count.
func (h *Handlers) GetAllTaskCounts(c *gin.Context) {
	c.JSON(http.StatusOK, v1.Success(h.graph.TaskCounts()))
}

// GetGraph handles GET /graph.
func (h *Handlers) GetGraph(c *gin.Context) {
	c.JSON(http.StatusOK, v1.Success(h.graph.Snapshot()))
}

// TaskEvent handles POST /events/task/:user_id.
func (h *Handlers) TaskEvent(c *gin.Context) {
	var task a2a.Task
	if !bindJSON(c, &task) {
		return
	}
	if err := h.graph.StoreTask(c.Param("user_id"), &task); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// TaskStatusEvent handles POST /events/task_status/:user_id.
func (h *Handlers) TaskStatusEvent(c *gin.Context) {
	var ev a2a.TaskStatusUpdateEvent
	if !bindJSON(c, &ev) {
		return
	}
	if err := h.graph.UpdateTaskStatus(c.Param("user_id"), &ev); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// TaskArtifactEvent handles POST /events/task_artifact/:user_id.
func (h *Handlers) TaskArtifactEvent(c *gin.Context) {
	var ev a2a.TaskArtifactUpdateEvent
	if !bindJSON(c, &ev) {
		return
	}
	if err := h.graph.UpdateTaskArtifact(c.Param("user_id"), &ev); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// GetTasks handles GET /events/get/tasks/:user_id.
func (h *Handlers) GetTasks(c *gin.Context) {
	tasks, err := h.graph.Tasks(c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.Success(toTaskSummaries(tasks)))
}

// GetArtifacts handles GET /events/get/artifacts/:user_id.
func (h *Handlers) GetArtifacts(c *gin.Context) {
	artifacts, err := h.graph.Artifacts(c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.Success(artifacts))
}

// GetAllTasks handles GET /events/get/all_tasks.
func (h *Handlers) GetAllTasks(c *gin.Context) {
	all := h.graph.AllTasks()
	out := make(map[string]map[string]v1.TaskSummary, len(all))
	for userID, tasks := range all {
		out[userID] = toTaskSummaries(tasks)
	}
	c.JSON(http.StatusOK, v1.Success(out))
}

// GetAllArtifacts handles GET /events/get/all_artifacts.
func (h *Handlers) GetAllArtifacts(c *gin.Context) {
	c.JSON(http.StatusOK, v1.Success(h.graph.AllArtifacts()))
}

// RegisterUser handles POST /user/register.
func (h *Handlers) RegisterUser(c *gin.Context) {
	var req v1.UserRegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.graph.RegisterUser(req.UserID, req.UserName); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// UnregisterUser handles POST /user/unregister.
func (h *Handlers) UnregisterUser(c *gin.Context) {
	var req v1.UserUnregisterRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.graph.UnregisterUser(req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.OK())
}

// UnregisterAllUsers handles POST /user/unregister_all.
func (h *Handlers) UnregisterAllUsers(c *gin.Context) {
	h.graph.UnregisterAllUsers()
	c.JSON(http.StatusOK, v1.OK())
}

// UserChat handles POST /user/chat.
func (h *Handlers) UserChat(c *gin.Context) {
	var req v1.UserChatRequest
	if !bindJSON(c, &req) {
		return
	}
	reply, err := h.chat.Chat(c.Request.Context(), req.UserID, req.ConversationID, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.Success(reply))
}

// GetUserMessages handles GET /user/messages/:user_id/:conversation_id.
func (h *Handlers) GetUserMessages(c *gin.Context) {
	messages, err := h.graph.ConversationMessages(c.Param("user_id"), c.Param("conversation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.Success(messages))
}

// GetUserConversations handles GET /user/conversations/:user_id.
func (h *Handlers) GetUserConversations(c *gin.Context) {
	userID := c.Param("user_id")
	conversations, err := h.graph.Conversations(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.Success(v1.ConversationsResponse{
		UserID:        userID,
		Conversations: conversations,
	}))
}

func toAgentInfos(agents []graph.AgentInfo) []v1.AgentInfo {
	out := make([]v1.AgentInfo, 0, len(agents))
	for _, a := range agents {
		out = append(out, v1.AgentInfo{
			AgentID:  a.AgentID,
			Name:     a.Name,
			URL:      a.URL,
			Category: a.Category,
		})
	}
	return out
}

func toTaskSummaries(tasks map[string]*a2a.Task) map[string]v1.TaskSummary {
	out := make(map[string]v1.TaskSummary, len(tasks))
	for id, task := range tasks {
		out[id] = v1.TaskSummary{
			ID:      task.ID,
			Status:  string(task.Status.State),
			Message: task.Status.Message,
		}
	}
	return out
}
