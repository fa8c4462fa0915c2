package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/logger"
)

// SetupRouter builds the registry's gin engine with all routes registered.
func SetupRouter(h *Handlers, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(log), gin.Recovery())

	router.POST("/agents/register", h.RegisterAgent)
	router.POST("/agents/keepalive", h.KeepAlive)
	router.POST("/agents/unregister", h.UnregisterAgent)
	router.POST("/agents/discover", h.Discover)
	router.GET("/agents/all", h.GetAllAgents)

	router.POST("/interactions/add", h.AddInteraction)
	router.POST("/interactions/delete", h.DeleteInteraction)
	router.GET("/interactions", h.GetInteractions)
	router.GET("/interactions/user/:user_id", h.GetUserInteractions)

	router.POST("/task_count/add", h.TaskCountAdd)
	router.POST("/task_count/delete", h.TaskCountDelete)
	router.GET("/task_count/:agent_id", h.GetTaskCount)
	router.GET("/task_count", h.GetAllTaskCounts)

	router.POST("/events/task/:user_id", h.TaskEvent)
	router.POST("/events/task_status/:user_id", h.TaskStatusEvent)
	router.POST("/events/task_artifact/:user_id", h.TaskArtifactEvent)
	router.GET("/events/get/tasks/:user_id", h.GetTasks)
	router.GET("/events/get/artifacts/:user_id", h.GetArtifacts)
	router.GET("/events/get/all_tasks", h.GetAllTasks)
	router.GET("/events/get/all_artifacts", h.GetAllArtifacts)

	router.POST("/user/register", h.RegisterUser)
	router.POST("/user/unregister", h.UnregisterUser)
	router.POST("/user/unregister_all", h.UnregisterAllUsers)
	router.POST("/user/chat", h.UserChat)
	router.GET("/user/messages/:user_id/:conversation_id", h.GetUserMessages)
	router.GET("/user/conversations/:user_id", h.GetUserConversations)

	router.GET("/graph", h.GetGraph)

	return router
}

// requestLogger logs each request with latency and status.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
