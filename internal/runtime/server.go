package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/common/errors"
	"github.com/agentmesh/agentmesh/internal/common/logger"
	"github.com/agentmesh/agentmesh/internal/events/bus"
	"github.com/agentmesh/agentmesh/pkg/a2a"
	v1 "github.com/agentmesh/agentmesh/pkg/api/v1"
)

// streamBuffer bounds how far the executor can run ahead of a slow stream
// consumer before publishes block.
const streamBuffer = 64

// Server serves the worker's task-protocol endpoints.
type Server struct {
	worker *Worker
	logger *logger.Logger
}

// NewServer wraps a worker with its HTTP surface.
func NewServer(w *Worker, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{worker: w, logger: log}
}

// SetupRouter builds the worker's gin engine with all routes registered.
func (s *Server) SetupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(s.requestLogger(), gin.Recovery())

	router.GET(a2a.AgentCardPath, s.AgentCard)
	router.POST("/messages/send", s.SendMessage)
	router.POST("/messages/stream", s.StreamMessage)
	router.GET("/tasks/:task_id", s.GetTask)
	router.POST("/tasks/:task_id/cancel", s.CancelTask)

	return router
}

// AgentCard serves the worker's self-description. The card is served bare,
// not enveloped: callers fetch it from the well-known path without knowing
// the registry's response conventions.
func (s *Server) AgentCard(c *gin.Context) {
	c.JSON(http.StatusOK, s.worker.Card())
}

// SendMessage runs a task to completion and returns the final task.
func (s *Server) SendMessage(c *gin.Context) {
	var params a2a.MessageSendParams
	if err := c.ShouldBindJSON(&params); err != nil {
		s.respondError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}

	task, err := s.worker.Submit(c.Request.Context(), params.Message)
	if err != nil {
		s.respondError(c, err)
		return
	}
	// The task outlives the caller: a disconnect must not abort the run.
	final := s.worker.Execute(context.WithoutCancel(c.Request.Context()), task, params.Message)
	c.JSON(http.StatusOK, v1.Success(final))
}

// StreamMessage runs a task while streaming its update events as server-sent
// events. The stream carries the initial task, then every status and artifact
// update, and closes after the final status.
func (s *Server) StreamMessage(c *gin.Context) {
	var params a2a.MessageSendParams
	if err := c.ShouldBindJSON(&params); err != nil {
		s.respondError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		s.respondError(c, errors.InternalError("streaming unsupported by connection", nil))
		return
	}

	ctx := c.Request.Context()
	task, err := s.worker.Submit(ctx, params.Message)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	// The initial Task event was published before we could subscribe, so it
	// is written directly; everything after arrives over the bus.
	if err := s.writeEvent(c, flusher, a2a.StreamEvent{Task: task}); err != nil {
		return
	}

	events := make(chan a2a.StreamEvent, streamBuffer)
	sub, err := s.worker.bus.Subscribe(taskSubject(task.ID), func(evCtx context.Context, e *bus.Event) error {
		payload, ok := e.Data.(string)
		if !ok {
			return nil
		}
		ev, err := a2a.DecodeStreamEvent([]byte(payload))
		if err != nil {
			s.logger.WithError(err).Error("Failed to decode stream event")
			return nil
		}
		select {
		case events <- *ev:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to subscribe to task updates")
		return
	}
	defer sub.Unsubscribe()

	// Only the stream writer follows the request context; the executor runs
	// the task to its final state even when the caller goes away.
	go s.worker.Execute(context.WithoutCancel(ctx), task, params.Message)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := s.writeEvent(c, flusher, ev); err != nil {
				return
			}
			if ev.StatusUpdate != nil && ev.StatusUpdate.Final {
				return
			}
		}
	}
}

func (s *Server) writeEvent(c *gin.Context, flusher http.Flusher, ev a2a.StreamEvent) error {
	data, err := a2a.EncodeStreamEvent(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// GetTask returns a task by id.
func (s *Server) GetTask(c *gin.Context) {
	task, err := s.worker.tasks.Get(c.Param("task_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.Success(task))
}

// CancelTask rejects cancellation; the executor runs tasks to completion.
func (s *Server) CancelTask(c *gin.Context) {
	s.respondError(c, errors.Unsupported("tasks/cancel"))
}

func (s *Server) respondError(c *gin.Context, err error) {
	c.JSON(errors.GetHTTPStatus(err), v1.Error(err.Error()))
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
