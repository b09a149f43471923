package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/nocops/itsm-agent/internal/models"
)

const errNoMessages = "No messages provided."

// Health reports that the service is up
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: HealthStatus})
}

// Invoke runs the agent on a single prompt and returns its final answer
func (s *Server) Invoke(c *gin.Context) {
	var req models.InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	answer, err := s.engine.Invoke(c.Request.Context(), req.Prompt)
	if err != nil {
		s.logger.WithError(err).Error("Invoke failed for request id: %s", RequestID(c.Request.Context()))
		agentRequestsTotal.WithLabelValues("invoke", outcomeError).Inc()
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	agentRequestsTotal.WithLabelValues("invoke", outcomeSuccess).Inc()
	c.JSON(http.StatusOK, models.InvokeResponse{Response: answer})
}

// ChatCompletions serves the OpenAI-compatible endpoint. Only the last
// message is sent to the agent.
func (s *Server) ChatCompletions(c *gin.Context) {
	// an empty conversation is rejected whatever the other fields hold
	var head struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := c.ShouldBindBodyWith(&head, binding.JSON); err == nil && len(head.Messages) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: errNoMessages})
		return
	}

	var req models.ChatCompletionRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: errNoMessages})
		return
	}

	prompt := req.LastContent()
	s.logger.Debug("Chat completion request id: %s model=%s stream=%v messages=%d",
		RequestID(c.Request.Context()), req.Model, req.Stream, len(req.Messages))

	if req.Stream {
		s.streamCompletion(c, req.Model, prompt)
		return
	}

	answer, err := s.engine.Invoke(c.Request.Context(), prompt)
	if err != nil {
		s.logger.WithError(err).Error("Chat completion failed for request id: %s", RequestID(c.Request.Context()))
		agentRequestsTotal.WithLabelValues("chat_completions", outcomeError).Inc()
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	agentRequestsTotal.WithLabelValues("chat_completions", outcomeSuccess).Inc()
	c.JSON(http.StatusOK, models.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  models.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []models.ChatCompletionChoice{
			{
				Index:        0,
				Message:      models.ChatMessage{Role: models.RoleAssistant, Content: answer},
				FinishReason: models.FinishReasonStop,
			},
		},
	})
}

// Models lists the agent as the only available model
func (s *Server) Models(c *gin.Context) {
	c.JSON(http.StatusOK, models.ModelList{
		Object: models.ObjectList,
		Data: []models.Model{
			{
				ID:      s.modelAlias,
				Object:  models.ObjectModel,
				Created: s.started.Unix(),
				OwnedBy: "itsm-agent",
			},
		},
	})
}
