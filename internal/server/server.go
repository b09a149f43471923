// Package server exposes the agent over HTTP: a health check, a plain JSON
// invoke endpoint and an OpenAI-compatible chat completions API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nocops/itsm-agent/internal/logger"
	"github.com/nocops/itsm-agent/internal/modelbridge"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus is the body of GET /
const HealthStatus = "AIOps Agent is running."

// Engine is what the handlers need from the reasoning engine
type Engine interface {
	Invoke(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) <-chan modelbridge.Fragment
}

// Server holds the handlers and their dependencies
type Server struct {
	engine     Engine
	auth       *AuthGate
	mcp        http.Handler
	modelAlias string
	started    time.Time
	logger     *logger.Logger
}

// Option configures optional parts of the server
type Option func(*Server)

// WithMCP mounts an MCP handler at /mcp behind the auth gate
func WithMCP(h http.Handler) Option {
	return func(s *Server) {
		s.mcp = h
	}
}

// WithModelAlias sets the id listed by GET /v1/models
func WithModelAlias(alias string) Option {
	return func(s *Server) {
		s.modelAlias = alias
	}
}

// New creates a server around engine
func New(engine Engine, auth *AuthGate, opts ...Option) *Server {
	s := &Server{
		engine:     engine,
		auth:       auth,
		modelAlias: "itsm-agent",
		started:    time.Now(),
		logger:     logger.GetLogger().WithComponent("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route and middleware
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(
		RequestIDMiddleware(),
		LoggingMiddleware(s.logger.Zap(), "/metrics"),
		RecoveryMiddleware(s.logger.Zap()),
	)

	r.GET("/", s.Health)
	r.POST("/invoke", s.Invoke)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1", s.auth.Middleware())
	v1.POST("/chat/completions", s.ChatCompletions)
	v1.GET("/models", s.Models)

	if s.mcp != nil {
		r.Any("/mcp", s.auth.Middleware(), gin.WrapH(s.mcp))
	}

	return r
}
