// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api serves the REST interface of promptd and mounts the MCP
// transports on the same listener.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Authenticator decides whether a request may proceed. promptd ships no
// implementation; embedders install their own.
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) error

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(r *http.Request) error { return f(r) }

// Config wires the router.
type Config struct {
	Service prompts.Service // Required
	Storage Pinger          // Required

	// Optional handlers mounted next to the REST routes.
	Metrics   http.Handler
	MCP       http.Handler
	WebSocket http.Handler

	Authenticator Authenticator
	CORS          CORSConfig
	Logger        *zap.Logger
}

type handlers struct {
	service prompts.Service
	storage Pinger
	logger  *zap.Logger
}

// NewRouter builds the gin engine. Health and metrics are never behind the
// authenticator.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &handlers{service: cfg.Service, storage: cfg.Storage, logger: cfg.Logger}

	r := gin.New()
	r.Use(requestID(), recovery(cfg.Logger), requestLogger(cfg.Logger))
	if cfg.CORS.Enabled {
		r.Use(cors(cfg.CORS))
	}

	r.GET("/health", h.health)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := r.Group("/")
	if cfg.Authenticator != nil {
		api.Use(authenticate(cfg.Authenticator))
	}

	api.GET("/prompts", h.listPrompts)
	api.POST("/prompts", h.createPrompt)
	api.GET("/prompts/:id", h.getPrompt)
	api.PUT("/prompts/:id", h.updatePrompt)
	api.DELETE("/prompts/:id", h.deletePrompt)
	api.POST("/prompts/:id/render", h.renderPrompt)
	api.GET("/prompts/:id/versions", h.promptVersions)
	api.GET("/prompts/:id/diff", h.diffPrompt)
	api.GET("/search", h.search)

	if cfg.MCP != nil {
		mcp := gin.WrapH(cfg.MCP)
		api.POST("/mcp", mcp)
		api.GET("/mcp", mcp)
		api.DELETE("/mcp", mcp)
	}
	if cfg.WebSocket != nil {
		api.GET("/ws", gin.WrapH(cfg.WebSocket))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Error: errorDetail{Kind: "NotFound", Message: "no such route"}})
	})
	return r
}
