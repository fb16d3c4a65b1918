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

package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

type listResponse struct {
	Prompts    []*prompts.Prompt `json:"prompts"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type updateRequest struct {
	Version *int          `json:"version"`
	Patch   prompts.Patch `json:"patch"`
}

type renderRequest struct {
	Arguments map[string]string `json:"arguments"`
	Version   *int              `json:"version,omitempty"`
}

type versionsResponse struct {
	ID       string `json:"id"`
	Versions []int  `json:"versions"`
}

type searchResponse struct {
	Hits []prompts.SearchHit `json:"hits"`
}

func (h *handlers) health(c *gin.Context) {
	if err := h.storage.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "storage": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": "ok"})
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		abortBadRequest(c, key+": not an integer")
		return 0, false
	}
	return v, true
}

func (h *handlers) listPrompts(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	page, err := h.service.List(c.Request.Context(), prompts.ListFilter{
		Tags:       c.QueryArray("tag"),
		NamePrefix: c.Query("name_prefix"),
		Limit:      limit,
		Cursor:     c.Query("cursor"),
	})
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	out := listResponse{Prompts: page.Prompts, NextCursor: page.NextCursor}
	if out.Prompts == nil {
		out.Prompts = []*prompts.Prompt{}
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) createPrompt(c *gin.Context) {
	var spec prompts.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		abortBadRequest(c, "invalid prompt body: "+err.Error())
		return
	}
	p, err := h.service.Create(c.Request.Context(), spec)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.Header("Location", "/prompts/"+p.ID)
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) getPrompt(c *gin.Context) {
	version, ok := queryInt(c, "version", prompts.LatestVersion)
	if !ok {
		return
	}
	p, err := h.service.Get(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) updatePrompt(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "invalid update body: "+err.Error())
		return
	}
	if req.Version == nil {
		abortBadRequest(c, "version: required")
		return
	}
	p, err := h.service.Update(c.Request.Context(), c.Param("id"), *req.Version, req.Patch)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) deletePrompt(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) renderPrompt(c *gin.Context) {
	var req renderRequest
	// An empty body renders the current version with no arguments.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortBadRequest(c, "invalid render body: "+err.Error())
		return
	}
	version := prompts.LatestVersion
	if req.Version != nil {
		version = *req.Version
	}
	out, err := h.service.Render(c.Request.Context(), prompts.RenderRequest{
		ID:        c.Param("id"),
		Version:   version,
		Arguments: req.Arguments,
	})
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) promptVersions(c *gin.Context) {
	id := c.Param("id")
	versions, err := h.service.Versions(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, versionsResponse{ID: id, Versions: versions})
}

func (h *handlers) diffPrompt(c *gin.Context) {
	if c.Query("from") == "" || c.Query("to") == "" {
		abortBadRequest(c, "from and to are required")
		return
	}
	from, ok := queryInt(c, "from", 0)
	if !ok {
		return
	}
	to, ok := queryInt(c, "to", 0)
	if !ok {
		return
	}
	d, err := h.service.Diff(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handlers) search(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	hits, err := h.service.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	if hits == nil {
		hits = []prompts.SearchHit{}
	}
	c.JSON(http.StatusOK, searchResponse{Hits: hits})
}
