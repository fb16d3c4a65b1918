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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

var kindStatus = map[prompts.Kind]int{
	prompts.KindNotFound:         http.StatusNotFound,
	prompts.KindDuplicateID:      http.StatusConflict,
	prompts.KindConflict:         http.StatusConflict,
	prompts.KindVersionConflict:  http.StatusConflict,
	prompts.KindValidationFailed: http.StatusUnprocessableEntity,
	prompts.KindMissingArgument:  http.StatusUnprocessableEntity,
	prompts.KindTemplateError:    http.StatusUnprocessableEntity,
	prompts.KindIOFailure:        http.StatusServiceUnavailable,
}

// StatusFor maps a registry error kind to an HTTP status.
func StatusFor(kind prompts.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// abortWithError writes the error body for err and stops the chain.
func abortWithError(c *gin.Context, logger *zap.Logger, err error) {
	e, ok := prompts.AsError(err)
	if !ok {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			errorBody{Error: errorDetail{Kind: "Internal", Message: "internal error"}})
		return
	}
	status := StatusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Kind: string(e.Kind), Message: e.Message()}})
}

// abortBadRequest rejects a request that could not be decoded.
func abortBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: errorDetail{Kind: "BadRequest", Message: msg}})
}
