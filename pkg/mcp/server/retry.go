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

package server

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

// DefaultRetryAttempts bounds attempts of an idempotent read.
const DefaultRetryAttempts = 3

const (
	retryInitialInterval = 25 * time.Millisecond
	retryMaxInterval     = 250 * time.Millisecond
)

type retryPolicy struct {
	attempts uint
	initial  time.Duration
	max      time.Duration
}

func newRetryPolicy(attempts int) retryPolicy {
	return retryPolicy{attempts: uint(attempts), initial: retryInitialInterval, max: retryMaxInterval}
}

// retryRead runs op, retrying IOFailure with exponential backoff. Every
// other error is returned at once. Only reads the caller marked idempotent
// come through here.
func retryRead[T any](ctx context.Context, p retryPolicy, logger *zap.Logger, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.max

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !prompts.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("retrying transient storage failure", zap.Duration("backoff", next), zap.Error(err))
		}),
	)
}
