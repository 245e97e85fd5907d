// Copyright 2026 The go-classictag Authors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package classictag

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// RetryConfig configures retry behavior for chip operations.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (0 = no retry)
	MaxAttempts int
	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which the backoff increases
	BackoffMultiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0)
	Jitter float64
}

// DefaultRetryConfig returns a retry configuration suited to a chip
// that may need a wakeup before it starts answering.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// RetryWithConfig runs retryFunc until it succeeds, fails with a
// non-retryable error or exhausts the configured attempts. Backoff
// between attempts grows exponentially with jitter.
func RetryWithConfig(ctx context.Context, config *RetryConfig, retryFunc func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return retryFunc()
	}

	var lastErr error
	backoff := config.InitialBackoff
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := retryFunc()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		Debugf("retry: attempt %d failed: %v", attempt+1, err)

		if attempt < config.MaxAttempts-1 {
			select {
			case <-time.After(jittered(backoff, config.Jitter)):
			case <-ctx.Done():
				return lastErr
			}
			backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}
	return lastErr
}

// jittered spreads a backoff duration by up to +/- factor.
func jittered(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return d
	}
	// Map to [-1, 1).
	r := float64(binary.LittleEndian.Uint64(raw[:])>>11)/(1<<53)*2 - 1
	out := time.Duration(float64(d) * (1 + factor*r))
	if out < 0 {
		return 0
	}
	return out
}
