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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return ErrNoResponse
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		return NewAckMismatchError("test", "mock")
	})
	assert.ErrorIs(t, err, ErrAckMismatch)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		return ErrNoResponse
	})
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, 3, calls)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithConfig(ctx, fastRetryConfig(), func() error {
		calls++
		cancel()
		return ErrNoResponse
	})
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, 1, calls)
}

func TestInitRetriesFirmwareProbe(t *testing.T) {
	mock := NewMockTransport()
	mock.SetError(cmdGetFirmwareVersion, ErrNoResponse)
	mock.SetResponse(cmdSamConfiguration, []byte{})

	device, err := New(mock)
	require.NoError(t, err)

	// First attempts fail; clear the fault before the retries run out.
	go func() {
		time.Sleep(5 * time.Millisecond)
		mock.ClearError(cmdGetFirmwareVersion)
		mock.SetResponse(cmdGetFirmwareVersion, []byte{0x32, 0x01, 0x06, 0x07})
	}()

	require.NoError(t, device.Init())
	assert.GreaterOrEqual(t, mock.GetCallCount(cmdGetFirmwareVersion), 2)
}
