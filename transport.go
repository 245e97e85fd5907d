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
	"sync"
	"time"
)

// Transport is the command channel to a PN532. It owns the physical bus,
// the wakeup/ready-poll discipline and the frame codec; callers see only
// command bytes in and response payloads out.
//
// CallFunction correlates command and response: it sends [0xD4, cmd,
// params...] as a frame, verifies the chip's ACK, waits for the response
// frame and checks its (0xD5, cmd+1) markers. The returned slice is the
// payload after those two marker bytes, and may be shorter than
// responseLen if the chip supplied less - that is not an error. A timeout
// or an absorbed bus fault surfaces as ErrNoResponse.
type Transport interface {
	// CallFunction sends a command and waits for its correlated response.
	CallFunction(cmd byte, params []byte, responseLen int, timeout time.Duration) ([]byte, error)

	// CallFunctionContext is CallFunction with context support.
	CallFunctionContext(
		ctx context.Context, cmd byte, params []byte, responseLen int, timeout time.Duration,
	) ([]byte, error)

	// Wakeup toggles the bus into an active state, best effort. Called at
	// initialization and after bus-level I/O faults.
	Wakeup()

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockTransport provides a mock implementation of Transport for testing
type MockTransport struct {
	responses map[byte][]byte
	errorMap  map[byte]error
	callCount map[byte]int
	lastArgs  map[byte][]byte
	delay     time.Duration
	mu        sync.RWMutex
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		responses: make(map[byte][]byte),
		errorMap:  make(map[byte]error),
		callCount: make(map[byte]int),
		lastArgs:  make(map[byte][]byte),
	}
}

// CallFunction implements Transport
func (m *MockTransport) CallFunction(
	cmd byte, params []byte, responseLen int, timeout time.Duration,
) ([]byte, error) {
	return m.CallFunctionContext(context.Background(), cmd, params, responseLen, timeout)
}

// CallFunctionContext implements Transport
func (m *MockTransport) CallFunctionContext(
	ctx context.Context, cmd byte, params []byte, responseLen int, _ time.Duration,
) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	connected := m.connected
	delay := m.delay
	m.mu.RUnlock()

	if !connected {
		return nil, ErrTransportClosed
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount[cmd]++
	argsCopy := make([]byte, len(params))
	copy(argsCopy, params)
	m.lastArgs[cmd] = argsCopy

	if err, exists := m.errorMap[cmd]; exists {
		return nil, err
	}

	if response, exists := m.responses[cmd]; exists {
		if len(response) > responseLen {
			response = response[:responseLen]
		}
		out := make([]byte, len(response))
		copy(out, response)
		return out, nil
	}

	// Unknown command: behave like a chip that never answers.
	return nil, ErrNoResponse
}

// Wakeup implements Transport
func (*MockTransport) Wakeup() {}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetResponse configures the payload returned for a command. The payload
// is what follows the (0xD5, cmd+1) markers on the wire.
func (m *MockTransport) SetResponse(cmd byte, response []byte) {
	m.mu.Lock()
	m.responses[cmd] = response
	m.mu.Unlock()
}

// SetError configures an error to be returned for a specific command
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	m.errorMap[cmd] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a command
func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	delete(m.errorMap, cmd)
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate hardware response time
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// GetCallCount returns how many times a command was called
func (m *MockTransport) GetCallCount(cmd byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[cmd]
}

// LastArgs returns the parameters most recently passed for a command
func (m *MockTransport) LastArgs(cmd byte) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastArgs[cmd]
}

// Reset clears all call counts and resets state
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.callCount = make(map[byte]int)
	m.connected = true
	m.mu.Unlock()
}
