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

// Package spi implements the transport for a PN532 wired to an SPI bus.
// The chip shifts LSB first while SPI hosts shift MSB first, so every
// byte crossing this layer has its bits reversed.
package spi

import (
	"bytes"
	"context"
	"fmt"
	"time"

	classictag "github.com/mifarelabs/go-classictag"
	"github.com/mifarelabs/go-classictag/internal/frame"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPI prefix bytes selecting the chip's transfer mode.
const (
	spiStatRead  = 0x02
	spiDataWrite = 0x01
	spiDataRead  = 0x03
	spiReady     = 0x01
)

const (
	defaultFreq = 1 * physic.MegaHertz
	// Mode0; the chip's LSB-first framing is handled by bit reversal.
	busMode = spi.Mode0

	// readyPollInterval is the granularity of the ready poll. The chip
	// needs a few milliseconds per command, finer polling only burns bus
	// cycles.
	readyPollInterval = 20 * time.Millisecond

	// processingDelay gives the chip time to start working on a command
	// after acknowledging it.
	processingDelay = 6 * time.Millisecond
)

// busConn is the part of spi.Conn the transport uses. Tests substitute
// a scripted bus.
type busConn interface {
	Tx(w, r []byte) error
}

// Transport implements classictag.Transport over a periph.io SPI port.
type Transport struct {
	port         spi.PortCloser
	conn         busConn
	currentTrace *classictag.TraceBuffer
	portName     string
}

// New opens the named SPI port and wakes the chip. An empty name picks
// the platform's default port.
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, busMode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	t := &Transport{
		port:     port,
		conn:     conn,
		portName: portName,
	}
	t.Wakeup()
	return t, nil
}

// Wakeup clocks a dummy byte with chip-select asserted, pulling the
// chip out of power-down. Errors are ignored; a dead bus surfaces on
// the next command.
func (t *Transport) Wakeup() {
	time.Sleep(1 * time.Millisecond)
	_ = t.conn.Tx([]byte{0x00}, make([]byte, 1))
	time.Sleep(1 * time.Millisecond)
}

func (t *Transport) traceTX(data []byte, note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordTX(data, note)
	}
}

func (t *Transport) traceRX(data []byte, note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordRX(data, note)
	}
}

func (t *Transport) traceTimeout(note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordTimeout(note)
	}
}

// waitReady polls the chip's status register until it signals a pending
// response frame. Returns false when the deadline passes without the
// chip becoming ready; that is the normal "nothing to say" outcome, not
// an error. A bus fault during the poll reads the same way, so waitReady
// itself never fails.
func (t *Transport) waitReady(timeout time.Duration) bool {
	statusCmd := []byte{frame.ReverseBits(spiStatRead), 0x00}
	statusResp := make([]byte, 2)

	deadline := time.Now().Add(timeout)
	for {
		if err := t.conn.Tx(statusCmd, statusResp); err != nil {
			classictag.Debugf("spi: status poll fault: %v", err)
			return false
		}
		if frame.ReverseBits(statusResp[1]) == spiReady {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(readyPollInterval)
	}
}

// CallFunction sends one command and returns its response payload, the
// bytes after the direction marker and response code.
func (t *Transport) CallFunction(
	cmd byte, params []byte, responseLen int, timeout time.Duration,
) ([]byte, error) {
	return t.CallFunctionContext(context.Background(), cmd, params, responseLen, timeout)
}

// CallFunctionContext runs the full command exchange: frame write, ACK
// verify, ready poll, response read. A chip that never becomes ready
// yields ErrNoResponse; a bad ACK or a response that does not correlate
// with the command is a protocol error.
func (t *Transport) CallFunctionContext(
	ctx context.Context, cmd byte, params []byte, responseLen int, timeout time.Duration,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("SPI call cancelled: %w", err)
	}

	t.currentTrace = classictag.NewTraceBuffer("SPI", t.portName, 16)
	defer func() { t.currentTrace = nil }()

	if err := t.sendFrame(cmd, params); err != nil {
		return nil, t.currentTrace.WrapError(err)
	}

	if err := t.readAck(timeout); err != nil {
		return nil, t.currentTrace.WrapError(err)
	}

	time.Sleep(processingDelay)

	resp, err := t.readResponse(cmd, responseLen, timeout)
	if err != nil {
		return nil, t.currentTrace.WrapError(err)
	}
	return resp, nil
}

// sendFrame frames the command and clocks it out. A bus write fault is
// treated as the chip having dozed off: wake it and report no response
// so the caller can retry.
func (t *Transport) sendFrame(cmd byte, params []byte) error {
	data := make([]byte, 0, 2+len(params))
	data = append(data, frame.HostToChip, cmd)
	data = append(data, params...)

	raw, err := frame.Build(data)
	if err != nil {
		return fmt.Errorf("failed to build frame: %w", err)
	}
	t.traceTX(raw, fmt.Sprintf("Cmd 0x%02X", cmd))

	wire := make([]byte, len(raw)+1)
	wire[0] = frame.ReverseBits(spiDataWrite)
	frame.ReverseAll(wire[1:], raw)

	time.Sleep(2 * time.Millisecond)
	if err := t.conn.Tx(wire, make([]byte, len(wire))); err != nil {
		classictag.Debugf("spi: write fault, waking chip: %v", err)
		t.Wakeup()
		return classictag.NewTransportError(
			"sendFrame", t.portName, classictag.ErrNoResponse, classictag.ErrorTypeTransient)
	}
	return nil
}

// readAck waits for and verifies the fixed ACK frame. Anything else on
// the wire means command delivery failed in a way a retry will not fix.
func (t *Transport) readAck(timeout time.Duration) error {
	if !t.waitReady(timeout) {
		t.traceTimeout("no ACK within timeout")
		return classictag.NewTransportError(
			"readAck", t.portName, classictag.ErrNoResponse, classictag.ErrorTypeTimeout)
	}

	raw, err := t.readBytes(len(frame.AckFrame))
	if err != nil {
		return classictag.NewTransportReadError("readAck", t.portName)
	}

	if !bytes.Equal(raw, frame.AckFrame) {
		t.traceRX(raw, "bad ACK")
		return classictag.NewAckMismatchError("readAck", t.portName)
	}
	t.traceRX(raw, "ACK")
	return nil
}

// readResponse reads and validates the response frame. The read is
// sized for the expected payload plus framing; the parsed frame may be
// shorter than asked for.
func (t *Transport) readResponse(cmd byte, responseLen int, timeout time.Duration) ([]byte, error) {
	if !t.waitReady(timeout) {
		t.traceTimeout("no response within timeout")
		return nil, classictag.NewTransportError(
			"readResponse", t.portName, classictag.ErrNoResponse, classictag.ErrorTypeTimeout)
	}

	// Payload + direction marker + response code + frame overhead, with
	// a byte of slack for a leading extra zero.
	raw, err := t.readBytes(responseLen + 2 + frame.Overhead + 1)
	if err != nil {
		return nil, classictag.NewTransportReadError("readResponse", t.portName)
	}
	t.traceRX(raw, "Response")

	data, err := frame.Parse(raw)
	if err != nil {
		return nil, classictag.NewFrameCorruptedError("readResponse", t.portName, err)
	}

	if len(data) < 2 || data[0] != frame.ChipToHost || data[1] != cmd+1 {
		return nil, classictag.NewUnexpectedResponseError("readResponse", t.portName)
	}
	return data[2:], nil
}

// readBytes clocks n bytes out of the chip in data-read mode, with bits
// restored to MSB-first order.
func (t *Transport) readBytes(n int) ([]byte, error) {
	wire := make([]byte, n+1)
	wire[0] = frame.ReverseBits(spiDataRead)
	resp := make([]byte, n+1)
	if err := t.conn.Tx(wire, resp); err != nil {
		return nil, fmt.Errorf("SPI read failed: %w", err)
	}

	out := make([]byte, n)
	frame.ReverseAll(out, resp[1:])
	return out, nil
}

// Close closes the SPI port.
func (t *Transport) Close() error {
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
		t.port = nil
	}
	return nil
}

// IsConnected reports whether the port is open.
func (t *Transport) IsConnected() bool {
	return t.port != nil
}

// Type returns the transport type.
func (*Transport) Type() classictag.TransportType {
	return classictag.TransportSPI
}
