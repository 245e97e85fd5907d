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

// Package frame implements the PN532 information frame format: the
// length-prefixed, checksummed byte layout that wraps every command and
// response, plus the bit-order and checksum primitives it is built from.
package frame

import (
	"errors"
	"fmt"
)

// Frame codec errors. Build and Parse report these so the transport can
// classify a corrupted exchange without string matching.
var (
	ErrInvalidLength    = errors.New("frame: data length must be 1 to 254 bytes")
	ErrMissingStartCode = errors.New("frame: preamble does not contain 00 FF start code")
	ErrLengthChecksum   = errors.New("frame: length checksum does not match length")
	ErrDataChecksum     = errors.New("frame: data checksum does not match data")
	ErrTruncated        = errors.New("frame: truncated before end of data")
)

// Build wraps data in a complete information frame:
//
//	PREAMBLE(00) STARTCODE(00 FF) LEN LCS DATA... DCS POSTAMBLE(00)
//
// LCS is the two's complement of LEN and DCS the two's complement of the
// data sum, so that LEN+LCS and sum(DATA)+DCS are both zero mod 256.
func Build(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data) > MaxDataLength {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLength, len(data))
	}

	length := byte(len(data))
	out := make([]byte, len(data)+Overhead)
	out[0] = Preamble
	out[1] = StartCode1
	out[2] = StartCode2
	out[3] = length
	out[4] = ^length + 1
	copy(out[5:], data)
	out[len(out)-2] = ^Checksum(data) + 1
	out[len(out)-1] = Postamble
	return out, nil
}

// Parse extracts the data payload from a raw frame as read off the bus.
// Leading zero bytes before the 0xFF start code are skipped. The returned
// slice aliases raw and holds exactly LEN bytes; the chip may well have
// supplied fewer bytes than the caller asked for, which is not an error.
func Parse(raw []byte) ([]byte, error) {
	off := 0
	for off < len(raw) && raw[off] == 0x00 {
		off++
	}
	if off >= len(raw) || raw[off] != StartCode2 {
		return nil, ErrMissingStartCode
	}
	off++

	// LEN and LCS, then the data region followed by its checksum.
	if off+1 >= len(raw) {
		return nil, ErrTruncated
	}
	length := int(raw[off])
	lcs := raw[off+1]
	if (byte(length)+lcs)&0xFF != 0 {
		return nil, ErrLengthChecksum
	}
	off += 2

	if off+length+1 > len(raw) {
		return nil, ErrTruncated
	}
	if Checksum(raw[off:off+length+1]) != 0 {
		return nil, ErrDataChecksum
	}
	return raw[off : off+length], nil
}
