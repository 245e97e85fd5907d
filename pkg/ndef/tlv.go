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

package ndef

import (
	"errors"
	"fmt"
)

// TLV tags used in NFC Forum Type MIFARE Classic memory.
const (
	tlvNull        = 0x00
	tlvNDEF        = 0x03
	tlvProprietary = 0xFD
	tlvTerminator  = 0xFE
)

// TLV errors.
var (
	// ErrTLVNotFound means the memory holds no NDEF TLV at all. This is
	// the "blank formatted card" case, not corruption.
	ErrTLVNotFound = errors.New("ndef: no NDEF TLV in memory")
	// ErrMalformedTLV means a TLV structure was found but is broken.
	ErrMalformedTLV = errors.New("ndef: malformed TLV")
)

// ScanTLV finds the NDEF message TLV in a raw memory image and returns
// its value bytes. Null and proprietary TLVs before it are skipped. The
// message must be followed by a terminator TLV; a message running past
// the end of memory or a missing terminator is ErrMalformedTLV.
//
// Both the short one-byte length form and the long three-byte form
// (0xFF marker then big-endian uint16) are accepted.
func ScanTLV(buf []byte) ([]byte, error) {
	off := 0
	for off < len(buf) {
		tag := buf[off]
		switch tag {
		case tlvNull:
			off++
			continue
		case tlvTerminator:
			return nil, ErrTLVNotFound
		}

		length, lenSize, err := tlvLength(buf[off+1:])
		if err != nil {
			return nil, err
		}
		start := off + 1 + lenSize
		end := start + length
		if end > len(buf) {
			return nil, fmt.Errorf("%w: TLV 0x%02X length %d overruns memory",
				ErrMalformedTLV, tag, length)
		}

		if tag != tlvNDEF {
			// Proprietary or unknown block, skip over it.
			off = end
			continue
		}

		if end >= len(buf) || buf[end] != tlvTerminator {
			return nil, fmt.Errorf("%w: NDEF TLV without terminator", ErrMalformedTLV)
		}
		return buf[start:end], nil
	}
	return nil, ErrTLVNotFound
}

// tlvLength decodes a TLV length field and returns the value length and
// the number of length bytes consumed.
func tlvLength(buf []byte) (length, size int, err error) {
	if len(buf) < 1 {
		return 0, 0, fmt.Errorf("%w: truncated length field", ErrMalformedTLV)
	}
	if buf[0] != 0xFF {
		return int(buf[0]), 1, nil
	}
	if len(buf) < 3 {
		return 0, 0, fmt.Errorf("%w: truncated long length field", ErrMalformedTLV)
	}
	return int(buf[1])<<8 | int(buf[2]), 3, nil
}
