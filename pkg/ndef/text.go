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
	"unicode/utf16"
)

// Text record status byte layout: bit 7 selects UTF-16, bits 5..0 hold
// the language code length. Bit 6 is reserved.
const (
	textFlagUTF16 = 0x80
	textLangMask  = 0x3F
)

// ErrMalformedText reports a well-known Text payload that violates the
// NFC Forum RTD layout.
var ErrMalformedText = errors.New("ndef: malformed text record")

// TextRecord is a decoded NFC Forum well-known Text record.
type TextRecord struct {
	// Text is the record content, decoded to UTF-8.
	Text string
	// Language is the IANA language code, for example "en".
	Language string
	// UTF16 records whether the payload carried UTF-16 text.
	UTF16 bool
}

// ParseText decodes a Text record payload: status byte, language code,
// then the text in UTF-8 or UTF-16.
func ParseText(payload []byte) (*TextRecord, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedText)
	}
	status := payload[0]
	langLen := int(status & textLangMask)
	if langLen == 0 {
		return nil, fmt.Errorf("%w: zero language length", ErrMalformedText)
	}
	if len(payload) < 1+langLen {
		return nil, fmt.Errorf("%w: language code truncated", ErrMalformedText)
	}

	rec := &TextRecord{
		Language: string(payload[1 : 1+langLen]),
		UTF16:    status&textFlagUTF16 != 0,
	}
	body := payload[1+langLen:]
	if rec.UTF16 {
		text, err := decodeUTF16(body)
		if err != nil {
			return nil, err
		}
		rec.Text = text
	} else {
		rec.Text = string(body)
	}
	return rec, nil
}

// EncodePayload builds the record's wire payload. UTF-16 text is
// written big-endian without a byte order mark.
func (t *TextRecord) EncodePayload() ([]byte, error) {
	langLen := len(t.Language)
	if langLen == 0 || langLen > textLangMask {
		return nil, fmt.Errorf("%w: language code must be 1 to %d bytes",
			ErrMalformedText, textLangMask)
	}

	status := byte(langLen)
	if t.UTF16 {
		status |= textFlagUTF16
	}
	out := make([]byte, 0, 1+langLen+len(t.Text)*2)
	out = append(out, status)
	out = append(out, t.Language...)
	if t.UTF16 {
		for _, u := range utf16.Encode([]rune(t.Text)) {
			out = append(out, byte(u>>8), byte(u))
		}
	} else {
		out = append(out, t.Text...)
	}
	return out, nil
}

// decodeUTF16 converts UTF-16 text to a string, honoring a leading byte
// order mark. Without one the bytes are taken as big-endian.
func decodeUTF16(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("%w: odd UTF-16 byte count", ErrMalformedText)
	}
	bigEndian := true
	if len(b) >= 2 {
		switch {
		case b[0] == 0xFE && b[1] == 0xFF:
			b = b[2:]
		case b[0] == 0xFF && b[1] == 0xFE:
			bigEndian = false
			b = b[2:]
		}
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		if bigEndian {
			units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
		} else {
			units[i] = uint16(b[2*i+1])<<8 | uint16(b[2*i])
		}
	}
	return string(utf16.Decode(units)), nil
}
