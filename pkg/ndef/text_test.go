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
	"testing"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		wantText string
		wantLang string
		wantU16  bool
		wantErr  error
	}{
		{
			name:     "utf8 english",
			payload:  append([]byte{0x02, 'e', 'n'}, "hello"...),
			wantText: "hello",
			wantLang: "en",
		},
		{
			name:     "utf8 empty text",
			payload:  []byte{0x02, 'e', 'n'},
			wantText: "",
			wantLang: "en",
		},
		{
			name:     "utf16 big endian no BOM",
			payload:  []byte{0x82, 'e', 'n', 0x00, 'h', 0x00, 'i'},
			wantText: "hi",
			wantLang: "en",
			wantU16:  true,
		},
		{
			name:     "utf16 big endian BOM",
			payload:  []byte{0x82, 'e', 'n', 0xFE, 0xFF, 0x00, 'h', 0x00, 'i'},
			wantText: "hi",
			wantLang: "en",
			wantU16:  true,
		},
		{
			name:     "utf16 little endian BOM",
			payload:  []byte{0x82, 'e', 'n', 0xFF, 0xFE, 'h', 0x00, 'i', 0x00},
			wantText: "hi",
			wantLang: "en",
			wantU16:  true,
		},
		{
			name:    "empty payload",
			payload: nil,
			wantErr: ErrMalformedText,
		},
		{
			name:    "zero language length",
			payload: []byte{0x00, 'h', 'i'},
			wantErr: ErrMalformedText,
		},
		{
			name:    "language truncated",
			payload: []byte{0x05, 'e', 'n'},
			wantErr: ErrMalformedText,
		},
		{
			name:    "odd utf16 length",
			payload: []byte{0x82, 'e', 'n', 0x00, 'h', 0x00},
			wantErr: ErrMalformedText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseText(tt.payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseText() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseText() error = %v", err)
			}
			if got.Text != tt.wantText || got.Language != tt.wantLang || got.UTF16 != tt.wantU16 {
				t.Errorf("ParseText() = %+v, want text=%q lang=%q utf16=%v",
					got, tt.wantText, tt.wantLang, tt.wantU16)
			}
		})
	}
}

func TestTextRoundTrip(t *testing.T) {
	tests := []TextRecord{
		{Text: "hello", Language: "en"},
		{Text: "grüße", Language: "de"},
		{Text: "日本語", Language: "ja", UTF16: true},
		{Text: "", Language: "en"},
	}

	for _, want := range tests {
		payload, err := want.EncodePayload()
		if err != nil {
			t.Fatalf("EncodePayload(%+v) error = %v", want, err)
		}
		got, err := ParseText(payload)
		if err != nil {
			t.Fatalf("ParseText(% X) error = %v", payload, err)
		}
		if *got != want {
			t.Errorf("round trip = %+v, want %+v", *got, want)
		}
	}
}

func TestTextEncodeBadLanguage(t *testing.T) {
	for _, lang := range []string{"", string(make([]byte, 64))} {
		rec := TextRecord{Text: "x", Language: lang}
		if _, err := rec.EncodePayload(); !errors.Is(err, ErrMalformedText) {
			t.Errorf("EncodePayload(lang len %d) error = %v, want ErrMalformedText",
				len(lang), err)
		}
	}
}
