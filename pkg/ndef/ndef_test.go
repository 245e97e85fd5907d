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

// textRecord builds a short well-known Text record with the given
// header flags.
func textRecord(header byte, lang, text string) []byte {
	payload := append([]byte{byte(len(lang))}, lang...)
	payload = append(payload, text...)
	out := []byte{header, 0x01, byte(len(payload)), 'T'}
	return append(out, payload...)
}

func TestDecodeSingleTextRecord(t *testing.T) {
	// MB|ME|SR, TNF well-known.
	msg := textRecord(0xD1, "en", "hello")

	var d Decoder
	records, err := d.DecodeMessage(msg)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Kind != KindText {
		t.Errorf("Kind = %v, want KindText", rec.Kind)
	}
	if rec.TypeName != "urn:nfc:wkt:T" {
		t.Errorf("TypeName = %q, want %q", rec.TypeName, "urn:nfc:wkt:T")
	}
	if !rec.MessageBegin || !rec.MessageEnd {
		t.Error("MB/ME flags not decoded")
	}
	if rec.Text == nil || rec.Text.Text != "hello" || rec.Text.Language != "en" {
		t.Errorf("Text = %+v, want hello/en", rec.Text)
	}
}

func TestDecodeURIRecord(t *testing.T) {
	// https://www. abbreviation + "example.com".
	payload := append([]byte{0x02}, "example.com"...)
	msg := []byte{0xD1, 0x01, byte(len(payload)), 'U'}
	msg = append(msg, payload...)

	var d Decoder
	records, err := d.DecodeMessage(msg)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	rec := records[0]
	if rec.Kind != KindURI {
		t.Fatalf("Kind = %v, want KindURI", rec.Kind)
	}
	if rec.URI.URI != "https://www.example.com" {
		t.Errorf("URI = %q, want %q", rec.URI.URI, "https://www.example.com")
	}
}

func TestDecodeMultipleRecords(t *testing.T) {
	// MB on the first record, ME on the last.
	first := textRecord(0x91, "en", "one")
	second := textRecord(0x51, "en", "two")
	msg := append(first, second...)

	var d Decoder
	records, err := d.DecodeMessage(msg)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Text.Text != "one" || records[1].Text.Text != "two" {
		t.Errorf("texts = %q, %q", records[0].Text.Text, records[1].Text.Text)
	}
	if records[0].MessageEnd {
		t.Error("first record should not carry ME")
	}
	if !records[1].MessageEnd {
		t.Error("last record should carry ME")
	}
}

func TestDecodeLongRecord(t *testing.T) {
	// No SR flag: 32-bit payload length.
	payload := append([]byte{0x02, 'e', 'n'}, "long form"...)
	msg := []byte{0xC1, 0x01,
		0x00, 0x00, 0x00, byte(len(payload)), 'T'}
	msg = append(msg, payload...)

	var d Decoder
	records, err := d.DecodeMessage(msg)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if records[0].Text.Text != "long form" {
		t.Errorf("Text = %q, want %q", records[0].Text.Text, "long form")
	}
}

func TestDecodeEmptyRecord(t *testing.T) {
	// TNF empty with all lengths zero is valid.
	msg := []byte{0xD0, 0x00, 0x00}

	var d Decoder
	records, err := d.DecodeMessage(msg)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if records[0].Kind != KindUnknown {
		t.Errorf("Kind = %v, want KindUnknown", records[0].Kind)
	}
	if len(records[0].Payload) != 0 {
		t.Errorf("payload = % X, want empty", records[0].Payload)
	}
}

func TestDecodeRecordErrors(t *testing.T) {
	tests := []struct {
		name    string
		msg     []byte
		wantErr error
	}{
		{
			name:    "reserved TNF",
			msg:     []byte{0xD7, 0x00, 0x00},
			wantErr: ErrInvalidTNF,
		},
		{
			name:    "empty TNF with type",
			msg:     []byte{0xD0, 0x01, 0x00, 'T'},
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "well-known without type",
			msg:     []byte{0xD1, 0x00, 0x00},
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "unknown TNF with type",
			msg:     []byte{0xD5, 0x01, 0x00, 'x'},
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "truncated payload",
			msg:     []byte{0xD1, 0x01, 0x10, 'T', 0x02},
			wantErr: ErrShortMessage,
		},
		{
			name:    "oversized payload",
			msg:     []byte{0xC1, 0x01, 0x00, 0x00, 0x10, 0x00, 'T'},
			wantErr: ErrPayloadTooLarge,
		},
		{
			name:    "empty message",
			msg:     nil,
			wantErr: ErrShortMessage,
		},
	}

	var d Decoder
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.DecodeMessage(tt.msg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeLenientKeepsBrokenPayload(t *testing.T) {
	// Valid record structure, but the Text payload has a zero language
	// length. Lenient mode downgrades it to opaque; strict rejects it.
	payload := []byte{0x00, 'h', 'i'}
	msg := []byte{0xD1, 0x01, byte(len(payload)), 'T'}
	msg = append(msg, payload...)

	var logged bool
	lenient := Decoder{Logf: func(string, ...any) { logged = true }}
	records, err := lenient.DecodeMessage(msg)
	if err != nil {
		t.Fatalf("lenient DecodeMessage() error = %v", err)
	}
	if records[0].Kind != KindUnknown {
		t.Errorf("Kind = %v, want downgrade to KindUnknown", records[0].Kind)
	}
	if !logged {
		t.Error("lenient downgrade was not logged")
	}

	strict := Decoder{Strict: true}
	if _, err := strict.DecodeMessage(msg); !errors.Is(err, ErrMalformedText) {
		t.Errorf("strict DecodeMessage() error = %v, want ErrMalformedText", err)
	}
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		name      string
		tnf       byte
		typeBytes []byte
		want      string
		wantErr   bool
	}{
		{name: "well-known", tnf: TNFWellKnown, typeBytes: []byte("T"), want: "urn:nfc:wkt:T"},
		{name: "media", tnf: TNFMediaType, typeBytes: []byte("text/plain"), want: "text/plain"},
		{name: "absolute URI", tnf: TNFAbsoluteURI, typeBytes: []byte("http://x"), want: "http://x"},
		{name: "external", tnf: TNFExternal, typeBytes: []byte("acme.com:a"), want: "urn:nfc:ext:acme.com:a"},
		{name: "unknown ignores type", tnf: TNFUnknown, typeBytes: []byte("zz"), want: "unknown"},
		{name: "unchanged", tnf: TNFUnchanged, typeBytes: nil, want: "unchanged"},
		{name: "empty", tnf: TNFEmpty, typeBytes: nil, want: ""},
		{name: "reserved", tnf: 0x07, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TypeName(tt.tnf, tt.typeBytes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TypeName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("TypeName() = %q, want %q", got, tt.want)
			}
		})
	}
}
