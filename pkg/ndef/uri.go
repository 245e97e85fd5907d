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
	"strings"
)

// uriPrefixes is the NFC Forum URI RTD abbreviation table. The payload's
// first byte indexes it; code 0x00 means the URI is carried in full.
var uriPrefixes = [...]string{
	0x00: "",
	0x01: "http://www.",
	0x02: "https://www.",
	0x03: "http://",
	0x04: "https://",
	0x05: "tel:",
	0x06: "mailto:",
	0x07: "ftp://anonymous:anonymous@",
	0x08: "ftp://ftp.",
	0x09: "ftps://",
	0x0A: "sftp://",
	0x0B: "smb://",
	0x0C: "nfs://",
	0x0D: "ftp://",
	0x0E: "dav://",
	0x0F: "news:",
	0x10: "telnet://",
	0x11: "imap:",
	0x12: "rtsp://",
	0x13: "urn:",
	0x14: "pop:",
	0x15: "sip:",
	0x16: "sips:",
	0x17: "tftp:",
	0x18: "btspp://",
	0x19: "btl2cap://",
	0x1A: "btgoep://",
	0x1B: "tcpobex://",
	0x1C: "irdaobex://",
	0x1D: "file://",
	0x1E: "urn:epc:id:",
	0x1F: "urn:epc:tag:",
	0x20: "urn:epc:pat:",
	0x21: "urn:epc:raw:",
	0x22: "urn:epc:",
	0x23: "urn:nfc:",
}

// ErrMalformedURI reports a well-known URI payload that violates the
// NFC Forum RTD layout.
var ErrMalformedURI = errors.New("ndef: malformed URI record")

// URIRecord is a decoded NFC Forum well-known URI record.
type URIRecord struct {
	// URI is the full URI, abbreviation expanded.
	URI string
	// PrefixCode is the abbreviation byte as stored on the card.
	PrefixCode byte
}

// ParseURI decodes a URI record payload: one prefix code byte followed
// by the remainder of the URI.
func ParseURI(payload []byte) (*URIRecord, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedURI)
	}
	code := payload[0]
	if int(code) >= len(uriPrefixes) {
		return nil, fmt.Errorf("%w: prefix code 0x%02X out of range",
			ErrMalformedURI, code)
	}
	return &URIRecord{
		URI:        uriPrefixes[code] + string(payload[1:]),
		PrefixCode: code,
	}, nil
}

// EncodePayload builds the record's wire payload, choosing the longest
// matching abbreviation prefix.
func (u *URIRecord) EncodePayload() ([]byte, error) {
	if u.URI == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrMalformedURI)
	}
	code, rest := abbreviateURI(u.URI)
	out := make([]byte, 0, 1+len(rest))
	out = append(out, code)
	out = append(out, rest...)
	return out, nil
}

// abbreviateURI finds the longest table prefix matching the URI.
func abbreviateURI(uri string) (byte, string) {
	best := byte(0)
	for code := 1; code < len(uriPrefixes); code++ {
		p := uriPrefixes[code]
		if strings.HasPrefix(uri, p) && len(p) > len(uriPrefixes[best]) {
			best = byte(code)
		}
	}
	return best, uri[len(uriPrefixes[best]):]
}
