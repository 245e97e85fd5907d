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

// Package ndef decodes NDEF messages read from NFC Forum formatted
// MIFARE Classic cards: the NDEF TLV wrapper, the record header bit
// layout, and the well-known Text and URI record payloads.
package ndef

import (
	"errors"
	"fmt"
)

// Record header flag bits.
const (
	flagMB  = 0x80 // message begin
	flagME  = 0x40 // message end
	flagCF  = 0x20 // chunk flag
	flagSR  = 0x10 // short record
	flagIL  = 0x08 // ID length present
	maskTNF = 0x07
)

// TNF values from the NDEF specification.
const (
	TNFEmpty       = 0x00
	TNFWellKnown   = 0x01
	TNFMediaType   = 0x02
	TNFAbsoluteURI = 0x03
	TNFExternal    = 0x04
	TNFUnknown     = 0x05
	TNFUnchanged   = 0x06
	// TNF 0x07 is reserved and never valid on the wire.
)

// MaxPayloadSize caps a single record's payload. Larger payloads cannot
// come from a well-formed 1K card and indicate corruption.
const MaxPayloadSize = 512

// Decode errors.
var (
	ErrInvalidTNF      = errors.New("ndef: reserved TNF value")
	ErrMalformedRecord = errors.New("ndef: malformed record")
	ErrPayloadTooLarge = errors.New("ndef: payload too large")
	ErrShortMessage    = errors.New("ndef: message truncated")
)

// tnfPrefixes maps each TNF to the prefix prepended to the raw type
// bytes when naming a record. Empty and media TNFs use the type bytes
// as-is; unknown and unchanged ignore them entirely.
var tnfPrefixes = [7]string{
	TNFEmpty:       "",
	TNFWellKnown:   "urn:nfc:wkt:",
	TNFMediaType:   "",
	TNFAbsoluteURI: "",
	TNFExternal:    "urn:nfc:ext:",
	TNFUnknown:     "unknown",
	TNFUnchanged:   "unchanged",
}

// TypeName returns the expanded type name for a TNF and raw type field,
// for example ("urn:nfc:wkt:T" for well-known text). Unknown and
// unchanged records have fixed names regardless of the type bytes.
func TypeName(tnf byte, typeBytes []byte) (string, error) {
	if tnf > TNFUnchanged {
		return "", fmt.Errorf("%w: 0x%02X", ErrInvalidTNF, tnf)
	}
	if tnf == TNFUnknown || tnf == TNFUnchanged {
		return tnfPrefixes[tnf], nil
	}
	return tnfPrefixes[tnf] + string(typeBytes), nil
}

// Kind identifies the record payloads this package can interpret.
type Kind int

const (
	// KindUnknown marks records carried opaquely.
	KindUnknown Kind = iota
	// KindText marks NFC Forum well-known Text records.
	KindText
	// KindURI marks NFC Forum well-known URI records.
	KindURI
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindURI:
		return "uri"
	default:
		return "unknown"
	}
}

// kindOf classifies a record by TNF and type bytes.
func kindOf(tnf byte, typeBytes []byte) Kind {
	if tnf != TNFWellKnown || len(typeBytes) != 1 {
		return KindUnknown
	}
	switch typeBytes[0] {
	case 'T':
		return KindText
	case 'U':
		return KindURI
	default:
		return KindUnknown
	}
}

// Record is one decoded NDEF record. The raw header and payload are
// always populated; Text and URI are set only for the matching kind.
type Record struct {
	// TNF is the type name format from the header.
	TNF byte
	// TypeName is the expanded type, prefix included.
	TypeName string
	// ID is the record ID, empty unless the IL flag was set.
	ID []byte
	// Payload is the raw record payload.
	Payload []byte
	// Kind classifies the payload.
	Kind Kind
	// Text holds the decoded payload for KindText records.
	Text *TextRecord
	// URI holds the decoded payload for KindURI records.
	URI *URIRecord
	// MessageBegin and MessageEnd mirror the MB and ME header flags.
	MessageBegin bool
	MessageEnd   bool
	// Chunked mirrors the CF header flag.
	Chunked bool
}

// String renders the record's interpreted content, or a placeholder for
// opaque records.
func (r *Record) String() string {
	switch r.Kind {
	case KindText:
		return r.Text.Text
	case KindURI:
		return r.URI.URI
	default:
		return fmt.Sprintf("<%s: % X>", r.TypeName, r.Payload)
	}
}

// Decoder decodes NDEF messages. The zero value is a lenient decoder
// that drops only structurally broken records; Strict mode also rejects
// payloads that violate a known kind's bounds.
type Decoder struct {
	// Strict makes kind-level payload violations (such as a text record
	// with a zero-length payload) hard errors instead of logged
	// downgrades to KindUnknown.
	Strict bool
	// Logf, when set, receives a line for each lenient downgrade.
	Logf func(format string, args ...any)
}

func (d *Decoder) logf(format string, args ...any) {
	if d.Logf != nil {
		d.Logf(format, args...)
	}
}

// DecodeMessage decodes every record of an NDEF message. Structural
// violations of the record header abort the whole message; payload
// interpretation failures are handled per the decoder's Strict setting.
func (d *Decoder) DecodeMessage(msg []byte) ([]*Record, error) {
	var records []*Record
	off := 0
	for off < len(msg) {
		rec, n, err := d.decodeRecord(msg[off:])
		if err != nil {
			return nil, fmt.Errorf("record %d at offset %d: %w", len(records), off, err)
		}
		records = append(records, rec)
		off += n
		if rec.MessageEnd {
			break
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrShortMessage)
	}
	return records, nil
}

// decodeRecord decodes one record from the front of buf and returns it
// with the number of bytes consumed.
func (d *Decoder) decodeRecord(buf []byte) (*Record, int, error) {
	if len(buf) < 2 {
		return nil, 0, ErrShortMessage
	}

	header := buf[0]
	tnf := header & maskTNF
	if tnf == maskTNF {
		return nil, 0, fmt.Errorf("%w: 0x07", ErrInvalidTNF)
	}

	off := 1
	typeLen := int(buf[off])
	off++

	var payloadLen int
	if header&flagSR != 0 {
		if len(buf) < off+1 {
			return nil, 0, ErrShortMessage
		}
		payloadLen = int(buf[off])
		off++
	} else {
		if len(buf) < off+4 {
			return nil, 0, ErrShortMessage
		}
		payloadLen = int(buf[off])<<24 | int(buf[off+1])<<16 |
			int(buf[off+2])<<8 | int(buf[off+3])
		off += 4
	}

	idLen := 0
	if header&flagIL != 0 {
		if len(buf) < off+1 {
			return nil, 0, ErrShortMessage
		}
		idLen = int(buf[off])
		off++
	}

	// Per-TNF field invariants.
	switch tnf {
	case TNFEmpty:
		if typeLen != 0 || idLen != 0 || payloadLen != 0 {
			return nil, 0, fmt.Errorf("%w: empty record with non-zero lengths",
				ErrMalformedRecord)
		}
	case TNFUnknown, TNFUnchanged:
		if typeLen != 0 {
			return nil, 0, fmt.Errorf("%w: TNF 0x%02X carries a type field",
				ErrMalformedRecord, tnf)
		}
	default:
		if typeLen == 0 {
			return nil, 0, fmt.Errorf("%w: TNF 0x%02X without a type field",
				ErrMalformedRecord, tnf)
		}
	}
	if payloadLen > MaxPayloadSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, payloadLen)
	}

	if len(buf) < off+typeLen+idLen+payloadLen {
		return nil, 0, ErrShortMessage
	}

	typeBytes := buf[off : off+typeLen]
	off += typeLen
	id := buf[off : off+idLen]
	off += idLen
	payload := buf[off : off+payloadLen]
	off += payloadLen

	name, err := TypeName(tnf, typeBytes)
	if err != nil {
		return nil, 0, err
	}

	rec := &Record{
		TNF:          tnf,
		TypeName:     name,
		ID:           append([]byte(nil), id...),
		Payload:      append([]byte(nil), payload...),
		Kind:         kindOf(tnf, typeBytes),
		MessageBegin: header&flagMB != 0,
		MessageEnd:   header&flagME != 0,
		Chunked:      header&flagCF != 0,
	}

	if err := d.interpret(rec); err != nil {
		if d.Strict {
			return nil, 0, err
		}
		d.logf("ndef: keeping %s record as opaque: %v", rec.Kind, err)
		rec.Kind = KindUnknown
	}

	return rec, off, nil
}

// interpret decodes the payload of well-known kinds in place.
func (d *Decoder) interpret(rec *Record) error {
	switch rec.Kind {
	case KindText:
		text, err := ParseText(rec.Payload)
		if err != nil {
			return err
		}
		rec.Text = text
	case KindURI:
		uri, err := ParseURI(rec.Payload)
		if err != nil {
			return err
		}
		rec.URI = uri
	}
	return nil
}
