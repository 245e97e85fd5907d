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
	"encoding/binary"
	"fmt"
)

// MADSize is the length of the MAD1 application directory: blocks 1 and
// 2 of sector 0, concatenated.
const MADSize = 2 * BlockSize

// AIDNFCForum is the MAD application ID that marks a sector as holding
// NFC Forum (NDEF) data. Stored little-endian on the card, so the raw
// bytes in the directory are 03 E1.
const AIDNFCForum uint16 = 0xE103

// MAD is the parsed MIFARE Application Directory of a 1K card. Each of
// sectors 1 through 15 has a 16-bit application ID; sector 0 holds the
// directory itself and has no entry.
type MAD struct {
	// CRC is the directory checksum byte. It is carried, not verified.
	CRC byte
	// Info is the info byte pointing at the card publisher sector.
	Info byte
	// AIDs holds the application ID for each sector. Index 0 is unused
	// and always zero; indices 1 through 15 map to sectors 1 through 15.
	AIDs [SectorCount]uint16
}

// ParseMAD decodes a MAD1 directory from the 32 bytes of sector 0
// blocks 1 and 2.
func ParseMAD(data []byte) (*MAD, error) {
	m := &MAD{}
	if err := m.SetData(data); err != nil {
		return nil, err
	}
	return m, nil
}

// SetData replaces the directory contents. The input must be exactly 32
// bytes.
func (m *MAD) SetData(data []byte) error {
	if len(data) != MADSize {
		return fmt.Errorf("%w: MAD needs %d bytes, got %d",
			ErrInvalidParameter, MADSize, len(data))
	}
	m.CRC = data[0]
	m.Info = data[1]
	m.AIDs[0] = 0
	for sector := 1; sector < SectorCount; sector++ {
		m.AIDs[sector] = binary.LittleEndian.Uint16(data[sector*2:])
	}
	return nil
}

// Bytes encodes the directory back into its 32-byte on-card form.
func (m *MAD) Bytes() []byte {
	out := make([]byte, MADSize)
	out[0] = m.CRC
	out[1] = m.Info
	for sector := 1; sector < SectorCount; sector++ {
		binary.LittleEndian.PutUint16(out[sector*2:], m.AIDs[sector])
	}
	return out
}

// NFCSectors returns the sectors whose application ID is the NFC Forum
// AID, in ascending order.
func (m *MAD) NFCSectors() []uint8 {
	var sectors []uint8
	for sector := uint8(1); sector < SectorCount; sector++ {
		if m.AIDs[sector] == AIDNFCForum {
			sectors = append(sectors, sector)
		}
	}
	return sectors
}

// IsNFCSector reports whether the given sector is registered for NFC
// Forum data.
func (m *MAD) IsNFCSector(sector uint8) bool {
	if sector == 0 || sector >= SectorCount {
		return false
	}
	return m.AIDs[sector] == AIDNFCForum
}
