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

import "fmt"

// MIFARE Classic 1K geometry.
const (
	// BlockSize is the size of one block in bytes.
	BlockSize = 16
	// BlocksPerSector is the number of blocks in a 1K sector.
	BlocksPerSector = 4
	// SectorCount is the number of sectors on a 1K card.
	SectorCount = 16
	// BlockCount is the total number of blocks on a 1K card.
	BlockCount = SectorCount * BlocksPerSector
	// SectorSize is the size of one sector in bytes.
	SectorSize = BlocksPerSector * BlockSize
	// MemorySize is the full card capacity in bytes.
	MemorySize = SectorCount * SectorSize
	// KeySize is the length of a MIFARE Classic authentication key.
	KeySize = 6
)

// IsSectorTrailer reports whether a block index addresses a sector
// trailer (the block holding keys and access bits).
func IsSectorTrailer(block uint8) bool {
	return block%BlocksPerSector == BlocksPerSector-1
}

// SectorOf returns the sector containing the given block.
func SectorOf(block uint8) uint8 {
	return block / BlocksPerSector
}

// SectorFirstBlock returns the first block of a sector.
func SectorFirstBlock(sector uint8) uint8 {
	return sector * BlocksPerSector
}

// Memory is an in-RAM image of a MIFARE Classic 1K card: a single 1024
// byte arena addressed through block and sector windows. Blocks that
// have never been read stay zero.
type Memory struct {
	data [MemorySize]byte
}

// NewMemory returns a zeroed card image.
func NewMemory() *Memory {
	return &Memory{}
}

// Block returns the 16-byte window for one block. The slice aliases the
// arena, so writes through it change the image.
func (m *Memory) Block(block uint8) ([]byte, error) {
	if block >= BlockCount {
		return nil, fmt.Errorf("%w: block %d out of range", ErrInvalidParameter, block)
	}
	off := int(block) * BlockSize
	return m.data[off : off+BlockSize], nil
}

// Sector returns the 64-byte window covering all four blocks of a
// sector, trailer included. The slice aliases the arena.
func (m *Memory) Sector(sector uint8) ([]byte, error) {
	if sector >= SectorCount {
		return nil, fmt.Errorf("%w: sector %d out of range", ErrInvalidParameter, sector)
	}
	off := int(sector) * SectorSize
	return m.data[off : off+SectorSize], nil
}

// SetBlock copies exactly 16 bytes into the given block.
func (m *Memory) SetBlock(block uint8, data []byte) error {
	if block >= BlockCount {
		return fmt.Errorf("%w: block %d out of range", ErrInvalidParameter, block)
	}
	if len(data) != BlockSize {
		return fmt.Errorf("%w: block data must be %d bytes, got %d",
			ErrInvalidParameter, BlockSize, len(data))
	}
	copy(m.data[int(block)*BlockSize:], data)
	return nil
}

// Bytes returns the whole 1024-byte image. The slice aliases the arena.
func (m *Memory) Bytes() []byte {
	return m.data[:]
}

// SectorIsEmpty reports whether every data block of a sector is all
// zeros. The trailer is ignored since it never holds payload.
func (m *Memory) SectorIsEmpty(sector uint8) bool {
	if sector >= SectorCount {
		return true
	}
	off := int(sector) * SectorSize
	for _, b := range m.data[off : off+SectorSize-BlockSize] {
		if b != 0 {
			return false
		}
	}
	return true
}
