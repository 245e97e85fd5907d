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
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mifarelabs/go-classictag/internal/syncutil"
	"github.com/mifarelabs/go-classictag/pkg/ndef"
)

// Well-known MIFARE Classic keys.
var (
	// KeyNDEF is key A for NFC Forum formatted data sectors.
	KeyNDEF = []byte{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}
	// KeyMAD is key A for the MAD sector.
	KeyMAD = []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	// KeyDefault is the transport key of blank cards.
	KeyDefault = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
)

// Tag reads one MIFARE Classic 1K card through a Device: it caches the
// card image, decodes the application directory and extracts the NDEF
// records stored in the NFC sectors.
//
// Read operations that walk the whole card are guarded against
// overlapping use; a second call while one is running fails with
// ErrBusy.
type Tag struct {
	device *Device
	memory *Memory
	mad    *MAD

	mu      syncutil.RWMutex
	uid     []byte
	records map[string]*ndef.Record
	order   []string

	busy atomic.Bool
}

// NewTag creates a tag reader over an initialized device.
func NewTag(device *Device) *Tag {
	return &Tag{
		device: device,
		memory: NewMemory(),
	}
}

// UID returns the UID captured by the last detection, or nil.
func (t *Tag) UID() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]byte(nil), t.uid...)
}

// ManufacturerBlock returns the cached copy of block 0, holding the UID
// and manufacturer data. Zero bytes until GetInfo has run.
func (t *Tag) ManufacturerBlock() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	blk, _ := t.memory.Block(0)
	return append([]byte(nil), blk...)
}

// NFCSectors returns the sectors the application directory registers for
// NFC Forum data. Nil until GetInfo has read the directory.
func (t *Tag) NFCSectors() []uint8 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.mad == nil {
		return nil
	}
	return t.mad.NFCSectors()
}

// Detect waits for a card and captures its UID.
// Returns ErrNoTagDetected if none enters the field within the timeout.
func (t *Tag) Detect(ctx context.Context, timeout time.Duration) error {
	uid, err := t.device.ReadPassiveTargetContext(ctx, timeout)
	if err != nil {
		return err
	}
	Debugf("tag: detected UID % X", uid)

	t.mu.Lock()
	t.uid = uid
	t.memory = NewMemory()
	t.mad = nil
	t.records = nil
	t.order = nil
	t.mu.Unlock()
	return nil
}

// GetInfo reads the card's identity sector: the manufacturer block and
// the application directory. Requires a prior Detect.
func (t *Tag) GetInfo(ctx context.Context) error {
	if !t.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer t.busy.Store(false)
	return t.readInfoLocked(ctx)
}

// readInfoLocked authenticates sector 0 and refreshes block 0 and the
// MAD view. Caller holds the busy flag.
func (t *Tag) readInfoLocked(ctx context.Context) error {
	uid := t.UID()
	if len(uid) == 0 {
		return ErrNoTagDetected
	}

	if err := t.authSector(ctx, 0, uid); err != nil {
		return err
	}
	for block := uint8(0); block < BlocksPerSector-1; block++ {
		if _, err := t.readBlock(ctx, block); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	sector0, _ := t.memory.Sector(0)
	mad, err := ParseMAD(sector0[BlockSize : 3*BlockSize])
	if err != nil {
		return err
	}
	t.mad = mad
	Debugf("tag: MAD NFC sectors %v", mad.NFCSectors())
	return nil
}

// authSector authenticates a sector with its expected key A, falling
// back to the blank-card transport key. Sector 0 uses the MAD key, data
// sectors the NFC Forum key.
func (t *Tag) authSector(ctx context.Context, sector uint8, uid []byte) error {
	key := KeyNDEF
	if sector == 0 {
		key = KeyMAD
	}
	block := SectorFirstBlock(sector)

	ok, err := t.device.MifareAuthenticateBlockContext(ctx, uid, block, KeyA, key)
	if err != nil {
		return err
	}
	if !ok {
		ok, err = t.device.MifareAuthenticateBlockContext(ctx, uid, block, KeyA, KeyDefault)
		if err != nil {
			return err
		}
	}
	if !ok {
		return fmt.Errorf("%w: sector %d", ErrTagAuthFailed, sector)
	}
	return nil
}

// ReadBlock reads one block into the cached image and returns its 16
// bytes. On failure the cached (possibly stale) bytes are returned
// alongside the error so callers can decide whether to keep them.
func (t *Tag) ReadBlock(ctx context.Context, block uint8) ([]byte, error) {
	if !t.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer t.busy.Store(false)
	return t.readBlock(ctx, block)
}

func (t *Tag) readBlock(ctx context.Context, block uint8) ([]byte, error) {
	t.mu.RLock()
	cached, cerr := t.memory.Block(block)
	t.mu.RUnlock()
	if cerr != nil {
		return nil, cerr
	}

	data, err := t.device.MifareReadBlockContext(ctx, block)
	if err != nil {
		stale := append([]byte(nil), cached...)
		return stale, err
	}

	t.mu.Lock()
	err = t.memory.SetBlock(block, data)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// MemoryDump reads every block of the card into the image, trailers
// included. Blocks that fail keep their previous cached contents; the
// dump carries on and reports how many blocks were read.
func (t *Tag) MemoryDump(ctx context.Context) (int, error) {
	if !t.busy.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer t.busy.Store(false)

	uid := t.UID()
	if len(uid) == 0 {
		return 0, ErrNoTagDetected
	}

	read := 0
	for sector := uint8(0); sector < SectorCount; sector++ {
		if err := t.authSector(ctx, sector, uid); err != nil {
			Debugf("tag: dump skipping sector %d: %v", sector, err)
			continue
		}
		for i := uint8(0); i < BlocksPerSector; i++ {
			block := SectorFirstBlock(sector) + i
			if _, err := t.readBlock(ctx, block); err != nil {
				Debugf("tag: dump block %d failed: %v", block, err)
				continue
			}
			read++
		}
	}
	return read, nil
}

// ReadOptions controls sector selection for ReadNFCRecords and
// FindWrittenSectors. The zero value scans the card live and stops at
// the first empty sector.
type ReadOptions struct {
	// Cache decodes from the cached memory image without touching the
	// transport. The image must have been populated by an earlier read
	// (MemoryDump or a live ReadNFCRecords).
	Cache bool
	// Sector reads one explicit sector instead of scanning; the
	// directory intersection is skipped.
	Sector *uint8
	// ScanAll keeps scanning past the first empty sector instead of
	// ending the run there.
	ScanAll bool
}

// FindWrittenSectors scans the card for written data sectors: sectors
// are read live in ascending order starting at sector 1 and the scan
// stops at the first empty one unless scanAll is set. The resulting
// run is intersected with the directory's NFC sector set. Scanned
// blocks stay in the cached image.
func (t *Tag) FindWrittenSectors(ctx context.Context, scanAll bool) ([]uint8, error) {
	if !t.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer t.busy.Store(false)

	uid := t.UID()
	if len(uid) == 0 {
		return nil, ErrNoTagDetected
	}
	if err := t.ensureInfo(ctx); err != nil {
		return nil, err
	}
	return t.findWrittenSectors(ctx, uid, scanAll)
}

// ensureInfo reads the identity sector once per detection.
func (t *Tag) ensureInfo(ctx context.Context) error {
	t.mu.RLock()
	have := t.mad != nil
	t.mu.RUnlock()
	if have {
		return nil
	}
	return t.readInfoLocked(ctx)
}

// findWrittenSectors performs the live scan. Caller holds the busy flag.
func (t *Tag) findWrittenSectors(ctx context.Context, uid []byte, scanAll bool) ([]uint8, error) {
	var run []uint8
	for sector := uint8(1); sector < SectorCount; sector++ {
		if err := t.authSector(ctx, sector, uid); err != nil {
			return nil, err
		}
		if err := t.readSectorData(ctx, sector); err != nil {
			return nil, err
		}
		t.mu.RLock()
		empty := t.memory.SectorIsEmpty(sector)
		t.mu.RUnlock()
		if empty {
			if scanAll {
				continue
			}
			break
		}
		run = append(run, sector)
	}
	return t.intersectNFC(run), nil
}

// readSectorData reads a sector's three data blocks into the image.
func (t *Tag) readSectorData(ctx context.Context, sector uint8) error {
	for i := uint8(0); i < BlocksPerSector-1; i++ {
		block := SectorFirstBlock(sector) + i
		if _, err := t.readBlock(ctx, block); err != nil {
			return fmt.Errorf("%w: block %d: %w", ErrTagReadFailed, block, err)
		}
	}
	return nil
}

// cachedWrittenSectors is the offline variant of the scan, walking the
// cached image instead of the transport.
func (t *Tag) cachedWrittenSectors(scanAll bool) []uint8 {
	t.mu.RLock()
	var run []uint8
	for sector := uint8(1); sector < SectorCount; sector++ {
		if t.memory.SectorIsEmpty(sector) {
			if scanAll {
				continue
			}
			break
		}
		run = append(run, sector)
	}
	t.mu.RUnlock()
	return t.intersectNFC(run)
}

// intersectNFC filters a sector run down to the directory-registered
// NFC sectors, preserving order.
func (t *Tag) intersectNFC(run []uint8) []uint8 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []uint8
	for _, s := range run {
		if t.mad != nil && t.mad.IsNFCSector(s) {
			out = append(out, s)
		}
	}
	return out
}

// ensureCachedMAD derives the directory from the cached image when no
// identity read has happened, keeping cache mode fully offline.
func (t *Tag) ensureCachedMAD() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mad != nil {
		return nil
	}
	sector0, err := t.memory.Sector(0)
	if err != nil {
		return err
	}
	mad, err := ParseMAD(sector0[BlockSize : 3*BlockSize])
	if err != nil {
		return err
	}
	t.mad = mad
	return nil
}

// ReadNFCRecords locates the card's written NFC sectors, assembles
// their data blocks, scans the result for the NDEF TLV and decodes its
// records. The result maps ordered keys "r0", "r1", ... to records; a
// formatted but empty card yields an empty map. A nil opts scans live
// and stops at the first empty sector.
func (t *Tag) ReadNFCRecords(ctx context.Context, opts *ReadOptions) (map[string]*ndef.Record, error) {
	if !t.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer t.busy.Store(false)
	if opts == nil {
		opts = &ReadOptions{}
	}

	var uid []byte
	if !opts.Cache {
		uid = t.UID()
		if len(uid) == 0 {
			return nil, ErrNoTagDetected
		}
	}

	var sectors []uint8
	switch {
	case opts.Sector != nil:
		s := *opts.Sector
		if s == 0 || s >= SectorCount {
			return nil, fmt.Errorf("%w: sector %d", ErrInvalidParameter, s)
		}
		if !opts.Cache {
			if err := t.authSector(ctx, s, uid); err != nil {
				return nil, err
			}
			if err := t.readSectorData(ctx, s); err != nil {
				return nil, err
			}
		}
		sectors = []uint8{s}
	case opts.Cache:
		if err := t.ensureCachedMAD(); err != nil {
			return nil, err
		}
		sectors = t.cachedWrittenSectors(opts.ScanAll)
	default:
		if err := t.ensureInfo(ctx); err != nil {
			return nil, err
		}
		var err error
		sectors, err = t.findWrittenSectors(ctx, uid, opts.ScanAll)
		if err != nil {
			return nil, err
		}
	}

	// Every chosen sector's data blocks are in the image by now; the
	// trailers never hold payload.
	var payload []byte
	t.mu.RLock()
	for _, sector := range sectors {
		window, werr := t.memory.Sector(sector)
		if werr != nil {
			t.mu.RUnlock()
			return nil, werr
		}
		payload = append(payload, window[:SectorSize-BlockSize]...)
	}
	t.mu.RUnlock()

	records, err := t.decodeRecords(payload)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.records = records
	t.order = orderedKeys(records)
	t.mu.Unlock()
	return records, nil
}

// decodeRecords scans payload for the NDEF TLV and decodes its records.
// A missing TLV is a blank card, not an error.
func (t *Tag) decodeRecords(payload []byte) (map[string]*ndef.Record, error) {
	msg, err := ndef.ScanTLV(payload)
	if err != nil {
		if errors.Is(err, ndef.ErrTLVNotFound) {
			return map[string]*ndef.Record{}, nil
		}
		return nil, err
	}

	dec := ndef.Decoder{Logf: Debugf}
	list, err := dec.DecodeMessage(msg)
	if err != nil {
		return nil, err
	}

	records := make(map[string]*ndef.Record, len(list))
	for i, rec := range list {
		records["r"+strconv.Itoa(i)] = rec
	}
	return records, nil
}

// Records returns the record set from the last successful
// ReadNFCRecords, or nil if none has run.
func (t *Tag) Records() map[string]*ndef.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.records == nil {
		return nil
	}
	out := make(map[string]*ndef.Record, len(t.records))
	for k, v := range t.records {
		out[k] = v
	}
	return out
}

// DetectAndRead performs the whole read cycle: wait for a card, read
// its identity sector and extract the NDEF records. When no card enters
// the field within the timeout the result is nil with no error.
func (t *Tag) DetectAndRead(
	ctx context.Context, timeout time.Duration,
) (map[string]*ndef.Record, error) {
	if err := t.Detect(ctx, timeout); err != nil {
		if IsNoResponse(err) {
			return nil, nil
		}
		return nil, err
	}
	if err := t.GetInfo(ctx); err != nil {
		return nil, err
	}
	return t.ReadNFCRecords(ctx, nil)
}

// Summary returns a one-line description of the tag.
func (t *Tag) Summary() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	if len(t.uid) == 0 {
		return "MIFARE Classic 1K: no tag detected"
	}
	fmt.Fprintf(&b, "MIFARE Classic 1K UID % X", t.uid)
	if t.mad != nil {
		fmt.Fprintf(&b, ", NFC sectors %v", t.mad.NFCSectors())
	}
	if t.records != nil {
		fmt.Fprintf(&b, ", %d records", len(t.records))
	}
	return b.String()
}

// DebugInfo returns a multi-line dump of the tag state: summary, record
// contents and the cached memory image in per-block hex rows.
func (t *Tag) DebugInfo() string {
	var b strings.Builder
	b.WriteString(t.Summary())
	b.WriteByte('\n')

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, key := range t.order {
		rec := t.records[key]
		fmt.Fprintf(&b, "  %s [%s] %s\n", key, rec.Kind, rec.String())
	}

	for block := uint8(0); block < BlockCount; block++ {
		data, _ := t.memory.Block(block)
		marker := " "
		if IsSectorTrailer(block) {
			marker = "T"
		}
		fmt.Fprintf(&b, "  %02d%s % X\n", block, marker, data)
	}
	return b.String()
}

// orderedKeys returns the record keys sorted by their numeric suffix.
func orderedKeys(records map[string]*ndef.Record) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(strings.TrimPrefix(keys[i], "r"))
		b, _ := strconv.Atoi(strings.TrimPrefix(keys[j], "r"))
		return a < b
	})
	return keys
}
