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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mifarelabs/go-classictag/pkg/ndef"
)

// cardTransport simulates a PN532 with one MIFARE Classic 1K card in
// the field. Sector access enforces the card's key A the way the real
// chip does: wrong key means a non-zero status, missing auth fails all
// reads in the sector.
type cardTransport struct {
	uid    []byte
	image  *Memory
	keys   map[uint8][]byte
	authed map[uint8]bool
	reads  []uint8 // block number of every read command received
}

// newCardTransport builds a simulated NFC Forum formatted card: MAD key
// on sector 0, NDEF key on the rest.
func newCardTransport(uid []byte) *cardTransport {
	keys := map[uint8][]byte{0: KeyMAD}
	for s := uint8(1); s < SectorCount; s++ {
		keys[s] = KeyNDEF
	}
	return &cardTransport{
		uid:    uid,
		image:  NewMemory(),
		keys:   keys,
		authed: make(map[uint8]bool),
	}
}

// setMAD marks sectors as NFC Forum sectors in the card's directory.
func (c *cardTransport) setMAD(nfcSectors ...uint8) {
	dir := make([]byte, MADSize)
	dir[0] = 0xC4
	dir[1] = 0x01
	for _, s := range nfcSectors {
		dir[s*2] = 0x03
		dir[s*2+1] = 0xE1
	}
	_ = c.image.SetBlock(1, dir[:BlockSize])
	_ = c.image.SetBlock(2, dir[BlockSize:])
}

// writePayload lays bytes across a sector's data blocks.
func (c *cardTransport) writePayload(sector uint8, payload []byte) {
	for i := uint8(0); i < BlocksPerSector-1 && len(payload) > 0; i++ {
		blk := make([]byte, BlockSize)
		n := copy(blk, payload)
		payload = payload[n:]
		_ = c.image.SetBlock(SectorFirstBlock(sector)+i, blk)
	}
}

func (c *cardTransport) CallFunction(
	cmd byte, params []byte, responseLen int, timeout time.Duration,
) ([]byte, error) {
	return c.CallFunctionContext(context.Background(), cmd, params, responseLen, timeout)
}

func (c *cardTransport) CallFunctionContext(
	_ context.Context, cmd byte, params []byte, _ int, _ time.Duration,
) ([]byte, error) {
	switch cmd {
	case cmdGetFirmwareVersion:
		return []byte{0x32, 0x01, 0x06, 0x07}, nil
	case cmdSamConfiguration:
		return []byte{}, nil
	case cmdInListPassiveTarget:
		if c.uid == nil {
			return nil, ErrNoResponse
		}
		resp := []byte{0x01, 0x01, 0x00, 0x04, 0x08, byte(len(c.uid))}
		return append(resp, c.uid...), nil
	case cmdInDataExchange:
		return c.dataExchange(params)
	default:
		return nil, ErrNoResponse
	}
}

func (c *cardTransport) dataExchange(params []byte) ([]byte, error) {
	block := params[2]
	sector := SectorOf(block)
	switch params[1] {
	case mifareCmdAuthA:
		key := params[3:9]
		if string(key) == string(c.keys[sector]) {
			c.authed[sector] = true
			return []byte{0x00}, nil
		}
		return []byte{0x14}, nil
	case mifareCmdRead:
		c.reads = append(c.reads, block)
		if !c.authed[sector] {
			return []byte{0x14}, nil
		}
		data, err := c.image.Block(block)
		if err != nil {
			return []byte{0x14}, nil
		}
		return append([]byte{0x00}, data...), nil
	case mifareCmdWrite:
		if !c.authed[sector] {
			return []byte{0x14}, nil
		}
		_ = c.image.SetBlock(block, params[3:3+BlockSize])
		return []byte{0x00}, nil
	default:
		return nil, ErrNoResponse
	}
}

func (*cardTransport) Wakeup()             {}
func (*cardTransport) Close() error        { return nil }
func (*cardTransport) IsConnected() bool   { return true }
func (*cardTransport) Type() TransportType { return TransportMock }

// textMessage builds an NDEF TLV holding one short Text record.
func textMessage(text string) []byte {
	payload := append([]byte{0x02, 'e', 'n'}, text...)
	record := []byte{0xD1, 0x01, byte(len(payload)), 'T'}
	record = append(record, payload...)
	msg := []byte{0x03, byte(len(record))}
	msg = append(msg, record...)
	return append(msg, 0xFE)
}

func newTestTag(t *testing.T, transport Transport) *Tag {
	t.Helper()
	device, err := New(transport)
	require.NoError(t, err)
	return NewTag(device)
}

func TestDetectAndRead(t *testing.T) {
	card := newCardTransport([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	card.setMAD(1)
	card.writePayload(1, textMessage("hello"))

	tag := newTestTag(t, card)
	records, err := tag.DetectAndRead(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records["r0"]
	require.NotNil(t, rec)
	assert.Equal(t, ndef.KindText, rec.Kind)
	assert.Equal(t, "hello", rec.Text.Text)
	assert.Equal(t, "en", rec.Text.Language)

	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, tag.UID())
	assert.Equal(t, []uint8{1}, tag.NFCSectors())
}

func TestDetectAndReadNoTag(t *testing.T) {
	card := newCardTransport(nil)

	tag := newTestTag(t, card)
	records, err := tag.DetectAndRead(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestDetectAndReadBlankFormattedCard(t *testing.T) {
	// NFC sector registered but no TLV written: an empty record set,
	// not an error.
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1)

	tag := newTestTag(t, card)
	records, err := tag.DetectAndRead(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestReadNFCRecordsSpanningSectors(t *testing.T) {
	// A message longer than one sector's 48 data bytes must be picked
	// up across the sector boundary.
	long := make([]byte, 60)
	for i := range long {
		long[i] = 'a' + byte(i%26)
	}
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1, 2)
	msg := textMessage(string(long))
	card.writePayload(1, msg[:3*BlockSize])
	card.writePayload(2, msg[3*BlockSize:])

	tag := newTestTag(t, card)
	records, err := tag.DetectAndRead(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(long), records["r0"].Text.Text)
}

func TestReadNFCRecordsMultiple(t *testing.T) {
	first := textMessage("one")
	second := textMessage("two")
	// Concatenate the two records into one message: strip TLV wrappers,
	// fix MB/ME flags.
	rec1 := append([]byte(nil), first[2:len(first)-1]...)
	rec2 := append([]byte(nil), second[2:len(second)-1]...)
	rec1[0] = 0x91 // MB only
	rec2[0] = 0x51 // ME only
	body := append(rec1, rec2...)
	msg := append([]byte{0x03, byte(len(body))}, body...)
	msg = append(msg, 0xFE)

	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1)
	card.writePayload(1, msg)

	tag := newTestTag(t, card)
	records, err := tag.DetectAndRead(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "one", records["r0"].Text.Text)
	assert.Equal(t, "two", records["r1"].Text.Text)
}

func TestReadNFCRecordsAuthFailure(t *testing.T) {
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1)
	card.keys[1] = []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}

	tag := newTestTag(t, card)
	require.NoError(t, tag.Detect(context.Background(), 50*time.Millisecond))
	require.NoError(t, tag.GetInfo(context.Background()))

	_, err := tag.ReadNFCRecords(context.Background(), nil)
	assert.ErrorIs(t, err, ErrTagAuthFailed)
}

func TestAuthKeyFallback(t *testing.T) {
	// A freshly formatted card can still carry the transport key on its
	// data sectors.
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1)
	card.keys[1] = KeyDefault
	card.writePayload(1, textMessage("hi"))

	tag := newTestTag(t, card)
	records, err := tag.DetectAndRead(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "hi", records["r0"].Text.Text)
}

func TestGetInfoWithoutDetect(t *testing.T) {
	tag := newTestTag(t, newCardTransport(nil))
	assert.ErrorIs(t, tag.GetInfo(context.Background()), ErrNoTagDetected)
}

func TestBusyGuard(t *testing.T) {
	tag := newTestTag(t, newCardTransport([]byte{0x01, 0x02, 0x03, 0x04}))
	tag.busy.Store(true)

	_, err := tag.ReadBlock(context.Background(), 4)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = tag.ReadNFCRecords(context.Background(), nil)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = tag.FindWrittenSectors(context.Background(), false)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = tag.MemoryDump(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, tag.GetInfo(context.Background()), ErrBusy)

	tag.busy.Store(false)
	_, err = tag.ReadBlock(context.Background(), 4)
	assert.NotErrorIs(t, err, ErrBusy)
}

func TestReadBlockReturnsStaleOnFailure(t *testing.T) {
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	tag := newTestTag(t, card)

	// Prime the cache, then make the card refuse reads.
	cached := make([]byte, BlockSize)
	cached[0] = 0x99
	require.NoError(t, tag.memory.SetBlock(4, cached))

	data, err := tag.ReadBlock(context.Background(), 4)
	assert.ErrorIs(t, err, ErrTagReadFailed)
	assert.Equal(t, cached, data)
}

func TestMemoryDump(t *testing.T) {
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1)

	tag := newTestTag(t, card)
	require.NoError(t, tag.Detect(context.Background(), 50*time.Millisecond))

	read, err := tag.MemoryDump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BlockCount, read)
}

func TestMemoryDumpPartialAuth(t *testing.T) {
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.keys[3] = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

	tag := newTestTag(t, card)
	require.NoError(t, tag.Detect(context.Background(), 50*time.Millisecond))

	read, err := tag.MemoryDump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BlockCount-BlocksPerSector, read)
}

func TestFindWrittenSectors(t *testing.T) {
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1, 2, 3)
	card.writePayload(1, textMessage("one"))
	card.writePayload(2, []byte{0x01})

	tag := newTestTag(t, card)
	require.NoError(t, tag.Detect(context.Background(), 50*time.Millisecond))

	// Sector 3 carries no data, so the run stops after 2.
	sectors, err := tag.FindWrittenSectors(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2}, sectors)
}

func TestFindWrittenSectorsIntersectsMAD(t *testing.T) {
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(2)
	card.writePayload(1, []byte{0x01})
	card.writePayload(2, []byte{0x01})

	tag := newTestTag(t, card)
	require.NoError(t, tag.Detect(context.Background(), 50*time.Millisecond))

	// Sector 1 has data but is not registered in the MAD; only the
	// registered sector 2 survives the intersection.
	sectors, err := tag.FindWrittenSectors(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []uint8{2}, sectors)
}

func TestFindWrittenSectorsScanAll(t *testing.T) {
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1, 3)
	card.writePayload(1, []byte{0x01})
	card.writePayload(3, []byte{0x01})

	tag := newTestTag(t, card)
	require.NoError(t, tag.Detect(context.Background(), 50*time.Millisecond))

	// Default scan ends at the empty sector 2.
	sectors, err := tag.FindWrittenSectors(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1}, sectors)

	// Scanning past it picks up sector 3 as well.
	sectors, err = tag.FindWrittenSectors(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 3}, sectors)
}

func TestReadStopsAtFirstEmptySector(t *testing.T) {
	// Every data sector is registered in the MAD but only sector 1 is
	// written. The scan must read sector 1, see the empty sector 2 and
	// stop, never touching sectors 3 and up.
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	card.writePayload(1, textMessage("hello"))

	tag := newTestTag(t, card)
	records, err := tag.DetectAndRead(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "hello", records["r0"].Text.Text)

	for _, block := range card.reads {
		assert.Less(t, block, SectorFirstBlock(3),
			"read past the first empty sector")
	}
}

func TestReadNFCRecordsFromCache(t *testing.T) {
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1)
	card.writePayload(1, textMessage("cached"))

	tag := newTestTag(t, card)
	require.NoError(t, tag.Detect(context.Background(), 50*time.Millisecond))
	require.NoError(t, tag.GetInfo(context.Background()))
	_, err := tag.MemoryDump(context.Background())
	require.NoError(t, err)

	// Decoding from the image must not issue a single further read,
	// even with the card gone from the field.
	card.uid = nil
	before := len(card.reads)
	records, err := tag.ReadNFCRecords(context.Background(), &ReadOptions{Cache: true})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cached", records["r0"].Text.Text)
	assert.Equal(t, before, len(card.reads))
}

func TestReadNFCRecordsExplicitSector(t *testing.T) {
	// An explicit sector request bypasses the scan and the MAD, so a
	// record in an unregistered sector is still readable.
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.writePayload(2, textMessage("direct"))

	tag := newTestTag(t, card)
	require.NoError(t, tag.Detect(context.Background(), 50*time.Millisecond))

	sector := uint8(2)
	records, err := tag.ReadNFCRecords(context.Background(), &ReadOptions{Sector: &sector})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "direct", records["r0"].Text.Text)

	bad := uint8(0)
	_, err = tag.ReadNFCRecords(context.Background(), &ReadOptions{Sector: &bad})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestDetectResetsState(t *testing.T) {
	card := newCardTransport([]byte{0x01, 0x02, 0x03, 0x04})
	card.setMAD(1)
	card.writePayload(1, textMessage("hello"))

	tag := newTestTag(t, card)
	records, err := tag.DetectAndRead(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// A new detection of a different card must not leak the old image.
	card.uid = []byte{0xAA, 0xBB, 0xCC, 0xDD}
	require.NoError(t, tag.Detect(context.Background(), 50*time.Millisecond))
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, tag.UID())
	assert.Nil(t, tag.Records())
	assert.Nil(t, tag.NFCSectors())
}

func TestSummaryAndDebugInfo(t *testing.T) {
	card := newCardTransport([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	card.setMAD(1)
	card.writePayload(1, textMessage("hello"))

	tag := newTestTag(t, card)
	assert.Contains(t, tag.Summary(), "no tag detected")

	_, err := tag.DetectAndRead(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)

	summary := tag.Summary()
	assert.Contains(t, summary, "DE AD BE EF")
	assert.Contains(t, summary, "1 records")

	info := tag.DebugInfo()
	assert.Contains(t, info, "r0 [text] hello")
	assert.Contains(t, info, "03T") // trailer marker on block 3
}
