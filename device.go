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
	"time"
)

// Default timeouts. The firmware version query uses a shorter timeout
// because it is the liveness probe run right after wakeup.
const (
	defaultTimeout         = 1 * time.Second
	firmwareVersionTimeout = 500 * time.Millisecond
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// Timeout is the default timeout for chip operations
	Timeout time.Duration
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Timeout: defaultTimeout,
	}
}

// Option configures a Device
type Option func(*Device) error

// WithTimeout sets the default timeout for chip operations
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: timeout must be positive", ErrInvalidParameter)
		}
		d.config.Timeout = timeout
		return nil
	}
}

// Device represents a PN532 NFC reader chip and exposes its command set:
// firmware version, SAM configuration, passive target listing and the
// MIFARE Classic block operations.
//
// Thread safety: Device is NOT thread-safe. All methods must be called
// from a single goroutine or protected with external synchronization;
// the chip itself is a shared stateful peripheral and calls into it must
// be serialized.
type Device struct {
	transport       Transport
	config          *DeviceConfig
	firmwareVersion *FirmwareVersion
}

// New creates a new device with the given transport
func New(transport Transport, opts ...Option) (*Device, error) {
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Init probes the chip and configures it for MIFARE reading.
func (d *Device) Init() error {
	return d.InitContext(context.Background())
}

// InitContext probes the chip with a firmware version query and performs
// SAM configuration. The probe is retried with a wakeup in between; a
// chip fresh out of power-down often misses the first command.
func (d *Device) InitContext(ctx context.Context) error {
	err := RetryWithConfig(ctx, DefaultRetryConfig(), func() error {
		fw, err := d.GetFirmwareVersionContext(ctx)
		if err != nil {
			d.transport.Wakeup()
			return err
		}
		d.firmwareVersion = fw
		return nil
	})
	if err != nil {
		return err
	}

	if err := d.SAMConfigurationContext(ctx); err != nil {
		return err
	}
	return nil
}

// FirmwareVersion returns the version captured during Init, or nil if the
// device has not been initialized.
func (d *Device) FirmwareVersion() *FirmwareVersion {
	return d.firmwareVersion
}

// SetTimeout sets the default timeout for chip operations
func (d *Device) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidParameter)
	}
	d.config.Timeout = timeout
	return nil
}

// Close closes the device connection
func (d *Device) Close() error {
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// FirmwareVersion contains the chip's identification response: the IC
// code, firmware version and revision, and the supported-protocols nibble.
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

// String formats the firmware as "version.revision".
func (f *FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d", f.Version, f.Revision)
}

// SupportsISO14443A reports ISO/IEC 14443 Type A support.
func (f *FirmwareVersion) SupportsISO14443A() bool { return f.Support&0x01 != 0 }

// SupportsISO14443B reports ISO/IEC 14443 Type B support.
func (f *FirmwareVersion) SupportsISO14443B() bool { return f.Support&0x02 != 0 }

// SupportsISO18092 reports ISO/IEC 18092 (NFC) support.
func (f *FirmwareVersion) SupportsISO18092() bool { return f.Support&0x04 != 0 }

// GetFirmwareVersion queries the chip's firmware identification.
func (d *Device) GetFirmwareVersion() (*FirmwareVersion, error) {
	return d.GetFirmwareVersionContext(context.Background())
}

// GetFirmwareVersionContext queries the chip's firmware identification.
// A missing response means no chip is listening on the bus.
func (d *Device) GetFirmwareVersionContext(ctx context.Context) (*FirmwareVersion, error) {
	res, err := d.transport.CallFunctionContext(
		ctx, cmdGetFirmwareVersion, nil, 4, firmwareVersionTimeout)
	if err != nil {
		if errors.Is(err, ErrNoResponse) {
			return nil, fmt.Errorf("failed to detect the PN532: %w", err)
		}
		return nil, fmt.Errorf("GetFirmwareVersion failed: %w", err)
	}
	if len(res) < 4 {
		return nil, fmt.Errorf("%w: firmware version needs 4 bytes, got %d",
			ErrIncompleteResponse, len(res))
	}

	return &FirmwareVersion{
		IC:       res[0],
		Version:  res[1],
		Revision: res[2],
		Support:  res[3],
	}, nil
}

// SAMConfiguration configures the chip's secure access module for normal
// operation so it can read MIFARE cards.
func (d *Device) SAMConfiguration() error {
	return d.SAMConfigurationContext(context.Background())
}

// SAMConfigurationContext sends the SAM configuration command:
// normal mode, 1 second virtual-card timeout (50ms * 0x14), IRQ enabled.
// Response correlation in CallFunction is the only verification needed.
func (d *Device) SAMConfigurationContext(ctx context.Context) error {
	params := []byte{byte(SAMModeNormal), 0x14, 0x01}
	_, err := d.transport.CallFunctionContext(
		ctx, cmdSamConfiguration, params, 0, d.config.Timeout)
	if err != nil {
		return fmt.Errorf("SAM configuration failed: %w", err)
	}
	return nil
}

// ReadPassiveTarget waits for a single ISO14443A tag and returns its UID.
// Returns ErrNoTagDetected if no tag enters the field within the timeout.
func (d *Device) ReadPassiveTarget(timeout time.Duration) ([]byte, error) {
	return d.ReadPassiveTargetContext(context.Background(), timeout)
}

// ReadPassiveTargetContext waits for a single ISO14443A tag and returns
// its UID (at most 7 bytes). More than one target in the field is a
// protocol violation (ErrMultipleTargets), as is an oversized UID
// (ErrUIDTooLong).
func (d *Device) ReadPassiveTargetContext(
	ctx context.Context, timeout time.Duration,
) ([]byte, error) {
	if timeout <= 0 {
		timeout = d.config.Timeout
	}

	// Ask for one target; the response can carry up to a 7 byte UID plus
	// ATQ/SAK bookkeeping.
	params := []byte{0x01, BaudISO14443A}
	res, err := d.transport.CallFunctionContext(
		ctx, cmdInListPassiveTarget, params, 19, timeout)
	if err != nil {
		if errors.Is(err, ErrNoResponse) {
			return nil, ErrNoTagDetected
		}
		return nil, fmt.Errorf("InListPassiveTarget failed: %w", err)
	}

	// Response: NbTg, Tg, ATQ(2), SAK, UIDLen, UID...
	if len(res) < 6 {
		return nil, fmt.Errorf("%w: target data needs 6 bytes, got %d",
			ErrIncompleteResponse, len(res))
	}
	switch {
	case res[0] == 0x00:
		return nil, ErrNoTagDetected
	case res[0] != 0x01:
		return nil, fmt.Errorf("%w: chip reported %d targets", ErrMultipleTargets, res[0])
	}

	uidLen := int(res[5])
	if uidLen > 7 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrUIDTooLong, uidLen)
	}
	if len(res) < 6+uidLen {
		return nil, fmt.Errorf("%w: UID truncated", ErrIncompleteResponse)
	}

	uid := make([]byte, uidLen)
	copy(uid, res[6:6+uidLen])
	return uid, nil
}

// MifareReadBlock reads one 16-byte block from an authenticated sector.
func (d *Device) MifareReadBlock(block uint8) ([]byte, error) {
	return d.MifareReadBlockContext(context.Background(), block)
}

// MifareReadBlockContext reads one 16-byte block. The block's sector must
// have been authenticated first. A non-zero status byte from the chip
// means the read failed (typically a missing authentication).
func (d *Device) MifareReadBlockContext(ctx context.Context, block uint8) ([]byte, error) {
	params := []byte{0x01, mifareCmdRead, block}
	res, err := d.transport.CallFunctionContext(
		ctx, cmdInDataExchange, params, 17, d.config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("read block %d: %w", block, err)
	}
	if len(res) < 1 {
		return nil, fmt.Errorf("%w: empty read status", ErrIncompleteResponse)
	}
	if res[0] != 0x00 {
		return nil, fmt.Errorf("%w: block %d status 0x%02X", ErrTagReadFailed, block, res[0])
	}
	if len(res) < 17 {
		return nil, fmt.Errorf("%w: block %d returned %d of 16 bytes",
			ErrIncompleteResponse, block, len(res)-1)
	}
	return res[1:17], nil
}

// MifareWriteBlock writes one 16-byte block to an authenticated sector.
// Returns true if the chip reported success.
func (d *Device) MifareWriteBlock(block uint8, data []byte) (bool, error) {
	return d.MifareWriteBlockContext(context.Background(), block, data)
}

// MifareWriteBlockContext writes one 16-byte block.
func (d *Device) MifareWriteBlockContext(
	ctx context.Context, block uint8, data []byte,
) (bool, error) {
	if len(data) != BlockSize {
		return false, fmt.Errorf("%w: block data must be %d bytes, got %d",
			ErrInvalidParameter, BlockSize, len(data))
	}

	params := make([]byte, 3+BlockSize)
	params[0] = 0x01
	params[1] = mifareCmdWrite
	params[2] = block
	copy(params[3:], data)

	res, err := d.transport.CallFunctionContext(
		ctx, cmdInDataExchange, params, 1, d.config.Timeout)
	if err != nil {
		return false, fmt.Errorf("write block %d: %w", block, err)
	}
	if len(res) < 1 {
		return false, fmt.Errorf("%w: empty write status", ErrIncompleteResponse)
	}
	return res[0] == 0x00, nil
}

// MifareAuthenticateBlock authenticates a block's sector with the given
// key. Returns true if authentication succeeded.
func (d *Device) MifareAuthenticateBlock(
	uid []byte, block uint8, keyType KeyType, key []byte,
) (bool, error) {
	return d.MifareAuthenticateBlockContext(context.Background(), uid, block, keyType, key)
}

// MifareAuthenticateBlockContext authenticates a block's sector with a
// 6-byte key against the tag identified by uid. A failed authentication
// is a normal outcome (false, nil); only transport and protocol problems
// surface as errors.
func (d *Device) MifareAuthenticateBlockContext(
	ctx context.Context, uid []byte, block uint8, keyType KeyType, key []byte,
) (bool, error) {
	if len(key) != KeySize {
		return false, fmt.Errorf("%w: key must be %d bytes, got %d",
			ErrInvalidParameter, KeySize, len(key))
	}
	if len(uid) == 0 || len(uid) > 7 {
		return false, fmt.Errorf("%w: uid must be 1 to 7 bytes, got %d",
			ErrInvalidParameter, len(uid))
	}

	params := make([]byte, 3+len(key)+len(uid))
	params[0] = 0x01
	params[1] = byte(keyType)
	params[2] = block
	copy(params[3:], key)
	copy(params[3+len(key):], uid)

	res, err := d.transport.CallFunctionContext(
		ctx, cmdInDataExchange, params, 1, d.config.Timeout)
	if err != nil {
		if errors.Is(err, ErrNoResponse) {
			// A rejected authentication can leave the chip mute.
			return false, nil
		}
		return false, fmt.Errorf("authenticate block %d: %w", block, err)
	}
	if len(res) < 1 {
		return false, fmt.Errorf("%w: empty auth status", ErrIncompleteResponse)
	}
	return res[0] == 0x00, nil
}
