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

// PN532 command codes
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSamConfiguration    = 0x14
	cmdInListPassiveTarget = 0x4A
	cmdInDataExchange      = 0x40
)

// MIFARE Classic commands carried inside InDataExchange
const (
	mifareCmdAuthA = 0x60
	mifareCmdAuthB = 0x61
	mifareCmdRead  = 0x30
	mifareCmdWrite = 0xA0
)

// BaudISO14443A selects 106 kbps type A (MIFARE) targets for
// InListPassiveTarget.
const BaudISO14443A = 0x00

// KeyType selects which MIFARE Classic key slot an authentication uses.
// The values are the MIFARE authentication command bytes sent inside
// InDataExchange.
type KeyType byte

const (
	// KeyA authenticates against the sector's Key A slot.
	KeyA KeyType = mifareCmdAuthA
	// KeyB authenticates against the sector's Key B slot.
	KeyB KeyType = mifareCmdAuthB
)

// SAMMode represents the SAM configuration mode
type SAMMode byte

const (
	// SAMModeNormal - normal mode (default)
	SAMModeNormal SAMMode = 0x01
	// SAMModeVirtualCard - Virtual Card mode
	SAMModeVirtualCard SAMMode = 0x02
	// SAMModeWiredCard - Wired Card mode
	SAMModeWiredCard SAMMode = 0x03
	// SAMModeDualCard - Dual Card mode
	SAMModeDualCard SAMMode = 0x04
)
