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

// Package classictag reads NDEF data from MIFARE Classic 1K cards
// through a PN532 NFC chip.
//
// The package is layered: a Transport carries framed commands to the
// chip (transport/spi implements the SPI wiring), Device exposes the
// chip's command set, and Tag orchestrates a full card read: detection,
// application directory lookup, sector authentication and NDEF record
// decoding via pkg/ndef.
//
// A minimal read loop:
//
//	transport, err := spi.New("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	device, err := classictag.New(transport)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer device.Close()
//	if err := device.Init(); err != nil {
//		log.Fatal(err)
//	}
//
//	tag := classictag.NewTag(device)
//	records, err := tag.DetectAndRead(ctx, time.Second)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if records != nil {
//		fmt.Println(tag.Summary())
//	}
package classictag
