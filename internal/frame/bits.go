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

package frame

// The PN532 shifts SPI data LSB first while common SPI controllers shift MSB
// first, so every byte on the wire has to be mirrored in both directions.
// The correction lives here, at the lowest layer, so no command code ever
// has to think about bit order.

// reverseTable maps each byte value to its bit-reversed counterpart.
var reverseTable [256]byte

func init() {
	for i := range reverseTable {
		b := byte(i)
		var r byte
		for j := 0; j < 8; j++ {
			r <<= 1
			r |= b & 1
			b >>= 1
		}
		reverseTable[i] = r
	}
}

// ReverseBits mirrors the bits of a single byte (LSB <-> MSB).
func ReverseBits(b byte) byte {
	return reverseTable[b]
}

// ReverseAll writes the bit-reversed form of src into dst.
// dst and src may be the same slice; dst must be at least len(src) long.
func ReverseAll(dst, src []byte) {
	for i, b := range src {
		dst[i] = reverseTable[b]
	}
}
