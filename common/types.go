// Copyright 2025 The corvid Authors
// This file is part of the corvid library.
//
// The corvid library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The corvid library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the corvid library. If not, see <http://www.gnu.org/licenses/>.

// Package common contains small shared types used across the node.
package common

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashLength is the expected length of the hash in bytes.
const HashLength = 32

// Hash represents the 32 byte blake2b digest of arbitrary data.
type Hash [HashLength]byte

// BytesToHash sets b to hash. If b is larger than len(h), b will be cropped
// from the left.
func BytesToHash(b []byte) Hash {
	var h Hash
	h.SetBytes(b)
	return h
}

// HexToHash sets byte representation of s to hash. If s is larger than
// len(h), s will be cropped from the left.
func HexToHash(s string) Hash {
	b, _ := hex.DecodeString(s)
	return BytesToHash(b)
}

// DigestHash computes the blake2b-256 digest of the given data.
func DigestHash(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

// SetBytes sets the hash to the value of b. If b is larger than len(h), b
// will be cropped from the left.
func (h *Hash) SetBytes(b []byte) {
	if len(b) > len(h) {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
}

// Bytes gets the byte representation of the underlying hash.
func (h Hash) Bytes() []byte { return h[:] }

// Hex converts a hash to a hex string.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// String implements the stringer interface and is used also by the logger
// when doing full logging into a file.
func (h Hash) String() string { return h.Hex() }

// TerminalString implements log.TerminalStringer, formatting a string for
// console output during logging.
func (h Hash) TerminalString() string {
	return fmt.Sprintf("%x..%x", h[:3], h[29:])
}

// Format implements fmt.Formatter.
// Hash supports the %v, %s, %q, %x and %X format verbs.
func (h Hash) Format(s fmt.State, c rune) {
	switch c {
	case 'v', 's':
		s.Write([]byte(h.Hex()))
	case 'q':
		s.Write([]byte(`"` + h.Hex() + `"`))
	case 'x':
		s.Write([]byte(fmt.Sprintf("%x", h.Bytes())))
	case 'X':
		s.Write([]byte(fmt.Sprintf("%X", h.Bytes())))
	default:
		fmt.Fprintf(s, "%%!%c(hash=%x)", c, h)
	}
}
