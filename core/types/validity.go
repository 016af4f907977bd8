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

package types

import (
	"encoding/hex"
	"fmt"

	"github.com/corvidchain/corvid/common"
)

// Tag is an opaque byte string naming a state precondition, e.g. "account A
// is at nonce N". Tags are produced by the validator and never interpreted by
// the pool: two transactions are ordered purely by one providing a tag the
// other requires.
type Tag []byte

// NewTag builds a tag from a string literal, mostly useful in tests.
func NewTag(s string) Tag { return Tag(s) }

// Key returns the tag as a string suitable for use as a map key.
func (t Tag) Key() string { return string(t) }

// String implements fmt.Stringer, printing printable tags verbatim and
// falling back to hex otherwise.
func (t Tag) String() string {
	for _, b := range t {
		if b < 0x20 || b > 0x7e {
			return "0x" + hex.EncodeToString(t)
		}
	}
	return string(t)
}

// Tags is a set of dependency tags.
type Tags []Tag

// Keys returns the tags as map-key strings.
func (ts Tags) Keys() []string {
	keys := make([]string, len(ts))
	for i, t := range ts {
		keys[i] = t.Key()
	}
	return keys
}

// Validity is the metadata the validator attaches to a valid transaction.
// It fully determines how the pool orders, schedules and expires it.
type Validity struct {
	// Priority determines ordering of two transactions that compete for
	// the same resources. Higher is preferred.
	Priority uint64

	// Requires lists the tags that must be provided, by the chain state or
	// by another pool transaction, before this one becomes ready.
	Requires Tags

	// Provides lists the tags satisfied by including this transaction. At
	// most one ready transaction may provide a given tag at a time.
	Provides Tags

	// Longevity is the number of blocks the validity is expected to last,
	// counted from the block the transaction was validated at.
	Longevity uint64

	// Propagate indicates whether the transaction may be gossiped to peers.
	Propagate bool
}

// ValidTransaction pairs a transaction with the validity metadata the
// validator produced for it at some chain position.
type ValidTransaction struct {
	Tx       *Transaction
	Validity Validity
}

// Hash returns the content hash of the underlying transaction.
func (vt *ValidTransaction) Hash() common.Hash {
	return vt.Tx.Hash()
}

func (vt *ValidTransaction) String() string {
	return fmt.Sprintf("tx %s (priority %d, requires %d, provides %d)",
		vt.Tx.Hash().TerminalString(), vt.Validity.Priority, len(vt.Validity.Requires), len(vt.Validity.Provides))
}
