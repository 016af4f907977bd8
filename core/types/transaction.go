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

// Package types contains data types related to the Corvid chain.
package types

import (
	"sync/atomic"
	"time"

	"github.com/corvidchain/corvid/common"
)

// TxSource describes where a transaction entered the node from. Validation
// rules may differ per source, e.g. a transaction received in a block has
// already passed some filtering.
type TxSource uint8

const (
	// TxSourceLocal marks transactions received over local RPC from a trusted
	// client.
	TxSourceLocal TxSource = iota

	// TxSourceExternal marks transactions received over gossip from an
	// untrusted peer.
	TxSourceExternal

	// TxSourceInBlock marks transactions that were already included in a
	// block, re-entering the pool after a retraction.
	TxSourceInBlock
)

func (s TxSource) String() string {
	switch s {
	case TxSourceLocal:
		return "local"
	case TxSourceExternal:
		return "external"
	case TxSourceInBlock:
		return "inblock"
	default:
		return "unknown"
	}
}

// Transaction is an opaque chain transaction. The pool never interprets the
// payload; all semantics come from the validity metadata attached by the
// validator.
type Transaction struct {
	payload []byte
	source  TxSource
	time    time.Time // Time first seen locally

	// caches
	hash atomic.Pointer[common.Hash]
}

// NewTransaction wraps an opaque payload received from the given source.
func NewTransaction(payload []byte, source TxSource) *Transaction {
	p := make([]byte, len(payload))
	copy(p, payload)
	return &Transaction{
		payload: p,
		source:  source,
		time:    time.Now(),
	}
}

// Hash returns the content hash of the transaction, computing it on first use
// and caching it thereafter.
func (tx *Transaction) Hash() common.Hash {
	if hash := tx.hash.Load(); hash != nil {
		return *hash
	}
	h := common.DigestHash(tx.payload)
	tx.hash.Store(&h)
	return h
}

// Payload returns the opaque transaction bytes. The returned slice must not
// be modified.
func (tx *Transaction) Payload() []byte { return tx.payload }

// Source returns where the transaction entered the node from.
func (tx *Transaction) Source() TxSource { return tx.source }

// Size returns the encoded payload size of the transaction.
func (tx *Transaction) Size() uint64 { return uint64(len(tx.payload)) }

// Time returns the time when the transaction was first seen locally.
func (tx *Transaction) Time() time.Time { return tx.time }

// SetTime sets the time when the transaction was first seen, used in tests.
func (tx *Transaction) SetTime(t time.Time) { tx.time = t }

// Transactions implements DerivableList for a slice of transactions.
type Transactions []*Transaction

// Hashes returns the content hashes of the transactions.
func (txs Transactions) Hashes() []common.Hash {
	hashes := make([]common.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	return hashes
}
