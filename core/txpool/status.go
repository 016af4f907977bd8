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

package txpool

import (
	"github.com/corvidchain/corvid/common"
	"github.com/corvidchain/corvid/core"
)

// TxStatus is the lifecycle state of a pool transaction as observed through
// a watch stream.
//
// The happy path is Future -> Ready -> InBlock -> Finalized, with Broadcast
// repeating while the transaction sits in the ready set. InBlock may revert
// to Retracted on a fork switch, after which the transaction re-enters the
// pool through normal insertion. Usurped, Finalized, FinalityTimeout,
// Invalid and Dropped are terminal: the watch stream closes after emitting
// one of them, and never emits more than one.
type TxStatus uint8

const (
	TxStatusFuture TxStatus = iota
	TxStatusReady
	TxStatusBroadcast
	TxStatusInBlock
	TxStatusRetracted
	TxStatusFinalityTimeout
	TxStatusFinalized
	TxStatusUsurped
	TxStatusDropped
	TxStatusInvalid
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusFuture:
		return "future"
	case TxStatusReady:
		return "ready"
	case TxStatusBroadcast:
		return "broadcast"
	case TxStatusInBlock:
		return "inblock"
	case TxStatusRetracted:
		return "retracted"
	case TxStatusFinalityTimeout:
		return "finalitytimeout"
	case TxStatusFinalized:
		return "finalized"
	case TxStatusUsurped:
		return "usurped"
	case TxStatusDropped:
		return "dropped"
	case TxStatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// IsFinal reports whether the status ends the watch stream.
func (s TxStatus) IsFinal() bool {
	switch s {
	case TxStatusUsurped, TxStatusFinalized, TxStatusFinalityTimeout, TxStatusDropped, TxStatusInvalid:
		return true
	}
	return false
}

// IsRetriable reports whether the same payload may be resubmitted after this
// terminal status. A usurped transaction has been replaced under its tags and
// a finalized one is settled; anything else may be retried.
func (s TxStatus) IsRetriable() bool {
	switch s {
	case TxStatusFinalityTimeout, TxStatusDropped, TxStatusInvalid:
		return true
	}
	return false
}

// StatusEvent is one entry of a watch stream.
type StatusEvent struct {
	Status TxStatus

	// Block is set for InBlock, Retracted, FinalityTimeout and Finalized.
	Block core.BlockID

	// TxIndex is the position of the transaction within Block for InBlock
	// and Finalized, or -1 if the transaction was pruned by tag without
	// appearing in the block body.
	TxIndex int

	// Usurper is the hash of the replacing transaction for Usurped.
	Usurper common.Hash

	// Peers lists the peers the transaction was announced to for Broadcast.
	Peers []string
}

// PoolStatus is the aggregate occupancy of the two pool partitions.
type PoolStatus struct {
	Ready       uint64
	ReadyBytes  uint64
	Future      uint64
	FutureBytes uint64
}

// IsEmpty reports whether the pool tracks no transactions at all.
func (s PoolStatus) IsEmpty() bool {
	return s.Ready == 0 && s.Future == 0
}
