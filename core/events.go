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

// Package core contains the chain event types shared between the pool and
// its chain-side collaborators.
package core

import (
	"github.com/corvidchain/corvid/common"
)

// BlockID identifies a block by hash and height.
type BlockID struct {
	Hash   common.Hash
	Number uint64
}

// TreeRoute describes the path between two blocks in the block tree: the
// blocks retracted from the old branch (best first) and the blocks enacted
// on the new branch (oldest first). A route entirely within one branch has
// no retracted blocks.
type TreeRoute struct {
	Retracted []BlockID
	Enacted   []BlockID
}

// IsForkSwitch reports whether following the route abandons any blocks.
func (r *TreeRoute) IsForkSwitch() bool {
	return r != nil && len(r.Retracted) > 0
}

// ChainHeadEvent is posted when the canonical head of the chain moves. Route
// carries the tree route from the previous best block to Block.
type ChainHeadEvent struct {
	Block BlockID
	Route *TreeRoute
}

// FinalizedEvent is posted when a block is declared final. Route carries the
// tree route from the previously finalized block to Block, all enacted.
type FinalizedEvent struct {
	Block BlockID
	Route *TreeRoute
}
