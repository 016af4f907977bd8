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

import "errors"

var (
	// ErrAlreadyImported is returned if a transaction with the exact same
	// hash is already tracked by the pool.
	ErrAlreadyImported = errors.New("already imported")

	// ErrTooLowPriority is returned if a transaction provides a tag that is
	// already provided by a ready transaction of higher or equal priority.
	ErrTooLowPriority = errors.New("too low priority to replace provider")

	// ErrCyclicDependency is returned if a transaction requires a tag that
	// only it would provide, making it unschedulable.
	ErrCyclicDependency = errors.New("cyclic tag dependency")

	// ErrImmediatelyDropped is returned if a transaction does not fit into a
	// full partition and is not preferable to the current eviction candidate.
	ErrImmediatelyDropped = errors.New("transaction would be immediately dropped")

	// ErrTagConflict is returned by the tag ledger when binding a tag that is
	// already bound to a different transaction. Callers must evict the
	// incumbent provider before rebinding.
	ErrTagConflict = errors.New("tag already provided")

	// ErrPoolClosed is returned by operations on a closed pool.
	ErrPoolClosed = errors.New("transaction pool is closed")
)
