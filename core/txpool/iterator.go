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
	"container/heap"

	"github.com/corvidchain/corvid/common"
	"github.com/corvidchain/corvid/core/types"
)

// ReadyIterator yields a snapshot of the ready partition in dependency
// respecting priority order: no transaction is yielded before every snapshot
// transaction providing one of its required tags, and among currently
// unblocked transactions the highest priority (oldest on ties) comes first.
//
// The snapshot is taken when the iterator is created; later pool mutations
// do not affect it. Calling ReportInvalid after Next skips every remaining
// transaction that transitively required a tag the reported one provides.
type ReadyIterator struct {
	entries []readyEntry
	order   entryOrder

	last        int
	lastInvalid bool
}

type readyEntry struct {
	vt         *types.ValidTransaction
	seq        uint64
	waits      int   // unreleased in-snapshot providers
	dependents []int // entries waiting on this one
}

func newReadyIterator(g *txGraph) *ReadyIterator {
	it := &ReadyIterator{
		entries: make([]readyEntry, 0, len(g.ready)),
		last:    -1,
	}
	index := make(map[common.Hash]int, len(g.ready))
	for hash, tx := range g.ready {
		index[hash] = len(it.entries)
		it.entries = append(it.entries, readyEntry{vt: tx.vt, seq: tx.seq})
	}
	// Wire the dependency edges that stay inside the snapshot. Tags provided
	// by chain state have no in-snapshot provider and wait on nothing.
	for i := range it.entries {
		for _, tag := range it.entries[i].vt.Validity.Requires {
			provider, ok := g.ledger.resolves(tag)
			if !ok {
				continue
			}
			if j, ok := index[provider]; ok && j != i {
				it.entries[i].waits++
				it.entries[j].dependents = append(it.entries[j].dependents, i)
			}
		}
	}
	it.order = entryOrder{entries: it.entries}
	for i := range it.entries {
		if it.entries[i].waits == 0 {
			it.order.index = append(it.order.index, i)
		}
	}
	heap.Init(&it.order)
	return it
}

// Next returns the next schedulable transaction, or nil when the snapshot is
// exhausted.
func (it *ReadyIterator) Next() *types.ValidTransaction {
	it.settle()
	if it.order.Len() == 0 {
		return nil
	}
	i := heap.Pop(&it.order).(int)
	it.last = i
	it.lastInvalid = false
	return it.entries[i].vt
}

// ReportInvalid marks the last transaction returned by Next as unusable.
// Its dependents, and theirs transitively, are skipped for the rest of the
// iteration. Already yielded transactions are unaffected.
func (it *ReadyIterator) ReportInvalid() {
	if it.last >= 0 {
		it.lastInvalid = true
	}
}

// settle releases the dependents of the previously yielded transaction,
// unless it was reported invalid.
func (it *ReadyIterator) settle() {
	if it.last < 0 {
		return
	}
	if !it.lastInvalid {
		for _, d := range it.entries[it.last].dependents {
			it.entries[d].waits--
			if it.entries[d].waits == 0 {
				heap.Push(&it.order, d)
			}
		}
	}
	it.last = -1
}

// entryOrder is a heap of snapshot indices keyed by descending priority with
// ascending insertion sequence as the tie-break.
type entryOrder struct {
	entries []readyEntry
	index   []int
}

func (o *entryOrder) Len() int { return len(o.index) }

func (o *entryOrder) Less(i, j int) bool {
	a, b := &o.entries[o.index[i]], &o.entries[o.index[j]]
	if a.vt.Validity.Priority != b.vt.Validity.Priority {
		return a.vt.Validity.Priority > b.vt.Validity.Priority
	}
	return a.seq < b.seq
}

func (o *entryOrder) Swap(i, j int) { o.index[i], o.index[j] = o.index[j], o.index[i] }

func (o *entryOrder) Push(x interface{}) { o.index = append(o.index, x.(int)) }

func (o *entryOrder) Pop() interface{} {
	last := len(o.index) - 1
	x := o.index[last]
	o.index = o.index[:last]
	return x
}
