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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidchain/corvid/core/types"
)

func drain(it *ReadyIterator) []string {
	var order []string
	for vt := it.Next(); vt != nil; vt = it.Next() {
		order = append(order, string(vt.Tx.Payload()))
	}
	return order
}

func TestIteratorPriorityOrder(t *testing.T) {
	g, _ := newTestGraph(testConfig)

	// Independent transactions: pure priority order, insertion order on ties.
	for _, tc := range []struct {
		payload  string
		priority uint64
	}{
		{"low", 1}, {"tieA", 5}, {"high", 9}, {"tieB", 5},
	} {
		_, err := g.insert(makeVT(tc.payload, tc.priority, nil, tags(tc.payload)), 0)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"high", "tieA", "tieB", "low"}, drain(newReadyIterator(g)))
}

func TestIteratorTopologicalOrder(t *testing.T) {
	g, _ := newTestGraph(testConfig)

	// tx2 outranks tx1 by priority but depends on it; dependency wins.
	tx1 := makeVT("tx1", 1, nil, tags("acct1/0"))
	tx2 := makeVT("tx2", 100, tags("acct1/0"), tags("acct1/1"))
	unrelated := makeVT("mid", 50, nil, tags("other/0"))

	for _, vt := range []*types.ValidTransaction{tx1, tx2, unrelated} {
		_, err := g.insert(vt, 0)
		require.NoError(t, err)
	}
	order := drain(newReadyIterator(g))
	require.Equal(t, []string{"mid", "tx1", "tx2"}, order)
}

func TestIteratorChainSatisfiedTags(t *testing.T) {
	g, _ := newTestGraph(testConfig)

	// tx1's provider was pruned into a block; its requirement has no
	// in-snapshot provider and must not block iteration.
	provider := makeVT("provider", 1, nil, tags("acct1/0"))
	dependent := makeVT("dependent", 9, tags("acct1/0"), tags("acct1/1"))
	_, err := g.insert(provider, 0)
	require.NoError(t, err)
	_, err = g.insert(dependent, 0)
	require.NoError(t, err)

	g.pruneTags(tags("acct1/0"), testBlock(1))
	require.Equal(t, []string{"dependent"}, drain(newReadyIterator(g)))
}

func TestIteratorReportInvalidSkipsDependents(t *testing.T) {
	g, _ := newTestGraph(testConfig)

	// Chain tx1 <- tx2 <- tx3 plus an unrelated transaction.
	tx1 := makeVT("tx1", 10, nil, tags("acct1/0"))
	tx2 := makeVT("tx2", 10, tags("acct1/0"), tags("acct1/1"))
	tx3 := makeVT("tx3", 10, tags("acct1/1"), tags("acct1/2"))
	other := makeVT("other", 1, nil, tags("other/0"))
	for _, vt := range []*types.ValidTransaction{tx1, tx2, tx3, other} {
		_, err := g.insert(vt, 0)
		require.NoError(t, err)
	}

	it := newReadyIterator(g)
	first := it.Next()
	require.Equal(t, "tx1", string(first.Tx.Payload()))
	it.ReportInvalid()

	// tx2 and tx3 are transitively unusable; only the unrelated one remains.
	require.Equal(t, []string{"other"}, drain(it))

	// The underlying pool is untouched by iterator-level invalidation.
	require.Equal(t, uint64(4), g.status().Ready)
}

func TestIteratorRestartable(t *testing.T) {
	g, _ := newTestGraph(testConfig)

	tx1 := makeVT("tx1", 10, nil, tags("acct1/0"))
	tx2 := makeVT("tx2", 10, tags("acct1/0"), tags("acct1/1"))
	for _, vt := range []*types.ValidTransaction{tx1, tx2} {
		_, err := g.insert(vt, 0)
		require.NoError(t, err)
	}

	// Invalidation in one query does not leak into the next.
	it := newReadyIterator(g)
	it.Next()
	it.ReportInvalid()
	require.Empty(t, drain(it))

	require.Equal(t, []string{"tx1", "tx2"}, drain(newReadyIterator(g)))
}

func TestIteratorEmpty(t *testing.T) {
	g, _ := newTestGraph(testConfig)
	it := newReadyIterator(g)
	require.Nil(t, it.Next())
	it.ReportInvalid() // no-op before any Next
	require.Nil(t, it.Next())
}
