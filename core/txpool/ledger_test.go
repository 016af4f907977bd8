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

	"github.com/corvidchain/corvid/common"
	"github.com/corvidchain/corvid/core/types"
)

func TestLedgerBindResolve(t *testing.T) {
	l := newTagLedger()
	tag := types.NewTag("acct1/0")
	hash := common.DigestHash([]byte("tx1"))

	_, ok := l.resolves(tag)
	require.False(t, ok)

	require.NoError(t, l.bind(tag, hash))
	got, ok := l.resolves(tag)
	require.True(t, ok)
	require.Equal(t, hash, got)
	require.Equal(t, 1, l.count())

	// Rebinding to the same provider is a no-op.
	require.NoError(t, l.bind(tag, hash))
	require.Equal(t, 1, l.count())
}

func TestLedgerConflict(t *testing.T) {
	l := newTagLedger()
	tag := types.NewTag("acct1/0")
	tx1 := common.DigestHash([]byte("tx1"))
	tx2 := common.DigestHash([]byte("tx2"))

	require.NoError(t, l.bind(tag, tx1))
	err := l.bind(tag, tx2)
	require.ErrorIs(t, err, ErrTagConflict)

	// The incumbent binding survives the failed attempt.
	got, ok := l.resolves(tag)
	require.True(t, ok)
	require.Equal(t, tx1, got)
}

func TestLedgerUnbind(t *testing.T) {
	l := newTagLedger()
	tag := types.NewTag("acct1/0")
	tx1 := common.DigestHash([]byte("tx1"))
	tx2 := common.DigestHash([]byte("tx2"))

	require.NoError(t, l.bind(tag, tx1))

	// Unbinding on behalf of a non-provider is ignored.
	l.unbind(tag, tx2)
	_, ok := l.resolves(tag)
	require.True(t, ok)

	l.unbind(tag, tx1)
	_, ok = l.resolves(tag)
	require.False(t, ok)
	require.Equal(t, 0, l.count())
}
