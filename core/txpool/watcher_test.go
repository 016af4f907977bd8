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
)

func TestWatcherLifecycleDelivery(t *testing.T) {
	tracker := newStatusTracker(8)
	hash := common.DigestHash([]byte("tx"))

	ch, cancel := tracker.watch(hash)
	defer cancel()

	tracker.notify(hash, StatusEvent{Status: TxStatusFuture})
	tracker.notify(hash, StatusEvent{Status: TxStatusReady})
	tracker.notify(hash, StatusEvent{Status: TxStatusInBlock, Block: testBlock(1), TxIndex: 0})
	tracker.notify(hash, StatusEvent{Status: TxStatusFinalized, Block: testBlock(1), TxIndex: 0})

	want := []TxStatus{TxStatusFuture, TxStatusReady, TxStatusInBlock, TxStatusFinalized}
	for _, status := range want {
		ev, open := <-ch
		require.True(t, open)
		require.Equal(t, status, ev.Status)
	}
	// Terminal closed the stream.
	_, open := <-ch
	require.False(t, open)
	require.False(t, tracker.watching(hash))
}

func TestWatcherTerminalUniqueness(t *testing.T) {
	tracker := newStatusTracker(8)
	hash := common.DigestHash([]byte("tx"))

	ch, cancel := tracker.watch(hash)
	defer cancel()

	tracker.notify(hash, StatusEvent{Status: TxStatusDropped})
	// Notifications after a terminal find no watchers and are discarded.
	tracker.notify(hash, StatusEvent{Status: TxStatusInvalid})
	tracker.notify(hash, StatusEvent{Status: TxStatusReady})

	var terminals int
	for ev := range ch {
		if ev.Status.IsFinal() {
			terminals++
		}
	}
	require.Equal(t, 1, terminals)
}

func TestWatcherSlowConsumerKeepsTerminal(t *testing.T) {
	tracker := newStatusTracker(2)
	hash := common.DigestHash([]byte("tx"))

	ch, cancel := tracker.watch(hash)
	defer cancel()

	// Nobody reads: the buffer overflows and the oldest events fall out,
	// but the terminal must survive.
	for i := 0; i < 10; i++ {
		tracker.notify(hash, StatusEvent{Status: TxStatusReady})
		tracker.notify(hash, StatusEvent{Status: TxStatusFuture})
	}
	tracker.notify(hash, StatusEvent{Status: TxStatusFinalized, Block: testBlock(3)})

	var last StatusEvent
	var got bool
	for ev := range ch {
		last, got = ev, true
	}
	require.True(t, got)
	require.Equal(t, TxStatusFinalized, last.Status)
	require.Equal(t, testBlock(3), last.Block)
}

func TestWatcherCancel(t *testing.T) {
	tracker := newStatusTracker(8)
	hash := common.DigestHash([]byte("tx"))

	ch, cancel := tracker.watch(hash)
	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open)
	require.False(t, tracker.watching(hash))

	// Events after cancellation go nowhere, and in particular don't panic.
	tracker.notify(hash, StatusEvent{Status: TxStatusReady})
}

func TestWatcherMultipleSubscribers(t *testing.T) {
	tracker := newStatusTracker(8)
	hash := common.DigestHash([]byte("tx"))

	ch1, cancel1 := tracker.watch(hash)
	ch2, cancel2 := tracker.watch(hash)
	defer cancel1()
	defer cancel2()

	tracker.notify(hash, StatusEvent{Status: TxStatusReady})
	tracker.notify(hash, StatusEvent{Status: TxStatusUsurped, Usurper: common.DigestHash([]byte("other"))})

	for _, ch := range []<-chan StatusEvent{ch1, ch2} {
		ev := <-ch
		require.Equal(t, TxStatusReady, ev.Status)
		ev = <-ch
		require.Equal(t, TxStatusUsurped, ev.Status)
		_, open := <-ch
		require.False(t, open)
	}
}
