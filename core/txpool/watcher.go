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
	"sync"

	"github.com/corvidchain/corvid/common"
	"github.com/corvidchain/corvid/log"
)

// statusTracker fans lifecycle events out to the watch streams opened by
// SubmitAndWatch. Delivery is per-hash ordered: events for one hash are
// published under a single lock in mutation order.
//
// Watch channels are bounded. A slow watcher loses the oldest buffered
// non-terminal event; the terminal event is always delivered, exactly once,
// and closes the stream.
type statusTracker struct {
	mu       sync.Mutex
	watchers map[common.Hash][]*watcher
	buffer   int
}

type watcher struct {
	tracker *statusTracker
	hash    common.Hash
	ch      chan StatusEvent
	closed  bool
}

func newStatusTracker(buffer int) *statusTracker {
	return &statusTracker{
		watchers: make(map[common.Hash][]*watcher),
		buffer:   buffer,
	}
}

// watch opens a status stream for hash. The returned cancel function
// unsubscribes without affecting pool state; it is safe to call it multiple
// times and after the stream has closed.
func (t *statusTracker) watch(hash common.Hash) (<-chan StatusEvent, func()) {
	w := &watcher{
		tracker: t,
		hash:    hash,
		ch:      make(chan StatusEvent, t.buffer),
	}
	t.mu.Lock()
	t.watchers[hash] = append(t.watchers[hash], w)
	t.mu.Unlock()
	return w.ch, w.cancel
}

func (w *watcher) cancel() {
	t := w.tracker
	t.mu.Lock()
	defer t.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
	list := t.watchers[w.hash]
	for i, o := range list {
		if o == w {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.watchers, w.hash)
	} else {
		t.watchers[w.hash] = list
	}
}

// notify publishes a lifecycle event to all watchers of hash. Terminal
// events close every stream; tracking for the hash ends with them.
func (t *statusTracker) notify(hash common.Hash, ev StatusEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.watchers[hash]
	if len(list) == 0 {
		return
	}
	log.Trace("Transaction status changed", "hash", hash, "status", ev.Status)
	for _, w := range list {
		w.push(ev)
	}
	if ev.Status.IsFinal() {
		for _, w := range list {
			w.closed = true
			close(w.ch)
		}
		delete(t.watchers, hash)
	}
}

// push enqueues an event, displacing the oldest buffered one if the watcher
// has fallen behind. Only non-terminal events can be displaced: the terminal
// event makes room for itself and nothing is sent after it.
func (w *watcher) push(ev StatusEvent) {
	for {
		select {
		case w.ch <- ev:
			return
		default:
		}
		select {
		case <-w.ch:
			// Dropped the oldest buffered event, retry.
		default:
		}
	}
}

// watching reports whether any stream is open for hash, used in tests.
func (t *statusTracker) watching(hash common.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.watchers[hash]) > 0
}
