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
	"fmt"

	"github.com/corvidchain/corvid/common"
	"github.com/corvidchain/corvid/core/types"
)

// tagLedger maps each dependency tag to the ready transaction currently
// providing it. At most one provider exists per tag at any time; replacing a
// provider requires the caller to evict the incumbent first.
//
// The ledger is not safe for concurrent use, callers hold the graph lock.
type tagLedger struct {
	providers map[string]common.Hash
}

func newTagLedger() *tagLedger {
	return &tagLedger{
		providers: make(map[string]common.Hash),
	}
}

// bind records hash as the provider of tag. Rebinding a tag to the hash it
// is already bound to is a no-op; binding a tag held by a different
// transaction fails with ErrTagConflict.
func (l *tagLedger) bind(tag types.Tag, hash common.Hash) error {
	if cur, ok := l.providers[tag.Key()]; ok && cur != hash {
		return fmt.Errorf("%w: tag %s held by %s", ErrTagConflict, tag, cur.TerminalString())
	}
	l.providers[tag.Key()] = hash
	return nil
}

// unbind releases tag if it is currently bound to hash. Unbinding on behalf
// of a transaction that is not the provider is ignored, so removal paths do
// not have to care whether a usurper already took the tag over.
func (l *tagLedger) unbind(tag types.Tag, hash common.Hash) {
	if cur, ok := l.providers[tag.Key()]; ok && cur == hash {
		delete(l.providers, tag.Key())
	}
}

// resolves returns the hash of the ready transaction providing tag, if any.
func (l *tagLedger) resolves(tag types.Tag) (common.Hash, bool) {
	h, ok := l.providers[tag.Key()]
	return h, ok
}

// count returns the number of currently bound tags.
func (l *tagLedger) count() int {
	return len(l.providers)
}
