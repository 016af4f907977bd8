// Copyright 2025 The corvid Authors
// This file is part of corvid.
//
// corvid is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// corvid is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with corvid. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/corvidchain/corvid/common"
	"github.com/corvidchain/corvid/core"
	"github.com/corvidchain/corvid/core/types"
	"github.com/corvidchain/corvid/event"
)

// simChain is an in-memory chain for driving the pool: it mints blocks from
// transaction batches and publishes head and finality events.
type simChain struct {
	mu     sync.Mutex
	head   core.BlockID
	bodies map[common.Hash]types.Transactions
	tags   map[common.Hash]types.Tags

	headFeed event.FeedOf[core.ChainHeadEvent]
	finFeed  event.FeedOf[core.FinalizedEvent]
}

func newSimChain() *simChain {
	genesis := core.BlockID{Hash: common.DigestHash([]byte("genesis")), Number: 0}
	return &simChain{
		head:   genesis,
		bodies: map[common.Hash]types.Transactions{genesis.Hash: nil},
		tags:   map[common.Hash]types.Tags{genesis.Hash: nil},
	}
}

func (c *simChain) CurrentBlock() core.BlockID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

func (c *simChain) SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription {
	return c.headFeed.Subscribe(ch)
}

func (c *simChain) SubscribeFinalizedEvent(ch chan<- core.FinalizedEvent) event.Subscription {
	return c.finFeed.Subscribe(ch)
}

func (c *simChain) ProvidedTags(block core.BlockID) (types.Tags, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tags, ok := c.tags[block.Hash]
	if !ok {
		return nil, fmt.Errorf("unknown block %s", block.Hash.TerminalString())
	}
	return tags, nil
}

func (c *simChain) BlockTransactions(block core.BlockID) (types.Transactions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.bodies[block.Hash]
	if !ok {
		return nil, fmt.Errorf("unknown block %s", block.Hash.TerminalString())
	}
	return body, nil
}

// mint seals the given transactions into the next block and announces it as
// the new chain head.
func (c *simChain) mint(txs types.Transactions, provided types.Tags) core.BlockID {
	c.mu.Lock()
	number := c.head.Number + 1
	seed := fmt.Sprintf("block/%d/%d", number, len(c.bodies))
	block := core.BlockID{Hash: common.DigestHash([]byte(seed)), Number: number}
	c.bodies[block.Hash] = txs
	c.tags[block.Hash] = provided
	c.head = block
	c.mu.Unlock()

	c.headFeed.Send(core.ChainHeadEvent{
		Block: block,
		Route: &core.TreeRoute{Enacted: []core.BlockID{block}},
	})
	return block
}

// finalize announces finality for a previously minted block.
func (c *simChain) finalize(block core.BlockID) {
	c.finFeed.Send(core.FinalizedEvent{
		Block: block,
		Route: &core.TreeRoute{Enacted: []core.BlockID{block}},
	})
}

// simValidator interprets payloads of the form "account:nonce:priority".
// A transaction requires its account's preceding nonce tag (unless nonce is
// zero) and provides its own, mirroring a per-account ordering scheme.
type simValidator struct {
	longevity uint64
}

func nonceTag(account string, nonce uint64) types.Tag {
	return types.Tag(fmt.Sprintf("%s/%d", account, nonce))
}

func (v *simValidator) ValidateTransaction(_ context.Context, _ types.TxSource, _ core.BlockID, payload []byte) (*types.Validity, error) {
	parts := strings.Split(string(payload), ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed payload %q", payload)
	}
	account := parts[0]
	nonce, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad nonce in %q: %w", payload, err)
	}
	priority, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad priority in %q: %w", payload, err)
	}
	validity := &types.Validity{
		Priority:  priority,
		Provides:  types.Tags{nonceTag(account, nonce)},
		Longevity: v.longevity,
		Propagate: true,
	}
	if nonce > 0 {
		validity.Requires = types.Tags{nonceTag(account, nonce-1)}
	}
	return validity, nil
}
