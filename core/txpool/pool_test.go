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
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corvidchain/corvid/common"
	"github.com/corvidchain/corvid/core"
	"github.com/corvidchain/corvid/core/types"
	"github.com/corvidchain/corvid/event"
)

// testChain is a scriptable chain: blocks are named, minted on demand and
// can be retracted to simulate fork switches.
type testChain struct {
	mu     sync.Mutex
	head   core.BlockID
	number uint64
	bodies map[common.Hash]types.Transactions
	tags   map[common.Hash]types.Tags

	headFeed event.FeedOf[core.ChainHeadEvent]
	finFeed  event.FeedOf[core.FinalizedEvent]
}

func blockID(name string, number uint64) core.BlockID {
	return core.BlockID{Hash: common.DigestHash([]byte(name)), Number: number}
}

func newTestChain() *testChain {
	genesis := blockID("genesis", 0)
	return &testChain{
		head:   genesis,
		bodies: map[common.Hash]types.Transactions{genesis.Hash: nil},
		tags:   map[common.Hash]types.Tags{genesis.Hash: nil},
	}
}

func (c *testChain) CurrentBlock() core.BlockID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

func (c *testChain) SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription {
	return c.headFeed.Subscribe(ch)
}

func (c *testChain) SubscribeFinalizedEvent(ch chan<- core.FinalizedEvent) event.Subscription {
	return c.finFeed.Subscribe(ch)
}

func (c *testChain) ProvidedTags(block core.BlockID) (types.Tags, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tags, ok := c.tags[block.Hash]
	if !ok {
		return nil, fmt.Errorf("unknown block %x", block.Hash)
	}
	return tags, nil
}

func (c *testChain) BlockTransactions(block core.BlockID) (types.Transactions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.bodies[block.Hash]
	if !ok {
		return nil, fmt.Errorf("unknown block %x", block.Hash)
	}
	return body, nil
}

// addBlock mints a named block on top of the current head and announces it.
func (c *testChain) addBlock(name string, txs types.Transactions, provided types.Tags) core.BlockID {
	c.mu.Lock()
	c.number++
	block := blockID(name, c.number)
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

// reorg abandons the given blocks and announces a replacement head.
func (c *testChain) reorg(name string, retracted []core.BlockID, txs types.Transactions, provided types.Tags) core.BlockID {
	c.mu.Lock()
	c.number++
	block := blockID(name, c.number)
	c.bodies[block.Hash] = txs
	c.tags[block.Hash] = provided
	c.head = block
	c.mu.Unlock()

	c.headFeed.Send(core.ChainHeadEvent{
		Block: block,
		Route: &core.TreeRoute{Retracted: retracted, Enacted: []core.BlockID{block}},
	})
	return block
}

func (c *testChain) finalize(block core.BlockID) {
	c.finFeed.Send(core.FinalizedEvent{
		Block: block,
		Route: &core.TreeRoute{Enacted: []core.BlockID{block}},
	})
}

// testValidator serves stubbed validities keyed by payload.
type testValidator struct {
	mu         sync.Mutex
	validities map[string]types.Validity
}

func newTestValidator() *testValidator {
	return &testValidator{validities: make(map[string]types.Validity)}
}

func (v *testValidator) stub(payload string, validity types.Validity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.validities[payload] = validity
}

func (v *testValidator) drop(payload string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.validities, payload)
}

func (v *testValidator) ValidateTransaction(_ context.Context, _ types.TxSource, _ core.BlockID, payload []byte) (*types.Validity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	validity, ok := v.validities[string(payload)]
	if !ok {
		return nil, errors.New("unknown transaction")
	}
	return &validity, nil
}

func newTestPool(t *testing.T, config Config) (*TxPool, *testChain, *testValidator) {
	t.Helper()
	chain := newTestChain()
	validator := newTestValidator()
	pool := New(config, chain, validator, chain)
	t.Cleanup(func() { pool.Close() })
	return pool, chain, validator
}

func nextEvent(t *testing.T, ch <-chan StatusEvent) StatusEvent {
	t.Helper()
	select {
	case ev, open := <-ch:
		require.True(t, open, "status stream closed early")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for status event")
		return StatusEvent{}
	}
}

func expectClosed(t *testing.T, ch <-chan StatusEvent) {
	t.Helper()
	select {
	case ev, open := <-ch:
		require.False(t, open, "expected closed stream, got %v", ev.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream close")
	}
}

// Submitting a dependent pair and including the provider in a block promotes
// the dependent into the ready set.
func TestPoolInclusionPromotes(t *testing.T) {
	pool, chain, validator := newTestPool(t, testConfig)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})
	validator.stub("tx2", types.Validity{Priority: 10, Requires: tags("acct1/0"), Provides: tags("acct1/1")})

	h1, err := pool.Submit(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)
	_, err = pool.Submit(context.Background(), []byte("tx2"), types.TxSourceLocal)
	require.NoError(t, err)

	status := pool.Status()
	require.Equal(t, uint64(1), status.Ready)
	require.Equal(t, uint64(1), status.Future)

	it := pool.Ready()
	vt := it.Next()
	require.NotNil(t, vt)
	require.Equal(t, h1, vt.Hash())
	require.Nil(t, it.Next())

	// Mint a block including tx1 and consuming its tag.
	tx1 := vt.Tx
	chain.addBlock("b1", types.Transactions{tx1}, tags("acct1/0"))
	require.NoError(t, pool.Sync())

	status = pool.Status()
	require.Equal(t, uint64(1), status.Ready)
	require.Equal(t, uint64(0), status.Future)

	it = pool.Ready()
	vt = it.Next()
	require.NotNil(t, vt)
	require.Equal(t, "tx2", string(vt.Tx.Payload()))
	require.Nil(t, it.Next())
}

func TestPoolSubmitErrors(t *testing.T) {
	pool, _, validator := newTestPool(t, testConfig)

	_, err := pool.Submit(context.Background(), []byte("bogus"), types.TxSourceExternal)
	require.Error(t, err)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})
	_, err = pool.Submit(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)
	_, err = pool.Submit(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.ErrorIs(t, err, ErrAlreadyImported)
}

func TestPoolSubmitAll(t *testing.T) {
	pool, _, validator := newTestPool(t, testConfig)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})
	validator.stub("tx2", types.Validity{Priority: 10, Provides: tags("acct2/0")})

	hashes, errs := pool.SubmitAll(context.Background(),
		[][]byte{[]byte("tx1"), []byte("bogus"), []byte("tx2")}, types.TxSourceLocal)
	require.Len(t, hashes, 3)
	require.NoError(t, errs[0])
	require.Error(t, errs[1])
	require.NoError(t, errs[2])
	require.Equal(t, uint64(2), pool.Status().Ready)
}

// The full happy path of a watched transaction: ready, broadcast, in block,
// finalized, stream closed.
func TestPoolWatchLifecycle(t *testing.T) {
	pool, chain, validator := newTestPool(t, testConfig)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})

	hash, ch, cancel, err := pool.SubmitAndWatch(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)
	defer cancel()

	require.Equal(t, TxStatusReady, nextEvent(t, ch).Status)

	pool.OnBroadcasted(map[common.Hash][]string{hash: {"peer1", "peer2"}})
	ev := nextEvent(t, ch)
	require.Equal(t, TxStatusBroadcast, ev.Status)
	require.Equal(t, []string{"peer1", "peer2"}, ev.Peers)

	vt := pool.Ready().Next()
	require.NotNil(t, vt)
	b1 := chain.addBlock("b1", types.Transactions{vt.Tx}, tags("acct1/0"))
	require.NoError(t, pool.Sync())

	ev = nextEvent(t, ch)
	require.Equal(t, TxStatusInBlock, ev.Status)
	require.Equal(t, b1, ev.Block)
	require.Equal(t, 0, ev.TxIndex)

	chain.finalize(b1)
	require.NoError(t, pool.Sync())

	ev = nextEvent(t, ch)
	require.Equal(t, TxStatusFinalized, ev.Status)
	require.Equal(t, b1, ev.Block)
	expectClosed(t, ch)
}

// A fork switch retracts the including block; the transaction re-enters the
// pool through revalidation.
func TestPoolRetraction(t *testing.T) {
	pool, chain, validator := newTestPool(t, testConfig)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})

	_, ch, cancel, err := pool.SubmitAndWatch(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)
	defer cancel()
	require.Equal(t, TxStatusReady, nextEvent(t, ch).Status)

	vt := pool.Ready().Next()
	b1 := chain.addBlock("b1", types.Transactions{vt.Tx}, tags("acct1/0"))
	require.NoError(t, pool.Sync())
	require.Equal(t, TxStatusInBlock, nextEvent(t, ch).Status)
	require.True(t, pool.Status().IsEmpty())

	// Abandon b1 for an empty competitor.
	chain.reorg("b1'", []core.BlockID{b1}, nil, nil)
	require.NoError(t, pool.Sync())

	ev := nextEvent(t, ch)
	require.Equal(t, TxStatusRetracted, ev.Status)
	require.Equal(t, b1, ev.Block)
	require.Equal(t, TxStatusReady, nextEvent(t, ch).Status)
	require.Equal(t, uint64(1), pool.Status().Ready)
}

// A watched transaction stuck in an unfinalized block times out after the
// configured number of finalized blocks passes it by.
func TestPoolFinalityTimeout(t *testing.T) {
	config := testConfig
	config.FinalityHorizon = 3
	pool, chain, validator := newTestPool(t, config)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})

	_, ch, cancel, err := pool.SubmitAndWatch(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)
	defer cancel()
	require.Equal(t, TxStatusReady, nextEvent(t, ch).Status)

	vt := pool.Ready().Next()
	b1 := chain.addBlock("b1", types.Transactions{vt.Tx}, tags("acct1/0"))
	require.NoError(t, pool.Sync())
	require.Equal(t, TxStatusInBlock, nextEvent(t, ch).Status)

	// The finality gadget follows the other branch.
	for i := 0; i < 3; i++ {
		block := chain.addBlock(fmt.Sprintf("other%d", i), nil, nil)
		chain.finalize(block)
	}
	require.NoError(t, pool.Sync())

	ev := nextEvent(t, ch)
	require.Equal(t, TxStatusFinalityTimeout, ev.Status)
	require.Equal(t, b1, ev.Block)
	expectClosed(t, ch)
}

func TestPoolLongevityExpiry(t *testing.T) {
	pool, chain, validator := newTestPool(t, testConfig)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0"), Longevity: 2})

	_, ch, cancel, err := pool.SubmitAndWatch(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)
	defer cancel()
	require.Equal(t, TxStatusReady, nextEvent(t, ch).Status)

	for i := 0; i < 3; i++ {
		chain.addBlock(fmt.Sprintf("b%d", i), nil, nil)
	}
	require.NoError(t, pool.Sync())

	ev := nextEvent(t, ch)
	require.Equal(t, TxStatusInvalid, ev.Status)
	expectClosed(t, ch)
	require.True(t, pool.Status().IsEmpty())
}

func TestPoolReportInvalid(t *testing.T) {
	pool, chain, validator := newTestPool(t, testConfig)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})
	validator.stub("tx2", types.Validity{Priority: 10, Provides: tags("acct2/0")})

	_, ch, cancel, err := pool.SubmitAndWatch(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)
	defer cancel()
	require.Equal(t, TxStatusReady, nextEvent(t, ch).Status)

	h2, err := pool.Submit(context.Background(), []byte("tx2"), types.TxSourceLocal)
	require.NoError(t, err)

	h1 := common.DigestHash([]byte("tx1"))
	pool.ReportInvalid(chain.CurrentBlock(), map[common.Hash]error{
		h1: errors.New("failed execution"),
		h2: nil, // administrative eviction
	})

	ev := nextEvent(t, ch)
	require.Equal(t, TxStatusInvalid, ev.Status)
	expectClosed(t, ch)
	require.True(t, pool.Status().IsEmpty())
}

func TestPoolReadyAt(t *testing.T) {
	pool, chain, validator := newTestPool(t, testConfig)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})
	_, err := pool.Submit(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)

	// The current head is served without waiting.
	it, err := pool.ReadyAt(context.Background(), chain.CurrentBlock().Hash)
	require.NoError(t, err)
	require.NotNil(t, it.Next())

	// A future head parks the caller until maintenance processes it.
	target := blockID("b1", 1)
	done := make(chan *ReadyIterator, 1)
	go func() {
		it, err := pool.ReadyAt(context.Background(), target.Hash)
		if err != nil {
			done <- nil
			return
		}
		done <- it
	}()
	time.Sleep(50 * time.Millisecond)
	chain.addBlock("b1", nil, nil)

	select {
	case it := <-done:
		require.NotNil(t, it)
		require.NotNil(t, it.Next())
	case <-time.After(5 * time.Second):
		t.Fatal("ReadyAt never resolved")
	}

	// Cancellation propagates.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.ReadyAt(ctx, blockID("never", 99).Hash)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPoolReadyAtWithTimeout(t *testing.T) {
	pool, _, validator := newTestPool(t, testConfig)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})
	_, err := pool.Submit(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)

	// The head never arrives: after the timeout the stale snapshot is
	// served as a degraded but valid result.
	it, err := pool.ReadyAtWithTimeout(context.Background(), blockID("never", 99).Hash, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, it)
	require.NotNil(t, it.Next())
}

func TestPoolImportNotifications(t *testing.T) {
	pool, _, validator := newTestPool(t, testConfig)

	imports := make(chan common.Hash, 16)
	sub := pool.SubscribeImportNotifications(imports)
	defer sub.Unsubscribe()

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})
	validator.stub("tx2", types.Validity{Priority: 10, Requires: tags("acct1/0"), Provides: tags("acct1/1")})

	// The future transaction triggers no import notification.
	h2, err := pool.Submit(context.Background(), []byte("tx2"), types.TxSourceLocal)
	require.NoError(t, err)
	select {
	case hash := <-imports:
		t.Fatalf("unexpected import notification for %x", hash)
	case <-time.After(50 * time.Millisecond):
	}

	// The provider unlocks both.
	h1, err := pool.Submit(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)

	got := map[common.Hash]bool{}
	for i := 0; i < 2; i++ {
		select {
		case hash := <-imports:
			got[hash] = true
		case <-time.After(5 * time.Second):
			t.Fatal("missing import notification")
		}
	}
	require.True(t, got[h1])
	require.True(t, got[h2])
}

func TestPoolClear(t *testing.T) {
	pool, _, validator := newTestPool(t, testConfig)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})
	_, ch, cancel, err := pool.SubmitAndWatch(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)
	defer cancel()
	require.Equal(t, TxStatusReady, nextEvent(t, ch).Status)

	pool.Clear()
	require.True(t, pool.Status().IsEmpty())
	require.Equal(t, TxStatusDropped, nextEvent(t, ch).Status)
	expectClosed(t, ch)
}

func TestPoolPropagableFilter(t *testing.T) {
	pool, _, validator := newTestPool(t, testConfig)

	validator.stub("loud", types.Validity{Priority: 10, Provides: tags("a/0"), Propagate: true})
	validator.stub("quiet", types.Validity{Priority: 20, Provides: tags("b/0"), Propagate: false})

	_, errs := pool.SubmitAll(context.Background(), [][]byte{[]byte("loud"), []byte("quiet")}, types.TxSourceLocal)
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, pool.ReadyTransactions(false), 2)

	gossip := pool.ReadyTransactions(true)
	require.Len(t, gossip, 1)
	require.Equal(t, "loud", string(gossip[0].Tx.Payload()))
}

// A retracted transaction that fails revalidation at the new head is not
// reinjected.
func TestPoolRetractionRevalidates(t *testing.T) {
	pool, chain, validator := newTestPool(t, testConfig)

	validator.stub("tx1", types.Validity{Priority: 10, Provides: tags("acct1/0")})
	_, err := pool.Submit(context.Background(), []byte("tx1"), types.TxSourceLocal)
	require.NoError(t, err)

	vt := pool.Ready().Next()
	b1 := chain.addBlock("b1", types.Transactions{vt.Tx}, tags("acct1/0"))
	require.NoError(t, pool.Sync())
	require.True(t, pool.Status().IsEmpty())

	// The transaction is no longer valid on the other branch.
	validator.drop("tx1")
	chain.reorg("b1'", []core.BlockID{b1}, nil, nil)
	require.NoError(t, pool.Sync())
	require.True(t, pool.Status().IsEmpty())
}
