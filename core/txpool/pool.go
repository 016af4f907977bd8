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

// Package txpool implements the transaction pool of a Corvid node: the
// staging area for unconfirmed transactions between submission and block
// inclusion. Transactions are ordered by opaque dependency tags produced by
// the validator, partitioned into a ready and a future set, and kept
// consistent with chain progress by a maintenance loop consuming head and
// finality events.
package txpool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corvidchain/corvid/common"
	"github.com/corvidchain/corvid/core"
	"github.com/corvidchain/corvid/core/types"
	"github.com/corvidchain/corvid/event"
	"github.com/corvidchain/corvid/log"
)

const (
	// chainHeadChanSize is the size of channel listening to ChainHeadEvent.
	chainHeadChanSize = 10

	// finalizedChanSize is the size of channel listening to FinalizedEvent.
	finalizedChanSize = 10

	// revalidateWorkers bounds the concurrent validator calls made when
	// reinjecting transactions from retracted blocks.
	revalidateWorkers = 4

	// recentHeadDepth is how many processed head hashes are remembered for
	// ReadyAt requests arriving late.
	recentHeadDepth = 64
)

// Validator decides whether a payload is a valid transaction at a given
// chain position and produces its scheduling metadata.
type Validator interface {
	ValidateTransaction(ctx context.Context, source types.TxSource, at core.BlockID, payload []byte) (*types.Validity, error)
}

// BlockChain provides the chain state and progress events the pool
// maintains itself against.
type BlockChain interface {
	// CurrentBlock returns the current best block of the chain.
	CurrentBlock() core.BlockID

	// SubscribeChainHeadEvent subscribes to new best block notifications.
	SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription

	// SubscribeFinalizedEvent subscribes to block finality notifications.
	SubscribeFinalizedEvent(ch chan<- core.FinalizedEvent) event.Subscription
}

// InclusionOracle reports what a block consumed, used to prune the pool when
// the block becomes canonical.
type InclusionOracle interface {
	// ProvidedTags returns the dependency tags satisfied by the block's
	// state transition.
	ProvidedTags(block core.BlockID) (types.Tags, error)

	// BlockTransactions returns the transactions included in the block.
	BlockTransactions(block core.BlockID) (types.Transactions, error)
}

// inclusion tracks a pruned transaction between block inclusion and
// finality, counting the finalized blocks seen since.
type inclusion struct {
	block          core.BlockID
	txIndex        int
	sinceFinalized uint64
}

// TxPool is the transaction pool facade. All mutating operations serialize
// on one mutex; chain events are applied by a single maintenance goroutine.
type TxPool struct {
	config    Config
	chain     BlockChain
	validator Validator
	oracle    InclusionOracle

	mu      sync.RWMutex
	graph   *txGraph
	inBlock map[common.Hash]*inclusion

	head        core.BlockID
	recentHeads map[common.Hash]uint64
	waiters     map[common.Hash][]chan struct{}

	tracker    *statusTracker
	importFeed event.FeedOf[common.Hash]
	scope      event.SubscriptionScope

	headCh  chan core.ChainHeadEvent
	finCh   chan core.FinalizedEvent
	headSub event.Subscription
	finSub  event.Subscription

	quit chan chan error
	sync chan chan error
	term chan struct{}
	wg   sync.WaitGroup
}

// New creates a transaction pool tracking the given chain, using the
// validator for scheduling metadata and the oracle for pruning on block
// import.
func New(config Config, chain BlockChain, validator Validator, oracle InclusionOracle) *TxPool {
	config = (&config).sanitize()

	pool := &TxPool{
		config:      config,
		chain:       chain,
		validator:   validator,
		oracle:      oracle,
		inBlock:     make(map[common.Hash]*inclusion),
		recentHeads: make(map[common.Hash]uint64),
		waiters:     make(map[common.Hash][]chan struct{}),
		tracker:     newStatusTracker(config.WatchBuffer),
		headCh:      make(chan core.ChainHeadEvent, chainHeadChanSize),
		finCh:       make(chan core.FinalizedEvent, finalizedChanSize),
		quit:        make(chan chan error),
		sync:        make(chan chan error),
		term:        make(chan struct{}),
	}
	pool.graph = newTxGraph(&pool.config, pool.tracker, &pool.importFeed)

	pool.head = chain.CurrentBlock()
	pool.recentHeads[pool.head.Hash] = pool.head.Number

	pool.headSub = chain.SubscribeChainHeadEvent(pool.headCh)
	pool.finSub = chain.SubscribeFinalizedEvent(pool.finCh)

	pool.wg.Add(1)
	go pool.loop()

	log.Info("Transaction pool started", "ready", config.MaxReady, "future", config.MaxFuture, "horizon", config.FinalityHorizon)
	return pool
}

// loop is the pool's maintenance goroutine, serializing chain events with
// the forced settles requested by Sync.
func (p *TxPool) loop() {
	defer p.wg.Done()
	defer close(p.term)

	for {
		select {
		case ev := <-p.headCh:
			p.processHead(ev)

		case ev := <-p.finCh:
			p.processFinalized(ev)

		case errc := <-p.sync:
			// Drain the pending chain events before acknowledging.
			for drained := false; !drained; {
				select {
				case ev := <-p.headCh:
					p.processHead(ev)
				case ev := <-p.finCh:
					p.processFinalized(ev)
				default:
					drained = true
				}
			}
			errc <- nil

		case errc := <-p.quit:
			errc <- nil
			return
		}
	}
}

// Close terminates the maintenance loop and releases all pool resources.
func (p *TxPool) Close() error {
	p.headSub.Unsubscribe()
	p.finSub.Unsubscribe()
	p.scope.Close()

	errc := make(chan error)
	p.quit <- errc
	err := <-errc
	p.wg.Wait()

	// Release anyone still parked on ReadyAt.
	p.mu.Lock()
	for hash, list := range p.waiters {
		for _, ch := range list {
			close(ch)
		}
		delete(p.waiters, hash)
	}
	p.mu.Unlock()

	log.Info("Transaction pool stopped")
	return err
}

// Sync forces the maintenance loop to consume all queued chain events. It is
// an internal mechanism to make chain progress deterministic in tests.
func (p *TxPool) Sync() error {
	sync := make(chan error)
	select {
	case p.sync <- sync:
		return <-sync
	case <-p.term:
		return ErrPoolClosed
	}
}

// Submit validates and imports a single transaction into the pool. The
// returned hash identifies the transaction regardless of the outcome.
func (p *TxPool) Submit(ctx context.Context, payload []byte, source types.TxSource) (common.Hash, error) {
	tx := types.NewTransaction(payload, source)
	hash := tx.Hash()

	// Short circuit known transactions without bothering the validator.
	p.mu.RLock()
	known := p.graph.get(hash) != nil
	at := p.head
	p.mu.RUnlock()
	if known {
		log.Trace("Discarding already known transaction", "hash", hash)
		rejectedCounter.Inc()
		return hash, ErrAlreadyImported
	}
	validity, err := p.validator.ValidateTransaction(ctx, source, at, payload)
	if err != nil {
		log.Trace("Discarding invalid transaction", "hash", hash, "err", err)
		invalidCounter.Inc()
		return hash, err
	}
	vt := &types.ValidTransaction{Tx: tx, Validity: *validity}

	p.mu.Lock()
	ready, err := p.graph.insert(vt, at.Number)
	status := p.graph.status()
	p.mu.Unlock()

	if err != nil {
		log.Trace("Rejected pool transaction", "hash", hash, "err", err)
		rejectedCounter.Inc()
		return hash, err
	}
	submittedCounter.Inc()
	reportStatus(status)
	log.Trace("Pooled new transaction", "hash", hash, "ready", ready, "priority", validity.Priority)
	return hash, nil
}

// SubmitAll imports a batch of transactions, returning the per-transaction
// hashes and outcomes at matching indices.
func (p *TxPool) SubmitAll(ctx context.Context, payloads [][]byte, source types.TxSource) ([]common.Hash, []error) {
	hashes := make([]common.Hash, len(payloads))
	errs := make([]error, len(payloads))
	for i, payload := range payloads {
		hashes[i], errs[i] = p.Submit(ctx, payload, source)
	}
	return hashes, errs
}

// SubmitAndWatch imports a transaction and opens a status stream for it. The
// stream starts with the insertion outcome (future or ready), ends with
// exactly one terminal status, and is closed afterwards. The cancel function
// abandons the stream without touching the pool.
func (p *TxPool) SubmitAndWatch(ctx context.Context, payload []byte, source types.TxSource) (common.Hash, <-chan StatusEvent, func(), error) {
	tx := types.NewTransaction(payload, source)
	hash := tx.Hash()

	p.mu.RLock()
	known := p.graph.get(hash) != nil
	at := p.head
	p.mu.RUnlock()
	if known {
		rejectedCounter.Inc()
		return hash, nil, nil, ErrAlreadyImported
	}
	validity, err := p.validator.ValidateTransaction(ctx, source, at, payload)
	if err != nil {
		invalidCounter.Inc()
		return hash, nil, nil, err
	}
	vt := &types.ValidTransaction{Tx: tx, Validity: *validity}

	// The watch must exist before insertion so the first lifecycle event is
	// not lost.
	ch, cancel := p.tracker.watch(hash)

	p.mu.Lock()
	ready, err := p.graph.insert(vt, at.Number)
	status := p.graph.status()
	p.mu.Unlock()

	if err != nil {
		cancel()
		rejectedCounter.Inc()
		return hash, nil, nil, err
	}
	submittedCounter.Inc()
	reportStatus(status)
	log.Trace("Pooled new watched transaction", "hash", hash, "ready", ready)
	return hash, ch, cancel, nil
}

// Ready returns a dependency ordered iterator over a snapshot of the ready
// partition. The snapshot is consistent but immediately stale; block
// producers are expected to ReportInvalid on items failing execution.
func (p *TxPool) Ready() *ReadyIterator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return newReadyIterator(p.graph)
}

// ReadyTransactions drains a ready snapshot into a slice, optionally
// filtering out transactions whose validity forbids gossip.
func (p *TxPool) ReadyTransactions(propagableOnly bool) []*types.ValidTransaction {
	var txs []*types.ValidTransaction
	it := p.Ready()
	for vt := it.Next(); vt != nil; vt = it.Next() {
		if propagableOnly && !vt.Validity.Propagate {
			continue
		}
		txs = append(txs, vt)
	}
	return txs
}

// ReadyAt blocks until the maintenance loop has processed the chain head
// with the given hash, then returns a ready snapshot. It returns early with
// the context error on cancellation.
func (p *TxPool) ReadyAt(ctx context.Context, at common.Hash) (*ReadyIterator, error) {
	p.mu.Lock()
	if _, ok := p.recentHeads[at]; ok {
		it := newReadyIterator(p.graph)
		p.mu.Unlock()
		return it, nil
	}
	ch := make(chan struct{})
	p.waiters[at] = append(p.waiters[at], ch)
	p.mu.Unlock()

	select {
	case <-ch:
		return p.Ready(), nil
	case <-ctx.Done():
		p.mu.Lock()
		list := p.waiters[at]
		for i, o := range list {
			if o == ch {
				p.waiters[at] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(p.waiters[at]) == 0 {
			delete(p.waiters, at)
		}
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

// ReadyAtWithTimeout is ReadyAt with a bounded wait: when the timeout
// elapses before the head is processed, the current best-effort snapshot is
// returned instead of an error.
func (p *TxPool) ReadyAtWithTimeout(ctx context.Context, at common.Hash, timeout time.Duration) (*ReadyIterator, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	it, err := p.ReadyAt(cctx, at)
	if err == nil {
		return it, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	log.Debug("Timed out waiting for chain head, serving stale ready set", "head", at, "timeout", timeout)
	return p.Ready(), nil
}

// ReportInvalid removes the listed transactions. Hashes mapped to a non-nil
// error are surfaced to their watchers as invalid; a nil error is an
// administrative eviction with no lifecycle claim.
func (p *TxPool) ReportInvalid(at core.BlockID, causes map[common.Hash]error) {
	p.mu.Lock()
	for hash, cause := range causes {
		var ev *StatusEvent
		if cause != nil {
			ev = &StatusEvent{Status: TxStatusInvalid}
		}
		if vt := p.graph.remove(hash, ev); vt != nil {
			if cause != nil {
				invalidCounter.Inc()
				log.Trace("Removed invalid transaction", "hash", hash, "block", at.Hash, "err", cause)
			} else {
				log.Trace("Evicted transaction", "hash", hash)
			}
		}
	}
	status := p.graph.status()
	p.mu.Unlock()
	reportStatus(status)
}

// OnBroadcasted reports gossip propagation of pool transactions, feeding the
// repeatable broadcast status of any open watches.
func (p *TxPool) OnBroadcasted(propagated map[common.Hash][]string) {
	for hash, peers := range propagated {
		p.tracker.notify(hash, StatusEvent{Status: TxStatusBroadcast, Peers: peers})
	}
}

// Status returns the aggregate occupancy of the pool partitions.
func (p *TxPool) Status() PoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graph.status()
}

// Has reports whether the pool tracks a transaction with the given hash.
func (p *TxPool) Has(hash common.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graph.get(hash) != nil
}

// Clear drops every tracked transaction and all inclusion bookkeeping.
func (p *TxPool) Clear() {
	p.mu.Lock()
	p.graph.clear()
	p.inBlock = make(map[common.Hash]*inclusion)
	status := p.graph.status()
	p.mu.Unlock()
	reportStatus(status)
}

// SubscribeImportNotifications registers a channel receiving the hash of
// every transaction entering the ready partition, for gossip consumers.
func (p *TxPool) SubscribeImportNotifications(ch chan<- common.Hash) event.Subscription {
	return p.scope.Track(p.importFeed.Subscribe(ch))
}

// processHead applies a new best block: transactions from retracted blocks
// are revalidated and reinjected, transactions consumed by enacted blocks
// are pruned, and longevity expiry is enforced.
func (p *TxPool) processHead(ev core.ChainHeadEvent) {
	start := time.Now()

	// Collect retracted block bodies before touching pool state.
	var reinject types.Transactions
	if ev.Route.IsForkSwitch() {
		for _, block := range ev.Route.Retracted {
			txs, err := p.oracle.BlockTransactions(block)
			if err != nil {
				log.Error("Failed to load retracted block body", "hash", block.Hash, "err", err)
				continue
			}
			reinject = append(reinject, txs...)
		}
		// Emit retraction statuses before the reinserted transactions cycle
		// back through future or ready.
		p.mu.Lock()
		for _, block := range ev.Route.Retracted {
			for hash, inc := range p.inBlock {
				if inc.block.Hash == block.Hash {
					p.tracker.notify(hash, StatusEvent{Status: TxStatusRetracted, Block: block})
					delete(p.inBlock, hash)
				}
			}
		}
		p.mu.Unlock()
	}
	revalidated := p.revalidate(ev.Block, reinject)

	// Fetch what the enacted blocks consumed, still outside the pool lock.
	type enactment struct {
		block core.BlockID
		tags  types.Tags
		txs   types.Transactions
	}
	var enacted []enactment
	blocks := []core.BlockID{ev.Block}
	if ev.Route != nil && len(ev.Route.Enacted) > 0 {
		blocks = ev.Route.Enacted
	}
	for _, block := range blocks {
		tags, err := p.oracle.ProvidedTags(block)
		if err != nil {
			log.Error("Failed to load provided tags", "hash", block.Hash, "err", err)
		}
		txs, err := p.oracle.BlockTransactions(block)
		if err != nil {
			log.Error("Failed to load enacted block body", "hash", block.Hash, "err", err)
		}
		enacted = append(enacted, enactment{block: block, tags: tags, txs: txs})
	}

	p.mu.Lock()
	// Prune everything the enacted blocks consumed.
	for _, en := range enacted {
		for i, tx := range en.txs {
			hash := tx.Hash()
			if vt := p.graph.pruneByHash(hash, en.block, i); vt != nil {
				p.inBlock[hash] = &inclusion{block: en.block, txIndex: i}
				prunedCounter.Inc()
			}
		}
		for _, vt := range p.graph.pruneTags(en.tags, en.block) {
			p.inBlock[vt.Hash()] = &inclusion{block: en.block, txIndex: -1}
			prunedCounter.Inc()
		}
	}
	// Reinject transactions from the abandoned branch.
	for _, vt := range revalidated {
		if _, err := p.graph.insert(vt, ev.Block.Number); err != nil {
			log.Trace("Failed to reinject retracted transaction", "hash", vt.Hash(), "err", err)
		} else {
			retractedCounter.Inc()
		}
	}
	// Expire transactions that outlived their validity.
	for _, hash := range p.graph.expired(ev.Block.Number) {
		log.Trace("Expiring overlived transaction", "hash", hash, "head", ev.Block.Number)
		p.graph.remove(hash, &StatusEvent{Status: TxStatusInvalid})
		invalidCounter.Inc()
	}
	p.graph.truncateReady()
	p.graph.truncateFuture()

	// Record the head and wake up anyone waiting on it.
	p.head = ev.Block
	p.recentHeads[ev.Block.Hash] = ev.Block.Number
	for hash, number := range p.recentHeads {
		if number+recentHeadDepth < ev.Block.Number {
			delete(p.recentHeads, hash)
		}
	}
	for _, ch := range p.waiters[ev.Block.Hash] {
		close(ch)
	}
	delete(p.waiters, ev.Block.Hash)

	status := p.graph.status()
	p.mu.Unlock()

	reportStatus(status)
	log.Debug("Processed chain head", "number", ev.Block.Number, "hash", ev.Block.Hash,
		"reinjected", len(revalidated), "ready", status.Ready, "future", status.Future,
		"elapsed", time.Since(start))
}

// processFinalized settles watches for transactions included along the
// finalized route and times out watches stuck behind the finality horizon.
func (p *TxPool) processFinalized(ev core.FinalizedEvent) {
	blocks := []core.BlockID{ev.Block}
	if ev.Route != nil && len(ev.Route.Enacted) > 0 {
		blocks = ev.Route.Enacted
	}
	p.mu.Lock()
	for _, block := range blocks {
		for hash, inc := range p.inBlock {
			if inc.block.Hash == block.Hash {
				p.tracker.notify(hash, StatusEvent{Status: TxStatusFinalized, Block: inc.block, TxIndex: inc.txIndex})
				delete(p.inBlock, hash)
			}
		}
	}
	// Every transaction still unfinalized has now seen len(blocks) more
	// finalized blocks pass it by.
	for hash, inc := range p.inBlock {
		inc.sinceFinalized += uint64(len(blocks))
		if inc.sinceFinalized >= p.config.FinalityHorizon {
			log.Debug("Transaction finality timed out", "hash", hash, "block", inc.block.Hash, "horizon", p.config.FinalityHorizon)
			p.tracker.notify(hash, StatusEvent{Status: TxStatusFinalityTimeout, Block: inc.block})
			delete(p.inBlock, hash)
		}
	}
	p.mu.Unlock()
}

// revalidate runs the validator over a batch of retracted transactions
// against the new head, bounding parallelism, and returns the still valid
// ones in their original order.
func (p *TxPool) revalidate(at core.BlockID, txs types.Transactions) []*types.ValidTransaction {
	if len(txs) == 0 {
		return nil
	}
	results := make([]*types.ValidTransaction, len(txs))

	var group errgroup.Group
	group.SetLimit(revalidateWorkers)
	for i, tx := range txs {
		i, tx := i, tx
		group.Go(func() error {
			validity, err := p.validator.ValidateTransaction(context.Background(), types.TxSourceInBlock, at, tx.Payload())
			if err != nil {
				log.Trace("Retracted transaction no longer valid", "hash", tx.Hash(), "err", err)
				return nil
			}
			results[i] = &types.ValidTransaction{Tx: tx, Validity: *validity}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		log.Error("Transaction revalidation failed", "err", err)
	}
	valid := results[:0]
	for _, vt := range results {
		if vt != nil {
			valid = append(valid, vt)
		}
	}
	return valid
}
