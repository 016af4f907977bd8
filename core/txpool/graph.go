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
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emirpasic/gods/sets/treeset"
	"golang.org/x/exp/maps"

	"github.com/corvidchain/corvid/common"
	"github.com/corvidchain/corvid/core"
	"github.com/corvidchain/corvid/core/types"
	"github.com/corvidchain/corvid/event"
	"github.com/corvidchain/corvid/log"
)

// graphTx is the pool-internal bookkeeping wrapper around a validated
// transaction. The wrapped validity is immutable; only partition membership
// and the set of unresolved tags mutate.
type graphTx struct {
	vt   *types.ValidTransaction
	hash common.Hash
	seq  uint64 // insertion sequence, used as an age tie-break

	// validatedAt is the block number the validity was produced at, the
	// anchor for longevity expiry.
	validatedAt uint64

	// missing holds the requires tags that currently resolve to nothing.
	// The transaction is ready iff the set is empty.
	missing mapset.Set[string]
	ready   bool
}

func (tx *graphTx) priority() uint64 { return tx.vt.Validity.Priority }
func (tx *graphTx) size() uint64     { return tx.vt.Tx.Size() }

// evictOrder sorts transactions by eviction preference: lowest priority
// first, oldest insertion as the tie-break. The first element of a set in
// this order is the next eviction candidate.
func evictOrder(a, b interface{}) int {
	ta, tb := a.(*graphTx), b.(*graphTx)
	switch {
	case ta.priority() < tb.priority():
		return -1
	case ta.priority() > tb.priority():
		return 1
	case ta.seq < tb.seq:
		return -1
	case ta.seq > tb.seq:
		return 1
	default:
		return 0
	}
}

// txGraph is the dependency-aware transaction container. It holds the ready
// partition (every requires tag provided by another ready transaction or by
// chain state) and the future partition (at least one unresolved tag), keeps
// the tag ledger consistent with ready membership, and performs the
// promotion, demotion and usurpation cascades.
//
// The graph is not safe for concurrent use; the pool serializes access.
type txGraph struct {
	config  *Config
	ledger  *tagLedger
	tracker *statusTracker

	importFeed *event.FeedOf[common.Hash]

	all    map[common.Hash]*graphTx
	ready  map[common.Hash]*graphTx
	future map[common.Hash]*graphTx

	// requirers indexes, for every tag, the transactions of either partition
	// that list it in their requires set.
	requirers map[string]map[common.Hash]struct{}

	readyEvict  *treeset.Set // ready transactions in eviction order
	futureEvict *treeset.Set // future transactions in eviction order

	readyBytes  uint64
	futureBytes uint64

	nextSeq uint64
}

func newTxGraph(config *Config, tracker *statusTracker, importFeed *event.FeedOf[common.Hash]) *txGraph {
	return &txGraph{
		config:      config,
		ledger:      newTagLedger(),
		tracker:     tracker,
		importFeed:  importFeed,
		all:         make(map[common.Hash]*graphTx),
		ready:       make(map[common.Hash]*graphTx),
		future:      make(map[common.Hash]*graphTx),
		requirers:   make(map[string]map[common.Hash]struct{}),
		readyEvict:  treeset.NewWith(evictOrder),
		futureEvict: treeset.NewWith(evictOrder),
	}
}

// insert adds a validated transaction to the graph, returning whether it
// landed in the ready partition. Structural rejections (duplicate hash,
// priority too low to usurp, cyclic dependency, no room) leave the graph
// untouched.
func (g *txGraph) insert(vt *types.ValidTransaction, validatedAt uint64) (bool, error) {
	hash := vt.Hash()
	if _, ok := g.all[hash]; ok {
		return false, ErrAlreadyImported
	}
	missing := mapset.NewThreadUnsafeSet[string]()
	for _, tag := range vt.Validity.Requires {
		if _, ok := g.ledger.resolves(tag); !ok {
			missing.Add(tag.Key())
		}
	}
	// A transaction whose only path to readiness runs through a tag it
	// provides itself can never be scheduled.
	if missing.Cardinality() > 0 {
		for _, tag := range vt.Validity.Provides {
			if missing.Contains(tag.Key()) {
				return false, ErrCyclicDependency
			}
		}
	}
	tx := &graphTx{
		vt:          vt,
		hash:        hash,
		seq:         g.nextSeq,
		validatedAt: validatedAt,
		missing:     missing,
	}
	if missing.Cardinality() > 0 {
		if err := g.insertFuture(tx); err != nil {
			return false, err
		}
		g.nextSeq++
		return false, nil
	}
	if err := g.insertReady(tx); err != nil {
		return false, err
	}
	g.nextSeq++
	return true, nil
}

func (g *txGraph) insertFuture(tx *graphTx) error {
	if uint64(len(g.future))+1 > g.config.MaxFuture || g.futureBytes+tx.size() > g.config.MaxFutureBytes {
		if worst := g.worstFuture(); worst != nil && worst.priority() >= tx.priority() {
			return ErrImmediatelyDropped
		}
	}
	g.addFuture(tx)
	g.tracker.notify(tx.hash, StatusEvent{Status: TxStatusFuture})
	g.truncateFuture()
	return nil
}

func (g *txGraph) insertReady(tx *graphTx) error {
	// Every provided tag must either be free or held by a strictly lower
	// priority incumbent; a single losing tag rejects the whole insertion.
	usurped := make(map[common.Hash]*graphTx)
	var usurpedBytes uint64
	for _, tag := range tx.vt.Validity.Provides {
		cur, ok := g.ledger.resolves(tag)
		if !ok {
			continue
		}
		inc := g.ready[cur]
		if inc == nil {
			log.Error("Tag ledger references unknown provider, please report", "tag", tag, "provider", cur)
			return ErrTagConflict
		}
		if tx.priority() <= inc.priority() {
			return ErrTooLowPriority
		}
		if _, ok := usurped[cur]; !ok {
			usurped[cur] = inc
			usurpedBytes += inc.size()
		}
	}
	// Reject outright if the partition is full and the newcomer would be the
	// eviction candidate itself.
	count := uint64(len(g.ready)-len(usurped)) + 1
	bytes := g.readyBytes - usurpedBytes + tx.size()
	if count > g.config.MaxReady || bytes > g.config.MaxReadyBytes {
		if worst := g.worstReady(usurped); worst != nil && worst.priority() >= tx.priority() {
			return ErrImmediatelyDropped
		}
	}
	for _, inc := range usurped {
		usurpedCounter.Inc()
		g.removeReadyCascade(inc, StatusEvent{Status: TxStatusUsurped, Usurper: tx.hash})
	}
	g.addReady(tx)
	g.promoteFutures(tx.vt.Validity.Provides)
	g.truncateReady()
	g.truncateFuture()
	return nil
}

// addReady places tx in the ready partition, binding its provided tags.
func (g *txGraph) addReady(tx *graphTx) {
	tx.ready = true
	g.all[tx.hash] = tx
	g.ready[tx.hash] = tx
	g.readyEvict.Add(tx)
	g.readyBytes += tx.size()
	g.indexRequires(tx)
	for _, tag := range tx.vt.Validity.Provides {
		if err := g.ledger.bind(tag, tx.hash); err != nil {
			// Incumbents were evicted above, a conflict here is a bug.
			log.Error("Tag conflict after incumbent eviction, please report", "tag", tag, "tx", tx.hash, "err", err)
		}
	}
	g.tracker.notify(tx.hash, StatusEvent{Status: TxStatusReady})
	g.importFeed.Send(tx.hash)
}

func (g *txGraph) addFuture(tx *graphTx) {
	tx.ready = false
	g.all[tx.hash] = tx
	g.future[tx.hash] = tx
	g.futureEvict.Add(tx)
	g.futureBytes += tx.size()
	g.indexRequires(tx)
}

func (g *txGraph) indexRequires(tx *graphTx) {
	for _, tag := range tx.vt.Validity.Requires {
		key := tag.Key()
		if g.requirers[key] == nil {
			g.requirers[key] = make(map[common.Hash]struct{})
		}
		g.requirers[key][tx.hash] = struct{}{}
	}
}

func (g *txGraph) unindexRequires(tx *graphTx) {
	for _, tag := range tx.vt.Validity.Requires {
		key := tag.Key()
		if set := g.requirers[key]; set != nil {
			delete(set, tx.hash)
			if len(set) == 0 {
				delete(g.requirers, key)
			}
		}
	}
}

// deleteReady removes tx from the ready partition and releases its tags,
// without touching dependents. Callers decide whether released tags demote
// dependents (removal) or stay satisfied (block inclusion).
func (g *txGraph) deleteReady(tx *graphTx) {
	delete(g.all, tx.hash)
	delete(g.ready, tx.hash)
	g.readyEvict.Remove(tx)
	g.readyBytes -= tx.size()
	g.unindexRequires(tx)
	for _, tag := range tx.vt.Validity.Provides {
		g.ledger.unbind(tag, tx.hash)
	}
}

func (g *txGraph) deleteFuture(tx *graphTx) {
	delete(g.all, tx.hash)
	delete(g.future, tx.hash)
	g.futureEvict.Remove(tx)
	g.futureBytes -= tx.size()
	g.unindexRequires(tx)
}

// removeReadyCascade removes a ready transaction with the given terminal
// event and demotes every transaction that depended on its provided tags
// back into the future partition, transitively.
func (g *txGraph) removeReadyCascade(tx *graphTx, ev StatusEvent) {
	g.deleteReady(tx)
	g.tracker.notify(tx.hash, ev)
	for _, tag := range tx.vt.Validity.Provides {
		g.invalidateTag(tag)
	}
}

// invalidateTag marks tag unresolved for every transaction requiring it.
// Ready dependents are demoted, future dependents grow their missing set.
func (g *txGraph) invalidateTag(tag types.Tag) {
	if _, ok := g.ledger.resolves(tag); ok {
		// A replacement provider already holds the tag (usurpation path).
		return
	}
	key := tag.Key()
	for hash := range g.requirers[key] {
		t := g.all[hash]
		if t == nil {
			continue
		}
		t.missing.Add(key)
		if t.ready {
			g.demote(t)
		}
	}
}

// demote moves a ready transaction to the future partition, releasing its
// provided tags and cascading into its own dependents.
func (g *txGraph) demote(tx *graphTx) {
	delete(g.ready, tx.hash)
	g.readyEvict.Remove(tx)
	g.readyBytes -= tx.size()
	tx.ready = false
	g.future[tx.hash] = tx
	g.futureEvict.Add(tx)
	g.futureBytes += tx.size()
	g.tracker.notify(tx.hash, StatusEvent{Status: TxStatusFuture})
	for _, tag := range tx.vt.Validity.Provides {
		g.ledger.unbind(tag, tx.hash)
		g.invalidateTag(tag)
	}
}

// satisfyTag marks tag resolved for every future transaction missing it and
// promotes those with no unresolved tags left. Newly bound provides of
// promoted transactions are queued for further promotion by the caller.
func (g *txGraph) satisfyTag(tag types.Tag, promoted *[]types.Tags) {
	key := tag.Key()
	// Copy the bucket, promotion mutates the index.
	waiting := maps.Keys(g.requirers[key])
	for _, hash := range waiting {
		t := g.future[hash]
		if t == nil {
			continue
		}
		t.missing.Remove(key)
		if t.missing.Cardinality() == 0 {
			if g.promote(t) {
				*promoted = append(*promoted, t.vt.Validity.Provides)
			}
		}
	}
}

// promoteFutures walks the transitive closure of future transactions
// unlocked by the given tags, breadth-first.
func (g *txGraph) promoteFutures(tags types.Tags) {
	queue := make([]types.Tags, 0, 1)
	queue = append(queue, tags)
	for len(queue) > 0 {
		batch := queue[0]
		queue = queue[1:]
		for _, tag := range batch {
			g.satisfyTag(tag, &queue)
		}
	}
}

// promote attempts to move a fully resolved future transaction into the
// ready partition. If one of its provided tags is held by a higher or equal
// priority ready transaction the promotion loses and the transaction is
// dropped; a strictly lower priority incumbent is usurped.
func (g *txGraph) promote(tx *graphTx) bool {
	usurped := make(map[common.Hash]*graphTx)
	for _, tag := range tx.vt.Validity.Provides {
		cur, ok := g.ledger.resolves(tag)
		if !ok {
			continue
		}
		inc := g.ready[cur]
		if inc == nil {
			log.Error("Tag ledger references unknown provider, please report", "tag", tag, "provider", cur)
			return false
		}
		if tx.priority() <= inc.priority() {
			g.deleteFuture(tx)
			g.tracker.notify(tx.hash, StatusEvent{Status: TxStatusDropped})
			droppedCounter.Inc()
			return false
		}
		usurped[cur] = inc
	}
	for _, inc := range usurped {
		usurpedCounter.Inc()
		g.removeReadyCascade(inc, StatusEvent{Status: TxStatusUsurped, Usurper: tx.hash})
	}
	delete(g.future, tx.hash)
	g.futureEvict.Remove(tx)
	g.futureBytes -= tx.size()
	tx.ready = true
	g.ready[tx.hash] = tx
	g.readyEvict.Add(tx)
	g.readyBytes += tx.size()
	for _, tag := range tx.vt.Validity.Provides {
		if err := g.ledger.bind(tag, tx.hash); err != nil {
			log.Error("Tag conflict after incumbent eviction, please report", "tag", tag, "tx", tx.hash, "err", err)
		}
	}
	g.tracker.notify(tx.hash, StatusEvent{Status: TxStatusReady})
	g.importFeed.Send(tx.hash)
	return true
}

// remove drops a transaction from whichever partition holds it. A non-nil
// event is delivered to its watchers; removing a ready transaction demotes
// its dependents. Returns the removed record, if any.
func (g *txGraph) remove(hash common.Hash, ev *StatusEvent) *types.ValidTransaction {
	tx := g.all[hash]
	if tx == nil {
		return nil
	}
	if tx.ready {
		if ev != nil {
			g.removeReadyCascade(tx, *ev)
		} else {
			g.deleteReady(tx)
			for _, tag := range tx.vt.Validity.Provides {
				g.invalidateTag(tag)
			}
		}
		g.truncateFuture()
	} else {
		g.deleteFuture(tx)
		if ev != nil {
			g.tracker.notify(tx.hash, *ev)
		}
	}
	return tx.vt
}

// pruneByHash removes a transaction known to be included in a block. Tags it
// provided count as satisfied by chain state, so dependents stay ready and
// waiting futures promote.
func (g *txGraph) pruneByHash(hash common.Hash, block core.BlockID, txIndex int) *types.ValidTransaction {
	tx := g.all[hash]
	if tx == nil {
		return nil
	}
	ev := StatusEvent{Status: TxStatusInBlock, Block: block, TxIndex: txIndex}
	if tx.ready {
		g.deleteReady(tx)
	} else {
		g.deleteFuture(tx)
	}
	g.tracker.notify(tx.hash, ev)
	g.promoteFutures(tx.vt.Validity.Provides)
	return tx.vt
}

// pruneTags removes the ready providers of tags satisfied by a new block's
// state transition and promotes futures waiting on them. Returns the pruned
// records so the caller can track their inclusion.
func (g *txGraph) pruneTags(tags types.Tags, block core.BlockID) []*types.ValidTransaction {
	var pruned []*types.ValidTransaction
	for _, tag := range tags {
		if provider, ok := g.ledger.resolves(tag); ok {
			if vt := g.pruneByHash(provider, block, -1); vt != nil {
				pruned = append(pruned, vt)
			}
		} else {
			// No pool provider, but futures may wait on the tag.
			g.promoteFutures(types.Tags{tag})
		}
	}
	return pruned
}

// expired returns the transactions whose longevity ran out at the given
// block height.
func (g *txGraph) expired(head uint64) []common.Hash {
	var stale []common.Hash
	for hash, tx := range g.all {
		if tx.vt.Validity.Longevity == 0 {
			continue
		}
		// Compare via the elapsed block count to avoid overflowing on huge
		// longevity values.
		if head > tx.validatedAt && head-tx.validatedAt > tx.vt.Validity.Longevity {
			stale = append(stale, hash)
		}
	}
	return stale
}

func (g *txGraph) worstReady(exclude map[common.Hash]*graphTx) *graphTx {
	it := g.readyEvict.Iterator()
	for it.Next() {
		tx := it.Value().(*graphTx)
		if _, ok := exclude[tx.hash]; !ok {
			return tx
		}
	}
	return nil
}

func (g *txGraph) worstFuture() *graphTx {
	it := g.futureEvict.Iterator()
	if it.Next() {
		return it.Value().(*graphTx)
	}
	return nil
}

// truncateReady evicts worst-first until the ready partition fits its
// limits. Evicted dependents cascade into the future partition.
func (g *txGraph) truncateReady() {
	for uint64(len(g.ready)) > g.config.MaxReady || g.readyBytes > g.config.MaxReadyBytes {
		worst := g.worstReady(nil)
		if worst == nil {
			return
		}
		log.Trace("Evicting overflowing ready transaction", "hash", worst.hash, "priority", worst.priority())
		droppedCounter.Inc()
		g.removeReadyCascade(worst, StatusEvent{Status: TxStatusDropped})
	}
}

func (g *txGraph) truncateFuture() {
	for uint64(len(g.future)) > g.config.MaxFuture || g.futureBytes > g.config.MaxFutureBytes {
		worst := g.worstFuture()
		if worst == nil {
			return
		}
		log.Trace("Evicting overflowing future transaction", "hash", worst.hash, "priority", worst.priority())
		droppedCounter.Inc()
		g.deleteFuture(worst)
		g.tracker.notify(worst.hash, StatusEvent{Status: TxStatusDropped})
	}
}

// clear drops every tracked transaction, notifying their watchers.
func (g *txGraph) clear() {
	for hash := range g.all {
		g.tracker.notify(hash, StatusEvent{Status: TxStatusDropped})
	}
	g.ledger = newTagLedger()
	g.all = make(map[common.Hash]*graphTx)
	g.ready = make(map[common.Hash]*graphTx)
	g.future = make(map[common.Hash]*graphTx)
	g.requirers = make(map[string]map[common.Hash]struct{})
	g.readyEvict.Clear()
	g.futureEvict.Clear()
	g.readyBytes, g.futureBytes = 0, 0
}

func (g *txGraph) status() PoolStatus {
	return PoolStatus{
		Ready:       uint64(len(g.ready)),
		ReadyBytes:  g.readyBytes,
		Future:      uint64(len(g.future)),
		FutureBytes: g.futureBytes,
	}
}

func (g *txGraph) get(hash common.Hash) *graphTx {
	return g.all[hash]
}
