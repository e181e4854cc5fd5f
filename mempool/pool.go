package mempool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// TransactionPool is a bounded, fee-priority-ordered pool of pending
// transactions. It owns the global id map, the per-sender
// TransactionLists, the global FeePriorityQueue, and the two periodic
// background tasks (reorganize, expire).
type TransactionPool struct {
	mu sync.RWMutex

	all   map[ID]*entry
	lists map[Address]*TransactionList
	fees  *FeePriorityQueue

	cfg Config
	log *zap.Logger

	reorganizing atomic.Bool

	bus *eventBus

	reorgSched  *scheduler
	expireSched *scheduler
}

// NewTransactionPool validates cfg (filling in defaults) and returns an
// empty pool. Callers must call Start to begin the reorganize/expire
// tickers.
func NewTransactionPool(cfg Config) (*TransactionPool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &TransactionPool{
		all:   make(map[ID]*entry),
		lists: make(map[Address]*TransactionList),
		fees:  NewFeePriorityQueue(),
		cfg:   cfg,
		log:   cfg.Logger,
		bus:   newEventBus(cfg.EnableSubscriptions),
	}, nil
}

// Start begins the reorganize and expire tickers.
func (p *TransactionPool) Start() {
	p.bus.run()
	p.reorgSched = startScheduler(p.cfg.Clock, p.cfg.TransactionReorganizationInterval, func() {
		p.reorganizeOnce(context.Background())
	})
	p.expireSched = startScheduler(p.cfg.Clock, p.cfg.TransactionReorganizationInterval, p.expireOnce)
}

// Stop cancels both tickers and lets an in-flight reorganize finish
// without starting another. Pending apply calls are not force-cancelled.
func (p *TransactionPool) Stop() {
	if p.reorgSched != nil {
		p.reorgSched.stop()
	}
	if p.expireSched != nil {
		p.expireSched.stop()
	}
	p.bus.close()
}

// Subscribe registers ch to receive future added/removed events.
func (p *TransactionPool) Subscribe(ch chan<- Event) { p.bus.Subscribe(ch) }

// Unsubscribe removes ch from the subscriber set.
func (p *TransactionPool) Unsubscribe(ch chan<- Event) { p.bus.Unsubscribe(ch) }

// Add attempts to admit tx. A nil error means the transaction was
// admitted (or was already present: Add is idempotent). A non-nil error
// is always an *AdmissionError naming why tx was rejected.
func (p *TransactionPool) Add(ctx context.Context, tx Tx) error {
	p.mu.Lock()
	if _, ok := p.all[tx.ID()]; ok {
		p.mu.Unlock()
		return nil // duplicate admission is idempotent OK
	}

	sender := p.cfg.AddressOf(tx.SenderPublicKey())
	bytesLength := uint64(len(p.cfg.BytesOf(tx)))
	if bytesLength == 0 {
		bytesLength = 1
	}
	priority := FeePriority(tx, bytesLength)

	if priority.Cmp(p.cfg.minEntranceFeePriority()) < 0 {
		p.mu.Unlock()
		return admissionErr(ErrInsufficientEntranceFee,
			"fee_priority %s below floor %s", priority, p.cfg.minEntranceFeePriority())
	}

	preEvictedID, preEvicted, admitErr := p.evictForCapacityLocked(priority)
	if admitErr != nil {
		p.mu.Unlock()
		return admitErr
	}
	if preEvicted {
		p.notifySizeChanged()
	}

	p.mu.Unlock()

	if preEvicted {
		p.emitRemoved(preEvictedID, ReasonPoolFull)
	}

	verdicts, err := p.cfg.ApplyTransactions(ctx, []Tx{tx})
	if err != nil {
		p.log.Warn("apply failed during admission", zap.String("id", string(tx.ID())), zap.Error(err))
		return admissionErr(ErrInvalidTransaction, "apply callback error: %v", err)
	}
	vmap := verdictByID(verdicts)
	verdict, ok := vmap[tx.ID()]
	if !ok {
		return admissionErr(ErrInvalidTransaction, "apply returned no verdict for the submitted transaction")
	}

	if verdict.Status == VerdictFail && !verdict.IsNonceGap() {
		return admissionErr(ErrInvalidTransaction, "apply rejected the transaction")
	}

	p.mu.Lock()

	if _, ok := p.all[tx.ID()]; ok {
		// Concurrently admitted while apply was in flight (idempotent).
		p.mu.Unlock()
		return nil
	}

	// Concurrent Add calls may have filled the pool while apply was in
	// flight, so capacity must be re-checked against the current state,
	// not just the state observed before apply ran.
	postEvictedID, postEvicted, admitErr := p.evictForCapacityLocked(priority)
	if admitErr != nil {
		p.mu.Unlock()
		return admitErr
	}
	nonce := tx.Nonce().Uint64()
	now := p.cfg.Clock.Now()
	e := &entry{
		tx:          tx,
		sender:      sender,
		nonce:       nonce,
		feePriority: priority,
		bytesLength: bytesLength,
		receivedAt:  now.UnixNano(),
	}

	list, hasList := p.lists[sender]
	if !hasList {
		list = newTransactionList(p.cfg.MaxTransactionsPerAccount, p.cfg.minReplacementFeeDifference())
		p.lists[sender] = list
	}

	processable := verdict.Status == VerdictOK && isImmediateSuccessor(list, nonce)

	res := list.Add(e, processable)
	if !res.Added {
		if list.IsEmpty() {
			delete(p.lists, sender)
		}
		if postEvicted {
			p.notifySizeChanged()
		}
		p.mu.Unlock()

		// Emitted after releasing p.mu: subscribers may be slow to drain
		// their channel, and the bus forwards synchronously, so sending
		// while the lock is held would stall every other caller of
		// Add/Remove.
		if postEvicted {
			p.emitRemoved(postEvictedID, ReasonPoolFull)
		}
		switch res.Reason {
		case listRejectPoolFullForAccount:
			return admissionErr(ErrPoolFullForAccount, "sender %s already has %d pending transactions", sender, p.cfg.MaxTransactionsPerAccount)
		case listRejectProcessableNonceLocked:
			return admissionErr(ErrProcessableNonceLocked, "nonce %d is already processable for sender %s", nonce, sender)
		case listRejectInsufficientReplacementFee:
			return admissionErr(ErrInsufficientReplacementFee, "replacement fee for nonce %d must exceed incumbent by at least %d", nonce, p.cfg.MinReplacementFeeDifference)
		default:
			return admissionErr(ErrInvalidTransaction, "rejected by sender list")
		}
	}

	if res.HasRemoved {
		p.deregisterLocked(res.RemovedID)
	}

	p.all[tx.ID()] = e
	p.fees.Insert(priority, tx.ID(), e.receivedAt)
	p.notifySizeChanged()

	p.mu.Unlock()

	// Emitted after releasing p.mu: subscribers may be slow to drain their
	// channel, and the bus forwards synchronously, so sending while the
	// lock is held would stall every other caller of Add/Remove.
	if postEvicted {
		p.emitRemoved(postEvictedID, ReasonPoolFull)
	}
	if res.HasRemoved {
		reason := ReasonPoolFull
		if res.IsReplacement {
			reason = ReasonReplaced
		}
		p.emitRemoved(res.RemovedID, reason)
	}
	p.emitAdded(tx.ID())

	return nil
}

// isImmediateSuccessor reports whether nonce would extend list's
// processable frontier by exactly one, letting Add place a fresh OK
// verdict directly into the processable partition instead of waiting for
// the next reorganize cycle.
func isImmediateSuccessor(list *TransactionList, nonce uint64) bool {
	if frontier, ok := list.FrontierProcessable(); ok {
		return nonce == frontier.nonce+1
	}
	min, ok := list.minNonce()
	return !ok || nonce < min
}

// Remove deletes tx by id from every index. It returns false if id was
// absent.
func (p *TransactionPool) Remove(id ID) bool {
	p.mu.Lock()
	if _, ok := p.all[id]; !ok {
		p.mu.Unlock()
		return false
	}
	p.deregisterLocked(id)
	p.notifySizeChanged()
	p.mu.Unlock()

	p.emitRemoved(id, ReasonExplicit)
	return true
}

// Get returns the transaction stored under id, if any.
func (p *TransactionPool) Get(id ID) (Tx, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.all[id]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// Contains reports whether id is present in the pool.
func (p *TransactionPool) Contains(id ID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.all[id]
	return ok
}

// Len returns the total number of pooled transactions.
func (p *TransactionPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.all)
}

// GetAll returns a snapshot of every pooled transaction.
func (p *TransactionPool) GetAll() []Tx {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Tx, 0, len(p.all))
	for _, e := range p.all {
		out = append(out, e.tx)
	}
	return out
}

// GetProcessableTransactions returns a deep copy of every sender's
// processable transactions, keyed by sender address; senders with no
// processable transactions are omitted. Mutating the result never affects
// pool state.
func (p *TransactionPool) GetProcessableTransactions() map[Address][]Tx {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[Address][]Tx, len(p.lists))
	for sender, list := range p.lists {
		entries := list.GetProcessable()
		if len(entries) == 0 {
			continue
		}
		txs := make([]Tx, len(entries))
		for i, e := range entries {
			txs[i] = e.tx
		}
		out[sender] = txs
	}
	return out
}

// deregisterLocked removes id from all, its owning list (deleting the list
// if it becomes empty) and the fee queue. Callers must hold p.mu.
func (p *TransactionPool) deregisterLocked(id ID) {
	e, ok := p.all[id]
	if !ok {
		return
	}
	delete(p.all, id)
	p.fees.Remove(id)
	if list, ok := p.lists[e.sender]; ok {
		// After a same-nonce replacement or an overflow eviction the list
		// has already dropped id itself; its nonce slot may now hold the
		// newcomer, which must stay.
		if cur, ok := list.Get(e.nonce); ok && cur.tx.ID() == id {
			list.Remove(e.nonce)
		}
		if list.IsEmpty() {
			delete(p.lists, e.sender)
		}
	}
}

// evictUnprocessableLocked evicts the first unprocessable transaction
// found scanning the fee queue ascending, preferring unprocessable
// transactions over processable ones regardless of fee. It only
// deregisters the victim; callers are responsible for emitting the
// removal event once p.mu is released. Callers must hold p.mu.
func (p *TransactionPool) evictUnprocessableLocked() (ID, bool) {
	for _, id := range p.fees.IterAscending() {
		e, ok := p.all[id]
		if !ok {
			continue
		}
		list, ok := p.lists[e.sender]
		if !ok || list.IsProcessable(e.nonce) {
			continue
		}
		p.deregisterLocked(id)
		return id, true
	}
	return "", false
}

// evictProcessableLocked evicts, among every sender's processable
// frontier (the highest-nonce processable transaction), the one with the
// minimum fee_priority. Ties break by ascending lexicographic sender
// address, for a deterministic outcome. It only deregisters the victim;
// callers are responsible for emitting the removal event once p.mu is
// released. Callers must hold p.mu.
func (p *TransactionPool) evictProcessableLocked() (ID, bool) {
	type frontier struct {
		sender Address
		e      *entry
	}
	var frontiers []frontier
	for sender, list := range p.lists {
		if e, ok := list.FrontierProcessable(); ok {
			frontiers = append(frontiers, frontier{sender, e})
		}
	}
	if len(frontiers) == 0 {
		return "", false
	}
	sort.Slice(frontiers, func(i, j int) bool {
		if c := frontiers[i].e.feePriority.Cmp(frontiers[j].e.feePriority); c != 0 {
			return c < 0
		}
		return frontiers[i].sender < frontiers[j].sender
	})
	victim := frontiers[0].e
	p.deregisterLocked(victim.tx.ID())
	return victim.tx.ID(), true
}

// evictForCapacityLocked makes room for one more transaction if the pool
// is already at MaxTransactions, evicting at most one resident
// (unprocessable candidates preferred over processable ones). It evicts
// only when newPriority is strictly greater than the pool's minimum
// fee_priority; the chosen victim's own priority is not compared with
// newPriority, so it may be higher. If it returns hasEviction
// true, the caller must emit the removal event with ReasonPoolFull for
// the returned id once p.mu is released. If it returns a non-nil err,
// the caller must reject the admission with that error instead. Callers
// must hold p.mu.
func (p *TransactionPool) evictForCapacityLocked(newPriority *uint256.Int) (id ID, hasEviction bool, err *AdmissionError) {
	if len(p.all) < p.cfg.MaxTransactions {
		return "", false, nil
	}
	if minPriority, _, ok := p.fees.PeekMin(); ok && newPriority.Cmp(minPriority) <= 0 {
		return "", false, admissionErr(ErrPoolFull, "at capacity and not more valuable than the least-priced resident")
	}
	if id, evicted := p.evictUnprocessableLocked(); evicted {
		return id, true, nil
	}
	if id, evicted := p.evictProcessableLocked(); evicted {
		return id, true, nil
	}
	return "", false, admissionErr(ErrPoolFull, "at capacity and no candidate could be evicted")
}

// reorganizeOnce runs one reorganize pass over every sender list.
// Re-entrant calls while one is already in flight are dropped, not
// queued.
func (p *TransactionPool) reorganizeOnce(ctx context.Context) {
	if !p.reorganizing.CompareAndSwap(false, true) {
		return
	}
	defer p.reorganizing.Store(false)

	p.mu.RLock()
	senders := make([]Address, 0, len(p.lists))
	for sender := range p.lists {
		senders = append(senders, sender)
	}
	p.mu.RUnlock()

	for _, sender := range senders {
		p.reorganizeSender(ctx, sender)
	}
}

// reorganizeSender re-partitions one sender's processable/unprocessable
// split against a fresh apply verdict.
func (p *TransactionPool) reorganizeSender(ctx context.Context, sender Address) {
	p.mu.RLock()
	list, ok := p.lists[sender]
	if !ok {
		p.mu.RUnlock()
		return
	}
	candidates := append(list.GetProcessable(), list.GetPromotable()...)
	p.mu.RUnlock()

	if len(candidates) == 0 {
		return
	}
	txs := make([]Tx, len(candidates))
	for i, e := range candidates {
		txs[i] = e.tx
	}

	verdicts, err := p.cfg.ApplyTransactions(ctx, txs)
	if err != nil {
		p.log.Warn("apply failed during reorganize", zap.String("sender", string(sender)), zap.Error(err))
		verdicts = failAll(txs)
	}
	vmap := verdictByID(verdicts)

	p.mu.Lock()
	defer p.mu.Unlock()

	list, ok = p.lists[sender]
	if !ok {
		return
	}

	okPrefixLen := 0
	for i, e := range candidates {
		cur, present := list.Get(e.nonce)
		if !present || cur.tx.ID() != e.tx.ID() {
			// Either removed, or replaced by a different transaction at
			// the same nonce, while apply was in flight. The cached
			// verdict was computed for e, not whatever now occupies the
			// nonce, so it cannot be trusted; stop the prefix here.
			break
		}
		v, present := vmap[e.tx.ID()]
		if !present || v.Status != VerdictOK {
			break
		}
		okPrefixLen = i + 1
	}

	if okPrefixLen == 0 {
		list.DemoteAll()
		return
	}
	lastOK := candidates[okPrefixLen-1].nonce
	list.DemoteAfter(lastOK)
	list.Promote(candidates[:okPrefixLen])
}

// failAll synthesizes a FAIL verdict for every tx, used when the apply
// callback itself errors out: the whole batch is treated as rejected
// rather than left in whatever partition it was in before the call.
func failAll(txs []Tx) []Verdict {
	out := make([]Verdict, len(txs))
	for i, tx := range txs {
		out[i] = Verdict{ID: tx.ID(), Status: VerdictFail, Errors: []VerdictError{{DataPath: "", Actual: "apply_error", Expected: "OK"}}}
	}
	return out
}

// expireOnce removes every transaction older than TransactionExpiryTime.
func (p *TransactionPool) expireOnce() {
	p.mu.Lock()
	now := p.cfg.Clock.Now()
	var stale []ID
	for id, e := range p.all {
		if now.Sub(time.Unix(0, e.receivedAt)) > p.cfg.TransactionExpiryTime {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		p.deregisterLocked(id)
	}
	p.notifySizeChanged()
	p.mu.Unlock()

	for _, id := range stale {
		p.emitRemoved(id, ReasonExpired)
	}
}

func (p *TransactionPool) emitAdded(id ID) {
	p.bus.emit(Event{Type: EventAdded, ID: id})
}

func (p *TransactionPool) emitRemoved(id ID, reason RemovalReason) {
	p.bus.emit(Event{Type: EventRemoved, ID: id, Reason: reason})
}

func (p *TransactionPool) notifySizeChanged() {
	if p.cfg.OnSizeChanged != nil {
		p.cfg.OnSizeChanged(len(p.all))
	}
}
