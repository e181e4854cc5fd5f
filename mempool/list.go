package mempool

import (
	"github.com/holiman/uint256"
	"github.com/huandu/skiplist"
)

// entry is the pool's internal wrapper around a caller-supplied Tx,
// carrying the fields derived at admission time so they never need to be
// recomputed on the hot path.
type entry struct {
	tx          Tx
	sender      Address
	nonce       uint64
	feePriority *uint256.Int
	bytesLength uint64
	receivedAt  int64 // unix nanos
}

// TransactionList holds one sender's pending transactions, keyed by nonce,
// partitioned into a processable prefix and an unprocessable tail.
//
// byNonce is backed by a skip list rather than a plain map so that
// ascending iteration (needed by GetProcessable/GetUnprocessable/
// GetPromotable) never requires a full re-sort.
//
// The processable/unprocessable partition is tracked as a single boundary
// nonce (hasProcessable + processableMax): every nonce <= processableMax
// present in the list is processable, every nonce above it is not.
// Promotion and demotion only ever move that one boundary, so this cache
// stays cheap to maintain without materializing the processable set as
// its own explicit sequence.
type TransactionList struct {
	byNonce        *skiplist.SkipList
	maxPerAccount  int
	minReplaceFee  *uint256.Int

	hasProcessable bool
	processableMax uint64
}

func newTransactionList(maxPerAccount int, minReplaceFee *uint256.Int) *TransactionList {
	return &TransactionList{
		byNonce:       skiplist.New(skiplist.Uint64),
		maxPerAccount: maxPerAccount,
		minReplaceFee: minReplaceFee,
	}
}

// Len returns the number of transactions held for this sender.
func (l *TransactionList) Len() int {
	return l.byNonce.Len()
}

// IsEmpty reports whether the list holds no transactions. Callers must
// delete such lists from the pool's sender map rather than keep them
// around empty.
func (l *TransactionList) IsEmpty() bool {
	return l.byNonce.Len() == 0
}

// Get returns the entry at nonce, if any.
func (l *TransactionList) Get(nonce uint64) (*entry, bool) {
	elem := l.byNonce.Get(nonce)
	if elem == nil {
		return nil, false
	}
	return elem.Value.(*entry), true
}

// IsProcessable reports whether nonce currently sits in the processable
// prefix. It returns false for absent nonces.
func (l *TransactionList) IsProcessable(nonce uint64) bool {
	if _, ok := l.Get(nonce); !ok {
		return false
	}
	return l.hasProcessable && nonce <= l.processableMax
}

// maxNonce returns the highest nonce present, if any.
func (l *TransactionList) maxNonce() (uint64, bool) {
	back := l.byNonce.Back()
	if back == nil {
		return 0, false
	}
	return back.Key().(uint64), true
}

// listAddResult reports the outcome of TransactionList.Add.
type listAddResult struct {
	Added         bool
	RemovedID     ID
	HasRemoved    bool
	IsReplacement bool // true if RemovedID was displaced by a same-nonce fee replacement
	Reason        listRejectReason
}

// Add inserts e, handling same-nonce replacement and per-account overflow
// eviction. processable marks the placement of e itself, except on a
// same-nonce replacement, where e takes the incumbent's slot and stays
// unprocessable whatever processable says. The displaced victim of a
// replacement or an overflow eviction is always an unprocessable entry.
func (l *TransactionList) Add(e *entry, processable bool) listAddResult {
	if existing, ok := l.Get(e.nonce); ok {
		// Same-nonce collision: replacement.
		if l.IsProcessable(e.nonce) {
			return listAddResult{Reason: listRejectProcessableNonceLocked}
		}
		var delta uint256.Int
		delta.Sub(e.tx.Fee(), existing.tx.Fee())
		if e.tx.Fee().Cmp(existing.tx.Fee()) <= 0 || delta.Cmp(l.minReplaceFee) < 0 {
			return listAddResult{Reason: listRejectInsufficientReplacementFee}
		}
		l.byNonce.Set(e.nonce, e)
		return listAddResult{Added: true, RemovedID: existing.tx.ID(), HasRemoved: true, IsReplacement: true}
	}

	if l.byNonce.Len() >= l.maxPerAccount {
		max, ok := l.maxNonce()
		if ok && e.nonce > max {
			return listAddResult{Reason: listRejectPoolFullForAccount}
		}
		// Evict the highest unprocessable nonce to make room (rule 4).
		victimNonce, ok := l.highestUnprocessableNonce()
		if !ok {
			return listAddResult{Reason: listRejectPoolFullForAccount}
		}
		victim, _ := l.Get(victimNonce)
		l.byNonce.Remove(victimNonce)
		l.byNonce.Set(e.nonce, e)
		if processable {
			l.promoteBoundaryTo(e.nonce)
		}
		return listAddResult{Added: true, RemovedID: victim.tx.ID(), HasRemoved: true}
	}

	l.byNonce.Set(e.nonce, e)
	if processable {
		l.promoteBoundaryTo(e.nonce)
	}
	return listAddResult{Added: true}
}

// highestUnprocessableNonce returns the largest nonce not currently
// processable, if any.
func (l *TransactionList) highestUnprocessableNonce() (uint64, bool) {
	for elem := l.byNonce.Back(); elem != nil; elem = elem.Prev() {
		nonce := elem.Key().(uint64)
		if !l.IsProcessable(nonce) {
			return nonce, true
		}
	}
	return 0, false
}

// promoteBoundaryTo extends the processable boundary to nonce, only valid
// when nonce is the immediate successor of the current boundary (or the
// smallest nonce in the list when nothing is processable yet). Callers
// (Add, Promote) only ever call this for nonces that satisfy that
// contract; it is a package-internal helper, not part of the public
// promotion protocol.
func (l *TransactionList) promoteBoundaryTo(nonce uint64) {
	if !l.hasProcessable || nonce > l.processableMax {
		l.hasProcessable = true
		l.processableMax = nonce
	}
}

// Remove deletes the entry at nonce, returning it if present.
func (l *TransactionList) Remove(nonce uint64) (*entry, bool) {
	elem := l.byNonce.Remove(nonce)
	if elem == nil {
		return nil, false
	}
	if l.hasProcessable && nonce == l.processableMax {
		if prev, ok := l.maxNonce(); ok && prev < nonce {
			l.processableMax = prev
		} else if !ok {
			l.hasProcessable = false
			l.processableMax = 0
		} else {
			// There's a remaining nonce above the removed boundary; it was
			// never processable (boundary invariant), so processable
			// shrinks to whatever remains at/under the old boundary.
			l.shrinkBoundaryDownward(nonce)
		}
	}
	return elem.Value.(*entry), true
}

// shrinkBoundaryDownward recomputes processableMax after the boundary
// nonce itself was removed, walking down to the next present nonce below
// it. If no nonce below it remains (the removed boundary was the smallest
// nonce), nothing is left processable.
func (l *TransactionList) shrinkBoundaryDownward(removed uint64) {
	for elem := l.byNonce.Front(); elem != nil; elem = elem.Next() {
		nonce := elem.Key().(uint64)
		if nonce >= removed {
			break
		}
		l.processableMax = nonce
	}
	if _, ok := l.Get(l.processableMax); !ok || l.processableMax >= removed {
		l.hasProcessable = false
		l.processableMax = 0
	}
}

// GetProcessable returns processable transactions in ascending nonce order.
func (l *TransactionList) GetProcessable() []*entry {
	if !l.hasProcessable {
		return nil
	}
	var out []*entry
	for elem := l.byNonce.Front(); elem != nil; elem = elem.Next() {
		nonce := elem.Key().(uint64)
		if nonce > l.processableMax {
			break
		}
		out = append(out, elem.Value.(*entry))
	}
	return out
}

// GetUnprocessable returns unprocessable transactions in ascending nonce order.
func (l *TransactionList) GetUnprocessable() []*entry {
	var out []*entry
	for elem := l.byNonce.Front(); elem != nil; elem = elem.Next() {
		nonce := elem.Key().(uint64)
		if l.hasProcessable && nonce <= l.processableMax {
			continue
		}
		out = append(out, elem.Value.(*entry))
	}
	return out
}

// FrontierProcessable returns the highest-nonce processable entry, used by
// the pool's cross-sender eviction policy.
func (l *TransactionList) FrontierProcessable() (*entry, bool) {
	if !l.hasProcessable {
		return nil, false
	}
	e, ok := l.Get(l.processableMax)
	return e, ok
}

// GetPromotable returns the contiguous unprocessable prefix immediately
// following the current processable boundary (or starting at the smallest
// nonce, if nothing is processable yet).
func (l *TransactionList) GetPromotable() []*entry {
	var (
		out  []*entry
		next uint64
		have bool
	)
	if l.hasProcessable {
		next = l.processableMax + 1
		have = true
	}
	for elem := l.byNonce.Front(); elem != nil; elem = elem.Next() {
		nonce := elem.Key().(uint64)
		if l.hasProcessable && nonce <= l.processableMax {
			continue
		}
		if have && nonce != next {
			break
		}
		out = append(out, elem.Value.(*entry))
		next = nonce + 1
		have = true
	}
	return out
}

// Promote marks the given (contiguous, already-unprocessable) entries as
// processable, extending the boundary past their highest nonce.
func (l *TransactionList) Promote(entries []*entry) {
	for _, e := range entries {
		l.promoteBoundaryTo(e.nonce)
	}
}

// DemoteAfter moves every processable entry with nonce > bound back to
// unprocessable.
func (l *TransactionList) DemoteAfter(bound uint64) {
	if !l.hasProcessable {
		return
	}
	if l.processableMax <= bound {
		return
	}
	if _, ok := l.Get(bound); !ok {
		// bound itself isn't in the list (e.g. everything demoted); find
		// the highest present nonce <= bound.
		l.hasProcessable = false
		l.processableMax = 0
		for elem := l.byNonce.Front(); elem != nil; elem = elem.Next() {
			nonce := elem.Key().(uint64)
			if nonce > bound {
				break
			}
			l.hasProcessable = true
			l.processableMax = nonce
		}
		return
	}
	l.processableMax = bound
}

// DemoteAll moves every processable entry back to unprocessable. Used by
// reorganize when even the first candidate in the batch fails apply, so
// there is no OK prefix at all.
func (l *TransactionList) DemoteAll() {
	l.hasProcessable = false
	l.processableMax = 0
}

// minNonce returns the smallest nonce present, if any.
func (l *TransactionList) minNonce() (uint64, bool) {
	front := l.byNonce.Front()
	if front == nil {
		return 0, false
	}
	return front.Key().(uint64), true
}
