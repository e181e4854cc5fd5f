package mempool

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
)

// ID is a stable, unique transaction identifier.
type ID string

// Address is a sender address as derived by the injected AddressOf
// collaborator. It is deliberately just a byte string: this package never
// derives, validates or compares addresses cryptographically.
type Address string

// Tx is the subset of a transaction the pool needs. Signature verification,
// address derivation and wire encoding all happen outside this package;
// the pool consumes their results through Tx and the Config collaborators
// AddressOf/BytesOf.
type Tx interface {
	ID() ID
	SenderPublicKey() []byte
	Nonce() *uint256.Int
	Fee() *uint256.Int
	MinFee() *uint256.Int
}

// FeePriority computes (fee-min_fee)/bytesLength using unsigned integer
// division, truncating toward zero. bytesLength must be > 0.
func FeePriority(tx Tx, bytesLength uint64) *uint256.Int {
	fee, minFee := tx.Fee(), tx.MinFee()
	var diff uint256.Int
	if fee.Cmp(minFee) <= 0 {
		return uint256.NewInt(0)
	}
	diff.Sub(fee, minFee)
	var length uint256.Int
	length.SetUint64(bytesLength)
	var priority uint256.Int
	priority.Div(&diff, &length)
	return &priority
}

// VerdictStatus is the outcome of validating a transaction against
// on-chain state through the injected apply callback.
type VerdictStatus int

const (
	// VerdictOK means the transaction would succeed against current state.
	VerdictOK VerdictStatus = iota
	// VerdictFail means the transaction would not succeed; Errors explains why.
	VerdictFail
)

func (s VerdictStatus) String() string {
	if s == VerdictOK {
		return "OK"
	}
	return "FAIL"
}

// VerdictError is one reason a transaction failed validation, modelled
// after the heterogeneous error shapes the external validator may report.
type VerdictError struct {
	DataPath string
	Actual   string
	Expected string
}

// nonceGapDataPath is the sentinel DataPath the external validator uses to
// signal "this transaction's nonce is not the next expected nonce for its
// sender", as opposed to any other, non-recoverable rejection reason.
const nonceGapDataPath = ".nonce"

// Verdict is the sum type returned by ApplyFunc for a single transaction.
type Verdict struct {
	ID     ID
	Status VerdictStatus
	Errors []VerdictError
}

// IsNonceGap reports whether a FAIL verdict is solely a nonce-gap signal,
// i.e. recoverable by holding the transaction as unprocessable rather than
// rejecting it outright.
func (v Verdict) IsNonceGap() bool {
	if v.Status == VerdictOK || len(v.Errors) == 0 {
		return false
	}
	for _, e := range v.Errors {
		if e.DataPath != nonceGapDataPath {
			return false
		}
	}
	return true
}

func (v Verdict) String() string {
	return fmt.Sprintf("Verdict{id=%s status=%s errors=%d}", v.ID, v.Status, len(v.Errors))
}

// ApplyFunc validates a batch of candidate transactions against current
// chain state. It is the pool's sole window into block-execution state,
// and must not itself mutate pool state. Suspension points in the pool
// occur exactly at calls to ApplyFunc.
type ApplyFunc func(ctx context.Context, txs []Tx) ([]Verdict, error)

// verdictByID indexes verdicts for quick lookup by id.
func verdictByID(verdicts []Verdict) map[ID]Verdict {
	m := make(map[ID]Verdict, len(verdicts))
	for _, v := range verdicts {
		m[v.ID] = v
	}
	return m
}
