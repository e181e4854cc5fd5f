package mempool

import "fmt"

// AdmissionErrorKind enumerates the reasons Add can reject a transaction.
type AdmissionErrorKind string

const (
	// ErrInsufficientEntranceFee: fee_priority below min_entrance_fee_priority.
	ErrInsufficientEntranceFee AdmissionErrorKind = "insufficient_entrance_fee"
	// ErrPoolFull: global cap reached and no candidate could be evicted.
	ErrPoolFull AdmissionErrorKind = "pool_full"
	// ErrPoolFullForAccount: per-sender cap reached and the new nonce is the new maximum.
	ErrPoolFullForAccount AdmissionErrorKind = "pool_full_for_account"
	// ErrInsufficientReplacementFee: same-nonce conflict, fee delta below threshold.
	ErrInsufficientReplacementFee AdmissionErrorKind = "insufficient_replacement_fee"
	// ErrProcessableNonceLocked: same-nonce conflict against a processable incumbent.
	ErrProcessableNonceLocked AdmissionErrorKind = "processable_nonce_locked"
	// ErrInvalidTransaction: apply returned FAIL with a non-recoverable reason.
	ErrInvalidTransaction AdmissionErrorKind = "invalid_transaction"
)

// AdmissionError is returned by Add for any rejected transaction. It is
// never used for programmer-error invariant violations, which panic
// instead.
type AdmissionError struct {
	Kind    AdmissionErrorKind
	Message string
}

func (e *AdmissionError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func admissionErr(kind AdmissionErrorKind, format string, args ...any) *AdmissionError {
	return &AdmissionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// listRejectReason enumerates the internal reasons TransactionList.Add can
// fail with, which the pool translates into an AdmissionError.
type listRejectReason int

const (
	listRejectNone listRejectReason = iota
	listRejectPoolFullForAccount
	listRejectProcessableNonceLocked
	listRejectInsufficientReplacementFee
)
