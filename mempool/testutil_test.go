package mempool

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// testTx is a minimal Tx implementation used across the test suite. It
// carries an explicit byte length rather than deriving one from real wire
// encoding, which this package never performs itself.
type testTx struct {
	id        ID
	sender    []byte
	nonce     uint64
	fee       uint64
	minFee    uint64
	bytesLen  int
}

func newTestTx(sender string, nonce, fee, minFee uint64, bytesLen int) *testTx {
	return &testTx{
		id:       ID(uuid.NewString()),
		sender:   []byte(sender),
		nonce:    nonce,
		fee:      fee,
		minFee:   minFee,
		bytesLen: bytesLen,
	}
}

func (t *testTx) ID() ID                        { return t.id }
func (t *testTx) SenderPublicKey() []byte       { return t.sender }
func (t *testTx) Nonce() *uint256.Int           { return uint256.NewInt(t.nonce) }
func (t *testTx) Fee() *uint256.Int             { return uint256.NewInt(t.fee) }
func (t *testTx) MinFee() *uint256.Int          { return uint256.NewInt(t.minFee) }

func testAddressOf(pubKey []byte) Address { return Address(pubKey) }

func testBytesOf(tx Tx) []byte {
	tt := tx.(*testTx)
	return make([]byte, tt.bytesLen)
}

// verdictSet lets tests script apply's response per transaction id.
type verdictSet struct {
	byID    map[ID]Verdict
	fallback VerdictStatus
}

func newVerdictSet() *verdictSet {
	return &verdictSet{byID: make(map[ID]Verdict), fallback: VerdictOK}
}

func (v *verdictSet) ok(id ID) *verdictSet {
	v.byID[id] = Verdict{ID: id, Status: VerdictOK}
	return v
}

func (v *verdictSet) nonceGap(id ID) *verdictSet {
	v.byID[id] = Verdict{ID: id, Status: VerdictFail, Errors: []VerdictError{{DataPath: ".nonce", Actual: "gap", Expected: "contiguous"}}}
	return v
}

func (v *verdictSet) fail(id ID) *verdictSet {
	v.byID[id] = Verdict{ID: id, Status: VerdictFail, Errors: []VerdictError{{DataPath: ".fee", Actual: "low", Expected: "high"}}}
	return v
}

// apply returns an ApplyFunc that looks verdicts up by id, defaulting to
// OK for any transaction not explicitly scripted.
func (v *verdictSet) apply() ApplyFunc {
	return func(_ context.Context, txs []Tx) ([]Verdict, error) {
		out := make([]Verdict, len(txs))
		for i, tx := range txs {
			if verdict, ok := v.byID[tx.ID()]; ok {
				out[i] = verdict
				continue
			}
			out[i] = Verdict{ID: tx.ID(), Status: v.fallback}
		}
		return out, nil
	}
}

// alwaysOK is the common case: every candidate validates successfully.
func alwaysOK(_ context.Context, txs []Tx) ([]Verdict, error) {
	out := make([]Verdict, len(txs))
	for i, tx := range txs {
		out[i] = Verdict{ID: tx.ID(), Status: VerdictOK}
	}
	return out, nil
}

// testConfig returns a Config wired with test collaborators and a mock
// clock, overridable via opts.
func testConfig(apply ApplyFunc, opts ...func(*Config)) (Config, *clock.Mock) {
	mc := clock.NewMock()
	cfg := DefaultConfig()
	cfg.ApplyTransactions = apply
	cfg.AddressOf = testAddressOf
	cfg.BytesOf = testBytesOf
	cfg.Clock = mc
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, mc
}
