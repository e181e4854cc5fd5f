package mempool

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, apply ApplyFunc, opts ...func(*Config)) (*TransactionPool, *clock.Mock) {
	t.Helper()
	cfg, mc := testConfig(apply, opts...)
	p, err := NewTransactionPool(cfg)
	require.NoError(t, err)
	return p, mc
}

func TestPoolAddRejectsBelowEntranceFloor(t *testing.T) {
	p, _ := newTestPool(t, alwaysOK, func(c *Config) {
		c.MinEntranceFeePriority = 5
	})
	tx := newTestTx("a", 0, 100, 0, 100) // priority = (100-0)/100 = 1
	err := p.Add(context.Background(), tx)
	require.Error(t, err)
	var admErr *AdmissionError
	require.ErrorAs(t, err, &admErr)
	assert.Equal(t, ErrInsufficientEntranceFee, admErr.Kind)
	assert.Equal(t, 0, p.Len())
}

func TestPoolAddIsIdempotentForDuplicateID(t *testing.T) {
	p, _ := newTestPool(t, alwaysOK)
	tx := newTestTx("a", 0, 100, 0, 10)
	require.NoError(t, p.Add(context.Background(), tx))
	require.NoError(t, p.Add(context.Background(), tx))
	assert.Equal(t, 1, p.Len())
}

func TestPoolAddRejectsWhenFullAndNotMoreValuable(t *testing.T) {
	p, _ := newTestPool(t, alwaysOK, func(c *Config) {
		c.MaxTransactions = 1
	})
	high := newTestTx("a", 0, 100, 0, 10) // priority 10
	require.NoError(t, p.Add(context.Background(), high))

	low := newTestTx("b", 0, 50, 0, 10) // priority 5
	err := p.Add(context.Background(), low)
	require.Error(t, err)
	var admErr *AdmissionError
	require.ErrorAs(t, err, &admErr)
	assert.Equal(t, ErrPoolFull, admErr.Kind)
	assert.Equal(t, 1, p.Len())
}

func TestPoolEvictionPrefersUnprocessableRegardlessOfFee(t *testing.T) {
	vs := newVerdictSet()
	txA := newTestTx("a", 0, 100, 0, 10)  // low fee, will be processable
	txB := newTestTx("b", 5, 1000, 0, 10) // huge fee, but nonce-gapped
	vs.ok(txA.ID())
	vs.nonceGap(txB.ID())

	p, _ := newTestPool(t, vs.apply(), func(c *Config) {
		c.MaxTransactions = 2
	})
	require.NoError(t, p.Add(context.Background(), txA))
	require.NoError(t, p.Add(context.Background(), txB))
	require.Equal(t, 2, p.Len())

	txC := newTestTx("c", 0, 200, 0, 10) // priority 20, exceeds the pool's current minimum (A's, 10)
	require.NoError(t, p.Add(context.Background(), txC))

	assert.False(t, p.Contains(txB.ID()), "the unprocessable, higher-fee transaction should be evicted first")
	assert.True(t, p.Contains(txA.ID()))
	assert.True(t, p.Contains(txC.ID()))
}

func TestPoolEvictionOfProcessableFrontiersTieBreaksByAddress(t *testing.T) {
	p, _ := newTestPool(t, alwaysOK, func(c *Config) {
		c.MaxTransactions = 2
	})
	txA := newTestTx("a", 0, 100, 0, 10) // priority 10, sender "a"
	txB := newTestTx("b", 0, 100, 0, 10) // priority 10, sender "b"
	require.NoError(t, p.Add(context.Background(), txA))
	require.NoError(t, p.Add(context.Background(), txB))

	txC := newTestTx("c", 0, 300, 0, 10) // priority 30
	require.NoError(t, p.Add(context.Background(), txC))

	assert.False(t, p.Contains(txA.ID()), "equal-priority tie should evict the lexicographically smaller sender")
	assert.True(t, p.Contains(txB.ID()))
	assert.True(t, p.Contains(txC.ID()))
}

func TestPoolReplacementAcceptedAboveThresholdEmitsReplacedEvent(t *testing.T) {
	vs := newVerdictSet()
	incumbent := newTestTx("a", 0, 100, 0, 10)
	vs.nonceGap(incumbent.ID()) // keep it unprocessable so replacement is legal

	p, _ := newTestPool(t, vs.apply(), func(c *Config) {
		c.MinReplacementFeeDifference = 10
		c.EnableSubscriptions = true
	})
	p.bus.run()
	defer p.bus.close()

	ch := make(chan Event, 8)
	p.Subscribe(ch)

	require.NoError(t, p.Add(context.Background(), incumbent))
	<-ch // drain the added event

	replacement := newTestTx("a", 0, 200, 0, 10) // delta 100 >= threshold 10
	require.NoError(t, p.Add(context.Background(), replacement))

	removed := <-ch
	assert.Equal(t, EventRemoved, removed.Type)
	assert.Equal(t, incumbent.ID(), removed.ID)
	assert.Equal(t, ReasonReplaced, removed.Reason)

	added := <-ch
	assert.Equal(t, EventAdded, added.Type)
	assert.Equal(t, replacement.ID(), added.ID)

	assert.False(t, p.Contains(incumbent.ID()))
	assert.True(t, p.Contains(replacement.ID()))
}

func TestPoolReplacementRejectedBelowThreshold(t *testing.T) {
	vs := newVerdictSet()
	incumbent := newTestTx("a", 0, 100, 0, 10)
	vs.nonceGap(incumbent.ID())

	p, _ := newTestPool(t, vs.apply(), func(c *Config) {
		c.MinReplacementFeeDifference = 50
	})
	require.NoError(t, p.Add(context.Background(), incumbent))

	replacement := newTestTx("a", 0, 120, 0, 10) // delta 20 < threshold 50
	err := p.Add(context.Background(), replacement)
	require.Error(t, err)
	var admErr *AdmissionError
	require.ErrorAs(t, err, &admErr)
	assert.Equal(t, ErrInsufficientReplacementFee, admErr.Kind)
	assert.True(t, p.Contains(incumbent.ID()))
}

func TestPoolReorganizePromotesContiguousPrefixAndLeavesGapUnprocessable(t *testing.T) {
	vs := newVerdictSet()
	tx0 := newTestTx("a", 0, 100, 0, 10)
	tx1 := newTestTx("a", 1, 100, 0, 10)
	tx2 := newTestTx("a", 2, 100, 0, 10)
	vs.ok(tx0.ID())
	vs.nonceGap(tx1.ID())
	vs.nonceGap(tx2.ID())

	p, _ := newTestPool(t, vs.apply())
	require.NoError(t, p.Add(context.Background(), tx0))
	require.NoError(t, p.Add(context.Background(), tx1))
	require.NoError(t, p.Add(context.Background(), tx2))

	list := p.lists["a"]
	require.True(t, list.IsProcessable(0))
	require.False(t, list.IsProcessable(1))
	require.False(t, list.IsProcessable(2))

	// tx1 now validates; tx2 remains gapped.
	vs.ok(tx1.ID())
	p.reorganizeOnce(context.Background())

	assert.True(t, list.IsProcessable(0))
	assert.True(t, list.IsProcessable(1))
	assert.False(t, list.IsProcessable(2))
}

func TestPoolExpireRemovesStaleTransactionsAndEmitsExpiredEvent(t *testing.T) {
	p, mc := newTestPool(t, alwaysOK, func(c *Config) {
		c.TransactionExpiryTime = time.Minute
		c.EnableSubscriptions = true
	})
	p.bus.run()
	defer p.bus.close()

	ch := make(chan Event, 8)
	p.Subscribe(ch)

	tx := newTestTx("a", 0, 100, 0, 10)
	require.NoError(t, p.Add(context.Background(), tx))
	<-ch // drain added event

	mc.Add(2 * time.Minute)
	p.expireOnce()

	removed := <-ch
	assert.Equal(t, EventRemoved, removed.Type)
	assert.Equal(t, ReasonExpired, removed.Reason)
	assert.False(t, p.Contains(tx.ID()))
	assert.Equal(t, 0, p.Len())
}

func TestPoolExpireLeavesFreshTransactionsAlone(t *testing.T) {
	p, mc := newTestPool(t, alwaysOK, func(c *Config) {
		c.TransactionExpiryTime = time.Hour
	})
	tx := newTestTx("a", 0, 100, 0, 10)
	require.NoError(t, p.Add(context.Background(), tx))

	mc.Add(time.Minute)
	p.expireOnce()

	assert.True(t, p.Contains(tx.ID()))
}

func TestPoolRemoveClearsAllThreeIndexes(t *testing.T) {
	p, _ := newTestPool(t, alwaysOK)
	tx := newTestTx("a", 0, 100, 0, 10)
	require.NoError(t, p.Add(context.Background(), tx))

	require.True(t, p.Remove(tx.ID()))
	assert.Equal(t, 0, p.Len())
	assert.False(t, p.fees.Contains(tx.ID()))
	_, hasList := p.lists["a"]
	assert.False(t, hasList)
	assert.False(t, p.Remove(tx.ID()), "removing an absent id is a no-op")
}

func TestPoolGetProcessableTransactionsOmitsSendersWithNoneProcessable(t *testing.T) {
	vs := newVerdictSet()
	txA := newTestTx("a", 0, 100, 0, 10)
	txB := newTestTx("b", 5, 100, 0, 10)
	vs.ok(txA.ID())
	vs.nonceGap(txB.ID())

	p, _ := newTestPool(t, vs.apply())
	require.NoError(t, p.Add(context.Background(), txA))
	require.NoError(t, p.Add(context.Background(), txB))

	processable := p.GetProcessableTransactions()
	require.Contains(t, processable, Address("a"))
	assert.NotContains(t, processable, Address("b"))
	assert.Len(t, processable["a"], 1)
}

func TestPoolAddRejectsInvalidTransactionOnNonNonceGapFailure(t *testing.T) {
	vs := newVerdictSet()
	tx := newTestTx("a", 0, 100, 0, 10)
	vs.fail(tx.ID())

	p, _ := newTestPool(t, vs.apply())
	err := p.Add(context.Background(), tx)
	require.Error(t, err)
	var admErr *AdmissionError
	require.ErrorAs(t, err, &admErr)
	assert.Equal(t, ErrInvalidTransaction, admErr.Kind)
	assert.False(t, p.Contains(tx.ID()))
}
