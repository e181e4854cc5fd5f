package mempool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 4096, cfg.MaxTransactions)
	assert.Equal(t, 64, cfg.MaxTransactionsPerAccount)
	assert.Equal(t, uint64(0), cfg.MinEntranceFeePriority)
	assert.Equal(t, uint64(10), cfg.MinReplacementFeeDifference)
	assert.Equal(t, 3*time.Hour, cfg.TransactionExpiryTime)
	assert.Equal(t, 5*time.Second, cfg.TransactionReorganizationInterval)
}

func TestConfigValidateRequiresCollaborators(t *testing.T) {
	base := DefaultConfig()
	base.AddressOf = testAddressOf
	base.BytesOf = testBytesOf

	cfg := base
	require.Error(t, cfg.validate())

	cfg = base
	cfg.ApplyTransactions = alwaysOK
	cfg.AddressOf = nil
	require.Error(t, cfg.validate())

	cfg = base
	cfg.ApplyTransactions = alwaysOK
	cfg.BytesOf = nil
	require.Error(t, cfg.validate())
}

func TestConfigValidateRejectsNonPositiveCaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyTransactions = alwaysOK
	cfg.AddressOf = testAddressOf
	cfg.BytesOf = testBytesOf
	cfg.MaxTransactions = 0
	require.Error(t, cfg.validate())

	cfg.MaxTransactions = 10
	cfg.MaxTransactionsPerAccount = -1
	require.Error(t, cfg.validate())
}

func TestConfigValidateFillsDefaults(t *testing.T) {
	cfg := Config{
		ApplyTransactions:         alwaysOK,
		AddressOf:                 testAddressOf,
		BytesOf:                   testBytesOf,
		MaxTransactions:           10,
		MaxTransactionsPerAccount: 2,
	}
	require.NoError(t, cfg.validate())
	assert.NotNil(t, cfg.Clock)
	assert.NotNil(t, cfg.Logger)
	assert.Equal(t, defaultTransactionExpiryTime, cfg.TransactionExpiryTime)
	assert.Equal(t, defaultTransactionReorganizationInterval, cfg.TransactionReorganizationInterval)
}
