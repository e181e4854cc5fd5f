package mempool

import (
	"time"

	"github.com/pkg/errors"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Config holds the pool's tunable options. Only ApplyTransactions,
// AddressOf and BytesOf are required collaborators; DefaultConfig supplies
// every other documented default. validate rejects a non-positive
// MaxTransactions or MaxTransactionsPerAccount rather than defaulting
// it. The functional fields (ApplyTransactions, AddressOf, BytesOf,
// Clock, Logger, OnSizeChanged) are not YAML-serializable and are tagged
// accordingly, splitting serializable protocol settings from runtime-only
// wiring.
type Config struct {
	MaxTransactions                   int           `yaml:"max_transactions"`
	MaxTransactionsPerAccount         int           `yaml:"max_transactions_per_account"`
	MinEntranceFeePriority             uint64        `yaml:"min_entrance_fee_priority"`
	MinReplacementFeeDifference        uint64        `yaml:"min_replacement_fee_difference"`
	TransactionExpiryTime              time.Duration `yaml:"transaction_expiry_time"`
	TransactionReorganizationInterval  time.Duration `yaml:"transaction_reorganization_interval"`

	// ApplyTransactions validates candidate transactions against current
	// chain state. Required.
	ApplyTransactions ApplyFunc `yaml:"-"`

	// AddressOf derives a sender address from a public key. Required.
	AddressOf func(publicKey []byte) Address `yaml:"-"`

	// BytesOf returns the wire encoding of a transaction, whose length
	// feeds fee_priority. Required.
	BytesOf func(tx Tx) []byte `yaml:"-"`

	// Clock is the pool's time source. Defaults to NewRealClock().
	Clock Clock `yaml:"-"`

	// Logger receives structured diagnostics. Defaults to zap.NewNop().
	Logger *zap.Logger `yaml:"-"`

	// EnableSubscriptions turns on the event bus dispatcher goroutine.
	// Pools that never call Subscribe can leave this false to avoid
	// spinning up an idle goroutine, mirroring
	// core/mempool.New(..., enableSubscriptions bool, ...).
	EnableSubscriptions bool `yaml:"-"`

	// OnSizeChanged, if set, is invoked with the pool's new transaction
	// count after every mutation, mirroring core/mempool.New's
	// updateMetricsCb. It lets callers feed their own metrics system
	// without this package importing one.
	OnSizeChanged func(int) `yaml:"-"`
}

const (
	defaultMaxTransactions              = 4096
	defaultMaxTransactionsPerAccount    = 64
	defaultMinReplacementFeeDifference  = 10
	defaultTransactionExpiryTime        = 3 * time.Hour
	defaultTransactionReorganizationInterval = 5 * time.Second
)

// DefaultConfig returns a Config with every documented default filled in.
// ApplyTransactions, AddressOf and BytesOf are still nil and must be set
// by the caller before use.
func DefaultConfig() Config {
	return Config{
		MaxTransactions:                   defaultMaxTransactions,
		MaxTransactionsPerAccount:         defaultMaxTransactionsPerAccount,
		MinEntranceFeePriority:            0,
		MinReplacementFeeDifference:       defaultMinReplacementFeeDifference,
		TransactionExpiryTime:             defaultTransactionExpiryTime,
		TransactionReorganizationInterval: defaultTransactionReorganizationInterval,
	}
}

// minEntranceFeePriority returns the configured floor as a uint256.
func (c Config) minEntranceFeePriority() *uint256.Int {
	return uint256.NewInt(c.MinEntranceFeePriority)
}

// minReplacementFeeDifference returns the configured replacement delta as a uint256.
func (c Config) minReplacementFeeDifference() *uint256.Int {
	return uint256.NewInt(c.MinReplacementFeeDifference)
}

// validate fills in defaults for a zero Clock, Logger,
// TransactionExpiryTime and TransactionReorganizationInterval, and rejects
// a Config missing a required collaborator or with a non-positive cap.
func (c *Config) validate() error {
	if c.ApplyTransactions == nil {
		return errors.New("mempool: Config.ApplyTransactions is required")
	}
	if c.AddressOf == nil {
		return errors.New("mempool: Config.AddressOf is required")
	}
	if c.BytesOf == nil {
		return errors.New("mempool: Config.BytesOf is required")
	}
	if c.MaxTransactions <= 0 {
		return errors.Errorf("mempool: Config.MaxTransactions must be positive, got %d", c.MaxTransactions)
	}
	if c.MaxTransactionsPerAccount <= 0 {
		return errors.Errorf("mempool: Config.MaxTransactionsPerAccount must be positive, got %d", c.MaxTransactionsPerAccount)
	}
	if c.Clock == nil {
		c.Clock = NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.TransactionExpiryTime <= 0 {
		c.TransactionExpiryTime = defaultTransactionExpiryTime
	}
	if c.TransactionReorganizationInterval <= 0 {
		c.TransactionReorganizationInterval = defaultTransactionReorganizationInterval
	}
	return nil
}
