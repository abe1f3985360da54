// Package config holds the runtime configuration of the sequencer.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/log"
)

const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 9090
	DefaultDataDir         = "~/.commit-reveal-sequencer"
	DefaultLogLevel        = log.LogLevelInfo
	DefaultLogOutput       = "stdout"
	DefaultLedgerTimeout   = 30 * time.Second
	DefaultMonitorInterval = 10 * time.Second
)

// Config is the sequencer configuration.
type Config struct {
	Host      string
	Port      int
	DataDir   string
	DBType    string
	LogLevel  string
	LogOutput string

	// Web3Endpoints are the RPC URIs of the chain used as ledger. All of
	// them must serve the same chain.
	Web3Endpoints []string
	// AnchorAddress receives the anchoring transactions. Empty means the
	// sender address.
	AnchorAddress string
	// PrivateKey is the hex encoded key signing the anchoring transactions.
	PrivateKey string
	// DevLedger selects the in-memory ledger instead of a chain.
	DevLedger bool

	LedgerTimeout   time.Duration
	MonitorInterval time.Duration
}

// Default returns the default configuration, which runs with the in-memory
// ledger.
func Default() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		DataDir:         DefaultDataDir,
		DBType:          db.TypePebble,
		LogLevel:        DefaultLogLevel,
		LogOutput:       DefaultLogOutput,
		DevLedger:       true,
		LedgerTimeout:   DefaultLedgerTimeout,
		MonitorInterval: DefaultMonitorInterval,
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("missing data directory")
	}
	switch c.DBType {
	case db.TypePebble, db.TypeLevelDB:
	default:
		return fmt.Errorf("unsupported database type %q", c.DBType)
	}
	switch c.LogLevel {
	case log.LogLevelDebug, log.LogLevelInfo, log.LogLevelWarn, log.LogLevelError:
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.LedgerTimeout <= 0 {
		return fmt.Errorf("ledger timeout must be positive")
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}
	if c.AnchorAddress != "" && !common.IsHexAddress(c.AnchorAddress) {
		return fmt.Errorf("invalid anchor address %q", c.AnchorAddress)
	}
	if c.DevLedger {
		return nil
	}
	if len(c.Web3Endpoints) == 0 {
		return fmt.Errorf("at least one web3 endpoint is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("a private key is required to sign ledger transactions")
	}
	return nil
}

// Anchor returns the parsed anchor address, the zero address if unset.
func (c *Config) Anchor() common.Address {
	if c.AnchorAddress == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.AnchorAddress)
}
