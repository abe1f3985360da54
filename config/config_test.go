package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
)

func TestValidate(t *testing.T) {
	c := qt.New(t)
	c.Assert(Default().Validate(), qt.IsNil)
	c.Assert(Default().Anchor(), qt.Equals, common.Address{})

	tests := []struct {
		name   string
		modify func(*Config)
		err    string
	}{
		{"port", func(cfg *Config) { cfg.Port = 70000 }, "invalid port.*"},
		{"db", func(cfg *Config) { cfg.DBType = "sqlite" }, "unsupported database type.*"},
		{"log level", func(cfg *Config) { cfg.LogLevel = "verbose" }, "invalid log level.*"},
		{"timeout", func(cfg *Config) { cfg.LedgerTimeout = 0 }, "ledger timeout.*"},
		{"interval", func(cfg *Config) { cfg.MonitorInterval = -time.Second }, "monitor interval.*"},
		{"anchor", func(cfg *Config) { cfg.AnchorAddress = "0x12" }, "invalid anchor address.*"},
		{"endpoints", func(cfg *Config) { cfg.DevLedger = false }, "at least one web3 endpoint.*"},
		{"key", func(cfg *Config) {
			cfg.DevLedger = false
			cfg.Web3Endpoints = []string{"http://localhost:8545"}
		}, "a private key is required.*"},
	}
	for _, tc := range tests {
		cfg := Default()
		tc.modify(cfg)
		c.Assert(cfg.Validate(), qt.ErrorMatches, tc.err, qt.Commentf(tc.name))
	}

	cfg := Default()
	cfg.AnchorAddress = "0x00000000000000000000000000000000000000aa"
	c.Assert(cfg.Validate(), qt.IsNil)
	c.Assert(cfg.Anchor(), qt.Equals, common.HexToAddress("0xaa"))
}
