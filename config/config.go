// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/luxfi/geth/common"
	yaml "gopkg.in/yaml.v2"

	"github.com/luxfi/elastic/registry"
)

// ChainEntry is the on-disk form of one destination chain plus its rate
// limit. Amounts are decimal strings so full 256-bit values survive YAML.
type ChainEntry struct {
	ID              uint32 `yaml:"id"`
	Enabled         bool   `yaml:"enabled"`
	Receiver        string `yaml:"receiver"`
	MinAmount       string `yaml:"min_amount"`
	MaxAmount       string `yaml:"max_amount"`
	BatchWindowSecs int64  `yaml:"batch_window_seconds"`
	RefillPerSecond string `yaml:"refill_per_second"`
	MaxBurst        string `yaml:"max_burst"`
}

// Configuration is the deployment config: file values first, environment
// overrides second.
type Configuration struct {
	ChainID  uint32       `yaml:"chain_id" envconfig:"ELASTIC_CHAIN_ID"`
	Gateway  string       `yaml:"gateway_address" envconfig:"ELASTIC_GATEWAY_ADDRESS"`
	Operator string       `yaml:"operator_address" envconfig:"ELASTIC_OPERATOR_ADDRESS"`
	Chains   []ChainEntry `yaml:"chains"`
}

// Load reads the YAML file and applies environment overrides on top.
func Load(path string) (*Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Configuration
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GatewayAddress parses the configured gateway identity.
func (c *Configuration) GatewayAddress() (common.Address, error) {
	return parseAddress(c.Gateway)
}

// OperatorAddress parses the configured operator identity.
func (c *Configuration) OperatorAddress() (common.Address, error) {
	return parseAddress(c.Operator)
}

// Configurer is the operator configuration surface the loaded entries are
// pushed through. Implemented by the bridge gateway.
type Configurer interface {
	ConfigureChain(caller common.Address, chain uint32, cfg registry.ChainConfig) error
	SetRateLimit(caller common.Address, chain uint32, refillPerSecond, maxBurst *big.Int) error
}

// Apply pushes every chain entry through the operator surface as caller.
func (c *Configuration) Apply(target Configurer, caller common.Address) error {
	for _, entry := range c.Chains {
		receiver, err := parseAddress(entry.Receiver)
		if err != nil {
			return fmt.Errorf("chain %d: %w", entry.ID, err)
		}
		minAmount, err := parseAmount(entry.MinAmount)
		if err != nil {
			return fmt.Errorf("chain %d min_amount: %w", entry.ID, err)
		}
		maxAmount, err := parseAmount(entry.MaxAmount)
		if err != nil {
			return fmt.Errorf("chain %d max_amount: %w", entry.ID, err)
		}
		refill, err := parseAmount(entry.RefillPerSecond)
		if err != nil {
			return fmt.Errorf("chain %d refill_per_second: %w", entry.ID, err)
		}
		burst, err := parseAmount(entry.MaxBurst)
		if err != nil {
			return fmt.Errorf("chain %d max_burst: %w", entry.ID, err)
		}

		err = target.ConfigureChain(caller, entry.ID, registry.ChainConfig{
			Enabled:     entry.Enabled,
			Receiver:    receiver,
			MinAmount:   minAmount,
			MaxAmount:   maxAmount,
			BatchWindow: time.Duration(entry.BatchWindowSecs) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("configuring chain %d: %w", entry.ID, err)
		}
		if err := target.SetRateLimit(caller, entry.ID, refill, burst); err != nil {
			return fmt.Errorf("rate limit for chain %d: %w", entry.ID, err)
		}
	}
	return nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}
