// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
)

var (
	ErrChainNotConfigured = errors.New("chain not configured")
	ErrInvalidChainConfig = errors.New("invalid chain configuration")
)

// ChainConfig describes one remote deployment eligible for transfers.
// Receiver is the trusted counterpart gateway on that chain: outbound
// messages are addressed to it and inbound messages must come from it.
type ChainConfig struct {
	Enabled     bool
	Receiver    common.Address
	MinAmount   *big.Int
	MaxAmount   *big.Int
	BatchWindow time.Duration
}

// Registry is the mutable table of destination chains. Chains are only
// ever disabled, never deleted, so historical batches referencing a
// disabled chain stay inspectable.
type Registry struct {
	mu     sync.RWMutex
	chains map[uint32]*ChainConfig
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{chains: make(map[uint32]*ChainConfig)}
}

// Configure creates or replaces the configuration of a chain.
func (r *Registry) Configure(chain uint32, cfg ChainConfig) error {
	if cfg.Receiver == (common.Address{}) {
		return ErrInvalidChainConfig
	}
	if cfg.MinAmount == nil || cfg.MaxAmount == nil ||
		cfg.MinAmount.Sign() < 0 || cfg.MaxAmount.Cmp(cfg.MinAmount) < 0 {
		return ErrInvalidChainConfig
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.chains[chain] = &ChainConfig{
		Enabled:     cfg.Enabled,
		Receiver:    cfg.Receiver,
		MinAmount:   new(big.Int).Set(cfg.MinAmount),
		MaxAmount:   new(big.Int).Set(cfg.MaxAmount),
		BatchWindow: cfg.BatchWindow,
	}
	return nil
}

// Disable marks a chain ineligible for new transfers. The configuration
// record itself is kept.
func (r *Registry) Disable(chain uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.chains[chain]
	if cfg == nil {
		return ErrChainNotConfigured
	}
	cfg.Enabled = false
	return nil
}

// Get returns a copy of the chain's configuration.
func (r *Registry) Get(chain uint32) (ChainConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg := r.chains[chain]
	if cfg == nil {
		return ChainConfig{}, ErrChainNotConfigured
	}
	return ChainConfig{
		Enabled:     cfg.Enabled,
		Receiver:    cfg.Receiver,
		MinAmount:   new(big.Int).Set(cfg.MinAmount),
		MaxAmount:   new(big.Int).Set(cfg.MaxAmount),
		BatchWindow: cfg.BatchWindow,
	}, nil
}

// Chains lists all configured chain IDs in ascending order, enabled or not.
func (r *Registry) Chains() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint32, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
