// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"math/big"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var receiver = common.HexToAddress("0x2222222222222222222222222222222222222222")

func validConfig() ChainConfig {
	return ChainConfig{
		Enabled:     true,
		Receiver:    receiver,
		MinAmount:   big.NewInt(10),
		MaxAmount:   big.NewInt(1000),
		BatchWindow: time.Minute,
	}
}

func TestConfigureAndGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Configure(5, validConfig()))

	cfg, err := r.Get(5)
	require.NoError(t, err)
	require.True(t, cfg.Enabled)
	require.Equal(t, receiver, cfg.Receiver)
	require.Equal(t, 0, cfg.MinAmount.Cmp(big.NewInt(10)))
	require.Equal(t, 0, cfg.MaxAmount.Cmp(big.NewInt(1000)))
	require.Equal(t, time.Minute, cfg.BatchWindow)
}

func TestGetUnknownChain(t *testing.T) {
	r := New()
	_, err := r.Get(404)
	require.ErrorIs(t, err, ErrChainNotConfigured)
}

func TestConfigureValidation(t *testing.T) {
	r := New()

	cfg := validConfig()
	cfg.Receiver = common.Address{}
	require.ErrorIs(t, r.Configure(1, cfg), ErrInvalidChainConfig)

	cfg = validConfig()
	cfg.MaxAmount = big.NewInt(5) // below min
	require.ErrorIs(t, r.Configure(1, cfg), ErrInvalidChainConfig)

	cfg = validConfig()
	cfg.MinAmount = nil
	require.ErrorIs(t, r.Configure(1, cfg), ErrInvalidChainConfig)
}

func TestDisableKeepsRecord(t *testing.T) {
	r := New()
	require.NoError(t, r.Configure(5, validConfig()))
	require.NoError(t, r.Disable(5))

	cfg, err := r.Get(5)
	require.NoError(t, err)
	require.False(t, cfg.Enabled)
	require.Equal(t, receiver, cfg.Receiver, "disable must keep the record")

	require.ErrorIs(t, r.Disable(404), ErrChainNotConfigured)
}

func TestGetReturnsCopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Configure(5, validConfig()))

	cfg, err := r.Get(5)
	require.NoError(t, err)
	cfg.MinAmount.SetInt64(999999)

	fresh, err := r.Get(5)
	require.NoError(t, err)
	require.Equal(t, 0, fresh.MinAmount.Cmp(big.NewInt(10)), "mutating a returned config must not alter the registry")
}

func TestChainsSorted(t *testing.T) {
	r := New()
	for _, id := range []uint32{9, 2, 5} {
		require.NoError(t, r.Configure(id, validConfig()))
	}
	require.NoError(t, r.Disable(5))
	require.Equal(t, []uint32{2, 5, 9}, r.Chains())
}
