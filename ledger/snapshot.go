// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// Snapshot is a copyable view of the full ledger state, used by the store
// package to persist and restore a deployment across restarts.
type Snapshot struct {
	Shares      map[common.Address]*big.Int
	TotalShares *big.Int
	Index       *big.Int
	LastRebase  int64
	Minter      common.Address
}

// Snapshot returns a deep copy of the ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	shares := make(map[common.Address]*big.Int, len(l.shares))
	for addr, s := range l.shares {
		shares[addr] = new(big.Int).Set(s)
	}
	return Snapshot{
		Shares:      shares,
		TotalShares: new(big.Int).Set(l.totalShares),
		Index:       new(big.Int).Set(l.index),
		LastRebase:  l.lastRebase,
		Minter:      l.minter,
	}
}

// FromSnapshot reconstructs a ledger from persisted state.
func FromSnapshot(snap Snapshot) *Ledger {
	l := New(snap.Minter)
	for addr, s := range snap.Shares {
		l.shares[addr] = new(big.Int).Set(s)
	}
	l.totalShares.Set(snap.TotalShares)
	l.index.Set(snap.Index)
	l.lastRebase = snap.LastRebase
	return l
}
