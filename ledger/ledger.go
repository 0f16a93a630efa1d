// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
)

// IndexScale is the fixed-point scale of the rebase index. An index equal
// to IndexScale means one share is worth exactly one token unit.
var IndexScale = big.NewInt(1e18)

// Rebase bounds in basis points (+/- 10% per call).
const (
	MaxRebaseBps = 1000
	MinRebaseBps = -1000
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrZeroAddress         = errors.New("zero address")
	ErrZeroAmount          = errors.New("zero amount")
	ErrRebaseOutOfBounds   = errors.New("rebase out of bounds")
	ErrNotMinter           = errors.New("caller is not the minter")
)

// Ledger tracks holder balances through a shares/index indirection. Every
// account stores shares; its balance is derived as shares * index / scale.
// A rebase rescales the index once instead of rewriting every balance.
//
// All divisions truncate toward zero, so truncation only ever favors the
// protocol: sum(balances) <= totalShares * index / IndexScale, with
// equality when no truncation occurred.
type Ledger struct {
	mu sync.RWMutex

	shares      map[common.Address]*big.Int
	totalShares *big.Int
	index       *big.Int
	lastRebase  int64

	// Single-holder mint/burn capability. Starts with the deployer and is
	// handed to the bridge gateway once wired.
	minter common.Address

	// now is swappable for tests.
	now func() int64
}

// New creates a ledger with index 1.0 and the given minter capability
// holder.
func New(minter common.Address) *Ledger {
	return &Ledger{
		shares:      make(map[common.Address]*big.Int),
		totalShares: big.NewInt(0),
		index:       new(big.Int).Set(IndexScale),
		minter:      minter,
		now:         func() int64 { return time.Now().Unix() },
	}
}

// sharesForAmount converts a token amount to shares at the current index,
// truncating toward zero.
func (l *Ledger) sharesForAmount(amount *big.Int) *big.Int {
	s := new(big.Int).Mul(amount, IndexScale)
	return s.Div(s, l.index)
}

// amountForShares converts shares to a token amount at the current index,
// truncating toward zero.
func (l *Ledger) amountForShares(shares *big.Int) *big.Int {
	a := new(big.Int).Mul(shares, l.index)
	return a.Div(a, IndexScale)
}

// Transfer moves amount from one holder to another. Total shares are
// unchanged. The debit is computed in shares, so the sender may lose up to
// one token unit more than amount to truncation.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if to == (common.Address{}) || from == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	delta := l.sharesForAmount(amount)
	have := l.shares[from]
	if have == nil || have.Cmp(delta) < 0 {
		return ErrInsufficientBalance
	}

	have.Sub(have, delta)
	if have.Sign() == 0 {
		delete(l.shares, from)
	}
	l.credit(to, delta)
	return nil
}

// Mint credits amount to a holder at the current index. Restricted to the
// mint capability holder (the bridge, on receive).
func (l *Ledger) Mint(caller, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.minter {
		return ErrNotMinter
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	delta := l.sharesForAmount(amount)
	l.credit(to, delta)
	l.totalShares.Add(l.totalShares, delta)
	return nil
}

// Burn debits amount from a holder at the current index. Restricted to the
// mint capability holder.
func (l *Ledger) Burn(caller, from common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.minter {
		return ErrNotMinter
	}
	if from == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	delta := l.sharesForAmount(amount)
	have := l.shares[from]
	if have == nil || have.Cmp(delta) < 0 {
		return ErrInsufficientBalance
	}

	have.Sub(have, delta)
	if have.Sign() == 0 {
		delete(l.shares, from)
	}
	l.totalShares.Sub(l.totalShares, delta)
	return nil
}

// Rebase rescales the index by percentBps basis points:
// index = index * (10000 + percentBps) / 10000. Every derived balance
// changes without touching a single account record. percentBps must stay
// within [MinRebaseBps, MaxRebaseBps]. Restricted to the minter.
func (l *Ledger) Rebase(caller common.Address, percentBps int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.minter {
		return ErrNotMinter
	}
	if percentBps < MinRebaseBps || percentBps > MaxRebaseBps {
		return ErrRebaseOutOfBounds
	}

	l.index.Mul(l.index, big.NewInt(10000+percentBps))
	l.index.Div(l.index, big.NewInt(10000))
	l.lastRebase = l.now()
	return nil
}

// TransferMinter reassigns the mint/burn capability. Only the current
// holder may hand it off, and only to a non-zero address.
func (l *Ledger) TransferMinter(caller, next common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.minter {
		return ErrNotMinter
	}
	if next == (common.Address{}) {
		return ErrZeroAddress
	}
	l.minter = next
	return nil
}

// credit adds shares to an account, allocating the entry if needed.
// Callers hold the write lock.
func (l *Ledger) credit(to common.Address, delta *big.Int) {
	if have := l.shares[to]; have != nil {
		have.Add(have, delta)
		return
	}
	l.shares[to] = new(big.Int).Set(delta)
}

// BalanceOf returns the derived balance of an account.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	have := l.shares[addr]
	if have == nil {
		return big.NewInt(0)
	}
	return l.amountForShares(have)
}

// SharesOf returns the raw share count of an account.
func (l *Ledger) SharesOf(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	have := l.shares[addr]
	if have == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(have)
}

// TotalShares returns the share total across all accounts.
func (l *Ledger) TotalShares() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalShares)
}

// TotalSupply returns the derived token supply, totalShares * index / scale.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.amountForShares(l.totalShares)
}

// Index returns the current rebase index.
func (l *Ledger) Index() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.index)
}

// LastRebaseTime returns the unix time of the last rebase, zero if none.
func (l *Ledger) LastRebaseTime() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastRebase
}

// Minter returns the current mint/burn capability holder.
func (l *Ledger) Minter() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minter
}
