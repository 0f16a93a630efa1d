// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"errors"
	"sync"

	"github.com/luxfi/geth/common"
)

// Capability names a restricted operation class. Mutating entry points
// check the caller against a static grant table instead of role hierarchies.
type Capability string

const (
	// CapConfigure guards chain registry and rate limit configuration.
	CapConfigure Capability = "configure"

	// CapPause guards pausing and unpausing the bridge.
	CapPause Capability = "pause"

	// CapRebase guards supply index adjustments on the ledger.
	CapRebase Capability = "rebase"
)

var (
	ErrUnauthorized = errors.New("caller lacks required capability")
	ErrNotAdmin     = errors.New("caller is not the capability admin")
)

// Table is a capability grant table with a single admin that may grant and
// revoke. Grants are explicit; there is no inheritance between capabilities.
type Table struct {
	admin  common.Address
	grants map[common.Address]map[Capability]bool
	mu     sync.RWMutex
}

// NewTable creates a grant table. The admin starts with every capability
// implicitly and is the only identity allowed to change grants.
func NewTable(admin common.Address) *Table {
	return &Table{
		admin:  admin,
		grants: make(map[common.Address]map[Capability]bool),
	}
}

// Grant gives holder the capability. Only the admin may call.
func (t *Table) Grant(caller, holder common.Address, c Capability) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if caller != t.admin {
		return ErrNotAdmin
	}
	if t.grants[holder] == nil {
		t.grants[holder] = make(map[Capability]bool)
	}
	t.grants[holder][c] = true
	return nil
}

// Revoke removes the capability from holder. Only the admin may call.
func (t *Table) Revoke(caller, holder common.Address, c Capability) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if caller != t.admin {
		return ErrNotAdmin
	}
	if t.grants[holder] != nil {
		delete(t.grants[holder], c)
	}
	return nil
}

// Authorize returns nil when caller holds the capability (or is the admin),
// ErrUnauthorized otherwise.
func (t *Table) Authorize(caller common.Address, c Capability) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if caller == t.admin {
		return nil
	}
	if t.grants[caller] != nil && t.grants[caller][c] {
		return nil
	}
	return ErrUnauthorized
}

// Admin returns the table admin.
func (t *Table) Admin() common.Address {
	return t.admin
}
