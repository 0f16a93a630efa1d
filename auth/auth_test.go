// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	admin    = common.HexToAddress("0x0000000000000000000000000000000000000AD0")
	operator = common.HexToAddress("0x0000000000000000000000000000000000000001")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestAdminHasEveryCapability(t *testing.T) {
	tbl := NewTable(admin)
	require.NoError(t, tbl.Authorize(admin, CapConfigure))
	require.NoError(t, tbl.Authorize(admin, CapPause))
	require.NoError(t, tbl.Authorize(admin, CapRebase))
}

func TestGrantAndRevoke(t *testing.T) {
	tbl := NewTable(admin)

	require.ErrorIs(t, tbl.Authorize(operator, CapConfigure), ErrUnauthorized)

	require.NoError(t, tbl.Grant(admin, operator, CapConfigure))
	require.NoError(t, tbl.Authorize(operator, CapConfigure))

	// Grants are per capability, not blanket.
	require.ErrorIs(t, tbl.Authorize(operator, CapPause), ErrUnauthorized)

	require.NoError(t, tbl.Revoke(admin, operator, CapConfigure))
	require.ErrorIs(t, tbl.Authorize(operator, CapConfigure), ErrUnauthorized)
}

func TestOnlyAdminMutates(t *testing.T) {
	tbl := NewTable(admin)
	require.ErrorIs(t, tbl.Grant(stranger, stranger, CapPause), ErrNotAdmin)
	require.ErrorIs(t, tbl.Revoke(stranger, admin, CapPause), ErrNotAdmin)
}
