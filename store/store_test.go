// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"math/big"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/elastic/ledger"
)

func TestLedgerRoundTrip(t *testing.T) {
	require := require.New(t)

	minter := common.HexToAddress("0x00000000000000000000000000000000000000A0")
	alice := common.HexToAddress("0x0000000000000000000000000000000000000011")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000022")

	ldg := ledger.New(minter)
	require.NoError(ldg.Mint(minter, alice, big.NewInt(700_000)))
	require.NoError(ldg.Mint(minter, bob, big.NewInt(300_000)))
	require.NoError(ldg.Rebase(minter, 250))

	st := New(memdb.New())
	require.NoError(st.SaveLedger(ldg.Snapshot()))

	snap, err := st.LoadLedger()
	require.NoError(err)

	restored := ledger.FromSnapshot(snap)
	require.Equal(0, restored.TotalSupply().Cmp(ldg.TotalSupply()))
	require.Equal(0, restored.BalanceOf(alice).Cmp(ldg.BalanceOf(alice)))
	require.Equal(0, restored.BalanceOf(bob).Cmp(ldg.BalanceOf(bob)))

	// The restored ledger keeps working: a further rebase applies cleanly.
	require.NoError(restored.Rebase(minter, 100))
}

func TestSaveLedgerDropsStaleAccounts(t *testing.T) {
	require := require.New(t)

	minter := common.HexToAddress("0x00000000000000000000000000000000000000A0")
	alice := common.HexToAddress("0x0000000000000000000000000000000000000011")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000022")

	ldg := ledger.New(minter)
	require.NoError(ldg.Mint(minter, alice, big.NewInt(100)))
	require.NoError(ldg.Mint(minter, bob, big.NewInt(200)))

	st := New(memdb.New())
	require.NoError(st.SaveLedger(ldg.Snapshot()))

	// Bob exits entirely; the second save must not resurrect him.
	require.NoError(ldg.Burn(minter, bob, big.NewInt(200)))
	require.NoError(st.SaveLedger(ldg.Snapshot()))

	snap, err := st.LoadLedger()
	require.NoError(err)
	require.Len(snap.Shares, 1)
	require.Contains(snap.Shares, alice)
}

// A save that fails partway must not disturb the previously persisted
// snapshot: the whole replacement commits in one batch write or not at all.
func TestSaveLedgerFailureLeavesPriorSnapshot(t *testing.T) {
	require := require.New(t)

	minter := common.HexToAddress("0x00000000000000000000000000000000000000A0")
	alice := common.HexToAddress("0x0000000000000000000000000000000000000011")

	ldg := ledger.New(minter)
	require.NoError(ldg.Mint(minter, alice, big.NewInt(100)))

	st := New(memdb.New())
	require.NoError(st.SaveLedger(ldg.Snapshot()))

	// A share value beyond 256 bits aborts the save before the commit.
	bad := ldg.Snapshot()
	bad.Shares[common.HexToAddress("0x0000000000000000000000000000000000000022")] =
		new(big.Int).Lsh(big.NewInt(1), 300)
	require.ErrorIs(st.SaveLedger(bad), ErrCorruptRecord)

	snap, err := st.LoadLedger()
	require.NoError(err)
	require.Len(snap.Shares, 1)
	require.Contains(snap.Shares, alice)
}

func TestLoadLedgerEmpty(t *testing.T) {
	st := New(memdb.New())
	_, err := st.LoadLedger()
	require.Error(t, err)
}

func TestLoadLedgerCorruptGlobal(t *testing.T) {
	db := memdb.New()
	require.NoError(t, db.Put([]byte("ledger/global"), []byte{0x01, 0x02}))

	st := New(db)
	_, err := st.LoadLedger()
	require.ErrorIs(t, err, ErrCorruptRecord)
}

func TestAppliedNonces(t *testing.T) {
	require := require.New(t)
	st := New(memdb.New())

	// Unrecorded chains read as zero, not as an error.
	n, err := st.AppliedNonce(7)
	require.NoError(err)
	require.Zero(n)

	require.NoError(st.SaveAppliedNonce(7, 41))
	require.NoError(st.SaveAppliedNonce(7, 42))
	require.NoError(st.SaveAppliedNonce(9, 5))

	n, err = st.AppliedNonce(7)
	require.NoError(err)
	require.Equal(uint64(42), n)

	all, err := st.AppliedNonces()
	require.NoError(err)
	require.Equal(map[uint32]uint64{7: 42, 9: 5}, all)
}
