// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store persists a deployment's durable state: the ledger
// snapshot and the last-applied inbound nonce per source chain. The nonce
// records make replay protection survive a restart.
package store

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/elastic/ledger"
)

// Key prefixes.
var (
	sharesPrefix = []byte("ledger/shares/")
	globalKey    = []byte("ledger/global")
	noncePrefix  = []byte("nonce/applied/")
)

var ErrCorruptRecord = errors.New("corrupt store record")

// Store wraps a key-value database with the bridge's persistence schema.
type Store struct {
	db database.Database
}

// New creates a store over db.
func New(db database.Database) *Store {
	return &Store{db: db}
}

// SaveLedger replaces the persisted ledger state with the snapshot. The
// whole replacement is staged in one batch and committed with a single
// Write, so a crash mid-save never leaves a torn snapshot.
func (s *Store) SaveLedger(snap ledger.Snapshot) error {
	batch := s.db.NewBatch()

	// Drop stale account rows so a shrunk account set does not leave
	// phantom shares behind.
	it := s.db.NewIteratorWithPrefix(sharesPrefix)
	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		if err := batch.Delete(key); err != nil {
			it.Release()
			return err
		}
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}

	for addr, shares := range snap.Shares {
		u, overflow := uint256.FromBig(shares)
		if overflow {
			return ErrCorruptRecord
		}
		b32 := u.Bytes32()
		if err := batch.Put(sharesKey(addr), b32[:]); err != nil {
			return err
		}
	}

	total, overflow := uint256.FromBig(snap.TotalShares)
	if overflow {
		return ErrCorruptRecord
	}
	index, overflow := uint256.FromBig(snap.Index)
	if overflow {
		return ErrCorruptRecord
	}

	// totalShares(32) | index(32) | lastRebase(8) | minter(20)
	buf := make([]byte, 0, 32+32+8+20)
	tb := total.Bytes32()
	ib := index.Bytes32()
	buf = append(buf, tb[:]...)
	buf = append(buf, ib[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(snap.LastRebase))
	buf = append(buf, snap.Minter.Bytes()...)
	if err := batch.Put(globalKey, buf); err != nil {
		return err
	}
	return batch.Write()
}

// LoadLedger reconstructs the persisted ledger snapshot.
func (s *Store) LoadLedger() (ledger.Snapshot, error) {
	raw, err := s.db.Get(globalKey)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	if len(raw) != 32+32+8+20 {
		return ledger.Snapshot{}, ErrCorruptRecord
	}

	snap := ledger.Snapshot{
		Shares:      make(map[common.Address]*big.Int),
		TotalShares: new(uint256.Int).SetBytes(raw[:32]).ToBig(),
		Index:       new(uint256.Int).SetBytes(raw[32:64]).ToBig(),
		LastRebase:  int64(binary.BigEndian.Uint64(raw[64:72])),
		Minter:      common.BytesToAddress(raw[72:92]),
	}

	it := s.db.NewIteratorWithPrefix(sharesPrefix)
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if len(key) != len(sharesPrefix)+common.AddressLength {
			return ledger.Snapshot{}, ErrCorruptRecord
		}
		addr := common.BytesToAddress(key[len(sharesPrefix):])
		snap.Shares[addr] = new(uint256.Int).SetBytes(it.Value()).ToBig()
	}
	if err := it.Error(); err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, nil
}

// SaveAppliedNonce records the last applied inbound nonce for a source
// chain. Implements the bridge gateway's NonceStore.
func (s *Store) SaveAppliedNonce(sourceChain uint32, nonce uint64) error {
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], nonce)
	return s.db.Put(nonceKey(sourceChain), val[:])
}

// AppliedNonce returns the persisted nonce for a source chain, zero when
// none was recorded.
func (s *Store) AppliedNonce(sourceChain uint32) (uint64, error) {
	raw, err := s.db.Get(nonceKey(sourceChain))
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, ErrCorruptRecord
	}
	return binary.BigEndian.Uint64(raw), nil
}

// AppliedNonces returns every persisted (sourceChain, nonce) pair.
func (s *Store) AppliedNonces() (map[uint32]uint64, error) {
	out := make(map[uint32]uint64)
	it := s.db.NewIteratorWithPrefix(noncePrefix)
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if len(key) != len(noncePrefix)+4 || len(it.Value()) != 8 {
			return nil, ErrCorruptRecord
		}
		chain := binary.BigEndian.Uint32(key[len(noncePrefix):])
		out[chain] = binary.BigEndian.Uint64(it.Value())
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func sharesKey(addr common.Address) []byte {
	return append(append([]byte(nil), sharesPrefix...), addr.Bytes()...)
}

func nonceKey(chain uint32) []byte {
	key := append([]byte(nil), noncePrefix...)
	return binary.BigEndian.AppendUint32(key, chain)
}
