// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package batch

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/elastic/bridge"
	"github.com/luxfi/elastic/ledger"
	"github.com/luxfi/elastic/ratelimit"
	"github.com/luxfi/elastic/registry"
)

// MaxBatchSize caps the number of transfers grouped into one message.
const MaxBatchSize = 100

var (
	ErrLengthMismatch  = errors.New("recipients and amounts length mismatch")
	ErrBatchTooLarge   = errors.New("batch exceeds maximum size")
	ErrEmptyBatch      = errors.New("batch has no transfers")
	ErrUnknownBatch    = errors.New("unknown batch")
	ErrAlreadyExecuted = errors.New("batch already executed")
)

// Transfer is one recipient/amount pair inside a batch.
type Transfer struct {
	Recipient common.Address
	Amount    *big.Int
}

// BatchTransfer groups transfers toward one destination chain into a
// single outbound message. Created once, executed at most once; Executed
// flips false to true and never back (except the rollback of a failed
// dispatch, which never observed an executed state externally).
type BatchTransfer struct {
	ID         uint64
	Creator    common.Address
	DestChain  uint32
	Transfers  []Transfer
	Total      *big.Int
	CreatedAt  time.Time
	Executed   bool
	MessageID  common.Hash // set once dispatched
}

// Dispatcher emits the batch as one cross-chain message. Implemented by
// the bridge gateway.
type Dispatcher interface {
	DispatchBatch(creator common.Address, destChain uint32, batchID uint64, recipients []common.Address, amounts []*big.Int, total *big.Int) (common.Hash, error)
}

// Engine accumulates and executes batches. Rate-limit capacity for a
// batch is reserved by consuming from the destination bucket at creation
// time, so two batches can never jointly promise more capacity than the
// bucket held; execution dispatches without a second check.
type Engine struct {
	mu sync.Mutex

	registry   *registry.Registry
	limiter    *ratelimit.Limiter
	dispatcher Dispatcher

	nextID  uint64
	batches map[uint64]*BatchTransfer

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates a batch engine backed by the given collaborators.
func NewEngine(reg *registry.Registry, rl *ratelimit.Limiter, d Dispatcher) *Engine {
	return &Engine{
		registry:   reg,
		limiter:    rl,
		dispatcher: d,
		nextID:     1,
		batches:    make(map[uint64]*BatchTransfer),
		now:        time.Now,
	}
}

// CreateBatch validates the transfer list against the destination chain's
// bounds, reserves rate-limit capacity for the total, and records a new
// pending batch. Returns the batch ID.
func (e *Engine) CreateBatch(creator common.Address, destChain uint32, recipients []common.Address, amounts []*big.Int) (uint64, error) {
	if len(recipients) != len(amounts) {
		return 0, ErrLengthMismatch
	}
	if len(recipients) == 0 {
		return 0, ErrEmptyBatch
	}
	if len(recipients) > MaxBatchSize {
		return 0, ErrBatchTooLarge
	}

	cfg, err := e.registry.Get(destChain)
	if err != nil {
		return 0, err
	}
	if !cfg.Enabled {
		return 0, bridge.ErrChainDisabled
	}

	total := new(big.Int)
	transfers := make([]Transfer, len(recipients))
	for i, rcpt := range recipients {
		if rcpt == (common.Address{}) {
			return 0, ledger.ErrZeroAddress
		}
		amt := amounts[i]
		if amt == nil || amt.Cmp(cfg.MinAmount) < 0 || amt.Cmp(cfg.MaxAmount) > 0 {
			return 0, bridge.ErrAmountOutOfBounds
		}
		transfers[i] = Transfer{Recipient: rcpt, Amount: new(big.Int).Set(amt)}
		total.Add(total, amt)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.limiter.TryConsume(destChain, total); err != nil {
		return 0, err
	}

	id := e.nextID
	e.nextID++
	e.batches[id] = &BatchTransfer{
		ID:        id,
		Creator:   creator,
		DestChain: destChain,
		Transfers: transfers,
		Total:     total,
		CreatedAt: e.now(),
	}
	return id, nil
}

// ExecuteBatch dispatches a pending batch as one outbound message. The
// executed flag flips before the dispatcher runs so a reentrant call sees
// the batch as done; a failed dispatch rolls the flag back and the batch
// stays pending.
func (e *Engine) ExecuteBatch(id uint64) (common.Hash, error) {
	e.mu.Lock()
	b := e.batches[id]
	if b == nil {
		e.mu.Unlock()
		return common.Hash{}, ErrUnknownBatch
	}
	if b.Executed {
		e.mu.Unlock()
		return common.Hash{}, ErrAlreadyExecuted
	}
	b.Executed = true

	recipients := make([]common.Address, len(b.Transfers))
	amounts := make([]*big.Int, len(b.Transfers))
	for i, tr := range b.Transfers {
		recipients[i] = tr.Recipient
		amounts[i] = tr.Amount
	}
	creator, destChain, total := b.Creator, b.DestChain, b.Total
	e.mu.Unlock()

	msgID, err := e.dispatcher.DispatchBatch(creator, destChain, id, recipients, amounts, total)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		b.Executed = false
		return common.Hash{}, err
	}
	b.MessageID = msgID
	return msgID, nil
}

// Get returns a copy of a batch record.
func (e *Engine) Get(id uint64) (BatchTransfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.batches[id]
	if b == nil {
		return BatchTransfer{}, ErrUnknownBatch
	}

	out := *b
	out.Total = new(big.Int).Set(b.Total)
	out.Transfers = make([]Transfer, len(b.Transfers))
	for i, tr := range b.Transfers {
		out.Transfers[i] = Transfer{Recipient: tr.Recipient, Amount: new(big.Int).Set(tr.Amount)}
	}
	return out, nil
}

// Pending lists the IDs of batches not yet executed, in ascending order.
func (e *Engine) Pending() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ids []uint64
	for id := uint64(1); id < e.nextID; id++ {
		if b := e.batches[id]; b != nil && !b.Executed {
			ids = append(ids, id)
		}
	}
	return ids
}
