// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package batch

import (
	"errors"
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/elastic/bridge"
	"github.com/luxfi/elastic/ledger"
	"github.com/luxfi/elastic/ratelimit"
	"github.com/luxfi/elastic/registry"
)

const destChain uint32 = 10

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	rcptA   = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	rcptB   = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	rcptC   = common.HexToAddress("0x00000000000000000000000000000000000000D1")
)

// fakeDispatcher records dispatch calls and can be told to fail.
type fakeDispatcher struct {
	calls int
	fail  error
	last  struct {
		destChain  uint32
		batchID    uint64
		recipients []common.Address
		total      *big.Int
	}
}

func (d *fakeDispatcher) DispatchBatch(creator common.Address, dest uint32, batchID uint64, recipients []common.Address, amounts []*big.Int, total *big.Int) (common.Hash, error) {
	d.calls++
	if d.fail != nil {
		return common.Hash{}, d.fail
	}
	d.last.destChain = dest
	d.last.batchID = batchID
	d.last.recipients = recipients
	d.last.total = total
	return common.HexToHash("0xfeed"), nil
}

func newTestEngine(t *testing.T) (*Engine, *ratelimit.Limiter, *fakeDispatcher) {
	t.Helper()

	reg := registry.New()
	err := reg.Configure(destChain, registry.ChainConfig{
		Enabled:   true,
		Receiver:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		MinAmount: big.NewInt(1),
		MaxAmount: big.NewInt(1000),
	})
	if err != nil {
		t.Fatalf("registry configure failed: %v", err)
	}

	rl := ratelimit.NewLimiter()
	if err := rl.Configure(destChain, big.NewInt(0), big.NewInt(100)); err != nil {
		t.Fatalf("limiter configure failed: %v", err)
	}

	d := &fakeDispatcher{}
	return NewEngine(reg, rl, d), rl, d
}

func TestCreateBatchTotals(t *testing.T) {
	e, _, _ := newTestEngine(t)

	id, err := e.CreateBatch(creator, destChain,
		[]common.Address{rcptA, rcptB, rcptC},
		[]*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(30)})
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	b, err := e.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if b.Total.Cmp(big.NewInt(60)) != 0 {
		t.Errorf("expected total 60, got %v", b.Total)
	}
	if b.Executed {
		t.Error("new batch must be pending")
	}
	if len(b.Transfers) != 3 {
		t.Errorf("expected 3 transfers, got %d", len(b.Transfers))
	}
}

func TestCreateBatchValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.CreateBatch(creator, destChain,
		[]common.Address{rcptA, rcptB},
		[]*big.Int{big.NewInt(10)})
	if err != ErrLengthMismatch {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}

	_, err = e.CreateBatch(creator, destChain, nil, nil)
	if err != ErrEmptyBatch {
		t.Errorf("expected ErrEmptyBatch, got %v", err)
	}

	big1 := make([]common.Address, MaxBatchSize+1)
	amts := make([]*big.Int, MaxBatchSize+1)
	for i := range big1 {
		big1[i] = rcptA
		amts[i] = big.NewInt(1)
	}
	_, err = e.CreateBatch(creator, destChain, big1, amts)
	if err != ErrBatchTooLarge {
		t.Errorf("expected ErrBatchTooLarge, got %v", err)
	}

	_, err = e.CreateBatch(creator, destChain,
		[]common.Address{rcptA},
		[]*big.Int{big.NewInt(2000)}) // above chain max
	if err != bridge.ErrAmountOutOfBounds {
		t.Errorf("expected ErrAmountOutOfBounds, got %v", err)
	}

	_, err = e.CreateBatch(creator, destChain,
		[]common.Address{{}},
		[]*big.Int{big.NewInt(10)})
	if err != ledger.ErrZeroAddress {
		t.Errorf("expected ErrZeroAddress, got %v", err)
	}
}

func TestCreateBatchDisabledChain(t *testing.T) {
	reg := registry.New()
	_ = reg.Configure(destChain, registry.ChainConfig{
		Enabled:   false,
		Receiver:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		MinAmount: big.NewInt(1),
		MaxAmount: big.NewInt(1000),
	})
	rl := ratelimit.NewLimiter()
	_ = rl.Configure(destChain, big.NewInt(0), big.NewInt(100))
	e := NewEngine(reg, rl, &fakeDispatcher{})

	_, err := e.CreateBatch(creator, destChain,
		[]common.Address{rcptA}, []*big.Int{big.NewInt(10)})
	if err != bridge.ErrChainDisabled {
		t.Errorf("expected ErrChainDisabled, got %v", err)
	}
}

// Capacity is reserved at creation by consuming the bucket, so a second
// batch cannot promise capacity the first already holds.
func TestCreateBatchReservesCapacity(t *testing.T) {
	e, rl, _ := newTestEngine(t) // burst 100

	_, err := e.CreateBatch(creator, destChain,
		[]common.Address{rcptA}, []*big.Int{big.NewInt(70)})
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	_, err = e.CreateBatch(creator, destChain,
		[]common.Address{rcptB}, []*big.Int{big.NewInt(70)})
	if err != ratelimit.ErrRateLimitExceeded {
		t.Errorf("expected ErrRateLimitExceeded, got %v", err)
	}

	_, _, avail, _, _ := rl.Status(destChain)
	if avail.Cmp(big.NewInt(30)) != 0 {
		t.Errorf("expected 30 remaining after reservation, got %v", avail)
	}
}

func TestExecuteBatchOnce(t *testing.T) {
	e, _, d := newTestEngine(t)

	id, err := e.CreateBatch(creator, destChain,
		[]common.Address{rcptA, rcptB, rcptC},
		[]*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(30)})
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	msgID, err := e.ExecuteBatch(id)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}
	if msgID == (common.Hash{}) {
		t.Error("expected non-zero message id")
	}
	if d.last.total.Cmp(big.NewInt(60)) != 0 {
		t.Errorf("dispatcher got total %v, want 60", d.last.total)
	}
	if d.last.batchID != id {
		t.Errorf("dispatcher got batch %d, want %d", d.last.batchID, id)
	}

	_, err = e.ExecuteBatch(id)
	if err != ErrAlreadyExecuted {
		t.Errorf("expected ErrAlreadyExecuted, got %v", err)
	}
	if d.calls != 1 {
		t.Errorf("dispatcher called %d times, want 1", d.calls)
	}

	b, _ := e.Get(id)
	if !b.Executed {
		t.Error("batch should be executed")
	}
	if b.MessageID != msgID {
		t.Error("message id not recorded")
	}
}

func TestExecuteUnknownBatch(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.ExecuteBatch(42); err != ErrUnknownBatch {
		t.Errorf("expected ErrUnknownBatch, got %v", err)
	}
}

func TestExecuteBatchDispatchFailureRollsBack(t *testing.T) {
	e, _, d := newTestEngine(t)
	d.fail = errors.New("transport down")

	id, err := e.CreateBatch(creator, destChain,
		[]common.Address{rcptA}, []*big.Int{big.NewInt(10)})
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	if _, err := e.ExecuteBatch(id); err == nil {
		t.Fatal("expected dispatch error")
	}

	b, _ := e.Get(id)
	if b.Executed {
		t.Error("failed dispatch must roll the executed flag back")
	}

	// Retry succeeds once the transport recovers.
	d.fail = nil
	if _, err := e.ExecuteBatch(id); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestPending(t *testing.T) {
	e, _, _ := newTestEngine(t)

	id1, _ := e.CreateBatch(creator, destChain, []common.Address{rcptA}, []*big.Int{big.NewInt(10)})
	id2, _ := e.CreateBatch(creator, destChain, []common.Address{rcptB}, []*big.Int{big.NewInt(20)})

	if got := e.Pending(); len(got) != 2 || got[0] != id1 || got[1] != id2 {
		t.Errorf("unexpected pending set: %v", got)
	}

	_, _ = e.ExecuteBatch(id1)
	if got := e.Pending(); len(got) != 1 || got[0] != id2 {
		t.Errorf("unexpected pending set after execute: %v", got)
	}
}
