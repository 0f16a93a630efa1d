// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ratelimit

import (
	"errors"
	"math/big"
	"sync"
	"time"
)

var (
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrBucketNotConfigured  = errors.New("rate bucket not configured")
	ErrInvalidConfiguration = errors.New("invalid rate limit configuration")
)

// Bucket is a token bucket for one remote chain. Capacity refills lazily
// from elapsed wall-clock time on every access, so a bucket untouched for
// a long period still refills correctly on the next request.
type Bucket struct {
	Available       *big.Int
	MaxBurst        *big.Int
	RefillPerSecond *big.Int
	LastRefill      int64
}

// Limiter keeps one independent bucket per chain.
type Limiter struct {
	mu      sync.Mutex
	buckets map[uint32]*Bucket

	// now is swappable for tests.
	now func() int64
}

// NewLimiter creates an empty limiter. Buckets exist only after Configure.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[uint32]*Bucket),
		now:     func() int64 { return time.Now().Unix() },
	}
}

// Configure creates or resets the bucket for a chain. The bucket starts
// full: Available = maxBurst.
func (rl *Limiter) Configure(chain uint32, refillPerSecond, maxBurst *big.Int) error {
	if refillPerSecond == nil || maxBurst == nil ||
		refillPerSecond.Sign() < 0 || maxBurst.Sign() <= 0 {
		return ErrInvalidConfiguration
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.buckets[chain] = &Bucket{
		Available:       new(big.Int).Set(maxBurst),
		MaxBurst:        new(big.Int).Set(maxBurst),
		RefillPerSecond: new(big.Int).Set(refillPerSecond),
		LastRefill:      rl.now(),
	}
	return nil
}

// refill tops the bucket up for elapsed time and clamps to MaxBurst. The
// clamp is also what shrinks Available after a reconfiguration to a
// smaller burst. LastRefill only moves forward: a backward clock step
// would otherwise rewind it and refill the lost interval twice once the
// clock recovers. Callers hold the lock.
func (rl *Limiter) refill(b *Bucket) {
	now := rl.now()
	elapsed := now - b.LastRefill
	if elapsed > 0 {
		gained := new(big.Int).Mul(b.RefillPerSecond, big.NewInt(elapsed))
		b.Available.Add(b.Available, gained)
		b.LastRefill = now
	}
	if b.Available.Cmp(b.MaxBurst) > 0 {
		b.Available.Set(b.MaxBurst)
	}
}

// TryConsume refills the chain's bucket and then either subtracts amount
// or rejects with ErrRateLimitExceeded, leaving the bucket untouched.
// There is no partial consumption.
func (rl *Limiter) TryConsume(chain uint32, amount *big.Int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.buckets[chain]
	if b == nil {
		return ErrBucketNotConfigured
	}

	rl.refill(b)
	if b.Available.Cmp(amount) < 0 {
		return ErrRateLimitExceeded
	}
	b.Available.Sub(b.Available, amount)
	return nil
}

// Release credits previously consumed capacity back, clamped to MaxBurst.
// Used to unwind an admission when a later step of the same operation
// fails, keeping failed operations free of partial effects.
func (rl *Limiter) Release(chain uint32, amount *big.Int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.buckets[chain]
	if b == nil {
		return
	}
	b.Available.Add(b.Available, amount)
	if b.Available.Cmp(b.MaxBurst) > 0 {
		b.Available.Set(b.MaxBurst)
	}
}

// Status reports the chain's bucket after a lazy refill, for the
// monitoring read surface.
func (rl *Limiter) Status(chain uint32) (refillPerSecond, maxBurst, available *big.Int, lastRefill int64, err error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.buckets[chain]
	if b == nil {
		return nil, nil, nil, 0, ErrBucketNotConfigured
	}

	rl.refill(b)
	return new(big.Int).Set(b.RefillPerSecond),
		new(big.Int).Set(b.MaxBurst),
		new(big.Int).Set(b.Available),
		b.LastRefill,
		nil
}
