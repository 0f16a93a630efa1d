// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"errors"
	"sync"
)

var ErrNoRoute = errors.New("no transport route to destination chain")

// Loopback is an in-process transport connecting gateways directly, used
// by tests and the simulator. Delivery is synchronous: Send returns the
// receiver's error, which models a transport-level rejection. Replay and
// authentication failures on the receiving side are still the receiver's
// own errors.
type Loopback struct {
	mu    sync.RWMutex
	peers map[uint32]*Gateway
}

// NewLoopback creates an empty loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{peers: make(map[uint32]*Gateway)}
}

// Attach registers the gateway serving a chain ID.
func (lb *Loopback) Attach(chain uint32, gw *Gateway) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.peers[chain] = gw
}

// Send delivers the payload to the destination gateway.
func (lb *Loopback) Send(destChain uint32, payload []byte) error {
	lb.mu.RLock()
	peer := lb.peers[destChain]
	lb.mu.RUnlock()

	if peer == nil {
		return ErrNoRoute
	}
	return peer.Receive(payload)
}

// FailingTransport always rejects, for exercising dispatch rollback.
type FailingTransport struct{}

func (FailingTransport) Send(uint32, []byte) error { return ErrDispatchFailed }
