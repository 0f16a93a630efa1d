// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

var ErrUnknownRoute = errors.New("unknown composable route")

// ComposableRoute associates a reusable identifier with a destination-side
// call, so a transfer can carry instructions for what happens on arrival.
// CallPayload is opaque to the router.
type ComposableRoute struct {
	RouteID        [32]byte
	TargetChain    uint32
	TargetContract common.Address
	CallPayload    []byte
	AutoExecute    bool
}

// Sender is the bridge send path a route forwards into. Implemented by the
// bridge gateway.
type Sender interface {
	SendWithCall(sender common.Address, destChain uint32, recipient common.Address, amount *big.Int, target common.Address, payload []byte, autoExecute bool) (common.Hash, error)
}

// Router stores composable routes keyed by route ID. Routes are mutable
// configuration: setting an existing ID overwrites it.
type Router struct {
	mu     sync.RWMutex
	routes map[[32]byte]*ComposableRoute
	sender Sender
}

// New creates a router forwarding into the given send path.
func New(sender Sender) *Router {
	return &Router{
		routes: make(map[[32]byte]*ComposableRoute),
		sender: sender,
	}
}

// RouteID derives the canonical route identifier for a target.
func RouteID(targetChain uint32, targetContract common.Address) [32]byte {
	h := blake3.New()
	h.Write([]byte{
		byte(targetChain >> 24), byte(targetChain >> 16),
		byte(targetChain >> 8), byte(targetChain),
	})
	h.Write(targetContract.Bytes())
	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// SetRoute creates or overwrites a route. The payload is stored as given;
// its contents are not validated.
func (r *Router) SetRoute(routeID [32]byte, targetChain uint32, targetContract common.Address, callPayload []byte, autoExecute bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[routeID] = &ComposableRoute{
		RouteID:        routeID,
		TargetChain:    targetChain,
		TargetContract: targetContract,
		CallPayload:    append([]byte(nil), callPayload...),
		AutoExecute:    autoExecute,
	}
}

// Route returns a copy of the stored route.
func (r *Router) Route(routeID [32]byte) (ComposableRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt := r.routes[routeID]
	if rt == nil {
		return ComposableRoute{}, ErrUnknownRoute
	}
	out := *rt
	out.CallPayload = append([]byte(nil), rt.CallPayload...)
	return out, nil
}

// ExecuteComposableCall sends amount toward the route's target contract
// with the stored payload attached. On the destination, crediting happens
// first; if the attached call then fails, the credit is not rolled back.
func (r *Router) ExecuteComposableCall(sender common.Address, routeID [32]byte, amount *big.Int) (common.Hash, error) {
	r.mu.RLock()
	rt := r.routes[routeID]
	r.mu.RUnlock()

	if rt == nil {
		return common.Hash{}, ErrUnknownRoute
	}
	return r.sender.SendWithCall(sender, rt.TargetChain, rt.TargetContract, amount, rt.TargetContract, rt.CallPayload, rt.AutoExecute)
}
