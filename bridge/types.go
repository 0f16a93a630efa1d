// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
)

// Message kinds on the wire.
const (
	KindTransfer byte = 1 // single recipient/amount
	KindBatch    byte = 2 // recipient/amount list
)

// Message is the cross-chain wire entity. It is produced by the sending
// deployment, carried opaquely by the transport, and consumed exactly once
// by the receiving deployment (replay-protected by nonce).
type Message struct {
	Kind        byte
	SourceChain uint32
	DestChain   uint32
	Nonce       uint64 // strictly increasing per source->dest pair
	Sender      common.Address

	// KindTransfer fields.
	Recipient common.Address
	Amount    *big.Int

	// KindBatch fields.
	Recipients []common.Address
	Amounts    []*big.Int

	// Optional composable call, KindTransfer only.
	TargetContract common.Address
	CallPayload    []byte
	AutoExecute    bool
}

// Bridge errors.
var (
	ErrChainDisabled      = errors.New("destination chain disabled")
	ErrSelfTransfer       = errors.New("destination is the local chain")
	ErrAmountOutOfBounds  = errors.New("amount outside configured bounds")
	ErrAmountOverflow     = errors.New("amount exceeds 256 bits")
	ErrUnauthorizedSender = errors.New("unauthorized message sender")
	ErrDuplicateMessage   = errors.New("duplicate or stale message nonce")
	ErrInvalidMessage     = errors.New("malformed bridge message")
	ErrBridgePaused       = errors.New("bridge is paused")
	ErrDispatchFailed     = errors.New("message dispatch failed")
)

// Transport hands an encoded message to the external message-passing
// network. Delivery guarantees live outside this core: the payload is
// treated as reliable once the transport acknowledges it.
type Transport interface {
	Send(destChain uint32, payload []byte) error
}

// CallInvoker executes a composable call on the local deployment after a
// credited transfer. A failed invocation never unwinds the credit.
type CallInvoker interface {
	Invoke(target common.Address, payload []byte, amount *big.Int) error
}

// NonceStore persists the last-applied inbound nonce per source chain so
// replay protection survives a restart. Optional on the gateway.
type NonceStore interface {
	SaveAppliedNonce(sourceChain uint32, nonce uint64) error
}
