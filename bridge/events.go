// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/event"
)

// EventType tags observability events emitted by the gateway.
type EventType string

const (
	EventChainConfigured     EventType = "chain_configured"
	EventChainDisabled       EventType = "chain_disabled"
	EventRateLimitConfigured EventType = "rate_limit_configured"
	EventRateLimitApplied    EventType = "rate_limit_applied"
	EventTransferSent        EventType = "transfer_sent"
	EventTransferReceived    EventType = "transfer_received"
	EventBatchExecuted       EventType = "batch_executed"
	EventComposableCallFail  EventType = "composable_call_failed"
	EventPaused              EventType = "paused"
	EventUnpaused            EventType = "unpaused"
)

// Event is one observability record. Fields are sparse; only the ones
// meaningful for the given Type are set.
type Event struct {
	Type      EventType
	Chain     uint32
	MessageID common.Hash
	BatchID   uint64
	Sender    common.Address
	Recipient common.Address
	Amount    *big.Int

	// EventRateLimitApplied.
	Consumed  *big.Int
	Remaining *big.Int

	// EventComposableCallFail.
	Reason string
}

// SubscribeEvents delivers gateway events to ch until the subscription is
// unsubscribed. Events are delivered after the emitting operation releases
// the gateway lock, so a slow subscriber delays event delivery but never
// blocks gateway operations.
func (g *Gateway) SubscribeEvents(ch chan<- Event) event.Subscription {
	return g.feed.Subscribe(ch)
}

func (g *Gateway) emit(ev Event) {
	g.feed.Send(ev)
}
