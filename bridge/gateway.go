// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/event"
	log "github.com/luxfi/log"

	"github.com/luxfi/elastic/auth"
	"github.com/luxfi/elastic/ledger"
	"github.com/luxfi/elastic/ratelimit"
	"github.com/luxfi/elastic/registry"
)

// Config wires a gateway to its collaborators. Ledger's mint/burn
// capability must be held by Self before the gateway can process
// transfers.
type Config struct {
	ChainID   uint32
	Self      common.Address // gateway identity on this deployment
	Ledger    *ledger.Ledger
	Registry  *registry.Registry
	Limiter   *ratelimit.Limiter
	Auth      *auth.Table
	Transport Transport

	// Optional collaborators.
	Invoker    CallInvoker // composable call execution on receive
	NonceStore NonceStore  // persisted replay protection
	Log        log.Logger
}

// Gateway orchestrates outbound sends (validate, rate-limit, encode,
// dispatch) and inbound receives (authenticate, decode, apply) for one
// deployment. Each operation runs to completion under the gateway lock;
// a failed operation leaves no partial state behind.
type Gateway struct {
	mu sync.Mutex

	chainID   uint32
	self      common.Address
	ledger    *ledger.Ledger
	registry  *registry.Registry
	limiter   *ratelimit.Limiter
	authTable *auth.Table
	transport Transport
	invoker   CallInvoker
	nonces    NonceStore
	log       log.Logger
	feed      event.Feed

	// Outbound sequence per destination chain and last applied inbound
	// sequence per source chain. Outbound nonces are committed only after
	// the transport accepts the message, so a failed dispatch never burns
	// a sequence number.
	outNonces   map[uint32]uint64
	lastApplied map[uint32]uint64

	paused bool
}

// NewGateway creates a gateway for one deployment.
func NewGateway(cfg Config) *Gateway {
	logger := cfg.Log
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Gateway{
		chainID:     cfg.ChainID,
		self:        cfg.Self,
		ledger:      cfg.Ledger,
		registry:    cfg.Registry,
		limiter:     cfg.Limiter,
		authTable:   cfg.Auth,
		transport:   cfg.Transport,
		invoker:     cfg.Invoker,
		nonces:      cfg.NonceStore,
		log:         logger,
		outNonces:   make(map[uint32]uint64),
		lastApplied: make(map[uint32]uint64),
	}
}

// ChainID returns the local deployment's chain ID.
func (g *Gateway) ChainID() uint32 { return g.chainID }

// Self returns the gateway identity address.
func (g *Gateway) Self() common.Address { return g.self }

// =========================================================================
// Transfer surface
// =========================================================================

// BridgeTokens debits sender locally and emits a cross-chain message
// crediting recipient on the destination deployment. Returns the message
// ID on success.
func (g *Gateway) BridgeTokens(sender common.Address, destChain uint32, recipient common.Address, amount *big.Int) (common.Hash, error) {
	return g.send(sender, destChain, recipient, amount, common.Address{}, nil, false)
}

// SendWithCall is BridgeTokens with a composable call attached. The router
// uses it to decorate a transfer with destination-side instructions.
func (g *Gateway) SendWithCall(sender common.Address, destChain uint32, recipient common.Address, amount *big.Int, target common.Address, payload []byte, autoExecute bool) (common.Hash, error) {
	return g.send(sender, destChain, recipient, amount, target, payload, autoExecute)
}

func (g *Gateway) send(sender common.Address, destChain uint32, recipient common.Address, amount *big.Int, target common.Address, payload []byte, autoExecute bool) (common.Hash, error) {
	var pending []Event
	defer g.flush(&pending)
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return common.Hash{}, ErrBridgePaused
	}
	// A send to the local chain would re-enter Receive through a
	// synchronous transport while the gateway lock is held.
	if destChain == g.chainID {
		return common.Hash{}, ErrSelfTransfer
	}
	if recipient == (common.Address{}) {
		return common.Hash{}, ledger.ErrZeroAddress
	}

	cfg, err := g.registry.Get(destChain)
	if err != nil {
		return common.Hash{}, err
	}
	if !cfg.Enabled {
		return common.Hash{}, ErrChainDisabled
	}
	if amount == nil || amount.Cmp(cfg.MinAmount) < 0 || amount.Cmp(cfg.MaxAmount) > 0 {
		return common.Hash{}, ErrAmountOutOfBounds
	}
	if g.ledger.BalanceOf(sender).Cmp(amount) < 0 {
		return common.Hash{}, ledger.ErrInsufficientBalance
	}

	if err := g.limiter.TryConsume(destChain, amount); err != nil {
		return common.Hash{}, err
	}

	if err := g.ledger.Burn(g.self, sender, amount); err != nil {
		g.limiter.Release(destChain, amount)
		return common.Hash{}, err
	}

	msg := &Message{
		Kind:           KindTransfer,
		SourceChain:    g.chainID,
		DestChain:      destChain,
		Nonce:          g.outNonces[destChain] + 1,
		Sender:         g.self,
		Recipient:      recipient,
		Amount:         amount,
		TargetContract: target,
		CallPayload:    payload,
		AutoExecute:    autoExecute,
	}
	id, err := g.dispatch(msg)
	if err != nil {
		// Unwind the debit and the admitted capacity. The index cannot
		// have moved under the gateway lock, so the re-mint restores the
		// exact share delta.
		_ = g.ledger.Mint(g.self, sender, amount)
		g.limiter.Release(destChain, amount)
		return common.Hash{}, err
	}

	if ev, ok := g.rateLimitApplied(destChain, amount); ok {
		pending = append(pending, ev)
	}
	pending = append(pending, Event{
		Type:      EventTransferSent,
		Chain:     destChain,
		MessageID: id,
		Sender:    sender,
		Recipient: recipient,
		Amount:    new(big.Int).Set(amount),
	})
	g.log.Info("transfer sent", "dest", destChain, "recipient", recipient, "amount", amount, "id", id)
	return id, nil
}

// DispatchBatch emits one message crediting every recipient in the batch.
// Rate-limit capacity was reserved when the batch was created, so none is
// consumed here. Implements the batch engine's dispatcher.
func (g *Gateway) DispatchBatch(creator common.Address, destChain uint32, batchID uint64, recipients []common.Address, amounts []*big.Int, total *big.Int) (common.Hash, error) {
	var pending []Event
	defer g.flush(&pending)
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return common.Hash{}, ErrBridgePaused
	}
	if destChain == g.chainID {
		return common.Hash{}, ErrSelfTransfer
	}
	cfg, err := g.registry.Get(destChain)
	if err != nil {
		return common.Hash{}, err
	}
	if !cfg.Enabled {
		return common.Hash{}, ErrChainDisabled
	}
	if g.ledger.BalanceOf(creator).Cmp(total) < 0 {
		return common.Hash{}, ledger.ErrInsufficientBalance
	}
	if err := g.ledger.Burn(g.self, creator, total); err != nil {
		return common.Hash{}, err
	}

	msg := &Message{
		Kind:        KindBatch,
		SourceChain: g.chainID,
		DestChain:   destChain,
		Nonce:       g.outNonces[destChain] + 1,
		Sender:      g.self,
		Recipients:  recipients,
		Amounts:     amounts,
	}
	id, err := g.dispatch(msg)
	if err != nil {
		_ = g.ledger.Mint(g.self, creator, total)
		return common.Hash{}, err
	}

	pending = append(pending, Event{
		Type:      EventBatchExecuted,
		Chain:     destChain,
		MessageID: id,
		BatchID:   batchID,
		Sender:    creator,
		Amount:    new(big.Int).Set(total),
	})
	g.log.Info("batch dispatched", "dest", destChain, "batch", batchID, "transfers", len(recipients), "total", total, "id", id)
	return id, nil
}

// dispatch encodes the message, hands it to the transport and commits the
// outbound nonce. Callers hold the gateway lock.
func (g *Gateway) dispatch(msg *Message) (common.Hash, error) {
	payload, err := Encode(msg)
	if err != nil {
		return common.Hash{}, err
	}
	if err := g.transport.Send(msg.DestChain, payload); err != nil {
		return common.Hash{}, err
	}
	g.outNonces[msg.DestChain] = msg.Nonce
	return MessageID(payload), nil
}

// Receive authenticates, decodes and applies one inbound message. A
// message whose nonce does not exceed the last applied nonce for its
// source chain is rejected as a replay rather than silently dropped, so a
// replay can never double-credit.
func (g *Gateway) Receive(payload []byte) error {
	var pending []Event
	defer g.flush(&pending)
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return ErrBridgePaused
	}

	msg, err := Decode(payload)
	if err != nil {
		return err
	}
	if msg.DestChain != g.chainID {
		return ErrInvalidMessage
	}

	cfg, err := g.registry.Get(msg.SourceChain)
	if err != nil || !cfg.Enabled {
		return ErrUnauthorizedSender
	}
	if msg.Sender != cfg.Receiver {
		return ErrUnauthorizedSender
	}
	if msg.Nonce <= g.lastApplied[msg.SourceChain] {
		return ErrDuplicateMessage
	}

	switch msg.Kind {
	case KindTransfer:
		if err := g.applyTransfer(msg, &pending); err != nil {
			return err
		}
	case KindBatch:
		// Validate every entry before the first credit so a bad entry
		// cannot leave the batch half applied.
		for i, rcpt := range msg.Recipients {
			if rcpt == (common.Address{}) {
				return ledger.ErrZeroAddress
			}
			if msg.Amounts[i].Sign() <= 0 {
				return ErrInvalidMessage
			}
		}
		for i, rcpt := range msg.Recipients {
			if err := g.ledger.Mint(g.self, rcpt, msg.Amounts[i]); err != nil {
				return err
			}
		}
	}

	g.lastApplied[msg.SourceChain] = msg.Nonce
	if g.nonces != nil {
		if err := g.nonces.SaveAppliedNonce(msg.SourceChain, msg.Nonce); err != nil {
			g.log.Error("failed to persist applied nonce", "source", msg.SourceChain, "nonce", msg.Nonce, "err", err)
		}
	}

	pending = append(pending, Event{
		Type:      EventTransferReceived,
		Chain:     msg.SourceChain,
		MessageID: MessageID(payload),
		Recipient: msg.Recipient,
		Amount:    totalAmount(msg),
	})
	g.log.Info("transfer received", "source", msg.SourceChain, "nonce", msg.Nonce)
	return nil
}

func (g *Gateway) applyTransfer(msg *Message, pending *[]Event) error {
	if err := g.ledger.Mint(g.self, msg.Recipient, msg.Amount); err != nil {
		return err
	}

	// Composable call. The credit above is final: transfer and call are
	// not atomic across chains, a failed call leaves the credit in place.
	if len(msg.CallPayload) > 0 && msg.AutoExecute && g.invoker != nil {
		if err := g.invoker.Invoke(msg.TargetContract, msg.CallPayload, msg.Amount); err != nil {
			*pending = append(*pending, Event{
				Type:      EventComposableCallFail,
				Chain:     msg.SourceChain,
				Recipient: msg.TargetContract,
				Amount:    new(big.Int).Set(msg.Amount),
				Reason:    err.Error(),
			})
			g.log.Warn("composable call failed", "target", msg.TargetContract, "err", err)
		}
	}
	return nil
}

func totalAmount(msg *Message) *big.Int {
	if msg.Kind == KindTransfer {
		return new(big.Int).Set(msg.Amount)
	}
	total := new(big.Int)
	for _, a := range msg.Amounts {
		total.Add(total, a)
	}
	return total
}

// =========================================================================
// Operator surface
// =========================================================================

// ConfigureChain creates or updates a destination chain entry. Restricted
// to the configure capability.
func (g *Gateway) ConfigureChain(caller common.Address, chain uint32, cfg registry.ChainConfig) error {
	if err := g.authTable.Authorize(caller, auth.CapConfigure); err != nil {
		return err
	}
	if err := g.registry.Configure(chain, cfg); err != nil {
		return err
	}
	g.emit(Event{Type: EventChainConfigured, Chain: chain})
	g.log.Info("chain configured", "chain", chain, "enabled", cfg.Enabled, "receiver", cfg.Receiver)
	return nil
}

// DisableChain stops admitting transfers toward a chain. Restricted to the
// configure capability.
func (g *Gateway) DisableChain(caller common.Address, chain uint32) error {
	if err := g.authTable.Authorize(caller, auth.CapConfigure); err != nil {
		return err
	}
	if err := g.registry.Disable(chain); err != nil {
		return err
	}
	g.emit(Event{Type: EventChainDisabled, Chain: chain})
	g.log.Info("chain disabled", "chain", chain)
	return nil
}

// SetRateLimit resets a chain's token bucket. Restricted to the configure
// capability.
func (g *Gateway) SetRateLimit(caller common.Address, chain uint32, refillPerSecond, maxBurst *big.Int) error {
	if err := g.authTable.Authorize(caller, auth.CapConfigure); err != nil {
		return err
	}
	if err := g.limiter.Configure(chain, refillPerSecond, maxBurst); err != nil {
		return err
	}
	g.emit(Event{Type: EventRateLimitConfigured, Chain: chain})
	g.log.Info("rate limit configured", "chain", chain, "refill", refillPerSecond, "burst", maxBurst)
	return nil
}

// Rebase rescales the ledger index by percentBps. The gateway holds the
// ledger's mint capability, so supply adjustments route through here and
// are restricted to the rebase capability.
func (g *Gateway) Rebase(caller common.Address, percentBps int64) error {
	if err := g.authTable.Authorize(caller, auth.CapRebase); err != nil {
		return err
	}
	if err := g.ledger.Rebase(g.self, percentBps); err != nil {
		return err
	}
	g.log.Info("rebase applied", "bps", percentBps, "index", g.ledger.Index())
	return nil
}

// Pause stops both outbound sends and inbound applies. Restricted to the
// pause capability.
func (g *Gateway) Pause(caller common.Address) error {
	if err := g.authTable.Authorize(caller, auth.CapPause); err != nil {
		return err
	}
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
	g.emit(Event{Type: EventPaused})
	g.log.Warn("bridge paused", "by", caller)
	return nil
}

// Unpause resumes operation. Restricted to the pause capability.
func (g *Gateway) Unpause(caller common.Address) error {
	if err := g.authTable.Authorize(caller, auth.CapPause); err != nil {
		return err
	}
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()
	g.emit(Event{Type: EventUnpaused})
	g.log.Info("bridge unpaused", "by", caller)
	return nil
}

// =========================================================================
// Read surface
// =========================================================================

// Paused reports whether the bridge is paused.
func (g *Gateway) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// RateLimitStatus reports the bucket state for a chain.
func (g *Gateway) RateLimitStatus(chain uint32) (refillPerSecond, maxBurst, available *big.Int, lastRefill int64, err error) {
	return g.limiter.Status(chain)
}

// ChainConfig returns the registry entry for a chain.
func (g *Gateway) ChainConfig(chain uint32) (registry.ChainConfig, error) {
	return g.registry.Get(chain)
}

// OutboundNonce returns the last committed outbound nonce for a
// destination chain, zero if none was ever sent.
func (g *Gateway) OutboundNonce(chain uint32) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outNonces[chain]
}

// LastAppliedNonce returns the last applied inbound nonce for a source
// chain, zero if nothing was received.
func (g *Gateway) LastAppliedNonce(chain uint32) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastApplied[chain]
}

// RestoreAppliedNonce seeds replay protection from persisted state, used
// when reconstructing a deployment from the store. Later nonces win.
func (g *Gateway) RestoreAppliedNonce(chain uint32, nonce uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if nonce > g.lastApplied[chain] {
		g.lastApplied[chain] = nonce
	}
}

func (g *Gateway) rateLimitApplied(chain uint32, consumed *big.Int) (Event, bool) {
	_, _, available, _, err := g.limiter.Status(chain)
	if err != nil {
		return Event{}, false
	}
	return Event{
		Type:      EventRateLimitApplied,
		Chain:     chain,
		Consumed:  new(big.Int).Set(consumed),
		Remaining: available,
	}, true
}

// flush delivers events collected during a locked operation. It runs as a
// deferred call registered before the lock is taken, so delivery happens
// after the lock is released and a slow subscriber can never stall the
// gateway.
func (g *Gateway) flush(pending *[]Event) {
	for _, ev := range *pending {
		g.feed.Send(ev)
	}
}
