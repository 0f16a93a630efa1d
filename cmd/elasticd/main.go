// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command elasticd runs a local multi-deployment bridge simulation: it
// builds one gateway per configured chain, wires them over the loopback
// transport, and drives a demonstration transfer so operators can sanity
// check a configuration file before rollout.
package main

import (
	"flag"
	"math/big"
	"os"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/elastic/auth"
	"github.com/luxfi/elastic/batch"
	"github.com/luxfi/elastic/bridge"
	"github.com/luxfi/elastic/config"
	"github.com/luxfi/elastic/ledger"
	"github.com/luxfi/elastic/ratelimit"
	"github.com/luxfi/elastic/registry"
	"github.com/luxfi/elastic/router"
	"github.com/luxfi/elastic/store"
)

type deployment struct {
	gateway *bridge.Gateway
	ledger  *ledger.Ledger
	store   *store.Store
	batches *batch.Engine
	routes  *router.Router
}

func main() {
	cfgPath := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()

	logger := log.NewTestLogger(log.InfoLevel)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", *cfgPath, "err", err)
		os.Exit(1)
	}
	self, err := cfg.GatewayAddress()
	if err != nil {
		logger.Error("invalid gateway address", "err", err)
		os.Exit(1)
	}
	operator, err := cfg.OperatorAddress()
	if err != nil {
		logger.Error("invalid operator address", "err", err)
		os.Exit(1)
	}

	lb := bridge.NewLoopback()

	local := newDeployment(cfg.ChainID, self, operator, lb, logger)
	if err := cfg.Apply(local.gateway, operator); err != nil {
		logger.Error("failed to apply configuration", "err", err)
		os.Exit(1)
	}

	// Stand up a counterpart deployment per configured chain, each
	// trusting the local gateway back with mirrored bounds.
	for _, entry := range cfg.Chains {
		receiver := common.HexToAddress(entry.Receiver)
		peer := newDeployment(entry.ID, receiver, operator, lb, logger)

		minAmount, _ := new(big.Int).SetString(entry.MinAmount, 10)
		maxAmount, _ := new(big.Int).SetString(entry.MaxAmount, 10)
		refill, _ := new(big.Int).SetString(entry.RefillPerSecond, 10)
		burst, _ := new(big.Int).SetString(entry.MaxBurst, 10)

		err := peer.gateway.ConfigureChain(operator, cfg.ChainID, registry.ChainConfig{
			Enabled:   true,
			Receiver:  self,
			MinAmount: minAmount,
			MaxAmount: maxAmount,
		})
		if err == nil {
			err = peer.gateway.SetRateLimit(operator, cfg.ChainID, refill, burst)
		}
		if err != nil {
			logger.Error("failed to configure counterpart", "chain", entry.ID, "err", err)
			os.Exit(1)
		}

		runDemo(local, peer, entry.ID, minAmount, maxAmount, logger)
	}
}

func newDeployment(chainID uint32, self, operator common.Address, lb *bridge.Loopback, logger log.Logger) *deployment {
	ldg := ledger.New(self)
	st := store.New(memdb.New())
	reg := registry.New()
	rl := ratelimit.NewLimiter()
	gw := bridge.NewGateway(bridge.Config{
		ChainID:    chainID,
		Self:       self,
		Ledger:     ldg,
		Registry:   reg,
		Limiter:    rl,
		Auth:       auth.NewTable(operator),
		Transport:  lb,
		NonceStore: st,
		Log:        logger,
	})
	lb.Attach(chainID, gw)
	return &deployment{
		gateway: gw,
		ledger:  ldg,
		store:   st,
		batches: batch.NewEngine(reg, rl, gw),
		routes:  router.New(gw),
	}
}

// runDemo funds a holder on the local deployment, bridges the chain's
// maximum single amount to the peer, follows up with a small batch and a
// composable call, and reports both sides.
func runDemo(local, peer *deployment, peerChain uint32, minAmount, maxAmount *big.Int, logger log.Logger) {
	holder := common.HexToAddress("0x00000000000000000000000000000000000000AA")

	seed := new(big.Int).Mul(maxAmount, big.NewInt(4))
	if err := local.ledger.Mint(local.gateway.Self(), holder, seed); err != nil {
		logger.Error("seeding holder failed", "err", err)
		return
	}

	id, err := local.gateway.BridgeTokens(holder, peerChain, holder, maxAmount)
	if err != nil {
		logger.Error("demo transfer failed", "dest", peerChain, "err", err)
		return
	}
	logger.Info("demo transfer applied",
		"dest", peerChain,
		"id", id,
		"local_balance", local.ledger.BalanceOf(holder),
		"remote_balance", peer.ledger.BalanceOf(holder),
		"remote_supply", peer.ledger.TotalSupply(),
	)

	// Batch: two minimum-size transfers to distinct recipients.
	recipients := []common.Address{
		common.HexToAddress("0x00000000000000000000000000000000000000B1"),
		common.HexToAddress("0x00000000000000000000000000000000000000B2"),
	}
	batchID, err := local.batches.CreateBatch(holder, peerChain, recipients, []*big.Int{minAmount, minAmount})
	if err != nil {
		logger.Error("demo batch create failed", "dest", peerChain, "err", err)
		return
	}
	if _, err := local.batches.ExecuteBatch(batchID); err != nil {
		logger.Error("demo batch execute failed", "batch", batchID, "err", err)
		return
	}
	logger.Info("demo batch applied", "batch", batchID, "recipients", len(recipients))

	// Composable call: route toward a contract on the peer; with no
	// invoker wired the credit still lands.
	target := common.HexToAddress("0x00000000000000000000000000000000000000CC")
	routeID := router.RouteID(peerChain, target)
	local.routes.SetRoute(routeID, peerChain, target, []byte{0x01}, true)
	if _, err := local.routes.ExecuteComposableCall(holder, routeID, minAmount); err != nil {
		logger.Error("demo composable call failed", "err", err)
		return
	}
	logger.Info("demo composable call applied", "target", target, "credited", peer.ledger.BalanceOf(target))

	if err := local.store.SaveLedger(local.ledger.Snapshot()); err != nil {
		logger.Error("persisting local ledger failed", "err", err)
	}
	if err := peer.store.SaveLedger(peer.ledger.Snapshot()); err != nil {
		logger.Error("persisting peer ledger failed", "err", err)
	}
}
