// Copyright 2025 The corvid Authors
// This file is part of corvid.
//
// corvid is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// corvid is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with corvid. If not, see <http://www.gnu.org/licenses/>.

// corvid-poolsim exercises the transaction pool against a simulated chain:
// it floods the pool with interdependent transactions in scrambled order,
// mints blocks from the ready set and finalizes them, logging the pool's
// view along the way.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/corvidchain/corvid/common"
	"github.com/corvidchain/corvid/core/txpool"
	"github.com/corvidchain/corvid/core/types"
	"github.com/corvidchain/corvid/log"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
	accountsFlag = &cli.IntFlag{
		Name:  "accounts",
		Usage: "Number of simulated accounts",
		Value: 8,
	}
	txsFlag = &cli.IntFlag{
		Name:  "txs",
		Usage: "Number of transactions per account",
		Value: 16,
	}
	blockSizeFlag = &cli.IntFlag{
		Name:  "blocksize",
		Usage: "Maximum transactions per minted block",
		Value: 24,
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Submission shuffle seed",
		Value: 42,
	}
	metricsFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Address to serve prometheus metrics on (disabled if empty)",
	}
)

func main() {
	app := &cli.App{
		Name:   "corvid-poolsim",
		Usage:  "run a simulated chain against the transaction pool",
		Flags:  []cli.Flag{verbosityFlag, accountsFlag, txsFlag, blockSizeFlag, seedFlag, metricsFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	usecolor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromVerbosity(ctx.Int(verbosityFlag.Name)), usecolor)
	log.SetDefault(log.NewLogger(handler))

	if addr := ctx.String(metricsFlag.Name); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("Serving metrics", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	chain := newSimChain()
	validator := &simValidator{longevity: 64}
	pool := txpool.New(txpool.DefaultConfig, chain, validator, chain)
	defer pool.Close()

	imports := make(chan common.Hash, 1024)
	sub := pool.SubscribeImportNotifications(imports)
	defer sub.Unsubscribe()

	// Flood the pool with per-account nonce chains in scrambled order, so a
	// good share of the submissions lands in the future partition first.
	var (
		accounts = ctx.Int(accountsFlag.Name)
		perAcct  = ctx.Int(txsFlag.Name)
		rng      = rand.New(rand.NewSource(ctx.Int64(seedFlag.Name)))
		payloads [][]byte
	)
	for a := 0; a < accounts; a++ {
		for n := 0; n < perAcct; n++ {
			payload := fmt.Sprintf("acct%d:%d:%d", a, n, 1+rng.Intn(100))
			payloads = append(payloads, []byte(payload))
		}
	}
	rng.Shuffle(len(payloads), func(i, j int) {
		payloads[i], payloads[j] = payloads[j], payloads[i]
	})
	_, errs := pool.SubmitAll(context.Background(), payloads, types.TxSourceLocal)
	var rejected int
	for _, err := range errs {
		if err != nil {
			rejected++
		}
	}
	status := pool.Status()
	log.Info("Submitted transactions", "count", len(payloads), "rejected", rejected,
		"ready", status.Ready, "future", status.Future)

	// Mint blocks from the ready set until the pool drains.
	blockSize := ctx.Int(blockSizeFlag.Name)
	for !pool.Status().IsEmpty() {
		var (
			it       = pool.Ready()
			body     types.Transactions
			provided types.Tags
		)
		for vt := it.Next(); vt != nil && len(body) < blockSize; vt = it.Next() {
			body = append(body, vt.Tx)
			provided = append(provided, vt.Validity.Provides...)
		}
		if len(body) == 0 {
			log.Warn("Ready set drained with future transactions stuck", "future", pool.Status().Future)
			break
		}
		block := chain.mint(body, provided)
		if err := pool.Sync(); err != nil {
			return err
		}
		chain.finalize(block)
		if err := pool.Sync(); err != nil {
			return err
		}
		status = pool.Status()
		log.Info("Minted block", "number", block.Number, "txs", len(body),
			"ready", status.Ready, "future", status.Future)
	}

	// Drain the import notifications observed along the way.
	var imported int
	for {
		select {
		case <-imports:
			imported++
			continue
		default:
		}
		break
	}
	log.Info("Simulation done", "imports", imported)
	return nil
}
