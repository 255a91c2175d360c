package strategy

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/mev-engine/sandwich-bot/pkg/alert"
	"github.com/mev-engine/sandwich-bot/pkg/packer"
	"github.com/mev-engine/sandwich-bot/pkg/quote"
	"github.com/mev-engine/sandwich-bot/pkg/sandwich"
	"github.com/mev-engine/sandwich-bot/pkg/streams"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// mainCurrencies is the fixed set of recognized quote currencies a bundle
// may draw capital from.
var mainCurrencies = []quote.Currency{quote.WETH, quote.USDT, quote.USDC}

// mainDish flattens every promising sandwich into a candidate list, packs
// it into progressively larger bundles, double-simulates each bundle to
// derive the bribe and reuse its access lists, and dispatches bundles
// that remain profitable after the bribe is absorbed. Grounded on
// original_source/src/sandwich/main_dish.rs::main_dish.
func (l *Loop) mainDish(ctx context.Context, block *streams.BlockEvent) {
	l.mu.Lock()
	var candidates []*types.Sandwich
	for _, sandwiches := range l.promising {
		candidates = append(candidates, sandwiches...)
	}
	l.mu.Unlock()
	if len(candidates) == 0 {
		return
	}

	balances := l.botBalances()
	batches := packer.Pack(candidates, balances, l.recent)

	baseFee := block.NextBaseFee
	maxFee := baseFee

	// Under Debug, simulate against the synthesized owner/bot the same way
	// the appetizer always does, matching main_dish.rs's (None, None) call
	// when env.debug rather than the real funded bot.
	bot := l.bot
	if l.debug {
		bot = l.probeBot
	}

	for _, batch := range batches {
		id := batch.BundleID()
		l.recent.Add(id)
		if l.metrics != nil {
			l.metrics.RecordBundlePacked()
		}

		start := time.Now()
		first, err := sandwich.Simulate(l.pool.Base(), bot, batch, baseFee, maxFee, nil, nil)
		if l.metrics != nil {
			l.metrics.ObserveSimulation("bribe_discovery", time.Since(start))
		}
		if err != nil || first.Revenue == nil || first.Revenue.Sign() <= 0 {
			if err != nil {
				l.log.Warn("bribe-discovery simulate failed", zap.String("bundle", id), zap.Error(err))
			}
			continue
		}
		bribe := new(big.Int).Div(new(big.Int).Mul(first.Revenue, big.NewInt(bribeBps)), big.NewInt(10000))
		if bribe.Sign() <= 0 {
			continue
		}

		final, err := sandwich.Simulate(l.pool.Base(), bot, batch, baseFee, maxFee, first.FrontAccessList, first.BackAccessList)
		if err != nil {
			l.log.Warn("final simulate failed", zap.String("bundle", id), zap.Error(err))
			continue
		}
		if final.Revenue == nil || final.Revenue.Sign() <= 0 {
			continue
		}

		l.log.Info("dispatching bundle", zap.String("bundle", id), zap.String("revenue", final.Revenue.String()))
		if err := l.alertSink.Send(ctx, id); err != nil {
			l.log.Warn("alert send failed", zap.Error(err))
		}

		results, err := l.dispatcher.Dispatch(ctx, batch, final, baseFee, bribeBps, block.Number, bundleRetries)
		if err != nil {
			l.log.Warn("dispatch failed", zap.String("bundle", id), zap.Error(err))
			if l.metrics != nil {
				l.metrics.RecordDispatch(false, 0)
			}
			continue
		}
		dispatched := false
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			dispatched = true
			msg := alert.BundleSent(block.Number, batch.Sandwiches[0].VictimTx.Hash().Hex(), r.BundleHash)
			if err := l.alertSink.Send(ctx, msg); err != nil {
				l.log.Warn("alert send failed", zap.Error(err))
			}
		}
		if l.metrics != nil {
			revenue, _ := new(big.Float).SetInt(final.Revenue).Float64()
			l.metrics.RecordDispatch(dispatched, revenue)
		}
	}
}

// botBalances reads the bot contract's balance of every recognized quote
// currency, or returns an unbounded balance under Debug mode, matching
// original_source's `if env.debug { U256::MAX }`.
func (l *Loop) botBalances() map[quote.Currency]*big.Int {
	balances := make(map[quote.Currency]*big.Int, len(mainCurrencies))
	for _, mc := range mainCurrencies {
		if l.debug {
			balances[mc] = new(big.Int).Set(unboundedBalance)
			continue
		}
		bal, err := l.pool.Base().GetTokenBalance(mc.Address(), l.botAddress)
		if err != nil {
			bal = big.NewInt(0)
		}
		balances[mc] = bal
	}
	return balances
}
