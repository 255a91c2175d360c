package strategy

import (
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/mev-engine/sandwich-bot/pkg/optimizer"
	"github.com/mev-engine/sandwich-bot/pkg/sandwich"
	"github.com/mev-engine/sandwich-bot/pkg/streams"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// appetizer probes each Buy-direction swap touched by tx at a tiny input,
// drops it unless profit is positive, then runs the optimizer to find the
// most profitable size, keeping only prospects with positive max revenue.
// Always simulates against probeBot's synthesized owner/bot rather than the
// real funded bot, matching appetizer.rs/simulate_sandwich's bot_address:
// None call sites, so probing never depends on the live bot's funding.
// Grounded on original_source/src/sandwich/appetizer.rs::appetizer.
func (l *Loop) appetizer(tx *ethtypes.Transaction, swapInfo []*types.SwapInfo, block *streams.BlockEvent) []*types.Sandwich {
	var prospects []*types.Sandwich

	for _, info := range swapInfo {
		if info.Direction != types.Buy {
			continue
		}

		baseFee := block.NextBaseFee
		maxFee := baseFee

		probe := &types.Sandwich{
			AmountIn: probeFor(info.MainCurrency),
			SwapInfo: info,
			VictimTx: tx,
		}
		batch := &types.BatchSandwich{Sandwiches: []*types.Sandwich{probe}}

		start := time.Now()
		sim, err := sandwich.Simulate(l.pool.Base(), l.probeBot, batch, baseFee, maxFee, nil, nil)
		if l.metrics != nil {
			l.metrics.ObserveSimulation("probe", time.Since(start))
		}
		if err != nil {
			l.log.Warn("appetizer probe simulate failed", zap.Error(err))
			continue
		}
		profitable := sim.Profit != nil && sim.Profit.Sign() > 0
		if l.metrics != nil {
			l.metrics.RecordProbe(profitable)
		}
		if !profitable {
			continue
		}

		ceiling := ceilingFor(info.MainCurrency)
		optimized, err := optimizer.Optimize(l.pool, l.probeBot, probe, baseFee, maxFee, ceiling)
		if err != nil {
			l.log.Warn("appetizer optimize failed", zap.Error(err))
			continue
		}
		if optimized.MaxRevenue == nil || optimized.MaxRevenue.Sign() <= 0 {
			continue
		}

		prospects = append(prospects, &types.Sandwich{
			AmountIn:          optimized.AmountIn,
			SwapInfo:          info,
			VictimTx:          tx,
			OptimizedSandwich: optimized,
		})
	}

	return prospects
}
