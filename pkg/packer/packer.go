// Package packer builds progressively larger bundles out of promising
// sandwich candidates, clamped to the bot's available per-currency balance,
// grounded on spec.md §4.G (original_source carries the same shape split
// across main_dish.rs and strategy.rs, with no single dedicated file).
package packer

import (
	"math/big"
	"sort"

	"github.com/mev-engine/sandwich-bot/pkg/quote"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// score is a candidate's capital-efficiency score, max_revenue/amount_in as
// a float64. The division is deliberately float, not fixed-point: mixing
// 18-decimal WETH amounts with 6-decimal stablecoin amounts in integer math
// would rank every WETH candidate below every stablecoin one regardless of
// real profitability, so this biases ordering toward stable pairs exactly
// as spec.md §4.G describes. Requires candidate.AmountIn and
// candidate.OptimizedSandwich to already hold the optimizer's chosen size
// and max revenue.
func score(s *types.Sandwich) float64 {
	if s.OptimizedSandwich == nil || s.AmountIn == nil || s.AmountIn.Sign() == 0 {
		return 0
	}
	rev := new(big.Float).SetInt(s.OptimizedSandwich.MaxRevenue)
	amt := new(big.Float).SetInt(s.AmountIn)
	f, _ := new(big.Float).Quo(rev, amt).Float64()
	return f
}

func cloneBalances(balances map[quote.Currency]*big.Int) map[quote.Currency]*big.Int {
	out := make(map[quote.Currency]*big.Int, len(balances))
	for c, b := range balances {
		out[c] = new(big.Int).Set(b)
	}
	return out
}

// Pack sorts candidates by descending capital-efficiency score and produces
// one bundle per prefix length (the k-th bundle holds the top k+1
// candidates), clamping each bundle's per-candidate amount_in to a working
// copy of balances walked in order, and dropping any bundle whose
// bundle_id is present in recent. Candidates are not mutated; clamped
// copies are produced via Sandwich.Clone.
func Pack(candidates []*types.Sandwich, balances map[quote.Currency]*big.Int, recent *RecentBundles) []*types.BatchSandwich {
	if len(candidates) == 0 {
		return nil
	}

	ranked := append([]*types.Sandwich{}, candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i]) > score(ranked[j])
	})

	bundles := make([]*types.BatchSandwich, 0, len(ranked))
	for k := 1; k <= len(ranked); k++ {
		remaining := cloneBalances(balances)
		clamped := make([]*types.Sandwich, 0, k)
		for _, s := range ranked[:k] {
			mc := s.SwapInfo.MainCurrency
			bal, ok := remaining[mc]
			if !ok {
				bal = big.NewInt(0)
			}
			amt := new(big.Int).Set(s.AmountIn)
			if amt.Cmp(bal) > 0 {
				amt = new(big.Int).Set(bal)
			}
			remaining[mc] = new(big.Int).Sub(bal, amt)
			clamped = append(clamped, s.Clone(amt))
		}

		batch := &types.BatchSandwich{Sandwiches: clamped}
		id := batch.BundleID()
		if recent.Contains(id) {
			continue
		}
		bundles = append(bundles, batch)
	}
	return bundles
}
