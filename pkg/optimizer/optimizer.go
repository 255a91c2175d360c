// Package optimizer searches for the frontrun size that maximizes a
// candidate sandwich's revenue, grounded on original_source/src/sandwich/
// simulation.rs::Sandwich::optimize/simulate_sandwich.
package optimizer

import (
	"math/big"
	"sync"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/mev-engine/sandwich-bot/pkg/quote"
	"github.com/mev-engine/sandwich-bot/pkg/sandwich"
	"github.com/mev-engine/sandwich-bot/pkg/simulation"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// gridPoints is the number of probes per bisection round, matching the
// original's 11-point grid.
const gridPoints = 11

// wethTolerance and stableTolerance bound the bisection's stopping step, in
// the respective currency's smallest unit, matching spec.md §4.F.
var (
	wethTolerance   = big.NewInt(100_000_000_000_000) // 1e14 wei
	stableTolerance = big.NewInt(1_000)                // 1e3 units
)

func tolerance(mc quote.Currency) *big.Int {
	if mc.IsWETH() {
		return wethTolerance
	}
	return stableTolerance
}

type probe struct {
	amountIn *big.Int
	sim      *types.SimulatedSandwich
}

// Optimize narrows candidate's AmountIn to the value maximizing revenue,
// probing 11 evenly-spaced points between 0 and ceiling each round and
// re-centering the bracket on the neighbors of the best probe, stopping
// once the bracket's width divided by 10 falls within the main currency's
// tolerance, matching simulation.rs::optimize's `diff / 10.0 <= tolerance`
// check at the top of its loop.
// Access lists derived from the first round's best probe are reused in
// every later round, so only the opening round pays for fresh tracing.
func Optimize(pool *simulation.Pool, bot sandwich.Bot, candidate *types.Sandwich, baseFee, maxFee, ceiling *big.Int) (*types.OptimizedSandwich, error) {
	min := big.NewInt(0)
	max := new(big.Int).Set(ceiling)
	tol := tolerance(candidate.SwapInfo.MainCurrency)

	var frontAL, backAL ethtypes.AccessList
	var best *types.SimulatedSandwich
	bestAmount := big.NewInt(0)

	for {
		diff := new(big.Int).Sub(max, min)
		if new(big.Int).Div(diff, big.NewInt(10)).Cmp(tol) <= 0 && best != nil {
			break
		}

		step := new(big.Int).Div(diff, big.NewInt(gridPoints-1))
		if step.Sign() == 0 {
			step = big.NewInt(1)
		}

		amounts := make([]*big.Int, gridPoints)
		for i := 0; i < gridPoints; i++ {
			amounts[i] = new(big.Int).Add(min, new(big.Int).Mul(step, big.NewInt(int64(i))))
		}

		results := make([]*probe, gridPoints)
		var wg sync.WaitGroup
		for i, amt := range amounts {
			wg.Add(1)
			go func(i int, amt *big.Int) {
				defer wg.Done()
				batch := &types.BatchSandwich{Sandwiches: []*types.Sandwich{candidate.Clone(amt)}}
				res, err := sandwich.Simulate(pool.Acquire(), bot, batch, baseFee, maxFee, frontAL, backAL)
				if err != nil {
					return
				}
				results[i] = &probe{amountIn: amt, sim: res}
			}(i, amt)
		}
		wg.Wait()

		bestIdx := -1
		for i, r := range results {
			if r == nil {
				continue
			}
			if bestIdx == -1 || r.sim.Revenue.Cmp(results[bestIdx].sim.Revenue) > 0 {
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			return &types.OptimizedSandwich{AmountIn: big.NewInt(0), MaxRevenue: big.NewInt(0)}, nil
		}

		best = results[bestIdx].sim
		bestAmount = results[bestIdx].amountIn
		if frontAL == nil {
			frontAL = best.FrontAccessList
			backAL = best.BackAccessList
		}

		lo := bestIdx - 1
		if lo < 0 {
			lo = 0
		}
		hi := bestIdx + 1
		if hi >= gridPoints {
			hi = gridPoints - 1
		}
		min, max = amounts[lo], amounts[hi]
	}

	return &types.OptimizedSandwich{
		AmountIn:        bestAmount,
		MaxRevenue:      best.Revenue,
		FrontGasUsed:    best.FrontGasUsed,
		BackGasUsed:     best.BackGasUsed,
		FrontAccessList: best.FrontAccessList,
		BackAccessList:  best.BackAccessList,
		FrontCalldata:   best.FrontCalldata,
		BackCalldata:    best.BackCalldata,
	}, nil
}
