package packer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/mev-engine/sandwich-bot/pkg/quote"
	"github.com/mev-engine/sandwich-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeCandidate(nonce uint64, amountIn int64) *types.Sandwich {
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: nonce, GasPrice: big.NewInt(1), Gas: 21000})
	amt := big.NewInt(amountIn)
	return &types.Sandwich{
		AmountIn: amt,
		VictimTx: tx,
		SwapInfo: &types.SwapInfo{
			TxHash:       tx.Hash(),
			TargetPair:   common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd"),
			MainCurrency: quote.WETH,
			TargetToken:  common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"),
			Version:      types.UniswapV2,
			Token0IsMain: true,
			Direction:    types.Buy,
		},
		// revenue scales with amount_in, so every candidate scores equally
		// and the stable sort preserves submission order — isolating the
		// balance-clamp behavior under test from the scoring order.
		OptimizedSandwich: &types.OptimizedSandwich{MaxRevenue: big.NewInt(amountIn * 10)},
	}
}

func TestPack_ClampsProgressiveBundlesToBalance(t *testing.T) {
	candidates := []*types.Sandwich{
		makeCandidate(1, 30),
		makeCandidate(2, 40),
		makeCandidate(3, 50),
	}
	balances := map[quote.Currency]*big.Int{quote.WETH: big.NewInt(60)}
	recent := NewRecentBundles(30)

	bundles := Pack(candidates, balances, recent)
	require.Len(t, bundles, 3)

	amountsOf := func(b *types.BatchSandwich) []int64 {
		var out []int64
		for _, s := range b.Sandwiches {
			out = append(out, s.AmountIn.Int64())
		}
		return out
	}

	assert.Equal(t, []int64{30}, amountsOf(bundles[0]))
	assert.Equal(t, []int64{30, 30}, amountsOf(bundles[1]))
	assert.Equal(t, []int64{30, 30, 0}, amountsOf(bundles[2]))
}

func TestPack_SkipsBundleSeenInRecentDeque(t *testing.T) {
	candidates := []*types.Sandwich{makeCandidate(1, 10)}
	balances := map[quote.Currency]*big.Int{quote.WETH: big.NewInt(100)}
	recent := NewRecentBundles(30)

	first := Pack(candidates, balances, recent)
	require.Len(t, first, 1)
	recent.Add(first[0].BundleID())

	second := Pack(candidates, balances, recent)
	assert.Empty(t, second)
}

func TestRecentBundles_EvictsOldestPastCapacity(t *testing.T) {
	r := NewRecentBundles(2)
	r.Add("a")
	r.Add("b")
	require.True(t, r.Contains("a"))
	r.Add("c")
	assert.False(t, r.Contains("a"))
	assert.True(t, r.Contains("b"))
	assert.True(t, r.Contains("c"))
}
