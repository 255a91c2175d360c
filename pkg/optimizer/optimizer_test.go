package optimizer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/mev-engine/sandwich-bot/pkg/quote"
	"github.com/mev-engine/sandwich-bot/pkg/sandwich"
	"github.com/mev-engine/sandwich-bot/pkg/simulation"
	"github.com/mev-engine/sandwich-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate() *types.Sandwich {
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 0, GasPrice: big.NewInt(1), Gas: 21000})
	return &types.Sandwich{
		AmountIn: big.NewInt(0),
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
	}
}

func TestOptimize_ConvergesWithinCeiling(t *testing.T) {
	owner := common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")
	pool := simulation.NewPool(nil, nil, big.NewInt(1), owner)
	bot := sandwich.Bot{Owner: owner}
	ceiling := big.NewInt(1_000_000_000_000_000_000) // 1 WETH

	result, err := Optimize(pool, bot, candidate(), big.NewInt(1), big.NewInt(2), ceiling)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.AmountIn.Sign() >= 0)
	assert.True(t, result.AmountIn.Cmp(ceiling) <= 0)
	assert.NotNil(t, result.MaxRevenue)
}

func TestTolerance_PicksStableForNonWETH(t *testing.T) {
	assert.Equal(t, stableTolerance, tolerance(quote.USDC))
	assert.Equal(t, wethTolerance, tolerance(quote.WETH))
}
