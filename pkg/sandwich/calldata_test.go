package sandwich

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

func sampleBatch() *types.BatchSandwich {
	pair := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	target := common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 0, GasPrice: big.NewInt(1), Gas: 21000})
	return &types.BatchSandwich{
		Sandwiches: []*types.Sandwich{
			{
				AmountIn: big.NewInt(1_000_001),
				VictimTx: tx,
				SwapInfo: &types.SwapInfo{
					TxHash:       tx.Hash(),
					TargetPair:   pair,
					MainCurrency: quote.WETH,
					TargetToken:  target,
					Version:      types.UniswapV2,
					Token0IsMain: true,
					Direction:    types.Buy,
				},
			},
		},
	}
}

func TestEncodeFrontrunTx_LayoutAndDedup(t *testing.T) {
	batch := sampleBatch()
	pair := batch.Sandwiches[0].SwapInfo.TargetPair
	reserves := map[common.Address]reservePair{
		pair: {Reserve0: big.NewInt(1_000_000_000), Reserve1: big.NewInt(2_000_000_000)},
	}

	calldata, victims, startingMC := encodeFrontrunTx(12345, batch, reserves)

	require.Len(t, victims, 1)
	require.Len(t, calldata, 8+1+20+20+32+32)
	assert.Equal(t, uint8(1), calldata[8]) // zeroForOne=true (Token0IsMain)

	total, ok := startingMC[quote.WETH]
	require.True(t, ok)
	assert.Equal(t, big.NewInt(1_000_000), total) // amount_in - 1
}

func TestEncodeBackrunTx_FlipsDirectionAndUsesTargetToken(t *testing.T) {
	batch := sampleBatch()
	pair := batch.Sandwiches[0].SwapInfo.TargetPair
	target := batch.Sandwiches[0].SwapInfo.TargetToken
	reservesAfter := map[common.Address]reservePair{
		pair: {Reserve0: big.NewInt(900_000_000), Reserve1: big.NewInt(2_200_000_000)},
	}
	balances := map[common.Address]*big.Int{target: big.NewInt(5000)}

	calldata := encodeBackrunTx(99, batch, reservesAfter, balances)
	require.Len(t, calldata, 8+1+20+20+32+32)
	assert.Equal(t, uint8(0), calldata[8]) // !Token0IsMain(true) => 0

	tokenInOffset := 8 + 1 + 20
	tokenIn := common.BytesToAddress(calldata[tokenInOffset : tokenInOffset+20])
	assert.Equal(t, target, tokenIn)

	amountInOffset := tokenInOffset + 20
	amountIn := new(big.Int).SetBytes(calldata[amountInOffset : amountInOffset+32])
	assert.Equal(t, big.NewInt(4999), amountIn)
}

func TestEncodeBackrunTx_ZeroBalanceDoesNotUnderflow(t *testing.T) {
	batch := sampleBatch()
	pair := batch.Sandwiches[0].SwapInfo.TargetPair
	reservesAfter := map[common.Address]reservePair{
		pair: {Reserve0: big.NewInt(1), Reserve1: big.NewInt(1)},
	}
	calldata := encodeBackrunTx(1, batch, reservesAfter, nil)
	amountInOffset := 8 + 1 + 20 + 20
	amountIn := new(big.Int).SetBytes(calldata[amountInOffset : amountInOffset+32])
	assert.Equal(t, big.NewInt(0), amountIn)
}
