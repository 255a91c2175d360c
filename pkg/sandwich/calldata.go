package sandwich

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mev-engine/sandwich-bot/pkg/quote"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// reservePair is a pool's two reserves at a point in time.
type reservePair struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

func packBool(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

func packAddress(addr common.Address) []byte { return addr.Bytes() }

func packUint256(v *big.Int) []byte { return common.LeftPadBytes(v.Bytes(), 32) }

// encodeFrontrunTx packed-encodes the frontrun call: uint64 blockNumber
// followed by one (zeroForOne, pair, tokenIn, amountIn, amountOut) tuple per
// sandwich, matching original_source/src/sandwich/simulation.rs::
// encode_frontrun_tx. It also returns the deduplicated victim transactions
// and, per main currency, the total amount_in-1 the bot needs funded with.
func encodeFrontrunTx(blockNumber uint64, batch *types.BatchSandwich, reservesBefore map[common.Address]reservePair) ([]byte, []*victimTx, map[quote.Currency]*big.Int) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, blockNumber)

	startingMC := make(map[quote.Currency]*big.Int)
	seenVictims := make(map[common.Hash]struct{})
	var victims []*victimTx

	for _, s := range batch.Sandwiches {
		zeroForOne := s.SwapInfo.Token0IsMain
		reserves := reservesBefore[s.SwapInfo.TargetPair]

		var reserveIn, reserveOut *big.Int
		if zeroForOne {
			reserveIn, reserveOut = reserves.Reserve0, reserves.Reserve1
		} else {
			reserveIn, reserveOut = reserves.Reserve1, reserves.Reserve0
		}

		amountIn := new(big.Int).Sub(s.AmountIn, big.NewInt(1))
		amountOut := quote.V2AmountOut(amountIn, reserveIn, reserveOut)

		buf = append(buf, packBool(zeroForOne)...)
		buf = append(buf, packAddress(s.SwapInfo.TargetPair)...)
		buf = append(buf, packAddress(s.SwapInfo.MainCurrency.Address())...)
		buf = append(buf, packUint256(amountIn)...)
		buf = append(buf, packUint256(amountOut)...)

		total, ok := startingMC[s.SwapInfo.MainCurrency]
		if !ok {
			total = big.NewInt(0)
		}
		startingMC[s.SwapInfo.MainCurrency] = new(big.Int).Add(total, amountIn)

		h := s.VictimTx.Hash()
		if _, ok := seenVictims[h]; !ok {
			seenVictims[h] = struct{}{}
			victims = append(victims, &victimTx{tx: s.VictimTx})
		}
	}
	return buf, victims, startingMC
}

// encodeBackrunTx packed-encodes the backrun call: uint64 blockNumber
// followed by one (zeroForOne, pair, tokenIn=targetToken, amountIn,
// amountOut) tuple per sandwich, matching original_source/src/sandwich/
// simulation.rs::encode_backrun_tx. amountIn is the bot's post-frontrun
// balance of the target token, minus 1 (left as dust to avoid a zero
// storage slot).
func encodeBackrunTx(blockNumber uint64, batch *types.BatchSandwich, reservesAfter map[common.Address]reservePair, tokenBalances map[common.Address]*big.Int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, blockNumber)

	for _, s := range batch.Sandwiches {
		zeroForOne := s.SwapInfo.Token0IsMain
		reserves := reservesAfter[s.SwapInfo.TargetPair]

		var reserveIn, reserveOut *big.Int
		if zeroForOne {
			reserveIn, reserveOut = reserves.Reserve1, reserves.Reserve0
		} else {
			reserveIn, reserveOut = reserves.Reserve0, reserves.Reserve1
		}

		balance, ok := tokenBalances[s.SwapInfo.TargetToken]
		if !ok {
			balance = big.NewInt(0)
		}
		amountIn := new(big.Int).Sub(balance, big.NewInt(1))
		if amountIn.Sign() < 0 {
			amountIn = big.NewInt(0)
		}
		amountOut := quote.V2AmountOut(amountIn, reserveIn, reserveOut)

		buf = append(buf, packBool(!zeroForOne)...)
		buf = append(buf, packAddress(s.SwapInfo.TargetPair)...)
		buf = append(buf, packAddress(s.SwapInfo.TargetToken)...)
		buf = append(buf, packUint256(amountIn)...)
		buf = append(buf, packUint256(amountOut)...)
	}
	return buf
}
