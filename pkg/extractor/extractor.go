// Package extractor classifies a pending transaction's Uniswap-V2 Swap
// events into SwapInfo records, grounded on original_source/src/sandwich/
// simulation.rs's extract_swap_info/extract_logs and the teacher's
// pkg/events/event_parser.go ABI-decoding idiom.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mev-engine/sandwich-bot/pkg/quote"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// v2SwapTopicPrefix is the first 4 bytes of the V2 Swap event signature
// keccak256("Swap(address,uint256,uint256,uint256,uint256,address)"),
// matching original_source/src/sandwich/simulation.rs::V2_SWAP_EVENT_ID.
const v2SwapTopicPrefix = "0xd78ad95f"

var swapEventArgs abi.Arguments

func init() {
	uint256, _ := abi.NewType("uint256", "", nil)
	swapEventArgs = abi.Arguments{
		{Type: uint256}, {Type: uint256}, {Type: uint256}, {Type: uint256},
	}
}

// PoolLookup resolves a pool address to its two token legs.
type PoolLookup interface {
	Pool(addr common.Address) (*types.Pool, bool)
}

// Extractor issues debug_traceCall and classifies the resulting logs.
type Extractor struct {
	rpc   *rpc.Client
	pools PoolLookup
}

func New(client *rpc.Client, pools PoolLookup) *Extractor {
	return &Extractor{rpc: client, pools: pools}
}

// callFrame mirrors the debug_traceCall callTracer output shape.
type callFrame struct {
	Type  string       `json:"type"`
	From  string       `json:"from"`
	To    string       `json:"to"`
	Logs  []traceLog   `json:"logs"`
	Calls []callFrame  `json:"calls"`
}

type traceLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// traceCall issues debug_traceCall with the call tracer and logs enabled,
// matching original_source/src/sandwich/simulation.rs::debug_trace_call.
func (e *Extractor) traceCall(ctx context.Context, tx *ethtypes.Transaction, from common.Address, blockNumber *big.Int) (*callFrame, error) {
	callObj := map[string]interface{}{
		"from": from.Hex(),
		"data": "0x" + common.Bytes2Hex(tx.Data()),
		"gas":  fmt.Sprintf("0x%x", tx.Gas()),
	}
	if tx.To() != nil {
		callObj["to"] = tx.To().Hex()
	}
	if tx.Value() != nil {
		callObj["value"] = fmt.Sprintf("0x%x", tx.Value())
	}

	traceConfig := map[string]interface{}{
		"tracer": "callTracer",
		"tracerConfig": map[string]interface{}{
			"withLog": true,
		},
	}

	var raw json.RawMessage
	blockArg := "latest"
	if blockNumber != nil {
		blockArg = fmt.Sprintf("0x%x", blockNumber)
	}
	if err := e.rpc.CallContext(ctx, &raw, "debug_traceCall", callObj, blockArg, traceConfig); err != nil {
		return nil, fmt.Errorf("debug_traceCall: %w", err)
	}
	var frame callFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}
	return &frame, nil
}

// extractLogs recursively flattens a call frame's logs, including nested
// calls, matching extract_logs in the original.
func extractLogs(frame *callFrame) []traceLog {
	logs := append([]traceLog{}, frame.Logs...)
	for i := range frame.Calls {
		logs = append(logs, extractLogs(&frame.Calls[i])...)
	}
	return logs
}

// ExtractSwapInfo traces tx and classifies any V2 Swap logs it emits
// against known pools into SwapInfo records, matching
// original_source/src/sandwich/simulation.rs::extract_swap_info.
func (e *Extractor) ExtractSwapInfo(ctx context.Context, tx *ethtypes.Transaction, from common.Address, blockNumber *big.Int) ([]*types.SwapInfo, error) {
	frame, err := e.traceCall(ctx, tx, from, blockNumber)
	if err != nil {
		return nil, err
	}

	var swaps []*types.SwapInfo
	for _, l := range extractLogs(frame) {
		if len(l.Topics) == 0 || l.Topics[0][:len(v2SwapTopicPrefix)] != v2SwapTopicPrefix {
			continue
		}
		pairAddr := common.HexToAddress(l.Address)
		pool, ok := e.pools.Pool(pairAddr)
		if !ok {
			continue
		}

		data := common.FromHex(l.Data)
		values, err := swapEventArgs.UnpackValues(data)
		if err != nil || len(values) != 4 {
			continue
		}
		amount0In := values[0].(*big.Int)
		amount1Out := values[3].(*big.Int)

		swap, ok := classifySwap(pool, amount0In, amount1Out, tx.Hash(), pairAddr)
		if !ok {
			continue
		}
		swaps = append(swaps, swap)
	}
	return swaps, nil
}

// classifySwap determines (main_currency, target_token, token0_is_main,
// direction) for a V2 swap, matching original_source/src/sandwich/
// simulation.rs::extract_swap_info's classification. Swaps where neither
// leg is a recognized quote currency are skipped (ok=false).
func classifySwap(pool *types.Pool, amount0In, amount1Out *big.Int, txHash common.Hash, pairAddr common.Address) (*types.SwapInfo, bool) {
	main, mainIsToken0, ok := quote.RankMainAndTarget(pool.Token0, pool.Token1)
	if !ok {
		return nil, false
	}

	zeroForOne := amount0In.Sign() > 0 && amount1Out.Sign() > 0

	var direction types.SwapDirection
	switch {
	case mainIsToken0 && zeroForOne, !mainIsToken0 && !zeroForOne:
		direction = types.Buy
	default:
		direction = types.Sell
	}

	targetToken := pool.Token1
	if !mainIsToken0 {
		targetToken = pool.Token0
	}

	return &types.SwapInfo{
		TxHash:       txHash,
		TargetPair:   pairAddr,
		MainCurrency: main,
		TargetToken:  targetToken,
		Version:      pool.Version,
		Token0IsMain: mainIsToken0,
		Direction:    direction,
	}, true
}
