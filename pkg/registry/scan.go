package registry

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// ScanWindow is the block span per FilterLogs call, matching spec.md §6's
// 50_000-block scan windows.
const ScanWindow = 50_000

// DefaultLookback is the block a cold-cache PairCreated scan starts from
// (internal/app passes it to Load as defaultFromBlock), matching spec.md
// §6's 10_000_000-block default.
const DefaultLookback = 10_000_000

// pairCreatedSignature is keccak256("PairCreated(address,address,address,uint256)").
var pairCreatedSignature = common.HexToHash("0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e9")

var pairCreatedArgs abi.Arguments

func init() {
	addr, _ := abi.NewType("address", "", nil)
	u256, _ := abi.NewType("uint256", "", nil)
	pairCreatedArgs = abi.Arguments{{Type: addr}, {Type: u256}}
}

// scanPairCreated windowed-scans [fromBlock, toBlock] for PairCreated logs,
// mirroring original_source/src/common/pools.rs::load_uniswap_v2_pools.
// nextID seeds the pool id sequence, continuing from the highest id
// already present in the cache.
func scanPairCreated(ctx context.Context, client *ethclient.Client, fromBlock, toBlock uint64, nextID int64) ([]*types.Pool, error) {
	var pools []*types.Pool
	timestamps := make(map[uint64]uint64)

	for start := fromBlock; start <= toBlock; start += ScanWindow {
		end := start + ScanWindow - 1
		if end > toBlock {
			end = toBlock
		}

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Topics:    [][]common.Hash{{pairCreatedSignature}},
		}
		logs, err := client.FilterLogs(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("filter logs [%d,%d]: %w", start, end, err)
		}

		for _, log := range logs {
			if len(log.Topics) < 3 || log.Topics[0] != pairCreatedSignature {
				continue
			}
			token0 := common.BytesToAddress(log.Topics[1].Bytes())
			token1 := common.BytesToAddress(log.Topics[2].Bytes())

			decoded, err := pairCreatedArgs.Unpack(log.Data)
			if err != nil || len(decoded) == 0 {
				continue
			}
			pair, ok := decoded[0].(common.Address)
			if !ok {
				continue
			}

			ts, ok := timestamps[log.BlockNumber]
			if !ok {
				header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(log.BlockNumber))
				if err != nil {
					continue
				}
				ts = header.Time
				timestamps[log.BlockNumber] = ts
			}

			nextID++
			pools = append(pools, &types.Pool{
				ID:          nextID,
				Address:     pair,
				Version:     types.UniswapV2,
				Token0:      token0,
				Token1:      token1,
				FeeBps:      300,
				BlockNumber: log.BlockNumber,
				Timestamp:   ts,
			})
		}
	}
	return pools, nil
}
