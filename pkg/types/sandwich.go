package types

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Sandwich is one candidate frontrun/victim/backrun triple awaiting
// simulation and optimization, mirroring original_source/src/sandwich/
// simulation.rs::Sandwich.
type Sandwich struct {
	AmountIn          *big.Int
	SwapInfo          *SwapInfo
	VictimTx          *ethtypes.Transaction
	OptimizedSandwich *OptimizedSandwich
}

// Clone returns a copy of the sandwich with a new AmountIn, used by the
// optimizer's grid search to probe different frontrun sizes without
// mutating the original candidate.
func (s *Sandwich) Clone(amountIn *big.Int) *Sandwich {
	return &Sandwich{
		AmountIn:          amountIn,
		SwapInfo:          s.SwapInfo,
		VictimTx:          s.VictimTx,
		OptimizedSandwich: s.OptimizedSandwich,
	}
}

// OptimizedSandwich is the result of the grid-bisection search over
// AmountIn, mirroring original_source/src/sandwich/simulation.rs::
// OptimizedSandwich.
type OptimizedSandwich struct {
	AmountIn        *big.Int
	MaxRevenue      *big.Int
	FrontGasUsed    uint64
	BackGasUsed     uint64
	FrontAccessList ethtypes.AccessList
	BackAccessList  ethtypes.AccessList
	FrontCalldata   []byte
	BackCalldata    []byte
}

// BatchSandwich is one or more Sandwiches sharing a single frontrun/backrun
// bundle, mirroring original_source/src/sandwich/simulation.rs::
// BatchSandwich.
type BatchSandwich struct {
	Sandwiches []*Sandwich
}

// VictimTxHashes returns the deduplicated set of victim transaction hashes
// across all sandwiches in the batch.
func (b *BatchSandwich) VictimTxHashes() []common.Hash {
	seen := make(map[common.Hash]struct{})
	var hashes []common.Hash
	for _, s := range b.Sandwiches {
		h := s.VictimTx.Hash()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}
	return hashes
}

// TargetV2Pairs returns the deduplicated set of V2 pool addresses touched
// by any sandwich in the batch.
func (b *BatchSandwich) TargetV2Pairs() []common.Address {
	seen := make(map[common.Address]struct{})
	var pairs []common.Address
	for _, s := range b.Sandwiches {
		if s.SwapInfo.Version != UniswapV2 {
			continue
		}
		addr := s.SwapInfo.TargetPair
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		pairs = append(pairs, addr)
	}
	return pairs
}

// TargetTokens returns the deduplicated set of target tokens touched by any
// sandwich in the batch.
func (b *BatchSandwich) TargetTokens() []common.Address {
	seen := make(map[common.Address]struct{})
	var tokens []common.Address
	for _, s := range b.Sandwiches {
		addr := s.SwapInfo.TargetToken
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		tokens = append(tokens, addr)
	}
	return tokens
}

// BundleID is a stable identifier for a batch: the sorted, deduplicated,
// hyphen-joined first-4-bytes of each sandwich's victim tx hash, matching
// original_source/src/sandwich/simulation.rs::BatchSandwich::bundle_id.
func (b *BatchSandwich) BundleID() string {
	seen := make(map[string]struct{})
	var parts []string
	for _, s := range b.Sandwiches {
		h := s.VictimTx.Hash()
		short := common.Bytes2Hex(h[:4])
		if _, ok := seen[short]; ok {
			continue
		}
		seen[short] = struct{}{}
		parts = append(parts, short)
	}
	sort.Strings(parts)
	return strings.Join(parts, "-")
}

// SimulatedSandwich is the result of running a BatchSandwich's frontrun,
// victim replay, and backrun against a forked EVM, mirroring
// original_source/src/sandwich/simulation.rs::SimulatedSandwich.
type SimulatedSandwich struct {
	Revenue         *big.Int // profit - gas_cost, in WETH-equivalent wei
	Profit          *big.Int // WETH-equivalent balance delta
	GasCost         *big.Int // ETH spent on gas, in wei
	FrontGasUsed    uint64
	BackGasUsed     uint64
	FrontAccessList ethtypes.AccessList
	BackAccessList  ethtypes.AccessList
	FrontCalldata   []byte
	BackCalldata    []byte
}
