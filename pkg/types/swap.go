package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/mev-engine/sandwich-bot/pkg/quote"
)

// SwapDirection classifies a V2 swap from the main currency's perspective.
type SwapDirection int

const (
	Buy SwapDirection = iota
	Sell
)

// SwapInfo describes a single classified V2 swap extracted from a pending
// transaction's trace, mirroring original_source/src/sandwich/
// simulation.rs::SwapInfo.
type SwapInfo struct {
	TxHash       common.Hash
	TargetPair   common.Address
	MainCurrency quote.Currency
	TargetToken  common.Address
	Version      DexVariant
	Token0IsMain bool
	Direction    SwapDirection
}
