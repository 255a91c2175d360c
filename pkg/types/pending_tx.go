package types

import (
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// PendingTx wraps a mempool transaction with the block it was first seen
// admitted at, mirroring original_source/src/common/streams.rs::NewPendingTx
// and strategy.rs's use of `added_block` for staleness tracking.
type PendingTx struct {
	Tx         *ethtypes.Transaction
	AddedBlock uint64
}

// PendingTxInfo is a pending transaction together with the V2 swaps it was
// found to perform against known pools, mirroring original_source/src/
// sandwich/simulation.rs::PendingTxInfo.
type PendingTxInfo struct {
	PendingTx    *PendingTx
	TouchedPairs []*SwapInfo
}
