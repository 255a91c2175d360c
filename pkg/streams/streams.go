// Package streams publishes chain events (new blocks, pending transactions)
// onto an eventbus.Bus, grounded on original_source/src/common/streams.rs's
// stream_new_blocks/stream_pending_transactions and the teacher's
// pkg/mempool/websocket.go subscription-reader loop.
package streams

import (
	"context"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mev-engine/sandwich-bot/pkg/eventbus"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// BlockEvent is published on every new head, mirroring original_source's
// NewBlock.
type BlockEvent struct {
	Number      uint64
	BaseFee     *big.Int
	NextBaseFee *big.Int
}

// NextBaseFee implements EIP-1559's base fee adjustment: base fee moves by
// up to 1/8 toward the direction gas usage deviates from half the gas
// limit, with a uniform [0,8] jitter term added, matching
// original_source/src/common/utils.rs::calculate_next_block_base_fee
// exactly (including the jitter, which the original adds unconditionally).
func NextBaseFee(gasUsed, gasLimit uint64, baseFee *big.Int) *big.Int {
	targetGasUsed := gasLimit / 2
	if targetGasUsed == 0 {
		targetGasUsed = 1
	}

	target := new(big.Int).SetUint64(targetGasUsed)
	used := new(big.Int).SetUint64(gasUsed)
	eight := big.NewInt(8)

	var delta *big.Int
	if used.Cmp(target) > 0 {
		diff := new(big.Int).Sub(used, target)
		adj := new(big.Int).Div(new(big.Int).Div(new(big.Int).Mul(baseFee, diff), target), eight)
		delta = new(big.Int).Add(baseFee, adj)
	} else {
		diff := new(big.Int).Sub(target, used)
		adj := new(big.Int).Div(new(big.Int).Div(new(big.Int).Mul(baseFee, diff), target), eight)
		delta = new(big.Int).Sub(baseFee, adj)
	}

	jitter := int64(rand.Intn(9))
	return new(big.Int).Add(delta, big.NewInt(jitter))
}

// StreamBlocks subscribes to new chain heads over client and publishes a
// BlockEvent for each onto bus, until ctx is cancelled or the subscription
// errors.
func StreamBlocks(ctx context.Context, client *ethclient.Client, bus *eventbus.Bus) error {
	headers := make(chan *ethtypes.Header)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case head := <-headers:
			baseFee := head.BaseFee
			if baseFee == nil {
				baseFee = big.NewInt(0)
			}
			bus.Publish(&BlockEvent{
				Number:      head.Number.Uint64(),
				BaseFee:     baseFee,
				NextBaseFee: NextBaseFee(head.GasUsed, head.GasLimit, baseFee),
			})
		}
	}
}

// StreamPendingTxs subscribes to newPendingTransactions over rpcClient,
// hydrates each hash into a full transaction via ethClient, and publishes a
// types.PendingTx onto bus. Hydration failures (tx already mined and
// dropped from the mempool, malformed payload) are skipped silently,
// matching spec.md §7's "malformed log / undecodable" policy.
func StreamPendingTxs(ctx context.Context, rpcClient *rpc.Client, ethClient *ethclient.Client, bus *eventbus.Bus) error {
	hashes := make(chan common.Hash)
	sub, err := rpcClient.EthSubscribe(ctx, hashes, "newPendingTransactions")
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case hash := <-hashes:
			tx, _, err := ethClient.TransactionByHash(ctx, hash)
			if err != nil || tx == nil {
				continue
			}
			bus.Publish(&types.PendingTx{Tx: tx})
		}
	}
}
