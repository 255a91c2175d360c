// Package dispatcher signs a sandwich bundle's frontrun/backrun legs and
// fans the assembled bundle out to every configured relay builder,
// grounded on original_source/src/common/execution.rs's Executor
// (create_sando_bundle/to_sando_bundle_request/broadcast_bundle), ported
// from tokio task spawn + ethers-flashbots to goroutines + net/http.
package dispatcher

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// RelayURLs are the builder endpoints a bundle is broadcast to, matching
// original_source/src/common/execution.rs::Executor::new's builder_urls.
var RelayURLs = map[string]string{
	"flashbots":    "https://relay.flashbots.net",
	"beaverbuild":  "https://rpc.beaverbuild.org",
	"rsync":        "https://rsync-builder.xyz",
	"titanbuilder": "https://rpc.titanbuilder.xyz",
	"builder0x69":  "https://builder0x69.io",
	"f1b":          "https://rpc.f1b.io",
	"lokibuilder":  "https://rpc.lokibuilder.xyz",
	"eden":         "https://api.edennetwork.io/v1/rpc",
	"penguinbuild": "https://rpc.penguinbuild.org",
	"gambit":       "https://builder.gmbit.co/rpc",
	"idcmev":       "https://rpc.idcmev.xyz",
}

var recoverTokenSelector = crypto.Keccak256([]byte("recoverToken(address,uint256)"))[:4]

// Dispatcher signs transactions with the operator key and submits bundles
// to RelayURLs.
type Dispatcher struct {
	owner      *ecdsa.PrivateKey
	ownerAddr  common.Address
	botAddress common.Address
	chainID    *big.Int
	client     *ethclient.Client
	http       *http.Client
	relayURLs  map[string]string
}

// New returns a Dispatcher signing with owner, targeting botAddress on
// chainID. client is used only to fetch the operator's pending nonce.
func New(owner *ecdsa.PrivateKey, botAddress common.Address, chainID *big.Int, client *ethclient.Client) *Dispatcher {
	return &Dispatcher{
		owner:      owner,
		ownerAddr:  crypto.PubkeyToAddress(owner.PublicKey),
		botAddress: botAddress,
		chainID:    chainID,
		client:     client,
		http:       &http.Client{Timeout: 5 * time.Second},
		relayURLs:  RelayURLs,
	}
}

// BundleResult is one relay's response to a submitted bundle, matching
// SendBundleResponse. Err is set on a per-relay failure and never causes
// Dispatch itself to fail, matching spec.md §7's "per-relay ignored"
// policy.
type BundleResult struct {
	Builder    string
	BundleHash string
	Err        error
}

func mulFrac(gas uint64, num, denom int64) uint64 {
	v := new(big.Int).Div(new(big.Int).Mul(new(big.Int).SetUint64(gas), big.NewInt(num)), big.NewInt(denom))
	return v.Uint64()
}

func (d *Dispatcher) sign(tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	signer := ethtypes.NewLondonSigner(d.chainID)
	return ethtypes.SignTx(tx, signer, d.owner)
}

func rlpHex(tx *ethtypes.Transaction) string {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return ""
	}
	return "0x" + common.Bytes2Hex(raw)
}

// Dispatch signs batch's frontrun and backrun legs as EIP-1559
// transactions, derives the bribe/gas-limit/priority-fee fields per
// spec.md §4.H, splices the deduplicated raw victim transactions between
// them, and concurrently submits the resulting bundle to every relay in
// RelayURLs.
func (d *Dispatcher) Dispatch(ctx context.Context, batch *types.BatchSandwich, sim *types.SimulatedSandwich, baseFee *big.Int, bribeBps int64, blockNumber, retries uint64) ([]BundleResult, error) {
	nonce, err := d.client.PendingNonceAt(ctx, d.ownerAddr)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}

	bribe := new(big.Int).Div(new(big.Int).Mul(sim.Revenue, big.NewInt(bribeBps)), big.NewInt(10000))
	frontGasLimit := mulFrac(sim.FrontGasUsed, 13, 10)
	backGasLimit := mulFrac(sim.BackGasUsed, 13, 10)
	realisticBackGas := mulFrac(sim.BackGasUsed, 105, 100)

	priorityFee := big.NewInt(0)
	if realisticBackGas > 0 {
		priorityFee = new(big.Int).Div(bribe, new(big.Int).SetUint64(realisticBackGas))
	}
	maxFee := new(big.Int).Add(baseFee, priorityFee)

	frontTx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:    d.chainID,
		Nonce:      nonce,
		GasTipCap:  big.NewInt(0),
		GasFeeCap:  baseFee,
		Gas:        frontGasLimit,
		To:         &d.botAddress,
		Value:      big.NewInt(0),
		Data:       sim.FrontCalldata,
		AccessList: sim.FrontAccessList,
	})
	backTx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:    d.chainID,
		Nonce:      nonce + 1,
		GasTipCap:  priorityFee,
		GasFeeCap:  maxFee,
		Gas:        backGasLimit,
		To:         &d.botAddress,
		Value:      big.NewInt(0),
		Data:       sim.BackCalldata,
		AccessList: sim.BackAccessList,
	})

	signedFront, err := d.sign(frontTx)
	if err != nil {
		return nil, fmt.Errorf("sign frontrun: %w", err)
	}
	signedBack, err := d.sign(backTx)
	if err != nil {
		return nil, fmt.Errorf("sign backrun: %w", err)
	}

	seen := make(map[common.Hash]struct{})
	rawTxs := []string{rlpHex(signedFront)}
	for _, s := range batch.Sandwiches {
		h := s.VictimTx.Hash()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		raw, err := s.VictimTx.MarshalBinary()
		if err != nil {
			continue
		}
		rawTxs = append(rawTxs, "0x"+common.Bytes2Hex(raw))
	}
	rawTxs = append(rawTxs, rlpHex(signedBack))

	return d.broadcast(ctx, rawTxs, blockNumber+retries), nil
}

func (d *Dispatcher) broadcast(ctx context.Context, rawTxs []string, targetBlock uint64) []BundleResult {
	type target struct{ name, url string }
	targets := make([]target, 0, len(d.relayURLs))
	for name, url := range d.relayURLs {
		targets = append(targets, target{name, url})
	}

	results := make([]BundleResult, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			hash, err := d.sendBundle(ctx, t.url, rawTxs, targetBlock)
			results[i] = BundleResult{Builder: t.name, BundleHash: hash, Err: err}
		}(i, t)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) sendBundle(ctx context.Context, url string, rawTxs []string, targetBlock uint64) (string, error) {
	reqBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_sendBundle",
		"params": []interface{}{
			map[string]interface{}{
				"txs":              rawTxs,
				"blockNumber":      fmt.Sprintf("0x%x", targetBlock),
				"minTimestamp":     0,
				"stateBlockNumber": "latest",
			},
		},
	}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal bundle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("build bundle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit bundle: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Result struct {
			BundleHash string `json:"bundleHash"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode relay response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("relay error: %s", out.Error.Message)
	}
	return out.Result.BundleHash, nil
}

// RecoverToken signs a recoverToken(address,uint256) call against the bot
// contract, restoring operator fund-recovery dropped from the spec
// distillation (see original_source/src/common/abi.rs's sando_bot ABI and
// execution.rs::transfer_out_tx).
func (d *Dispatcher) RecoverToken(ctx context.Context, token common.Address, amount, maxPriorityFee, maxFee *big.Int) (*ethtypes.Transaction, error) {
	nonce, err := d.client.PendingNonceAt(ctx, d.ownerAddr)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}

	calldata := append(append([]byte{}, recoverTokenSelector...), common.LeftPadBytes(token.Bytes(), 32)...)
	calldata = append(calldata, common.LeftPadBytes(amount.Bytes(), 32)...)

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   d.chainID,
		Nonce:     nonce,
		GasTipCap: maxPriorityFee,
		GasFeeCap: maxFee,
		Gas:       600_000,
		To:        &d.botAddress,
		Value:     big.NewInt(0),
		Data:      calldata,
	})
	return d.sign(tx)
}
