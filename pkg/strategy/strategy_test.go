package strategy

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mev-engine/sandwich-bot/pkg/streams"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

func jsonRPCResult(w http.ResponseWriter, id json.Number, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": result})
}

func newEmptyBlockStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string      `json:"method"`
			ID     json.Number `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "eth_getBlockByNumber":
			jsonRPCResult(w, req.ID, map[string]interface{}{
				"number": "0x64", "hash": "0x" + "11" + repeatHex(62),
				"parentHash": "0x" + repeatHex(64),
				"nonce": "0x0000000000000000", "mixHash": "0x" + repeatHex(64),
				"sha3Uncles": "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
				"logsBloom":  "0x" + repeatHex(512),
				"transactionsRoot": "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
				"stateRoot":        "0x" + repeatHex(64),
				"receiptsRoot":     "0x" + repeatHex(64),
				"miner":            "0x0000000000000000000000000000000000000000",
				"difficulty":       "0x0", "totalDifficulty": "0x0", "extraData": "0x",
				"size": "0x0", "gasLimit": "0x1c9c380", "gasUsed": "0x0", "timestamp": "0x0",
				"transactions": []interface{}{}, "uncles": []interface{}{},
				"baseFeePerGas": "0x3b9aca00",
			})
		default:
			jsonRPCResult(w, req.ID, nil)
		}
	}))
}

func repeatHex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

func newTestLoop(t *testing.T, server *httptest.Server) *Loop {
	t.Helper()
	client, err := ethclient.Dial(server.URL)
	require.NoError(t, err)
	return New(Config{Client: client})
}

func TestOnBlock_EvictsStalePendingTxPastThreeBlocks(t *testing.T) {
	server := newEmptyBlockStub(t)
	defer server.Close()
	loop := newTestLoop(t, server)

	victim := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000})
	hash := victim.Hash()
	loop.pendingTxs[hash] = &types.PendingTxInfo{PendingTx: &types.PendingTx{Tx: victim, AddedBlock: 97}}
	loop.promising[hash] = nil

	loop.onBlock(context.Background(), &streams.BlockEvent{Number: 100})

	_, stillPending := loop.pendingTxs[hash]
	assert.False(t, stillPending)
	_, stillPromising := loop.promising[hash]
	assert.False(t, stillPromising)
}

func newBlockStubWithTx(t *testing.T, tx *ethtypes.Transaction) *httptest.Server {
	t.Helper()
	txJSON, err := tx.MarshalJSON()
	require.NoError(t, err)
	var txMap map[string]interface{}
	require.NoError(t, json.Unmarshal(txJSON, &txMap))
	txMap["from"] = "0x0000000000000000000000000000000000000001"
	txMap["blockHash"] = "0x" + "22" + repeatHex(62)
	txMap["blockNumber"] = "0x64"
	txMap["transactionIndex"] = "0x0"

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string      `json:"method"`
			ID     json.Number `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "eth_getBlockByNumber":
			jsonRPCResult(w, req.ID, map[string]interface{}{
				"number": "0x64", "hash": "0x" + "11" + repeatHex(62),
				"parentHash": "0x" + repeatHex(64),
				"nonce": "0x0000000000000000", "mixHash": "0x" + repeatHex(64),
				"sha3Uncles": "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
				"logsBloom":  "0x" + repeatHex(512),
				"transactionsRoot": "0x" + repeatHex(64),
				"stateRoot":        "0x" + repeatHex(64),
				"receiptsRoot":     "0x" + repeatHex(64),
				"miner":            "0x0000000000000000000000000000000000000000",
				"difficulty":       "0x0", "totalDifficulty": "0x0", "extraData": "0x",
				"size": "0x0", "gasLimit": "0x1c9c380", "gasUsed": "0x5208", "timestamp": "0x0",
				"transactions": []interface{}{txMap}, "uncles": []interface{}{},
				"baseFeePerGas": "0x3b9aca00",
			})
		default:
			jsonRPCResult(w, req.ID, nil)
		}
	}))
}

func TestOnBlock_ReapsConfirmedTxBeforeNextPendingTxEvent(t *testing.T) {
	victim := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000})
	server := newBlockStubWithTx(t, victim)
	defer server.Close()
	loop := newTestLoop(t, server)

	hash := victim.Hash()
	loop.pendingTxs[hash] = &types.PendingTxInfo{PendingTx: &types.PendingTx{Tx: victim, AddedBlock: 99}}
	loop.promising[hash] = []*types.Sandwich{{}}

	loop.onBlock(context.Background(), &streams.BlockEvent{Number: 100})

	_, stillPending := loop.pendingTxs[hash]
	assert.False(t, stillPending)
	_, stillPromising := loop.promising[hash]
	assert.False(t, stillPromising)
}

func TestOnBlock_KeepsFreshPendingTxUnderThreshold(t *testing.T) {
	server := newEmptyBlockStub(t)
	defer server.Close()
	loop := newTestLoop(t, server)

	victim := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000})
	hash := victim.Hash()
	loop.pendingTxs[hash] = &types.PendingTxInfo{PendingTx: &types.PendingTx{Tx: victim, AddedBlock: 98}}

	loop.onBlock(context.Background(), &streams.BlockEvent{Number: 100})

	_, stillPending := loop.pendingTxs[hash]
	assert.True(t, stillPending)
}

func TestPow10(t *testing.T) {
	assert.Equal(t, "1000", pow10(3).String())
}

func TestPauseResume_BlocksPendingTxAdmission(t *testing.T) {
	server := newEmptyBlockStub(t)
	defer server.Close()
	loop := newTestLoop(t, server)

	assert.False(t, loop.Paused())
	loop.Pause()
	assert.True(t, loop.Paused())

	loop.currentBlock = &streams.BlockEvent{Number: 100, BaseFee: big.NewInt(1)}
	victim := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000})
	loop.onPendingTx(context.Background(), &types.PendingTx{Tx: victim, AddedBlock: 100})

	_, tracked := loop.pendingTxs[victim.Hash()]
	assert.False(t, tracked)

	loop.Resume()
	assert.False(t, loop.Paused())
}

func TestCurrentBlock_ReflectsLastOnBlock(t *testing.T) {
	server := newEmptyBlockStub(t)
	defer server.Close()
	loop := newTestLoop(t, server)

	assert.Equal(t, uint64(0), loop.CurrentBlock())
	loop.onBlock(context.Background(), &streams.BlockEvent{Number: 100})
	assert.Equal(t, uint64(100), loop.CurrentBlock())
	assert.Equal(t, 0, loop.PendingCount())
	assert.Equal(t, 0, loop.PromisingCount())
}
