package dispatcher

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/mev-engine/sandwich-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulFrac_ScalesGasByFraction(t *testing.T) {
	assert.Equal(t, uint64(130_000), mulFrac(100_000, 13, 10))
	assert.Equal(t, uint64(105_000), mulFrac(100_000, 105, 100))
}

func newRPCStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			ID     json.Number   `json:"id"`
			Params []interface{} `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "eth_getTransactionCount":
			json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0x5"})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": nil})
		}
	}))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, func()) {
	t.Helper()
	server := newRPCStubServer(t)
	client, err := ethclient.Dial(server.URL)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	bot := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	d := New(key, bot, big.NewInt(1), client)
	return d, server.Close
}

func TestRecoverToken_SignsValidDynamicFeeTx(t *testing.T) {
	d, closeFn := newTestDispatcher(t)
	defer closeFn()

	token := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	tx, err := d.RecoverToken(context.Background(), token, big.NewInt(1000), big.NewInt(1), big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), tx.Nonce())
	assert.Equal(t, uint8(recoverTokenSelector[0]), tx.Data()[0])
	assert.Equal(t, d.botAddress, *tx.To())
}

func TestSendBundle_ParsesBundleHashFromRelay(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1,
			"result": map[string]string{"bundleHash": "0xdeadbeef"},
		})
	}))
	defer relay.Close()

	d, closeFn := newTestDispatcher(t)
	defer closeFn()

	hash, err := d.sendBundle(context.Background(), relay.URL, []string{"0x1234"}, 100)
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", hash)
}

func TestSendBundle_SurfacesRelayError(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]string{"message": "bundle rejected"},
		})
	}))
	defer relay.Close()

	d, closeFn := newTestDispatcher(t)
	defer closeFn()

	_, err := d.sendBundle(context.Background(), relay.URL, []string{"0x1234"}, 100)
	assert.ErrorContains(t, err, "bundle rejected")
}

func TestDispatch_SignsAndSplicesVictimTxsBetweenLegs(t *testing.T) {
	d, closeFn := newTestDispatcher(t)
	defer closeFn()

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1,
			"result": map[string]string{"bundleHash": "0xabc"},
		})
	}))
	defer relay.Close()
	d.relayURLs = map[string]string{"stub": relay.URL}

	victim := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000})
	batch := &types.BatchSandwich{
		Sandwiches: []*types.Sandwich{
			{VictimTx: victim, SwapInfo: &types.SwapInfo{}},
		},
	}
	sim := &types.SimulatedSandwich{
		Revenue:      big.NewInt(1_000_000),
		FrontGasUsed: 100_000,
		BackGasUsed:  120_000,
	}

	results, err := d.Dispatch(context.Background(), batch, sim, big.NewInt(10), 9900, 1000, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "stub", results[0].Builder)
	assert.Equal(t, "0xabc", results[0].BundleHash)
	assert.NoError(t, results[0].Err)
}
