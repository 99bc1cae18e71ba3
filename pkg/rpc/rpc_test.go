package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"bridgeui/pkg/chains"
	"bridgeui/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAccount = common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B")
	testToken   = common.HexToAddress("0x1234567890123456789012345678901234567890")
	brokenToken = common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	testBox     = common.HexToAddress("0x3baD7AD0728f9917d1Bf08af5782dCbD516cDd96")
)

// fakeNode is a minimal JSON-RPC endpoint for ethclient.
type fakeNode struct {
	chainID uint64

	mu    sync.Mutex
	calls map[string]int
}

func (n *fakeNode) count(key string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[key]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	key := req.Method
	var result interface{}
	var rpcErr map[string]interface{}
	switch req.Method {
	case "eth_chainId":
		result = hexutil.Uint64(n.chainID)
	case "eth_getBalance":
		result = "0x22B1C8C1227A0000" // 2.5 ETH
	case "eth_gasPrice":
		result = "0x4a817c800" // 20 Gwei
	case "eth_getBlockByNumber":
		result = map[string]interface{}{
			"number":           "0x1000",
			"hash":             "0x0000000000000000000000000000000000000000000000000000000000000001",
			"parentHash":       "0x0000000000000000000000000000000000000000000000000000000000000002",
			"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
			"timestamp":        "0x5f5e1000",
			"miner":            "0x0000000000000000000000000000000000000000",
			"gasLimit":         "0x1",
			"gasUsed":          "0x0",
			"difficulty":       "0x0",
			"extraData":        "0x",
			"mixHash":          "0x0000000000000000000000000000000000000000000000000000000000000000",
			"nonce":            "0x0000000000000000",
			"stateRoot":        "0x0000000000000000000000000000000000000000000000000000000000000000",
			"receiptsRoot":     "0x0000000000000000000000000000000000000000000000000000000000000000",
			"transactionsRoot": "0x0000000000000000000000000000000000000000000000000000000000000001",
			"logsBloom":        "0x" + strings.Repeat("00", 256),
		}
	case "eth_call":
		var call struct {
			To    common.Address `json:"to"`
			Input string         `json:"input"`
			Data  string         `json:"data"`
		}
		_ = json.Unmarshal(req.Params[0], &call)
		input := call.Input
		if input == "" {
			input = call.Data
		}
		selector := input[:10]
		key = "eth_call:" + selector
		switch {
		case call.To == brokenToken:
			rpcErr = map[string]interface{}{"code": -32000, "message": "execution reverted"}
		case selector == "0x70a08231": // balanceOf
			result = "0x000000000000000000000000000000000000000000000000000000001dcd6500"
		case selector == "0xdd62ed3e": // allowance
			result = "0x0000000000000000000000000000000000000000000000000000000000000032"
		case selector == "0x313ce567": // decimals
			result = "0x0000000000000000000000000000000000000000000000000000000000000006"
		default:
			rpcErr = map[string]interface{}{"code": -32000, "message": "execution reverted"}
		}
	default:
		result = "0x0"
	}

	n.mu.Lock()
	if n.calls == nil {
		n.calls = make(map[string]int)
	}
	n.calls[key]++
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

type recorderFunc func(chainID uint64, account common.Address, balances map[common.Address]*big.Int)

func (f recorderFunc) RecordBalances(chainID uint64, account common.Address, balances map[common.Address]*big.Int) {
	f(chainID, account, balances)
}

func newTestClients(t *testing.T, urls ...string) *Clients {
	t.Helper()
	registry := chains.New(chains.ChainMetadata{
		ID:         10,
		Name:       "MockChain",
		RPCURLs:    urls,
		DepositBox: testBox,
		Coins:      []chains.Coin{{Symbol: "ETH", Address: models.NativeToken, Decimals: 18}},
	})
	c := NewClients(registry, 0)
	t.Cleanup(c.Close)
	return c
}

func TestFetchBalances(t *testing.T) {
	node := &fakeNode{chainID: 10}
	server := httptest.NewServer(node)
	defer server.Close()

	var recorded map[common.Address]*big.Int
	q := NewQuerier(newTestClients(t, server.URL), recorderFunc(func(chainID uint64, account common.Address, b map[common.Address]*big.Int) {
		assert.Equal(t, uint64(10), chainID)
		assert.Equal(t, testAccount, account)
		recorded = b
	}))

	got, err := q.FetchBalances(context.Background(), 10, testAccount, []common.Address{models.NativeToken, testToken, testToken})
	require.NoError(t, err)
	require.Len(t, got, 2)

	expectedNative, _ := new(big.Int).SetString("2500000000000000000", 10)
	assert.Equal(t, expectedNative, got[models.NativeToken])
	assert.Equal(t, big.NewInt(500000000), got[testToken])
	assert.Equal(t, got, recorded)
	assert.Equal(t, 1, node.count("eth_getBalance"))
	assert.Equal(t, 1, node.count("eth_call:0x70a08231"))
}

func TestFetchBalances_AllOrNothing(t *testing.T) {
	server := httptest.NewServer(&fakeNode{chainID: 10})
	defer server.Close()

	called := false
	q := NewQuerier(newTestClients(t, server.URL), recorderFunc(func(uint64, common.Address, map[common.Address]*big.Int) {
		called = true
	}))

	got, err := q.FetchBalances(context.Background(), 10, testAccount, []common.Address{models.NativeToken, testToken, brokenToken})
	assert.Nil(t, got)
	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, uint64(10), qerr.ChainID)
	assert.Contains(t, err.Error(), brokenToken.Hex())
	assert.False(t, called, "failed fetches must not be recorded")
}

func TestFetchBalances_UnsupportedChain(t *testing.T) {
	q := NewQuerier(newTestClients(t, "http://127.0.0.1:1"), nil)
	_, err := q.FetchBalances(context.Background(), 99, testAccount, []common.Address{models.NativeToken})
	var unsupported *chains.UnsupportedChainError
	assert.True(t, errors.As(err, &unsupported))
}

func TestFetchNativeBalance(t *testing.T) {
	server := httptest.NewServer(&fakeNode{chainID: 10})
	defer server.Close()

	q := NewQuerier(newTestClients(t, server.URL), nil)
	bal, err := q.FetchNativeBalance(context.Background(), 10, testAccount)
	require.NoError(t, err)
	assert.Equal(t, "2500000000000000000", bal.String())
}

func TestFetchAllowance_Memoized(t *testing.T) {
	node := &fakeNode{chainID: 10}
	server := httptest.NewServer(node)
	defer server.Close()

	q := NewQuerier(newTestClients(t, server.URL), nil)
	ctx := context.Background()

	v, err := q.FetchAllowance(ctx, 10, testAccount, testToken)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(50), v)

	v.SetInt64(1) // callers get a copy
	v, err = q.FetchAllowance(ctx, 10, testAccount, testToken)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(50), v)
	assert.Equal(t, 1, node.count("eth_call:0xdd62ed3e"))

	q.InvalidateAllowance(10, testAccount, testToken)
	_, err = q.FetchAllowance(ctx, 10, testAccount, testToken)
	require.NoError(t, err)
	assert.Equal(t, 2, node.count("eth_call:0xdd62ed3e"))

	native, err := q.FetchAllowance(ctx, 10, testAccount, models.NativeToken)
	require.NoError(t, err)
	assert.Equal(t, math.MaxBig256, native)
	assert.Equal(t, 2, node.count("eth_call:0xdd62ed3e"))
}

func TestClients_Failover(t *testing.T) {
	wrongChain := httptest.NewServer(&fakeNode{chainID: 1})
	defer wrongChain.Close()
	good := &fakeNode{chainID: 10}
	goodServer := httptest.NewServer(good)
	defer goodServer.Close()

	clients := newTestClients(t, wrongChain.URL, goodServer.URL)
	_, err := clients.Client(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, good.count("eth_chainId"))

	// cached
	_, err = clients.Client(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, good.count("eth_chainId"))

	clients.Drop(10)
	_, err = clients.Client(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, good.count("eth_chainId"))

	onlyWrong := newTestClients(t, wrongChain.URL)
	_, err = onlyWrong.Client(context.Background(), 10)
	assert.ErrorContains(t, err, "expected 10")
}

func TestBridgeBackend_Reads(t *testing.T) {
	node := &fakeNode{chainID: 10}
	server := httptest.NewServer(node)
	defer server.Close()

	clients := newTestClients(t, server.URL)
	b := NewBridgeBackend(clients, NewQuerier(clients, nil))
	ctx := context.Background()

	ts, err := b.LatestBlockTime(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x5f5e1000), ts)

	box, err := b.DepositBox(10)
	require.NoError(t, err)
	assert.Equal(t, testBox, box)

	_, err = b.WrappedNative(10)
	assert.Error(t, err, "mock chain lists no WETH")

	// Allowance bypasses the memo
	_, err = b.Allowance(ctx, 10, testAccount, testToken)
	require.NoError(t, err)
	_, err = b.Allowance(ctx, 10, testAccount, testToken)
	require.NoError(t, err)
	assert.Equal(t, 2, node.count("eth_call:0xdd62ed3e"))
}

func TestFetchGasPrice_Integration(t *testing.T) {
	server := httptest.NewServer(&fakeNode{chainID: 10})
	defer server.Close()

	gas, err := FetchGasPrice(context.Background(), 10, []string{"http://127.0.0.1:1", server.URL})
	require.NoError(t, err)
	assert.Equal(t, int64(20000000000), gas.Price.Int64())
	assert.Equal(t, uint64(10), gas.ChainID)

	_, err = FetchGasPrice(context.Background(), 10, nil)
	assert.Error(t, err)
}

func TestFetchTokenMetadata_Integration(t *testing.T) {
	server := httptest.NewServer(&fakeNode{chainID: 10})
	defer server.Close()

	md, err := FetchTokenMetadata(context.Background(), []string{server.URL}, testToken)
	require.NoError(t, err)
	assert.Equal(t, 6, md.Decimals)
	assert.Equal(t, testToken, md.Address)
}

func TestFetchChainIDAndLatency(t *testing.T) {
	server := httptest.NewServer(&fakeNode{chainID: 69})
	defer server.Close()

	id, err := FetchChainID(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, uint64(69), id)

	lat, err := FetchRPCLatency(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, server.URL, lat.RPCURL)
	assert.True(t, lat.Latency > 0)
}
