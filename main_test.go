package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"bridgeui/pkg/chains"
	"bridgeui/pkg/config"
	"bridgeui/pkg/fees"
	"bridgeui/pkg/models"
	"bridgeui/pkg/wallet"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainIDServer is a JSON-RPC endpoint that only answers eth_chainId.
func chainIDServer(t *testing.T, chainIDHex string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if req.Method != "eth_chainId" {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":"` + chainIDHex + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTestChain_Verified(t *testing.T) {
	srv := chainIDServer(t, "0xa")
	box := common.HexToAddress("0x00000000000000000000000000000000000000b0")

	result := testChain(context.Background(), chains.ChainMetadata{
		ID:         10,
		Name:       "Optimism",
		RPCURLs:    []string{srv.URL},
		DepositBox: box,
	})

	assert.Equal(t, uint64(10), result.ObservedChainID)
	assert.False(t, result.Inconsistent)
	assert.Equal(t, box.Hex(), result.DepositBox)
	require.Len(t, result.RPCs, 1)
	assert.Equal(t, "ok", result.RPCs[0].Status)
	assert.Empty(t, result.RPCs[0].Error)
}

func TestTestChain_MismatchAndInconsistent(t *testing.T) {
	good := chainIDServer(t, "0xa")
	other := chainIDServer(t, "0x1")

	result := testChain(context.Background(), chains.ChainMetadata{
		ID:      10,
		Name:    "Optimism",
		RPCURLs: []string{good.URL, other.URL},
	})

	assert.True(t, result.Inconsistent)
	assert.Empty(t, result.DepositBox)
	require.Len(t, result.RPCs, 2)
	assert.Empty(t, result.RPCs[0].Error)
	assert.Equal(t, "Mismatch! Expected 10", result.RPCs[1].Error)
}

func TestTestChain_UnreachableRPC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result := testChain(context.Background(), chains.ChainMetadata{ID: 10, Name: "Optimism", RPCURLs: []string{srv.URL}})

	require.Len(t, result.RPCs, 1)
	assert.Equal(t, "error", result.RPCs[0].Status)
	assert.NotEmpty(t, result.RPCs[0].Error)
	assert.Zero(t, result.ObservedChainID)
}

func TestCheckTokens_SkipsNative(t *testing.T) {
	meta := chains.ChainMetadata{ID: 1337, Coins: []chains.Coin{{Symbol: "ETH", Address: models.NativeToken, Decimals: 18}}}
	assert.Empty(t, checkTokens(context.Background(), meta))
}

func TestTestConfig_InvalidStructure(t *testing.T) {
	cfg := config.Default()
	cfg.Chains = []config.ChainConfig{{Name: "missing id"}}

	report := testConfig(context.Background(), cfg, "/tmp/bridgeui.json")

	assert.False(t, report.ValidStructure)
	assert.Len(t, report.StructureErrors, 1)
	assert.False(t, reportOK(report))
}

func TestReportOK(t *testing.T) {
	assert.True(t, reportOK(models.TestReport{ValidStructure: true}))
	assert.False(t, reportOK(models.TestReport{ValidStructure: true, InconsistentChains: []string{"Optimism"}}))
	assert.False(t, reportOK(models.TestReport{ValidStructure: true, MismatchedChains: []string{"Kovan"}}))
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, models.TestReport{
		ConfigPath:     "cfg.json",
		ValidStructure: true,
		ChainCount:     1,
		Chains: []models.ChainResult{{
			Name:          "Optimism",
			ConfigChainID: 10,
			RPCs: []models.RPCResult{
				{URL: "http://a", Status: "ok", ChainID: 10},
				{URL: "http://b", Status: "error", Error: "dial failed"},
			},
			Inconsistent: true,
		}},
		InconsistentChains: []string{"Optimism"},
	})

	out := buf.String()
	assert.Contains(t, out, "Testing Chain: Optimism (10)")
	assert.Contains(t, out, "Deposit box: not configured")
	assert.Contains(t, out, "http://a ... OK (ChainID: 10, 0ms) - Verified")
	assert.Contains(t, out, "http://b ... Failed: dial failed")
	assert.Contains(t, out, "Inconsistent RPCs detected")
}

func TestLoadOrCreateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridgeui.json")

	cfg, err := loadOrCreateConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.FileExists(t, path)

	cfg.DefaultChainID = 1
	require.NoError(t, config.SaveConfig(cfg, path))
	loaded, err := loadOrCreateConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), loaded.DefaultChainID)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
}

func TestRecipientFromConfig(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, common.Address{}, recipientFromConfig(cfg))

	cfg.Recipient = "0x00000000000000000000000000000000000000aa"
	assert.Equal(t, common.HexToAddress(cfg.Recipient), recipientFromConfig(cfg))
}

func TestNewFeeService(t *testing.T) {
	cfg := config.Default()
	svc, err := newFeeService(cfg)
	require.NoError(t, err)
	assert.IsType(t, &fees.Static{}, svc)

	cfg.RelayFeeURL = "http://fees.local"
	svc, err = newFeeService(cfg)
	require.NoError(t, err)
	assert.IsType(t, &fees.HTTP{}, svc)
}

func TestNewWalletBackend_AddsRegistryChainOnSwitch(t *testing.T) {
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	acct, err := ks.NewAccount("pw")
	require.NoError(t, err)

	cfg := config.Default()
	registry, err := chains.FromConfig(cfg)
	require.NoError(t, err)

	provider, err := newWalletBackend(ks, cfg).Open(context.Background(), wallet.Selection{Account: acct, Passphrase: "pw"})
	require.NoError(t, err)
	defer func() { _ = provider.Close() }()
	assert.Equal(t, cfg.DefaultChainID, provider.ChainID())

	_, err = provider.Request(context.Background(), "wallet_switchEthereumChain", map[string]string{"chainId": "0x1"})
	var perr *wallet.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, wallet.CodeUnrecognizedChain, perr.Code)

	require.NoError(t, wallet.SwitchChain(context.Background(), provider, registry, chains.MainnetChainID))
	assert.Equal(t, chains.MainnetChainID, provider.ChainID())
}
