package chains

import (
	"errors"
	"testing"

	"bridgeui/pkg/config"
	"bridgeui/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	r := Default()

	m, err := r.Lookup(OptimismChainID)
	require.NoError(t, err)
	assert.Equal(t, "Optimism", m.Name)
	assert.Equal(t, "https://mainnet.optimism.io", m.RPCURL())
	assert.True(t, r.IsSupported(MainnetChainID))

	_, err = r.Lookup(31337)
	var unsupported *UnsupportedChainError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, uint64(31337), unsupported.ChainID)
	assert.False(t, r.IsSupported(31337))
}

func TestLookupReturnsCopy(t *testing.T) {
	r := Default()

	m, err := r.Lookup(OptimismChainID)
	require.NoError(t, err)
	m.RPCURLs[0] = "http://evil"
	m.Coins[0].Symbol = "FAKE"

	coins, err := r.Coins(OptimismChainID)
	require.NoError(t, err)
	coins[1].Decimals = 0

	again, err := r.Lookup(OptimismChainID)
	require.NoError(t, err)
	assert.Equal(t, "https://mainnet.optimism.io", again.RPCURL())
	assert.Equal(t, "ETH", again.Coins[0].Symbol)
	assert.Equal(t, 18, again.Coins[1].Decimals)

	urls := []string{"http://a"}
	custom := New(ChainMetadata{ID: 5, Name: "Goerli", RPCURLs: urls})
	urls[0] = "http://b"
	m, err = custom.Lookup(5)
	require.NoError(t, err)
	assert.Equal(t, "http://a", m.RPCURL())
}

func TestIDsSorted(t *testing.T) {
	assert.Equal(t, []uint64{1, 10, 42, 69, 1337}, Default().IDs())
}

func TestCoinsIncludeNative(t *testing.T) {
	r := Default()
	coins, err := r.Coins(OptimismChainID)
	require.NoError(t, err)
	require.NotEmpty(t, coins)
	assert.True(t, models.IsNative(coins[0].Address))

	weth, err := r.WrappedNative(OptimismChainID)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x4200000000000000000000000000000000000006"), weth.Address)

	_, err = r.WrappedNative(LocalChainID)
	assert.Error(t, err)
}

func TestDepositBoxRequiresConfig(t *testing.T) {
	r := Default()
	_, err := r.DepositBox(OptimismChainID)
	assert.Error(t, err)

	r, err = FromConfig(config.Config{Chains: []config.ChainConfig{
		{ChainID: OptimismChainID, DepositBox: "0x3baD7AD0728f9917d1Bf08af5782dCbD516cDd96"},
	}})
	require.NoError(t, err)
	box, err := r.DepositBox(OptimismChainID)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x3baD7AD0728f9917d1Bf08af5782dCbD516cDd96"), box)

	// untouched fields keep their built-in values
	m, _ := r.Lookup(OptimismChainID)
	assert.Equal(t, "Optimism", m.Name)
}

func TestFromConfig(t *testing.T) {
	usdc := "0x7F5c764cBc14f9669B88837ca1490cCa17c31607"
	r, err := FromConfig(config.Config{Chains: []config.ChainConfig{
		{
			ChainID: OptimismChainID,
			RPCURLs: []string{"http://op.local"},
			Tokens:  []config.TokenConfig{{Symbol: "USDC", Address: usdc, Decimals: 6}},
		},
		{
			ChainID: 8453,
			Name:    "Base",
			RPCURLs: []string{"https://mainnet.base.org"},
			NativeCurrency: &config.NativeCurrency{
				Name: "Ether", Symbol: "ETH", Decimals: 18,
			},
		},
	}})
	require.NoError(t, err)

	coin, err := r.CoinBySymbol(OptimismChainID, "usdc")
	require.NoError(t, err)
	assert.Equal(t, 6, coin.Decimals)
	assert.Equal(t, common.HexToAddress(usdc), coin.Address)

	m, err := r.Lookup(OptimismChainID)
	require.NoError(t, err)
	assert.Equal(t, "http://op.local", m.RPCURL())

	// the default registry is not mutated
	defaultCoins, _ := Default().Coins(OptimismChainID)
	assert.Len(t, defaultCoins, 2)

	assert.True(t, r.IsSupported(8453))

	_, err = FromConfig(config.Config{Chains: []config.ChainConfig{{ChainID: 1, DepositBox: "nope"}}})
	assert.Error(t, err)
}

func TestAddChainParams(t *testing.T) {
	m, err := Default().Lookup(OptimismKovanChainID)
	require.NoError(t, err)

	p, err := m.AddChainParams()
	require.NoError(t, err)
	assert.Equal(t, hexutil.Uint64(69), p.ChainID)
	assert.Equal(t, "Optimism Kovan", p.ChainName)
	assert.Equal(t, []string{"https://kovan.optimism.io"}, p.RPCURLs)
	assert.Equal(t, []string{"https://kovan-optimistic.etherscan.io"}, p.BlockExplorerURLs)
	assert.Equal(t, "ETH", p.NativeCurrency.Symbol)

	// Kovan has no rpc url, so there is nothing valid to add
	kovan, _ := Default().Lookup(KovanChainID)
	_, err = kovan.AddChainParams()
	assert.Error(t, err)
}

func TestTokenAddressesDedupe(t *testing.T) {
	weth := common.HexToAddress("0x4200000000000000000000000000000000000006")
	r := New(ChainMetadata{
		ID: 10,
		Coins: []Coin{
			{Symbol: "ETH", Address: models.NativeToken},
			{Symbol: "WETH", Address: weth},
			{Symbol: "WETH.e", Address: weth},
		},
	})
	tokens, err := r.TokenAddresses(10)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{models.NativeToken, weth}, tokens)
}
