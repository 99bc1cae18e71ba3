// Package chains holds the static chain registry: per chain id metadata, the
// bridge deposit box address and the coins that can be bridged from it.
package chains

import (
	"fmt"
	"sort"
	"strings"

	"bridgeui/pkg/config"
	"bridgeui/pkg/models"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	MainnetChainID       uint64 = 1
	KovanChainID         uint64 = 42
	OptimismChainID      uint64 = 10
	OptimismKovanChainID uint64 = 69
	LocalChainID         uint64 = 1337

	wrappedNativeSymbol   = "WETH"
	defaultNativeDecimals = 18
	defaultNativeSymbol   = "ETH"
	defaultNativeName     = "Ether"
)

// UnsupportedChainError is returned for chain ids missing from the registry.
type UnsupportedChainError struct {
	ChainID uint64
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("unsupported chain id %d", e.ChainID)
}

// NativeCurrency is serialised as the EIP-3085 nativeCurrency object.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Coin is a selectable asset on a chain. The native asset uses the zero address.
type Coin struct {
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	Decimals int            `json:"decimals"`
	LogoURI  string         `json:"logo_uri,omitempty"`
}

// ChainMetadata is immutable once the registry is built.
type ChainMetadata struct {
	ID             uint64         `json:"id"`
	Name           string         `json:"name"`
	RPCURLs        []string       `json:"rpc_urls"`
	ExplorerURL    string         `json:"explorer_url,omitempty"`
	NativeCurrency NativeCurrency `json:"native_currency"`
	LogoURI        string         `json:"logo_uri,omitempty"`
	DepositBox     common.Address `json:"deposit_box"`
	Coins          []Coin         `json:"coins"`
}

// RPCURL is the primary RPC endpoint, empty when none is known.
func (m ChainMetadata) RPCURL() string {
	if len(m.RPCURLs) == 0 {
		return ""
	}
	return m.RPCURLs[0]
}

// AddEthereumChainParameter is the wallet_addEthereumChain payload (EIP-3085).
type AddEthereumChainParameter struct {
	ChainID           hexutil.Uint64 `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	IconURLs          []string       `json:"iconUrls,omitempty"`
}

// AddChainParams builds the add-chain request. Metadata without a name or an
// RPC endpoint is rejected instead of producing a request with empty fields.
func (m ChainMetadata) AddChainParams() (AddEthereumChainParameter, error) {
	if strings.TrimSpace(m.Name) == "" {
		return AddEthereumChainParameter{}, fmt.Errorf("chain %d has no name", m.ID)
	}
	if m.RPCURL() == "" {
		return AddEthereumChainParameter{}, fmt.Errorf("chain %d (%s) has no rpc url", m.ID, m.Name)
	}
	p := AddEthereumChainParameter{
		ChainID:        hexutil.Uint64(m.ID),
		ChainName:      m.Name,
		RPCURLs:        []string{m.RPCURL()},
		NativeCurrency: m.NativeCurrency,
	}
	if m.ExplorerURL != "" {
		p.BlockExplorerURLs = []string{m.ExplorerURL}
	}
	if m.LogoURI != "" {
		p.IconURLs = []string{m.LogoURI}
	}
	return p, nil
}

// Registry maps chain ids to metadata.
type Registry struct {
	chains map[uint64]ChainMetadata
}

func New(chains ...ChainMetadata) *Registry {
	r := &Registry{chains: make(map[uint64]ChainMetadata, len(chains))}
	for _, c := range chains {
		r.chains[c.ID] = c.clone()
	}
	return r
}

func (m ChainMetadata) clone() ChainMetadata {
	m.RPCURLs = append([]string(nil), m.RPCURLs...)
	m.Coins = append([]Coin(nil), m.Coins...)
	return m
}

func nativeCoin() Coin {
	return Coin{Symbol: defaultNativeSymbol, Address: models.NativeToken, Decimals: defaultNativeDecimals}
}

func ether() NativeCurrency {
	return NativeCurrency{Name: defaultNativeName, Symbol: defaultNativeSymbol, Decimals: defaultNativeDecimals}
}

// Default is the built-in registry. Deposit box addresses are deployment
// specific and come from the config file.
func Default() *Registry {
	return New(
		ChainMetadata{
			ID:             MainnetChainID,
			Name:           "Ethereum Mainnet",
			RPCURLs:        []string{"https://ethereum-rpc.publicnode.com"},
			ExplorerURL:    "https://etherscan.io",
			NativeCurrency: ether(),
			Coins: []Coin{
				nativeCoin(),
				{Symbol: wrappedNativeSymbol, Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18},
			},
		},
		ChainMetadata{
			ID:             KovanChainID,
			Name:           "Kovan",
			ExplorerURL:    "https://kovan.etherscan.io",
			NativeCurrency: ether(),
			Coins: []Coin{
				nativeCoin(),
				{Symbol: wrappedNativeSymbol, Address: common.HexToAddress("0xd0A1E359811322d97991E03f863a0C30C2cF029C"), Decimals: 18},
			},
		},
		ChainMetadata{
			ID:             OptimismChainID,
			Name:           "Optimism",
			RPCURLs:        []string{"https://mainnet.optimism.io"},
			ExplorerURL:    "https://optimistic.etherscan.io",
			NativeCurrency: ether(),
			Coins: []Coin{
				nativeCoin(),
				{Symbol: wrappedNativeSymbol, Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Decimals: 18},
			},
		},
		ChainMetadata{
			ID:             OptimismKovanChainID,
			Name:           "Optimism Kovan",
			RPCURLs:        []string{"https://kovan.optimism.io"},
			ExplorerURL:    "https://kovan-optimistic.etherscan.io",
			NativeCurrency: ether(),
			Coins: []Coin{
				nativeCoin(),
				{Symbol: wrappedNativeSymbol, Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Decimals: 18},
			},
		},
		ChainMetadata{
			ID:             LocalChainID,
			Name:           "Localhost",
			RPCURLs:        []string{"http://127.0.0.1:8545"},
			NativeCurrency: ether(),
			Coins:          []Coin{nativeCoin()},
		},
	)
}

// FromConfig starts from Default and applies the configured chains. Fields set
// in the config replace the built-in ones; configured tokens are appended to
// the coin list unless a coin with the same symbol exists.
func FromConfig(cfg config.Config) (*Registry, error) {
	r := Default()
	for _, cc := range cfg.Chains {
		m, ok := r.chains[cc.ChainID]
		if !ok {
			m = ChainMetadata{ID: cc.ChainID, NativeCurrency: ether(), Coins: []Coin{nativeCoin()}}
		}
		if cc.Name != "" {
			m.Name = cc.Name
		}
		if len(cc.RPCURLs) > 0 {
			m.RPCURLs = append([]string(nil), cc.RPCURLs...)
		}
		if cc.ExplorerURL != "" {
			m.ExplorerURL = cc.ExplorerURL
		}
		if cc.LogoURI != "" {
			m.LogoURI = cc.LogoURI
		}
		if cc.NativeCurrency != nil {
			m.NativeCurrency = NativeCurrency{Name: cc.NativeCurrency.Name, Symbol: cc.NativeCurrency.Symbol, Decimals: cc.NativeCurrency.Decimals}
		}
		if cc.DepositBox != "" {
			if !common.IsHexAddress(cc.DepositBox) {
				return nil, fmt.Errorf("chain %d: invalid deposit_box %q", cc.ChainID, cc.DepositBox)
			}
			m.DepositBox = common.HexToAddress(cc.DepositBox)
		}
		m.Coins = append([]Coin(nil), m.Coins...)
		for _, t := range cc.Tokens {
			if !common.IsHexAddress(t.Address) {
				return nil, fmt.Errorf("chain %d: token %s has invalid address %q", cc.ChainID, t.Symbol, t.Address)
			}
			coin := Coin{Symbol: t.Symbol, Address: common.HexToAddress(t.Address), Decimals: t.Decimals, LogoURI: t.LogoURI}
			replaced := false
			for i := range m.Coins {
				if strings.EqualFold(m.Coins[i].Symbol, coin.Symbol) {
					m.Coins[i] = coin
					replaced = true
					break
				}
			}
			if !replaced {
				m.Coins = append(m.Coins, coin)
			}
		}
		r.chains[cc.ChainID] = m
	}
	return r, nil
}

// Lookup returns a copy of the chain's metadata.
func (r *Registry) Lookup(chainID uint64) (ChainMetadata, error) {
	m, ok := r.chains[chainID]
	if !ok {
		return ChainMetadata{}, &UnsupportedChainError{ChainID: chainID}
	}
	return m.clone(), nil
}

func (r *Registry) IsSupported(chainID uint64) bool {
	_, ok := r.chains[chainID]
	return ok
}

// IDs returns the registered chain ids in ascending order.
func (r *Registry) IDs() []uint64 {
	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) Coins(chainID uint64) ([]Coin, error) {
	m, err := r.Lookup(chainID)
	if err != nil {
		return nil, err
	}
	return m.Coins, nil
}

// Coin finds a coin by address.
func (r *Registry) Coin(chainID uint64, token common.Address) (Coin, error) {
	coins, err := r.Coins(chainID)
	if err != nil {
		return Coin{}, err
	}
	for _, c := range coins {
		if c.Address == token {
			return c, nil
		}
	}
	return Coin{}, fmt.Errorf("token %s is not listed on chain %d", token.Hex(), chainID)
}

func (r *Registry) CoinBySymbol(chainID uint64, symbol string) (Coin, error) {
	coins, err := r.Coins(chainID)
	if err != nil {
		return Coin{}, err
	}
	for _, c := range coins {
		if strings.EqualFold(c.Symbol, symbol) {
			return c, nil
		}
	}
	return Coin{}, fmt.Errorf("coin %s is not listed on chain %d", symbol, chainID)
}

// WrappedNative is the token deposited on behalf of native-asset sends.
func (r *Registry) WrappedNative(chainID uint64) (Coin, error) {
	c, err := r.CoinBySymbol(chainID, wrappedNativeSymbol)
	if err != nil {
		return Coin{}, fmt.Errorf("%s address not found: %w", wrappedNativeSymbol, err)
	}
	return c, nil
}

func (r *Registry) DepositBox(chainID uint64) (common.Address, error) {
	m, err := r.Lookup(chainID)
	if err != nil {
		return common.Address{}, err
	}
	if m.DepositBox == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no deposit box configured for chain %d (%s)", chainID, m.Name)
	}
	return m.DepositBox, nil
}

// TokenAddresses lists the distinct coin addresses of a chain, native first.
func (r *Registry) TokenAddresses(chainID uint64) ([]common.Address, error) {
	coins, err := r.Coins(chainID)
	if err != nil {
		return nil, err
	}
	seen := mapset.NewThreadUnsafeSet[common.Address]()
	out := make([]common.Address, 0, len(coins))
	for _, c := range coins {
		if seen.Add(c.Address) {
			out = append(out, c.Address)
		}
	}
	return out, nil
}
