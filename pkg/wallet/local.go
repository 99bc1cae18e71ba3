package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"bridgeui/pkg/chains"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
)

var errProviderClosed = errors.New("provider closed")

// LocalProvider is a Provider backed by an unlocked keystore account. It
// behaves like a browser wallet: it only switches to chains it knows and
// learns new ones through wallet_addEthereumChain.
type LocalProvider struct {
	ks      *keystore.KeyStore
	account accounts.Account
	known   mapset.Set[uint64]

	mu      sync.RWMutex
	chainID uint64
	closed  bool

	feed      event.Feed
	scope     event.SubscriptionScope
	ksSub     event.Subscription
	quit      chan struct{}
	closeOnce sync.Once
}

// NewLocalProvider starts on chainID. Other chains must be added with
// wallet_addEthereumChain before the wallet can switch to them.
func NewLocalProvider(ks *keystore.KeyStore, account accounts.Account, chainID uint64) *LocalProvider {
	p := &LocalProvider{
		ks:      ks,
		account: account,
		known:   mapset.NewSet[uint64](),
		chainID: chainID,
		quit:    make(chan struct{}),
	}
	p.known.Add(chainID)

	walletEvents := make(chan accounts.WalletEvent, 8)
	p.ksSub = ks.Subscribe(walletEvents)
	go p.watchKeystore(walletEvents)
	return p
}

// watchKeystore turns the removal of the account's key file into a
// disconnect event.
func (p *LocalProvider) watchKeystore(ch <-chan accounts.WalletEvent) {
	for {
		select {
		case ev := <-ch:
			if ev.Kind != accounts.WalletDropped || !ev.Wallet.Contains(p.account) {
				continue
			}
			Logger.Warn().Str("account", p.account.Address.Hex()).Msg("Keystore account removed")
			p.feed.Send(Event{Kind: EventDisconnected})
		case <-p.ksSub.Err():
			return
		case <-p.quit:
			return
		}
	}
}

func (p *LocalProvider) Accounts() []common.Address {
	return []common.Address{p.account.Address}
}

func (p *LocalProvider) ChainID() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.chainID
}

func (p *LocalProvider) Signer() (Signer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, errProviderClosed
	}
	return &keystoreSigner{ks: p.ks, account: p.account, chainID: p.chainID}, nil
}

func (p *LocalProvider) Subscribe(ch chan<- Event) event.Subscription {
	return p.scope.Track(p.feed.Subscribe(ch))
}

// Close ends the session and locks the account again.
func (p *LocalProvider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.quit)
		p.ksSub.Unsubscribe()
		p.scope.Close()
		err = p.ks.Lock(p.account.Address)
	})
	return err
}

func (p *LocalProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, errProviderClosed
	}

	switch method {
	case "eth_chainId":
		return json.Marshal(hexutil.Uint64(p.ChainID()))
	case "eth_accounts", "eth_requestAccounts":
		return json.Marshal(p.Accounts())
	case "wallet_switchEthereumChain":
		var req struct {
			ChainID hexutil.Uint64 `json:"chainId"`
		}
		if err := decodeParam(params, 0, &req); err != nil {
			return nil, err
		}
		if err := p.switchTo(uint64(req.ChainID)); err != nil {
			return nil, err
		}
		return json.RawMessage("null"), nil
	case "wallet_addEthereumChain":
		var req chains.AddEthereumChainParameter
		if err := decodeParam(params, 0, &req); err != nil {
			return nil, err
		}
		if req.ChainID == 0 || strings.TrimSpace(req.ChainName) == "" || len(req.RPCURLs) == 0 {
			return nil, &ProviderError{Code: CodeInvalidParams, Message: "chainId, chainName and rpcUrls are required"}
		}
		p.known.Add(uint64(req.ChainID))
		Logger.Info().Uint64("chain_id", uint64(req.ChainID)).Str("name", req.ChainName).Msg("Chain added to wallet")
		// Adding a chain also selects it, as browser wallets do.
		if err := p.switchTo(uint64(req.ChainID)); err != nil {
			return nil, err
		}
		return json.RawMessage("null"), nil
	default:
		return nil, &ProviderError{Code: CodeUnsupportedMethod, Message: fmt.Sprintf("method %s is not supported", method)}
	}
}

func (p *LocalProvider) switchTo(chainID uint64) error {
	if !p.known.Contains(chainID) {
		return &ProviderError{
			Code:    CodeUnrecognizedChain,
			Message: fmt.Sprintf("Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", hexutil.EncodeUint64(chainID)),
		}
	}

	p.mu.Lock()
	if p.chainID == chainID {
		p.mu.Unlock()
		return nil
	}
	p.chainID = chainID
	signer := &keystoreSigner{ks: p.ks, account: p.account, chainID: chainID}
	p.mu.Unlock()

	// Feed.Send blocks until subscribers take the event, so it runs unlocked.
	p.feed.Send(Event{Kind: EventNetworkChanged, ChainID: chainID, Signer: signer})
	return nil
}

func decodeParam(params []any, i int, dst any) error {
	if i >= len(params) {
		return &ProviderError{Code: CodeInvalidParams, Message: "missing params"}
	}
	raw, err := json.Marshal(params[i])
	if err != nil {
		return &ProviderError{Code: CodeInvalidParams, Message: err.Error()}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ProviderError{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

type keystoreSigner struct {
	ks      *keystore.KeyStore
	account accounts.Account
	chainID uint64
}

func (s *keystoreSigner) Address() common.Address { return s.account.Address }

func (s *keystoreSigner) ChainID() uint64 { return s.chainID }

func (s *keystoreSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyStoreTransactorWithChainID(s.ks, s.account, new(big.Int).SetUint64(s.chainID))
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}
