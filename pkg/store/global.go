package store

import (
	"math/big"
	"sort"
	"sync"

	"bridgeui/pkg/models"
	"bridgeui/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// DefaultChainID is the current chain before any wallet event arrives.
const DefaultChainID uint64 = 10

// ChangeKind identifies what a GlobalStore write touched.
type ChangeKind string

const (
	ChangeBalances    ChangeKind = "balances"
	ChangeTransaction ChangeKind = "transaction"
	ChangePointers    ChangeKind = "pointers"
)

type Change struct {
	Kind    ChangeKind
	ChainID uint64
	Account common.Address
	TxHash  common.Hash
}

// AccountState is the mirror of one (chain, account) pair.
type AccountState struct {
	Balances     map[common.Address]*big.Int
	Transactions map[common.Hash]models.Transaction
	Provider     wallet.Provider
	Signer       wallet.Signer
}

func newAccountState() *AccountState {
	return &AccountState{
		Balances:     make(map[common.Address]*big.Int),
		Transactions: make(map[common.Hash]models.Transaction),
	}
}

func (a *AccountState) clone() AccountState {
	out := AccountState{
		Balances:     make(map[common.Address]*big.Int, len(a.Balances)),
		Transactions: make(map[common.Hash]models.Transaction, len(a.Transactions)),
		Provider:     a.Provider,
		Signer:       a.Signer,
	}
	for k, v := range a.Balances {
		out.Balances[k] = new(big.Int).Set(v)
	}
	for k, v := range a.Transactions {
		out.Transactions[k] = v
	}
	return out
}

type accountKey struct {
	chainID uint64
	account common.Address
}

// GlobalStore keeps per-chain account state for the whole session. Entries
// are created on first write and are never merged across chains.
type GlobalStore struct {
	mu             sync.RWMutex
	currentChainID uint64
	currentAccount common.Address
	accounts       map[accountKey]*AccountState

	feed event.Feed
}

func NewGlobalStore(defaultChainID uint64) *GlobalStore {
	if defaultChainID == 0 {
		defaultChainID = DefaultChainID
	}
	return &GlobalStore{
		currentChainID: defaultChainID,
		accounts:       make(map[accountKey]*AccountState),
	}
}

// Subscribe delivers a Change after every write. Writers block until all
// subscribers have taken the change, so subscribers must drain promptly.
func (g *GlobalStore) Subscribe(ch chan<- Change) event.Subscription {
	return g.feed.Subscribe(ch)
}

func (g *GlobalStore) accountLocked(chainID uint64, account common.Address) *AccountState {
	key := accountKey{chainID: chainID, account: account}
	st, ok := g.accounts[key]
	if !ok {
		st = newAccountState()
		g.accounts[key] = st
	}
	return st
}

// RecordBalances replaces the balance map of (chainID, account).
func (g *GlobalStore) RecordBalances(chainID uint64, account common.Address, balances map[common.Address]*big.Int) {
	g.mu.Lock()
	st := g.accountLocked(chainID, account)
	st.Balances = make(map[common.Address]*big.Int, len(balances))
	for token, amount := range balances {
		if amount == nil {
			continue
		}
		st.Balances[token] = new(big.Int).Set(amount)
	}
	g.mu.Unlock()

	g.feed.Send(Change{Kind: ChangeBalances, ChainID: chainID, Account: account})
}

// RecordTransaction upserts tx by hash. A transaction without a hash was
// never sent and is ignored; the return value reports whether tx was stored.
func (g *GlobalStore) RecordTransaction(chainID uint64, account common.Address, tx models.Transaction) bool {
	if tx.Hash == (common.Hash{}) {
		return false
	}
	g.mu.Lock()
	g.accountLocked(chainID, account).Transactions[tx.Hash] = tx
	g.mu.Unlock()

	g.feed.Send(Change{Kind: ChangeTransaction, ChainID: chainID, Account: account, TxHash: tx.Hash})
	return true
}

// ApplyConnection moves the current chain and account pointers. Chain id 0
// and the zero address are "no value" and never overwrite a pointer. When an
// account is known the provider and signer are attached to its state.
func (g *GlobalStore) ApplyConnection(u Update) {
	g.mu.Lock()
	if u.ChainID != 0 {
		g.currentChainID = u.ChainID
	}
	if u.Account != (common.Address{}) {
		g.currentAccount = u.Account
	}
	chainID, account := g.currentChainID, g.currentAccount
	if account != (common.Address{}) && (u.Provider != nil || u.Signer != nil) {
		st := g.accountLocked(chainID, account)
		if u.Provider != nil {
			st.Provider = u.Provider
		}
		if u.Signer != nil {
			st.Signer = u.Signer
		}
	}
	g.mu.Unlock()

	g.feed.Send(Change{Kind: ChangePointers, ChainID: chainID, Account: account})
}

func (g *GlobalStore) CurrentChainID() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.currentChainID
}

func (g *GlobalStore) CurrentAccount() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.currentAccount
}

// Account returns a copy of the state of (chainID, account).
func (g *GlobalStore) Account(chainID uint64, account common.Address) (AccountState, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.accounts[accountKey{chainID: chainID, account: account}]
	if !ok {
		return AccountState{}, false
	}
	return st.clone(), true
}

func (g *GlobalStore) Balances(chainID uint64, account common.Address) map[common.Address]*big.Int {
	st, ok := g.Account(chainID, account)
	if !ok {
		return map[common.Address]*big.Int{}
	}
	return st.Balances
}

// Transactions lists the recorded transactions, newest first.
func (g *GlobalStore) Transactions(chainID uint64, account common.Address) []models.Transaction {
	st, ok := g.Account(chainID, account)
	if !ok {
		return nil
	}
	txs := make([]models.Transaction, 0, len(st.Transactions))
	for _, tx := range st.Transactions {
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].SubmittedAt.Equal(txs[j].SubmittedAt) {
			return txs[i].Hash.Hex() < txs[j].Hash.Hex()
		}
		return txs[i].SubmittedAt.After(txs[j].SubmittedAt)
	})
	return txs
}
