package store

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"bridgeui/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	usdc  = common.HexToAddress("0x7F5c764cBc14f9669B88837ca1490cCa17c31607")
)

type stubSigner struct {
	addr    common.Address
	chainID uint64
}

func (s stubSigner) Address() common.Address { return s.addr }
func (s stubSigner) ChainID() uint64         { return s.chainID }
func (s stubSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: s.addr, Context: ctx}, nil
}

func TestConnectionStore(t *testing.T) {
	s := NewConnectionStore()
	assert.False(t, s.IsConnected())

	s.Connect(Update{Account: alice, ChainID: 10, Signer: stubSigner{addr: alice, chainID: 10}})
	snap := s.Snapshot()
	assert.Equal(t, alice, snap.Account)
	assert.Equal(t, uint64(10), snap.ChainID)

	// empty fields do not overwrite
	s.Update(Update{ChainID: 0, Account: common.Address{}})
	snap = s.Snapshot()
	assert.Equal(t, alice, snap.Account)
	assert.Equal(t, uint64(10), snap.ChainID)

	s.SetError(errors.New("unsupported chain id 5"))
	s.Update(Update{ChainID: 5})
	snap = s.Snapshot()
	assert.Equal(t, uint64(5), snap.ChainID)
	assert.NoError(t, snap.Err)

	s.SetError(errors.New("boom"))
	s.Disconnect()
	assert.Equal(t, ConnectionState{}, s.Snapshot())
}

func TestGlobalStore_DefaultChain(t *testing.T) {
	assert.Equal(t, DefaultChainID, NewGlobalStore(0).CurrentChainID())
	assert.Equal(t, uint64(69), NewGlobalStore(69).CurrentChainID())
}

func TestGlobalStore_PointerIgnoresFalsyValues(t *testing.T) {
	g := NewGlobalStore(10)

	g.ApplyConnection(Update{ChainID: 0, Account: alice})
	assert.Equal(t, uint64(10), g.CurrentChainID())
	assert.Equal(t, alice, g.CurrentAccount())

	g.ApplyConnection(Update{ChainID: 69})
	assert.Equal(t, uint64(69), g.CurrentChainID())
	assert.Equal(t, alice, g.CurrentAccount())

	g.ApplyConnection(Update{})
	assert.Equal(t, uint64(69), g.CurrentChainID())
	assert.Equal(t, alice, g.CurrentAccount())
}

func TestGlobalStore_ApplyConnectionAttachesSigner(t *testing.T) {
	g := NewGlobalStore(10)
	signer := stubSigner{addr: alice, chainID: 10}
	g.ApplyConnection(Update{ChainID: 10, Account: alice, Signer: signer})

	st, ok := g.Account(10, alice)
	require.True(t, ok)
	assert.Equal(t, signer, st.Signer)

	_, ok = g.Account(69, alice)
	assert.False(t, ok)
}

func TestGlobalStore_RecordBalancesReplaces(t *testing.T) {
	g := NewGlobalStore(10)
	g.RecordBalances(10, alice, map[common.Address]*big.Int{
		models.NativeToken: big.NewInt(1),
		usdc:               big.NewInt(2),
	})
	g.RecordBalances(10, alice, map[common.Address]*big.Int{
		usdc: big.NewInt(3),
	})

	bal := g.Balances(10, alice)
	assert.Len(t, bal, 1)
	assert.Equal(t, big.NewInt(3), bal[usdc])

	// keyed by (chain, account), never merged
	assert.Empty(t, g.Balances(69, alice))
	assert.Empty(t, g.Balances(10, bob))

	// callers get copies
	bal[usdc].SetInt64(99)
	assert.Equal(t, big.NewInt(3), g.Balances(10, alice)[usdc])
}

func TestGlobalStore_RecordTransaction(t *testing.T) {
	g := NewGlobalStore(10)

	assert.False(t, g.RecordTransaction(10, alice, models.Transaction{Meta: models.DepositMeta{}}))
	_, ok := g.Account(10, alice)
	assert.False(t, ok, "an empty hash must not create state")

	tx := models.Transaction{
		Hash:        common.HexToHash("0x01"),
		ChainID:     10,
		Value:       big.NewInt(100),
		Meta:        models.DepositMeta{Amount: big.NewInt(100)},
		SubmittedAt: time.Unix(100, 0),
	}
	assert.True(t, g.RecordTransaction(10, alice, tx))
	once := g.Transactions(10, alice)
	assert.True(t, g.RecordTransaction(10, alice, tx))
	assert.Equal(t, once, g.Transactions(10, alice))
	require.Len(t, once, 1)
	assert.Equal(t, "deposit", once[0].Label())

	// upsert overwrites with the latest fields
	tx.Nonce = 7
	g.RecordTransaction(10, alice, tx)
	txs := g.Transactions(10, alice)
	require.Len(t, txs, 1)
	assert.Equal(t, uint64(7), txs[0].Nonce)

	approve := models.Transaction{
		Hash:        common.HexToHash("0x02"),
		Meta:        models.ApproveMeta{Token: usdc},
		SubmittedAt: time.Unix(50, 0),
	}
	g.RecordTransaction(10, alice, approve)
	txs = g.Transactions(10, alice)
	require.Len(t, txs, 2)
	assert.Equal(t, tx.Hash, txs[0].Hash, "newest first")
	assert.Equal(t, "approve", txs[1].Label())
}

func TestGlobalStore_Subscribe(t *testing.T) {
	g := NewGlobalStore(10)
	ch := make(chan Change, 4)
	sub := g.Subscribe(ch)
	defer sub.Unsubscribe()

	g.RecordBalances(10, alice, nil)
	g.RecordTransaction(10, alice, models.Transaction{})
	g.RecordTransaction(10, alice, models.Transaction{Hash: common.HexToHash("0x03")})

	assert.Equal(t, ChangeBalances, (<-ch).Kind)
	c := <-ch
	assert.Equal(t, ChangeTransaction, c.Kind)
	assert.Equal(t, common.HexToHash("0x03"), c.TxHash)
	assert.Empty(t, ch)
}
