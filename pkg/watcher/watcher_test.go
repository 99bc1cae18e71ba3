package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"bridgeui/pkg/chains"
	"bridgeui/pkg/models"
	"bridgeui/pkg/store"
	"bridgeui/pkg/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) FetchBalances(ctx context.Context, chainID uint64, account common.Address, tokens []common.Address) (map[common.Address]*big.Int, error) {
	args := m.Called(ctx, chainID, account, tokens)
	balances, _ := args.Get(0).(map[common.Address]*big.Int)
	return balances, args.Error(1)
}

func (m *MockDataSource) FetchGasPrice(ctx context.Context, chainID uint64) (models.GasPriceData, error) {
	args := m.Called(ctx, chainID)
	return args.Get(0).(models.GasPriceData), args.Error(1)
}

type stubProvider struct{}

func (stubProvider) Request(context.Context, string, ...any) (json.RawMessage, error) {
	return nil, nil
}
func (stubProvider) Accounts() []common.Address     { return []common.Address{testAccount} }
func (stubProvider) ChainID() uint64                { return 10 }
func (stubProvider) Signer() (wallet.Signer, error) { return stubSigner{}, nil }
func (stubProvider) Close() error                   { return nil }
func (stubProvider) Subscribe(chan<- wallet.Event) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error { <-quit; return nil })
}

type stubSigner struct{}

func (stubSigner) Address() common.Address { return testAccount }
func (stubSigner) ChainID() uint64         { return 10 }
func (stubSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: testAccount, Context: ctx}, nil
}

func newTestWatcher() (*Watcher, *store.ConnectionStore, *store.GlobalStore) {
	conn := store.NewConnectionStore()
	global := store.NewGlobalStore(10)
	return NewWatcher(chains.Default(), conn, global, time.Hour, time.Second), conn, global
}

func waitFor(t *testing.T, sub Subscriber, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return Event{}
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	w, _, _ := newTestWatcher()
	sub := w.Subscribe()
	assert.NotNil(t, sub)

	w.mu.RLock()
	assert.Equal(t, 1, len(w.subscribers))
	w.mu.RUnlock()

	w.Unsubscribe(sub)
	w.mu.RLock()
	assert.Equal(t, 0, len(w.subscribers))
	w.mu.RUnlock()
}

func TestApply_Connected(t *testing.T) {
	w, conn, global := newTestWatcher()
	sub := w.Subscribe()

	changed := w.Apply(wallet.Event{Kind: wallet.EventConnected, Account: testAccount, ChainID: 1, Provider: stubProvider{}, Signer: stubSigner{}})
	assert.True(t, changed)

	state := conn.Snapshot()
	assert.True(t, state.Connected())
	assert.Equal(t, uint64(1), state.ChainID)
	assert.NoError(t, state.Err)
	assert.Equal(t, uint64(1), global.CurrentChainID())
	assert.Equal(t, testAccount, global.CurrentAccount())

	acc, ok := global.Account(1, testAccount)
	require.True(t, ok)
	assert.NotNil(t, acc.Signer)

	ev := waitFor(t, sub, EventConnectionUpdated)
	assert.Equal(t, testAccount, ev.Data.(store.ConnectionState).Account)
}

func TestApply_UnsupportedNetworkStillUpdatesChain(t *testing.T) {
	w, conn, global := newTestWatcher()
	w.Apply(wallet.Event{Kind: wallet.EventConnected, Account: testAccount, ChainID: 10, Provider: stubProvider{}})

	w.Apply(wallet.Event{Kind: wallet.EventNetworkChanged, ChainID: 5})

	state := conn.Snapshot()
	assert.Equal(t, uint64(5), state.ChainID)
	var unsupported *chains.UnsupportedChainError
	require.ErrorAs(t, state.Err, &unsupported)
	assert.Equal(t, uint64(5), unsupported.ChainID)
	assert.Equal(t, uint64(5), global.CurrentChainID())

	// Moving back to a known chain clears the error.
	w.Apply(wallet.Event{Kind: wallet.EventNetworkChanged, ChainID: 10})
	assert.NoError(t, conn.Snapshot().Err)
}

func TestApply_ZeroValuesKeepPointers(t *testing.T) {
	w, _, global := newTestWatcher()
	w.Apply(wallet.Event{Kind: wallet.EventConnected, Account: testAccount, ChainID: 69, Provider: stubProvider{}})

	changed := w.Apply(wallet.Event{Kind: wallet.EventNetworkChanged, ChainID: 0})
	assert.False(t, changed)
	assert.Equal(t, uint64(69), global.CurrentChainID())

	changed = w.Apply(wallet.Event{Kind: wallet.EventAccountChanged})
	assert.False(t, changed)
	assert.Equal(t, testAccount, global.CurrentAccount())
}

func TestApply_Disconnected(t *testing.T) {
	w, conn, global := newTestWatcher()
	w.Apply(wallet.Event{Kind: wallet.EventConnected, Account: testAccount, ChainID: 10, Provider: stubProvider{}})

	changed := w.Apply(wallet.Event{Kind: wallet.EventDisconnected})
	assert.False(t, changed)
	assert.False(t, conn.IsConnected())
	assert.Equal(t, store.ConnectionState{}, conn.Snapshot())
	// The global pointers keep the last session.
	assert.Equal(t, testAccount, global.CurrentAccount())
}

func TestFetchAll(t *testing.T) {
	mockDS := new(MockDataSource)
	w, _, global := newTestWatcher()
	w.SetDataSource(mockDS)
	global.ApplyConnection(store.Update{Account: testAccount, ChainID: 10})

	mockDS.On("FetchGasPrice", mock.Anything, uint64(10)).Return(models.GasPriceData{ChainID: 10, Price: big.NewInt(20000000000)}, nil)
	mockDS.On("FetchBalances", mock.Anything, uint64(10), testAccount, mock.Anything).Return(map[common.Address]*big.Int{}, nil)

	sub := w.Subscribe()
	w.Refresh(context.Background())

	mockDS.AssertExpectations(t)
	assert.Equal(t, "20000000000", w.GetGasPrice(10).String())
	history := w.GetGasHistory(10)
	require.Len(t, history, 1)
	assert.InDelta(t, 20.0, history[0].Value, 1e-9)
	assert.Nil(t, w.GetGasPrice(1))

	ev := waitFor(t, sub, EventGasPriceUpdated)
	assert.Equal(t, uint64(10), ev.Data.(models.GasPriceData).ChainID)
}

func TestFetchAll_BalanceFailure(t *testing.T) {
	mockDS := new(MockDataSource)
	w, _, global := newTestWatcher()
	w.SetDataSource(mockDS)
	global.ApplyConnection(store.Update{Account: testAccount, ChainID: 10})

	mockDS.On("FetchGasPrice", mock.Anything, uint64(10)).Return(models.GasPriceData{}, errors.New("down"))
	mockDS.On("FetchBalances", mock.Anything, uint64(10), testAccount, mock.Anything).Return(nil, errors.New("balanceOf reverted"))

	sub := w.Subscribe()
	w.Refresh(context.Background())

	ev := waitFor(t, sub, EventQueryFailed)
	failure := ev.Data.(QueryFailure)
	assert.Equal(t, uint64(10), failure.ChainID)
	assert.EqualError(t, failure.Err, "balanceOf reverted")
	assert.Empty(t, w.GetGasHistory(10))
}

func TestLastQueryError(t *testing.T) {
	mockDS := new(MockDataSource)
	w, _, global := newTestWatcher()
	w.SetDataSource(mockDS)
	global.ApplyConnection(store.Update{Account: testAccount, ChainID: 10})

	_, ok := w.LastQueryError()
	assert.False(t, ok)

	mockDS.On("FetchGasPrice", mock.Anything, uint64(10)).Return(models.GasPriceData{}, errors.New("down"))
	failing := mockDS.On("FetchBalances", mock.Anything, uint64(10), testAccount, mock.Anything).Return(nil, errors.New("balanceOf reverted"))

	w.Refresh(context.Background())
	failure, ok := w.LastQueryError()
	require.True(t, ok)
	assert.Equal(t, uint64(10), failure.ChainID)
	assert.EqualError(t, failure.Err, "balanceOf reverted")

	failing.Unset()
	mockDS.On("FetchBalances", mock.Anything, uint64(10), testAccount, mock.Anything).Return(map[common.Address]*big.Int{}, nil)

	w.Refresh(context.Background())
	_, ok = w.LastQueryError()
	assert.False(t, ok)
}

func TestFetchAll_NoAccountSkipsBalances(t *testing.T) {
	mockDS := new(MockDataSource)
	w, _, _ := newTestWatcher()
	w.SetDataSource(mockDS)

	mockDS.On("FetchGasPrice", mock.Anything, uint64(10)).Return(models.GasPriceData{ChainID: 10, Price: big.NewInt(1)}, nil)

	w.Refresh(context.Background())
	mockDS.AssertNotCalled(t, "FetchBalances", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionLoop(t *testing.T) {
	w, conn, _ := newTestWatcher()
	sub := w.Subscribe()
	events := make(chan wallet.Event, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, events, nil)
	defer w.Stop()

	events <- wallet.Event{Kind: wallet.EventConnected, Account: testAccount, ChainID: 10, Provider: stubProvider{}, Signer: stubSigner{}}

	ev := waitFor(t, sub, EventConnectionUpdated)
	assert.True(t, ev.Data.(store.ConnectionState).Connected())
	change := waitFor(t, sub, EventStoreChanged).Data.(store.Change)
	assert.Equal(t, store.ChangePointers, change.Kind)
	assert.True(t, conn.IsConnected())

	events <- wallet.Event{Kind: wallet.EventDisconnected}
	ev = waitFor(t, sub, EventConnectionUpdated)
	assert.False(t, ev.Data.(store.ConnectionState).Connected())
}
