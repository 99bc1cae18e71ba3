// Package watcher runs the session loop: it applies wallet events to the
// stores, refreshes balances and gas prices, and fans store and send changes
// out to subscribers.
package watcher

import (
	"context"
	"math/big"
	"sync"
	"time"

	"bridgeui/pkg/chains"
	"bridgeui/pkg/metrics"
	"bridgeui/pkg/models"
	"bridgeui/pkg/rpc"
	"bridgeui/pkg/send"
	"bridgeui/pkg/store"
	"bridgeui/pkg/utils"
	"bridgeui/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var Logger = zerolog.Nop()

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

const (
	defaultRefresh  = 30 * time.Second
	gasHistoryLimit = 2880 // 24h at a 30s refresh
	storeBuffer     = 64
)

// DataSource defines the interface for fetching data.
type DataSource interface {
	FetchBalances(ctx context.Context, chainID uint64, account common.Address, tokens []common.Address) (map[common.Address]*big.Int, error)
	FetchGasPrice(ctx context.Context, chainID uint64) (models.GasPriceData, error)
}

// RealDataSource implements DataSource using the rpc package.
type RealDataSource struct {
	Querier  *rpc.Querier
	Registry *chains.Registry
}

func (d *RealDataSource) FetchBalances(ctx context.Context, chainID uint64, account common.Address, tokens []common.Address) (map[common.Address]*big.Int, error) {
	return d.Querier.FetchBalances(ctx, chainID, account, tokens)
}

func (d *RealDataSource) FetchGasPrice(ctx context.Context, chainID uint64) (models.GasPriceData, error) {
	meta, err := d.Registry.Lookup(chainID)
	if err != nil {
		return models.GasPriceData{ChainID: chainID, Err: err}, err
	}
	return rpc.FetchGasPrice(ctx, chainID, meta.RPCURLs)
}

// Watcher owns the session loop.
type Watcher struct {
	registry *chains.Registry
	conn     *store.ConnectionStore
	global   *store.GlobalStore
	refresh  time.Duration
	timeout  time.Duration

	gasPrices  map[uint64]*big.Int
	gasHistory map[uint64][]models.GasPricePoint
	queryErr   *QueryFailure

	subscribers []Subscriber
	mu          sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
	dataSource  DataSource
}

// NewWatcher creates a new Watcher instance.
func NewWatcher(registry *chains.Registry, conn *store.ConnectionStore, global *store.GlobalStore, refresh, timeout time.Duration) *Watcher {
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	if timeout <= 0 {
		timeout = rpc.DefaultTimeout
	}
	return &Watcher{
		registry:   registry,
		conn:       conn,
		global:     global,
		refresh:    refresh,
		timeout:    timeout,
		gasPrices:  make(map[uint64]*big.Int),
		gasHistory: make(map[uint64][]models.GasPricePoint),
		stopChan:   make(chan struct{}),
	}
}

// SetDataSource allows overriding the data source (useful for testing).
func (w *Watcher) SetDataSource(ds DataSource) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dataSource = ds
}

func (w *Watcher) source() DataSource {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dataSource
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (w *Watcher) notify(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			Logger.Debug().Str("event", string(event.Type)).Msg("Subscriber is full, event dropped")
		}
	}
}

// Start begins the session loop. events is the connector's event channel;
// flow may be nil.
func (w *Watcher) Start(ctx context.Context, events <-chan wallet.Event, flow *send.Flow) {
	go w.sessionLoop(ctx, events, flow)
}

// Stop stops the session loop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *Watcher) sessionLoop(ctx context.Context, events <-chan wallet.Event, flow *send.Flow) {
	changes := make(chan store.Change, storeBuffer)
	changeSub := w.global.Subscribe(changes)
	defer changeSub.Unsubscribe()

	var statuses chan send.Status
	if flow != nil {
		statuses = make(chan send.Status, storeBuffer)
		sendSub := flow.Subscribe(statuses)
		defer sendSub.Unsubscribe()
	}

	// Initial fetch
	w.fetchAll(ctx)

	ticker := time.NewTicker(w.refresh)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if w.Apply(ev) {
				w.fetchAll(ctx)
			}
		case c := <-changes:
			w.notify(Event{Type: EventStoreChanged, Data: c})
		case st := <-statuses:
			w.notify(Event{Type: EventSendStatus, Data: st})
		case <-ticker.C:
			w.fetchAll(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Apply applies one wallet event to the stores and reports whether the
// current (chain, account) pair changed.
func (w *Watcher) Apply(ev wallet.Event) bool {
	metrics.WalletEvents.WithLabelValues(ev.Kind.String()).Inc()
	prevChain, prevAccount := w.global.CurrentChainID(), w.global.CurrentAccount()

	u := store.Update{Account: ev.Account, ChainID: ev.ChainID, Provider: ev.Provider, Signer: ev.Signer}
	switch ev.Kind {
	case wallet.EventConnected, wallet.EventProviderChanged:
		w.conn.Connect(u)
		metrics.Connected.Set(1)
	case wallet.EventAccountChanged, wallet.EventNetworkChanged:
		w.conn.Update(u)
	case wallet.EventDisconnected:
		w.conn.Disconnect()
		w.setQueryError(nil)
		metrics.Connected.Set(0)
		Logger.Info().Msg("Session ended")
		w.notify(Event{Type: EventConnectionUpdated, Data: w.conn.Snapshot()})
		return false
	default:
		Logger.Warn().Str("event", ev.Kind.String()).Msg("Unknown wallet event")
		return false
	}

	// An unsupported network is still the wallet's network.
	if ev.ChainID != 0 && !w.registry.IsSupported(ev.ChainID) {
		err := &chains.UnsupportedChainError{ChainID: ev.ChainID}
		w.conn.SetError(err)
		Logger.Warn().Err(err).Uint64("chain_id", ev.ChainID).Msg("Wallet is on an unsupported chain")
	}
	w.global.ApplyConnection(u)

	snapshot := w.conn.Snapshot()
	Logger.Debug().Str("event", ev.Kind.String()).Str("account", snapshot.Account.Hex()).Uint64("chain_id", snapshot.ChainID).Msg("Wallet event applied")
	w.notify(Event{Type: EventConnectionUpdated, Data: snapshot})

	return w.global.CurrentChainID() != prevChain || w.global.CurrentAccount() != prevAccount
}

// Refresh fetches balances and gas price for the current chain and account
// now.
func (w *Watcher) Refresh(ctx context.Context) {
	w.fetchAll(ctx)
}

func (w *Watcher) fetchAll(ctx context.Context) {
	ds := w.source()
	if ds == nil {
		return
	}
	chainID, account := w.global.CurrentChainID(), w.global.CurrentAccount()
	if !w.registry.IsSupported(chainID) {
		return
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		data, err := ds.FetchGasPrice(cctx, chainID)
		if err != nil {
			Logger.Debug().Err(err).Uint64("chain_id", chainID).Msg("Gas price fetch failed")
			return
		}
		w.recordGasPrice(data)
		w.notify(Event{Type: EventGasPriceUpdated, Data: data})
	}()

	if account != (common.Address{}) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens, err := w.registry.TokenAddresses(chainID)
			if err != nil {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()
			// Success is written to the global store by the query layer.
			if _, err := ds.FetchBalances(cctx, chainID, account, tokens); err != nil {
				Logger.Warn().Err(err).Uint64("chain_id", chainID).Str("account", account.Hex()).Msg("Balance refresh failed")
				failure := QueryFailure{ChainID: chainID, Err: err}
				w.setQueryError(&failure)
				w.notify(Event{Type: EventQueryFailed, Data: failure})
				return
			}
			w.setQueryError(nil)
		}()
	}

	wg.Wait()
}

func (w *Watcher) recordGasPrice(data models.GasPriceData) {
	if data.Price == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gasPrices[data.ChainID] = new(big.Int).Set(data.Price)
	point := models.GasPricePoint{Timestamp: time.Now(), Value: utils.WeiToGwei(data.Price)}
	history := append(w.gasHistory[data.ChainID], point)
	if len(history) > gasHistoryLimit {
		history = history[len(history)-gasHistoryLimit:]
	}
	w.gasHistory[data.ChainID] = history
}

// Connection returns the current wallet session.
func (w *Watcher) Connection() store.ConnectionState {
	return w.conn.Snapshot()
}

func (w *Watcher) setQueryError(f *QueryFailure) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queryErr = f
}

// LastQueryError returns the failure of the latest balance refresh. It is
// cleared by the next successful refresh or a disconnect.
func (w *Watcher) LastQueryError() (QueryFailure, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.queryErr == nil {
		return QueryFailure{}, false
	}
	return *w.queryErr, true
}

// GetGasPrice returns the last gas price seen on a chain, or nil.
func (w *Watcher) GetGasPrice(chainID uint64) *big.Int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if p, ok := w.gasPrices[chainID]; ok {
		return new(big.Int).Set(p)
	}
	return nil
}

// GetGasHistory returns the recent gas prices of a chain in gwei, oldest
// first.
func (w *Watcher) GetGasHistory(chainID uint64) []models.GasPricePoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cp := make([]models.GasPricePoint, len(w.gasHistory[chainID]))
	copy(cp, w.gasHistory[chainID])
	return cp
}
