// Package send drives a bridge deposit from allowance check to submission.
package send

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"bridgeui/pkg/contracts"
	"bridgeui/pkg/fees"
	"bridgeui/pkg/metrics"
	"bridgeui/pkg/models"
	"bridgeui/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var Logger = zerolog.Nop()

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

const (
	defaultCallTimeout    = 30 * time.Second
	defaultConfirmTimeout = 10 * time.Minute
)

// Backend is the chain access the flow needs.
type Backend interface {
	DepositBox(chainID uint64) (common.Address, error)
	WrappedNative(chainID uint64) (common.Address, error)
	Allowance(ctx context.Context, chainID uint64, owner, token common.Address) (*big.Int, error)
	Approve(ctx context.Context, signer wallet.Signer, token, spender common.Address, amount *big.Int) (*types.Transaction, error)
	WaitMined(ctx context.Context, chainID uint64, tx *types.Transaction) (*types.Receipt, error)
	LatestBlockTime(ctx context.Context, chainID uint64) (uint64, error)
	Deposit(ctx context.Context, signer wallet.Signer, box common.Address, params contracts.DepositParams, value *big.Int) (*types.Transaction, error)
}

// Recorder stores submitted transactions.
type Recorder interface {
	RecordTransaction(chainID uint64, account common.Address, tx models.Transaction) bool
}

// Options bound the chain calls of a send.
type Options struct {
	CallTimeout    time.Duration
	ConfirmTimeout time.Duration
}

// Status is the progress of one send.
type Status struct {
	ID        string
	State     State
	ChainID   uint64
	Account   common.Address
	Args      models.SendArgs
	ApproveTx common.Hash
	DepositTx common.Hash
	Err       error
	UpdatedAt time.Time
}

type inflightKey struct {
	chainID uint64
	account common.Address
	token   common.Address
}

// Flow runs sends. Sends may run concurrently; each one is tracked by its id
// and Status reports the most recently started.
type Flow struct {
	backend  Backend
	fees     fees.Service
	recorder Recorder
	opts     Options

	mu       sync.Mutex
	statuses map[string]*Status
	latest   string
	inflight map[inflightKey]string

	feed event.Feed
}

func NewFlow(backend Backend, feeService fees.Service, recorder Recorder, opts Options) *Flow {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}
	return &Flow{
		backend:  backend,
		fees:     feeService,
		recorder: recorder,
		opts:     opts,
		statuses: make(map[string]*Status),
		inflight: make(map[inflightKey]string),
	}
}

// Subscribe delivers every status change. Subscribers must keep reading.
func (f *Flow) Subscribe(ch chan<- Status) event.Subscription {
	return f.feed.Subscribe(ch)
}

// Status returns the most recently started send, or an idle status.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.statuses[f.latest]; ok {
		return *st
	}
	return Status{State: StateIdle}
}

// StatusOf returns the send with the given id.
func (f *Flow) StatusOf(id string) (Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[id]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

// Reset forgets finished sends. Sends still running are kept.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, st := range f.statuses {
		if st.State.Terminal() {
			delete(f.statuses, id)
		}
	}
}

// Send bridges args.Amount of args.Token from the signer's chain. The
// returned error is a *SendError and is also kept in the status.
func (f *Flow) Send(ctx context.Context, signer wallet.Signer, args models.SendArgs) (Status, error) {
	id := f.start(signer, args)
	return f.run(ctx, id, signer, args)
}

// SendAsync starts a send in the background and returns its id. Progress is
// available through StatusOf and Subscribe.
func (f *Flow) SendAsync(ctx context.Context, signer wallet.Signer, args models.SendArgs) string {
	id := f.start(signer, args)
	go func() { _, _ = f.run(ctx, id, signer, args) }()
	return id
}

func (f *Flow) start(signer wallet.Signer, args models.SendArgs) string {
	id := uuid.NewString()
	if signer == nil {
		f.begin(id, 0, common.Address{}, args)
	} else {
		f.begin(id, signer.ChainID(), signer.Address(), args)
	}
	return id
}

func (f *Flow) run(ctx context.Context, id string, signer wallet.Signer, args models.SendArgs) (Status, error) {
	if signer == nil {
		return f.fail(id, ErrNoSigner)
	}
	chainID, account := signer.ChainID(), signer.Address()
	log := Logger.With().Str("send_id", id).Uint64("chain_id", chainID).Str("account", account.Hex()).Str("token", args.Token.Hex()).Logger()

	if args.Amount == nil || args.Amount.Sign() <= 0 {
		return f.fail(id, ErrInvalidAmount)
	}

	key := inflightKey{chainID: chainID, account: account, token: args.Token}
	if other := f.track(key, id); other != "" {
		log.Warn().Str("other_send_id", other).Msg("Another send for this account and token is running")
	}
	defer f.untrack(key, id)

	box, err := f.backend.DepositBox(chainID)
	if err != nil {
		return f.fail(id, err)
	}

	recipient := args.Recipient
	if recipient == (common.Address{}) {
		recipient = account
	}

	token := args.Token
	value := new(big.Int)
	if models.IsNative(args.Token) {
		weth, err := f.backend.WrappedNative(chainID)
		if err != nil {
			return f.fail(id, err)
		}
		token = weth
		value = new(big.Int).Set(args.Amount)
	} else {
		if err := f.advance(id, StateCheckingAllowance); err != nil {
			return f.fail(id, err)
		}
		if err := f.ensureAllowance(ctx, id, signer, token, box, args.Amount); err != nil {
			return f.fail(id, err)
		}
	}

	if err := f.advance(id, StateRelaying); err != nil {
		return f.fail(id, err)
	}

	cctx, cancel := context.WithTimeout(ctx, f.opts.CallTimeout)
	defer cancel()

	relayFees, err := f.fees.RelayFees(cctx, fees.Quote{ChainID: chainID, Token: token, Amount: args.Amount})
	if err != nil {
		return f.fail(id, fmt.Errorf("relay fees: %w", err))
	}
	quoteTime, err := f.backend.LatestBlockTime(cctx, chainID)
	if err != nil {
		return f.fail(id, fmt.Errorf("quote timestamp: %w", err))
	}

	params := contracts.DepositParams{
		Recipient:       recipient,
		Token:           token,
		Amount:          new(big.Int).Set(args.Amount),
		SlowRelayFee:    relayFees.SlowRelayFee,
		InstantRelayFee: relayFees.InstantRelayFee,
		QuoteTimestamp:  quoteTime,
	}
	tx, err := f.backend.Deposit(cctx, signer, box, params, value)
	if err != nil {
		return f.fail(id, err)
	}

	f.record(chainID, account, tx, models.DepositMeta{
		Recipient:       params.Recipient,
		Token:           params.Token,
		Amount:          params.Amount,
		SlowRelayFee:    params.SlowRelayFee,
		InstantRelayFee: params.InstantRelayFee,
		QuoteTimestamp:  params.QuoteTimestamp,
	})
	f.update(id, func(st *Status) { st.DepositTx = tx.Hash() })
	if err := f.advance(id, StateSubmitted); err != nil {
		return f.fail(id, err)
	}

	metrics.Sends.WithLabelValues(metrics.ChainLabel(chainID), string(StateSubmitted), "ok").Inc()
	log.Info().Str("tx", tx.Hash().Hex()).Str("amount", args.Amount.String()).Msg("Deposit sent")
	st, _ := f.StatusOf(id)
	return st, nil
}

// ensureAllowance approves the deposit box for an unlimited amount when the
// current allowance does not cover amount, and waits for the approval.
func (f *Flow) ensureAllowance(ctx context.Context, id string, signer wallet.Signer, token, box common.Address, amount *big.Int) error {
	chainID, account := signer.ChainID(), signer.Address()

	cctx, cancel := context.WithTimeout(ctx, f.opts.CallTimeout)
	allowance, err := f.backend.Allowance(cctx, chainID, account, token)
	cancel()
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	if err := f.advance(id, StateApproving); err != nil {
		return err
	}
	approveAmount := new(big.Int).Set(math.MaxBig256)
	cctx, cancel = context.WithTimeout(ctx, f.opts.CallTimeout)
	tx, err := f.backend.Approve(cctx, signer, token, box, approveAmount)
	cancel()
	if err != nil {
		return err
	}
	f.record(chainID, account, tx, models.ApproveMeta{Token: token, Spender: box, Amount: approveAmount})
	f.update(id, func(st *Status) { st.ApproveTx = tx.Hash() })

	if err := f.advance(id, StateAwaitingApprovalConfirm); err != nil {
		return err
	}
	cctx, cancel = context.WithTimeout(ctx, f.opts.ConfirmTimeout)
	receipt, err := f.backend.WaitMined(cctx, chainID, tx)
	cancel()
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrApprovalReverted, tx.Hash().Hex())
	}
	return nil
}

func (f *Flow) record(chainID uint64, account common.Address, tx *types.Transaction, meta models.TxMeta) {
	if f.recorder.RecordTransaction(chainID, account, models.NewTransaction(chainID, account, tx, meta)) {
		metrics.Transactions.WithLabelValues(string(meta.Kind())).Inc()
	}
}

func (f *Flow) begin(id string, chainID uint64, account common.Address, args models.SendArgs) {
	f.mu.Lock()
	st := &Status{ID: id, State: StateIdle, ChainID: chainID, Account: account, Args: args, UpdatedAt: time.Now()}
	f.statuses[id] = st
	f.latest = id
	snapshot := *st
	f.mu.Unlock()
	f.feed.Send(snapshot)
}

func (f *Flow) update(id string, fn func(*Status)) {
	f.mu.Lock()
	st := f.statuses[id]
	fn(st)
	st.UpdatedAt = time.Now()
	snapshot := *st
	f.mu.Unlock()
	f.feed.Send(snapshot)
}

func (f *Flow) advance(id string, to State) error {
	f.mu.Lock()
	from := f.statuses[id].State
	f.mu.Unlock()
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", errInvalidTransition, from, to)
	}
	Logger.Debug().Str("send_id", id).Str("from", string(from)).Str("to", string(to)).Msg("Send state")
	f.update(id, func(st *Status) { st.State = to })
	return nil
}

func (f *Flow) fail(id string, err error) (Status, error) {
	var sendErr *SendError
	f.update(id, func(st *Status) {
		sendErr = &SendError{Stage: st.State, Err: err}
		st.State = StateFailed
		st.Err = sendErr
	})
	st, _ := f.StatusOf(id)
	metrics.Sends.WithLabelValues(metrics.ChainLabel(st.ChainID), string(sendErr.Stage), "error").Inc()
	Logger.Error().Err(err).Str("send_id", id).Str("stage", string(sendErr.Stage)).Msg("Send failed")
	return st, sendErr
}

func (f *Flow) track(key inflightKey, id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	other := f.inflight[key]
	f.inflight[key] = id
	return other
}

func (f *Flow) untrack(key inflightKey, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inflight[key] == id {
		delete(f.inflight, key)
	}
}
