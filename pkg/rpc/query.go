package rpc

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"bridgeui/pkg/contracts"
	"bridgeui/pkg/metrics"
	"bridgeui/pkg/models"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"golang.org/x/sync/errgroup"
)

// QueryError is the single error of a failed balance or allowance query.
type QueryError struct {
	Query   string
	ChainID uint64
	Account common.Address
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query failed on chain %d for %s: %v", e.Query, e.ChainID, e.Account.Hex(), e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// BalanceRecorder receives every successful balance fetch.
type BalanceRecorder interface {
	RecordBalances(chainID uint64, account common.Address, balances map[common.Address]*big.Int)
}

type allowanceKey struct {
	chainID uint64
	owner   common.Address
	token   common.Address
	spender common.Address
}

// Querier is the balance and allowance query layer.
type Querier struct {
	clients  *Clients
	recorder BalanceRecorder

	mu         sync.Mutex
	allowances map[allowanceKey]*big.Int
}

func NewQuerier(clients *Clients, recorder BalanceRecorder) *Querier {
	return &Querier{
		clients:    clients,
		recorder:   recorder,
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// FetchBalances reads every token balance of account concurrently. The
// zero address stands for the native asset. Either all balances are returned
// and recorded, or a single *QueryError.
func (q *Querier) FetchBalances(ctx context.Context, chainID uint64, account common.Address, tokens []common.Address) (map[common.Address]*big.Int, error) {
	start := time.Now()
	out, err := q.fetchBalances(ctx, chainID, account, tokens)
	metrics.ObserveQuery("balances", chainID, start, err)
	if err != nil {
		Logger.Warn().Err(err).Uint64("chain_id", chainID).Str("account", account.Hex()).Msg("Balance query failed")
		return nil, &QueryError{Query: "balances", ChainID: chainID, Account: account, Err: err}
	}
	if q.recorder != nil {
		q.recorder.RecordBalances(chainID, account, out)
	}
	return out, nil
}

func (q *Querier) fetchBalances(ctx context.Context, chainID uint64, account common.Address, tokens []common.Address) (map[common.Address]*big.Int, error) {
	client, err := q.clients.Client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, q.clients.Timeout())
	defer cancel()

	unique := mapset.NewThreadUnsafeSet(tokens...).ToSlice()
	out := make(map[common.Address]*big.Int, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, token := range unique {
		g.Go(func() error {
			var bal *big.Int
			var err error
			if models.IsNative(token) {
				bal, err = client.BalanceAt(gctx, account, nil)
			} else {
				bal, err = contracts.NewERC20(token, client).BalanceOf(&bind.CallOpts{Context: gctx}, account)
			}
			if err != nil {
				return fmt.Errorf("token %s: %w", token.Hex(), err)
			}
			mu.Lock()
			out[token] = bal
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if shouldRedial(err) {
			q.clients.Drop(chainID)
		}
		return nil, err
	}
	return out, nil
}

// FetchNativeBalance reads the native balance of a single account.
func (q *Querier) FetchNativeBalance(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error) {
	start := time.Now()
	bal, err := q.fetchNativeBalance(ctx, chainID, account)
	metrics.ObserveQuery("native_balance", chainID, start, err)
	if err != nil {
		return nil, &QueryError{Query: "native balance", ChainID: chainID, Account: account, Err: err}
	}
	return bal, nil
}

func (q *Querier) fetchNativeBalance(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error) {
	client, err := q.clients.Client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, q.clients.Timeout())
	defer cancel()
	bal, err := client.BalanceAt(ctx, account, nil)
	if shouldRedial(err) {
		q.clients.Drop(chainID)
	}
	return bal, err
}

// FetchAllowance returns how much of token the chain's deposit box may move
// on behalf of owner. Results are memoized per (chain, owner, token,
// spender) until InvalidateAllowance. The native asset needs no approval and
// reports the maximum value.
func (q *Querier) FetchAllowance(ctx context.Context, chainID uint64, owner, token common.Address) (*big.Int, error) {
	if models.IsNative(token) {
		return new(big.Int).Set(math.MaxBig256), nil
	}
	spender, err := q.clients.Registry().DepositBox(chainID)
	if err != nil {
		return nil, &QueryError{Query: "allowance", ChainID: chainID, Account: owner, Err: err}
	}
	key := allowanceKey{chainID: chainID, owner: owner, token: token, spender: spender}

	q.mu.Lock()
	if v, ok := q.allowances[key]; ok {
		q.mu.Unlock()
		return new(big.Int).Set(v), nil
	}
	q.mu.Unlock()

	start := time.Now()
	v, err := q.fetchAllowance(ctx, chainID, owner, token, spender)
	metrics.ObserveQuery("allowance", chainID, start, err)
	if err != nil {
		return nil, &QueryError{Query: "allowance", ChainID: chainID, Account: owner, Err: err}
	}

	q.mu.Lock()
	q.allowances[key] = v
	q.mu.Unlock()
	return new(big.Int).Set(v), nil
}

func (q *Querier) fetchAllowance(ctx context.Context, chainID uint64, owner, token, spender common.Address) (*big.Int, error) {
	client, err := q.clients.Client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, q.clients.Timeout())
	defer cancel()
	v, err := contracts.NewERC20(token, client).Allowance(&bind.CallOpts{Context: ctx}, owner, spender)
	if shouldRedial(err) {
		q.clients.Drop(chainID)
	}
	return v, err
}

// InvalidateAllowance forgets the memoized allowance of (chain, owner, token).
func (q *Querier) InvalidateAllowance(chainID uint64, owner, token common.Address) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for k := range q.allowances {
		if k.chainID == chainID && k.owner == owner && k.token == token {
			delete(q.allowances, k)
		}
	}
}
