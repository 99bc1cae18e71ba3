package rpc

import (
	"context"
	"fmt"
	"math/big"

	"bridgeui/pkg/contracts"
	"bridgeui/pkg/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BridgeBackend performs the chain calls of the send flow.
type BridgeBackend struct {
	clients *Clients
	querier *Querier
}

func NewBridgeBackend(clients *Clients, querier *Querier) *BridgeBackend {
	return &BridgeBackend{clients: clients, querier: querier}
}

func (b *BridgeBackend) DepositBox(chainID uint64) (common.Address, error) {
	return b.clients.Registry().DepositBox(chainID)
}

func (b *BridgeBackend) WrappedNative(chainID uint64) (common.Address, error) {
	coin, err := b.clients.Registry().WrappedNative(chainID)
	if err != nil {
		return common.Address{}, err
	}
	return coin.Address, nil
}

// Allowance always reads the chain; the send decision must not rely on a
// memoized value.
func (b *BridgeBackend) Allowance(ctx context.Context, chainID uint64, owner, token common.Address) (*big.Int, error) {
	b.querier.InvalidateAllowance(chainID, owner, token)
	return b.querier.FetchAllowance(ctx, chainID, owner, token)
}

func (b *BridgeBackend) Approve(ctx context.Context, signer wallet.Signer, token, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	client, err := b.clients.Client(ctx, signer.ChainID())
	if err != nil {
		return nil, err
	}
	opts, err := signer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := contracts.NewERC20(token, client).Approve(opts, spender, amount)
	if err != nil {
		return nil, err
	}
	Logger.Info().Str("tx", tx.Hash().Hex()).Str("token", token.Hex()).Uint64("chain_id", signer.ChainID()).Msg("Approval submitted")
	return tx, nil
}

// WaitMined blocks until tx has a receipt or ctx ends.
func (b *BridgeBackend) WaitMined(ctx context.Context, chainID uint64, tx *types.Transaction) (*types.Receipt, error) {
	client, err := b.clients.Client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	receipt, err := bind.WaitMined(ctx, client, tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}
	return receipt, nil
}

func (b *BridgeBackend) LatestBlockTime(ctx context.Context, chainID uint64) (uint64, error) {
	client, err := b.clients.Client(ctx, chainID)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, b.clients.Timeout())
	defer cancel()
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		if shouldRedial(err) {
			b.clients.Drop(chainID)
		}
		return 0, err
	}
	return header.Time, nil
}

func (b *BridgeBackend) Deposit(ctx context.Context, signer wallet.Signer, box common.Address, params contracts.DepositParams, value *big.Int) (*types.Transaction, error) {
	client, err := b.clients.Client(ctx, signer.ChainID())
	if err != nil {
		return nil, err
	}
	opts, err := signer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	opts.Value = value
	tx, err := contracts.NewDepositBox(box, client).Deposit(opts, params)
	if err != nil {
		return nil, err
	}
	Logger.Info().Str("tx", tx.Hash().Hex()).Str("token", params.Token.Hex()).Uint64("chain_id", signer.ChainID()).Msg("Deposit submitted")
	return tx, nil
}
