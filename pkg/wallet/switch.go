package wallet

import (
	"context"
	"errors"
	"fmt"

	"bridgeui/pkg/chains"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ChainSwitchError reports a switch that failed with "unrecognized chain"
// and could not be recovered by adding the chain. Err is the original switch
// failure and AddErr the reason the add step failed.
type ChainSwitchError struct {
	ChainID uint64
	Err     error
	AddErr  error
}

func (e *ChainSwitchError) Error() string {
	return fmt.Sprintf("failed to switch to chain %d: %v (add chain: %v)", e.ChainID, e.Err, e.AddErr)
}

func (e *ChainSwitchError) Unwrap() []error {
	return []error{e.Err, e.AddErr}
}

type switchChainParameter struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

// SwitchChain asks the wallet to change its active network. When the wallet
// does not know the chain, the registry metadata is offered through
// wallet_addEthereumChain. Any other switch error is returned as is.
func SwitchChain(ctx context.Context, p Provider, registry *chains.Registry, target uint64) error {
	if p == nil {
		return errors.New("no wallet connected")
	}
	_, switchErr := p.Request(ctx, "wallet_switchEthereumChain", switchChainParameter{ChainID: hexutil.Uint64(target)})
	if switchErr == nil {
		return nil
	}

	var perr *ProviderError
	if !errors.As(switchErr, &perr) || perr.Code != CodeUnrecognizedChain {
		Logger.Error().Err(switchErr).Uint64("chain_id", target).Msg("Failed to switch chain")
		return switchErr
	}

	meta, err := registry.Lookup(target)
	if err != nil {
		return &ChainSwitchError{ChainID: target, Err: switchErr, AddErr: err}
	}
	params, err := meta.AddChainParams()
	if err != nil {
		return &ChainSwitchError{ChainID: target, Err: switchErr, AddErr: err}
	}
	if _, err := p.Request(ctx, "wallet_addEthereumChain", params); err != nil {
		Logger.Error().Err(err).Uint64("chain_id", target).Str("name", meta.Name).Msg("Failed to add chain")
		return &ChainSwitchError{ChainID: target, Err: switchErr, AddErr: err}
	}
	return nil
}
