package rpc

import (
	"context"
	"fmt"
	"time"

	"bridgeui/pkg/contracts"
	"bridgeui/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// FetchGasPrice fetches the current gas price, trying the RPC URLs in order.
func FetchGasPrice(ctx context.Context, chainID uint64, rpcURLs []string) (models.GasPriceData, error) {
	var failed []string
	var lastErr error
	for _, rpcURL := range rpcURLs {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := ethclient.DialContext(cctx, rpcURL)
		if err != nil {
			failed = append(failed, rpcURL)
			cancel()
			lastErr = err
			continue
		}
		price, err := client.SuggestGasPrice(cctx)
		client.Close()
		cancel()
		if err != nil {
			failed = append(failed, rpcURL)
			lastErr = err
			continue
		}
		return models.GasPriceData{ChainID: chainID, Price: price, FailedRPCs: failed}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no rpc urls for chain %d", chainID)
	}
	return models.GasPriceData{ChainID: chainID, Err: lastErr, FailedRPCs: failed}, lastErr
}

// FetchTokenMetadata fetches the symbol and decimals for a token address.
func FetchTokenMetadata(ctx context.Context, rpcURLs []string, token common.Address) (models.TokenMetadata, error) {
	lastErr := fmt.Errorf("failed to fetch metadata")
	for _, rpcURL := range rpcURLs {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := ethclient.DialContext(cctx, rpcURL)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}

		erc20 := contracts.NewERC20(token, client)
		opts := &bind.CallOpts{Context: cctx}
		// Some tokens encode symbol as bytes32; the symbol stays empty then.
		symbol, _ := erc20.Symbol(opts)
		decimals, err := erc20.Decimals(opts)
		client.Close()
		cancel()

		if err == nil {
			return models.TokenMetadata{Address: token, Symbol: symbol, Decimals: int(decimals)}, nil
		}
		lastErr = err
	}
	return models.TokenMetadata{Address: token, Err: lastErr}, lastErr
}

// FetchRPCLatency pings an RPC URL to measure latency.
func FetchRPCLatency(ctx context.Context, rpcURL string) (models.RPCLatencyData, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return models.RPCLatencyData{RPCURL: rpcURL, Err: err}, err
	}
	defer client.Close()

	_, err = client.HeaderByNumber(ctx, nil)
	if err != nil {
		return models.RPCLatencyData{RPCURL: rpcURL, Err: err}, err
	}
	return models.RPCLatencyData{RPCURL: rpcURL, Latency: time.Since(start)}, nil
}

// FetchChainID asks a single RPC URL for its chain id.
func FetchChainID(ctx context.Context, rpcURL string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get ChainID: %w", err)
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id %s out of range", id)
	}
	return id.Uint64(), nil
}
