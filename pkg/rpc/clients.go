package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bridgeui/pkg/chains"

	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

var Logger = zerolog.Nop()

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// DefaultTimeout bounds every RPC call made by this package.
var DefaultTimeout = 30 * time.Second

// Clients keeps one ethclient per chain. The first RPC URL of a chain that
// answers with the expected chain id wins; the others are tried in order.
type Clients struct {
	registry *chains.Registry
	timeout  time.Duration

	mu      sync.Mutex
	clients map[uint64]*ethclient.Client
}

func NewClients(registry *chains.Registry, timeout time.Duration) *Clients {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Clients{
		registry: registry,
		timeout:  timeout,
		clients:  make(map[uint64]*ethclient.Client),
	}
}

func (c *Clients) Timeout() time.Duration { return c.timeout }

func (c *Clients) Registry() *chains.Registry { return c.registry }

// Client returns the cached client for chainID, dialing one if needed.
func (c *Clients) Client(ctx context.Context, chainID uint64) (*ethclient.Client, error) {
	c.mu.Lock()
	if cl, ok := c.clients[chainID]; ok {
		c.mu.Unlock()
		return cl, nil
	}
	c.mu.Unlock()

	meta, err := c.registry.Lookup(chainID)
	if err != nil {
		return nil, err
	}
	if len(meta.RPCURLs) == 0 {
		return nil, fmt.Errorf("chain %d (%s) has no rpc urls", chainID, meta.Name)
	}

	var failed []string
	var lastErr error
	for _, rpcURL := range meta.RPCURLs {
		cl, err := c.dial(ctx, rpcURL, chainID)
		if err != nil {
			failed = append(failed, rpcURL)
			lastErr = err
			Logger.Warn().Err(err).Str("rpc", rpcURL).Uint64("chain_id", chainID).Msg("RPC endpoint unusable")
			continue
		}

		c.mu.Lock()
		if existing, ok := c.clients[chainID]; ok {
			c.mu.Unlock()
			cl.Close()
			return existing, nil
		}
		c.clients[chainID] = cl
		c.mu.Unlock()
		return cl, nil
	}
	return nil, fmt.Errorf("all rpc urls failed for chain %d (%v): %w", chainID, failed, lastErr)
}

func (c *Clients) dial(ctx context.Context, rpcURL string, chainID uint64) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cl, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	id, err := cl.ChainID(ctx)
	if err != nil {
		cl.Close()
		return nil, err
	}
	if !id.IsUint64() || id.Uint64() != chainID {
		cl.Close()
		return nil, fmt.Errorf("rpc reports chain id %s, expected %d", id, chainID)
	}
	return cl, nil
}

// Drop closes the cached client of chainID so the next call redials and
// fails over.
func (c *Clients) Drop(chainID uint64) {
	c.mu.Lock()
	cl, ok := c.clients[chainID]
	delete(c.clients, chainID)
	c.mu.Unlock()
	if ok {
		cl.Close()
	}
}

func (c *Clients) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cl := range c.clients {
		cl.Close()
		delete(c.clients, id)
	}
}

// shouldRedial reports whether err is a transport failure. Errors answered by
// the node itself, reverts included, and cancelled callers keep the client.
func shouldRedial(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var de gethrpc.DataError
	return !errors.As(err, &de)
}
