package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

const defaultEventBuffer = 32

// Connection is what a successful Connect resolves to.
type Connection struct {
	Account  common.Address
	ChainID  uint64
	Provider Provider
}

// Connector owns the wallet session. Every state change, including the ones
// raised by the provider itself, is delivered on the bounded Events channel
// so a single consumer can apply them in order.
type Connector struct {
	backend  Backend
	selector Selector
	events   chan Event

	mu       sync.Mutex
	provider Provider
	sub      event.Subscription
	quit     chan struct{}
	done     chan struct{}
}

func NewConnector(backend Backend, selector Selector, buffer int) *Connector {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Connector{
		backend:  backend,
		selector: selector,
		events:   make(chan Event, buffer),
	}
}

func (c *Connector) Events() <-chan Event {
	return c.events
}

func (c *Connector) Provider() Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

func (c *Connector) Connected() bool {
	return c.Provider() != nil
}

// Connect runs the wallet selection and opens the chosen account. Connecting
// while a session is live replaces its provider.
func (c *Connector) Connect(ctx context.Context) (Connection, error) {
	available := c.backend.Accounts()
	if len(available) == 0 {
		return Connection{}, ErrNoWalletFound
	}

	sel, err := c.selector.Select(ctx, available)
	if err != nil {
		return Connection{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kind := EventConnected
	if c.provider != nil {
		// The previous session must release the account before it is
		// unlocked again for the new one.
		if err := c.stopLocked(); err != nil {
			Logger.Warn().Err(err).Msg("Closing previous provider failed")
		}
		kind = EventProviderChanged
	}

	p, err := c.backend.Open(ctx, sel)
	if err != nil {
		if kind == EventProviderChanged {
			_ = c.emit(ctx, Event{Kind: EventDisconnected})
		}
		return Connection{}, fmt.Errorf("failed to open wallet: %w", err)
	}
	signer, err := p.Signer()
	if err != nil {
		_ = p.Close()
		return Connection{}, err
	}

	conn := Connection{Account: sel.Account.Address, ChainID: p.ChainID(), Provider: p}
	ev := Event{Kind: kind, Account: conn.Account, ChainID: conn.ChainID, Provider: p, Signer: signer}
	if err := c.emit(ctx, ev); err != nil {
		_ = p.Close()
		return Connection{}, err
	}

	in := make(chan Event)
	c.provider = p
	c.sub = p.Subscribe(in)
	c.quit = make(chan struct{})
	c.done = make(chan struct{})
	go c.forward(p, in, c.sub, c.quit, c.done)

	Logger.Info().Str("account", conn.Account.Hex()).Uint64("chain_id", conn.ChainID).Str("event", kind.String()).Msg("Wallet connected")
	return conn, nil
}

// Disconnect ends the session. Calling it without a session is a no-op.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider == nil {
		return nil
	}
	err := c.stopLocked()
	Logger.Info().Msg("Wallet disconnected")
	return errors.Join(err, c.emit(ctx, Event{Kind: EventDisconnected}))
}

func (c *Connector) stopLocked() error {
	close(c.quit)
	c.sub.Unsubscribe()
	<-c.done
	err := c.provider.Close()
	c.provider = nil
	c.sub = nil
	c.quit = nil
	c.done = nil
	return err
}

func (c *Connector) emit(ctx context.Context, ev Event) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connector) forward(p Provider, in <-chan Event, sub event.Subscription, quit, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev := <-in:
			if ev.Provider == nil && ev.Kind != EventDisconnected {
				ev.Provider = p
			}
			select {
			case c.events <- ev:
			case <-quit:
				return
			}
		case <-sub.Err():
			return
		case <-quit:
			return
		}
	}
}
