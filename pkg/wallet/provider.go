// Package wallet connects the application to a signing wallet. It exposes an
// EIP-1193 style Provider, the Connector that drives wallet selection and the
// chain switch helper.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"
)

var Logger = zerolog.Nop()

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnsupportedMethod = 4200
	CodeUnrecognizedChain = 4902
	CodeInvalidParams     = -32602
)

var (
	ErrUserRejected  = errors.New("user rejected the request")
	ErrNoWalletFound = errors.New("no wallet found")
)

// ProviderError is a JSON-RPC error returned by a wallet provider.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Is makes a 4001 provider error match ErrUserRejected.
func (e *ProviderError) Is(target error) bool {
	return target == ErrUserRejected && e.Code == CodeUserRejected
}

// Signer signs transactions for the connected account on one chain.
type Signer interface {
	Address() common.Address
	ChainID() uint64
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// Provider is the wallet side of a session.
type Provider interface {
	// Request sends a JSON-RPC request to the wallet.
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	Accounts() []common.Address
	ChainID() uint64
	Signer() (Signer, error)
	// Subscribe delivers account, network and provider change events.
	Subscribe(ch chan<- Event) event.Subscription
	Close() error
}

type EventKind int

const (
	EventConnected EventKind = iota
	EventAccountChanged
	EventNetworkChanged
	EventProviderChanged
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventAccountChanged:
		return "account_changed"
	case EventNetworkChanged:
		return "network_changed"
	case EventProviderChanged:
		return "provider_changed"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a wallet state change. Zero values mean "not carried by this event".
type Event struct {
	Kind     EventKind
	Account  common.Address
	ChainID  uint64
	Provider Provider
	Signer   Signer
}
