// Package store holds the session state: the live wallet connection and the
// per-chain, per-account mirror of balances and transactions. Both stores
// serialize their writes and hand out copies.
package store

import (
	"sync"

	"bridgeui/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
)

// ConnectionState is the live wallet session. The zero value means
// "disconnected".
type ConnectionState struct {
	Account  common.Address
	ChainID  uint64
	Provider wallet.Provider
	Signer   wallet.Signer
	Err      error
}

func (s ConnectionState) Connected() bool {
	return s.Provider != nil && s.Account != (common.Address{})
}

// Update carries the fields of one connector event. Empty fields leave the
// current value untouched.
type Update struct {
	Account  common.Address
	ChainID  uint64
	Provider wallet.Provider
	Signer   wallet.Signer
}

type ConnectionStore struct {
	mu    sync.RWMutex
	state ConnectionState
}

func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{}
}

// Connect replaces the whole state with a fresh session.
func (s *ConnectionStore) Connect(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ConnectionState{
		Account:  u.Account,
		ChainID:  u.ChainID,
		Provider: u.Provider,
		Signer:   u.Signer,
	}
}

// Update merges the non-empty fields of u and clears a previous error.
func (s *ConnectionStore) Update(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Account != (common.Address{}) {
		s.state.Account = u.Account
	}
	if u.ChainID != 0 {
		s.state.ChainID = u.ChainID
	}
	if u.Provider != nil {
		s.state.Provider = u.Provider
	}
	if u.Signer != nil {
		s.state.Signer = u.Signer
	}
	s.state.Err = nil
}

func (s *ConnectionStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Err = err
}

// Disconnect clears the session, error included.
func (s *ConnectionStore) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ConnectionState{}
}

func (s *ConnectionStore) Snapshot() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *ConnectionStore) IsConnected() bool {
	return s.Snapshot().Connected()
}
