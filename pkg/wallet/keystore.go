package wallet

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// Selection is the outcome of the wallet-selection step.
type Selection struct {
	Account    accounts.Account
	Passphrase string
}

// Selector is the wallet-selection widget. Dismissing it must return
// ErrUserRejected.
type Selector interface {
	Select(ctx context.Context, available []accounts.Account) (Selection, error)
}

// Backend lists the available accounts and opens a provider for one of them.
type Backend interface {
	Accounts() []accounts.Account
	Open(ctx context.Context, sel Selection) (Provider, error)
}

// KeystoreBackend opens LocalProviders over a go-ethereum keystore directory.
type KeystoreBackend struct {
	ks      *keystore.KeyStore
	chainID uint64
}

// NewKeystoreBackend opens providers that start on chainID and know no other
// chain until it is added.
func NewKeystoreBackend(ks *keystore.KeyStore, chainID uint64) *KeystoreBackend {
	return &KeystoreBackend{ks: ks, chainID: chainID}
}

func (b *KeystoreBackend) Accounts() []accounts.Account {
	return b.ks.Accounts()
}

func (b *KeystoreBackend) Open(ctx context.Context, sel Selection) (Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.ks.HasAddress(sel.Account.Address) {
		return nil, fmt.Errorf("account %s is not in the keystore", sel.Account.Address.Hex())
	}
	if err := b.ks.Unlock(sel.Account, sel.Passphrase); err != nil {
		return nil, fmt.Errorf("failed to unlock %s: %w", sel.Account.Address.Hex(), err)
	}
	Logger.Info().Str("account", sel.Account.Address.Hex()).Uint64("chain_id", b.chainID).Msg("Wallet unlocked")
	return NewLocalProvider(b.ks, sel.Account, b.chainID), nil
}
