package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const DepositBoxABI = `[
	{"inputs":[
		{"internalType":"address","name":"l1Recipient","type":"address"},
		{"internalType":"address","name":"l2Token","type":"address"},
		{"internalType":"uint256","name":"amount","type":"uint256"},
		{"internalType":"uint64","name":"slowRelayFeePct","type":"uint64"},
		{"internalType":"uint64","name":"instantRelayFeePct","type":"uint64"},
		{"internalType":"uint64","name":"quoteTimestamp","type":"uint64"}
	],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"}
]`

var depositBoxABI = mustParseABI(DepositBoxABI)

// DepositParams are the arguments of DepositBox.deposit. Fees are fractions
// of the amount scaled by 1e18.
type DepositParams struct {
	Recipient       common.Address
	Token           common.Address
	Amount          *big.Int
	SlowRelayFee    *big.Int
	InstantRelayFee *big.Int
	QuoteTimestamp  uint64
}

// DepositBox is the bridge contract on a source chain.
type DepositBox struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewDepositBox(address common.Address, backend bind.ContractBackend) *DepositBox {
	return &DepositBox{
		address:  address,
		contract: bind.NewBoundContract(address, depositBoxABI, backend, backend, backend),
	}
}

func (b *DepositBox) Address() common.Address { return b.address }

// Deposit submits the deposit. opts.Value carries the native amount, if any.
func (b *DepositBox) Deposit(opts *bind.TransactOpts, p DepositParams) (*types.Transaction, error) {
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive")
	}
	slow, err := feeUint64("slowRelayFeePct", p.SlowRelayFee)
	if err != nil {
		return nil, err
	}
	instant, err := feeUint64("instantRelayFeePct", p.InstantRelayFee)
	if err != nil {
		return nil, err
	}
	return b.contract.Transact(opts, "deposit", p.Recipient, p.Token, p.Amount, slow, instant, p.QuoteTimestamp)
}

func feeUint64(name string, v *big.Int) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%s %s does not fit uint64", name, v)
	}
	return v.Uint64(), nil
}
