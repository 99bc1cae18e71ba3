package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NativeToken is the pseudo-address used for a chain's native asset.
var NativeToken = common.Address{}

// IsNative reports whether token is the native asset pseudo-address.
func IsNative(token common.Address) bool {
	return token == NativeToken
}

// TxKind tags the metadata attached to a recorded transaction.
type TxKind string

const (
	TxKindApprove TxKind = "approve"
	TxKindDeposit TxKind = "deposit"
)

// TxMeta is implemented by ApproveMeta and DepositMeta only.
type TxMeta interface {
	Kind() TxKind
}

// ApproveMeta describes a token approval for the bridge deposit box.
type ApproveMeta struct {
	Token   common.Address `json:"token"`
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"amount"`
}

func (ApproveMeta) Kind() TxKind { return TxKindApprove }

// DepositMeta describes a bridge deposit.
type DepositMeta struct {
	Recipient       common.Address `json:"recipient"`
	Token           common.Address `json:"token"`
	Amount          *big.Int       `json:"amount"`
	SlowRelayFee    *big.Int       `json:"slow_relay_fee"`
	InstantRelayFee *big.Int       `json:"instant_relay_fee"`
	QuoteTimestamp  uint64         `json:"quote_timestamp"`
}

func (DepositMeta) Kind() TxKind { return TxKindDeposit }

// Transaction is a submitted transaction as recorded in the global store.
type Transaction struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address
	Value       *big.Int
	Nonce       uint64
	GasLimit    uint64
	ChainID     uint64
	Meta        TxMeta
	SubmittedAt time.Time
}

// Label is the user-facing name of the transaction ("approve", "deposit").
func (t Transaction) Label() string {
	if t.Meta == nil {
		return ""
	}
	return string(t.Meta.Kind())
}

// NewTransaction copies the fields of a signed transaction. A nil tx yields a
// Transaction with an empty hash, which the global store refuses to record.
func NewTransaction(chainID uint64, from common.Address, tx *types.Transaction, meta TxMeta) Transaction {
	if tx == nil {
		return Transaction{ChainID: chainID, From: from, Meta: meta}
	}
	return Transaction{
		Hash:        tx.Hash(),
		From:        from,
		To:          tx.To(),
		Value:       tx.Value(),
		Nonce:       tx.Nonce(),
		GasLimit:    tx.Gas(),
		ChainID:     chainID,
		Meta:        meta,
		SubmittedAt: time.Now(),
	}
}

// SendArgs is the input of a single send action.
type SendArgs struct {
	Recipient common.Address `json:"recipient"`
	Token     common.Address `json:"token"`
	Amount    *big.Int       `json:"amount"`
}

// RelayFees are the relayer fees quoted for a deposit, as 1e18-scaled
// fractions of the amount.
type RelayFees struct {
	SlowRelayFee    *big.Int `json:"slow_relay_fee"`
	InstantRelayFee *big.Int `json:"instant_relay_fee"`
}

// GasPriceData contains the current gas price.
type GasPriceData struct {
	ChainID    uint64
	Price      *big.Int
	FailedRPCs []string
	Err        error
}

// GasPricePoint holds a timestamped gas price value.
type GasPricePoint struct {
	Timestamp time.Time
	Value     float64
}

// RPCLatencyData contains the result of a latency check.
type RPCLatencyData struct {
	RPCURL  string
	Latency time.Duration
	Err     error
}

// TokenMetadata contains the result of a token metadata fetch.
type TokenMetadata struct {
	Address  common.Address
	Symbol   string
	Decimals int
	Err      error
}

// ChainResult holds test results for a specific chain.
type ChainResult struct {
	Name            string      `json:"name"`
	ConfigChainID   uint64      `json:"config_chain_id"`
	RPCs            []RPCResult `json:"rpcs"`
	Inconsistent    bool        `json:"inconsistent"`
	ObservedChainID uint64      `json:"observed_chain_id,omitempty"`
	DepositBox      string      `json:"deposit_box,omitempty"`
	TokenErrors     []string    `json:"token_errors,omitempty"`
}

// RPCResult holds test results for a specific RPC URL.
type RPCResult struct {
	URL     string `json:"url"`
	Status  string `json:"status"` // "ok" or "error"
	ChainID   uint64 `json:"chain_id,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TestReport holds the results of the configuration test.
type TestReport struct {
	ConfigPath         string        `json:"config_path"`
	ValidStructure     bool          `json:"valid_structure"`
	StructureErrors    []string      `json:"structure_errors,omitempty"`
	ChainCount         int           `json:"chain_count"`
	Chains             []ChainResult `json:"chains,omitempty"`
	InconsistentChains []string      `json:"inconsistent_chains,omitempty"`
	MismatchedChains   []string      `json:"mismatched_chains,omitempty"`
}
