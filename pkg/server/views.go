package server

import (
	"time"

	"bridgeui/pkg/chains"
	"bridgeui/pkg/models"
	"bridgeui/pkg/send"
	"bridgeui/pkg/store"
	"bridgeui/pkg/utils"
	"bridgeui/pkg/watcher"

	"github.com/ethereum/go-ethereum/common"
)

// message is the websocket envelope.
type message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type connectionView struct {
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
	ChainID   uint64 `json:"chain_id,omitempty"`
	ChainName string `json:"chain_name,omitempty"`
	Error     string `json:"error,omitempty"`
}

type sendView struct {
	ID        string    `json:"id,omitempty"`
	State     string    `json:"state"`
	Label     string    `json:"label"`
	ChainID   uint64    `json:"chain_id,omitempty"`
	Token     string    `json:"token,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	ApproveTx string    `json:"approve_tx,omitempty"`
	DepositTx string    `json:"deposit_tx,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type statusView struct {
	Connection     connectionView `json:"connection"`
	CurrentChainID uint64         `json:"current_chain_id"`
	CurrentAccount string         `json:"current_account,omitempty"`
	GasPriceGwei   float64        `json:"gas_price_gwei,omitempty"`
	QueryError     string         `json:"query_error,omitempty"`
	Send           sendView       `json:"send"`
}

type chainView struct {
	ID          uint64        `json:"id"`
	Name        string        `json:"name"`
	ExplorerURL string        `json:"explorer_url,omitempty"`
	Bridgeable  bool          `json:"bridgeable"`
	Coins       []chains.Coin `json:"coins"`
}

type balanceView struct {
	Symbol    string `json:"symbol,omitempty"`
	Raw       string `json:"raw"`
	Formatted string `json:"formatted,omitempty"`
}

type txView struct {
	Hash        string        `json:"hash"`
	Label       string        `json:"label"`
	From        string        `json:"from"`
	To          string        `json:"to,omitempty"`
	Value       string        `json:"value"`
	Nonce       uint64        `json:"nonce"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Meta        models.TxMeta `json:"meta,omitempty"`
}

type accountView struct {
	ChainID      uint64                 `json:"chain_id"`
	Account      string                 `json:"account"`
	Balances     map[string]balanceView `json:"balances"`
	Transactions []txView               `json:"transactions"`
}

func addressOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func hashOrEmpty(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func newConnectionView(c store.ConnectionState, registry *chains.Registry) connectionView {
	v := connectionView{
		Connected: c.Connected(),
		Account:   addressOrEmpty(c.Account),
		ChainID:   c.ChainID,
		Error:     errString(c.Err),
	}
	if meta, err := registry.Lookup(c.ChainID); err == nil {
		v.ChainName = meta.Name
	}
	return v
}

func newSendView(st send.Status) sendView {
	v := sendView{
		ID:        st.ID,
		State:     string(st.State),
		Label:     st.State.Label(),
		ChainID:   st.ChainID,
		ApproveTx: hashOrEmpty(st.ApproveTx),
		DepositTx: hashOrEmpty(st.DepositTx),
		Error:     errString(st.Err),
		UpdatedAt: st.UpdatedAt,
	}
	if st.Args.Amount != nil {
		v.Token = st.Args.Token.Hex()
		v.Amount = st.Args.Amount.String()
	}
	return v
}

func newChainView(meta chains.ChainMetadata) chainView {
	return chainView{
		ID:          meta.ID,
		Name:        meta.Name,
		ExplorerURL: meta.ExplorerURL,
		Bridgeable:  meta.DepositBox != (common.Address{}),
		Coins:       meta.Coins,
	}
}

func newTxView(tx models.Transaction) txView {
	v := txView{
		Hash:        tx.Hash.Hex(),
		Label:       tx.Label(),
		From:        tx.From.Hex(),
		Value:       "0",
		Nonce:       tx.Nonce,
		SubmittedAt: tx.SubmittedAt,
		Meta:        tx.Meta,
	}
	if tx.To != nil {
		v.To = tx.To.Hex()
	}
	if tx.Value != nil {
		v.Value = tx.Value.String()
	}
	return v
}

// eventMessage converts a watcher event into its websocket form.
func eventMessage(ev watcher.Event) message {
	msg := message{Type: string(ev.Type)}
	switch data := ev.Data.(type) {
	case store.ConnectionState:
		msg.Data = connectionView{
			Connected: data.Connected(),
			Account:   addressOrEmpty(data.Account),
			ChainID:   data.ChainID,
			Error:     errString(data.Err),
		}
	case send.Status:
		msg.Data = newSendView(data)
	case store.Change:
		msg.Data = map[string]interface{}{
			"kind":     data.Kind,
			"chain_id": data.ChainID,
			"account":  addressOrEmpty(data.Account),
			"tx_hash":  hashOrEmpty(data.TxHash),
		}
	case models.GasPriceData:
		msg.Data = map[string]interface{}{
			"chain_id": data.ChainID,
			"gwei":     utils.WeiToGwei(data.Price),
		}
	case watcher.QueryFailure:
		msg.Data = map[string]interface{}{
			"chain_id": data.ChainID,
			"error":    errString(data.Err),
		}
	default:
		msg.Data = data
	}
	return msg
}
