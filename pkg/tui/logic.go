package tui

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"bridgeui/pkg/chains"
	"bridgeui/pkg/models"
	"bridgeui/pkg/send"
	"bridgeui/pkg/store"
	"bridgeui/pkg/utils"
	"bridgeui/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
)

// balanceRow is one line of the balance table.
type balanceRow struct {
	Symbol string
	Amount string
}

// balanceRows lists every coin of the chain, in registry order. Coins without
// a fetched balance show "-".
func balanceRows(coins []chains.Coin, balances map[common.Address]*big.Int, precision int32) []balanceRow {
	rows := make([]balanceRow, 0, len(coins))
	for _, c := range coins {
		amount := "-"
		if bal, ok := balances[c.Address]; ok {
			amount = utils.FormatUnits(bal, int32(c.Decimals), precision)
		}
		rows = append(rows, balanceRow{Symbol: c.Symbol, Amount: amount})
	}
	return rows
}

// switchHint is the "Switch to <chain>" prompt shown when the wallet is on a
// different chain than the one selected for sending.
func switchHint(registry *chains.Registry, conn store.ConnectionState, selected uint64) string {
	if !conn.Connected() || conn.ChainID == selected {
		return ""
	}
	return "Switch to " + chainName(registry, selected)
}

func chainName(registry *chains.Registry, chainID uint64) string {
	if meta, err := registry.Lookup(chainID); err == nil {
		return meta.Name
	}
	return fmt.Sprintf("chain %d", chainID)
}

// buildSendArgs validates the send form.
func buildSendArgs(coin chains.Coin, amount, recipient string) (models.SendArgs, error) {
	args := models.SendArgs{Token: coin.Address}
	recipient = strings.TrimSpace(recipient)
	if recipient != "" {
		if !common.IsHexAddress(recipient) {
			return args, errors.New("invalid recipient address")
		}
		args.Recipient = common.HexToAddress(recipient)
	}
	value, err := utils.ParseUnits(amount, int32(coin.Decimals))
	if err != nil {
		return args, err
	}
	args.Amount = value
	return args, nil
}

// nextChain steps through ids, wrapping at both ends. An unknown current id
// starts from the first entry.
func nextChain(ids []uint64, current uint64, step int) uint64 {
	if len(ids) == 0 {
		return current
	}
	idx := -1
	for i, id := range ids {
		if id == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ids[0]
	}
	idx = (idx + step) % len(ids)
	if idx < 0 {
		idx += len(ids)
	}
	return ids[idx]
}

// filterGasHistory keeps the values observed within window of now.
func filterGasHistory(history []models.GasPricePoint, window time.Duration, now time.Time) []float64 {
	var out []float64
	for _, dp := range history {
		if now.Sub(dp.Timestamp) <= window {
			out = append(out, dp.Value)
		}
	}
	return out
}

func gasStats(values []float64) (low, avg, high float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	low, high = values[0], values[0]
	sum := 0.0
	for _, v := range values {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
		sum += v
	}
	return low, sum / float64(len(values)), high
}

// sendProgress renders a send status for the status line.
func sendProgress(st send.Status) string {
	switch st.State {
	case send.StateIdle:
		return ""
	case send.StateSubmitted:
		return fmt.Sprintf("Deposit submitted: %s", utils.TruncateString(st.DepositTx.Hex(), 18))
	case send.StateFailed:
		if st.Err != nil {
			return st.Err.Error()
		}
		return "Send failed"
	default:
		return st.State.Label() + "..."
	}
}

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}
