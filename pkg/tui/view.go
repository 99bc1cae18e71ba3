package tui

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"bridgeui/pkg/models"
	"bridgeui/pkg/send"
	"bridgeui/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/guptarohit/asciigraph"
)

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	switch {
	case m.picker != nil:
		return m.viewPicker()
	case m.showHelp:
		return m.viewHelp()
	case m.showTxDetail:
		return m.viewTxDetail()
	case m.showTxList:
		return m.viewTxList()
	case m.showGasTracker:
		return m.viewGasTracker()
	}
	return m.viewMain()
}

func (m model) viewMain() string {
	header := titleStyle.Render(fmt.Sprintf("Bridge %s", Version))

	sections := []string{header, "", m.viewConnection(), "", m.viewBalances()}
	if form := m.viewSendForm(); form != "" {
		sections = append(sections, "", form)
	}
	if progress := m.viewSendStatus(); progress != "" {
		sections = append(sections, "", progress)
	}

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", m.viewStatusLine(), m.viewFooter()),
	)
}

func (m model) viewConnection() string {
	if !m.conn.Connected() {
		if m.loading {
			return fmt.Sprintf("%s Connecting...", m.spinner.View())
		}
		return subtleStyle.Render("No wallet connected. Press c to connect.")
	}

	lines := []string{
		fmt.Sprintf("Account: %s", infoStyle.Render(m.conn.Account.Hex())),
		fmt.Sprintf("Wallet network: %s", chainName(m.deps.Registry, m.conn.ChainID)),
	}
	if m.conn.Err != nil {
		lines = append(lines, errStyle.Render(m.conn.Err.Error()))
	}
	if price := m.deps.Watcher.GetGasPrice(m.conn.ChainID); price != nil {
		lines = append(lines, subtleStyle.Render(fmt.Sprintf("Gas: %.2f Gwei", utils.WeiToGwei(price))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m model) viewBalances() string {
	var b strings.Builder

	title := fmt.Sprintf("Send from %s", chainName(m.deps.Registry, m.selectedChain))
	b.WriteString(tableHeaderStyle.Render(title))
	b.WriteString("\n")
	if hint := switchHint(m.deps.Registry, m.conn, m.selectedChain); hint != "" {
		b.WriteString(warnStyle.Render(hint + " (w)"))
		b.WriteString("\n")
	}

	var balances map[common.Address]*big.Int
	if m.conn.Connected() {
		balances = m.deps.Global.Balances(m.selectedChain, m.conn.Account)
	}
	coins := m.coins()
	if len(coins) == 0 {
		b.WriteString(subtleStyle.Render("No coins configured for this chain."))
		return b.String()
	}

	for i, row := range balanceRows(coins, balances, m.deps.Precision) {
		line := fmt.Sprintf("%-8s %20s", row.Symbol, row.Amount)
		if i == m.coinIdx%len(coins) {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	if m.queryErr != nil {
		b.WriteString(errStyle.Render("Balance query failed: " + utils.TruncateString(m.queryErr.Error(), 60)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) viewSendForm() string {
	if m.focus == focusNone {
		return ""
	}
	coin, _ := m.selectedCoin()
	return lipgloss.JoinVertical(lipgloss.Left,
		tableHeaderStyle.Render("Send "+coin.Symbol),
		m.amountInput.View(),
		m.recipientInput.View(),
		subtleStyle.Render("tab: next field • enter: send • esc: cancel"),
	)
}

func (m model) viewSendStatus() string {
	text := sendProgress(m.sendStatus)
	if text == "" {
		return ""
	}
	switch m.sendStatus.State {
	case send.StateFailed:
		return errStyle.Render(text)
	case send.StateSubmitted:
		return infoStyle.Render(text)
	default:
		return fmt.Sprintf("%s %s", m.spinner.View(), text)
	}
}

func (m model) viewStatusLine() string {
	if m.statusMessage == "" {
		if m.lastUpdate.IsZero() {
			return ""
		}
		return subtleStyle.Render(fmt.Sprintf("Updated %s ago", time.Since(m.lastUpdate).Truncate(time.Second)))
	}
	if m.statusIsError {
		return errStyle.Render(m.statusMessage)
	}
	return infoStyle.Render(m.statusMessage)
}

func (m model) viewFooter() string {
	if m.focus != focusNone {
		return ""
	}
	if !m.conn.Connected() {
		return subtleStyle.Render("c: connect • n/N: chain • G: gas • ?: help • q: quit")
	}
	return subtleStyle.Render("s: send • [/]: coin • n/N: chain • w: switch • t: txs • r: refresh • ?: help • q: quit")
}

func (m model) viewPicker() string {
	p := m.picker
	header := titleStyle.Render("Select Wallet")

	var body string
	if len(p.accounts) == 0 {
		body = "No accounts found in the keystore."
	} else {
		var rows []string
		for i, acc := range p.accounts {
			if i == p.idx {
				rows = append(rows, selectedStyle.Render("> "+acc.Address.Hex()))
			} else {
				rows = append(rows, "  "+acc.Address.Hex())
			}
		}
		body = strings.Join(rows, "\n")
	}

	footer := subtleStyle.Render("↑/↓: select • enter: unlock • esc: cancel")
	if p.entering {
		body = lipgloss.JoinVertical(lipgloss.Left, body, "", p.passphrase.View())
		footer = subtleStyle.Render("enter: connect • esc: back")
	}

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", body))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewHelp() string {
	keys := [][2]string{
		{"c / D", "Connect / disconnect wallet"},
		{"n / N", "Next / previous chain"},
		{"[ / ]", "Previous / next coin"},
		{"w", "Switch wallet to the selected chain"},
		{"s", "Open the send form"},
		{"x", "Clear the last send result"},
		{"r", "Refresh balances"},
		{"t", "Transaction history"},
		{"G", "Gas tracker"},
		{"y", "Copy account address"},
		{"?", "Toggle help"},
		{"q", "Quit"},
	}

	var rows []string
	for _, k := range keys {
		rows = append(rows, fmt.Sprintf("%-8s %s", infoStyle.Render(k[0]), k[1]))
	}

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Help"), "", strings.Join(rows, "\n")))
	footer := subtleStyle.Render("?/q/esc: close")
	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}

func (m model) viewGasTracker() string {
	rangeLabels := []string{"30m", "1h", "6h", "24h"}
	selectedRange := gasTrackerRanges[m.gasTrackerRangeIndex]

	chainID := m.conn.ChainID
	if chainID == 0 {
		chainID = m.selectedChain
	}
	header := titleStyle.Render(fmt.Sprintf("Gas Tracker: %s (Gwei) - Last %s", chainName(m.deps.Registry, chainID), rangeLabels[m.gasTrackerRangeIndex]))

	targetBoxWidth := m.width - 4
	if targetBoxWidth < 0 {
		targetBoxWidth = 0
	}

	var graph, stats string
	values := filterGasHistory(m.deps.Watcher.GetGasHistory(chainID), selectedRange, time.Now())
	if len(values) > 0 {
		low, avg, high := gasStats(values)
		stats = subtleStyle.Render(fmt.Sprintf("Low: %.2f • Avg: %.2f • High: %.2f", low, avg, high))

		graphWidth := targetBoxWidth - 14
		if graphWidth < 10 {
			graphWidth = 10
		}
		graphHeight := m.height - 14
		if graphHeight < 1 {
			graphHeight = 1
		}
		graph = asciigraph.Plot(values,
			asciigraph.Height(graphHeight),
			asciigraph.Width(graphWidth),
			asciigraph.Caption("Historical Gas Price (Gwei)"),
		)
	} else {
		graph = "Not enough data to draw graph."
	}

	content := boxStyle.Width(targetBoxWidth).Align(lipgloss.Center).Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", stats, "\n", graph))
	footer := subtleStyle.Render("G/q/esc: back • </>: change range")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewTxList() string {
	header := titleStyle.Render(fmt.Sprintf("Transactions on %s", chainName(m.deps.Registry, m.selectedChain)))

	txs := m.transactions()
	if len(txs) == 0 {
		content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", "No transactions found."))
		footer := subtleStyle.Render("q/esc: back")
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
	}

	var rows []string
	rows = append(rows, tableHeaderStyle.Render(fmt.Sprintf("  %-8s %-14s %-14s %s", "Kind", "Hash", "To", "Submitted")))
	for i, tx := range txs {
		cursor := "  "
		if i == m.txListIdx {
			cursor = "> "
		}
		to := ""
		if tx.To != nil {
			to = utils.ShortenAddress(tx.To.Hex())
		}
		row := fmt.Sprintf("%s%-8s %-14s %-14s %s", cursor, tx.Label(), utils.TruncateString(tx.Hash.Hex(), 12), to, tx.SubmittedAt.Format("15:04:05"))
		if i == m.txListIdx {
			row = selectedStyle.Render(row)
		}
		rows = append(rows, row)
	}

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(rows, "\n")))
	footer := subtleStyle.Render("↑/↓: navigate • enter: details • q/esc: back")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewTxDetail() string {
	txs := m.transactions()
	if m.txListIdx >= len(txs) {
		return m.viewTxList()
	}
	tx := txs[m.txListIdx]

	lines := []string{
		fmt.Sprintf("Kind:      %s", tx.Label()),
		fmt.Sprintf("Hash:      %s", tx.Hash.Hex()),
		fmt.Sprintf("From:      %s", tx.From.Hex()),
	}
	if tx.To != nil {
		lines = append(lines, fmt.Sprintf("To:        %s", tx.To.Hex()))
	}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		lines = append(lines, fmt.Sprintf("Value:     %s ETH", utils.FormatUnits(tx.Value, 18, m.deps.Precision)))
	}
	lines = append(lines,
		fmt.Sprintf("Nonce:     %d", tx.Nonce),
		fmt.Sprintf("Gas limit: %d", tx.GasLimit),
		fmt.Sprintf("Submitted: %s", tx.SubmittedAt.Format(time.RFC1123)),
	)
	lines = append(lines, metaLines(tx.Meta)...)

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Transaction Details"), "", strings.Join(lines, "\n")))
	footer := subtleStyle.Render("y: copy hash • o: open in explorer • q/esc: back")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func metaLines(meta models.TxMeta) []string {
	switch v := meta.(type) {
	case models.ApproveMeta:
		return []string{
			fmt.Sprintf("Token:     %s", v.Token.Hex()),
			fmt.Sprintf("Spender:   %s", v.Spender.Hex()),
		}
	case models.DepositMeta:
		return []string{
			fmt.Sprintf("Token:     %s", v.Token.Hex()),
			fmt.Sprintf("Recipient: %s", v.Recipient.Hex()),
			fmt.Sprintf("Amount:    %s", v.Amount.String()),
		}
	}
	return nil
}
