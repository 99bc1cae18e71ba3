package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bridgeui/pkg/models"
	"bridgeui/pkg/send"
	"bridgeui/pkg/store"
	"bridgeui/pkg/wallet"
	"bridgeui/pkg/watcher"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

var gasTrackerRanges = []time.Duration{30 * time.Minute, time.Hour, 6 * time.Hour, 24 * time.Hour}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m *model) setStatus(msg string, isErr bool) tea.Cmd {
	m.statusMessage = msg
	m.statusIsError = isErr
	return clearStatusAfter(3 * time.Second)
}

// --- Commands ---

func (m model) connect() tea.Cmd {
	connector, timeout := m.deps.Connector, m.deps.ActionTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		conn, err := connector.Connect(ctx)
		return connectResultMsg{conn: conn, err: err}
	}
}

func (m model) disconnect() tea.Cmd {
	connector := m.deps.Connector
	return func() tea.Msg {
		return disconnectResultMsg{err: connector.Disconnect(context.Background())}
	}
}

func (m model) switchChain(target uint64) tea.Cmd {
	provider, registry, timeout := m.conn.Provider, m.deps.Registry, m.deps.ActionTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return switchResultMsg{chainID: target, err: wallet.SwitchChain(ctx, provider, registry, target)}
	}
}

func (m model) refresh() tea.Cmd {
	w := m.deps.Watcher
	return func() tea.Msg {
		w.Refresh(context.Background())
		return refreshDoneMsg{}
	}
}

func (m model) submitSend(signer wallet.Signer, args models.SendArgs) tea.Cmd {
	flow := m.deps.Flow
	return func() tea.Msg {
		st, err := flow.Send(context.Background(), signer, args)
		return sendResultMsg{status: st, err: err}
	}
}

func copyToClipboard(what, text string) tea.Cmd {
	return func() tea.Msg {
		return clipboardMsg{what: what, err: clipboard.WriteAll(text)}
	}
}

// --- Update ---

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case pickRequestMsg:
		if m.picker != nil {
			m.answer(wallet.Selection{}, errors.New("another wallet selection is pending"))
		}
		m.picker = newPickerState(msg)

	case watcher.Event:
		cmds = append(cmds, listenForWatcher(m.sub))
		m.handleWatcherEvent(msg)
		m.lastUpdate = time.Now()

	case connectResultMsg:
		m.loading = false
		if msg.err != nil {
			cmds = append(cmds, m.setStatus(fmt.Sprintf("Connect failed: %v", msg.err), true))
			break
		}
		m.selectedChain = msg.conn.ChainID
		m.coinIdx = 0
		cmds = append(cmds, m.setStatus("Connected "+msg.conn.Account.Hex(), false))

	case disconnectResultMsg:
		if msg.err != nil {
			cmds = append(cmds, m.setStatus(fmt.Sprintf("Disconnect failed: %v", msg.err), true))
		} else {
			cmds = append(cmds, m.setStatus("Disconnected", false))
		}

	case switchResultMsg:
		m.loading = false
		switch {
		case msg.err == nil:
			cmds = append(cmds, m.setStatus("Switched to "+chainName(m.deps.Registry, msg.chainID), false))
		case errors.Is(msg.err, wallet.ErrUserRejected):
			cmds = append(cmds, m.setStatus("Network switch rejected", true))
		default:
			cmds = append(cmds, m.setStatus(msg.err.Error(), true))
		}

	case sendResultMsg:
		m.sending = false
		m.sendStatus = msg.status
		if msg.err == nil {
			m.amountInput.SetValue("")
		}

	case refreshDoneMsg:
		m.loading = false
		cmds = append(cmds, m.setStatus("Balances refreshed", false))

	case clipboardMsg:
		if msg.err != nil {
			cmds = append(cmds, m.setStatus("Failed to copy to clipboard", true))
		} else {
			cmds = append(cmds, m.setStatus(msg.what+" copied to clipboard!", false))
		}

	case tea.KeyMsg:
		return m.handleKey(msg)

	case uiTickMsg:
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case clearStatusMsg:
		m.statusMessage = ""
		m.statusIsError = false
	}

	if m.loading || m.sending {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleWatcherEvent(ev watcher.Event) {
	switch ev.Type {
	case watcher.EventConnectionUpdated:
		if st, ok := ev.Data.(store.ConnectionState); ok {
			prev := m.conn.ChainID
			m.conn = st
			// Follow the wallet when it moves to a chain the user hadn't picked.
			if st.ChainID != 0 && st.ChainID != prev && m.deps.Registry.IsSupported(st.ChainID) {
				m.selectedChain = st.ChainID
				m.coinIdx = 0
			}
		}
	case watcher.EventSendStatus:
		if st, ok := ev.Data.(send.Status); ok {
			m.sendStatus = st
			m.sending = !st.State.Terminal()
		}
	case watcher.EventStoreChanged:
		m.loading = false
		m.queryErr = nil
	case watcher.EventQueryFailed:
		if f, ok := ev.Data.(watcher.QueryFailure); ok {
			m.loading = false
			m.queryErr = f.Err
		}
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.picker != nil {
		return m.updatePicker(msg)
	}

	if m.focus != focusNone {
		return m.updateSendForm(msg)
	}

	if key == "?" {
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		if key == "q" || key == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	if m.showTxDetail {
		return m.updateTxDetail(key)
	}
	if m.showTxList {
		return m.updateTxList(key)
	}
	if m.showGasTracker {
		switch key {
		case "q", "esc", "G":
			m.showGasTracker = false
		case "<", ",":
			if m.gasTrackerRangeIndex > 0 {
				m.gasTrackerRangeIndex--
			}
		case ">", ".":
			if m.gasTrackerRangeIndex < len(gasTrackerRanges)-1 {
				m.gasTrackerRangeIndex++
			}
		}
		return m, nil
	}

	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "c":
		if m.conn.Connected() {
			cmd := m.setStatus("Already connected", false)
			return m, cmd
		}
		m.loading = true
		return m, tea.Batch(m.connect(), m.spinner.Tick)
	case "D":
		if !m.conn.Connected() {
			return m, nil
		}
		return m, m.disconnect()
	case "r":
		if !m.conn.Connected() {
			cmd := m.setStatus("Connect a wallet first", true)
			return m, cmd
		}
		m.loading = true
		m.statusMessage = "Refreshing data..."
		return m, tea.Batch(m.refresh(), m.spinner.Tick)
	case "n", "right", "l":
		m.selectedChain = nextChain(m.deps.Registry.IDs(), m.selectedChain, 1)
		m.coinIdx = 0
	case "N", "left", "h":
		m.selectedChain = nextChain(m.deps.Registry.IDs(), m.selectedChain, -1)
		m.coinIdx = 0
	case "]", "down", "j":
		if coins := m.coins(); len(coins) > 0 {
			m.coinIdx = (m.coinIdx + 1) % len(coins)
		}
	case "[", "up", "k":
		if coins := m.coins(); len(coins) > 0 {
			m.coinIdx = (m.coinIdx - 1 + len(coins)) % len(coins)
		}
	case "w":
		if switchHint(m.deps.Registry, m.conn, m.selectedChain) == "" {
			return m, nil
		}
		m.loading = true
		m.statusMessage = "Waiting for wallet..."
		return m, tea.Batch(m.switchChain(m.selectedChain), m.spinner.Tick)
	case "s":
		if !m.conn.Connected() {
			cmd := m.setStatus("Connect a wallet first", true)
			return m, cmd
		}
		if m.sending {
			cmd := m.setStatus("A send is already in progress", true)
			return m, cmd
		}
		m.focus = focusAmount
		m.recipientInput.Blur()
		cmd := m.amountInput.Focus()
		return m, cmd
	case "x":
		if m.sendStatus.State.Terminal() {
			m.deps.Flow.Reset()
			m.sendStatus = send.Status{State: send.StateIdle}
		}
	case "t":
		m.showTxList = true
		m.txListIdx = 0
	case "G":
		m.showGasTracker = true
	case "y":
		if m.conn.Connected() {
			return m, copyToClipboard("Address", m.conn.Account.Hex())
		}
	}
	return m, nil
}

func (m model) updateSendForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.focus = focusNone
		m.amountInput.Blur()
		m.recipientInput.Blur()
		return m, nil
	case "tab", "shift+tab":
		if m.focus == focusAmount {
			m.focus = focusRecipient
			m.amountInput.Blur()
			cmd := m.recipientInput.Focus()
			return m, cmd
		}
		m.focus = focusAmount
		m.recipientInput.Blur()
		cmd := m.amountInput.Focus()
		return m, cmd
	case "enter":
		return m.submitForm()
	}

	var cmd tea.Cmd
	if m.focus == focusAmount {
		m.amountInput, cmd = m.amountInput.Update(msg)
	} else {
		m.recipientInput, cmd = m.recipientInput.Update(msg)
	}
	return m, cmd
}

func (m model) submitForm() (tea.Model, tea.Cmd) {
	if hint := switchHint(m.deps.Registry, m.conn, m.selectedChain); hint != "" {
		cmd := m.setStatus(hint+" before sending (w)", true)
		return m, cmd
	}
	coin, ok := m.selectedCoin()
	if !ok {
		cmd := m.setStatus("No coins configured for this chain", true)
		return m, cmd
	}
	args, err := buildSendArgs(coin, m.amountInput.Value(), m.recipientInput.Value())
	if err != nil {
		cmd := m.setStatus(err.Error(), true)
		return m, cmd
	}

	m.focus = focusNone
	m.amountInput.Blur()
	m.recipientInput.Blur()
	m.sending = true
	return m, tea.Batch(m.submitSend(m.conn.Signer, args), m.spinner.Tick)
}

func (m model) updateTxList(key string) (tea.Model, tea.Cmd) {
	txs := m.transactions()
	switch key {
	case "q", "esc", "t":
		m.showTxList = false
	case "up", "k":
		if m.txListIdx > 0 {
			m.txListIdx--
		}
	case "down", "j":
		if m.txListIdx < len(txs)-1 {
			m.txListIdx++
		}
	case "enter":
		if len(txs) > 0 {
			m.showTxDetail = true
		}
	}
	return m, nil
}

func (m model) updateTxDetail(key string) (tea.Model, tea.Cmd) {
	txs := m.transactions()
	if m.txListIdx >= len(txs) {
		m.showTxDetail = false
		return m, nil
	}
	tx := txs[m.txListIdx]

	switch key {
	case "q", "esc", "backspace":
		m.showTxDetail = false
	case "y":
		return m, copyToClipboard("Transaction hash", tx.Hash.Hex())
	case "o":
		url := explorerTxURL(m.deps.Registry, tx.ChainID, tx.Hash)
		if url == "" {
			cmd := m.setStatus("Explorer URL not configured for this chain", true)
			return m, cmd
		}
		if err := openBrowser(url); err != nil {
			cmd := m.setStatus(fmt.Sprintf("Failed to open browser: %v", err), true)
			return m, cmd
		}
		cmd := m.setStatus("Opened in browser", false)
		return m, cmd
	}
	return m, nil
}
