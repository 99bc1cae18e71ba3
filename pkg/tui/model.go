package tui

import (
	"time"

	"bridgeui/pkg/chains"
	"bridgeui/pkg/models"
	"bridgeui/pkg/send"
	"bridgeui/pkg/store"
	"bridgeui/pkg/wallet"
	"bridgeui/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
)

// Version is set by Start()
var Version = "dev"

// Deps are the session components the TUI drives.
type Deps struct {
	Watcher   *watcher.Watcher
	Global    *store.GlobalStore
	Registry  *chains.Registry
	Connector *wallet.Connector
	Flow      *send.Flow
	Picker    *Picker

	// Recipient prefills the send form.
	Recipient common.Address
	// Precision is the number of decimals shown for balances.
	Precision      int32
	ConnectOnStart bool
	ActionTimeout  time.Duration
}

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time

type connectResultMsg struct {
	conn wallet.Connection
	err  error
}

type disconnectResultMsg struct{ err error }

type switchResultMsg struct {
	chainID uint64
	err     error
}

type sendResultMsg struct {
	status send.Status
	err    error
}

type refreshDoneMsg struct{}

type clipboardMsg struct {
	what string
	err  error
}

// --- Model ---

const (
	focusNone = iota
	focusAmount
	focusRecipient
)

type model struct {
	deps Deps
	sub  watcher.Subscriber

	width         int
	height        int
	loading       bool
	lastUpdate    time.Time
	spinner       spinner.Model
	statusMessage string
	statusIsError bool

	conn          store.ConnectionState
	selectedChain uint64
	coinIdx       int
	queryErr      error

	amountInput    textinput.Model
	recipientInput textinput.Model
	focus          int
	sending        bool
	sendStatus     send.Status

	picker *pickerState

	showHelp             bool
	showGasTracker       bool
	gasTrackerRangeIndex int // 0: 30m, 1: 1h, 2: 6h, 3: 24h
	showTxList           bool
	txListIdx            int
	showTxDetail         bool
}

func initialModel(deps Deps) model {
	if deps.Precision <= 0 {
		deps.Precision = 6
	}
	if deps.ActionTimeout <= 0 {
		deps.ActionTimeout = 2 * time.Minute
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	amount := textinput.New()
	amount.Placeholder = "Amount (e.g. 0.5)"
	amount.Width = 30

	recipient := textinput.New()
	recipient.Placeholder = "Recipient 0x... (defaults to your account)"
	recipient.Width = 44
	if deps.Recipient != (common.Address{}) {
		recipient.SetValue(deps.Recipient.Hex())
	}

	return model{
		deps:           deps,
		sub:            deps.Watcher.Subscribe(),
		loading:        deps.ConnectOnStart,
		spinner:        s,
		conn:           deps.Watcher.Connection(),
		selectedChain:  deps.Global.CurrentChainID(),
		amountInput:    amount,
		recipientInput: recipient,
		sendStatus:     send.Status{State: send.StateIdle},
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		listenForWatcher(m.sub),
		m.spinner.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }),
	}
	if m.deps.ConnectOnStart {
		cmds = append(cmds, m.connect())
	}
	return tea.Batch(cmds...)
}

// coins lists the selectable coins of the selected chain.
func (m model) coins() []chains.Coin {
	coins, err := m.deps.Registry.Coins(m.selectedChain)
	if err != nil {
		return nil
	}
	return coins
}

func (m model) selectedCoin() (chains.Coin, bool) {
	coins := m.coins()
	if len(coins) == 0 {
		return chains.Coin{}, false
	}
	return coins[m.coinIdx%len(coins)], true
}

// transactions lists the history of the connected account on the selected
// chain, newest first.
func (m model) transactions() []models.Transaction {
	if m.conn.Account == (common.Address{}) {
		return nil
	}
	return m.deps.Global.Transactions(m.selectedChain, m.conn.Account)
}
