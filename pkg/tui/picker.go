package tui

import (
	"context"
	"errors"
	"sync"

	"bridgeui/pkg/wallet"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/accounts"
)

var errPickerNotRunning = errors.New("wallet picker is not running")

type pickReply struct {
	sel wallet.Selection
	err error
}

type pickRequestMsg struct {
	accounts []accounts.Account
	reply    chan<- pickReply
}

// Picker is the wallet selection widget. It implements wallet.Selector by
// asking the running program to show the account list.
type Picker struct {
	mu      sync.Mutex
	program *tea.Program
}

func NewPicker() *Picker {
	return &Picker{}
}

func (p *Picker) attach(program *tea.Program) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.program = program
}

func (p *Picker) Select(ctx context.Context, available []accounts.Account) (wallet.Selection, error) {
	p.mu.Lock()
	program := p.program
	p.mu.Unlock()
	if program == nil {
		return wallet.Selection{}, errPickerNotRunning
	}

	reply := make(chan pickReply, 1)
	program.Send(pickRequestMsg{accounts: available, reply: reply})
	select {
	case r := <-reply:
		return r.sel, r.err
	case <-ctx.Done():
		return wallet.Selection{}, ctx.Err()
	}
}

type pickerState struct {
	accounts   []accounts.Account
	idx        int
	entering   bool
	passphrase textinput.Model
	reply      chan<- pickReply
}

func newPickerState(req pickRequestMsg) *pickerState {
	ti := textinput.New()
	ti.Placeholder = "Passphrase"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Width = 40
	return &pickerState{accounts: req.accounts, passphrase: ti, reply: req.reply}
}

// answer replies exactly once and closes the picker.
func (m *model) answer(sel wallet.Selection, err error) {
	if m.picker == nil {
		return
	}
	m.picker.reply <- pickReply{sel: sel, err: err}
	m.picker = nil
}

func (m model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.picker
	if p.entering {
		switch msg.String() {
		case "esc":
			p.entering = false
			p.passphrase.Blur()
			p.passphrase.SetValue("")
			return m, nil
		case "enter":
			sel := wallet.Selection{Account: p.accounts[p.idx], Passphrase: p.passphrase.Value()}
			m.answer(sel, nil)
			m.statusMessage = "Unlocking wallet..."
			return m, nil
		}
		var cmd tea.Cmd
		p.passphrase, cmd = p.passphrase.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "up", "k":
		if p.idx > 0 {
			p.idx--
		}
	case "down", "j":
		if p.idx < len(p.accounts)-1 {
			p.idx++
		}
	case "enter":
		p.entering = true
		return m, p.passphrase.Focus()
	case "esc", "q", "ctrl+c":
		m.answer(wallet.Selection{}, wallet.ErrUserRejected)
		m.loading = false
	}
	return m, nil
}
