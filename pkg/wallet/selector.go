package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"golang.org/x/term"
)

// TermSelector is the headless wallet picker: it lists the keystore accounts
// on Out, reads the choice from In and the passphrase without echo.
type TermSelector struct {
	In           io.Reader
	Out          io.Writer
	ReadPassword func() ([]byte, error)
}

func NewTermSelector() *TermSelector {
	return &TermSelector{
		In:  os.Stdin,
		Out: os.Stderr,
		ReadPassword: func() ([]byte, error) {
			return term.ReadPassword(int(os.Stdin.Fd()))
		},
	}
}

// Select returns ErrUserRejected when the prompt is answered with an empty
// line or "q".
func (s *TermSelector) Select(ctx context.Context, available []accounts.Account) (Selection, error) {
	if err := ctx.Err(); err != nil {
		return Selection{}, err
	}
	reader := bufio.NewReader(s.In)

	_, _ = fmt.Fprintln(s.Out, "Available accounts:")
	for i, a := range available {
		_, _ = fmt.Fprintf(s.Out, "  [%d] %s\n", i+1, a.Address.Hex())
	}

	idx := 0
	if len(available) > 1 {
		_, _ = fmt.Fprintf(s.Out, "Select account [1-%d, q to cancel]: ", len(available))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return Selection{}, ErrUserRejected
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "q") {
			return Selection{}, ErrUserRejected
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(available) {
			return Selection{}, fmt.Errorf("invalid selection %q", line)
		}
		idx = n - 1
	}

	_, _ = fmt.Fprintf(s.Out, "Passphrase for %s: ", available[idx].Address.Hex())
	pw, err := s.ReadPassword()
	_, _ = fmt.Fprintln(s.Out)
	if err != nil {
		return Selection{}, fmt.Errorf("password input failed: %w", err)
	}
	return Selection{Account: available[idx], Passphrase: string(pw)}, nil
}
