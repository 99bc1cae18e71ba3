package tui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"bridgeui/pkg/chains"

	"github.com/ethereum/go-ethereum/common"
)

// explorerTxURL links a transaction on the chain's block explorer, empty when
// the chain has none configured.
func explorerTxURL(registry *chains.Registry, chainID uint64, hash common.Hash) string {
	meta, err := registry.Lookup(chainID)
	if err != nil || meta.ExplorerURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(meta.ExplorerURL, "/"), hash.Hex())
}

// openBrowser opens the specified URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
