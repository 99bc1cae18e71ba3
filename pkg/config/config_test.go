package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Malformed(t *testing.T) {
	_, err := LoadConfig(strings.NewReader(`{ "chains": [`), FormatJSON)
	assert.Error(t, err)
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfig_TableDriven(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		content     string
		format      Format
		expectError bool
		validate    func(*testing.T, Config)
	}{
		{
			name: "json with overrides",
			content: `{
				"default_chain_id": 69,
				"rpc_timeout_seconds": 5,
				"chains": [{"chain_id": 69, "name": "Optimism Kovan", "rpc_urls": ["http://kovan"], "deposit_box": "0x1"}]
			}`,
			format: FormatJSON,
			validate: func(t *testing.T, cfg Config) {
				assert.Equal(t, uint64(69), cfg.DefaultChainID)
				assert.Equal(t, 5, cfg.RPCTimeoutSeconds)
				assert.Equal(t, 300, cfg.ConfirmTimeoutSeconds)
				require.Len(t, cfg.Chains, 1)
				assert.Equal(t, "0x1", cfg.Chains[0].DepositBox)
			},
		},
		{
			name: "toml",
			content: `
default_chain_id = 1337
relay_fee_url = "http://fees"

[[chains]]
chain_id = 1337
name = "Local"
rpc_urls = ["http://127.0.0.1:8545"]

[[chains.tokens]]
symbol = "USDC"
address = "0x0000000000000000000000000000000000000001"
decimals = 6
`,
			format: FormatTOML,
			validate: func(t *testing.T, cfg Config) {
				assert.Equal(t, uint64(1337), cfg.DefaultChainID)
				assert.Equal(t, "http://fees", cfg.RelayFeeURL)
				require.Len(t, cfg.Chains, 1)
				require.Len(t, cfg.Chains[0].Tokens, 1)
				assert.Equal(t, 6, cfg.Chains[0].Tokens[0].Decimals)
			},
		},
		{
			name:        "chain without id",
			content:     `{"chains": [{"name": "x", "rpc_urls": ["http://x"]}]}`,
			format:      FormatJSON,
			expectError: true,
		},
		{
			name:        "duplicate chain",
			content:     `{"chains": [{"chain_id": 1}, {"chain_id": 1}]}`,
			format:      FormatJSON,
			expectError: true,
		},
		{
			name:        "zero timeout",
			content:     `{"rpc_timeout_seconds": 0}`,
			format:      FormatJSON,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := LoadConfig(strings.NewReader(tt.content), tt.format)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestSaveConfig_RoundTripAndBackup(t *testing.T) {
	for _, name := range []string{"cfg.json", "cfg.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := Default()
			cfg.DefaultChainID = 1
			cfg.Chains = []ChainConfig{{ChainID: 1, Name: "Ethereum", RPCURLs: []string{"http://localhost:8545"}}}

			require.NoError(t, SaveConfig(cfg, path))
			loaded, err := LoadConfigFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), loaded.DefaultChainID)
			require.Len(t, loaded.Chains, 1)
			assert.Equal(t, "Ethereum", loaded.Chains[0].Name)

			// second save produces a backup that can be restored
			cfg.DefaultChainID = 10
			require.NoError(t, SaveConfig(cfg, path))
			backups, err := filepath.Glob(path + ".*.bak")
			require.NoError(t, err)
			assert.Len(t, backups, 1)

			require.NoError(t, RestoreLastBackup(path))
			restored, err := LoadConfigFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), restored.DefaultChainID)
		})
	}
}

func TestRestoreLastBackup_None(t *testing.T) {
	assert.Error(t, RestoreLastBackup(filepath.Join(t.TempDir(), "cfg.json")))
}

func TestGetConfigPath(t *testing.T) {
	p, err := GetConfigPath("/tmp/custom.json")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.json", p)

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	p, err = GetConfigPath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ConfigFileName), p)
}
