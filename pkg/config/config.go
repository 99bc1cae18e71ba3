package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const ConfigFileName = ".bridgeui.json"

// Format selects the encoding of a config file.
type Format int

const (
	FormatJSON Format = iota
	FormatTOML
)

// FormatForPath picks TOML for *.toml paths and JSON otherwise.
func FormatForPath(path string) Format {
	if strings.HasSuffix(strings.ToLower(path), ".toml") {
		return FormatTOML
	}
	return FormatJSON
}

// TokenConfig holds configuration for a bridgeable ERC-20 token.
type TokenConfig struct {
	Symbol   string `json:"symbol" toml:"symbol"`
	Address  string `json:"address" toml:"address"`
	Decimals int    `json:"decimals" toml:"decimals"`
	LogoURI  string `json:"logo_uri,omitempty" toml:"logo_uri,omitempty"`
}

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Name     string `json:"name" toml:"name"`
	Symbol   string `json:"symbol" toml:"symbol"`
	Decimals int    `json:"decimals" toml:"decimals"`
}

// ChainConfig overrides or extends a chain registry entry.
type ChainConfig struct {
	ChainID        uint64          `json:"chain_id" toml:"chain_id"`
	Name           string          `json:"name" toml:"name"`
	RPCURLs        []string        `json:"rpc_urls" toml:"rpc_urls"`
	ExplorerURL    string          `json:"explorer_url,omitempty" toml:"explorer_url,omitempty"`
	NativeCurrency *NativeCurrency `json:"native_currency,omitempty" toml:"native_currency,omitempty"`
	LogoURI        string          `json:"logo_uri,omitempty" toml:"logo_uri,omitempty"`
	DepositBox     string          `json:"deposit_box,omitempty" toml:"deposit_box,omitempty"`
	Tokens         []TokenConfig   `json:"tokens,omitempty" toml:"tokens,omitempty"`
}

// Config holds application-wide settings.
type Config struct {
	KeystoreDir           string        `json:"keystore_dir" toml:"keystore_dir"`
	DefaultChainID        uint64        `json:"default_chain_id" toml:"default_chain_id"`
	Recipient             string        `json:"recipient,omitempty" toml:"recipient,omitempty"`
	RelayFeeURL           string        `json:"relay_fee_url,omitempty" toml:"relay_fee_url,omitempty"`
	SlowRelayFeePct       string        `json:"slow_relay_fee_pct" toml:"slow_relay_fee_pct"`
	InstantRelayFeePct    string        `json:"instant_relay_fee_pct" toml:"instant_relay_fee_pct"`
	RPCTimeoutSeconds     int           `json:"rpc_timeout_seconds" toml:"rpc_timeout_seconds"`
	ConfirmTimeoutSeconds int           `json:"confirm_timeout_seconds" toml:"confirm_timeout_seconds"`
	RefreshSeconds        int           `json:"balance_refresh_seconds" toml:"balance_refresh_seconds"`
	TokenDecimals         int           `json:"token_decimals" toml:"token_decimals"`
	Chains                []ChainConfig `json:"chains,omitempty" toml:"chains,omitempty"`
}

func (c Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutSeconds) * time.Second
}

func (c Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// Default returns the configuration used when no file exists.
func Default() Config {
	dir := "keystore"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".bridgeui", "keystore")
	}
	return Config{
		KeystoreDir:           dir,
		DefaultChainID:        10,
		SlowRelayFeePct:       "0.0005",
		InstantRelayFeePct:    "0.0005",
		RPCTimeoutSeconds:     30,
		ConfirmTimeoutSeconds: 300,
		RefreshSeconds:        15,
		TokenDecimals:         4,
	}
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f, FormatForPath(path))
}

func LoadConfig(r io.Reader, format Format) (Config, error) {
	var raw struct {
		KeystoreDir           *string       `json:"keystore_dir" toml:"keystore_dir"`
		DefaultChainID        *uint64       `json:"default_chain_id" toml:"default_chain_id"`
		Recipient             string        `json:"recipient" toml:"recipient"`
		RelayFeeURL           string        `json:"relay_fee_url" toml:"relay_fee_url"`
		SlowRelayFeePct       *string       `json:"slow_relay_fee_pct" toml:"slow_relay_fee_pct"`
		InstantRelayFeePct    *string       `json:"instant_relay_fee_pct" toml:"instant_relay_fee_pct"`
		RPCTimeoutSeconds     *int          `json:"rpc_timeout_seconds" toml:"rpc_timeout_seconds"`
		ConfirmTimeoutSeconds *int          `json:"confirm_timeout_seconds" toml:"confirm_timeout_seconds"`
		RefreshSeconds        *int          `json:"balance_refresh_seconds" toml:"balance_refresh_seconds"`
		TokenDecimals         *int          `json:"token_decimals" toml:"token_decimals"`
		Chains                []ChainConfig `json:"chains" toml:"chains"`
	}

	switch format {
	case FormatTOML:
		data, err := io.ReadAll(r)
		if err != nil {
			return Config{}, err
		}
		if err := toml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	cfg := Default()
	if raw.KeystoreDir != nil {
		cfg.KeystoreDir = expandHome(*raw.KeystoreDir)
	}
	if raw.DefaultChainID != nil {
		cfg.DefaultChainID = *raw.DefaultChainID
	}
	if raw.SlowRelayFeePct != nil {
		cfg.SlowRelayFeePct = *raw.SlowRelayFeePct
	}
	if raw.InstantRelayFeePct != nil {
		cfg.InstantRelayFeePct = *raw.InstantRelayFeePct
	}
	if raw.RPCTimeoutSeconds != nil {
		cfg.RPCTimeoutSeconds = *raw.RPCTimeoutSeconds
	}
	if raw.ConfirmTimeoutSeconds != nil {
		cfg.ConfirmTimeoutSeconds = *raw.ConfirmTimeoutSeconds
	}
	if raw.RefreshSeconds != nil {
		cfg.RefreshSeconds = *raw.RefreshSeconds
	}
	if raw.TokenDecimals != nil {
		cfg.TokenDecimals = *raw.TokenDecimals
	}
	cfg.Recipient = raw.Recipient
	cfg.RelayFeeURL = raw.RelayFeeURL
	cfg.Chains = raw.Chains

	return cfg, Validate(cfg)
}

// Validate checks structural constraints that would otherwise surface as
// confusing runtime failures.
func Validate(cfg Config) error {
	if cfg.RPCTimeoutSeconds <= 0 {
		return fmt.Errorf("validation failed: rpc_timeout_seconds must be positive")
	}
	if cfg.ConfirmTimeoutSeconds <= 0 {
		return fmt.Errorf("validation failed: confirm_timeout_seconds must be positive")
	}
	seen := make(map[uint64]bool)
	for i, c := range cfg.Chains {
		if c.ChainID == 0 {
			return fmt.Errorf("validation failed: chain at index %d has no chain_id", i)
		}
		if seen[c.ChainID] {
			return fmt.Errorf("validation failed: chain %d listed twice", c.ChainID)
		}
		seen[c.ChainID] = true
		for _, t := range c.Tokens {
			if strings.TrimSpace(t.Symbol) == "" || strings.TrimSpace(t.Address) == "" {
				return fmt.Errorf("validation failed: chain %d has a token without symbol or address", c.ChainID)
			}
		}
	}
	return nil
}

func SaveConfig(cfg Config, path string) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	var data []byte
	var err error
	switch FormatForPath(path) {
	case FormatTOML:
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		err = enc.Encode(cfg)
		data = buf.Bytes()
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
