package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bridgeui/pkg/chains"
	"bridgeui/pkg/config"
	"bridgeui/pkg/fees"
	"bridgeui/pkg/metrics"
	"bridgeui/pkg/models"
	"bridgeui/pkg/rpc"
	"bridgeui/pkg/send"
	"bridgeui/pkg/server"
	"bridgeui/pkg/store"
	"bridgeui/pkg/tui"
	"bridgeui/pkg/wallet"
	"bridgeui/pkg/watcher"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server, 0 disables it in TUI mode")
	originsFlag := flag.String("origins", "", "Comma separated CORS origins for the API server")
	rateFlag := flag.Int("rate", 120, "API requests per minute per client IP, 0 disables limiting")
	logFileFlag := flag.String("log-file", "", "Log file used in TUI mode (default ~/.bridgeui.log)")
	connectFlag := flag.Bool("connect", false, "Open the wallet selector on start")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	restoreFlag := flag.Bool("restore-backup", false, "Restore the newest config backup and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("bridgeui version %s\n", Version)
		os.Exit(0)
	}

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetConfigPath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	if *restoreFlag {
		if err := config.RestoreLastBackup(path); err != nil {
			fmt.Printf("Error restoring backup of %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Restored the latest backup of %s\n", path)
		os.Exit(0)
	}

	cfg, err := loadOrCreateConfig(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}

	if *testFlag || *testLongFlag {
		report := testConfig(context.Background(), cfg, path)
		if *jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		} else {
			printReport(os.Stdout, report)
		}
		if !reportOK(report) {
			os.Exit(1)
		}
		os.Exit(0)
	}

	logOut, closeLog, err := openLogOutput(*serverFlag, *logFileFlag)
	if err != nil {
		fmt.Printf("Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	level := zerolog.InfoLevel
	if *debugFlag {
		level = zerolog.DebugLevel
	}
	setLoggers(newLogger(logOut, level))

	if err := run(cfg, options{
		server:  *serverFlag,
		port:    *portFlag,
		origins: splitList(*originsFlag),
		rate:    *rateFlag,
		connect: *connectFlag,
	}); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	server  bool
	port    int
	origins []string
	rate    int
	connect bool
}

func run(cfg config.Config, opts options) error {
	registry, err := chains.FromConfig(cfg)
	if err != nil {
		return err
	}
	if !registry.IsSupported(cfg.DefaultChainID) {
		return &chains.UnsupportedChainError{ChainID: cfg.DefaultChainID}
	}

	conn := store.NewConnectionStore()
	global := store.NewGlobalStore(cfg.DefaultChainID)

	clients := rpc.NewClients(registry, cfg.RPCTimeout())
	defer clients.Close()
	querier := rpc.NewQuerier(clients, global)
	bridge := rpc.NewBridgeBackend(clients, querier)

	feeService, err := newFeeService(cfg)
	if err != nil {
		return err
	}
	flow := send.NewFlow(bridge, feeService, global, send.Options{
		CallTimeout:    cfg.RPCTimeout(),
		ConfirmTimeout: cfg.ConfirmTimeout(),
	})

	ks := keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
	backend := newWalletBackend(ks, cfg)

	var picker *tui.Picker
	var selector wallet.Selector
	if opts.server {
		selector = wallet.NewTermSelector()
	} else {
		picker = tui.NewPicker()
		selector = picker
	}
	connector := wallet.NewConnector(backend, selector, 0)

	w := watcher.NewWatcher(registry, conn, global, cfg.RefreshInterval(), cfg.RPCTimeout())
	w.SetDataSource(&watcher.RealDataSource{Querier: querier, Registry: registry})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	w.Start(ctx, connector.Events(), flow)
	defer w.Stop()
	defer func() {
		if err := connector.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("disconnect on exit failed")
		}
	}()

	var srv *server.Server
	if opts.server || opts.port > 0 {
		srv = server.NewServer(w, global, registry, flow, server.NewSwitcher(conn, registry), server.Options{
			AllowedOrigins: opts.origins,
			RatePerMinute:  opts.rate,
			Metrics:        metrics.NewRegistry(),
			Native:         querier,
		})
		go func() {
			if err := srv.Start(opts.port); err != nil {
				log.Error().Err(err).Int("port", opts.port).Msg("API server stopped")
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if opts.server {
		fmt.Printf("Running in server mode on port %d...\n", opts.port)
		if _, err := connector.Connect(ctx); err != nil {
			return fmt.Errorf("connect wallet: %w", err)
		}
		<-ctx.Done()
		return nil
	}

	return tui.Start(tui.Deps{
		Watcher:        w,
		Global:         global,
		Registry:       registry,
		Connector:      connector,
		Flow:           flow,
		Picker:         picker,
		Recipient:      recipientFromConfig(cfg),
		Precision:      int32(cfg.TokenDecimals),
		ConnectOnStart: opts.connect,
		ActionTimeout:  cfg.ConfirmTimeout(),
	}, Version)
}

// loadOrCreateConfig writes the default configuration on first run so users
// have a file to edit.
func loadOrCreateConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := config.Default()
		if err := config.SaveConfig(cfg, path); err != nil {
			return cfg, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	return config.LoadConfigFromFile(path)
}

func newFeeService(cfg config.Config) (fees.Service, error) {
	if cfg.RelayFeeURL != "" {
		return fees.NewHTTP(cfg.RelayFeeURL, cfg.RPCTimeout()), nil
	}
	return fees.NewStatic(cfg.SlowRelayFeePct, cfg.InstantRelayFeePct)
}

// newWalletBackend opens wallets that only know the default chain, like a
// fresh browser wallet. Other registry chains are added on first switch.
func newWalletBackend(ks *keystore.KeyStore, cfg config.Config) *wallet.KeystoreBackend {
	return wallet.NewKeystoreBackend(ks, cfg.DefaultChainID)
}

func recipientFromConfig(cfg config.Config) common.Address {
	if common.IsHexAddress(cfg.Recipient) {
		return common.HexToAddress(cfg.Recipient)
	}
	return common.Address{}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// --- Logging ---

var log = zerolog.Nop()

func newLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: out != os.Stderr}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}

func setLoggers(l zerolog.Logger) {
	log = l
	rpc.SetLogger(l)
	fees.SetLogger(l)
	wallet.SetLogger(l)
	send.SetLogger(l)
	watcher.SetLogger(l)
	server.SetLogger(l)
}

// openLogOutput returns stderr in server mode. The TUI owns the terminal, so
// it logs to a file instead.
func openLogOutput(serverMode bool, path string) (io.Writer, func(), error) {
	if serverMode {
		return os.Stderr, func() {}, nil
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(home, ".bridgeui.log")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// --- Config test mode ---

// testConfig checks the configuration structure and asks every RPC endpoint
// of every chain for its chain id.
func testConfig(ctx context.Context, cfg config.Config, path string) models.TestReport {
	report := models.TestReport{ConfigPath: path, ValidStructure: true}

	if err := config.Validate(cfg); err != nil {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, err.Error())
		return report
	}
	registry, err := chains.FromConfig(cfg)
	if err != nil {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, err.Error())
		return report
	}

	ids := registry.IDs()
	report.ChainCount = len(ids)
	for _, id := range ids {
		meta, _ := registry.Lookup(id)
		result := testChain(ctx, meta)
		if result.Inconsistent {
			report.InconsistentChains = append(report.InconsistentChains, meta.Name)
		}
		if result.ObservedChainID != 0 && result.ObservedChainID != id {
			report.MismatchedChains = append(report.MismatchedChains, meta.Name)
		}
		report.Chains = append(report.Chains, result)
	}
	return report
}

func testChain(ctx context.Context, meta chains.ChainMetadata) models.ChainResult {
	result := models.ChainResult{Name: meta.Name, ConfigChainID: meta.ID}
	if meta.DepositBox != (common.Address{}) {
		result.DepositBox = meta.DepositBox.Hex()
	}

	for _, url := range meta.RPCURLs {
		r := models.RPCResult{URL: url}
		id, err := rpc.FetchChainID(ctx, url)
		if err != nil {
			r.Status = "error"
			r.Error = err.Error()
			result.RPCs = append(result.RPCs, r)
			continue
		}
		r.Status = "ok"
		r.ChainID = id
		if lat, err := rpc.FetchRPCLatency(ctx, url); err == nil {
			r.LatencyMS = lat.Latency.Milliseconds()
		}
		if id != meta.ID {
			r.Error = fmt.Sprintf("Mismatch! Expected %d", meta.ID)
		}
		if result.ObservedChainID == 0 {
			result.ObservedChainID = id
		} else if result.ObservedChainID != id {
			result.Inconsistent = true
		}
		result.RPCs = append(result.RPCs, r)
	}

	if result.ObservedChainID != 0 {
		result.TokenErrors = checkTokens(ctx, meta)
	}
	return result
}

// checkTokens compares the configured decimals of every listed token with
// what the token contract reports.
func checkTokens(ctx context.Context, meta chains.ChainMetadata) []string {
	var problems []string
	for _, coin := range meta.Coins {
		if models.IsNative(coin.Address) {
			continue
		}
		md, err := rpc.FetchTokenMetadata(ctx, meta.RPCURLs, coin.Address)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s: %v", coin.Symbol, err))
		case md.Decimals != coin.Decimals:
			problems = append(problems, fmt.Sprintf("%s: configured %d decimals, contract reports %d", coin.Symbol, coin.Decimals, md.Decimals))
		}
	}
	return problems
}

func reportOK(r models.TestReport) bool {
	return r.ValidStructure && len(r.InconsistentChains) == 0 && len(r.MismatchedChains) == 0
}

func printReport(out io.Writer, r models.TestReport) {
	_, _ = fmt.Fprintf(out, "Testing configuration at: %s\n", r.ConfigPath)
	if !r.ValidStructure {
		for _, e := range r.StructureErrors {
			_, _ = fmt.Fprintf(out, "Error: %s\n", e)
		}
		return
	}
	_, _ = fmt.Fprintf(out, "Found %d chains.\n", r.ChainCount)

	for _, c := range r.Chains {
		_, _ = fmt.Fprintf(out, "Testing Chain: %s (%d)\n", c.Name, c.ConfigChainID)
		if c.DepositBox == "" {
			_, _ = fmt.Fprintln(out, "  Deposit box: not configured")
		} else {
			_, _ = fmt.Fprintf(out, "  Deposit box: %s\n", c.DepositBox)
		}
		if len(c.RPCs) == 0 {
			_, _ = fmt.Fprintln(out, "  No RPC URLs configured")
		}
		for _, rr := range c.RPCs {
			switch {
			case rr.Status != "ok":
				_, _ = fmt.Fprintf(out, "  RPC: %s ... Failed: %s\n", rr.URL, rr.Error)
			case rr.Error != "":
				_, _ = fmt.Fprintf(out, "  RPC: %s ... OK (ChainID: %d) - MISMATCH! Expected %d\n", rr.URL, rr.ChainID, c.ConfigChainID)
			default:
				_, _ = fmt.Fprintf(out, "  RPC: %s ... OK (ChainID: %d, %dms) - Verified\n", rr.URL, rr.ChainID, rr.LatencyMS)
			}
		}
		for _, te := range c.TokenErrors {
			_, _ = fmt.Fprintf(out, "  Token: %s\n", te)
		}
	}

	if len(r.InconsistentChains) > 0 {
		_, _ = fmt.Fprintln(out, "\nWARNING: Inconsistent RPCs detected!")
		_, _ = fmt.Fprintln(out, "The following chains have RPCs returning conflicting Chain IDs:")
		for _, name := range r.InconsistentChains {
			_, _ = fmt.Fprintf(out, " - %s\n", name)
		}
	}
	if len(r.MismatchedChains) > 0 {
		_, _ = fmt.Fprintln(out, "\nWARNING: RPCs report a different chain id than configured:")
		for _, name := range r.MismatchedChains {
			_, _ = fmt.Fprintf(out, " - %s\n", name)
		}
	}
}
