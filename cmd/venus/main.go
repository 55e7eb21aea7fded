// Package main is the entry point for the venus CEX-DEX arbitrage engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	arbapp "github.com/flash-defi/venus/business/arbitrage/app"
	arbdomain "github.com/flash-defi/venus/business/arbitrage/domain"
	"github.com/flash-defi/venus/business/arbitrage/infra/lark"
	cexapp "github.com/flash-defi/venus/business/cex/app"
	cexdomain "github.com/flash-defi/venus/business/cex/domain"
	dexapp "github.com/flash-defi/venus/business/dex/app"
	dexinfra "github.com/flash-defi/venus/business/dex/infra/ethereum"
	"github.com/flash-defi/venus/business/dex/infra/uniswap"
	"github.com/flash-defi/venus/internal/apm"
	"github.com/flash-defi/venus/internal/asset"
	"github.com/flash-defi/venus/internal/config"
	"github.com/flash-defi/venus/internal/health"
	"github.com/flash-defi/venus/internal/logger"
	"github.com/flash-defi/venus/internal/market"
	"github.com/flash-defi/venus/internal/metrics"
	"github.com/flash-defi/venus/internal/venue"
	"github.com/flash-defi/venus/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// exitDataErr is sysexits DATAERR: fatal data/market-safety conditions.
const exitDataErr = 65

const defaultFeeTier = uniswap.FeeTier005

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Parse flags
	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	showVersion := flag.Bool("version", false, "Show version information")
	networkFlag := flag.String("network", "", "Blockchain network tag (e.g. ARBI)")
	dexFlag := flag.String("dex", "", "DEX venue tag (e.g. UNISWAP_V3)")
	cexFlag := flag.String("cex", "", "CEX venue tag (e.g. BITFINEX)")
	baseAssetFlag := flag.String("base-asset", "", "Base asset (e.g. ARB)")
	quoteAssetFlag := flag.String("quote-asset", "", "Quote asset (e.g. USDC)")
	privateKeyPath := flag.String("private-key-path", "", "Path to hex-encoded ECDSA key")
	flag.Parse()

	if *showVersion {
		fmt.Printf("venus %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// TUI is the default, CLI is for debugging
	tuiMode := !*cliMode

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	cfg, err := loadConfig(*configPath, cliOverrides{
		network:        *networkFlag,
		dex:            *dexFlag,
		cex:            *cexFlag,
		baseAsset:      *baseAssetFlag,
		quoteAsset:     *quoteAssetFlag,
		privateKeyPath: *privateKeyPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitDataErr)
	}
	cfg.App.TUIMode = tuiMode

	if err := run(ctx, cfg, tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cliOverrides carries the flag values that take precedence over the file.
type cliOverrides struct {
	network        string
	dex            string
	cex            string
	baseAsset      string
	quoteAsset     string
	privateKeyPath string
}

func loadConfig(path string, overrides cliOverrides) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if overrides.network != "" {
		cfg.Network = overrides.network
	}
	if overrides.dex != "" {
		cfg.Dex = overrides.dex
	}
	if overrides.cex != "" {
		cfg.Cex = overrides.cex
	}
	if overrides.baseAsset != "" {
		cfg.BaseAsset = overrides.baseAsset
	}
	if overrides.quoteAsset != "" {
		cfg.QuoteAsset = overrides.quoteAsset
	}
	if overrides.privateKeyPath != "" {
		cfg.Account.PrivateKeyPath = overrides.privateKeyPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, tuiMode bool) error {
	// Setup logger (suppress output in TUI mode)
	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	var log *logger.Logger
	if tuiMode {
		log = logger.New(io.Discard, logLevel, cfg.App.Name, nil)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
		log.Info(ctx, "starting venus",
			"version", version,
			"environment", cfg.App.Environment,
		)
	}

	// Initialize observability if enabled
	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	// Start health check server
	healthServer := health.NewServer(8081, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	}
	defer healthServer.Stop(ctx)

	b := newBot(cfg, log, tuiMode)
	defer b.Close()

	healthServer.RegisterCheck("cex", func(context.Context) (bool, string) {
		if b.cexService != nil && b.cexService.IsConnected(b.cexVenue, b.pair) {
			return true, ""
		}
		return false, "cex session down"
	})

	if tuiMode {
		return runTUI(ctx, b)
	}
	return runCLI(ctx, b)
}

// bot wires every component around one coordinator value; no global state.
type bot struct {
	cfg     *config.Config
	log     logger.LoggerInterface
	tuiMode bool

	client     *ethclient.Client
	cexService *cexapp.Service
	dexService *dexapp.Service
	monitor    *arbapp.Monitor
	coord      *arbapp.Coordinator

	pair     asset.Pair
	cexVenue venue.Cex

	marketCh  chan market.Change
	cexEvents chan cexdomain.Event
}

func newBot(cfg *config.Config, log logger.LoggerInterface, tuiMode bool) *bot {
	pair, _ := cfg.Pair()
	cexVenue, _ := cfg.CexEnum()

	return &bot{
		cfg:      cfg,
		log:      log,
		tuiMode:  tuiMode,
		pair:     pair,
		cexVenue: cexVenue,
		// Bounded market-data and event queues; producers drop market data
		// on overflow, events block briefly instead.
		marketCh:  make(chan market.Change, 1000),
		cexEvents: make(chan cexdomain.Event, 1000),
	}
}

// Start connects both venues and launches every task. It blocks only for
// connection setup, not for the run loops.
func (b *bot) Start(ctx context.Context) error {
	cfg := b.cfg

	network, _ := cfg.NetworkEnum()
	dexVenue, _ := cfg.DexEnum()

	// Blockchain client + wallet
	client, err := ethclient.DialContext(ctx, cfg.Provider.WSURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	b.client = client

	wallet, err := dexinfra.LoadWallet(cfg.Account.PrivateKeyPath, network.ChainID())
	if err != nil {
		return err
	}

	registry := asset.DefaultRegistry()
	baseToken, err := registry.Token(network, b.pair.Base)
	if err != nil {
		return err
	}
	quoteToken, err := registry.Token(network, b.pair.Quote)
	if err != nil {
		return err
	}

	// DEX session
	dexService, err := dexapp.NewService(ctx, dexapp.Config{
		Network:       network,
		Venue:         dexVenue,
		Base:          baseToken,
		Quote:         quoteToken,
		FeeTier:       defaultFeeTier,
		QuoteNotional: cfg.BaseQuoteAmtDecimal(),
		PollInterval:  cfg.WSInterval(),
	}, client, wallet, b.marketCh, b.log)
	if err != nil {
		return err
	}
	b.dexService = dexService

	// CEX session
	b.cexService = cexapp.NewService(cfg, b.marketCh, b.cexEvents, b.log)
	if err := b.cexService.ConnectPair(ctx, b.cexVenue, b.pair); err != nil {
		return err
	}

	// Notifier + reconciler
	notifier := &uiNotifier{
		inner:   lark.NewNotifier(cfg.Lark.Webhook, b.log),
		tuiMode: b.tuiMode,
	}
	reconciler := arbapp.NewReconciler(dexService, notifier, b.log)

	// Coordinator
	fatal := func(reason string) {
		b.log.Error(context.Background(), "fatal market-safety stop", "reason", reason)
		if b.tuiMode {
			ui.Send(ui.ErrorMsg{Error: fmt.Errorf("%s", reason)})
			time.Sleep(200 * time.Millisecond)
		}
		os.Exit(exitDataErr)
	}

	b.coord = arbapp.NewCoordinator(
		arbapp.CoordinatorConfig{
			Cex:       b.cexVenue,
			Dex:       dexVenue,
			Network:   network,
			Pair:      b.pair,
			FeeTier:   defaultFeeTier,
			Recipient: wallet.Address(),
			Notional:  cfg.BaseQuoteAmtDecimal(),
		},
		b.cexService,
		dexService,
		reconciler,
		func() int64 { return time.Now().UnixMilli() },
		fatal,
		func() (decimal.Decimal, bool) {
			if b.monitor == nil {
				return decimal.Decimal{}, false
			}
			return b.monitor.LastDexBid()
		},
		b.log,
	)

	// Spread monitor; the cex liveness gate uses the session's typed
	// best-spread capability.
	b.monitor = arbapp.NewMonitor(
		cfg.ThresholdDecimal(),
		cfg.BaseQuoteAmtDecimal(),
		b.coord,
		func() *market.Spread { return b.cexService.BestSpread(b.cexVenue, b.pair) },
		b.log,
	)

	// Confirmed swap subscription
	dexFinalised, err := dexService.SubscribeSwaps(ctx)
	if err != nil {
		return err
	}

	// Launch tasks
	go dexService.Run(ctx)
	go b.monitor.Run(ctx, b.marketCh)
	go b.coord.Run(ctx, b.cexEvents, dexFinalised)

	b.log.Info(ctx, "venus started",
		"pair", b.pair.String(),
		"cex", b.cexVenue.String(),
		"dex", dexVenue.String(),
		"network", network.String(),
	)
	return nil
}

func (b *bot) Close() {
	if b.cexService != nil {
		b.cexService.Close()
	}
	if b.client != nil {
		b.client.Close()
	}
}

// uiNotifier forwards settlements to the webhook and, in TUI mode, to the
// dashboard.
type uiNotifier struct {
	inner   *lark.Notifier
	tuiMode bool
}

func (n *uiNotifier) Notify(ctx context.Context, summary arbdomain.Summary) error {
	if n.tuiMode {
		ui.Send(ui.SettlementMsg{Summary: summary})
	}
	return n.inner.Notify(ctx, summary)
}

func runCLI(ctx context.Context, b *bot) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	b.log.Info(context.Background(), "shutting down")
	return nil
}

func runTUI(ctx context.Context, b *bot) error {
	// Channel to receive the start signal from the welcome screen
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	p := tea.NewProgram(ui.New(), tea.WithAltScreen())
	ui.Program = p

	errCh := make(chan error, 1)
	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		if err := b.Start(ctx); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}

		go reportLoop(ctx, b)

		<-ctx.Done()
		errCh <- nil
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// reportLoop pushes periodic state snapshots into the dashboard.
func reportLoop(ctx context.Context, b *bot) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ui.Send(ui.ConnectionStatusMsg{
				Name:      b.cexVenue.String(),
				Connected: b.cexService.IsConnected(b.cexVenue, b.pair),
			})

			cexSpread, dexSpread := b.monitor.LastSpreads()
			if cexSpread != nil {
				ui.Send(ui.SpreadMsg{
					Venue:   "cex",
					BestBid: cexSpread.BestBid.String(),
					BestAsk: cexSpread.BestAsk.String(),
				})
			}
			if dexSpread != nil {
				ui.Send(ui.SpreadMsg{
					Venue:   "dex",
					BestBid: dexSpread.BestBid.String(),
					BestAsk: dexSpread.BestAsk.String(),
				})
			}
			ui.Send(ui.ConnectionStatusMsg{Name: "DEX", Connected: dexSpread != nil})

			ui.Send(ui.TableMsg{
				Pairs:    b.coord.ActivePairs(),
				Inflight: b.coord.Inflight(),
			})
		}
	}
}
