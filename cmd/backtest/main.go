package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/guyghost/cryptosim/internal/backtesting"
	"github.com/guyghost/cryptosim/internal/config"
	"github.com/guyghost/cryptosim/internal/logger"
	"github.com/guyghost/cryptosim/internal/market"
	"github.com/guyghost/cryptosim/internal/storage"
	"github.com/guyghost/cryptosim/internal/strategy"
	"github.com/guyghost/cryptosim/internal/sweep"
	"github.com/guyghost/cryptosim/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var (
	dataFile  = flag.String("data", "", "Path to CSV file with historical data")
	symbol    = flag.String("symbol", "BTC-USD", "Instrument the CSV rows belong to")
	timeframe = flag.String("timeframe", "1h", "Bar timeframe of the data (1m, 5m, 15m, 1h, 4h, 1d, ...)")
	tier      = flag.String("tier", string(market.TierStandard), "Data tier of the bars")
	source    = flag.String("source", "csv", "Source identifier stamped on loaded bars")

	strategyFiles = flag.String("strategy", "", "Comma-separated YAML strategy files; more than one runs a sweep")
	mode          = flag.String("mode", "manual", "Dataset selection mode: auto or manual")
	from          = flag.String("from", "", "Manual range start (RFC3339, inclusive)")
	to            = flag.String("to", "", "Manual range end (RFC3339, inclusive)")
	liquidate     = flag.Bool("liquidate", false, "Close open positions at the last close")

	verbose        = flag.Bool("verbose", false, "Show detailed trade log")
	generateSample = flag.Bool("generate-sample", false, "Generate sample data instead of loading from file")
	sampleCandles  = flag.Int("sample-candles", 1000, "Number of candles to generate for sample data")
	dbPath         = flag.String("db", "", "SQLite results database (overrides BACKTEST_RESULTS_DB)")
	metricsAddr    = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides TELEMETRY_ADDR)")
)

// sampleStart keeps generated data, and therefore results, reproducible.
var sampleStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Error("backtest failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.FromEnv()).Service(config.ServiceName, cfg.Environment)
	logger.SetDefault(log)

	if *dbPath != "" {
		cfg.ResultsDB = *dbPath
	}
	if *metricsAddr != "" {
		cfg.TelemetryAddr = *metricsAddr
	}

	server := telemetry.NewServer(cfg.TelemetryAddr)
	serverErrs := server.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		for err := range serverErrs {
			log.WithError(err).Error("telemetry server stopped")
		}
	}()

	store, err := openStore(cfg.ResultsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	bars, err := loadBars(log)
	if err != nil {
		return err
	}

	strategies, err := loadStrategies(*strategyFiles)
	if err != nil {
		return err
	}

	runCfg, err := runConfig(cfg, log)
	if err != nil {
		return err
	}
	server.SetReady(true)

	if len(strategies) > 1 {
		return runSweep(ctx, log, cfg, bars, strategies, runCfg, store)
	}
	return runSingle(ctx, log, bars, strategies[0], runCfg, store)
}

func openStore(path string) (storage.ResultStore, error) {
	if path == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewSQLiteStore(path)
}

func loadBars(log *logger.Logger) ([]market.Bar, error) {
	tf, err := market.ParseTimeframe(*timeframe)
	if err != nil {
		return nil, err
	}
	dataTier, err := market.ParseDataTier(*tier)
	if err != nil {
		return nil, err
	}
	loader := backtesting.NewDataLoader(tf, dataTier, *source)

	if *generateSample {
		bars := loader.GenerateSampleData(*symbol, sampleStart, *sampleCandles, 50000)
		log.Info("generated sample data", "bars", len(bars), "symbol", *symbol)
		return bars, nil
	}
	if *dataFile == "" {
		return nil, fmt.Errorf("either -data flag or -generate-sample flag is required")
	}

	bars, err := loader.LoadFromCSV(*dataFile, *symbol)
	if err != nil {
		return nil, err
	}
	log.Info("loaded data", "bars", len(bars), "file", *dataFile)
	return bars, nil
}

// defaultStrategy buys oversold RSI dips and sells into strength.
func defaultStrategy() strategy.Strategy {
	return strategy.Strategy{
		ID:                  "rsi-dip",
		Name:                "RSI dip buyer",
		Instruments:         []string{*symbol},
		EntryConditions:     []string{"RSI(14) < 30"},
		ExitConditions:      []string{"RSI(14) > 70"},
		PositionSizePercent: decimal.NewFromInt(25),
		StopLossPercent:     decimal.NewFromInt(3),
		TakeProfitPercent:   decimal.NewFromInt(6),
		RiskTier:            strategy.RiskModerate,
	}
}

func loadStrategies(list string) ([]strategy.Strategy, error) {
	if strings.TrimSpace(list) == "" {
		return []strategy.Strategy{defaultStrategy()}, nil
	}
	var out []strategy.Strategy
	for _, path := range strings.Split(list, ",") {
		s, err := config.LoadStrategyFile(strings.TrimSpace(path))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func runConfig(cfg *config.AppConfig, log *logger.Logger) (backtesting.RunConfig, error) {
	rc := backtesting.DefaultRunConfig()
	rc.StartingBalance = cfg.StartingBalance
	rc.Costs = cfg.Costs
	rc.RiskFreeRate = cfg.RiskFreeRate
	rc.LiquidateAtEnd = *liquidate || cfg.Flags.Enabled(config.FlagLiquidateAtEnd)
	rc.Validator = market.NewValidator(market.WithStrictGaps(cfg.Flags.Enabled(config.FlagStrictGaps)))
	rc.Logger = log

	switch strings.ToLower(*mode) {
	case "auto":
		rc.Mode = backtesting.ModeAuto
	case "manual":
		rc.Mode = backtesting.ModeManual
	default:
		return rc, fmt.Errorf("unknown mode %q", *mode)
	}

	var err error
	if rc.Selection.From, err = parseBound(*from); err != nil {
		return rc, err
	}
	if rc.Selection.To, err = parseBound(*to); err != nil {
		return rc, err
	}
	return rc, nil
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid range bound %q: %w", s, err)
	}
	return t, nil
}

func runSingle(ctx context.Context, log *logger.Logger, bars []market.Bar, s strategy.Strategy, rc backtesting.RunConfig, store storage.ResultStore) error {
	engine, err := backtesting.NewEngine(s, rc)
	if err != nil {
		return err
	}

	tradeCount := 0
	engine.SetOnTrade(func(trade *backtesting.Trade) {
		tradeCount++
		if *verbose {
			log.Symbol(trade.Symbol).Info("trade closed",
				"n", tradeCount,
				"entry", trade.EntryPrice.StringFixed(2),
				"exit", trade.ExitPrice.StringFixed(2),
				"pnl", trade.RealizedPnL.StringFixed(2),
				"reason", string(trade.ExitReason),
			)
		}
	})

	started := time.Now()
	res, runErr := engine.Run(ctx, bars)
	if res == nil {
		return runErr
	}
	log.Info("backtest done", "status", string(res.Status), "elapsed", time.Since(started).Round(time.Millisecond).String())

	reporter := backtesting.NewReporter()
	fmt.Println(reporter.GenerateReport(res))
	if *verbose && len(res.Trades) > 0 {
		fmt.Println(reporter.GenerateTradeLog(res))
	}

	if err := persist(ctx, log, store, res); err != nil {
		return err
	}
	return runErr
}

func runSweep(ctx context.Context, log *logger.Logger, cfg *config.AppConfig, bars []market.Bar, strategies []strategy.Strategy, rc backtesting.RunConfig, store storage.ResultStore) error {
	jobs := make([]sweep.Job, 0, len(strategies))
	for _, s := range strategies {
		jobs = append(jobs, sweep.Job{Name: s.ID, Strategy: s, Config: rc})
	}

	outcomes, err := sweep.Run(ctx, bars, jobs, sweep.Options{Workers: cfg.SweepWorkers, Store: store})
	reporter := backtesting.NewReporter()
	for _, out := range outcomes {
		switch {
		case out.Result != nil:
			fmt.Printf("%-24s %s\n", out.Job, reporter.GenerateSummary(out.Result))
		case out.Err != nil:
			fmt.Printf("%-24s error: %v\n", out.Job, out.Err)
		}
	}
	if errors.Is(err, context.Canceled) {
		log.Warn("sweep interrupted; results above are partial")
		return nil
	}
	return err
}

func persist(ctx context.Context, log *logger.Logger, store storage.ResultStore, res *backtesting.Result) error {
	// Saving must survive an interrupted run so the partial result is kept.
	saveCtx := context.WithoutCancel(ctx)

	previous, err := store.FindByInputHash(saveCtx, res.Manifest.InputHash)
	if err != nil {
		return err
	}
	for _, p := range previous {
		if p.RunID != res.RunID {
			log.Info("earlier run over the same bars", "run_id", p.RunID, "strategy", p.StrategyID, "final_equity", p.FinalEquity.String())
		}
	}

	err = store.Save(saveCtx, res)
	if errors.Is(err, storage.ErrDuplicateKey) {
		log.Info("identical run already stored", "run_id", res.RunID)
		return nil
	}
	return err
}
