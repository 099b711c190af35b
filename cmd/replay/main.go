package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/cmd/replay/advisor"
	"github.com/peter-kozarec/replay/internal/config"
	"github.com/peter-kozarec/replay/internal/logging"
	"github.com/peter-kozarec/replay/internal/monitor"
	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/datasource"
	"github.com/peter-kozarec/replay/pkg/datasource/alpaca"
	"github.com/peter-kozarec/replay/pkg/datasource/duckdb"
	"github.com/peter-kozarec/replay/pkg/datasource/historical"
	"github.com/peter-kozarec/replay/pkg/datasource/memory"
	"github.com/peter-kozarec/replay/pkg/datasource/parquet"
	"github.com/peter-kozarec/replay/pkg/datasource/synthetic"
	"github.com/peter-kozarec/replay/pkg/dispatch"
	"github.com/peter-kozarec/replay/pkg/exchange/sandbox"
	"github.com/peter-kozarec/replay/pkg/middleware"
	"github.com/peter-kozarec/replay/pkg/tools/metrics"
)

const Version = "v0.3.0"

func main() {
	configPath := flag.String("config", "replay.yaml", "path to the run configuration")
	noStrategy := flag.Bool("no-strategy", false, "replay the session without the demo strategy")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unable to load config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Production: cfg.Logging.Production,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unable to create logger: %v\n", err)
		os.Exit(2)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	logger.Info(fmt.Sprintf("replay %s", Version))
	defer logger.Info("done")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, !*noStrategy); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("replay failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, withStrategy bool) error {
	data, err := buildData(cfg, logger)
	defer data.close()
	if err != nil {
		return err
	}
	chain := datasource.NewChain(logger.Named("data"), data.layers...)

	kinds, err := eventKinds(cfg.Monitor.Events)
	if err != nil {
		return err
	}
	eventMonitor := middleware.NewMonitor(logger.Named("events"), middleware.FlagsOf(kinds...))
	telemetry := middleware.NewTelemetry(logger)
	performance := middleware.NewPerformance(logger)
	hub := monitor.NewHub(logger.Named("hub"), kinds...)

	conn, err := sandbox.NewConnection(chain, cfg.Session.Start, cfg.Session.End,
		sandbox.WithLogger(logger.Named("sandbox")),
		sandbox.WithCompression(cfg.Session.Compression),
		sandbox.WithStartingCash(cfg.Account.StartingCash),
		sandbox.WithAccount(cfg.Account.Code),
		sandbox.WithCurrency(cfg.Account.Currency),
		sandbox.WithAccountInterval(cfg.Account.Interval),
		sandbox.WithQueueCapacity(cfg.Session.RequestCapacity, cfg.Session.ResponseCapacity),
		sandbox.WithTap(eventMonitor.Tap),
		sandbox.WithTap(telemetry.Tap),
		sandbox.WithTap(hub.Tap))
	if err != nil {
		return fmt.Errorf("unable to create session: %w", err)
	}

	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := conn.Disconnect(context.Background()); err != nil {
			logger.Warn("disconnect failed", zap.Error(err))
		}
	}()

	if cfg.Monitor.Address != "" {
		server := monitor.NewServer(cfg.Monitor.Address, conn, hub, logger.Named("monitor"))
		serverCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()
		go func() {
			if err := server.ListenAndServe(serverCtx); err != nil {
				logger.Error("monitor stopped", zap.Error(err))
			}
		}()
	}

	audit := metrics.NewAudit(cfg.Account.Currency)
	onExecution, err := executionHandler(ctx, cfg, data.duckdb, conn, logger, audit, performance)
	if err != nil {
		return err
	}
	if _, err := conn.OnExecution(onExecution).Await(ctx); err != nil {
		return err
	}
	if _, err := conn.OnCommissionReport(audit.OnCommissionReport).Await(ctx); err != nil {
		return err
	}
	if _, err := conn.RequestAccountStream(middleware.Measure(performance, dispatch.KindAccountValue, audit.OnAccount)).Await(ctx); err != nil {
		return err
	}

	if withStrategy {
		for _, ticker := range cfg.Session.Tickers {
			strategy := advisor.NewStrategy(logger.Named("advisor"), conn, advisor.DefaultConfig(ticker))
			if err := strategy.Attach(ctx); err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
		}
	} else {
		// Keep the tickers loaded so the account stream has prices to mark.
		for _, ticker := range cfg.Session.Tickers {
			if _, err := conn.RequestLastStream(ticker, func(common.Last) {}).Await(ctx); err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
		}
	}

	result, err := conn.Start().Await(ctx)
	if err != nil {
		return err
	}
	if err := conn.Sync(ctx); err != nil {
		return err
	}
	account, err := conn.RequestAccountSnapshot().Await(ctx)
	if err != nil {
		return err
	}
	audit.OnAccount(account)

	logger.Info("session finished",
		zap.Time("start", result.Start),
		zap.Time("end", result.End),
		zap.Duration("elapsed", result.Elapsed),
		zap.Bool("completed", result.Completed))

	audit.GenerateReport().Print(logger)
	telemetry.PrintStatistics()
	performance.PrintStatistics()
	return nil
}

// executionHandler feeds the audit and, when configured, journals fills into
// the duckdb layer's database and sends notifications.
func executionHandler(ctx context.Context, cfg *config.Config, store *duckdb.Store, conn *sandbox.Connection, logger *zap.Logger, audit *metrics.Audit, performance *middleware.Performance) (func(common.Execution), error) {
	handler := middleware.Measure(performance, dispatch.KindExecution, audit.OnExecution)

	if store != nil {
		journal, err := middleware.NewJournal(ctx, store.DB(), conn.SessionID().String(), logger.Named("journal"))
		if err != nil {
			return nil, err
		}
		handler = journal.WithExecution(ctx, handler)
	}
	if cfg.Notify.PushoverToken != "" {
		pushover := middleware.NewPushover(cfg.Notify.PushoverUser, cfg.Notify.PushoverToken, cfg.Notify.PushoverDevice,
			middleware.WithPushoverLogger(logger.Named("pushover")))
		handler = pushover.WithExecution(ctx, handler)
	}
	return handler, nil
}

func eventKinds(names []string) ([]dispatch.Kind, error) {
	kinds := make([]dispatch.Kind, 0, len(names))
	for _, name := range names {
		kind, err := dispatch.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

type dataStack struct {
	layers  []datasource.Layer
	duckdb  *duckdb.Store
	closers []func()
}

func (d *dataStack) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildData orders the layers from cheapest to most expensive.
func buildData(cfg *config.Config, logger *zap.Logger) (*dataStack, error) {
	data := &dataStack{
		layers: []datasource.Layer{{Name: "memory", Source: memory.NewCache()}},
	}
	if cfg.Data.BinaryDir != "" {
		data.layers = append(data.layers, datasource.Layer{Name: "binary", Source: historical.NewFiles(cfg.Data.BinaryDir, logger.Named("binary"))})
	}
	if cfg.Data.DuckDB != "" {
		store := duckdb.NewStore(cfg.Data.DuckDB, logger.Named("duckdb"))
		if err := store.Connect(); err != nil {
			return data, err
		}
		data.closers = append(data.closers, store.Close)
		data.duckdb = store
		data.layers = append(data.layers, datasource.Layer{Name: "duckdb", Source: store})
	}
	if cfg.Data.ParquetDir != "" {
		data.layers = append(data.layers, datasource.Layer{Name: "parquet", Source: parquet.NewStore(cfg.Data.ParquetDir, logger.Named("parquet"))})
	}
	if cfg.Alpaca.Enabled() {
		remote := alpaca.NewRemote(alpaca.NewClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL),
			alpaca.WithLogger(logger.Named("alpaca")),
			alpaca.WithPace(cfg.Alpaca.Pace),
			alpaca.WithFeed(cfg.Alpaca.Feed))
		data.layers = append(data.layers, datasource.Layer{Name: "alpaca", Source: remote})
	}
	if cfg.Data.Synthetic {
		data.layers = append(data.layers, datasource.Layer{Name: "synthetic", Source: synthetic.NewGenerator(synthetic.WithSeed(cfg.Data.Seed))})
	}
	return data, nil
}
