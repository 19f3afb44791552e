package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alejandrodnm/galebot/config"
	"github.com/alejandrodnm/galebot/internal/adapters/api"
	"github.com/alejandrodnm/galebot/internal/adapters/eventlog"
	"github.com/alejandrodnm/galebot/internal/adapters/executor"
	"github.com/alejandrodnm/galebot/internal/adapters/metrics"
	"github.com/alejandrodnm/galebot/internal/adapters/notify"
	"github.com/alejandrodnm/galebot/internal/adapters/storage"
	"github.com/alejandrodnm/galebot/internal/adapters/tableapi"
	"github.com/alejandrodnm/galebot/internal/adapters/wheel"
	"github.com/alejandrodnm/galebot/internal/application/broadcast"
	"github.com/alejandrodnm/galebot/internal/application/orchestrator"
	"github.com/alejandrodnm/galebot/internal/application/stats"
	"github.com/alejandrodnm/galebot/internal/domain"
	"github.com/alejandrodnm/galebot/internal/ledger"
	"github.com/alejandrodnm/galebot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	resume := flag.Bool("resume", false, "resume the latest ledger session (overrides config)")
	report := flag.Bool("report", false, "print the latest session report and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug and print every spin")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *resume {
		cfg.Bot.Resume = true
	}
	closeLog := setupLogger(cfg.Log)
	defer closeLog.Close()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		if err := runReport(ctx, cfg, store); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("galebot starting",
		"config", *configPath,
		"mode", cfg.Bot.Mode,
		"test_mode", cfg.Bot.TestMode,
		"source", cfg.Source.Kind,
		"executor", cfg.Executor.Kind,
		"resume", cfg.Bot.Resume,
	)

	if err := run(ctx, cfg, *configPath, store, *verbose); err != nil {
		slog.Error("galebot exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("galebot stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, configPath string, store *storage.SQLiteStorage, verbose bool) error {
	strat, err := cfg.Strategy.Domain()
	if err != nil {
		return err
	}
	riskCfg, err := cfg.Risk.Domain()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	led, err := ledger.Open(ctx, store, riskCfg.InitialBalance, cfg.Bot.TestMode, cfg.Bot.Resume)
	if err != nil {
		return err
	}

	client := tableapi.NewClient(cfg.Source.DetectorURL, cfg.Executor.URL, cfg.Executor.APIKey)
	source, err := newSource(ctx, cfg.Source, store, client)
	if err != nil {
		return err
	}
	var exec ports.BetExecutor
	if cfg.Executor.Kind == "table" {
		exec = executor.NewTable(client)
	} else {
		exec = executor.NewPaper(cfg.Executor.PaperLatency)
	}

	opts := broadcast.DefaultOptions()
	if cfg.Events.QueueSize > 0 {
		opts.QueueSize = cfg.Events.QueueSize
	}
	if cfg.Events.Retention > 0 {
		opts.Retention = cfg.Events.Retention
	}
	if cfg.Events.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.Events.MaxAttempts
	}
	bus := broadcast.New(opts)
	defer bus.Close()

	agg := stats.NewAggregator(loc).WithSeeder(sessionSeeder(store))
	if cfg.Bot.Resume {
		outcomes, err := store.OutcomesBetween(ctx, led.Session().StartedAt, time.Now())
		if err != nil {
			slog.Warn("stats: could not load outcomes", "err", err)
		}
		agg.SeedSession(led.Session().ID, led.Bets(), outcomes)
	}
	bus.Subscribe(agg)
	bus.Subscribe(notify.NewConsole(verbose))

	if cfg.Events.Journal {
		bus.Subscribe(broadcast.NewDedup(store))
	}
	if cfg.Events.LogPath != "" {
		evlog, err := eventlog.New(eventlog.Config{
			Path:       cfg.Events.LogPath,
			MaxSize:    cfg.Events.MaxSizeMB,
			MaxBackups: cfg.Events.MaxBackups,
			MaxAge:     cfg.Events.MaxAgeDays,
			Compress:   cfg.Events.Compress,
		})
		if err != nil {
			return err
		}
		defer evlog.Close()
		bus.Subscribe(evlog)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)
	rec.SetBalance(led.Balance())
	bus.Subscribe(rec)

	mode, err := domain.ParseMode(cfg.Bot.Mode)
	if err != nil {
		return err
	}

	var orch *orchestrator.Orchestrator
	newLedger := func(ctx context.Context, testMode bool) (*ledger.Ledger, error) {
		return ledger.Open(ctx, store, orch.Config().Risk.InitialBalance, testMode, cfg.Bot.Resume)
	}
	orch, err = orchestrator.New(orchestrator.Config{
		Mode:                mode,
		TestMode:            cfg.Bot.TestMode,
		Strategy:            strat,
		Risk:                riskCfg,
		KeepaliveEverySpins: cfg.Bot.KeepaliveEverySpins,
		PlacementTimeout:    cfg.Bot.PlacementTimeout,
		OutcomeTimeout:      cfg.Bot.OutcomeTimeout,
		ReconnectBase:       cfg.Bot.ReconnectBase,
		ReconnectMax:        cfg.Bot.ReconnectMax,
		HistorySize:         cfg.Bot.HistorySize,
	}, orchestrator.Deps{
		Source:      source,
		Executor:    exec,
		Paper:       executor.NewPaper(cfg.Executor.PaperLatency),
		Ledger:      led,
		NewLedger:   newLedger,
		Events:      bus,
		Outcomes:    store,
		ConfigStore: config.NewFileStore(configPath),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(gctx)
	})
	if cfg.API.Enabled {
		srv := api.NewServer(orch, agg, bus, api.Options{Addr: cfg.API.Addr, Gatherer: reg})
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	if cfg.Bot.Autostart {
		g.Go(func() error {
			snap, err := orch.Start(gctx, mode, cfg.Bot.TestMode)
			var denial *domain.Denial
			if errors.As(err, &denial) {
				slog.Warn("galebot: autostart denied", "code", denial.Code, "reason", denial.Message)
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("autostart: %w", err)
			}
			slog.Info("galebot: started", "mode", snap.Mode, "session", snap.SessionID, "balance", snap.Balance.String())
			return nil
		})
	}
	return g.Wait()
}

// sessionSeeder reloads a session's bets and the spins observed since it
// started, for the statistics after a test_mode switch.
func sessionSeeder(store *storage.SQLiteStorage) stats.Seeder {
	return func(ctx context.Context, sessionID string) ([]domain.Bet, []domain.Outcome, error) {
		bets, err := store.LoadBets(ctx, sessionID)
		if err != nil {
			return nil, nil, err
		}
		sess, ok, err := store.LatestSession(ctx)
		if err != nil || !ok || sess.ID != sessionID {
			return bets, nil, err
		}
		outcomes, err := store.OutcomesBetween(ctx, sess.StartedAt, time.Now())
		return bets, outcomes, err
	}
}

func newSource(ctx context.Context, cfg config.SourceConfig, store ports.OutcomeStore, client *tableapi.Client) (ports.OutcomeSource, error) {
	var last int64
	recent, err := store.RecentOutcomes(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		last = recent[0].SpinNumber
	}

	switch cfg.Kind {
	case "replay":
		r, err := wheel.NewReplayFile(cfg.ReplayPath, cfg.Interval)
		if err != nil {
			return nil, err
		}
		if shift := r.Rebase(last); shift > 0 {
			slog.Warn("source: replay renumbered after stored spins", "last_stored", last, "shift", shift)
		}
		slog.Info("source: replaying file", "path", cfg.ReplayPath, "spins", r.Len())
		return r, nil
	case "detector":
		p := wheel.NewPoller(client, cfg.Interval)
		p.Seek(last)
		return p, nil
	default:
		seed := cfg.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		return wheel.NewSimulator(cfg.Interval, seed, last+1), nil
	}
}

func setupLogger(cfg config.LogConfig) io.Closer {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closer
}
