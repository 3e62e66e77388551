package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evdnx/gotrend/config"
	"github.com/evdnx/gotrend/engine"
	"github.com/evdnx/gotrend/executor"
	"github.com/evdnx/gotrend/feed"
	"github.com/evdnx/gotrend/indicator"
	"github.com/evdnx/gotrend/logger"
	"github.com/evdnx/gotrend/metrics"
	"github.com/evdnx/gotrend/notify"
	"github.com/evdnx/gotrend/store"
	"github.com/evdnx/gotrend/strategy"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	logLevel    string
	metricsAddr string
	resume      bool
	barsPath    string
)

var rootCmd = &cobra.Command{
	Use:   "gotrend",
	Short: "MACD trend follower with trailing stops and a drawdown kill switch",
	Long: `gotrend trades a fixed basket of instruments on daily bars. It enters
when the MACD pulls away from its signal line, exits on bearish divergence or
a trailing stop, and halts the account for good after a deep drawdown.`,
	SilenceUsage: true,
}

var paperCmd = &cobra.Command{
	Use:   "paper",
	Short: "Replay a CSV bar file against the in-memory paper venue",
	Long: `Replay daily bars from a CSV file (date,symbol,open,high,low,close,volume)
through the controller, filling orders on an in-memory paper account.

Example:
  gotrend paper --bars data/daily.csv --log-level debug`,
	RunE: runPaper,
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Trade an Alpaca account on polled daily bars",
	RunE:  runLive,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the universe",
	RunE:  runCheck,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	pf.BoolVar(&resume, "resume", false, "Restore the last saved controller snapshot")

	paperCmd.Flags().StringVar(&barsPath, "bars", "", "CSV file with daily bars")
	_ = paperCmd.MarkFlagRequired("bars")

	rootCmd.AddCommand(paperCmd, liveCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every trading command shares.
type app struct {
	cfg   config.Config
	log   logger.Logger
	set   *indicator.Set
	store store.Store
	close func()
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if err := checkResume(cfg, resume); err != nil {
		return nil, err
	}
	log, err := logger.NewZapLogger(logLevel)
	if err != nil {
		return nil, err
	}
	set, err := indicator.NewSet(cfg.Symbols(), indicator.Params{
		Fast:   cfg.MACD.Fast,
		Slow:   cfg.MACD.Slow,
		Signal: cfg.MACD.Signal,
		Trend:  cfg.TrendWindow,
	}, log)
	if err != nil {
		return nil, err
	}
	st, closeStore := buildStore(cfg)
	return &app{cfg: cfg, log: log, set: set, store: st, close: closeStore}, nil
}

var errResumeWithoutStore = errors.New("--resume needs a persistent store: set REDIS_ADDR or redis.addr")

// checkResume rejects --resume when snapshots only live in process memory,
// where there is never anything to resume from.
func checkResume(cfg config.Config, resume bool) error {
	if resume && cfg.Redis.Addr == "" {
		return errResumeWithoutStore
	}
	return nil
}

func buildStore(cfg config.Config) (store.Store, func()) {
	if cfg.Redis.Addr == "" {
		return store.NewMemory(), func() {}
	}
	r := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Key)
	return r, func() { _ = r.Close() }
}

func buildNotifier(cfg config.Config, log logger.Logger) notify.Notifier {
	n := notify.Multi{notify.NewLog(log)}
	if cfg.Notify.DiscordWebhook != "" {
		d := notify.NewDiscord(cfg.Notify.DiscordWebhook)
		d.Critical[strategy.CriticalSubject] = true
		n = append(n, d)
	}
	if cfg.Notify.SMTP.Host != "" {
		n = append(n, notify.NewSMTP(cfg.Notify.SMTP))
	}
	return n
}

func (a *app) run(ctx context.Context, f feed.Feed, exec executor.Executor) error {
	defer a.close()

	ctrl, err := strategy.NewMACDTrailing(a.cfg, exec, a.set, buildNotifier(a.cfg, a.log), a.log)
	if err != nil {
		return err
	}
	eng := engine.New(f, a.set, ctrl, exec, a.store, a.cfg.WarmUpBars, a.log)
	if resume {
		if err := eng.Resume(ctx); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
	}

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics_server_failed", logger.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a.log.Info("run_started",
		logger.Int("instruments", len(a.cfg.Instruments)),
		logger.Float64("initial_cash", a.cfg.InitialCash),
		logger.Bool("resume", resume),
	)
	err = eng.Run(ctx)
	a.log.Info("run_finished",
		logger.Int("ticks", eng.Ticks()),
		logger.Bool("halted", ctrl.Halted()),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runPaper(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	f, err := feed.OpenCSV(barsPath, a.cfg.Symbols())
	if err != nil {
		a.close()
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paper := executor.NewPaper(a.cfg.InitialCash, a.log)
	if err := a.run(ctx, f, paper); err != nil {
		return err
	}
	equity, _ := paper.Equity()
	fmt.Fprintf(cmd.OutOrStdout(), "sessions=%d fills=%d cash=%.2f equity=%.2f\n",
		f.Len(), len(paper.Fills()), paper.Cash(), equity)
	return nil
}

func runLive(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	if a.cfg.Alpaca.APIKey == "" || a.cfg.Alpaca.APISecret == "" {
		a.close()
		return errors.New("ALPACA_API_KEY and ALPACA_SECRET_KEY are required for live trading")
	}
	f, err := feed.NewAlpaca(a.cfg, a.log)
	if err != nil {
		a.close()
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx, f, executor.NewAlpaca(a.cfg.Alpaca, a.log))
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	total := 0.0
	for _, in := range cfg.Instruments {
		fmt.Fprintf(out, "%-6s %.2f\n", in.Symbol, in.Weight)
		total += in.Weight
	}
	fmt.Fprintf(out, "total weight %.2f, initial cash %.2f, kill switch below %.2f\n",
		total, cfg.InitialCash, cfg.InitialCash*cfg.Rules.DrawdownFloorFactor)
	return nil
}
