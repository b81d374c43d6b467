package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/capital-guard/cmd/common"
	"github.com/ducminhle1904/capital-guard/internal/balance"
	"github.com/ducminhle1904/capital-guard/internal/config"
	"github.com/ducminhle1904/capital-guard/internal/exchange/bybit"
	"github.com/ducminhle1904/capital-guard/internal/gateway"
	"github.com/ducminhle1904/capital-guard/internal/logger"
	"github.com/ducminhle1904/capital-guard/internal/monitoring"
	"github.com/ducminhle1904/capital-guard/internal/notifications"
	"github.com/ducminhle1904/capital-guard/internal/reconcile"
	"github.com/ducminhle1904/capital-guard/internal/risk"
	"github.com/ducminhle1904/capital-guard/internal/safety"
	"github.com/ducminhle1904/capital-guard/pkg/reporting"
)

func main() {
	var (
		envFile     = flag.String("env", ".env", "Environment file path")
		showVersion = flag.Bool("version", false, "Show version information")
		reportCSV   = flag.Bool("report-csv", false, "Also write reconciliation reports as CSV")
	)
	flag.Parse()

	if *showVersion {
		common.PrintVersion(os.Stdout, "guard")
		return
	}

	loaded, envErr := common.LoadEnvFile(*envFile)

	cfg := config.Load()

	log, err := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Dir:         cfg.Logging.Dir,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	switch {
	case envErr != nil:
		log.Warn("could not load environment file", zap.String("path", *envFile), zap.Error(envErr))
	case loaded:
		log.Debug("environment loaded", zap.String("path", *envFile))
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.Exchange.APIKey == "" || cfg.Exchange.Secret == "" {
		log.Fatal("BYBIT_API_KEY and BYBIT_API_SECRET are required")
	}

	log.Info("starting capital guard",
		zap.String("version", common.GetFullVersion()),
		zap.String("environment", cfg.Environment))

	if err := run(cfg, log, *reportCSV); err != nil {
		log.Fatal("guard stopped with error", zap.Error(err))
	}
	log.Info("capital guard stopped")
}

func run(cfg *config.Config, log *zap.Logger, reportCSV bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := buildNotifier(cfg, log)

	breaker := safety.NewCircuitBreaker("trading")
	breaker.OnStateChange(notifications.BreakerAlerts(notifier, log))

	prices := risk.NewPriceBook()
	exposure := risk.NewExposureBook()
	volatility := risk.NewVolatilityRule(cfg.Risk.VolatilityWindow)

	rules, err := buildRules(cfg, prices, exposure, volatility)
	if err != nil {
		return err
	}
	pipeline, err := risk.NewPipeline(cfg.RiskThresholds(), breaker, log, rules...)
	if err != nil {
		return err
	}
	log.Info("risk pipeline ready", zap.Strings("rules", pipeline.Rules()))

	client := bybit.NewClient(bybit.Config{
		APIKey:            cfg.Exchange.APIKey,
		APISecret:         cfg.Exchange.Secret,
		Testnet:           cfg.Exchange.Testnet,
		Demo:              cfg.Exchange.Demo,
		Category:          cfg.Exchange.Category,
		SettleCoin:        cfg.Exchange.SettleCoin,
		AccountType:       bybit.AccountType(cfg.Exchange.AccountType),
		Coins:             cfg.Exchange.Coins,
		RequestsPerSecond: cfg.Exchange.RateLimit,
	}, log)
	log.Info("exchange client ready", zap.String("environment", client.GetEnvironment()))

	balances, err := balance.NewManager(cfg.Balance.WatermarkThreshold, log)
	if err != nil {
		return err
	}

	health := monitoring.NewHealthChecker(breaker, cfg.Monitoring.StaleAfter)

	feed := balance.NewFeed(balances, notifier, log, client)
	feed.OnPoll = func(at time.Time, failures int) {
		health.SetConnected(failures == 0)
		if failures == 0 {
			health.RecordBalanceUpdate(at)
		}
	}

	local := reconcile.NewSnapshotProvider(reconcile.SourceLocal)
	tape := reconcile.NewTradeTape()
	service, err := reconcile.NewService(cfg.ReconcileConfig(), pipeline, log, local, client.PositionSource(), tape)
	if err != nil {
		return err
	}
	service.SetQueryTimeout(cfg.Reconciliation.QueryTimeout)
	if wireRealizedPnL(tape, rules, log) {
		log.Info("daily limit fed from realized fills")
	}
	auditor := newPositionAuditor(pipeline, notifier, log)

	reporter := reporting.NewDefaultReporter(reporting.ReportingConfig{
		OutputDirectory: cfg.Reports.Dir,
		ExcelEnabled:    true,
		CSVEnabled:      reportCSV,
		JSONEnabled:     true,
	}, os.Stdout, log)

	service.OnResult(func(result reconcile.Result) {
		if len(result.ProviderFailures) == 0 {
			exposure.Replace(result.ExchangePositions)
			auditor.Audit(result.ExchangePositions)
			health.ClearErrors()
		}
		for _, failure := range result.ProviderFailures {
			health.RecordError(failure.Source + ": " + failure.Error)
		}
		health.RecordReconciliation(result.StartedAt)
		reporter.HandleResult(result)
	})

	poller := bybit.NewPricePoller(client, cfg.Exchange.Symbols, prices.Update, volatility.Observe)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", monitoring.NewMetricsHandler())
	monitoring.NewBreakerHandler(pipeline, func() interface{} { return balances.Summary() }, health, cfg.Monitoring.OperatorToken, log).RegisterRoutes(mux)
	gateway.NewHandler(pipeline, balances, tape, local, gateway.Config{
		Token:           cfg.Gateway.Token,
		DefaultExchange: cfg.Gateway.Exchange,
		DefaultCurrency: cfg.Gateway.Currency,
	}, log).RegisterRoutes(mux)

	if cfg.Monitoring.OperatorToken == "" {
		log.Warn("OPERATOR_TOKEN not set, breaker control endpoints are disabled")
	}

	server := &http.Server{
		Addr:              cfg.Monitoring.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	start(func() { poller.Run(ctx, cfg.Exchange.PricePollInterval) })
	start(func() { feed.Run(ctx, cfg.Balance.PollInterval) })
	start(func() { service.Run(ctx, cfg.Reconciliation.Interval) })

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	wg.Wait()

	if status := breaker.Status(); status.State == safety.StateBroken {
		log.Warn("stopping while trading is halted",
			zap.String("code", status.Code),
			zap.String("reason", status.Reason))
	}
	return nil
}

func buildNotifier(cfg *config.Config, log *zap.Logger) notifications.Notifier {
	notifiers := notifications.Multi{notifications.NewLogNotifier(log)}
	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		notifiers = append(notifiers, notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID))
	}
	return notifiers
}
