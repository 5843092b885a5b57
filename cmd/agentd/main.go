// Command agentd runs the replenishment agent daemon: the HTTP surface,
// the cycle scheduler, and every pluggable collaborator the cycle engine
// needs.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelsupply/replenisher-agent/auth"
	"github.com/kestrelsupply/replenisher-agent/config"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/kestrelsupply/replenisher-agent/httpapi"
	"github.com/kestrelsupply/replenisher-agent/jobs/memjobs"
	"github.com/kestrelsupply/replenisher-agent/jobs/redisjobs"
	"github.com/kestrelsupply/replenisher-agent/pkg/cycle"
	"github.com/kestrelsupply/replenisher-agent/pkg/metrics"
	"github.com/kestrelsupply/replenisher-agent/pkg/policy"
	"github.com/kestrelsupply/replenisher-agent/pkg/scheduler"
	"github.com/kestrelsupply/replenisher-agent/pkg/streaming"
	"github.com/kestrelsupply/replenisher-agent/store/memstore"
	"github.com/kestrelsupply/replenisher-agent/store/pgstore"
	"github.com/kestrelsupply/replenisher-agent/tools"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "agentd",
		Short: "Runs the autonomous replenishment agent daemon",
		RunE:  runDaemon,
	}
	root.Flags().StringVar(&configFile, "config", "", "path to a YAML/JSON/TOML config file")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("agentd: load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("agentd: build logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Info("starting replenishment agent")

	store, closeStore, err := buildStore(cfg, sugar)
	if err != nil {
		return err
	}
	defer closeStore()

	jobStore, err := buildJobStore(cfg, sugar)
	if err != nil {
		return err
	}

	bus := streaming.NewBus()
	dashboard := streaming.NewDashboard(sugar)
	emitter := streaming.Fanout(bus, dashboard)

	estimator := buildEstimator(cfg)
	dialogue := buildDialogue(cfg)

	driver := cycle.NewDriver(store, estimator, dialogue, emitter)
	driver.Config.Forecast.MaxExternalCalls = cfg.MaxExternalCalls
	driver.Config.Forecast.ExternalTimeout = time.Duration(cfg.ExternalTimeoutSeconds) * time.Second
	driver.Config.Optimize.ServiceLevel = cfg.ServiceLevel
	driver.Config.Optimize.MinConfidence = cfg.MinConfidence
	driver.Config.Finance.DefaultBudget = decimal.NewFromFloat(cfg.DefaultBudget)
	driver.Config.Finance.RevenueReinvestmentRate = decimal.NewFromFloat(cfg.RevenueReinvestmentRate)
	driver.Config.Finance.CriticalStockROIMultiplier = cfg.CriticalStockROIMultiplier
	driver.Config.Action.AutoApprovalThreshold = decimal.NewFromFloat(cfg.AutoApprovalThreshold)
	driver.Config.Action.SimulationMode = cfg.SimulationMode
	driver.Config.MaxNegotiationRounds = cfg.MaxNegotiationRounds

	sched := scheduler.New(driver, jobStore, scheduler.Config{
		CycleInterval:     time.Duration(cfg.CycleIntervalSeconds) * time.Second,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
	}, sugar)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Resume(ctx); err != nil {
		sugar.Warnw("resume failed", "error", err)
	}
	go sched.Start(ctx)

	passwordHash := []byte(cfg.AdminPasswordHash)
	if len(passwordHash) == 0 {
		sugar.Warn("no admin password hash configured; generating one for 'admin' (dev only, set REPLENISHER_ADMIN_PASSWORD_HASH in production)")
		passwordHash, err = auth.HashPassword("admin")
		if err != nil {
			return fmt.Errorf("agentd: hash default admin password: %w", err)
		}
	}
	issuer := auth.NewIssuer(auth.Config{
		SigningKey:   []byte(cfg.JWTSigningKey),
		Username:     cfg.AdminUsername,
		PasswordHash: passwordHash,
		TokenTTL:     cfg.TokenTTL,
	})

	srv := &httpapi.Server{
		Store:     store,
		Jobs:      jobStore,
		Scheduler: sched,
		Bus:       bus,
		Dashboard: dashboard,
		Metrics:   metrics.New(),
		Policy:    policy.NewEngine(policy.Limits{AutoApprovalThreshold: decimal.NewFromFloat(cfg.AutoApprovalThreshold), DailySpendCap: decimal.NewFromFloat(cfg.DailySpendCap)}),
		Issuer:    issuer,
	}

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.NewRouter(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open indefinitely
	}

	go func() {
		sugar.Infof("http server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Errorw("http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	sugar.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("http shutdown failed", "error", err)
	}
	cancel()
	return nil
}

func buildStore(cfg config.Config, sugar *zap.SugaredLogger) (core.Store, func(), error) {
	if cfg.DatabaseDSN == "" {
		sugar.Info("using in-memory store (set REPLENISHER_DATABASE_DSN for PostgreSQL)")
		return memstore.New(), func() {}, nil
	}
	pg, err := pgstore.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("agentd: open postgres: %w", err)
	}
	sugar.Info("using PostgreSQL store")
	return pg, func() { pg.Close() }, nil
}

func buildJobStore(cfg config.Config, sugar *zap.SugaredLogger) (core.JobStore, error) {
	if cfg.RedisAddr == "" {
		sugar.Info("using in-memory job store (set REPLENISHER_REDIS_ADDR to share across replicas)")
		return memjobs.New(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	sugar.Info("using Redis job store")
	return redisjobs.New(rdb), nil
}

func buildEstimator(cfg config.Config) core.ExternalForecaster {
	if cfg.EstimatorURL == "" {
		return tools.NilEstimator{}
	}
	return tools.NewRemoteEstimator(cfg.EstimatorURL, cfg.EstimatorRateRPS)
}

func buildDialogue(cfg config.Config) core.DialogueService {
	if cfg.DialogueURL == "" {
		return nil
	}
	return tools.NewRemoteDialogue(cfg.DialogueURL)
}
