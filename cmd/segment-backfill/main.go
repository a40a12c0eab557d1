// Command segment-backfill recomputes the stored segmentation, engagement score
// and churn risk of every customer through the bulk executor, so each change
// lands in the audit trail.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice-svc/analytics"
	"backoffice-svc/audit"
	"backoffice-svc/bulk"
	"backoffice-svc/cache"
	"backoffice-svc/circuitbreaker"
	"backoffice-svc/config"
	"backoffice-svc/database"
	"backoffice-svc/gateway"
	"backoffice-svc/window"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "only print what would change")
	checkDrift := flag.Bool("drift", true, "report customers whose stored totals disagree with their orders")
	envFile := flag.String("env", ".env", "optional env file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.StoreMode != "postgres" {
		logger.Fatal("segment-backfill needs STORE_MODE=postgres", zap.String("store_mode", cfg.StoreMode))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(cfg.DB, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	store := database.NewPostgresStore(db, logger)
	breaker := circuitbreaker.NewCircuitBreaker("primary", cfg.BreakerMaxFailures, cfg.BreakerResetTimeout)
	// Full-table scans get the longer timeout.
	gw := gateway.New(store, nil, breaker, gateway.Config{
		PrimaryTimeout:   cfg.SecondaryTimeout,
		SecondaryTimeout: cfg.SecondaryTimeout,
	}, logger)

	customers, err := gw.Writer().QueryCustomers(ctx, gateway.CustomerFilter{})
	if err != nil {
		logger.Fatal("Failed to load customers", zap.Error(err))
	}
	orders, err := gw.Writer().QueryOrders(ctx, gateway.OrderFilter{}, window.Window{})
	if err != nil {
		logger.Fatal("Failed to load orders", zap.Error(err))
	}
	byCustomer := groupByCustomer(orders)

	totals, err := analytics.NewTotalsSource(cfg.TotalsMode)
	if err != nil {
		logger.Fatal("Invalid totals mode", zap.Error(err))
	}
	now := time.Now().In(cfg.Location())
	p := buildPlan(customers, byCustomer, totals, now)
	logger.Info("Backfill planned",
		zap.Int("customers", len(customers)),
		zap.Int("pending", p.pending()),
		zap.Int("unchanged", p.unchanged),
		zap.Int("groups", len(p.groups)),
		zap.String("totals_mode", totals.Mode()),
	)

	if *checkDrift {
		drifted, err := reportDrift(ctx, gw.Writer(), customers, byCustomer, logger)
		if err != nil {
			logger.Fatal("Drift check failed", zap.Error(err))
		}
		logger.Info("Drift check finished", zap.Int("drifted", drifted))
	}

	if *dryRun || p.pending() == 0 {
		return
	}

	var metricsCache cache.MetricsCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rdb, err := cache.InitRedis(cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		defer rdb.Close()
		metricsCache = cache.NewRedisMetricsCache(rdb, cfg.MetricsCacheTTL)
	}

	sink := audit.NewFanout("postgres", audit.NewPostgresSink(db), logger)
	svc := bulk.NewService(gw, sink, nil, metricsCache, bulk.Limits{
		MaxItems: cfg.BulkMaxItems,
		Workers:  cfg.BulkWorkers,
	}, logger)

	bar := progressbar.NewOptions(p.pending(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("customers"),
		progressbar.OptionShowCount(),
	)
	s, err := apply(ctx, svc, p, cfg.BulkMaxItems, bar, logger)
	_ = bar.Finish()
	if err != nil {
		logger.Fatal("Backfill aborted", zap.Error(err), zap.Int("updated", s.Updated))
	}
	logger.Info("Backfill finished",
		zap.Int("updated", s.Updated),
		zap.Int("failed", s.Failed),
		zap.Int("batches", s.Batches),
	)
}
