package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
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
	"backoffice-svc/grpc"
	"backoffice-svc/handlers"
	"backoffice-svc/kafka"
	"backoffice-svc/middleware"
	"backoffice-svc/sheets"
	"backoffice-svc/window"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing("backoffice-service", cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Primary store, admin directory and the required audit sink
	var (
		primary  gateway.Store
		admins   database.AdminDirectory
		required audit.Sink
		db       *sql.DB
	)
	switch cfg.StoreMode {
	case "postgres":
		db, err = database.InitDB(cfg.DB, logger)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer db.Close()
		primary = database.NewPostgresStore(db, logger)
		admins = database.NewPostgresAdmins(db)
		required = audit.NewPostgresSink(db)
	default:
		logger.Warn("Running on the in-memory store; data is lost on restart")
		primary = database.NewMemoryStore()
		admins = database.NewMemoryAdmins()
		required = audit.NewMemorySink()
	}

	// Read-only spreadsheet mirror
	var secondary gateway.Reader
	if cfg.SheetsSpreadsheetID != "" {
		var opts []option.ClientOption
		if cfg.SheetsCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.SheetsCredentialsFile))
		}
		mirror, err := sheets.NewMirror(ctx, cfg.SheetsSpreadsheetID, logger, opts...)
		if err != nil {
			logger.Fatal("Failed to initialize spreadsheet mirror", zap.Error(err))
		}
		secondary = mirror
	}

	breaker := circuitbreaker.NewCircuitBreaker("primary", cfg.BreakerMaxFailures, cfg.BreakerResetTimeout)
	gw := gateway.New(primary, secondary, breaker, gateway.Config{
		PrimaryTimeout:   cfg.PrimaryTimeout,
		SecondaryTimeout: cfg.SecondaryTimeout,
	}, logger)

	// Metrics cache
	var metricsCache cache.MetricsCache = cache.Noop{}
	switch {
	case cfg.MetricsCacheTTL == 0:
	case cfg.RedisAddr != "":
		rdb, err := cache.InitRedis(cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		defer rdb.Close()
		metricsCache = cache.NewRedisMetricsCache(rdb, cfg.MetricsCacheTTL)
	default:
		metricsCache = cache.NewMemoryMetricsCache(cfg.MetricsCacheTTL)
	}

	// Audit trail and completion side effects
	auditSink := audit.NewFanout(cfg.StoreMode, required, logger)
	var completions bulk.CompletionSink = bulk.NewDirectCompletions(gw.Writer())
	if cfg.KafkaEnabled() {
		producer, err := kafka.InitProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
		}
		publisher := kafka.NewPublisher(producer, logger)
		defer publisher.Close()

		auditSink.Mirror("kafka", audit.NewKafkaSink(publisher, cfg.KafkaAuditTopic))
		completions = kafka.NewCompletionPublisher(publisher, cfg.KafkaOrderTopic)

		reader := kafka.InitConsumer(cfg.KafkaBrokers, cfg.KafkaOrderTopic, cfg.KafkaGroupID, logger)
		consumer := kafka.NewConsumer(reader, gw.Writer(), logger)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("Kafka consumer error", zap.Error(err))
			}
		}()
	}
	if cfg.AuditLogFile != "" {
		fileSink := audit.NewFileSink(cfg.AuditLogFile)
		defer fileSink.Close()
		auditSink.Mirror("file", fileSink)
	}

	totals, err := analytics.NewTotalsSource(cfg.TotalsMode)
	if err != nil {
		logger.Fatal("Invalid totals mode", zap.Error(err))
	}
	windows := window.NewCalculator(cfg.Location(), cfg.MaxLookbackDays)
	agg := analytics.NewAggregator(gw, windows, metricsCache, analytics.Options{
		HighValueThreshold: decimal.NewFromFloat(cfg.HighValueThreshold),
		CallTimeout:        cfg.MetricsCallTimeout,
		Totals:             totals,
	}, logger)
	bulkService := bulk.NewService(gw, auditSink, completions, metricsCache, bulk.Limits{
		MaxItems: cfg.BulkMaxItems,
		Workers:  cfg.BulkWorkers,
	}, logger)

	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		if err := admins.UpsertAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, "admin"); err != nil {
			logger.Fatal("Failed to create bootstrap admin", zap.Error(err))
		}
		logger.Info("Bootstrap admin ready", zap.String("email", cfg.BootstrapAdminEmail))
	}

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware("backoffice-service"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	secret := []byte(cfg.JWTSecret)
	handlers.Register(router, handlers.Routes{
		Analytics: handlers.NewAnalyticsHandler(agg, cfg.DefaultLookbackDays, logger),
		Bulk:      handlers.NewBulkHandler(bulkService, logger),
		Auth:      handlers.NewAuthHandler(admins, secret, cfg.TokenTTL, logger),
		Breaker:   breaker,
		JWTSecret: secret,
	})

	restSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Backoffice Service REST API started", zap.String("addr", cfg.HTTPAddr))

	// Start gRPC health server
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	grpcServer := grpc.NewServer(grpc.NewHealthServer(breaker, logger))

	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	logger.Info("Backoffice Service gRPC server started", zap.String("addr", cfg.GRPCAddr))

	// Wait for interrupt signal
	<-ctx.Done()

	logger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := restSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	}

	grpcServer.GracefulStop()

	logger.Info("Servers exited")
}
