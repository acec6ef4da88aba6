package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/permalink-studio/pos/internal/config"
	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/event"
	handler "github.com/permalink-studio/pos/internal/handler/http"
	"github.com/permalink-studio/pos/internal/payment"
	"github.com/permalink-studio/pos/internal/receipt"
	"github.com/permalink-studio/pos/internal/repository/postgres"
	"github.com/permalink-studio/pos/internal/repository/redis"
	"github.com/permalink-studio/pos/internal/service"
	"github.com/permalink-studio/pos/migrations"
	"github.com/permalink-studio/pos/pkg/database"
	"github.com/permalink-studio/pos/pkg/health"
	"github.com/permalink-studio/pos/pkg/httpclient"
	pkgkafka "github.com/permalink-studio/pos/pkg/kafka"
	"github.com/permalink-studio/pos/pkg/tracing"
)

const serviceName = "pos"

// App wires together all dependencies and runs the POS service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	receipts       *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, serviceName)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := database.Retry(ctx, "ping kafka", logger, producer.Ping); err != nil {
		logger.Warn("kafka unreachable, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	store := postgres.NewStore(pool)
	sessions := redis.NewSessionRepository(redisClient, cfg.SessionTTLDuration())
	events := event.NewProducer(producer, logger)

	dispatcher, err := newReceiptDispatcher(cfg, logger)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, err
	}

	payments, terminal := newPaymentRouter(cfg, logger)

	inventoryService := service.NewInventoryService(store, events, logger)
	saleService := service.NewSaleService(store, events, dispatcher, cfg.AllowOversell(), logger)
	checkoutService := service.NewCheckoutService(
		sessions,
		store.Inventory(),
		service.NewJumpRingResolver(service.TieBreak(cfg.JumpRingTieBrk)),
		payments,
		saleService,
		service.CheckoutDefaults{TaxRate: cfg.TaxRate(), PlatformFeeRate: cfg.FeeRate()},
		logger,
	)

	// Receipts are sent from sale.completed, never inside the commit.
	eventConsumer := event.NewConsumer(saleService, logger)
	processed := redis.NewIdempotencyStore(redisClient, cfg.ReceiptConsumerGrp, 24*time.Hour)
	receiptConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   cfg.ReceiptConsumerGrp,
		Topic:     event.TopicSaleCompleted,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(processed, eventConsumer.HandleSaleCompleted, logger), logger)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", producer.Ping)
	if terminal != nil {
		healthHandler.RegisterNonCritical("payment_terminal", func(context.Context) error {
			if terminal.State() == gobreaker.StateOpen {
				return errors.New("circuit open")
			}
			return nil
		})
	}

	router := handler.NewRouter(handler.Services{
		Checkout:  checkoutService,
		Inventory: inventoryService,
		Sales:     saleService,
	}, healthHandler, cfg.CORSAllowedOrigins, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.PaymentTerminalTimeout+15) * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		receipts:       receiptConsumer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newReceiptDispatcher emails through SendGrid when a key is configured and
// otherwise logs receipts. SMS receipts are always logged.
func newReceiptDispatcher(cfg *config.Config, logger *slog.Logger) (*receipt.Dispatcher, error) {
	var email receipt.Sender = receipt.NewLogSender(receipt.ChannelEmail, logger)
	if cfg.SendGridAPIKey != "" {
		sg, err := receipt.NewSendGridSender(receipt.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.ReceiptFromEmail,
			FromName:  cfg.ReceiptFromName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init sendgrid: %w", err)
		}
		email = sg
	}
	return receipt.NewDispatcher(cfg.ReceiptFromName, email, receipt.NewLogSender(receipt.ChannelSMS, logger), logger), nil
}

// newPaymentRouter records cash, Venmo and external tenders as given. Cards
// go to the terminal gateway when one is configured.
func newPaymentRouter(cfg *config.Config, logger *slog.Logger) (*payment.Router, *httpclient.CircuitBreakerClient) {
	router := payment.NewRouter().
		Register(payment.ManualProvider{}, domain.PaymentCash, domain.PaymentVenmo, domain.PaymentExternal)

	if cfg.PaymentTerminalURL == "" {
		logger.Warn("no payment terminal configured, card sales are recorded without a charge")
		router.Register(payment.ManualProvider{}, domain.PaymentCard)
		return router, nil
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = time.Duration(cfg.PaymentTerminalTimeout) * time.Second
	breaker := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("payment-terminal"),
		logger,
	)
	router.Register(payment.NewTerminalProvider(payment.TerminalConfig{
		BaseURL: cfg.PaymentTerminalURL,
		APIKey:  cfg.PaymentTerminalAPIKey,
	}, breaker, logger), domain.PaymentCard)
	return router, breaker
}

// Run starts the HTTP server and the receipt consumer, then blocks until ctx
// is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.receipts.Start(ctx); err != nil {
			errCh <- fmt.Errorf("receipt consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown drains HTTP first so in-flight checkouts finish, then flushes
// spans and closes Kafka, Redis and PostgreSQL.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.receipts.Close(); err != nil {
		a.logger.Error("receipt consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
