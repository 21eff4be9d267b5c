package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	storegrpc "github.com/fjod/storefront/internal/grpc"
	storehttp "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/observability"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/reservation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName    = "storefront"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := observability.NewLogger(serviceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("storefront stopped with error", zap.Error(err))
	}
	logger.Info("storefront stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, serviceVersion, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close(logger)

	dispatcher, runDispatcher := newDispatcher(cfg, logger)

	engine := reservation.NewEngine(st.ledger, logger)
	orders := order.NewService(st.orders, engine, dispatcher, logger)
	gateway := payment.NewBreakerGateway(
		payment.NewSimulatedGateway(payment.RandomOutcome{}, cfg.Gateway.Latency),
		payment.BreakerSettings{
			Name:             "payment-gateway",
			ConsecutiveFails: cfg.Gateway.BreakerFailures,
			OpenTimeout:      cfg.Gateway.BreakerOpenFor,
			HalfOpenRequests: cfg.Gateway.BreakerHalfOpen,
		},
		logger,
	)
	policy := payment.RetryPolicy{
		MaxAttempts:    cfg.Gateway.MaxAttempts,
		AttemptTimeout: cfg.Gateway.AttemptTimeout,
		BaseBackoff:    cfg.Gateway.BaseBackoff,
		MaxBackoff:     cfg.Gateway.MaxBackoff,
	}
	payments := payment.NewService(st.payments, gateway, policy, dispatcher, logger)
	carts := st.cartService(logger)
	orchestrator := checkout.NewOrchestrator(carts, engine, orders, payments, cfg.Currency, logger)

	router := storehttp.NewRouter(storehttp.Handlers{
		Products: storehttp.NewProductHandler(st.catalog, cfg.RequestTimeout, logger),
		Cart:     storehttp.NewCartHandler(carts, cfg.RequestTimeout, logger),
		Checkout: storehttp.NewCheckoutHandler(orchestrator, cfg.RequestTimeout, logger),
		Orders:   storehttp.NewOrdersHandler(orders, payments, cfg.RequestTimeout, logger),
	}, storehttp.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBody,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	health := storegrpc.NewHealthServer(st.healthChecks(), 10*time.Second, logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	// background loops outlive gctx until the HTTP server has drained
	bgCtx, stopBackground := context.WithCancel(context.WithoutCancel(gctx))
	defer stopBackground()

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := health.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return health.Run(gctx) })
	g.Go(func() error { return runDispatcher(bgCtx) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return shutdownInOrder(cfg.ShutdownTimeout, srv, health.GracefulStop, stopBackground)
	})

	return g.Wait()
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownInOrder stops the gRPC health server, waits for in-flight HTTP
// requests, and only then stops the background loops, so notifications
// emitted by those last requests are still published.
func shutdownInOrder(timeout time.Duration, srv shutdowner, stopGRPC func(), stopBackground context.CancelFunc) error {
	defer stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stopGRPC()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// newDispatcher returns the notifier and the loop that must run for it. With a
// consumer group configured the same process also reads the topic back and
// delivers each notification to the log.
func newDispatcher(cfg *config.Config, logger *zap.Logger) (notify.Dispatcher, func(context.Context) error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("no kafka brokers configured, notifications go to the log")
		return notify.NewLogDispatcher(logger), func(context.Context) error { return nil }
	}

	writer := notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.NotifyTopic)
	d := notify.NewKafkaDispatcher(writer, notify.DefaultKafkaConfig(), logger)
	logger.Info("publishing notifications to kafka",
		zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.NotifyTopic))
	if cfg.ConsumerGroup == "" {
		return d, d.Run
	}

	reader := notify.NewKafkaReader(cfg.KafkaBrokers, cfg.NotifyTopic, cfg.ConsumerGroup)
	consumer := notify.NewConsumer(reader, notify.NewLogDispatcher(logger), logger)
	return d, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return d.Run(gctx) })
		g.Go(func() error { return consumer.Run(gctx) })
		return g.Wait()
	}
}
