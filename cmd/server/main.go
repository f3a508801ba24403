package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/zlagoda/internal/adapter/handler"
	"github.com/rl1809/zlagoda/internal/adapter/messaging"
	"github.com/rl1809/zlagoda/internal/adapter/storage"
	"github.com/rl1809/zlagoda/internal/auth"
	"github.com/rl1809/zlagoda/internal/config"
	"github.com/rl1809/zlagoda/internal/core/service"
	"github.com/rl1809/zlagoda/internal/port"
	"github.com/rl1809/zlagoda/pkg/logger"
	"github.com/rl1809/zlagoda/pkg/metrics"
)

// store is everything the services need from a backend.
type store interface {
	port.Transactor
	port.InventoryRepository
	port.ReceiptRepository
	port.CatalogRepository
	port.OutboxRepository
}

func main() {
	envFile := flag.String("env", "", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log := logger.Must(logger.New(cfg.LogLevel))
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var cache port.StockCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		cache = storage.NewRedisAdapter(rdb, cfg.Redis.TTL)
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	checkout := service.NewCheckoutService(st,
		service.WithStockCache(cache),
		service.WithOutbox(cfg.KafkaEnabled()),
		service.WithCheckoutTimeout(cfg.Checkout.Timeout),
		service.WithCheckoutMetrics(metrics.NewCheckoutMetrics(reg)),
		service.WithCheckoutLogger(logger.Named(log, "checkout")),
	)
	inventory := service.NewInventoryService(st, st, cache, logger.Named(log, "inventory"))
	receipts := service.NewReceiptService(st, st)
	catalog := service.NewCatalogService(st)

	if cfg.KafkaEnabled() {
		publisher := messaging.NewKafkaPublisher(messaging.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.Topic)
		defer publisher.Close()

		relay := service.NewOutboxRelay(st, publisher, cfg.Kafka.BatchSize, metrics.NewOutboxMetrics(reg), logger.Named(log, "outbox"))
		if err := relay.Start(cfg.Kafka.RelaySchedule); err != nil {
			return err
		}
		defer relay.Stop()
		log.Info("outbox relay started", zap.String("topic", cfg.Kafka.Topic), zap.String("schedule", cfg.Kafka.RelaySchedule))
	}

	signer := auth.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	httpHandler := handler.NewHTTPHandler(checkout, inventory, receipts, catalog, logger.Named(log, "http"))
	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: handler.NewRouter(httpHandler, signer, metrics.NewServerMetrics(reg), reg, log),
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.LoggingInterceptor(logger.Named(log, "grpc")),
		handler.AuthInterceptor(signer),
	))
	grpcServer.RegisterService(&handler.CheckoutServiceDesc, handler.NewGRPCHandler(checkout, logger.Named(log, "grpc")))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		log.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store, func(), error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on exit")
		return storage.NewMemoryAdapter(cfg.Database.LockTimeout), func() {}, nil
	}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, storage.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LockTimeout:     cfg.Database.LockTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Warn("closing database", zap.Error(err))
		}
	}

	adapter, err := storage.NewSQLAdapter(db, cfg.Database.Driver, cfg.Database.LockTimeout)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := adapter.Migrate(ctx); err != nil {
			closeDB()
			return nil, nil, err
		}
	}

	log.Info("connected to database", zap.String("driver", cfg.Database.Driver))
	return adapter, closeDB, nil
}
