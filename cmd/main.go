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

	"github.com/fjod/grocery-cart/internal/cache"
	"github.com/fjod/grocery-cart/internal/config"
	"github.com/fjod/grocery-cart/internal/events"
	h "github.com/fjod/grocery-cart/internal/http"
	"github.com/fjod/grocery-cart/internal/logger"
	"github.com/fjod/grocery-cart/internal/metrics"
	"github.com/fjod/grocery-cart/internal/repository"
	"github.com/fjod/grocery-cart/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const metricsNamespace = "grocery_cart"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.Env, cfg.LogLevel)
	zerolog.DefaultContextLogger = &log

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("cart service stopped with error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	// Set up MongoDB connection
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	mongoDB, err := repository.ConnectMongoDB(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer disconnect(mongoDB, log)

	if err := repository.EnsureIndexes(connectCtx, mongoDB); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

	carts := repository.NewMongoRepository(mongoDB)
	catalog := repository.NewCatalogRepository(mongoDB)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.NewHTTP(metricsNamespace, reg)
	cartMetrics := metrics.NewCart(metricsNamespace, reg)

	cartCache, closeCache := newCache(ctx, cfg, log)
	defer closeCache()

	publisher := newPublisher(cfg, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	cartService := service.NewCartService(carts, catalog,
		service.WithCache(cartCache),
		service.WithPublisher(publisher),
		service.WithMetrics(cartMetrics),
		service.WithWriteRetries(cfg.Cart.WriteRetries),
	)
	analyticsService := service.NewAnalyticsService(carts, catalog, cfg.Cart.AbandonedAfter)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	router := h.NewRouter(h.RouterConfig{
		Carts:     cartService,
		Analytics: analyticsService,
		Logger:    log,
		Metrics:   httpMetrics,
		Health: func(ctx context.Context) error {
			return repository.Ping(ctx, mongoDB)
		},
		JWTSecret:      cfg.JWT.Secret,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           otelhttp.NewHandler(router, "grocery-cart"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Uint16("port", cfg.HTTP.Port).Str("env", cfg.Env).Msg("cart service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exited")
	return nil
}

// newCache returns the Redis backed cart cache behind a circuit breaker, or a
// no-op cache when Redis is disabled or unreachable at start-up.
func newCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) (cache.CartCache, func()) {
	if cfg.Redis.Disabled {
		log.Info().Msg("redis disabled, running without cart cache")
		return cache.Nop{}, func() {}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closeClient := func() {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed, running without cart cache")
		closeClient()
		return cache.Nop{}, func() {}
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis ping succeeded")

	redisCache := cache.NewRedisCache(redisClient, cfg.Cart.CacheTTL, cache.DefaultJitter)
	return cache.NewBreaker(redisCache, cache.BreakerSettings{Name: "cart-cache"}), closeClient
}

func newPublisher(cfg *config.Config, log zerolog.Logger) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info().Msg("no kafka brokers configured, cart events disabled")
		return events.Nop{}
	}
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing cart events")
	return events.NewKafkaPublisher(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
}

func disconnect(db *mongo.Database, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Client().Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("failed to disconnect from MongoDB")
	}
}
