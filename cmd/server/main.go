package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	enrollmentHandler "crowdfund/internal/enrollment/handler"
	enrollmentMetrics "crowdfund/internal/enrollment/metrics"
	"crowdfund/internal/enrollment/outbox"
	enrollmentService "crowdfund/internal/enrollment/service"
	enrollmentStore "crowdfund/internal/enrollment/store"
	"crowdfund/internal/media"
	"crowdfund/internal/platform/config"
	"crowdfund/internal/platform/health"
	"crowdfund/internal/platform/httpserver"
	"crowdfund/internal/platform/kafka"
	"crowdfund/internal/platform/logger"
	"crowdfund/internal/platform/metrics"
	"crowdfund/internal/platform/middleware"
	"crowdfund/internal/platform/postgres"
	"crowdfund/internal/platform/redis"
	"crowdfund/internal/ratelimit"
	"crowdfund/internal/settlement"
	"crowdfund/pkg/platform/middleware/metadata"
	"crowdfund/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	httpMetrics := metrics.New()
	enrollMetrics := enrollmentMetrics.New()
	probes := health.NewHandler(log, 2*time.Second)

	db, backend, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		probes.AddCheck("postgres", db.PingContext)
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var limitStore ratelimit.Store
	if rdb != nil {
		limitStore = ratelimit.NewRedisStore(rdb.Client)
		defer rdb.Close()
		backend = enrollmentStore.NewCached(backend, rdb.Client, cfg.Redis.CacheTTL,
			enrollmentStore.WithCacheLogger(log),
			enrollmentStore.WithCacheObserver(enrollMetrics),
		)
		probes.AddCheck("redis", rdb.Health)
		log.Info("detail cache enabled", "ttl", cfg.Redis.CacheTTL.String())
	}

	svc := enrollmentService.New(backend,
		enrollmentService.WithLogger(log),
		enrollmentService.WithMetrics(enrollMetrics),
	)

	var verifier middleware.TokenVerifier
	if cfg.Settlement.SigningKey != "" {
		verifier = settlement.NewTokenService(cfg.Settlement.SigningKey, cfg.Settlement.Issuer, cfg.Settlement.Audience)
	}

	var uploader media.Uploader
	if cfg.UseUploads() {
		presigner, err := media.NewS3Presigner(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		uploader = media.NewService(presigner, cfg.Storage.PresignTTL, log)
		log.Info("uploads enabled", "bucket", cfg.Storage.Bucket)
	}

	var relay *outbox.Relay
	if cfg.UseRelay() {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := producer.EnsureTopic(ctx, 1, 1); err != nil {
			log.Warn("could not ensure relay topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		relay = outbox.NewRelay(outbox.NewPostgres(db), producer,
			outbox.WithLogger(log),
			outbox.WithMetrics(enrollMetrics),
			outbox.WithInterval(cfg.Kafka.PollInterval),
			outbox.WithBatchSize(cfg.Kafka.BatchSize),
		)
		probes.AddCheck("kafka", producer.Health)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata(cfg.TrustedProxies))
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(log, httpMetrics))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	probes.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	limiter := ratelimit.NewLimiter(limitStore, ratelimit.WithLogger(log))
	writes := ratelimit.Rule{Name: "writes", Limit: cfg.RateLimit.Writes, Window: cfg.RateLimit.Window}
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.PerClient(limiter, writes, log))
		enrollmentHandler.New(svc, log, verifier).Register(r)
		media.NewHandler(uploader, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, r, cfg.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting crowdfund", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	return g.Wait()
}

// buildStore opens Postgres when configured and falls back to the in-memory
// directory otherwise. The returned db is nil in memory mode.
func buildStore(ctx context.Context, cfg config.Server, log *slog.Logger) (*sql.DB, enrollmentStore.Backend, error) {
	if !cfg.UsePostgres() {
		log.Warn("DATABASE_URL not set, enrollments are kept in memory")
		return nil, enrollmentStore.NewInMemory(), nil
	}

	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("postgres store ready")
	return db, enrollmentStore.NewPostgres(db), nil
}
