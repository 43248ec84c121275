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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"dossier/internal/appstate"
	sessionhandler "dossier/internal/appstate/handler"
	sessionstore "dossier/internal/appstate/store"
	httpapi "dossier/internal/http"
	"dossier/internal/platform/config"
	"dossier/internal/platform/httpserver"
	"dossier/internal/platform/logger"
	"dossier/internal/platform/metrics"
	"dossier/internal/platform/postgres"
	"dossier/internal/platform/redis"
	profilehandler "dossier/internal/profile/handler"
	profilemetrics "dossier/internal/profile/metrics"
	"dossier/internal/profile/models"
	"dossier/internal/profile/service"
	profilestore "dossier/internal/profile/store"
	"dossier/internal/seed"
	audit "dossier/pkg/platform/audit"
	"dossier/pkg/platform/audit/publisher"
	kafkasink "dossier/pkg/platform/audit/sink/kafka"
	auditmemory "dossier/pkg/platform/audit/store/memory"
	auditpostgres "dossier/pkg/platform/audit/store/postgres"
	"dossier/pkg/requestcontext"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// backend holds the storage selected by configuration.
type backend struct {
	profiles service.ProfileStore
	session  appstate.Store
	activity audit.Store
	checks   map[string]httpapi.HealthCheck
	closers  []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	b := &backend{checks: map[string]httpapi.HealthCheck{}}

	switch cfg.Storage.Backend {
	case config.BackendRedis:
		client, err := redis.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.profiles = profilestore.NewRedis(client)
		b.session = sessionstore.NewRedis(client)
		b.activity = auditmemory.NewInMemoryStore()
		b.checks["redis"] = redis.Check(client)

	case config.BackendPostgres:
		db, err := postgres.OpenDB(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				b.close()
				return nil, err
			}
			log.InfoContext(ctx, "database migrations applied")
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.profiles = profilestore.NewPostgres(pool)
		b.session = sessionstore.NewPostgres(pool)
		b.activity = auditpostgres.New(db)
		b.checks["postgres"] = poolCheck(pool)
		b.checks["postgres_audit"] = dbCheck(db)

	default:
		b.profiles = profilestore.NewInMemory()
		b.session = sessionstore.NewInMemory()
		b.activity = auditmemory.NewInMemoryStore()
	}
	return b, nil
}

func poolCheck(pool *pgxpool.Pool) httpapi.HealthCheck {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

func dbCheck(db *sql.DB) httpapi.HealthCheck {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Storage.Backend, err)
	}
	defer store.close()

	pubOpts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithSinkTimeout(cfg.Audit.SinkTimeout),
	}
	if cfg.Kafka.Enabled() {
		sink, err := kafkasink.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer sink.Close()
		if err := sink.EnsureTopic(ctx, 1, 1); err != nil {
			log.WarnContext(ctx, "activity topic not ensured", "topic", cfg.Kafka.Topic, "error", err)
		}
		pubOpts = append(pubOpts, publisher.WithSink("kafka", sink))
		log.InfoContext(ctx, "activity stream enabled", "topic", cfg.Kafka.Topic)
	}
	activity := publisher.NewPublisher(store.activity, pubOpts...)
	defer activity.Close()

	profiles := service.New(store.profiles,
		service.WithLogger(log),
		service.WithMetrics(profilemetrics.New(reg)),
		service.WithAuditPublisher(activity),
		service.WithUploadPolicy(models.UploadPolicy{
			MaxBytes:          cfg.Upload.MaxBytes,
			AllowedMediaTypes: cfg.Upload.AllowedMediaTypes,
		}),
	)

	actors := appstate.BuiltinActors()
	if cfg.Seed.Enabled {
		actors = append(seed.Actors(), actors...)
		if err := seed.Load(ctx, profiles, log, requestcontext.Now(ctx)); err != nil {
			return fmt.Errorf("load fixtures: %w", err)
		}
	}
	session, err := appstate.New(ctx, store.session, appstate.NewDirectory(actors...),
		appstate.WithLogger(log),
		appstate.WithAuditPublisher(activity),
	)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:   log,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Actors:   session,
		Session:  sessionhandler.New(session, log),
		API:      []httpapi.Registrar{profilehandler.New(profiles, log)},
		Checks:   store.checks,
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting dossier", "addr", cfg.Server.Addr, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
