package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventstaff/db"
	"eventstaff/db/migrations"
	"eventstaff/internal/config"
	"eventstaff/internal/financials"
	"eventstaff/internal/geo"
	"eventstaff/internal/handlers"
	"eventstaff/internal/matching"
	"eventstaff/internal/metrics"
	"eventstaff/internal/quotation"
	"eventstaff/internal/ratelimit"
	"eventstaff/internal/scheduler"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

func main() {
	log := logrus.New()

	var paths []string
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		paths = append(paths, p)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}
	setupLogger(log, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error

	var (
		store     db.Store
		directory db.Directory
	)
	switch cfg.Database.Driver {
	case "postgres":
		dsn := cfg.Database.DSN()
		// POSTGRES_CONN перекрывает отдельные поля database.*
		if conn := os.Getenv("POSTGRES_CONN"); conn != "" {
			dsn = conn
		}
		dbConn, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			log.Fatalf("Cannot connect to DB: %v", err)
		}
		dbConn.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		dbConn.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		dbConn.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		closers = append(closers, dbConn.Close)

		if cfg.Database.Migrate {
			if err := migrations.Run(dbConn.DB, log); err != nil {
				log.Fatalf("Cannot apply migrations: %v", err)
			}
		}
		store = db.NewStorage(dbConn, cfg.Database.LockTimeout)
		directory = db.NewCandidateDirectory(dbConn)
	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		store = db.NewMemoryStore()
		directory = db.NewMemoryDirectory()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var router geo.Router
	if cfg.Routing.Enabled {
		router = geo.NewOSRMClient(cfg.Routing.BaseURL, cfg.Routing.Profile, cfg.Routing.Timeout, nil)
		if cfg.Redis.Enabled {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.WithError(err).Warn("redis unavailable, route cache misses will hit the router")
			}
			closers = append(closers, rdb.Close)
			router = geo.NewCachedRouter(router, geo.NewRedisCache(rdb), cfg.Redis.RouteTTL, log, m)
		}
	} else {
		log.Info("routing provider disabled, using straight-line estimates")
	}
	estimator := geo.NewEstimator(router, cfg.Matching.FallbackSpeedKmh, log, m)

	rate, err := cfg.Matching.RatePerKm()
	if err != nil {
		log.Fatalf("Invalid travel rate: %v", err)
	}
	matcher := matching.NewMatcher(estimator, cfg.Matching.Workers, matching.Filters{
		MaxDistanceKm:      cfg.Matching.DefaultMaxDistanceKm,
		MaxDurationMinutes: cfg.Matching.DefaultMaxDurationMinutes,
		Limit:              cfg.Matching.DefaultLimit,
	}, matching.PerKmPolicy{RatePerKm: rate}, m)

	margin, err := cfg.Rollup.Margin()
	if err != nil {
		log.Fatalf("Invalid default margin: %v", err)
	}
	fin := financials.NewService(store, log, m, financials.Config{
		DefaultMarginPercent: decimal.NewNullDecimal(margin),
		MaxAttempts:          cfg.Rollup.MaxAttempts,
		RetryBaseDelay:       cfg.Rollup.RetryBaseDelay,
	})
	quotes := quotation.NewLifecycle(store, fin, log, m, quotation.Config{
		DefaultValidDays: cfg.Quotation.DefaultValidDays,
	})
	finder := matching.NewFinder(matcher, directory, fin)

	go scheduler.New(quotes, cfg.Quotation.SweepInterval, log).Start(ctx)

	var gate ratelimit.Gate
	if cfg.RateLimit.Enabled {
		gate = ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	h := handlers.NewHandler(fin, quotes, finder, log)
	r := handlers.NewRouter(h, handlers.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		Gate:           gate,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infof("Starting server on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	for _, c := range closers {
		err = multierr.Append(err, c())
	}
	if err != nil {
		log.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	log.Info("server stopped")
}

func setupLogger(log *logrus.Logger, cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
