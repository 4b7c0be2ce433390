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

	"github.com/ardanlabs/conf/v3"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres stdlib driver, used for migrations.
	"github.com/rschio/billing/internal/core/customer"
	"github.com/rschio/billing/internal/core/customer/store/customerdb"
	"github.com/rschio/billing/internal/data/dbschema"
	db "github.com/rschio/billing/internal/data/dbsql/pgx"
	"github.com/rschio/billing/internal/data/redislock"
	"github.com/rschio/billing/internal/handlers"
	"github.com/rschio/billing/internal/logger"
	"github.com/rschio/billing/internal/trace"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, slog.LevelInfo, "BILLING")

	if err := run(log); err != nil {
		log.Error("startup", "ERROR", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx := context.Background()

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Env string `conf:"default:DEV"`
		Web struct {
			Port            int           `conf:"default:8080"`
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
		}
		DB struct {
			User         string `conf:"default:postgres"`
			Password     string `conf:"default:postgres,mask"`
			Host         string `conf:"default:0.0.0.0:5432"`
			Name         string `conf:"default:postgres"`
			MaxIdleConns int    `conf:"default:2"`
			MaxOpenConns int    `conf:"default:10"`
			DisableTLS   bool   `conf:"default:true"`
			Migrate      bool   `conf:"default:true"`
		}
		Redis struct {
			Enabled    bool          `conf:"default:false"`
			Addr       string        `conf:"default:0.0.0.0:6379"`
			Password   string        `conf:"mask"`
			DB         int           `conf:"default:0"`
			LockExpiry time.Duration `conf:"default:10s"`
			LockTries  int           `conf:"default:32"`
		}
		Tempo struct {
			ReporterURI string  `conf:"default:0.0.0.0:4317"`
			ServiceName string  `conf:"default:billing-api"`
			Probability float64 `conf:"default:0.05"`
			Discard     bool    `conf:"default:true"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "customer billing status service",
		},
	}

	const prefix = "BILLING"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Info("starting service", "version", build)
	defer log.Info("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Info("startup", "config", out)

	// =========================================================================
	// Database Support

	log.Info("startup", "status", "initializing database support", "host", cfg.DB.Host)

	dbCfg := db.Config{
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Host:         cfg.DB.Host,
		Name:         cfg.DB.Name,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		DisableTLS:   cfg.DB.DisableTLS,
	}
	database, err := db.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Info("shutdown", "status", "stopping database support", "host", cfg.DB.Host)
		database.Close()
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.StatusCheck(ctxWithTimeout, database); err != nil {
		return fmt.Errorf("database not health: %w", err)
	}

	if cfg.DB.Migrate {
		if err := migrate(ctxWithTimeout, dbCfg); err != nil {
			return err
		}
		log.Info("startup", "status", "migrations complete")
	}

	// =========================================================================
	// Aging Lock Support

	var locker customer.Locker
	if cfg.Redis.Enabled {
		log.Info("startup", "status", "initializing redis aging lock", "addr", cfg.Redis.Addr)

		lockCfg := redislock.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Expiry:   cfg.Redis.LockExpiry,
			Tries:    cfg.Redis.LockTries,
		}
		client, err := redislock.Open(ctxWithTimeout, lockCfg)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			log.Info("shutdown", "status", "stopping redis support", "addr", cfg.Redis.Addr)
			client.Close()
		}()

		locker = redislock.New(log, client, lockCfg)
	}

	// =========================================================================
	// Start Tracing Support

	log.Info("startup", "status", "initializing OT/Tempo tracing support")

	provider, err := trace.NewProvider(ctx, trace.Config{
		Env:         cfg.Env,
		ReporterURI: cfg.Tempo.ReporterURI,
		Service:     cfg.Tempo.ServiceName,
		Probability: cfg.Tempo.Probability,
		Discard:     cfg.Tempo.Discard,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer provider.Shutdown(context.Background())

	tracer := provider.Tracer(cfg.Tempo.ServiceName)

	// =========================================================================
	// Start API Service

	log.Info("startup", "status", "initializing BILLING API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	core := customer.NewCore(customerdb.NewStore(log, database), locker)
	check := func(ctx context.Context) error { return database.Ping(ctx) }
	srv := handlers.NewServer(log, core, check)

	api := http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      handlers.APIMux(srv, tracer),
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(log.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info("shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

func migrate(ctx context.Context, cfg db.Config) error {
	stdDB, err := sql.Open("pgx", db.ConnString(cfg))
	if err != nil {
		return fmt.Errorf("failed to open DB for migration: %w", err)
	}
	defer stdDB.Close()

	if err := dbschema.Migrate(ctx, stdDB); err != nil {
		return fmt.Errorf("migrating error: %w", err)
	}

	return nil
}
