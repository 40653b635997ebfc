package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"finsight/internal/domain/account"
	"finsight/internal/domain/assistant"
	"finsight/internal/domain/finsync"
	"finsight/internal/domain/item"
	"finsight/internal/domain/syncrun"
	"finsight/internal/domain/transaction"
	"finsight/internal/infrastructure/aggregator"
	"finsight/internal/infrastructure/crypto"
	"finsight/internal/infrastructure/postgres"
	"finsight/internal/infrastructure/sqlite"
	httphandlers "finsight/internal/interfaces/http"
	"finsight/internal/interfaces/scheduler"
	"finsight/internal/shared/config"
)

// store is the set of repositories behind either database driver.
type store struct {
	db interface {
		httphandlers.Pinger
		io.Closer
	}
	items        item.Repository
	accounts     account.Repository
	transactions transaction.Repository
	runs         syncrun.Repository
}

// Dependencies holds all initialized application components.
type Dependencies struct {
	store store

	Engine    *finsync.Engine
	Pool      *scheduler.WorkerPool
	Scheduler *scheduler.Scheduler

	// Handlers
	LinkHandler        *httphandlers.LinkHandler
	SyncHandler        *httphandlers.SyncHandler
	AccountHandler     *httphandlers.AccountHandler
	TransactionHandler *httphandlers.TransactionHandler
	ContextHandler     *httphandlers.ContextHandler
	HealthHandler      *httphandlers.HealthHandler
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config, log zerolog.Logger) (*Dependencies, error) {
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg.Database, encryptor, log)
	if err != nil {
		return nil, err
	}

	client, err := aggregator.NewClient(aggregator.Config{
		Env:          cfg.Aggregator.Env,
		BaseURL:      cfg.Aggregator.BaseURL,
		ClientID:     cfg.Aggregator.ClientID,
		Secret:       cfg.Aggregator.Secret,
		ClientName:   cfg.Aggregator.ClientName,
		Products:     cfg.Aggregator.Products,
		CountryCodes: cfg.Aggregator.CountryCodes,
		Language:     cfg.Aggregator.Language,
		Timeout:      cfg.Aggregator.Timeout,
		MaxAttempts:  cfg.Aggregator.MaxAttempts,
		PageSize:     cfg.Aggregator.PageSize,
		MaxPages:     cfg.Aggregator.MaxPages,
		RateLimit:    cfg.Aggregator.RateLimit,
		RateBurst:    cfg.Aggregator.RateBurst,
	}, log)
	if err != nil {
		st.db.Close()
		return nil, err
	}

	// Backfills and scheduled resyncs share one pool.
	pool := scheduler.NewWorkerPool(scheduler.PoolConfig{
		WorkerCount: cfg.Scheduler.WorkerCount,
		JobDelay:    cfg.Scheduler.JobDelay,
		JobTimeout:  cfg.Scheduler.JobTimeout,
		QueueSize:   cfg.Scheduler.QueueSize,
	}, log)

	engine := finsync.NewEngine(client, st.items, st.accounts, st.transactions, st.runs, pool, log)
	builder := assistant.NewContextBuilder(st.accounts, st.transactions, log)

	deps := &Dependencies{
		store:              st,
		Engine:             engine,
		Pool:               pool,
		LinkHandler:        httphandlers.NewLinkHandler(engine, log),
		SyncHandler:        httphandlers.NewSyncHandler(engine, log),
		AccountHandler:     httphandlers.NewAccountHandler(engine, log),
		TransactionHandler: httphandlers.NewTransactionHandler(engine, log),
		ContextHandler:     httphandlers.NewContextHandler(builder, log),
		HealthHandler:      httphandlers.NewHealthHandler(st.db, log),
	}

	if cfg.Scheduler.Enabled {
		deps.Scheduler, err = scheduler.New(scheduler.Config{
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   scheduler.ResyncJobProvider(engine),
		}, pool, log)
		if err != nil {
			st.db.Close()
			return nil, fmt.Errorf("failed to create scheduler: %w", err)
		}
	}

	return deps, nil
}

func openStore(cfg config.DatabaseConfig, encryptor *crypto.Encryptor, log zerolog.Logger) (store, error) {
	switch cfg.Driver {
	case "sqlite":
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return store{}, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return store{}, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("Opened SQLite store")
		return store{
			db:           db,
			items:        sqlite.NewItemRepository(db, encryptor),
			accounts:     sqlite.NewAccountRepository(db),
			transactions: sqlite.NewTransactionRepository(db),
			runs:         sqlite.NewSyncRunRepository(db),
		}, nil

	default:
		db, err := postgres.New(cfg.ConnectionString())
		if err != nil {
			return store{}, err
		}
		log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Connected to PostgreSQL")

		if cfg.AutoMigrate {
			if err := postgres.Migrate(db); err != nil {
				db.Close()
				return store{}, err
			}
			if version, dirty, err := postgres.MigrationVersion(db); err == nil {
				log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema migrated")
			}
		}

		return store{
			db:           db,
			items:        postgres.NewItemRepository(db, encryptor),
			accounts:     postgres.NewAccountRepository(db),
			transactions: postgres.NewTransactionRepository(db),
			runs:         postgres.NewSyncRunRepository(db),
		}, nil
	}
}

// Start launches the background workers and, when enabled, the scheduler.
func (d *Dependencies) Start() {
	d.Pool.Start()
	if d.Scheduler != nil {
		d.Scheduler.Start()
	}
}

// Shutdown stops the scheduler, drains the worker pool within timeout and
// closes the database.
func (d *Dependencies) Shutdown(timeout time.Duration) error {
	if d.Scheduler != nil {
		d.Scheduler.Shutdown(timeout)
	}
	d.Pool.Shutdown(timeout)
	return d.store.db.Close()
}
