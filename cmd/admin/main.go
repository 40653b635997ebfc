package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"finsight/internal/domain/finsync"
	"finsight/internal/domain/item"
	"finsight/internal/infrastructure/aggregator"
	"finsight/internal/infrastructure/crypto"
	"finsight/internal/infrastructure/postgres"
	"finsight/internal/shared/config"
	"finsight/internal/shared/logger"
)

const usage = `Finsight Admin CLI - Management commands for the Finsight API

Usage:
  admin <command> [options]

Commands:
  migrate-up        Apply all pending schema migrations
  migrate-down      Roll back schema migrations (--steps, default 1)
  migrate-version   Print the current schema version
  resync            Resync linked items over the default window

Examples:
  # Apply migrations
  admin migrate-up

  # Roll back the last two migrations
  admin migrate-down --steps=2

  # Resync specific users
  admin resync --user-id=user-1,user-2

  # Resync every linked item with higher concurrency
  admin resync --all --workers=8 --timeout=1h
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, true)

	command := os.Args[1]

	switch command {
	case "migrate-up":
		err = runMigrateUp(cfg, log)
	case "migrate-down":
		err = runMigrateDown(cfg, log, os.Args[2:])
	case "migrate-version":
		err = runMigrateVersion(cfg)
	case "resync":
		err = runResync(cfg, log, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Str("command", command).Msg("Command failed")
		os.Exit(1)
	}
}

func connect(cfg *config.Config, log zerolog.Logger) (*postgres.DB, error) {
	if cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("admin commands require DB_DRIVER=postgres (got %q)", cfg.Database.Driver)
	}
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("Connected to database")
	return db, nil
}

func runMigrateUp(cfg *config.Config, log zerolog.Logger) error {
	db, err := connect(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(db); err != nil {
		return err
	}
	return runMigrateVersionDB(db)
}

func runMigrateDown(cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("migrate-down", flag.ExitOnError)
	steps := fs.Int("steps", 1, "Number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return errors.New("--steps must be at least 1")
	}

	db, err := connect(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.MigrateDown(db, *steps); err != nil {
		return err
	}
	return runMigrateVersionDB(db)
}

func runMigrateVersion(cfg *config.Config) error {
	db, err := connect(cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	defer db.Close()
	return runMigrateVersionDB(db)
}

func runMigrateVersionDB(db *postgres.DB) error {
	version, dirty, err := postgres.MigrationVersion(db)
	if err != nil {
		return err
	}
	fmt.Printf("Schema version: %d (dirty: %t)\n", version, dirty)
	return nil
}

func runResync(cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("resync", flag.ExitOnError)

	userIDStr := fs.String("user-id", "", "User ID(s) to resync (comma-separated for multiple)")
	allUsers := fs.Bool("all", false, "Resync every linked item")
	workers := fs.Int("workers", 4, "Number of concurrent workers")
	timeout := fs.Duration("timeout", 30*time.Minute, "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin resync [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *userIDStr == "" && !*allUsers {
		fs.Usage()
		return errors.New("must specify --user-id or --all")
	}

	db, err := connect(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return err
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
		return err
	}

	itemRepo := postgres.NewItemRepository(db, encryptor)
	engine := finsync.NewEngine(
		client,
		itemRepo,
		postgres.NewAccountRepository(db),
		postgres.NewTransactionRepository(db),
		postgres.NewSyncRunRepository(db),
		noBackfills{},
		log,
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	items, err := selectItems(ctx, engine, itemRepo, *userIDStr, *allUsers)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		log.Info().Msg("No items to process")
		return nil
	}

	log.Info().Int("items", len(items)).Int("workers", *workers).Msg("Starting resync")
	startTime := time.Now()

	var (
		mu      sync.Mutex
		failed  int
		results = make(map[string]finsync.Counts, len(items))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for _, it := range items {
		g.Go(func() error {
			counts, err := engine.ResyncItem(gctx, it)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				log.Error().Err(err).Str("user_id", it.UserID).Msg("Resync failed")
				return nil
			}
			results[it.UserID] = counts
			return nil
		})
	}
	g.Wait()

	for userID, counts := range results {
		fmt.Printf("%-32s accounts=%d transactions=%d\n", userID, counts.Accounts, counts.Transactions)
	}

	log.Info().
		Int("succeeded", len(results)).
		Int("failed", failed).
		Dur("elapsed", time.Since(startTime)).
		Msg("Resync completed")

	if failed > 0 {
		return fmt.Errorf("%d of %d resyncs failed", failed, len(items))
	}
	return nil
}

// noBackfills refuses background work; the CLI only resyncs in the foreground.
type noBackfills struct{}

func (noBackfills) Dispatch(userID, description string, fn func(ctx context.Context) error) error {
	return fmt.Errorf("admin CLI cannot queue %s for user %s", description, userID)
}

func selectItems(ctx context.Context, engine *finsync.Engine, repo item.Repository, userIDStr string, all bool) ([]*item.Item, error) {
	if all {
		return engine.Items(ctx)
	}

	var items []*item.Item
	for _, userID := range strings.Split(userIDStr, ",") {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		it, err := repo.GetByUserID(ctx, userID)
		if errors.Is(err, item.ErrItemNotFound) {
			return nil, fmt.Errorf("no linked item for user %s", strconv.Quote(userID))
		}
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}
