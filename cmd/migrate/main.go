package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quartzlabs/ownermatch/internal/audit"
	"github.com/quartzlabs/ownermatch/internal/domain"
	"github.com/quartzlabs/ownermatch/internal/infrastructure/logger"
	"github.com/quartzlabs/ownermatch/internal/infrastructure/redis"
	"github.com/quartzlabs/ownermatch/internal/ingest"
	"github.com/quartzlabs/ownermatch/internal/observability/tracing"
	"github.com/quartzlabs/ownermatch/internal/repository"
	"github.com/quartzlabs/ownermatch/internal/service"
	"github.com/quartzlabs/ownermatch/internal/store"
	"github.com/quartzlabs/ownermatch/internal/worker"
	"github.com/quartzlabs/ownermatch/pkg/config"
	"github.com/quartzlabs/ownermatch/pkg/database"
)

const runLockTTL = 2 * time.Hour

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "run":
		os.Exit(runMigration(args))
	case "schema":
		ensureSchema(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ownermatch - legacy user to business owner reconciliation

Usage: ownermatch <command> [flags]

Commands:
  run       reconcile a legacy export against migrated businesses
  schema    create the migration support tables
  help      show this help

Run 'ownermatch <command> -h' for command flags.`)
}

// runMigration returns an exit code instead of calling os.Exit so the
// deferred lock release and report flush always run.
func runMigration(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	inputPath := fs.String("input", "", "path to the legacy user export (JSON array or NDJSON, required)")
	manualPath := fs.String("manual-map", "", "optional CSV of email,business_id manual overrides")
	strategy := fs.String("strategy", "all", "restrict heuristics: all, uuid, email, name, domain")
	execute := fs.Bool("execute", false, "apply changes (default is dry-run)")
	workers := fs.Int("workers", 0, "parallel workers (0 = use MIGRATION_WORKERS)")
	reportPath := fs.String("report", "", "unmatched report CSV (default from UNMATCHED_REPORT_PATH)")
	fs.Parse(args)

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "run: -input is required")
		fs.Usage()
		return 1
	}

	filter, err := service.ParseStrategyFilter(*strategy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 1
	}

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *reportPath != "" {
		cfg.ReportPath = *reportPath
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting reconciliation run",
		slog.String("environment", cfg.Environment),
		slog.String("input", *inputPath),
		slog.String("strategy", string(filter)),
		slog.Bool("dry_run", !*execute),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize tracing (no-op unless an OTLP endpoint is configured)
	shutdownTracing, err := tracing.Init(ctx, log, "ownermatch", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(shutdownCtx)
	}()

	// 4. Connect to the target database
	db, err := connect(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		return 1
	}
	defer db.Close()

	// 5. Acquire the run lock when Redis is configured. Two concurrent
	// runs writing mappings would race each other into conflicts.
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			return 1
		}
		defer redisClient.Close()

		lock := repository.NewRedisRunLockRepository(redisClient, newLockToken(), log)
		if err := lock.Acquire(ctx, runLockTTL); err != nil {
			if errors.Is(err, domain.ErrRunLocked) {
				log.Error("another reconciliation run holds the lock")
			} else {
				log.Error("failed to acquire run lock", slog.String("error", err.Error()))
			}
			return 1
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lock.Release(releaseCtx); err != nil {
				log.Warn("failed to release run lock", slog.String("error", err.Error()))
			}
		}()
	}

	// 6. Serve metrics when an address is configured
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		log.Info("metrics endpoint up", slog.String("addr", cfg.MetricsAddr))
	}

	// 7. Load inputs: legacy export, manual overrides, migrated businesses
	records, err := ingest.LoadRecords(*inputPath, log)
	if err != nil {
		log.Error("failed to load legacy export", slog.String("error", err.Error()))
		return 1
	}

	recordStore := store.NewRecordStore(log)
	recordStore.Load(records)

	var manual map[string]int64
	if *manualPath != "" {
		manual, err = store.LoadManualMap(*manualPath, log)
		if err != nil {
			log.Error("failed to load manual map", slog.String("error", err.Error()))
			return 1
		}
	}

	identityRepo := repository.NewCachedIdentityRepository(
		repository.NewPostgresIdentityRepository(db, log),
	)
	relationshipRepo := repository.NewPostgresRelationshipRepository(db, log)
	businessRepo := repository.NewPostgresBusinessRepository(db, log)

	businesses, err := businessRepo.ListMigrated()
	if err != nil {
		log.Error("failed to list migrated businesses", slog.String("error", err.Error()))
		return 1
	}
	index := store.BuildBusinessIndex(businesses, log)

	// 8. Wire the engine
	report, err := audit.OpenUnmatchedReport(cfg.ReportPath)
	if err != nil {
		log.Error("failed to open unmatched report", slog.String("error", err.Error()))
		return 1
	}
	defer report.Close()

	stats := domain.NewMigrationStats()
	matcher := service.NewMatchService(identityRepo, index, manual, log)
	reconciler := service.NewReconcileService(
		matcher, identityRepo, relationshipRepo, businessRepo,
		stats, audit.NewLogger(log), report, log,
		service.ReconcileConfig{DryRun: !*execute, Filter: filter},
	)
	runner := worker.NewBatchRunner(reconciler, log, cfg.Workers)

	// 9. Run and report
	runErr := runner.Run(ctx, recordStore.Users())

	audit.WriteSummary(os.Stdout, stats.Snapshot(), reconciler.Unmatched(), !*execute)
	fmt.Printf("\nunmatched report: %s\n", report.Path())

	if runErr != nil {
		log.Error("reconciliation aborted", slog.String("error", runErr.Error()))
		return 1
	}
	if snap := stats.Snapshot(); snap.NoMatches > 0 || snap.Errors > 0 {
		log.Warn("reconciliation finished with gaps",
			slog.Int("no_matches", snap.NoMatches),
			slog.Int("errors", snap.Errors),
		)
	}
	return 0
}

func ensureSchema(args []string) {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := connect(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.EnsureSchema(db, log); err != nil {
		log.Error("failed to create schema", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("schema ready")
}

func connect(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, log)
	if err != nil {
		return nil, err
	}
	return pool.GetDB(), nil
}

func newLockToken() string {
	return uuid.NewString()
}
