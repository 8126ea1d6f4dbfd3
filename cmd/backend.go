package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kozaktomas/face-attendance/internal/assets"
	"github.com/kozaktomas/face-attendance/internal/attend"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/registry"
)

// newSystem wires the recognition system for the configured storage
// backend. The returned cleanup function closes database pools.
func newSystem(ctx context.Context, cfg *config.Config) (*attend.System, func(), error) {
	regStore, ledgerStore, assetStore, cleanup, err := newStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	led := ledger.New(ledgerStore, newPolicy(cfg))
	if cfg.Schedule.File != "" {
		schedule, err := ledger.LoadSchedule(cfg.Schedule.File)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("loading schedule: %w", err)
		}
		led.SetSchedule(schedule)
		fmt.Printf("Schedule gating enabled (%s)\n", cfg.Schedule.File)
	}

	reg := registry.New(regStore, cfg.Extractor.Dim)
	ext := extractor.NewHTTPClient(cfg.Extractor.URL)
	system := attend.New(reg, led, ext, assetStore, cfg.Matcher.Threshold)
	return system, cleanup, nil
}

// newPolicy picks the dedup policy from configuration.
func newPolicy(cfg *config.Config) ledger.Policy {
	if cfg.Dedup.Policy == "cooldown" {
		return ledger.CooldownPolicy{Window: cfg.Dedup.Cooldown}
	}
	return ledger.CalendarBucketPolicy{Layout: cfg.Dedup.BucketLayout}
}

// newStores builds the registry, ledger and asset stores for the selected
// backend. SQL backends get their schema ensured here, so every command
// works against a fresh database.
func newStores(ctx context.Context, cfg *config.Config) (registry.Store, ledger.Store, assets.Store, func(), error) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}
		ddb := dynamodb.NewFromConfig(awsCfg)
		regStore := registry.NewDynamoStore(ddb, cfg.AWS.FacesTable)
		ledgerStore := ledger.NewDynamoStore(ddb, cfg.AWS.AttendanceTable)
		assetStore := assets.NewS3Store(s3.NewFromConfig(awsCfg), cfg.AWS.Bucket)
		fmt.Printf("Using DynamoDB backend (%s)\n", cfg.AWS.Region)
		return regStore, ledgerStore, assetStore, noop, nil

	case "postgres":
		if cfg.Storage.URL == "" {
			return nil, nil, nil, nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
		pool, err := database.NewPostgresPool(cfg.Storage.URL, 25, 5)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		regStore := registry.NewPostgresStore(pool.DB())
		ledgerStore := ledger.NewPostgresStore(pool.DB())
		if err := regStore.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		if err := ledgerStore.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		fmt.Println("Using PostgreSQL backend")
		return regStore, ledgerStore, assets.NewLocalStore(cfg.Storage.DataDir), func() { pool.Close() }, nil

	case "mariadb":
		if cfg.Storage.MariaDBDSN == "" {
			return nil, nil, nil, nil, fmt.Errorf("MARIADB_DSN environment variable is required")
		}
		pool, err := database.NewMariaDBPool(cfg.Storage.MariaDBDSN)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("connecting to MariaDB: %w", err)
		}
		regStore := registry.NewMariaDBStore(pool.DB())
		ledgerStore := ledger.NewMariaDBStore(pool.DB())
		if err := regStore.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		if err := ledgerStore.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		fmt.Println("Using MariaDB backend")
		return regStore, ledgerStore, assets.NewLocalStore(cfg.Storage.DataDir), func() { pool.Close() }, nil

	case "file":
		regStore := registry.NewFileStore(filepath.Join(cfg.Storage.DataDir, "faces.json"))
		ledgerStore := ledger.NewFileStore(filepath.Join(cfg.Storage.DataDir, "attendance.json"))
		fmt.Printf("Using file backend (%s)\n", cfg.Storage.DataDir)
		return regStore, ledgerStore, assets.NewLocalStore(cfg.Storage.DataDir), noop, nil

	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// timeoutContext returns a context for one-shot CLI operations.
func timeoutContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Minute)
}
