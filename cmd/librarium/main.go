// Librarium Core - digital library backend
//
// This is the main entry point for the Librarium Core application. It serves
// the catalogue and account API and carries the administrative commands used
// to prepare a deployment:
//   - serve: run the HTTP/WebSocket API
//   - migrate: apply database migrations
//   - seed: create first-boot accounts and sample books
//   - user create / user list: manage accounts from the shell
//   - token issue: mint a diagnostic session token
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/librarium-core/migrations"

	"github.com/nerrad567/librarium-core/internal/api"
	"github.com/nerrad567/librarium-core/internal/auth"
	"github.com/nerrad567/librarium-core/internal/audit"
	"github.com/nerrad567/librarium-core/internal/catalog"
	"github.com/nerrad567/librarium-core/internal/infrastructure/config"
	"github.com/nerrad567/librarium-core/internal/infrastructure/database"
	"github.com/nerrad567/librarium-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/librarium-core/internal/infrastructure/logging"
	"github.com/nerrad567/librarium-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/librarium-core/internal/infrastructure/objectstore"
	"github.com/nerrad567/librarium-core/internal/infrastructure/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C or SIGTERM so serve can shut down gracefully.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// configLoader loads the configuration selected by the root --config flag.
type configLoader func() (*config.Config, error)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "librarium",
		Short:         "Librarium Core digital library backend",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"configuration file (default $LIBRARIUM_CONFIG, then "+defaultConfigPath+")")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(getConfigPath(configPath))
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newSeedCmd(load),
		newUserCmd(load),
		newTokenCmd(load),
	)
	return root
}

// getConfigPath returns the configuration file path.
// The flag wins, then LIBRARIUM_CONFIG, then the default path if it exists.
// An empty result means environment-only configuration.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("LIBRARIUM_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Logging, version)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer log.Close()

			return runServe(cmd.Context(), cfg, log, cmd.OutOrStdout())
		},
	}
}

// runServe wires the application and blocks until ctx is cancelled.
// Seeded first-boot passwords are written to out, never to the log.
func runServe(ctx context.Context, cfg *config.Config, log *logging.Logger, out io.Writer) error { //nolint:gocognit,gocyclo // linear startup sequence
	log.Info("starting Librarium Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	hasher, tokens, err := newAuthCore(cfg)
	if err != nil {
		return err
	}

	accounts := auth.NewSQLAccountRepository(db)
	books := catalog.NewSQLRepository(db)

	seeded, err := auth.SeedAccounts(ctx, accounts, hasher, log.Logger)
	if err != nil {
		return fmt.Errorf("seeding accounts: %w", err)
	}
	printSeeded(out, seeded)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log.Logger)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB, log.Logger)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Cover storage (optional)
	covers, err := objectstore.New(ctx, cfg.Storage, cfg.PresignExpiry())
	switch {
	case errors.Is(err, objectstore.ErrDisabled):
		log.Info("cover storage disabled")
	case err != nil:
		return fmt.Errorf("configuring cover storage: %w", err)
	default:
		log.Info("cover storage configured", "bucket", cfg.Storage.Bucket, "endpoint", cfg.Storage.Endpoint)
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics {
		metrics = telemetry.NewMetrics()
	}

	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		DB:        db,
		Accounts:  accounts,
		Books:     books,
		AuditRepo: audit.NewSQLRepository(db),
		Hasher:    hasher,
		Tokens:    tokens,
		Tracer:    telemetry.Tracer(cfg.Telemetry.Tracing),
		MQTT:      mqttClient,
		Influx:    influxClient,
		Covers:    covers,
		Metrics:   metrics,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (drains audit queue)
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	return nil
}

// openDatabase opens the configured store and applies migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	schemaVersion, err := db.MigrationVersion(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading migration version: %w", err)
	}
	log.Info("database ready", "driver", db.Driver(), "schema_version", schemaVersion)
	return db, nil
}

// newAuthCore builds the credential hasher and token service from config.
func newAuthCore(cfg *config.Config) (*auth.Hasher, *auth.TokenService, error) {
	p := cfg.Security.Password
	hasher := auth.NewHasher(auth.HashParams{
		Memory:    p.Memory,
		Time:      p.Time,
		Threads:   p.Threads,
		MaxLength: p.MaxLength,
		MinLength: p.MinLength,
	})

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:    []byte(cfg.Security.JWT.Secret),
		TTL:       cfg.AccessTokenTTL(),
		ClockSkew: cfg.ClockSkew(),
		Issuer:    cfg.Security.JWT.Issuer,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating token service: %w", err)
	}
	return hasher, tokens, nil
}
