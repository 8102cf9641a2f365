// Gray Logic Auth - credential lifecycle service
//
// This is the main entry point for the Gray Logic Auth service. It owns
// account credentials and sessions for the rest of the stack:
//   - Registration, login and password change with bcrypt verifiers
//   - Short-lived access tokens and single-live, rotating renewal tokens
//   - Role-based authorisation of API routes
//   - Session events fanned out to the audit log, MQTT, InfluxDB,
//     Prometheus and an admin WebSocket stream
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-auth/internal/api"
	"github.com/nerrad567/gray-logic-auth/internal/audit"
	"github.com/nerrad567/gray-logic-auth/internal/auth"
	"github.com/nerrad567/gray-logic-auth/internal/auth/postgres"
	"github.com/nerrad567/gray-logic-auth/internal/events"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-auth/migrations"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Auth",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if cfg.UsingDefaultRefreshSecret() {
		log.Warn("security.jwt.refresh_secret is not set; using the built-in default. Set GRAYLOGIC_JWT_REFRESH_SECRET in production")
	}

	// Open the credential store
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := st.close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := checkStore(ctx, st); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("credential store ready", "driver", cfg.Database.Driver)

	prom := metrics.New()

	hasher := auth.NewHasher(auth.HasherConfig{
		Cost:    cfg.Security.Hashing.Cost,
		Workers: cfg.Security.Hashing.Workers,
	})
	hasher.SetObserver(prom.ObserveHash)

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		AccessSecret:  cfg.Security.JWT.Secret,
		AccessTTL:     cfg.Security.JWT.AccessTTL(),
		RefreshSecret: cfg.Security.JWT.RefreshSecret,
		RefreshTTL:    cfg.Security.JWT.RefreshTTL(),
	})
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	checks := map[string]api.HealthCheck{"database": st.healthCheck}
	hub := api.NewHub(cfg.WebSocket, log)
	hub.SetOnCountChange(prom.SetWSClients)

	sinks := []events.Sink{
		events.NewAuditSink(st.audit),
		events.NewMetricsSink(prom),
		events.NewStreamSink(hub),
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg.MQTT, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		sinks = append(sinks, events.NewMQTTSink(mqttClient))
		checks["mqtt"] = mqttClient.HealthCheck
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection", "write_errors", influxClient.WriteErrors())
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, events.NewInfluxSink(influxClient))
		checks["influxdb"] = influxClient.HealthCheck
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the event dispatcher. It stops after the API server so events
	// raised by in-flight requests are still delivered.
	dispatcher := events.NewDispatcher(events.DefaultQueueSize, log, sinks...)
	dispatcher.SetOnDrop(prom.IncDropped)
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	go dispatcher.Run(dispatchCtx)
	defer func() {
		stopDispatch()
		<-dispatcher.Done()
		log.Info("event dispatcher stopped", "dropped", dispatcher.Dropped())
	}()

	sessions, err := auth.NewSessionManager(auth.SessionDeps{
		Store:  st.accounts,
		Hasher: hasher,
		Issuer: issuer,
		Events: dispatcher,
		Logger: log.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	if _, err := auth.SeedAdmin(ctx, st.accounts, hasher, auth.SeedAccount{
		Email:     cfg.Security.Seed.Email,
		Password:  cfg.Security.Seed.Password,
		FirstName: cfg.Security.Seed.FirstName,
		LastName:  cfg.Security.Seed.LastName,
	}, log.Logger); err != nil {
		return fmt.Errorf("seeding admin account: %w", err)
	}

	if mqttClient != nil {
		if err := events.SubscribeRevoke(mqttClient, sessions, log); err != nil {
			return fmt.Errorf("subscribing to revoke commands: %w", err)
		}
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Metrics:  cfg.Metrics,
		Logger:   log,
		Sessions: sessions,
		Accounts: st.accounts,
		Gate:     auth.NewGate(issuer),
		Audit:    st.audit,
		Events:   dispatcher,
		Hub:      hub,
		Prom:     prom,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Event dispatcher (drains queued events)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("Gray Logic Auth stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// store bundles the repositories of whichever database driver is configured.
type store struct {
	accounts    auth.AccountRepository
	audit       audit.Repository
	healthCheck api.HealthCheck
	close       func() error
}

// openStore connects to the configured database and applies migrations.
//
// Both drivers run the embedded goose migrations for their dialect.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := database.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if err := database.MigratePostgres(ctx, db, migrations.Postgres()); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return &store{
			accounts:    postgres.NewStore(db),
			audit:       audit.NewRepository(db, audit.DialectPostgres),
			healthCheck: func(ctx context.Context) error { return database.PostgresHealthCheck(ctx, db) },
			close:       db.Close,
		}, nil

	case config.DriverSQLite, "":
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Path,
			WALMode:     cfg.WALMode,
			BusyTimeout: cfg.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Migrate(ctx, migrations.SQLite()); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return &store{
			accounts:    auth.NewAccountRepository(db.DB),
			audit:       audit.NewSQLiteRepository(db.DB),
			healthCheck: db.HealthCheck,
			close:       db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// connectMQTT connects to the broker and wires connection logging.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

// errNoDatabase is returned by checkStore when no store is open.
var errNoDatabase = errors.New("database not open")

// checkStore verifies the store is reachable before serving.
func checkStore(ctx context.Context, st *store) error {
	if st == nil || st.healthCheck == nil {
		return errNoDatabase
	}
	if err := st.healthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}
