// ConsultEase central system.
//
// Aggregates every faculty unit's presence and manual status from the
// broker into one authoritative view, persists it across restarts,
// marks silent units stale, and serves the view over a REST API and
// WebSocket stream.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/consultease/consultease-core/internal/aggregate"
	"github.com/consultease/consultease-core/internal/api"
	"github.com/consultease/consultease-core/internal/central"
	"github.com/consultease/consultease-core/internal/infrastructure/config"
	"github.com/consultease/consultease-core/internal/infrastructure/database"
	"github.com/consultease/consultease-core/internal/infrastructure/influxdb"
	"github.com/consultease/consultease-core/internal/infrastructure/logging"
	"github.com/consultease/consultease-core/internal/infrastructure/mqtt"
	"github.com/consultease/consultease-core/internal/resilience"
	"github.com/consultease/consultease-core/internal/status"

	// Register embedded migrations with the database package.
	_ "github.com/consultease/consultease-core/migrations"
)

// Build information, set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// backendDrainInterval is how often queued database writes are retried.
const backendDrainInterval = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Default("central").Error("central system failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(cfg.Logging, "central", version)
	logger.Info("starting central system",
		"version", version,
		"commit", commit,
		"built", date,
		"site", cfg.Site.ID,
	)

	// Database (persisted unit-status view).
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Aggregated view, seeded from the last persisted state so a
	// restart does not start blind.
	agg := aggregate.New(cfg.GetStaleTTL())
	agg.SetLogger(logger.With("component", "aggregate"))

	store := aggregate.NewStore(db)
	if err := store.Seed(ctx, agg); err != nil {
		return fmt.Errorf("seeding aggregate from database: %w", err)
	}
	logger.Info("aggregate seeded", "units", agg.Len())

	// Optional status-history recorder.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			logger.Warn("InfluxDB unavailable, history disabled", "error", err)
		} else {
			defer func() {
				if err := influxClient.Close(); err != nil {
					logger.Error("closing InfluxDB client", "error", err)
				}
			}()
		}
	}

	// HTTP API and WebSocket stream.
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     logger.With("component", "api"),
		Aggregator: agg,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Backend writes get the same breaker-and-queue treatment as unit
	// publishes. The queue is in memory: buffering failed writes in the
	// very database that is refusing them would be pointless, and the
	// broker's retained messages rebuild the view after a restart anyway.
	backendBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		FailureWindow:    cfg.GetFailureWindow(),
		Cooldown:         cfg.GetCooldown(),
		MaxCooldown:      cfg.GetMaxCooldown(),
	})
	backendCtrl := resilience.NewController(backendBreaker,
		resilience.NewMemoryStore(cfg.Resilience.QueueCapacity),
		resilience.ControllerConfig{MaxAttempts: cfg.Resilience.MaxAttempts})
	backendCtrl.SetLogger(logger.With("component", "resilience"))
	backendCtrl.Register(central.KindUpsert, central.UpsertExecutor(store))
	backendCtrl.SetReconciler(central.SnapshotReconciler(agg, store))
	backendCtrl.SetOnDrop(func(item resilience.Item, reason error) {
		logger.Warn("queued upsert dropped",
			"id", item.ID, "attempts", item.Attempts, "reason", reason)
	})

	persister := central.NewPersister(backendCtrl)
	persister.SetLogger(logger.With("component", "persist"))
	go persister.RunDrainer(ctx, backendDrainInterval)

	// Every accepted change is persisted through the backend controller
	// and pushed to WebSocket subscribers.
	agg.SetOnChange(func(rec status.Record) {
		server.Hub().BroadcastStatus(rec)
		persister.Persist(rec)
	})

	cfg.MQTT.Broker.ClientID = "central-" + cfg.Site.ID

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", err)
	}
	defer func() {
		if err := mqttClient.Close(); err != nil {
			logger.Error("closing MQTT client", "error", err)
		}
	}()
	mqttClient.SetLogger(logger.With("component", "mqtt"))
	mqttClient.SetOnDisconnect(func(err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	topics := mqttClient.Topics()
	qos := byte(cfg.MQTT.QoS) // #nosec G115 -- QoS validated to 0..2

	ingestor := central.NewIngestor(topics, agg)
	ingestor.SetLogger(logger.With("component", "ingest"))
	if influxClient != nil {
		ingestor.SetRecorder(influxClient)
	}

	if err := mqttClient.Subscribe(topics.AllUnitPresence(), qos, ingestor.HandlePresenceMessage); err != nil {
		return fmt.Errorf("subscribing to presence topics: %w", err)
	}
	if err := mqttClient.Subscribe(topics.AllUnitManualStatus(), qos, ingestor.HandleManualStatusMessage); err != nil {
		return fmt.Errorf("subscribing to manual status topics: %w", err)
	}
	if err := mqttClient.Subscribe(topics.AllRequestAcknowledgements(), qos,
		ackHandler(logger, influxClient)); err != nil {
		return fmt.Errorf("subscribing to acknowledgements: %w", err)
	}

	go ingestor.RunSweeper(ctx, cfg.GetSweepInterval())

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Error("closing API server", "error", err)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, server); err != nil {
		logger.Warn("startup health check failed", "error", err)
	}

	logger.Info("central system ready",
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
	)

	<-ctx.Done()
	logger.Info("central system shutting down")
	return nil
}

// ackHandler logs request acknowledgements and records them in history
// when the recorder is enabled.
func ackHandler(logger *logging.Logger, influxClient *influxdb.Client) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		var ack struct {
			RequestID      string `json:"request_id"`
			UnitID         string `json:"unit_id"`
			AcknowledgedAt int64  `json:"acknowledged_at"`
		}
		if err := json.Unmarshal(payload, &ack); err != nil {
			return fmt.Errorf("decoding acknowledgement on %s: %w", topic, err)
		}

		logger.Info("consultation request acknowledged",
			"request_id", ack.RequestID, "unit_id", ack.UnitID)
		if influxClient != nil {
			influxClient.WriteRequestEvent(ack.UnitID, "acknowledged", 0)
		}
		return nil
	}
}

// healthCheck verifies core components are functioning.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, server *api.Server) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := server.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// getConfigPath returns the configuration file path from the
// CONSULTEASE_CONFIG environment variable, or the default.
func getConfigPath() string {
	if path := os.Getenv("CONSULTEASE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
