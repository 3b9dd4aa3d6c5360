// ConsultEase faculty unit daemon.
//
// Runs on the desk device in a faculty office: scans for the faculty
// member's beacon, publishes presence and manual status to the broker,
// receives consultation requests, and rides out broker outages through
// the durable retry queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/consultease/consultease-core/internal/dispatch"
	"github.com/consultease/consultease-core/internal/infrastructure/config"
	"github.com/consultease/consultease-core/internal/infrastructure/database"
	"github.com/consultease/consultease-core/internal/infrastructure/influxdb"
	"github.com/consultease/consultease-core/internal/infrastructure/logging"
	"github.com/consultease/consultease-core/internal/infrastructure/mqtt"
	"github.com/consultease/consultease-core/internal/presence"
	"github.com/consultease/consultease-core/internal/resilience"
	"github.com/consultease/consultease-core/internal/status"
	"github.com/consultease/consultease-core/internal/unit"

	// Register embedded migrations with the database package.
	_ "github.com/consultease/consultease-core/migrations"
)

// Build information, set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// queueDepthInterval is how often the retry queue depth is recorded
	// when the history recorder is enabled.
	queueDepthInterval = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Default("facultyunit").Error("faculty unit failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Unit.UnitID == "" {
		return fmt.Errorf("unit.unit_id is required")
	}
	if cfg.Unit.BeaconAddress == "" {
		return fmt.Errorf("unit.beacon_address is required")
	}

	logger := logging.New(cfg.Logging, "facultyunit", version)
	logger.Info("starting faculty unit",
		"version", version,
		"commit", commit,
		"built", date,
		"unit_id", cfg.Unit.UnitID,
	)

	// Database (durable retry queue).
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

	// Each unit needs a distinct broker client ID or a second unit would
	// kick this one's session.
	cfg.MQTT.Broker.ClientID = "unit-" + cfg.Unit.UnitID

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

	// Optional status-history recorder.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			// History is best-effort; the unit runs without it.
			logger.Warn("InfluxDB unavailable, history disabled", "error", err)
		} else {
			defer func() {
				if err := influxClient.Close(); err != nil {
					logger.Error("closing InfluxDB client", "error", err)
				}
			}()
		}
	}

	// Resilience: breaker plus durable queue in front of every publish.
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		FailureWindow:    cfg.GetFailureWindow(),
		Cooldown:         cfg.GetCooldown(),
		MaxCooldown:      cfg.GetMaxCooldown(),
	})
	ctrl := resilience.NewController(breaker,
		resilience.NewSQLiteStore(db, cfg.Resilience.QueueCapacity),
		resilience.ControllerConfig{MaxAttempts: cfg.Resilience.MaxAttempts})
	ctrl.SetLogger(logger.With("component", "resilience"))
	ctrl.Register(unit.KindPublish, unit.PublishExecutor(mqttClient))
	ctrl.SetOnDrop(func(item resilience.Item, reason error) {
		logger.Warn("queued publish dropped",
			"id", item.ID, "attempts", item.Attempts, "reason", reason)
	})

	// Replay the queue before live publishes resume after every
	// (re)connect, so buffered updates land in original order.
	mqttClient.SetOnConnect(func() {
		go func() {
			if err := ctrl.OnReconnect(ctx); err != nil {
				logger.Warn("retry queue replay failed", "error", err)
			}
		}()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	topics := mqttClient.Topics()
	sink := unit.NewSink(ctrl, byte(cfg.MQTT.QoS)) // #nosec G115 -- QoS validated to 0..2

	monitor, err := presence.NewMonitor(cfg.Unit.BeaconAddress, cfg.GetPresenceTimeout(), nil)
	if err != nil {
		return fmt.Errorf("creating presence monitor: %w", err)
	}

	var scanner presence.Scanner
	if cfg.Unit.ScanCommand != "" {
		scanner, err = presence.NewCommandScanner(cfg.Unit.ScanCommand, cfg.GetScanInterval(), nil)
		if err != nil {
			return fmt.Errorf("creating beacon scanner: %w", err)
		}
	} else {
		logger.Warn("no scan command configured, presence will stay Unknown")
	}

	publisher := status.NewPublisher(cfg.Unit.UnitID, topics, sink, cfg.GetPublishDebounce())

	presenter := &logPresenter{
		logger: logger.With("component", "display"),
		unitID: cfg.Unit.UnitID,
		influx: influxClient,
	}

	dispatcher := dispatch.NewDispatcher(cfg.Unit.UnitID, topics, presenter, sink, cfg.GetRequestExpiry())
	dispatcher.SetLogger(logger.With("component", "dispatch"))

	runner := unit.NewRunner(unit.Config{
		ScanInterval: cfg.GetScanInterval(),
		LoopInterval: cfg.GetLoopInterval(),
		DrainBatch:   cfg.Resilience.DrainBatch,
	}, monitor, scanner, publisher, dispatcher, ctrl)
	runner.SetLogger(logger.With("component", "runner"))

	if err := mqttClient.Subscribe(topics.RequestsNew(), byte(cfg.MQTT.QoS), runner.HandleRequestMessage); err != nil { // #nosec G115
		return fmt.Errorf("subscribing to requests: %w", err)
	}

	if influxClient != nil {
		go recordQueueDepth(ctx, ctrl, influxClient, cfg.Unit.UnitID, logger)
	}

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		logger.Warn("startup health check failed", "error", err)
	}

	logger.Info("faculty unit ready", "broker",
		fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port))

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("runner stopped: %w", err)
	}

	logger.Info("faculty unit shutting down")
	return nil
}

// logPresenter stands in for the unit's display surface: delivered
// requests are logged and recorded, not rendered.
type logPresenter struct {
	logger *logging.Logger
	unitID string
	influx *influxdb.Client
}

func (p *logPresenter) Present(req dispatch.Request) {
	p.logger.Info("consultation request",
		"request_id", req.ID,
		"student_id", req.StudentID,
		"text", req.Text,
	)
	if p.influx != nil {
		p.influx.WriteRequestEvent(p.unitID, "delivered", 0)
	}
}

// recordQueueDepth periodically records the retry queue depth so an
// outage is visible in history after the fact.
func recordQueueDepth(ctx context.Context, ctrl *resilience.Controller,
	influx *influxdb.Client, unitID string, logger *logging.Logger) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := ctrl.QueueLen(ctx)
			if err != nil {
				logger.Debug("reading queue depth", "error", err)
				continue
			}
			influx.WriteQueueDepth(unitID, depth)
		}
	}
}

// healthCheck verifies core components are functioning.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
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
