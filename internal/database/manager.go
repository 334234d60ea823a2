// Package database opens the optional backends of a genesis search: the
// Redis checkpoint store and the InfluxDB and Kafka telemetry sinks.
package database

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/satoshiware/genesis/internal/config"
	"github.com/satoshiware/genesis/internal/database/influx"
	"github.com/satoshiware/genesis/internal/database/redis"
	"github.com/satoshiware/genesis/internal/messaging"
	"github.com/satoshiware/genesis/internal/mining"
	"github.com/satoshiware/genesis/pkg/log"
)

// Manager owns the backends that were configured and reachable. Any field
// may be nil.
type Manager struct {
	Redis  *redis.Client
	Influx *influx.Client
	Kafka  *messaging.KafkaClient
	Events *messaging.EventReporter

	logger *log.Logger
}

// NewManager connects every backend named in cfg. A backend that cannot be
// reached is logged and left out so the search itself still runs.
func NewManager(ctx context.Context, cfg config.SinkConfig, runID string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	m := &Manager{logger: logger.WithComponent("database")}

	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, &redis.Config{URL: cfg.RedisURL})
		if err != nil {
			m.logger.WithError(err).Warn("checkpoint store unavailable, resume disabled")
		} else {
			m.Redis = client
			m.logger.Info("connected to Redis checkpoint store")
		}
	}

	if cfg.InfluxURL != "" {
		client, err := influx.NewClient(ctx, &influx.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, logger)
		if err != nil {
			m.logger.WithError(err).Warn("InfluxDB unavailable, points disabled")
		} else {
			m.Influx = client
			m.logger.Info("connected to InfluxDB", "org", cfg.InfluxOrg, "bucket", cfg.InfluxBucket)
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		m.Kafka = messaging.NewKafkaClient(cfg.KafkaBrokers, logger)
		m.Events = messaging.NewEventReporter(m.Kafka, cfg.KafkaTopicPrefix, runID, messaging.DefaultQueueSize, logger)
		m.logger.Info("publishing events to Kafka", "brokers", cfg.KafkaBrokers, "prefix", cfg.KafkaTopicPrefix)
	}

	return m
}

// Reporters returns a reporter for every open telemetry sink.
func (m *Manager) Reporters() []mining.Reporter {
	var out []mining.Reporter
	if m.Influx != nil {
		out = append(out, m.Influx.Reporter())
	}
	if m.Events != nil {
		out = append(out, m.Events)
	}
	return out
}

// CheckpointStore returns the Redis store, or nil when it is not open.
func (m *Manager) CheckpointStore() mining.CheckpointStore {
	if m.Redis == nil {
		return nil
	}
	return m.Redis
}

// Health checks every open backend.
func (m *Manager) Health(ctx context.Context) error {
	if m.Redis != nil {
		if err := m.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis health check failed: %w", err)
		}
	}
	if m.Influx != nil {
		if err := m.Influx.Health(ctx); err != nil {
			return fmt.Errorf("InfluxDB health check failed: %w", err)
		}
	}
	return nil
}

// Close flushes queued telemetry and closes every backend.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error

	if m.Events != nil {
		if err := m.Events.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("event queue not drained: %w", err))
		}
		if dropped := m.Events.Dropped(); dropped > 0 {
			m.logger.Warn("telemetry events were dropped", "count", dropped)
		}
	}
	if m.Kafka != nil {
		if err := m.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close error: %w", err))
		}
	}
	if m.Influx != nil {
		m.Influx.Close()
	}
	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	return stderrors.Join(errs...)
}
