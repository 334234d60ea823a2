package config

import (
	stderrors "errors"
	"fmt"
	"math"
	"os"

	"github.com/pelletier/go-toml"
)

// fileConfig mirrors the TOML layout. Pointers distinguish an absent key
// from an explicit zero.
type fileConfig struct {
	Genesis genesisFileConfig `toml:"genesis"`
	Search  searchFileConfig  `toml:"search"`
	Sinks   sinksFileConfig   `toml:"sinks"`
	Logging loggingFileConfig `toml:"logging"`
}

type genesisFileConfig struct {
	Interval  *int64  `toml:"interval"`
	Time      *int64  `toml:"time"`
	Timestamp *string `toml:"timestamp"`
	Nonce     *int64  `toml:"nonce"`
	PubKey    *string `toml:"pubkey"`
	Value     *int64  `toml:"value"`
	// Bits is a string so files can keep the familiar 0x1d00ffff spelling
	// or a plain decimal.
	Bits *string `toml:"bits"`
}

type searchFileConfig struct {
	Workers    *int64 `toml:"workers"`
	MaxRetries *int64 `toml:"max_retries"`
	Resume     *bool  `toml:"resume"`
}

type sinksFileConfig struct {
	MetricsAddr      string   `toml:"metrics_addr"`
	RedisURL         string   `toml:"redis_url"`
	InfluxURL        string   `toml:"influx_url"`
	InfluxToken      string   `toml:"influx_token"`
	InfluxOrg        string   `toml:"influx_org"`
	InfluxBucket     string   `toml:"influx_bucket"`
	KafkaBrokers     []string `toml:"kafka_brokers"`
	KafkaTopicPrefix string   `toml:"kafka_topic_prefix"`
}

type loggingFileConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func loadTOMLFile[T any](path string) (*T, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg T
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, true, nil
}

func applyFileConfig(cfg *MiningConfig, fc *fileConfig) error {
	g := fc.Genesis

	if g.Interval != nil {
		v, err := uint32Field("genesis.interval", *g.Interval)
		if err != nil {
			return err
		}
		cfg.Interval = v
	}
	if g.Time != nil {
		v, err := uint32Field("genesis.time", *g.Time)
		if err != nil {
			return err
		}
		cfg.Time = v
	}
	if g.Nonce != nil {
		v, err := uint32Field("genesis.nonce", *g.Nonce)
		if err != nil {
			return err
		}
		cfg.Nonce = v
	}
	if g.Bits != nil {
		v, err := ParseBits(*g.Bits)
		if err != nil {
			return err
		}
		cfg.Bits = v
	}
	if g.Timestamp != nil {
		cfg.Timestamp = *g.Timestamp
	}
	if g.PubKey != nil {
		cfg.PubKeyHex = *g.PubKey
	}
	if g.Value != nil {
		cfg.Value = *g.Value
	}

	s := fc.Search
	if s.Workers != nil {
		cfg.Workers = int(*s.Workers)
	}
	if s.MaxRetries != nil {
		if *s.MaxRetries < 0 {
			return invalid("search.max_retries", "max retries must not be negative")
		}
		cfg.MaxRetries = uint64(*s.MaxRetries)
	}
	if s.Resume != nil {
		cfg.Resume = *s.Resume
	}

	applyString(&cfg.Sinks.MetricsAddr, fc.Sinks.MetricsAddr)
	applyString(&cfg.Sinks.RedisURL, fc.Sinks.RedisURL)
	applyString(&cfg.Sinks.InfluxURL, fc.Sinks.InfluxURL)
	applyString(&cfg.Sinks.InfluxToken, fc.Sinks.InfluxToken)
	applyString(&cfg.Sinks.InfluxOrg, fc.Sinks.InfluxOrg)
	applyString(&cfg.Sinks.InfluxBucket, fc.Sinks.InfluxBucket)
	applyString(&cfg.Sinks.KafkaTopicPrefix, fc.Sinks.KafkaTopicPrefix)
	if len(fc.Sinks.KafkaBrokers) > 0 {
		cfg.Sinks.KafkaBrokers = fc.Sinks.KafkaBrokers
	}

	applyString(&cfg.LogLevel, fc.Logging.Level)
	applyString(&cfg.LogFormat, fc.Logging.Format)
	return nil
}

func applyString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func uint32Field(field string, v int64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, invalid(field, "value must fit an unsigned 32 bit integer").WithContext("value", v)
	}
	return uint32(v), nil
}
