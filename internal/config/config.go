// Package config provides configuration management for the genesis tools.
// Values come from built-in defaults, an optional TOML file, environment
// variables and finally command line flags, each layer overriding the last.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/satoshiware/genesis/internal/bitcoin"
	"github.com/satoshiware/genesis/pkg/errors"
)

const (
	// DefaultTimestamp is the coinbase message of Bitcoin's genesis block.
	DefaultTimestamp = "The Times 03/Jan/2009 Chancellor on brink of second bailout for banks"

	// DefaultPubKey is the output key of Bitcoin's genesis block.
	DefaultPubKey = "04678afdb0fe5548271967f1a67130b7105cd6a828e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7ba0b8d578a4c702b6bf11d5f"

	// DefaultValue is 50 coins in base units.
	DefaultValue int64 = 5000000000

	// DefaultBlockSpacing is the calculator's default time between blocks.
	DefaultBlockSpacing uint32 = 600
)

// ErrFileNotFound is returned when an explicitly named config file is missing.
var ErrFileNotFound = errors.New(errors.ErrorTypeValidation, "load_config", "config file not found")

// SinkConfig locates the optional telemetry sinks and the checkpoint store.
// An empty address disables the sink.
type SinkConfig struct {
	MetricsAddr string

	RedisURL string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	KafkaBrokers     []string
	KafkaTopicPrefix string
}

// Enabled reports whether any sink or store is configured.
func (s SinkConfig) Enabled() bool {
	return s.MetricsAddr != "" || s.RedisURL != "" || s.InfluxURL != "" || len(s.KafkaBrokers) > 0
}

// MiningConfig is the immutable input of one genesis search. It is passed by
// value; the driver derives each attempt's parameters from a copy.
type MiningConfig struct {
	// Interval is added to Time whenever the nonce space is exhausted.
	Interval  uint32
	Time      uint32
	Timestamp string
	// Nonce is the first nonce of the first attempt only.
	Nonce     uint32
	PubKeyHex string
	Value     int64
	Bits      uint32

	Workers int
	// MaxRetries caps time bumps; zero retries forever.
	MaxRetries uint64
	Resume     bool

	Sinks SinkConfig

	LogLevel  string
	LogFormat string
}

// DefaultMining returns the built-in defaults with the block time set to now.
func DefaultMining(now time.Time) MiningConfig {
	return MiningConfig{
		Interval:  1,
		Time:      uint32(now.Unix()),
		Timestamp: DefaultTimestamp,
		Nonce:     0,
		PubKeyHex: DefaultPubKey,
		Value:     DefaultValue,
		Bits:      bitcoin.MaxBits,
		Workers:   1,
		Sinks: SinkConfig{
			InfluxOrg:        "genesis",
			InfluxBucket:     "mining",
			KafkaTopicPrefix: "genesis",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadMining layers the TOML file at path (when non-empty) and the
// environment over the defaults. The result is validated.
func LoadMining(path string) (MiningConfig, error) {
	cfg := DefaultMining(time.Now())

	if path != "" {
		fc, ok, err := loadTOMLFile[fileConfig](path)
		if err != nil {
			return cfg, errors.Wrap(err, errors.ErrorTypeValidation, "load_config", "invalid config file")
		}
		if !ok {
			return cfg, ErrFileNotFound.Clone().WithContext("path", path)
		}
		if err := applyFileConfig(&cfg, fc); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every field that would otherwise fail deep inside a search.
func (c MiningConfig) Validate() error {
	if c.Interval == 0 {
		return invalid("interval", "interval must be at least 1 second")
	}
	if err := bitcoin.ValidateTimestamp(c.Timestamp); err != nil {
		return err
	}
	if _, err := bitcoin.DecodePubKey(c.PubKeyHex); err != nil {
		return err
	}
	if bitcoin.BitsToTarget(c.Bits).Sign() == 0 {
		return invalid("bits", "bits encode a zero target").WithContext("bits", fmt.Sprintf("0x%08x", c.Bits))
	}
	if c.Workers < 1 {
		return invalid("workers", "workers must be at least 1").WithContext("workers", c.Workers)
	}
	return nil
}

// GenesisParams returns the build parameters of the first attempt.
func (c MiningConfig) GenesisParams() bitcoin.Params {
	return bitcoin.Params{
		Timestamp: c.Timestamp,
		PubKeyHex: c.PubKeyHex,
		Value:     c.Value,
		Time:      c.Time,
		Bits:      c.Bits,
		Nonce:     c.Nonce,
	}
}

// CalculatorConfig holds the bits calculator inputs.
type CalculatorConfig struct {
	TimeBetweenBlocks uint32
	// Hashrate is the expected network rate in hashes per second.
	Hashrate float64
}

// DefaultCalculator returns the difficulty 1 inputs: ten minute blocks at
// 2^32/600 H/s.
func DefaultCalculator() CalculatorConfig {
	return CalculatorConfig{
		TimeBetweenBlocks: DefaultBlockSpacing,
		Hashrate:          math.Exp2(32) / float64(DefaultBlockSpacing),
	}
}

// Validate checks the calculator inputs.
func (c CalculatorConfig) Validate() error {
	if c.TimeBetweenBlocks == 0 {
		return invalid("time", "time between blocks must be positive")
	}
	if c.Hashrate <= 0 || math.IsNaN(c.Hashrate) || math.IsInf(c.Hashrate, 0) {
		return invalid("hashrate", "hashrate must be a positive number").WithContext("hashrate", c.Hashrate)
	}
	return nil
}

// ParseBits accepts a compact value as decimal or 0x-prefixed hex.
func ParseBits(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 10
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		s, base = rest, 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeValidation, "bits", "bits must be a 32 bit decimal or 0x hex value")
	}
	return uint32(v), nil
}

// ParseUint32 parses a decimal value that must fit 32 bits.
func ParseUint32(field, s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeValidation, field, "value must be an unsigned 32 bit integer")
	}
	return uint32(v), nil
}

func invalid(field, message string) *errors.ServiceError {
	return errors.New(errors.ErrorTypeValidation, field, message)
}

// Helper functions for environment variable parsing

func applyEnv(cfg *MiningConfig) error {
	var err error

	if cfg.Interval, err = getEnvUint32("GENESIS_INTERVAL", cfg.Interval); err != nil {
		return err
	}
	if cfg.Time, err = getEnvUint32("GENESIS_TIME", cfg.Time); err != nil {
		return err
	}
	if cfg.Nonce, err = getEnvUint32("GENESIS_NONCE", cfg.Nonce); err != nil {
		return err
	}
	if value := os.Getenv("GENESIS_BITS"); value != "" {
		if cfg.Bits, err = ParseBits(value); err != nil {
			return err
		}
	}
	if value := os.Getenv("GENESIS_VALUE"); value != "" {
		if cfg.Value, err = strconv.ParseInt(value, 10, 64); err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "GENESIS_VALUE", "value must be a signed 64 bit integer")
		}
	}
	if value := os.Getenv("GENESIS_MAX_RETRIES"); value != "" {
		if cfg.MaxRetries, err = strconv.ParseUint(value, 10, 64); err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "GENESIS_MAX_RETRIES", "max retries must be an unsigned integer")
		}
	}

	cfg.Timestamp = getEnv("GENESIS_TIMESTAMP", cfg.Timestamp)
	cfg.PubKeyHex = getEnv("GENESIS_PUBKEY", cfg.PubKeyHex)
	cfg.Workers = getEnvInt("GENESIS_WORKERS", cfg.Workers)
	cfg.Resume = getEnvBool("GENESIS_RESUME", cfg.Resume)

	cfg.Sinks.MetricsAddr = getEnv("METRICS_ADDR", cfg.Sinks.MetricsAddr)
	cfg.Sinks.RedisURL = getEnv("REDIS_URL", cfg.Sinks.RedisURL)
	cfg.Sinks.InfluxURL = getEnv("INFLUX_URL", cfg.Sinks.InfluxURL)
	cfg.Sinks.InfluxToken = getEnv("INFLUX_TOKEN", cfg.Sinks.InfluxToken)
	cfg.Sinks.InfluxOrg = getEnv("INFLUX_ORG", cfg.Sinks.InfluxOrg)
	cfg.Sinks.InfluxBucket = getEnv("INFLUX_BUCKET", cfg.Sinks.InfluxBucket)
	cfg.Sinks.KafkaBrokers = getEnvSlice("KAFKA_BROKERS", cfg.Sinks.KafkaBrokers)
	cfg.Sinks.KafkaTopicPrefix = getEnv("KAFKA_TOPIC_PREFIX", cfg.Sinks.KafkaTopicPrefix)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvUint32 fails instead of falling back: a typo in a block parameter
// must not silently mine the default.
func getEnvUint32(key string, defaultValue uint32) (uint32, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return ParseUint32(key, value)
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
