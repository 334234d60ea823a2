package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/satoshiware/genesis/internal/bitcoin"
	"github.com/satoshiware/genesis/pkg/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GENESIS_INTERVAL", "GENESIS_TIME", "GENESIS_TIMESTAMP", "GENESIS_NONCE",
		"GENESIS_PUBKEY", "GENESIS_VALUE", "GENESIS_BITS", "GENESIS_WORKERS",
		"GENESIS_MAX_RETRIES", "GENESIS_RESUME", "METRICS_ADDR", "REDIS_URL",
		"INFLUX_URL", "INFLUX_TOKEN", "INFLUX_ORG", "INFLUX_BUCKET",
		"KAFKA_BROKERS", "KAFKA_TOPIC_PREFIX", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultMining(t *testing.T) {
	now := time.Unix(1231006505, 0)
	cfg := DefaultMining(now)

	if cfg.Interval != 1 || cfg.Nonce != 0 || cfg.Value != 5000000000 || cfg.Bits != 0x1d00ffff {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Time != 1231006505 {
		t.Errorf("Time = %d, want 1231006505", cfg.Time)
	}
	if cfg.Workers != 1 || cfg.MaxRetries != 0 || cfg.Resume {
		t.Errorf("unexpected search defaults: %+v", cfg)
	}
	if cfg.Sinks.Enabled() {
		t.Error("no sink should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMining(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg MiningConfig)
		wantErr bool
	}{
		{
			name:    "default config",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg MiningConfig) {
				if cfg.Timestamp != DefaultTimestamp {
					t.Errorf("Timestamp = %q", cfg.Timestamp)
				}
			},
		},
		{
			name: "environment overrides",
			envVars: map[string]string{
				"GENESIS_INTERVAL":    "30",
				"GENESIS_TIME":        "1700000000",
				"GENESIS_NONCE":       "42",
				"GENESIS_BITS":        "0x1e0ffff0",
				"GENESIS_VALUE":       "-1",
				"GENESIS_WORKERS":     "4",
				"GENESIS_MAX_RETRIES": "3",
				"GENESIS_RESUME":      "true",
				"KAFKA_BROKERS":       "a:9092, b:9092",
			},
			check: func(t *testing.T, cfg MiningConfig) {
				if cfg.Interval != 30 || cfg.Time != 1700000000 || cfg.Nonce != 42 {
					t.Errorf("unexpected block values: %+v", cfg)
				}
				if cfg.Bits != 0x1e0ffff0 || cfg.Value != -1 {
					t.Errorf("Bits = 0x%08x Value = %d", cfg.Bits, cfg.Value)
				}
				if cfg.Workers != 4 || cfg.MaxRetries != 3 || !cfg.Resume {
					t.Errorf("unexpected search values: %+v", cfg)
				}
				if len(cfg.Sinks.KafkaBrokers) != 2 || cfg.Sinks.KafkaBrokers[1] != "b:9092" {
					t.Errorf("KafkaBrokers = %v", cfg.Sinks.KafkaBrokers)
				}
			},
		},
		{
			name:    "nonce overflow",
			envVars: map[string]string{"GENESIS_NONCE": "4294967296"},
			wantErr: true,
		},
		{
			name:    "bits garbage",
			envVars: map[string]string{"GENESIS_BITS": "0xzz"},
			wantErr: true,
		},
		{
			name:    "short timestamp",
			envVars: map[string]string{"GENESIS_TIMESTAMP": "too short"},
			wantErr: true,
		},
		{
			name:    "zero workers",
			envVars: map[string]string{"GENESIS_WORKERS": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := LoadMining("")
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadMining() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.IsType(err, errors.ErrorTypeValidation) {
					t.Errorf("LoadMining() error type = %v, want validation", err)
				}
				return
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadMining_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
[genesis]
interval = 60
time = 1600000000
timestamp = "Genesis file timestamp for tests"
bits = "0x1f00ffff"
value = 2500000000

[search]
workers = 2
max_retries = 10

[sinks]
redis_url = "redis://localhost:6379/1"
kafka_brokers = ["k1:9092"]

[logging]
level = "debug"
`)

	t.Setenv("GENESIS_TIME", "1600000100")

	cfg, err := LoadMining(path)
	if err != nil {
		t.Fatalf("LoadMining() unexpected error: %v", err)
	}

	if cfg.Interval != 60 || cfg.Bits != 0x1f00ffff || cfg.Value != 2500000000 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Time != 1600000100 {
		t.Errorf("Time = %d, environment should win over the file", cfg.Time)
	}
	if cfg.Timestamp != "Genesis file timestamp for tests" {
		t.Errorf("Timestamp = %q", cfg.Timestamp)
	}
	if cfg.Workers != 2 || cfg.MaxRetries != 10 {
		t.Errorf("search values not applied: %+v", cfg)
	}
	if cfg.Sinks.RedisURL != "redis://localhost:6379/1" || len(cfg.Sinks.KafkaBrokers) != 1 {
		t.Errorf("sinks not applied: %+v", cfg.Sinks)
	}
	if cfg.Sinks.InfluxBucket != "mining" {
		t.Errorf("unset file keys must keep defaults, InfluxBucket = %q", cfg.Sinks.InfluxBucket)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadMining_FileErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadMining(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("missing file error = %v, want ErrFileNotFound", err)
	}

	_, err = LoadMining(writeFile(t, "[genesis\ninterval = 1"))
	if err == nil {
		t.Error("malformed file should fail")
	}

	_, err = LoadMining(writeFile(t, "[genesis]\nnonce = -1\n"))
	if !errors.IsType(err, errors.ErrorTypeValidation) {
		t.Errorf("negative nonce error = %v, want validation error", err)
	}

	_, err = LoadMining(writeFile(t, "[search]\nmax_retries = -2\n"))
	if err == nil {
		t.Error("negative max_retries should fail")
	}
}

func TestMiningConfigValidation(t *testing.T) {
	valid := DefaultMining(time.Unix(1231006505, 0))

	tests := []struct {
		name   string
		mutate func(*MiningConfig)
	}{
		{"zero interval", func(c *MiningConfig) { c.Interval = 0 }},
		{"long timestamp", func(c *MiningConfig) { c.Timestamp = string(make([]byte, 92)) }},
		{"bad pubkey", func(c *MiningConfig) { c.PubKeyHex = "04" }},
		{"zero target", func(c *MiningConfig) { c.Bits = 0x01003456 }},
		{"no workers", func(c *MiningConfig) { c.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestGenesisParams(t *testing.T) {
	cfg := DefaultMining(time.Unix(1231006505, 0))
	cfg.Nonce = 2083236893

	p := cfg.GenesisParams()
	g, err := bitcoin.NewGenesisService(nil).Build(p)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if g.Header.Hash().String() != "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f" {
		t.Errorf("default config does not reproduce the Bitcoin genesis block: %s", g.Header.Hash())
	}
}

func TestParseBits(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0x1d00ffff", 0x1d00ffff, false},
		{"0X1D00FFFF", 0x1d00ffff, false},
		{"486604799", 0x1d00ffff, false},
		{" 0x207fffff ", 0x207fffff, false},
		{"0x100000000", 0, true},
		{"-1", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseBits(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBits(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBits(%q) = 0x%08x, want 0x%08x", tt.in, got, tt.want)
		}
	}
}

func TestCalculatorConfig(t *testing.T) {
	cfg := DefaultCalculator()
	if cfg.TimeBetweenBlocks != 600 || cfg.Hashrate != math.Exp2(32)/600 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default calculator config should validate: %v", err)
	}

	for _, bad := range []CalculatorConfig{
		{TimeBetweenBlocks: 0, Hashrate: 1},
		{TimeBetweenBlocks: 600, Hashrate: 0},
		{TimeBetweenBlocks: 600, Hashrate: math.Inf(1)},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("Validate(%+v) should fail", bad)
		}
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "test_value")
	if got := getEnv("TEST_STRING", "default"); got != "test_value" {
		t.Errorf("getEnv() = %v, want %v", got, "test_value")
	}
	if got := getEnv("NONEXISTENT", "default"); got != "default" {
		t.Errorf("getEnv() = %v, want %v", got, "default")
	}

	t.Setenv("TEST_INT", "42")
	if got := getEnvInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvInt() = %v, want %v", got, 42)
	}

	t.Setenv("TEST_BOOL", "yes")
	if got := getEnvBool("TEST_BOOL", true); !got {
		t.Error("getEnvBool() should fall back on unparsable values")
	}

	t.Setenv("TEST_UINT32", "nope")
	if _, err := getEnvUint32("TEST_UINT32", 1); err == nil {
		t.Error("getEnvUint32() should reject unparsable values")
	}

	t.Setenv("TEST_SLICE", "a,,b ,")
	if got := getEnvSlice("TEST_SLICE", nil); len(got) != 2 || got[1] != "b" {
		t.Errorf("getEnvSlice() = %v", got)
	}
}
