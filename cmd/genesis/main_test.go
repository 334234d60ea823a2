package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/satoshiware/genesis/internal/config"
	"github.com/satoshiware/genesis/pkg/errors"
)

// clearEnv keeps the developer's environment out of the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GENESIS_CONFIG", "GENESIS_INTERVAL", "GENESIS_TIME", "GENESIS_TIMESTAMP", "GENESIS_NONCE",
		"GENESIS_PUBKEY", "GENESIS_VALUE", "GENESIS_BITS", "GENESIS_WORKERS", "GENESIS_MAX_RETRIES",
		"GENESIS_RESUME", "METRICS_ADDR", "REDIS_URL", "INFLUX_URL", "INFLUX_TOKEN", "INFLUX_ORG",
		"INFLUX_BUCKET", "KAFKA_BROKERS", "KAFKA_TOPIC_PREFIX", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func mainNetBlockHex(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, chaincfg.MainNetParams.GenesisBlock.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes())
}

func TestRun_MainNetGenesis(t *testing.T) {
	clearEnv(t)
	var stdout, stderr bytes.Buffer

	err := newApp(&stdout, &stderr).Run([]string{
		"genesis", "-t", "1231006505", "-n", "2083236393", "--log-level", "error",
	})
	require.NoError(t, err, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "merkle hash: 4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b\n")
	assert.Contains(t, out, "Searching for genesis hash..\n")
	assert.Contains(t, out, "\nGenesis Hash Found!\nnonce: 2083236893\n")
	assert.Contains(t, out, `#define TIMESTAMP           "`+config.DefaultTimestamp+`"`)
	assert.Contains(t, out, "#define TIME                1231006505\n")
	assert.Contains(t, out, "#define NONCE               2083236893\n")
	assert.Contains(t, out, `#define MERKLEHASH          "0x4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"`)
	assert.Contains(t, out, `#define GENESISHASH         "0x000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"`)
	assert.True(t, strings.HasSuffix(out, "block: "+mainNetBlockHex(t)+"\n"))
}

func TestRun_ParallelWorkersFindTheSameBlock(t *testing.T) {
	clearEnv(t)
	var stdout, stderr bytes.Buffer

	// the first worker's range holds the known nonce near its start
	err := newApp(&stdout, &stderr).Run([]string{
		"genesis", "-t", "1231006505", "-n", "2083236000", "-w", "4", "--log-level", "error",
	})
	require.NoError(t, err, stderr.String())
	assert.Contains(t, stdout.String(), "#define NONCE               2083236893\n")
}

func TestRun_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bits not a number", []string{"-b", "0xzz"}},
		{"zero target", []string{"-b", "0"}},
		{"time overflows", []string{"-t", "4294967296"}},
		{"short timestamp", []string{"-z", "too short"}},
		{"bad pubkey", []string{"-p", "04abcd"}},
		{"no workers", []string{"-w", "0"}},
		{"zero interval", []string{"-i", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			var stdout, stderr bytes.Buffer
			err := newApp(&stdout, &stderr).Run(append([]string{"genesis"}, tt.args...))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "got %v", err)
			assert.NotContains(t, stdout.String(), "Searching for genesis hash")
		})
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENESIS_NONCE", "5")
	t.Setenv("GENESIS_WORKERS", "3")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	var got config.MiningConfig
	app := newApp(&bytes.Buffer{}, &bytes.Buffer{})
	app.Action = func(c *cli.Context) error {
		var err error
		got, err = loadConfig(c)
		return err
	}

	require.NoError(t, app.Run([]string{"genesis", "-n", "7", "-b", "0x207fffff", "--kafka-brokers", "c:9092", "--resume"}))

	assert.Equal(t, uint32(7), got.Nonce, "flag beats env")
	assert.Equal(t, 3, got.Workers, "env beats default")
	assert.Equal(t, uint32(0x207fffff), got.Bits)
	assert.Equal(t, []string{"c:9092"}, got.Sinks.KafkaBrokers)
	assert.True(t, got.Resume)
	assert.Equal(t, config.DefaultTimestamp, got.Timestamp)
	assert.Equal(t, uint32(1), got.Interval)
}
