package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshiware/genesis/internal/config"
)

func TestNewManager_NothingConfigured(t *testing.T) {
	m := NewManager(context.Background(), config.SinkConfig{}, "run", nil)

	assert.Nil(t, m.Redis)
	assert.Nil(t, m.Influx)
	assert.Nil(t, m.Kafka)
	assert.Empty(t, m.Reporters())
	assert.Nil(t, m.CheckpointStore(), "must be an untyped nil so the driver skips checkpoints")
	assert.NoError(t, m.Health(context.Background()))
	assert.NoError(t, m.Close(context.Background()))
}

func TestNewManager_UnreachableBackendsAreSkipped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m := NewManager(ctx, config.SinkConfig{
		RedisURL:  "redis://127.0.0.1:1/0",
		InfluxURL: "http://127.0.0.1:1",
		InfluxOrg: "genesis",
	}, "run", nil)

	assert.Nil(t, m.Redis)
	assert.Nil(t, m.Influx)
	assert.Nil(t, m.CheckpointStore())
	assert.NoError(t, m.Close(context.Background()))
}

func TestNewManager_KafkaIsLazy(t *testing.T) {
	m := NewManager(context.Background(), config.SinkConfig{
		KafkaBrokers:     []string{"127.0.0.1:1"},
		KafkaTopicPrefix: "genesis",
	}, "run", nil)

	require.NotNil(t, m.Kafka)
	require.NotNil(t, m.Events)
	assert.Len(t, m.Reporters(), 1)
	assert.NoError(t, m.Close(context.Background()))
}
