// Package redis stores search checkpoints in Redis so an interrupted genesis
// search can resume where it stopped.
package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/satoshiware/genesis/internal/mining"
	"github.com/satoshiware/genesis/pkg/circuit"
	"github.com/satoshiware/genesis/pkg/errors"
	"github.com/satoshiware/genesis/pkg/jsonx"
	"github.com/satoshiware/genesis/pkg/retry"
)

// DefaultKeyPrefix namespaces checkpoint keys.
const DefaultKeyPrefix = "genesis:checkpoint"

// Client wraps Redis operations for checkpoints
type Client struct {
	rdb            *redis.Client
	prefix         string
	ttl            time.Duration
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

var _ mining.CheckpointStore = (*Client)(nil)

// Config holds Redis connection configuration
type Config struct {
	// URL is a redis:// or rediss:// URL, e.g. redis://:pass@localhost:6379/0.
	URL          string
	KeyPrefix    string
	TTL          time.Duration // 0 keeps checkpoints forever
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient creates a new Redis client and pings it.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "redis_config", "invalid Redis URL")
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "redis_connect", "failed to ping Redis").
			WithContext("addr", opts.Addr)
	}

	return newClient(rdb, cfg), nil
}

func newClient(rdb *redis.Client, cfg *Config) *Client {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Client{
		rdb:    rdb,
		prefix: prefix,
		ttl:    cfg.TTL,
		circuitBreaker: circuit.New(&circuit.Config{
			MaxFailures:     3,
			SuccessRequired: 1,
			Timeout:         30 * time.Second,
			ResetTimeout:    60 * time.Second,
		}),
		retryConfig: retry.StorageConfig(),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key returns the checkpoint key for a merkle root and compact target.
func (c *Client) Key(merkleRoot string, bits uint32) string {
	return fmt.Sprintf("%s:%s:%08x", c.prefix, strings.ToLower(merkleRoot), bits)
}

// SaveCheckpoint writes cp, replacing any earlier checkpoint for the same
// merkle root and bits.
func (c *Client) SaveCheckpoint(ctx context.Context, cp mining.Checkpoint) error {
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}
	key := c.Key(cp.MerkleRoot, cp.Bits)

	return c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeStorage, "save_checkpoint",
					"failed to write checkpoint").
					WithContext("key", key)
			}
			return nil
		})
	})
}

// LoadCheckpoint returns the stored checkpoint, or nil when there is none.
func (c *Client) LoadCheckpoint(ctx context.Context, merkleRoot string, bits uint32) (*mining.Checkpoint, error) {
	key := c.Key(merkleRoot, bits)

	data, err := circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() ([]byte, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() ([]byte, error) {
			data, err := c.rdb.Get(ctx, key).Bytes()
			if stderrors.Is(err, redis.Nil) {
				return nil, nil
			}
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeStorage, "load_checkpoint",
					"failed to read checkpoint").
					WithContext("key", key)
			}
			return data, nil
		})
	})
	if err != nil || data == nil {
		return nil, err
	}

	return decodeCheckpoint(key, data)
}

// DeleteCheckpoint removes the checkpoint for a merkle root and bits.
func (c *Client) DeleteCheckpoint(ctx context.Context, merkleRoot string, bits uint32) error {
	key := c.Key(merkleRoot, bits)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "delete_checkpoint", "failed to delete checkpoint").
			WithContext("key", key)
	}
	return nil
}

func encodeCheckpoint(cp mining.Checkpoint) ([]byte, error) {
	data, err := jsonx.Marshal(cp)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "save_checkpoint", "failed to encode checkpoint")
	}
	return data, nil
}

func decodeCheckpoint(key string, data []byte) (*mining.Checkpoint, error) {
	var cp mining.Checkpoint
	if err := jsonx.Unmarshal(data, &cp); err != nil {
		e := errors.Wrap(err, errors.ErrorTypeValidation, "load_checkpoint", "corrupt checkpoint").
			WithContext("key", key)
		e.Retryable = false
		return nil, e
	}
	return &cp, nil
}
