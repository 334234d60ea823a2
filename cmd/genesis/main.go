// Package main implements the genesis command. It builds a genesis block from
// a coinbase message, an output public key and a compact target, then searches
// for a nonce whose header hash meets the target. Whenever the nonce space is
// exhausted the block time is advanced and the search starts over.
//
// On success it prints the constants a node's chain parameters need and the
// serialized block.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/satoshiware/genesis/internal/bitcoin"
	"github.com/satoshiware/genesis/internal/config"
	"github.com/satoshiware/genesis/internal/database"
	"github.com/satoshiware/genesis/internal/metrics"
	"github.com/satoshiware/genesis/internal/mining"
	"github.com/satoshiware/genesis/pkg/jsonx"
	"github.com/satoshiware/genesis/pkg/log"
)

// version is set with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "genesis: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:    "genesis",
		Usage:   "search for a genesis block hash below a target",
		Version: version,
		// -v is the coinbase value
		HideVersion: true,
		Writer:      stdout,
		ErrWriter:   stderr,
		Flags:       flags(),
		Action: func(c *cli.Context) error {
			return run(c, stdout, stderr)
		},
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML config file (env GENESIS_CONFIG)", EnvVars: []string{"GENESIS_CONFIG"}},
		&cli.StringFlag{Name: "interval", Aliases: []string{"i"}, Usage: "seconds added to the time after each exhausted nonce space (env GENESIS_INTERVAL)", Value: "1"},
		&cli.StringFlag{Name: "time", Aliases: []string{"t"}, Usage: "block time in unix seconds (env GENESIS_TIME)", DefaultText: "now"},
		&cli.StringFlag{Name: "timestamp", Aliases: []string{"z"}, Usage: "coinbase message, 16 to 91 bytes (env GENESIS_TIMESTAMP)", Value: config.DefaultTimestamp},
		&cli.StringFlag{Name: "nonce", Aliases: []string{"n"}, Usage: "first nonce to try (env GENESIS_NONCE)", Value: "0"},
		&cli.StringFlag{Name: "pubkey", Aliases: []string{"p"}, Usage: "uncompressed output public key in hex (env GENESIS_PUBKEY)", Value: config.DefaultPubKey},
		&cli.Int64Flag{Name: "value", Aliases: []string{"v"}, Usage: "coinbase value in base units (env GENESIS_VALUE)", Value: config.DefaultValue},
		&cli.StringFlag{Name: "bits", Aliases: []string{"b"}, Usage: "compact target, decimal or 0x hex (env GENESIS_BITS)", Value: fmt.Sprintf("0x%08x", bitcoin.MaxBits)},
		&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "parallel search goroutines (env GENESIS_WORKERS)", Value: 1},
		&cli.Uint64Flag{Name: "max-retries", Usage: "stop after this many time bumps, 0 for no limit (env GENESIS_MAX_RETRIES)"},
		&cli.BoolFlag{Name: "resume", Usage: "continue from the Redis checkpoint (env GENESIS_RESUME)"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address (env METRICS_ADDR)"},
		&cli.StringFlag{Name: "redis-url", Usage: "Redis URL for checkpoints (env REDIS_URL)"},
		&cli.StringFlag{Name: "influx-url", Usage: "InfluxDB URL for telemetry points (env INFLUX_URL)"},
		&cli.StringFlag{Name: "influx-token", Usage: "InfluxDB token (env INFLUX_TOKEN)"},
		&cli.StringFlag{Name: "influx-org", Usage: "InfluxDB organization (env INFLUX_ORG)"},
		&cli.StringFlag{Name: "influx-bucket", Usage: "InfluxDB bucket (env INFLUX_BUCKET)"},
		&cli.StringSliceFlag{Name: "kafka-brokers", Usage: "Kafka brokers for telemetry events (env KAFKA_BROKERS)"},
		&cli.StringFlag{Name: "kafka-topic-prefix", Usage: "Kafka topic prefix (env KAFKA_TOPIC_PREFIX)"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (env LOG_LEVEL)"},
		&cli.StringFlag{Name: "log-format", Usage: "text or json (env LOG_FORMAT)"},
	}
}

// loadConfig layers the flags the user actually set over file and env.
func loadConfig(c *cli.Context) (config.MiningConfig, error) {
	cfg, err := config.LoadMining(c.String("config"))
	if err != nil {
		return cfg, err
	}

	uint32Flags := []struct {
		name string
		dst  *uint32
	}{
		{"interval", &cfg.Interval},
		{"time", &cfg.Time},
		{"nonce", &cfg.Nonce},
	}
	for _, f := range uint32Flags {
		if !c.IsSet(f.name) {
			continue
		}
		if *f.dst, err = config.ParseUint32(f.name, c.String(f.name)); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("bits") {
		if cfg.Bits, err = config.ParseBits(c.String("bits")); err != nil {
			return cfg, err
		}
	}

	stringFlags := map[string]*string{
		"timestamp":          &cfg.Timestamp,
		"pubkey":             &cfg.PubKeyHex,
		"metrics-addr":       &cfg.Sinks.MetricsAddr,
		"redis-url":          &cfg.Sinks.RedisURL,
		"influx-url":         &cfg.Sinks.InfluxURL,
		"influx-token":       &cfg.Sinks.InfluxToken,
		"influx-org":         &cfg.Sinks.InfluxOrg,
		"influx-bucket":      &cfg.Sinks.InfluxBucket,
		"kafka-topic-prefix": &cfg.Sinks.KafkaTopicPrefix,
		"log-level":          &cfg.LogLevel,
		"log-format":         &cfg.LogFormat,
	}
	for name, dst := range stringFlags {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}

	if c.IsSet("value") {
		cfg.Value = c.Int64("value")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("max-retries") {
		cfg.MaxRetries = c.Uint64("max-retries")
	}
	if c.IsSet("resume") {
		cfg.Resume = c.Bool("resume")
	}
	if c.IsSet("kafka-brokers") {
		cfg.Sinks.KafkaBrokers = c.StringSlice("kafka-brokers")
	}

	return cfg, cfg.Validate()
}

func run(c *cli.Context, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := fmt.Sprintf("%d-%d", time.Now().Unix(), os.Getpid())
	ctx = context.WithValue(ctx, log.RunIDKey, runID)

	logger := log.NewWithWriter(stderr, "genesis", version, cfg.LogLevel, cfg.LogFormat).WithContext(ctx)
	logger.Info("starting genesis search",
		"time", cfg.Time,
		"bits", fmt.Sprintf("0x%08x", cfg.Bits),
		"nonce", cfg.Nonce,
		"workers", cfg.Workers,
		"hash_impl", bitcoin.HashImplementationName(),
		"json_impl", jsonx.Implementation(),
	)

	mgr := database.NewManager(ctx, cfg.Sinks, runID, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := mgr.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("failed to close backends")
		}
	}()

	reporters := []mining.Reporter{
		mining.NewConsoleReporter(stdout),
		mining.NewLogReporter(logger),
	}
	reporters = append(reporters, mgr.Reporters()...)

	if cfg.Sinks.MetricsAddr != "" {
		prom, stopMetrics, err := serveMetrics(ctx, cfg.Sinks.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
		reporters = append(reporters, prom)
	}

	reporter := mining.NewMultiReporter(reporters...)
	searcher := mining.NewParallelSearcher(cfg.Workers, reporter, logger)
	driver := mining.NewDriver(cfg, bitcoin.NewGenesisService(nil), searcher, reporter, mgr.CheckpointStore(), logger)

	outcome, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	return writeChainParams(stdout, outcome)
}

// serveMetrics starts the /metrics endpoint. The returned func stops the
// server and waits for it.
func serveMetrics(ctx context.Context, addr string, logger *log.Logger) (*metrics.PrometheusReporter, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := metrics.NewPrometheusReporter(reg)

	srv, err := metrics.Listen(addr, reg, logger)
	if err != nil {
		return nil, nil, err
	}

	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(serveCtx); err != nil {
			logger.WithError(err).Warn("metrics server stopped")
		}
	}()

	return prom, func() {
		cancel()
		<-done
	}, nil
}

// writeChainParams prints the solved block as chain parameter defines followed
// by the raw block.
func writeChainParams(w io.Writer, o *mining.Outcome) error {
	g := o.Genesis
	blockHex, err := g.BlockHex(o.Nonce)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "\n"+
		"#define TIMESTAMP           %q\n"+
		"#define TIME                %d\n"+
		"#define NONCE               %d\n"+
		"\n"+
		"#define MERKLEHASH          \"0x%s\"\n"+
		"#define GENESISHASH         \"0x%s\"\n"+
		"\n"+
		"block: %s\n",
		g.Params.Timestamp,
		g.Params.Time,
		o.Nonce,
		g.MerkleRoot.String(),
		o.Hash.String(),
		blockHex,
	)
	return err
}
