// Package influx writes genesis search telemetry to InfluxDB as time-series
// points: one per attempt, one per progress tick and one per result.
package influx

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/satoshiware/genesis/internal/mining"
	"github.com/satoshiware/genesis/pkg/errors"
	"github.com/satoshiware/genesis/pkg/log"
)

// Measurement names.
const (
	MeasurementAttempt  = "genesis_attempt"
	MeasurementProgress = "genesis_progress"
	MeasurementResult   = "genesis_result"
)

// Client wraps the InfluxDB non-blocking write API
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string
	org      string
	logger   *log.Logger
	done     chan struct{}
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client and checks the server is healthy.
// Write errors are reported asynchronously to logger.
func NewClient(ctx context.Context, cfg *Config, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(100).SetFlushInterval(1000))

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := checkHealth(healthCtx, client); err != nil {
		client.Close()
		return nil, err
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		org:      cfg.Org,
		logger:   logger.WithComponent("influx"),
		done:     make(chan struct{}),
	}
	go c.drainErrors()
	return c, nil
}

func checkHealth(ctx context.Context, client influxdb2.Client) error {
	health, err := client.Health(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeNetwork, "influx_health", "failed to check InfluxDB health")
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return errors.New(errors.ErrorTypeNetwork, "influx_health", "InfluxDB health check failed").
			WithContext("status", string(health.Status)).
			WithContext("message", msg)
	}
	return nil
}

func (c *Client) drainErrors() {
	errCh := c.writeAPI.Errors()
	for {
		select {
		case <-c.done:
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			c.logger.WithError(err).Warn("failed to write points", "bucket", c.bucket, "org", c.org)
		}
	}
}

// Close flushes pending points and closes the connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	close(c.done)
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	return checkHealth(ctx, c.client)
}

// Flush forces a write of all pending points
func (c *Client) Flush() {
	c.writeAPI.Flush()
}

// Reporter returns a mining.Reporter writing through this client.
func (c *Client) Reporter() *Reporter {
	return NewReporter(c.writeAPI)
}

// PointWriter queues a point for writing. api.WriteAPI satisfies it.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// Reporter turns search telemetry into points.
type Reporter struct {
	writer PointWriter
	now    func() time.Time
}

var _ mining.Reporter = (*Reporter)(nil)

// NewReporter creates a reporter writing to w.
func NewReporter(w PointWriter) *Reporter {
	return &Reporter{writer: w, now: time.Now}
}

func (r *Reporter) ReportAttempt(a mining.Attempt) {
	tags := map[string]string{}
	fields := map[string]any{
		"attempt":     int64(a.Number),
		"start_nonce": int64(a.StartNonce),
		"workers":     int64(a.Workers),
	}

	if g := a.Genesis; g != nil {
		tags["merkle_root"] = g.MerkleRoot.String()
		tags["bits"] = fmt.Sprintf("%08x", g.Params.Bits)
		fields["time"] = int64(g.Params.Time)
	}

	r.writer.WritePoint(write.NewPoint(MeasurementAttempt, tags, fields, r.now()))
}

func (r *Reporter) ReportProgress(p mining.Progress) {
	tags := map[string]string{
		"worker": strconv.Itoa(p.Worker),
	}

	fields := map[string]any{
		"nonce":    int64(p.Nonce),
		"hashrate": p.Hashrate,
		"elapsed":  p.Elapsed.Seconds(),
	}
	// line protocol has no encoding for Inf or NaN
	if !math.IsInf(p.EstimateHours, 0) && !math.IsNaN(p.EstimateHours) {
		fields["estimate_hours"] = p.EstimateHours
	}

	r.writer.WritePoint(write.NewPoint(MeasurementProgress, tags, fields, r.now()))
}

func (r *Reporter) ReportResult(o mining.Outcome) {
	tags := map[string]string{
		"found": strconv.FormatBool(o.Found),
	}

	fields := map[string]any{
		"attempt":  int64(o.Attempt),
		"hashes":   int64(o.Hashes),
		"duration": o.Duration.Seconds(),
	}
	if o.Found {
		fields["nonce"] = int64(o.Nonce)
		fields["hash"] = o.Hash.String()
	}

	r.writer.WritePoint(write.NewPoint(MeasurementResult, tags, fields, r.now()))
}
