package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// One sample per monitor tick: small batches, slow flushes.
	defaultBatchSize      = 20
	defaultFlushIntervalS = 30
	libraryLogLevelErrors = 1
	msPerSecond           = 1000
)

// Client is the node's telemetry sink.
//
// Points are tagged node=<id> so nodes can share a bucket. Writes never
// block the monitor loop: they are queued by the library's batching write
// API, and failures surface through the SetOnError callback.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	open    atomic.Bool
	onError atomic.Pointer[func(error)]

	closeOnce sync.Once
	// drained closes once the write error channel has been emptied.
	drained chan struct{}
}

// Connect creates the client and pings the server.
//
// Parameters:
//   - ctx: bounds the ping together with a 10s ceiling
//   - cfg: the influxdb section of edge.yaml
//   - nodeID: value of the node tag; empty omits the tag
//
// Returns:
//   - *Client: ready for writes
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.InfluxDBConfig, nodeID string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg, nodeID))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		drained:  make(chan struct{}),
	}
	c.open.Store(true)

	// The error channel must be taken before the first write.
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

// writeOptions maps the config onto the library's batching options.
func writeOptions(cfg config.InfluxDBConfig, nodeID string) *influxdb2.Options {
	batch := defaultBatchSize
	if cfg.BatchSize > 0 {
		batch = cfg.BatchSize
	}
	flushS := defaultFlushIntervalS
	if cfg.FlushInterval > 0 {
		flushS = cfg.FlushInterval
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).                    // #nosec G115 -- positive
		SetFlushInterval(uint(flushS) * msPerSecond). // #nosec G115 -- positive
		SetLogLevel(libraryLogLevelErrors)
	if nodeID != "" {
		opts.AddDefaultTag("node", nodeID)
	}
	return opts
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ok, err := client.Ping(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("ping: %w", err)
	case !ok:
		return fmt.Errorf("ping: server not ready")
	}
	return nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	defer close(c.drained)
	for err := range errs {
		if fn := c.onError.Load(); fn != nil {
			(*fn)(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError installs the callback for asynchronous write failures. The
// error passed to it wraps ErrWriteFailed. nil removes the callback.
func (c *Client) SetOnError(fn func(err error)) {
	if fn == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&fn)
}

// IsConnected reports whether Close has not been called. It does not
// contact the server; HealthCheck does.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// HealthCheck pings the server.
//
// Returns:
//   - error: ErrNotConnected after Close, or the ping failure
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.client); err != nil {
		return fmt.Errorf("influxdb: health check: %w", err)
	}
	return nil
}

// Flush sends queued points now and waits for the write. No-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// Close flushes queued points, stops the client and waits until every
// pending write error has been delivered. Safe on a nil Client and safe to
// call more than once.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.open.Store(false)
		c.writeAPI.Flush()
		c.client.Close()
		<-c.drained
	})
	return nil
}
