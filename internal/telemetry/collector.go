package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/aceteam-ai/ilocalserver/internal/logging"
)

// DefaultTimeout bounds each field query.
const DefaultTimeout = 2 * time.Second

// Collector gathers a Snapshot from a Source.
type Collector struct {
	source  Source
	timeout time.Duration
	logger  *logging.Logger
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Timeout time.Duration // Per-field query bound (default: 2s)
	Logger  *logging.Logger
}

// NewCollector creates a collector over source.
func NewCollector(source Source, cfg CollectorConfig) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("telemetry")
	}
	return &Collector{
		source:  source,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// Timeout returns the per-field query bound.
func (c *Collector) Timeout() time.Duration {
	return c.timeout
}

// Collect queries every field concurrently and returns whatever answered in
// time. It never fails: unavailable fields are left nil.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	snap := Snapshot{CollectedAt: time.Now()}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if v, ok := query(ctx, c, "cpu temperature", c.source.CPUTemperature); ok {
			snap.CPUTemperatureC = &v
		}
	}()
	go func() {
		defer wg.Done()
		if v, ok := query(ctx, c, "memory", c.source.Memory); ok {
			snap.Memory = &v
		}
	}()
	go func() {
		defer wg.Done()
		if v, ok := query(ctx, c, "battery", c.source.BatteryPercent); ok {
			snap.BatteryPercent = &v
		}
	}()

	wg.Wait()
	return snap
}

type result[T any] struct {
	value T
	err   error
}

// query runs fn on its own goroutine so a source that ignores its context
// still cannot hold the caller past the timeout.
func query[T any](ctx context.Context, c *Collector, field string, fn func(context.Context) (T, error)) (T, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{value: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			c.logger.Debugf("%s unavailable: %v", field, r.err)
			return zero, false
		}
		return r.value, true
	case <-ctx.Done():
		c.logger.Printf("%s query timed out after %s", field, c.timeout)
		return zero, false
	}
}
