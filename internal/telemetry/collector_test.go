package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aceteam-ai/ilocalserver/internal/logging"
)

// fakeSource returns fixed values; a nil pointer makes that field fail and a
// positive delay makes it hang until the context is done.
type fakeSource struct {
	temp    *float64
	memory  *MemoryStats
	battery *uint8
	delay   map[string]time.Duration
}

func (f *fakeSource) wait(ctx context.Context, field string) {
	if d := f.delay[field]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}
}

func (f *fakeSource) CPUTemperature(ctx context.Context) (float64, error) {
	f.wait(ctx, "cpu")
	if f.temp == nil {
		return 0, ErrUnavailable
	}
	return *f.temp, nil
}

func (f *fakeSource) Memory(ctx context.Context) (MemoryStats, error) {
	f.wait(ctx, "memory")
	if f.memory == nil {
		return MemoryStats{}, errors.New("meminfo unreadable")
	}
	return *f.memory, nil
}

func (f *fakeSource) BatteryPercent(ctx context.Context) (uint8, error) {
	f.wait(ctx, "battery")
	if f.battery == nil {
		return 0, ErrUnavailable
	}
	return *f.battery, nil
}

func ptr[T any](v T) *T { return &v }

func TestNewCollectorDefaults(t *testing.T) {
	c := NewCollector(&fakeSource{}, CollectorConfig{})
	if c.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", c.Timeout(), DefaultTimeout)
	}

	c = NewCollector(&fakeSource{}, CollectorConfig{Timeout: time.Second})
	if c.Timeout() != time.Second {
		t.Errorf("Timeout() = %v, want 1s", c.Timeout())
	}
}

func TestCollectAllAvailable(t *testing.T) {
	src := &fakeSource{
		temp:    ptr(42.5),
		memory:  &MemoryStats{UsedBytes: 1 << 30, TotalBytes: 4 << 30},
		battery: ptr(uint8(87)),
	}
	c := NewCollector(src, CollectorConfig{Logger: logging.Discard()})

	snap := c.Collect(context.Background())

	if snap.CPUTemperatureC == nil || *snap.CPUTemperatureC != 42.5 {
		t.Errorf("CPUTemperatureC = %v, want 42.5", snap.CPUTemperatureC)
	}
	if snap.Memory == nil || snap.Memory.TotalBytes != 4<<30 {
		t.Errorf("Memory = %+v, want total 4GiB", snap.Memory)
	}
	if snap.BatteryPercent == nil || *snap.BatteryPercent != 87 {
		t.Errorf("BatteryPercent = %v, want 87", snap.BatteryPercent)
	}
	if snap.CollectedAt.IsZero() {
		t.Error("CollectedAt should be set")
	}
}

func TestCollectFailuresAreIndependent(t *testing.T) {
	src := &fakeSource{
		memory: &MemoryStats{UsedBytes: 1, TotalBytes: 2},
	}
	c := NewCollector(src, CollectorConfig{Logger: logging.Discard()})

	snap := c.Collect(context.Background())

	if snap.CPUTemperatureC != nil {
		t.Errorf("CPUTemperatureC = %v, want nil", *snap.CPUTemperatureC)
	}
	if snap.BatteryPercent != nil {
		t.Errorf("BatteryPercent = %v, want nil", *snap.BatteryPercent)
	}
	if snap.Memory == nil {
		t.Fatal("Memory should survive other field failures")
	}
}

func TestCollectHungFieldTimesOut(t *testing.T) {
	src := &fakeSource{
		temp:    ptr(50.0),
		memory:  &MemoryStats{UsedBytes: 1, TotalBytes: 2},
		battery: ptr(uint8(10)),
		delay:   map[string]time.Duration{"cpu": time.Minute},
	}
	c := NewCollector(src, CollectorConfig{
		Timeout: 50 * time.Millisecond,
		Logger:  logging.Discard(),
	})

	start := time.Now()
	snap := c.Collect(context.Background())
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("Collect took %v, want bounded by timeout", elapsed)
	}
	if snap.CPUTemperatureC != nil {
		t.Error("hung CPU query should be reported unavailable")
	}
	if snap.Memory == nil || snap.BatteryPercent == nil {
		t.Error("memory and battery should render despite hung CPU query")
	}
}

func TestMemoryStatsUsedPercent(t *testing.T) {
	tests := []struct {
		name string
		m    MemoryStats
		want float64
	}{
		{name: "half", m: MemoryStats{UsedBytes: 2, TotalBytes: 4}, want: 50},
		{name: "zero total", m: MemoryStats{UsedBytes: 2}, want: 0},
		{name: "full", m: MemoryStats{UsedBytes: 8, TotalBytes: 8}, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.UsedPercent(); got != tt.want {
				t.Errorf("UsedPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}
