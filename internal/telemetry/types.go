// Package telemetry reads live device metrics for the diagnostic page.
//
// A Source answers three independent queries (CPU temperature, memory,
// battery). The Collector runs them concurrently with a per-field timeout so
// a slow or failing query only blanks its own field.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that a metric cannot be read on this device.
var ErrUnavailable = errors.New("telemetry unavailable")

// Source supplies current device metrics. Implementations must be safe for
// concurrent use; each call may fail independently.
type Source interface {
	CPUTemperature(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (MemoryStats, error)
	BatteryPercent(ctx context.Context) (uint8, error)
}

// MemoryStats is a point-in-time memory reading.
type MemoryStats struct {
	UsedBytes  uint64 `json:"used_bytes"`
	TotalBytes uint64 `json:"total_bytes"`
}

// UsedPercent returns used/total as a percentage, or 0 when total is 0.
func (m MemoryStats) UsedPercent() float64 {
	if m.TotalBytes == 0 {
		return 0
	}
	return float64(m.UsedBytes) / float64(m.TotalBytes) * 100
}

// Snapshot holds one collection pass. A nil field means the metric was
// unavailable for this pass.
type Snapshot struct {
	CPUTemperatureC *float64     `json:"cpu_temperature_c,omitempty"`
	Memory          *MemoryStats `json:"memory,omitempty"`
	BatteryPercent  *uint8       `json:"battery_percent,omitempty"`
	CollectedAt     time.Time    `json:"collected_at"`
}
