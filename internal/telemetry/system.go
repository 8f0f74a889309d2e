package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/singleflight"
)

// Default sysfs locations.
const (
	DefaultThermalZone    = "/sys/class/thermal/thermal_zone0/temp"
	DefaultPowerSupplyDir = "/sys/class/power_supply"
)

// sharedQueryTimeout bounds a coalesced query. It runs detached from the
// caller that started it, so it needs its own limit.
const sharedQueryTimeout = 5 * time.Second

// cpuSensorKeys are substrings of gopsutil sensor keys that identify a CPU
// package or core sensor, in preference order.
var cpuSensorKeys = []string{"coretemp", "k10temp", "cpu", "package", "soc"}

// SystemSource reads metrics from the local machine: sysfs for temperature
// and battery, gopsutil for memory and as a temperature fallback.
type SystemSource struct {
	thermalZone    string
	powerSupplyDir string

	// group coalesces concurrent identical queries. Results are not kept.
	group singleflight.Group
}

// SystemSourceConfig holds the sysfs paths used by SystemSource.
type SystemSourceConfig struct {
	ThermalZone    string // Millidegree file (default: thermal_zone0)
	PowerSupplyDir string // Directory holding BAT* entries
}

// NewSystemSource creates a source for the local machine.
func NewSystemSource(cfg SystemSourceConfig) *SystemSource {
	if cfg.ThermalZone == "" {
		cfg.ThermalZone = DefaultThermalZone
	}
	if cfg.PowerSupplyDir == "" {
		cfg.PowerSupplyDir = DefaultPowerSupplyDir
	}
	return &SystemSource{
		thermalZone:    cfg.ThermalZone,
		powerSupplyDir: cfg.PowerSupplyDir,
	}
}

// CPUTemperature returns the CPU temperature in degrees Celsius.
func (s *SystemSource) CPUTemperature(ctx context.Context) (float64, error) {
	v, err := s.do(ctx, "cpu", func(ctx context.Context) (any, error) {
		if temp, err := readThermalZone(s.thermalZone); err == nil {
			return temp, nil
		}
		return sensorTemperature(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Memory returns used and total physical memory. Used is total minus
// available, which counts reclaimable cache as free.
func (s *SystemSource) Memory(ctx context.Context) (MemoryStats, error) {
	v, err := s.do(ctx, "memory", func(ctx context.Context) (any, error) {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("read virtual memory: %w", err)
		}
		if vm.Total == 0 {
			return nil, ErrUnavailable
		}
		used := vm.Total - vm.Available
		if vm.Available > vm.Total {
			used = vm.Used
		}
		return MemoryStats{UsedBytes: used, TotalBytes: vm.Total}, nil
	})
	if err != nil {
		return MemoryStats{}, err
	}
	return v.(MemoryStats), nil
}

// BatteryPercent returns the charge of the first battery found.
func (s *SystemSource) BatteryPercent(ctx context.Context) (uint8, error) {
	v, err := s.do(ctx, "battery", func(context.Context) (any, error) {
		return readBatteryCapacity(s.powerSupplyDir)
	})
	if err != nil {
		return 0, err
	}
	return v.(uint8), nil
}

// do runs fn once for all concurrent callers of key. The shared call does not
// inherit any caller's cancellation; each caller stops waiting on its own ctx.
func (s *SystemSource) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedQueryTimeout)
		defer cancel()
		return fn(shared)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readThermalZone parses a sysfs millidegree temperature file.
func readThermalZone(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read thermal zone: %w", err)
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse thermal zone: %w", err)
	}
	return milli / 1000, nil
}

// sensorTemperature picks the best CPU sensor reported by gopsutil.
func sensorTemperature(ctx context.Context) (float64, error) {
	sensors, err := host.SensorsTemperaturesWithContext(ctx)
	if len(sensors) == 0 {
		if err != nil {
			return 0, fmt.Errorf("read sensors: %w", err)
		}
		return 0, ErrUnavailable
	}

	for _, key := range cpuSensorKeys {
		for _, s := range sensors {
			if s.Temperature > 0 && strings.Contains(strings.ToLower(s.SensorKey), key) {
				return s.Temperature, nil
			}
		}
	}
	return 0, ErrUnavailable
}

// readBatteryCapacity reads capacity from the first BAT* power supply,
// preferring the capacity file and falling back to uevent.
func readBatteryCapacity(dir string) (uint8, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "BAT*"))
	if err != nil {
		return 0, fmt.Errorf("glob battery: %w", err)
	}
	if len(matches) == 0 {
		return 0, ErrUnavailable
	}

	raw := ""
	if data, err := os.ReadFile(filepath.Join(matches[0], "capacity")); err == nil {
		raw = strings.TrimSpace(string(data))
	} else if data, err := os.ReadFile(filepath.Join(matches[0], "uevent")); err == nil {
		raw = parseUevent(string(data))["POWER_SUPPLY_CAPACITY"]
	}
	if raw == "" {
		return 0, ErrUnavailable
	}

	pct, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse battery capacity %q: %w", raw, err)
	}
	if pct < 0 || pct > 100 {
		return 0, fmt.Errorf("battery capacity %d out of range", pct)
	}
	return uint8(pct), nil
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = strings.TrimSpace(v)
		}
	}
	return props
}
