package cmd

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aceteam-ai/ilocalserver/internal/config"
	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
	"github.com/aceteam-ai/ilocalserver/internal/logging"
	"github.com/aceteam-ai/ilocalserver/internal/platform"
	"github.com/aceteam-ai/ilocalserver/internal/status"
	"github.com/aceteam-ai/ilocalserver/internal/telemetry"
)

func init() {
	color.NoColor = true
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{8 * 1024 * 1024 * 1024, "8.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestColorizeHelpers(t *testing.T) {
	if got := colorizePercent(42.25); got != "42.2%" && got != "42.3%" {
		t.Errorf("colorizePercent = %q", got)
	}
	if got := colorizeTemp(48.5); got != "48.5°C" {
		t.Errorf("colorizeTemp = %q", got)
	}
	if got := colorizeBattery(7); got != "7%" {
		t.Errorf("colorizeBattery = %q", got)
	}
	if got := colorizeState(lifecycle.StateStopped); got != "stopped" {
		t.Errorf("colorizeState = %q", got)
	}
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, lifecycle.Snapshot{
		State:   lifecycle.StateRunning,
		Mode:    lifecycle.ModeElevated,
		Message: lifecycle.ModeElevated.RunningMessage(),
		Address: "192.168.1.20:8080",
	})
	out := buf.String()
	for _, want := range []string{"running", "elevated", "Elevated mode is on", "http://192.168.1.20:8080"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Reason") {
		t.Errorf("Reason printed without one:\n%s", out)
	}
}

func TestPrintSnapshotFailed(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, lifecycle.Snapshot{
		State:   lifecycle.StateFailed,
		Mode:    lifecycle.ModeNormal,
		Message: "Local server is not working: address in use",
		Reason:  "address in use",
	})
	out := buf.String()
	if !strings.Contains(out, "Reason") || !strings.Contains(out, "address in use") {
		t.Errorf("output = %s", out)
	}
	if strings.Contains(out, "URL") {
		t.Errorf("URL printed without an address:\n%s", out)
	}
}

func TestPrintServerInfoUnreachable(t *testing.T) {
	var buf bytes.Buffer
	printServerInfo(&buf, lifecycle.Snapshot{}, errors.New("connection refused"), 8080)
	if !strings.Contains(buf.String(), "not reachable") {
		t.Errorf("output = %s", buf.String())
	}
}

func TestPrintVitalsMissingFields(t *testing.T) {
	var buf bytes.Buffer
	printVitals(&buf, telemetry.Snapshot{})
	if n := strings.Count(buf.String(), "N/A"); n != 3 {
		t.Errorf("N/A count = %d, want 3:\n%s", n, buf.String())
	}

	buf.Reset()
	temp := 51.0
	pct := uint8(80)
	printVitals(&buf, telemetry.Snapshot{
		CPUTemperatureC: &temp,
		Memory:          &telemetry.MemoryStats{UsedBytes: 1 << 30, TotalBytes: 4 << 30},
		BatteryPercent:  &pct,
	})
	out := buf.String()
	for _, want := range []string{"51.0°C", "25.0%", "1.0 GiB / 4.0 GiB", "80%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	printEvent(&buf, lifecycle.StatusEvent{
		Mode:    lifecycle.ModeForeground,
		State:   lifecycle.StateRunning,
		Message: "Local server is running in foreground mode",
		Time:    time.Now(),
	})
	out := buf.String()
	if !strings.Contains(out, "foreground") || !strings.Contains(out, "running") {
		t.Errorf("output = %q", out)
	}
}

func newServeFlagsCmd() *cobra.Command {
	c := &cobra.Command{}
	c.Flags().IntVarP(&servePort, "port", "p", 0, "")
	c.Flags().StringVarP(&serveMode, "mode", "m", "", "")
	c.Flags().StringVar(&serveBind, "bind", "", "")
	return c
}

func TestApplyServeFlags(t *testing.T) {
	t.Run("unset flags keep config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Server.Port = 9000
		if err := applyServeFlags(newServeFlagsCmd(), cfg); err != nil {
			t.Fatal(err)
		}
		if cfg.Server.Port != 9000 || cfg.Mode != config.ModeAuto {
			t.Errorf("cfg changed: port=%d mode=%q", cfg.Server.Port, cfg.Mode)
		}
	})

	t.Run("set flags override", func(t *testing.T) {
		c := newServeFlagsCmd()
		c.Flags().Set("port", "9090")
		c.Flags().Set("mode", "foreground")
		c.Flags().Set("bind", "127.0.0.1")
		cfg := config.Default()
		if err := applyServeFlags(c, cfg); err != nil {
			t.Fatal(err)
		}
		if cfg.Server.Port != 9090 || cfg.Mode != "foreground" || cfg.Server.BindAddress != "127.0.0.1" {
			t.Errorf("cfg = %+v", cfg.Server)
		}
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		c := newServeFlagsCmd()
		c.Flags().Set("mode", "turbo")
		if err := applyServeFlags(c, config.Default()); err == nil {
			t.Error("expected an error for an unknown mode")
		}
	})
}

func TestNewRebooter(t *testing.T) {
	cfg := config.Default().Reboot
	r, ok := newRebooter(cfg).(*platform.CommandRebooter)
	if !ok {
		t.Fatalf("command method gave %T", newRebooter(cfg))
	}
	if strings.Join(r.Command(), " ") != "su -c reboot" {
		t.Errorf("Command() = %v", r.Command())
	}

	cfg.Method = config.RebootSyscall
	if _, ok := newRebooter(cfg).(platform.SyscallRebooter); !ok {
		t.Errorf("syscall method gave %T", newRebooter(cfg))
	}
}

func TestStartFuncBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	server := status.NewServer(status.ServerConfig{
		Port:        port,
		BindAddress: "127.0.0.1",
		Logger:      logging.Discard(),
	}, telemetry.NewCollector(telemetry.NewSystemSource(telemetry.SystemSourceConfig{}), telemetry.CollectorConfig{}), nil)

	inst, err := startFunc(server)(lifecycle.ModeNormal)
	if err == nil {
		t.Fatal("expected a bind error")
	}
	if inst != nil {
		t.Errorf("instance = %#v, want a nil interface", inst)
	}
	var bindErr *status.BindError
	if !errors.As(err, &bindErr) {
		t.Errorf("error = %T, want *status.BindError", err)
	}
}

func TestObserversStop(t *testing.T) {
	obs := &observers{}
	var closed []string
	obs.onStop(func() error { closed = append(closed, "redis"); return nil })
	obs.onStop(func() error { closed = append(closed, "dbus"); return errors.New("already closed") })

	drain := make(chan struct{})
	obs.wg.Add(1)
	go func() {
		defer obs.wg.Done()
		<-drain
	}()

	stopped := make(chan struct{})
	go func() {
		obs.stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("stop() returned before the consumer drained")
	case <-time.After(50 * time.Millisecond):
	}

	close(drain)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop() did not return")
	}

	obs.stop()
	if strings.Join(closed, ",") != "redis,dbus" {
		t.Errorf("closed = %v, want each connection closed once in order", closed)
	}
}

func TestCtlBeginHelpExplainsSwitchingDown(t *testing.T) {
	for _, want := range []string{"lower mode", "ilocalserver ctl end"} {
		if !strings.Contains(ctlBeginCmd.Long, want) {
			t.Errorf("ctl begin help missing %q:\n%s", want, ctlBeginCmd.Long)
		}
	}
}
