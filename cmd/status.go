// cmd/status.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"

	"github.com/aceteam-ai/ilocalserver/internal/control"
	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
	"github.com/aceteam-ai/ilocalserver/internal/platform"
	"github.com/aceteam-ai/ilocalserver/internal/status"
	"github.com/aceteam-ai/ilocalserver/internal/telemetry"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st", "info"},
	Short:   "Shows device vitals and the local server state",
	Long: `Reads the same vitals the diagnostic page shows (uptime, CPU temperature,
memory, battery) directly from this machine, and asks a running
"ilocalserver serve" for its mode and state over the control API.`,
	Example: `  # View device status with colors
  ilocalserver status

  # View status without colors (for scripts/logging)
  ilocalserver status --no-color`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		source := telemetry.NewSystemSource(telemetry.SystemSourceConfig{
			ThermalZone:    cfg.Telemetry.ThermalZone,
			PowerSupplyDir: cfg.Telemetry.PowerSupplyDir,
		})
		collector := telemetry.NewCollector(source, telemetry.CollectorConfig{
			Timeout: cfg.Telemetry.Timeout,
		})

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()

		headerColor.Fprintf(w, "--- 📊 ILocalServer Status (%s) ---\n", Version)

		headerColor.Fprintln(w, "\n🖥️  HOST")
		printHostInfo(ctx, w)

		headerColor.Fprintln(w, "\n💻 SYSTEM VITALS")
		printVitals(w, collector.Collect(ctx))
		printCPUInfo(w)

		headerColor.Fprintln(w, "\n🚀 LOCAL SERVER")
		client := control.NewClient(control.ClientConfig{
			Address: cfg.Control.Address,
			Timeout: 2 * time.Second,
		})
		snap, err := client.Status(ctx)
		if err != nil {
			Debug("control API: %v", err)
		}
		printServerInfo(w, snap, err, cfg.Server.Port)
		return nil
	},
}

func printHostInfo(ctx context.Context, w io.Writer) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Host"), badColor.Sprint("unavailable"))
		return
	}
	fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Hostname"), info.Hostname)
	fmt.Fprintf(w, "  %s:\t%s %s (%s)\n", labelColor.Sprint("Platform"), info.Platform, info.PlatformVersion, info.KernelArch)
	uptime := time.Duration(info.Uptime) * time.Second
	fmt.Fprintf(w, "  ⏱️  %s:\t%s\n", labelColor.Sprint("Uptime"), status.FormatUptime(uptime))
	fmt.Fprintf(w, "  🌐 %s:\t%s\n", labelColor.Sprint("LAN address"), platform.LocalIPv4())
}

func printVitals(w io.Writer, snap telemetry.Snapshot) {
	temp := warnColor.Sprint("N/A")
	if snap.CPUTemperatureC != nil {
		temp = colorizeTemp(*snap.CPUTemperatureC)
	}
	fmt.Fprintf(w, "  🌡️  %s:\t%s\n", labelColor.Sprint("CPU temperature"), temp)

	if snap.Memory != nil {
		m := *snap.Memory
		fmt.Fprintf(w, "  🧠 %s:\t%s (%s / %s)\n", labelColor.Sprint("Memory"),
			colorizePercent(m.UsedPercent()), formatBytes(m.UsedBytes), formatBytes(m.TotalBytes))
	} else {
		fmt.Fprintf(w, "  🧠 %s:\t%s\n", labelColor.Sprint("Memory"), warnColor.Sprint("N/A"))
	}

	battery := warnColor.Sprint("N/A")
	if snap.BatteryPercent != nil {
		battery = colorizeBattery(*snap.BatteryPercent)
	}
	fmt.Fprintf(w, "  🔋 %s:\t%s\n", labelColor.Sprint("Battery"), battery)
}

func printCPUInfo(w io.Writer) {
	percentages, err := cpu.Percent(time.Second, false)
	if err != nil || len(percentages) == 0 {
		fmt.Fprintf(w, "  ⚙️  %s:\t%s\n", labelColor.Sprint("CPU load"), warnColor.Sprint("N/A"))
		return
	}
	fmt.Fprintf(w, "  ⚙️  %s:\t%s\n", labelColor.Sprint("CPU load"), colorizePercent(percentages[0]))
}

func printServerInfo(w io.Writer, snap lifecycle.Snapshot, err error, port int) {
	if err != nil {
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("State"), badColor.Sprint("not reachable"))
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Hint"), "start it with 'ilocalserver serve'")
		return
	}
	fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("State"), colorizeState(snap.State))
	if snap.Mode.Valid() {
		fmt.Fprintf(w, "  %s:\t%s (%s)\n", labelColor.Sprint("Mode"), snap.Mode, snap.Mode.Indicator())
	}
	if snap.Message != "" {
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Message"), snap.Message)
	}
	if snap.State == lifecycle.StateRunning {
		addr := snap.Address
		if addr == "" {
			addr = fmt.Sprintf("%s:%d", platform.LocalIPv4(), port)
		}
		fmt.Fprintf(w, "  %s:\thttp://%s\n", labelColor.Sprint("URL"), addr)
	}
	if !snap.Since.IsZero() {
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Since"), snap.Since.Local().Format(time.RFC1123))
	}
}

func colorizeState(s lifecycle.State) string {
	switch s {
	case lifecycle.StateRunning:
		return goodColor.Sprint(s)
	case lifecycle.StateStarting:
		return warnColor.Sprint(s)
	case lifecycle.StateFailed:
		return badColor.Sprint(s)
	}
	return string(s)
}

func colorizePercent(p float64) string {
	s := fmt.Sprintf("%.1f%%", p)
	if p > 90.0 {
		return badColor.Sprint(s)
	}
	if p > 75.0 {
		return warnColor.Sprint(s)
	}
	return goodColor.Sprint(s)
}

func colorizeTemp(t float64) string {
	s := fmt.Sprintf("%.1f°C", t)
	if t > 85.0 {
		return badColor.Sprint(s)
	}
	if t > 70.0 {
		return warnColor.Sprint(s)
	}
	return goodColor.Sprint(s)
}

func colorizeBattery(p uint8) string {
	s := fmt.Sprintf("%d%%", p)
	if p < 10 {
		return badColor.Sprint(s)
	}
	if p < 25 {
		return warnColor.Sprint(s)
	}
	return goodColor.Sprint(s)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
