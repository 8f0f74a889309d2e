package status

import (
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
	"github.com/aceteam-ai/ilocalserver/internal/telemetry"
)

const gib = 1024 * 1024 * 1024

// pageData is what the diagnostic page template renders.
type pageData struct {
	Uptime      string
	Temperature string
	Memory      string
	Battery     string
	Address     string
	Indicator   string
}

func newPageData(snap telemetry.Snapshot, uptime time.Duration, address string, mode lifecycle.RunMode) pageData {
	return pageData{
		Uptime:      FormatUptime(uptime),
		Temperature: formatTemperature(snap.CPUTemperatureC),
		Memory:      formatMemory(snap.Memory),
		Battery:     formatBattery(snap.BatteryPercent),
		Address:     address,
		Indicator:   mode.Indicator(),
	}
}

// FormatUptime renders d with its two most significant units:
// "D days H hours", "H hours M minutes" or "M minutes S seconds".
func FormatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}

	days := total / 86400
	hours := total / 3600 % 24
	minutes := total / 60 % 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%d days %d hours", days, hours)
	case hours > 0:
		return fmt.Sprintf("%d hours %d minutes", hours, minutes)
	default:
		return fmt.Sprintf("%d minutes %d seconds", minutes, seconds)
	}
}

func formatTemperature(c *float64) string {
	if c == nil {
		return unavailable
	}
	return fmt.Sprintf("%.1f°C", *c)
}

func formatMemory(m *telemetry.MemoryStats) string {
	if m == nil || m.TotalBytes == 0 {
		return unavailable
	}
	return fmt.Sprintf("%.2f GB / %.2f GB (used %.0f%%)",
		float64(m.UsedBytes)/gib, float64(m.TotalBytes)/gib, m.UsedPercent())
}

func formatBattery(p *uint8) string {
	if p == nil {
		return unavailable
	}
	return strconv.Itoa(int(*p)) + "%"
}

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ILocalServer</title>
    <style>
        body {
            display: flex;
            flex-direction: column;
            align-items: center;
            margin: 0;
            min-height: 100vh;
            text-align: center;
            background-color: black;
            color: white;
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            font-size: 2.5em;
        }
        .status-bar {
            width: 100%;
            padding: 10px 0;
            border-bottom: 3px solid lightgrey;
        }
        .content {
            flex-grow: 1;
            display: flex;
            flex-direction: column;
            justify-content: center;
            align-items: center;
        }
        .value { margin: 20px 0; }
        .restart-btn {
            margin: 20px 0 40px;
            padding: 20px 30px;
            font-size: 0.8em;
            background-color: grey;
            color: white;
            border: none;
            cursor: pointer;
        }
        .address-info {
            width: 100%;
            padding: 10px 0;
            border-top: 3px solid lightgrey;
        }
    </style>
    <script>
        function confirmRestart() {
            if (confirm('Are you sure you want to reboot the device?')) {
                fetch('/restart')
                    .then(() => alert('Rebooting the device...'))
                    .catch(() => alert('Failed to reboot the device'));
            }
        }
    </script>
</head>
<body>
    <div class="status-bar">
        Server uptime:<br><span id="uptime">{{.Uptime}}</span>
    </div>
    <div class="content">
        <button class="restart-btn" onclick="confirmRestart()">Reboot device</button>
        <div class="value">CPU: <span id="cpu">{{.Temperature}}</span></div>
        <div class="value">Battery: <span id="battery">{{.Battery}}</span></div>
        <div class="value">RAM: <span id="memory">{{.Memory}}</span></div>
    </div>
    <div class="address-info">
        <span id="address">{{.Address}}</span><br>{{.Indicator}}
    </div>
</body>
</html>`
