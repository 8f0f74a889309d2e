// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/ilocalserver/internal/config"
	"github.com/aceteam-ai/ilocalserver/internal/control"
	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
	"github.com/aceteam-ai/ilocalserver/internal/mirror"
	"github.com/aceteam-ai/ilocalserver/internal/notify"
	"github.com/aceteam-ai/ilocalserver/internal/platform"
	"github.com/aceteam-ai/ilocalserver/internal/status"
	"github.com/aceteam-ai/ilocalserver/internal/telemetry"
)

var (
	servePort int
	serveMode string
	serveBind string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the diagnostic server",
	Long: `Run the diagnostic HTTP server in the foreground of this process.

The page on port 8080 shows uptime, CPU temperature, memory and battery.
GET /restart reboots the device.

Modes:
  normal      plain background server
  foreground  also keeps a desktop notification up while running
  elevated    privileged mode; chosen by "auto" when running as root
  auto        elevated if enabled and privileged, otherwise normal

While serving, the control API on 127.0.0.1:8081 switches modes
(see "ilocalserver ctl").`,
	Example: `  ilocalserver serve
  ilocalserver serve --mode foreground
  ilocalserver serve --port 9090 --bind 0.0.0.0`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config, 8080)")
	serveCmd.Flags().StringVarP(&serveMode, "mode", "m", "", "Run mode: auto, normal, foreground or elevated")
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "Address to bind (default: all interfaces)")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags overlays explicitly set flags on cfg and revalidates.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Mode = serveMode
	}
	if cmd.Flags().Changed("bind") {
		cfg.Server.BindAddress = serveBind
	}
	return config.Validate(cfg)
}

// newRebooter builds the rebooter selected in the config.
func newRebooter(cfg config.RebootConfig) status.Rebooter {
	if cfg.Method == config.RebootSyscall {
		return platform.SyscallRebooter{}
	}
	return platform.NewCommandRebooter(cfg.Command)
}

// startFunc adapts the status server to the coordinator. A nil *Instance
// must not leak into the interface.
func startFunc(server *status.Server) lifecycle.StartFunc {
	return func(mode lifecycle.RunMode) (lifecycle.Instance, error) {
		inst, err := server.Start(mode)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	privileged := platform.IsRoot()
	mode, err := cfg.BootMode(privileged)
	if err != nil {
		return err
	}
	if mode == lifecycle.ModeElevated && !privileged {
		fmt.Println("   - Warning: elevated mode without root privileges; reboot may fail")
	}
	if cfg.Reboot.Method == config.RebootSyscall && !platform.IsLinux() {
		fmt.Printf("   - Warning: reboot method %q is not supported on %s\n", config.RebootSyscall, platform.OS())
	}
	Debug("boot mode: %s (privileged=%v, elevated.enabled=%v)", mode, privileged, cfg.Elevated.Enabled)

	source := telemetry.NewSystemSource(telemetry.SystemSourceConfig{
		ThermalZone:    cfg.Telemetry.ThermalZone,
		PowerSupplyDir: cfg.Telemetry.PowerSupplyDir,
	})
	collector := telemetry.NewCollector(source, telemetry.CollectorConfig{
		Timeout: cfg.Telemetry.Timeout,
	})

	server := status.NewServer(status.ServerConfig{
		Port:                   cfg.Server.Port,
		BindAddress:            cfg.Server.BindAddress,
		ReadTimeout:            cfg.Server.ReadTimeout,
		WriteTimeout:           cfg.Server.WriteTimeout,
		ShutdownTimeout:        cfg.Server.ShutdownTimeout,
		RebootRequiresElevated: cfg.Reboot.ElevatedOnly,
	}, collector, newRebooter(cfg.Reboot))

	coord := lifecycle.NewCoordinator(lifecycle.CoordinatorConfig{
		Start: startFunc(server),
	})

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	obs := &observers{}
	defer obs.stop()

	if cfg.Redis.URL != "" {
		pub, err := startMirror(ctx, cfg.Redis, coord, &obs.wg)
		if err != nil {
			fmt.Printf("   - Warning: Redis mirror disabled: %v\n", err)
		} else {
			obs.onStop(pub.Close)
		}
	}

	if cfg.Notify.Enabled {
		notifier, err := notify.NewDBusNotifier("ilocalserver")
		if err != nil {
			Debug("desktop notifications unavailable: %v", err)
		} else {
			obs.onStop(notifier.Close)
			watcher := notify.NewWatcher(notify.WatcherConfig{
				Notifier: notifier,
				Address:  func() string { return coord.Status().Address },
			})
			sub := coord.Subscribe()
			obs.wg.Add(1)
			go func() {
				defer obs.wg.Done()
				watcher.Run(ctx, sub)
			}()
		}
	}

	var api *control.Server
	if cfg.Control.Enabled {
		api = control.NewServer(control.Config{Address: cfg.Control.Address}, coord)
		if err := api.Start(); err != nil {
			fmt.Printf("   - Warning: control API unavailable on %s: %v\n", cfg.Control.Address, err)
			api = nil
		}
	}

	if err := coord.Begin(mode); err != nil {
		if api == nil {
			shutdown(coord, nil, cfg.Server.ShutdownTimeout)
			cancel()
			return err
		}
		fmt.Printf("❌ %v\n", err)
		fmt.Printf("   Retry with: ilocalserver ctl begin %s\n", mode)
	} else {
		fmt.Printf("✅ %s\n", coord.Status().Message)
		fmt.Printf("   Open http://%s in a browser\n", coord.Status().Address)
	}
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()

	shutdown(coord, api, cfg.Server.ShutdownTimeout)
	return nil
}

// observers tracks the event consumers started by serve and the
// connections they hold.
type observers struct {
	wg       sync.WaitGroup
	closers  []func() error
	stopOnce sync.Once
}

func (o *observers) onStop(closeFn func() error) {
	o.closers = append(o.closers, closeFn)
}

// stop waits for the consumers to drain, then closes their connections.
// The event stream must be closed or ctx cancelled first.
func (o *observers) stop() {
	o.stopOnce.Do(func() {
		o.wg.Wait()
		for _, closeFn := range o.closers {
			if err := closeFn(); err != nil {
				Debug("close: %v", err)
			}
		}
	})
}

// startMirror connects the Redis mirror and forwards events in the background.
func startMirror(ctx context.Context, cfg config.RedisConfig, coord *lifecycle.Coordinator, wg *sync.WaitGroup) (*mirror.RedisPublisher, error) {
	pub, err := mirror.NewRedisPublisher(mirror.RedisPublisherConfig{
		RedisURL:      cfg.URL,
		RedisPassword: cfg.Password,
		NodeID:        cfg.NodeID,
		Channel:       cfg.Channel,
		Stream:        cfg.Stream,
	})
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pub.Ping(pingCtx); err != nil {
		pub.Close()
		return nil, err
	}

	Debug("mirroring status to %s / %s", pub.Channel(), pub.StreamName())
	sub := coord.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		pub.Run(ctx, sub)
	}()
	return pub, nil
}

// shutdown stops the server, the control API and closes the event stream so
// observers drain and exit.
func shutdown(coord *lifecycle.Coordinator, api *control.Server, timeout time.Duration) {
	if err := coord.End(); err != nil {
		fmt.Printf("   - Warning: %v\n", err)
	}
	if api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := api.Stop(ctx); err != nil {
			Debug("control API shutdown: %v", err)
		}
	}
	coord.Events().Close()
}
