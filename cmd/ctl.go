// cmd/ctl.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/ilocalserver/internal/control"
	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
)

var ctlAddress string

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control a running local server",
	Long: `Talks to the control API of a running "ilocalserver serve" to switch the
run mode, stop or restart the diagnostic server.

A begin request with a lower or equal precedence than the running mode
(normal < foreground < elevated) is ignored.`,
	Example: `  ilocalserver ctl status
  ilocalserver ctl begin foreground
  ilocalserver ctl restart
  ilocalserver ctl end`,
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCtl(cmd, func(ctx context.Context, c *control.Client) (lifecycle.Snapshot, error) {
			return c.Status(ctx)
		})
	},
}

var ctlBeginCmd = &cobra.Command{
	Use:   "begin <mode>",
	Short: "Start the server in a mode (normal, foreground, elevated)",
	Long: `Starts the diagnostic server in the given mode, replacing a running
lower-precedence mode (normal < foreground < elevated).

A request for the same or a lower mode than the one running is ignored, so
switching down (for example foreground to normal) needs "ilocalserver ctl end"
first.`,
	Example: `  ilocalserver ctl begin elevated
  ilocalserver ctl end && ilocalserver ctl begin normal`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"normal", "foreground", "elevated"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := lifecycle.ParseRunMode(args[0])
		if err != nil {
			return err
		}
		return runCtl(cmd, func(ctx context.Context, c *control.Client) (lifecycle.Snapshot, error) {
			return c.Begin(ctx, mode)
		})
	},
}

var ctlEndCmd = &cobra.Command{
	Use:   "end",
	Short: "Stop the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCtl(cmd, func(ctx context.Context, c *control.Client) (lifecycle.Snapshot, error) {
			return c.End(ctx)
		})
	},
}

var ctlRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the server in its current mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCtl(cmd, func(ctx context.Context, c *control.Client) (lifecycle.Snapshot, error) {
			return c.Restart(ctx)
		})
	},
}

// controlAddress returns --address, or the configured control address.
func controlAddress() (string, error) {
	if ctlAddress != "" {
		return ctlAddress, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Control.Address, nil
}

func runCtl(cmd *cobra.Command, fn func(context.Context, *control.Client) (lifecycle.Snapshot, error)) error {
	addr, err := controlAddress()
	if err != nil {
		return err
	}
	Debug("control API: %s", addr)

	client := control.NewClient(control.ClientConfig{Address: addr})
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	snap, err := fn(ctx, client)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	printSnapshot(os.Stdout, snap)
	return nil
}

func printSnapshot(out io.Writer, snap lifecycle.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "%s:\t%s\n", labelColor.Sprint("State"), colorizeState(snap.State))
	if snap.Mode.Valid() {
		fmt.Fprintf(w, "%s:\t%s (%s)\n", labelColor.Sprint("Mode"), snap.Mode, snap.Mode.Indicator())
	}
	if snap.Message != "" {
		fmt.Fprintf(w, "%s:\t%s\n", labelColor.Sprint("Message"), snap.Message)
	}
	if snap.Reason != "" {
		fmt.Fprintf(w, "%s:\t%s\n", labelColor.Sprint("Reason"), badColor.Sprint(snap.Reason))
	}
	if snap.Address != "" {
		fmt.Fprintf(w, "%s:\thttp://%s\n", labelColor.Sprint("URL"), snap.Address)
	}
}

func init() {
	ctlCmd.PersistentFlags().StringVar(&ctlAddress, "address", "", "Control API address (default from config, 127.0.0.1:8081)")
	ctlCmd.AddCommand(ctlStatusCmd, ctlBeginCmd, ctlEndCmd, ctlRestartCmd)
	rootCmd.AddCommand(ctlCmd)
}
