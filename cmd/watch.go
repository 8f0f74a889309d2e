// cmd/watch.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/ilocalserver/internal/control"
	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream status events from a running server",
	Long: `Prints every status event (starting, running, stopped, failed) published by
a running "ilocalserver serve". Reconnects when the server goes away.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := controlAddress()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			select {
			case <-sigChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		client := control.NewClient(control.ClientConfig{Address: addr})
		fmt.Printf("Watching %s (Ctrl+C to stop)\n", addr)
		err = client.Watch(ctx, func(ev lifecycle.StatusEvent) {
			printEvent(os.Stdout, ev)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func printEvent(w io.Writer, ev lifecycle.StatusEvent) {
	fmt.Fprintf(w, "%s %-10s %-10s %s\n",
		ev.Time.Local().Format(time.TimeOnly),
		ev.Mode,
		colorizeState(ev.State),
		ev.Message)
}

func init() {
	watchCmd.Flags().StringVar(&ctlAddress, "address", "", "Control API address (default from config, 127.0.0.1:8081)")
	rootCmd.AddCommand(watchCmd)
}
