// Command pctrld wires the codec, connection listener, event bus,
// PM database and bypass dispatch table together and
// listens for POF switch connections. It is deliberately thin: every
// behavioral decision lives in the libraries it composes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/USTC-INFINITELAB/pctrl/bypass"
	"github.com/USTC-INFINITELAB/pctrl/ctrl"
	"github.com/USTC-INFINITELAB/pctrl/eventbus"
	"github.com/USTC-INFINITELAB/pctrl/pmdb"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pctrld",
		Short: "pctrld is a Protocol-Oblivious-Forwarding controller core",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var listen string
	var snapshot string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Accept POF switch connections and serve the handshake/bypass pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), listen, snapshot)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":6633", "address to accept switch connections on")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "optional YAML snapshot to seed the database from before any connection is admitted")
	return cmd
}

func run(ctx context.Context, listen, snapshotPath string) error {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Str("component", "pctrld").Logger()

	db, err := openDatabase(snapshotPath)
	if err != nil {
		return fmt.Errorf("pctrld: %w", err)
	}

	bus := eventbus.New(log)
	listener := ctrl.NewListener(listen, nil, bus, log)
	listener.Handler = bypass.New(db, listener, log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("listen", listen).Msg("pctrld: listening for switch connections")
	if err := listener.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("pctrld: %w", err)
	}
	return nil
}

// openDatabase returns a fresh Database, or one restored from a
// snapshot file when snapshotPath is non-empty.
func openDatabase(snapshotPath string) (*pmdb.Database, error) {
	if snapshotPath == "" {
		return pmdb.New(), nil
	}
	db, err := pmdb.LoadSnapshot(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", snapshotPath, err)
	}
	return db, nil
}
