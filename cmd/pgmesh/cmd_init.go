package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/willibrandon/pgmesh/internal/logger"
	replinit "github.com/willibrandon/pgmesh/internal/repl/init"
	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// newInitCmd creates the init subcommand for subscriber initialization.
func newInitCmd() *cobra.Command {
	var (
		originName  string
		sets        []string
		archivePath string
	)

	cmd := &cobra.Command{
		Use:   "init <target-node>",
		Short: "Synchronize a subscriber node from its publisher",
		Long: `Initialize a subscriber node by copying schema and data from its
publisher. Both nodes must be registered in the local catalog first.

The synchronization creates a logical replication slot on the publisher,
dumps the schema through the slot's exported snapshot, copies table data
for the selected replication sets, and finally marks the node ready.

An interrupted run can be resumed by running the same command again, as
long as the failure did not occur during schema synchronization.

Example:
  pgmesh init node-b --from node-a --sets default`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetName := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			if len(sets) == 0 {
				sets = cfg.Initialization.ReplicationSets
			}
			if archivePath == "" {
				archivePath = cfg.Initialization.ArchivePath
			}
			if archivePath == "" {
				archivePath = replinit.DefaultArchivePath()
				// The default archive is shared per host; concurrent runs
				// on the same machine would clobber each other's dump.
				logger.Warn("using shared default archive path", "path", archivePath)
			}

			// Cancel the copy on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			origin, err := st.GetNodeByName(ctx, originName)
			if err != nil {
				return fmt.Errorf("origin node %q: %w", originName, err)
			}
			target, err := st.GetNodeByName(ctx, targetName)
			if err != nil {
				return fmt.Errorf("target node %q: %w", targetName, err)
			}

			edge := models.Edge{
				Origin:          origin,
				Target:          target,
				ReplicationSets: sets,
			}

			replicator, err := replinit.NewReplicator(pool, st, archivePath, logger.With("component", "init"))
			if err != nil {
				return err
			}

			fmt.Printf("Initializing %s from %s...\n", target.Name, origin.Name)
			logger.Info("node initialization starting", "target", target.Name, "origin", origin.Name, "sets", sets)
			if err := replicator.Run(ctx, edge); err != nil {
				logger.Error("node initialization failed", "target", target.Name, "error", err.Error())
				return err
			}

			logger.Info("node initialization complete", "target", target.Name)
			fmt.Printf("Node %s is ready\n", target.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&originName, "from", "", "origin node name to initialize from (required)")
	cmd.Flags().StringSliceVar(&sets, "sets", nil, "replication sets to copy (default from config)")
	cmd.Flags().StringVar(&archivePath, "archive", "", "intermediate dump archive path")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}
