package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/willibrandon/pgmesh/internal/logger"
	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// newSetCmd creates the replication set command group.
func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replication set management",
		Long: `Manage replication sets. A replication set names the group of tables
copied during initialization and replicated afterwards.`,
	}

	cmd.AddCommand(
		newSetCreateCmd(),
		newSetAddTableCmd(),
	)

	return cmd
}

// newSetCreateCmd creates the set create subcommand.
func newSetCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a replication set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx := context.Background()
			pool, st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := st.CreateReplicationSet(ctx, args[0]); err != nil {
				return err
			}

			fmt.Printf("Replication set %s created\n", args[0])
			return nil
		},
	}
}

// newSetAddTableCmd creates the set add-table subcommand.
func newSetAddTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-table <set> <schema.table>",
		Short: "Add a table to a replication set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setName := args[0]

			schema, name, ok := strings.Cut(args[1], ".")
			if !ok {
				return fmt.Errorf("table must be given as schema.table, got %q", args[1])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx := context.Background()
			pool, st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			table := models.TableRef{Schema: schema, Name: name}
			if err := st.AddSetTable(ctx, setName, table); err != nil {
				return err
			}

			fmt.Printf("Table %s added to set %s\n", table, setName)
			return nil
		},
	}
}
