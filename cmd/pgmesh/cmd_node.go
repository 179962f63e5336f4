package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/willibrandon/pgmesh/internal/logger"
	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// newNodeCmd creates the node command group.
func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Node catalog management",
		Long: `Manage the local node catalog. Every node taking part in replication,
including the local one, must be registered here before initialization.`,
	}

	cmd.AddCommand(
		newNodeCreateCmd(),
		newNodeDropCmd(),
		newNodeListCmd(),
	)

	return cmd
}

// newNodeCreateCmd creates the node create subcommand.
func newNodeCreateCmd() *cobra.Command {
	var (
		nodeID string
		dsn    string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a node in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			if nodeID == "" {
				nodeID = uuid.NewString()
			}

			nodeRole := models.NodeRole(role)
			node := &models.Node{
				ID:     nodeID,
				Name:   name,
				DSN:    dsn,
				Role:   nodeRole,
				Status: nodeRole.InitialStatus(),
			}
			if err := node.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := st.CreateNode(ctx, node); err != nil {
				return err
			}

			logger.Info("node registered", "name", node.Name, "id", node.ID, "role", string(node.Role))
			fmt.Printf("Node %s registered (id %s)\n", node.Name, node.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeID, "id", "", "node ID (default: generated)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "connection string other nodes use to reach this node (required)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleSubscriber), "node role: publisher, subscriber, forwarder")
	_ = cmd.MarkFlagRequired("dsn")

	return cmd
}

// newNodeDropCmd creates the node drop subcommand.
func newNodeDropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <name>",
		Short: "Remove a node from the catalog",
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

			node, err := st.GetNodeByName(ctx, args[0])
			if err != nil {
				return err
			}
			if err := st.DropNode(ctx, node.ID); err != nil {
				return err
			}

			logger.Info("node dropped", "name", node.Name, "id", node.ID)
			fmt.Printf("Node %s dropped\n", node.Name)
			return nil
		},
	}
}

// newNodeListCmd creates the node list subcommand.
func newNodeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered nodes",
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

			nodes, err := st.ListNodes(ctx)
			if err != nil {
				return err
			}
			if len(nodes) == 0 {
				fmt.Println("No nodes registered")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tID\tROLE\tSTATUS")
			for _, n := range nodes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.Name, n.ID, n.Role, n.Status)
			}
			return w.Flush()
		},
	}
}
