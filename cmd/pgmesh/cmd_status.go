package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/willibrandon/pgmesh/internal/logger"
	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// nodeStatus is the JSON shape of a single node's status output.
type nodeStatus struct {
	Name   string `json:"name"`
	ID     string `json:"id"`
	Role   string `json:"role"`
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// newStatusCmd creates the status subcommand.
func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [node]",
		Short: "Show node initialization status",
		Long: `Show the initialization status of one node, or of every registered
node when no name is given.`,
		Args: cobra.MaximumNArgs(1),
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

			var nodes []*models.Node
			if len(args) == 1 {
				node, err := st.GetNodeByName(ctx, args[0])
				if err != nil {
					return err
				}
				nodes = append(nodes, node)
			} else {
				nodes, err = st.ListNodes(ctx)
				if err != nil {
					return err
				}
			}

			statuses := make([]nodeStatus, 0, len(nodes))
			for _, n := range nodes {
				statuses = append(statuses, nodeStatus{
					Name:   n.Name,
					ID:     n.ID,
					Role:   n.Role.String(),
					Status: n.Status.String(),
					Ready:  n.Status == models.StatusReady,
				})
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}

			for _, s := range statuses {
				fmt.Printf("%s: %s\n", s.Name, s.Status)
				fmt.Printf("  Node ID:  %s\n", s.ID)
				fmt.Printf("  Role:     %s\n", s.Role)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}
