package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/willibrandon/pgmesh/internal/logger"
	"github.com/willibrandon/pgmesh/internal/repl/config"
	"github.com/willibrandon/pgmesh/internal/repl/store"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	// Flags
	configPath string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pgmesh",
		Short: "PostgreSQL mesh replication tool",
		Long: `pgmesh manages logical replication between PostgreSQL nodes. It registers
nodes, provisions replication slots, and performs initial data synchronization
of subscriber nodes from their publisher.

Node Management:
  pgmesh node create <name>     Register a node in the local catalog
  pgmesh node drop <name>       Remove a node from the catalog
  pgmesh node list              List registered nodes
  pgmesh set create <name>      Create a replication set
  pgmesh set add-table <name>   Add a table to a replication set

Initialization:
  pgmesh init <target> --from <origin>   Synchronize a subscriber from its publisher
  pgmesh status [node]                   Show node initialization status`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/pgmesh/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(
		newNodeCmd(),
		newSetCmd(),
		newInitCmd(),
		newStatusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}

// loadConfig loads configuration honoring the global --config flag and sets
// up the logger.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if debug {
		level = logger.ParseLevel("debug")
	}
	logger.InitLogger(level, cfg.Log.Path)
	logger.Debug("configuration loaded",
		"host", cfg.PostgreSQL.Host, "database", cfg.PostgreSQL.Database)

	return cfg, nil
}

// openStore connects a pool to the local database and ensures the catalog
// schema exists.
func openStore(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, *store.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgreSQL.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to local database: %w", err)
	}

	st := store.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, st, nil
}
