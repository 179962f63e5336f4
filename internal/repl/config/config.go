// Package config loads the pgmesh configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the pgmesh configuration.
type Config struct {
	NodeID         string           `mapstructure:"node_id"`
	NodeName       string           `mapstructure:"node_name"`
	PostgreSQL     PostgreSQLConfig `mapstructure:"postgresql"`
	Initialization InitConfig       `mapstructure:"initialization"`
	Log            LogConfig        `mapstructure:"log"`
}

// PostgreSQLConfig holds the local database connection configuration. This is
// the database the node catalog and replication-origin bookkeeping live in.
type PostgreSQLConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	PasswordCommand string `mapstructure:"password_command"`
	SSLMode         string `mapstructure:"sslmode"`
}

// DSN builds a connection string from the local connection configuration.
// Password resolution is the driver's concern (PGPASSWORD, pgpass file).
func (c *PostgreSQLConfig) DSN() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		c.User, c.Host, c.Port, c.Database, c.SSLMode)
}

// InitConfig holds node initialization configuration.
type InitConfig struct {
	// ReplicationSets selects which sets are copied when none are given on
	// the command line.
	ReplicationSets []string `mapstructure:"replication_sets"`
	// ArchivePath overrides the intermediate dump archive location.
	ArchivePath string `mapstructure:"archive_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"` // Auto-detected if empty
}

// Load loads configuration from the default search path.
func Load() (*Config, error) {
	return LoadFromPath("")
}

// LoadFromPath loads configuration from a specific file path. If configPath
// is empty, it searches the default locations.
func LoadFromPath(configPath string) (*Config, error) {
	v := viper.New()

	v.AutomaticEnv()
	v.SetEnvPrefix("PGMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	applyDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "pgmesh"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pgmesh"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return configFromViper(v)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return configFromViper(v)
}

func configFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "")
	v.SetDefault("node_name", "")

	v.SetDefault("postgresql.host", "localhost")
	v.SetDefault("postgresql.port", 5432)
	v.SetDefault("postgresql.database", "postgres")
	if user := os.Getenv("USER"); user != "" {
		v.SetDefault("postgresql.user", user)
	} else {
		v.SetDefault("postgresql.user", "postgres")
	}
	v.SetDefault("postgresql.sslmode", "prefer")

	v.SetDefault("initialization.replication_sets", []string{"default"})
	v.SetDefault("initialization.archive_path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.PostgreSQL.Host == "" {
		return fmt.Errorf("postgresql.host is required")
	}
	if c.PostgreSQL.Port < 1 || c.PostgreSQL.Port > 65535 {
		return fmt.Errorf("postgresql.port must be between 1 and 65535")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	if len(c.Initialization.ReplicationSets) == 0 {
		return fmt.Errorf("initialization.replication_sets must not be empty")
	}
	return nil
}
