package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabasePath string        `yaml:"database_path" env:"DBVAULT_DATABASE_PATH"`
	BackupDir    string        `yaml:"backup_dir" env:"DBVAULT_BACKUP_DIR"`
	StatePath    string        `yaml:"state_path" env:"DBVAULT_STATE_PATH"`
	Timeout      time.Duration `yaml:"timeout" env:"DBVAULT_TIMEOUT"`
}

// Load builds the configuration from defaults, then the optional YAML file at
// path, then environment variables. Later sources win.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DatabasePath: "dbvault.db",
		BackupDir:    "backups",
		StatePath:    "dbvault.state.json",
		Timeout:      30 * time.Second,
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
