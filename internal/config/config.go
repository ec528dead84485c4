package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/escape"
)

// DefaultPath is read when no --config flag is given
const DefaultPath = "config.yaml"

// Config holds all configuration for pathwayqa.
// Values come from a YAML file with environment variable overrides.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Diagrams     DiagramsConfig     `yaml:"diagrams"`
	Escape       EscapeConfig       `yaml:"escape"`
	Compartments CompartmentsConfig `yaml:"compartments"`
	Checks       ChecksConfig       `yaml:"checks"`
	Report       ReportConfig       `yaml:"report"`
	Log          LogConfig          `yaml:"log"`
	Server       ServerConfig       `yaml:"server"`
}

// DatabaseConfig locates the SQLite knowledge base
type DatabaseConfig struct {
	Path string `yaml:"path" env:"PATHWAYQA_DB" env-default:"pathwayqa.db"`
}

// DiagramsConfig selects where diagram documents are read from.
// An empty BaseURL reads them from the database.
type DiagramsConfig struct {
	BaseURL string        `yaml:"base_url" env:"PATHWAYQA_DIAGRAM_URL" env-default:""`
	Timeout time.Duration `yaml:"timeout" env:"PATHWAYQA_DIAGRAM_TIMEOUT" env-default:"30s"`
}

// EscapeConfig configures the skip list applied before every check
type EscapeConfig struct {
	File   string `yaml:"file" env:"PATHWAYQA_ESCAPE_FILE" env-default:""`
	Cutoff string `yaml:"cutoff" env:"PATHWAYQA_ESCAPE_CUTOFF" env-default:""`

	// MaintenanceAccountsStr is a comma-separated list of person ids whose
	// edits do not count as curator edits.
	MaintenanceAccountsStr string `yaml:"maintenance_accounts" env:"PATHWAYQA_MAINTENANCE_ACCOUNTS" env-default:""`

	// MaintenanceAccounts is parsed from MaintenanceAccountsStr.
	MaintenanceAccounts []domain.ID `yaml:"-"`
}

// CompartmentsConfig locates the compartment containment table.
// An empty Table uses the built-in one.
type CompartmentsConfig struct {
	Table string `yaml:"table" env:"PATHWAYQA_COMPARTMENT_TABLE" env-default:""`
}

// ChecksConfig tunes candidate selection shared by the checks
type ChecksConfig struct {
	// ExcludeDiseaseStr is the raw flag; empty means true.
	ExcludeDiseaseStr string `yaml:"exclude_disease_reactions" env:"PATHWAYQA_EXCLUDE_DISEASE"`

	// ExcludeDiseaseReactions is parsed from ExcludeDiseaseStr.
	ExcludeDiseaseReactions bool `yaml:"-"`
}

// ReportConfig sets where exported reports are written
type ReportConfig struct {
	Dir string `yaml:"dir" env:"PATHWAYQA_REPORT_DIR" env-default:"qa-reports"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT" env-default:"false"`
}

// ServerConfig configures the REST API server
type ServerConfig struct {
	Addr string `yaml:"addr" env:"PATHWAYQA_ADDR" env-default:":8080"`
}

// Load reads the YAML file at path with environment variable overrides.
// A missing file at the default path falls back to environment and defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := &Config{}
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, fs.ErrNotExist) && !explicit:
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, statErr)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) parseComplexFields() error {
	ids, err := parseIDList(c.Escape.MaintenanceAccountsStr)
	if err != nil {
		return fmt.Errorf("maintenance_accounts: %w", err)
	}
	c.Escape.MaintenanceAccounts = ids

	c.Checks.ExcludeDiseaseReactions = true
	if v := strings.TrimSpace(c.Checks.ExcludeDiseaseStr); v != "" {
		exclude, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("exclude_disease_reactions: %w", err)
		}
		c.Checks.ExcludeDiseaseReactions = exclude
	}
	return nil
}

func (c *Config) validate() error {
	if c.Escape.Cutoff != "" {
		if _, err := escape.ParseCutoff(c.Escape.Cutoff); err != nil {
			return fmt.Errorf("escape cutoff: %w", err)
		}
	}
	if c.Diagrams.Timeout < 0 {
		return fmt.Errorf("diagrams timeout must not be negative")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// parseIDList parses "1, 2,3" into ids
func parseIDList(s string) ([]domain.ID, error) {
	var ids []domain.ID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, domain.ID(n))
	}
	return ids, nil
}
