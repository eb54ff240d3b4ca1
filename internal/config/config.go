package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/LocalAtBrown/ata-core/internal/site"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Source    SourceConfig    `yaml:"source"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Backfill  BackfillConfig  `yaml:"backfill"`
}

// WarehouseConfig holds Redshift connection settings.
type WarehouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN builds the postgres-protocol connection string. Redshift speaks the
// Postgres wire protocol, so lib/pq connects to it directly.
func (c WarehouseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password),
		c.Host, c.Port, c.Database, c.SSLMode)
}

// SourceConfig holds the raw-event source settings. Buckets maps a partner
// slug to the S3 bucket its Snowplow enriched stream lands in; the mapping
// is deployment configuration, never computed.
type SourceConfig struct {
	Region     string            `yaml:"region"`
	AWSProfile string            `yaml:"aws_profile"` // empty uses the default credential chain (IAM role)
	Prefix     string            `yaml:"prefix"`
	Buckets    map[string]string `yaml:"buckets"`
}

// BucketFor resolves the raw-event bucket for a partner site.
func (c SourceConfig) BucketFor(s site.Name) (string, error) {
	b, ok := c.Buckets[s.String()]
	if !ok || b == "" {
		return "", fmt.Errorf("no source bucket configured for site %s", s)
	}
	return b, nil
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	MaxRejectionSamples int    `yaml:"max_rejection_samples"`
	TargetTable         string `yaml:"target_table"`
}

// BackfillConfig holds backfill driver settings.
type BackfillConfig struct {
	// OnFailure is "halt" (stop at the first failed unit) or "continue".
	OnFailure string `yaml:"on_failure"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) first, so secrets can live in .env
// locally and in real env vars on Lambda/ECS. If path is empty or the file
// does not exist, configuration comes entirely from the environment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := Load(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}
	cfg.applyDefaults()

	if v := os.Getenv("WAREHOUSE_HOST"); v != "" {
		cfg.Warehouse.Host = v
	}
	if v := os.Getenv("WAREHOUSE_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAREHOUSE_PORT %q: %w", v, err)
		}
		cfg.Warehouse.Port = p
	}
	if v := os.Getenv("WAREHOUSE_DATABASE"); v != "" {
		cfg.Warehouse.Database = v
	}
	if v := os.Getenv("WAREHOUSE_USER"); v != "" {
		cfg.Warehouse.User = v
	}
	if v := os.Getenv("WAREHOUSE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}
	if v := os.Getenv("SOURCE_REGION"); v != "" {
		cfg.Source.Region = v
	}
	if v := os.Getenv("SOURCE_PREFIX"); v != "" {
		cfg.Source.Prefix = v
	}
	if v := os.Getenv("BACKFILL_ON_FAILURE"); v != "" {
		cfg.Backfill.OnFailure = v
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Warehouse.Port == 0 {
		c.Warehouse.Port = 5439
	}
	if c.Warehouse.SSLMode == "" {
		c.Warehouse.SSLMode = "require"
	}
	if c.Source.Region == "" {
		c.Source.Region = "us-east-1"
	}
	if c.Source.Prefix == "" {
		c.Source.Prefix = "enriched/good"
	}
	if c.Pipeline.MaxRejectionSamples == 0 {
		c.Pipeline.MaxRejectionSamples = 25
	}
	if c.Pipeline.TargetTable == "" {
		c.Pipeline.TargetTable = "events"
	}
	if c.Backfill.OnFailure == "" {
		c.Backfill.OnFailure = "halt"
	}
}
