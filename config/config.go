/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package config loads kvstore settings from YAML, an optional .env file and
// the process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds all kvstore configuration.
type Config struct {
	// StorageDir is where store files are read and written.
	StorageDir string `yaml:"storage_dir"`

	// DefaultToken names the store used when a command gives none.
	DefaultToken string `yaml:"default_token"`

	// Autosave marks newly created stores for saving after every write.
	Autosave bool `yaml:"autosave"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// DynamoDB snapshot backend
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DynamoDBConfig configures the snapshot table.
type DynamoDBConfig struct {
	Region          string `yaml:"region"`
	Table           string `yaml:"table"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"` // local DynamoDB, empty for AWS
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		StorageDir:   "store",
		DefaultToken: "default",
		Logging: LoggingConfig{
			Level: "info",
		},
		DynamoDB: DynamoDBConfig{
			Region: "us-east-1",
			Table:  "kvstore-snapshots",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. A .env file next to the config file is read first; variables
// already set in the environment win over it. Environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if dir := os.Getenv("KVSTORE_STORAGE_DIR"); dir != "" {
		c.StorageDir = dir
	}
	if token := os.Getenv("KVSTORE_TOKEN"); token != "" {
		c.DefaultToken = token
	}
	if raw := os.Getenv("KVSTORE_AUTOSAVE"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid KVSTORE_AUTOSAVE %q: %w", raw, err)
		}
		c.Autosave = v
	}
	if level := os.Getenv("KVSTORE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if table := os.Getenv("KVSTORE_DYNAMODB_TABLE"); table != "" {
		c.DynamoDB.Table = table
	}
	if endpoint := os.Getenv("KVSTORE_DYNAMODB_ENDPOINT"); endpoint != "" {
		c.DynamoDB.Endpoint = endpoint
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		c.DynamoDB.Region = region
	}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		c.DynamoDB.AccessKeyID = key
	}
	if secret := os.Getenv("AWS_SECRET_ACCESS_KEY"); secret != "" {
		c.DynamoDB.SecretAccessKey = secret
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir must not be empty")
	}
	if c.DefaultToken == "" {
		return fmt.Errorf("default_token must not be empty")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses the configured logging level.
func (c *Config) LogLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid logging level %q: %w", c.Logging.Level, err)
	}
	return level, nil
}

// ValidateDynamoDB reports whether the snapshot backend is usable.
func (c *Config) ValidateDynamoDB() error {
	switch {
	case c.DynamoDB.Table == "":
		return fmt.Errorf("dynamodb table not configured (set dynamodb.table or KVSTORE_DYNAMODB_TABLE)")
	case c.DynamoDB.Region == "":
		return fmt.Errorf("dynamodb region not configured (set dynamodb.region or AWS_REGION)")
	case c.DynamoDB.AccessKeyID == "" || c.DynamoDB.SecretAccessKey == "":
		return fmt.Errorf("AWS credentials not configured (set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY)")
	}
	return nil
}
