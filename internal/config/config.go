// Package config loads process settings from environment variables (which
// main populates from an optional .env file) and pipeline definitions from
// YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vmanchik/sparkify-pipeline/pkg/database"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	WarehouseDriver string
	WarehouseDSN    string

	Bucket        string
	Region        string
	CredentialsID string

	// Mongo run history is optional; empty disables it.
	MongoConnString string
	MongoDatabase   string

	MaxParallel int
	Retries     int
	RetryDelay  time.Duration

	LogFile  string
	LogLevel string
}

// LoadConfig loads application settings from environment variables.
func LoadConfig() (*Config, error) {
	dsn := os.Getenv("WAREHOUSE_DSN")
	if dsn == "" {
		return nil, errors.New("WAREHOUSE_DSN environment variable not set")
	}

	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		return nil, errors.New("S3_BUCKET environment variable not set")
	}

	cfg := &Config{
		WarehouseDriver: getenv("WAREHOUSE_DRIVER", database.DriverPgx),
		WarehouseDSN:    dsn,
		Bucket:          bucket,
		Region:          getenv("AWS_REGION", models.DefaultRegion),
		CredentialsID:   os.Getenv("AWS_CREDENTIALS_ID"),
		MongoConnString: os.Getenv("MONGO_CONNECTION_STRING"),
		MongoDatabase:   getenv("MONGO_DATABASE", "pipeline"),
		LogFile:         os.Getenv("LOG_FILE"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.MaxParallel, err = intVar("PIPELINE_MAX_PARALLEL", 4); err != nil {
		return nil, err
	}
	if cfg.Retries, err = intVar("PIPELINE_RETRIES", models.DefaultRetryPolicy().Retries); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = durationVar("PIPELINE_RETRY_DELAY", models.DefaultRetryPolicy().Delay); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Definition returns the built-in pipeline for the configured bucket with the
// configured retry settings applied.
func (c *Config) Definition() models.PipelineDefinition {
	def := models.DefaultDefinition(c.Bucket, c.Region, c.CredentialsID)
	def.Retry.Retries = c.Retries
	def.Retry.Delay = c.RetryDelay
	return def
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intVar(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func durationVar(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration, got %q", key, v)
	}
	return d, nil
}
