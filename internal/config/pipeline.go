package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

// LoadPipeline reads a YAML pipeline definition. Staging entries without a
// bucket, region or credentials handle inherit them from cfg when it is non-nil.
func LoadPipeline(path string, cfg *Config) (models.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.PipelineDefinition{}, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return ParsePipeline(data, cfg)
}

// ParsePipeline decodes a definition. Omitted retry settings keep their
// defaults; delays use Go duration syntax ("5m").
func ParsePipeline(data []byte, cfg *Config) (models.PipelineDefinition, error) {
	def := models.PipelineDefinition{Schedule: models.DefaultSchedule, Retry: models.DefaultRetryPolicy()}
	if cfg != nil {
		def.Retry.Retries = cfg.Retries
		def.Retry.Delay = cfg.RetryDelay
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return models.PipelineDefinition{}, perrors.NewConfigurationError("pipeline", "failed to parse YAML: %v", err)
	}
	if def.Retry.Retries < 0 || def.Retry.Delay < 0 {
		return models.PipelineDefinition{}, perrors.NewConfigurationError("pipeline", "retry settings must not be negative")
	}

	for i := range def.Staging {
		s := &def.Staging[i]
		if cfg != nil {
			if s.Bucket == "" {
				s.Bucket = cfg.Bucket
			}
			if s.CredentialsID == "" {
				s.CredentialsID = cfg.CredentialsID
			}
			if s.Region == "" {
				s.Region = cfg.Region
			}
		}
	}
	return def, nil
}
