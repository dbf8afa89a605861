package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmanchik/sparkify-pipeline/internal/dag"
	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/etl"
)

func setRequired(t *testing.T) {
	t.Setenv("WAREHOUSE_DSN", "postgres://awsuser@cluster:5439/dev")
	t.Setenv("S3_BUCKET", "udacity-dend")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	for _, k := range []string{"WAREHOUSE_DRIVER", "AWS_REGION", "PIPELINE_MAX_PARALLEL", "PIPELINE_RETRIES", "PIPELINE_RETRY_DELAY", "MONGO_DATABASE"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "pgx", cfg.WarehouseDriver)
	assert.Equal(t, "us-west-2", cfg.Region)
	assert.Equal(t, 4, cfg.MaxParallel)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 5*time.Minute, cfg.RetryDelay)
	assert.Equal(t, "pipeline", cfg.MongoDatabase)

	def := cfg.Definition()
	assert.Equal(t, "udacity-dend", def.Staging[0].Bucket)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("WAREHOUSE_DRIVER", "sqlserver")
	t.Setenv("PIPELINE_RETRIES", "0")
	t.Setenv("PIPELINE_RETRY_DELAY", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", cfg.WarehouseDriver)
	assert.Equal(t, 0, cfg.Definition().Retry.Retries)
	assert.Equal(t, 30*time.Second, cfg.Definition().Retry.Delay)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing dsn", func(t *testing.T) {
		t.Setenv("WAREHOUSE_DSN", "")
		t.Setenv("S3_BUCKET", "b")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "WAREHOUSE_DSN")
	})
	t.Run("missing bucket", func(t *testing.T) {
		t.Setenv("WAREHOUSE_DSN", "dsn")
		t.Setenv("S3_BUCKET", "")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "S3_BUCKET")
	})
	t.Run("bad parallelism", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PIPELINE_MAX_PARALLEL", "many")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "PIPELINE_MAX_PARALLEL")
	})
}

func TestLoadPipelineFromRepository(t *testing.T) {
	cfg := &Config{Bucket: "udacity-dend", Region: "us-west-2", CredentialsID: "aws_credentials", Retries: 1, RetryDelay: time.Second}

	def, err := LoadPipeline(filepath.Join("..", "..", "configs", "pipeline.yaml"), cfg)
	require.NoError(t, err)

	assert.Equal(t, "@hourly", def.Schedule)
	assert.Equal(t, 3, def.Retry.Retries)
	assert.Equal(t, 5*time.Minute, def.Retry.Delay)
	require.Len(t, def.Staging, 2)
	assert.Equal(t, "udacity-dend", def.Staging[0].Bucket)
	assert.Equal(t, "aws_credentials", def.Staging[1].CredentialsID)
	assert.False(t, def.Fact.Replace)
	assert.True(t, def.Dimensions[3].Replace)

	g, err := dag.Build(def, etl.Run{ID: "r", LogicalDate: time.Date(2018, 11, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, 10, g.Len())
}

func TestParsePipelineKeepsConfiguredRetries(t *testing.T) {
	cfg := &Config{Bucket: "b", Retries: 1, RetryDelay: time.Second}
	def, err := ParsePipeline([]byte("name: mini\nstaging:\n  - task: s\n    table: staging_x\n    key: x\n"), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, def.Retry.Retries)
	assert.Equal(t, time.Second, def.Retry.Delay)
	assert.Equal(t, "b", def.Staging[0].Bucket)
}

func TestParsePipelineRejectsBadYAML(t *testing.T) {
	_, err := ParsePipeline([]byte("retry:\n  delay: soon\n"), nil)
	assert.True(t, perrors.IsConfiguration(err))

	path := filepath.Join(t.TempDir(), "missing.yaml")
	_, err = LoadPipeline(path, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
