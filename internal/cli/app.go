package cli

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vmanchik/sparkify-pipeline/internal/config"
	"github.com/vmanchik/sparkify-pipeline/internal/dag"
	"github.com/vmanchik/sparkify-pipeline/internal/etl"
	"github.com/vmanchik/sparkify-pipeline/internal/metrics"
	"github.com/vmanchik/sparkify-pipeline/internal/report"
	"github.com/vmanchik/sparkify-pipeline/internal/runner"
	"github.com/vmanchik/sparkify-pipeline/internal/warehouse"
	"github.com/vmanchik/sparkify-pipeline/pkg/credentials"
	"github.com/vmanchik/sparkify-pipeline/pkg/database"
	"github.com/vmanchik/sparkify-pipeline/pkg/logger"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

// loadDefinition returns the pipeline to describe. A pipeline file may be
// used without a complete environment; the built-in definition needs one.
func loadDefinition(opts *Options) (models.PipelineDefinition, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		if opts.PipelineFile == "" {
			return models.PipelineDefinition{}, nil, err
		}
		logger.Debugf("Environment incomplete, using pipeline file only: %v", err)
		cfg = nil
	}
	def, err := definitionFor(opts, cfg)
	return def, cfg, err
}

func definitionFor(opts *Options, cfg *config.Config) (models.PipelineDefinition, error) {
	if opts.PipelineFile == "" {
		return cfg.Definition(), nil
	}
	return config.LoadPipeline(opts.PipelineFile, cfg)
}

func resolveDialect(def models.PipelineDefinition, cfg *config.Config) (warehouse.Dialect, error) {
	if def.Dialect != "" || cfg == nil {
		return warehouse.ParseDialect(def.Dialect)
	}
	return warehouse.DialectForDriver(cfg.WarehouseDriver), nil
}

// app holds the live collaborators of a command that talks to the warehouse.
type app struct {
	cfg      *config.Config
	def      models.PipelineDefinition
	db       *sql.DB
	mongo    *mongo.Client
	env      etl.Env
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	recorder *report.MongoRecorder
}

func newApp(opts *Options) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	def, err := definitionFor(opts, cfg)
	if err != nil {
		return nil, err
	}
	dialect, err := resolveDialect(def, cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.ConnectSQL(cfg.WarehouseDriver, cfg.WarehouseDSN, cfg.MaxParallel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, def: def, db: db, registry: prometheus.NewRegistry()}
	a.metrics = metrics.NewMetrics(a.registry)
	observers := etl.Observers{etl.LogObserver{}, a.metrics}

	if cfg.MongoConnString != "" {
		client, err := database.ConnectMongo(cfg.MongoConnString)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.mongo = client
		a.recorder = report.NewMongoRecorder(client, cfg.MongoDatabase)
		observers = append(observers, a.recorder)
	}

	a.env = etl.Env{
		Warehouse:   warehouse.NewDBConnector(db),
		Credentials: credentials.AWSProvider{Region: cfg.Region},
		Dialect:     dialect,
		Observer:    observers,
	}
	return a, nil
}

func (a *app) Close() {
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.mongo.Disconnect(ctx)
	}
	if a.db != nil {
		a.db.Close()
	}
}

// runPartition builds and executes the graph for one logical partition and
// records the outcome.
func (a *app) runPartition(ctx context.Context, logical time.Time) (*runner.RunResult, error) {
	run := etl.Run{ID: uuid.NewString(), LogicalDate: logical.UTC()}
	g, err := dag.Build(a.def, run)
	if err != nil {
		return nil, err
	}

	res, runErr := runner.New(a.env, runner.PolicyFrom(a.def.Retry, a.cfg.MaxParallel)).Run(ctx, g)
	a.metrics.ObserveRun(res)
	if a.recorder != nil {
		if err := a.recorder.RecordRun(ctx, res); err != nil {
			logger.Errorf("Failed to record run %s: %v", res.RunID, err)
		}
	}
	return res, runErr
}
