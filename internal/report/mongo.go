// Package report persists task events and run outcomes to MongoDB so runs can
// be inspected after the process exits.
package report

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/etl"
	"github.com/vmanchik/sparkify-pipeline/internal/runner"
	"github.com/vmanchik/sparkify-pipeline/pkg/logger"
)

const (
	EventsCollection = "task_events"
	TasksCollection  = "task_runs"
	RunsCollection   = "pipeline_runs"

	writeTimeout = 5 * time.Second
)

type MongoRecorder struct {
	DB *mongo.Database
}

func NewMongoRecorder(client *mongo.Client, database string) *MongoRecorder {
	return &MongoRecorder{DB: client.Database(database)}
}

// Observe appends the event to the events collection. Write failures are
// logged and never fail the task that emitted the event.
func (m *MongoRecorder) Observe(ctx context.Context, e etl.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if _, err := m.DB.Collection(EventsCollection).InsertOne(ctx, eventDocument(e)); err != nil {
		logger.Errorf("Skipping event %s/%s due to mongo error: %v", e.Task, e.Stage, err)
	}
}

// RecordRun upserts one document per task plus a run summary. Re-recording a
// run replaces its previous documents.
func (m *MongoRecorder) RecordRun(ctx context.Context, res *runner.RunResult) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	writes := taskWrites(res)
	if len(writes) > 0 {
		out, err := m.DB.Collection(TasksCollection).BulkWrite(ctx, writes)
		if err != nil {
			return fmt.Errorf("record task results for run %s: %w", res.RunID, err)
		}
		logger.Infof("Mongo BulkWrite: Match %d, Mod %d, Upsert %d", out.MatchedCount, out.ModifiedCount, out.UpsertedCount)
	}

	_, err := m.DB.Collection(RunsCollection).UpdateOne(ctx,
		bson.M{"_id": res.RunID},
		bson.M{"$set": runDocument(res)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", res.RunID, err)
	}
	return nil
}

// RunSummary is a stored run as returned by History.
type RunSummary struct {
	RunID       string    `bson:"_id"`
	LogicalDate time.Time `bson:"logical_date"`
	Status      string    `bson:"status"`
	Error       string    `bson:"error,omitempty"`
	ErrorCode   string    `bson:"error_code,omitempty"`
	StartedAt   time.Time `bson:"started_at"`
	FinishedAt  time.Time `bson:"finished_at"`
	Failed      []string  `bson:"failed_tasks,omitempty"`
}

// History returns the most recent runs, newest first.
func (m *MongoRecorder) History(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	findOpts := options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "started_at", Value: -1}})

	cursor, err := m.DB.Collection(RunsCollection).Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []RunSummary
	for cursor.Next(ctx) {
		var doc RunSummary
		if err := cursor.Decode(&doc); err != nil {
			logger.Errorf("Error decoding run summary: %v", err)
			continue
		}
		results = append(results, doc)
	}
	return results, cursor.Err()
}

func eventDocument(e etl.Event) bson.M {
	doc := bson.M{
		"run_id": e.RunID,
		"task":   e.Task,
		"stage":  string(e.Stage),
		"time":   e.Time,
	}
	if e.Table != "" {
		doc["table"] = e.Table
	}
	if e.Location != "" {
		doc["location"] = e.Location
	}
	if e.Stage == etl.StageQualityPassed {
		doc["rows"] = e.Rows
	}
	if e.Attempt > 0 {
		doc["attempt"] = e.Attempt
	}
	if e.Err != nil {
		doc["error"] = e.Err.Error()
		doc["error_code"] = string(perrors.Code(e.Err))
	}
	return doc
}

func taskWrites(res *runner.RunResult) []mongo.WriteModel {
	writes := make([]mongo.WriteModel, 0, len(res.Tasks))
	for _, t := range res.Tasks {
		doc := bson.M{
			"run_id":       res.RunID,
			"task":         t.Task,
			"logical_date": res.LogicalDate,
			"status":       string(t.Status),
			"attempts":     t.Attempts,
		}
		if !t.StartedAt.IsZero() {
			doc["started_at"] = t.StartedAt
			doc["finished_at"] = t.FinishedAt
		}
		if t.Err != nil {
			doc["error"] = t.Err.Error()
			doc["error_code"] = string(perrors.Code(t.Err))
		}
		filter := bson.M{"_id": res.RunID + "/" + t.Task}
		writes = append(writes, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(bson.M{"$set": doc}).SetUpsert(true))
	}
	return writes
}

func runDocument(res *runner.RunResult) bson.M {
	doc := bson.M{
		"logical_date": res.LogicalDate,
		"status":       string(res.Status),
		"started_at":   res.StartedAt,
		"finished_at":  res.FinishedAt,
	}
	var failed []string
	for _, t := range res.Tasks {
		if t.Status == runner.StatusFailed {
			failed = append(failed, t.Task)
		}
	}
	if len(failed) > 0 {
		doc["failed_tasks"] = failed
	}
	if res.Err != nil {
		doc["error"] = res.Err.Error()
		doc["error_code"] = string(perrors.Code(res.Err))
	}
	return doc
}
