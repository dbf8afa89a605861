// Package models holds the declarative description of a pipeline: which
// source partitions are staged, which transforms load the star schema, and
// which tables the quality gate inspects.
package models

import (
	"strings"
	"time"
)

// StagingSpec describes one source-to-staging copy.
type StagingSpec struct {
	Task          string `yaml:"task" json:"task"`
	Table         string `yaml:"table" json:"table"`
	Bucket        string `yaml:"bucket" json:"bucket"`
	KeyPattern    string `yaml:"key" json:"key"`
	Region        string `yaml:"region" json:"region"`
	JSONPath      string `yaml:"jsonPath" json:"jsonPath"`
	CredentialsID string `yaml:"credentials" json:"credentials"`
}

// LoadSpec describes an INSERT ... SELECT into a fact or dimension table.
// Replace clears the table first; without it the SQL must avoid duplicates itself.
type LoadSpec struct {
	Task    string `yaml:"task" json:"task"`
	Table   string `yaml:"table" json:"table"`
	SQL     string `yaml:"sql" json:"sql"`
	Replace bool   `yaml:"replace" json:"replace"`
}

// QualitySpec lists the tables that must be non-empty, checked in order.
type QualitySpec struct {
	Task   string   `yaml:"task" json:"task"`
	Tables []string `yaml:"tables" json:"tables"`
}

type RetryPolicy struct {
	Retries              int           `yaml:"retries" json:"retries"`
	Delay                time.Duration `yaml:"delay" json:"delay"`
	RetryQualityFailures bool          `yaml:"retryQualityFailures" json:"retryQualityFailures"`
}

// PipelineDefinition is the full, per-run configuration of the pipeline.
type PipelineDefinition struct {
	Name       string        `yaml:"name" json:"name"`
	Schedule   string        `yaml:"schedule" json:"schedule"`
	Dialect    string        `yaml:"dialect" json:"dialect"`
	Retry      RetryPolicy   `yaml:"retry" json:"retry"`
	Staging    []StagingSpec `yaml:"staging" json:"staging"`
	Fact       LoadSpec      `yaml:"fact" json:"fact"`
	Dimensions []LoadSpec    `yaml:"dimensions" json:"dimensions"`
	Quality    QualitySpec   `yaml:"quality" json:"quality"`
}

const (
	DefaultSchedule = "@hourly"
	DefaultRegion   = "us-west-2"
	AutoJSONPath    = "auto"
)

// DefaultRetryPolicy mirrors the hourly deployment: three retries, five minutes apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, Delay: 5 * time.Minute}
}

// DefaultDefinition builds the songplays star-schema pipeline for a bucket.
// Every call returns freshly allocated slices.
func DefaultDefinition(bucket, region, credentialsID string) PipelineDefinition {
	if region == "" {
		region = DefaultRegion
	}
	return PipelineDefinition{
		Name:     "sparkify",
		Schedule: DefaultSchedule,
		Dialect:  "redshift",
		Retry:    DefaultRetryPolicy(),
		Staging: []StagingSpec{
			{
				Task:          "Stage_events",
				Table:         "staging_events",
				Bucket:        bucket,
				KeyPattern:    "log-data",
				Region:        region,
				JSONPath:      "s3://" + BucketName(bucket) + "/log_json_path.json",
				CredentialsID: credentialsID,
			},
			{
				Task:          "Stage_songs",
				Table:         "staging_songs",
				Bucket:        bucket,
				KeyPattern:    "song-data",
				Region:        region,
				JSONPath:      AutoJSONPath,
				CredentialsID: credentialsID,
			},
		},
		Fact: LoadSpec{Task: "Load_songplays_fact_table", Table: "songplays", SQL: SongplayTableInsert},
		Dimensions: []LoadSpec{
			{Task: "Load_user_dim_table", Table: "users", SQL: UserTableInsert, Replace: true},
			{Task: "Load_song_dim_table", Table: "songs", SQL: SongTableInsert, Replace: true},
			{Task: "Load_artist_dim_table", Table: "artists", SQL: ArtistTableInsert, Replace: true},
			{Task: "Load_time_dim_table", Table: "time", SQL: TimeTableInsert, Replace: true},
		},
		Quality: QualitySpec{
			Task:   "Run_data_quality_checks",
			Tables: []string{"songplays", "users", "songs", "artists", "time"},
		},
	}
}

// Clone returns a deep copy so that graphs built from it never share slices
// with the caller.
func (d PipelineDefinition) Clone() PipelineDefinition {
	out := d
	out.Staging = append([]StagingSpec(nil), d.Staging...)
	out.Dimensions = append([]LoadSpec(nil), d.Dimensions...)
	out.Quality.Tables = append([]string(nil), d.Quality.Tables...)
	return out
}

// BucketName strips an optional s3:// scheme and trailing slashes.
func BucketName(bucket string) string {
	return strings.TrimRight(strings.TrimPrefix(bucket, "s3://"), "/")
}
