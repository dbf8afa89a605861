// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmanchik/sparkify-pipeline/pkg/logger"
)

// Options are the persistent flags shared by every sub-command.
type Options struct {
	PipelineFile string
	LogFile      string
	LogLevel     string
}

// NewRootCmd creates and configures the main "root" command
// for the application. It attaches all sub-commands.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "sparkify",
		Short: "Sparkify - hourly S3 to Redshift star-schema pipeline",
		Long: `Sparkify stages raw event and song JSON from S3 into Redshift, loads the
songplays fact table and its user, song, artist and time dimensions, and
verifies the result with a row-count quality gate.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging(opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.PipelineFile, "pipeline", "p", "", "Path to a pipeline YAML file (default: built-in definition)")
	rootCmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "Also write logs to this file (default: $LOG_FILE)")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "info or debug (default: $LOG_LEVEL)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newGraphCmd(opts),
		newCheckCmd(opts),
		newScheduleCmd(opts),
		newBackfillCmd(opts),
		newHistoryCmd(opts),
	)

	return rootCmd
}

func initLogging(opts *Options) error {
	level := logger.INFO
	if strings.EqualFold(firstNonEmpty(opts.LogLevel, os.Getenv("LOG_LEVEL")), "debug") {
		level = logger.DEBUG
	}
	if file := firstNonEmpty(opts.LogFile, os.Getenv("LOG_FILE")); file != "" {
		return logger.InitLogger(file, level)
	}
	logger.SetOutput(os.Stderr, level)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
