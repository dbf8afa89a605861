package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vmanchik/sparkify-pipeline/internal/dag"
	"github.com/vmanchik/sparkify-pipeline/internal/etl"
	"github.com/vmanchik/sparkify-pipeline/internal/runner"
	"github.com/vmanchik/sparkify-pipeline/internal/scheduler"
	"github.com/vmanchik/sparkify-pipeline/internal/warehouse"
	"github.com/vmanchik/sparkify-pipeline/pkg/logger"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newRunCmd creates the "run" sub-command: one run for one partition.
func newRunCmd(opts *Options) *cobra.Command {
	var partition string
	var dryRun bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once for a logical partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return describe(cmd.OutOrStdout(), opts, partition, true)
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			logical, err := parsePartition(partition, a.def.Schedule, time.Now())
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			res, err := a.runPartition(ctx, logical)
			if res != nil {
				printRunResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}

	runCmd.Flags().StringVar(&partition, "partition", "", "Logical partition, e.g. 2018-11-01T10 (default: previous hour, UTC)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the task graph and statements without executing them")

	return runCmd
}

func newGraphCmd(opts *Options) *cobra.Command {
	var partition string
	var statements bool

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Validate the pipeline and print its tasks in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return describe(cmd.OutOrStdout(), opts, partition, statements)
		},
	}

	graphCmd.Flags().StringVar(&partition, "partition", "", "Logical partition used to render source keys")
	graphCmd.Flags().BoolVar(&statements, "statements", false, "Also print the SQL each task issues (credentials masked)")

	return graphCmd
}

func newCheckCmd(opts *Options) *cobra.Command {
	var tables []string

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run the data quality gate against the warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(tables) == 0 {
				tables = a.def.Quality.Tables
			}
			op, err := etl.NewQualityOperator(models.QualitySpec{Task: "Run_data_quality_checks", Tables: tables})
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			run := etl.Run{ID: uuid.NewString(), LogicalDate: time.Now().UTC()}
			results, err := op.Check(ctx, a.env, run)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TABLE\tROWS")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%d\n", r.Table, r.Rows)
			}
			w.Flush()
			return err
		},
	}

	checkCmd.Flags().StringSliceVar(&tables, "tables", nil, "Tables to check (default: the pipeline's quality tables)")

	return checkCmd
}

func newScheduleCmd(opts *Options) *cobra.Command {
	var metricsAddr string

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on its schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			if metricsAddr != "" {
				srv := serveMetrics(a, metricsAddr)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			s, err := scheduler.New(a.def.Schedule, func(ctx context.Context, logical time.Time) error {
				_, err := a.runPartition(ctx, logical)
				return err
			}, logger.Logger())
			if err != nil {
				return err
			}
			return s.Start(ctx)
		},
	}

	scheduleCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9102")

	return scheduleCmd
}

func serveMetrics(a *app, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server stopped: %v", err)
		}
	}()
	return srv
}

func newBackfillCmd(opts *Options) *cobra.Command {
	var from, to string

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run every scheduled partition in [from, to) in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parsePartition(from, "", time.Now())
			if err != nil {
				return err
			}
			end, err := parsePartition(to, "", time.Now())
			if err != nil {
				return err
			}
			if !start.Before(end) {
				return fmt.Errorf("--from %s must be before --to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			s, err := scheduler.New(a.def.Schedule, func(ctx context.Context, logical time.Time) error {
				res, err := a.runPartition(ctx, logical)
				if res != nil {
					printRunResult(cmd.OutOrStdout(), res)
				}
				return err
			}, logger.Logger())
			if err != nil {
				return err
			}
			return s.Backfill(ctx, start, end)
		},
	}

	backfillCmd.Flags().StringVar(&from, "from", "", "First partition (inclusive)")
	backfillCmd.Flags().StringVar(&to, "to", "", "Last partition (exclusive)")
	backfillCmd.MarkFlagRequired("from")
	backfillCmd.MarkFlagRequired("to")

	return backfillCmd
}

func newHistoryCmd(opts *Options) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs recorded in MongoDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.recorder == nil {
				return errors.New("MONGO_CONNECTION_STRING environment variable not set")
			}
			runs, err := a.recorder.History(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "RUN\tPARTITION\tSTATUS\tDURATION\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.RunID, r.LogicalDate.UTC().Format(time.RFC3339), r.Status,
					r.FinishedAt.Sub(r.StartedAt).Round(time.Second), strings.Join(r.Failed, ","))
			}
			return w.Flush()
		},
	}

	historyCmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")

	return historyCmd
}

// describe builds the graph for a partition and prints it. It never connects
// to the warehouse.
func describe(out io.Writer, opts *Options, partition string, statements bool) error {
	def, cfg, err := loadDefinition(opts)
	if err != nil {
		return err
	}
	logical, err := parsePartition(partition, def.Schedule, time.Now())
	if err != nil {
		return err
	}
	dialect, err := resolveDialect(def, cfg)
	if err != nil {
		return err
	}
	g, err := dag.Build(def, etl.Run{ID: "dry-run", LogicalDate: logical})
	if err != nil {
		return err
	}
	printGraph(out, g, dialect, statements)
	return nil
}

func printGraph(out io.Writer, g *dag.Graph, dialect warehouse.Dialect, statements bool) {
	run := g.Run()
	fmt.Fprintf(out, "Partition %s (%s dialect), %d tasks\n", run.LogicalDate.UTC().Format(time.RFC3339), dialect, g.Len())
	for i, name := range g.TopologicalOrder() {
		task, _ := g.Task(name)
		line := fmt.Sprintf("%2d. %s [%s]", i+1, name, task.Kind)
		if len(task.Upstream) > 0 {
			line += " <- " + strings.Join(task.Upstream, ", ")
		}
		fmt.Fprintln(out, line)
		if !statements || task.Operator == nil {
			continue
		}
		for _, stmt := range task.Operator.Statements(dialect, run) {
			fmt.Fprintf(out, "      %s\n", strings.Join(strings.Fields(stmt), " "))
		}
	}
}

func printRunResult(out io.Writer, res *runner.RunResult) {
	fmt.Fprintf(out, "Run %s for %s: %s in %s\n", res.RunID, res.LogicalDate.UTC().Format(time.RFC3339),
		res.Status, res.Duration().Round(time.Millisecond))
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tATTEMPTS\tERROR")
	for _, t := range res.Tasks {
		msg := ""
		if t.Err != nil {
			msg = t.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.Task, t.Status, t.Attempts, msg)
	}
	w.Flush()
}
