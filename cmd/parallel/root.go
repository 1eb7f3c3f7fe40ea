package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/petrijr/parallel"
	"github.com/petrijr/parallel/internal/config"
	"github.com/petrijr/parallel/internal/logging"
)

type runFlags struct {
	tasks     int
	count     int
	percent   float64
	duration  time.Duration
	steps     int
	failEvery int
	mode      string
	progress  bool
	history   string
	timeout   time.Duration
	logLevel  string
	logFormat string
}

// newRootCmd creates the root cobra command for the parallel demo CLI.
func newRootCmd() *cobra.Command {
	var f runFlags

	root := &cobra.Command{
		Use:   "parallel",
		Short: "Run a batch of synthetic tasks on the parallel scheduler",
		Long: `parallel submits a batch of CPU-bound synthetic tasks, waits for them
and prints a summary.

The CPU budget defaults to PARALLEL_MAX_COUNT / PARALLEL_MAX_PERCENT or the
number of logical cores.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), f)
		},
	}

	fl := root.Flags()
	fl.IntVarP(&f.tasks, "tasks", "n", 16, "Number of tasks to submit")
	fl.IntVarP(&f.count, "jobs", "j", 0, "Maximum concurrent tasks (default: from environment or number of CPUs)")
	fl.Float64Var(&f.percent, "percent", 0, "Maximum concurrent tasks as a fraction of the CPUs, in [0,1]")
	fl.DurationVar(&f.duration, "duration", 50*time.Millisecond, "How long each task works")
	fl.IntVar(&f.steps, "steps", 10, "Progress steps per task")
	fl.IntVar(&f.failEvery, "fail-every", 0, "Make every Nth task fail (0 disables)")
	fl.StringVar(&f.mode, "mode", "", "Execution mode (auto, parallel, inline)")
	fl.BoolVar(&f.progress, "progress", false, "Log progress of running tasks")
	fl.StringVar(&f.history, "history", "", "SQLite database file to record task events in")
	fl.DurationVar(&f.timeout, "timeout", 0, "Give up waiting after this long (0 waits forever)")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fl.StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")

	return root
}

// crunch is the synthetic worker: it spins through steps slices of
// duration and reports progress after each one.
type crunch struct {
	duration  time.Duration
	steps     int
	failEvery int
}

func newCrunch(args ...any) (parallel.Processor, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("crunch: want 3 constructor arguments, got %d", len(args))
	}
	d, ok1 := args[0].(time.Duration)
	steps, ok2 := args[1].(int)
	failEvery, ok3 := args[2].(int)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("crunch: invalid constructor arguments %v", args)
	}
	return crunch{duration: d, steps: max(1, steps), failEvery: failEvery}, nil
}

func (c crunch) Process(ctx context.Context, args ...any) (any, error) {
	n, _ := args[0].(int)
	if c.failEvery > 0 && n%c.failEvery == 0 {
		return nil, fmt.Errorf("task input %d: synthetic failure", n)
	}

	p := parallel.ProgressFrom(ctx)
	p.SetMessage(fmt.Sprintf("input %d", n), "")
	slice := c.duration / time.Duration(c.steps)
	sum := 0
	for i := range c.steps {
		deadline := time.Now().Add(slice)
		for time.Now().Before(deadline) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			sum += i * n
		}
		p.Advance(1)
		p.Display()
	}
	p.Clear()
	return sum, nil
}

type summary struct {
	processed int
	failed    int
	cancelled int
	pending   int
	busy      time.Duration
}

func summarize(tasks []parallel.Task) summary {
	var s summary
	for _, t := range tasks {
		switch {
		case t.WasCancelled():
			s.cancelled++
		case t.Failed():
			s.failed++
			s.processed++
		case t.WasProcessed():
			s.processed++
			s.busy += t.Duration()
		default:
			s.pending++
		}
	}
	return s
}

func loadConfig(f runFlags) (parallel.Config, error) {
	cfg, err := config.FromEnv(nil)
	if err != nil {
		return cfg, err
	}
	if f.mode != "" {
		if cfg.Mode, err = config.ParseMode(f.mode); err != nil {
			return cfg, err
		}
	}
	if f.count > 0 {
		cfg.MaxCPUCount = f.count
	}
	if f.percent > 0 {
		cfg.MaxCPUPercent = f.percent
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	return cfg, cfg.Validate()
}

func runBatch(ctx context.Context, stdout, stderr io.Writer, f runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if f.tasks < 1 {
		return errors.New("--tasks must be at least 1")
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, stderr)

	opts := []parallel.Option{parallel.WithLogger(logger)}
	if f.progress {
		opts = append(opts, parallel.WithProgressSink(parallel.NewLogSink(logger)))
	}
	if f.history != "" {
		db, err := sql.Open("sqlite", f.history)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(1)

		store, err := parallel.NewSQLiteHistory(db)
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		opts = append(opts, parallel.WithHistory(store))
	}

	s, err := parallel.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer s.Close(context.WithoutCancel(ctx))

	rw, err := s.Using(ctx, parallel.Named("crunch", newCrunch), f.duration, f.steps, f.failEvery)
	if err != nil {
		return err
	}
	if f.progress {
		if err := s.WithProgress(ctx, rw.Identifier, f.steps); err != nil {
			return err
		}
	}

	start := time.Now()
	for i := 1; i <= f.tasks; i++ {
		if _, err := s.RunTask(ctx, i); err != nil {
			return fmt.Errorf("submit task %d: %w", i, err)
		}
	}

	var awaitOpts []parallel.AwaitOption
	if f.timeout > 0 {
		awaitOpts = append(awaitOpts, parallel.WithTimeout(f.timeout))
	}
	done, err := s.AwaitTasksCompletion(ctx, awaitOpts...)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if !done {
		logger.Warn("stopping unfinished tasks", slog.Duration("elapsed", time.Since(start)))
		if err := s.Stop(context.WithoutCancel(ctx), true); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	tasks, err := s.TaskList(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	sum := summarize(tasks)

	fmt.Fprintf(stdout, "mode:      %s\n", s.Mode())
	fmt.Fprintf(stdout, "tasks:     %s processed, %s failed, %s cancelled, %s pending\n",
		humanize.Comma(int64(sum.processed)), humanize.Comma(int64(sum.failed)),
		humanize.Comma(int64(sum.cancelled)), humanize.Comma(int64(sum.pending)))
	fmt.Fprintf(stdout, "elapsed:   %s (worker time %s, speedup x%s)\n",
		elapsed.Round(time.Millisecond), sum.busy.Round(time.Millisecond),
		humanize.FtoaWithDigits(sum.busy.Seconds()/max(elapsed.Seconds(), 1e-9), 2))
	if f.history != "" {
		events := 0
		for _, t := range tasks {
			evs, err := s.ListEvents(context.WithoutCancel(ctx), t.ID)
			if err != nil {
				return err
			}
			events += len(evs)
		}
		fmt.Fprintf(stdout, "history:   %s events in %s\n", humanize.Comma(int64(events)), f.history)
	}

	if sum.failed > 0 {
		fmt.Fprintf(stderr, "%d task(s) failed\n", sum.failed)
	}
	return nil
}
