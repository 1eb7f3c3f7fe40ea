package parallel

import (
	"database/sql"
	"log/slog"

	"github.com/petrijr/parallel/internal/config"
	"github.com/petrijr/parallel/internal/history"
	"github.com/petrijr/parallel/internal/progress"
	"github.com/petrijr/parallel/pkg/api"
	"github.com/petrijr/parallel/pkg/worker"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Task                 = api.Task
	TaskState            = api.TaskState
	WorkerDef            = api.WorkerDef
	NamedWorker          = api.NamedWorker
	FuncWorker           = api.FuncWorker
	RegisteredWorker     = api.RegisteredWorker
	Processor            = api.Processor
	ProcessFunc          = api.ProcessFunc
	Constructor          = api.Constructor
	Progress             = api.Progress
	ProgressSink         = api.ProgressSink
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	TaskEvent            = api.TaskEvent
	EventType            = api.EventType
	ParallelError        = api.ParallelError

	Config = config.Config
	Mode   = config.Mode

	HistoryStore = history.Store
	LogSink      = progress.LogSink
)

// Re-export task states.

const (
	TaskPending    = api.TaskPending
	TaskStarting   = api.TaskStarting
	TaskProcessing = api.TaskProcessing
	TaskProcessed  = api.TaskProcessed
	TaskCancelled  = api.TaskCancelled
)

// Re-export execution modes.

const (
	ModeAuto     = config.ModeAuto
	ModeParallel = config.ModeParallel
	ModeInline   = config.ModeInline
)

// Re-export errors so callers can use errors.Is without importing pkg/api.

var (
	ErrNoWorkerSelected        = api.ErrNoWorkerSelected
	ErrWorkerAlreadyRegistered = api.ErrWorkerAlreadyRegistered
	ErrWorkerAlreadyDefined    = api.ErrWorkerAlreadyDefined
	ErrWorkerNotDefined        = api.ErrWorkerNotDefined
	ErrInvalidWorker           = api.ErrInvalidWorker
	ErrInvalidMessage          = api.ErrInvalidMessage
	ErrActionNotImplemented    = api.ErrActionNotImplemented
	ErrTaskStartFailed         = api.ErrTaskStartFailed
	ErrSchedulerClosed         = api.ErrSchedulerClosed
)

// Re-export helpers.

var (
	Named                = api.Named
	Func                 = api.Func
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	ProgressFrom         = worker.ProgressFrom
	DefaultConfig        = config.Default
)

// ConfigFromEnv returns DefaultConfig overridden by the PARALLEL_*
// environment variables.
func ConfigFromEnv() (Config, error) {
	return config.FromEnv(nil)
}

// NewLogSink returns a ProgressSink that aggregates progress and logs a
// status line on every Display call.
func NewLogSink(logger *slog.Logger) *LogSink {
	return progress.NewLogSink(logger)
}

// History constructors.
// These wrap the internal/history package so external callers
// never need to import internal packages.

// NewMemoryHistory returns a HistoryStore kept in memory.
func NewMemoryHistory() HistoryStore {
	return history.NewMemoryStore()
}

// NewSQLiteHistory returns a HistoryStore writing task events to SQLite.
// The schema is created if needed.
func NewSQLiteHistory(db *sql.DB) (HistoryStore, error) {
	return history.NewSQLiteStore(db)
}
