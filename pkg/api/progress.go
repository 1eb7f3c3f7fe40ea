package api

// ProgressAction names an operation forwarded to a progress aggregator.
type ProgressAction string

const (
	ProgressAdvance     ProgressAction = "advance"
	ProgressSetMessage  ProgressAction = "setMessage"
	ProgressSetProgress ProgressAction = "setProgress"
	ProgressDisplay     ProgressAction = "display"
	ProgressClear       ProgressAction = "clear"
)

// MainContextID tags stats reports emitted by the runner itself.
const MainContextID = "__main__"

// ProgressSink is the message API of a progress aggregator.
//
// Rendering is up to the implementation. Calls may arrive from many
// goroutines and are not ordered relative to scheduling.
type ProgressSink interface {
	RegisterWorker(name string, totalSteps int)
	Action(name ProgressAction, args ...any)
	StatsReport(contextID string, memoryBytes uint64)
}

// Progress is what worker logic uses to report progress. Calls are no-ops
// unless progress was enabled for the worker.
type Progress interface {
	Advance(steps int)
	SetMessage(message, name string)
	SetProgress(step int)
	Display()
	Clear()
}

// NoopProgressSink discards everything.
type NoopProgressSink struct{}

func (NoopProgressSink) RegisterWorker(string, int)    {}
func (NoopProgressSink) Action(ProgressAction, ...any) {}
func (NoopProgressSink) StatsReport(string, uint64)    {}

// NoopProgress is the Progress handed to workers without progress enabled.
type NoopProgress struct{}

func (NoopProgress) Advance(int)               {}
func (NoopProgress) SetMessage(string, string) {}
func (NoopProgress) SetProgress(int)           {}
func (NoopProgress) Display()                  {}
func (NoopProgress) Clear()                    {}
