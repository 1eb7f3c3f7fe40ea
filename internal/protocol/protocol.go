// Package protocol defines the messages exchanged between the scheduler
// facade and the runner actor.
//
// Every remote call is an Envelope wrapping one Command. The set of
// commands is closed: Command has an unexported marker method, so only this
// package can add variants. Visit dispatches each variant to its Handler
// method; a variant Visit has no case for is answered with
// api.ErrActionNotImplemented.
package protocol

import (
	"time"

	"github.com/petrijr/parallel/pkg/api"
)

// Action names a command on the wire and in logs.
type Action string

const (
	ActionRegisterWorker      Action = "registerWorker"
	ActionGetRegisteredWorker Action = "getRegisteredWorker"
	ActionQueueTask           Action = "queueTask"
	ActionGetTasks            Action = "getTasks"
	ActionRemoveTask          Action = "removeTask"
	ActionRemovePendingTasks  Action = "removePendingTasks"
	ActionRemoveAllTasks      Action = "removeAllTasks"
	ActionStopRunningTasks    Action = "stopRunningTasks"
	ActionSetMaxCPUCount      Action = "setMaxCpuCount"
	ActionSetMaxCPUPercentage Action = "setMaxCpuPercentage"
	ActionUpdate              Action = "update"
	ActionAwait               Action = "await"
	ActionEnableProgressBar   Action = "enableProgressBar"
	ActionClose               Action = "close"
)

// Command is one variant of the closed command union.
type Command interface {
	Action() Action
	command()
}

// Envelope describes one remote call. It is immutable once built.
type Envelope struct {
	action Action
	args   Command
}

// NewEnvelope wraps cmd.
func NewEnvelope(cmd Command) Envelope {
	return Envelope{action: cmd.Action(), args: cmd}
}

func (e Envelope) Action() Action { return e.action }
func (e Envelope) Args() Command  { return e.args }

// Valid reports whether the envelope carries a command matching its action.
func (e Envelope) Valid() bool {
	return e.args != nil && e.args.Action() == e.action
}

type RegisterWorker struct {
	Def  api.WorkerDef
	Args []any
}

type GetRegisteredWorker struct {
	Name string
}

type QueueTask struct {
	Data []any
}

type GetTasks struct{}

type RemoveTask struct {
	ID int
}

type RemovePendingTasks struct{}

type RemoveAllTasks struct{}

// StopRunningTasks harvests finished contexts and, when Force is set,
// cancels the others. DetachPending empties the pending queue first while
// keeping those tasks in the table.
type StopRunningTasks struct {
	Force         bool
	DetachPending bool
}

type SetMaxCPUCount struct {
	Count int
}

type SetMaxCPUPercentage struct {
	Percentage float64
}

// Update is the internal tick: harvest, then admit.
type Update struct{}

// Await asks whether pending or running tasks remain. A zero Deadline
// means no deadline.
type Await struct {
	Deadline time.Time
}

type EnableProgressBar struct {
	Worker string
	Steps  int
}

// Close stops the runner loop.
type Close struct{}

func (RegisterWorker) Action() Action      { return ActionRegisterWorker }
func (GetRegisteredWorker) Action() Action { return ActionGetRegisteredWorker }
func (QueueTask) Action() Action           { return ActionQueueTask }
func (GetTasks) Action() Action            { return ActionGetTasks }
func (RemoveTask) Action() Action          { return ActionRemoveTask }
func (RemovePendingTasks) Action() Action  { return ActionRemovePendingTasks }
func (RemoveAllTasks) Action() Action      { return ActionRemoveAllTasks }
func (StopRunningTasks) Action() Action    { return ActionStopRunningTasks }
func (SetMaxCPUCount) Action() Action      { return ActionSetMaxCPUCount }
func (SetMaxCPUPercentage) Action() Action { return ActionSetMaxCPUPercentage }
func (Update) Action() Action              { return ActionUpdate }
func (Await) Action() Action               { return ActionAwait }
func (EnableProgressBar) Action() Action   { return ActionEnableProgressBar }
func (Close) Action() Action               { return ActionClose }

func (RegisterWorker) command()      {}
func (GetRegisteredWorker) command() {}
func (QueueTask) command()           {}
func (GetTasks) command()            {}
func (RemoveTask) command()          {}
func (RemovePendingTasks) command()  {}
func (RemoveAllTasks) command()      {}
func (StopRunningTasks) command()    {}
func (SetMaxCPUCount) command()      {}
func (SetMaxCPUPercentage) command() {}
func (Update) command()              {}
func (Await) command()               {}
func (EnableProgressBar) command()   {}
func (Close) command()               {}
