package protocol

import (
	"fmt"

	"github.com/petrijr/parallel/pkg/api"
)

// Handler has one method per command. Implementations return the reply
// sent back to the caller.
type Handler interface {
	RegisterWorker(RegisterWorker) (any, error)
	GetRegisteredWorker(GetRegisteredWorker) (any, error)
	QueueTask(QueueTask) (any, error)
	GetTasks(GetTasks) (any, error)
	RemoveTask(RemoveTask) (any, error)
	RemovePendingTasks(RemovePendingTasks) (any, error)
	RemoveAllTasks(RemoveAllTasks) (any, error)
	StopRunningTasks(StopRunningTasks) (any, error)
	SetMaxCPUCount(SetMaxCPUCount) (any, error)
	SetMaxCPUPercentage(SetMaxCPUPercentage) (any, error)
	Update(Update) (any, error)
	Await(Await) (any, error)
	EnableProgressBar(EnableProgressBar) (any, error)
	Close(Close) (any, error)
}

// Visit routes msg to the matching Handler method. Anything that is not a
// well-formed Envelope is rejected with api.ErrInvalidMessage.
func Visit(h Handler, msg any) (any, error) {
	env, ok := msg.(Envelope)
	if !ok || !env.Valid() {
		return nil, fmt.Errorf("%w: %T", api.ErrInvalidMessage, msg)
	}

	switch cmd := env.Args().(type) {
	case RegisterWorker:
		return h.RegisterWorker(cmd)
	case GetRegisteredWorker:
		return h.GetRegisteredWorker(cmd)
	case QueueTask:
		return h.QueueTask(cmd)
	case GetTasks:
		return h.GetTasks(cmd)
	case RemoveTask:
		return h.RemoveTask(cmd)
	case RemovePendingTasks:
		return h.RemovePendingTasks(cmd)
	case RemoveAllTasks:
		return h.RemoveAllTasks(cmd)
	case StopRunningTasks:
		return h.StopRunningTasks(cmd)
	case SetMaxCPUCount:
		return h.SetMaxCPUCount(cmd)
	case SetMaxCPUPercentage:
		return h.SetMaxCPUPercentage(cmd)
	case Update:
		return h.Update(cmd)
	case Await:
		return h.Await(cmd)
	case EnableProgressBar:
		return h.EnableProgressBar(cmd)
	case Close:
		return h.Close(cmd)
	default:
		return nil, fmt.Errorf("%w: %q", api.ErrActionNotImplemented, env.Action())
	}
}
