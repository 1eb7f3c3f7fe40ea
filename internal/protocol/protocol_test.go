package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/parallel/pkg/api"
)

// recorder answers every command with its action name.
type recorder struct{}

func (recorder) RegisterWorker(RegisterWorker) (any, error) { return ActionRegisterWorker, nil }
func (recorder) GetRegisteredWorker(GetRegisteredWorker) (any, error) {
	return ActionGetRegisteredWorker, nil
}
func (recorder) QueueTask(QueueTask) (any, error)                   { return ActionQueueTask, nil }
func (recorder) GetTasks(GetTasks) (any, error)                     { return ActionGetTasks, nil }
func (recorder) RemoveTask(RemoveTask) (any, error)                 { return ActionRemoveTask, nil }
func (recorder) RemovePendingTasks(RemovePendingTasks) (any, error) { return ActionRemovePendingTasks, nil }
func (recorder) RemoveAllTasks(RemoveAllTasks) (any, error)         { return ActionRemoveAllTasks, nil }
func (recorder) StopRunningTasks(StopRunningTasks) (any, error)     { return ActionStopRunningTasks, nil }
func (recorder) SetMaxCPUCount(SetMaxCPUCount) (any, error)         { return ActionSetMaxCPUCount, nil }
func (recorder) SetMaxCPUPercentage(SetMaxCPUPercentage) (any, error) {
	return ActionSetMaxCPUPercentage, nil
}
func (recorder) Update(Update) (any, error)                       { return ActionUpdate, nil }
func (recorder) Await(Await) (any, error)                         { return ActionAwait, nil }
func (recorder) EnableProgressBar(EnableProgressBar) (any, error) { return ActionEnableProgressBar, nil }
func (recorder) Close(Close) (any, error)                         { return ActionClose, nil }

func TestVisit_RoutesEveryCommand(t *testing.T) {
	cmds := []Command{
		RegisterWorker{Def: api.Func(nil)},
		GetRegisteredWorker{Name: "w"},
		QueueTask{Data: []any{1}},
		GetTasks{},
		RemoveTask{ID: 1},
		RemovePendingTasks{},
		RemoveAllTasks{},
		StopRunningTasks{Force: true},
		SetMaxCPUCount{Count: 2},
		SetMaxCPUPercentage{Percentage: 0.5},
		Update{},
		Await{Deadline: time.Now()},
		EnableProgressBar{Worker: "w", Steps: 3},
		Close{},
	}

	for _, cmd := range cmds {
		env := NewEnvelope(cmd)
		require.True(t, env.Valid())
		require.Equal(t, cmd.Action(), env.Action())

		got, err := Visit(recorder{}, env)
		require.NoError(t, err)
		require.Equal(t, cmd.Action(), got)
	}
}

// unrouted is a command Visit has no case for.
type unrouted struct{}

func (unrouted) Action() Action { return "unrouted" }
func (unrouted) command()       {}

func TestVisit_CoversEveryAction(t *testing.T) {
	all := []Action{
		ActionRegisterWorker, ActionGetRegisteredWorker, ActionQueueTask, ActionGetTasks,
		ActionRemoveTask, ActionRemovePendingTasks, ActionRemoveAllTasks, ActionStopRunningTasks,
		ActionSetMaxCPUCount, ActionSetMaxCPUPercentage, ActionUpdate, ActionAwait,
		ActionEnableProgressBar, ActionClose,
	}
	cmds := map[Action]Command{
		ActionRegisterWorker:      RegisterWorker{},
		ActionGetRegisteredWorker: GetRegisteredWorker{},
		ActionQueueTask:           QueueTask{},
		ActionGetTasks:            GetTasks{},
		ActionRemoveTask:          RemoveTask{},
		ActionRemovePendingTasks:  RemovePendingTasks{},
		ActionRemoveAllTasks:      RemoveAllTasks{},
		ActionStopRunningTasks:    StopRunningTasks{},
		ActionSetMaxCPUCount:      SetMaxCPUCount{},
		ActionSetMaxCPUPercentage: SetMaxCPUPercentage{},
		ActionUpdate:              Update{},
		ActionAwait:               Await{},
		ActionEnableProgressBar:   EnableProgressBar{},
		ActionClose:               Close{},
	}
	require.Len(t, cmds, len(all))

	for _, action := range all {
		cmd, ok := cmds[action]
		require.True(t, ok, "no command for %q", action)
		require.Equal(t, action, cmd.Action())

		got, err := Visit(recorder{}, NewEnvelope(cmd))
		require.NoError(t, err, action)
		require.Equal(t, action, got)
	}
}

func TestVisit_UnroutedCommandIsNotImplemented(t *testing.T) {
	_, err := Visit(recorder{}, NewEnvelope(unrouted{}))
	require.ErrorIs(t, err, api.ErrActionNotImplemented)
	require.ErrorContains(t, err, "unrouted")
}

func TestVisit_RejectsMalformedMessages(t *testing.T) {
	_, err := Visit(recorder{}, "update")
	require.ErrorIs(t, err, api.ErrInvalidMessage)

	_, err = Visit(recorder{}, Envelope{})
	require.ErrorIs(t, err, api.ErrInvalidMessage)

	_, err = Visit(recorder{}, Envelope{action: ActionClose, args: Update{}})
	require.ErrorIs(t, err, api.ErrInvalidMessage)
}

func TestAwaitReply_Idle(t *testing.T) {
	require.True(t, AwaitReply{}.Idle())
	require.False(t, AwaitReply{Pending: 1}.Idle())
	require.False(t, AwaitReply{Running: 1}.Idle())
}
