package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/parallel/internal/channel"
	"github.com/petrijr/parallel/internal/logging"
	"github.com/petrijr/parallel/internal/protocol"
	"github.com/petrijr/parallel/pkg/api"
	"github.com/petrijr/parallel/pkg/worker"
)

func testOptions(budget int) Options {
	return Options{
		Hub:          channel.NewHub(),
		Logger:       logging.Discard(),
		Budget:       budget,
		StartTimeout: 2 * time.Second,
	}
}

func newParallel(t *testing.T, opts Options) *ParallelConn {
	t.Helper()
	c, err := StartParallel(opts, 5*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func newInline(t *testing.T, opts Options) *InlineConn {
	t.Helper()
	c, err := StartInline(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// forEachMode runs fn against a parallel and an inline connection.
func forEachMode(t *testing.T, opts func() Options, fn func(t *testing.T, c Conn)) {
	t.Run("parallel", func(t *testing.T) { fn(t, newParallel(t, opts())) })
	t.Run("inline", func(t *testing.T) { fn(t, newInline(t, opts())) })
}

func call[T any](t *testing.T, c Conn, cmd protocol.Command) T {
	t.Helper()
	v, err := c.Call(context.Background(), cmd)
	require.NoError(t, err)
	out, _ := v.(T)
	return out
}

func listTasks(t *testing.T, c Conn) []api.Task {
	t.Helper()
	var out []api.Task
	for task := range call[<-chan api.Task](t, c, protocol.GetTasks{}) {
		out = append(out, task)
	}
	return out
}

func awaitIdle(t *testing.T, c Conn) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !call[protocol.AwaitReply](t, c, protocol.Await{}).Waiting {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("tasks did not complete in time")
}

func waitFor(t *testing.T, c Conn, cond func([]api.Task) bool) []api.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tasks := listTasks(t, c)
		if cond(tasks) {
			return tasks
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
	return nil
}

func count(tasks []api.Task, state api.TaskState) int {
	n := 0
	for _, task := range tasks {
		if task.State == state {
			n++
		}
	}
	return n
}

func double(ctx context.Context, args ...any) (any, error) {
	return args[0].(int) * 2, nil
}

func sleeper(d time.Duration) api.FuncWorker {
	return api.Func(func(ctx context.Context, args ...any) (any, error) {
		select {
		case <-time.After(d):
			return "slept", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func TestQueueTask_DoublesInput(t *testing.T) {
	forEachMode(t, func() Options { return testOptions(4) }, func(t *testing.T, c Conn) {
		call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: api.Func(double)})

		want := map[int]int{}
		prev := -1
		for _, x := range []int{1, 2, 3} {
			id := call[int](t, c, protocol.QueueTask{Data: []any{x}})
			require.Greater(t, id, prev)
			prev = id
			want[id] = x * 2
		}

		awaitIdle(t, c)

		tasks := listTasks(t, c)
		require.Len(t, tasks, 3)
		for _, task := range tasks {
			require.Equal(t, api.TaskProcessed, task.State)
			require.Equal(t, want[task.ID], task.Output)
			require.NoError(t, task.Err)
			require.Equal(t, api.FuncIdentifier(0), task.Worker)
		}
	})
}

func TestQueueTask_WithoutWorker(t *testing.T) {
	forEachMode(t, func() Options { return testOptions(1) }, func(t *testing.T, c Conn) {
		_, err := c.Call(context.Background(), protocol.QueueTask{Data: []any{1}})
		require.ErrorIs(t, err, api.ErrNoWorkerSelected)

		var pe *api.ParallelError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, api.ErrNoWorkerSelected.Error(), pe.Message)
		require.NotEmpty(t, pe.File)
	})
}

func TestQueueTask_BindsToSelectedWorker(t *testing.T) {
	forEachMode(t, func() Options { return testOptions(2) }, func(t *testing.T, c Conn) {
		upper := func(ctx context.Context, args ...any) (any, error) {
			return strings.ToUpper(args[0].(string)), nil
		}
		call[api.RegisteredWorker](t, c, protocol.RegisterWorker{
			Def: api.Named("upper", func(...any) (api.Processor, error) { return api.ProcessFunc(upper), nil }),
		})
		call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: api.Func(echo)})

		lookup := call[protocol.WorkerLookup](t, c, protocol.GetRegisteredWorker{Name: "upper"})
		require.True(t, lookup.Found)

		call[int](t, c, protocol.QueueTask{Data: []any{"abc"}})
		awaitIdle(t, c)

		tasks := listTasks(t, c)
		require.Len(t, tasks, 1)
		require.Equal(t, "upper", tasks[0].Worker)
		require.Equal(t, "ABC", tasks[0].Output)

		lookup = call[protocol.WorkerLookup](t, c, protocol.GetRegisteredWorker{Name: "nope"})
		require.False(t, lookup.Found)
	})
}

func TestQueueTask_InputRoundTripAndIsolation(t *testing.T) {
	forEachMode(t, func() Options { return testOptions(1) }, func(t *testing.T, c Conn) {
		mutate := func(ctx context.Context, args ...any) (any, error) {
			xs := args[0].([]int)
			xs[0] = 99
			return xs[0], nil
		}
		call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: api.Func(mutate)})

		input := []any{[]int{1, 2}, "label"}
		call[int](t, c, protocol.QueueTask{Data: input})
		awaitIdle(t, c)

		tasks := listTasks(t, c)
		require.Equal(t, 99, tasks[0].Output)
		require.Equal(t, []any{[]int{1, 2}, "label"}, tasks[0].Input)
	})
}

type shipment struct {
	ID     int
	Items  []string
	secret string
}

func TestQueueTask_WorkerSeesInputTypes(t *testing.T) {
	forEachMode(t, func() Options { return testOptions(1) }, func(t *testing.T, c Conn) {
		describe := func(ctx context.Context, args ...any) (any, error) {
			p, ok := args[0].(*shipment)
			if !ok {
				return nil, fmt.Errorf("arg 0: got %T", args[0])
			}
			v, ok := args[1].(shipment)
			if !ok {
				return nil, fmt.Errorf("arg 1: got %T", args[1])
			}
			empty, ok := args[2].([]int)
			if !ok || empty == nil {
				return nil, fmt.Errorf("arg 2: got %#v", args[2])
			}
			p.Items[0] = "changed"
			return fmt.Sprintf("%d/%s/%s %d/%s", p.ID, p.secret, p.Items[0], v.ID, v.secret), nil
		}
		call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: api.Func(describe)})

		ptr := &shipment{ID: 1, Items: []string{"a"}, secret: "s1"}
		call[int](t, c, protocol.QueueTask{Data: []any{ptr, shipment{ID: 2, secret: "s2"}, []int{}}})
		awaitIdle(t, c)

		tasks := listTasks(t, c)
		require.NoError(t, tasks[0].Err)
		require.Equal(t, "1/s1/changed 2/s2", tasks[0].Output)
		require.Equal(t, "a", ptr.Items[0])
	})
}

func TestWorkerFailure_IsRecordedOnTask(t *testing.T) {
	forEachMode(t, func() Options { return testOptions(2) }, func(t *testing.T, c Conn) {
		boom := errors.New("boom")
		call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: api.Func(func(ctx context.Context, args ...any) (any, error) {
			if args[0].(int) == 1 {
				return "partial", boom
			}
			panic("crashed")
		})})

		call[int](t, c, protocol.QueueTask{Data: []any{1}})
		call[int](t, c, protocol.QueueTask{Data: []any{2}})
		awaitIdle(t, c)

		tasks := listTasks(t, c)
		require.Len(t, tasks, 2)
		for _, task := range tasks {
			require.Equal(t, api.TaskProcessed, task.State)
			require.Nil(t, task.Output)
			require.True(t, task.Failed())
		}
		require.Equal(t, "boom", tasks[0].Err.Error())
		require.Contains(t, tasks[1].Err.Error(), "crashed")
	})
}

func TestBudget_BoundsConcurrency(t *testing.T) {
	metrics := &api.BasicMetrics{}
	opts := testOptions(8)
	opts.Observer = metrics
	c := newParallel(t, opts)

	require.Equal(t, 2, call[int](t, c, protocol.SetMaxCPUCount{Count: 2}))
	require.Equal(t, 1, call[int](t, c, protocol.SetMaxCPUCount{Count: 0}))
	require.GreaterOrEqual(t, call[int](t, c, protocol.SetMaxCPUPercentage{Percentage: 0}), 1)
	call[int](t, c, protocol.SetMaxCPUCount{Count: 2})

	call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: sleeper(30 * time.Millisecond)})
	for i := 0; i < 6; i++ {
		call[int](t, c, protocol.QueueTask{Data: []any{i}})
	}
	awaitIdle(t, c)

	snap := metrics.Snapshot()
	require.Equal(t, int64(6), snap.TasksProcessed)
	require.LessOrEqual(t, snap.MaxConcurrent, 2)
	require.Equal(t, 0, snap.InFlight)
}

func TestBudget_SerializesWithOne(t *testing.T) {
	c := newParallel(t, testOptions(1))
	call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: sleeper(60 * time.Millisecond)})

	start := time.Now()
	for i := 0; i < 3; i++ {
		call[int](t, c, protocol.QueueTask{Data: []any{i}})
	}
	awaitIdle(t, c)

	require.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
	require.Equal(t, 3, count(listTasks(t, c), api.TaskProcessed))
}

func TestRemovePendingTasks_LeavesRunningAlone(t *testing.T) {
	c := newParallel(t, testOptions(2))
	call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: sleeper(150 * time.Millisecond)})
	for i := 0; i < 5; i++ {
		call[int](t, c, protocol.QueueTask{Data: []any{i}})
	}

	waitFor(t, c, func(tasks []api.Task) bool { return count(tasks, api.TaskProcessing) == 2 })
	call[any](t, c, protocol.RemovePendingTasks{})

	tasks := listTasks(t, c)
	require.Len(t, tasks, 2)
	require.Equal(t, 2, count(tasks, api.TaskProcessing))

	awaitIdle(t, c)
	tasks = listTasks(t, c)
	require.Equal(t, 2, count(tasks, api.TaskProcessed))
	require.Equal(t, 0, count(tasks, api.TaskCancelled))
}

func TestStopRunningTasks_ForceCancelsAndKeepsPending(t *testing.T) {
	metrics := &api.BasicMetrics{}
	opts := testOptions(2)
	opts.Observer = metrics
	c := newParallel(t, opts)

	call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: sleeper(time.Second)})
	for i := 0; i < 5; i++ {
		call[int](t, c, protocol.QueueTask{Data: []any{i}})
	}
	waitFor(t, c, func(tasks []api.Task) bool { return count(tasks, api.TaskProcessing) == 2 })

	call[any](t, c, protocol.StopRunningTasks{Force: true, DetachPending: true})

	reply := call[protocol.AwaitReply](t, c, protocol.Await{})
	require.True(t, reply.Idle())

	tasks := listTasks(t, c)
	require.Len(t, tasks, 5)
	require.Equal(t, 2, count(tasks, api.TaskCancelled))
	require.Equal(t, 3, count(tasks, api.TaskPending))
	require.Equal(t, 0, count(tasks, api.TaskProcessing))
	require.Equal(t, int64(2), metrics.Snapshot().TasksCancelled)

	// Detached tasks are not picked up by later ticks.
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 3, count(listTasks(t, c), api.TaskPending))
}

func TestRemoveTask(t *testing.T) {
	c := newParallel(t, testOptions(1))
	call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: sleeper(time.Second)})
	running := call[int](t, c, protocol.QueueTask{Data: []any{0}})
	pending := call[int](t, c, protocol.QueueTask{Data: []any{1}})

	waitFor(t, c, func(tasks []api.Task) bool { return count(tasks, api.TaskProcessing) == 1 })

	require.True(t, call[bool](t, c, protocol.RemoveTask{ID: running}))
	require.True(t, call[bool](t, c, protocol.RemoveTask{ID: pending}))
	require.False(t, call[bool](t, c, protocol.RemoveTask{ID: pending}))
	require.Empty(t, listTasks(t, c))

	// Ids are never reused.
	next := call[int](t, c, protocol.QueueTask{Data: []any{2}})
	require.Greater(t, next, pending)
}

func TestRemoveAllTasks(t *testing.T) {
	forEachMode(t, func() Options { return testOptions(1) }, func(t *testing.T, c Conn) {
		call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: sleeper(10 * time.Millisecond)})
		for i := 0; i < 3; i++ {
			call[int](t, c, protocol.QueueTask{Data: []any{i}})
		}
		call[any](t, c, protocol.RemoveAllTasks{})
		require.Empty(t, listTasks(t, c))
		require.True(t, call[protocol.AwaitReply](t, c, protocol.Await{}).Idle())
	})
}

func TestAwait_DeadlinePassed(t *testing.T) {
	c := newParallel(t, testOptions(1))
	call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: sleeper(time.Second)})
	call[int](t, c, protocol.QueueTask{Data: []any{0}})

	reply := call[protocol.AwaitReply](t, c, protocol.Await{Deadline: time.Now().Add(-time.Millisecond)})
	require.False(t, reply.Waiting)
	require.False(t, reply.Idle())

	reply = call[protocol.AwaitReply](t, c, protocol.Await{Deadline: time.Now().Add(time.Minute)})
	require.True(t, reply.Waiting)
}

func TestInlineAndParallel_SameHistory(t *testing.T) {
	run := func(c Conn) []api.Task {
		call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: api.Func(double)})
		for _, x := range []int{5, 6, 7, 8} {
			call[int](t, c, protocol.QueueTask{Data: []any{x}})
		}
		call[bool](t, c, protocol.RemoveTask{ID: 1})
		awaitIdle(t, c)
		return listTasks(t, c)
	}

	par := run(newParallel(t, testOptions(2)))
	inl := run(newInline(t, testOptions(2)))

	require.Len(t, inl, len(par))
	for i := range par {
		require.Equal(t, par[i].ID, inl[i].ID)
		require.Equal(t, par[i].Worker, inl[i].Worker)
		require.Equal(t, par[i].Input, inl[i].Input)
		require.Equal(t, par[i].Output, inl[i].Output)
		require.Equal(t, par[i].State, inl[i].State)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	workers map[string]int
	actions []api.ProgressAction
	stats   []string
}

func (s *recordingSink) RegisterWorker(name string, steps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers == nil {
		s.workers = map[string]int{}
	}
	s.workers[name] = steps
}

func (s *recordingSink) Action(name api.ProgressAction, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, name)
}

func (s *recordingSink) StatsReport(contextID string, memoryBytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, contextID)
}

func TestEnableProgressBar(t *testing.T) {
	sink := &recordingSink{}
	opts := testOptions(1)
	opts.ID = "sched"
	opts.Progress = sink
	opts.Memory = func() uint64 { return 1 }
	c := newParallel(t, opts)

	_, err := c.Call(context.Background(), protocol.EnableProgressBar{Worker: "resize", Steps: 3})
	require.ErrorIs(t, err, api.ErrWorkerNotDefined)

	call[api.RegisteredWorker](t, c, protocol.RegisterWorker{
		Def: api.Named("resize", func(...any) (api.Processor, error) {
			return api.ProcessFunc(func(ctx context.Context, args ...any) (any, error) {
				worker.ProgressFrom(ctx).Advance(1)
				return nil, nil
			}), nil
		}),
	})
	call[any](t, c, protocol.EnableProgressBar{Worker: "resize", Steps: 3})
	call[int](t, c, protocol.QueueTask{})
	awaitIdle(t, c)
	call[any](t, c, protocol.Update{})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, 3, sink.workers["resize"])
	require.Equal(t, []api.ProgressAction{api.ProgressAdvance}, sink.actions)
	require.Contains(t, sink.stats, api.MainContextID)

	tagged := false
	for _, id := range sink.stats {
		if strings.HasPrefix(id, "sched@") {
			tagged = true
		}
	}
	require.True(t, tagged, "context reports must carry the scheduler id")
}

func TestProgressContextsAreReused(t *testing.T) {
	sink := &recordingSink{}
	opts := testOptions(2)
	opts.ID = "sched"
	opts.Progress = sink
	opts.Memory = func() uint64 { return 1 }
	c := newParallel(t, opts)

	call[api.RegisteredWorker](t, c, protocol.RegisterWorker{
		Def: api.Named("tick", func(...any) (api.Processor, error) {
			return api.ProcessFunc(func(ctx context.Context, args ...any) (any, error) {
				time.Sleep(5 * time.Millisecond)
				worker.ProgressFrom(ctx).Advance(1)
				return nil, nil
			}), nil
		}),
	})
	call[any](t, c, protocol.EnableProgressBar{Worker: "tick", Steps: 1})
	for range 6 {
		call[int](t, c, protocol.QueueTask{})
	}
	awaitIdle(t, c)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	contexts := map[string]bool{}
	for _, id := range sink.stats {
		if id != api.MainContextID {
			contexts[id] = true
		}
	}
	require.NotEmpty(t, contexts)
	for id := range contexts {
		require.Contains(t, []string{"sched@0", "sched@1"}, id)
	}
}

func TestEnableProgressBar_RunningTaskKeepsBinding(t *testing.T) {
	sink := &recordingSink{}
	opts := testOptions(1)
	opts.ID = "sched"
	opts.Progress = sink
	c := newParallel(t, opts)

	gate := make(chan struct{})
	call[api.RegisteredWorker](t, c, protocol.RegisterWorker{
		Def: api.Named("resize", func(...any) (api.Processor, error) {
			return api.ProcessFunc(func(ctx context.Context, args ...any) (any, error) {
				<-gate
				worker.ProgressFrom(ctx).Advance(1)
				return nil, nil
			}), nil
		}),
	})
	call[int](t, c, protocol.QueueTask{})
	waitFor(t, c, func(tasks []api.Task) bool { return count(tasks, api.TaskProcessing) == 1 })

	call[any](t, c, protocol.EnableProgressBar{Worker: "resize", Steps: 2})
	close(gate)
	awaitIdle(t, c)

	call[int](t, c, protocol.QueueTask{})
	awaitIdle(t, c)
	call[any](t, c, protocol.Update{})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	// Only the task started after enabling reports progress.
	require.Equal(t, []api.ProgressAction{api.ProgressAdvance}, sink.actions)
}

func TestStartFailure_CancelsTask(t *testing.T) {
	opts := testOptions(1)
	opts.StartTimeout = 50 * time.Millisecond
	r, err := New(opts)
	require.NoError(t, err)
	defer r.shutdown()

	// Without the starter channel no context can acknowledge startup.
	require.NoError(t, r.starter.Close())

	_, err = r.RegisterWorker(protocol.RegisterWorker{Def: api.Func(double)})
	require.NoError(t, err)
	_, err = r.QueueTask(protocol.QueueTask{Data: []any{1}})
	require.NoError(t, err)
	_, err = r.Update(protocol.Update{})
	require.NoError(t, err)

	task := r.tasks[0]
	require.Equal(t, api.TaskCancelled, task.State)
	require.ErrorIs(t, task.Err, api.ErrTaskStartFailed)
	require.Empty(t, r.running)
}

func TestDispatch_InvalidMessage(t *testing.T) {
	r, err := New(Options{Hub: channel.NewHub(), Logger: logging.Discard(), Inline: true})
	require.NoError(t, err)

	reply := r.Dispatch("registerWorker")
	pe, ok := reply.(*api.ParallelError)
	require.True(t, ok)
	require.ErrorIs(t, pe, api.ErrInvalidMessage)
}

func TestClose_RejectsLaterCalls(t *testing.T) {
	forEachMode(t, func() Options { return testOptions(1) }, func(t *testing.T, c Conn) {
		require.NoError(t, c.Close(context.Background()))
		require.NoError(t, c.Close(context.Background()))

		_, err := c.Call(context.Background(), protocol.GetTasks{})
		require.ErrorIs(t, err, api.ErrSchedulerClosed)
	})
}

func requireBound(t *testing.T, hub *channel.Hub, name string) {
	t.Helper()
	_, err := hub.Open(name)
	require.NoError(t, err, name)
}

func requireUnbound(t *testing.T, hub *channel.Hub, name string) {
	t.Helper()
	_, err := hub.Open(name)
	require.ErrorIs(t, err, channel.ErrNotExist, name)
}

func TestStartParallel_NamesAreScopedByID(t *testing.T) {
	hub := channel.NewHub()
	opts := testOptions(1)
	opts.Hub = hub
	opts.ID = "one"

	c := newParallel(t, opts)
	requireBound(t, hub, LinkName("one"))
	requireBound(t, hub, StarterName("one"))

	_, err := StartParallel(opts, time.Millisecond)
	require.ErrorIs(t, err, channel.ErrExists)

	opts.ID = "two"
	other := newParallel(t, opts)
	require.NotNil(t, other)

	require.NoError(t, c.Close(context.Background()))
	requireUnbound(t, hub, LinkName("one"))
	requireUnbound(t, hub, StarterName("one"))
	requireBound(t, hub, LinkName("two"))
}

func TestParallelConn_DrainsReplyOfAbandonedCall(t *testing.T) {
	opts := testOptions(1)
	opts.StartTimeout = 300 * time.Millisecond
	c := newParallel(t, opts)

	// No context can acknowledge startup, so starting a task keeps the
	// runner busy for the whole start timeout.
	require.NoError(t, c.runner.starter.Close())

	call[api.RegisteredWorker](t, c, protocol.RegisterWorker{Def: api.Func(double)})
	call[int](t, c, protocol.QueueTask{Data: []any{1}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, protocol.Update{})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	v, err := c.Call(context.Background(), protocol.SetMaxCPUCount{Count: 3})
	require.NoError(t, err)
	require.Equal(t, 3, v)

	tasks := listTasks(t, c)
	require.Len(t, tasks, 1)
	require.Equal(t, api.TaskCancelled, tasks[0].State)
	require.ErrorIs(t, tasks[0].Err, api.ErrTaskStartFailed)
}

type panickingSink struct {
	api.NoopProgressSink
}

func (panickingSink) RegisterWorker(string, int) {
	panic("sink exploded")
}

func TestDispatch_ErrorLocation(t *testing.T) {
	opts := testOptions(1)
	opts.Inline = true
	opts.Progress = panickingSink{}
	r, err := New(opts)
	require.NoError(t, err)
	defer r.shutdown()

	reply := r.Dispatch(protocol.NewEnvelope(protocol.QueueTask{}))
	pe, ok := reply.(*api.ParallelError)
	require.True(t, ok)
	require.ErrorIs(t, pe, api.ErrNoWorkerSelected)
	require.True(t, strings.HasSuffix(pe.File, "runner.go"), pe.Location())

	_, err = r.RegisterWorker(protocol.RegisterWorker{Def: api.Named("resize", func(...any) (api.Processor, error) {
		return api.ProcessFunc(double), nil
	})})
	require.NoError(t, err)
	reply = r.Dispatch(protocol.NewEnvelope(protocol.EnableProgressBar{Worker: "resize", Steps: 1}))
	pe, ok = reply.(*api.ParallelError)
	require.True(t, ok)
	require.Contains(t, pe.Error(), "sink exploded")
	require.True(t, strings.HasSuffix(pe.File, "runner_test.go"), pe.Location())
}
