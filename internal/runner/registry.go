package runner

import (
	"fmt"

	"github.com/petrijr/parallel/pkg/api"
)

// workerRegistry holds the registered workers and the currently selected
// one. It is owned by the runner goroutine.
type workerRegistry struct {
	workers  []api.RegisteredWorker
	byName   map[string]int
	selected int
}

func newWorkerRegistry() *workerRegistry {
	return &workerRegistry{
		byName:   make(map[string]int),
		selected: -1,
	}
}

// Register adds def and selects it. A named worker can be registered only
// once; function workers always get a new index.
func (r *workerRegistry) Register(def api.WorkerDef, args []any) (api.RegisteredWorker, error) {
	if named, ok := def.(api.NamedWorker); ok {
		if _, exists := r.byName[named.Name]; exists {
			return api.RegisteredWorker{}, fmt.Errorf("%w: %q", api.ErrWorkerAlreadyRegistered, named.Name)
		}
	}

	rw, err := api.NewRegisteredWorker(len(r.workers), def, args)
	if err != nil {
		return api.RegisteredWorker{}, err
	}

	r.workers = append(r.workers, rw)
	r.byName[rw.Identifier] = rw.Index
	r.selected = rw.Index
	return rw, nil
}

// Lookup finds a worker by identifier and selects it.
func (r *workerRegistry) Lookup(name string) (api.RegisteredWorker, bool) {
	idx, ok := r.byName[name]
	if !ok {
		return api.RegisteredWorker{}, false
	}
	r.selected = idx
	return r.workers[idx], true
}

// Selected returns the worker new tasks are bound to.
func (r *workerRegistry) Selected() (api.RegisteredWorker, bool) {
	if r.selected < 0 {
		return api.RegisteredWorker{}, false
	}
	return r.workers[r.selected], true
}

func (r *workerRegistry) Get(index int) (api.RegisteredWorker, bool) {
	if index < 0 || index >= len(r.workers) {
		return api.RegisteredWorker{}, false
	}
	return r.workers[index], true
}

// EnableProgress turns progress reporting on for the named worker. It may
// be called at any time, also after tasks bound to the worker started;
// those keep the binding they were launched with.
func (r *workerRegistry) EnableProgress(name string, steps int) (api.RegisteredWorker, error) {
	idx, ok := r.byName[name]
	if !ok {
		return api.RegisteredWorker{}, fmt.Errorf("%w: %q", api.ErrWorkerNotDefined, name)
	}
	r.workers[idx].WithProgress = true
	r.workers[idx].Steps = steps
	return r.workers[idx], nil
}

func (r *workerRegistry) Len() int {
	return len(r.workers)
}
