package api

import (
	"context"
	"fmt"
)

// Processor is the user logic executed for each task.
//
// args are the values passed to RunTask. Implementations should honor ctx:
// it is cancelled when the task is removed or the scheduler is stopped.
type Processor interface {
	Process(ctx context.Context, args ...any) (any, error)
}

// ProcessFunc adapts an ordinary function to a Processor.
type ProcessFunc func(ctx context.Context, args ...any) (any, error)

func (f ProcessFunc) Process(ctx context.Context, args ...any) (any, error) {
	return f(ctx, args...)
}

// Constructor builds a fresh Processor for one task from the constructor
// arguments fixed at registration.
type Constructor func(args ...any) (Processor, error)

// WorkerKind distinguishes the two RegisteredWorker variants.
type WorkerKind string

const (
	WorkerKindNamed WorkerKind = "named"
	WorkerKindFunc  WorkerKind = "func"
)

// WorkerDef describes worker logic passed to Scheduler.Using. It is a closed
// set: NamedWorker or FuncWorker.
type WorkerDef interface {
	Kind() WorkerKind
	validate() error
}

// NamedWorker is a worker identified by Name and built by New for every task.
// A name can be registered only once per scheduler.
type NamedWorker struct {
	Name string
	New  Constructor
}

func (NamedWorker) Kind() WorkerKind { return WorkerKindNamed }

func (w NamedWorker) validate() error {
	if w.Name == "" {
		return fmt.Errorf("%w: named worker requires a name", ErrInvalidWorker)
	}
	if w.New == nil {
		return fmt.Errorf("%w: named worker %q has no constructor", ErrInvalidWorker, w.Name)
	}
	return nil
}

// FuncWorker is an ad-hoc function worker. Every registration creates a new
// RegisteredWorker.
type FuncWorker struct {
	Fn ProcessFunc
}

func (FuncWorker) Kind() WorkerKind { return WorkerKindFunc }

func (w FuncWorker) validate() error {
	if w.Fn == nil {
		return fmt.Errorf("%w: function worker is nil", ErrInvalidWorker)
	}
	return nil
}

// Named returns a NamedWorker definition.
func Named(name string, ctor Constructor) NamedWorker {
	return NamedWorker{Name: name, New: ctor}
}

// Func returns a FuncWorker definition.
func Func(fn ProcessFunc) FuncWorker {
	return FuncWorker{Fn: fn}
}

// ValidateWorkerDef checks that def is usable.
func ValidateWorkerDef(def WorkerDef) error {
	if def == nil {
		return fmt.Errorf("%w: nil worker definition", ErrInvalidWorker)
	}
	return def.validate()
}

// RegisteredWorker binds a worker definition to its constructor arguments.
type RegisteredWorker struct {
	// Index is the registration index, starting at 0.
	Index int

	// Identifier is the worker name for named workers and "func@<index>"
	// for function workers.
	Identifier string

	Kind WorkerKind

	// Args are the constructor arguments fixed at registration. Always
	// empty for function workers.
	Args []any

	WithProgress bool
	Steps        int

	New Constructor
	Fn  ProcessFunc
}

// FuncIdentifier returns the identifier assigned to a function worker.
func FuncIdentifier(index int) string {
	return fmt.Sprintf("func@%d", index)
}

// NewRegisteredWorker builds the RegisteredWorker for def at index.
func NewRegisteredWorker(index int, def WorkerDef, args []any) (RegisteredWorker, error) {
	if err := ValidateWorkerDef(def); err != nil {
		return RegisteredWorker{}, err
	}

	rw := RegisteredWorker{Index: index, Kind: def.Kind()}
	switch d := def.(type) {
	case NamedWorker:
		rw.Identifier = d.Name
		rw.New = d.New
		if len(args) > 0 {
			rw.Args = append([]any(nil), args...)
		}
	case FuncWorker:
		rw.Identifier = FuncIdentifier(index)
		rw.Fn = d.Fn
	}
	return rw, nil
}

// Processor instantiates the worker logic for a single task.
func (w RegisteredWorker) Processor() (Processor, error) {
	switch w.Kind {
	case WorkerKindFunc:
		if w.Fn == nil {
			return nil, fmt.Errorf("%w: %s has no function", ErrInvalidWorker, w.Identifier)
		}
		return w.Fn, nil
	case WorkerKindNamed:
		if w.New == nil {
			return nil, fmt.Errorf("%w: %s has no constructor", ErrInvalidWorker, w.Identifier)
		}
		return w.New(w.Args...)
	default:
		return nil, fmt.Errorf("%w: unknown worker kind %q", ErrInvalidWorker, w.Kind)
	}
}
