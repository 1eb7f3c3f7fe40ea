package api

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrNoWorkerSelected is returned by RunTask before any worker was
	// registered or looked up.
	ErrNoWorkerSelected = errors.New("no worker is defined")

	// ErrWorkerAlreadyRegistered is returned when a named worker is
	// registered twice.
	ErrWorkerAlreadyRegistered = errors.New("worker is already registered")

	// ErrWorkerAlreadyDefined is returned when Using is called for an
	// existing named worker with new constructor arguments.
	ErrWorkerAlreadyDefined = errors.New("worker is already defined, constructor arguments can't be changed")

	// ErrWorkerNotDefined is returned when progress is enabled for an
	// unknown worker.
	ErrWorkerNotDefined = errors.New("worker is not defined")

	ErrInvalidWorker = errors.New("invalid worker definition")

	// ErrAlreadyStarted is returned when a worker wrapper is started twice.
	ErrAlreadyStarted = errors.New("worker has already been started")

	// ErrNotFinished is returned when reading the result of a worker that
	// has not finished yet.
	ErrNotFinished = errors.New("worker hasn't processed the task yet")

	ErrInvalidMessage       = errors.New("invalid message received")
	ErrActionNotImplemented = errors.New("action not implemented")
	ErrTaskStartFailed      = errors.New("failed to start task")
	ErrSchedulerClosed      = errors.New("scheduler is closed")
)

var sentinels = []error{
	ErrNoWorkerSelected,
	ErrWorkerAlreadyRegistered,
	ErrWorkerAlreadyDefined,
	ErrWorkerNotDefined,
	ErrInvalidWorker,
	ErrAlreadyStarted,
	ErrNotFinished,
	ErrInvalidMessage,
	ErrActionNotImplemented,
	ErrTaskStartFailed,
	ErrSchedulerClosed,
}

// ParallelError is a plain copy of an error raised inside the runner. It is
// sent back over the channel in place of the expected reply and re-raised
// by the caller.
//
// File and Line locate the frame that captured the error: the panicking
// frame for a recovered panic, otherwise the runner's dispatch boundary.
type ParallelError struct {
	// Sentinel is the message of the package sentinel the original error
	// wrapped, if any.
	Sentinel string
	Message  string
	File     string
	Line     int
}

// NewParallelError copies err into an envelope. skip is the number of
// frames above the caller used for File/Line.
func NewParallelError(err error, skip int) *ParallelError {
	pe := &ParallelError{Message: err.Error()}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			pe.Sentinel = s.Error()
			break
		}
	}
	if _, file, line, ok := runtime.Caller(skip + 1); ok {
		pe.File = file
		pe.Line = line
	}
	return pe
}

func (e *ParallelError) Error() string {
	return e.Message
}

// Is matches the sentinel the original error wrapped.
func (e *ParallelError) Is(target error) bool {
	if e.Sentinel == "" || target == nil {
		return false
	}
	for _, s := range sentinels {
		if s == target {
			return s.Error() == e.Sentinel
		}
	}
	return false
}

// Location returns "file:line" of where the error was captured.
func (e *ParallelError) Location() string {
	return fmt.Sprintf("%s:%d", e.File, e.Line)
}
