package protocol

import "github.com/petrijr/parallel/pkg/api"

// WorkerLookup is the reply to GetRegisteredWorker.
type WorkerLookup struct {
	Worker api.RegisteredWorker
	Found  bool
}

// AwaitReply is the reply to Await.
type AwaitReply struct {
	// Waiting is true while the deadline has not passed and pending or
	// running tasks remain.
	Waiting bool
	Pending int
	Running int
}

// Idle reports whether nothing is pending or running.
func (r AwaitReply) Idle() bool {
	return r.Pending == 0 && r.Running == 0
}
