// Package taskqueue holds the runner's queue of pending task ids.
//
// The queue is owned by the runner goroutine and is not safe for concurrent
// use; serialization comes from the runner processing one command at a
// time.
package taskqueue

// Queue is a FIFO of task ids with removal by id.
type Queue struct {
	ids   []int
	index map[int]struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{index: make(map[int]struct{})}
}

// Push appends id. Pushing an id that is already queued is a no-op.
func (q *Queue) Push(id int) {
	if _, ok := q.index[id]; ok {
		return
	}
	q.ids = append(q.ids, id)
	q.index[id] = struct{}{}
}

// Pop removes and returns the oldest id.
func (q *Queue) Pop() (int, bool) {
	for len(q.ids) > 0 {
		id := q.ids[0]
		q.ids[0] = 0
		q.ids = q.ids[1:]
		if _, ok := q.index[id]; ok {
			delete(q.index, id)
			return id, true
		}
	}
	return 0, false
}

// Remove drops id from the queue and reports whether it was queued.
func (q *Queue) Remove(id int) bool {
	if _, ok := q.index[id]; !ok {
		return false
	}
	delete(q.index, id)
	for i, v := range q.ids {
		if v == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			break
		}
	}
	return true
}

// Drain empties the queue and returns the ids it held, oldest first.
func (q *Queue) Drain() []int {
	out := make([]int, 0, len(q.index))
	for _, id := range q.ids {
		if _, ok := q.index[id]; ok {
			out = append(out, id)
		}
	}
	q.ids = nil
	q.index = make(map[int]struct{})
	return out
}

// Len returns the number of queued ids.
func (q *Queue) Len() int {
	return len(q.index)
}
