package libreflux

import "sync"

// actionQueue is an unbounded FIFO. Effects enqueue from inside the loop
// while the loop waits for them, so a bounded channel could deadlock.
//
// The head stays in the queue until the loop pops it after all reducers
// and effects for it have completed.
type actionQueue struct {
	mu      sync.Mutex
	actions []Action
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newActionQueue() *actionQueue {
	return &actionQueue{
		actions: make([]Action, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// push appends to the tail. Returns false if the queue is closed.
func (q *actionQueue) push(a Action) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return len(q.actions), false
	}
	q.actions = append(q.actions, a)
	q.notifyLocked()
	return len(q.actions), true
}

// front returns the head without removing it
func (q *actionQueue) front() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) == 0 {
		return Action{}, false
	}
	return q.actions[0], true
}

// pop removes the head and returns the remaining length
func (q *actionQueue) pop() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) == 0 {
		return 0
	}
	q.actions[0] = Action{}
	if len(q.actions) == 1 {
		q.actions = q.actions[:0]
	} else {
		q.actions = q.actions[1:]
	}
	return len(q.actions)
}

// close rejects further pushes and returns the actions still queued
func (q *actionQueue) close() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	rest := q.actions
	q.actions = nil
	return rest
}

// closeIfEmpty closes the queue only when nothing is pending, so a push
// racing with shutdown is either processed or rejected, never lost.
func (q *actionQueue) closeIfEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) > 0 {
		return false
	}
	q.closed = true
	return true
}

// notify wakes the loop without adding anything
func (q *actionQueue) notify() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notifyLocked()
}

func (q *actionQueue) notifyLocked() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *actionQueue) wait() <-chan struct{} {
	return q.signal
}

func (q *actionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}
