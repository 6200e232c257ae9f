package monitor

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Task states. A task is pending from Begin until Start, running until
// Finish, and dropped from the tracker when finished.
const (
	statePending int32 = iota
	stateRunning
)

// Task is one unit of in-flight work registered with a Tracker.
type Task struct {
	id          string
	description string
	state       atomic.Int32
	tracker     *Tracker
}

func (t *Task) ID() string          { return t.id }
func (t *Task) Description() string { return t.description }

// Pending reports whether the task has not started executing yet.
func (t *Task) Pending() bool { return t.state.Load() == statePending }

// Start marks the task as executing.
func (t *Task) Start() { t.state.Store(stateRunning) }

// Finish removes the task from its tracker. Safe to call more than once.
func (t *Task) Finish() { t.tracker.remove(t.id) }

// Tracker is the explicit registry of concurrent units of work. Request
// handlers register themselves at entry so the backlog monitor can observe
// them; the Go runtime offers no ambient goroutine enumeration.
type Tracker struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func NewTracker() *Tracker {
	return &Tracker{tasks: make(map[string]*Task)}
}

// Begin registers a new pending task with the given description and returns
// its handle. Callers must Finish the task when the work completes.
func (tr *Tracker) Begin(description string) *Task {
	t := &Task{
		id:          uuid.NewString(),
		description: description,
		tracker:     tr,
	}

	tr.mu.Lock()
	tr.tasks[t.id] = t
	tr.mu.Unlock()
	return t
}

func (tr *Tracker) remove(id string) {
	tr.mu.Lock()
	delete(tr.tasks, id)
	tr.mu.Unlock()
}

// Len returns the number of live tasks.
func (tr *Tracker) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.tasks)
}

// snapshot returns the current set of live tasks.
func (tr *Tracker) snapshot() []*Task {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tasks := make([]*Task, 0, len(tr.tasks))
	for _, t := range tr.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}
