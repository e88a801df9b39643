package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-CERP/vexus/internal/store"
)

// State is the lifecycle state of a background recovery.
type State string

const (
	// StateIdle means the runner has not been started.
	StateIdle State = "idle"
	// StateRunning means recovery is in progress.
	StateRunning State = "running"
	// StateCompleted means recovery finished; Result holds the counts.
	StateCompleted State = "completed"
	// StateFailed means recovery stopped on a fatal error.
	StateFailed State = "failed"
)

// Task is the work a Runner executes.
type Task func(ctx context.Context) (Result, error)

// Snapshot is an immutable copy of runner progress.
type Snapshot struct {
	State          State   `json:"state"`
	Scanned        int     `json:"scanned"`
	Inserted       int     `json:"inserted"`
	Skipped        int     `json:"skipped"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Runner runs one recovery on a background goroutine so the caller's
// control path never blocks on it. A Runner is single-use.
type Runner struct {
	task   Task
	doneCh chan struct{}

	mu       sync.Mutex
	state    State
	result   Result
	err      error
	started  time.Time
	finished time.Time
}

// NewRunner creates an idle runner for task.
func NewRunner(task Task) *Runner {
	return &Runner{
		task:   task,
		state:  StateIdle,
		doneCh: make(chan struct{}),
	}
}

// NewRecoverRunner creates an idle runner that calls Recover. Snapshot
// reports running counts every DefaultProgressEvery rows.
func NewRecoverRunner(idx *store.Index, src Source, req Request, opts ...Option) *Runner {
	r := NewRunner(nil)
	all := append([]Option{WithProgress(DefaultProgressEvery, r.progress)}, opts...)
	r.task = func(ctx context.Context) (Result, error) {
		return Recover(ctx, idx, src, req, all...)
	}
	return r
}

// progress records running counts while the task is in flight.
func (r *Runner) progress(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRunning {
		r.result = res
	}
}

// Start launches the task and returns immediately. It reports false if the
// runner was already started.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return false
	}
	r.state = StateRunning
	r.started = time.Now()
	r.mu.Unlock()

	go r.run(ctx)
	return true
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneCh)

	res, err := r.task(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = res
	r.err = err
	r.finished = time.Now()
	if err != nil {
		r.state = StateFailed
		return
	}
	r.state = StateCompleted
}

// Done is closed when the task finishes.
func (r *Runner) Done() <-chan struct{} {
	return r.doneCh
}

// Wait blocks until the task finishes and returns its outcome.
// Calling Wait on a runner that was never started blocks until it is.
func (r *Runner) Wait() (Result, error) {
	<-r.doneCh
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns the current state and the latest counts.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		State:    r.state,
		Scanned:  r.result.Scanned,
		Inserted: r.result.Inserted,
		Skipped:  r.result.Skipped,
	}
	switch {
	case !r.finished.IsZero():
		s.ElapsedSeconds = r.finished.Sub(r.started).Seconds()
	case !r.started.IsZero():
		s.ElapsedSeconds = time.Since(r.started).Seconds()
	}
	if r.err != nil {
		s.ErrorMessage = r.err.Error()
	}
	return s
}
