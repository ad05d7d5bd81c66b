package discover

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"kinsync/internal/model"
)

// JobStatus is the lifecycle state of a bulk discovery job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled || s == JobFailed
}

// EventType classifies progress-stream events.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is one entry in a job's progress stream.
type Event struct {
	Type       EventType `json:"type"`
	Generation int       `json:"generation"`
	Discovered int       `json:"discovered"`
	PersonName string    `json:"person_name,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Job is one bulk ancestor traversal. The worker goroutine owns all
// traversal state; the job itself only carries identity, the cancel flag,
// the event stream, and the terminal outcome.
type Job struct {
	ID       string
	Provider model.Provider
	RootID   int64

	cancel atomic.Bool
	events chan Event

	mu      sync.Mutex
	status  JobStatus
	summary string
}

func newJob(rootID int64, provider model.Provider) *Job {
	return &Job{
		ID:       uuid.NewString(),
		Provider: provider,
		RootID:   rootID,
		events:   make(chan Event, 64),
		status:   JobPending,
	}
}

// Events returns the progress stream. The channel is closed when the job
// reaches a terminal state.
func (j *Job) Events() <-chan Event { return j.events }

// Status returns the job's current state.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Summary returns the terminal human-readable summary, empty until the job
// finishes.
func (j *Job) Summary() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summary
}

// RequestCancel flips the cooperative cancellation flag. The worker checks
// it between frontier items, so at most one in-flight fetch completes after
// the request.
func (j *Job) RequestCancel() { j.cancel.Store(true) }

func (j *Job) cancelRequested() bool { return j.cancel.Load() }

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// publish is best-effort: a slow consumer drops progress events rather than
// stalling the traversal. The terminal outcome is always available via
// Status and Summary.
func (j *Job) publish(ev Event) {
	select {
	case j.events <- ev:
	default:
	}
}

// finish records the terminal outcome and closes the stream.
func (j *Job) finish(status JobStatus, summary string) {
	j.mu.Lock()
	j.status = status
	j.summary = summary
	j.mu.Unlock()
	evType := EventCompleted
	if status == JobFailed {
		evType = EventError
	}
	j.publish(Event{Type: evType, Message: summary})
	close(j.events)
}

// Registry tracks live jobs. At most one bulk job may run per provider at
// a time; jobs are removed when they reach a terminal state.
type Registry struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	active map[model.Provider]string
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs:   make(map[string]*Job),
		active: make(map[model.Provider]string),
	}
}

// add registers a new job, rejecting a second live job for the same
// provider.
func (r *Registry) add(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.active[job.Provider]; ok {
		return fmt.Errorf("discover: job %s is already running for provider %s", id, job.Provider)
	}
	r.jobs[job.ID] = job
	r.active[job.Provider] = job.ID
	return nil
}

// remove drops a finished job.
func (r *Registry) remove(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, job.ID)
	if r.active[job.Provider] == job.ID {
		delete(r.active, job.Provider)
	}
}

// Job looks up a live job by id.
func (r *Registry) Job(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Cancel requests cooperative cancellation of a live job.
func (r *Registry) Cancel(id string) error {
	job, ok := r.Job(id)
	if !ok {
		return fmt.Errorf("discover: no running job %s", id)
	}
	job.RequestCancel()
	return nil
}
