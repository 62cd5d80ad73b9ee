package terralens

import (
	"log/slog"
	"sync"
)

const defaultFailureMessage = "Analysis failed"

// Machine is the authoritative client-side view of one job's lifecycle. It is
// the sole mutator of the tracked Job: the transport only emits events and the
// UI layer only reads state and issues commands.
//
// All methods are safe for concurrent use; the change callback is invoked
// synchronously while the new state is already committed.
type Machine struct {
	mu       sync.Mutex
	job      Job
	onChange func(Job)
	logger   *slog.Logger
}

// NewMachine creates a state machine in the idle state. onChange may be nil;
// when set it fires after every state mutation with a copy of the job.
func NewMachine(logger *slog.Logger, onChange func(Job)) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		job:      Job{State: StateIdle},
		onChange: onChange,
		logger:   logger,
	}
}

// Job returns a copy of the current job state.
func (m *Machine) Job() Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job
}

// Begin transitions idle → pending for a freshly submitted job. Progress
// starts at zero before any event arrives. Returns false if a non-terminal
// job is already tracked.
func (m *Machine) Begin(jobID string) bool {
	m.mu.Lock()
	if m.job.State == StatePending || m.job.State == StateRunning {
		m.mu.Unlock()
		return false
	}
	m.job = Job{ID: jobID, State: StatePending, Progress: 0, Message: "Job queued for processing"}
	m.notifyLocked()
	return true
}

// Apply ingests one event from the transport. Events for a different job id
// and events arriving after a terminal state are dropped. Progress is
// last-write-wins; the machine does not reorder or reject regressions.
// Returns the job state after the event.
func (m *Machine) Apply(ev ProgressEvent) Job {
	m.mu.Lock()

	if ev.JobID != "" && ev.JobID != m.job.ID {
		job := m.job
		m.mu.Unlock()
		m.logger.Debug("machine: dropped event for stale job", "event_job", ev.JobID, "current_job", job.ID)
		return job
	}
	if m.job.State.Terminal() || m.job.State == StateIdle {
		job := m.job
		m.mu.Unlock()
		return job
	}

	switch ev.Type {
	case EventProgressUpdate:
		// First progress event of any value moves pending → running.
		m.job.State = StateRunning
		m.job.Progress = ev.Progress
		if ev.Message != "" {
			m.job.Message = ev.Message
		}
	case EventJobCompleted:
		m.job.State = StateCompleted
		m.job.Progress = 100
		if ev.Message != "" {
			m.job.Message = ev.Message
		}
	case EventJobFailed:
		m.job.State = StateFailed
		m.job.Message = ev.Message
		if m.job.Message == "" {
			m.job.Message = defaultFailureMessage
		}
	default:
		job := m.job
		m.mu.Unlock()
		return job
	}

	job := m.job
	m.notifyLocked()
	return job
}

// CancelAccepted records a server-acknowledged cancellation: the job leaves
// pending/running and the machine resets to idle. A no-op from any other
// state.
func (m *Machine) CancelAccepted() bool {
	m.mu.Lock()
	if m.job.State != StatePending && m.job.State != StateRunning {
		m.mu.Unlock()
		return false
	}
	m.job = Job{State: StateIdle}
	m.notifyLocked()
	return true
}

// Cancellable reports whether a cancel request would be accepted right now.
func (m *Machine) Cancellable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job.State == StatePending || m.job.State == StateRunning
}

// DismissFailure transitions failed → idle when the user dismisses the error.
// A no-op from any other state.
func (m *Machine) DismissFailure() bool {
	m.mu.Lock()
	if m.job.State != StateFailed {
		m.mu.Unlock()
		return false
	}
	m.job = Job{State: StateIdle}
	m.notifyLocked()
	return true
}

// Reset unconditionally returns the machine to idle. Used when a new job
// replaces a terminal one.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.job = Job{State: StateIdle}
	m.notifyLocked()
}

// notifyLocked fires the change callback outside the lock. Callers must hold
// mu; it is released here.
func (m *Machine) notifyLocked() {
	job := m.job
	cb := m.onChange
	m.mu.Unlock()
	if cb != nil {
		cb(job)
	}
}
