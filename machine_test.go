package terralens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineBeginFromIdle(t *testing.T) {
	m := NewMachine(nil, nil)
	require.True(t, m.Begin("job-1"))

	job := m.Job()
	assert.Equal(t, StatePending, job.State)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, 0, job.Progress)
}

func TestMachineRejectsBeginWhileActive(t *testing.T) {
	m := NewMachine(nil, nil)
	require.True(t, m.Begin("job-1"))
	assert.False(t, m.Begin("job-2"), "pending job must block a new one")

	m.Apply(ProgressEvent{Type: EventProgressUpdate, JobID: "job-1", Progress: 10})
	assert.False(t, m.Begin("job-3"), "running job must block a new one")
}

func TestMachineProgressMovesPendingToRunning(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Begin("job-1")

	job := m.Apply(ProgressEvent{Type: EventProgressUpdate, JobID: "job-1", Progress: 10, Message: "Fetching imagery"})
	assert.Equal(t, StateRunning, job.State)
	assert.Equal(t, 10, job.Progress)
	assert.Equal(t, "Fetching imagery", job.Message)
}

func TestMachineProgressIsLastWriteWins(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Begin("job-1")
	m.Apply(ProgressEvent{Type: EventProgressUpdate, JobID: "job-1", Progress: 70})

	// A regression is displayed as-is, not rejected.
	job := m.Apply(ProgressEvent{Type: EventProgressUpdate, JobID: "job-1", Progress: 40})
	assert.Equal(t, 40, job.Progress)
}

func TestMachineCompletionForcesFullProgress(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Begin("job-1")
	m.Apply(ProgressEvent{Type: EventProgressUpdate, JobID: "job-1", Progress: 95})

	job := m.Apply(ProgressEvent{Type: EventJobCompleted, JobID: "job-1"})
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, 100, job.Progress)
}

func TestMachineDirectPendingToCompleted(t *testing.T) {
	// Very fast jobs can complete before any progress event arrives.
	m := NewMachine(nil, nil)
	m.Begin("job-1")

	job := m.Apply(ProgressEvent{Type: EventJobCompleted, JobID: "job-1"})
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, 100, job.Progress)
}

func TestMachineFailureDefaultsMessage(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Begin("job-1")

	job := m.Apply(ProgressEvent{Type: EventJobFailed, JobID: "job-1"})
	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, "Analysis failed", job.Message)

	m.Reset()
	m.Begin("job-2")
	job = m.Apply(ProgressEvent{Type: EventJobFailed, JobID: "job-2", Message: "GEE quota exceeded"})
	assert.Equal(t, "GEE quota exceeded", job.Message)
}

func TestMachineTerminalStateLatches(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Begin("job-1")
	m.Apply(ProgressEvent{Type: EventJobCompleted, JobID: "job-1"})

	job := m.Apply(ProgressEvent{Type: EventProgressUpdate, JobID: "job-1", Progress: 50})
	assert.Equal(t, StateCompleted, job.State, "late progress must not reopen a terminal job")
	assert.Equal(t, 100, job.Progress)

	job = m.Apply(ProgressEvent{Type: EventJobFailed, JobID: "job-1", Message: "late failure"})
	assert.Equal(t, StateCompleted, job.State)
}

func TestMachineDropsStaleJobEvents(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Begin("job-2")

	job := m.Apply(ProgressEvent{Type: EventProgressUpdate, JobID: "job-1", Progress: 80})
	assert.Equal(t, StatePending, job.State, "events for an abandoned job must be dropped")
	assert.Equal(t, 0, job.Progress)
}

func TestMachineCancelAcceptedResetsToIdle(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Begin("job-1")
	m.Apply(ProgressEvent{Type: EventProgressUpdate, JobID: "job-1", Progress: 30})

	require.True(t, m.Cancellable())
	require.True(t, m.CancelAccepted())
	assert.Equal(t, StateIdle, m.Job().State)
	assert.False(t, m.Cancellable())
}

func TestMachineCancelNoOpFromTerminal(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Begin("job-1")
	m.Apply(ProgressEvent{Type: EventJobCompleted, JobID: "job-1"})

	assert.False(t, m.Cancellable())
	assert.False(t, m.CancelAccepted())
	assert.Equal(t, StateCompleted, m.Job().State)
}

func TestMachineDismissFailure(t *testing.T) {
	m := NewMachine(nil, nil)
	m.Begin("job-1")
	m.Apply(ProgressEvent{Type: EventJobFailed, JobID: "job-1"})

	require.True(t, m.DismissFailure())
	assert.Equal(t, StateIdle, m.Job().State)
	assert.False(t, m.DismissFailure(), "dismiss from idle is a no-op")
}

func TestMachineChangeCallbackSeesCommittedState(t *testing.T) {
	var states []JobState
	m := NewMachine(nil, func(job Job) { states = append(states, job.State) })

	m.Begin("job-1")
	m.Apply(ProgressEvent{Type: EventProgressUpdate, JobID: "job-1", Progress: 50})
	m.Apply(ProgressEvent{Type: EventJobCompleted, JobID: "job-1"})

	assert.Equal(t, []JobState{StatePending, StateRunning, StateCompleted}, states)
}
