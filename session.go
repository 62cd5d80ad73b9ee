package terralens

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SessionConfig configures a Session. Only Client is required.
type SessionConfig struct {
	Client *Client

	// Transport overrides the push channel, mainly for tests. When nil a
	// Transport is built from Client with defaults.
	Transport *Transport

	// OnChange fires after every job state change with a copy of the job.
	OnChange func(Job)

	// Notify receives session-level errors and advisories. It must not block.
	Notify Notifier

	Logger *slog.Logger
}

// Session tracks exactly one visualization job end to end: submit, stream
// progress, land in a terminal state, fetch the result. Submitting while a
// job is still pending or running is rejected; a terminal job is displaced by
// the next submission.
//
// All methods are safe for concurrent use. Errors that occur inside the event
// pump (where there is no caller to return to) are funneled to the Notifier.
type Session struct {
	client    *Client
	transport *Transport
	machine   *Machine
	artifacts *artifactCache
	notify    Notifier
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	request AnalysisRequest // parameters of the tracked job, for export naming
	fetched map[string]bool // job ids whose preview fetch already ran
}

// NewSession creates a Session around the given client.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(Notification) {}
	}

	transport := cfg.Transport
	if transport == nil {
		transport = NewTransport(TransportConfig{
			Client: cfg.Client,
			Notify: notify,
			Logger: logger,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		client:    cfg.Client,
		transport: transport,
		machine:   NewMachine(logger, cfg.OnChange),
		artifacts: newArtifactCache(),
		notify:    notify,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		fetched:   make(map[string]bool),
	}
}

// Submit validates and submits a new analysis job, then begins tracking it.
// Returns ErrJobActive while a previous job is still pending or running;
// ValidationErrors when the request fails local validation. On success the
// job id is returned and progress events start flowing to OnChange.
func (s *Session) Submit(ctx context.Context, req AnalysisRequest) (string, error) {
	if s.machine.Cancellable() {
		return "", ErrJobActive
	}

	resp, err := s.client.Submit(ctx, req)
	if err != nil {
		return "", err
	}

	// A terminal job from the previous round gives way to the new one.
	if s.machine.Job().State.Terminal() {
		s.machine.Reset()
	}
	if !s.machine.Begin(resp.JobID) {
		// Lost a race with a concurrent Submit that got in first.
		return "", ErrJobActive
	}

	s.mu.Lock()
	s.request = req
	s.mu.Unlock()

	events := s.transport.Subscribe(s.ctx, resp.JobID)
	s.wg.Add(1)
	go s.pump(events)

	s.logger.Info("session: job submitted", "job_id", resp.JobID, "region", req.RegionName)
	return resp.JobID, nil
}

// pump applies the event stream to the state machine. On a terminal event the
// subscription is torn down before the transition is applied, so no event can
// arrive after the job is final. Completion triggers the one preview fetch.
func (s *Session) pump(events <-chan ProgressEvent) {
	defer s.wg.Done()

	for ev := range events {
		terminal := ev.Type == EventJobCompleted || ev.Type == EventJobFailed
		if terminal {
			s.transport.Unsubscribe()
		}

		job := s.machine.Apply(ev)

		if terminal && job.State == StateCompleted && job.ID == ev.JobID {
			s.fetchPreview(job.ID)
		}
		if terminal {
			return
		}
	}
}

// fetchPreview retrieves and caches the completed job's artifact, once per
// job id. Failure leaves the job completed; RefreshPreview can retry.
func (s *Session) fetchPreview(jobID string) {
	s.mu.Lock()
	if s.fetched[jobID] {
		s.mu.Unlock()
		return
	}
	s.fetched[jobID] = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	artifact, err := s.client.Preview(ctx, jobID)
	if err != nil {
		s.logger.Error("session: preview fetch failed", "job_id", jobID, "error", err)
		s.notify(Notification{
			Message:  fmt.Sprintf("Analysis finished but the result could not be loaded: %v", err),
			Severity: SeverityError,
		})
		return
	}
	s.artifacts.set(jobID, artifact)
}

// Cancel asks the server to cancel the tracked job. A no-op returning ErrNoJob
// unless the job is pending or running. On server acknowledgement the stream
// is closed and the session returns to idle; on rejection the state is left
// unchanged and the error is also raised as a notification.
func (s *Session) Cancel(ctx context.Context) error {
	job := s.machine.Job()
	if !s.machine.Cancellable() {
		return ErrNoJob
	}

	if err := s.client.CancelJob(ctx, job.ID); err != nil {
		s.logger.Warn("session: cancellation rejected", "job_id", job.ID, "error", err)
		s.notify(Notification{
			Message:  fmt.Sprintf("Could not cancel the analysis: %v", err),
			Severity: SeverityError,
		})
		return err
	}

	s.transport.Unsubscribe()
	s.machine.CancelAccepted()
	s.logger.Info("session: job cancelled", "job_id", job.ID)
	return nil
}

// Job returns a copy of the tracked job's current state.
func (s *Session) Job() Job { return s.machine.Job() }

// Request returns the parameters of the tracked job.
func (s *Session) Request() AnalysisRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// DismissFailure acknowledges a failed job and returns the session to idle.
func (s *Session) DismissFailure() bool { return s.machine.DismissFailure() }

// LastStatus exposes the polling fallback's last known snapshot.
func (s *Session) LastStatus() (LastStatus, bool) { return s.transport.LastStatus() }

// Artifact returns the cached result for the tracked job. ErrNotCompleted
// until the job completes; ErrNoJob when the session is idle.
func (s *Session) Artifact() (*ResultArtifact, error) {
	job := s.machine.Job()
	if job.ID == "" {
		return nil, ErrNoJob
	}
	if job.State != StateCompleted {
		return nil, ErrNotCompleted
	}
	if a, ok := s.artifacts.get(job.ID); ok {
		return a, nil
	}
	return nil, fmt.Errorf("terralens: result for job %s not loaded yet", job.ID)
}

// RefreshPreview re-fetches the completed job's artifact from the server,
// replacing the cached copy.
func (s *Session) RefreshPreview(ctx context.Context) (*ResultArtifact, error) {
	job := s.machine.Job()
	if job.ID == "" {
		return nil, ErrNoJob
	}
	if job.State != StateCompleted {
		return nil, ErrNotCompleted
	}

	artifact, err := s.client.Preview(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	s.artifacts.set(job.ID, artifact)
	return artifact, nil
}

// Export renders the tracked completed job in the requested format.
func (s *Session) Export(ctx context.Context, format ExportFormat, opts *ExportOptions) ([]byte, error) {
	job := s.machine.Job()
	if job.ID == "" {
		return nil, ErrNoJob
	}
	if job.State != StateCompleted {
		return nil, ErrNotCompleted
	}

	req := ExportRequest{JobID: job.ID, Format: format, IncludeLegend: true}
	if opts != nil {
		req.Resolution = opts.Resolution
		req.IncludeLegend = opts.IncludeLegend
		req.PaperSize = opts.PaperSize
	}
	return s.client.Export(ctx, req)
}

// Close tears down the session: the subscription ends and the pump drains.
func (s *Session) Close() {
	s.transport.Unsubscribe()
	s.cancel()
	s.wg.Wait()
}
