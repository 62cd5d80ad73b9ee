package terralens

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const (
	// eventBuffer sizes the per-subscription event channel. Events beyond the
	// buffer block the reader until the consumer catches up; consumers apply
	// events quickly so this is headroom, not flow control.
	eventBuffer = 64

	// defaultPollInterval is the fallback polling cadence.
	defaultPollInterval = 2 * time.Second

	// defaultPollTimeout bounds each individual status request.
	defaultPollTimeout = 10 * time.Second

	// maxDecodeFailures is how many consecutive undecodable frames the
	// WebSocket reader tolerates before treating the channel as broken.
	maxDecodeFailures = 5

	// staleAfterFailures is the consecutive poll-failure count at which the
	// last known status is flagged stale and a warning is raised.
	staleAfterFailures = 3

	// readIdleLimit closes a WebSocket that has gone silent. The server pings
	// well inside this window.
	readIdleLimit = 90 * time.Second
)

// TransportConfig configures a Transport. Only Client is required.
type TransportConfig struct {
	Client *Client

	// Dialer overrides the WebSocket dialer, mainly for tests.
	Dialer *websocket.Dialer

	// PollInterval is the fallback polling cadence. Defaults to 2 seconds.
	PollInterval time.Duration

	// PollTimeout bounds each status request. Defaults to 10 seconds.
	PollTimeout time.Duration

	// Notify, when set, receives degradation advisories (fallback engaged,
	// status gone stale). It must not block.
	Notify Notifier

	Logger *slog.Logger
}

// Transport owns the push channel for job progress: a WebSocket subscription
// per job, degrading to HTTP status polling when the socket cannot be opened
// or kept alive. At most one subscription is active at a time; subscribing to
// a new job closes the previous stream first.
//
// The returned event channel is owned by the Transport and closed exactly
// once, when the subscription ends for any reason.
type Transport struct {
	client       *Client
	dialer       *websocket.Dialer
	pollInterval time.Duration
	pollTimeout  time.Duration
	notify       Notifier
	logger       *slog.Logger

	lastStatus statusCache

	mu     sync.Mutex
	active *subscription
}

// subscription is one job's event stream. done is closed exactly once, by
// close(), and tells the producer goroutine to stop.
type subscription struct {
	jobID     string
	events    chan ProgressEvent
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *subscription) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
}

// NewTransport creates a Transport for the given client.
func NewTransport(cfg TransportConfig) *Transport {
	t := &Transport{
		client:       cfg.Client,
		dialer:       cfg.Dialer,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		notify:       cfg.Notify,
		logger:       cfg.Logger,
	}
	if t.dialer == nil {
		t.dialer = websocket.DefaultDialer
	}
	if t.pollInterval <= 0 {
		t.pollInterval = defaultPollInterval
	}
	if t.pollTimeout <= 0 {
		t.pollTimeout = defaultPollTimeout
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Subscribe opens the event stream for jobID and returns its channel. Any
// previous subscription is closed first, so events from an abandoned job can
// never interleave with the new stream. The channel closes when the stream
// ends: terminal event delivered, Unsubscribe called, or ctx done.
func (t *Transport) Subscribe(ctx context.Context, jobID string) <-chan ProgressEvent {
	runCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		jobID:  jobID,
		events: make(chan ProgressEvent, eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	t.mu.Lock()
	if prev := t.active; prev != nil {
		prev.close()
	}
	t.active = sub
	t.lastStatus.reset()
	t.mu.Unlock()

	go t.run(runCtx, sub)
	return sub.events
}

// Unsubscribe closes the active subscription, if any. Safe to call multiple
// times and safe to call when nothing is subscribed.
func (t *Transport) Unsubscribe() {
	t.mu.Lock()
	sub := t.active
	t.active = nil
	t.mu.Unlock()
	if sub != nil {
		sub.close()
	}
}

// LastStatus returns the most recent successfully polled snapshot, when the
// transport is (or was) in polling fallback. The Stale flag is set after
// repeated poll failures.
func (t *Transport) LastStatus() (LastStatus, bool) {
	return t.lastStatus.get()
}

// run produces events for one subscription until it ends. It prefers the
// WebSocket; on dial failure or an unrecoverable read error it degrades to
// polling rather than giving up.
func (t *Transport) run(ctx context.Context, sub *subscription) {
	defer close(sub.events)
	defer t.clear(sub)

	conn, err := t.dial(ctx, sub.jobID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.logger.Warn("transport: websocket unavailable, falling back to polling",
			"job_id", sub.jobID, "error", err)
		t.sendNotice("Live updates unavailable; falling back to periodic refresh.")
		t.poll(ctx, sub)
		return
	}

	if t.readLoop(ctx, sub, conn) {
		return // terminal event delivered or subscription closed
	}
	if ctx.Err() != nil {
		return
	}
	t.logger.Warn("transport: websocket stream lost, falling back to polling", "job_id", sub.jobID)
	t.sendNotice("Live updates interrupted; falling back to periodic refresh.")
	t.poll(ctx, sub)
}

// dial opens the job's WebSocket with bounded exponential retry. Transient
// dial failures are common right after submission while the server registers
// the job.
func (t *Transport) dial(ctx context.Context, jobID string) (*websocket.Conn, error) {
	wsURL := t.client.WebSocketURL(jobID)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0

	var conn *websocket.Conn
	err := backoff.Retry(func() error {
		var dialErr error
		conn, _, dialErr = t.dialer.DialContext(ctx, wsURL, nil)
		if dialErr != nil {
			t.logger.Debug("transport: websocket dial failed", "url", wsURL, "error", dialErr)
		}
		return dialErr
	}, backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readLoop consumes frames from the socket until the subscription ends or the
// socket breaks. Returns true when the stream finished cleanly (terminal
// event sent, or subscription closed) and false when the caller should engage
// the polling fallback.
func (t *Transport) readLoop(ctx context.Context, sub *subscription, conn *websocket.Conn) bool {
	defer func() { _ = conn.Close() }()

	// Close the socket when the subscription ends so ReadMessage unblocks.
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-sub.done:
			_ = conn.Close()
		case <-ctx.Done():
			_ = conn.Close()
		case <-readerDone:
		}
	}()

	decodeFailures := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readIdleLimit))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-sub.done:
				return true
			default:
			}
			if ctx.Err() != nil {
				return true
			}
			t.logger.Debug("transport: websocket read failed", "job_id", sub.jobID, "error", err)
			return false
		}

		var ev ProgressEvent
		if err := json.Unmarshal(frame, &ev); err != nil || ev.Type == "" {
			decodeFailures++
			t.logger.Warn("transport: undecodable frame ignored",
				"job_id", sub.jobID, "consecutive", decodeFailures, "error", err)
			if decodeFailures >= maxDecodeFailures {
				return false
			}
			continue
		}
		decodeFailures = 0

		switch ev.Type {
		case eventConnectionEstablished, eventPing, eventPong, eventStatus:
			continue // housekeeping, not progress
		case EventProgressUpdate, EventJobCompleted, EventJobFailed:
		default:
			t.logger.Debug("transport: unknown event type ignored", "type", ev.Type)
			continue
		}

		if ev.JobID == "" {
			ev.JobID = sub.jobID
		}
		if !t.send(sub, ev) {
			return true
		}
		if ev.Type == EventJobCompleted || ev.Type == EventJobFailed {
			return true
		}
	}
}

// poll drives the fallback loop: one status request per tick, at most one in
// flight. The request runs synchronously with its own timeout, so a slow
// server drops ticks instead of stacking requests.
func (t *Transport) poll(ctx context.Context, sub *subscription) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reqCtx, cancel := context.WithTimeout(ctx, t.pollTimeout)
		status, err := t.client.Status(reqCtx, sub.jobID)
		cancel()
		if err != nil {
			failures++
			t.logger.Warn("transport: status poll failed",
				"job_id", sub.jobID, "consecutive", failures, "error", err)
			if failures == staleAfterFailures {
				t.lastStatus.markStale()
				t.sendNotice("Progress updates are stale; retrying in the background.")
			}
			continue
		}
		failures = 0
		t.lastStatus.store(*status)

		ev, terminal := eventFromStatus(status)
		if ev != nil && !t.send(sub, *ev) {
			return
		}
		if terminal {
			return
		}
	}
}

// eventFromStatus converts a polled snapshot into the event the WebSocket
// would have delivered. A still-pending job yields no event; cancelled ends
// the stream without one (the cancel path already reset the machine).
func eventFromStatus(s *JobStatus) (*ProgressEvent, bool) {
	switch s.Status {
	case StateRunning:
		return &ProgressEvent{
			Type:     EventProgressUpdate,
			JobID:    s.JobID,
			Progress: s.Progress,
			Message:  s.Message,
		}, false
	case StateCompleted:
		return &ProgressEvent{
			Type:    EventJobCompleted,
			JobID:   s.JobID,
			Message: s.Message,
		}, true
	case StateFailed:
		return &ProgressEvent{
			Type:    EventJobFailed,
			JobID:   s.JobID,
			Message: s.Message,
		}, true
	case StateCancelled:
		return nil, true
	default:
		return nil, false
	}
}

// send delivers an event unless the subscription closed first. Returns false
// when the stream is done.
func (t *Transport) send(sub *subscription, ev ProgressEvent) bool {
	select {
	case sub.events <- ev:
		return true
	case <-sub.done:
		return false
	}
}

// clear drops the active slot if it still points at sub.
func (t *Transport) clear(sub *subscription) {
	sub.close()
	t.mu.Lock()
	if t.active == sub {
		t.active = nil
	}
	t.mu.Unlock()
}

func (t *Transport) sendNotice(msg string) {
	if t.notify != nil {
		t.notify(Notification{Message: msg, Severity: SeverityWarning})
	}
}
