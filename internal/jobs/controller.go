package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vatsal3003/upscale-client/internal/upscale"
	"github.com/vatsal3003/upscale-client/pkg/models"
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// ErrBusy is returned by Submit while another job is being submitted or polled.
var ErrBusy = errors.New("a job is already in progress")

// Service is the part of the upscale service the controller drives.
type Service interface {
	Start(ctx context.Context, uploads []models.Upload, settings models.SubmissionSettings) (models.JobHandle, error)
	Status(ctx context.Context, handle models.JobHandle) (models.JobStatus, error)
	Cancel(ctx context.Context, handle models.JobHandle) (models.CancelAck, error)
}

// CancelWarning reports a cancel request the service did not confirm. The
// job may still run server side; the controller has stopped tracking it.
type CancelWarning struct {
	GroupID string
	Err     error
}

func (w *CancelWarning) Error() string {
	return fmt.Sprintf("cancellation of job %s not confirmed: %v", w.GroupID, w.Err)
}

func (w *CancelWarning) Unwrap() error { return w.Err }

// Outcome is how a job ended.
type Outcome struct {
	State  State
	Handle models.JobHandle
	Status models.JobStatus
	Err    error
}

type Options struct {
	PollInterval time.Duration
	Logger       zerolog.Logger
	// Observers are notified one event at a time, in order. They must not
	// call back into the controller's Submit or Cancel.
	Observers []Observer
}

type run struct {
	done    chan struct{}
	outcome Outcome
}

type pollResult struct {
	seq    uint64
	status models.JobStatus
	err    error
}

// Controller tracks at most one batch job at a time: it submits, polls until
// every item resolves and cancels on request. Use one controller per
// concurrently tracked job.
type Controller struct {
	id        string
	svc       Service
	interval  time.Duration
	log       zerolog.Logger
	observers []Observer

	// emitMu orders events: it is held across each state change and the
	// notifications for it, and is always taken before mu.
	emitMu sync.Mutex

	mu       sync.Mutex
	state    State
	handle   models.JobHandle
	progress Progress
	stopPoll context.CancelFunc
	current  *run
}

func NewController(svc Service, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	id := uuid.NewString()
	return &Controller{
		id:        id,
		svc:       svc,
		interval:  opts.PollInterval,
		log:       opts.Logger.With().Str("controller_id", id).Logger(),
		observers: opts.Observers,
		state:     StateIdle,
	}
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Handle returns the active job handle, zero when no job is tracked.
func (c *Controller) Handle() models.JobHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Submit sends uploads as one job and starts polling it. The controller is
// marked busy before the request goes out, so a concurrent Submit gets
// ErrBusy instead of sending a duplicate job.
func (c *Controller) Submit(ctx context.Context, uploads []models.Upload, settings models.SubmissionSettings) (models.JobHandle, error) {
	c.mu.Lock()
	if c.state == StateSubmitting || c.state == StatePolling {
		c.mu.Unlock()
		return models.JobHandle{}, ErrBusy
	}
	if len(uploads) == 0 {
		c.state = StateIdle
		c.mu.Unlock()
		return models.JobHandle{}, &upscale.ValidationError{Msg: "please select at least one image first"}
	}
	if err := settings.Validate(); err != nil {
		c.state = StateIdle
		c.mu.Unlock()
		return models.JobHandle{}, &upscale.ValidationError{Msg: err.Error()}
	}

	files := append([]models.Upload(nil), uploads...)
	r := &run{done: make(chan struct{})}
	c.state = StateSubmitting
	c.handle = models.JobHandle{}
	c.progress = Progress{}
	c.current = r
	c.mu.Unlock()

	c.emitMu.Lock()
	c.emit(Event{Type: EventSubmitting, State: StateSubmitting, Files: len(files)})
	c.emitMu.Unlock()

	handle, err := c.svc.Start(ctx, files, settings)

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if err != nil {
		c.state = StateIdle
		r.outcome = Outcome{State: StateFailed, Err: err}
		c.mu.Unlock()

		c.log.Error().Err(err).Msg("job submission failed")
		c.emit(Event{Type: EventFailed, State: StateIdle, Files: len(files), Error: err.Error()})
		close(r.done)
		return models.JobHandle{}, err
	}

	pollCtx, stop := context.WithCancel(context.Background())
	c.state = StatePolling
	c.handle = handle
	c.stopPoll = stop
	c.mu.Unlock()

	c.log.Info().Str("group_id", handle.GroupID).Int("files", len(files)).Msg("job submitted")
	c.emit(Event{Type: EventSubmitted, GroupID: handle.GroupID, State: StatePolling, Files: len(files)})

	go c.poll(pollCtx, handle)

	return handle, nil
}

// Cancel stops tracking the active job and asks the service to cancel it.
// Without an active job it does nothing. A failed cancel request is returned
// as a *CancelWarning; the controller is cancelled either way.
func (c *Controller) Cancel(ctx context.Context) (models.CancelAck, error) {
	c.emitMu.Lock()
	c.mu.Lock()
	if c.state != StatePolling || c.handle.IsZero() {
		c.mu.Unlock()
		c.emitMu.Unlock()
		return models.CancelAck{}, nil
	}
	handle := c.handle
	progress := c.progress
	c.stopPoll()
	r := c.finishLocked(StateCancelled, nil)
	c.mu.Unlock()

	c.log.Info().Str("group_id", handle.GroupID).Msg("job cancelled")
	c.emit(progressEvent(EventCancelled, handle, StateCancelled, progress))
	release(r)
	c.emitMu.Unlock()

	ack, err := c.svc.Cancel(ctx, handle)
	if err != nil {
		c.log.Warn().Err(err).Str("group_id", handle.GroupID).Msg("cancel request failed, job may still run on the service")
		e := progressEvent(EventCancelWarning, handle, StateCancelled, progress)
		e.Error = err.Error()
		c.emitMu.Lock()
		c.emit(e)
		c.emitMu.Unlock()
		return models.CancelAck{}, &CancelWarning{GroupID: handle.GroupID, Err: err}
	}
	return ack, nil
}

// Wait blocks until the current job reaches a terminal state and the
// events for that state have been delivered. Without a job it returns an
// idle outcome straight away.
func (c *Controller) Wait(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()

	if r == nil {
		return Outcome{State: StateIdle}, nil
	}

	select {
	case <-r.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (c *Controller) poll(ctx context.Context, handle models.JobHandle) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	results := make(chan pollResult, 1)
	var seq uint64
	inFlight := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if inFlight {
				c.log.Debug().Str("group_id", handle.GroupID).Msg("status request still pending, skipping tick")
				continue
			}
			seq++
			inFlight = true
			go c.fetch(ctx, handle, seq, results)
		case res := <-results:
			inFlight = false
			if c.apply(ctx, handle, res) {
				return
			}
		}
	}
}

func (c *Controller) fetch(ctx context.Context, handle models.JobHandle, seq uint64, results chan<- pollResult) {
	status, err := c.svc.Status(ctx, handle)
	results <- pollResult{seq: seq, status: status, err: err}
}

// apply handles one poll result and reports whether polling is over.
func (c *Controller) apply(ctx context.Context, handle models.JobHandle, res pollResult) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if ctx.Err() != nil || c.state != StatePolling || c.handle != handle {
		c.mu.Unlock()
		return true
	}

	if res.err != nil {
		progress := c.progress
		c.stopPoll()
		r := c.finishLocked(StateFailed, res.err)
		c.mu.Unlock()

		c.log.Error().Err(res.err).Str("group_id", handle.GroupID).Msg("status query failed")
		e := progressEvent(EventFailed, handle, StateFailed, progress)
		e.Error = res.err.Error()
		c.emit(e)
		release(r)
		return true
	}

	next, ok := Apply(c.progress, res.seq, res.status)
	if !ok {
		c.mu.Unlock()
		c.log.Debug().Uint64("seq", res.seq).Msg("discarding stale status response")
		return false
	}
	c.progress = next

	terminal := res.status.Terminal()
	var r *run
	if terminal {
		c.stopPoll()
		r = c.finishLocked(StateCompleted, nil)
	}
	c.mu.Unlock()

	c.emit(progressEvent(EventProgress, handle, StatePolling, next))
	if terminal {
		c.log.Info().Str("group_id", handle.GroupID).Int("total", next.Total).Msg("job completed")
		c.emit(progressEvent(EventCompleted, handle, StateCompleted, next))
		release(r)
	}
	return terminal
}

// finishLocked moves the controller to a terminal state and records the
// outcome. The returned run is released once its events are out. c.mu must
// be held.
func (c *Controller) finishLocked(state State, err error) *run {
	c.state = state
	r := c.current
	if r != nil {
		r.outcome = Outcome{
			State:  state,
			Handle: c.handle,
			Status: c.progress.Status,
			Err:    err,
		}
	}
	c.handle = models.JobHandle{}
	c.stopPoll = nil
	return r
}

func release(r *run) {
	if r != nil {
		close(r.done)
	}
}

// emit notifies every observer. c.emitMu must be held.
func (c *Controller) emit(e Event) {
	e.ControllerID = c.id
	e.At = time.Now().UTC()
	for _, o := range c.observers {
		o.Notify(e)
	}
}

func progressEvent(t EventType, handle models.JobHandle, state State, p Progress) Event {
	return Event{
		Type:      t,
		GroupID:   handle.GroupID,
		State:     state,
		Seq:       p.Seq,
		Completed: p.Completed,
		Total:     p.Total,
		Percent:   p.Percent,
	}
}
