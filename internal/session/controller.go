package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/geometry"
)

// ErrStopped is returned by Controller methods once Run has returned.
var ErrStopped = errors.New("session controller stopped")

type event func(s *Session)

// Controller runs a Session on a single goroutine. Commands and request
// resolutions are queued as events and applied one at a time, so the
// session never sees concurrent mutation.
type Controller struct {
	sess   *Session
	events chan event
	done   chan struct{}
	logger *slog.Logger
}

// NewController wraps sess. Run must be started before any command is issued.
func NewController(sess *Session) *Controller {
	return &Controller{
		sess:   sess,
		events: make(chan event),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the controller
func (c *Controller) WithLogger(logger *slog.Logger) *Controller {
	c.logger = logger
	return c
}

// Run processes events until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.logger.Debug("session controller started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("session controller stopped")
			return nil
		case ev := <-c.events:
			ev(c.sess)
		}
	}
}

// do runs fn on the event loop and waits for it to finish.
func (c *Controller) do(ctx context.Context, fn func(s *Session)) error {
	ack := make(chan struct{})
	ev := func(s *Session) {
		defer close(ack)
		fn(s)
	}

	select {
	case c.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}

	// An accepted event always runs to completion.
	<-ack
	return nil
}

// post queues fn without waiting for it.
func (c *Controller) post(fn event) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// State returns a snapshot of the session state and the selected crop.
func (c *Controller) State(ctx context.Context) (State, analysis.CropType, error) {
	var st State
	var crop analysis.CropType
	err := c.do(ctx, func(s *Session) {
		st = s.State()
		crop = s.CropType()
	})
	return st, crop, err
}

// SetBoundary replaces the session boundary with a drawn ring.
func (c *Controller) SetBoundary(ctx context.Context, points []geometry.LatLng) (State, error) {
	var st State
	var opErr error
	if err := c.do(ctx, func(s *Session) {
		opErr = s.SetBoundary(points)
		st = s.State()
	}); err != nil {
		return State{}, err
	}
	return st, opErr
}

// SetCropType changes the selected crop.
func (c *Controller) SetCropType(ctx context.Context, crop analysis.CropType) (State, error) {
	var st State
	var opErr error
	if err := c.do(ctx, func(s *Session) {
		opErr = s.SetCropType(crop)
		st = s.State()
	}); err != nil {
		return State{}, err
	}
	return st, opErr
}

// Submit starts an analysis of the current boundary. The outcome is applied
// to the session by the event loop once the request resolves.
func (c *Controller) Submit(ctx context.Context) (State, error) {
	var st State
	var sub Submission
	var opErr error
	if err := c.do(ctx, func(s *Session) {
		sub, opErr = s.Submit(ctx)
		st = s.State()
	}); err != nil {
		return State{}, err
	}
	if opErr != nil {
		return st, opErr
	}

	go c.await(sub)
	return st, nil
}

// Clear resets the session to Idle.
func (c *Controller) Clear(ctx context.Context) (State, error) {
	var st State
	if err := c.do(ctx, func(s *Session) {
		s.Clear()
		st = s.State()
	}); err != nil {
		return State{}, err
	}
	return st, nil
}

// await delivers a submission's outcome back to the event loop.
func (c *Controller) await(sub Submission) {
	select {
	case <-sub.Future.Done():
	case <-c.done:
		return
	}

	outcome, _ := sub.Future.Outcome()
	c.post(func(s *Session) {
		s.OnRequestResolved(sub.Ticket, outcome)
	})
}
