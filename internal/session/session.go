// Package session implements the boundary-selection and analysis workflow.
//
// A Session moves through Idle → Ready → Pending → Succeeded/Failed and back
// to Idle on Clear. It owns the current boundary, the selected crop type, the
// live request ticket, and the last result. A Session is not safe for
// concurrent use; Controller serialises access to one.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/geometry"
	"github.com/rkm/farm-health/internal/metrics"
)

// Submitter starts an analysis request and returns its pending outcome.
type Submitter interface {
	Submit(ctx context.Context, req analysis.Request) *analysis.Future
}

// Ticket identifies a submitted request together with the boundary and crop
// it was submitted for.
type Ticket struct {
	seq        uint64
	generation uint64
	Request    analysis.Request
}

// Submission is returned by Submit: the ticket to hand back to
// OnRequestResolved and the future that will carry the outcome.
type Submission struct {
	Ticket Ticket
	Future *analysis.Future
}

// Session is the analysis state machine.
type Session struct {
	state State
	crop  analysis.CropType

	// generation changes whenever the boundary is replaced or cleared.
	generation uint64
	// seq numbers tickets; live is the seq of the ticket whose outcome may
	// still be applied, 0 when none.
	seq  uint64
	live uint64

	submitter Submitter
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Idle session. An invalid crop falls back to the default.
func New(submitter Submitter, crop analysis.CropType) *Session {
	if !crop.Valid() {
		crop = analysis.DefaultCropType
	}
	s := &Session{
		crop:      crop,
		submitter: submitter,
		logger:    slog.Default(),
		now:       time.Now,
	}
	s.state = State{Kind: Idle, UpdatedAt: s.now()}
	return s
}

// WithLogger sets a custom logger for the session
func (s *Session) WithLogger(logger *slog.Logger) *Session {
	s.logger = logger
	return s
}

// State returns a snapshot of the current state.
func (s *Session) State() State {
	return s.state.clone()
}

// CropType returns the currently selected crop type.
func (s *Session) CropType() analysis.CropType {
	return s.crop
}

// SetBoundary replaces the boundary with a newly drawn ring. Any stored
// result is dropped and a pending request is superseded. An invalid ring
// leaves the session untouched.
func (s *Session) SetBoundary(points []geometry.LatLng) error {
	ring, err := geometry.Normalize(points)
	if err != nil {
		return err
	}

	s.generation++
	s.supersede()
	s.transition(State{Kind: Ready, Boundary: geometry.NewBoundary(ring)})

	s.logger.Debug("boundary set",
		slog.Int("points", len(ring)),
		slog.Uint64("generation", s.generation),
	)
	return nil
}

// SetCropType selects the crop for the next submission. It is valid in
// every state and does not touch the boundary or the result.
func (s *Session) SetCropType(crop analysis.CropType) error {
	if !crop.Valid() {
		return fmt.Errorf("%w: %q", analysis.ErrUnknownCropType, crop)
	}
	s.crop = crop
	return nil
}

// Submit sends the current boundary and crop for analysis. It is valid from
// Ready and Failed. The caller must deliver the future's outcome back
// through OnRequestResolved.
func (s *Session) Submit(ctx context.Context) (Submission, error) {
	switch s.state.Kind {
	case Idle:
		return Submission{}, ErrNoBoundary
	case Pending:
		return Submission{}, ErrRequestInFlight
	case Succeeded:
		return Submission{}, fmt.Errorf("%w: analysis already succeeded, redraw or clear the boundary first", ErrInvalidTransition)
	}
	if s.state.Boundary.IsEmpty() {
		return Submission{}, ErrNoBoundary
	}

	req := analysis.NewRequest(s.state.Boundary, s.crop)
	s.seq++
	ticket := Ticket{seq: s.seq, generation: s.generation, Request: req}
	s.live = ticket.seq

	s.transition(State{
		Kind:      Pending,
		Boundary:  s.state.Boundary,
		Crop:      s.crop,
		RequestID: req.ID,
	})

	s.logger.InfoContext(ctx, "analysis submitted",
		slog.String("request_id", req.ID),
		slog.String("crop_type", string(s.crop)),
	)

	return Submission{Ticket: ticket, Future: s.submitter.Submit(ctx, req)}, nil
}

// OnRequestResolved applies the outcome of a submitted request. The outcome
// is applied only when the ticket is still live and was issued for the
// current boundary and crop; otherwise it is discarded and false is
// returned. A failure moves the session to Failed with the boundary kept so
// the user can retry.
func (s *Session) OnRequestResolved(t Ticket, o analysis.Outcome) bool {
	if t.seq == 0 || t.seq != s.live || s.state.Kind != Pending {
		s.discard(t, "superseded")
		return false
	}
	s.live = 0

	if t.generation != s.generation || t.Request.CropType != s.crop {
		// The request no longer matches what the user sees; return to
		// Ready so the boundary can be submitted again.
		s.discard(t, "crop changed")
		s.transition(State{Kind: Ready, Boundary: s.state.Boundary})
		return false
	}

	if o.Err != nil {
		s.transition(State{
			Kind:      Failed,
			Boundary:  s.state.Boundary,
			Crop:      t.Request.CropType,
			Err:       o.Err,
			RequestID: t.Request.ID,
		})
		return true
	}

	s.transition(State{
		Kind:      Succeeded,
		Boundary:  s.state.Boundary,
		Crop:      t.Request.CropType,
		Result:    o.Result.Clone(),
		RequestID: t.Request.ID,
	})
	return true
}

// Clear drops the boundary and any result and returns to Idle. It is valid
// in every state; a pending request is not cancelled but its outcome will
// be discarded.
func (s *Session) Clear() {
	if s.state.Kind == Idle {
		return
	}
	s.generation++
	s.supersede()
	s.transition(State{Kind: Idle})
}

func (s *Session) supersede() {
	if s.live != 0 {
		s.logger.Debug("pending analysis superseded", slog.String("request_id", s.state.RequestID))
	}
	s.live = 0
}

func (s *Session) discard(t Ticket, reason string) {
	metrics.StaleResultsDiscarded.Inc()
	s.logger.Debug("discarding stale analysis outcome",
		slog.String("request_id", t.Request.ID),
		slog.String("reason", reason),
	)
}

func (s *Session) transition(next State) {
	next.UpdatedAt = s.now()
	s.state = next
	metrics.SessionTransitions.WithLabelValues(next.Kind.String()).Inc()
}
