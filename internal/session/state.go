package session

import (
	"time"

	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/geometry"
	"github.com/rkm/farm-health/internal/health"
)

// Kind is the interaction state of a session.
type Kind int

const (
	Idle Kind = iota
	Ready
	Pending
	Succeeded
	Failed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a read-only snapshot of a session.
//
// Boundary is set in every Kind except Idle. Crop is the crop type the
// request was submitted with and is only set from Pending onwards. Result is
// only set in Succeeded, Err only in Failed.
type State struct {
	Kind      Kind
	Boundary  geometry.Boundary
	Crop      analysis.CropType
	Result    *analysis.Result
	Err       error
	RequestID string
	UpdatedAt time.Time
}

// HasBoundary reports whether the state carries a boundary.
func (s State) HasBoundary() bool {
	return s.Kind != Idle && !s.Boundary.IsEmpty()
}

// Overlay returns the map style for an analysed boundary. ok is false until
// an analysis has succeeded.
func (s State) Overlay() (style health.Style, ok bool) {
	if s.Kind != Succeeded || s.Result == nil {
		return health.Style{}, false
	}
	return health.StyleForLabel(s.Result.HealthStatus), true
}

// clone returns a copy safe to hand out of the event loop.
func (s State) clone() State {
	s.Result = s.Result.Clone()
	return s
}
