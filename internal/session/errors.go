package session

import (
	"errors"

	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/geometry"
)

var (
	// ErrNoBoundary is returned when an analysis is submitted before a
	// boundary has been drawn.
	ErrNoBoundary = errors.New("no boundary selected")

	// ErrRequestInFlight is returned when an analysis is submitted while
	// another one is pending.
	ErrRequestInFlight = errors.New("an analysis is already in progress")

	// ErrInvalidTransition is returned when a command is not allowed in the
	// current state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Error codes reported to the presentation layer.
const (
	CodeInvalidGeometry   = "InvalidGeometry"
	CodeNoBoundary        = "NoBoundary"
	CodeServiceError      = "ServiceError"
	CodeConnectivityError = "ConnectivityError"
	CodeRequestInFlight   = "RequestInFlight"
	CodeInvalidTransition = "InvalidTransition"
	CodeUnknownCropType   = "UnknownCropType"
	CodeInternal          = "InternalError"
)

// Describe maps an error to a stable code and a message suitable for the user.
func Describe(err error) (code, message string) {
	var svcErr *analysis.ServiceError
	var connErr *analysis.ConnectivityError

	switch {
	case err == nil:
		return "", ""
	case errors.As(err, &svcErr):
		return CodeServiceError, svcErr.Message
	case errors.As(err, &connErr):
		return CodeConnectivityError, "Error connecting to analysis service"
	case errors.Is(err, geometry.ErrInvalidGeometry):
		return CodeInvalidGeometry, err.Error()
	case errors.Is(err, ErrNoBoundary):
		return CodeNoBoundary, "Please draw a farm boundary first!"
	case errors.Is(err, ErrRequestInFlight):
		return CodeRequestInFlight, ErrRequestInFlight.Error()
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition, err.Error()
	case errors.Is(err, analysis.ErrUnknownCropType):
		return CodeUnknownCropType, err.Error()
	default:
		return CodeInternal, err.Error()
	}
}
