package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/config"
	"github.com/rkm/farm-health/internal/geometry"
	"github.com/rkm/farm-health/internal/report"
	"github.com/rkm/farm-health/internal/session"
)

// maxBodyBytes caps request bodies. A drawn ring is a few hundred points at most.
const maxBodyBytes = 1 << 20

// Handlers contains all HTTP handlers for the session API.
type Handlers struct {
	cfg        *config.Config
	controller *session.Controller
	logger     *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(cfg *config.Config, controller *session.Controller, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:        cfg,
		controller: controller,
		logger:     logger,
	}
}

// BoundaryRequest is the body of PUT /session/boundary.
type BoundaryRequest struct {
	Points []geometry.LatLng `json:"points"`
}

// CropRequest is the body of PUT /session/crop.
type CropRequest struct {
	CropType string `json:"crop_type"`
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Config returns the map setup and crop options.
// GET /config
func (h *Handlers) Config(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, newConfigView(h.cfg))
}

// GetSession returns the current session view.
// GET /session
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w, r, http.StatusOK)
}

// PutBoundary replaces the drawn boundary.
// PUT /session/boundary
func (h *Handlers) PutBoundary(w http.ResponseWriter, r *http.Request) {
	var req BoundaryRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if _, err := h.controller.SetBoundary(r.Context(), req.Points); err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	h.logger.Info("boundary selected",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.Int("points", len(req.Points)),
	)
	h.writeSnapshot(w, r, http.StatusOK)
}

// PutCrop changes the selected crop type.
// PUT /session/crop
func (h *Handlers) PutCrop(w http.ResponseWriter, r *http.Request) {
	var req CropRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	crop, err := analysis.ParseCropType(req.CropType)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	if _, err := h.controller.SetCropType(r.Context(), crop); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	h.writeSnapshot(w, r, http.StatusOK)
}

// Analyze submits the current boundary for analysis. The response carries
// the pending view; clients poll GET /session for the outcome.
// POST /session/analyze
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller.Submit(r.Context())
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	h.logger.Info("analysis submitted",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("analysis_id", st.RequestID),
		slog.String("crop_type", string(st.Crop)),
	)
	h.writeSnapshot(w, r, http.StatusAccepted)
}

// ClearSession discards the boundary and any result.
// DELETE /session
func (h *Handlers) ClearSession(w http.ResponseWriter, r *http.Request) {
	if _, err := h.controller.Clear(r.Context()); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	h.writeSnapshot(w, r, http.StatusOK)
}

// SessionItem exports the succeeded analysis as a STAC Item.
// GET /session/item
func (h *Handlers) SessionItem(w http.ResponseWriter, r *http.Request) {
	st, _, err := h.controller.State(r.Context())
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	item, err := report.BuildItem(st, h.cfg.Server.BaseURL, h.cfg.Session.STACVersion)
	if err != nil {
		if errors.Is(err, report.ErrNotAnalyzed) {
			WriteError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		h.logger.Error("failed to build item",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		WriteInternalErrorWithRequestID(w, "failed to export analysis", GetRequestID(r.Context()))
		return
	}

	WriteGeoJSON(w, http.StatusOK, item)
}

func (h *Handlers) writeSnapshot(w http.ResponseWriter, r *http.Request, status int) {
	st, crop, err := h.controller.State(r.Context())
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	WriteJSON(w, status, newSessionView(st, crop))
}

// writeSessionError maps controller and session errors to HTTP responses.
func (h *Handlers) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := GetRequestID(r.Context())

	switch {
	case errors.Is(err, session.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		WriteErrorWithRequestID(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session unavailable", reqID)
		return
	}

	code, msg := session.Describe(err)
	status := http.StatusInternalServerError
	switch code {
	case session.CodeInvalidGeometry, session.CodeUnknownCropType:
		status = http.StatusBadRequest
	case session.CodeNoBoundary, session.CodeRequestInFlight, session.CodeInvalidTransition:
		status = http.StatusConflict
	default:
		h.logger.Error("session command failed",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
	}
	WriteErrorWithRequestID(w, status, code, msg, reqID)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
