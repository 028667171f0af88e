package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/config"
	"github.com/rkm/farm-health/internal/session"
)

// stubSubmitter hands out futures that the test resolves by hand.
type stubSubmitter struct {
	mu      sync.Mutex
	futures []*analysis.Future
}

func (s *stubSubmitter) Submit(ctx context.Context, req analysis.Request) *analysis.Future {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := analysis.NewFuture()
	s.futures = append(s.futures, f)
	return f
}

func (s *stubSubmitter) future(i int) *analysis.Future {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.futures[i]
}

func (s *stubSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.futures)
}

func createTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			BaseURL:        "http://localhost:8080",
			AllowedOrigins: []string{"*"},
		},
		Session: config.SessionConfig{
			DefaultCrop: "wheat",
			STACVersion: "1.0.0",
		},
		Map: config.MapConfig{
			CenterLat:  22.5645,
			CenterLng:  72.9289,
			Zoom:       10,
			ImageryURL: "https://tiles.example.com/{z}/{y}/{x}",
		},
	}
}

func createTestRouter(t *testing.T, cfg *config.Config) (http.Handler, *stubSubmitter) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sub := &stubSubmitter{}
	ctrl := session.NewController(session.New(sub, cfg.Session.Crop()).WithLogger(logger)).WithLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	return NewRouter(NewHandlers(cfg, ctrl, logger), logger), sub
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) SessionView {
	t.Helper()
	var v SessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to parse session view: %v\n%s", err, w.Body.String())
	}
	return v
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("Failed to parse error response: %v\n%s", err, w.Body.String())
	}
	return e
}

// waitForState polls GET /session until the state matches or the deadline passes.
func waitForState(t *testing.T, h http.Handler, want string) SessionView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		v := decodeView(t, doRequest(t, h, "GET", "/session", ""))
		if v.State == want {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected state %q, still %q", want, v.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

const farmBoundary = `{"points":[
	{"lat":22.50,"lng":72.90},
	{"lat":22.50,"lng":72.95},
	{"lat":22.55,"lng":72.95},
	{"lat":22.55,"lng":72.90}
]}`

func TestHandlers_Health(t *testing.T) {
	h, _ := createTestRouter(t, createTestConfig())

	w := doRequest(t, h, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected health body: %s", w.Body.String())
	}
}

func TestHandlers_Config(t *testing.T) {
	h, _ := createTestRouter(t, createTestConfig())

	w := doRequest(t, h, "GET", "/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var v ConfigView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to parse config view: %v", err)
	}

	if v.Map.Center != [2]float64{22.5645, 72.9289} {
		t.Errorf("Unexpected map center %v", v.Map.Center)
	}
	if len(v.Crops) != len(analysis.CropTypes()) {
		t.Fatalf("Expected %d crops, got %d", len(analysis.CropTypes()), len(v.Crops))
	}
	if v.Crops[0].Value != analysis.Wheat || v.Crops[0].Label != "Wheat" {
		t.Errorf("Expected first crop wheat/Wheat, got %+v", v.Crops[0])
	}
	if v.DefaultCrop != "wheat" {
		t.Errorf("Expected default crop wheat, got %s", v.DefaultCrop)
	}
}

func TestHandlers_GetSession_Idle(t *testing.T) {
	h, _ := createTestRouter(t, createTestConfig())

	w := doRequest(t, h, "GET", "/session", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	v := decodeView(t, w)
	if v.State != "idle" {
		t.Errorf("Expected state idle, got %s", v.State)
	}
	if v.CropType != analysis.Wheat || v.CropLabel != "Wheat" {
		t.Errorf("Expected crop wheat/Wheat, got %s/%s", v.CropType, v.CropLabel)
	}
	if v.Boundary != nil || v.Result != nil || v.Overlay != nil {
		t.Errorf("Expected empty idle view, got %+v", v)
	}
}

func TestHandlers_PutBoundary(t *testing.T) {
	h, _ := createTestRouter(t, createTestConfig())

	w := doRequest(t, h, "PUT", "/session/boundary", farmBoundary)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	v := decodeView(t, w)
	if v.State != "ready" {
		t.Errorf("Expected state ready, got %s", v.State)
	}
	if v.Boundary == nil || v.Boundary.Type != "Polygon" {
		t.Fatalf("Expected Polygon boundary, got %+v", v.Boundary)
	}
	want := []float64{72.90, 22.50, 72.95, 22.55}
	if len(v.BBox) != 4 {
		t.Fatalf("Expected bbox of 4 values, got %v", v.BBox)
	}
	for i := range want {
		if v.BBox[i] != want[i] {
			t.Errorf("bbox[%d] = %v, expected %v", i, v.BBox[i], want[i])
		}
	}
}

func TestHandlers_PutBoundary_Invalid(t *testing.T) {
	h, _ := createTestRouter(t, createTestConfig())

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"too few points", `{"points":[{"lat":1,"lng":1},{"lat":2,"lng":2}]}`, "InvalidGeometry"},
		{"out of range", `{"points":[{"lat":91,"lng":1},{"lat":2,"lng":2},{"lat":3,"lng":1}]}`, "InvalidGeometry"},
		{"malformed JSON", `{"points":`, ErrCodeBadRequest},
		{"unknown field", `{"coords":[]}`, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, "PUT", "/session/boundary", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", w.Code)
			}
			if e := decodeError(t, w); e.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, e.Code)
			}
		})
	}

	v := decodeView(t, doRequest(t, h, "GET", "/session", ""))
	if v.State != "idle" {
		t.Errorf("Expected invalid boundaries to leave session idle, got %s", v.State)
	}
}

func TestHandlers_Analyze_NoBoundary(t *testing.T) {
	h, sub := createTestRouter(t, createTestConfig())

	w := doRequest(t, h, "POST", "/session/analyze", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", w.Code)
	}

	e := decodeError(t, w)
	if e.Code != session.CodeNoBoundary {
		t.Errorf("Expected code %s, got %s", session.CodeNoBoundary, e.Code)
	}
	if e.Description != "Please draw a farm boundary first!" {
		t.Errorf("Unexpected description %q", e.Description)
	}
	if sub.count() != 0 {
		t.Errorf("Expected no request to be submitted, got %d", sub.count())
	}
}

func TestHandlers_AnalyzeFlow(t *testing.T) {
	h, sub := createTestRouter(t, createTestConfig())

	if w := doRequest(t, h, "PUT", "/session/boundary", farmBoundary); w.Code != http.StatusOK {
		t.Fatalf("PUT boundary: expected 200, got %d", w.Code)
	}
	if w := doRequest(t, h, "PUT", "/session/crop", `{"crop_type":"rice"}`); w.Code != http.StatusOK {
		t.Fatalf("PUT crop: expected 200, got %d", w.Code)
	}

	w := doRequest(t, h, "POST", "/session/analyze", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	pending := decodeView(t, w)
	if pending.State != "pending" {
		t.Errorf("Expected state pending, got %s", pending.State)
	}
	if pending.AnalyzedCrop != analysis.Rice {
		t.Errorf("Expected analyzed crop rice, got %s", pending.AnalyzedCrop)
	}
	if pending.RequestID == "" {
		t.Error("Expected request_id on pending view")
	}

	sub.future(0).Resolve(analysis.Outcome{Result: &analysis.Result{
		Indices:      map[string]analysis.IndexValue{"NDVI": analysis.Number(0.71)},
		HealthStatus: "Healthy and dense vegetation",
		HealthyRange: "0.6-0.8",
	}})

	done := waitForState(t, h, "succeeded")
	if done.Overlay == nil || done.Overlay.Color != "green" || done.Overlay.FillOpacity != 0.3 {
		t.Errorf("Expected green overlay, got %+v", done.Overlay)
	}
	if done.Result == nil || done.Result.HealthStatus != "Healthy and dense vegetation" {
		t.Fatalf("Unexpected result %+v", done.Result)
	}
	if f, ok := done.Result.Indices["NDVI"].Float(); !ok || f != 0.71 {
		t.Errorf("Expected NDVI 0.71, got %v", done.Result.Indices["NDVI"])
	}

	item := doRequest(t, h, "GET", "/session/item", "")
	if item.Code != http.StatusOK {
		t.Fatalf("Expected item status 200, got %d: %s", item.Code, item.Body.String())
	}
	if ct := item.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Expected Content-Type application/geo+json, got %s", ct)
	}
	var decoded map[string]any
	if err := json.Unmarshal(item.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("Failed to parse item: %v", err)
	}
	if decoded["id"] != pending.RequestID {
		t.Errorf("Expected item id %s, got %v", pending.RequestID, decoded["id"])
	}
}

func TestHandlers_Analyze_InFlight(t *testing.T) {
	h, sub := createTestRouter(t, createTestConfig())

	doRequest(t, h, "PUT", "/session/boundary", farmBoundary)
	if w := doRequest(t, h, "POST", "/session/analyze", ""); w.Code != http.StatusAccepted {
		t.Fatalf("Expected first submit 202, got %d", w.Code)
	}

	w := doRequest(t, h, "POST", "/session/analyze", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Code != session.CodeRequestInFlight {
		t.Errorf("Expected code %s, got %s", session.CodeRequestInFlight, e.Code)
	}
	if sub.count() != 1 {
		t.Errorf("Expected exactly one submitted request, got %d", sub.count())
	}
}

func TestHandlers_Analyze_ServiceError(t *testing.T) {
	h, sub := createTestRouter(t, createTestConfig())

	doRequest(t, h, "PUT", "/session/boundary", farmBoundary)
	doRequest(t, h, "POST", "/session/analyze", "")

	sub.future(0).Resolve(analysis.Outcome{Err: &analysis.ServiceError{Message: "No imagery available for this date range"}})

	v := waitForState(t, h, "failed")
	if v.Error == nil {
		t.Fatal("Expected error on failed view")
	}
	if v.Error.Code != session.CodeServiceError {
		t.Errorf("Expected code %s, got %s", session.CodeServiceError, v.Error.Code)
	}
	if v.Error.Message != "No imagery available for this date range" {
		t.Errorf("Expected service message verbatim, got %q", v.Error.Message)
	}
	if v.Boundary == nil {
		t.Error("Expected boundary to be kept after failure")
	}

	// Retry from Failed is allowed.
	if w := doRequest(t, h, "POST", "/session/analyze", ""); w.Code != http.StatusAccepted {
		t.Errorf("Expected retry to be accepted, got %d", w.Code)
	}
}

func TestHandlers_PutCrop(t *testing.T) {
	h, _ := createTestRouter(t, createTestConfig())

	w := doRequest(t, h, "PUT", "/session/crop", `{"crop_type":"sugarcane"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	v := decodeView(t, w)
	if v.CropType != analysis.Sugarcane || v.CropLabel != "Sugarcane" {
		t.Errorf("Expected sugarcane/Sugarcane, got %s/%s", v.CropType, v.CropLabel)
	}

	w = doRequest(t, h, "PUT", "/session/crop", `{"crop_type":"barley"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Code != session.CodeUnknownCropType {
		t.Errorf("Expected code %s, got %s", session.CodeUnknownCropType, e.Code)
	}
}

func TestHandlers_ClearSession(t *testing.T) {
	h, sub := createTestRouter(t, createTestConfig())

	doRequest(t, h, "PUT", "/session/boundary", farmBoundary)
	doRequest(t, h, "POST", "/session/analyze", "")

	w := doRequest(t, h, "DELETE", "/session", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if v := decodeView(t, w); v.State != "idle" || v.Boundary != nil {
		t.Errorf("Expected idle view without boundary, got %+v", v)
	}

	// A late outcome for the cleared request is dropped.
	sub.future(0).Resolve(analysis.Outcome{Result: &analysis.Result{HealthStatus: "Healthy"}})
	time.Sleep(50 * time.Millisecond)
	if v := decodeView(t, doRequest(t, h, "GET", "/session", "")); v.State != "idle" {
		t.Errorf("Expected session to stay idle, got %s", v.State)
	}
}

func TestHandlers_SessionItem_NotAnalyzed(t *testing.T) {
	h, _ := createTestRouter(t, createTestConfig())

	w := doRequest(t, h, "GET", "/session/item", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Code != ErrCodeConflict {
		t.Errorf("Expected code %s, got %s", ErrCodeConflict, e.Code)
	}
}

func TestHandlers_Analyze_RateLimited(t *testing.T) {
	cfg := createTestConfig()
	cfg.RateLimit = config.RateLimitConfig{Rate: 0.001, Burst: 1}
	h, _ := createTestRouter(t, cfg)

	doRequest(t, h, "PUT", "/session/boundary", farmBoundary)
	if w := doRequest(t, h, "POST", "/session/analyze", ""); w.Code != http.StatusAccepted {
		t.Fatalf("Expected first submit 202, got %d", w.Code)
	}

	w := doRequest(t, h, "POST", "/session/analyze", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", w.Code)
	}
}

func TestRouter_NotFoundAndMetrics(t *testing.T) {
	h, _ := createTestRouter(t, createTestConfig())

	if w := doRequest(t, h, "GET", "/collections", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	if w := doRequest(t, h, "PATCH", "/session/boundary", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}

	doRequest(t, h, "GET", "/health", "")
	w := doRequest(t, h, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `route="/health"`) {
		t.Errorf("Expected metrics to include the /health route")
	}
}
