// Package analysis talks to the remote farm analysis service.
//
// The service receives a boundary and a crop type and answers with
// vegetation/moisture indices and a health label. This package holds the
// wire types, the HTTP client, and the Orchestrator that runs one request per
// user-initiated submit.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rkm/farm-health/internal/geometry"
)

// Request is a single analysis submission. It is built fresh for every
// submit and not modified afterwards.
type Request struct {
	ID       string
	Boundary geometry.Boundary
	CropType CropType
}

// NewRequest builds a request with a fresh ID.
func NewRequest(boundary geometry.Boundary, crop CropType) Request {
	return Request{
		ID:       uuid.NewString(),
		Boundary: boundary,
		CropType: crop,
	}
}

// analyzeRequest is the JSON body of POST /analyze-farm.
type analyzeRequest struct {
	Coordinates [][][]float64 `json:"coordinates"`
	CropType    CropType      `json:"crop_type"`
}

// analyzeResponse covers both the success and the error body.
type analyzeResponse struct {
	Indices      map[string]IndexValue `json:"indices"`
	HealthStatus string                `json:"health_status"`
	HealthyRange string                `json:"healthy_range"`
	ZoneType     string                `json:"zone_type"`
	Error        string                `json:"error"`
}

// Result is a successful analysis.
type Result struct {
	Indices      map[string]IndexValue `json:"indices"`
	HealthStatus string                `json:"health_status"`
	HealthyRange string                `json:"healthy_range,omitempty"`
	ZoneType     string                `json:"zone_type,omitempty"`
}

// Index returns the named index value.
func (r *Result) Index(name string) (IndexValue, bool) {
	if r == nil {
		return IndexValue{}, false
	}
	v, ok := r.Indices[name]
	return v, ok
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Indices = make(map[string]IndexValue, len(r.Indices))
	for k, v := range r.Indices {
		cp.Indices[k] = v
	}
	return &cp
}

// IndexValue is an index reported by the service. The service sends numbers
// for computed indices and strings for anything it cannot compute.
type IndexValue struct {
	num    float64
	text   string
	isText bool
}

// Number creates a numeric index value.
func Number(v float64) IndexValue {
	return IndexValue{num: v}
}

// Text creates a textual index value.
func Text(s string) IndexValue {
	return IndexValue{text: s, isText: true}
}

// Float returns the numeric value and whether the value is numeric.
func (v IndexValue) Float() (float64, bool) {
	return v.num, !v.isText
}

// String formats the value for display.
func (v IndexValue) String() string {
	if v.isText {
		return v.text
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

// MarshalJSON writes the value back as a JSON number or string.
func (v IndexValue) MarshalJSON() ([]byte, error) {
	if v.isText {
		return json.Marshal(v.text)
	}
	return json.Marshal(v.num)
}

// UnmarshalJSON accepts a JSON number or string. null decodes as the text "null".
func (v *IndexValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return fmt.Errorf("empty index value")
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case bytes.Equal(data, []byte("null")):
		*v = Text("null")
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("index value must be a number or string: %w", err)
		}
		*v = Number(f)
	}
	return nil
}
