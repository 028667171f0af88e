package api

import (
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/config"
	"github.com/rkm/farm-health/internal/health"
	"github.com/rkm/farm-health/internal/session"
)

// SessionView is the JSON rendering of a session snapshot.
type SessionView struct {
	State        string            `json:"state"`
	CropType     analysis.CropType `json:"crop_type"`
	CropLabel    string            `json:"crop_label"`
	AnalyzedCrop analysis.CropType `json:"analyzed_crop,omitempty"`
	Boundary     *geojson.Geometry `json:"boundary,omitempty"`
	BBox         []float64         `json:"bbox,omitempty"`
	Result       *analysis.Result  `json:"result,omitempty"`
	Overlay      *health.Style     `json:"overlay,omitempty"`
	Error        *SessionErrorView `json:"error,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// SessionErrorView describes why the last analysis failed.
type SessionErrorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CropOption is one entry of the crop selector.
type CropOption struct {
	Value analysis.CropType `json:"value"`
	Label string            `json:"label"`
}

// ConfigView is served to the browser to set up the map and crop selector.
type ConfigView struct {
	Map struct {
		Center [2]float64         `json:"center"`
		Zoom   int                `json:"zoom"`
		Layers []config.TileLayer `json:"layers"`
	} `json:"map"`
	Crops       []CropOption   `json:"crops"`
	DefaultCrop string         `json:"default_crop"`
	Palette     []health.Color `json:"palette"`
}

// newSessionView renders st. Encoding failures of the boundary only drop the
// geometry from the view; the state itself is always reported.
func newSessionView(st session.State, crop analysis.CropType) SessionView {
	v := SessionView{
		State:     st.Kind.String(),
		CropType:  crop,
		CropLabel: crop.Label(),
		RequestID: st.RequestID,
		UpdatedAt: st.UpdatedAt,
	}

	if st.Crop != "" {
		v.AnalyzedCrop = st.Crop
	}

	if st.HasBoundary() {
		if g, err := st.Boundary.GeoJSON(); err == nil {
			v.Boundary = g
		}
		if bbox, err := st.Boundary.BBox(); err == nil {
			v.BBox = bbox
		}
	}

	if st.Result != nil {
		v.Result = st.Result
	}

	if style, ok := st.Overlay(); ok {
		v.Overlay = &style
	}

	if st.Err != nil {
		code, msg := session.Describe(st.Err)
		v.Error = &SessionErrorView{Code: code, Message: msg}
	}

	return v
}

func newConfigView(cfg *config.Config) ConfigView {
	var v ConfigView
	v.Map.Center = [2]float64{cfg.Map.CenterLat, cfg.Map.CenterLng}
	v.Map.Zoom = cfg.Map.Zoom
	v.Map.Layers = cfg.Map.TileLayers()

	for _, c := range analysis.CropTypes() {
		v.Crops = append(v.Crops, CropOption{Value: c, Label: c.Label()})
	}
	v.DefaultCrop = string(cfg.Session.Crop())
	v.Palette = health.Palette()
	return v
}
