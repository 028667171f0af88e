// Package report exports a completed analysis as a STAC Item so it can be
// saved or loaded into other geospatial tooling.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/planetlabs/go-stac"
	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/session"
)

// ErrNotAnalyzed is returned when the session holds no successful analysis.
var ErrNotAnalyzed = errors.New("no completed analysis to export")

// CollectionID is the collection every exported item belongs to.
const CollectionID = "farm-analyses"

// Property keys written on exported items.
const (
	PropCropType     = "farm:crop_type"
	PropHealthStatus = "farm:health_status"
	PropHealthyRange = "farm:healthy_range"
	PropZoneType     = "farm:zone_type"
	PropOverlayColor = "farm:overlay_color"
	PropIndices      = "farm:indices"
)

// BuildItem converts a succeeded session state into a STAC Item.
func BuildItem(st session.State, baseURL, stacVersion string) (*stac.Item, error) {
	if st.Kind != session.Succeeded || st.Result == nil {
		return nil, fmt.Errorf("%w (state %s)", ErrNotAnalyzed, st.Kind)
	}

	geom, err := st.Boundary.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode boundary: %w", err)
	}
	geomJSON, err := json.Marshal(geom)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal boundary geometry: %w", err)
	}
	var geometry map[string]any
	if err := json.Unmarshal(geomJSON, &geometry); err != nil {
		return nil, fmt.Errorf("failed to decode boundary geometry: %w", err)
	}
	bbox, err := st.Boundary.BBox()
	if err != nil {
		return nil, fmt.Errorf("failed to compute bbox: %w", err)
	}

	item := &stac.Item{
		Version:    stacVersion,
		Id:         st.RequestID,
		Collection: CollectionID,
		Geometry:   geometry,
		Bbox:       bbox,
		Properties: make(map[string]any),
		Assets:     make(map[string]*stac.Asset),
		Links:      make([]*stac.Link, 0),
	}

	item.Properties["datetime"] = st.UpdatedAt.UTC().Format(time.RFC3339)
	item.Properties[PropCropType] = string(st.Crop)
	item.Properties[PropHealthStatus] = st.Result.HealthStatus
	item.Properties[PropIndices] = indexProperties(st.Result)

	if st.Result.HealthyRange != "" {
		item.Properties[PropHealthyRange] = st.Result.HealthyRange
	}
	if st.Result.ZoneType != "" {
		item.Properties[PropZoneType] = st.Result.ZoneType
	}
	if style, ok := st.Overlay(); ok {
		item.Properties[PropOverlayColor] = string(style.Color)
	}

	base := strings.TrimSuffix(baseURL, "/")
	item.Links = append(item.Links,
		&stac.Link{Rel: "self", Href: base + "/session/item", Type: "application/geo+json"},
		&stac.Link{Rel: "root", Href: base + "/", Type: "application/json"},
	)

	return item, nil
}

// indexProperties flattens index values into plain JSON types.
func indexProperties(r *analysis.Result) map[string]any {
	props := make(map[string]any, len(r.Indices))
	for name, v := range r.Indices {
		if f, ok := v.Float(); ok {
			props[name] = f
		} else {
			props[name] = v.String()
		}
	}
	return props
}
