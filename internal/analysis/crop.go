package analysis

import (
	"errors"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrUnknownCropType is returned when a crop type is not in the supported set.
var ErrUnknownCropType = errors.New("unknown crop type")

// CropType identifies the crop grown inside a boundary.
type CropType string

// Supported crop types.
const (
	Wheat     CropType = "wheat"
	Maize     CropType = "maize"
	Cotton    CropType = "cotton"
	Rice      CropType = "rice"
	Sugarcane CropType = "sugarcane"
)

// DefaultCropType is selected until the user picks another crop.
const DefaultCropType = Wheat

var cropTypes = []CropType{Wheat, Maize, Cotton, Rice, Sugarcane}

// CropTypes returns the supported crop types in display order.
func CropTypes() []CropType {
	out := make([]CropType, len(cropTypes))
	copy(out, cropTypes)
	return out
}

// ParseCropType validates s against the supported crop types.
func ParseCropType(s string) (CropType, error) {
	for _, c := range cropTypes {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCropType, s)
}

// Valid reports whether c is a supported crop type.
func (c CropType) Valid() bool {
	_, err := ParseCropType(string(c))
	return err == nil
}

// Label returns the display name of the crop, e.g. "Sugarcane".
func (c CropType) Label() string {
	// A Caser is stateful, so one is built per call.
	return cases.Title(language.English).String(string(c))
}
