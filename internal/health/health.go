// Package health maps the health label returned by the analysis service to
// the overlay style drawn over the analysed boundary.
package health

import "strings"

// Color is an overlay color from the fixed palette.
type Color string

// Overlay palette.
const (
	Green  Color = "green"
	Yellow Color = "yellow"
	Red    Color = "red"
	Brown  Color = "brown"
	Gray   Color = "gray"
)

// DefaultFillOpacity is the fill opacity applied to analysed boundaries.
const DefaultFillOpacity = 0.3

// Style is the path style applied to the boundary layer on the map.
type Style struct {
	Color       Color   `json:"color"`
	FillColor   Color   `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
}

// rules are checked in order; the first rule with a matching keyword wins.
// "Healthy" must stay ahead of "excess" so composite labels such as
// "Healthy but excess nitrogen" resolve to green.
var rules = []struct {
	keywords []string
	color    Color
}{
	{[]string{"Healthy"}, Green},
	{[]string{"Moderate"}, Yellow},
	{[]string{"Unhealthy", "excess"}, Red},
	{[]string{"Bare"}, Brown},
}

// Classify returns the overlay color for a health label. Matching is
// case-sensitive. Labels that match nothing, including the empty label,
// are gray.
func Classify(label string) Color {
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(label, kw) {
				return rule.color
			}
		}
	}
	return Gray
}

// StyleFor returns the overlay style for a color.
func StyleFor(c Color) Style {
	return Style{Color: c, FillColor: c, FillOpacity: DefaultFillOpacity}
}

// StyleForLabel is shorthand for StyleFor(Classify(label)).
func StyleForLabel(label string) Style {
	return StyleFor(Classify(label))
}

// Palette returns every color Classify can produce.
func Palette() []Color {
	return []Color{Green, Yellow, Red, Brown, Gray}
}
