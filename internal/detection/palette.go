package detection

import (
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ColorBand is a named HSV range on the OpenCV 8-bit scale: H in 0-180,
// S and V in 0-255. Bounds are inclusive.
type ColorBand struct {
	Name  string
	Lower [3]float64
	Upper [3]float64
}

// Contains reports whether an HSV triple lies inside the band.
func (b ColorBand) Contains(hsv [3]float64) bool {
	for k := 0; k < 3; k++ {
		if hsv[k] < b.Lower[k] || hsv[k] > b.Upper[k] {
			return false
		}
	}
	return true
}

// Palette is an ordered list of bands; earlier bands win on overlap.
type Palette []ColorBand

// Classify returns the name of the first band containing c, or ColorUnknown.
// Fully transparent samples are unknown.
func (p Palette) Classify(c color.Color) string {
	hsv, ok := HSV(c)
	if !ok {
		return ColorUnknown
	}
	for _, band := range p {
		if band.Contains(hsv) {
			return band.Name
		}
	}
	return ColorUnknown
}

// HSV converts a color to the OpenCV 8-bit HSV scale. ok is false when the
// color is fully transparent.
func HSV(c color.Color) (hsv [3]float64, ok bool) {
	cf, ok := colorful.MakeColor(c)
	if !ok {
		return hsv, false
	}
	h, s, v := cf.Hsv()
	return [3]float64{
		math.Round(h / 2),
		math.Round(s * 255),
		math.Round(v * 255),
	}, true
}
