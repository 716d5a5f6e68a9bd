package imaging

import (
	"fmt"
	"image"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// SampleColor returns the color of the pixel at p.
//
// Sub-pixel positions from the segmentation stage are truncated by the
// caller; p must lie inside the image bounds.
func SampleColor(img image.Image, p image.Point) (color.Color, error) {
	if !p.In(img.Bounds()) {
		return nil, fmt.Errorf("coordinates (%d,%d) outside image bounds", p.X, p.Y)
	}
	return img.At(p.X, p.Y), nil
}

// ColorHex formats c as "#rrggbb" for logs and labels. Alpha is dropped.
func ColorHex(c color.Color) string {
	cf, ok := colorful.MakeColor(c)
	if !ok {
		return "#000000"
	}
	return cf.Clamped().Hex()
}

// namedColors are the marker colors of the default palette names.
var namedColors = map[string]color.RGBA{
	"red":    {230, 40, 40, 255},
	"green":  {40, 200, 60, 255},
	"blue":   {40, 90, 230, 255},
	"yellow": {240, 210, 30, 255},
}

// markerColor picks a drawing color for a palette name. Names outside the
// default palette get magenta so they stand out in snapshots.
func markerColor(name string) color.RGBA {
	if c, ok := namedColors[name]; ok {
		return c
	}
	return color.RGBA{255, 0, 255, 255}
}
