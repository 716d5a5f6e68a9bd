package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/shape-sorter/internal/detection"
)

const (
	markerRadius = 6
	arrowLength  = 30
)

var (
	roiColor     = color.RGBA{255, 200, 0, 255}
	labelColor   = color.RGBA{255, 255, 255, 255}
	labelBGColor = color.RGBA{0, 0, 0, 180}
)

// Annotate renders a detection result over a copy of frame: the scan area
// outline (when roi is not nil), a cross at each record's center, an arrow
// along its orientation and a "shape/color angle" label.
func Annotate(frame image.Image, roi *image.Rectangle, records []detection.ObjectRecord) *image.RGBA {
	bounds := frame.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, frame, bounds.Min, draw.Src)

	if roi != nil {
		drawRect(result, roi.Intersect(bounds), roiColor)
	}

	for _, r := range records {
		c := markerColor(r.Color)
		cx, cy := int(math.Round(r.Center.X)), int(math.Round(r.Center.Y))

		drawLine(result, cx-markerRadius, cy, cx+markerRadius, cy, c)
		drawLine(result, cx, cy-markerRadius, cx, cy+markerRadius, c)

		label := fmt.Sprintf("%s/%s", r.Shape, r.Color)
		if r.Oriented {
			rad := r.Orientation * math.Pi / 180
			ex := cx + int(math.Round(arrowLength*math.Cos(rad)))
			ey := cy + int(math.Round(arrowLength*math.Sin(rad)))
			drawLine(result, cx, cy, ex, ey, c)
			label = fmt.Sprintf("%s %.1f", label, r.Orientation)
		}

		drawLabel(result, cx+markerRadius+2, cy+markerRadius+2, label, labelColor, labelBGColor)
	}

	return result
}

// drawRect outlines r one pixel wide.
func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	if r.Empty() {
		return
	}
	x1, y1, x2, y2 := r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1
	drawLine(img, x1, y1, x2, y1, c)
	drawLine(img, x2, y1, x2, y2, c)
	drawLine(img, x2, y2, x1, y2, c)
	drawLine(img, x1, y2, x1, y1, c)
}

// drawLine draws a Bresenham line, clipped to the image.
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	bounds := img.Bounds()
	dx := abs(x2 - x1)
	dy := -abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx + dy

	for {
		if (image.Point{X: x1, Y: y1}).In(bounds) {
			img.SetRGBA(x1, y1, c)
		}
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x1 += sx
		}
		if e2 <= dx {
			err += dx
			y1 += sy
		}
	}
}

// drawLabel draws text with basicfont's 7x13 face over a filled box whose
// top-left corner is (x, y).
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
	}

	width := d.MeasureString(text).Ceil()
	height := face.Metrics().Height.Ceil()
	box := image.Rect(x-1, y-1, x+width+1, y+height+1).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(bg), image.Point{}, draw.Over)

	d.Dot = fixed.P(x, y+face.Metrics().Ascent.Ceil())
	d.DrawString(text)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
