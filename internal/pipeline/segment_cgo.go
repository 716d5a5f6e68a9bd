//go:build cgo

package pipeline

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ironsheep/shape-sorter/internal/detection"
)

// segment builds the palette mask and measures its external contours.
func (p *Pipeline) segment(frame image.Image) ([]Candidate, error) {
	src, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer src.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), hsv.Rows(), hsv.Cols(), gocv.MatTypeCV8U)
	defer mask.Close()

	band := gocv.NewMat()
	defer band.Close()
	for _, b := range p.palette {
		lower := gocv.NewScalar(b.Lower[0], b.Lower[1], b.Lower[2], 0)
		upper := gocv.NewScalar(b.Upper[0], b.Upper[1], b.Upper[2], 0)
		gocv.InRangeWithScalar(hsv, lower, upper, &band)
		gocv.BitwiseOr(mask, band, &mask)
	}

	if k := p.opts.MorphKernel; k > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(k, k))
		gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)
		gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
		kernel.Close()
	}
	if k := p.opts.MedianKernel; k > 1 {
		gocv.MedianBlur(mask, &mask, k)
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	candidates := make([]Candidate, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)

		c := Candidate{
			Contour:   detection.FromImagePoints(pv.ToPoints()),
			Area:      gocv.ContourArea(pv),
			Perimeter: gocv.ArcLength(pv, true),
			Bounds:    gocv.BoundingRect(pv),
		}
		// Tiny blobs are rejected in build anyway; skip the hull work.
		if c.Area >= p.opts.MinArea {
			measureHull(&c, pv, p.opts.EpsilonFactor)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// measureHull fills the hull, its approximation and the min-area rectangle
// center of c.
func measureHull(c *Candidate, pv gocv.PointVector, epsilonFactor float64) {
	hullMat := gocv.NewMat()
	defer hullMat.Close()
	gocv.ConvexHull(pv, &hullMat, false, true)

	hull := gocv.NewPointVectorFromMat(hullMat)
	defer hull.Close()
	c.Hull = detection.FromImagePoints(hull.ToPoints())

	eps := epsilonFactor * gocv.ArcLength(hull, true)
	approx := gocv.ApproxPolyDP(hull, eps, true)
	defer approx.Close()
	c.Approx = detection.FromImagePoints(approx.ToPoints())

	rect := gocv.MinAreaRect(pv)
	c.RectCenter = meanPoint(detection.FromImagePoints(rect.Points))
}

// meanPoint averages the rectangle corners; gocv rounds the center itself
// to whole pixels.
func meanPoint(pts []detection.Point) detection.Point {
	if len(pts) == 0 {
		return detection.Point{}
	}
	var sx, sy float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(pts))
	return detection.Pt(sx/n, sy/n)
}
