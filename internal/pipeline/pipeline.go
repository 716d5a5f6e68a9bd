package pipeline

import (
	"errors"
	"image"
	"math"

	"github.com/rs/zerolog"

	"github.com/ironsheep/shape-sorter/internal/detection"
	"github.com/ironsheep/shape-sorter/internal/imaging"
)

var (
	// ErrNoFrame is returned for a nil frame.
	ErrNoFrame = errors.New("pipeline: no frame")

	// ErrNoOpenCV is returned by Detect in builds without cgo.
	ErrNoOpenCV = errors.New("pipeline: built without OpenCV support")
)

// Mapper converts pixel coordinates into the robot frame.
type Mapper interface {
	Transform(px, py float64) (rx, ry float64)
}

// Options are the detection tuning constants.
type Options struct {
	MinArea            float64 // square pixels
	EpsilonFactor      float64 // polygon approximation, fraction of hull perimeter
	BorderAspect       float64 // bounding-box aspect above which large contours are frame artifacts
	BorderAreaFraction float64 // fraction of the frame area that makes a contour "large"
	MaxCompactness     float64 // perimeter²/area above which contours are rejected
	MorphKernel        int     // open/close structuring element size
	MedianKernel       int     // odd median filter aperture

	Tolerances detection.Tolerances
}

// Pipeline is safe for concurrent use; it holds no per-call state.
type Pipeline struct {
	opts    Options
	palette detection.Palette
	mapper  Mapper
	log     zerolog.Logger
}

// New creates a pipeline.
func New(opts Options, palette detection.Palette, mapper Mapper, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		opts:    opts,
		palette: palette,
		mapper:  mapper,
		log:     log.With().Str("component", "pipeline").Logger(),
	}
}

// Detect segments frame and returns the objects whose centroid lies inside
// roi. A nil roi keeps every object. A nil frame yields ErrNoFrame. roi and
// the returned pixel positions use the frame's own coordinates, which need
// not start at (0,0).
func (p *Pipeline) Detect(frame image.Image, roi *image.Rectangle) ([]detection.ObjectRecord, error) {
	if frame == nil {
		return nil, ErrNoFrame
	}

	candidates, err := p.segment(frame)
	if err != nil {
		return nil, err
	}
	translate(candidates, frame.Bounds().Min)
	return p.build(frame, roi, candidates), nil
}

// translate moves candidate geometry from segmentation coordinates, which
// start at (0,0), into frame coordinates starting at origin.
func translate(candidates []Candidate, origin image.Point) {
	if origin == (image.Point{}) {
		return
	}
	dx, dy := float64(origin.X), float64(origin.Y)
	shift := func(pts []detection.Point) []detection.Point {
		out := make([]detection.Point, len(pts))
		for i, p := range pts {
			out[i] = detection.Pt(p.X+dx, p.Y+dy)
		}
		return out
	}
	for i := range candidates {
		c := &candidates[i]
		c.Contour = shift(c.Contour)
		c.Hull = shift(c.Hull)
		c.Approx = shift(c.Approx)
		c.Bounds = c.Bounds.Add(origin)
		c.RectCenter = detection.Pt(c.RectCenter.X+dx, c.RectCenter.Y+dy)
	}
}

// Candidate is one external contour as measured by the segmentation stage.
type Candidate struct {
	Contour    []detection.Point // raw boundary
	Area       float64           // contour area
	Perimeter  float64           // closed contour length
	Bounds     image.Rectangle   // upright bounding box
	Hull       []detection.Point // convex hull of Contour
	Approx     []detection.Point // polygon approximation of Hull
	RectCenter detection.Point   // center of the minimum-area rectangle
}

// build filters candidates and turns the survivors into records.
func (p *Pipeline) build(frame image.Image, roi *image.Rectangle, candidates []Candidate) []detection.ObjectRecord {
	fb := frame.Bounds()
	frameArea := float64(fb.Dx() * fb.Dy())

	records := make([]detection.ObjectRecord, 0, len(candidates))
	for i, c := range candidates {
		centroid, reason := p.accept(c, frameArea, roi)
		if reason != "" {
			p.log.Debug().Int("contour", i).Float64("area", c.Area).Str("reason", reason).Msg("contour rejected")
			continue
		}

		rec, ok := p.record(frame, c, centroid)
		if !ok {
			p.log.Debug().Int("contour", i).Msg("contour rejected: degenerate hull")
			continue
		}
		records = append(records, rec)
	}

	p.log.Debug().Int("contours", len(candidates)).Int("objects", len(records)).Msg("detection complete")
	return records
}

// accept applies the area, border, compactness and scan-area filters. It
// returns the moment centroid of the contour, or a non-empty reason.
func (p *Pipeline) accept(c Candidate, frameArea float64, roi *image.Rectangle) (detection.Point, string) {
	if c.Area < p.opts.MinArea {
		return detection.Point{}, "below minimum area"
	}

	w, h := float64(c.Bounds.Dx()), float64(c.Bounds.Dy())
	if w > 0 && h > 0 {
		aspect := math.Max(w, h) / math.Min(w, h)
		if aspect > p.opts.BorderAspect && c.Area > p.opts.BorderAreaFraction*frameArea {
			return detection.Point{}, "frame border"
		}
	}

	if detection.Compactness(c.Area, c.Perimeter) > p.opts.MaxCompactness {
		return detection.Point{}, "not compact"
	}

	m, ok := detection.PolygonMoments(c.Contour)
	if !ok {
		return detection.Point{}, "zero moment"
	}

	if roi != nil && !inside(m.Centroid, *roi) {
		return detection.Point{}, "outside scan area"
	}
	return m.Centroid, ""
}

// inside reports whether p lies in r; Min is inclusive and Max exclusive.
func inside(p detection.Point, r image.Rectangle) bool {
	return p.X >= float64(r.Min.X) && p.X < float64(r.Max.X) &&
		p.Y >= float64(r.Min.Y) && p.Y < float64(r.Max.Y)
}

// record classifies a surviving candidate, samples its color and maps its
// position. ok is false when the hull is degenerate.
func (p *Pipeline) record(frame image.Image, c Candidate, centroid detection.Point) (detection.ObjectRecord, bool) {
	hull, ok := detection.PolygonMoments(c.Hull)
	if !ok {
		return detection.ObjectRecord{}, false
	}

	shape := detection.Classify(detection.Outline{
		Approx:        c.Approx,
		Centroid:      centroid,
		HullArea:      hull.Area,
		HullPerimeter: detection.Perimeter(c.Hull),
	}, p.opts.Tolerances)

	colorName := detection.ColorUnknown
	px := clampPoint(c.RectCenter, frame.Bounds())
	if sample, err := imaging.SampleColor(frame, px); err == nil {
		colorName = p.palette.Classify(sample)
		p.log.Debug().Str("sample", imaging.ColorHex(sample)).Str("color", colorName).Msg("color sampled")
	}

	rx, ry := p.mapper.Transform(c.RectCenter.X, c.RectCenter.Y)

	return detection.ObjectRecord{
		Shape:       shape.Kind,
		Color:       colorName,
		Center:      c.RectCenter,
		Orientation: shape.Orientation,
		Oriented:    shape.Oriented,
		RobotX:      rx,
		RobotY:      ry,
		Vertices:    shape.Vertices,
		Area:        c.Area,
	}, true
}

// clampPoint truncates p to a pixel inside b.
func clampPoint(p detection.Point, b image.Rectangle) image.Point {
	x := int(p.X)
	y := int(p.Y)
	if x < b.Min.X {
		x = b.Min.X
	}
	if x >= b.Max.X {
		x = b.Max.X - 1
	}
	if y < b.Min.Y {
		y = b.Min.Y
	}
	if y >= b.Max.Y {
		y = b.Max.Y - 1
	}
	return image.Pt(x, y)
}
