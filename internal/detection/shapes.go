package detection

import "math"

// Tolerances tune shape classification. Angles are in degrees.
type Tolerances struct {
	// Side is the relative tolerance for "equal" side lengths (0.15 = ±15%).
	Side float64

	// Angle is the tolerance for a "right" interior angle around 90°.
	Angle float64

	// Parallel is the tolerance for calling two opposite sides of a
	// quadrilateral parallel when deciding trapezoid.
	Parallel float64

	// Pair is the tolerance for finding a parallel opposite-edge pair when
	// orienting hexagons.
	Pair float64

	// Circularity is the minimum 4π·area/perimeter² for a circle.
	Circularity float64
}

// DefaultTolerances returns the tolerances of the reference rig.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Side:        0.15,
		Angle:       15,
		Parallel:    10,
		Pair:        15,
		Circularity: 0.88,
	}
}

// Outline is the geometry of one candidate part.
type Outline struct {
	// Approx is the polygon approximation of the convex hull, in contour order.
	Approx []Point

	// Centroid is the moment centroid of the raw contour.
	Centroid Point

	// HullArea and HullPerimeter describe the convex hull before
	// approximation; they drive the circle test.
	HullArea      float64
	HullPerimeter float64
}

// Shape is the classification of an Outline.
type Shape struct {
	Kind        ShapeKind
	Vertices    int
	Orientation float64 // degrees in [0,360), valid when Oriented
	Oriented    bool
}

// Classify decides the kind of an outline and its orientation. It is a pure
// function: the same outline and tolerances always give the same Shape.
func Classify(o Outline, tol Tolerances) Shape {
	v := o.Approx
	s := Shape{Vertices: len(v)}

	switch len(v) {
	case 0, 1, 2:
		s.Kind = Unknown
		return s
	case 3:
		s.Kind = Triangle
	case 4:
		s.Kind = classifyQuad(v, tol)
	case 6:
		s.Kind = Hexagon
	default:
		if Circularity(o.HullArea, o.HullPerimeter) >= tol.Circularity {
			s.Kind = Circle
		} else {
			s.Kind = PolygonKind(len(v))
		}
	}

	s.Orientation, s.Oriented = Orient(s.Kind, o, tol)
	return s
}

// classifyQuad splits four-sided outlines.
func classifyQuad(v []Point, tol Tolerances) ShapeKind {
	sides := SideLengths(v)
	right := allRightAngles(InteriorAngles(v), tol.Angle)
	equal := allSidesEqual(sides, tol.Side)

	switch {
	case equal && right:
		return Square
	case equal:
		return Diamond
	case right && relDiff(sides[0], sides[2]) <= tol.Side && relDiff(sides[1], sides[3]) <= tol.Side:
		return Rectangle
	case parallelPairs(v, tol.Parallel) == 1:
		return Trapezoid
	default:
		return Unknown
	}
}

// allSidesEqual reports whether every side is within tol of the mean length.
func allSidesEqual(sides []float64, tol float64) bool {
	mean := 0.0
	for _, s := range sides {
		mean += s
	}
	mean /= float64(len(sides))
	if mean <= 0 {
		return false
	}
	for _, s := range sides {
		if math.Abs(s-mean) > tol*mean {
			return false
		}
	}
	return true
}

func allRightAngles(angles []float64, tol float64) bool {
	for _, a := range angles {
		if math.Abs(a-90) > tol {
			return false
		}
	}
	return len(angles) > 0
}

// relDiff is |a-b| relative to the larger of the two.
func relDiff(a, b float64) float64 {
	m := math.Max(a, b)
	if m <= 0 {
		return 0
	}
	return math.Abs(a-b) / m
}

// parallelPairs counts the opposite-side pairs (0,2) and (1,3) of a
// quadrilateral that are parallel within tol degrees.
func parallelPairs(v []Point, tol float64) int {
	n := 0
	if EdgeAngleDiff(v, 0, 2) < tol {
		n++
	}
	if EdgeAngleDiff(v, 1, 3) < tol {
		n++
	}
	return n
}
