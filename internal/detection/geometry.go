package detection

import (
	"image"
	"math"
)

// Point is a 2D coordinate in pixel space with sub-pixel precision.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// FromImagePoints converts integer pixel coordinates.
func FromImagePoints(pts []image.Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return out
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// VectorAngle returns the direction of the vector from start to end in
// degrees, normalized into [0,360).
func VectorAngle(start, end Point) float64 {
	deg := math.Atan2(end.Y-start.Y, end.X-start.X) * 180 / math.Pi
	return NormalizeDegrees(deg)
}

// NormalizeDegrees folds any angle into [0,360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// SideLengths returns the length of each edge of a closed polygon; edge i
// runs from vertex i to vertex i+1.
func SideLengths(v []Point) []float64 {
	n := len(v)
	sides := make([]float64, n)
	for i := 0; i < n; i++ {
		sides[i] = Distance(v[i], v[(i+1)%n])
	}
	return sides
}

// InteriorAngles returns the angle at each vertex of a closed polygon in
// degrees. Vertices with a zero-length adjacent edge report 0.
func InteriorAngles(v []Point) []float64 {
	n := len(v)
	if n < 3 {
		return nil
	}
	angles := make([]float64, n)
	for i := 0; i < n; i++ {
		prev := v[(i-1+n)%n]
		next := v[(i+1)%n]
		ax, ay := prev.X-v[i].X, prev.Y-v[i].Y
		bx, by := next.X-v[i].X, next.Y-v[i].Y
		mag := math.Hypot(ax, ay) * math.Hypot(bx, by)
		if mag < 1e-6 {
			continue
		}
		cos := (ax*bx + ay*by) / mag
		cos = math.Max(-1, math.Min(1, cos))
		angles[i] = math.Acos(cos) * 180 / math.Pi
	}
	return angles
}

// EdgeAngleDiff returns the smallest angle in [0,90] between edge i and
// edge j of a closed polygon, treating edges as undirected lines. A
// zero-length edge is reported as perpendicular to everything.
func EdgeAngleDiff(v []Point, i, j int) float64 {
	n := len(v)
	a1, a2 := v[i%n], v[(i+1)%n]
	b1, b2 := v[j%n], v[(j+1)%n]
	if Distance(a1, a2) < 1e-6 || Distance(b1, b2) < 1e-6 {
		return 90
	}
	t1 := math.Atan2(a2.Y-a1.Y, a2.X-a1.X) * 180 / math.Pi
	t2 := math.Atan2(b2.Y-b1.Y, b2.X-b1.X) * 180 / math.Pi
	d := math.Mod(math.Abs(t1-t2), 180)
	return math.Min(d, 180-d)
}

// Perimeter returns the length of a closed polygon.
func Perimeter(v []Point) float64 {
	total := 0.0
	for _, s := range SideLengths(v) {
		total += s
	}
	return total
}

// Moments holds the zeroth and first order moments of a closed polygon.
type Moments struct {
	Area     float64 // unsigned m00
	Centroid Point   // m10/m00, m01/m00
}

// PolygonMoments computes area and centroid of a closed polygon with the
// shoelace formula. ok is false for degenerate (zero-area) outlines.
func PolygonMoments(v []Point) (m Moments, ok bool) {
	n := len(v)
	if n < 3 {
		return m, false
	}
	var a, cx, cy float64
	for i := 0; i < n; i++ {
		p, q := v[i], v[(i+1)%n]
		cross := p.X*q.Y - q.X*p.Y
		a += cross
		cx += (p.X + q.X) * cross
		cy += (p.Y + q.Y) * cross
	}
	a /= 2
	if math.Abs(a) < 1e-9 {
		return m, false
	}
	return Moments{
		Area:     math.Abs(a),
		Centroid: Point{X: cx / (6 * a), Y: cy / (6 * a)},
	}, true
}

// Circularity returns 4π·area/perimeter², 1.0 for a perfect circle.
func Circularity(area, perimeter float64) float64 {
	if perimeter <= 0 {
		return 0
	}
	return 4 * math.Pi * area / (perimeter * perimeter)
}

// Compactness returns perimeter²/area; elongated or ragged outlines score high.
func Compactness(area, perimeter float64) float64 {
	if area <= 0 {
		return math.Inf(1)
	}
	return perimeter * perimeter / area
}
