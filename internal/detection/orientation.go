package detection

// Orient computes the orientation of a classified outline. The second result
// is false when the kind has no orientation (circle, generic polygon,
// unknown) or when no reference vector could be found.
func Orient(kind ShapeKind, o Outline, tol Tolerances) (float64, bool) {
	v := o.Approx

	var start, end Point
	switch kind {
	case Triangle:
		start, end = triangleAxis(v, o.Centroid)
	case Trapezoid:
		var ok bool
		start, end, ok = trapezoidAxis(v)
		if !ok {
			return 0, false
		}
	case Hexagon:
		var ok bool
		start, end, ok = hexagonAxis(v, tol.Pair)
		if !ok {
			return 0, false
		}
	case Square, Rectangle, Diamond:
		start, end = quadAxis(v)
	default:
		return 0, false
	}

	if start == end {
		return 0, false
	}
	return VectorAngle(start, end), true
}

// triangleAxis runs from the midpoint of the base to the apex, the vertex
// nearest the contour centroid.
func triangleAxis(v []Point, centroid Point) (Point, Point) {
	apex := 0
	best := Distance(v[0], centroid)
	for i := 1; i < 3; i++ {
		if d := Distance(v[i], centroid); d < best {
			best, apex = d, i
		}
	}
	base := Midpoint(v[(apex+1)%3], v[(apex+2)%3])
	return base, v[apex]
}

// trapezoidAxis runs from the midpoint of the longer parallel side to the
// midpoint of the shorter one. The parallel pair is the opposite-edge pair
// with the smaller direction difference.
func trapezoidAxis(v []Point) (Point, Point, bool) {
	if len(v) != 4 {
		return Point{}, Point{}, false
	}
	i, j := 0, 2
	if EdgeAngleDiff(v, 1, 3) < EdgeAngleDiff(v, 0, 2) {
		i, j = 1, 3
	}
	a1, a2 := v[i], v[(i+1)%4]
	b1, b2 := v[j], v[(j+1)%4]
	long, short := Midpoint(a1, a2), Midpoint(b1, b2)
	if Distance(b1, b2) > Distance(a1, a2) {
		long, short = short, long
	}
	return long, short, true
}

// hexagonAxis joins the midpoints of the first canonical opposite-edge pair
// (0,3), (1,4) or (2,5) that is parallel within tol.
func hexagonAxis(v []Point, tol float64) (Point, Point, bool) {
	if len(v) != 6 {
		return Point{}, Point{}, false
	}
	for i := 0; i < 3; i++ {
		j := i + 3
		if EdgeAngleDiff(v, i, j) < tol {
			a := Midpoint(v[i], v[(i+1)%6])
			b := Midpoint(v[j], v[(j+1)%6])
			start, end := downward(a, b)
			return start, end, true
		}
	}
	return Point{}, Point{}, false
}

// quadAxis joins the midpoints of the shorter pair of opposite sides, so the
// vector follows the long axis of a rectangle. Squares and diamonds tie and
// use sides 0 and 2.
func quadAxis(v []Point) (Point, Point) {
	sides := SideLengths(v)
	i, j := 0, 2
	if sides[1]+sides[3] < sides[0]+sides[2] {
		i, j = 1, 3
	}
	a := Midpoint(v[i], v[(i+1)%4])
	b := Midpoint(v[j], v[(j+1)%4])
	return downward(a, b)
}

// downward orders two points so the vector runs from smaller Y to larger Y,
// with smaller X first when Y ties.
func downward(a, b Point) (Point, Point) {
	if a.Y < b.Y || (a.Y == b.Y && a.X <= b.X) {
		return a, b
	}
	return b, a
}
