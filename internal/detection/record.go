package detection

import (
	"fmt"
	"strconv"
)

// ShapeKind names the geometric class of a detected part.
type ShapeKind string

// Shape kinds. Generic polygons are built with PolygonKind.
const (
	Triangle  ShapeKind = "triangle"
	Square    ShapeKind = "square"
	Rectangle ShapeKind = "rectangle"
	Diamond   ShapeKind = "diamond"
	Trapezoid ShapeKind = "trapezoid"
	Hexagon   ShapeKind = "hexagon"
	Circle    ShapeKind = "circle"
	Unknown   ShapeKind = "unknown"
)

// ColorUnknown is the color name of a part whose sample matches no band.
const ColorUnknown = "unknown"

// PolygonKind returns the kind for a generic n-sided polygon, e.g. "polygon-5".
func PolygonKind(n int) ShapeKind {
	return ShapeKind(fmt.Sprintf("polygon-%d", n))
}

// ObjectRecord is one classified, positioned part. Records are created once
// per detection call and never mutated afterwards.
type ObjectRecord struct {
	// Shape is the geometric class.
	Shape ShapeKind `json:"shape"`

	// Color is the palette name of the part's color, or ColorUnknown.
	Color string `json:"color"`

	// Center is the pixel position used for coordinate mapping: the center
	// of the minimal bounding rectangle.
	Center Point `json:"center_px"`

	// Orientation is in degrees in [0,360). It is meaningful only when
	// Oriented is true; circles are never oriented.
	Orientation float64 `json:"orientation_deg"`
	Oriented    bool    `json:"oriented"`

	// RobotX and RobotY are Center mapped into the robot/PLC frame.
	RobotX float64 `json:"robot_x"`
	RobotY float64 `json:"robot_y"`

	// Vertices is the vertex count of the approximated hull.
	Vertices int `json:"vertices"`

	// Area is the contour area in square pixels.
	Area float64 `json:"area"`
}

// String renders the record for logs.
func (r ObjectRecord) String() string {
	angle := "none"
	if r.Oriented {
		angle = strconv.FormatFloat(r.Orientation, 'f', 1, 64)
	}
	return fmt.Sprintf("%s/%s px(%.1f,%.1f) robot(%.2f,%.2f) angle=%s",
		r.Shape, r.Color, r.Center.X, r.Center.Y, r.RobotX, r.RobotY, angle)
}
