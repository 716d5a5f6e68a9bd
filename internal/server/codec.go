package server

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ironsheep/shape-sorter/internal/detection"
)

// headerLen is the number of leading bytes of every inbound packet that
// carry no command text.
const headerLen = 2

// OverMessage tells the PLC that realignment found the part.
const OverMessage = "0xOver"

// circleAngle is sent for circles, which have no orientation.
const circleAngle = "+000.00"

// ErrorMessage tells the PLC that no part was found in area.
func ErrorMessage(area byte) string {
	return "0xError,Pos" + string(area)
}

// Codec encodes object records for the PLC. The angle fields map an image
// orientation onto the gripper's rotary travel.
type Codec struct {
	// Travel scales the folded angle into PLC travel units.
	Travel float64

	// Nudge is added to X, Y and the sign-flipped angle before formatting.
	Nudge float64

	// FoldLow, FoldHigh and FoldNeg shift the sign-flipped angle of
	// square-family parts when it lies in [0,90], (90,180] and (-90,0].
	FoldLow  float64
	FoldHigh float64
	FoldNeg  float64
}

// DefaultCodec returns the codec of the reference rig.
func DefaultCodec() Codec {
	return Codec{
		Travel:   5.88,
		Nudge:    0.001,
		FoldLow:  -180,
		FoldHigh: -270,
		FoldNeg:  -90,
	}
}

// ShapeCode returns the wire code for a shape kind. ok is false for kinds
// the PLC has no code for (triangles, generic polygons, unknown).
func ShapeCode(kind detection.ShapeKind) (code string, ok bool) {
	switch kind {
	case detection.Square, detection.Rectangle, detection.Diamond, detection.Trapezoid:
		return "S", true
	case detection.Hexagon:
		return "H", true
	case detection.Circle:
		return "C", true
	default:
		return "", false
	}
}

// ColorCode returns the uppercase first letter of a color name, or "U".
func ColorCode(name string) string {
	if name == "" || name == detection.ColorUnknown {
		return "U"
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r))
}

// Encode formats one record. ok is false when the shape has no wire code.
func (c Codec) Encode(r detection.ObjectRecord) (string, bool) {
	code, ok := ShapeCode(r.Shape)
	if !ok {
		return "", false
	}

	angle := circleAngle
	if code != "C" {
		deg := 0.0
		if r.Oriented {
			deg = r.Orientation
		}
		angle = formatNumber(c.remap(code, deg))
	}

	return fmt.Sprintf("0x%s,%s,%s,%s,%s",
		code,
		formatNumber(r.RobotX+c.Nudge),
		formatNumber(r.RobotY+c.Nudge),
		angle,
		ColorCode(r.Color),
	), true
}

// remap flips the image angle into the PLC's rotation sense, folds
// square-family angles into the gripper's range and scales to travel units.
func (c Codec) remap(code string, deg float64) float64 {
	a := 360 - deg
	if deg >= 0 && deg <= 180 {
		a = -deg
	}
	a += c.Nudge

	if code == "S" {
		switch {
		case a >= 0 && a <= 90:
			a += c.FoldLow
		case a > 90 && a <= 180:
			a += c.FoldHigh
		case a > -90 && a <= 0:
			a += c.FoldNeg
		}
	}
	return a * c.Travel
}

// formatNumber renders v with an explicit sign, two decimals and a minimum
// width of 7.
func formatNumber(v float64) string {
	return fmt.Sprintf("%+07.2f", v)
}

// decodeCommand strips the packet header and returns the trimmed command
// text. A packet holding only the header yields "".
func decodeCommand(packet []byte) (string, error) {
	if len(packet) <= headerLen {
		return "", nil
	}
	body := packet[headerLen:]
	if !utf8.Valid(body) {
		return "", fmt.Errorf("command is not valid UTF-8: % x", body)
	}
	return strings.TrimFunc(string(body), func(r rune) bool {
		return r == 0 || unicode.IsSpace(r)
	}), nil
}
