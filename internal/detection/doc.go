// Package detection classifies part outlines by shape, orientation and color.
//
// This package holds the pure geometry of the sorting cell: it receives
// polygon vertices already extracted from a frame (see package pipeline) and
// decides what kind of part they describe and which way it points. Nothing in
// here touches pixels except color classification, which works on a single
// sampled color.Color.
//
// # Shape Classification
//
// Shapes are decided by the vertex count of the approximated convex hull:
//
//   - 3 vertices: triangle
//   - 4 vertices: square, rectangle, diamond or trapezoid (see below)
//   - 6 vertices: hexagon
//   - anything else: circle when the hull's circularity 4π·area/perimeter²
//     reaches the configured minimum, otherwise a generic polygon-N
//
// Four-sided hulls are split using side lengths and interior angles:
//
//   - all sides equal and all angles ≈90°: square
//   - all sides equal, angles not all ≈90°: diamond
//   - opposite sides pairwise equal and all angles ≈90°: rectangle
//   - exactly one pair of opposite sides parallel: trapezoid
//   - otherwise: unknown
//
// # Orientation
//
// Orientation is the direction of a reference vector, in degrees in [0,360),
// measured with atan2 in image coordinates (Y grows downward, so 90° points
// down the frame). Circles have no orientation.
//
//   - Triangle: from the midpoint of the base to the apex, where the apex is
//     the hull vertex nearest the contour centroid
//   - Trapezoid: from the midpoint of the longer parallel side to the
//     midpoint of the shorter one
//   - Square, rectangle, diamond, hexagon: between the midpoints of a pair of
//     opposite sides, pointing from the midpoint with smaller Y to the one
//     with larger Y (smaller X first on ties)
//
// # Color Classification
//
// Colors are matched in HSV on the OpenCV 8-bit scale (H 0-180, S 0-255,
// V 0-255) so the same bands drive both mask segmentation and per-object
// color naming. The first band containing the sample wins.
package detection
