// Package pipeline turns a camera frame into classified, positioned object
// records.
//
// Segmentation runs on OpenCV through gocv:
//
//  1. The frame is converted to HSV and thresholded once per palette band;
//     the band masks are OR-ed into one mask covering the whole frame.
//  2. The mask is opened, closed and median filtered to remove speckle and
//     fill holes.
//  3. External contours are extracted. For each one the convex hull, its
//     polygon approximation (epsilon = factor * hull perimeter) and the
//     minimum-area rectangle are measured.
//
// Everything after measurement is plain Go and does not need OpenCV: the
// area, border and compactness filters, the scan-area test on the moment
// centroid, classification through package detection, color sampling at
// the rectangle center and the calibration mapping.
//
// The scan area restricts which objects are kept, not where segmentation
// runs. Records come back in contour discovery order, which carries no
// priority.
//
// Builds without cgo compile, but Detect then fails with ErrNoOpenCV.
package pipeline
