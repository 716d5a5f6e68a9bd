// Package imaging holds the frame-level image operations of the sorting cell.
//
// It loads and caches frames from disk, samples pixels for color
// classification, crops scan areas, renders annotated overlays of a
// detection result, and writes snapshot files for operators.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with the origin at the top-left corner:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, Min is inclusive and Max is exclusive (image.Rectangle)
//
// # Thread Safety
//
// FrameCache is safe for concurrent use. The remaining functions are
// stateless and never modify their input frames; Annotate draws on a copy.
//
// # Snapshots
//
// Snapshot files are named from the capture time, the scan area and the PLC
// command that triggered detection, so a directory listing sorts in capture
// order:
//
//	1718000000123456789-areaB-start.png
//	1718000000123456789-areaB-start-roi.png
//
// Encoding goes through bild's imgio encoders; PNG, JPEG and BMP are
// supported.
package imaging
