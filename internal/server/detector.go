package server

import (
	"context"

	"github.com/ironsheep/shape-sorter/internal/detection"
)

// Mode tells the detector why detection was requested.
type Mode int

const (
	// ModeScan is a Start scan of a fresh scan area.
	ModeScan Mode = iota

	// ModeMovement is the first Sort after a Start: the PLC has moved a
	// part and asks whether it is still there.
	ModeMovement

	// ModeRedetect is a Sort after a failed movement check.
	ModeRedetect
)

func (m Mode) String() string {
	switch m {
	case ModeScan:
		return "scan"
	case ModeMovement:
		return "movement"
	case ModeRedetect:
		return "redetect"
	default:
		return "unknown"
	}
}

// DetectionRequest describes one detection call from a session.
type DetectionRequest struct {
	Session   string // session ID, for logs
	Command   string // "Start" or "Sort"
	Area      int    // 1-based scan area index
	Mode      Mode
	SortIndex int // Sort commands handled so far in this session
}

// AreaID returns the letter of the request's scan area.
func (r DetectionRequest) AreaID() byte {
	return areaID(r.Area)
}

// Detector runs detection for a session. Implementations must honor ctx and
// must be safe for concurrent use by several sessions.
type Detector interface {
	Detect(ctx context.Context, req DetectionRequest) ([]detection.ObjectRecord, error)
}

// areaID maps a 1-based area index to 'A', 'B', ...
func areaID(index int) byte {
	if index < 1 || index > 26 {
		return 'X'
	}
	return byte('A' + index - 1)
}
