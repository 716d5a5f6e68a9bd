// Package vision answers detection requests from PLC sessions.
//
// A Service owns the path from a request to a list of object records:
// it takes the single detection slot, asks the frame source for a fresh
// frame, resolves the requested scan area, runs the segmenter and, when a
// snapshot directory is configured, writes the annotated frame and the
// scan-area crop to disk.
//
// The camera has one current-frame buffer, so requests from different
// sessions never overlap. A request waits for the slot only as long as its
// context allows and then fails with ErrBusy.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/shape-sorter/internal/camera"
	"github.com/ironsheep/shape-sorter/internal/detection"
	"github.com/ironsheep/shape-sorter/internal/imaging"
	"github.com/ironsheep/shape-sorter/internal/scanarea"
	"github.com/ironsheep/shape-sorter/internal/server"
)

var (
	// ErrBusy is returned when the detection slot stays taken until the
	// request context ends.
	ErrBusy = errors.New("vision: detector busy")

	// ErrTimeout is returned when the request context ends while waiting
	// for a frame.
	ErrTimeout = errors.New("vision: timed out waiting for frame")
)

// Segmenter finds objects in a frame. pipeline.Pipeline implements it.
type Segmenter interface {
	Detect(frame image.Image, roi *image.Rectangle) ([]detection.ObjectRecord, error)
}

// SnapshotOptions enable frame dumps. An empty Dir disables them.
type SnapshotOptions struct {
	Dir       string
	Format    string
	CropScale float64 // scan-area crop resize factor; 0 or 1 keeps the size
}

// Service implements server.Detector.
type Service struct {
	frames    camera.FrameSource
	areas     *scanarea.Registry
	segmenter Segmenter
	snapshot  SnapshotOptions
	log       zerolog.Logger

	slot chan struct{}
	now  func() time.Time
}

var _ server.Detector = (*Service)(nil)

// New creates a detection service.
func New(frames camera.FrameSource, areas *scanarea.Registry, segmenter Segmenter, snapshot SnapshotOptions, log zerolog.Logger) *Service {
	return &Service{
		frames:    frames,
		areas:     areas,
		segmenter: segmenter,
		snapshot:  snapshot,
		log:       log.With().Str("component", "vision").Logger(),
		slot:      make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Detect runs one detection for req. Records are returned in discovery
// order.
func (s *Service) Detect(ctx context.Context, req server.DetectionRequest) ([]detection.ObjectRecord, error) {
	log := s.log.With().
		Str("session", req.Session).
		Str("command", req.Command).
		Stringer("mode", req.Mode).
		Logger()

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Msg("detection slot busy")
		return nil, ErrBusy
	}
	defer func() { <-s.slot }()

	area := s.areas.Active(req.Area)
	log = log.With().Str("area", string(area.ID)).Logger()

	frame, err := s.frames.LatestFrame(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("failed to get frame: %w", err)
	}

	roi := area.Bounds()
	records, err := s.segmenter.Detect(frame, roi)
	if err != nil {
		return nil, fmt.Errorf("detection failed in area %c: %w", area.ID, err)
	}

	for _, r := range records {
		log.Debug().Str("record", r.String()).Msg("object")
	}
	log.Info().Int("count", len(records)).Msg("detection complete")

	if s.snapshot.Dir != "" {
		s.save(log, frame, area, req.Command, records)
	}
	return records, nil
}

// save writes the annotated frame and, for a bounded area, the area crop.
// Failures are logged; detection results are returned regardless.
func (s *Service) save(log zerolog.Logger, frame image.Image, area scanarea.Area, command string, records []detection.ObjectRecord) {
	snap := imaging.Snapshot{At: s.now(), Area: area.ID, Command: command}
	roi := area.Bounds()

	path, err := imaging.SaveSnapshot(s.snapshot.Dir, snap, "", s.snapshot.Format, imaging.Annotate(frame, roi, records))
	if err != nil {
		log.Warn().Err(err).Msg("snapshot failed")
		return
	}
	log.Debug().Str("path", path).Msg("snapshot saved")

	if roi == nil {
		return
	}
	crop, err := imaging.CropArea(frame, roi, s.snapshot.CropScale)
	if err != nil {
		log.Warn().Err(err).Msg("scan area crop failed")
		return
	}
	if path, err = imaging.SaveSnapshot(s.snapshot.Dir, snap, "roi", s.snapshot.Format, crop); err != nil {
		log.Warn().Err(err).Msg("snapshot failed")
		return
	}
	log.Debug().Str("path", path).Msg("scan area snapshot saved")
}
