package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/shape-sorter/internal/camera"
	"github.com/ironsheep/shape-sorter/internal/detection"
	"github.com/ironsheep/shape-sorter/internal/scanarea"
	"github.com/ironsheep/shape-sorter/internal/server"
)

// createTestFrame creates a uniform RGBA frame.
func createTestFrame(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// fakeFrames returns a fixed frame or error. With block set it waits for
// the context to end.
type fakeFrames struct {
	frame image.Image
	err   error
	block bool
}

func (f *fakeFrames) LatestFrame(ctx context.Context) (image.Image, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.frame, f.err
}

// fakeSegmenter records every call and tracks how many run at once.
type fakeSegmenter struct {
	records []detection.ObjectRecord
	err     error
	delay   time.Duration
	release chan struct{}

	mu     sync.Mutex
	rois   []*image.Rectangle
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeSegmenter) Detect(frame image.Image, roi *image.Rectangle) ([]detection.ObjectRecord, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.rois = append(f.rois, roi)
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.records, f.err
}

func (f *fakeSegmenter) calls() []*image.Rectangle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*image.Rectangle(nil), f.rois...)
}

var testRecord = detection.ObjectRecord{
	Shape:       detection.Square,
	Color:       "red",
	Center:      detection.Point{X: 30, Y: 30},
	Orientation: 45,
	Oriented:    true,
}

func testRegistry() *scanarea.Registry {
	return scanarea.NewRegistry([]scanarea.Area{
		{ID: 'A', Rect: image.Rect(10, 10, 50, 50)},
		{ID: 'B', Rect: image.Rect(50, 10, 90, 50)},
	}, zerolog.Nop())
}

func newTestService(frames camera.FrameSource, seg Segmenter, snap SnapshotOptions) *Service {
	return New(frames, testRegistry(), seg, snap, zerolog.Nop())
}

func request(area int) server.DetectionRequest {
	return server.DetectionRequest{Session: "test", Command: "Start", Area: area, Mode: server.ModeScan}
}

func TestDetect_PassesScanArea(t *testing.T) {
	tests := []struct {
		name    string
		area    int
		wantROI *image.Rectangle
	}{
		{"area A", 1, &image.Rectangle{Min: image.Pt(10, 10), Max: image.Pt(50, 50)}},
		{"area B", 2, &image.Rectangle{Min: image.Pt(50, 10), Max: image.Pt(90, 50)}},
		{"unloaded area uses full frame", 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := &fakeSegmenter{records: []detection.ObjectRecord{testRecord}}
			svc := newTestService(&fakeFrames{frame: createTestFrame(100, 60, color.Black)}, seg, SnapshotOptions{})

			records, err := svc.Detect(context.Background(), request(tt.area))
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if len(records) != 1 || records[0].Shape != detection.Square {
				t.Errorf("records = %v", records)
			}

			rois := seg.calls()
			if len(rois) != 1 {
				t.Fatalf("segmenter called %d times", len(rois))
			}
			got := rois[0]
			switch {
			case tt.wantROI == nil && got != nil:
				t.Errorf("roi = %v, want full frame", *got)
			case tt.wantROI != nil && (got == nil || *got != *tt.wantROI):
				t.Errorf("roi = %v, want %v", got, *tt.wantROI)
			}
		})
	}
}

func TestDetect_Errors(t *testing.T) {
	segErr := errors.New("segmentation exploded")

	tests := []struct {
		name    string
		frames  *fakeFrames
		seg     *fakeSegmenter
		timeout time.Duration
		want    error
	}{
		{
			name:   "no frame",
			frames: &fakeFrames{err: camera.ErrNoFrame},
			seg:    &fakeSegmenter{},
			want:   camera.ErrNoFrame,
		},
		{
			name:    "frame wait exceeds request deadline",
			frames:  &fakeFrames{block: true},
			seg:     &fakeSegmenter{},
			timeout: 30 * time.Millisecond,
			want:    ErrTimeout,
		},
		{
			name:   "segmenter failure",
			frames: &fakeFrames{frame: createTestFrame(10, 10, color.Black)},
			seg:    &fakeSegmenter{err: segErr},
			want:   segErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.frames, tt.seg, SnapshotOptions{})

			ctx := context.Background()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}

			records, err := svc.Detect(ctx, request(1))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if records != nil {
				t.Errorf("records = %v, want nil", records)
			}
		})
	}
}

func TestDetect_BusyWhenSlotHeld(t *testing.T) {
	seg := &fakeSegmenter{release: make(chan struct{})}
	svc := newTestService(&fakeFrames{frame: createTestFrame(10, 10, color.Black)}, seg, SnapshotOptions{})

	first := make(chan error, 1)
	go func() {
		_, err := svc.Detect(context.Background(), request(1))
		first <- err
	}()

	// Wait until the first request is inside the segmenter.
	deadline := time.Now().Add(2 * time.Second)
	for seg.active.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first request never reached the segmenter")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := svc.Detect(ctx, request(2)); !errors.Is(err, ErrBusy) {
		t.Errorf("second request err = %v, want ErrBusy", err)
	}

	close(seg.release)
	if err := <-first; err != nil {
		t.Errorf("first request failed: %v", err)
	}

	// The slot is free again.
	if _, err := svc.Detect(context.Background(), request(1)); err != nil {
		t.Errorf("request after release failed: %v", err)
	}
}

func TestDetect_Serialized(t *testing.T) {
	seg := &fakeSegmenter{delay: 5 * time.Millisecond}
	svc := newTestService(&fakeFrames{frame: createTestFrame(10, 10, color.Black)}, seg, SnapshotOptions{})

	const sessions = 6
	var wg sync.WaitGroup
	errs := make(chan error, sessions)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			req := request(i%2 + 1)
			req.Session = fmt.Sprintf("session-%d", i)
			if _, err := svc.Detect(ctx, req); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("request failed: %v", err)
	}
	if got := len(seg.calls()); got != sessions {
		t.Errorf("segmenter called %d times, want %d", got, sessions)
	}
	if peak := seg.peak.Load(); peak != 1 {
		t.Errorf("peak concurrent detections = %d, want 1", peak)
	}
}

func TestDetect_Snapshots(t *testing.T) {
	tests := []struct {
		name      string
		area      int
		wantFiles []string
	}{
		{
			name:      "bounded area writes frame and crop",
			area:      1,
			wantFiles: []string{"1700000000000000000-areaA-start-roi.png", "1700000000000000000-areaA-start.png"},
		},
		{
			name:      "full frame writes frame only",
			area:      4,
			wantFiles: []string{"1700000000000000000-areaD-start.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "snapshots")
			seg := &fakeSegmenter{records: []detection.ObjectRecord{testRecord}}
			svc := newTestService(&fakeFrames{frame: createTestFrame(100, 60, color.White)}, seg, SnapshotOptions{Dir: dir, Format: "png"})
			svc.now = func() time.Time { return time.Unix(1700000000, 0) }

			if _, err := svc.Detect(context.Background(), request(tt.area)); err != nil {
				t.Fatalf("Detect failed: %v", err)
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatalf("reading snapshot dir: %v", err)
			}
			var got []string
			for _, e := range entries {
				got = append(got, e.Name())
			}
			sort.Strings(got)

			if len(got) != len(tt.wantFiles) {
				t.Fatalf("files = %v, want %v", got, tt.wantFiles)
			}
			for i := range got {
				if got[i] != tt.wantFiles[i] {
					t.Errorf("file %d = %s, want %s", i, got[i], tt.wantFiles[i])
				}
			}
		})
	}
}

func TestDetect_SnapshotCropScale(t *testing.T) {
	dir := t.TempDir()
	seg := &fakeSegmenter{records: []detection.ObjectRecord{testRecord}}
	svc := newTestService(&fakeFrames{frame: createTestFrame(100, 60, color.White)}, seg,
		SnapshotOptions{Dir: dir, Format: "png", CropScale: 0.5})
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }

	if _, err := svc.Detect(context.Background(), request(1)); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "1700000000000000000-areaA-start-roi.png"))
	if err != nil {
		t.Fatalf("crop snapshot missing: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decoding crop: %v", err)
	}

	// Area A is 40x40.
	if cfg.Width != 20 || cfg.Height != 20 {
		t.Errorf("crop size = %dx%d, want 20x20", cfg.Width, cfg.Height)
	}
}

func TestDetect_SnapshotFailureKeepsRecords(t *testing.T) {
	// A file where the snapshot directory should be makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	seg := &fakeSegmenter{records: []detection.ObjectRecord{testRecord}}
	svc := newTestService(&fakeFrames{frame: createTestFrame(100, 60, color.White)}, seg, SnapshotOptions{Dir: blocker, Format: "png"})

	records, err := svc.Detect(context.Background(), request(1))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}
