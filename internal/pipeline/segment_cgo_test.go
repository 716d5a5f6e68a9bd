//go:build cgo

package pipeline

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/shape-sorter/internal/detection"
)

func TestDetect_FilledSquare(t *testing.T) {
	frame := createTestFrame(320, 240, color.White)
	fillRect(frame, image.Rect(100, 80, 160, 140), color.RGBA{255, 0, 0, 255})

	records, err := newTestPipeline().Detect(frame, nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	r := records[0]
	if r.Shape != detection.Square {
		t.Errorf("Shape = %q, want square", r.Shape)
	}
	if r.Color != "red" {
		t.Errorf("Color = %q, want red", r.Color)
	}
	if math.Abs(r.Center.X-129.5) > 1.5 || math.Abs(r.Center.Y-109.5) > 1.5 {
		t.Errorf("Center = %v, want about (129.5,109.5)", r.Center)
	}
	if !r.Oriented {
		t.Error("square not oriented")
	}
}

func TestDetect_ScanAreaAndColors(t *testing.T) {
	frame := createTestFrame(400, 200, color.White)
	fillRect(frame, image.Rect(30, 50, 110, 130), color.RGBA{0, 0, 255, 255})
	fillRect(frame, image.Rect(250, 40, 370, 100), color.RGBA{0, 200, 0, 255})

	p := newTestPipeline()

	all, err := p.Detect(frame, nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("full frame: got %d records, want 2", len(all))
	}

	left := image.Rect(0, 0, 200, 200)
	kept, err := p.Detect(frame, &left)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(kept) != 1 || kept[0].Color != "blue" {
		t.Fatalf("left area: got %v, want one blue record", kept)
	}

	right := image.Rect(200, 0, 400, 200)
	kept, err = p.Detect(frame, &right)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(kept) != 1 || kept[0].Color != "green" || kept[0].Shape != detection.Rectangle {
		t.Fatalf("right area: got %v, want one green rectangle", kept)
	}
}

func TestDetect_EmptyMask(t *testing.T) {
	frame := createTestFrame(100, 100, color.White)

	records, err := newTestPipeline().Detect(frame, nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records on a blank frame", len(records))
	}
}
