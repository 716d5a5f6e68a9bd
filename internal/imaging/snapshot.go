package imaging

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
)

const jpegQuality = 95

// Snapshot identifies one capture for naming purposes.
type Snapshot struct {
	At      time.Time
	Area    byte   // scan area ID, 'A'..'D'
	Command string // PLC command that triggered detection
}

// Name returns the file name for the snapshot with an optional suffix
// ("roi") and the given extension.
func (s Snapshot) Name(suffix, ext string) string {
	cmd := strings.ToLower(strings.TrimSpace(s.Command))
	if cmd == "" {
		cmd = "manual"
	}
	name := fmt.Sprintf("%d-area%c-%s", s.At.UnixNano(), s.Area, cmd)
	if suffix != "" {
		name += "-" + suffix
	}
	return name + "." + ext
}

// encoderFor maps a snapshot format to a bild encoder.
func encoderFor(format string) (imgio.Encoder, error) {
	switch format {
	case "png":
		return imgio.PNGEncoder(), nil
	case "jpg", "jpeg":
		return imgio.JPEGEncoder(jpegQuality), nil
	case "bmp":
		return imgio.BMPEncoder(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
}

// SaveSnapshot writes img into dir, creating dir when needed, and returns
// the written path.
func SaveSnapshot(dir string, s Snapshot, suffix, format string, img image.Image) (string, error) {
	enc, err := encoderFor(format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, s.Name(suffix, format))
	if err := imgio.Save(path, img, enc); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return path, nil
}
