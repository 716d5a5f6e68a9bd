package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ironsheep/shape-sorter/internal/imaging"
)

var frameExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
}

// maxCachedFrames bounds the decoded frames a DirSource keeps. Frames past
// the bound are decoded on every pass.
const maxCachedFrames = 32

// DirSource replays the image files of a directory in name order, wrapping
// around after the last one. Up to maxCachedFrames decoded frames are cached.
type DirSource struct {
	paths []string
	cache *imaging.FrameCache

	mu   sync.Mutex
	next int
}

// NewDirSource lists the frame files in dir. An empty directory is an error.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}
	sort.Strings(paths)

	return &DirSource{
		paths: paths,
		cache: imaging.NewFrameCache(),
	}, nil
}

// Len returns the number of frames in the rotation.
func (d *DirSource) Len() int { return len(d.paths) }

// LatestFrame returns the next frame in the rotation.
func (d *DirSource) LatestFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	path := d.paths[d.next]
	d.next = (d.next + 1) % len(d.paths)
	d.mu.Unlock()

	img, err := d.cache.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	if d.cache.Len() > maxCachedFrames {
		d.cache.Evict(path)
	}
	return img, nil
}
