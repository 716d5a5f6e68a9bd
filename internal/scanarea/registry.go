// Package scanarea holds the rectangular regions of interest the PLC asks
// the vision system to inspect in rotation.
package scanarea

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Area is one named region of interest in pixel space. A FullFrame area has
// no rectangle and admits every object in the frame.
type Area struct {
	ID        byte            // 'A'..'D'
	Rect      image.Rectangle // top-left inclusive, bottom-right exclusive
	FullFrame bool
}

// Bounds returns the area's rectangle, or nil for a full-frame area.
func (a Area) Bounds() *image.Rectangle {
	if a.FullFrame {
		return nil
	}
	r := a.Rect
	return &r
}

// String renders the area for logs.
func (a Area) String() string {
	if a.FullFrame {
		return fmt.Sprintf("%c(full frame)", a.ID)
	}
	return fmt.Sprintf("%c%v", a.ID, a.Rect)
}

// FullFrameArea is substituted when no area file could be loaded and when a
// caller asks for an index outside the registry.
func FullFrameArea() Area {
	return Area{ID: 'A', FullFrame: true}
}

// Registry is the immutable set of loaded areas, keyed by area ID. An area
// keeps the letter of its position in the configured list even when an
// earlier file failed to load.
type Registry struct {
	areas map[byte]Area
	log   zerolog.Logger
}

// Load reads one area per path; paths[0] is area A, paths[1] area B and so
// on. Each file holds two lines "x y" (space or comma separated): the
// top-left and bottom-right corners. Files that are missing or malformed are
// logged and skipped; their lane falls back to the full frame. If nothing
// loads, the registry holds one full-frame area.
func Load(paths []string, log zerolog.Logger) *Registry {
	var areas []Area
	for i, path := range paths {
		id := byte('A' + i)
		rect, err := parseArea(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Str("area", string(id)).Msg("scan area skipped")
			continue
		}
		areas = append(areas, Area{ID: id, Rect: rect})
		log.Info().Str("area", string(id)).Str("rect", rect.String()).Msg("scan area loaded")
	}
	if len(areas) == 0 {
		log.Warn().Msg("no scan areas loaded, using full frame")
	}
	return NewRegistry(areas, log)
}

// NewRegistry builds a registry from areas already in memory. A later area
// with the same ID replaces an earlier one.
func NewRegistry(areas []Area, log zerolog.Logger) *Registry {
	if len(areas) == 0 {
		areas = []Area{FullFrameArea()}
	}
	r := &Registry{areas: make(map[byte]Area, len(areas)), log: log}
	for _, a := range areas {
		r.areas[a.ID] = a
	}
	return r
}

// Len returns the number of areas.
func (r *Registry) Len() int { return len(r.areas) }

// Areas returns the loaded areas ordered by ID.
func (r *Registry) Areas() []Area {
	out := make([]Area, 0, len(r.areas))
	for _, a := range r.areas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns the area for a 1-based index: 1 is A, 2 is B and so on.
// A lane whose file did not load, and an index outside A..Z, yield a
// full-frame area; both are logged.
func (r *Registry) Active(index int) Area {
	if index < 1 || index > 26 {
		r.log.Warn().Int("index", index).Msg("scan area index out of range, using full frame")
		return FullFrameArea()
	}

	id := byte('A' + index - 1)
	if a, ok := r.areas[id]; ok {
		return a
	}

	r.log.Warn().Str("area", string(id)).Int("areas", len(r.areas)).Msg("scan area not loaded, using full frame")
	a := FullFrameArea()
	a.ID = id
	return a
}

func parseArea(path string) (image.Rectangle, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("failed to open scan area file: %w", err)
	}
	defer f.Close()

	var corners []image.Point
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(corners) == 2 {
			return image.Rectangle{}, fmt.Errorf("scan area file has more than 2 corner lines")
		}
		p, err := parseCorner(line)
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("corner %d: %w", len(corners)+1, err)
		}
		corners = append(corners, p)
	}
	if err := scanner.Err(); err != nil {
		return image.Rectangle{}, fmt.Errorf("failed to read scan area file: %w", err)
	}
	if len(corners) != 2 {
		return image.Rectangle{}, fmt.Errorf("scan area file has %d corner lines, want 2", len(corners))
	}

	tl, br := corners[0], corners[1]
	if br.X <= tl.X || br.Y <= tl.Y {
		return image.Rectangle{}, fmt.Errorf("bottom-right %v is not below and right of top-left %v", br, tl)
	}
	return image.Rect(tl.X, tl.Y, br.X, br.Y), nil
}

func parseCorner(line string) (image.Point, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	if len(fields) != 2 {
		return image.Point{}, fmt.Errorf("want \"x y\", got %q", line)
	}
	x, err := strconv.Atoi(fields[0])
	if err != nil {
		return image.Point{}, fmt.Errorf("invalid x: %w", err)
	}
	y, err := strconv.Atoi(fields[1])
	if err != nil {
		return image.Point{}, fmt.Errorf("invalid y: %w", err)
	}
	return image.Pt(x, y), nil
}
