// Package config holds the typed configuration for the sorting cell.
//
// Configuration is resolved in three layers:
//
//  1. Default() supplies the values tuned on the reference rig
//  2. Load() overlays a YAML file when one is given
//  3. Environment variables (SHAPE_SORTER_*) override individual keys
//
// The result is validated once at load time; components receive the typed
// sub-structs and never look values up by string key.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Environment variable names recognised by ApplyEnv.
const (
	EnvAddr          = "SHAPE_SORTER_ADDR"
	EnvDetectTimeout = "SHAPE_SORTER_DETECT_TIMEOUT"
	EnvCalibration   = "SHAPE_SORTER_CALIBRATION"
	EnvCamera        = "SHAPE_SORTER_CAMERA"
	EnvCameraDir     = "SHAPE_SORTER_CAMERA_DIR"
	EnvSnapshotDir   = "SHAPE_SORTER_SNAPSHOT_DIR"
	EnvLogLevel      = "SHAPE_SORTER_LOG_LEVEL"
)

// MaxScanAreas is the number of physical sorting lanes the PLC cycles through.
const MaxScanAreas = 4

// Config is the complete runtime configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Calibration CalibrationConfig `yaml:"calibration"`
	ScanAreas   []string          `yaml:"scan_areas"`
	Camera      CameraConfig      `yaml:"camera"`
	Detection   DetectionConfig   `yaml:"detection"`
	Palette     []ColorRange      `yaml:"palette"`
	Angle       AngleConfig       `yaml:"angle"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig configures the PLC listener.
type ServerConfig struct {
	// Address is the host:port the listener binds.
	Address string `yaml:"address"`

	// ReadTimeout bounds each receive so a session can observe shutdown.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds each send to the PLC.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds the join of each session worker on Stop.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// DetectTimeout bounds one detection request, including the wait for the
	// shared frame source.
	DetectTimeout time.Duration `yaml:"detect_timeout"`
}

// CalibrationConfig locates the pixel-to-robot matrix.
type CalibrationConfig struct {
	Path string `yaml:"path"`
}

// CameraConfig selects the frame source.
type CameraConfig struct {
	// Source is "latch" (frames pushed by the vendor driver) or "dir"
	// (frames replayed from Dir).
	Source string `yaml:"source"`

	// Dir is the frame directory for the "dir" source.
	Dir string `yaml:"dir"`

	// FrameWait bounds how long a request waits for a frame to appear.
	FrameWait time.Duration `yaml:"frame_wait"`
}

// DetectionConfig carries the segmentation and classification tunables.
type DetectionConfig struct {
	MinArea            float64 `yaml:"min_area"`
	EpsilonFactor      float64 `yaml:"epsilon_factor"`
	BorderAspect       float64 `yaml:"border_aspect"`
	BorderAreaFraction float64 `yaml:"border_area_fraction"`
	MaxCompactness     float64 `yaml:"max_compactness"`
	SideTolerance      float64 `yaml:"side_tolerance"`
	AngleTolerance     float64 `yaml:"angle_tolerance"`
	ParallelTolerance  float64 `yaml:"parallel_tolerance"`
	PairTolerance      float64 `yaml:"pair_tolerance"`
	MinCircularity     float64 `yaml:"min_circularity"`
	MorphKernel        int     `yaml:"morph_kernel"`
	MedianKernel       int     `yaml:"median_kernel"`
}

// ColorRange is one named HSV band on the OpenCV scale (H 0-180, S and V 0-255).
// Several bands may share a name; red wraps around the hue circle and needs two.
type ColorRange struct {
	Name  string     `yaml:"name"`
	Lower [3]float64 `yaml:"lower"`
	Upper [3]float64 `yaml:"upper"`
}

// AngleConfig holds the rig-specific angle remapping constants used by the
// wire codec.
type AngleConfig struct {
	// Travel scales the folded angle to the PLC's rotary travel units.
	Travel float64 `yaml:"travel"`

	// Nudge is added to X, Y and the angle before formatting.
	Nudge float64 `yaml:"nudge"`

	// FoldLow, FoldHigh and FoldNeg are added to square-family angles in
	// [0,90], (90,180] and (-90,0] respectively.
	FoldLow  float64 `yaml:"fold_low"`
	FoldHigh float64 `yaml:"fold_high"`
	FoldNeg  float64 `yaml:"fold_neg"`
}

// SnapshotConfig controls annotated frame dumps.
type SnapshotConfig struct {
	// Dir enables snapshots when non-empty.
	Dir string `yaml:"dir"`

	// Format is "png", "jpg" or "bmp".
	Format string `yaml:"format"`

	// CropScale resizes the scan-area crop; 1 keeps it at frame resolution.
	CropScale float64 `yaml:"crop_scale"`
}

// LogConfig configures the operator log stream.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Buffer int    `yaml:"buffer"`
}

// Default returns the configuration of the reference rig.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         "0.0.0.0:2000",
			ReadTimeout:     time.Second,
			WriteTimeout:    2 * time.Second,
			ShutdownTimeout: 2 * time.Second,
			DetectTimeout:   5 * time.Second,
		},
		Calibration: CalibrationConfig{
			Path: "assets/calibration/affine_matrix.txt",
		},
		ScanAreas: []string{
			"config/scan_areas/area_A.txt",
			"config/scan_areas/area_B.txt",
			"config/scan_areas/area_C.txt",
			"config/scan_areas/area_D.txt",
		},
		Camera: CameraConfig{
			Source:    "latch",
			FrameWait: 2 * time.Second,
		},
		Detection: DetectionConfig{
			MinArea:            500,
			EpsilonFactor:      0.02,
			BorderAspect:       5.0,
			BorderAreaFraction: 0.5,
			MaxCompactness:     60,
			SideTolerance:      0.15,
			AngleTolerance:     15,
			ParallelTolerance:  10,
			PairTolerance:      15,
			MinCircularity:     0.88,
			MorphKernel:        5,
			MedianKernel:       5,
		},
		Palette: DefaultPalette(),
		Angle: AngleConfig{
			Travel:   5.88,
			Nudge:    0.001,
			FoldLow:  -180,
			FoldHigh: -270,
			FoldNeg:  -90,
		},
		Snapshot: SnapshotConfig{
			Format:    "png",
			CropScale: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Buffer: 1000,
		},
	}
}

// DefaultPalette returns the HSV bands used on the reference rig. The wide
// low red band (H 0-100) overlaps yellow, green and blue and closes the hue
// gap between them in the segmentation mask; it is listed last so that
// classification, which takes the first matching band, only falls back to
// red for hues no narrower band claims.
func DefaultPalette() []ColorRange {
	return []ColorRange{
		{Name: "yellow", Lower: [3]float64{5, 60, 13}, Upper: [3]float64{30, 255, 255}},
		{Name: "green", Lower: [3]float64{40, 50, 10}, Upper: [3]float64{90, 255, 255}},
		{Name: "blue", Lower: [3]float64{90, 85, 13}, Upper: [3]float64{160, 255, 255}},
		{Name: "red", Lower: [3]float64{156, 100, 20}, Upper: [3]float64{180, 255, 255}},
		{Name: "red", Lower: [3]float64{0, 100, 20}, Upper: [3]float64{100, 255, 255}},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv; tests pass a map-backed function.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Address = v
	}
	if v, ok := lookup(EnvDetectTimeout); ok && v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDetectTimeout, err)
		}
		c.Server.DetectTimeout = d
	}
	if v, ok := lookup(EnvCalibration); ok && v != "" {
		c.Calibration.Path = v
	}
	if v, ok := lookup(EnvCamera); ok && v != "" {
		c.Camera.Source = strings.ToLower(v)
	}
	if v, ok := lookup(EnvCameraDir); ok && v != "" {
		c.Camera.Dir = v
	}
	if v, ok := lookup(EnvSnapshotDir); ok {
		c.Snapshot.Dir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 ||
		c.Server.ShutdownTimeout <= 0 || c.Server.DetectTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if len(c.ScanAreas) > MaxScanAreas {
		return fmt.Errorf("at most %d scan areas are supported, got %d", MaxScanAreas, len(c.ScanAreas))
	}

	switch c.Camera.Source {
	case "latch":
	case "dir":
		if c.Camera.Dir == "" {
			return fmt.Errorf("camera.dir is required for the dir source")
		}
	default:
		return fmt.Errorf("unknown camera.source %q", c.Camera.Source)
	}
	if c.Camera.FrameWait <= 0 {
		return fmt.Errorf("camera.frame_wait must be positive")
	}

	d := c.Detection
	if d.MinArea < 0 {
		return fmt.Errorf("detection.min_area must not be negative")
	}
	if d.EpsilonFactor <= 0 || d.EpsilonFactor >= 1 {
		return fmt.Errorf("detection.epsilon_factor must be in (0,1)")
	}
	if d.SideTolerance <= 0 || d.SideTolerance >= 1 {
		return fmt.Errorf("detection.side_tolerance must be in (0,1)")
	}
	for name, v := range map[string]float64{
		"angle_tolerance":    d.AngleTolerance,
		"parallel_tolerance": d.ParallelTolerance,
		"pair_tolerance":     d.PairTolerance,
	} {
		if v <= 0 || v >= 90 {
			return fmt.Errorf("detection.%s must be in (0,90) degrees", name)
		}
	}
	if d.MinCircularity <= 0 || d.MinCircularity > 1 {
		return fmt.Errorf("detection.min_circularity must be in (0,1]")
	}
	if d.MorphKernel < 1 || d.MedianKernel < 1 || d.MedianKernel%2 == 0 {
		return fmt.Errorf("detection kernels must be positive and the median kernel odd")
	}

	if len(c.Palette) == 0 {
		return fmt.Errorf("palette must contain at least one color")
	}
	for i, r := range c.Palette {
		if r.Name == "" {
			return fmt.Errorf("palette[%d]: name must not be empty", i)
		}
		for k := 0; k < 3; k++ {
			if r.Lower[k] > r.Upper[k] {
				return fmt.Errorf("palette[%d] %s: lower bound exceeds upper bound", i, r.Name)
			}
		}
	}

	if c.Angle.Travel == 0 {
		return fmt.Errorf("angle.travel must not be zero")
	}

	switch c.Snapshot.Format {
	case "png", "jpg", "bmp":
	default:
		return fmt.Errorf("unknown snapshot.format %q", c.Snapshot.Format)
	}
	if c.Snapshot.CropScale <= 0 {
		return fmt.Errorf("snapshot.crop_scale must be positive")
	}

	if c.Log.Buffer <= 0 {
		return fmt.Errorf("log.buffer must be positive")
	}
	return nil
}
