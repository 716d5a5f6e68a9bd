package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/shape-sorter/internal/calibration"
	"github.com/ironsheep/shape-sorter/internal/camera"
	"github.com/ironsheep/shape-sorter/internal/config"
	"github.com/ironsheep/shape-sorter/internal/detection"
	"github.com/ironsheep/shape-sorter/internal/logging"
	"github.com/ironsheep/shape-sorter/internal/pipeline"
	"github.com/ironsheep/shape-sorter/internal/scanarea"
	"github.com/ironsheep/shape-sorter/internal/server"
	"github.com/ironsheep/shape-sorter/internal/vision"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// pumpInterval is the replay rate of the dir source into the latch.
const pumpInterval = 200 * time.Millisecond

func main() {
	configPath := ""

	// Handle --version, --help and --check-config
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("shape-sorter %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "--check-config":
			path := ""
			if len(os.Args) > 2 {
				path = os.Args[2]
			}
			os.Exit(checkConfig(path))
		default:
			configPath = os.Args[1]
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shape-sorter: %v\n", err)
		os.Exit(1)
	}

	lg, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Buffer: cfg.Log.Buffer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "shape-sorter: %v\n", err)
		os.Exit(1)
	}

	code := run(cfg, lg.Logger)
	lg.Close()
	os.Exit(code)
}

func printHelp() {
	fmt.Println("shape-sorter - vision server for the PLC sorting cell")
	fmt.Println()
	fmt.Println("Usage: shape-sorter [options] [config.yaml]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v            Print version information")
	fmt.Println("  --help, -h               Print this help message")
	fmt.Println("  --check-config [file]    Validate a configuration and print the resolved values")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Printf("  %s=host:port       PLC listener address\n", config.EnvAddr)
	fmt.Printf("  %s=5s    Detection request timeout\n", config.EnvDetectTimeout)
	fmt.Printf("  %s=path       Calibration matrix file\n", config.EnvCalibration)
	fmt.Printf("  %s=latch|dir       Frame source\n", config.EnvCamera)
	fmt.Printf("  %s=path        Frame directory for the dir source\n", config.EnvCameraDir)
	fmt.Printf("  %s=path      Enable annotated snapshots\n", config.EnvSnapshotDir)
	fmt.Printf("  %s=debug        Log level\n", config.EnvLogLevel)
}

// checkConfig validates the configuration at path and prints it as YAML.
func checkConfig(path string) int {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render configuration: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

// run wires the components and serves until SIGINT or SIGTERM.
func run(cfg config.Config, log zerolog.Logger) int {
	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("commit", GitCommit).
		Msg("shape-sorter starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mapper := calibration.Load(cfg.Calibration.Path, log)
	areas := scanarea.Load(cfg.ScanAreas, log)
	for _, a := range areas.Areas() {
		log.Info().Stringer("area", a).Msg("scan area ready")
	}

	frames, err := frameSource(ctx, cfg.Camera, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open frame source")
		return 1
	}

	pipe := pipeline.New(pipelineOptions(cfg.Detection), palette(cfg.Palette), mapper, log)
	svc := vision.New(frames, areas, pipe, vision.SnapshotOptions{
		Dir:       cfg.Snapshot.Dir,
		Format:    cfg.Snapshot.Format,
		CropScale: cfg.Snapshot.CropScale,
	}, log)

	srv := server.New(server.Options{
		Address:         cfg.Server.Address,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DetectTimeout:   cfg.Server.DetectTimeout,
		Codec: server.Codec{
			Travel:   cfg.Angle.Travel,
			Nudge:    cfg.Angle.Nudge,
			FoldLow:  cfg.Angle.FoldLow,
			FoldHigh: cfg.Angle.FoldHigh,
			FoldNeg:  cfg.Angle.FoldNeg,
		},
	}, svc, log)

	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("server failed to start")
		return 1
	}

	<-ctx.Done()
	log.Info().Msg("shutdown requested")
	srv.Stop()
	return 0
}

// frameSource builds the configured camera boundary. The latch is fed by
// the vendor driver; without one, a configured camera.dir is pumped into it
// so the latch semantics still apply.
func frameSource(ctx context.Context, cfg config.CameraConfig, log zerolog.Logger) (camera.FrameSource, error) {
	switch cfg.Source {
	case "dir":
		src, err := camera.NewDirSource(cfg.Dir)
		if err != nil {
			return nil, err
		}
		log.Info().Str("dir", cfg.Dir).Int("frames", src.Len()).Msg("replaying frames from directory")
		return src, nil
	default:
		latch := camera.NewLatch(cfg.FrameWait)
		if cfg.Dir == "" {
			log.Warn().Msg("no camera driver attached, detection will report no frame")
			return latch, nil
		}
		src, err := camera.NewDirSource(cfg.Dir)
		if err != nil {
			return nil, err
		}
		log.Info().Str("dir", cfg.Dir).Dur("interval", pumpInterval).Msg("pumping directory frames into latch")
		go camera.Pump(ctx, src, latch, pumpInterval)
		return latch, nil
	}
}

func pipelineOptions(d config.DetectionConfig) pipeline.Options {
	return pipeline.Options{
		MinArea:            d.MinArea,
		EpsilonFactor:      d.EpsilonFactor,
		BorderAspect:       d.BorderAspect,
		BorderAreaFraction: d.BorderAreaFraction,
		MaxCompactness:     d.MaxCompactness,
		MorphKernel:        d.MorphKernel,
		MedianKernel:       d.MedianKernel,
		Tolerances: detection.Tolerances{
			Side:        d.SideTolerance,
			Angle:       d.AngleTolerance,
			Parallel:    d.ParallelTolerance,
			Pair:        d.PairTolerance,
			Circularity: d.MinCircularity,
		},
	}
}

func palette(ranges []config.ColorRange) detection.Palette {
	p := make(detection.Palette, 0, len(ranges))
	for _, r := range ranges {
		p = append(p, detection.ColorBand{Name: r.Name, Lower: r.Lower, Upper: r.Upper})
	}
	return p
}
