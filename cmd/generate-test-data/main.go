package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
	"github.com/MeKo-Tech/wallsight/internal/testutil"
)

const (
	targetWidth  = 320
	targetHeight = 240
	frameWidth   = 480
	frameHeight  = 360
)

// Fixture describes one generated frame and what matching it should yield.
type Fixture struct {
	Name        string         `json:"name"`
	Target      string         `json:"target"`
	Frame       string         `json:"frame"`
	ExpectMatch bool           `json:"expect_match"`
	Corners     *geometry.Quad `json:"corners,omitempty"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir  = flag.String("out", "", "Output directory (default: <project root>/testdata)")
		targets = flag.Int("targets", 3, "Number of wall targets to generate")
		frames  = flag.Int("frames", 4, "Perspective frames per target")
		seed    = flag.Uint64("seed", 1, "Base seed; the same seed reproduces the same data")
		help    = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic wall targets and camera frames for wallsight testing.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                       # Generate the default set\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -targets 10 -seed 7   # A larger, different set\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	dir := *outDir
	if dir == "" {
		root, err := testutil.GetProjectRoot()
		if err != nil {
			slog.Error("Failed to find project root", "error", err)
			os.Exit(1)
		}
		dir = filepath.Join(root, "testdata")
	}

	slog.Info("Starting test data generation", "dir", dir, "targets", *targets, "frames", *frames)

	g := generator{dir: dir, rng: rand.New(rand.NewPCG(*seed, *seed^0x5eed))} //nolint:gosec // G404: reproducible test data
	fixtures, err := g.run(*targets, *frames, *seed)
	if err != nil {
		slog.Error("Failed to generate test data", "error", err)
		os.Exit(1)
	}

	slog.Info("Test data generation completed", "fixtures", len(fixtures))
}

type generator struct {
	dir string
	rng *rand.Rand
}

func (g generator) run(targets, frames int, seed uint64) ([]Fixture, error) {
	for _, sub := range []string{"targets", "frames", "fixtures"} {
		if err := testutil.EnsureDir(filepath.Join(g.dir, sub)); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}

	var fixtures []Fixture
	for t := range targets {
		targetSeed := seed + uint64(t) //nolint:gosec // G115: loop index is non-negative
		target := testutil.GenerateTexturedImage(targetWidth, targetHeight, targetSeed)
		targetName := fmt.Sprintf("targets/wall_%d.png", targetSeed)
		if err := g.save(targetName, target); err != nil {
			return nil, err
		}

		for f := range frames {
			q := g.jitteredQuad()
			frame, err := g.composite(target, q, targetSeed*100+uint64(f)) //nolint:gosec // G115: loop index is non-negative
			if err != nil {
				return nil, fmt.Errorf("failed to render frame %d of target %d: %w", f, t, err)
			}
			fx := Fixture{
				Name:        fmt.Sprintf("wall_%d_frame_%d", targetSeed, f),
				Target:      targetName,
				Frame:       fmt.Sprintf("frames/wall_%d_%d.png", targetSeed, f),
				ExpectMatch: true,
				Corners:     &q,
			}
			if err := g.save(fx.Frame, frame); err != nil {
				return nil, err
			}
			fixtures = append(fixtures, fx)
		}

		noise := Fixture{
			Name:   fmt.Sprintf("wall_%d_noise", targetSeed),
			Target: targetName,
			Frame:  fmt.Sprintf("frames/noise_%d.png", targetSeed),
		}
		if err := g.save(noise.Frame, testutil.GenerateNoiseImage(frameWidth, frameHeight, targetSeed+1000)); err != nil {
			return nil, err
		}
		fixtures = append(fixtures, noise)
	}

	for _, fx := range fixtures {
		if err := g.saveFixture(fx); err != nil {
			return nil, fmt.Errorf("failed to save fixture '%s': %w", fx.Name, err)
		}
	}
	return fixtures, nil
}

// jitteredQuad returns a convex quad around the frame centre, each corner
// moved by up to 40 px to simulate an oblique camera.
func (g generator) jitteredQuad() geometry.Quad {
	base := geometry.Rect(80, 60, frameWidth-160, frameHeight-120)
	for {
		var q geometry.Quad
		for i, p := range base {
			q[i] = geometry.Pt(p.X+g.rng.Float64()*80-40, p.Y+g.rng.Float64()*80-40)
		}
		if geometry.Validate(q) == nil {
			return q
		}
	}
}

// composite projects target onto q over a noise background.
func (g generator) composite(target image.Image, q geometry.Quad, seed uint64) (*image.RGBA, error) {
	fg, err := rectify.Project(target, q, frameWidth, frameHeight)
	if err != nil {
		return nil, err
	}
	bg := imaging.Blur(testutil.GenerateNoiseImage(frameWidth, frameHeight, seed), 2)
	out := image.NewRGBA(bg.Bounds())
	draw.Draw(out, out.Bounds(), bg, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), fg, image.Point{}, draw.Over)
	return out, nil
}

func (g generator) save(name string, img image.Image) error {
	path := filepath.Join(g.dir, name)
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	slog.Debug("wrote image", "path", path)
	return nil
}

func (g generator) saveFixture(fx Fixture) error {
	data, err := json.MarshalIndent(fx, "", "  ")
	if err != nil {
		return err
	}
	filename := filepath.Join(g.dir, "fixtures", fx.Name+".json")
	return os.WriteFile(filename, data, 0o600)
}
