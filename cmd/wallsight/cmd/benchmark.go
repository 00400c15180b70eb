package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/wallsight/internal/benchmark"
	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/matcher"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
)

// benchmarkCmd represents the benchmark command.
var benchmarkCmd = &cobra.Command{
	Use:   "benchmark IMAGE",
	Short: "Time each pipeline stage on an image",
	Long: `Run rectification, fingerprint extraction, frame detection, matching and
calibration averaging repeatedly and report per-stage timings.

The target is cut from IMAGE with --quad (whole image by default) and
matched against --frame, or against IMAGE itself when no frame is given.

Examples:
  wallsight benchmark wall.jpg --iterations 20
  wallsight benchmark wall.jpg --quad "50,50;150,50;150,150;50,150" --frame photo.jpg --format json`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		quadRaw, _ := cmd.Flags().GetString("quad")
		normalized, _ := cmd.Flags().GetBool("normalized")
		framePath, _ := cmd.Flags().GetString("frame")
		iterations, _ := cmd.Flags().GetInt("iterations")
		stage, _ := cmd.Flags().GetString("stage")
		format, _ := cmd.Flags().GetString("format")

		if iterations <= 0 {
			return errors.New("--iterations must be positive")
		}
		if err := cfg.Matcher.Validate(); err != nil {
			return fmt.Errorf("invalid matcher settings: %w", err)
		}

		img, err := loadImage(args[0])
		if err != nil {
			return err
		}
		q, err := quadFromFlag(quadRaw, normalized, img)
		if err != nil {
			return err
		}
		p := benchmark.Pipeline{Image: img, Quad: q}
		if framePath != "" {
			if p.Frame, err = loadImage(framePath); err != nil {
				return err
			}
		}
		orb := features.NewORB(cfg.ToORBConfig())
		p.Rectifier = rectify.New(cfg.ToRectifyConfig())
		p.Extractor = features.NewExtractor(orb)
		p.Matcher = matcher.New(cfg.Matcher, orb)

		suite, err := benchmark.NewPipelineSuite(p)
		if err != nil {
			return describeError(err)
		}

		slog.Debug("running benchmarks", "image", args[0], "iterations", iterations, "stage", stage)
		var results []benchmark.Result
		if stage != "" {
			results = []benchmark.Result{suite.Run(cmd.Context(), stage, iterations)}
		} else {
			results = suite.RunAll(cmd.Context(), iterations)
		}

		if format == outputFormatJSON {
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
		} else if err := benchmark.Print(cmd.OutOrStdout(), results); err != nil {
			return err
		}

		for _, r := range results {
			if r.Err != nil {
				return fmt.Errorf("benchmark %s failed: %w", r.Name, r.Err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().StringP("quad", "q", "", "target corners as x1,y1;x2,y2;x3,y3;x4,y4 (default: whole image)")
	benchmarkCmd.Flags().Bool("normalized", false, "corners are fractions of the image size")
	benchmarkCmd.Flags().String("frame", "", "frame image to match against (default: IMAGE)")
	benchmarkCmd.Flags().IntP("iterations", "n", 10, "iterations per stage")
	benchmarkCmd.Flags().String("stage", "", "run only this stage (rectify, extract, detect_frame, match, average)")
	benchmarkCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
}
