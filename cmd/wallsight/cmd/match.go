package cmd

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/matcher"
	"github.com/MeKo-Tech/wallsight/internal/project"
	"github.com/MeKo-Tech/wallsight/internal/relocalize"
	"github.com/MeKo-Tech/wallsight/internal/utils"
)

// matchOutput is the JSON form of a match result.
type matchOutput struct {
	matcher.Result
	Frame     string         `json:"frame"`
	ProjectID string         `json:"project_id,omitempty"`
	Corners   *geometry.Quad `json:"corners,omitempty"`
}

// matchCmd represents the match command.
var matchCmd = &cobra.Command{
	Use:   "match FRAME",
	Short: "Check whether a camera frame shows a fingerprinted target",
	Long: `Match a camera frame against a fingerprint file, a stored project, or
every stored project. A non-match is a normal result: the command prints it
and exits with status 0.

Examples:
  wallsight match frame.jpg --fingerprint target.fp.json
  wallsight match frame.jpg --project 0f8c... --format json
  wallsight match frame.jpg --all --overlay found.png`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		fpPath, _ := cmd.Flags().GetString("fingerprint")
		projectID, _ := cmd.Flags().GetString("project")
		all, _ := cmd.Flags().GetBool("all")
		format, _ := cmd.Flags().GetString("format")
		overlay, _ := cmd.Flags().GetString("overlay")

		sources := 0
		for _, set := range []bool{fpPath != "", projectID != "", all} {
			if set {
				sources++
			}
		}
		if sources != 1 {
			return errors.New("exactly one of --fingerprint, --project or --all is required")
		}
		if err := cfg.Matcher.Validate(); err != nil {
			return fmt.Errorf("invalid matcher settings: %w", err)
		}

		frame, err := loadImage(args[0])
		if err != nil {
			return err
		}

		m := matcher.New(cfg.Matcher, features.NewORB(cfg.ToORBConfig())).WithLogger(slog.Default())
		ctx := cmd.Context()

		out := matchOutput{Frame: args[0]}
		var stored *features.Fingerprint
		start := time.Now()

		switch {
		case fpPath != "":
			if stored, err = readFingerprint(fpPath); err != nil {
				return err
			}
			out.Result = m.Match(frame, stored)

		case projectID != "":
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			p, err := store.Get(ctx, projectID)
			if err != nil {
				return describeError(err)
			}
			stored = p.Fingerprint
			out.ProjectID = p.ID
			out.Result = m.Match(frame, stored)

		default:
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			projects, err := store.List(ctx)
			if err != nil {
				return err
			}
			candidates := project.Fingerprints(projects)
			pcfg := cfg.ToParallelConfig()
			pcfg.ProgressCallback = relocalize.NewLogProgressCallback(slog.Default(), slog.LevelDebug, "match")
			best, found, err := relocalize.MatchAny(ctx, m, frame, candidates, pcfg)
			if err != nil {
				return err
			}
			out.Result = best.Result
			if found {
				out.ProjectID = best.ID
				stored = candidates[best.ID]
			}
		}

		slog.Debug("match finished", "is_match", out.IsMatch, "inliers", out.InlierCount,
			"elapsed", time.Since(start).Round(time.Millisecond))

		if corners, ok := out.TargetCorners(stored); ok {
			out.Corners = &corners
		}
		if overlay != "" && out.Corners != nil {
			if err := writeOverlay(overlay, frame, *out.Corners); err != nil {
				return err
			}
		}

		if format == outputFormatJSON {
			return printJSON(cmd.OutOrStdout(), out)
		}
		w := cmd.OutOrStdout()
		if !out.IsMatch {
			_, _ = fmt.Fprintf(w, "no match (%d inliers, %d candidates)\n", out.InlierCount, out.Candidates)
			return nil
		}
		_, _ = fmt.Fprintf(w, "match: %d inliers of %d candidates\n", out.InlierCount, out.Candidates)
		if out.ProjectID != "" {
			_, _ = fmt.Fprintf(w, "project: %s\n", out.ProjectID)
		}
		if out.Corners != nil {
			_, _ = fmt.Fprintf(w, "corners: %s\n", out.Corners.String())
		}
		return nil
	},
}

// writeOverlay draws the projected target outline onto a copy of frame.
func writeOverlay(path string, frame image.Image, corners geometry.Quad) error {
	b := frame.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), frame, b.Min, draw.Src)
	utils.DrawPolygon(canvas, corners.Points(), color.RGBA{0, 255, 0, 255}, 3)
	if err := utils.SaveImage(path, canvas); err != nil {
		return fmt.Errorf("failed to write overlay: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("fingerprint", "", "fingerprint file (json, yaml or binary)")
	matchCmd.Flags().String("project", "", "stored project ID")
	matchCmd.Flags().Bool("all", false, "match against every stored project")
	matchCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	matchCmd.Flags().String("overlay", "", "write the frame with the found target outline to this PNG")
	matchCmd.Flags().Int("min-inliers", 10, "minimum RANSAC inliers for a match")
	matchCmd.Flags().Float64("ratio", 0.75, "Lowe ratio test threshold")

	_ = viper.BindPFlag("matcher.min_inliers", matchCmd.Flags().Lookup("min-inliers"))
	_ = viper.BindPFlag("matcher.ratio_threshold", matchCmd.Flags().Lookup("ratio"))
}
