package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/wallsight/internal/calibration"
	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/project"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
	"github.com/MeKo-Tech/wallsight/internal/utils"
)

// projectCmd groups the project store commands.
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage stored wall projects",
	Long: `Create, list, show and delete stored projects. A project keeps the
picked quad, the fingerprint of the rectified target, the calibration
orientation and a preview of the target.

The store backend and location come from the store section of the
configuration or the global --store-backend and --store-path flags.`,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create IMAGE",
	Short: "Rectify, fingerprint and store a new project",
	Example: `  wallsight project create wall.jpg --name kitchen --quad "50,50;150,50;150,150;50,150"
  wallsight project create wall.jpg --name hall --quad "..." --calibration samples.json`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		name, _ := cmd.Flags().GetString("name")
		quadRaw, _ := cmd.Flags().GetString("quad")
		normalized, _ := cmd.Flags().GetBool("normalized")
		calibPath, _ := cmd.Flags().GetString("calibration")

		if strings.TrimSpace(name) == "" {
			return errors.New("--name is required")
		}

		var calib *calibration.Quaternion
		if calibPath != "" {
			data, err := os.ReadFile(calibPath) //nolint:gosec // G304: user-provided samples path
			if err != nil {
				return fmt.Errorf("failed to read calibration: %w", err)
			}
			samples, err := parseSamples(data)
			if err != nil {
				return err
			}
			if len(samples) == 0 {
				return errors.New("calibration file has no samples")
			}
			avg := calibration.Average(samples)
			calib = &avg
		}

		img, err := loadImage(args[0])
		if err != nil {
			return err
		}
		q, err := quadFromFlag(quadRaw, normalized, img)
		if err != nil {
			return err
		}
		out, err := rectify.New(cfg.ToRectifyConfig()).WithLogger(slog.Default()).Apply(img, q)
		if err != nil {
			return describeError(err)
		}
		fp, ok := features.NewExtractor(features.NewORB(cfg.ToORBConfig())).Extract(out.Image)
		if !ok {
			return errors.New("no trackable features found; point the camera at a more detailed surface")
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		b := img.Bounds()
		p := &project.Project{
			Name:         name,
			Quad:         q,
			SourceWidth:  b.Dx(),
			SourceHeight: b.Dy(),
			Fingerprint:  fp,
			Calibration:  calib,
			Target:       out.Image,
		}
		if err := store.Save(cmd.Context(), p); err != nil {
			return err
		}
		slog.Info("project created", "id", p.ID, "name", p.Name, "keypoints", fp.Len())
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), p.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List stored projects",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		store, err := openStore(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		projects, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if format == outputFormatJSON {
			if projects == nil {
				projects = []*project.Project{}
			}
			return printJSON(cmd.OutOrStdout(), projects)
		}

		if len(projects) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no projects")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tKEYPOINTS\tCREATED")
		for _, p := range projects {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Fingerprint.Len(), p.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var projectShowCmd = &cobra.Command{
	Use:          "show ID",
	Short:        "Show one stored project",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		store, err := openStore(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		p, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return describeError(err)
		}
		if format == outputFormatJSON {
			return printJSON(cmd.OutOrStdout(), p)
		}

		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "id:        %s\n", p.ID)
		_, _ = fmt.Fprintf(w, "name:      %s\n", p.Name)
		_, _ = fmt.Fprintf(w, "quad:      %s\n", p.Quad.String())
		_, _ = fmt.Fprintf(w, "source:    %dx%d\n", p.SourceWidth, p.SourceHeight)
		if p.Fingerprint != nil {
			_, _ = fmt.Fprintf(w, "target:    %dx%d\n", p.Fingerprint.Width, p.Fingerprint.Height)
		}
		_, _ = fmt.Fprintf(w, "keypoints: %d\n", p.Fingerprint.Len())
		if c := p.Calibration; c != nil {
			_, _ = fmt.Fprintf(w, "calib:     x=%.6f y=%.6f z=%.6f w=%.6f\n", c.X, c.Y, c.Z, c.W)
		}
		_, _ = fmt.Fprintf(w, "created:   %s\n", p.CreatedAt.Format(time.RFC3339))
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:          "delete ID",
	Short:        "Delete a stored project",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return describeError(err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var projectTargetCmd = &cobra.Command{
	Use:          "target ID",
	Short:        "Export the rectified target image of a project",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return errors.New("--output is required")
		}
		store, err := openStore(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		p, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return describeError(err)
		}
		if p.Target == nil {
			return fmt.Errorf("project %s has no stored target image", p.ID)
		}
		return utils.SaveImage(output, p.Target)
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectShowCmd, projectDeleteCmd, projectTargetCmd)

	projectCreateCmd.Flags().String("name", "", "project name")
	projectCreateCmd.Flags().StringP("quad", "q", "", "target corners x1,y1;x2,y2;x3,y3;x4,y4 (default: whole image)")
	projectCreateCmd.Flags().Bool("normalized", false, "corners are fractions of the image size")
	projectCreateCmd.Flags().String("calibration", "", "file with orientation samples to average")

	projectListCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	projectShowCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	projectTargetCmd.Flags().StringP("output", "o", "", "output PNG file")
}
