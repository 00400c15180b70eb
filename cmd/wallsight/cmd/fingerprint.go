package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
)

// fingerprintCmd represents the fingerprint command.
var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint IMAGE",
	Short: "Extract a feature fingerprint from a target image",
	Long: `Detect ORB keypoints and descriptors in an image and write them as a
fingerprint. With --quad the region is rectified first.

The output format follows --format or the output file extension
(.json, .yaml/.yml, .bin).

Examples:
  wallsight fingerprint target.png -o target.fp.json
  wallsight fingerprint wall.jpg --quad "50,50;150,50;150,150;50,150" -o target.bin`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		quadRaw, _ := cmd.Flags().GetString("quad")
		normalized, _ := cmd.Flags().GetBool("normalized")
		output, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")

		orbCfg := cfg.ToORBConfig()
		if err := orbCfg.Validate(); err != nil {
			return fmt.Errorf("invalid feature settings: %w", err)
		}

		img, err := loadImage(args[0])
		if err != nil {
			return err
		}
		if quadRaw != "" {
			q, err := quadFromFlag(quadRaw, normalized, img)
			if err != nil {
				return err
			}
			out, err := rectify.New(cfg.ToRectifyConfig()).WithLogger(slog.Default()).Apply(img, q)
			if err != nil {
				return describeError(err)
			}
			img = out.Image
		}

		fp, ok := features.NewExtractor(features.NewORB(orbCfg)).Extract(img)
		if !ok {
			return errors.New("no trackable features found; point the camera at a more detailed surface")
		}
		slog.Debug("fingerprint extracted", "keypoints", fp.Len(), "width", fp.Width, "height", fp.Height)

		data, err := encodeFingerprint(fp, fingerprintFormat(format, output))
		if err != nil {
			return err
		}
		if err := writeOutput(cmd.OutOrStdout(), output, data); err != nil {
			return err
		}
		if output != "" {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "fingerprint with %d keypoints -> %s\n", fp.Len(), output)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().StringP("quad", "q", "", "rectify this region first (x1,y1;x2,y2;x3,y3;x4,y4)")
	fingerprintCmd.Flags().Bool("normalized", false, "corners are fractions of the image size")
	fingerprintCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	fingerprintCmd.Flags().StringP("format", "f", "", "output format (json, yaml, binary)")
	fingerprintCmd.Flags().Int("max-features", 500, "maximum number of keypoints")
	fingerprintCmd.Flags().Int("fast-threshold", 20, "FAST corner intensity threshold")

	_ = viper.BindPFlag("features.max_features", fingerprintCmd.Flags().Lookup("max-features"))
	_ = viper.BindPFlag("features.fast_threshold", fingerprintCmd.Flags().Lookup("fast-threshold"))
}
