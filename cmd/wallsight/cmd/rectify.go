package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/wallsight/internal/rectify"
	"github.com/MeKo-Tech/wallsight/internal/utils"
)

// rectifyCmd represents the rectify command.
var rectifyCmd = &cobra.Command{
	Use:   "rectify IMAGE",
	Short: "Warp a quadrilateral image region into a flat rectangle",
	Long: `Rectify the four-corner region of an image into a fronto-parallel
rectangle. Corners are given as "x1,y1;x2,y2;x3,y3;x4,y4" in the order
top-left, top-right, bottom-right, bottom-left, either in pixels or, with
--normalized, as fractions of the image size.

The output measures the bounding dimensions of the quad, rounded up.

Examples:
  wallsight rectify wall.jpg --quad "50,50;150,50;150,150;50,150" -o target.png
  wallsight rectify wall.jpg --quad "0.1,0.1;0.9,0.12;0.88,0.9;0.1,0.92" --normalized -o target.png`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		quadRaw, _ := cmd.Flags().GetString("quad")
		normalized, _ := cmd.Flags().GetBool("normalized")
		output, _ := cmd.Flags().GetString("output")

		if quadRaw == "" {
			return errors.New("--quad is required")
		}
		if output == "" {
			return errors.New("--output is required")
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

		var buf bytes.Buffer
		if err := utils.EncodePNG(&buf, out.Image); err != nil {
			return err
		}
		if err := writeOutput(cmd.OutOrStdout(), output, buf.Bytes()); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "rectified %dx%d -> %s\n", out.Width, out.Height, output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rectifyCmd)

	rectifyCmd.Flags().StringP("quad", "q", "", "corners as x1,y1;x2,y2;x3,y3;x4,y4 (TL, TR, BR, BL)")
	rectifyCmd.Flags().Bool("normalized", false, "corners are fractions of the image size")
	rectifyCmd.Flags().StringP("output", "o", "", "output PNG file")
	rectifyCmd.Flags().Int("max-side", 0, "cap the longer output side in pixels (0 = no cap)")
	rectifyCmd.Flags().String("debug-dir", "", "directory to write overlay and compare images")

	_ = viper.BindPFlag("rectify.max_output_side", rectifyCmd.Flags().Lookup("max-side"))
	_ = viper.BindPFlag("rectify.debug_dir", rectifyCmd.Flags().Lookup("debug-dir"))
}
