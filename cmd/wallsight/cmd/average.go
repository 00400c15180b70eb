package cmd

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/wallsight/internal/calibration"
)

// averageOutput is the JSON form of an averaged calibration.
type averageOutput struct {
	Average   calibration.Quaternion `json:"average"`
	Count     int                    `json:"count"`
	SpreadRad float64                `json:"spread_rad"`
	SpreadDeg float64                `json:"spread_deg"`
}

// averageCmd represents the average command.
var averageCmd = &cobra.Command{
	Use:   "average [FILE]",
	Short: "Average device orientation samples into one calibration quaternion",
	Long: `Average quaternion samples captured while the user holds the device
still. The input is a JSON or YAML list of {x, y, z, w} objects, or an object
with a "samples" list, read from FILE or stdin.

Samples are flipped into one hemisphere before averaging, so q and -q count
as the same orientation. The spread is the largest angle between a sample
and the average.

Examples:
  wallsight average samples.json
  cat samples.yaml | wallsight average --format json`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		maxSpread, _ := cmd.Flags().GetFloat64("max-spread")

		var (
			data []byte
			err  error
		)
		if len(args) == 0 || args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0]) //nolint:gosec // G304: user-provided samples path
		}
		if err != nil {
			return fmt.Errorf("failed to read samples: %w", err)
		}

		samples, err := parseSamples(data)
		if err != nil {
			return err
		}

		avg := calibration.Average(samples)
		spread := calibration.Spread(samples, avg)
		out := averageOutput{
			Average:   avg,
			Count:     len(samples),
			SpreadRad: spread,
			SpreadDeg: spread * 180 / math.Pi,
		}

		if format == outputFormatJSON {
			err = printJSON(cmd.OutOrStdout(), out)
		} else {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "average: x=%.6f y=%.6f z=%.6f w=%.6f\nsamples: %d\nspread: %.2f deg\n",
				avg.X, avg.Y, avg.Z, avg.W, out.Count, out.SpreadDeg)
		}
		if err != nil {
			return err
		}

		if maxSpread > 0 && out.SpreadDeg > maxSpread {
			return fmt.Errorf("calibration too jittery: spread %.2f deg exceeds %.2f deg; hold the device still and retry",
				out.SpreadDeg, maxSpread)
		}
		return nil
	},
}

// parseSamples accepts a list of quaternions or {"samples": [...]}, in JSON
// or YAML.
func parseSamples(data []byte) ([]calibration.Quaternion, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("no samples given")
	}

	var list []calibration.Quaternion
	if err := yaml.Unmarshal([]byte(trimmed), &list); err != nil {
		var wrapped struct {
			Samples []calibration.Quaternion `yaml:"samples"`
		}
		if err := yaml.Unmarshal([]byte(trimmed), &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse samples: %w", err)
		}
		list = wrapped.Samples
	}
	if len(list) == 0 {
		return nil, errors.New("no samples given")
	}
	return list, nil
}

func init() {
	rootCmd.AddCommand(averageCmd)

	averageCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	averageCmd.Flags().Float64("max-spread", 0, "fail when the spread exceeds this many degrees (0 = off)")
}
