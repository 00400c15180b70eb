package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/matcher"
	"github.com/MeKo-Tech/wallsight/internal/relocalize"
)

// scanOutput is the JSON form of a finished scan.
type scanOutput struct {
	matcher.Result
	ProjectID string         `json:"project_id,omitempty"`
	Attempts  int            `json:"attempts"`
	Skipped   int            `json:"skipped"`
	ElapsedMS int64          `json:"elapsed_ms"`
	Corners   *geometry.Quad `json:"corners,omitempty"`
}

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan DIR",
	Short: "Watch a frame directory until the target is found",
	Long: `Relocalize a target by polling a directory of camera frames. On every
tick the newest image file in DIR is matched against the fingerprint; ticks
that arrive while a match is still running are skipped. The command stops
at the first match, on --timeout, or on Ctrl-C.

Examples:
  wallsight scan ./frames --project 0f8c...
  wallsight scan ./frames --fingerprint target.fp.json --interval 500ms --timeout 30s`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		fpPath, _ := cmd.Flags().GetString("fingerprint")
		projectID, _ := cmd.Flags().GetString("project")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		format, _ := cmd.Flags().GetString("format")
		overlay, _ := cmd.Flags().GetString("overlay")

		if (fpPath == "") == (projectID == "") {
			return errors.New("exactly one of --fingerprint or --project is required")
		}

		src, err := relocalize.NewDirSource(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		var stored *features.Fingerprint
		if fpPath != "" {
			if stored, err = readFingerprint(fpPath); err != nil {
				return err
			}
		} else {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			p, err := store.Get(ctx, projectID)
			_ = store.Close()
			if err != nil {
				return describeError(err)
			}
			stored = p.Fingerprint
		}

		m := matcher.New(cfg.Matcher, features.NewORB(cfg.ToORBConfig())).WithLogger(slog.Default())
		scanner := relocalize.NewScanner(m, cfg.ToScannerConfig()).
			WithLogger(slog.Default()).
			OnAttempt(func(a relocalize.Attempt) {
				slog.Info("scan attempt", "attempt", a.Number, "inliers", a.Result.InlierCount,
					"match", a.Result.IsMatch)
			})

		slog.Info("scanning for target", "dir", src.Dir(), "interval", scanner.Interval())
		outcome, err := scanner.Scan(ctx, src, stored)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("target not found within %s (%d attempts)", timeout, outcome.Attempts)
			}
			if errors.Is(err, context.Canceled) {
				return fmt.Errorf("scan interrupted after %d attempts", outcome.Attempts)
			}
			return err
		}

		out := scanOutput{
			Result:    outcome.Result,
			ProjectID: projectID,
			Attempts:  outcome.Attempts,
			Skipped:   outcome.Skipped,
			ElapsedMS: outcome.Elapsed.Milliseconds(),
		}
		corners, hasCorners := outcome.Result.TargetCorners(stored)
		if hasCorners {
			out.Corners = &corners
			if overlay != "" {
				if err := writeOverlay(overlay, outcome.Frame, corners); err != nil {
					return err
				}
			}
		}

		if format == outputFormatJSON {
			return printJSON(cmd.OutOrStdout(), out)
		}
		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "found after %d attempts in %s: %d inliers\n",
			out.Attempts, outcome.Elapsed.Round(time.Millisecond), out.InlierCount)
		if hasCorners {
			_, _ = fmt.Fprintf(w, "corners: %s\n", corners.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("fingerprint", "", "fingerprint file (json, yaml or binary)")
	scanCmd.Flags().String("project", "", "stored project ID")
	scanCmd.Flags().Duration("interval", relocalize.DefaultInterval, "polling interval")
	scanCmd.Flags().Duration("timeout", 0, "give up after this long (0 = wait until interrupted)")
	scanCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	scanCmd.Flags().String("overlay", "", "write the matching frame with the target outline to this PNG")

	_ = viper.BindPFlag("relocalize.interval", scanCmd.Flags().Lookup("interval"))
}
