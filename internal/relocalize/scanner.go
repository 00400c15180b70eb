// Package relocalize finds a previously fingerprinted wall again in live
// camera frames. Scanner polls a FrameSource until one frame matches;
// MatchAny matches a single frame against many stored fingerprints.
package relocalize

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/matcher"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = time.Second

// ErrEmptyFingerprint is returned when scanning for a fingerprint that can
// never match.
var ErrEmptyFingerprint = errors.New("fingerprint has no descriptors")

// Config controls the scanning loop.
type Config struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// DefaultConfig returns the default scanning configuration.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval}
}

// Attempt describes one finished match attempt.
type Attempt struct {
	Number  int
	Result  matcher.Result
	Elapsed time.Duration
}

// Outcome is the result of a completed scan.
type Outcome struct {
	Result   matcher.Result
	Frame    image.Image
	Attempts int
	Skipped  int
	Elapsed  time.Duration
}

// Scanner repeatedly matches the latest frame against a stored fingerprint.
type Scanner struct {
	matcher   *matcher.Matcher
	interval  time.Duration
	logger    *slog.Logger
	onAttempt func(Attempt)
}

// NewScanner creates a Scanner. A non-positive interval selects DefaultInterval.
func NewScanner(m *matcher.Matcher, cfg Config) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scanner{matcher: m, interval: cfg.Interval, logger: slog.Default()}
}

// WithLogger sets the logger used for scan diagnostics.
func (s *Scanner) WithLogger(l *slog.Logger) *Scanner {
	if l != nil {
		s.logger = l
	}
	return s
}

// OnAttempt registers fn to be called after every finished attempt, from the
// scanning goroutine.
func (s *Scanner) OnAttempt(fn func(Attempt)) *Scanner {
	s.onAttempt = fn
	return s
}

// Interval returns the polling period.
func (s *Scanner) Interval() time.Duration { return s.interval }

type attemptDone struct {
	frame image.Image
	res   matcher.Result
	err   error
}

// Scan polls src once per interval, starting immediately. Ticks that arrive
// while a match is still running are skipped. Scan returns as soon as a frame
// matches, or with ctx.Err() once ctx is done.
func (s *Scanner) Scan(ctx context.Context, src FrameSource, stored *features.Fingerprint) (Outcome, error) {
	if stored.IsEmpty() {
		return Outcome{}, ErrEmptyFingerprint
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start := time.Now()
	done := make(chan attemptDone, 1)
	var (
		out      Outcome
		inFlight bool
	)

	tick := func() error {
		if inFlight {
			out.Skipped++
			return nil
		}
		frame, err := src.LatestFrame(scanCtx)
		switch {
		case errors.Is(err, ErrNoFrame):
			return nil
		case err != nil:
			return err
		}
		inFlight = true
		out.Attempts++
		go func() {
			res, err := s.matcher.MatchContext(scanCtx, frame, stored)
			done <- attemptDone{frame: frame, res: res, err: err}
		}()
		return nil
	}

	if err := tick(); err != nil && ctx.Err() == nil {
		return out, err
	}

	for {
		select {
		case <-ctx.Done():
			out.Elapsed = time.Since(start)
			return out, ctx.Err()

		case <-ticker.C:
			if err := tick(); err != nil {
				if ctx.Err() != nil {
					continue
				}
				out.Elapsed = time.Since(start)
				return out, err
			}

		case d := <-done:
			inFlight = false
			if d.err != nil {
				continue
			}
			elapsed := time.Since(start)
			s.logger.Debug("relocalize attempt",
				"attempt", out.Attempts,
				"inliers", d.res.InlierCount,
				"candidates", d.res.Candidates,
				"match", d.res.IsMatch)
			if s.onAttempt != nil {
				s.onAttempt(Attempt{Number: out.Attempts, Result: d.res, Elapsed: elapsed})
			}
			if d.res.IsMatch {
				out.Result = d.res
				out.Frame = d.frame
				out.Elapsed = elapsed
				s.logger.Info("target relocalized",
					"attempts", out.Attempts,
					"skipped", out.Skipped,
					"inliers", d.res.InlierCount,
					"elapsed", elapsed.Round(time.Millisecond))
				return out, nil
			}
		}
	}
}
