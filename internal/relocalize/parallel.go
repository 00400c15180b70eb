package relocalize

import (
	"context"
	"errors"
	"image"
	"runtime"
	"slices"
	"sync"

	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/matcher"
)

// ParallelConfig holds configuration for matching one frame against many
// fingerprints.
type ParallelConfig struct {
	MaxWorkers       int              // Number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback // Optional progress reporting
}

// DefaultParallelConfig returns sensible defaults for parallel matching.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxWorkers:       runtime.NumCPU(),
		ProgressCallback: nil,
	}
}

// CandidateResult is the outcome of matching against one stored fingerprint.
type CandidateResult struct {
	ID     string         `json:"id"`
	Result matcher.Result `json:"result"`
}

// matchJob represents a single fingerprint to match against.
type matchJob struct {
	index int
	id    string
	fp    *features.Fingerprint
}

// matchOutcome represents the result of one job.
type matchOutcome struct {
	index  int
	result matcher.Result
	err    error
}

// MatchAny detects features in frame once and matches them against every
// candidate using a worker pool. It returns the match with the most inliers;
// found is false when no candidate matched. Ties go to the smaller ID.
func MatchAny(
	ctx context.Context,
	m *matcher.Matcher,
	frame image.Image,
	candidates map[string]*features.Fingerprint,
	config ParallelConfig,
) (best CandidateResult, found bool, err error) {
	results, err := MatchAll(ctx, m, frame, candidates, config)
	if err != nil {
		return CandidateResult{}, false, err
	}
	for _, r := range results {
		if !r.Result.IsMatch {
			continue
		}
		if !found || r.Result.InlierCount > best.Result.InlierCount {
			best, found = r, true
		}
	}
	return best, found, nil
}

// MatchAll matches frame against every candidate and returns the results
// ordered by ID.
func MatchAll(
	ctx context.Context,
	m *matcher.Matcher,
	frame image.Image,
	candidates map[string]*features.Fingerprint,
	config ParallelConfig,
) ([]CandidateResult, error) {
	if m == nil {
		return nil, errors.New("matcher not initialized")
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	progress := config.ProgressCallback
	if progress == nil {
		progress = NoOpProgressCallback{}
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	frameFeatures := m.DetectFrame(frame)

	progress.OnStart(len(ids))
	defer progress.OnComplete()

	jobs := make(chan matchJob, len(ids))
	results := make(chan matchOutcome, len(ids))

	var wg sync.WaitGroup
	for range min(config.MaxWorkers, len(ids)) {
		wg.Add(1)
		go worker(ctx, m, frameFeatures, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for i, id := range ids {
			select {
			case jobs <- matchJob{index: i, id: id, fp: candidates[id]}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]CandidateResult, len(ids))
	processed := 0
	var firstErr error
	for r := range results {
		processed++
		progress.OnProgress(processed, len(ids))
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		ordered[r.index] = CandidateResult{ID: ids[r.index], Result: r.result}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return ordered, nil
}

// worker matches fingerprints from the jobs channel.
func worker(
	ctx context.Context,
	m *matcher.Matcher,
	frame features.Features,
	jobs <-chan matchJob,
	results chan<- matchOutcome,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return // Channel closed
			}
			res, err := m.MatchFeatures(ctx, frame, job.fp)
			select {
			case results <- matchOutcome{index: job.index, result: res, err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
