package relocalize

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/matcher"
	"github.com/MeKo-Tech/wallsight/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequenceSource hands out frames in order, then reports ErrNoFrame.
type sequenceSource struct {
	mu     sync.Mutex
	frames []image.Image
	calls  int
}

func (s *sequenceSource) LatestFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.frames) == 0 {
		return nil, ErrNoFrame
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

type failingSource struct{ err error }

func (f failingSource) LatestFrame(context.Context) (image.Image, error) { return nil, f.err }

func targetFingerprint(t *testing.T) (image.Image, *features.Fingerprint) {
	t.Helper()
	img := testutil.GenerateTexturedImage(240, 180, 11)
	fp, ok := features.Extract(img)
	require.True(t, ok)
	return img, fp
}

func newTestScanner() *Scanner {
	return NewScanner(matcher.New(matcher.DefaultConfig(), nil), Config{Interval: 10 * time.Millisecond})
}

func TestScan_MatchesFirstFrame(t *testing.T) {
	img, fp := targetFingerprint(t)
	buf := &FrameBuffer{}
	buf.Put(img)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := newTestScanner().Scan(ctx, buf, fp)
	require.NoError(t, err)
	assert.True(t, out.Result.IsMatch)
	assert.Equal(t, 1, out.Attempts)
	assert.NotNil(t, out.Frame)
}

func TestScan_StopsAtFirstMatchingFrame(t *testing.T) {
	img, fp := targetFingerprint(t)
	src := &sequenceSource{frames: []image.Image{
		testutil.GenerateNoiseImage(240, 180, 1),
		testutil.GenerateNoiseImage(240, 180, 2),
		img,
		testutil.GenerateNoiseImage(240, 180, 3),
	}}

	var attempts []Attempt
	s := newTestScanner().OnAttempt(func(a Attempt) { attempts = append(attempts, a) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := s.Scan(ctx, src, fp)
	require.NoError(t, err)
	assert.True(t, out.Result.IsMatch)
	assert.Equal(t, 3, out.Attempts)
	require.Len(t, attempts, 3)
	assert.False(t, attempts[0].Result.IsMatch)
	assert.True(t, attempts[2].Result.IsMatch)
	assert.Len(t, src.frames, 1, "frames after the match must not be consumed")
}

// cancelAfterSource cancels the scan once it has been polled n times.
type cancelAfterSource struct {
	sequenceSource
	n      int
	cancel context.CancelFunc
}

func (s *cancelAfterSource) LatestFrame(ctx context.Context) (image.Image, error) {
	img, err := s.sequenceSource.LatestFrame(ctx)
	s.mu.Lock()
	if s.calls >= s.n {
		s.cancel()
	}
	s.mu.Unlock()
	return img, err
}

func TestScan_ContextCancelled(t *testing.T) {
	_, fp := targetFingerprint(t)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	src := &cancelAfterSource{
		sequenceSource: sequenceSource{frames: []image.Image{testutil.GenerateNoiseImage(240, 180, 5)}},
		n:              3,
		cancel:         cancel,
	}

	out, err := newTestScanner().Scan(ctx, src, fp)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, out.Result.IsMatch)
	assert.Equal(t, 1, out.Attempts)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.GreaterOrEqual(t, src.calls, 3, "source is polled again after a failed attempt")
}

func TestScan_DeadlineWithoutFrames(t *testing.T) {
	_, fp := targetFingerprint(t)
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	out, err := newTestScanner().Scan(ctx, &FrameBuffer{}, fp)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, out.Attempts)
}

func TestScan_EmptyFingerprint(t *testing.T) {
	_, err := newTestScanner().Scan(context.Background(), &FrameBuffer{}, &features.Fingerprint{})
	require.ErrorIs(t, err, ErrEmptyFingerprint)

	_, err = newTestScanner().Scan(context.Background(), &FrameBuffer{}, nil)
	require.ErrorIs(t, err, ErrEmptyFingerprint)
}

func TestScan_SourceError(t *testing.T) {
	_, fp := targetFingerprint(t)
	boom := errors.New("camera unplugged")

	_, err := newTestScanner().Scan(context.Background(), failingSource{err: boom}, fp)
	require.ErrorIs(t, err, boom)
}

func TestNewScanner_DefaultInterval(t *testing.T) {
	s := NewScanner(matcher.New(matcher.DefaultConfig(), nil), Config{})
	assert.Equal(t, DefaultInterval, s.Interval())
	assert.Equal(t, time.Second, DefaultConfig().Interval)
}

func TestFrameBuffer_HandsOutEachFrameOnce(t *testing.T) {
	buf := &FrameBuffer{}
	_, err := buf.LatestFrame(context.Background())
	require.ErrorIs(t, err, ErrNoFrame)

	a := testutil.GenerateNoiseImage(8, 8, 1)
	b := testutil.GenerateNoiseImage(8, 8, 2)
	buf.Put(a)
	buf.Put(b)
	assert.Equal(t, uint64(2), buf.Received())

	got, err := buf.LatestFrame(context.Background())
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = buf.LatestFrame(context.Background())
	require.ErrorIs(t, err, ErrNoFrame)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	buf.Put(a)
	_, err = buf.LatestFrame(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
