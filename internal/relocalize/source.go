package relocalize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MeKo-Tech/wallsight/internal/utils"
)

// ErrNoFrame is returned by a FrameSource that has nothing new to offer.
// Scanner treats it as "try again on the next tick".
var ErrNoFrame = errors.New("no new frame available")

// FrameSource supplies the most recent camera frame.
type FrameSource interface {
	LatestFrame(ctx context.Context) (image.Image, error)
}

// FrameBuffer is a FrameSource fed by a producer such as a websocket
// connection. Only the newest frame is kept and each frame is handed out once.
type FrameBuffer struct {
	mu    sync.Mutex
	frame image.Image
	seq   uint64
}

// Put replaces the pending frame.
func (b *FrameBuffer) Put(img image.Image) {
	b.mu.Lock()
	b.frame = img
	b.seq++
	b.mu.Unlock()
}

// Received reports how many frames have been put so far.
func (b *FrameBuffer) Received() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// LatestFrame implements FrameSource.
func (b *FrameBuffer) LatestFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return nil, ErrNoFrame
	}
	img := b.frame
	b.frame = nil
	return img, nil
}

// DirSource serves the newest supported image file in a directory. A file is
// served once; until a newer one appears LatestFrame returns ErrNoFrame.
type DirSource struct {
	dir string

	mu      sync.Mutex
	last    string
	lastMod time.Time
}

// NewDirSource creates a DirSource watching dir.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("frame directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("frame directory: %s is not a directory", dir)
	}
	return &DirSource{dir: dir}, nil
}

// Dir returns the watched directory.
func (s *DirSource) Dir() string { return s.dir }

// LatestFrame implements FrameSource.
func (s *DirSource) LatestFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, mod, err := newestImage(s.dir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" || (path == s.last && !mod.After(s.lastMod)) {
		return nil, ErrNoFrame
	}
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("load frame %s: %w", path, err)
	}
	s.last, s.lastMod = path, mod
	return img, nil
}

// newestImage returns the most recently modified supported image in dir.
// Ties are broken by name so the choice is stable.
func newestImage(dir string) (string, time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read frame directory: %w", err)
	}
	var (
		best    string
		bestMod time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !utils.IsSupportedImage(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		mod := info.ModTime()
		if best == "" || mod.After(bestMod) || (mod.Equal(bestMod) && e.Name() > filepath.Base(best)) {
			best, bestMod = filepath.Join(dir, e.Name()), mod
		}
	}
	return best, bestMod, nil
}
