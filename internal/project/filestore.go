package project

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/utils"
)

const (
	manifestFile    = "project.yaml"
	fingerprintFile = "fingerprint.bin"
	targetFile      = "target.png"
)

// FileStore keeps one directory per project under a root directory.
type FileStore struct {
	root   string
	mu     sync.RWMutex
	logger *slog.Logger
	now    func() time.Time
}

// NewFileStore creates the root directory if needed and returns a store on it.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create project directory: %w", err)
	}
	return &FileStore{root: root, logger: slog.Default(), now: time.Now}, nil
}

// WithLogger sets the logger used to report unreadable project directories.
func (s *FileStore) WithLogger(l *slog.Logger) *FileStore {
	if l != nil {
		s.logger = l
	}
	return s
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, p *Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepare(p, s.now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, p.ID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create project %s: %w", p.ID, err)
	}

	fpPath := filepath.Join(dir, fingerprintFile)
	if p.Fingerprint != nil {
		data, err := p.Fingerprint.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encode fingerprint: %w", err)
		}
		if err := writeFileAtomic(fpPath, data); err != nil {
			return err
		}
	} else if err := removeIfExists(fpPath); err != nil {
		return err
	}

	targetPath := filepath.Join(dir, targetFile)
	if p.Target != nil {
		if err := utils.SaveImage(targetPath, p.Target); err != nil {
			return fmt.Errorf("save target image: %w", err)
		}
	} else if err := removeIfExists(targetPath); err != nil {
		return err
	}

	// Manifest last: a project without one is not listed.
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, manifestFile), data)
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, id string) (*Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.load(id)
	if err != nil {
		return nil, err
	}
	targetPath := filepath.Join(s.root, id, targetFile)
	if _, err := os.Stat(targetPath); err == nil {
		img, _, err := utils.LoadImage(targetPath)
		if err != nil {
			return nil, fmt.Errorf("load target image: %w", err)
		}
		p.Target = img
	}
	return p, nil
}

// List implements Store. Directories that cannot be read are skipped.
func (s *FileStore) List(ctx context.Context) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	projects := make([]*Project, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || !validID(e.Name()) {
			continue
		}
		p, err := s.load(e.Name())
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("skipping unreadable project", "id", e.Name(), "error", err)
			}
			continue
		}
		projects = append(projects, p)
	}
	slices.SortFunc(projects, compareProjects)
	return projects, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, id)
	if _, err := os.Stat(filepath.Join(dir, manifestFile)); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) load(id string) (*Project, error) {
	dir := filepath.Join(s.root, id)
	data, err := os.ReadFile(filepath.Join(dir, manifestFile)) //nolint:gosec // G304: id is a parsed UUID
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", id, err)
	}
	if p.ID != id {
		return nil, fmt.Errorf("manifest in %s names project %q", id, p.ID)
	}

	fpData, err := os.ReadFile(filepath.Join(dir, fingerprintFile)) //nolint:gosec // G304: id is a parsed UUID
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read fingerprint: %w", err)
	default:
		fp := new(features.Fingerprint)
		if err := fp.UnmarshalBinary(fpData); err != nil {
			return nil, fmt.Errorf("decode fingerprint %s: %w", id, err)
		}
		p.Fingerprint = fp
	}
	return &p, nil
}

func compareProjects(a, b *Project) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}
