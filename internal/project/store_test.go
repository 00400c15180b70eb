package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/wallsight/internal/calibration"
	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/testutil"
)

// fakeClock returns successive instants one second apart.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type storeFactory func(t *testing.T, clock *fakeClock) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"file": func(t *testing.T, clock *fakeClock) Store {
			t.Helper()
			s, err := NewFileStore(filepath.Join(t.TempDir(), "projects"))
			require.NoError(t, err)
			s.now = clock.now
			return s
		},
		"sqlite": func(t *testing.T, clock *fakeClock) Store {
			t.Helper()
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "projects.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			s.now = clock.now
			return s
		},
	}
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func sampleProject(t *testing.T, name string, seed uint64) *Project {
	t.Helper()
	target := testutil.GenerateTexturedImage(160, 120, seed)
	fp, ok := features.Extract(target)
	require.True(t, ok)
	q := calibration.Quaternion{X: 0, Y: 0.3826834, Z: 0, W: 0.9238795}
	return &Project{
		Name:         name,
		Quad:         geometry.NewQuad(geometry.Pt(10, 12), geometry.Pt(300, 20), geometry.Pt(290, 230), geometry.Pt(15, 220)),
		SourceWidth:  320,
		SourceHeight: 240,
		Fingerprint:  fp,
		Calibration:  &q,
		Target:       target,
	}
}

var ignoreTarget = cmpopts.IgnoreFields(Project{}, "Target")

func TestStore_SaveGetRoundTrip(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, newClock())
			p := sampleProject(t, "living room", 1)

			require.NoError(t, s.Save(ctx, p))
			_, err := uuid.Parse(p.ID)
			require.NoError(t, err, "Save should assign a UUID")
			assert.False(t, p.CreatedAt.IsZero())
			assert.Equal(t, p.CreatedAt, p.UpdatedAt)

			got, err := s.Get(ctx, p.ID)
			require.NoError(t, err)
			if diff := cmp.Diff(p, got, ignoreTarget); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
			require.NotNil(t, got.Target)
			assert.True(t, testutil.CompareImages(p.Target, got.Target, 0))
		})
	}
}

func TestStore_UpdateKeepsCreatedAt(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, newClock())
			p := sampleProject(t, "hallway", 2)
			require.NoError(t, s.Save(ctx, p))
			created := p.CreatedAt

			p.Name = "hallway (north)"
			p.Calibration = nil
			p.Target = nil
			require.NoError(t, s.Save(ctx, p))

			got, err := s.Get(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, "hallway (north)", got.Name)
			assert.Nil(t, got.Calibration)
			assert.Nil(t, got.Target)
			assert.True(t, got.CreatedAt.Equal(created))
			assert.True(t, got.UpdatedAt.After(created))
		})
	}
}

func TestStore_ListOrderedByCreation(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, newClock())

			list, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)

			var want []string
			for i, n := range []string{"a", "b", "c"} {
				p := sampleProject(t, n, uint64(10+i))
				require.NoError(t, s.Save(ctx, p))
				want = append(want, p.ID)
			}

			list, err = s.List(ctx)
			require.NoError(t, err)
			got := make([]string, len(list))
			for i, p := range list {
				got[i] = p.ID
				assert.Nil(t, p.Target, "List does not load target images")
				assert.False(t, p.Fingerprint.IsEmpty())
			}
			assert.Equal(t, want, got)
			assert.Len(t, Fingerprints(list), 3)
		})
	}
}

func TestStore_DeleteAndNotFound(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, newClock())
			p := sampleProject(t, "garage", 3)
			require.NoError(t, s.Save(ctx, p))

			require.NoError(t, s.Delete(ctx, p.ID))
			_, err := s.Get(ctx, p.ID)
			require.ErrorIs(t, err, ErrNotFound)
			require.ErrorIs(t, s.Delete(ctx, p.ID), ErrNotFound)

			_, err = s.Get(ctx, uuid.NewString())
			require.ErrorIs(t, err, ErrNotFound)
			_, err = s.Get(ctx, "../etc")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_RejectsInvalidProjects(t *testing.T) {
	tests := map[string]*Project{
		"nil":       nil,
		"no name":   {Name: "  "},
		"bad id":    {ID: "not-a-uuid", Name: "x"},
		"broken fp": {Name: "x", Fingerprint: &features.Fingerprint{DescriptorRows: 2, DescriptorCols: 32}},
	}
	for name, factory := range backends() {
		s := factory(t, newClock())
		for tc, p := range tests {
			t.Run(name+"/"+tc, func(t *testing.T) {
				require.ErrorIs(t, s.Save(context.Background(), p), ErrInvalidProject)
			})
		}
	}
}

func TestStore_WithoutFingerprint(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, newClock())
			p := &Project{Name: "draft", Quad: geometry.Rect(0, 0, 10, 10)}
			require.NoError(t, s.Save(ctx, p))

			got, err := s.Get(ctx, p.ID)
			require.NoError(t, err)
			assert.Nil(t, got.Fingerprint)
			assert.Empty(t, Fingerprints([]*Project{got}))
		})
	}
}

func TestFileStore_Layout(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	assert.Equal(t, root, s.Root())

	p := sampleProject(t, "office", 4)
	require.NoError(t, s.Save(context.Background(), p))

	for _, f := range []string{manifestFile, fingerprintFile, targetFile} {
		assert.True(t, testutil.FileExists(filepath.Join(root, p.ID, f)), f)
	}
	manifest, err := os.ReadFile(filepath.Join(root, p.ID, manifestFile))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "name: office")
	assert.NotContains(t, string(manifest), "descriptors")
}

func TestFileStore_ListSkipsBrokenProjects(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	good := sampleProject(t, "good", 5)
	require.NoError(t, s.Save(ctx, good))

	broken := filepath.Join(root, uuid.NewString())
	require.NoError(t, os.MkdirAll(broken, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(broken, manifestFile), []byte("id: [oops"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-project"), 0o750))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, good.ID, list[0].ID)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(StoreConfig{Backend: BackendFile, Path: filepath.Join(dir, "files")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(StoreConfig{Backend: "SQLite", Path: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Save(context.Background(), &Project{Name: "mem"}))
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
	require.NoError(t, s.Close())

	_, err = Open(StoreConfig{Backend: "postgres", Path: "x"})
	require.Error(t, err)
	_, err = Open(StoreConfig{Backend: BackendFile})
	require.Error(t, err)
	require.NoError(t, DefaultStoreConfig().Validate())
}
