// Package project persists calibrated wall projects: the user-picked quad,
// the fingerprint of the rectified target, the averaged device orientation
// and an optional preview of the target.
package project

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/wallsight/internal/calibration"
	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
)

var (
	// ErrNotFound is returned when a project ID does not exist.
	ErrNotFound = errors.New("project not found")
	// ErrInvalidProject is returned by Save for projects that cannot be stored.
	ErrInvalidProject = errors.New("invalid project")
)

// Project is one stored wall target.
type Project struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// Quad is the target outline in source image pixels.
	Quad         geometry.Quad `json:"quad" yaml:"quad"`
	SourceWidth  int           `json:"source_width,omitempty" yaml:"source_width,omitempty"`
	SourceHeight int           `json:"source_height,omitempty" yaml:"source_height,omitempty"`

	Fingerprint *features.Fingerprint   `json:"fingerprint,omitempty" yaml:"-"`
	Calibration *calibration.Quaternion `json:"calibration,omitempty" yaml:"calibration,omitempty"`

	// Target is the rectified image the fingerprint was extracted from.
	Target image.Image `json:"-" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store persists projects.
type Store interface {
	// Save inserts or replaces p. An empty ID is filled with a new UUID and
	// the timestamps are maintained by the store.
	Save(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	// List returns all projects ordered by creation time. Target images are
	// not loaded.
	List(ctx context.Context) ([]*Project, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Validate reports whether p can be stored.
func (p *Project) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil project", ErrInvalidProject)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProject)
	}
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return fmt.Errorf("%w: id %q is not a UUID", ErrInvalidProject, p.ID)
		}
	}
	if p.Fingerprint != nil {
		if err := p.Fingerprint.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProject, err)
		}
	}
	return nil
}

// Fingerprints collects the fingerprints of projects keyed by ID, skipping
// projects without one.
func Fingerprints(projects []*Project) map[string]*features.Fingerprint {
	out := make(map[string]*features.Fingerprint, len(projects))
	for _, p := range projects {
		if !p.Fingerprint.IsEmpty() {
			out[p.ID] = p.Fingerprint
		}
	}
	return out
}

// prepare validates p and stamps its ID and timestamps.
func prepare(p *Project, now time.Time) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now = now.UTC().Round(0)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return nil
}

// validID reports whether id can name a stored project.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
