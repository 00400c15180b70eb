package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/wallsight/internal/config"
	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/project"
	"github.com/MeKo-Tech/wallsight/internal/utils"
)

const (
	outputFormatJSON   = "json"
	outputFormatYAML   = "yaml"
	outputFormatBinary = "binary"
	outputFormatText   = "text"
)

// loadImage loads the image at path, rejecting unsupported extensions.
func loadImage(path string) (image.Image, error) {
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	return img, nil
}

// quadFromFlag parses raw into pixel coordinates of img. An empty raw value
// selects the whole image.
func quadFromFlag(raw string, normalized bool, img image.Image) (geometry.Quad, error) {
	b := img.Bounds()
	if strings.TrimSpace(raw) == "" {
		return geometry.Rect(0, 0, float64(b.Dx()), float64(b.Dy())), nil
	}
	q, err := geometry.ParseQuad(raw)
	if err != nil {
		return geometry.Quad{}, fmt.Errorf("invalid --quad: %w", err)
	}
	if normalized {
		q = q.ToPixels(b.Dx(), b.Dy())
	}
	return q, nil
}

// fingerprintFormat picks the encoding from an explicit format or the file
// extension, defaulting to JSON.
func fingerprintFormat(format, path string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return outputFormatYAML
	case ".bin", ".fp":
		return outputFormatBinary
	default:
		return outputFormatJSON
	}
}

func encodeFingerprint(fp *features.Fingerprint, format string) ([]byte, error) {
	switch format {
	case outputFormatJSON:
		data, err := json.MarshalIndent(fp, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case outputFormatYAML:
		return yaml.Marshal(fp)
	case outputFormatBinary:
		return fp.MarshalBinary()
	default:
		return nil, fmt.Errorf("unsupported fingerprint format: %s (must be json, yaml or binary)", format)
	}
}

// readFingerprint loads a fingerprint file in any supported encoding.
func readFingerprint(path string) (*features.Fingerprint, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-provided fingerprint path
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint: %w", err)
	}

	var fp *features.Fingerprint
	switch fingerprintFormat("", path) {
	case outputFormatBinary:
		fp = new(features.Fingerprint)
		err = fp.UnmarshalBinary(data)
	case outputFormatYAML:
		fp = new(features.Fingerprint)
		err = yaml.Unmarshal(data, fp)
	default:
		fp, err = features.UnmarshalJSONBytes(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode fingerprint %s: %w", path, err)
	}
	return fp, nil
}

// writeOutput writes data to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openStore opens the configured project store.
func openStore(cfg *config.Config) (project.Store, error) {
	store, err := project.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open project store: %w", err)
	}
	return store, nil
}

// describeError adds user guidance to well-known failures.
func describeError(err error) error {
	switch {
	case errors.Is(err, geometry.ErrDegenerateQuad):
		return fmt.Errorf("%w (pick corners that are farther apart and form a convex shape)", err)
	case errors.Is(err, project.ErrNotFound):
		return fmt.Errorf("%w (list projects with 'wallsight project list')", err)
	default:
		return err
	}
}
