package features

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"gopkg.in/yaml.v3"
)

// MarshalJSONBytes encodes fp as JSON; descriptors are base64.
func MarshalJSONBytes(fp *Fingerprint) ([]byte, error) {
	return json.Marshal(fp)
}

// UnmarshalJSONBytes decodes and validates a JSON fingerprint.
func UnmarshalJSONBytes(data []byte) (*Fingerprint, error) {
	var fp Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return nil, fmt.Errorf("decode fingerprint json: %w", err)
	}
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	return &fp, nil
}

type fingerprintYAML struct {
	DescriptorType DescriptorType `yaml:"descriptor_type"`
	DescriptorRows int            `yaml:"descriptor_rows"`
	DescriptorCols int            `yaml:"descriptor_cols"`
	Width          int            `yaml:"width,omitempty"`
	Height         int            `yaml:"height,omitempty"`
	Keypoints      [][]float64    `yaml:"keypoints,flow"`
	Descriptors    string         `yaml:"descriptors"`
}

// MarshalYAML implements yaml.Marshaler with base64 descriptors and compact
// [x, y] keypoints.
func (fp Fingerprint) MarshalYAML() (interface{}, error) {
	kps := make([][]float64, len(fp.Keypoints))
	for i, p := range fp.Keypoints {
		kps[i] = []float64{p.X, p.Y}
	}
	return fingerprintYAML{
		DescriptorType: fp.DescriptorType,
		DescriptorRows: fp.DescriptorRows,
		DescriptorCols: fp.DescriptorCols,
		Width:          fp.Width,
		Height:         fp.Height,
		Keypoints:      kps,
		Descriptors:    base64.StdEncoding.EncodeToString(fp.Descriptors),
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (fp *Fingerprint) UnmarshalYAML(value *yaml.Node) error {
	var raw fingerprintYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	desc, err := base64.StdEncoding.DecodeString(raw.Descriptors)
	if err != nil {
		return fmt.Errorf("decode descriptors: %w", err)
	}
	kps := make([]geometry.Point, len(raw.Keypoints))
	for i, p := range raw.Keypoints {
		if len(p) != 2 {
			return fmt.Errorf("%w: keypoint %d has %d coordinates", ErrInvalidFingerprint, i, len(p))
		}
		kps[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	*fp = Fingerprint{
		Keypoints:      kps,
		Descriptors:    desc,
		DescriptorRows: raw.DescriptorRows,
		DescriptorCols: raw.DescriptorCols,
		DescriptorType: raw.DescriptorType,
		Width:          raw.Width,
		Height:         raw.Height,
	}
	return fp.Validate()
}

var binaryMagic = [4]byte{'W', 'S', 'F', 'P'}

const binaryVersion = 1

type binaryHeader struct {
	Magic     [4]byte
	Version   uint16
	Type      [6]byte
	Rows      uint32
	Cols      uint32
	Width     uint32
	Height    uint32
	Keypoints uint32
}

// ErrBadBinary is returned for truncated or foreign binary fingerprints.
var ErrBadBinary = errors.New("malformed binary fingerprint")

// MarshalBinary encodes fp as a little-endian header, keypoint coordinates
// as float64 pairs, then the raw descriptor bytes.
func (fp *Fingerprint) MarshalBinary() ([]byte, error) {
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	if len(fp.DescriptorType) > 6 {
		return nil, fmt.Errorf("%w: descriptor type %q too long", ErrInvalidFingerprint, fp.DescriptorType)
	}
	hdr := binaryHeader{
		Magic:     binaryMagic,
		Version:   binaryVersion,
		Rows:      uint32(fp.DescriptorRows), //nolint:gosec // G115: validated non-negative
		Cols:      uint32(fp.DescriptorCols), //nolint:gosec // G115: validated non-negative
		Width:     uint32(fp.Width),          //nolint:gosec // G115: validated non-negative
		Height:    uint32(fp.Height),         //nolint:gosec // G115: validated non-negative
		Keypoints: uint32(len(fp.Keypoints)), //nolint:gosec // G115: slice length
	}
	copy(hdr.Type[:], fp.DescriptorType)

	var buf bytes.Buffer
	buf.Grow(binary.Size(hdr) + 16*len(fp.Keypoints) + len(fp.Descriptors))
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	coords := make([]float64, 0, 2*len(fp.Keypoints))
	for _, p := range fp.Keypoints {
		coords = append(coords, p.X, p.Y)
	}
	if err := binary.Write(&buf, binary.LittleEndian, coords); err != nil {
		return nil, err
	}
	buf.Write(fp.Descriptors)
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes data produced by MarshalBinary.
func (fp *Fingerprint) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var hdr binaryHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: header: %v", ErrBadBinary, err)
	}
	if hdr.Magic != binaryMagic {
		return fmt.Errorf("%w: bad magic %q", ErrBadBinary, hdr.Magic[:])
	}
	if hdr.Version != binaryVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadBinary, hdr.Version)
	}

	descLen := uint64(hdr.Rows) * uint64(hdr.Cols)
	need := 16*uint64(hdr.Keypoints) + descLen
	if uint64(r.Len()) != need {
		return fmt.Errorf("%w: expected %d payload bytes, have %d", ErrBadBinary, need, r.Len())
	}

	coords := make([]float64, 2*hdr.Keypoints)
	if err := binary.Read(r, binary.LittleEndian, coords); err != nil {
		return fmt.Errorf("%w: keypoints: %v", ErrBadBinary, err)
	}
	desc := make([]byte, descLen)
	if _, err := io.ReadFull(r, desc); err != nil {
		return fmt.Errorf("%w: descriptors: %v", ErrBadBinary, err)
	}

	kps := make([]geometry.Point, hdr.Keypoints)
	for i := range kps {
		kps[i] = geometry.Point{X: coords[2*i], Y: coords[2*i+1]}
		if math.IsNaN(kps[i].X) || math.IsNaN(kps[i].Y) {
			return fmt.Errorf("%w: keypoint %d is NaN", ErrBadBinary, i)
		}
	}

	out := Fingerprint{
		Keypoints:      kps,
		Descriptors:    desc,
		DescriptorRows: int(hdr.Rows),
		DescriptorCols: int(hdr.Cols),
		DescriptorType: DescriptorType(bytes.TrimRight(hdr.Type[:], "\x00")),
		Width:          int(hdr.Width),
		Height:         int(hdr.Height),
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*fp = out
	return nil
}
