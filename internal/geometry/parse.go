package geometry

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseQuad parses the "x,y;x,y;x,y;x,y" form used by the CLI and HTTP API.
// Corners are taken in TL, TR, BR, BL order.
func ParseQuad(s string) (Quad, error) {
	parts := strings.Split(strings.TrimSpace(s), ";")
	if len(parts) != 4 {
		return Quad{}, fmt.Errorf("quad must have 4 corners separated by ';', got %d", len(parts))
	}
	var q Quad
	for i, part := range parts {
		xy := strings.Split(strings.TrimSpace(part), ",")
		if len(xy) != 2 {
			return Quad{}, fmt.Errorf("corner %d: expected x,y, got %q", i, part)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err != nil {
			return Quad{}, fmt.Errorf("corner %d: invalid x: %w", i, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err != nil {
			return Quad{}, fmt.Errorf("corner %d: invalid y: %w", i, err)
		}
		q[i] = Point{X: x, Y: y}
	}
	return q, nil
}

// String formats q in the form accepted by ParseQuad.
func (q Quad) String() string {
	parts := make([]string, 4)
	for i, p := range q {
		parts[i] = strconv.FormatFloat(p.X, 'g', -1, 64) + "," + strconv.FormatFloat(p.Y, 'g', -1, 64)
	}
	return strings.Join(parts, ";")
}
