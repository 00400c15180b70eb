package calibration

import "sync"

// Capture accumulates calibration samples for one pose. It is safe for
// concurrent use; each calibration session owns its own Capture.
type Capture struct {
	mu      sync.Mutex
	samples []Quaternion
}

// NewCapture creates an empty capture.
func NewCapture() *Capture { return &Capture{} }

// Add records a sample, normalizing it first.
func (c *Capture) Add(q Quaternion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, q.Normalize())
}

// Len returns the number of recorded samples.
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// Samples returns a copy of the recorded samples.
func (c *Capture) Samples() []Quaternion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Quaternion(nil), c.samples...)
}

// Reset discards all samples.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = nil
}

// Average returns the average of the recorded samples.
func (c *Capture) Average() Quaternion { return Average(c.Samples()) }

// Spread returns the largest angle in radians between any sample and the
// average. A large spread means the user moved during calibration.
func (c *Capture) Spread() float64 {
	samples := c.Samples()
	return Spread(samples, Average(samples))
}

// Spread returns the largest angle between avg and any of samples.
func Spread(samples []Quaternion, avg Quaternion) float64 {
	var worst float64
	for _, q := range samples {
		worst = max(worst, Angle(q, avg))
	}
	return worst
}
