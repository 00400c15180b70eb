package rectify

// Config holds configuration for the rectification process.
type Config struct {
	// MaxOutputSide caps the longer output side in pixels; 0 disables the cap.
	MaxOutputSide int
	// Debug dumping
	DebugDir string // if non-empty, writes overlay and compare PNGs here
}

// DefaultConfig returns sensible defaults for rectification.
func DefaultConfig() Config {
	return Config{
		MaxOutputSide: 0,
		DebugDir:      "",
	}
}
