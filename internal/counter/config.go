package counter

import "fmt"

// Default thresholds, in degrees unless noted.
const (
	DefaultDownAngle      = 75.0
	DefaultUpAngle        = 160.0
	DefaultHipTolerance   = 22.0
	DefaultSmoothingAlpha = 0.35
	DefaultWindowSize     = 10 // frames
	DefaultMinRange       = 25.0
)

// Config holds the thresholds of a RepCounter. It is fixed for the
// lifetime of a session.
type Config struct {
	DownAngle      float64 `yaml:"down_angle" json:"down_angle"`
	UpAngle        float64 `yaml:"up_angle" json:"up_angle"`
	HipTolerance   float64 `yaml:"hip_tolerance" json:"hip_tolerance"`
	SmoothingAlpha float64 `yaml:"smoothing_alpha" json:"smoothing_alpha"`
	WindowSize     int     `yaml:"window_size" json:"window_size"`
	MinRange       float64 `yaml:"min_range" json:"min_range"`
}

// DefaultConfig returns the standard push-up thresholds.
func DefaultConfig() Config {
	return Config{
		DownAngle:      DefaultDownAngle,
		UpAngle:        DefaultUpAngle,
		HipTolerance:   DefaultHipTolerance,
		SmoothingAlpha: DefaultSmoothingAlpha,
		WindowSize:     DefaultWindowSize,
		MinRange:       DefaultMinRange,
	}
}

// WithDefaults returns a copy of c with every zero field replaced by its default.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.DownAngle == 0 {
		c.DownAngle = d.DownAngle
	}
	if c.UpAngle == 0 {
		c.UpAngle = d.UpAngle
	}
	if c.HipTolerance == 0 {
		c.HipTolerance = d.HipTolerance
	}
	if c.SmoothingAlpha == 0 {
		c.SmoothingAlpha = d.SmoothingAlpha
	}
	if c.WindowSize == 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MinRange == 0 {
		c.MinRange = d.MinRange
	}
	return c
}

// Validate reports thresholds that would make the counter useless.
// New does not call it; it is for callers accepting user-supplied values.
func (c Config) Validate() error {
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		return fmt.Errorf("smoothing_alpha must be in (0,1], got %v", c.SmoothingAlpha)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", c.WindowSize)
	}
	if c.DownAngle >= c.UpAngle {
		return fmt.Errorf("down_angle (%v) must be below up_angle (%v)", c.DownAngle, c.UpAngle)
	}
	if c.HipTolerance < 0 {
		return fmt.Errorf("hip_tolerance must not be negative, got %v", c.HipTolerance)
	}
	if c.MinRange < 0 {
		return fmt.Errorf("min_range must not be negative, got %v", c.MinRange)
	}
	return nil
}
