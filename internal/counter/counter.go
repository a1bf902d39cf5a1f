// Package counter counts push-up repetitions from per-frame joint angles.
//
// A RepCounter smooths the elbow angle, tracks its recent range and runs a
// two-stage (up/down) state machine gated on visibility and hip alignment.
// It is driven once per frame and is not safe for concurrent use.
package counter

import "math"

// Metrics is one frame of joint angles from the pose pipeline.
type Metrics struct {
	ElbowAngle   float64 // degrees, arm bend
	HipAngle     float64 // degrees, 180 = straight body
	VisibilityOK bool
}

// Stage is the phase of the repetition state machine.
type Stage string

const (
	StageUp   Stage = "up"
	StageDown Stage = "down"
)

// Tip is the coaching message returned for a frame.
type Tip string

// Tips in priority order.
const (
	TipNotVisible    Tip = "Make sure full body is visible"
	TipStraighten    Tip = "Straighten your body (hips)."
	TipLockout       Tip = "Lockout"
	TipDepthReached  Tip = "Depth reached"
	TipIncreaseRange Tip = "Increase range of motion."
	TipGood          Tip = "Good"
)

// AllTips lists every tip a RepCounter can return.
var AllTips = []Tip{TipNotVisible, TipStraighten, TipLockout, TipDepthReached, TipIncreaseRange, TipGood}

// RepCounter owns the smoothing and range state for one exercise session.
type RepCounter struct {
	cfg      Config
	smoother *Smoother
	window   *RangeTracker
	count    int
	stage    Stage
}

// New creates a RepCounter. Zero fields of cfg take their defaults.
func New(cfg Config) *RepCounter {
	cfg = cfg.WithDefaults()
	return &RepCounter{
		cfg:      cfg,
		smoother: NewSmoother(cfg.SmoothingAlpha),
		window:   NewRangeTracker(cfg.WindowSize),
		stage:    StageUp,
	}
}

// Update processes one frame and returns the repetition count and a tip.
// A nil m is treated like a frame with VisibilityOK false.
func (c *RepCounter) Update(m *Metrics) (int, Tip) {
	if m == nil || !m.VisibilityOK {
		return c.count, TipNotVisible
	}

	elbow := c.smoother.Update(m.ElbowAngle)
	lo, hi := c.window.Update(elbow)

	// Signal history above is kept even when alignment rejects the frame.
	if math.Abs(180-m.HipAngle) > c.cfg.HipTolerance {
		return c.count, TipStraighten
	}

	if tip, ok := c.transition(elbow); ok {
		return c.count, tip
	}
	if hi-lo < c.cfg.MinRange {
		return c.count, TipIncreaseRange
	}
	return c.count, TipGood
}

// transition applies descent then ascent. Ascent is checked after descent
// has flipped the stage, so with inverted thresholds a single frame can
// both reach depth and complete the rep; Lockout wins.
func (c *RepCounter) transition(elbow float64) (Tip, bool) {
	var tip Tip
	if elbow < c.cfg.DownAngle && c.stage == StageUp {
		c.stage = StageDown
		tip = TipDepthReached
	}
	if elbow > c.cfg.UpAngle && c.stage == StageDown {
		c.stage = StageUp
		c.count++
		tip = TipLockout
	}
	return tip, tip != ""
}

// Count returns the number of completed repetitions.
func (c *RepCounter) Count() int { return c.count }

// Stage returns the current stage.
func (c *RepCounter) Stage() Stage { return c.stage }

// Config returns the effective thresholds.
func (c *RepCounter) Config() Config { return c.cfg }

// Smoothed returns the last smoothed elbow angle, if any.
func (c *RepCounter) Smoothed() (float64, bool) { return c.smoother.Value() }

// Window returns the retained smoothed values, oldest first.
func (c *RepCounter) Window() []float64 { return c.window.Values() }

// WindowLen returns the number of retained smoothed values.
func (c *RepCounter) WindowLen() int { return c.window.Len() }

// Reset returns the counter to its initial state with the same thresholds.
func (c *RepCounter) Reset() {
	c.smoother.Reset()
	c.window.Reset()
	c.count = 0
	c.stage = StageUp
}
