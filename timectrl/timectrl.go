package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// ErrInvalidTimeScale is returned when a requested time-scale factor is not
// strictly positive or lies outside the configured bounds.
var ErrInvalidTimeScale = errors.New("timectrl: time scale must be positive and within bounds")

// J2000JD is the Julian date of the J2000.0 epoch.
const J2000JD = 2451545.0

const secondsPerDay = 86400.0

// DefaultTimeScale is the simulated-seconds-per-real-second factor a new
// clock starts with.
const DefaultTimeScale = 500.0

// SecondsSinceJ2000 converts a wall-clock instant into simulated seconds
// since the J2000 epoch, the time base all propagation runs on.
func SecondsSinceJ2000(t time.Time) float64 {
	return (julian.TimeToJD(t.UTC()) - J2000JD) * secondsPerDay
}

// TimeAtSimSeconds is the inverse of SecondsSinceJ2000: it maps simulated
// seconds since J2000 back onto a civil instant, which epoch-based models
// (SGP4) need.
func TimeAtSimSeconds(simSeconds float64) time.Time {
	return julian.JDToTime(J2000JD + simSeconds/secondsPerDay).UTC()
}

// SimClock is the read-only view of simulation time that propagation
// components depend on. They never read the wall clock directly; any
// discontinuity in simulated time would show up as a body teleporting.
type SimClock interface {
	// SimulatedTime returns the current simulated time in seconds since J2000.
	SimulatedTime() float64
}

// Clock owns simulated time, the acceleration factor, and the pause state.
// Simulated time only moves through Advance (continuous) or Reset (explicit
// discontinuity); SetTimeScale and SetPaused never perturb it.
type Clock struct {
	mu        sync.RWMutex
	simSecs   float64
	timeScale float64
	paused    bool

	minScale float64
	maxScale float64

	listeners []func(simSeconds float64)
}

// Option configures a Clock at construction.
type Option func(*Clock)

// WithScaleBounds sets the inclusive bounds SetTimeScale accepts.
func WithScaleBounds(min, max float64) Option {
	return func(c *Clock) {
		c.minScale = min
		c.maxScale = max
	}
}

// NewClock constructs a clock starting at the given simulated time (seconds
// since J2000) with the default acceleration factor.
func NewClock(startSimSeconds float64, opts ...Option) *Clock {
	c := &Clock{
		simSecs:   startSimSeconds,
		timeScale: DefaultTimeScale,
		minScale:  1,
		maxScale:  50000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SimulatedTime returns the current simulated time in seconds since J2000.
func (c *Clock) SimulatedTime() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.simSecs
}

// TimeScale returns the current acceleration factor.
func (c *Clock) TimeScale() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeScale
}

// Paused reports whether the clock is paused.
func (c *Clock) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// Advance moves simulated time forward by realDeltaSeconds scaled by the
// current factor. It is a no-op while paused. Negative real deltas are
// ignored so simulated time stays monotone.
func (c *Clock) Advance(realDeltaSeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || realDeltaSeconds <= 0 {
		return
	}
	c.simSecs += realDeltaSeconds * c.timeScale
}

// SetTimeScale updates the acceleration factor without touching simulated
// time. Factors outside (0, bounds] are rejected.
func (c *Clock) SetTimeScale(factor float64) error {
	if factor <= 0 {
		return ErrInvalidTimeScale
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if factor < c.minScale || factor > c.maxScale {
		return ErrInvalidTimeScale
	}
	c.timeScale = factor
	return nil
}

// SetPaused pauses or resumes the clock.
func (c *Clock) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// Reset jumps simulated time to the given value. This is the only permitted
// discontinuity.
func (c *Clock) Reset(toSimSeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simSecs = toSimSeconds
}

// AddListener registers a callback invoked with the new simulated time after
// every frame advance driven by Run. Listeners run on the frame goroutine,
// run-to-completion, in registration order.
func (c *Clock) AddListener(fn func(simSeconds float64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Run drives the frame loop: every frameInterval it advances simulated time
// by the measured real elapsed time and notifies listeners. It blocks until
// ctx is cancelled. Listeners are invoked outside the lock over a snapshot of
// the registration list.
func (c *Clock) Run(ctx context.Context, frameInterval time.Duration) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			delta := now.Sub(last).Seconds()
			last = now
			c.Advance(delta)

			c.mu.RLock()
			simNow := c.simSecs
			fns := make([]func(float64), len(c.listeners))
			copy(fns, c.listeners)
			c.mu.RUnlock()

			for _, fn := range fns {
				fn(simNow)
			}
		}
	}
}
