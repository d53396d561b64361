// Package timer provides the frame timing of the render loop.
package timer

import (
	"time"

	"github.com/loov/hrtime"
)

// MaxDelta is the largest elapsed time a single Tick accounts for. Longer
// gaps (a debugger break, a suspended window) are clamped so a fixed-step
// simulation does not try to catch up.
const MaxDelta = 100 * time.Millisecond

// DefaultTarget is the default fixed step, 60 updates per second.
const DefaultTarget = time.Second / 60

// snap is how close a variable delta must be to the target for a fixed
// step timer to treat it as exactly one step.
const snap = 250 * time.Microsecond

// Clock reports monotonic time since an arbitrary origin.
type Clock interface {
	Now() time.Duration
}

// HighRes is the default clock, backed by the high resolution timer.
type HighRes struct{}

// Now returns hrtime.Now.
func (HighRes) Now() time.Duration { return hrtime.Now() }

// Manual is a clock advanced explicitly, for tests and offline rendering.
type Manual struct {
	T time.Duration
}

// Now returns the current manual time.
func (m *Manual) Now() time.Duration { return m.T }

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) { m.T += d }

// StepTimer calls an update function with variable or fixed timesteps.
type StepTimer struct {
	clock Clock
	last  time.Duration

	elapsed  time.Duration
	total    time.Duration
	leftOver time.Duration

	frames           uint64
	framesThisSecond uint32
	fps              uint32
	secondCounter    time.Duration

	fixed  bool
	target time.Duration
}

// New returns a variable-step timer reading clock. A nil clock selects
// HighRes.
func New(clock Clock) *StepTimer {
	if clock == nil {
		clock = HighRes{}
	}
	return &StepTimer{clock: clock, last: clock.Now(), target: DefaultTarget}
}

// SetFixedTimeStep selects fixed (true) or variable steps.
func (t *StepTimer) SetFixedTimeStep(fixed bool) { t.fixed = fixed }

// SetTargetElapsed sets the fixed step length.
func (t *StepTimer) SetTargetElapsed(d time.Duration) {
	if d > 0 {
		t.target = d
	}
}

// Elapsed returns the time covered by the last update.
func (t *StepTimer) Elapsed() time.Duration { return t.elapsed }

// ElapsedSeconds returns Elapsed in seconds.
func (t *StepTimer) ElapsedSeconds() float64 { return t.elapsed.Seconds() }

// Total returns the time covered by all updates.
func (t *StepTimer) Total() time.Duration { return t.total }

// TotalSeconds returns Total in seconds.
func (t *StepTimer) TotalSeconds() float64 { return t.total.Seconds() }

// FrameCount returns the number of updates since the timer was created.
func (t *StepTimer) FrameCount() uint64 { return t.frames }

// FramesPerSecond returns the update rate over the last full second.
func (t *StepTimer) FramesPerSecond() uint32 { return t.fps }

// ResetElapsedTime discards the time since the last tick. Call it after an
// intentional pause, such as a resume, so the next tick does not see a
// long delta.
func (t *StepTimer) ResetElapsedTime() {
	t.last = t.clock.Now()
	t.leftOver = 0
	t.fps = 0
	t.framesThisSecond = 0
	t.secondCounter = 0
}

// Tick advances the timer, calling update zero or more times in fixed
// mode and exactly once in variable mode.
func (t *StepTimer) Tick(update func()) {
	now := t.clock.Now()
	delta := now - t.last
	t.last = now
	t.secondCounter += delta
	if delta > MaxDelta {
		delta = MaxDelta
	}

	last := t.frames
	if t.fixed {
		// A delta within snap of the target counts as exactly one step, so
		// vsync-locked loops do not drift.
		if d := delta - t.target; d > -snap && d < snap {
			delta = t.target
		}
		t.leftOver += delta
		for t.leftOver >= t.target {
			t.elapsed = t.target
			t.total += t.target
			t.leftOver -= t.target
			t.frames++
			if update != nil {
				update()
			}
		}
	} else {
		t.elapsed = delta
		t.total += delta
		t.leftOver = 0
		t.frames++
		if update != nil {
			update()
		}
	}

	if t.frames != last {
		t.framesThisSecond++
	}
	if t.secondCounter >= time.Second {
		t.fps = t.framesThisSecond
		t.framesThisSecond = 0
		t.secondCounter %= time.Second
	}
}
