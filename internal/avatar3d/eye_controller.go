package avatar3d

import (
	"math"
	"math/rand"
	"time"
)

type BlinkPhase int

const (
	BlinkWaiting BlinkPhase = iota
	BlinkClosing
	BlinkReopening
)

func (p BlinkPhase) String() string {
	switch p {
	case BlinkClosing:
		return "closing"
	case BlinkReopening:
		return "reopening"
	default:
		return "waiting"
	}
}

// BlinkState is the scheduler's observable state. Times are controller
// clock seconds.
type BlinkState struct {
	Phase         BlinkPhase
	NextBlinkAt   float64
	BlinkProgress float64
}

// BlinkScheduler fires a triangular eyelid envelope at random intervals. It
// is driven by the controller clock and never owns a timer.
type BlinkScheduler struct {
	rng *rand.Rand

	minGap time.Duration
	maxGap time.Duration
	speed  float64

	active      bool
	progress    float64
	nextBlinkAt float64
	forced      bool

	lastFiredAt float64
	fired       int
}

func NewBlinkScheduler(rng *rand.Rand, now float64, minGap, maxGap time.Duration, speed float64) *BlinkScheduler {
	b := &BlinkScheduler{
		rng:         rng,
		minGap:      minGap,
		maxGap:      maxGap,
		speed:       speed,
		lastFiredAt: math.NaN(),
	}
	b.nextBlinkAt = now + b.randomGap()
	return b
}

func (b *BlinkScheduler) SetParams(minGap, maxGap time.Duration, speed float64) {
	b.minGap = minGap
	b.maxGap = maxGap
	b.speed = speed
}

// TriggerBlink starts a blink on the next update unless one is playing.
// The random schedule is left alone. Forced blinks are exempt from the
// minimum gap and may land right after a scheduled one.
func (b *BlinkScheduler) TriggerBlink() {
	if !b.active {
		b.forced = true
	}
}

// Update advances the scheduler to now and writes eyelid targets while a
// blink is playing. Waiting frames write nothing.
func (b *BlinkScheduler) Update(now, dt float64, targets TargetSet) {
	if !b.active && (b.forced || now >= b.nextBlinkAt) {
		b.active = true
		b.progress = 1.0
		b.lastFiredAt = now
		b.fired++
		if !b.forced {
			b.nextBlinkAt = now + b.randomGap()
		}
		b.forced = false
	}

	if !b.active {
		return
	}

	b.progress -= dt * b.speed
	phase := BlinkEnvelope(b.progress)
	targets.Direct(EyeBlinkLeft, phase)
	targets.Direct(EyeBlinkRight, phase)

	if b.progress <= 0 {
		b.active = false
		b.progress = 0
	}
}

func (b *BlinkScheduler) State() BlinkState {
	s := BlinkState{NextBlinkAt: b.nextBlinkAt, BlinkProgress: b.progress}
	switch {
	case !b.active:
		s.Phase = BlinkWaiting
	case b.progress > 0.5:
		s.Phase = BlinkClosing
	default:
		s.Phase = BlinkReopening
	}
	return s
}

func (b *BlinkScheduler) IsBlinking() bool {
	return b.active
}

// LastFiredAt returns the clock time of the most recent blink and how many
// have fired so far.
func (b *BlinkScheduler) LastFiredAt() (float64, int) {
	return b.lastFiredAt, b.fired
}

func (b *BlinkScheduler) randomGap() float64 {
	lo := b.minGap.Seconds()
	hi := b.maxGap.Seconds()
	return lo + b.rng.Float64()*(hi-lo)
}

// BlinkEnvelope maps blink progress (1 → 0) to eyelid closure: 0 at both
// ends, 1 at the midpoint.
func BlinkEnvelope(progress float64) float64 {
	return 1 - math.Abs(1-2*math.Max(progress, 0))
}
