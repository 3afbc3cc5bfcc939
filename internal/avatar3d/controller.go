package avatar3d

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// MinDeltaTime replaces a non-positive or non-finite frame delta.
const MinDeltaTime = 1e-4

type ModeChangeFunc func(from, to Mode)

type Option func(*Controller)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger.With().Str("component", "motion").Logger()
	}
}

func WithTuning(t Tuning) Option {
	return func(c *Controller) {
		c.tuning = t
	}
}

func WithSeed(seed int64) Option {
	return func(c *Controller) {
		c.rng = rand.New(rand.NewSource(seed))
	}
}

func WithModeChange(fn ModeChangeFunc) Option {
	return func(c *Controller) {
		c.onModeChange = fn
	}
}

// Controller turns audio levels and a mode into blended pose values, one
// Tick per rendered frame. Tick, Snapshot and the accessors belong to the
// frame goroutine. Mode entry points, SetTuning and TriggerBlink may be
// called from anywhere; they take effect at the start of the next Tick.
type Controller struct {
	logger   zerolog.Logger
	provider LevelProvider
	rng      *rand.Rand
	tuning   Tuning

	requested     atomic.Int32
	active        atomic.Int32
	pendingTuning atomic.Pointer[Tuning]
	blinkRequest  atomic.Bool
	closed        atomic.Bool

	cbMu         sync.RWMutex
	onModeChange ModeChangeFunc

	levels  *Levels
	blink   *BlinkScheduler
	policy  *Policy
	blender *Blender

	current AudioLevels
	elapsed float64
	frames  uint64
}

func NewController(rig Rig, provider LevelProvider, opts ...Option) (*Controller, error) {
	c := &Controller{
		logger:   zerolog.Nop(),
		provider: provider,
		tuning:   DefaultTuning(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.tuning.Validate(); err != nil {
		return nil, err
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	t := c.tuning
	c.levels = NewLevels(t.LoudnessSmoothing, t.SilenceDecay)
	c.blink = NewBlinkScheduler(c.rng, 0, t.BlinkMinGap, t.BlinkMaxGap, t.BlinkSpeed)
	c.policy = NewPolicy(t)
	c.blender = NewBlender(rig, c.logger)

	return c, nil
}

// SetOnModeChange registers the callback fired from Tick when the active
// mode changes.
func (c *Controller) SetOnModeChange(fn ModeChangeFunc) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onModeChange = fn
}

func (c *Controller) GoIdle()        { c.requested.Store(int32(ModeIdle)) }
func (c *Controller) StartSpeaking() { c.requested.Store(int32(ModeSpeak)) }
func (c *Controller) StartWhisper()  { c.requested.Store(int32(ModeWhisper)) }
func (c *Controller) StartDance()    { c.requested.Store(int32(ModeDance)) }

// StopDance returns to Idle only if Dance is the requested mode.
func (c *Controller) StopDance() {
	c.requested.CompareAndSwap(int32(ModeDance), int32(ModeIdle))
}

func (c *Controller) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMode, int32(m))
	}
	c.requested.Store(int32(m))
	return nil
}

func (c *Controller) TriggerBlink() {
	c.blinkRequest.Store(true)
}

// SetTuning validates t and swaps it in at the next frame boundary.
func (c *Controller) SetTuning(t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.pendingTuning.Store(&t)
	return nil
}

func (c *Controller) Mode() Mode {
	return Mode(c.active.Load())
}

func (c *Controller) RequestedMode() Mode {
	return Mode(c.requested.Load())
}

func (c *Controller) Tick(dt float64) {
	if c.closed.Load() {
		return
	}
	dt = sanitizeDelta(dt)
	c.elapsed += dt
	c.frames++

	if t := c.pendingTuning.Swap(nil); t != nil {
		c.applyTuning(*t)
	}
	mode := c.consumeMode()
	if c.blinkRequest.Swap(false) {
		c.blink.TriggerBlink()
	}

	c.current = c.levels.Update(c.provider)
	c.policy.Advance(mode, dt)

	targets := c.policy.Targets(mode, c.current, c.elapsed)
	c.blink.Update(c.elapsed, dt, targets)
	c.blender.Apply(targets, dt)
	c.blender.Mirror(c.tuning.Followers)
}

func (c *Controller) consumeMode() Mode {
	next := Mode(c.requested.Load())
	prev := Mode(c.active.Load())
	if next == prev {
		return prev
	}
	c.active.Store(int32(next))

	c.logger.Debug().
		Str("from", prev.String()).
		Str("to", next.String()).
		Float64("elapsed", c.elapsed).
		Msg("Mode changed")

	c.cbMu.RLock()
	fn := c.onModeChange
	c.cbMu.RUnlock()
	if fn != nil {
		fn(prev, next)
	}
	return next
}

func (c *Controller) applyTuning(t Tuning) {
	c.tuning = t
	c.levels.SetParams(t.LoudnessSmoothing, t.SilenceDecay)
	c.blink.SetParams(t.BlinkMinGap, t.BlinkMaxGap, t.BlinkSpeed)
	c.policy.SetTuning(t)
	c.logger.Info().Msg("Tuning applied")
}

func (c *Controller) Snapshot() PoseState {
	return c.blender.Snapshot()
}

func (c *Controller) Levels() AudioLevels {
	return c.current
}

func (c *Controller) DancePhase() float64 {
	return c.policy.DancePhase()
}

func (c *Controller) Elapsed() float64 {
	return c.elapsed
}

func (c *Controller) Frames() uint64 {
	return c.frames
}

func (c *Controller) BlinkState() BlinkState {
	return c.blink.State()
}

func (c *Controller) Tuning() Tuning {
	return c.tuning
}

// Close stops the controller; later ticks are ignored. The level provider
// is closed when it supports it.
func (c *Controller) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Debug().Uint64("frames", c.frames).Msg("Controller closed")
	if closer, ok := c.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func sanitizeDelta(dt float64) float64 {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return MinDeltaTime
	}
	return dt
}
