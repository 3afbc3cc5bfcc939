// Package audio turns PCM streams into byte frequency snapshots for the
// motion controller's loudness extractor.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

var ErrOddLength = errors.New("pcm16 payload has odd length")

// Config mirrors the knobs of a browser AnalyserNode.
type Config struct {
	FFTSize     int
	MinDecibels float64
	MaxDecibels float64
	Smoothing   float64
	StaleAfter  time.Duration
}

func DefaultConfig() Config {
	return Config{
		FFTSize:     256,
		MinDecibels: -100,
		MaxDecibels: -30,
		Smoothing:   0.8,
		StaleAfter:  250 * time.Millisecond,
	}
}

type Option func(*Analyser)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Analyser) {
		a.now = now
	}
}

// Analyser keeps the most recent FFTSize samples of one stream and exposes
// their smoothed magnitude spectrum as bytes.
type Analyser struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	window   []float64
	samples  []float64
	smoothed []float64
	bins     []byte

	lastPush time.Time
	dirty    bool
	pushed   bool
}

func NewAnalyser(cfg Config, opts ...Option) *Analyser {
	if cfg.FFTSize <= 0 {
		cfg.FFTSize = DefaultConfig().FFTSize
	}
	a := &Analyser{
		cfg:      cfg,
		now:      time.Now,
		window:   window.Hann(cfg.FFTSize),
		samples:  make([]float64, cfg.FFTSize),
		smoothed: make([]float64, cfg.FFTSize/2),
		bins:     make([]byte, cfg.FFTSize/2),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BinCount is FFTSize/2.
func (a *Analyser) BinCount() int {
	return a.cfg.FFTSize / 2
}

// Push appends signed 16-bit samples to the analysis window.
func (a *Analyser) Push(samples []int16) {
	if len(samples) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.samples)
	if len(samples) >= n {
		samples = samples[len(samples)-n:]
	}
	copy(a.samples, a.samples[len(samples):])
	tail := a.samples[n-len(samples):]
	for i, s := range samples {
		tail[i] = float64(s) / 32768.0
	}

	a.lastPush = a.now()
	a.dirty = true
	a.pushed = true
}

// PushBytes decodes little-endian pcm16 and pushes it.
func (a *Analyser) PushBytes(pcm []byte) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("%w: %d bytes", ErrOddLength, len(pcm))
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	a.Push(samples)
	return nil
}

// Snapshot returns a copy of the byte spectrum. ok is false before the first
// push and once the stream has been quiet for longer than StaleAfter.
func (a *Analyser) Snapshot() ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.pushed {
		return nil, false
	}
	if a.cfg.StaleAfter > 0 && a.now().Sub(a.lastPush) > a.cfg.StaleAfter {
		return nil, false
	}
	if a.dirty {
		a.analyse()
		a.dirty = false
	}

	out := make([]byte, len(a.bins))
	copy(out, a.bins)
	return out, true
}

func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.samples {
		a.samples[i] = 0
	}
	for i := range a.smoothed {
		a.smoothed[i] = 0
		a.bins[i] = 0
	}
	a.pushed = false
	a.dirty = false
}

func (a *Analyser) analyse() {
	n := len(a.samples)
	windowed := make([]float64, n)
	for i, s := range a.samples {
		windowed[i] = s * a.window[i]
	}
	spectrum := fft.FFTReal(windowed)

	span := a.cfg.MaxDecibels - a.cfg.MinDecibels
	k := a.cfg.Smoothing
	for i := range a.smoothed {
		mag := cmplx.Abs(spectrum[i]) / float64(n)
		a.smoothed[i] = k*a.smoothed[i] + (1-k)*mag
		a.bins[i] = toByte(decibels(a.smoothed[i]), a.cfg.MinDecibels, span)
	}
}

func decibels(mag float64) float64 {
	if mag <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(mag)
}

func toByte(db, minDB, span float64) byte {
	v := 255 * (db - minDB) / span
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v)
	}
}
