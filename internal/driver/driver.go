// Package driver runs the motion controller at a fixed frame rate and hands
// every frame to its sinks.
package driver

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/normanking/avatarmotion/internal/avatar3d"
	"github.com/rs/zerolog"
)

// Controller is the part of avatar3d.Controller the loop needs.
type Controller interface {
	Tick(dt float64)
	Snapshot() avatar3d.PoseState
	Mode() avatar3d.Mode
	Levels() avatar3d.AudioLevels
	Elapsed() float64
}

// Frame is what one tick produced.
type Frame struct {
	Seq     uint64
	Elapsed float64
	Delta   float64
	Mode    avatar3d.Mode
	Levels  avatar3d.AudioLevels
	Pose    avatar3d.PoseState
}

// Sink receives frames on the loop goroutine and must not block.
type Sink func(Frame)

type Config struct {
	FPS      int
	MaxDelta float64
}

func DefaultConfig() Config {
	return Config{FPS: 60, MaxDelta: 0.1}
}

type Driver struct {
	ctrl   Controller
	cfg    Config
	logger zerolog.Logger

	mu    sync.RWMutex
	sinks []Sink
	seq   uint64
}

func New(ctrl Controller, cfg Config, logger zerolog.Logger) *Driver {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultConfig().FPS
	}
	if cfg.MaxDelta <= 0 {
		cfg.MaxDelta = DefaultConfig().MaxDelta
	}
	return &Driver{
		ctrl:   ctrl,
		cfg:    cfg,
		logger: logger.With().Str("component", "driver").Logger(),
	}
}

func (d *Driver) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Step advances the controller by dt, clamped to MaxDelta, and dispatches
// the frame.
func (d *Driver) Step(dt float64) Frame {
	if dt > d.cfg.MaxDelta || math.IsInf(dt, 1) {
		dt = d.cfg.MaxDelta
	}
	d.ctrl.Tick(dt)
	d.seq++

	f := Frame{
		Seq:     d.seq,
		Elapsed: d.ctrl.Elapsed(),
		Delta:   dt,
		Mode:    d.ctrl.Mode(),
		Levels:  d.ctrl.Levels(),
		Pose:    d.ctrl.Snapshot(),
	}

	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()
	for _, s := range sinks {
		s(f)
	}
	return f
}

// Run ticks until ctx is done. dt is measured wall time between frames.
func (d *Driver) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(d.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info().Int("fps", d.cfg.FPS).Msg("Frame loop started")

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Uint64("frames", d.seq).Msg("Frame loop stopped")
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt > d.cfg.MaxDelta {
				d.logger.Debug().Float64("dt", dt).Msg("Frame late, delta clamped")
			}
			d.Step(dt)
		}
	}
}
