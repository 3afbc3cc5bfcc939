package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/normanking/avatarmotion/internal/audio"
	"github.com/normanking/avatarmotion/internal/avatar3d"
	"github.com/normanking/avatarmotion/internal/bridge"
	"github.com/normanking/avatarmotion/internal/bus"
	"github.com/normanking/avatarmotion/internal/config"
	"github.com/normanking/avatarmotion/internal/driver"
	"github.com/normanking/avatarmotion/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	rig, err := loadRig(cfg.Rig.Model)
	if err != nil {
		return fmt.Errorf("load rig: %w", err)
	}

	events := bus.NewEventBus()
	mixer := audio.NewMixer(audioConfig(cfg))

	opts := []avatar3d.Option{
		avatar3d.WithLogger(log.Zerolog()),
		avatar3d.WithTuning(cfg.Motion),
		avatar3d.WithModeChange(func(from, to avatar3d.Mode) {
			events.PublishSync(bus.ModeChanged(from.String(), to.String()))
		}),
	}
	if cfg.Rig.Seed != 0 {
		opts = append(opts, avatar3d.WithSeed(cfg.Rig.Seed))
	}
	ctrl, err := avatar3d.NewController(rig, mixer, opts...)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	srv := bridge.New(bridge.Config{
		Addr:         cfg.Bridge.Addr,
		Path:         cfg.Bridge.Path,
		PoseEvery:    cfg.Bridge.PoseEvery,
		WriteTimeout: cfg.Bridge.WriteTimeout,
	}, ctrl, mixer, events, log.Zerolog())

	drv := driver.New(ctrl, driver.Config{FPS: cfg.Driver.FPS, MaxDelta: cfg.Driver.MaxDelta}, log.Zerolog())
	drv.AddSink(srv.Sink())

	log.SetOnLog(func(e logging.LogEntry) {
		srv.Broadcast(struct {
			Type string `json:"type"`
			logging.LogEntry
		}{"log", e})
	})
	events.Subscribe(bus.EventTypeModeChanged, func(e bus.Event) {
		log.Info("motion", "Mode changed", e.Data)
	})

	if watch {
		if configFile == "" {
			return errors.New("--watch needs --config")
		}
		if _, err := config.Watch(configFile, func(next *config.Config, err error) {
			if err != nil {
				log.Warn("config", "Rejected config revision", map[string]interface{}{"error": err.Error()})
				events.Publish(bus.TuningRejected(configFile, err))
				return
			}
			if err := ctrl.SetTuning(next.Motion); err != nil {
				events.Publish(bus.TuningRejected(configFile, err))
				return
			}
			log.Info("config", "Tuning reloaded", map[string]interface{}{"file": configFile})
			events.Publish(bus.TuningReloaded(configFile))
		}); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("serve", "Avatar motion started", map[string]interface{}{
		"rig":      rigName(cfg.Rig.Model),
		"channels": len(rig.Names()),
		"fps":      cfg.Driver.FPS,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	go func() { errCh <- drv.Run(ctx) }()

	err = <-errCh
	stop()
	if second := <-errCh; err == nil {
		err = second
	}
	return err
}

func rigName(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}

type modeSwitch struct {
	at   float64
	mode string
}

// parseSwitches reads "seconds=mode" pairs sorted by time. "stop" means
// StopDance rather than a mode.
func parseSwitches(specs []string) ([]modeSwitch, error) {
	out := make([]modeSwitch, 0, len(specs))
	for _, s := range specs {
		at, mode, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("bad switch %q, want seconds=mode", s)
		}
		secs, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(at), "s"), 64)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("bad switch time %q", at)
		}
		mode = strings.ToLower(strings.TrimSpace(mode))
		if mode != "stop" {
			if _, err := avatar3d.ParseMode(mode); err != nil {
				return nil, err
			}
		}
		out = append(out, modeSwitch{at: secs, mode: mode})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at < out[j].at })
	return out, nil
}

type simOptions struct {
	Mode       string
	Duration   time.Duration
	FPS        int
	Every      int
	Seed       int64
	ToneHz     float64
	Speech     float64
	Listen     float64
	SampleRate int
	Switches   []modeSwitch
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	switches, err := parseSwitches(simAt)
	if err != nil {
		return err
	}
	rig, err := loadRig(cfg.Rig.Model)
	if err != nil {
		return fmt.Errorf("load rig: %w", err)
	}
	return simulate(cmd.OutOrStdout(), rig, cfg, simOptions{
		Mode:       simMode,
		Duration:   simDuration,
		FPS:        simFPS,
		Every:      simEvery,
		Seed:       simSeed,
		ToneHz:     simToneHz,
		Speech:     simSpeech,
		Listen:     simListen,
		SampleRate: cfg.Audio.SampleRate,
		Switches:   switches,
	})
}

var simColumns = []string{
	avatar3d.MouthOpen, avatar3d.MouthSmile, avatar3d.EyeBlinkLeft,
	avatar3d.HeadRotY, avatar3d.BodyPosY, avatar3d.BodyRotZ, avatar3d.EarWiggle,
}

// simulate drives the controller with a virtual clock so the analysers never
// go stale, whatever the host speed.
func simulate(w io.Writer, rig avatar3d.Rig, cfg *config.Config, opts simOptions) error {
	mode, err := avatar3d.ParseMode(opts.Mode)
	if err != nil {
		return err
	}
	if opts.FPS <= 0 || opts.Every <= 0 {
		return errors.New("fps and every must be positive")
	}

	clock := time.Unix(0, 0)
	mixer := audio.NewMixer(audioConfig(cfg), audio.WithClock(func() time.Time { return clock }))
	ctrl, err := avatar3d.NewController(rig, mixer, avatar3d.WithTuning(cfg.Motion), avatar3d.WithSeed(opts.Seed))
	if err != nil {
		return err
	}
	defer ctrl.Close()
	if err := ctrl.SetMode(mode); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "t\tmode\tin\tout\t%s\n", strings.Join(simColumns, "\t"))

	drv := driver.New(ctrl, driver.Config{FPS: opts.FPS, MaxDelta: cfg.Driver.MaxDelta}, zerolog.Nop())
	drv.AddSink(func(f driver.Frame) {
		if f.Seq%uint64(opts.Every) != 0 {
			return
		}
		fmt.Fprintf(tw, "%.3f\t%s\t%.3f\t%.3f", f.Elapsed, f.Mode, f.Levels.Input, f.Levels.Output)
		for _, name := range simColumns {
			fmt.Fprintf(tw, "\t%.3f", f.Pose.Get(name))
		}
		fmt.Fprintln(tw)
	})

	dt := 1.0 / float64(opts.FPS)
	chunk := opts.SampleRate / opts.FPS
	frames := int(opts.Duration.Seconds() * float64(opts.FPS))
	next := 0
	var phase float64

	for i := 0; i < frames; i++ {
		now := float64(i) * dt
		for next < len(opts.Switches) && opts.Switches[next].at <= now {
			if err := applySwitch(ctrl, opts.Switches[next].mode); err != nil {
				return err
			}
			next++
		}

		out, in, p := synthTone(chunk, opts.ToneHz, float64(opts.SampleRate), opts.Speech, opts.Listen, phase)
		phase = p
		if opts.Speech > 0 {
			mixer.Push(avatar3d.ChannelOutput, out)
		}
		if opts.Listen > 0 {
			mixer.Push(avatar3d.ChannelInput, in)
		}

		clock = clock.Add(time.Duration(dt * float64(time.Second)))
		drv.Step(dt)
	}
	return tw.Flush()
}

func applySwitch(ctrl *avatar3d.Controller, mode string) error {
	if mode == "stop" {
		ctrl.StopDance()
		return nil
	}
	m, err := avatar3d.ParseMode(mode)
	if err != nil {
		return err
	}
	return ctrl.SetMode(m)
}

// synthTone renders n samples of a syllable-modulated sine for both
// channels and returns the phase to continue from.
func synthTone(n int, hz, rate, speech, listen, phase float64) (out, in []int16, next float64) {
	out = make([]int16, n)
	in = make([]int16, n)
	step := 2 * math.Pi * hz / rate
	for i := 0; i < n; i++ {
		// ~4 syllables per second
		env := 0.5 + 0.5*math.Sin(phase*4/hz)
		s := math.Sin(phase) * env
		out[i] = int16(32767 * speech * s)
		in[i] = int16(32767 * listen * s)
		phase += step
	}
	return out, in, phase
}

func runChannels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rig, err := loadRig(cfg.Rig.Model)
	if err != nil {
		return fmt.Errorf("load rig: %w", err)
	}
	return printChannels(cmd.OutOrStdout(), rig)
}

func printChannels(w io.Writer, rig *avatar3d.MemoryRig) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tREST\tDRIVEN")
	for _, name := range rig.Names() {
		spec, driven := avatar3d.LookupChannel(name)
		fmt.Fprintf(tw, "%s\t%s\t%g\t%t\n", name, spec.Kind, spec.Rest, driven)
	}
	return tw.Flush()
}

func runTuning(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if showAll {
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Motion); err != nil {
		return err
	}
	return enc.Close()
}
