package main

import (
	"fmt"
	"os"
	"time"

	"github.com/normanking/avatarmotion/internal/audio"
	"github.com/normanking/avatarmotion/internal/avatar3d"
	"github.com/normanking/avatarmotion/internal/config"
	"github.com/normanking/avatarmotion/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	rigPath    string

	// serve
	watch bool

	// simulate
	simMode     string
	simDuration time.Duration
	simFPS      int
	simEvery    int
	simSeed     int64
	simToneHz   float64
	simSpeech   float64
	simListen   float64
	simAt       []string

	// tuning
	showAll bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "avatarmotion",
		Short:         "audio-reactive avatar motion controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&rigPath, "rig", "", "glTF/GLB model whose channels are driven")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the frame loop and websocket bridge",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().BoolVar(&watch, "watch", false, "hot-reload motion tuning when the config file changes")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "run the controller offline against a synthetic tone and print channels",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}
	simulateCmd.Flags().StringVar(&simMode, "mode", "speak", "starting mode")
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 5*time.Second, "simulated time")
	simulateCmd.Flags().IntVar(&simFPS, "fps", 60, "simulated frame rate")
	simulateCmd.Flags().IntVar(&simEvery, "every", 15, "print every Nth frame")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "blink random seed")
	simulateCmd.Flags().Float64Var(&simToneHz, "tone", 220, "synthetic voice frequency in Hz")
	simulateCmd.Flags().Float64Var(&simSpeech, "speech", 0.6, "output (avatar speech) amplitude 0..1")
	simulateCmd.Flags().Float64Var(&simListen, "listen", 0, "input (user speech) amplitude 0..1")
	simulateCmd.Flags().StringSliceVar(&simAt, "at", nil, "mode switches as seconds=mode, e.g. --at 2=dance --at 4=stop")

	channelsCmd := &cobra.Command{
		Use:   "channels",
		Short: "list the channels the rig exposes",
		Args:  cobra.NoArgs,
		RunE:  runChannels,
	}

	tuningCmd := &cobra.Command{
		Use:   "tuning",
		Short: "print the effective tuning as yaml",
		Args:  cobra.NoArgs,
		RunE:  runTuning,
	}
	tuningCmd.Flags().BoolVar(&showAll, "all", false, "print the whole config, not just motion tuning")

	rootCmd.AddCommand(serveCmd, simulateCmd, channelsCmd, tuningCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if rigPath != "" {
		cfg.Rig.Model = rigPath
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(cfg.Log.Level)
	lc.Dir = cfg.Log.Dir
	lc.JSON = cfg.Log.JSON
	return logging.New(lc)
}

func loadRig(path string) (*avatar3d.MemoryRig, error) {
	if path == "" {
		return avatar3d.DefaultRig(), nil
	}
	return avatar3d.LoadGLTFRig(path)
}

func audioConfig(cfg *config.Config) audio.Config {
	return audio.Config{
		FFTSize:     cfg.Audio.FFTSize,
		MinDecibels: cfg.Audio.MinDecibels,
		MaxDecibels: cfg.Audio.MaxDecibels,
		Smoothing:   cfg.Audio.Smoothing,
		StaleAfter:  cfg.Audio.StaleAfter,
	}
}
