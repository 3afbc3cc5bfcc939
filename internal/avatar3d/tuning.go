package avatar3d

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTuning = errors.New("invalid tuning")

// Tuning collects the artistic constants of the motion controller. Rates
// are per-frame lerp fractions at 60 Hz, frequencies are in Hz, periods in
// seconds; gains map a [0,1] level onto a morph or pose target.
type Tuning struct {
	LoudnessSmoothing float64 `mapstructure:"loudness_smoothing" yaml:"loudness_smoothing"`
	SilenceDecay      float64 `mapstructure:"silence_decay" yaml:"silence_decay"`

	BlinkMinGap time.Duration `mapstructure:"blink_min_gap" yaml:"blink_min_gap"`
	BlinkMaxGap time.Duration `mapstructure:"blink_max_gap" yaml:"blink_max_gap"`
	BlinkSpeed  float64       `mapstructure:"blink_speed" yaml:"blink_speed"`

	BreathPeriod    float64 `mapstructure:"breath_period" yaml:"breath_period"`
	BreathAmplitude float64 `mapstructure:"breath_amplitude" yaml:"breath_amplitude"`
	SwayFrequency   float64 `mapstructure:"sway_frequency" yaml:"sway_frequency"`
	SwayAmplitude   float64 `mapstructure:"sway_amplitude" yaml:"sway_amplitude"`
	HeadFrequency   float64 `mapstructure:"head_frequency" yaml:"head_frequency"`
	HeadAmplitude   float64 `mapstructure:"head_amplitude" yaml:"head_amplitude"`

	SpeakGain  float64 `mapstructure:"speak_gain" yaml:"speak_gain"`
	ListenTilt float64 `mapstructure:"listen_tilt" yaml:"listen_tilt"`

	WhisperGain  float64 `mapstructure:"whisper_gain" yaml:"whisper_gain"`
	WhisperCap   float64 `mapstructure:"whisper_cap" yaml:"whisper_cap"`
	WhisperSmile float64 `mapstructure:"whisper_smile" yaml:"whisper_smile"`
	LeanDrop     float64 `mapstructure:"lean_drop" yaml:"lean_drop"`
	LeanPitch    float64 `mapstructure:"lean_pitch" yaml:"lean_pitch"`

	BounceFrequency float64 `mapstructure:"bounce_frequency" yaml:"bounce_frequency"`
	BounceAmplitude float64 `mapstructure:"bounce_amplitude" yaml:"bounce_amplitude"`
	DanceSwayFreq   float64 `mapstructure:"dance_sway_frequency" yaml:"dance_sway_frequency"`
	DanceSwayAmp    float64 `mapstructure:"dance_sway_amplitude" yaml:"dance_sway_amplitude"`
	DanceTiltFreq   float64 `mapstructure:"dance_tilt_frequency" yaml:"dance_tilt_frequency"`
	DanceTiltAmp    float64 `mapstructure:"dance_tilt_amplitude" yaml:"dance_tilt_amplitude"`

	EarWiggleGain float64 `mapstructure:"ear_wiggle_gain" yaml:"ear_wiggle_gain"`
	EarScaleGain  float64 `mapstructure:"ear_scale_gain" yaml:"ear_scale_gain"`

	SmileRate      float64 `mapstructure:"smile_rate" yaml:"smile_rate"`
	SmileResetRate float64 `mapstructure:"smile_reset_rate" yaml:"smile_reset_rate"`
	MouthRate      float64 `mapstructure:"mouth_rate" yaml:"mouth_rate"`
	PoseRate       float64 `mapstructure:"pose_rate" yaml:"pose_rate"`
	LeanRate       float64 `mapstructure:"lean_rate" yaml:"lean_rate"`
	DanceRate      float64 `mapstructure:"dance_rate" yaml:"dance_rate"`
	EarRate        float64 `mapstructure:"ear_rate" yaml:"ear_rate"`

	Followers []string `mapstructure:"followers" yaml:"followers"`
}

func DefaultTuning() Tuning {
	return Tuning{
		LoudnessSmoothing: 0.35,
		SilenceDecay:      0.95,

		BlinkMinGap: 2 * time.Second,
		BlinkMaxGap: 6 * time.Second,
		BlinkSpeed:  6,

		BreathPeriod:    7,
		BreathAmplitude: 0.04,
		SwayFrequency:   0.25,
		SwayAmplitude:   0.03,
		HeadFrequency:   0.17,
		HeadAmplitude:   0.06,

		SpeakGain:  3.0,
		ListenTilt: 0.1,

		WhisperGain:  1.2,
		WhisperCap:   0.4,
		WhisperSmile: 0.15,
		LeanDrop:     0.04,
		LeanPitch:    0.15,

		BounceFrequency: 2,
		BounceAmplitude: 0.06,
		DanceSwayFreq:   1,
		DanceSwayAmp:    0.25,
		DanceTiltFreq:   0.5,
		DanceTiltAmp:    0.12,

		EarWiggleGain: 2.5,
		EarScaleGain:  0.2,

		SmileRate:      0.12,
		SmileResetRate: 0.12,
		MouthRate:      0.15,
		PoseRate:       0.08,
		LeanRate:       0.1,
		DanceRate:      0.25,
		EarRate:        0.15,

		Followers: []string{MouthOpen},
	}
}

func (t Tuning) Validate() error {
	fractions := []struct {
		name string
		v    float64
	}{
		{"loudness_smoothing", t.LoudnessSmoothing},
		{"silence_decay", t.SilenceDecay},
		{"smile_rate", t.SmileRate},
		{"smile_reset_rate", t.SmileResetRate},
		{"mouth_rate", t.MouthRate},
		{"pose_rate", t.PoseRate},
		{"lean_rate", t.LeanRate},
		{"dance_rate", t.DanceRate},
		{"ear_rate", t.EarRate},
	}
	for _, f := range fractions {
		if f.v <= 0 || f.v > 1 {
			return fmt.Errorf("%w: %s must be in (0,1], got %v", ErrInvalidTuning, f.name, f.v)
		}
	}

	if t.BlinkMinGap <= 0 || t.BlinkMaxGap < t.BlinkMinGap {
		return fmt.Errorf("%w: blink gap range [%v,%v]", ErrInvalidTuning, t.BlinkMinGap, t.BlinkMaxGap)
	}
	if t.BlinkSpeed <= 0 {
		return fmt.Errorf("%w: blink_speed must be positive", ErrInvalidTuning)
	}
	if t.BreathPeriod <= 0 {
		return fmt.Errorf("%w: breath_period must be positive", ErrInvalidTuning)
	}
	if t.WhisperCap < 0 || t.WhisperCap > 1 {
		return fmt.Errorf("%w: whisper_cap must be in [0,1]", ErrInvalidTuning)
	}
	for _, g := range []float64{t.SpeakGain, t.WhisperGain, t.EarWiggleGain, t.EarScaleGain, t.ListenTilt} {
		if g < 0 {
			return fmt.Errorf("%w: gains must be non-negative", ErrInvalidTuning)
		}
	}
	return nil
}
