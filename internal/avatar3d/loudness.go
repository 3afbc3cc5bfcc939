package avatar3d

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownChannel = errors.New("unknown audio channel")

type Channel int

const (
	ChannelInput Channel = iota
	ChannelOutput
)

func (c Channel) String() string {
	switch c {
	case ChannelInput:
		return "input"
	case ChannelOutput:
		return "output"
	default:
		return "unknown"
	}
}

func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input", "mic":
		return ChannelInput, nil
	case "output", "tts":
		return ChannelOutput, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// LevelProvider hands the controller the latest frequency-magnitude snapshot
// for a channel. ok is false while the stream has produced nothing usable.
type LevelProvider interface {
	Snapshot(ch Channel) (bins []byte, ok bool)
}

type AudioLevels struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// LoudnessExtractor smooths byte frequency bins into a [0,1] loudness level.
type LoudnessExtractor struct {
	smoothing float64
	decay     float64
	level     float64
}

func NewLoudnessExtractor(smoothing, decay float64) *LoudnessExtractor {
	return &LoudnessExtractor{smoothing: smoothing, decay: decay}
}

// Update folds one snapshot into the level. Missing data decays the previous
// value instead of snapping to zero.
func (e *LoudnessExtractor) Update(bins []byte) float64 {
	if len(bins) == 0 {
		e.level = clamp01(e.level * e.decay)
		return e.level
	}

	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	sample := float64(sum) / float64(len(bins)) / 255.0

	e.level = clamp01(e.level*(1-e.smoothing) + sample*e.smoothing)
	return e.level
}

func (e *LoudnessExtractor) Level() float64 {
	return e.level
}

func (e *LoudnessExtractor) SetParams(smoothing, decay float64) {
	e.smoothing = smoothing
	e.decay = decay
}

func (e *LoudnessExtractor) Reset() {
	e.level = 0
}

type Levels struct {
	input  *LoudnessExtractor
	output *LoudnessExtractor
}

func NewLevels(smoothing, decay float64) *Levels {
	return &Levels{
		input:  NewLoudnessExtractor(smoothing, decay),
		output: NewLoudnessExtractor(smoothing, decay),
	}
}

func (l *Levels) Update(p LevelProvider) AudioLevels {
	var inBins, outBins []byte
	if p != nil {
		if b, ok := p.Snapshot(ChannelInput); ok {
			inBins = b
		}
		if b, ok := p.Snapshot(ChannelOutput); ok {
			outBins = b
		}
	}
	return AudioLevels{
		Input:  l.input.Update(inBins),
		Output: l.output.Update(outBins),
	}
}

func (l *Levels) Current() AudioLevels {
	return AudioLevels{Input: l.input.Level(), Output: l.output.Level()}
}

func (l *Levels) SetParams(smoothing, decay float64) {
	l.input.SetParams(smoothing, decay)
	l.output.SetParams(smoothing, decay)
}
