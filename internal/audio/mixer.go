package audio

import (
	"sync/atomic"

	"github.com/normanking/avatarmotion/internal/avatar3d"
)

// Mixer feeds the controller one analyser per audio channel: the user's
// microphone on input and the avatar's own speech on output.
type Mixer struct {
	input  *Analyser
	output *Analyser
	closed atomic.Bool
}

func NewMixer(cfg Config, opts ...Option) *Mixer {
	return &Mixer{
		input:  NewAnalyser(cfg, opts...),
		output: NewAnalyser(cfg, opts...),
	}
}

func (m *Mixer) Analyser(ch avatar3d.Channel) *Analyser {
	switch ch {
	case avatar3d.ChannelInput:
		return m.input
	case avatar3d.ChannelOutput:
		return m.output
	}
	return nil
}

func (m *Mixer) Push(ch avatar3d.Channel, samples []int16) {
	if a := m.Analyser(ch); a != nil && !m.closed.Load() {
		a.Push(samples)
	}
}

func (m *Mixer) PushBytes(ch avatar3d.Channel, pcm []byte) error {
	a := m.Analyser(ch)
	if a == nil {
		return avatar3d.ErrUnknownChannel
	}
	if m.closed.Load() {
		return nil
	}
	return a.PushBytes(pcm)
}

// Snapshot implements avatar3d.LevelProvider.
func (m *Mixer) Snapshot(ch avatar3d.Channel) ([]byte, bool) {
	if m.closed.Load() {
		return nil, false
	}
	a := m.Analyser(ch)
	if a == nil {
		return nil, false
	}
	return a.Snapshot()
}

// Close drops buffered audio; later pushes are ignored.
func (m *Mixer) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.input.Reset()
	m.output.Reset()
	return nil
}
