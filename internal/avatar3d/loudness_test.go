package avatar3d

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeProvider struct {
	bins   map[Channel][]byte
	closed bool
}

func (p *fakeProvider) Snapshot(ch Channel) ([]byte, bool) {
	b, ok := p.bins[ch]
	return b, ok && len(b) > 0
}

func (p *fakeProvider) Close() error {
	p.closed = true
	return nil
}

func filled(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestLoudnessExtractor_EMA(t *testing.T) {
	e := NewLoudnessExtractor(0.35, 0.95)

	assert.InDelta(t, 0.35, e.Update(filled(64, 255)), 1e-12)
	assert.InDelta(t, 0.35*0.65+0.35, e.Update(filled(64, 255)), 1e-12)

	e.Reset()
	assert.InDelta(t, 0.5*0.35, e.Update([]byte{0, 255, 0, 255}), 1e-12)
}

func TestLoudnessExtractor_DecayOnSilence(t *testing.T) {
	e := NewLoudnessExtractor(0.35, 0.95)
	initial := e.Update(filled(32, 200))

	const n = 25
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			e.Update(nil)
		} else {
			e.Update([]byte{})
		}
	}
	assert.InDelta(t, initial*math.Pow(0.95, n), e.Level(), 1e-12)
}

func TestLoudnessExtractor_StaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	e := NewLoudnessExtractor(0.35, 0.95)

	for i := 0; i < 5000; i++ {
		var bins []byte
		if rng.Intn(4) > 0 {
			bins = make([]byte, rng.Intn(256))
			rng.Read(bins)
		}
		level := e.Update(bins)
		assert.GreaterOrEqual(t, level, 0.0)
		assert.LessOrEqual(t, level, 1.0)
	}
}

func TestLevels_UpdateFromProvider(t *testing.T) {
	p := &fakeProvider{bins: map[Channel][]byte{
		ChannelOutput: filled(16, 255),
	}}
	l := NewLevels(0.35, 0.95)

	got := l.Update(p)
	assert.InDelta(t, 0.35, got.Output, 1e-12)
	assert.Equal(t, 0.0, got.Input)

	p.bins[ChannelOutput] = nil
	got = l.Update(p)
	assert.InDelta(t, 0.35*0.95, got.Output, 1e-12)
	assert.Equal(t, got, l.Current())
}

func TestLevels_NilProviderDecays(t *testing.T) {
	l := NewLevels(0.35, 0.95)
	got := l.Update(nil)
	assert.Equal(t, AudioLevels{}, got)
}
