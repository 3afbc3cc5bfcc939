package avatar3d

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"idle", ModeIdle},
		{"Speak", ModeSpeak},
		{" WHISPER ", ModeWhisper},
		{"dance", ModeDance},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseMode("sing")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestMode_TextRoundTrip(t *testing.T) {
	data, err := json.Marshal(map[string]Mode{"mode": ModeWhisper})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"whisper"}`, string(data))

	var back map[string]Mode
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ModeWhisper, back["mode"])

	_, err = Mode(9).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.Equal(t, "mode(9)", Mode(9).String())
	assert.False(t, Mode(-1).Valid())
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel("Output")
	require.NoError(t, err)
	assert.Equal(t, ChannelOutput, ch)

	ch, err = ParseChannel("mic")
	require.NoError(t, err)
	assert.Equal(t, ChannelInput, ch)

	_, err = ParseChannel("left")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestTuning_Validate(t *testing.T) {
	require.NoError(t, DefaultTuning().Validate())

	tests := []struct {
		name   string
		mutate func(*Tuning)
	}{
		{"zero smoothing", func(tu *Tuning) { tu.LoudnessSmoothing = 0 }},
		{"decay above one", func(tu *Tuning) { tu.SilenceDecay = 1.2 }},
		{"inverted gaps", func(tu *Tuning) { tu.BlinkMinGap, tu.BlinkMaxGap = 5*time.Second, 2*time.Second }},
		{"zero blink speed", func(tu *Tuning) { tu.BlinkSpeed = 0 }},
		{"zero breath period", func(tu *Tuning) { tu.BreathPeriod = 0 }},
		{"cap above one", func(tu *Tuning) { tu.WhisperCap = 1.5 }},
		{"negative gain", func(tu *Tuning) { tu.SpeakGain = -1 }},
		{"zero pose rate", func(tu *Tuning) { tu.PoseRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tu := DefaultTuning()
			tt.mutate(&tu)
			assert.ErrorIs(t, tu.Validate(), ErrInvalidTuning)
		})
	}
}

func TestFrameRate(t *testing.T) {
	assert.InDelta(t, 0.12, frameRate(0.12, 1.0/60), 1e-12)
	assert.InDelta(t, 1-0.88*0.88, frameRate(0.12, 2.0/60), 1e-12)
	assert.Equal(t, 1.0, frameRate(1, 0.5))
	assert.Equal(t, 0.0, frameRate(0, 0.5))
}

func TestLookupChannel(t *testing.T) {
	s, ok := LookupChannel(EarScale)
	require.True(t, ok)
	assert.Equal(t, KindPose, s.Kind)
	assert.Equal(t, 1.0, s.Rest)

	s, ok = LookupChannel(FollowerPrefix + MouthOpen)
	require.True(t, ok)
	assert.Equal(t, KindMorph, s.Kind)
	assert.Equal(t, FollowerPrefix+MouthOpen, s.Name)

	s, ok = LookupChannel("browUp")
	assert.False(t, ok)
	assert.Equal(t, KindMorph, s.Kind)
}
