package avatar3d

import "math"

// Policy maps mode, loudness and time onto a TargetSet. Its only state is
// the dance phase, which advances while Dance is active and holds otherwise.
type Policy struct {
	tuning     Tuning
	dancePhase float64
}

func NewPolicy(t Tuning) *Policy {
	return &Policy{tuning: t}
}

func (p *Policy) SetTuning(t Tuning) {
	p.tuning = t
}

func (p *Policy) Advance(mode Mode, dt float64) {
	if mode == ModeDance {
		p.dancePhase += dt
	}
}

func (p *Policy) DancePhase() float64 {
	return p.dancePhase
}

func (p *Policy) Targets(mode Mode, levels AudioLevels, elapsed float64) TargetSet {
	ts := NewTargetSet()
	t := p.tuning
	idle := computeIdle(t, elapsed)

	switch mode {
	case ModeSpeak:
		p.speak(ts, levels, idle)
	case ModeWhisper:
		p.whisper(ts, levels, idle)
	case ModeDance:
		p.dance(ts, levels, idle)
	default:
		applyIdlePose(ts, t, idle)
		ts.Lerp(MouthOpen, idle.Breath, t.MouthRate)
		ts.Lerp(MouthSmile, 0, t.SmileResetRate)
	}

	p.ears(ts, levels)
	return ts
}

func (p *Policy) speak(ts TargetSet, levels AudioLevels, idle idleMotion) {
	t := p.tuning
	open := clamp01(levels.Output * t.SpeakGain)

	applyIdlePose(ts, t, idle)
	ts.Lerp(HeadTiltZ, idle.HeadTilt+levels.Input*t.ListenTilt, t.PoseRate)
	ts.Direct(MouthOpen, open)
	ts.Lerp(MouthSmile, open, t.SmileRate)
}

func (p *Policy) whisper(ts TargetSet, levels AudioLevels, idle idleMotion) {
	t := p.tuning
	open := clamp(levels.Output*t.WhisperGain, 0, t.WhisperCap)

	applyIdlePose(ts, t, idle)
	ts.Lerp(BodyPosY, -t.LeanDrop*levels.Output, t.LeanRate)
	ts.Lerp(BodyRotX, t.LeanPitch*levels.Output, t.LeanRate)
	ts.Direct(MouthOpen, open)
	ts.Lerp(MouthSmile, t.WhisperSmile, t.SmileRate)
}

func (p *Policy) dance(ts TargetSet, levels AudioLevels, idle idleMotion) {
	t := p.tuning
	phase := p.dancePhase
	open := clamp01(levels.Output * t.SpeakGain)

	ts.Lerp(HeadRotX, 0, t.PoseRate)
	ts.Lerp(HeadRotY, idle.HeadYaw, t.PoseRate)
	ts.Lerp(HeadTiltZ, idle.HeadTilt, t.PoseRate)
	ts.Lerp(BodyRotX, 0, t.PoseRate)
	ts.Lerp(BodyPosY, t.BounceAmplitude*math.Sin(2*math.Pi*t.BounceFrequency*phase), t.DanceRate)
	ts.Lerp(BodyRotY, t.DanceSwayAmp*math.Sin(2*math.Pi*t.DanceSwayFreq*phase), t.DanceRate)
	ts.Lerp(BodyRotZ, t.DanceTiltAmp*math.Sin(2*math.Pi*t.DanceTiltFreq*phase), t.DanceRate)
	ts.Direct(MouthOpen, open)
	ts.Lerp(MouthSmile, open, t.SmileRate)
}

func (p *Policy) ears(ts TargetSet, levels AudioLevels) {
	t := p.tuning
	ts.Lerp(EarScale, 1+levels.Input*t.EarScaleGain, t.EarRate)
	ts.Lerp(EarWiggle, clamp01(levels.Input*t.EarWiggleGain), t.EarRate)
}
