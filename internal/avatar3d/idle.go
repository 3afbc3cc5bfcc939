package avatar3d

import "math"

// idleMotion is the purely time-driven layer every non-dance mode builds on:
// a breathing mouth and a slow body sway with an independent head drift.
type idleMotion struct {
	Breath   float64
	BodySway float64
	HeadYaw  float64
	HeadTilt float64
}

func computeIdle(t Tuning, elapsed float64) idleMotion {
	breath := 0.5 + 0.5*math.Sin(2*math.Pi*elapsed/t.BreathPeriod)
	return idleMotion{
		Breath:   t.BreathAmplitude * breath,
		BodySway: t.SwayAmplitude * math.Sin(2*math.Pi*t.SwayFrequency*elapsed),
		HeadYaw:  t.HeadAmplitude * math.Sin(2*math.Pi*t.HeadFrequency*elapsed),
		HeadTilt: 0.5 * t.HeadAmplitude * math.Sin(2*math.Pi*t.HeadFrequency*0.7*elapsed+1.1),
	}
}

// applyIdlePose targets every head and body channel, so whatever the
// previous mode left behind eases back to the idle baseline.
func applyIdlePose(ts TargetSet, t Tuning, m idleMotion) {
	ts.Lerp(HeadRotX, 0, t.PoseRate)
	ts.Lerp(HeadRotY, m.HeadYaw, t.PoseRate)
	ts.Lerp(HeadTiltZ, m.HeadTilt, t.PoseRate)
	ts.Lerp(BodyPosY, 0, t.PoseRate)
	ts.Lerp(BodyRotX, 0, t.PoseRate)
	ts.Lerp(BodyRotY, 0, t.PoseRate)
	ts.Lerp(BodyRotZ, m.BodySway, t.PoseRate)
}
