package avatar3d

import "math"

type BlendKind int

const (
	// BlendDirect writes the target as-is on the frame it is issued.
	BlendDirect BlendKind = iota
	// BlendLerp moves the current value a fraction of the way to the target.
	BlendLerp
)

type Blend struct {
	Kind BlendKind
	Rate float64
}

type Target struct {
	Value float64
	Blend Blend
}

// TargetSet is one frame's instructions, keyed by channel name. It carries
// no state between frames.
type TargetSet map[string]Target

func NewTargetSet() TargetSet {
	return make(TargetSet, len(ChannelSpecs))
}

func (ts TargetSet) Direct(name string, v float64) {
	ts[name] = Target{Value: v, Blend: Blend{Kind: BlendDirect}}
}

func (ts TargetSet) Lerp(name string, v, rate float64) {
	ts[name] = Target{Value: v, Blend: Blend{Kind: BlendLerp, Rate: rate}}
}

func (ts TargetSet) Value(name string) (float64, bool) {
	t, ok := ts[name]
	return t.Value, ok
}

// frameRate converts a 60 Hz per-frame rate into the fraction for a frame
// of length dt seconds.
func frameRate(rate, dt float64) float64 {
	if rate >= 1 {
		return 1
	}
	if rate <= 0 {
		return 0
	}
	return 1 - math.Pow(1-rate, dt*60)
}
