package avatar3d

import "strings"

type ChannelKind int

const (
	KindMorph ChannelKind = iota
	KindPose
)

func (k ChannelKind) String() string {
	if k == KindPose {
		return "pose"
	}
	return "morph"
}

const (
	MouthOpen     = "mouthOpen"
	MouthSmile    = "mouthSmile"
	EyeBlinkLeft  = "eyeBlinkLeft"
	EyeBlinkRight = "eyeBlinkRight"
	EarWiggle     = "earWiggle"

	HeadRotX  = "headRotX"
	HeadRotY  = "headRotY"
	HeadTiltZ = "headTiltZ"
	BodyPosY  = "bodyPosY"
	BodyRotX  = "bodyRotX"
	BodyRotY  = "bodyRotY"
	BodyRotZ  = "bodyRotZ"
	EarScale  = "earScale"
)

// FollowerPrefix qualifies channels that live on the teeth sub-mesh.
const FollowerPrefix = "teeth."

type ChannelSpec struct {
	Name string
	Kind ChannelKind
	Rest float64
}

var ChannelSpecs = []ChannelSpec{
	{Name: MouthOpen, Kind: KindMorph},
	{Name: MouthSmile, Kind: KindMorph},
	{Name: EyeBlinkLeft, Kind: KindMorph},
	{Name: EyeBlinkRight, Kind: KindMorph},
	{Name: EarWiggle, Kind: KindMorph},
	{Name: HeadRotX, Kind: KindPose},
	{Name: HeadRotY, Kind: KindPose},
	{Name: HeadTiltZ, Kind: KindPose},
	{Name: BodyPosY, Kind: KindPose},
	{Name: BodyRotX, Kind: KindPose},
	{Name: BodyRotY, Kind: KindPose},
	{Name: BodyRotZ, Kind: KindPose},
	{Name: EarScale, Kind: KindPose, Rest: 1},
}

var channelIndex = func() map[string]ChannelSpec {
	m := make(map[string]ChannelSpec, len(ChannelSpecs))
	for _, s := range ChannelSpecs {
		m[s.Name] = s
	}
	return m
}()

// LookupChannel reports the registered spec for name. Follower channels
// inherit the spec of the channel they mirror; anything else unknown is a morph.
func LookupChannel(name string) (ChannelSpec, bool) {
	if s, ok := channelIndex[name]; ok {
		return s, true
	}
	if base, ok := strings.CutPrefix(name, FollowerPrefix); ok {
		if s, ok := channelIndex[base]; ok {
			s.Name = name
			return s, true
		}
	}
	return ChannelSpec{Name: name, Kind: KindMorph}, false
}

func ChannelNames() []string {
	names := make([]string, len(ChannelSpecs))
	for i, s := range ChannelSpecs {
		names[i] = s.Name
	}
	return names
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
