package avatar3d

import (
	"github.com/rs/zerolog"
)

// Blender owns the PoseState. It resolves rig handles lazily and remembers
// misses, so a channel the model lacks costs one lookup in total.
type Blender struct {
	rig     Rig
	logger  zerolog.Logger
	handles map[string]Handle
	pose    map[string]float64
}

func NewBlender(rig Rig, logger zerolog.Logger) *Blender {
	b := &Blender{
		rig:     rig,
		logger:  logger,
		handles: make(map[string]Handle),
		pose:    make(map[string]float64),
	}
	for _, name := range ChannelNames() {
		b.resolve(name)
	}
	return b
}

func (b *Blender) resolve(name string) (Handle, bool) {
	if h, seen := b.handles[name]; seen {
		return h, h != nil
	}

	var h Handle
	if b.rig != nil {
		if found, ok := b.rig.Lookup(name); ok {
			h = found
		}
	}
	b.handles[name] = h

	if h == nil {
		b.logger.Debug().Str("channel", name).Msg("Channel not present on rig, writes ignored")
		return nil, false
	}
	b.pose[name] = h.Value()
	return h, true
}

// Apply blends one frame of targets into the pose. Untargeted channels keep
// their value.
func (b *Blender) Apply(targets TargetSet, dt float64) {
	for name, target := range targets {
		h, ok := b.resolve(name)
		if !ok {
			continue
		}

		spec, _ := LookupChannel(name)
		value := target.Value
		if spec.Kind == KindMorph {
			value = clamp01(value)
		}

		if target.Blend.Kind == BlendLerp {
			value = lerp(b.pose[name], value, frameRate(target.Blend.Rate, dt))
		}
		if spec.Kind == KindMorph {
			value = clamp01(value)
		}

		b.pose[name] = value
		h.Set(value)
	}
}

// Mirror copies each primary channel onto its teeth follower verbatim.
func (b *Blender) Mirror(followers []string) {
	for _, name := range followers {
		v, ok := b.pose[name]
		if !ok {
			continue
		}
		follower := FollowerPrefix + name
		h, ok := b.resolve(follower)
		if !ok {
			continue
		}
		b.pose[follower] = v
		h.Set(v)
	}
}

func (b *Blender) Value(name string) (float64, bool) {
	v, ok := b.pose[name]
	return v, ok
}

func (b *Blender) Snapshot() PoseState {
	values := make(map[string]float64, len(b.pose))
	for k, v := range b.pose {
		values[k] = v
	}
	return PoseState{values: values}
}
