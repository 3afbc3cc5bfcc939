package avatar3d

import (
	"encoding/json"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// PoseState is a read-only copy of the blended channel values for one frame.
type PoseState struct {
	values map[string]float64
}

func NewPoseState(values map[string]float64) PoseState {
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return PoseState{values: cp}
}

func (p PoseState) Value(name string) (float64, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Get returns the channel value, or its rest value when the rig lacks it.
func (p PoseState) Get(name string) float64 {
	if v, ok := p.values[name]; ok {
		return v
	}
	spec, _ := LookupChannel(name)
	return spec.Rest
}

func (p PoseState) Channels() []string {
	names := make([]string, 0, len(p.values))
	for n := range p.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (p PoseState) Len() int {
	return len(p.values)
}

func (p PoseState) HeadRotation() mgl64.Vec3 {
	return mgl64.Vec3{p.Get(HeadRotX), p.Get(HeadRotY), p.Get(HeadTiltZ)}
}

func (p PoseState) BodyPosition() mgl64.Vec3 {
	return mgl64.Vec3{0, p.Get(BodyPosY), 0}
}

func (p PoseState) BodyRotation() mgl64.Vec3 {
	return mgl64.Vec3{p.Get(BodyRotX), p.Get(BodyRotY), p.Get(BodyRotZ)}
}

// BodyTransform composes translation and XYZ rotation the way the renderer
// builds its model matrix.
func (p PoseState) BodyTransform() mgl64.Mat4 {
	pos := p.BodyPosition()
	rot := p.BodyRotation()
	m := mgl64.Translate3D(pos[0], pos[1], pos[2])
	m = m.Mul4(mgl64.HomogRotate3DX(rot[0]))
	m = m.Mul4(mgl64.HomogRotate3DY(rot[1]))
	m = m.Mul4(mgl64.HomogRotate3DZ(rot[2]))
	return m
}

func (p PoseState) MarshalJSON() ([]byte, error) {
	if p.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.values)
}
