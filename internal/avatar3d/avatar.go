package avatar3d

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/qmuntal/gltf"
)

var ErrNoMeshes = errors.New("no meshes in model")

// Handle is a settable view of one rig channel.
type Handle interface {
	Value() float64
	Set(v float64)
}

// Rig answers whether a named channel exists on the loaded model. A miss is
// a normal answer, not an error.
type Rig interface {
	Lookup(name string) (Handle, bool)
}

// MemoryRig stores channel values in memory. It backs loaded models and is
// what a renderer reads each frame.
type MemoryRig struct {
	mu     sync.RWMutex
	values map[string]float64
}

func NewMemoryRig(names ...string) *MemoryRig {
	r := &MemoryRig{values: make(map[string]float64, len(names))}
	for _, n := range names {
		r.Add(n)
	}
	return r
}

// DefaultRig exposes every registered channel plus the teeth follower.
func DefaultRig() *MemoryRig {
	r := NewMemoryRig(ChannelNames()...)
	r.Add(FollowerPrefix + MouthOpen)
	return r
}

func (r *MemoryRig) Add(name string) {
	spec, _ := LookupChannel(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[name]; !ok {
		r.values[name] = spec.Rest
	}
}

func (r *MemoryRig) Lookup(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.values[name]; !ok {
		return nil, false
	}
	return memoryHandle{rig: r, name: name}, true
}

func (r *MemoryRig) Get(name string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return v, ok
}

func (r *MemoryRig) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.values))
	for n := range r.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *MemoryRig) Values() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

type memoryHandle struct {
	rig  *MemoryRig
	name string
}

func (h memoryHandle) Value() float64 {
	v, _ := h.rig.Get(h.name)
	return v
}

func (h memoryHandle) Set(v float64) {
	h.rig.mu.Lock()
	h.rig.values[h.name] = v
	h.rig.mu.Unlock()
}

var nodeChannels = []struct {
	match    string
	channels []string
}{
	{"head", []string{HeadRotX, HeadRotY, HeadTiltZ}},
	{"body", []string{BodyPosY, BodyRotX, BodyRotY, BodyRotZ}},
	{"hips", []string{BodyPosY, BodyRotX, BodyRotY, BodyRotZ}},
	{"ear", []string{EarScale}},
}

// LoadGLTFRig builds a rig from the morph targets and named nodes of a glTF
// or GLB file. Meshes named like "teeth" expose their morphs with the
// follower prefix.
func LoadGLTFRig(path string) (*MemoryRig, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return RigFromDocument(doc)
}

func RigFromDocument(doc *gltf.Document) (*MemoryRig, error) {
	if len(doc.Meshes) == 0 {
		return nil, ErrNoMeshes
	}

	rig := NewMemoryRig()
	for _, mesh := range doc.Meshes {
		prefix := ""
		if strings.Contains(strings.ToLower(mesh.Name), "teeth") {
			prefix = FollowerPrefix
		}
		for _, name := range morphTargetNames(mesh) {
			rig.Add(prefix + name)
		}
	}

	for _, node := range doc.Nodes {
		lower := strings.ToLower(node.Name)
		for _, nc := range nodeChannels {
			if strings.Contains(lower, nc.match) {
				for _, ch := range nc.channels {
					rig.Add(ch)
				}
			}
		}
	}
	return rig, nil
}

func morphTargetNames(mesh *gltf.Mesh) []string {
	if extras, ok := mesh.Extras.(map[string]interface{}); ok {
		if raw, ok := extras["targetNames"].([]interface{}); ok {
			names := make([]string, 0, len(raw))
			for _, n := range raw {
				if s, ok := n.(string); ok && s != "" {
					names = append(names, s)
				}
			}
			return names
		}
	}

	count := 0
	for _, prim := range mesh.Primitives {
		if len(prim.Targets) > count {
			count = len(prim.Targets)
		}
	}
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("target_%d", i)
	}
	return names
}
