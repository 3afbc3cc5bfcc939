package avatar3d

import (
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument() *gltf.Document {
	doc := gltf.NewDocument()
	doc.Meshes = []*gltf.Mesh{
		{
			Name: "Face",
			Extras: map[string]interface{}{
				"targetNames": []interface{}{"mouthOpen", "mouthSmile", "eyeBlinkLeft", "eyeBlinkRight"},
			},
		},
		{
			Name: "Teeth_Lower",
			Extras: map[string]interface{}{
				"targetNames": []interface{}{"mouthOpen"},
			},
		},
		{
			Name: "Hat",
			Primitives: []*gltf.Primitive{
				{Attributes: gltf.PrimitiveAttributes{"POSITION": 0}, Targets: []gltf.PrimitiveAttributes{{"POSITION": 1}, {"POSITION": 2}}},
			},
		},
	}
	doc.Nodes = []*gltf.Node{
		{Name: "Armature"},
		{Name: "Head"},
		{Name: "Body"},
	}
	return doc
}

func TestMemoryRig_RestValues(t *testing.T) {
	r := NewMemoryRig(MouthOpen, EarScale, "custom")

	v, ok := r.Get(EarScale)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, _ = r.Get(MouthOpen)
	assert.Equal(t, 0.0, v)

	assert.Equal(t, []string{"custom", EarScale, MouthOpen}, r.Names())
}

func TestMemoryRig_LookupAndSet(t *testing.T) {
	r := NewMemoryRig(MouthOpen)

	h, ok := r.Lookup(MouthOpen)
	require.True(t, ok)
	h.Set(0.7)
	assert.Equal(t, 0.7, h.Value())

	v, _ := r.Get(MouthOpen)
	assert.Equal(t, 0.7, v)

	_, ok = r.Lookup("mouthFrown")
	assert.False(t, ok)
}

func TestMemoryRig_AddKeepsValue(t *testing.T) {
	r := NewMemoryRig(MouthOpen)
	h, _ := r.Lookup(MouthOpen)
	h.Set(0.5)

	r.Add(MouthOpen)
	v, _ := r.Get(MouthOpen)
	assert.Equal(t, 0.5, v)
}

func TestDefaultRig(t *testing.T) {
	r := DefaultRig()
	for _, name := range ChannelNames() {
		_, ok := r.Lookup(name)
		assert.True(t, ok, name)
	}
	_, ok := r.Lookup(FollowerPrefix + MouthOpen)
	assert.True(t, ok)
}

func TestRigFromDocument(t *testing.T) {
	rig, err := RigFromDocument(testDocument())
	require.NoError(t, err)

	names := rig.Names()
	for _, want := range []string{
		MouthOpen, MouthSmile, EyeBlinkLeft, EyeBlinkRight,
		FollowerPrefix + MouthOpen,
		"target_0", "target_1",
		HeadRotX, HeadRotY, HeadTiltZ,
		BodyPosY, BodyRotX, BodyRotY, BodyRotZ,
	} {
		assert.Contains(t, names, want)
	}
	assert.NotContains(t, names, EarScale)
	assert.NotContains(t, names, EarWiggle)
}

func TestRigFromDocument_NoMeshes(t *testing.T) {
	_, err := RigFromDocument(gltf.NewDocument())
	assert.ErrorIs(t, err, ErrNoMeshes)
}

func TestLoadGLTFRig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avatar.gltf")
	require.NoError(t, gltf.Save(testDocument(), path))

	rig, err := LoadGLTFRig(path)
	require.NoError(t, err)

	_, ok := rig.Lookup(FollowerPrefix + MouthOpen)
	assert.True(t, ok)
	_, ok = rig.Lookup(HeadRotY)
	assert.True(t, ok)
}

func TestLoadGLTFRig_Missing(t *testing.T) {
	_, err := LoadGLTFRig(filepath.Join(t.TempDir(), "nope.glb"))
	assert.Error(t, err)
}
