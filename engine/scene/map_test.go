package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mapstudio/engine/core"
)

const mapYAML = `# edited by hand
id: m10_00_00_00
version: 3
parts:
  - name: m1000B0_0000
    model: m1000B0
    position: [1, 2, 3]
    rotation: [0, 90, 0]
    draw_groups: [1, 4, 16]
  - name: c1000_0000
    model: c1000
    position: [0, 0, 0]
    npc_param: 12000
regions:
  - name: spawn
    shape: box
    position: [5, 0, 5]
events:
  - name: offset
    type: map_offset
    position: [100, 0, -50]
`

func loadTestMap(t *testing.T) *Map {
	t.Helper()
	doc, err := ParseDocument([]byte(mapYAML))
	require.NoError(t, err)
	m := NewMap("m10_00_00_00", NewRegistry(), NewRenderScene())
	require.NoError(t, m.LoadDocument(doc))
	return m
}

func TestLoadDocument(t *testing.T) {
	m := loadTestMap(t)

	assert.Len(t, m.Objects(), 4)
	parts := m.ObjectsOfType(ObjectTypePart)
	require.Len(t, parts, 2)
	assert.Equal(t, "m1000B0", parts[0].Model)
	assert.True(t, parts[0].UseDrawGroups)
	assert.False(t, parts[1].UseDrawGroups)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, parts[0].Transform.Position)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, parts[0].Transform.Scale)

	regions := m.ObjectsOfType(ObjectTypeRegion)
	require.Len(t, regions, 1)
	assert.Equal(t, RegionShapeBox, regions[0].Shape)
	assert.Equal(t, mgl32.Vec3{100, 0, -50}, m.Offset)
	assert.Equal(t, 4, m.Registry().Len())
}

func TestSerializeKeepsUnmodelledFields(t *testing.T) {
	m := loadTestMap(t)
	piece, ok := m.FindObject("m1000B0_0000")
	require.True(t, ok)
	piece.Transform.Position = mgl32.Vec3{7, 8, 9}

	added := NewMapObject(ObjectTypePart, "o2000_0000")
	added.Model = "o2000"
	m.AddObject(added)

	doc, err := m.Serialize()
	require.NoError(t, err)
	out, err := doc.Encode()
	require.NoError(t, err)

	reloaded, err := ParseDocument(out)
	require.NoError(t, err)
	again := NewMap("m10_00_00_00", NewRegistry(), NewRenderScene())
	require.NoError(t, again.LoadDocument(reloaded))

	p, ok := again.FindObject("m1000B0_0000")
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{7, 8, 9}, p.Transform.Position)
	_, ok = again.FindObject("o2000_0000")
	assert.True(t, ok)

	s := string(out)
	assert.Contains(t, s, "# edited by hand")
	assert.Contains(t, s, "version: 3")
	assert.Contains(t, s, "draw_groups: [1, 4, 16]")
	assert.Contains(t, s, "npc_param: 12000")
	assert.Contains(t, s, "position: [7, 8, 9]")
}

func TestSerializePrecheck(t *testing.T) {
	m := loadTestMap(t)
	dup := NewMapObject(ObjectTypePart, "m1000B0_0000")
	m.AddObject(dup)
	_, err := m.Serialize()
	assert.ErrorIs(t, err, core.ErrSaveAborted)

	m.RemoveObject(dup)
	unnamed := NewMapObject(ObjectTypePart, "")
	m.AddObject(unnamed)
	_, err = m.Serialize()
	assert.ErrorIs(t, err, core.ErrSaveAborted)
}

func TestParseDocumentRejectsNonMapping(t *testing.T) {
	_, err := ParseDocument([]byte("- just\n- a list\n"))
	assert.ErrorIs(t, err, core.ErrDecodeFailure)

	doc, err := ParseDocument([]byte("parts: 3\n"))
	require.NoError(t, err)
	err = NewMap("m", NewRegistry(), nil).LoadDocument(doc)
	assert.ErrorIs(t, err, core.ErrDecodeFailure)
}

func TestTransformWorldMatrix(t *testing.T) {
	tr := Transform{Position: mgl32.Vec3{1, 2, 3}, Rotation: mgl32.Vec3{0, 90, 0}, Scale: mgl32.Vec3{2, 2, 2}}
	p := tr.WorldMatrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 1, p[0], 1e-5)
	assert.InDelta(t, 2, p[1], 1e-5)
	assert.InDelta(t, 1, p[2], 1e-5)
}
