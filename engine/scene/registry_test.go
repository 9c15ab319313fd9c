package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	loaded bool
}

func (f *fakeSource) VirtualPath() string { return "map/m10/model/m1" }
func (f *fakeSource) IsLoaded() bool      { return f.loaded }

func TestObjectRefStopsResolvingAfterRemoval(t *testing.T) {
	rs := NewRenderScene()
	m := NewMap("m10_00_00_00", NewRegistry(), rs)
	o := NewMapObject(ObjectTypePart, "m1000B0_0000")
	m.AddObject(o)

	mesh := NewRenderMesh(&fakeSource{}, RenderFilterMapPiece)
	mesh.Selectable = m.Registry().Ref(o)
	o.RenderMesh = mesh
	rs.Add(mesh)

	got, ok := mesh.Selectable.Resolve()
	require.True(t, ok)
	assert.Same(t, o, got)

	require.True(t, m.RemoveObject(o))
	assert.False(t, mesh.Selectable.Exists())
	assert.Equal(t, 0, rs.Len())
	assert.False(t, m.RemoveObject(o))
}

func TestRenderScenePrune(t *testing.T) {
	reg := NewRegistry()
	rs := NewRenderScene()
	o := NewMapObject(ObjectTypeRegion, "r")
	reg.Register(o)

	owned := NewRegionMesh(RegionShapeBox)
	owned.Selectable = reg.Ref(o)
	free := NewRegionMesh(RegionShapePoint)
	rs.Add(owned)
	rs.Add(free)

	reg.Unregister(o.ID)
	assert.Equal(t, 1, rs.Prune())
	assert.Equal(t, 1, rs.Len())
	assert.True(t, ObjectRef{}.IsZero())
	assert.False(t, ObjectRef{}.Exists())
}

func TestRenderSceneCollect(t *testing.T) {
	rs := NewRenderScene()
	src := &fakeSource{}
	piece := NewRenderMesh(src, RenderFilterMapPiece)
	region := NewRegionMesh(RegionShapeSphere)
	hidden := NewRegionMesh(RegionShapeBox)
	hidden.Visible = false
	rs.Add(piece)
	rs.Add(region)
	rs.Add(hidden)

	assert.Equal(t, []*RenderMesh{region}, rs.Collect(RenderFilterAll))
	src.loaded = true
	assert.Equal(t, []*RenderMesh{piece, region}, rs.Collect(RenderFilterAll))
	assert.Equal(t, []*RenderMesh{piece}, rs.Collect(RenderFilterMapPiece))
}

func TestPlaceholderGeometry(t *testing.T) {
	for _, shape := range []RegionShape{RegionShapeBox, RegionShapePoint, RegionShapeSphere, RegionShapeCylinder} {
		g := PlaceholderGeometry(shape)
		require.NotNil(t, g, shape)
		sm := g.Submeshes[0]
		assert.Zero(t, len(sm.Indices)%3, shape)
		for _, i := range sm.Indices {
			assert.Less(t, int(i), len(sm.Positions), shape)
		}
	}
	assert.Same(t, PlaceholderGeometry(RegionShapeBox), PlaceholderGeometry(RegionShapeBox))
	assert.Nil(t, PlaceholderGeometry(RegionShapeNone))
}
