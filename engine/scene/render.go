package scene

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/mapstudio/engine/resources"
)

// RenderFilter selects which categories of meshes are drawn.
type RenderFilter uint32

const (
	RenderFilterMapPiece RenderFilter = 1 << iota
	RenderFilterCharacter
	RenderFilterObject
	RenderFilterCollision
	RenderFilterNavmesh
	RenderFilterRegion

	RenderFilterAll RenderFilter = 0xFFFFFFFF
)

// MeshSource is the resource a mesh draws. Resource handles satisfy it.
type MeshSource interface {
	VirtualPath() string
	IsLoaded() bool
}

// RenderMesh is one drawable in the render scene. It never owns the object
// it belongs to: Selectable resolves only while the object exists.
type RenderMesh struct {
	Source      MeshSource
	Placeholder RegionShape
	Filter      RenderFilter
	WorldMatrix mgl32.Mat4
	Selectable  ObjectRef
	Visible     bool
}

func NewRenderMesh(src MeshSource, filter RenderFilter) *RenderMesh {
	return &RenderMesh{
		Source:      src,
		Filter:      filter,
		WorldMatrix: mgl32.Ident4(),
		Visible:     true,
	}
}

// NewRegionMesh returns a placeholder mesh for a region volume.
func NewRegionMesh(shape RegionShape) *RenderMesh {
	m := NewRenderMesh(nil, RenderFilterRegion)
	m.Placeholder = shape
	return m
}

// Drawable is false while the source resource is not loaded.
func (m *RenderMesh) Drawable() bool {
	if !m.Visible {
		return false
	}
	if m.Source == nil {
		return m.Placeholder != RegionShapeNone
	}
	return m.Source.IsLoaded()
}

type RenderScene struct {
	mu     sync.RWMutex
	meshes []*RenderMesh
}

func NewRenderScene() *RenderScene {
	return &RenderScene{}
}

func (s *RenderScene) Add(m *RenderMesh) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meshes = append(s.meshes, m)
}

func (s *RenderScene) Remove(m *RenderMesh) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.meshes {
		if c == m {
			s.meshes = append(s.meshes[:i], s.meshes[i+1:]...)
			return
		}
	}
}

func (s *RenderScene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meshes)
}

// Collect returns the meshes matching filter that can be drawn this frame.
// Meshes whose resources are still loading or failed are skipped.
func (s *RenderScene) Collect(filter RenderFilter) []*RenderMesh {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RenderMesh, 0, len(s.meshes))
	for _, m := range s.meshes {
		if m.Filter&filter != 0 && m.Drawable() {
			out = append(out, m)
		}
	}
	return out
}

// Prune drops meshes whose owning object no longer exists.
func (s *RenderScene) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.meshes[:0]
	n := 0
	for _, m := range s.meshes {
		if !m.Selectable.IsZero() && !m.Selectable.Exists() {
			n++
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(s.meshes); i++ {
		s.meshes[i] = nil
	}
	s.meshes = kept
	return n
}

var (
	placeholderOnce sync.Once
	placeholders    map[RegionShape]*resources.Geometry
)

// PlaceholderGeometry returns the shared unit mesh drawn for a region shape.
func PlaceholderGeometry(shape RegionShape) *resources.Geometry {
	placeholderOnce.Do(func() {
		placeholders = map[RegionShape]*resources.Geometry{
			RegionShapeBox:      boxGeometry("region.box", 1),
			RegionShapePoint:    boxGeometry("region.point", 0.1),
			RegionShapeSphere:   sphereGeometry("region.sphere", 8, 12),
			RegionShapeCylinder: cylinderGeometry("region.cylinder", 12),
		}
	})
	return placeholders[shape]
}

func boxGeometry(name string, half float32) *resources.Geometry {
	p := [][3]float32{
		{-half, -half, -half}, {half, -half, -half}, {half, half, -half}, {-half, half, -half},
		{-half, -half, half}, {half, -half, half}, {half, half, half}, {-half, half, half},
	}
	idx := []uint32{
		0, 2, 1, 0, 3, 2, // back
		4, 5, 6, 4, 6, 7, // front
		0, 1, 5, 0, 5, 4, // bottom
		3, 7, 6, 3, 6, 2, // top
		0, 4, 7, 0, 7, 3, // left
		1, 2, 6, 1, 6, 5, // right
	}
	return newGeometry(name, p, idx)
}

func sphereGeometry(name string, rings, segments int) *resources.Geometry {
	var p [][3]float32
	for r := 0; r <= rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s <= segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			p = append(p, [3]float32{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Sin(theta)),
			})
		}
	}
	var idx []uint32
	stride := uint32(segments + 1)
	for r := uint32(0); r < uint32(rings); r++ {
		for s := uint32(0); s < uint32(segments); s++ {
			a := r*stride + s
			b := a + stride
			idx = append(idx, a, b, a+1, a+1, b, b+1)
		}
	}
	return newGeometry(name, p, idx)
}

func cylinderGeometry(name string, segments int) *resources.Geometry {
	var p [][3]float32
	for s := 0; s < segments; s++ {
		theta := 2 * math.Pi * float64(s) / float64(segments)
		x, z := float32(math.Cos(theta)), float32(math.Sin(theta))
		p = append(p, [3]float32{x, 0, z}, [3]float32{x, 1, z})
	}
	var idx []uint32
	n := uint32(segments)
	for s := uint32(0); s < n; s++ {
		a, b := s*2, ((s+1)%n)*2
		idx = append(idx, a, a+1, b, b, a+1, b+1)
	}
	return newGeometry(name, p, idx)
}

func newGeometry(name string, p [][3]float32, idx []uint32) *resources.Geometry {
	g := &resources.Geometry{Submeshes: []resources.Submesh{{Name: name, Positions: p, Indices: idx}}}
	g.ComputeBounds()
	return g
}
