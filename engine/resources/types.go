package resources

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

/** @brief The decoded type of a loadable asset. */
type AssetKind int

const (
	AssetKindUnknown AssetKind = iota
	/** @brief Renderable model geometry. */
	AssetKindFlver
	/** @brief Collision geometry. */
	AssetKindCollision
	/** @brief Navigation mesh. */
	AssetKindNavmesh
	/** @brief A texture uploaded through a texture pool. */
	AssetKindTexture
)

func (k AssetKind) String() string {
	switch k {
	case AssetKindFlver:
		return "flver"
	case AssetKindCollision:
		return "collision"
	case AssetKindNavmesh:
		return "navmesh"
	case AssetKindTexture:
		return "texture"
	}
	return "unknown"
}

/**
 * @brief Identifies a loadable unit. Two descriptions are the same asset when
 * their virtual paths match.
 */
type AssetDescription struct {
	AssetName string
	/** @brief Path on disk: the loose file, or the archive holding the asset. */
	AssetPath string
	/** @brief Logical id, used as the cache key. */
	AssetVirtualPath string
	/** @brief Virtual path of the containing archive, empty for loose files. */
	AssetArchiveVirtualPath string
}

func (a AssetDescription) Equal(o AssetDescription) bool {
	return a.AssetVirtualPath == o.AssetVirtualPath
}

func (a AssetDescription) IsArchived() bool {
	return a.AssetArchiveVirtualPath != ""
}

/** @brief A decoded asset held by the resource cache. */
type Resource interface {
	Kind() AssetKind
	/** @brief True once every GPU object backing the resource exists. */
	Resident() bool
}

/** @brief Resources that own GPU objects created on the render thread. */
type Uploadable interface {
	Upload(d renderer.Device, cl renderer.CommandList) error
	/** @brief Releases GPU objects. Render thread only. */
	Release()
}

/** @brief A slot in a texture pool, as seen by texture resources. */
type TextureSlot interface {
	Index() uint32
	Resident() bool
}

type Bounds struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

func (b Bounds) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

type Submesh struct {
	Name      string
	Material  string
	Positions [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	Indices   []uint32
}

func (s *Submesh) TriangleCount() int {
	return len(s.Indices) / 3
}

// Geometry is shared by every mesh-like resource.
type Geometry struct {
	Submeshes []Submesh
	Bounds    Bounds

	mu       sync.Mutex
	buffers  []renderer.Buffer
	resident atomic.Bool
}

func (g *Geometry) Resident() bool {
	return g.resident.Load()
}

func (g *Geometry) VertexCount() int {
	n := 0
	for i := range g.Submeshes {
		n += len(g.Submeshes[i].Positions)
	}
	return n
}

// ComputeBounds recomputes the axis aligned bounds from every submesh.
func (g *Geometry) ComputeBounds() {
	first := true
	for i := range g.Submeshes {
		for _, p := range g.Submeshes[i].Positions {
			v := mgl32.Vec3(p)
			if first {
				g.Bounds = Bounds{Min: v, Max: v}
				first = false
				continue
			}
			for c := 0; c < 3; c++ {
				g.Bounds.Min[c] = float32(math.Min(float64(g.Bounds.Min[c]), float64(v[c])))
				g.Bounds.Max[c] = float32(math.Max(float64(g.Bounds.Max[c]), float64(v[c])))
			}
		}
	}
}

// Upload creates one vertex and one index buffer per submesh.
func (g *Geometry) Upload(d renderer.Device, cl renderer.CommandList) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.resident.Load() {
		return nil
	}
	for i := range g.Submeshes {
		sm := &g.Submeshes[i]
		vertices := packPositions(sm.Positions)
		vb, err := d.CreateBuffer(metadata.BufferDescription{
			Name:  fmt.Sprintf("%s.vertices", sm.Name),
			Usage: metadata.BufferUsageVertex,
			Size:  uint64(len(vertices)),
		})
		if err != nil {
			return err
		}
		g.buffers = append(g.buffers, vb)
		if err := cl.UpdateBuffer(vb, 0, vertices); err != nil {
			return err
		}

		indices := packIndices(sm.Indices)
		ib, err := d.CreateBuffer(metadata.BufferDescription{
			Name:  fmt.Sprintf("%s.indices", sm.Name),
			Usage: metadata.BufferUsageIndex,
			Size:  uint64(len(indices)),
		})
		if err != nil {
			return err
		}
		g.buffers = append(g.buffers, ib)
		if err := cl.UpdateBuffer(ib, 0, indices); err != nil {
			return err
		}
	}
	g.resident.Store(true)
	return nil
}

func (g *Geometry) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range g.buffers {
		b.Dispose()
	}
	g.buffers = nil
	g.resident.Store(false)
}

func packPositions(positions [][3]float32) []byte {
	out := make([]byte, len(positions)*12)
	for i, p := range positions {
		for c := 0; c < 3; c++ {
			binary.LittleEndian.PutUint32(out[i*12+c*4:], math.Float32bits(p[c]))
		}
	}
	return out
}

func packIndices(indices []uint32) []byte {
	out := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}

/** @brief Renderable model. */
type FlverResource struct {
	Name string
	Geometry
}

func (*FlverResource) Kind() AssetKind { return AssetKindFlver }

type CollisionResource struct {
	Name string
	Geometry
}

func (*CollisionResource) Kind() AssetKind { return AssetKindCollision }

type NavmeshResource struct {
	Name string
	Geometry
	/** @brief Per triangle, the index of the triangle across each edge or -1. */
	Adjacency [][3]int32
}

func (*NavmeshResource) Kind() AssetKind { return AssetKindNavmesh }

// BuildAdjacency links triangles of the first submesh sharing an edge.
func (n *NavmeshResource) BuildAdjacency() {
	if len(n.Submeshes) == 0 {
		return
	}
	idx := n.Submeshes[0].Indices
	tris := len(idx) / 3
	n.Adjacency = make([][3]int32, tris)
	type edge struct{ a, b uint32 }
	owners := make(map[edge]int32, tris*3)
	for t := 0; t < tris; t++ {
		n.Adjacency[t] = [3]int32{-1, -1, -1}
		for e := 0; e < 3; e++ {
			a, b := idx[t*3+e], idx[t*3+(e+1)%3]
			if a > b {
				a, b = b, a
			}
			k := edge{a, b}
			if other, ok := owners[k]; ok {
				n.Adjacency[t][e] = other
				for oe := 0; oe < 3; oe++ {
					oa, ob := idx[int(other)*3+oe], idx[int(other)*3+(oe+1)%3]
					if oa > ob {
						oa, ob = ob, oa
					}
					if oa == a && ob == b {
						n.Adjacency[other][oe] = int32(t)
					}
				}
				continue
			}
			owners[k] = int32(t)
		}
	}
}

/**
 * @brief A texture decoded from a DDS blob or a loose image. Pixel data is dropped
 * once the pool handle has taken over the pixels.
 */
type TextureResource struct {
	Name string
	/** @brief Raw DDS blob, set for block-compressed textures. */
	Data []byte
	/** @brief Decoded pixels, set for loose images. */
	Image image.Image
	/** @brief Set by the resource manager once a pool slot is allocated. */
	Handle TextureSlot
}

func (*TextureResource) Kind() AssetKind { return AssetKindTexture }

func (t *TextureResource) Resident() bool {
	return t.Handle != nil && t.Handle.Resident()
}
