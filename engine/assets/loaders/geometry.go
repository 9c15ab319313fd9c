package loaders

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/resources"
)

// ReadSubmeshes decodes every triangle primitive of a binary glTF blob.
// Meshes are kept in model space, node transforms are ignored.
func ReadSubmeshes(name string, data []byte) (subs []resources.Submesh, err error) {
	// modeler panics on malformed accessors instead of returning errors
	defer func() {
		if r := recover(); r != nil {
			subs = nil
			err = errors.Wrapf(core.ErrDecodeFailure, "gltf %s: %v", name, r)
		}
	}()

	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "gltf %s: %v", name, err)
	}

	for mi, mesh := range doc.Meshes {
		for pi, prim := range mesh.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				core.LogDebug("gltf %s: skipping primitive %d/%d with mode %d", name, mi, pi, prim.Mode)
				continue
			}
			sm, err := readPrimitive(doc, prim)
			if err != nil {
				return nil, errors.Wrapf(err, "gltf %s mesh %d primitive %d", name, mi, pi)
			}
			sm.Name = mesh.Name
			if sm.Name == "" {
				sm.Name = fmt.Sprintf("%s_%d", name, mi)
			}
			if len(mesh.Primitives) > 1 {
				sm.Name = fmt.Sprintf("%s.%d", sm.Name, pi)
			}
			subs = append(subs, sm)
		}
	}
	if len(subs) == 0 {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "gltf %s: no triangle geometry", name)
	}
	return subs, nil
}

func accessor(doc *gltf.Document, idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(doc.Accessors) {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "accessor %d out of range (%d)", idx, len(doc.Accessors))
	}
	return doc.Accessors[idx], nil
}

func readPrimitive(doc *gltf.Document, prim *gltf.Primitive) (resources.Submesh, error) {
	var sm resources.Submesh

	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return sm, errors.Wrap(core.ErrDecodeFailure, "missing POSITION")
	}
	acc, err := accessor(doc, posIdx)
	if err != nil {
		return sm, err
	}
	if sm.Positions, err = modeler.ReadPosition(doc, acc, nil); err != nil {
		return sm, errors.Wrapf(core.ErrDecodeFailure, "positions: %v", err)
	}

	if idx, ok := prim.Attributes["NORMAL"]; ok {
		if acc, err := accessor(doc, idx); err == nil {
			if sm.Normals, err = modeler.ReadNormal(doc, acc, nil); err != nil {
				return sm, errors.Wrapf(core.ErrDecodeFailure, "normals: %v", err)
			}
		}
	}
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if acc, err := accessor(doc, idx); err == nil {
			if sm.UVs, err = modeler.ReadTextureCoord(doc, acc, nil); err != nil {
				return sm, errors.Wrapf(core.ErrDecodeFailure, "uvs: %v", err)
			}
		}
	}

	if prim.Indices != nil {
		acc, err := accessor(doc, *prim.Indices)
		if err != nil {
			return sm, err
		}
		if sm.Indices, err = modeler.ReadIndices(doc, acc, nil); err != nil {
			return sm, errors.Wrapf(core.ErrDecodeFailure, "indices: %v", err)
		}
	} else {
		sm.Indices = make([]uint32, len(sm.Positions))
		for i := range sm.Indices {
			sm.Indices[i] = uint32(i)
		}
	}
	for _, i := range sm.Indices {
		if int(i) >= len(sm.Positions) {
			return sm, errors.Wrapf(core.ErrDecodeFailure, "index %d past %d vertices", i, len(sm.Positions))
		}
	}

	if prim.Material != nil && int(*prim.Material) < len(doc.Materials) {
		sm.Material = doc.Materials[*prim.Material].Name
	}
	return sm, nil
}

// LoadFlver decodes a renderable model.
func LoadFlver(name string, data []byte) (resources.Resource, error) {
	subs, err := ReadSubmeshes(name, data)
	if err != nil {
		return nil, err
	}
	f := &resources.FlverResource{Name: name}
	f.Submeshes = subs
	f.ComputeBounds()
	return f, nil
}

// LoadCollision decodes a collision mesh. Only positions and indices are kept.
func LoadCollision(name string, data []byte) (resources.Resource, error) {
	subs, err := ReadSubmeshes(name, data)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Normals = nil
		subs[i].UVs = nil
	}
	c := &resources.CollisionResource{Name: name}
	c.Submeshes = subs
	c.ComputeBounds()
	return c, nil
}

// LoadNavmesh decodes a navmesh and links neighbouring triangles.
func LoadNavmesh(name string, data []byte) (resources.Resource, error) {
	subs, err := ReadSubmeshes(name, data)
	if err != nil {
		return nil, err
	}
	n := &resources.NavmeshResource{Name: name}
	n.Submeshes = subs
	n.ComputeBounds()
	n.BuildAdjacency()
	return n, nil
}
