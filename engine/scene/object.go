package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type ObjectType int

const (
	ObjectTypePart ObjectType = iota
	ObjectTypeRegion
	ObjectTypeEvent
	ObjectTypeGenerator
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypePart:
		return "part"
	case ObjectTypeRegion:
		return "region"
	case ObjectTypeEvent:
		return "event"
	case ObjectTypeGenerator:
		return "generator"
	}
	return "unknown"
}

// RegionShape is the volume of a region object.
type RegionShape string

const (
	RegionShapeNone     RegionShape = ""
	RegionShapeBox      RegionShape = "box"
	RegionShapeSphere   RegionShape = "sphere"
	RegionShapePoint    RegionShape = "point"
	RegionShapeCylinder RegionShape = "cylinder"
)

// EventTypeMapOffset places the whole map; its position is the map offset.
const EventTypeMapOffset = "map_offset"

// Transform holds a position, Euler rotation in degrees and scale.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
}

func DefaultTransform() Transform {
	return Transform{Scale: mgl32.Vec3{1, 1, 1}}
}

func (t Transform) WorldMatrix() mgl32.Mat4 {
	rot := mgl32.AnglesToQuat(
		mgl32.DegToRad(t.Rotation[0]),
		mgl32.DegToRad(t.Rotation[1]),
		mgl32.DegToRad(t.Rotation[2]),
		mgl32.XYZ,
	)
	return mgl32.Translate3D(t.Position[0], t.Position[1], t.Position[2]).
		Mul4(rot.Mat4()).
		Mul4(mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
}

// Finite reports whether every component of t is a real number.
func (t Transform) Finite() bool {
	return finite(t.Position[:]...) && finite(t.Rotation[:]...) && finite(t.Scale[:]...)
}

// MapObject is anything placed in a map: a part, a region, an event or a
// generator backed by parameter rows.
type MapObject struct {
	ID   uuid.UUID
	Type ObjectType
	Name string

	// Model is the placed model name of a part.
	Model string
	// Shape is set for regions.
	Shape RegionShape
	// EventType is set for events.
	EventType string

	Transform Transform
	// UseDrawGroups marks map pieces, which are culled by draw group.
	UseDrawGroups bool

	// Row backs generator objects.
	Row *MergedParamRow

	RenderMesh *RenderMesh

	// source record, kept for round-trip saves
	node *yaml.Node
}

func NewMapObject(t ObjectType, name string) *MapObject {
	return &MapObject{
		ID:        uuid.New(),
		Type:      t,
		Name:      name,
		Transform: DefaultTransform(),
	}
}

func (o *MapObject) WorldMatrix() mgl32.Mat4 {
	return o.Transform.WorldMatrix()
}

func (o *MapObject) section() string {
	switch o.Type {
	case ObjectTypePart:
		return "parts"
	case ObjectTypeRegion:
		return "regions"
	case ObjectTypeEvent:
		return "events"
	}
	return ""
}

type objectRecord struct {
	Name  string `yaml:"name"`
	Model string `yaml:"model"`
	Shape string `yaml:"shape"`
	Type  string `yaml:"type"`
}

func objectFromNode(t ObjectType, n *yaml.Node) (*MapObject, error) {
	var rec objectRecord
	if err := n.Decode(&rec); err != nil {
		return nil, err
	}
	o := NewMapObject(t, rec.Name)
	o.Model = rec.Model
	o.Shape = RegionShape(rec.Shape)
	o.EventType = rec.Type
	o.node = n

	var err error
	if o.Transform.Position, err = decodeVec3(n, "position", [3]float32{}); err != nil {
		return nil, err
	}
	if o.Transform.Rotation, err = decodeVec3(n, "rotation", [3]float32{}); err != nil {
		return nil, err
	}
	if o.Transform.Scale, err = decodeVec3(n, "scale", [3]float32{1, 1, 1}); err != nil {
		return nil, err
	}
	return o, nil
}

// writeNode merges the modelled fields into the retained record.
func (o *MapObject) writeNode() (*yaml.Node, error) {
	n := o.node
	if n == nil {
		n = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	if err := setMapValue(n, "name", o.Name); err != nil {
		return nil, err
	}
	switch o.Type {
	case ObjectTypePart:
		if err := setMapValue(n, "model", o.Model); err != nil {
			return nil, err
		}
	case ObjectTypeRegion:
		if err := setMapValue(n, "shape", string(o.Shape)); err != nil {
			return nil, err
		}
	case ObjectTypeEvent:
		if err := setMapValue(n, "type", o.EventType); err != nil {
			return nil, err
		}
	}
	if err := setMapValue(n, "position", [3]float32(o.Transform.Position)); err != nil {
		return nil, err
	}
	if err := setMapValue(n, "rotation", [3]float32(o.Transform.Rotation)); err != nil {
		return nil, err
	}
	if o.Type == ObjectTypePart || mapValue(n, "scale") != nil {
		if err := setMapValue(n, "scale", [3]float32(o.Transform.Scale)); err != nil {
			return nil, err
		}
	}
	o.node = n
	return n, nil
}
