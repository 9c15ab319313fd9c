package scene

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/mapstudio/engine/assets"
	"github.com/spaghettifunk/mapstudio/engine/core"
)

var mapSections = []struct {
	key string
	typ ObjectType
}{
	{"parts", ObjectTypePart},
	{"regions", ObjectTypeRegion},
	{"events", ObjectTypeEvent},
}

// Map is one loaded map: its objects and the document they came from.
type Map struct {
	ID string
	// Offset is the translation of the map_offset event, applied to
	// generator positions.
	Offset mgl32.Vec3

	mu       sync.RWMutex
	objects  []*MapObject
	doc      *Document
	registry *Registry
	scene    *RenderScene
}

func NewMap(id string, registry *Registry, scene *RenderScene) *Map {
	return &Map{
		ID:       id,
		registry: registry,
		scene:    scene,
		doc:      NewDocument(),
	}
}

func (m *Map) Registry() *Registry {
	return m.registry
}

func (m *Map) Scene() *RenderScene {
	return m.scene
}

func (m *Map) Objects() []*MapObject {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*MapObject(nil), m.objects...)
}

// ObjectsOfType returns the objects of one type, in document order.
func (m *Map) ObjectsOfType(t ObjectType) []*MapObject {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*MapObject
	for _, o := range m.objects {
		if o.Type == t {
			out = append(out, o)
		}
	}
	return out
}

func (m *Map) FindObject(name string) (*MapObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.objects {
		if o.Name == name {
			return o, true
		}
	}
	return nil, false
}

func (m *Map) AddObject(o *MapObject) {
	m.mu.Lock()
	m.objects = append(m.objects, o)
	m.mu.Unlock()
	if m.registry != nil {
		m.registry.Register(o)
	}
}

// RemoveObject drops o and its render mesh. Weak references to it stop
// resolving.
func (m *Map) RemoveObject(o *MapObject) bool {
	m.mu.Lock()
	found := false
	for i, c := range m.objects {
		if c == o {
			m.objects = append(m.objects[:i], m.objects[i+1:]...)
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return false
	}
	m.release(o)
	return true
}

func (m *Map) release(o *MapObject) {
	if m.registry != nil {
		m.registry.Unregister(o.ID)
	}
	if o.RenderMesh != nil && m.scene != nil {
		m.scene.Remove(o.RenderMesh)
	}
	o.RenderMesh = nil
}

// Clear removes every object.
func (m *Map) Clear() {
	m.mu.Lock()
	objects := m.objects
	m.objects = nil
	m.mu.Unlock()
	for _, o := range objects {
		m.release(o)
	}
}

// LoadDocument builds objects from a map document and keeps the document
// for saving.
func (m *Map) LoadDocument(doc *Document) error {
	for _, s := range mapSections {
		seq := doc.Get(s.key)
		if seq == nil {
			continue
		}
		if seq.Kind != yaml.SequenceNode {
			return errors.Wrapf(core.ErrDecodeFailure, "map %s: %s is not a list", m.ID, s.key)
		}
		for _, n := range seq.Content {
			o, err := objectFromNode(s.typ, n)
			if err != nil {
				return errors.Wrapf(err, "map %s: %s", m.ID, s.key)
			}
			if s.typ == ObjectTypePart {
				o.UseDrawGroups = assets.ClassifyModel(o.Model) == assets.ModelCategoryMapPiece
			}
			if s.typ == ObjectTypeEvent && o.EventType == EventTypeMapOffset {
				m.Offset = o.Transform.Position
			}
			m.AddObject(o)
		}
	}
	m.doc = doc
	return nil
}

func (m *Map) precheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parts := map[string]bool{}
	for _, o := range m.objects {
		if o.Type == ObjectTypeGenerator {
			continue
		}
		if o.Type == ObjectTypePart {
			if o.Name == "" {
				return fmt.Errorf("part with model %q has no name", o.Model)
			}
			if parts[o.Name] {
				return fmt.Errorf("duplicate part name %q", o.Name)
			}
			parts[o.Name] = true
		}
		if !o.Transform.Finite() {
			return fmt.Errorf("%s %q has a non-finite transform", o.Type, o.Name)
		}
	}
	return nil
}

// Serialize merges the in-memory objects into the retained document and
// returns it. Fields the editor does not model are kept as loaded.
func (m *Map) Serialize() (*Document, error) {
	if err := m.precheck(); err != nil {
		return nil, errors.Wrapf(core.ErrSaveAborted, "map %s: %s", m.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sections := map[ObjectType]*yaml.Node{}
	for _, s := range mapSections {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if old := m.doc.Get(s.key); old != nil {
			seq.Style = old.Style
			seq.HeadComment = old.HeadComment
		}
		sections[s.typ] = seq
	}
	for _, o := range m.objects {
		seq, ok := sections[o.Type]
		if !ok {
			continue
		}
		n, err := o.writeNode()
		if err != nil {
			return nil, errors.Wrapf(core.ErrSaveAborted, "map %s: %s %q: %s", m.ID, o.Type, o.Name, err)
		}
		seq.Content = append(seq.Content, n)
	}
	if err := m.doc.Set("id", m.ID); err != nil {
		return nil, errors.Wrapf(core.ErrSaveAborted, "map %s: %s", m.ID, err)
	}
	for _, s := range mapSections {
		seq := sections[s.typ]
		if len(seq.Content) == 0 && m.doc.Get(s.key) == nil {
			continue
		}
		m.doc.SetNode(s.key, seq)
	}
	return m.doc, nil
}
