package scene

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps object ids to live objects. Render meshes reach their
// owners through it instead of holding pointers.
type Registry struct {
	mu      sync.RWMutex
	objects map[uuid.UUID]*MapObject
}

func NewRegistry() *Registry {
	return &Registry{objects: make(map[uuid.UUID]*MapObject)}
}

func (r *Registry) Register(o *MapObject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[o.ID] = o
}

func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, id)
}

func (r *Registry) Lookup(id uuid.UUID) (*MapObject, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.objects[id]
	return o, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// Ref returns a non-owning reference to o.
func (r *Registry) Ref(o *MapObject) ObjectRef {
	return ObjectRef{id: o.ID, registry: r}
}

// ObjectRef is a weak reference to a MapObject: it resolves only while the
// object is registered.
type ObjectRef struct {
	id       uuid.UUID
	registry *Registry
}

func (ref ObjectRef) ID() uuid.UUID {
	return ref.id
}

func (ref ObjectRef) IsZero() bool {
	return ref.registry == nil
}

func (ref ObjectRef) Exists() bool {
	_, ok := ref.Resolve()
	return ok
}

func (ref ObjectRef) Resolve() (*MapObject, bool) {
	if ref.registry == nil {
		return nil, false
	}
	return ref.registry.Lookup(ref.id)
}
