package loaders

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/resources"
)

// Loader turns the bytes of one asset into a decoded resource. Loaders run on
// worker goroutines and must not touch the GPU.
type Loader interface {
	Load(name string, data []byte) (resources.Resource, error)
}

type LoaderFunc func(name string, data []byte) (resources.Resource, error)

func (f LoaderFunc) Load(name string, data []byte) (resources.Resource, error) {
	return f(name, data)
}

// Registry maps asset kinds to loaders.
type Registry struct {
	mu      sync.RWMutex
	loaders map[resources.AssetKind]Loader
}

// NewRegistry returns a registry with the built-in loaders for every kind.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[resources.AssetKind]Loader)}
	r.Register(resources.AssetKindFlver, LoaderFunc(LoadFlver))
	r.Register(resources.AssetKindCollision, LoaderFunc(LoadCollision))
	r.Register(resources.AssetKindNavmesh, LoaderFunc(LoadNavmesh))
	r.Register(resources.AssetKindTexture, LoaderFunc(LoadTexture))
	return r
}

// Register replaces the loader for kind.
func (r *Registry) Register(kind resources.AssetKind, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[kind] = l
}

func (r *Registry) Load(kind resources.AssetKind, name string, data []byte) (resources.Resource, error) {
	r.mu.RLock()
	l, ok := r.loaders[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(core.ErrUnsupportedFormat, "no loader for %s", kind)
	}
	res, err := l.Load(name, data)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Kind() != kind {
		return nil, errors.Wrapf(core.ErrResourceKindMismatch, "loader for %s returned %T", kind, res)
	}
	return res, nil
}
