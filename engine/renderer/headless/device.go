// Package headless implements renderer.Device in system memory. It backs
// the studio when no GPU is available and is what the tests render with.
package headless

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

type Texture struct {
	desc     metadata.TextureDescription
	data     [][]byte
	disposed atomic.Bool
}

func (t *Texture) Description() metadata.TextureDescription { return t.desc }
func (t *Texture) Dispose()                                 { t.disposed.Store(true) }
func (t *Texture) Disposed() bool                           { return t.disposed.Load() }

// Subresource returns the uploaded bytes of one layer and mip level.
func (t *Texture) Subresource(layer, level uint32) []byte {
	return t.data[t.desc.SubresourceIndex(layer, level)]
}

type Buffer struct {
	desc     metadata.BufferDescription
	data     []byte
	disposed atomic.Bool
}

func (b *Buffer) Description() metadata.BufferDescription { return b.desc }
func (b *Buffer) Dispose()                                { b.disposed.Store(true) }
func (b *Buffer) Bytes() []byte                           { return b.data }

type ResourceLayout struct {
	desc metadata.ResourceLayoutDescription
}

func (l *ResourceLayout) Description() metadata.ResourceLayoutDescription { return l.desc }
func (l *ResourceLayout) Dispose()                                        {}

type ResourceSet struct {
	layout   renderer.ResourceLayout
	textures []renderer.Texture
	disposed atomic.Bool
}

func (s *ResourceSet) Layout() renderer.ResourceLayout { return s.layout }
func (s *ResourceSet) Textures() []renderer.Texture    { return s.textures }
func (s *ResourceSet) Dispose()                        { s.disposed.Store(true) }
func (s *ResourceSet) Disposed() bool                  { return s.disposed.Load() }

type CommandList struct {
	Bound map[uint32]renderer.ResourceSet
}

func (cl *CommandList) CopyStagingToTexture(src *metadata.StagingBuffer, dst renderer.Texture) error {
	t, ok := dst.(*Texture)
	if !ok {
		return fmt.Errorf("headless: foreign texture %T", dst)
	}
	if src.IsDisposed() {
		return fmt.Errorf("headless: staging buffer %q already disposed", src.Description.Name)
	}
	sd := src.Description
	if sd.Width != t.desc.Width || sd.Height != t.desc.Height || sd.MipLevels != t.desc.MipLevels || sd.LayerCount() != t.desc.LayerCount() {
		return fmt.Errorf("headless: staging %dx%d/%d does not match texture %dx%d/%d",
			sd.Width, sd.Height, sd.MipLevels, t.desc.Width, t.desc.Height, t.desc.MipLevels)
	}
	for layer := uint32(0); layer < sd.LayerCount(); layer++ {
		for level := uint32(0); level < sd.MipLevels; level++ {
			b := src.Subresource(layer, level)
			t.data[t.desc.SubresourceIndex(layer, level)] = append([]byte(nil), b...)
		}
	}
	return nil
}

func (cl *CommandList) CopyTexture(src, dst renderer.Texture) error {
	s, ok := src.(*Texture)
	if !ok {
		return fmt.Errorf("headless: foreign texture %T", src)
	}
	d, ok := dst.(*Texture)
	if !ok {
		return fmt.Errorf("headless: foreign texture %T", dst)
	}
	if len(s.data) != len(d.data) {
		return fmt.Errorf("headless: subresource count mismatch %d != %d", len(s.data), len(d.data))
	}
	for i := range s.data {
		d.data[i] = append([]byte(nil), s.data[i]...)
	}
	return nil
}

func (cl *CommandList) UpdateBuffer(dst renderer.Buffer, offset uint64, data []byte) error {
	b, ok := dst.(*Buffer)
	if !ok {
		return fmt.Errorf("headless: foreign buffer %T", dst)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("headless: write of %d bytes at %d overflows buffer of %d", len(data), offset, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (cl *CommandList) SetResourceSet(slot uint32, set renderer.ResourceSet) {
	cl.Bound[slot] = set
}

// Device counts what it creates so tests can assert on upload behaviour.
type Device struct {
	mu sync.Mutex

	TexturesCreated int
	BuffersCreated  int
	SetsCreated     int
	Submits         int
	LastCommands    *CommandList
	// TextureLimit fails CreateTexture once this many textures exist. Zero
	// means no limit.
	TextureLimit int
}

func New() *Device {
	return &Device{}
}

func (d *Device) Name() string { return "headless" }

func (d *Device) CreateTexture(desc metadata.TextureDescription) (renderer.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("headless: texture %q has zero size", desc.Name)
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.ArrayLayers == 0 {
		desc.ArrayLayers = 1
	}
	d.mu.Lock()
	if d.TextureLimit > 0 && d.TexturesCreated >= d.TextureLimit {
		d.mu.Unlock()
		return nil, fmt.Errorf("headless: out of texture memory creating %q", desc.Name)
	}
	d.TexturesCreated++
	d.mu.Unlock()
	return &Texture{
		desc: desc,
		data: make([][]byte, desc.LayerCount()*desc.MipLevels),
	}, nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDescription) (renderer.Buffer, error) {
	d.mu.Lock()
	d.BuffersCreated++
	d.mu.Unlock()
	return &Buffer{desc: desc, data: make([]byte, desc.Size)}, nil
}

func (d *Device) CreateResourceLayout(desc metadata.ResourceLayoutDescription) (renderer.ResourceLayout, error) {
	if desc.Count == 0 {
		return nil, fmt.Errorf("headless: layout %q has no slots", desc.Name)
	}
	return &ResourceLayout{desc: desc}, nil
}

func (d *Device) CreateResourceSet(layout renderer.ResourceLayout, textures []renderer.Texture) (renderer.ResourceSet, error) {
	if uint32(len(textures)) != layout.Description().Count {
		return nil, fmt.Errorf("headless: set for %q needs %d textures, got %d", layout.Description().Name, layout.Description().Count, len(textures))
	}
	for i, t := range textures {
		if t == nil {
			return nil, fmt.Errorf("headless: set for %q has a null binding at %d", layout.Description().Name, i)
		}
	}
	d.mu.Lock()
	d.SetsCreated++
	d.mu.Unlock()
	return &ResourceSet{layout: layout, textures: append([]renderer.Texture(nil), textures...)}, nil
}

func (d *Device) BeginCommands() (renderer.CommandList, error) {
	return &CommandList{Bound: map[uint32]renderer.ResourceSet{}}, nil
}

func (d *Device) Submit(cl renderer.CommandList) error {
	c, ok := cl.(*CommandList)
	if !ok {
		return fmt.Errorf("headless: foreign command list %T", cl)
	}
	d.mu.Lock()
	d.Submits++
	d.LastCommands = c
	d.mu.Unlock()
	return nil
}

func (d *Device) Counters() (textures, buffers, sets int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.TexturesCreated, d.BuffersCreated, d.SetsCreated
}

func (d *Device) WaitIdle() error { return nil }
func (d *Device) Shutdown() error { return nil }
