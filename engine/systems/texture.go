package systems

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/spaghettifunk/mapstudio/engine/assets/loaders"
	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/math"
	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

/**
 * @brief A slot in a TexturePool. Owns at most one staging buffer and one GPU
 * texture. Fills may run on any goroutine; the GPU side is always created by
 * an upload task on the render thread.
 */
type TextureHandle struct {
	pool  *TexturePool
	index uint32

	mu       sync.Mutex
	staging  *metadata.StagingBuffer
	texture  renderer.Texture
	resident atomic.Bool
	disposed bool
}

func (h *TextureHandle) Index() uint32 {
	return h.index
}

func (h *TextureHandle) Pool() *TexturePool {
	return h.pool
}

/** @brief True once the GPU texture exists and holds the uploaded pixels. */
func (h *TextureHandle) Resident() bool {
	return h.resident.Load()
}

/** @brief The GPU texture, nil until resident. */
func (h *TextureHandle) Texture() renderer.Texture {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.texture
}

func (h *TextureHandle) name() string {
	return fmt.Sprintf("%s[%d]", h.pool.name, h.index)
}

/**
 * @brief Parses a DDS blob, copies every layer and mip into a staging buffer
 * and defers the GPU upload to the render thread.
 * @return core.ErrUnsupportedFormat for an unknown pixel format tag,
 * core.ErrDecodeFailure for a corrupt or truncated blob.
 */
func (h *TextureHandle) FillFromCompressedImage(raw []byte) error {
	img, err := loaders.ParseDDS(raw)
	if err != nil {
		return err
	}
	if err := img.CheckSize(); err != nil {
		return err
	}
	sb := metadata.NewStagingBuffer(img.Description(h.name()))
	if err := img.FillStaging(sb); err != nil {
		sb.Dispose()
		return err
	}
	return h.stage(sb)
}

/** @brief Fills the handle with a 1x1 RGBA8 texture of a single color. */
func (h *TextureHandle) FillWithColor(color mgl32.Vec4) error {
	sb := metadata.NewStagingBuffer(metadata.TextureDescription{
		Name:        h.name(),
		Width:       1,
		Height:      1,
		MipLevels:   1,
		ArrayLayers: 1,
		Format:      metadata.PixelFormatR8G8B8A8UNorm,
	})
	if err := sb.Write(0, 0, math.ColorToRGBA8(color)); err != nil {
		return err
	}
	return h.stage(sb)
}

/** @brief Fills the handle with a 1x1 float cubemap, all six faces the same color. */
func (h *TextureHandle) FillWithColorCube(color mgl32.Vec4) error {
	sb := metadata.NewStagingBuffer(metadata.TextureDescription{
		Name:        h.name(),
		Width:       1,
		Height:      1,
		MipLevels:   1,
		ArrayLayers: 1,
		Format:      metadata.PixelFormatR32G32B32A32Float,
		Usage:       metadata.TextureUsageCubemap,
	})
	px := math.ColorToRGBA32F(color)
	for face := uint32(0); face < 6; face++ {
		if err := sb.Write(face, 0, px); err != nil {
			return err
		}
	}
	return h.stage(sb)
}

/** @brief Fills the handle from a decoded loose image, converted to RGBA8. */
func (h *TextureHandle) FillWithImage(img image.Image) error {
	b := img.Bounds()
	if b.Empty() {
		return errors.Wrapf(core.ErrDecodeFailure, "image for %s is empty", h.name())
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	sb := metadata.NewStagingBuffer(metadata.TextureDescription{
		Name:        h.name(),
		Width:       uint32(b.Dx()),
		Height:      uint32(b.Dy()),
		MipLevels:   1,
		ArrayLayers: 1,
		Format:      metadata.PixelFormatR8G8B8A8UNorm,
	})
	if err := sb.Write(0, 0, rgba.Pix); err != nil {
		return err
	}
	return h.stage(sb)
}

/** @brief Copies an existing GPU texture into a new texture owned by the handle. */
func (h *TextureHandle) FillWithGPUTexture(src renderer.Texture) error {
	if src == nil {
		return fmt.Errorf("texture handle %s: nil source texture", h.name())
	}
	h.mu.Lock()
	disposed := h.disposed
	h.mu.Unlock()
	if disposed {
		return fmt.Errorf("texture handle %s already disposed", h.name())
	}

	h.pool.renderer.AddBackgroundUploadTask(func(d renderer.Device, cl renderer.CommandList) error {
		desc := finalDescription(src.Description())
		desc.Name = h.name()
		tex, err := d.CreateTexture(desc)
		if err != nil {
			return errors.Wrapf(core.ErrUploadFailed, "create %s: %s", desc.Name, err)
		}
		if err := cl.CopyTexture(src, tex); err != nil {
			tex.Dispose()
			return errors.Wrapf(core.ErrUploadFailed, "copy into %s: %s", desc.Name, err)
		}
		h.commit(tex)
		return nil
	})
	return nil
}

// stage swaps in a new staging buffer and queues its upload.
func (h *TextureHandle) stage(sb *metadata.StagingBuffer) error {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		sb.Dispose()
		return fmt.Errorf("texture handle %s already disposed", h.name())
	}
	if h.staging != nil {
		h.staging.Dispose()
	}
	h.staging = sb
	h.mu.Unlock()

	h.pool.renderer.AddBackgroundUploadTask(func(d renderer.Device, cl renderer.CommandList) error {
		return h.upload(d, cl, sb)
	})
	return nil
}

func (h *TextureHandle) upload(d renderer.Device, cl renderer.CommandList, sb *metadata.StagingBuffer) error {
	h.mu.Lock()
	skip := h.disposed || h.staging != sb
	h.mu.Unlock()
	// disposed, or superseded by a later fill
	if skip {
		return nil
	}

	desc := finalDescription(sb.Description)
	tex, err := d.CreateTexture(desc)
	if err != nil {
		h.evict()
		return errors.Wrapf(core.ErrUploadFailed, "create %s: %s", desc.Name, err)
	}
	if err := cl.CopyStagingToTexture(sb, tex); err != nil {
		tex.Dispose()
		h.evict()
		return errors.Wrapf(core.ErrUploadFailed, "copy into %s: %s", desc.Name, err)
	}
	h.commit(tex)
	return nil
}

// evict drops the texture of an earlier fill after a failed upload, so the
// slot binds the placeholder instead of stale pixels. Render thread only.
func (h *TextureHandle) evict() {
	h.mu.Lock()
	if h.texture != nil {
		h.texture.Dispose()
		h.texture = nil
	}
	wasResident := h.resident.Swap(false)
	h.mu.Unlock()

	if wasResident {
		h.pool.dirty.Store(true)
	}
}

// commit installs tex as the handle's texture and marks the pool dirty.
// Render thread only.
func (h *TextureHandle) commit(tex renderer.Texture) {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		tex.Dispose()
		return
	}
	if h.texture != nil {
		h.texture.Dispose()
	}
	h.texture = tex
	h.resident.Store(true)
	h.mu.Unlock()

	h.pool.dirty.Store(true)
}

/** @brief Releases the staging buffer once the handle is resident. */
func (h *TextureHandle) Clean() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.staging == nil || !h.resident.Load() {
		return
	}
	h.staging.Dispose()
	h.staging = nil
}

/** @brief Releases the GPU texture on the render thread. Safe to call more than once. */
func (h *TextureHandle) Dispose() {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	h.disposed = true
	h.mu.Unlock()

	h.pool.renderer.AddBackgroundUploadTask(func(renderer.Device, renderer.CommandList) error {
		h.release()
		return nil
	})
}

func (h *TextureHandle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disposed = true
	if h.staging != nil {
		h.staging.Dispose()
		h.staging = nil
	}
	if h.texture != nil {
		h.texture.Dispose()
		h.texture = nil
	}
	if h.resident.Swap(false) {
		h.pool.dirty.Store(true)
	}
}

func finalDescription(desc metadata.TextureDescription) metadata.TextureDescription {
	desc.Usage &^= metadata.TextureUsageStaging
	desc.Usage |= metadata.TextureUsageSampled
	return desc
}

/**
 * @brief A fixed capacity table of texture handles exposed to shaders through a
 * single descriptor set. Slot allocation and descriptor rebuilds share one lock.
 */
type TexturePool struct {
	name     string
	size     uint32
	renderer *renderer.Renderer

	mu      sync.Mutex
	handles []*TextureHandle
	layout  renderer.ResourceLayout
	set     renderer.ResourceSet

	dirty atomic.Bool
}

/**
 * @brief Creates a pool of slotCount textures bound under name. The descriptor
 * layout is created by the first upload task the renderer runs.
 */
func NewTexturePool(r *renderer.Renderer, name string, slotCount uint32) (*TexturePool, error) {
	if slotCount == 0 {
		err := fmt.Errorf("func NewTexturePool - slotCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	if r == nil {
		err := fmt.Errorf("func NewTexturePool - renderer is required")
		core.LogError(err.Error())
		return nil, err
	}

	p := &TexturePool{
		name:     name,
		size:     slotCount,
		renderer: r,
		handles:  make([]*TextureHandle, 0, slotCount),
	}
	r.AddBackgroundUploadTask(func(d renderer.Device, _ renderer.CommandList) error {
		layout, err := d.CreateResourceLayout(metadata.ResourceLayoutDescription{
			Name:    name,
			Binding: 0,
			Count:   slotCount,
		})
		if err != nil {
			return errors.Wrapf(core.ErrUploadFailed, "texture pool %s layout: %s", name, err)
		}
		p.mu.Lock()
		p.layout = layout
		p.mu.Unlock()
		return nil
	})
	return p, nil
}

func (p *TexturePool) Name() string {
	return p.name
}

func (p *TexturePool) Capacity() uint32 {
	return p.size
}

/** @brief Number of allocated handles. */
func (p *TexturePool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (p *TexturePool) Handle(index uint32) *TextureHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(index) >= len(p.handles) {
		return nil
	}
	return p.handles[index]
}

/** @brief Reserves the next free slot. The handle is not resident until filled. */
func (p *TexturePool) AllocateTextureDescriptor() (*TextureHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if uint32(len(p.handles)) >= p.size {
		return nil, errors.Wrapf(core.ErrTexturePoolFull, "texture pool %s holds %d textures", p.name, p.size)
	}
	h := &TextureHandle{pool: p, index: uint32(len(p.handles))}
	p.handles = append(p.handles, h)
	return h, nil
}

/** @brief True when a handle changed residency since the last rebuild. */
func (p *TexturePool) DescriptorTableDirty() bool {
	return p.dirty.Load()
}

/**
 * @brief Queues a rebuild of the descriptor set. Slots without a resident
 * texture are bound to the texture of slot 0.
 */
func (p *TexturePool) RegenerateDescriptorTables() {
	p.renderer.AddBackgroundUploadTask(func(d renderer.Device, _ renderer.CommandList) error {
		return p.regenerate(d)
	})
}

func (p *TexturePool) regenerate(d renderer.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.layout == nil {
		return errors.Wrapf(core.ErrUploadFailed, "texture pool %s has no layout", p.name)
	}
	if len(p.handles) == 0 || !p.handles[0].Resident() {
		core.LogDebug("texture pool %s: slot 0 not resident, rebuild skipped", p.name)
		return nil
	}

	p.dirty.Store(false)
	placeholder := p.handles[0].Texture()
	textures := make([]renderer.Texture, p.size)
	for i := range textures {
		textures[i] = placeholder
		if i < len(p.handles) && p.handles[i].Resident() {
			if t := p.handles[i].Texture(); t != nil {
				textures[i] = t
			}
		}
	}

	set, err := d.CreateResourceSet(p.layout, textures)
	if err != nil {
		p.dirty.Store(true)
		return errors.Wrapf(core.ErrUploadFailed, "texture pool %s set: %s", p.name, err)
	}
	if p.set != nil {
		p.set.Dispose()
	}
	p.set = set
	return nil
}

/**
 * @brief Binds the last built descriptor set at slot. Does nothing until a set
 * has been built.
 * @return core.ErrDescriptorTableStale when residency changed since the last rebuild.
 */
func (p *TexturePool) BindTexturePool(cl renderer.CommandList, slot uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.set == nil {
		return nil
	}
	if p.dirty.Load() {
		return errors.Wrapf(core.ErrDescriptorTableStale, "texture pool %s", p.name)
	}
	cl.SetResourceSet(slot, p.set)
	return nil
}

/** @brief The last built descriptor set, nil before the first rebuild. */
func (p *TexturePool) ResourceSet() renderer.ResourceSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set
}

/** @brief Releases the staging buffer of every resident handle. */
func (p *TexturePool) CleanTexturePool() {
	p.mu.Lock()
	handles := append([]*TextureHandle(nil), p.handles...)
	p.mu.Unlock()
	for _, h := range handles {
		h.Clean()
	}
}

/** @brief Queues the release of every handle, the set and the layout. */
func (p *TexturePool) Dispose() {
	p.renderer.AddBackgroundUploadTask(func(renderer.Device, renderer.CommandList) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, h := range p.handles {
			h.release()
		}
		if p.set != nil {
			p.set.Dispose()
			p.set = nil
		}
		if p.layout != nil {
			p.layout.Dispose()
			p.layout = nil
		}
		p.dirty.Store(false)
		return nil
	})
}
