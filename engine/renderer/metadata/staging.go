package metadata

import (
	"fmt"
	"sync"
)

/**
 * @brief CPU-side copy of every subresource of a texture, written by
 * background decoders and consumed by a render-thread upload.
 */
type StagingBuffer struct {
	Description TextureDescription

	mu           sync.Mutex
	subresources [][]byte
	disposed     bool
}

/** @brief Allocates zeroed storage for every layer and mip of the description. */
func NewStagingBuffer(desc TextureDescription) *StagingBuffer {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.ArrayLayers == 0 {
		desc.ArrayLayers = 1
	}
	desc.Usage |= TextureUsageStaging
	desc.Usage &^= TextureUsageSampled

	layers := desc.LayerCount()
	sb := &StagingBuffer{
		Description:  desc,
		subresources: make([][]byte, layers*desc.MipLevels),
	}
	for layer := uint32(0); layer < layers; layer++ {
		for level := uint32(0); level < desc.MipLevels; level++ {
			_, _, size := MipLevelSize(desc.Format, desc.Width, desc.Height, level)
			sb.subresources[desc.SubresourceIndex(layer, level)] = make([]byte, size)
		}
	}
	return sb
}

/** @brief Copies data into one subresource. The length must match the level size. */
func (sb *StagingBuffer) Write(layer, level uint32, data []byte) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.disposed {
		return fmt.Errorf("staging buffer %q already disposed", sb.Description.Name)
	}
	idx := sb.Description.SubresourceIndex(layer, level)
	if layer >= sb.Description.LayerCount() || level >= sb.Description.MipLevels {
		return fmt.Errorf("subresource layer %d level %d out of range", layer, level)
	}
	if len(data) != len(sb.subresources[idx]) {
		return fmt.Errorf("subresource layer %d level %d expects %d bytes, got %d", layer, level, len(sb.subresources[idx]), len(data))
	}
	copy(sb.subresources[idx], data)
	return nil
}

/** @brief Returns the bytes of one subresource, nil once disposed. */
func (sb *StagingBuffer) Subresource(layer, level uint32) []byte {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.disposed {
		return nil
	}
	return sb.subresources[sb.Description.SubresourceIndex(layer, level)]
}

func (sb *StagingBuffer) Size() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	total := 0
	for _, s := range sb.subresources {
		total += len(s)
	}
	return total
}

/** @brief Releases the storage. Safe to call more than once. */
func (sb *StagingBuffer) Dispose() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.subresources = nil
	sb.disposed = true
}

func (sb *StagingBuffer) IsDisposed() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.disposed
}
