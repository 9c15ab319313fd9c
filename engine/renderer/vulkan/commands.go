package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/math"
	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

/**
 * @brief Records copies and binds into one primary command buffer. Staging
 * buffers created while recording are released after submission.
 */
type VulkanCommandList struct {
	buffer  *VulkanCommandBuffer
	context *VulkanContext
	staging []*VulkanBuffer
	bound   map[uint32]*VulkanResourceSet
}

func (cl *VulkanCommandList) CopyStagingToTexture(src *metadata.StagingBuffer, dst renderer.Texture) error {
	image, ok := dst.(*VulkanImage)
	if !ok {
		return fmt.Errorf("vulkan: foreign texture %T", dst)
	}
	if src.IsDisposed() {
		return fmt.Errorf("vulkan: staging buffer %q already disposed", src.Description.Name)
	}
	sd := src.Description
	td := image.desc
	if sd.Width != td.Width || sd.Height != td.Height || sd.MipLevels != td.MipLevels || sd.LayerCount() != td.LayerCount() {
		return fmt.Errorf("vulkan: staging %dx%d/%d does not match texture %dx%d/%d",
			sd.Width, sd.Height, sd.MipLevels, td.Width, td.Height, td.MipLevels)
	}

	// Lay subresources out back to back, each start aligned.
	var size uint64
	regions := make([]vk.BufferImageCopy, 0, sd.LayerCount()*sd.MipLevels)
	for layer := uint32(0); layer < sd.LayerCount(); layer++ {
		for level := uint32(0); level < sd.MipLevels; level++ {
			w, h, bytes := metadata.MipLevelSize(sd.Format, sd.Width, sd.Height, level)
			size = math.AlignUp(size, VULKAN_COPY_ALIGNMENT)
			regions = append(regions, vk.BufferImageCopy{
				BufferOffset: vk.DeviceSize(size),
				ImageSubresource: vk.ImageSubresourceLayers{
					AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
					MipLevel:       level,
					BaseArrayLayer: layer,
					LayerCount:     1,
				},
				ImageExtent: vk.Extent3D{Width: w, Height: h, Depth: 1},
			})
			size += uint64(bytes)
		}
	}

	staging, err := newStagingBuffer(cl.context, sd.Name, size)
	if err != nil {
		return err
	}
	cl.staging = append(cl.staging, staging)

	i := 0
	for layer := uint32(0); layer < sd.LayerCount(); layer++ {
		for level := uint32(0); level < sd.MipLevels; level++ {
			if err := staging.Write(uint64(regions[i].BufferOffset), src.Subresource(layer, level)); err != nil {
				return err
			}
			i++
		}
	}

	cb := cl.buffer.Handle
	image.transition(cb, vk.ImageLayoutTransferDstOptimal)
	vk.CmdCopyBufferToImage(cb, staging.Handle, image.Handle, vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)
	image.transition(cb, vk.ImageLayoutShaderReadOnlyOptimal)
	return nil
}

func (cl *VulkanCommandList) CopyTexture(src, dst renderer.Texture) error {
	s, ok := src.(*VulkanImage)
	if !ok {
		return fmt.Errorf("vulkan: foreign texture %T", src)
	}
	d, ok := dst.(*VulkanImage)
	if !ok {
		return fmt.Errorf("vulkan: foreign texture %T", dst)
	}
	if s.desc.MipLevels != d.desc.MipLevels || s.desc.LayerCount() != d.desc.LayerCount() {
		return fmt.Errorf("vulkan: subresource count mismatch copying %q to %q", s.desc.Name, d.desc.Name)
	}

	regions := make([]vk.ImageCopy, 0, s.desc.MipLevels)
	for level := uint32(0); level < s.desc.MipLevels; level++ {
		w, h, _ := metadata.MipLevelSize(s.desc.Format, s.desc.Width, s.desc.Height, level)
		subresource := vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:   level,
			LayerCount: s.desc.LayerCount(),
		}
		regions = append(regions, vk.ImageCopy{
			SrcSubresource: subresource,
			DstSubresource: subresource,
			Extent:         vk.Extent3D{Width: w, Height: h, Depth: 1},
		})
	}

	cb := cl.buffer.Handle
	s.transition(cb, vk.ImageLayoutTransferSrcOptimal)
	d.transition(cb, vk.ImageLayoutTransferDstOptimal)
	vk.CmdCopyImage(cb, s.Handle, vk.ImageLayoutTransferSrcOptimal, d.Handle, vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)
	s.transition(cb, vk.ImageLayoutShaderReadOnlyOptimal)
	d.transition(cb, vk.ImageLayoutShaderReadOnlyOptimal)
	return nil
}

func (cl *VulkanCommandList) UpdateBuffer(dst renderer.Buffer, offset uint64, data []byte) error {
	b, ok := dst.(*VulkanBuffer)
	if !ok {
		return fmt.Errorf("vulkan: foreign buffer %T", dst)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("vulkan: write of %d bytes at %d overflows buffer of %d", len(data), offset, b.desc.Size)
	}
	if len(data) == 0 {
		return nil
	}

	staging, err := newStagingBuffer(cl.context, b.desc.Name, uint64(len(data)))
	if err != nil {
		return err
	}
	cl.staging = append(cl.staging, staging)
	if err := staging.Write(0, data); err != nil {
		return err
	}
	vk.CmdCopyBuffer(cl.buffer.Handle, staging.Handle, b.Handle, 1, []vk.BufferCopy{{
		DstOffset: vk.DeviceSize(offset),
		Size:      vk.DeviceSize(len(data)),
	}})
	return nil
}

func (cl *VulkanCommandList) SetResourceSet(slot uint32, set renderer.ResourceSet) {
	s, ok := set.(*VulkanResourceSet)
	if !ok {
		core.LogWarn("vulkan: foreign resource set %T", set)
		return
	}
	if slot >= VULKAN_MAX_BOUND_SETS {
		core.LogWarn("vulkan: resource set slot %d out of range", slot)
		return
	}
	vk.CmdBindDescriptorSets(cl.buffer.Handle, vk.PipelineBindPointGraphics, s.layout.PipelineLayout,
		slot, 1, []vk.DescriptorSet{s.Handle}, 0, nil)
	cl.bound[slot] = s
}

func (cl *VulkanCommandList) release() {
	for _, s := range cl.staging {
		s.Dispose()
	}
	cl.staging = nil
}
