package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

/**
 * @brief A device local sampled image with its view. Tracks the layout it
 * was last transitioned to.
 */
type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Layout vk.ImageLayout

	context *VulkanContext
	desc    metadata.TextureDescription
}

func NewVulkanImage(context *VulkanContext, desc metadata.TextureDescription) (*VulkanImage, error) {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.ArrayLayers == 0 {
		desc.ArrayLayers = 1
	}
	format, ok := VulkanFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("texture %q: unsupported pixel format %s", desc.Name, desc.Format)
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.LayerCount(),
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit | vk.ImageUsageTransferSrcBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if desc.IsCubemap() {
		createInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	image := &VulkanImage{
		Layout:  vk.ImageLayoutUndefined,
		context: context,
		desc:    desc,
	}

	device := context.Device.LogicalDevice
	if res := vk.CreateImage(device, &createInfo, context.Allocator, &image.Handle); res != vk.Success {
		return nil, resultError("vkCreateImage", res)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image.Handle, &reqs)
	reqs.Deref()

	err := context.Locks.SafeCall(MemoryManagement, func() error {
		memory, err := context.allocate(reqs, vk.MemoryPropertyDeviceLocalBit)
		if err != nil {
			return err
		}
		image.Memory = memory
		if res := vk.BindImageMemory(device, image.Handle, memory, 0); res != vk.Success {
			return resultError("vkBindImageMemory", res)
		}
		return nil
	})
	if err != nil {
		image.Dispose()
		return nil, err
	}

	viewType := vk.ImageViewType2d
	switch {
	case desc.IsCubemap() && desc.ArrayLayers > 1:
		viewType = vk.ImageViewTypeCubeArray
	case desc.IsCubemap():
		viewType = vk.ImageViewTypeCube
	case desc.ArrayLayers > 1:
		viewType = vk.ImageViewType2dArray
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image.Handle,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: desc.MipLevels,
			LayerCount: desc.LayerCount(),
		},
	}
	if res := vk.CreateImageView(device, &viewInfo, context.Allocator, &image.View); res != vk.Success {
		image.Dispose()
		return nil, resultError("vkCreateImageView", res)
	}

	return image, nil
}

func (image *VulkanImage) Description() metadata.TextureDescription {
	return image.desc
}

func (image *VulkanImage) Dispose() {
	device := image.context.Device.LogicalDevice
	if image.View != vk.NullImageView {
		vk.DestroyImageView(device, image.View, image.context.Allocator)
		image.View = vk.NullImageView
	}
	if image.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, image.Memory, image.context.Allocator)
		image.Memory = vk.NullDeviceMemory
	}
	if image.Handle != vk.NullImage {
		vk.DestroyImage(device, image.Handle, image.context.Allocator)
		image.Handle = vk.NullImage
	}
}

func (image *VulkanImage) subresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: image.desc.MipLevels,
		LayerCount: image.desc.LayerCount(),
	}
}

func layoutAccess(layout vk.ImageLayout) (vk.AccessFlagBits, vk.PipelineStageFlagBits) {
	switch layout {
	case vk.ImageLayoutTransferDstOptimal:
		return vk.AccessTransferWriteBit, vk.PipelineStageTransferBit
	case vk.ImageLayoutTransferSrcOptimal:
		return vk.AccessTransferReadBit, vk.PipelineStageTransferBit
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit
	}
	return 0, vk.PipelineStageTopOfPipeBit
}

/**
 * @brief Records a barrier moving every subresource of the image to newLayout.
 */
func (image *VulkanImage) transition(cb vk.CommandBuffer, newLayout vk.ImageLayout) {
	if image.Layout == newLayout {
		return
	}
	srcAccess, srcStage := layoutAccess(image.Layout)
	dstAccess, dstStage := layoutAccess(newLayout)

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(srcAccess),
		DstAccessMask:       vk.AccessFlags(dstAccess),
		OldLayout:           image.Layout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image.Handle,
		SubresourceRange:    image.subresourceRange(),
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage),
		vk.DependencyFlags(0), 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	core.LogDebug("texture %q: layout %d -> %d", image.desc.Name, image.Layout, newLayout)
	image.Layout = newLayout
}
