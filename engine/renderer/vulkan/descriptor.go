package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

/**
 * @brief A descriptor set layout holding an array of combined image samplers,
 * the pool its sets are allocated from and a pipeline layout binding it at
 * every set slot.
 */
type VulkanResourceLayout struct {
	Handle         vk.DescriptorSetLayout
	Pool           vk.DescriptorPool
	PipelineLayout vk.PipelineLayout

	context *VulkanContext
	desc    metadata.ResourceLayoutDescription
}

func NewVulkanResourceLayout(context *VulkanContext, desc metadata.ResourceLayoutDescription) (*VulkanResourceLayout, error) {
	if desc.Count == 0 {
		return nil, fmt.Errorf("resource layout %q has no slots", desc.Name)
	}
	if limit := context.Device.Properties.Limits.MaxPerStageDescriptorSampledImages; limit > 0 && desc.Count > limit {
		return nil, fmt.Errorf("resource layout %q: %d slots exceeds device limit %d", desc.Name, desc.Count, limit)
	}

	layout := &VulkanResourceLayout{
		context: context,
		desc:    desc,
	}
	device := context.Device.LogicalDevice

	err := context.Locks.SafeCall(DescriptorManagement, func() error {
		bindings := []vk.DescriptorSetLayoutBinding{{
			Binding:         desc.Binding,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: desc.Count,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		}}
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		if res := vk.CreateDescriptorSetLayout(device, &layoutInfo, context.Allocator, &layout.Handle); res != vk.Success {
			return resultError("vkCreateDescriptorSetLayout", res)
		}

		poolSizes := []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: desc.Count * VULKAN_MAX_RESOURCE_SETS,
		}}
		poolInfo := vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
			MaxSets:       VULKAN_MAX_RESOURCE_SETS,
			PoolSizeCount: uint32(len(poolSizes)),
			PPoolSizes:    poolSizes,
		}
		if res := vk.CreateDescriptorPool(device, &poolInfo, context.Allocator, &layout.Pool); res != vk.Success {
			return resultError("vkCreateDescriptorPool", res)
		}

		setLayouts := make([]vk.DescriptorSetLayout, VULKAN_MAX_BOUND_SETS)
		for i := range setLayouts {
			setLayouts[i] = layout.Handle
		}
		pipelineInfo := vk.PipelineLayoutCreateInfo{
			SType:          vk.StructureTypePipelineLayoutCreateInfo,
			SetLayoutCount: uint32(len(setLayouts)),
			PSetLayouts:    setLayouts,
		}
		if res := vk.CreatePipelineLayout(device, &pipelineInfo, context.Allocator, &layout.PipelineLayout); res != vk.Success {
			return resultError("vkCreatePipelineLayout", res)
		}
		return nil
	})
	if err != nil {
		layout.Dispose()
		return nil, err
	}
	return layout, nil
}

func (l *VulkanResourceLayout) Description() metadata.ResourceLayoutDescription {
	return l.desc
}

func (l *VulkanResourceLayout) Dispose() {
	device := l.context.Device.LogicalDevice
	l.context.Locks.SafeCall(DescriptorManagement, func() error {
		if l.PipelineLayout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(device, l.PipelineLayout, l.context.Allocator)
			l.PipelineLayout = vk.NullPipelineLayout
		}
		if l.Pool != nil {
			vk.DestroyDescriptorPool(device, l.Pool, l.context.Allocator)
			l.Pool = nil
		}
		if l.Handle != nil {
			vk.DestroyDescriptorSetLayout(device, l.Handle, l.context.Allocator)
			l.Handle = nil
		}
		return nil
	})
}

/**
 * @brief A descriptor set allocated from a resource layout's pool with one
 * texture written per array element.
 */
type VulkanResourceSet struct {
	Handle vk.DescriptorSet

	layout   *VulkanResourceLayout
	textures []renderer.Texture
}

func NewVulkanResourceSet(context *VulkanContext, layout *VulkanResourceLayout, textures []renderer.Texture) (*VulkanResourceSet, error) {
	if uint32(len(textures)) != layout.desc.Count {
		return nil, fmt.Errorf("resource set for %q needs %d textures, got %d", layout.desc.Name, layout.desc.Count, len(textures))
	}

	images := make([]vk.DescriptorImageInfo, len(textures))
	for i, t := range textures {
		image, ok := t.(*VulkanImage)
		if !ok || image == nil || image.View == vk.NullImageView {
			return nil, fmt.Errorf("resource set for %q has an invalid binding at %d", layout.desc.Name, i)
		}
		images[i] = vk.DescriptorImageInfo{
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			ImageView:   image.View,
			Sampler:     context.Sampler,
		}
	}

	set := &VulkanResourceSet{
		layout:   layout,
		textures: append([]renderer.Texture(nil), textures...),
	}
	device := context.Device.LogicalDevice

	err := context.Locks.SafeCall(DescriptorManagement, func() error {
		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     layout.Pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{layout.Handle},
		}
		if res := vk.AllocateDescriptorSets(device, &allocInfo, &set.Handle); res != vk.Success {
			return resultError("vkAllocateDescriptorSets", res)
		}

		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.Handle,
			DstBinding:      layout.desc.Binding,
			DescriptorCount: uint32(len(images)),
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo:      images,
		}
		vk.UpdateDescriptorSets(device, 1, []vk.WriteDescriptorSet{write}, 0, nil)
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return set, nil
}

func (s *VulkanResourceSet) Layout() renderer.ResourceLayout {
	return s.layout
}

func (s *VulkanResourceSet) Textures() []renderer.Texture {
	return s.textures
}

func (s *VulkanResourceSet) Dispose() {
	if s.Handle == nil {
		return
	}
	context := s.layout.context
	context.Locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.FreeDescriptorSets(context.Device.LogicalDevice, s.layout.Pool, 1, []vk.DescriptorSet{s.Handle}); res != vk.Success {
			core.LogWarn("resource set for %q: %s", s.layout.desc.Name, VulkanResultString(res))
		}
		return nil
	})
	s.Handle = nil
}
