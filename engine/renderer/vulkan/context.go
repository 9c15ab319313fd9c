package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mapstudio/engine/core"
)

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice
	Locks  *VulkanLockPool

	// Sampler shared by every texture descriptor.
	Sampler vk.Sampler
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlagBits) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		flags := vk.MemoryPropertyFlagBits(memoryProperties.MemoryTypes[i].PropertyFlags)
		if (typeFilter&(1<<i)) != 0 && flags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocate backs a buffer or image with memory matching the requirements.
func (vc *VulkanContext) allocate(reqs vk.MemoryRequirements, props vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	index := vc.FindMemoryIndex(reqs.MemoryTypeBits, props)
	if index < 0 {
		return nil, core.ErrUploadFailed
	}
	var memory vk.DeviceMemory
	res := vk.AllocateMemory(vc.Device.LogicalDevice, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}, vc.Allocator, &memory)
	if res != vk.Success {
		return nil, resultError("vkAllocateMemory", res)
	}
	return memory, nil
}
