package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory

	context *VulkanContext
	desc    metadata.BufferDescription
}

func bufferUsage(usage metadata.BufferUsage) vk.BufferUsageFlagBits {
	flags := vk.BufferUsageTransferDstBit
	if usage&metadata.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if usage&metadata.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	return flags
}

func NewVulkanBuffer(context *VulkanContext, desc metadata.BufferDescription, usage vk.BufferUsageFlagBits, props vk.MemoryPropertyFlagBits) (*VulkanBuffer, error) {
	buffer := &VulkanBuffer{
		context: context,
		desc:    desc,
	}
	device := context.Device.LogicalDevice

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(device, &createInfo, context.Allocator, &buffer.Handle); res != vk.Success {
		return nil, resultError("vkCreateBuffer", res)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer.Handle, &reqs)
	reqs.Deref()

	err := context.Locks.SafeCall(MemoryManagement, func() error {
		memory, err := context.allocate(reqs, props)
		if err != nil {
			return err
		}
		buffer.Memory = memory
		if res := vk.BindBufferMemory(device, buffer.Handle, memory, 0); res != vk.Success {
			return resultError("vkBindBufferMemory", res)
		}
		return nil
	})
	if err != nil {
		buffer.Dispose()
		return nil, err
	}
	return buffer, nil
}

// newStagingBuffer creates a host visible transfer source of the given size.
func newStagingBuffer(context *VulkanContext, name string, size uint64) (*VulkanBuffer, error) {
	return NewVulkanBuffer(context, metadata.BufferDescription{Name: name, Size: size},
		vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
}

func (b *VulkanBuffer) Description() metadata.BufferDescription {
	return b.desc
}

// Write copies data into host visible memory at offset.
func (b *VulkanBuffer) Write(offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var ptr unsafe.Pointer
	device := b.context.Device.LogicalDevice
	if res := vk.MapMemory(device, b.Memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr); res != vk.Success {
		return resultError("vkMapMemory", res)
	}
	copy(unsafe.Slice((*byte)(ptr), len(data)), data)
	vk.UnmapMemory(device, b.Memory)
	return nil
}

func (b *VulkanBuffer) Dispose() {
	device := b.context.Device.LogicalDevice
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, b.Memory, b.context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}
