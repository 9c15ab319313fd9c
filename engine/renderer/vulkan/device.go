package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mapstudio/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex int32

	GraphicsQueue vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

// Name is the driver reported device name.
func (d *VulkanDevice) Name() string {
	return vk.ToString(d.Properties.DeviceName[:])
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Transfer             bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	TransferFamilyIndex int32
}

/**
 * @brief Selects a physical device, creates the logical device with one
 * graphics queue and its command pool.
 */
func DeviceCreate(context *VulkanContext) error {
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(context.Device.GraphicsQueueIndex),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	deviceFeatures.SamplerAnisotropy = context.Device.Features.SamplerAnisotropy
	deviceFeatures.TextureCompressionBC = context.Device.Features.TextureCompressionBC

	extensionNames := []string{}
	if deviceHasExtension(context.Device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		err := resultError("vkCreateDevice", res)
		core.LogError(err.Error())
		return err
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device, uint32(context.Device.GraphicsQueueIndex), 0, &queue)
	context.Device.GraphicsQueue = queue
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device, &poolCreateInfo, context.Allocator, &pool); res != vk.Success {
		err := resultError("vkCreateCommandPool", res)
		core.LogError(err.Error())
		return err
	}
	context.Device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	context.Device.GraphicsQueue = nil

	if context.Device.GraphicsCommandPool != vk.NullCommandPool {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(context.Device.LogicalDevice, context.Device.GraphicsCommandPool, context.Allocator)
		context.Device.GraphicsCommandPool = vk.NullCommandPool
	}

	if context.Device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.GraphicsQueueIndex = -1
}

func deviceHasExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32 = 0
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}

	// Prefer a discrete GPU, fall back to anything that can sample BC textures.
	for _, discrete := range []bool{runtime.GOOS != "darwin", false} {
		for i := 0; i < int(physicalDeviceCount); i++ {
			properties := vk.PhysicalDeviceProperties{}
			vk.GetPhysicalDeviceProperties(physicalDevices[i], &properties)
			properties.Deref()
			properties.Limits.Deref()

			features := vk.PhysicalDeviceFeatures{}
			vk.GetPhysicalDeviceFeatures(physicalDevices[i], &features)
			features.Deref()

			memory := vk.PhysicalDeviceMemoryProperties{}
			vk.GetPhysicalDeviceMemoryProperties(physicalDevices[i], &memory)
			memory.Deref()

			requirements := VulkanPhysicalDeviceRequirements{
				Graphics:    true,
				Transfer:    true,
				DiscreteGPU: discrete,
			}

			queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{}
			if !PhysicalDeviceMeetsRequirements(physicalDevices[i], &properties, &features, &requirements, &queueInfo) {
				continue
			}

			core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:]))
			switch properties.DeviceType {
			case vk.PhysicalDeviceTypeIntegratedGpu:
				core.LogInfo("GPU type is Integrated.")
			case vk.PhysicalDeviceTypeDiscreteGpu:
				core.LogInfo("GPU type is Discrete.")
			case vk.PhysicalDeviceTypeVirtualGpu:
				core.LogInfo("GPU type is Virtual.")
			case vk.PhysicalDeviceTypeCpu:
				core.LogInfo("GPU type is CPU.")
			default:
				core.LogInfo("GPU type is Unknown.")
			}

			core.LogInfo(
				"Vulkan API version: %d.%d.%d",
				vk.Version.Major(vk.Version(properties.ApiVersion)),
				vk.Version.Minor(vk.Version(properties.ApiVersion)),
				vk.Version.Patch(vk.Version(properties.ApiVersion)),
			)

			for j := 0; j < int(memory.MemoryHeapCount); j++ {
				memory.MemoryHeaps[j].Deref()
				memorySizeGib := float64(memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
				if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
					core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
				} else {
					core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
				}
			}

			context.Device.PhysicalDevice = physicalDevices[i]
			context.Device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
			context.Device.Properties = properties
			context.Device.Features = features
			context.Device.Memory = memory
			core.LogInfo("Physical device selected.")
			return nil
		}
	}

	err := fmt.Errorf("no physical devices were found which meet the requirements")
	core.LogError(err.Error())
	return err
}

func PhysicalDeviceMeetsRequirements(
	device vk.PhysicalDevice,
	properties *vk.PhysicalDeviceProperties,
	features *vk.PhysicalDeviceFeatures,
	requirements *VulkanPhysicalDeviceRequirements,
	outQueueInfo *VulkanPhysicalDeviceQueueFamilyInfo,
) bool {
	outQueueInfo.GraphicsFamilyIndex = -1
	outQueueInfo.TransferFamilyIndex = -1

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogDebug("Device is not a discrete GPU, and one is required. Skipping.")
		return false
	}

	var queueFamilyCount uint32 = 0
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := 0; i < int(queueFamilyCount); i++ {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		if flags&vk.QueueGraphicsBit != 0 && outQueueInfo.GraphicsFamilyIndex < 0 {
			outQueueInfo.GraphicsFamilyIndex = int32(i)
		}
		if flags&vk.QueueTransferBit != 0 && outQueueInfo.TransferFamilyIndex < 0 {
			outQueueInfo.TransferFamilyIndex = int32(i)
		}
	}
	// Graphics queues accept transfer commands even when the bit is not set.
	if outQueueInfo.TransferFamilyIndex < 0 {
		outQueueInfo.TransferFamilyIndex = outQueueInfo.GraphicsFamilyIndex
	}

	core.LogDebug("Graphics Family Index: %d", outQueueInfo.GraphicsFamilyIndex)
	core.LogDebug("Transfer Family Index: %d", outQueueInfo.TransferFamilyIndex)

	if requirements.Graphics && outQueueInfo.GraphicsFamilyIndex < 0 {
		return false
	}
	if requirements.Transfer && outQueueInfo.TransferFamilyIndex < 0 {
		return false
	}
	for _, name := range requirements.DeviceExtensionNames {
		if !deviceHasExtension(device, name) {
			core.LogInfo("Required extension not found: '%s', skipping device.", name)
			return false
		}
	}
	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device does not support samplerAnisotropy, skipping.")
		return false
	}
	if features.TextureCompressionBC == vk.False {
		core.LogInfo("Device does not support BC texture compression, skipping.")
		return false
	}
	return true
}
