package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/platform"
	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

var _ renderer.Device = (*VulkanBackend)(nil)

/**
 * @brief renderer.Device on top of Vulkan. Uploads are recorded into one
 * command buffer per frame and submitted on the graphics queue.
 */
type VulkanBackend struct {
	platform *platform.Platform
	context  *VulkanContext
	fence    *VulkanFence

	// Serializes frames, the fence is shared.
	submitMu sync.Mutex

	debug bool
}

func New(p *platform.Platform, debug bool) *VulkanBackend {
	return &VulkanBackend{
		platform: p,
		context: &VulkanContext{
			Device: &VulkanDevice{GraphicsQueueIndex: -1},
			Locks:  NewVulkanLockPool(),
		},
		debug: debug,
	}
}

func (vb *VulkanBackend) Initialize(appName string) error {
	procAddr := vb.platform.VulkanProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	// TODO: custom allocator.
	vb.context.Allocator = nil

	if err := vb.createInstance(appName); err != nil {
		return err
	}

	if vb.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportInformationBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vb.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		vb.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	if err := DeviceCreate(vb.context); err != nil {
		core.LogError("failed to create device")
		return err
	}

	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vb.context.Device.Features.SamplerAnisotropy,
		MaxAnisotropy:           vb.context.Device.Properties.Limits.MaxSamplerAnisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MaxLod:                  1000.0,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(vb.context.Device.LogicalDevice, &samplerInfo, vb.context.Allocator, &sampler); res != vk.Success {
		err := resultError("vkCreateSampler", res)
		core.LogError(err.Error())
		return err
	}
	vb.context.Sampler = sampler

	fence, err := NewFence(vb.context, false)
	if err != nil {
		return err
	}
	vb.fence = fence

	core.LogInfo("Vulkan backend initialized successfully.")
	return nil
}

func (vb *VulkanBackend) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Map Studio"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := vb.platform.GetRequiredExtensionNames()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	if vb.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogInfo("Required extensions:")
		for _, e := range requiredExtensions {
			core.LogInfo(e)
		}
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	validationLayers := []string{}
	if vb.debug {
		core.LogInfo("Validation layers enabled. Enumerating...")
		validationLayers = append(validationLayers, "VK_LAYER_KHRONOS_validation")

		var availableCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableCount, nil); res != vk.Success {
			return resultError("vkEnumerateInstanceLayerProperties", res)
		}
		available := make([]vk.LayerProperties, availableCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableCount, available); res != vk.Success {
			return resultError("vkEnumerateInstanceLayerProperties", res)
		}
		for _, name := range validationLayers {
			found := false
			for j := range available {
				available[j].Deref()
				if vk.ToString(available[j].LayerName[:]) == name {
					found = true
					break
				}
			}
			if !found {
				err := fmt.Errorf("required validation layer is missing: %s", name)
				core.LogError(err.Error())
				return err
			}
		}
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(validationLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(validationLayers)

	if res := vk.CreateInstance(&createInfo, vb.context.Allocator, &vb.context.Instance); res != vk.Success {
		err := resultError("vkCreateInstance", res)
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(vb.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func (vb *VulkanBackend) Name() string {
	return "vulkan: " + vb.context.Device.Name()
}

func (vb *VulkanBackend) CreateTexture(desc metadata.TextureDescription) (renderer.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("vulkan: texture %q has zero size", desc.Name)
	}
	return NewVulkanImage(vb.context, desc)
}

func (vb *VulkanBackend) CreateBuffer(desc metadata.BufferDescription) (renderer.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("vulkan: buffer %q has zero size", desc.Name)
	}
	return NewVulkanBuffer(vb.context, desc, bufferUsage(desc.Usage), vk.MemoryPropertyDeviceLocalBit)
}

func (vb *VulkanBackend) CreateResourceLayout(desc metadata.ResourceLayoutDescription) (renderer.ResourceLayout, error) {
	return NewVulkanResourceLayout(vb.context, desc)
}

func (vb *VulkanBackend) CreateResourceSet(layout renderer.ResourceLayout, textures []renderer.Texture) (renderer.ResourceSet, error) {
	l, ok := layout.(*VulkanResourceLayout)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign resource layout %T", layout)
	}
	return NewVulkanResourceSet(vb.context, l, textures)
}

func (vb *VulkanBackend) BeginCommands() (renderer.CommandList, error) {
	vb.submitMu.Lock()
	cb, err := AllocateAndBeginSingleUse(vb.context, vb.context.Device.GraphicsCommandPool)
	if err != nil {
		vb.submitMu.Unlock()
		return nil, err
	}
	return &VulkanCommandList{
		buffer:  cb,
		context: vb.context,
		bound:   map[uint32]*VulkanResourceSet{},
	}, nil
}

// Submit ends the list started by BeginCommands and blocks until the GPU is done with it.
func (vb *VulkanBackend) Submit(cl renderer.CommandList) error {
	list, ok := cl.(*VulkanCommandList)
	if !ok {
		return fmt.Errorf("vulkan: foreign command list %T", cl)
	}
	defer vb.submitMu.Unlock()
	defer list.release()

	return list.buffer.EndSingleUse(vb.context, vb.context.Device.GraphicsCommandPool, vb.context.Device.GraphicsQueue, vb.fence)
}

func (vb *VulkanBackend) WaitIdle() error {
	if vb.context.Device.LogicalDevice == nil {
		return nil
	}
	if res := vk.DeviceWaitIdle(vb.context.Device.LogicalDevice); res != vk.Success {
		return resultError("vkDeviceWaitIdle", res)
	}
	return nil
}

func (vb *VulkanBackend) Shutdown() error {
	if err := vb.WaitIdle(); err != nil {
		core.LogWarn(err.Error())
	}

	if vb.fence != nil {
		vb.fence.FenceDestroy(vb.context)
		vb.fence = nil
	}
	if vb.context.Sampler != nil {
		vk.DestroySampler(vb.context.Device.LogicalDevice, vb.context.Sampler, vb.context.Allocator)
		vb.context.Sampler = nil
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(vb.context)

	if vb.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vb.context.Instance, vb.context.debugMessenger, vb.context.Allocator)
		vb.context.debugMessenger = vk.NullDebugReportCallback
	}

	if vb.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vb.context.Instance, vb.context.Allocator)
		vb.context.Instance = nil
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
