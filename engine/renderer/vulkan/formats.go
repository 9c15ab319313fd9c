package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

var pixelFormats = map[metadata.PixelFormat]vk.Format{
	metadata.PixelFormatR8UNorm:           vk.FormatR8Unorm,
	metadata.PixelFormatR8G8UNorm:         vk.FormatR8g8Unorm,
	metadata.PixelFormatR16UNorm:          vk.FormatR16Unorm,
	metadata.PixelFormatR8G8B8A8UNorm:     vk.FormatR8g8b8a8Unorm,
	metadata.PixelFormatR8G8B8A8UNormSRgb: vk.FormatR8g8b8a8Srgb,
	metadata.PixelFormatB8G8R8A8UNorm:     vk.FormatB8g8r8a8Unorm,
	metadata.PixelFormatB8G8R8A8UNormSRgb: vk.FormatB8g8r8a8Srgb,
	metadata.PixelFormatR32G32B32A32Float: vk.FormatR32g32b32a32Sfloat,
	metadata.PixelFormatBC1RgbaUNorm:      vk.FormatBc1RgbaUnormBlock,
	metadata.PixelFormatBC1RgbaUNormSRgb:  vk.FormatBc1RgbaSrgbBlock,
	metadata.PixelFormatBC2UNorm:          vk.FormatBc2UnormBlock,
	metadata.PixelFormatBC2UNormSRgb:      vk.FormatBc2SrgbBlock,
	metadata.PixelFormatBC3UNorm:          vk.FormatBc3UnormBlock,
	metadata.PixelFormatBC3UNormSRgb:      vk.FormatBc3SrgbBlock,
	metadata.PixelFormatBC4UNorm:          vk.FormatBc4UnormBlock,
	metadata.PixelFormatBC4SNorm:          vk.FormatBc4SnormBlock,
	metadata.PixelFormatBC5UNorm:          vk.FormatBc5UnormBlock,
	metadata.PixelFormatBC5SNorm:          vk.FormatBc5SnormBlock,
	metadata.PixelFormatBC6HUFloat:        vk.FormatBc6hUfloatBlock,
	metadata.PixelFormatBC6HSFloat:        vk.FormatBc6hSfloatBlock,
	metadata.PixelFormatBC7UNorm:          vk.FormatBc7UnormBlock,
	metadata.PixelFormatBC7UNormSRgb:      vk.FormatBc7SrgbBlock,
}

// VulkanFormat maps a studio pixel format to its Vulkan equivalent.
func VulkanFormat(f metadata.PixelFormat) (vk.Format, bool) {
	vf, ok := pixelFormats[f]
	return vf, ok
}
