package metadata

import (
	"fmt"
	"math/bits"
)

/** @brief Pixel formats the studio can create GPU textures with. */
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatR8UNorm
	PixelFormatR8G8UNorm
	PixelFormatR16UNorm
	PixelFormatR8G8B8A8UNorm
	PixelFormatR8G8B8A8UNormSRgb
	PixelFormatB8G8R8A8UNorm
	PixelFormatB8G8R8A8UNormSRgb
	PixelFormatR32G32B32A32Float
	PixelFormatBC1RgbaUNorm
	PixelFormatBC1RgbaUNormSRgb
	PixelFormatBC2UNorm
	PixelFormatBC2UNormSRgb
	PixelFormatBC3UNorm
	PixelFormatBC3UNormSRgb
	PixelFormatBC4UNorm
	PixelFormatBC4SNorm
	PixelFormatBC5UNorm
	PixelFormatBC5SNorm
	PixelFormatBC6HUFloat
	PixelFormatBC6HSFloat
	PixelFormatBC7UNorm
	PixelFormatBC7UNormSRgb
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatUnknown:           "Unknown",
	PixelFormatR8UNorm:           "R8_UNorm",
	PixelFormatR8G8UNorm:         "R8_G8_UNorm",
	PixelFormatR16UNorm:          "R16_UNorm",
	PixelFormatR8G8B8A8UNorm:     "R8_G8_B8_A8_UNorm",
	PixelFormatR8G8B8A8UNormSRgb: "R8_G8_B8_A8_UNorm_SRgb",
	PixelFormatB8G8R8A8UNorm:     "B8_G8_R8_A8_UNorm",
	PixelFormatB8G8R8A8UNormSRgb: "B8_G8_R8_A8_UNorm_SRgb",
	PixelFormatR32G32B32A32Float: "R32_G32_B32_A32_Float",
	PixelFormatBC1RgbaUNorm:      "BC1_Rgba_UNorm",
	PixelFormatBC1RgbaUNormSRgb:  "BC1_Rgba_UNorm_SRgb",
	PixelFormatBC2UNorm:          "BC2_UNorm",
	PixelFormatBC2UNormSRgb:      "BC2_UNorm_SRgb",
	PixelFormatBC3UNorm:          "BC3_UNorm",
	PixelFormatBC3UNormSRgb:      "BC3_UNorm_SRgb",
	PixelFormatBC4UNorm:          "BC4_UNorm",
	PixelFormatBC4SNorm:          "BC4_SNorm",
	PixelFormatBC5UNorm:          "BC5_UNorm",
	PixelFormatBC5SNorm:          "BC5_SNorm",
	PixelFormatBC6HUFloat:        "BC6H_UFloat",
	PixelFormatBC6HSFloat:        "BC6H_SFloat",
	PixelFormatBC7UNorm:          "BC7_UNorm",
	PixelFormatBC7UNormSRgb:      "BC7_UNorm_SRgb",
}

func (f PixelFormat) String() string {
	if n, ok := pixelFormatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

/** @brief Reports whether the format is stored in 4x4 compressed blocks. */
func (f PixelFormat) IsCompressed() bool {
	return f >= PixelFormatBC1RgbaUNorm && f <= PixelFormatBC7UNormSRgb
}

/**
 * @brief The size in bytes of one block (compressed formats) or one texel
 * (uncompressed formats). Zero for unknown formats.
 */
func (f PixelFormat) BlockBytes() uint32 {
	switch f {
	case PixelFormatBC1RgbaUNorm, PixelFormatBC1RgbaUNormSRgb,
		PixelFormatBC4UNorm, PixelFormatBC4SNorm:
		return 8
	case PixelFormatBC2UNorm, PixelFormatBC2UNormSRgb,
		PixelFormatBC3UNorm, PixelFormatBC3UNormSRgb,
		PixelFormatBC5UNorm, PixelFormatBC5SNorm,
		PixelFormatBC6HUFloat, PixelFormatBC6HSFloat,
		PixelFormatBC7UNorm, PixelFormatBC7UNormSRgb:
		return 16
	case PixelFormatR8UNorm:
		return 1
	case PixelFormatR8G8UNorm, PixelFormatR16UNorm:
		return 2
	case PixelFormatR8G8B8A8UNorm, PixelFormatR8G8B8A8UNormSRgb,
		PixelFormatB8G8R8A8UNorm, PixelFormatB8G8R8A8UNormSRgb:
		return 4
	case PixelFormatR32G32B32A32Float:
		return 16
	}
	return 0
}

/** @brief The edge length in texels of one block. 4 for compressed, 1 otherwise. */
func (f PixelFormat) BlockDim() uint32 {
	if f.IsCompressed() {
		return 4
	}
	return 1
}

const (
	/** @brief Largest texture edge the studio will create. */
	MaxTextureDimension uint32 = 16384
	/** @brief Largest array layer count the studio will create. */
	MaxTextureArrayLayers uint32 = 2048
)

/** @brief Length of the full mip chain for a width x height texture. */
func MaxMipLevels(width, height uint32) uint32 {
	return uint32(bits.Len32(max(width, height)))
}

/**
 * @brief Computes the dimensions and byte size of one mip level.
 * Compressed levels are padded up to whole blocks.
 */
func MipLevelSize(format PixelFormat, width, height, level uint32) (w, h uint32, size uint64) {
	w = width >> level
	if w < 1 {
		w = 1
	}
	h = height >> level
	if h < 1 {
		h = 1
	}
	bd := format.BlockDim()
	bw := (w + bd - 1) / bd
	bh := (h + bd - 1) / bd
	return w, h, uint64(bw) * uint64(bh) * uint64(format.BlockBytes())
}

/** @brief Texture usage bit flags. */
type TextureUsage uint8

const (
	/** @brief The texture is read by shaders. */
	TextureUsageSampled TextureUsage = 1 << iota
	/** @brief CPU-side staging data, never bound. */
	TextureUsageStaging
	/** @brief Six faces per array layer. */
	TextureUsageCubemap
)

/**
 * @brief Represents various types of textures.
 */
type TextureType int

const (
	/** @brief A standard two-dimensional texture. */
	TextureType2d TextureType = iota
	/** @brief A cube texture, used for cubemaps. */
	TextureTypeCube
)

/**
 * @brief Describes a texture to be created by a Device.
 */
type TextureDescription struct {
	/** @brief Debug name, forwarded to the backend when supported. */
	Name string
	/** @brief The texture Width. */
	Width uint32
	/** @brief The texture Height. */
	Height uint32
	/** @brief Number of mip levels, at least 1. */
	MipLevels uint32
	/** @brief Array layers. For cubemaps each layer holds six faces. */
	ArrayLayers uint32
	Format      PixelFormat
	Usage       TextureUsage
}

func (d TextureDescription) IsCubemap() bool {
	return d.Usage&TextureUsageCubemap != 0
}

/** @brief Total number of 2D layers, counting cube faces. */
func (d TextureDescription) LayerCount() uint32 {
	layers := d.ArrayLayers
	if layers == 0 {
		layers = 1
	}
	if d.IsCubemap() {
		layers *= 6
	}
	return layers
}

func (d TextureDescription) Type() TextureType {
	if d.IsCubemap() {
		return TextureTypeCube
	}
	return TextureType2d
}

/** @brief Index of a (layer, mip) pair in a flat subresource list. */
func (d TextureDescription) SubresourceIndex(layer, level uint32) uint32 {
	return layer*d.MipLevels + level
}
