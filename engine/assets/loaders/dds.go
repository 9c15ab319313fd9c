package loaders

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

const (
	ddsMagic      = 0x20534444 // "DDS "
	ddsHeaderSize = 124
	ddsDX10Size   = 20

	ddpfAlphaPixels = 0x1
	ddpfFourCC      = 0x4
	ddpfRGB         = 0x40
	ddpfLuminance   = 0x20000

	ddsCaps2Cubemap    = 0x200
	dx10MiscCubemap    = 0x4
	fourCCDX10         = "DX10"
	dxgiR32G32B32A32F  = 2
	dxgiR8G8B8A8       = 28
	dxgiR8G8B8A8SRgb   = 29
	dxgiR8G8           = 49
	dxgiR16            = 56
	dxgiR8             = 61
	dxgiBC1            = 71
	dxgiBC1SRgb        = 72
	dxgiBC2            = 74
	dxgiBC2SRgb        = 75
	dxgiBC3            = 77
	dxgiBC3SRgb        = 78
	dxgiBC4            = 80
	dxgiBC4SNorm       = 81
	dxgiBC5            = 83
	dxgiBC5SNorm       = 84
	dxgiB8G8R8A8       = 87
	dxgiB8G8R8X8       = 88
	dxgiB8G8R8A8SRgb   = 91
	dxgiB8G8R8X8SRgb   = 93
	dxgiBC6HUF16       = 95
	dxgiBC6HSF16       = 96
	dxgiBC7            = 98
	dxgiBC7SRgb        = 99
)

type ddsPixelFormat struct {
	Size        uint32
	Flags       uint32
	FourCC      [4]byte
	RGBBitCount uint32
	RBitMask    uint32
	GBitMask    uint32
	BBitMask    uint32
	ABitMask    uint32
}

type ddsHeader struct {
	Size              uint32
	Flags             uint32
	Height            uint32
	Width             uint32
	PitchOrLinearSize uint32
	Depth             uint32
	MipMapCount       uint32
	Reserved1         [11]uint32
	PixelFormat       ddsPixelFormat
	Caps              uint32
	Caps2             uint32
	Caps3             uint32
	Caps4             uint32
	Reserved2         uint32
}

type ddsHeaderDX10 struct {
	DXGIFormat        uint32
	ResourceDimension uint32
	MiscFlag          uint32
	ArraySize         uint32
	MiscFlags2        uint32
}

// DDSImage is a parsed DDS header plus the raw blob it came from.
type DDSImage struct {
	Width       uint32
	Height      uint32
	MipLevels   uint32
	ArrayLayers uint32
	Format      metadata.PixelFormat
	Cubemap     bool
	// Offset of the first texel byte in Data.
	DataOffset int
	Data       []byte
}

var fourCCFormats = map[string]metadata.PixelFormat{
	"DXT1": metadata.PixelFormatBC1RgbaUNormSRgb,
	"DXT3": metadata.PixelFormatBC2UNormSRgb,
	"DXT5": metadata.PixelFormatBC3UNormSRgb,
	"ATI1": metadata.PixelFormatBC4UNorm,
	"BC4U": metadata.PixelFormatBC4UNorm,
	"ATI2": metadata.PixelFormatBC5UNorm,
	"BC5U": metadata.PixelFormatBC5UNorm,
}

var dxgiFormats = map[uint32]metadata.PixelFormat{
	dxgiR32G32B32A32F: metadata.PixelFormatR32G32B32A32Float,
	dxgiR8G8B8A8:      metadata.PixelFormatR8G8B8A8UNorm,
	dxgiR8G8B8A8SRgb:  metadata.PixelFormatR8G8B8A8UNormSRgb,
	dxgiR8G8:          metadata.PixelFormatR8G8UNorm,
	dxgiR16:           metadata.PixelFormatR16UNorm,
	dxgiR8:            metadata.PixelFormatR8UNorm,
	dxgiBC1:           metadata.PixelFormatBC1RgbaUNorm,
	dxgiBC1SRgb:       metadata.PixelFormatBC1RgbaUNormSRgb,
	dxgiBC2:           metadata.PixelFormatBC2UNorm,
	dxgiBC2SRgb:       metadata.PixelFormatBC2UNormSRgb,
	dxgiBC3:           metadata.PixelFormatBC3UNorm,
	dxgiBC3SRgb:       metadata.PixelFormatBC3UNormSRgb,
	dxgiBC4:           metadata.PixelFormatBC4UNorm,
	dxgiBC4SNorm:      metadata.PixelFormatBC4SNorm,
	dxgiBC5:           metadata.PixelFormatBC5UNorm,
	dxgiBC5SNorm:      metadata.PixelFormatBC5SNorm,
	dxgiB8G8R8A8:      metadata.PixelFormatB8G8R8A8UNorm,
	dxgiB8G8R8X8:      metadata.PixelFormatB8G8R8A8UNorm,
	dxgiB8G8R8A8SRgb:  metadata.PixelFormatB8G8R8A8UNormSRgb,
	dxgiB8G8R8X8SRgb:  metadata.PixelFormatB8G8R8A8UNormSRgb,
	dxgiBC6HUF16:      metadata.PixelFormatBC6HUFloat,
	dxgiBC6HSF16:      metadata.PixelFormatBC6HSFloat,
	dxgiBC7:           metadata.PixelFormatBC7UNorm,
	dxgiBC7SRgb:       metadata.PixelFormatBC7UNormSRgb,
}

// IsDDS reports whether raw starts with the DDS magic.
func IsDDS(raw []byte) bool {
	return len(raw) >= 4 && binary.LittleEndian.Uint32(raw) == ddsMagic
}

// ParseDDS reads the header of a DDS blob. Texel data is not copied.
func ParseDDS(raw []byte) (*DDSImage, error) {
	if len(raw) < 4+ddsHeaderSize {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "dds: %d bytes is shorter than the header", len(raw))
	}
	if !IsDDS(raw) {
		return nil, errors.Wrap(core.ErrDecodeFailure, "dds: bad magic")
	}

	var hdr ddsHeader
	if err := binary.Read(bytes.NewReader(raw[4:4+ddsHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "dds: header: %v", err)
	}
	if hdr.Size != ddsHeaderSize {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "dds: header size %d", hdr.Size)
	}
	if hdr.Width == 0 || hdr.Height == 0 {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "dds: empty image %dx%d", hdr.Width, hdr.Height)
	}
	if hdr.Width > metadata.MaxTextureDimension || hdr.Height > metadata.MaxTextureDimension {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "dds: %dx%d exceeds %d texels per edge", hdr.Width, hdr.Height, metadata.MaxTextureDimension)
	}
	if maxMips := metadata.MaxMipLevels(hdr.Width, hdr.Height); hdr.MipMapCount > maxMips {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "dds: %d mips for %dx%d, at most %d", hdr.MipMapCount, hdr.Width, hdr.Height, maxMips)
	}

	img := &DDSImage{
		Width:       hdr.Width,
		Height:      hdr.Height,
		MipLevels:   hdr.MipMapCount,
		ArrayLayers: 1,
		Cubemap:     hdr.Caps2&ddsCaps2Cubemap != 0,
		DataOffset:  4 + ddsHeaderSize,
		Data:        raw,
	}
	if img.MipLevels == 0 {
		img.MipLevels = 1
	}

	pf := hdr.PixelFormat
	switch {
	case pf.Flags&ddpfFourCC != 0 && string(pf.FourCC[:]) == fourCCDX10:
		if len(raw) < img.DataOffset+ddsDX10Size {
			return nil, errors.Wrap(core.ErrDecodeFailure, "dds: truncated DX10 header")
		}
		var dx10 ddsHeaderDX10
		if err := binary.Read(bytes.NewReader(raw[img.DataOffset:img.DataOffset+ddsDX10Size]), binary.LittleEndian, &dx10); err != nil {
			return nil, errors.Wrapf(core.ErrDecodeFailure, "dds: DX10 header: %v", err)
		}
		img.DataOffset += ddsDX10Size
		f, ok := dxgiFormats[dx10.DXGIFormat]
		if !ok {
			return nil, errors.Wrapf(core.ErrUnsupportedFormat, "dds: DXGI format %d", dx10.DXGIFormat)
		}
		img.Format = f
		if dx10.ArraySize > metadata.MaxTextureArrayLayers {
			return nil, errors.Wrapf(core.ErrDecodeFailure, "dds: %d array layers, at most %d", dx10.ArraySize, metadata.MaxTextureArrayLayers)
		}
		if dx10.ArraySize > 1 {
			img.ArrayLayers = dx10.ArraySize
		}
		if dx10.MiscFlag&dx10MiscCubemap != 0 {
			img.Cubemap = true
		}
	case pf.Flags&ddpfFourCC != 0:
		f, ok := fourCCFormats[string(pf.FourCC[:])]
		if !ok {
			return nil, errors.Wrapf(core.ErrUnsupportedFormat, "dds: FourCC %q", string(pf.FourCC[:]))
		}
		img.Format = f
	case pf.Flags&ddpfRGB != 0 && pf.RGBBitCount == 32:
		switch {
		case pf.RBitMask == 0x00ff0000:
			img.Format = metadata.PixelFormatB8G8R8A8UNorm
		case pf.RBitMask == 0x000000ff:
			img.Format = metadata.PixelFormatR8G8B8A8UNorm
		default:
			return nil, errors.Wrapf(core.ErrUnsupportedFormat, "dds: 32bpp masks %#x/%#x/%#x", pf.RBitMask, pf.GBitMask, pf.BBitMask)
		}
	case pf.Flags&ddpfLuminance != 0 && pf.RGBBitCount == 8:
		img.Format = metadata.PixelFormatR8UNorm
	case pf.Flags&ddpfLuminance != 0 && pf.RGBBitCount == 16 && pf.Flags&ddpfAlphaPixels != 0:
		img.Format = metadata.PixelFormatR8G8UNorm
	default:
		return nil, errors.Wrapf(core.ErrUnsupportedFormat, "dds: pixel format flags %#x, %d bpp", pf.Flags, pf.RGBBitCount)
	}

	return img, nil
}

// Description returns the staging description matching the image layout.
func (d *DDSImage) Description(name string) metadata.TextureDescription {
	desc := metadata.TextureDescription{
		Name:        name,
		Width:       d.Width,
		Height:      d.Height,
		MipLevels:   d.MipLevels,
		ArrayLayers: d.ArrayLayers,
		Format:      d.Format,
		Usage:       metadata.TextureUsageStaging,
	}
	if d.Cubemap {
		desc.Usage |= metadata.TextureUsageCubemap
	}
	return desc
}

// ExpectedSize returns the byte count of every layer and mip, header excluded.
func (d *DDSImage) ExpectedSize() uint64 {
	var perLayer uint64
	for level := uint32(0); level < d.MipLevels; level++ {
		_, _, size := metadata.MipLevelSize(d.Format, d.Width, d.Height, level)
		perLayer += size
	}
	return perLayer * uint64(d.Description("").LayerCount())
}

// CheckSize fails when the blob is shorter than the header-declared layout.
func (d *DDSImage) CheckSize() error {
	need := uint64(d.DataOffset) + d.ExpectedSize()
	if uint64(len(d.Data)) < need {
		return errors.Wrapf(core.ErrDecodeFailure, "dds: %d bytes, layout needs %d", len(d.Data), need)
	}
	return nil
}

// FillStaging copies every layer and mip, in file order, into sb.
func (d *DDSImage) FillStaging(sb *metadata.StagingBuffer) error {
	desc := sb.Description
	offset := d.DataOffset
	for layer := uint32(0); layer < desc.LayerCount(); layer++ {
		for level := uint32(0); level < desc.MipLevels; level++ {
			_, _, size := metadata.MipLevelSize(d.Format, d.Width, d.Height, level)
			if uint64(len(d.Data)-offset) < size {
				return errors.Wrapf(core.ErrDecodeFailure, "dds: layer %d mip %d needs %d bytes at %d, blob has %d", layer, level, size, offset, len(d.Data))
			}
			end := offset + int(size)
			if err := sb.Write(layer, level, d.Data[offset:end]); err != nil {
				return errors.Wrapf(core.ErrDecodeFailure, "dds: %v", err)
			}
			offset = end
		}
	}
	return nil
}
