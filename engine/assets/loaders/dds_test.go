package loaders

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/renderer/metadata"
)

func buildDDS(w, h, mips uint32, fourCC string, caps2 uint32, dx10 *ddsHeaderDX10, payload int) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(ddsMagic))
	hdr := ddsHeader{
		Size:        ddsHeaderSize,
		Flags:       0x1 | 0x2 | 0x4 | 0x1000 | 0x20000,
		Height:      h,
		Width:       w,
		MipMapCount: mips,
		Caps2:       caps2,
	}
	hdr.PixelFormat = ddsPixelFormat{Size: 32, Flags: ddpfFourCC}
	copy(hdr.PixelFormat.FourCC[:], fourCC)
	_ = binary.Write(&buf, binary.LittleEndian, hdr)
	if dx10 != nil {
		_ = binary.Write(&buf, binary.LittleEndian, *dx10)
	}
	buf.Write(bytes.Repeat([]byte{0xAB}, payload))
	return buf.Bytes()
}

func TestParseDDSFourCC(t *testing.T) {
	// 64x32 DXT1, 3 mips: 16*8*8 + 8*4*8 + 4*2*8
	raw := buildDDS(64, 32, 3, "DXT1", 0, nil, 1024+256+64)
	img, err := ParseDDS(raw)
	require.NoError(t, err)

	assert.Equal(t, uint32(64), img.Width)
	assert.Equal(t, uint32(32), img.Height)
	assert.Equal(t, uint32(3), img.MipLevels)
	assert.Equal(t, metadata.PixelFormatBC1RgbaUNormSRgb, img.Format)
	assert.False(t, img.Cubemap)
	assert.Equal(t, 128, img.DataOffset)
	assert.Equal(t, uint64(1024+256+64), img.ExpectedSize())

	sb := metadata.NewStagingBuffer(img.Description("t"))
	require.NoError(t, img.FillStaging(sb))
	assert.Equal(t, bytes.Repeat([]byte{0xAB}, 64), sb.Subresource(0, 2))
}

func TestParseDDSDX10(t *testing.T) {
	raw := buildDDS(16, 16, 1, "DX10", 0, &ddsHeaderDX10{DXGIFormat: dxgiBC7SRgb, ResourceDimension: 3, ArraySize: 1}, 256)
	img, err := ParseDDS(raw)
	require.NoError(t, err)
	assert.Equal(t, metadata.PixelFormatBC7UNormSRgb, img.Format)
	assert.Equal(t, 148, img.DataOffset)
	assert.Equal(t, uint64(256), img.ExpectedSize())
}

func TestParseDDSCubemap(t *testing.T) {
	// 8x8 DXT5 cube, 2 mips per face: (2*2*16 + 1*16) * 6
	raw := buildDDS(8, 8, 2, "DXT5", ddsCaps2Cubemap, nil, 6*80)
	img, err := ParseDDS(raw)
	require.NoError(t, err)
	assert.True(t, img.Cubemap)

	desc := img.Description("cube")
	assert.Equal(t, uint32(6), desc.LayerCount())
	sb := metadata.NewStagingBuffer(desc)
	require.NoError(t, img.FillStaging(sb))
	assert.Equal(t, 6*80, sb.Size())
}

func TestParseDDSErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"short", []byte("DDS "), core.ErrDecodeFailure},
		{"magic", append([]byte("XXXX"), make([]byte, 124)...), core.ErrDecodeFailure},
		{"fourcc", buildDDS(4, 4, 1, "ZZZZ", 0, nil, 8), core.ErrUnsupportedFormat},
		{"dxgi", buildDDS(4, 4, 1, "DX10", 0, &ddsHeaderDX10{DXGIFormat: 500}, 8), core.ErrUnsupportedFormat},
		{"zero size", buildDDS(0, 4, 1, "DXT1", 0, nil, 8), core.ErrDecodeFailure},
		{"too wide", buildDDS(65536, 4, 1, "DXT1", 0, nil, 0), core.ErrDecodeFailure},
		{"too many mips", buildDDS(64, 64, 8, "DXT1", 0, nil, 0), core.ErrDecodeFailure},
		{"huge mip count", buildDDS(4, 4, 0xFFFFFFFF, "DXT1", 0, nil, 0), core.ErrDecodeFailure},
		{"too many layers", buildDDS(4, 4, 1, "DX10", 0, &ddsHeaderDX10{DXGIFormat: dxgiBC1, ArraySize: 1 << 20}, 0), core.ErrDecodeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDDS(tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFillStagingTruncated(t *testing.T) {
	raw := buildDDS(64, 64, 1, "DXT5", 0, nil, 100)
	img, err := ParseDDS(raw)
	require.NoError(t, err)

	sb := metadata.NewStagingBuffer(img.Description("short"))
	assert.ErrorIs(t, img.FillStaging(sb), core.ErrDecodeFailure)

	_, err = LoadTexture("short", raw)
	assert.ErrorIs(t, err, core.ErrDecodeFailure)
}

func TestCorruptHeaderDoesNotPassAsTexture(t *testing.T) {
	// A 65536x65536 RGBA8 layout wraps to zero bytes in 32-bit math.
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(ddsMagic))
	hdr := ddsHeader{Size: ddsHeaderSize, Width: 65536, Height: 65536, MipMapCount: 1}
	hdr.PixelFormat = ddsPixelFormat{Size: 32, Flags: ddpfRGB, RGBBitCount: 32, RBitMask: 0xff, GBitMask: 0xff00, BBitMask: 0xff0000}
	_ = binary.Write(&buf, binary.LittleEndian, hdr)
	raw := buf.Bytes()
	require.Len(t, raw, 128)

	_, err := ParseDDS(raw)
	assert.ErrorIs(t, err, core.ErrDecodeFailure)

	res, err := LoadTexture("huge", raw)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrDecodeFailure)

	// Within the edge limit the declared layout still has to be present.
	img, err := ParseDDS(buildDDS(16384, 16384, 15, "DXT5", 0, nil, 0))
	require.NoError(t, err)
	assert.Greater(t, img.ExpectedSize(), uint64(1<<28))
	assert.ErrorIs(t, img.CheckSize(), core.ErrDecodeFailure)
}
