package math

import (
	"encoding/binary"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/constraints"
)

// Clamp returns the value `f` clamped to the range [low, high].
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Max returns the larger of a and b.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// AlignUp rounds v up to the next multiple of align. align must be > 0.
func AlignUp[T constraints.Unsigned](v, align T) T {
	return (v + align - 1) / align * align
}

// ColorToRGBA8 packs a normalized color into four unsigned bytes.
func ColorToRGBA8(c mgl32.Vec4) []byte {
	out := make([]byte, 4)
	for i := 0; i < 4; i++ {
		out[i] = uint8(Clamp(c[i], 0, 1)*255 + 0.5)
	}
	return out
}

// ColorToRGBA32F encodes a color as four little-endian float32 values.
func ColorToRGBA32F(c mgl32.Vec4) []byte {
	out := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], gomath.Float32bits(c[i]))
	}
	return out
}
