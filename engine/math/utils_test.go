package math

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestClampAndAlign(t *testing.T) {
	assert.Equal(t, 0, Clamp(-3, 0, 10))
	assert.Equal(t, float32(1), Clamp(float32(1.5), 0, 1))
	assert.Equal(t, uint32(8), AlignUp(uint32(5), 4))
	assert.Equal(t, uint32(4), AlignUp(uint32(4), 4))
	assert.Equal(t, 7, Max(3, 7))
}

func TestColorPacking(t *testing.T) {
	assert.Equal(t, []byte{255, 0, 0, 255}, ColorToRGBA8(mgl32.Vec4{1, 0, 0, 1}))
	assert.Equal(t, []byte{128, 0, 255, 0}, ColorToRGBA8(mgl32.Vec4{0.5, -1, 2, 0}))
	assert.Len(t, ColorToRGBA32F(mgl32.Vec4{1, 0, 0, 1}), 16)
}
