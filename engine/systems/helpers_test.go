package systems

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/renderer/headless"
)

func newTestRenderer() (*renderer.Renderer, *headless.Device) {
	dev := headless.New()
	return renderer.New(dev), dev
}

// ddsBlob builds a legacy FourCC DDS with payload bytes of texel data.
func ddsBlob(w, h, mips uint32, fourCC string, caps2 uint32, payload int) []byte {
	raw := make([]byte, 128+payload)
	le := binary.LittleEndian
	le.PutUint32(raw[0:], 0x20534444)
	le.PutUint32(raw[4:], 124)
	le.PutUint32(raw[8:], 0x1|0x2|0x4|0x1000|0x20000)
	le.PutUint32(raw[12:], h)
	le.PutUint32(raw[16:], w)
	le.PutUint32(raw[28:], mips)
	le.PutUint32(raw[76:], 32)
	le.PutUint32(raw[80:], 0x4)
	copy(raw[84:88], fourCC)
	le.PutUint32(raw[112:], caps2)
	for i := 128; i < len(raw); i++ {
		raw[i] = byte(i)
	}
	return raw
}

func glbBlob(t *testing.T) []byte {
	t.Helper()
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}})
	idx := modeler.WriteIndices(doc, []uint32{0, 1, 2, 0, 2, 3})
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name: "piece",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idx),
			Attributes: map[string]uint32{"POSITION": pos},
		}},
	})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Mesh: gltf.Index(0)})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	require.NoError(t, enc.Encode(doc))
	return buf.Bytes()
}

func pngBlob(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Set(i%w, i/w, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, p string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func writeArchive(t *testing.T, p string, files map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	writeFile(t, p, buf.Bytes())
}
