package universe

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mapstudio/engine/assets"
	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/renderer/headless"
	"github.com/spaghettifunk/mapstudio/engine/scene"
	"github.com/spaghettifunk/mapstudio/engine/systems"
)

const testMapID = "m10_00_00_00"

const testMSB = `# m10 test map
id: m10_00_00_00
parts:
  - name: m1000B0_0000
    model: m1000B0
    position: [0, 0, 0]
    draw_groups: [1, 2]
  - name: c1000_0000
    model: c1000
  - name: c1000_0001
    model: c1000
  - name: o0001_0000
    model: o0001
  - name: h0010B0_0000
    model: h0010B0
  - name: h0011B0_0000
    model: h0011B0
  - name: n0000B0_0000
    model: n0000B0
regions:
  - name: spawn
    shape: box
  - name: marker
    shape: point
events:
  - name: offset
    type: map_offset
    position: [10, 0, -5]
`

const testGeneratorLocations = `param_type: GENERATOR_LOCATION_PARAM
rows:
  - id: 100
    name: ""
    PositionX: 1
    PositionY: 2
    PositionZ: 3
`

const testGenerators = `param_type: GENERATOR_PARAM
rows:
  - id: 100
    name: spawner
    ChrModel: c2000
  - id: 200
    name: ""
`

type fixture struct {
	root string
	r    *renderer.Renderer
	rm   *systems.ResourceManager
	u    *Universe
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{root: t.TempDir()}
	f.r = renderer.New(headless.New())

	rm, err := systems.NewResourceManager(systems.ResourceManagerConfig{
		Workers:   2,
		QueueSize: 16,
		Locator:   assets.NewLocator(f.root, ""),
	}, f.r)
	require.NoError(t, err)
	t.Cleanup(func() { rm.Shutdown() })
	f.rm = rm
	f.u = New(rm, scene.NewRenderScene())
	return f
}

func (f *fixture) path(rel ...string) string {
	return filepath.Join(append([]string{f.root}, rel...)...)
}

func (f *fixture) msbPath() string {
	return f.path("map", "mapstudio", testMapID+".msb.yaml")
}

func (f *fixture) generatorPaths() (string, string) {
	return f.path("param", "generator", "generatorparam_"+testMapID+".param.yaml"),
		f.path("param", "generator", "generatorlocation_"+testMapID+".param.yaml")
}

func writeFile(t *testing.T, p string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func readFile(t *testing.T, p string) []byte {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return data
}

func glbBlob(t *testing.T) []byte {
	t.Helper()
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}})
	idx := modeler.WriteIndices(doc, []uint32{0, 1, 2})
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

func waitJobs(t *testing.T, jobs []*systems.Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, j := range jobs {
		require.NoError(t, j.Wait(ctx))
	}
}

func jobsByName(jobs []*systems.Job) map[string]*systems.Job {
	out := map[string]*systems.Job{}
	for _, j := range jobs {
		out[j.Name()] = j
	}
	return out
}
