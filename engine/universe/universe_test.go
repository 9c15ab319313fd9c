package universe

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/scene"
	"github.com/spaghettifunk/mapstudio/engine/systems"
)

func TestLoadMapPartitionsJobs(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.msbPath(), []byte(testMSB))
	writeFile(t, f.path("map", testMapID, "m1000B0A10.flver"), glbBlob(t))

	m, jobs, err := f.u.LoadMap(testMapID)
	require.NoError(t, err)
	require.Len(t, jobs, 6)

	byName := jobsByName(jobs)
	expected := map[string]int{
		"Loading m10_00_00_00 geometry":   1,
		"Loading m10_00_00_00 collisions": 1,
		"Loading m10_00_00_00 textures":   0,
		"Loading chrs":                    1,
		"Loading objs":                    1,
		"Loading Navmeshes":               1,
	}
	for name, tasks := range expected {
		job, ok := byName[name]
		require.True(t, ok, name)
		assert.Equal(t, tasks, job.TaskCount(), name)
	}
	waitJobs(t, jobs)

	assert.Equal(t, mgl32.Vec3{10, 0, -5}, m.Offset)
	assert.Len(t, m.ObjectsOfType(scene.ObjectTypePart), 7)
	assert.Equal(t, 9, f.u.Scene().Len())

	piece, ok := m.FindObject("m1000B0_0000")
	require.True(t, ok)
	assert.True(t, piece.UseDrawGroups)
	require.NotNil(t, piece.RenderMesh)
	assert.Equal(t, "map/m10_00_00_00/model/m1000B0A10", piece.RenderMesh.Source.VirtualPath())

	require.NoError(t, f.r.Flush(8))
	assert.Equal(t, systems.ResourceStateLoaded, f.rm.State("map/m10_00_00_00/model/m1000B0A10"))
	assert.True(t, piece.RenderMesh.Drawable())

	// missing archives fail without affecting the loaded piece
	assert.Equal(t, systems.ResourceStateFailed, f.rm.State("chr/c1000/model/c1000"))

	owner, ok := piece.RenderMesh.Selectable.Resolve()
	require.True(t, ok)
	assert.Same(t, piece, owner)

	again, jobs, err := f.u.LoadMap(testMapID)
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Empty(t, jobs)
}

func TestLoadMapMissingDocument(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.u.LoadMap("m99_00_00_00")
	assert.ErrorIs(t, err, core.ErrUnknownAsset)
	assert.Empty(t, f.u.LoadedMaps())
}

func TestUnloadMap(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.msbPath(), []byte(testMSB))

	m, jobs, err := f.u.LoadMap(testMapID)
	require.NoError(t, err)
	waitJobs(t, jobs)

	piece, _ := m.FindObject("m1000B0_0000")
	ref := piece.RenderMesh.Selectable

	require.NoError(t, f.u.UnloadMap(testMapID))
	assert.Equal(t, 0, f.u.Scene().Len())
	assert.Equal(t, 0, f.u.Registry().Len())
	assert.False(t, ref.Exists())
	_, ok := f.u.GetLoadedMap(testMapID)
	assert.False(t, ok)
	assert.ErrorIs(t, f.u.UnloadMap(testMapID), core.ErrMapNotLoaded)
}

func TestMapListReadsDuringLoadAndUnload(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.msbPath(), []byte(testMSB))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			ids := f.u.MapIDs()
			assert.LessOrEqual(t, len(ids), 1)
			_ = f.u.LoadedMaps()
			_, _ = f.u.GetLoadedMap(testMapID)
		}
	}()

	for i := 0; i < 20; i++ {
		_, jobs, err := f.u.LoadMap(testMapID)
		require.NoError(t, err)
		waitJobs(t, jobs)
		require.NoError(t, f.u.UnloadMap(testMapID))
	}
	close(stop)
	<-done
	assert.Empty(t, f.u.MapIDs())
}

func TestGetModelDrawable(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.msbPath(), []byte(testMSB))
	m, jobs, err := f.u.LoadMap(testMapID)
	require.NoError(t, err)
	waitJobs(t, jobs)

	obj := scene.NewMapObject(scene.ObjectTypePart, "o0002_0000")
	obj.Model = "o0002"
	m.AddObject(obj)

	mesh, err := f.u.GetModelDrawable(m, obj, obj.Model)
	require.NoError(t, err)
	assert.Same(t, mesh, obj.RenderMesh)
	assert.Equal(t, scene.RenderFilterObject, mesh.Filter)
	assert.Equal(t, "obj/o0002/model/o0002", mesh.Source.VirtualPath())
	owner, ok := mesh.Selectable.Resolve()
	require.True(t, ok)
	assert.Same(t, obj, owner)

	assert.Eventually(t, func() bool {
		return f.rm.State("obj/o0002/model/o0002") == systems.ResourceStateFailed
	}, 5*time.Second, 10*time.Millisecond)

	_, err = f.u.GetModelDrawable(m, obj, "x0001")
	assert.ErrorIs(t, err, core.ErrUnknownAsset)
}

func TestSaveMapRotation(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.msbPath(), []byte(testMSB))
	m, jobs, err := f.u.LoadMap(testMapID)
	require.NoError(t, err)
	waitJobs(t, jobs)

	piece, _ := m.FindObject("o0001_0000")
	piece.Transform.Position = mgl32.Vec3{4, 5, 6}
	require.NoError(t, f.u.SaveMap(m))

	p := f.msbPath()
	first := readFile(t, p)
	assert.Equal(t, testMSB, string(readFile(t, p+".bak")))
	assert.Equal(t, testMSB, string(readFile(t, p+".prev")))
	assert.NoFileExists(t, p+".temp")
	assert.Contains(t, string(first), "# m10 test map")
	assert.Contains(t, string(first), "draw_groups: [1, 2]")

	doc, err := scene.ParseDocument(first)
	require.NoError(t, err)
	reloaded := scene.NewMap(testMapID, nil, nil)
	require.NoError(t, reloaded.LoadDocument(doc))
	moved, ok := reloaded.FindObject("o0001_0000")
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{4, 5, 6}, moved.Transform.Position)

	piece.Name = "o0001_0001"
	require.NoError(t, f.u.SaveAllMaps())
	assert.Equal(t, testMSB, string(readFile(t, p+".bak")))
	assert.Equal(t, string(first), string(readFile(t, p+".prev")))
	assert.Contains(t, string(readFile(t, p)), "o0001_0001")
}

func TestSaveMapAbortLeavesFiles(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.msbPath(), []byte(testMSB))
	m, jobs, err := f.u.LoadMap(testMapID)
	require.NoError(t, err)
	waitJobs(t, jobs)

	dup := scene.NewMapObject(scene.ObjectTypePart, "c1000_0000")
	dup.Model = "c1000"
	m.AddObject(dup)

	err = f.u.SaveMap(m)
	assert.ErrorIs(t, err, core.ErrSaveAborted)

	p := f.msbPath()
	assert.Equal(t, testMSB, string(readFile(t, p)))
	assert.NoFileExists(t, p+".bak")
	assert.NoFileExists(t, p+".prev")
	assert.NoFileExists(t, p+".temp")

	unnamed := scene.NewMapObject(scene.ObjectTypePart, "")
	m.RemoveObject(dup)
	m.AddObject(unnamed)
	assert.ErrorIs(t, f.u.SaveMap(m), core.ErrSaveAborted)
	assert.Equal(t, testMSB, string(readFile(t, p)))
}

func loadGeneratorMap(t *testing.T, f *fixture) (*scene.Map, []*systems.Job) {
	t.Helper()
	genPath, locPath := f.generatorPaths()
	writeFile(t, f.msbPath(), []byte(testMSB))
	writeFile(t, genPath, []byte(testGenerators))
	writeFile(t, locPath, []byte(testGeneratorLocations))

	m, jobs, err := f.u.LoadMap(testMapID)
	require.NoError(t, err)
	waitJobs(t, jobs)
	return m, jobs
}

func TestLoadGenerators(t *testing.T) {
	f := newFixture(t)
	m, jobs := loadGeneratorMap(t, f)

	gens := m.ObjectsOfType(scene.ObjectTypeGenerator)
	require.Len(t, gens, 2)

	located, ok := m.FindObject("generator_100")
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{11, 2, -2}, located.Transform.Position)
	assert.ElementsMatch(t, []string{"generator-loc", "generator"}, located.Row.Tables())
	require.NotNil(t, located.RenderMesh)
	assert.Equal(t, scene.RenderFilterCharacter, located.RenderMesh.Filter)

	_, ok = m.FindObject("generator_200")
	assert.True(t, ok)

	assert.Equal(t, 2, jobsByName(jobs)["Loading chrs"].TaskCount())
}

func TestSaveGenerators(t *testing.T) {
	f := newFixture(t)
	m, _ := loadGeneratorMap(t, f)
	genPath, locPath := f.generatorPaths()

	located, _ := m.FindObject("generator_100")
	located.Transform.Position = mgl32.Vec3{12, 2, -2}
	require.NoError(t, f.u.SaveGenerators(m))

	assert.Equal(t, testGeneratorLocations, string(readFile(t, locPath+".bak")))
	assert.Equal(t, testGenerators, string(readFile(t, genPath+".bak")))

	table, err := scene.ParseParamTable(readFile(t, locPath))
	require.NoError(t, err)
	assert.Equal(t, "GENERATOR_LOCATION_PARAM", table.Type)
	row, ok := table.Row(100)
	require.True(t, ok)
	x, _ := row.Float("PositionX")
	assert.Equal(t, float32(2), x)
	assert.Equal(t, "generator_100", row.Name)

	gen, err := scene.ParseParamTable(readFile(t, genPath))
	require.NoError(t, err)
	assert.Len(t, gen.Rows(), 2)
	chr, ok := gen.Rows()[0].String("ChrModel")
	assert.True(t, ok)
	assert.Equal(t, "c2000", chr)
}

func TestSaveGeneratorsAbortIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	m, _ := loadGeneratorMap(t, f)
	genPath, locPath := f.generatorPaths()

	located, _ := m.FindObject("generator_100")
	located.Transform.Position[0] = float32(math.NaN())

	assert.ErrorIs(t, f.u.SaveGenerators(m), core.ErrSaveAborted)
	assert.ErrorIs(t, f.u.SaveMap(m), core.ErrSaveAborted)

	for _, p := range []string{genPath, locPath, f.msbPath()} {
		_, err := os.Stat(p + ".bak")
		assert.True(t, os.IsNotExist(err), p)
		assert.NoFileExists(t, p+".temp")
	}
	assert.Equal(t, testGenerators, string(readFile(t, genPath)))
	assert.Equal(t, testGeneratorLocations, string(readFile(t, locPath)))
	assert.Equal(t, testMSB, string(readFile(t, f.msbPath())))
}

func TestMapEventsFire(t *testing.T) {
	core.EventInitialize()
	f := newFixture(t)
	writeFile(t, f.msbPath(), []byte(testMSB))

	loaded := make(chan string, 1)
	listener := new(int)
	require.True(t, core.EventRegister(core.EVENT_CODE_MAP_LOADED, listener,
		func(code core.SystemEventCode, sender, l interface{}, data core.EventContext) bool {
			loaded <- data.Subject
			return false
		}))
	defer core.EventUnregister(core.EVENT_CODE_MAP_LOADED, listener)

	_, jobs, err := f.u.LoadMap(testMapID)
	require.NoError(t, err)
	waitJobs(t, jobs)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	select {
	case id := <-loaded:
		assert.Equal(t, testMapID, id)
	case <-ctx.Done():
		t.Fatal("map loaded event not fired")
	}
}
