package systems

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mapstudio/engine/assets"
	"github.com/spaghettifunk/mapstudio/engine/assets/loaders"
	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/renderer/headless"
	"github.com/spaghettifunk/mapstudio/engine/resources"
)

const testMap = "m10_00_00_00"

type fixture struct {
	root string
	r    *renderer.Renderer
	dev  *headless.Device
	pool *TexturePool
	rm   *ResourceManager
	// decodes counts loader invocations per asset kind
	decodes sync.Map
}

func newFixture(t *testing.T, withPool bool) *fixture {
	t.Helper()
	f := &fixture{root: t.TempDir()}
	f.r, f.dev = newTestRenderer()

	reg := loaders.NewRegistry()
	for _, kind := range []resources.AssetKind{
		resources.AssetKindFlver,
		resources.AssetKindCollision,
		resources.AssetKindNavmesh,
		resources.AssetKindTexture,
	} {
		kind := kind
		inner := map[resources.AssetKind]loaders.LoaderFunc{
			resources.AssetKindFlver:     loaders.LoadFlver,
			resources.AssetKindCollision: loaders.LoadCollision,
			resources.AssetKindNavmesh:   loaders.LoadNavmesh,
			resources.AssetKindTexture:   loaders.LoadTexture,
		}[kind]
		reg.Register(kind, loaders.LoaderFunc(func(name string, data []byte) (resources.Resource, error) {
			c, _ := f.decodes.LoadOrStore(name, new(atomic.Int32))
			c.(*atomic.Int32).Add(1)
			return inner(name, data)
		}))
	}

	cfg := ResourceManagerConfig{
		Workers:   4,
		QueueSize: 16,
		Locator:   assets.NewLocator(f.root, ""),
		Loaders:   reg,
	}
	if withPool {
		pool, err := NewTexturePool(f.r, "textures", 8)
		require.NoError(t, err)
		f.pool = pool
		cfg.TexturePool = pool
	}
	rm, err := NewResourceManager(cfg, f.r)
	require.NoError(t, err)
	f.rm = rm
	t.Cleanup(func() { _ = rm.Shutdown() })
	return f
}

func (f *fixture) decodeCount(name string) int {
	c, ok := f.decodes.Load(name)
	if !ok {
		return 0
	}
	return int(c.(*atomic.Int32).Load())
}

func waitJobs(t *testing.T, jobs ...*Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, j := range jobs {
		require.NoError(t, j.Wait(ctx))
	}
}

func TestConcurrentRequestsDecodeOnce(t *testing.T) {
	f := newFixture(t, false)
	piece := f.rm.Locator().GetMapModel(testMap, "m1000B0A10")
	writeFile(t, piece.AssetPath, glbBlob(t))

	const n = 8
	jobs := make([]*Job, n)
	for i := range jobs {
		jobs[i] = f.rm.CreateJob("Loading geometry")
		jobs[i].AddLoadFileTask(piece.AssetVirtualPath)
	}
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			j.StartAsync()
		}(j)
	}
	wg.Wait()
	waitJobs(t, jobs...)
	require.NoError(t, f.r.Flush(8))

	assert.Equal(t, 1, f.decodeCount("m1000B0A10"))
	h, err := GetResource[*resources.FlverResource](f.rm, piece.AssetVirtualPath)
	require.NoError(t, err)
	require.True(t, h.IsLoaded())
	res, ok := h.Get()
	require.True(t, ok)
	assert.True(t, res.Resident())
	assert.Equal(t, 2, f.dev.BuffersCreated)
}

func TestEmptyJobSkipsUploadQueue(t *testing.T) {
	f := newFixture(t, false)
	j := f.rm.CreateJob("nothing")
	assert.Equal(t, 0, j.TaskCount())
	j.StartAsync()

	select {
	case <-j.Done():
	case <-time.After(time.Second):
		t.Fatal("empty job did not complete")
	}
	assert.Equal(t, 0, f.r.PendingUploads())
}

func TestLoadFailureMarksFailed(t *testing.T) {
	f := newFixture(t, false)
	corrupt := f.rm.Locator().GetMapModel(testMap, "m2000B0A10")
	writeFile(t, corrupt.AssetPath, []byte("garbage"))
	missing := f.rm.Locator().GetMapModel(testMap, "m3000B0A10")

	hc, err := GetResource[*resources.FlverResource](f.rm, corrupt.AssetVirtualPath)
	require.NoError(t, err)
	hm, err := GetResource[*resources.FlverResource](f.rm, missing.AssetVirtualPath)
	require.NoError(t, err)

	j := f.rm.CreateJob("Loading geometry")
	j.AddLoadFileTask(corrupt.AssetVirtualPath)
	j.AddLoadFileTask(missing.AssetVirtualPath)
	j.StartAsync()
	waitJobs(t, j)
	require.NoError(t, f.r.Flush(4))

	assert.Equal(t, 2, j.Failed())
	assert.Equal(t, ResourceStateFailed, hc.State())
	assert.ErrorIs(t, hc.Err(), core.ErrDecodeFailure)
	assert.Equal(t, ResourceStateFailed, hm.State())
	_, ok := hc.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, f.dev.BuffersCreated)

	// failed loads are terminal until invalidated
	again := f.rm.CreateJob("retry")
	again.AddLoadFileTask(corrupt.AssetVirtualPath)
	again.StartAsync()
	waitJobs(t, again)
	assert.Equal(t, 1, f.decodeCount("m2000B0A10"))
}

func TestGetResourceKindMismatch(t *testing.T) {
	f := newFixture(t, false)
	vpath := "map/" + testMap + "/model/m1000B0A10"

	h, err := GetResource[*resources.FlverResource](f.rm, vpath)
	require.NoError(t, err)
	assert.Equal(t, ResourceStateNotRequested, h.State())
	assert.False(t, h.IsLoaded())

	_, err = GetResource[*resources.CollisionResource](f.rm, vpath)
	assert.ErrorIs(t, err, core.ErrResourceKindMismatch)

	again, err := GetResource[*resources.FlverResource](f.rm, vpath)
	require.NoError(t, err)
	assert.Equal(t, h.VirtualPath(), again.VirtualPath())
	assert.Equal(t, 1, f.rm.Count())
}

func TestPartialArchiveLoadsRequestedEntries(t *testing.T) {
	f := newFixture(t, false)
	chr := f.rm.Locator().GetChrModel("c1000")
	writeArchive(t, chr.AssetPath, map[string][]byte{
		"c1000.flver":   glbBlob(t),
		"c1000_1.flver": glbBlob(t),
		"c1000.dds":     ddsBlob(4, 4, 1, "DXT1", 0, 8),
	})

	h, err := GetResource[*resources.FlverResource](f.rm, chr.AssetVirtualPath)
	require.NoError(t, err)

	j := f.rm.CreateJob("Loading chrs")
	j.AddLoadArchiveTask(chr.AssetArchiveVirtualPath, true, resources.AssetKindFlver)
	j.StartAsync()
	waitJobs(t, j)
	require.NoError(t, f.r.Flush(4))

	assert.True(t, h.IsLoaded())
	assert.Equal(t, ResourceStateNotRequested, f.rm.State("chr/c1000/model/c1000_1"))
	assert.Equal(t, 0, f.decodeCount("c1000_1"))
	assert.Equal(t, 1, f.rm.Count())
}

func TestFullArchiveLoadsTextures(t *testing.T) {
	f := newFixture(t, true)
	tex := f.rm.Locator().GetMapTextures(testMap)
	writeArchive(t, tex.AssetPath, map[string][]byte{
		"m10_wall.dds":  ddsBlob(8, 8, 2, "DXT5", 0, 64+16),
		"m10_floor.png": pngBlob(t, 2, 2),
		"readme.txt":    []byte("skipped"),
	})

	j := f.rm.CreateJob("Loading " + testMap + " textures")
	j.AddLoadArchiveTask(tex.AssetArchiveVirtualPath, false, resources.AssetKindTexture)
	j.StartAsync()
	waitJobs(t, j)
	require.NoError(t, f.r.Flush(8))

	wall, err := GetResource[*resources.TextureResource](f.rm, tex.AssetArchiveVirtualPath+"/m10_wall")
	require.NoError(t, err)
	require.True(t, wall.IsLoaded())
	floor, err := GetResource[*resources.TextureResource](f.rm, tex.AssetArchiveVirtualPath+"/m10_floor")
	require.NoError(t, err)
	require.True(t, floor.IsLoaded())

	w, _ := wall.Get()
	assert.Nil(t, w.Data)
	handle := w.Handle.(*TextureHandle)
	assert.Equal(t, uint32(2), handle.Texture().Description().MipLevels)

	assert.Equal(t, 2, f.pool.Count())
	assert.False(t, f.pool.DescriptorTableDirty())
	require.NotNil(t, f.pool.ResourceSet())
	handle.mu.Lock()
	assert.Nil(t, handle.staging)
	handle.mu.Unlock()
}

func TestTextureWithoutPoolFails(t *testing.T) {
	f := newFixture(t, false)
	writeFile(t, filepath.Join(f.root, "tex", "loose.png"), pngBlob(t, 1, 1))

	j := f.rm.CreateJob("loose")
	j.AddLoadFileTask("tex/loose/loose.png")
	j.StartAsync()
	waitJobs(t, j)

	h, err := GetResource[*resources.TextureResource](f.rm, "tex/loose/loose.png")
	require.NoError(t, err)
	assert.Equal(t, ResourceStateFailed, h.State())
	assert.ErrorIs(t, h.Err(), core.ErrNoTexturePool)
}

func TestInvalidateReloads(t *testing.T) {
	f := newFixture(t, false)
	piece := f.rm.Locator().GetMapModel(testMap, "m1000B0A10")
	writeFile(t, piece.AssetPath, glbBlob(t))

	load := func() {
		j := f.rm.CreateJob("Loading geometry")
		j.AddLoadFileTask(piece.AssetVirtualPath)
		j.StartAsync()
		waitJobs(t, j)
		require.NoError(t, f.r.Flush(4))
	}
	load()
	h, err := GetResource[*resources.FlverResource](f.rm, piece.AssetVirtualPath)
	require.NoError(t, err)
	first, ok := h.Get()
	require.True(t, ok)

	assert.Equal(t, 1, f.rm.Invalidate("map/"+testMap+"/model"))
	assert.Equal(t, ResourceStateNotRequested, h.State())
	require.NoError(t, f.r.Flush(4))
	assert.False(t, first.Resident())

	load()
	assert.True(t, h.IsLoaded())
	assert.Equal(t, 2, f.decodeCount("m1000B0A10"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.Wait(ctx))
}

func TestTextureReloadUploadFailureIsNotLoaded(t *testing.T) {
	f := newFixture(t, true)
	writeFile(t, filepath.Join(f.root, "tex", "wall.dds"), ddsBlob(8, 8, 1, "DXT1", 0, 32))
	vpath := "tex/loose/wall.dds"

	load := func() {
		j := f.rm.CreateJob("Loading textures")
		j.AddLoadFileTask(vpath)
		j.StartAsync()
		waitJobs(t, j)
		require.NoError(t, f.r.Flush(8))
	}
	load()
	h, err := GetResource[*resources.TextureResource](f.rm, vpath)
	require.NoError(t, err)
	require.True(t, h.IsLoaded())
	first, _ := h.Get()
	slot := first.Handle.(*TextureHandle)
	require.True(t, slot.Resident())

	// the reload reuses the same slot, and its upload runs out of memory
	f.dev.TextureLimit = f.dev.TexturesCreated
	writeFile(t, filepath.Join(f.root, "tex", "wall.dds"), ddsBlob(16, 16, 1, "DXT1", 0, 128))
	assert.Equal(t, 1, f.rm.Invalidate(vpath))
	load()

	assert.Equal(t, ResourceStateFailed, h.State())
	assert.ErrorIs(t, h.Err(), core.ErrUploadFailed)
	assert.False(t, slot.Resident())
	assert.Nil(t, slot.Texture())

	// capacity back, the next reload succeeds in the same slot
	f.dev.TextureLimit = 0
	assert.Equal(t, 1, f.rm.Invalidate(vpath))
	load()
	require.True(t, h.IsLoaded())
	again, _ := h.Get()
	assert.Same(t, slot, again.Handle.(*TextureHandle))
	assert.Equal(t, uint32(16), slot.Texture().Description().Width)
}

func TestReloadQueuesInvalidatedEntries(t *testing.T) {
	f := newFixture(t, true)
	piece := f.rm.Locator().GetMapModel(testMap, "m1000B0A10")
	writeFile(t, piece.AssetPath, glbBlob(t))
	tex := f.rm.Locator().GetMapTextures(testMap)
	writeArchive(t, tex.AssetPath, map[string][]byte{
		"m10_wall.dds":  ddsBlob(8, 8, 1, "DXT1", 0, 32),
		"m10_floor.dds": ddsBlob(8, 8, 1, "DXT1", 0, 32),
	})

	wall, err := GetResource[*resources.TextureResource](f.rm, tex.AssetArchiveVirtualPath+"/m10_wall")
	require.NoError(t, err)
	j := f.rm.CreateJob("Loading " + testMap)
	j.AddLoadFileTask(piece.AssetVirtualPath)
	j.AddLoadArchiveTask(tex.AssetArchiveVirtualPath, true, resources.AssetKindTexture)
	j.StartAsync()
	waitJobs(t, j)
	require.NoError(t, f.r.Flush(8))
	require.True(t, wall.IsLoaded())
	assert.Equal(t, ResourceStateNotRequested, f.rm.State(tex.AssetArchiveVirtualPath+"/m10_floor"))

	assert.Nil(t, f.rm.Reload("map/"+testMap+"/model/unknown"))

	model := f.rm.Reload(piece.AssetVirtualPath)
	require.NotNil(t, model)
	assert.Equal(t, 1, model.TaskCount())
	textures := f.rm.Reload(tex.AssetArchiveVirtualPath)
	require.NotNil(t, textures)
	waitJobs(t, model, textures)
	require.NoError(t, f.r.Flush(8))

	h, err := GetResource[*resources.FlverResource](f.rm, piece.AssetVirtualPath)
	require.NoError(t, err)
	assert.True(t, h.IsLoaded())
	assert.Equal(t, 2, f.decodeCount("m1000B0A10"))
	assert.True(t, wall.IsLoaded())
	assert.Equal(t, 2, f.decodeCount("m10_wall"))
	// never requested, so the partial reload leaves it alone
	assert.Equal(t, 0, f.decodeCount("m10_floor"))
	assert.Equal(t, 1, f.pool.Count())
}
