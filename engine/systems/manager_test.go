package systems

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mapstudio/engine/assets"
	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/resources"
)

func TestWatchedEditReloadsResource(t *testing.T) {
	core.EventInitialize()
	root := t.TempDir()
	r, _ := newTestRenderer()
	piece := assets.NewLocator(root, "").GetMapModel(testMap, "m1000B0A10")
	writeFile(t, piece.AssetPath, glbBlob(t))

	sm, err := NewSystemManager(SystemManagerConfig{
		GameRoot:    root,
		Workers:     2,
		QueueSize:   16,
		WatchAssets: true,
		PoolName:    "textures",
		PoolSize:    4,
	}, r)
	require.NoError(t, err)
	defer sm.Shutdown()

	rm := sm.ResourceManager()

	j := rm.CreateJob("Loading geometry")
	j.AddLoadFileTask(piece.AssetVirtualPath)
	j.StartAsync()
	waitJobs(t, j)
	require.NoError(t, r.Flush(4))

	h, err := GetResource[*resources.FlverResource](rm, piece.AssetVirtualPath)
	require.NoError(t, err)
	first, ok := h.Get()
	require.True(t, ok)

	writeFile(t, piece.AssetPath, glbBlob(t))

	reloaded := false
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		_, err := r.Frame(nil)
		require.NoError(t, err)
		if res, ok := h.Get(); ok && res != first {
			reloaded = res.Resident()
			break
		}
	}
	assert.True(t, reloaded, "edited model did not come back, state %s", h.State())
	assert.False(t, first.Resident())
}
