package assets_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mapstudio/engine/assets"
	"github.com/spaghettifunk/mapstudio/engine/core"
)

func TestAssetManagerIndex(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "map", "m10_00_00_00", "m1000B0A10.flver"))
	touch(t, filepath.Join(root, "chr", "c1000.chrbnd"))
	touch(t, filepath.Join(root, "readme.txt"))

	am, err := assets.NewAssetManager(assets.NewLocator(root, ""))
	require.NoError(t, err)
	require.NoError(t, am.Initialize(false))
	defer am.Close()

	assert.Equal(t, 2, am.Count())
	info, ok := am.LookupVirtual("chr/c1000/model")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "chr", "c1000.chrbnd"), info.Path)
}

type changeRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *changeRecorder) onChange(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, data.Subject)
	return false
}

func (r *changeRecorder) has(vpath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.paths {
		if p == vpath {
			return true
		}
	}
	return false
}

func TestAssetManagerWatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "map", "m10_00_00_00"), 0o755))

	core.EventInitialize()
	rec := &changeRecorder{}
	require.True(t, core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, rec, rec.onChange))
	defer core.EventUnregister(core.EVENT_CODE_ASSET_CHANGED, rec)

	am, err := assets.NewAssetManager(assets.NewLocator(root, ""))
	require.NoError(t, err)
	require.NoError(t, am.Initialize(true))
	defer am.Close()

	touch(t, filepath.Join(root, "map", "m10_00_00_00", "m10_00_00_00.tpfbnd"))

	assert.Eventually(t, func() bool {
		return rec.has("map/m10_00_00_00/tex")
	}, 5*time.Second, 20*time.Millisecond)
}
