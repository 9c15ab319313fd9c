package systems

import (
	"github.com/spaghettifunk/mapstudio/engine/assets"
	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/renderer"
)

type SystemManagerConfig struct {
	GameRoot    string
	ModRoot     string
	Workers     int
	QueueSize   int
	WatchAssets bool
	PoolName    string
	PoolSize    uint32
}

type SystemManager struct {
	locator         *assets.Locator
	assetManager    *assets.AssetManager
	texturePool     *TexturePool
	resourceManager *ResourceManager
}

func NewSystemManager(config SystemManagerConfig, r *renderer.Renderer) (*SystemManager, error) {
	locator := assets.NewLocator(config.GameRoot, config.ModRoot)

	am, err := assets.NewAssetManager(locator)
	if err != nil {
		return nil, err
	}
	if err := am.Initialize(config.WatchAssets); err != nil {
		return nil, err
	}

	tp, err := NewTexturePool(r, config.PoolName, config.PoolSize)
	if err != nil {
		return nil, err
	}
	rm, err := NewResourceManager(ResourceManagerConfig{
		Workers:     config.Workers,
		QueueSize:   config.QueueSize,
		Locator:     locator,
		TexturePool: tp,
	}, r)
	if err != nil {
		return nil, err
	}

	sm := &SystemManager{
		locator:         locator,
		assetManager:    am,
		texturePool:     tp,
		resourceManager: rm,
	}
	core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, sm, sm.onAssetChanged)

	core.LogInfo("indexed %d assets under '%s'", am.Count(), config.GameRoot)
	return sm, nil
}

func (sm *SystemManager) onAssetChanged(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	if data.Subject == "" {
		return false
	}
	if job := sm.resourceManager.Reload(data.Subject); job != nil {
		core.LogInfo("%s changed on disk, reloading", data.Subject)
	}
	return false
}

func (sm *SystemManager) Locator() *assets.Locator {
	return sm.locator
}

func (sm *SystemManager) AssetManager() *assets.AssetManager {
	return sm.assetManager
}

func (sm *SystemManager) TexturePool() *TexturePool {
	return sm.texturePool
}

func (sm *SystemManager) ResourceManager() *ResourceManager {
	return sm.resourceManager
}

func (sm *SystemManager) Shutdown() error {
	core.EventUnregister(core.EVENT_CODE_ASSET_CHANGED, sm)
	if err := sm.assetManager.Close(); err != nil {
		return err
	}
	if err := sm.resourceManager.Shutdown(); err != nil {
		return err
	}
	sm.texturePool.Dispose()
	return nil
}
