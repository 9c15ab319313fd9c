package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/resources"
)

type AssetInfo struct {
	Path         string
	VirtualPath  string
	Kind         resources.AssetKind
	LastModified time.Time
}

// AssetManager indexes the files under the game and mod roots and, when
// watching, fires EVENT_CODE_ASSET_CHANGED for every file that changes on
// disk and maps to a virtual path.
type AssetManager struct {
	locator *Locator
	assets  map[string]AssetInfo

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager(locator *Locator) (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		locator:  locator,
		assets:   make(map[string]AssetInfo),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize indexes the roots. With watch set, changes are reported until
// Close.
func (am *AssetManager) Initialize(watch bool) error {
	for _, root := range []string{am.locator.GameRoot, am.locator.ModRoot} {
		if root == "" {
			continue
		}
		if _, err := os.Stat(root); err != nil {
			if root == am.locator.ModRoot {
				continue
			}
			return err
		}
		if err := am.watchRecursive(root, watch); err != nil {
			return err
		}
	}
	if watch {
		go am.start()
	} else {
		close(am.stopped)
	}
	return nil
}

func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	a, ok := am.assets[path]
	return a, ok
}

func (am *AssetManager) LookupVirtual(vpath string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	for _, a := range am.assets {
		if a.VirtualPath == vpath {
			return a, true
		}
	}
	return AssetInfo{}, false
}

func (am *AssetManager) Count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return errors.New("asset manager already closed")
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	<-am.stopped
	return am.fsnotify.Close()
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, true); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if info, ok := am.handleFileEvent(e.Name); ok {
					am.notify(info)
				}
			}
			// a removed path may have been a directory, fsnotify drops it on its own
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if info, ok := am.removeAsset(e.Name); ok {
					am.notify(info)
				}
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) notify(info AssetInfo) {
	core.LogDebug("asset changed: %s (%s)", info.VirtualPath, info.Path)
	core.EventFire(core.EVENT_CODE_ASSET_CHANGED, am, core.EventContext{
		Subject: info.VirtualPath,
		Detail:  info.Path,
	})
}

// watchRecursive indexes every file under path and, when watch is set, adds
// each directory to the watch list.
func (am *AssetManager) watchRecursive(path string, watch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if watch {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

func (am *AssetManager) handleFileEvent(path string) (AssetInfo, bool) {
	vpath, ok := am.locator.RealToVirtualPath(path)
	if !ok {
		return AssetInfo{}, false
	}
	info := AssetInfo{
		Path:         path,
		VirtualPath:  vpath,
		Kind:         KindForFile(path),
		LastModified: time.Now(),
	}
	if s, err := os.Stat(path); err == nil {
		info.LastModified = s.ModTime()
	}

	am.mutex.Lock()
	am.assets[path] = info
	am.mutex.Unlock()
	return info, true
}

func (am *AssetManager) removeAsset(path string) (AssetInfo, bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	info, ok := am.assets[path]
	delete(am.assets, path)
	return info, ok
}
