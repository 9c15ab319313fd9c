package systems

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/spaghettifunk/mapstudio/engine/assets"
	"github.com/spaghettifunk/mapstudio/engine/assets/loaders"
	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/resources"
)

// ResourceState is the load state of one virtual path.
type ResourceState int32

const (
	ResourceStateNotRequested ResourceState = iota
	ResourceStateLoading
	ResourceStateLoaded
	ResourceStateFailed
)

func (s ResourceState) String() string {
	switch s {
	case ResourceStateLoading:
		return "loading"
	case ResourceStateLoaded:
		return "loaded"
	case ResourceStateFailed:
		return "failed"
	}
	return "not requested"
}

type resourceEntry struct {
	vpath string
	kind  resources.AssetKind
	state atomic.Int32

	mu   sync.Mutex
	res  resources.Resource
	err  error
	done chan struct{}
	// kept across invalidation so a reload refills the same pool slot
	texture *TextureHandle
}

func newResourceEntry(vpath string, kind resources.AssetKind) *resourceEntry {
	return &resourceEntry{vpath: vpath, kind: kind, done: make(chan struct{})}
}

func (e *resourceEntry) State() ResourceState {
	return ResourceState(e.state.Load())
}

// ResourceHandle is a typed view on a cache entry. It may be obtained before
// the resource is loaded; callers re-check IsLoaded instead of blocking.
type ResourceHandle[T resources.Resource] struct {
	entry *resourceEntry
}

func (h *ResourceHandle[T]) VirtualPath() string {
	return h.entry.vpath
}

func (h *ResourceHandle[T]) State() ResourceState {
	return h.entry.State()
}

func (h *ResourceHandle[T]) IsLoaded() bool {
	return h.entry.State() == ResourceStateLoaded
}

// Get returns the resource once it is loaded.
func (h *ResourceHandle[T]) Get() (T, bool) {
	var zero T
	if !h.IsLoaded() {
		return zero, false
	}
	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()
	res, ok := h.entry.res.(T)
	return res, ok
}

// Err is the failure cause of a Failed resource.
func (h *ResourceHandle[T]) Err() error {
	h.entry.mu.Lock()
	defer h.entry.mu.Unlock()
	return h.entry.err
}

// Wait blocks until the resource is loaded or failed. Tools and tests use
// it; the editor polls IsLoaded instead.
func (h *ResourceHandle[T]) Wait(ctx context.Context) error {
	h.entry.mu.Lock()
	done := h.entry.done
	h.entry.mu.Unlock()

	select {
	case <-done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type ResourceManagerConfig struct {
	/** @brief Background decode goroutines. */
	Workers int
	/** @brief Buffered tasks before submitters block. */
	QueueSize int
	Locator   *assets.Locator
	/** @brief Decoders per asset kind. Defaults to loaders.NewRegistry(). */
	Loaders *loaders.Registry
	/** @brief Pool textures are uploaded to. Texture loads fail without one. */
	TexturePool *TexturePool
}

// ResourceManager owns the cache of decoded resources keyed by virtual
// path and schedules their decode and upload.
type ResourceManager struct {
	config    ResourceManagerConfig
	renderer  *renderer.Renderer
	jobSystem *JobSystem
	loaders   *loaders.Registry
	pool      *TexturePool

	mu    sync.Mutex
	cache map[string]*resourceEntry
}

func NewResourceManager(config ResourceManagerConfig, r *renderer.Renderer) (*ResourceManager, error) {
	if r == nil {
		err := fmt.Errorf("func NewResourceManager - renderer is required")
		core.LogError(err.Error())
		return nil, err
	}
	if config.Locator == nil {
		err := fmt.Errorf("func NewResourceManager - config.Locator is required")
		core.LogError(err.Error())
		return nil, err
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	js, err := NewJobSystem(config.Workers, config.QueueSize)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	reg := config.Loaders
	if reg == nil {
		reg = loaders.NewRegistry()
	}

	core.LogInfo("Resource manager initialized with %d workers, game root '%s'.", config.Workers, config.Locator.GameRoot)

	return &ResourceManager{
		config:    config,
		renderer:  r,
		jobSystem: js,
		loaders:   reg,
		pool:      config.TexturePool,
		cache:     make(map[string]*resourceEntry),
	}, nil
}

func (rm *ResourceManager) Locator() *assets.Locator {
	return rm.config.Locator
}

func (rm *ResourceManager) TexturePool() *TexturePool {
	return rm.pool
}

func (rm *ResourceManager) Shutdown() error {
	return rm.jobSystem.Shutdown()
}

/**
 * @brief Returns the handle for vpath, creating a NotRequested entry when the
 * path was never seen. T must be a pointer resource type.
 * @return core.ErrResourceKindMismatch if vpath is cached as another kind.
 */
func GetResource[T resources.Resource](rm *ResourceManager, vpath string) (*ResourceHandle[T], error) {
	var zero T
	kind := zero.Kind()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	e, ok := rm.cache[vpath]
	if !ok {
		e = newResourceEntry(vpath, kind)
		rm.cache[vpath] = e
		core.MetricsResourceRequested()
	} else if e.kind == resources.AssetKindUnknown {
		e.kind = kind
	} else if e.kind != kind {
		return nil, errors.Wrapf(core.ErrResourceKindMismatch, "%s is a %s, requested as %s", vpath, e.kind, kind)
	}
	return &ResourceHandle[T]{entry: e}, nil
}

// State reports the load state of vpath.
func (rm *ResourceManager) State(vpath string) ResourceState {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if e, ok := rm.cache[vpath]; ok {
		return e.State()
	}
	return ResourceStateNotRequested
}

// Count is the number of cached entries in any state.
func (rm *ResourceManager) Count() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.cache)
}

// Invalidate returns vpath, and every entry below it when vpath names an
// archive, to NotRequested so the next job reloads it. GPU objects of the
// previous resource are released on the render thread. Entries still
// loading are left alone.
func (rm *ResourceManager) Invalidate(vpath string) int {
	return len(rm.invalidate(vpath))
}

/**
 * @brief Invalidates vpath and starts a job decoding every reset entry again.
 * Texture entries refill the pool slot they already own.
 * @return The started job, nil when nothing under vpath was loaded or failed.
 */
func (rm *ResourceManager) Reload(vpath string) *Job {
	stale := rm.invalidate(vpath)
	if len(stale) == 0 {
		return nil
	}
	job := rm.CreateJob("Reloading " + vpath)
	archived := false
	for _, e := range stale {
		if e.vpath == vpath {
			job.AddLoadFileTask(vpath)
		} else {
			archived = true
		}
	}
	// reset entries are the requested ones, a partial load picks up only those
	if archived {
		job.AddLoadArchiveTask(vpath, true, resources.AssetKindUnknown)
	}
	job.StartAsync()
	return job
}

func (rm *ResourceManager) invalidate(vpath string) []*resourceEntry {
	rm.mu.Lock()
	var stale []resources.Resource
	var reset []*resourceEntry
	for key, e := range rm.cache {
		if key != vpath && !strings.HasPrefix(key, vpath+"/") {
			continue
		}
		s := e.State()
		if s != ResourceStateLoaded && s != ResourceStateFailed {
			continue
		}
		e.mu.Lock()
		if e.res != nil {
			stale = append(stale, e.res)
		}
		e.res = nil
		e.err = nil
		e.done = make(chan struct{})
		e.state.Store(int32(ResourceStateNotRequested))
		e.mu.Unlock()
		reset = append(reset, e)
	}
	rm.mu.Unlock()

	for _, res := range stale {
		if up, ok := res.(resources.Uploadable); ok {
			rm.renderer.AddBackgroundUploadTask(func(renderer.Device, renderer.CommandList) error {
				up.Release()
				return nil
			})
		}
	}
	if len(reset) > 0 {
		core.LogDebug("invalidated %d resources under %s", len(reset), vpath)
	}
	return reset
}

// claim inserts vpath if absent and moves it to Loading. It returns false when
// another task already owns the load.
func (rm *ResourceManager) claim(vpath string, kind resources.AssetKind) (*resourceEntry, bool, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	e, ok := rm.cache[vpath]
	if !ok {
		e = newResourceEntry(vpath, kind)
		rm.cache[vpath] = e
		core.MetricsResourceRequested()
	}
	if e.kind == resources.AssetKindUnknown {
		e.kind = kind
	} else if kind != resources.AssetKindUnknown && e.kind != kind {
		return e, false, errors.Wrapf(core.ErrResourceKindMismatch, "%s is a %s, loaded as %s", vpath, e.kind, kind)
	}
	if !e.state.CompareAndSwap(int32(ResourceStateNotRequested), int32(ResourceStateLoading)) {
		return e, false, nil
	}
	return e, true, nil
}

func (rm *ResourceManager) requested(vpath string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	e, ok := rm.cache[vpath]
	return ok && e.State() == ResourceStateNotRequested
}

// decode turns bytes into a resource and queues its upload. Textures go
// through the pool; everything else uploads itself. A trailing task on the
// same queue settles the entry.
func (rm *ResourceManager) decode(e *resourceEntry, name string, data []byte) (textures bool, err error) {
	res, err := rm.loaders.Load(e.kind, name, data)
	if err != nil {
		rm.fail(e, err)
		return false, err
	}

	switch r := res.(type) {
	case *resources.TextureResource:
		h, err := rm.textureHandle(e)
		if err != nil {
			rm.fail(e, err)
			return false, err
		}
		r.Handle = h
		if r.Data != nil {
			err = h.FillFromCompressedImage(r.Data)
		} else {
			err = h.FillWithImage(r.Image)
		}
		r.Data, r.Image = nil, nil
		if err != nil {
			rm.fail(e, err)
			return false, err
		}
		textures = true
	case resources.Uploadable:
		rm.renderer.AddBackgroundUploadTask(func(d renderer.Device, cl renderer.CommandList) error {
			return r.Upload(d, cl)
		})
	}

	rm.renderer.AddBackgroundUploadTask(func(renderer.Device, renderer.CommandList) error {
		rm.settle(e, res)
		return nil
	})
	return textures, nil
}

func (rm *ResourceManager) textureHandle(e *resourceEntry) (*TextureHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.texture != nil {
		return e.texture, nil
	}
	if rm.pool == nil {
		return nil, errors.Wrapf(core.ErrNoTexturePool, "texture %s", e.vpath)
	}
	h, err := rm.pool.AllocateTextureDescriptor()
	if err != nil {
		return nil, err
	}
	e.texture = h
	return h, nil
}

// settle runs on the render thread after the resource's uploads.
func (rm *ResourceManager) settle(e *resourceEntry, res resources.Resource) {
	if !res.Resident() {
		rm.fail(e, errors.Wrapf(core.ErrUploadFailed, "%s is not resident after upload", e.vpath))
		return
	}
	e.mu.Lock()
	e.res = res
	e.err = nil
	e.state.Store(int32(ResourceStateLoaded))
	close(e.done)
	e.mu.Unlock()

	core.MetricsResourceLoaded()
	core.EventFire(core.EVENT_CODE_RESOURCE_LOADED, rm, core.EventContext{
		Subject: e.vpath,
		Detail:  e.kind.String(),
	})
}

func (rm *ResourceManager) fail(e *resourceEntry, err error) {
	e.mu.Lock()
	if e.State() == ResourceStateFailed {
		e.mu.Unlock()
		return
	}
	e.err = err
	e.state.Store(int32(ResourceStateFailed))
	close(e.done)
	e.mu.Unlock()

	core.LogError("failed to load %s: %s", e.vpath, err)
	core.MetricsResourceFailed()
	core.EventFire(core.EVENT_CODE_RESOURCE_FAILED, rm, core.EventContext{
		Subject: e.vpath,
		Detail:  e.kind.String(),
		Err:     err,
	})
}

func (rm *ResourceManager) loadFile(vpath string) (bool, error) {
	path, archived, err := rm.config.Locator.VirtualToRealPath(vpath)
	if err == nil && archived {
		err = errors.Wrapf(core.ErrUnknownAsset, "%s names an archive, not a file", vpath)
	}
	kind := assets.KindForFile(path)
	e, claimed, cerr := rm.claim(vpath, kind)
	if cerr != nil {
		return false, cerr
	}
	if !claimed {
		return false, nil
	}
	if err != nil {
		rm.fail(e, err)
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(core.ErrDecodeFailure, "read %s: %s", path, err)
		rm.fail(e, err)
		return false, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return rm.decode(e, name, data)
}

func (rm *ResourceManager) loadArchive(archiveVPath string, isPartial bool, kindHint resources.AssetKind) (bool, error) {
	path, archived, err := rm.config.Locator.VirtualToRealPath(archiveVPath)
	if err == nil && !archived {
		err = errors.Wrapf(core.ErrUnknownAsset, "%s is not an archive", archiveVPath)
	}
	var arc *assets.Archive
	if err == nil {
		arc, err = assets.OpenArchive(path)
	}
	if err != nil {
		rm.failPending(archiveVPath, err)
		return false, err
	}
	defer arc.Close()

	textures := false
	for _, entry := range arc.Entries() {
		if kindHint != resources.AssetKindUnknown && entry.Kind != kindHint {
			continue
		}
		vpath := entry.VirtualPath(archiveVPath)
		if isPartial && !rm.requested(vpath) {
			continue
		}
		e, claimed, err := rm.claim(vpath, entry.Kind)
		if err != nil {
			core.LogWarn("skipping %s: %s", vpath, err)
			continue
		}
		if !claimed {
			continue
		}
		data, err := entry.Read()
		if err != nil {
			rm.fail(e, err)
			continue
		}
		// per entry failures are already recorded on the entry
		if t, _ := rm.decode(e, entry.Name, data); t {
			textures = true
		}
	}
	return textures, nil
}

// failPending fails every requested entry below archiveVPath after the
// archive itself could not be read.
func (rm *ResourceManager) failPending(archiveVPath string, err error) {
	rm.mu.Lock()
	var pending []*resourceEntry
	for key, e := range rm.cache {
		if strings.HasPrefix(key, archiveVPath+"/") &&
			e.state.CompareAndSwap(int32(ResourceStateNotRequested), int32(ResourceStateLoading)) {
			pending = append(pending, e)
		}
	}
	rm.mu.Unlock()
	for _, e := range pending {
		rm.fail(e, err)
	}
}

/** @brief Returns an empty job. Nothing runs until StartAsync. */
func (rm *ResourceManager) CreateJob(name string) *Job {
	return &Job{
		name: name,
		rm:   rm,
		done: make(chan struct{}),
	}
}

type jobTask struct {
	name string
	run  func() (textures bool, err error)
}

// Job batches load tasks. It owns no resources; completion only means every
// task has decoded and queued its uploads.
type Job struct {
	name string
	rm   *ResourceManager

	mu      sync.Mutex
	tasks   []jobTask
	started bool

	pending  atomic.Int32
	failed   atomic.Int32
	textures atomic.Bool
	done     chan struct{}
}

func (j *Job) Name() string {
	return j.name
}

func (j *Job) TaskCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.tasks)
}

// Failed is the number of tasks that returned an error.
func (j *Job) Failed() int {
	return int(j.failed.Load())
}

func (j *Job) add(t jobTask) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		core.LogWarn("job %q already started, ignoring task %s", j.name, t.name)
		return
	}
	j.tasks = append(j.tasks, t)
}

/** @brief Loads the loose file behind vpath. */
func (j *Job) AddLoadFileTask(vpath string) {
	j.add(jobTask{
		name: vpath,
		run:  func() (bool, error) { return j.rm.loadFile(vpath) },
	})
}

/**
 * @brief Loads the entries of the archive at archiveVPath whose kind matches
 * kindHint (every kind when unknown). With isPartial only entries already
 * requested through GetResource are decoded.
 */
func (j *Job) AddLoadArchiveTask(archiveVPath string, isPartial bool, kindHint resources.AssetKind) {
	j.add(jobTask{
		name: archiveVPath,
		run:  func() (bool, error) { return j.rm.loadArchive(archiveVPath, isPartial, kindHint) },
	})
}

/** @brief Hands every task to the worker pool and returns immediately. */
func (j *Job) StartAsync() {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		core.LogWarn("job %q already started", j.name)
		return
	}
	j.started = true
	tasks := j.tasks
	j.mu.Unlock()

	if len(tasks) == 0 {
		j.complete(0)
		return
	}

	j.pending.Store(int32(len(tasks)))
	for _, t := range tasks {
		t := t
		j.rm.jobSystem.AddWorkNonBlocking(JobTask{
			Name: j.name + ": " + t.name,
			Run: func() error {
				textures, err := t.run()
				if textures {
					j.textures.Store(true)
				}
				return err
			},
			OnFailure: func(error) {
				j.failed.Add(1)
			},
			OnCompletionCallback: func() {
				if j.pending.Add(-1) == 0 {
					j.complete(len(tasks))
				}
			},
		})
	}
}

func (j *Job) complete(tasks int) {
	if j.textures.Load() && j.rm.pool != nil {
		pool := j.rm.pool
		pool.RegenerateDescriptorTables()
		j.rm.renderer.AddBackgroundUploadTask(func(renderer.Device, renderer.CommandList) error {
			pool.CleanTexturePool()
			return nil
		})
	}
	close(j.done)

	core.LogDebug("job %q completed %d tasks, %d failed", j.name, tasks, j.failed.Load())
	core.MetricsJobCompleted()
	core.EventFire(core.EVENT_CODE_JOB_COMPLETED, j, core.EventContext{
		Subject: j.name,
		Count:   tasks,
	})
}

/** @brief Closed once every task has run. */
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
