package engine

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/spaghettifunk/mapstudio/engine/config"
	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/platform"
	"github.com/spaghettifunk/mapstudio/engine/renderer"
	"github.com/spaghettifunk/mapstudio/engine/renderer/headless"
	"github.com/spaghettifunk/mapstudio/engine/renderer/vulkan"
	"github.com/spaghettifunk/mapstudio/engine/scene"
	"github.com/spaghettifunk/mapstudio/engine/status"
	"github.com/spaghettifunk/mapstudio/engine/systems"
	"github.com/spaghettifunk/mapstudio/engine/universe"
)

type Stage uint8

const (
	// Studio is in an uninitialized state
	StudioStageUninitialized Stage = iota
	// Studio is currently initializing
	StudioStageInitializing
	// Studio initialization is complete
	StudioStageInitialized
	// Studio is currently running
	StudioStageRunning
	// Studio is in the process of shutting down
	StudioStageShuttingDown
)

const targetFrameSeconds float64 = 1.0 / 60.0

type Studio struct {
	currentStage Stage
	config       *config.Config
	isRunning    atomic.Bool

	platform      *platform.Platform
	renderer      *renderer.Renderer
	systemManager *systems.SystemManager
	universe      *universe.Universe
	status        *status.Server

	// Categories collected for drawing each frame.
	Filter    scene.RenderFilter
	lastDrawn int
}

func New(cfg *config.Config) (*Studio, error) {
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &Studio{
		currentStage: StudioStageUninitialized,
		config:       cfg,
		Filter:       scene.RenderFilterAll &^ (scene.RenderFilterCollision | scene.RenderFilterNavmesh),
	}, nil
}

/**
 * @brief Brings up logging, events, the device, the systems and the universe
 * and loads the configured startup maps.
 */
func (s *Studio) Initialize() error {
	s.currentStage = StudioStageInitializing
	cfg := s.config

	if err := core.SetLogLevel(cfg.Studio.LogLevel); err != nil {
		return err
	}
	core.EventInitialize()
	if err := core.MetricsInitialize(); err != nil {
		return err
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, s, s.onQuit)

	device, err := s.createDevice()
	if err != nil {
		return err
	}
	s.renderer = renderer.New(device)
	core.LogInfo("using device '%s'", device.Name())

	sm, err := systems.NewSystemManager(systems.SystemManagerConfig{
		GameRoot:    cfg.Studio.GameRoot,
		ModRoot:     cfg.Studio.ModRoot,
		Workers:     cfg.Loader.Workers,
		QueueSize:   cfg.Loader.QueueSize,
		WatchAssets: cfg.Loader.WatchAssets,
		PoolName:    cfg.Textures.PoolName,
		PoolSize:    cfg.Textures.PoolSize,
	}, s.renderer)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	s.systemManager = sm
	s.universe = universe.New(sm.ResourceManager(), scene.NewRenderScene())

	if cfg.Status.Enabled {
		s.status = status.New(cfg.Status.Addr, s.universe)
		if err := s.status.Start(); err != nil {
			return err
		}
	}

	for _, id := range cfg.Studio.Maps {
		_, jobs, err := s.universe.LoadMap(id)
		if err != nil {
			core.LogError("failed to load map %s: %s", id, err)
			continue
		}
		core.LogInfo("map %s loading with %d jobs", id, len(jobs))
	}

	s.currentStage = StudioStageInitialized
	return nil
}

func (s *Studio) createDevice() (renderer.Device, error) {
	cfg := s.config
	if cfg.Studio.Headless {
		return headless.New(), nil
	}

	p, err := platform.New()
	if err != nil {
		return nil, err
	}
	if err := p.Startup(cfg.Studio.Name, cfg.Window.X, cfg.Window.Y, cfg.Window.Width, cfg.Window.Height); err != nil {
		return nil, err
	}
	s.platform = p

	backend := vulkan.New(p, cfg.Studio.LogLevel == "debug")
	if err := backend.Initialize(cfg.Studio.Name); err != nil {
		core.LogError("failed to initialize vulkan backend: %s", err)
		return nil, err
	}
	return backend, nil
}

func (s *Studio) Universe() *universe.Universe {
	return s.universe
}

func (s *Studio) Renderer() *renderer.Renderer {
	return s.renderer
}

func (s *Studio) onQuit(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	core.LogInfo("quit requested")
	s.isRunning.Store(false)
	return true
}

// Stop ends the frame loop after the current frame.
func (s *Studio) Stop() {
	s.isRunning.Store(false)
}

/**
 * @brief Runs frames until the context is cancelled or a quit event fires.
 * Each frame drains the upload queue, rebinds the texture pool and collects
 * the drawable meshes.
 */
func (s *Studio) Run(ctx context.Context) error {
	if s.currentStage != StudioStageInitialized {
		return fmt.Errorf("studio is not initialized")
	}
	s.currentStage = StudioStageRunning
	s.isRunning.Store(true)

	clock := core.NewClock()
	pool := s.systemManager.TexturePool()

	for s.isRunning.Load() {
		select {
		case <-ctx.Done():
			s.isRunning.Store(false)
			continue
		default:
		}

		clock.Start()
		if s.platform != nil {
			s.platform.PumpMessages()
		}

		if pool.DescriptorTableDirty() {
			pool.RegenerateDescriptorTables()
		}
		if _, err := s.renderer.Frame(s.draw); err != nil {
			core.LogError("frame %d failed: %s", s.renderer.FrameNumber(), err)
		}
		s.universe.Scene().Prune()

		clock.Update()
		if remaining := targetFrameSeconds - clock.Elapsed(); remaining > 0 {
			time.Sleep(time.Duration(remaining * float64(time.Second)))
		}
	}
	return nil
}

func (s *Studio) draw(d renderer.Device, cl renderer.CommandList) {
	if err := s.systemManager.TexturePool().BindTexturePool(cl, 0); err != nil {
		core.LogDebug(err.Error())
	}
	s.lastDrawn = len(s.universe.Scene().Collect(s.Filter))
}

type mapSummary struct {
	ID      string
	Offset  [3]float32
	Objects map[string]int
}

/** @brief Writes a dump of the loaded maps and loader counters to w. */
func (s *Studio) DumpState(w io.Writer) {
	summaries := []mapSummary{}
	for _, m := range s.universe.LoadedMaps() {
		sum := mapSummary{ID: m.ID, Offset: [3]float32(m.Offset), Objects: map[string]int{}}
		for _, o := range m.Objects() {
			sum.Objects[o.Type.String()]++
		}
		summaries = append(summaries, sum)
	}
	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
	cfg.Fdump(w, summaries, core.MetricsGet(), s.lastDrawn)
}

func (s *Studio) Shutdown() error {
	if s.currentStage == StudioStageShuttingDown {
		return nil
	}
	s.currentStage = StudioStageShuttingDown
	s.isRunning.Store(false)

	if s.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.status.Shutdown(ctx); err != nil {
			core.LogWarn("status server shutdown: %s", err)
		}
	}
	if s.universe != nil {
		s.universe.UnloadAllMaps()
	}
	if s.systemManager != nil {
		if err := s.systemManager.Shutdown(); err != nil {
			core.LogError(err.Error())
		}
	}
	if s.renderer != nil {
		// Runs the pool release queued by the system shutdown.
		if err := s.renderer.Flush(4); err != nil {
			core.LogWarn("final flush: %s", err)
		}
		if err := s.renderer.Shutdown(); err != nil {
			core.LogError(err.Error())
		}
	}
	if s.platform != nil {
		if err := s.platform.Shutdown(); err != nil {
			core.LogError(err.Error())
		}
	}
	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, s)
	return core.EventShutdown()
}
