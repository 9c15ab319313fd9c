package universe

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/mapstudio/engine/assets"
	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/resources"
	"github.com/spaghettifunk/mapstudio/engine/scene"
	"github.com/spaghettifunk/mapstudio/engine/systems"
)

// Universe is the set of loaded maps. It turns map documents into scene
// objects and resource requests, and writes edited maps back.
type Universe struct {
	locator  *assets.Locator
	rm       *systems.ResourceManager
	scene    *scene.RenderScene
	registry *scene.Registry

	// maps is read by status handlers off the editor goroutine
	mapsMu sync.RWMutex
	maps   []*scene.Map
}

func New(rm *systems.ResourceManager, rs *scene.RenderScene) *Universe {
	return &Universe{
		locator:  rm.Locator(),
		rm:       rm,
		scene:    rs,
		registry: scene.NewRegistry(),
	}
}

func (u *Universe) Registry() *scene.Registry {
	return u.registry
}

func (u *Universe) Scene() *scene.RenderScene {
	return u.scene
}

func (u *Universe) GetLoadedMap(mapID string) (*scene.Map, bool) {
	u.mapsMu.RLock()
	defer u.mapsMu.RUnlock()
	for _, m := range u.maps {
		if m.ID == mapID {
			return m, true
		}
	}
	return nil, false
}

func (u *Universe) LoadedMaps() []*scene.Map {
	u.mapsMu.RLock()
	defer u.mapsMu.RUnlock()
	return append([]*scene.Map(nil), u.maps...)
}

// modelAsset is a placed model name resolved once to its category.
type modelAsset struct {
	category assets.ModelCategory
	desc     resources.AssetDescription
	filter   scene.RenderFilter
}

var categoryFilters = map[assets.ModelCategory]scene.RenderFilter{
	assets.ModelCategoryMapPiece:  scene.RenderFilterMapPiece,
	assets.ModelCategoryCharacter: scene.RenderFilterCharacter,
	assets.ModelCategoryObject:    scene.RenderFilterObject,
	assets.ModelCategoryCollision: scene.RenderFilterCollision,
	assets.ModelCategoryNavmesh:   scene.RenderFilterNavmesh,
}

func (u *Universe) resolveModel(mapID, modelName string) (modelAsset, bool) {
	c := assets.ClassifyModel(modelName)
	a := modelAsset{category: c, filter: categoryFilters[c]}
	switch c {
	case assets.ModelCategoryMapPiece:
		a.desc = u.locator.GetMapModel(mapID, assets.MapModelNameToAssetName(mapID, modelName))
	case assets.ModelCategoryCharacter:
		a.desc = u.locator.GetChrModel(modelName)
	case assets.ModelCategoryObject:
		a.desc = u.locator.GetObjModel(modelName)
	case assets.ModelCategoryCollision:
		a.desc = u.locator.GetMapCollisionModel(mapID, assets.MapModelNameToAssetName(mapID, modelName))
	case assets.ModelCategoryNavmesh:
		a.desc = u.locator.GetMapNVMModel(mapID, assets.MapModelNameToAssetName(mapID, modelName))
	default:
		return a, false
	}
	return a, true
}

// attachMesh creates the render mesh of obj for a resolved model. The mesh
// draws once the resource loads.
func (u *Universe) attachMesh(m *scene.Map, obj *scene.MapObject, a modelAsset) (*scene.RenderMesh, bool, error) {
	var src scene.MeshSource
	loaded := false
	switch a.category.AssetKind() {
	case resources.AssetKindCollision:
		h, err := systems.GetResource[*resources.CollisionResource](u.rm, a.desc.AssetVirtualPath)
		if err != nil {
			return nil, false, err
		}
		src, loaded = h, h.IsLoaded()
	case resources.AssetKindNavmesh:
		h, err := systems.GetResource[*resources.NavmeshResource](u.rm, a.desc.AssetVirtualPath)
		if err != nil {
			return nil, false, err
		}
		src, loaded = h, h.IsLoaded()
	default:
		h, err := systems.GetResource[*resources.FlverResource](u.rm, a.desc.AssetVirtualPath)
		if err != nil {
			return nil, false, err
		}
		src, loaded = h, h.IsLoaded()
	}

	mesh := scene.NewRenderMesh(src, a.filter)
	mesh.WorldMatrix = obj.WorldMatrix()
	mesh.Selectable = u.registry.Ref(obj)
	if obj.RenderMesh != nil {
		u.scene.Remove(obj.RenderMesh)
	}
	obj.RenderMesh = mesh
	u.scene.Add(mesh)
	return mesh, loaded, nil
}

// addLoadTask queues desc on job. Collision and navmesh archives hold a
// whole map, so only the requested entries are read from them.
func addLoadTask(job *systems.Job, desc resources.AssetDescription, kind resources.AssetKind) {
	if desc.IsArchived() {
		partial := kind == resources.AssetKindCollision || kind == resources.AssetKindNavmesh
		job.AddLoadArchiveTask(desc.AssetArchiveVirtualPath, partial, kind)
	} else if desc.AssetVirtualPath != "" {
		job.AddLoadFileTask(desc.AssetVirtualPath)
	}
}

/**
 * @brief Creates the render mesh for modelName on obj and, when the resource
 * is not loaded yet, starts a job loading it.
 */
func (u *Universe) GetModelDrawable(m *scene.Map, obj *scene.MapObject, modelName string) (*scene.RenderMesh, error) {
	a, ok := u.resolveModel(m.ID, modelName)
	if !ok {
		return nil, errors.Wrapf(core.ErrUnknownAsset, "model %q", modelName)
	}
	mesh, loaded, err := u.attachMesh(m, obj, a)
	if err != nil {
		return nil, err
	}
	if !loaded {
		job := u.rm.CreateJob("Loading mesh")
		addLoadTask(job, a.desc, a.category.AssetKind())
		job.StartAsync()
	}
	return mesh, nil
}

// requestSet collects descriptions of one category, deduplicated by the
// path they load from.
type requestSet struct {
	seen  map[string]bool
	descs []resources.AssetDescription
}

func (s *requestSet) add(d resources.AssetDescription) {
	key := d.AssetVirtualPath
	if d.IsArchived() {
		key = d.AssetArchiveVirtualPath
	}
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.descs = append(s.descs, d)
}

/**
 * @brief Loads a map document, builds its objects and render meshes and
 * starts one job per asset category. Returns the started jobs.
 */
func (u *Universe) LoadMap(mapID string) (*scene.Map, []*systems.Job, error) {
	if m, ok := u.GetLoadedMap(mapID); ok {
		return m, nil, nil
	}

	ad := u.locator.GetMapMSB(mapID)
	data, err := os.ReadFile(ad.AssetPath)
	if err != nil {
		return nil, nil, errors.Wrapf(core.ErrUnknownAsset, "map %s: %s", mapID, err)
	}
	doc, err := scene.ParseDocument(data)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "map %s", mapID)
	}

	m := scene.NewMap(mapID, u.registry, u.scene)
	if err := m.LoadDocument(doc); err != nil {
		m.Clear()
		return nil, nil, err
	}

	var chrs, objs, cols, navs requestSet
	for _, obj := range m.Objects() {
		switch obj.Type {
		case scene.ObjectTypePart:
			if obj.Model == "" {
				continue
			}
			a, ok := u.resolveModel(mapID, obj.Model)
			if !ok {
				core.LogWarn("map %s: part %s has unknown model %q", mapID, obj.Name, obj.Model)
				continue
			}
			if _, _, err := u.attachMesh(m, obj, a); err != nil {
				core.LogWarn("map %s: part %s: %s", mapID, obj.Name, err)
				continue
			}
			switch a.category {
			case assets.ModelCategoryCharacter:
				chrs.add(a.desc)
			case assets.ModelCategoryObject:
				objs.add(a.desc)
			case assets.ModelCategoryCollision:
				cols.add(a.desc)
			case assets.ModelCategoryNavmesh:
				navs.add(a.desc)
			}
		case scene.ObjectTypeRegion:
			if obj.Shape == scene.RegionShapeNone {
				continue
			}
			mesh := scene.NewRegionMesh(obj.Shape)
			mesh.WorldMatrix = obj.WorldMatrix()
			mesh.Selectable = u.registry.Ref(obj)
			obj.RenderMesh = mesh
			u.scene.Add(mesh)
		}
	}
	u.mapsMu.Lock()
	for _, other := range u.maps {
		if other.ID == mapID {
			u.mapsMu.Unlock()
			m.Clear()
			return other, nil, nil
		}
	}
	u.maps = append(u.maps, m)
	u.mapsMu.Unlock()

	if u.hasGenerators(mapID) {
		genChrs, err := u.LoadGenerators(m)
		if err != nil {
			core.LogError("map %s: generators: %s", mapID, err)
		}
		for _, d := range genChrs {
			chrs.add(d)
		}
	}

	var jobs []*systems.Job
	start := func(job *systems.Job) {
		job.StartAsync()
		jobs = append(jobs, job)
	}

	job := u.rm.CreateJob(fmt.Sprintf("Loading %s geometry", mapID))
	for _, piece := range u.locator.GetMapModels(mapID) {
		addLoadTask(job, piece, resources.AssetKindFlver)
	}
	start(job)

	job = u.rm.CreateJob(fmt.Sprintf("Loading %s collisions", mapID))
	for _, d := range cols.descs {
		addLoadTask(job, d, resources.AssetKindCollision)
	}
	start(job)

	job = u.rm.CreateJob(fmt.Sprintf("Loading %s textures", mapID))
	if tex := u.locator.GetMapTextures(mapID); fileExists(tex.AssetPath) {
		addLoadTask(job, tex, resources.AssetKindTexture)
	}
	start(job)

	job = u.rm.CreateJob("Loading chrs")
	for _, d := range chrs.descs {
		addLoadTask(job, d, resources.AssetKindFlver)
	}
	start(job)

	job = u.rm.CreateJob("Loading objs")
	for _, d := range objs.descs {
		addLoadTask(job, d, resources.AssetKindFlver)
	}
	start(job)

	job = u.rm.CreateJob("Loading Navmeshes")
	for _, d := range navs.descs {
		addLoadTask(job, d, resources.AssetKindNavmesh)
	}
	start(job)

	core.LogInfo("map %s loaded: %d objects", mapID, len(m.Objects()))
	core.EventFire(core.EVENT_CODE_MAP_LOADED, u, core.EventContext{Subject: mapID, Count: len(m.Objects())})
	return m, jobs, nil
}

func (u *Universe) UnloadMap(mapID string) error {
	u.mapsMu.Lock()
	var found *scene.Map
	for i, m := range u.maps {
		if m.ID == mapID {
			found = m
			u.maps = slices.Delete(u.maps, i, i+1)
			break
		}
	}
	u.mapsMu.Unlock()

	if found == nil {
		return errors.Wrapf(core.ErrMapNotLoaded, "map %s", mapID)
	}
	found.Clear()
	return nil
}

func (u *Universe) UnloadAllMaps() {
	u.mapsMu.Lock()
	maps := u.maps
	u.maps = nil
	u.mapsMu.Unlock()

	for i := len(maps) - 1; i >= 0; i-- {
		maps[i].Clear()
	}
}

// MapIDs lists loaded map ids, sorted.
func (u *Universe) MapIDs() []string {
	u.mapsMu.RLock()
	defer u.mapsMu.RUnlock()
	ids := make([]string, 0, len(u.maps))
	for _, m := range u.maps {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids
}

func fileExists(p string) bool {
	s, err := os.Stat(p)
	return err == nil && !s.IsDir()
}
