package universe

import (
	"github.com/pkg/errors"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/scene"
)

/**
 * @brief Writes m back to its map document, and its generator tables when
 * it has generators. Every file of the group is serialized before any is
 * written; a failed pre-check returns core.ErrSaveAborted.
 */
func (u *Universe) SaveMap(m *scene.Map) error {
	doc, err := m.Serialize()
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	data, err := doc.Encode()
	if err != nil {
		err = errors.Wrapf(core.ErrSaveAborted, "map %s: %s", m.ID, err)
		core.LogError("%s", err)
		return err
	}
	writes := []pendingWrite{{u.locator.GetMapMSBWritePath(m.ID), data}}

	if len(m.ObjectsOfType(scene.ObjectTypeGenerator)) > 0 {
		gens, err := u.serializeGenerators(m)
		if err != nil {
			core.LogError("map %s: %s", m.ID, err)
			return err
		}
		writes = append(writes, gens...)
	}

	if err := writeAll(writes); err != nil {
		core.LogError("map %s: %s", m.ID, err)
		return err
	}
	core.LogInfo("saved map %s", m.ID)
	core.EventFire(core.EVENT_CODE_MAP_SAVED, u, core.EventContext{Subject: m.ID, Count: len(writes)})
	return nil
}

// SaveAllMaps saves every loaded map and returns the first error. A failed
// map does not stop the others.
func (u *Universe) SaveAllMaps() error {
	var first error
	for _, m := range u.LoadedMaps() {
		if err := u.SaveMap(m); err != nil && first == nil {
			first = err
		}
	}
	return first
}
