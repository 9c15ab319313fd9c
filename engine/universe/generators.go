package universe

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/spaghettifunk/mapstudio/engine/assets"
	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/resources"
	"github.com/spaghettifunk/mapstudio/engine/scene"
)

const (
	generatorTable         = "generator"
	generatorLocationTable = "generator-loc"

	generatorParamType         = "GENERATOR_PARAM"
	generatorLocationParamType = "GENERATOR_LOCATION_PARAM"
)

var positionFields = [3]string{"PositionX", "PositionY", "PositionZ"}

func (u *Universe) hasGenerators(mapID string) bool {
	gen, loc := u.locator.GetGeneratorParams(mapID)
	return fileExists(gen.AssetPath) || fileExists(loc.AssetPath)
}

func readParamTable(path, paramType string) (*scene.ParamTable, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return scene.NewParamTable(paramType), nil
	}
	if err != nil {
		return nil, err
	}
	return scene.ParseParamTable(data)
}

func generatorName(row *scene.ParamRow) {
	if row.Name == "" {
		row.Name = fmt.Sprintf("generator_%d", row.ID)
	}
}

/**
 * @brief Reads the generator tables of m and adds one generator object per
 * row ID. Location rows are shifted by the map offset. Returns the character
 * models the generators place.
 */
func (u *Universe) LoadGenerators(m *scene.Map) ([]resources.AssetDescription, error) {
	genAD, locAD := u.locator.GetGeneratorParams(m.ID)
	locTable, err := readParamTable(locAD.AssetPath, generatorLocationParamType)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", locAD.AssetPath)
	}
	genTable, err := readParamTable(genAD.AssetPath, generatorParamType)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", genAD.AssetPath)
	}

	merged := map[int64]*scene.MergedParamRow{}
	objects := map[int64]*scene.MapObject{}
	var order []int64

	newGenerator := func(row *scene.MergedParamRow) *scene.MapObject {
		obj := scene.NewMapObject(scene.ObjectTypeGenerator, row.Name)
		obj.Row = row
		objects[row.ID] = obj
		order = append(order, row.ID)
		return obj
	}

	for _, row := range locTable.Rows() {
		generatorName(row)
		var pos [3]float32
		for i, f := range positionFields {
			v, _ := row.Float(f)
			pos[i] = v + m.Offset[i]
		}
		mr := scene.NewMergedParamRow()
		if err := mr.AddRow(generatorLocationTable, row); err != nil {
			return nil, err
		}
		merged[row.ID] = mr
		newGenerator(mr).Transform.Position = pos
	}

	var chrs []resources.AssetDescription
	for _, row := range genTable.Rows() {
		generatorName(row)
		mr, ok := merged[row.ID]
		if ok {
			if err := mr.AddRow(generatorTable, row); err != nil {
				return nil, err
			}
		} else {
			mr = scene.NewMergedParamRow()
			if err := mr.AddRow(generatorTable, row); err != nil {
				return nil, err
			}
			merged[row.ID] = mr
			newGenerator(mr)
		}

		chr, ok := row.String("ChrModel")
		if !ok || chr == "" {
			continue
		}
		a, ok := u.resolveModel(m.ID, chr)
		if !ok || a.category != assets.ModelCategoryCharacter {
			core.LogWarn("generator %d: %q is not a character model", row.ID, chr)
			continue
		}
		if _, _, err := u.attachMesh(m, objects[row.ID], a); err != nil {
			core.LogWarn("generator %d: %s", row.ID, err)
			continue
		}
		chrs = append(chrs, a.desc)
	}

	for _, id := range order {
		m.AddObject(objects[id])
	}
	core.LogDebug("map %s: %d generators", m.ID, len(order))
	return chrs, nil
}

type pendingWrite struct {
	path string
	data []byte
}

// serializeGenerators rebuilds both generator tables from the generator
// objects of m. Nothing is written.
func (u *Universe) serializeGenerators(m *scene.Map) ([]pendingWrite, error) {
	genAD, locAD := u.locator.GetGeneratorParams(m.ID)
	genTable, err := readParamTable(genAD.AssetPath, generatorParamType)
	if err != nil {
		return nil, errors.Wrapf(core.ErrSaveAborted, "%s: %s", genAD.AssetPath, err)
	}
	locTable, err := readParamTable(locAD.AssetPath, generatorLocationParamType)
	if err != nil {
		return nil, errors.Wrapf(core.ErrSaveAborted, "%s: %s", locAD.AssetPath, err)
	}
	genTable.ClearRows()
	locTable.ClearRows()

	for _, obj := range m.ObjectsOfType(scene.ObjectTypeGenerator) {
		if obj.Row == nil {
			continue
		}
		if !obj.Transform.Finite() {
			return nil, errors.Wrapf(core.ErrSaveAborted, "generator %q has a non-finite position", obj.Name)
		}
		obj.Row.Name = obj.Name
		obj.Row.SyncName()

		if loc, ok := obj.Row.Row(generatorLocationTable); ok {
			for i, f := range positionFields {
				if err := loc.SetFloat(f, obj.Transform.Position[i]-m.Offset[i]); err != nil {
					return nil, errors.Wrapf(core.ErrSaveAborted, "generator %q: %s", obj.Name, err)
				}
			}
			if err := locTable.AddRow(loc); err != nil {
				return nil, errors.Wrapf(core.ErrSaveAborted, "%s: %s", generatorLocationTable, err)
			}
		}
		if gen, ok := obj.Row.Row(generatorTable); ok {
			if err := genTable.AddRow(gen); err != nil {
				return nil, errors.Wrapf(core.ErrSaveAborted, "%s: %s", generatorTable, err)
			}
		}
	}

	genData, err := genTable.Encode()
	if err != nil {
		return nil, errors.Wrapf(core.ErrSaveAborted, "%s: %s", generatorTable, err)
	}
	locData, err := locTable.Encode()
	if err != nil {
		return nil, errors.Wrapf(core.ErrSaveAborted, "%s: %s", generatorLocationTable, err)
	}
	genPath, locPath := u.locator.GetGeneratorParamWritePaths(m.ID)
	return []pendingWrite{{genPath, genData}, {locPath, locData}}, nil
}

// SaveGenerators writes both generator tables of m, or neither.
func (u *Universe) SaveGenerators(m *scene.Map) error {
	writes, err := u.serializeGenerators(m)
	if err != nil {
		core.LogError("map %s: %s", m.ID, err)
		return err
	}
	return writeAll(writes)
}

func writeAll(writes []pendingWrite) error {
	for _, w := range writes {
		if err := WriteWithRotation(w.path, w.data); err != nil {
			return errors.Wrapf(err, "write %s", w.path)
		}
	}
	return nil
}
