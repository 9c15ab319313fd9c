package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/resources"
)

// ModelCategory is what a model name refers to, resolved from its first letter.
type ModelCategory int

const (
	ModelCategoryUnknown ModelCategory = iota
	ModelCategoryMapPiece
	ModelCategoryCharacter
	ModelCategoryObject
	ModelCategoryCollision
	ModelCategoryNavmesh
)

var modelPrefixCategories = map[byte]ModelCategory{
	'm': ModelCategoryMapPiece,
	'c': ModelCategoryCharacter,
	'o': ModelCategoryObject,
	'h': ModelCategoryCollision,
	'n': ModelCategoryNavmesh,
}

var categoryKinds = map[ModelCategory]resources.AssetKind{
	ModelCategoryMapPiece:  resources.AssetKindFlver,
	ModelCategoryCharacter: resources.AssetKindFlver,
	ModelCategoryObject:    resources.AssetKindFlver,
	ModelCategoryCollision: resources.AssetKindCollision,
	ModelCategoryNavmesh:   resources.AssetKindNavmesh,
}

func ClassifyModel(name string) ModelCategory {
	if name == "" {
		return ModelCategoryUnknown
	}
	c := name[0]
	if c >= 'A' && c <= 'Z' {
		c += 'a' - 'A'
	}
	return modelPrefixCategories[c]
}

// AssetKind is the resource kind models of this category decode to.
func (c ModelCategory) AssetKind() resources.AssetKind {
	return categoryKinds[c]
}

func (c ModelCategory) String() string {
	switch c {
	case ModelCategoryMapPiece:
		return "map piece"
	case ModelCategoryCharacter:
		return "character"
	case ModelCategoryObject:
		return "object"
	case ModelCategoryCollision:
		return "collision"
	case ModelCategoryNavmesh:
		return "navmesh"
	}
	return "unknown"
}

var extensionKinds = map[string]resources.AssetKind{
	".flver": resources.AssetKindFlver,
	".glb":   resources.AssetKindFlver,
	".hkx":   resources.AssetKindCollision,
	".nvm":   resources.AssetKindNavmesh,
	".dds":   resources.AssetKindTexture,
	".png":   resources.AssetKindTexture,
	".bmp":   resources.AssetKindTexture,
	".tif":   resources.AssetKindTexture,
	".webp":  resources.AssetKindTexture,
}

// KindForFile returns the asset kind of a file by extension.
func KindForFile(name string) resources.AssetKind {
	return extensionKinds[strings.ToLower(filepath.Ext(name))]
}

// Archive extensions, per virtual path segment.
const (
	chrArchiveExt = ".chrbnd"
	objArchiveExt = ".objbnd"
	hitArchiveExt = ".hitbnd"
	navArchiveExt = ".nvmbnd"
	texArchiveExt = ".tpfbnd"
	mapPieceExt   = ".flver"
	msbExt        = ".msb.yaml"
	paramExt      = ".param.yaml"
)

// Locator maps game ids to asset descriptions. Files in ModRoot shadow the
// ones in GameRoot.
type Locator struct {
	GameRoot string
	ModRoot  string
}

func NewLocator(gameRoot, modRoot string) *Locator {
	return &Locator{GameRoot: gameRoot, ModRoot: modRoot}
}

// GetAssetPath returns the modded copy of rel when one exists.
func (l *Locator) GetAssetPath(rel string) string {
	if l.ModRoot != "" {
		p := filepath.Join(l.ModRoot, rel)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(l.GameRoot, rel)
}

// GetOverridePath is where edited copies of rel are written.
func (l *Locator) GetOverridePath(rel string) string {
	if l.ModRoot != "" {
		return filepath.Join(l.ModRoot, rel)
	}
	return filepath.Join(l.GameRoot, rel)
}

// MapModelNameToAssetName turns a placed model name into the file stem it is
// stored under: "m1000B0" in m10_00_00_00 becomes "m1000B0A10".
func MapModelNameToAssetName(mapID, modelName string) string {
	if len(mapID) < 3 {
		return modelName
	}
	return fmt.Sprintf("%sA%s", modelName, mapID[1:3])
}

func (l *Locator) GetMapModel(mapID, model string) resources.AssetDescription {
	return resources.AssetDescription{
		AssetName:        model,
		AssetPath:        l.GetAssetPath(filepath.Join("map", mapID, model+mapPieceExt)),
		AssetVirtualPath: fmt.Sprintf("map/%s/model/%s", mapID, model),
	}
}

func (l *Locator) GetChrModel(chr string) resources.AssetDescription {
	return resources.AssetDescription{
		AssetName:               chr,
		AssetPath:               l.GetAssetPath(filepath.Join("chr", chr+chrArchiveExt)),
		AssetVirtualPath:        fmt.Sprintf("chr/%s/model/%s", chr, chr),
		AssetArchiveVirtualPath: fmt.Sprintf("chr/%s/model", chr),
	}
}

func (l *Locator) GetObjModel(obj string) resources.AssetDescription {
	return resources.AssetDescription{
		AssetName:               obj,
		AssetPath:               l.GetAssetPath(filepath.Join("obj", obj+objArchiveExt)),
		AssetVirtualPath:        fmt.Sprintf("obj/%s/model/%s", obj, obj),
		AssetArchiveVirtualPath: fmt.Sprintf("obj/%s/model", obj),
	}
}

func (l *Locator) GetMapCollisionModel(mapID, model string) resources.AssetDescription {
	return resources.AssetDescription{
		AssetName:               model,
		AssetPath:               l.GetAssetPath(filepath.Join("map", mapID, mapID+hitArchiveExt)),
		AssetVirtualPath:        fmt.Sprintf("map/%s/hit/%s", mapID, model),
		AssetArchiveVirtualPath: fmt.Sprintf("map/%s/hit", mapID),
	}
}

func (l *Locator) GetMapNVMModel(mapID, model string) resources.AssetDescription {
	return resources.AssetDescription{
		AssetName:               model,
		AssetPath:               l.GetAssetPath(filepath.Join("map", mapID, mapID+navArchiveExt)),
		AssetVirtualPath:        fmt.Sprintf("map/%s/nav/%s", mapID, model),
		AssetArchiveVirtualPath: fmt.Sprintf("map/%s/nav", mapID),
	}
}

// GetMapTextures describes the texture archive of a map.
func (l *Locator) GetMapTextures(mapID string) resources.AssetDescription {
	return resources.AssetDescription{
		AssetName:               mapID,
		AssetPath:               l.GetAssetPath(filepath.Join("map", mapID, mapID+texArchiveExt)),
		AssetVirtualPath:        fmt.Sprintf("map/%s/tex", mapID),
		AssetArchiveVirtualPath: fmt.Sprintf("map/%s/tex", mapID),
	}
}

// GetMapModels lists the loose map pieces shipped with a map.
func (l *Locator) GetMapModels(mapID string) []resources.AssetDescription {
	seen := map[string]bool{}
	var out []resources.AssetDescription
	for _, root := range []string{l.ModRoot, l.GameRoot} {
		if root == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(root, "map", mapID, "*"+mapPieceExt))
		if err != nil {
			core.LogWarn("failed to list map models for %s: %s", mapID, err)
			continue
		}
		for _, m := range matches {
			name := strings.TrimSuffix(filepath.Base(m), mapPieceExt)
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, l.GetMapModel(mapID, name))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetName < out[j].AssetName })
	return out
}

// GetMapMSB describes the map document; AssetPath is where it is read from.
func (l *Locator) GetMapMSB(mapID string) resources.AssetDescription {
	rel := filepath.Join("map", "mapstudio", mapID+msbExt)
	return resources.AssetDescription{
		AssetName:        mapID,
		AssetPath:        l.GetAssetPath(rel),
		AssetVirtualPath: fmt.Sprintf("map/%s/msb", mapID),
	}
}

// GetMapMSBWritePath is where a saved map document goes.
func (l *Locator) GetMapMSBWritePath(mapID string) string {
	return l.GetOverridePath(filepath.Join("map", "mapstudio", mapID+msbExt))
}

// Generator param tables of a map, in the order generator, generator-loc.
func (l *Locator) GetGeneratorParams(mapID string) (generator, location resources.AssetDescription) {
	gen := filepath.Join("param", "generator", "generatorparam_"+mapID+paramExt)
	loc := filepath.Join("param", "generator", "generatorlocation_"+mapID+paramExt)
	return resources.AssetDescription{
			AssetName:        "generator",
			AssetPath:        l.GetAssetPath(gen),
			AssetVirtualPath: fmt.Sprintf("param/%s/generator", mapID),
		}, resources.AssetDescription{
			AssetName:        "generator-loc",
			AssetPath:        l.GetAssetPath(loc),
			AssetVirtualPath: fmt.Sprintf("param/%s/generator-loc", mapID),
		}
}

func (l *Locator) GetGeneratorParamWritePaths(mapID string) (generator, location string) {
	return l.GetOverridePath(filepath.Join("param", "generator", "generatorparam_"+mapID+paramExt)),
		l.GetOverridePath(filepath.Join("param", "generator", "generatorlocation_"+mapID+paramExt))
}

// MapIDs lists the maps that have a document.
func (l *Locator) MapIDs() []string {
	ids := map[string]bool{}
	for _, root := range []string{l.GameRoot, l.ModRoot} {
		if root == "" {
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(root, "map", "mapstudio", "*"+msbExt))
		for _, m := range matches {
			ids[strings.TrimSuffix(filepath.Base(m), msbExt)] = true
		}
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// VirtualToRealPath resolves a virtual path to a file. archived reports that
// the file is a container and vpath names it rather than one of its entries.
func (l *Locator) VirtualToRealPath(vpath string) (path string, archived bool, err error) {
	parts := strings.Split(vpath, "/")
	switch {
	case len(parts) == 4 && parts[0] == "map" && parts[2] == "model":
		return l.GetMapModel(parts[1], parts[3]).AssetPath, false, nil
	case len(parts) == 3 && parts[0] == "chr" && parts[2] == "model":
		return l.GetChrModel(parts[1]).AssetPath, true, nil
	case len(parts) == 3 && parts[0] == "obj" && parts[2] == "model":
		return l.GetObjModel(parts[1]).AssetPath, true, nil
	case len(parts) == 3 && parts[0] == "map" && parts[2] == "hit":
		return l.GetMapCollisionModel(parts[1], "").AssetPath, true, nil
	case len(parts) == 3 && parts[0] == "map" && parts[2] == "nav":
		return l.GetMapNVMModel(parts[1], "").AssetPath, true, nil
	case len(parts) == 3 && parts[0] == "map" && parts[2] == "tex":
		return l.GetMapTextures(parts[1]).AssetPath, true, nil
	case len(parts) == 3 && parts[0] == "tex" && parts[1] == "loose":
		return l.GetAssetPath(filepath.Join("tex", parts[2])), false, nil
	}
	return "", false, fmt.Errorf("%w: virtual path %q", core.ErrUnknownAsset, vpath)
}

// RealToVirtualPath is the inverse of VirtualToRealPath for files under the
// game or mod root. It returns false for files the studio does not load.
func (l *Locator) RealToVirtualPath(path string) (string, bool) {
	rel := ""
	for _, root := range []string{l.ModRoot, l.GameRoot} {
		if root == "" {
			continue
		}
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = filepath.ToSlash(r)
			break
		}
	}
	if rel == "" {
		return "", false
	}
	parts := strings.Split(rel, "/")
	base := parts[len(parts)-1]
	switch {
	case len(parts) == 3 && parts[0] == "map" && strings.HasSuffix(base, mapPieceExt):
		return fmt.Sprintf("map/%s/model/%s", parts[1], strings.TrimSuffix(base, mapPieceExt)), true
	case len(parts) == 3 && parts[0] == "map" && strings.HasSuffix(base, hitArchiveExt):
		return fmt.Sprintf("map/%s/hit", parts[1]), true
	case len(parts) == 3 && parts[0] == "map" && strings.HasSuffix(base, navArchiveExt):
		return fmt.Sprintf("map/%s/nav", parts[1]), true
	case len(parts) == 3 && parts[0] == "map" && strings.HasSuffix(base, texArchiveExt):
		return fmt.Sprintf("map/%s/tex", parts[1]), true
	case len(parts) == 2 && parts[0] == "chr" && strings.HasSuffix(base, chrArchiveExt):
		return fmt.Sprintf("chr/%s/model", strings.TrimSuffix(base, chrArchiveExt)), true
	case len(parts) == 2 && parts[0] == "obj" && strings.HasSuffix(base, objArchiveExt):
		return fmt.Sprintf("obj/%s/model", strings.TrimSuffix(base, objArchiveExt)), true
	case len(parts) == 2 && parts[0] == "tex":
		return "tex/loose/" + base, true
	}
	return "", false
}
