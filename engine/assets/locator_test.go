package assets_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mapstudio/engine/assets"
	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/resources"
)

func touch(t *testing.T, p string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
}

func TestClassifyModel(t *testing.T) {
	cases := map[string]assets.ModelCategory{
		"m1000B0": assets.ModelCategoryMapPiece,
		"c1000":   assets.ModelCategoryCharacter,
		"o2000":   assets.ModelCategoryObject,
		"h0010B0": assets.ModelCategoryCollision,
		"n0010B0": assets.ModelCategoryNavmesh,
		"M1000":   assets.ModelCategoryMapPiece,
		"x1":      assets.ModelCategoryUnknown,
		"":        assets.ModelCategoryUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, assets.ClassifyModel(name), name)
	}
	assert.Equal(t, resources.AssetKindCollision, assets.ModelCategoryCollision.AssetKind())
	assert.Equal(t, resources.AssetKindFlver, assets.ModelCategoryCharacter.AssetKind())
}

func TestMapModelNameToAssetName(t *testing.T) {
	assert.Equal(t, "m1000B0A10", assets.MapModelNameToAssetName("m10_00_00_00", "m1000B0"))
	assert.Equal(t, "m1", assets.MapModelNameToAssetName("m", "m1"))
}

func TestLocatorDescriptions(t *testing.T) {
	root := t.TempDir()
	l := assets.NewLocator(root, "")

	chr := l.GetChrModel("c1000")
	assert.Equal(t, "chr/c1000/model", chr.AssetArchiveVirtualPath)
	assert.Equal(t, "chr/c1000/model/c1000", chr.AssetVirtualPath)
	assert.Equal(t, filepath.Join(root, "chr", "c1000.chrbnd"), chr.AssetPath)
	assert.True(t, chr.IsArchived())

	piece := l.GetMapModel("m10_00_00_00", "m1000B0A10")
	assert.False(t, piece.IsArchived())
	assert.Equal(t, "map/m10_00_00_00/model/m1000B0A10", piece.AssetVirtualPath)

	assert.Equal(t, "map/m10_00_00_00/hit", l.GetMapCollisionModel("m10_00_00_00", "h1").AssetArchiveVirtualPath)
	assert.Equal(t, "map/m10_00_00_00/nav", l.GetMapNVMModel("m10_00_00_00", "n1").AssetArchiveVirtualPath)
	assert.Equal(t, "map/m10_00_00_00/tex", l.GetMapTextures("m10_00_00_00").AssetArchiveVirtualPath)
}

func TestLocatorModOverride(t *testing.T) {
	game, mod := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(game, "chr", "c1000.chrbnd"))
	touch(t, filepath.Join(game, "chr", "c2000.chrbnd"))
	touch(t, filepath.Join(mod, "chr", "c2000.chrbnd"))

	l := assets.NewLocator(game, mod)
	assert.Equal(t, filepath.Join(game, "chr", "c1000.chrbnd"), l.GetChrModel("c1000").AssetPath)
	assert.Equal(t, filepath.Join(mod, "chr", "c2000.chrbnd"), l.GetChrModel("c2000").AssetPath)
	assert.Equal(t, filepath.Join(mod, "map", "mapstudio", "m10.msb.yaml"), l.GetMapMSBWritePath("m10"))
}

func TestLocatorMapListing(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "map", "m10_00_00_00", "m1000B0A10.flver"))
	touch(t, filepath.Join(root, "map", "m10_00_00_00", "m2000B0A10.flver"))
	touch(t, filepath.Join(root, "map", "m10_00_00_00", "m10_00_00_00.hitbnd"))
	touch(t, filepath.Join(root, "map", "mapstudio", "m10_00_00_00.msb.yaml"))
	touch(t, filepath.Join(root, "map", "mapstudio", "m11_00_00_00.msb.yaml"))

	l := assets.NewLocator(root, "")
	models := l.GetMapModels("m10_00_00_00")
	require.Len(t, models, 2)
	assert.Equal(t, "m1000B0A10", models[0].AssetName)
	assert.Equal(t, "m2000B0A10", models[1].AssetName)
	assert.Equal(t, []string{"m10_00_00_00", "m11_00_00_00"}, l.MapIDs())
}

func TestVirtualPathRoundTrip(t *testing.T) {
	root := t.TempDir()
	l := assets.NewLocator(root, "")

	for _, vpath := range []string{
		"map/m10_00_00_00/model/m1000B0A10",
		"map/m10_00_00_00/hit",
		"map/m10_00_00_00/nav",
		"map/m10_00_00_00/tex",
		"chr/c1000/model",
		"obj/o2000/model",
	} {
		p, _, err := l.VirtualToRealPath(vpath)
		require.NoError(t, err, vpath)
		back, ok := l.RealToVirtualPath(p)
		require.True(t, ok, vpath)
		assert.Equal(t, vpath, back)
	}

	_, archived, err := l.VirtualToRealPath("chr/c1000/model")
	require.NoError(t, err)
	assert.True(t, archived)

	_, _, err = l.VirtualToRealPath("sound/whatever")
	assert.ErrorIs(t, err, core.ErrUnknownAsset)

	_, ok := l.RealToVirtualPath(filepath.Join(root, "readme.txt"))
	assert.False(t, ok)
}

func TestKindForFile(t *testing.T) {
	assert.Equal(t, resources.AssetKindFlver, assets.KindForFile("a/b.FLVER"))
	assert.Equal(t, resources.AssetKindTexture, assets.KindForFile("t.dds"))
	assert.Equal(t, resources.AssetKindNavmesh, assets.KindForFile("n.nvm"))
	assert.Equal(t, resources.AssetKindUnknown, assets.KindForFile("x.txt"))
}
