package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mapstudio/engine/core"
)

const locationYAML = `param_type: GENERATOR_LOCATION_PARAM
rows:
  - id: 2000
    name: ""
    PositionX: 1.5
    PositionY: 0
    PositionZ: -2
  - id: 1000
    name: gate
    PositionX: 0
    PositionY: 0
    PositionZ: 0
`

func TestParseParamTable(t *testing.T) {
	table, err := ParseParamTable([]byte(locationYAML))
	require.NoError(t, err)
	assert.Equal(t, "GENERATOR_LOCATION_PARAM", table.Type)
	require.Len(t, table.Rows(), 2)

	row, ok := table.Row(2000)
	require.True(t, ok)
	x, ok := row.Float("PositionX")
	require.True(t, ok)
	assert.Equal(t, float32(1.5), x)
	_, ok = row.Float("Missing")
	assert.False(t, ok)

	out, err := table.Encode()
	require.NoError(t, err)
	again, err := ParseParamTable(out)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), again.Rows()[0].ID)
}

func TestParamTableUniqueIDs(t *testing.T) {
	_, err := ParseParamTable([]byte("rows:\n  - id: 1\n  - id: 1\n"))
	assert.ErrorIs(t, err, core.ErrDecodeFailure)

	table := NewParamTable("GENERATOR_PARAM")
	require.NoError(t, table.AddRow(NewParamRow(5, "a")))
	assert.Error(t, table.AddRow(NewParamRow(5, "b")))
	table.ClearRows()
	assert.Empty(t, table.Rows())
	require.NoError(t, table.AddRow(NewParamRow(5, "b")))
}

func TestMergedParamRow(t *testing.T) {
	loc := NewParamRow(7, "generator_7")
	require.NoError(t, loc.SetFloat("PositionX", 3))
	gen := NewParamRow(7, "")
	require.NoError(t, gen.SetFloat("SpawnCount", 2))

	m := NewMergedParamRow()
	require.NoError(t, m.AddRow("generator-loc", loc))
	require.NoError(t, m.AddRow("generator", gen))
	assert.Equal(t, int64(7), m.ID)
	assert.Equal(t, "generator_7", m.Name)
	assert.Equal(t, []string{"generator-loc", "generator"}, m.Tables())

	assert.Error(t, m.AddRow("generator", NewParamRow(7, "")))
	assert.Error(t, m.AddRow("other", NewParamRow(8, "")))

	v, ok := m.Float("SpawnCount")
	require.True(t, ok)
	assert.Equal(t, float32(2), v)

	require.NoError(t, m.SetFloat("PositionX", 9))
	x, _ := loc.Float("PositionX")
	assert.Equal(t, float32(9), x)
	assert.Error(t, m.SetFloat("Nope", 1))

	m.Name = "renamed"
	m.SyncName()
	assert.Equal(t, "renamed", gen.Name)
}
