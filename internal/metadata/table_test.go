// Copyright (C) 2025 Cartoflow, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTable(t, `asset_id,class,score,system:time_start
tile_1,GASTROPODA,42,2024-01-01
tile_2,BIVALVIA,3.5,2024-01-15T10:00:00Z
`)

	table, err := LoadCSV(path, "")
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	e, ok := table.Lookup("tile_1")
	require.True(t, ok)
	require.Equal(t, int64(42), e.Properties["score"])
	require.Equal(t, "GASTROPODA", e.Properties["class"])

	e, ok = table.Lookup("tile_2")
	require.True(t, ok)
	require.Equal(t, 3.5, e.Properties["score"])
}

func TestLookupCaseInsensitive(t *testing.T) {
	path := writeTable(t, "asset_id,class\nTile_1,GASTROPODA\n")
	table, err := LoadCSV(path, "")
	require.NoError(t, err)

	e, ok := table.Lookup("tile_1")
	require.True(t, ok)
	require.Equal(t, "Tile_1", e.AssetID)

	_, ok = table.Lookup("tile_9")
	require.False(t, ok)
}

func TestTimeBounds(t *testing.T) {
	path := writeTable(t, `asset_id,system:time_start,system:time_end,class
tile_1,2024-01-01T00:00:00Z,2024-02-01T00:00:00Z,GASTROPODA
`)
	table, err := LoadCSV(path, "")
	require.NoError(t, err)

	e, _ := table.Lookup("tile_1")
	start, end, props := e.TimeBounds()
	require.Equal(t, int64(1704067200000), start)
	require.Equal(t, int64(1706745600000), end)
	require.NotContains(t, props, "system:time_start")
	require.NotContains(t, props, "system:time_end")
	require.Equal(t, "GASTROPODA", props["class"])

	// The entry itself is untouched.
	require.Contains(t, e.Properties, "system:time_start")
}

func TestLoadCSVExplicitIDColumn(t *testing.T) {
	path := writeTable(t, "class,id,score\nGASTROPODA,tile_1,7\n")
	table, err := LoadCSV(path, "id")
	require.NoError(t, err)

	e, ok := table.Lookup("tile_1")
	require.True(t, ok)
	require.Equal(t, int64(7), e.Properties["score"])

	_, err = LoadCSV(path, "nope")
	require.Error(t, err)
}

func TestLoadCSVInvalidColumn(t *testing.T) {
	path := writeTable(t, "asset_id,bad column\ntile_1,x\n")
	_, err := LoadCSV(path, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad column")
}

func TestLoadCSVSkipsEmptyIDs(t *testing.T) {
	path := writeTable(t, "asset_id,class\n,GASTROPODA\ntile_1,BIVALVIA\n")
	table, err := LoadCSV(path, "")
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
}

func TestMissingFor(t *testing.T) {
	path := writeTable(t, "asset_id,class\ntile_1,GASTROPODA\n")
	table, err := LoadCSV(path, "")
	require.NoError(t, err)

	missing := table.MissingFor([]string{"tile_1", "tile_2"})
	require.Equal(t, []string{"tile_2"}, missing)
}
