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

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cartoflow/terraload/internal/catalog"
	"github.com/cartoflow/terraload/internal/metadata"
)

func TestItemNamesFeedMetadataCheck(t *testing.T) {
	csv := filepath.Join(t.TempDir(), "meta.csv")
	require.NoError(t, os.WriteFile(csv, []byte("asset_id,class\ntile_1,GASTROPODA\n"), 0o644))
	table, err := metadata.LoadCSV(csv, "")
	require.NoError(t, err)

	items := []*catalog.Item{
		{AssetName: "tile_1"},
		{AssetName: "tile_2"},
		{AssetName: "tile_3"},
	}

	missing := table.MissingFor(itemNames(items))
	require.Equal(t, []string{"tile_2", "tile_3"}, missing)
}
