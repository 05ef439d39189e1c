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

package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoflow/terraload/internal/gee"
)

type fakeAPI struct {
	gotPath string
	asset   gee.Asset
}

func (f *fakeAPI) GetAsset(ctx context.Context, path string) (gee.Asset, error) {
	f.gotPath = path
	return f.asset, nil
}

func TestFetch(t *testing.T) {
	api := &fakeAPI{asset: gee.Asset{
		QuotaUsed:  512 << 20,
		QuotaBytes: 250 << 30,
		AssetCount: 120,
		AssetQuota: 10000,
	}}

	r, err := Fetch(context.Background(), api, "demo")
	require.NoError(t, err)
	assert.Equal(t, "projects/demo", api.gotPath)
	assert.Equal(t, int64(512<<20), r.UsedBytes)
	assert.Equal(t, int64(120), r.AssetCount)
	assert.Contains(t, r.String(), "512.0 MiB")
	assert.Contains(t, r.String(), "250.0 GiB")
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
		{2 << 40, "2.0 TiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanSize(tt.in), "n=%d", tt.in)
	}
}
