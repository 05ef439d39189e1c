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

// Package quota reports per-project asset storage usage.
package quota

import (
	"context"
	"fmt"

	"github.com/cartoflow/terraload/internal/gee"
)

// API is the slice of the remote catalog client this package consumes.
type API interface {
	GetAsset(ctx context.Context, path string) (gee.Asset, error)
}

// Report is one project's quota usage.
type Report struct {
	Project    string
	UsedBytes  int64
	MaxBytes   int64
	AssetCount int64
	AssetQuota int64
}

// Fetch queries the project's asset root for its quota record.
func Fetch(ctx context.Context, api API, project string) (Report, error) {
	asset, err := api.GetAsset(ctx, "projects/"+project)
	if err != nil {
		return Report{}, fmt.Errorf("fetch quota for project %s: %w", project, err)
	}
	return Report{
		Project:    project,
		UsedBytes:  asset.QuotaUsed,
		MaxBytes:   asset.QuotaBytes,
		AssetCount: asset.AssetCount,
		AssetQuota: asset.AssetQuota,
	}, nil
}

func (r Report) String() string {
	return fmt.Sprintf("project %s: storage %s of %s (%.1f%%), assets %d of %d",
		r.Project,
		HumanSize(r.UsedBytes), HumanSize(r.MaxBytes), r.percent(),
		r.AssetCount, r.AssetQuota)
}

func (r Report) percent() float64 {
	if r.MaxBytes <= 0 {
		return 0
	}
	return float64(r.UsedBytes) / float64(r.MaxBytes) * 100
}

// HumanSize renders a byte count in binary units.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
