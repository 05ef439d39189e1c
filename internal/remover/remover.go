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

// Package remover deletes a catalog asset and everything inside it. The
// platform only deletes empty containers, so children go first, depth
// first.
package remover

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cartoflow/terraload/internal/gee"
)

// API is the slice of the remote catalog client this package consumes.
type API interface {
	GetAsset(ctx context.Context, path string) (gee.Asset, error)
	ListChildAssets(ctx context.Context, path string) ([]string, error)
	DeleteAsset(ctx context.Context, path string) error
}

// Delete removes the asset at path recursively and returns the number of
// assets deleted. A missing asset is an error: the caller named something
// that does not exist.
func Delete(ctx context.Context, api API, path string) (int, error) {
	asset, err := api.GetAsset(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", path, err)
	}
	return deleteTree(ctx, api, path, asset.Type)
}

func deleteTree(ctx context.Context, api API, path, assetType string) (int, error) {
	deleted := 0
	if isContainer(assetType) {
		children, err := api.ListChildAssets(ctx, path)
		if err != nil {
			return deleted, fmt.Errorf("list children of %s: %w", path, err)
		}
		for _, child := range children {
			childPath := path + "/" + child
			childAsset, err := api.GetAsset(ctx, childPath)
			if err != nil {
				return deleted, fmt.Errorf("resolve %s: %w", childPath, err)
			}
			n, err := deleteTree(ctx, api, childPath, childAsset.Type)
			deleted += n
			if err != nil {
				return deleted, err
			}
		}
	}

	if err := api.DeleteAsset(ctx, path); err != nil {
		return deleted, fmt.Errorf("delete %s: %w", path, err)
	}
	slog.Info("Deleted asset", slog.String("path", path), slog.String("type", assetType))
	return deleted + 1, nil
}

func isContainer(assetType string) bool {
	switch strings.ToUpper(assetType) {
	case "FOLDER", "IMAGE_COLLECTION", "TABLE_COLLECTION":
		return true
	default:
		return false
	}
}
