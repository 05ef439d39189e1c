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

// Package catalog scans a source directory into the ordered set of work
// items for one batch run. Items come out in natural-sorted order (numeric
// substrings compared by value) so repeated runs over an unchanged
// directory enumerate identically; resume behavior depends on that.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/cartoflow/terraload/internal/assetpath"
	"github.com/cartoflow/terraload/internal/gee"
	"github.com/cartoflow/terraload/internal/metadata"
	"github.com/cartoflow/terraload/internal/natsort"
)

// ImageExtensions and TableExtensions are the uploadable payload types per
// asset kind.
var (
	ImageExtensions = []string{".tif", ".tiff"}
	TableExtensions = []string{".zip", ".csv"}
)

// Item is one file destined for one remote asset. Read-only after build
// except Attempt, which only the worker pool mutates.
type Item struct {
	LocalPath       string
	AssetName       string
	DestinationPath string
	Kind            gee.AssetKind
	Metadata        *metadata.Entry
	Attempt         int
}

// Rejection records a candidate file excluded by naming or shape
// validation. Rejected files are reported, never silently dropped, and never
// reach the ledger.
type Rejection struct {
	LocalPath string
	Reason    error
}

// Build enumerates the work item set. destRoot may be any recognized
// destination form; it is normalized once and each item's destination is
// root + asset name. A nil metadata table means every item proceeds with
// defaults.
func Build(sourceDir, destRoot string, kind gee.AssetKind, table *metadata.Table) ([]*Item, []Rejection, error) {
	root, err := assetpath.Normalize(destRoot)
	if err != nil {
		return nil, nil, err
	}

	exts := ImageExtensions
	if kind == gee.KindTable {
		exts = TableExtensions
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, nil, fmt.Errorf("scan source directory: %w", err)
	}

	var names []string
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if hasExtension(de.Name(), exts) {
			names = append(names, de.Name())
		}
	}
	natsort.Sort(names)

	var items []*Item
	var rejected []Rejection
	for _, name := range names {
		localPath, err := filepath.Abs(filepath.Join(sourceDir, name))
		if err != nil {
			return nil, nil, err
		}
		assetName := strings.TrimSuffix(name, filepath.Ext(name))

		dest, err := assetpath.Join(root, assetName)
		if err != nil {
			rejected = append(rejected, Rejection{LocalPath: localPath, Reason: err})
			continue
		}

		item := &Item{
			LocalPath:       localPath,
			AssetName:       assetName,
			DestinationPath: dest,
			Kind:            kind,
		}
		if entry, ok := table.Lookup(assetName); ok {
			item.Metadata = entry
		}
		items = append(items, item)
	}
	return items, rejected, nil
}

// RejectionError folds rejections into one reportable error, or nil.
func RejectionError(rejected []Rejection) error {
	var merr *multierror.Error
	for _, r := range rejected {
		merr = multierror.Append(merr, fmt.Errorf("%s: %w", r.LocalPath, r.Reason))
	}
	return merr.ErrorOrNil()
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
