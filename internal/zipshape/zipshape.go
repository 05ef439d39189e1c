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

// Package zipshape groups shapefile component files by basename and zips
// each group into the single-archive form table ingestion expects.
package zipshape

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cartoflow/terraload/internal/natsort"
)

// SidecarExtensions are the shapefile component types carried into each
// archive. Only groups containing a .shp are zipped.
var SidecarExtensions = []string{
	".shp", ".shx", ".dbf", ".prj", ".cpg", ".sbn", ".sbx", ".qix", ".fix",
}

// Group is one shapefile and its sidecars.
type Group struct {
	Basename string
	Files    []string
}

// Scan finds shapefile groups under dir, ordered naturally by basename.
// Groups without a .shp component are ignored.
func Scan(dir string) ([]Group, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan shapefile directory: %w", err)
	}

	byBase := make(map[string][]string)
	hasShp := make(map[string]bool)
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !isSidecar(ext) {
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		byBase[base] = append(byBase[base], filepath.Join(dir, name))
		if ext == ".shp" {
			hasShp[base] = true
		}
	}

	bases := make([]string, 0, len(byBase))
	for base := range byBase {
		if hasShp[base] {
			bases = append(bases, base)
		}
	}
	natsort.Sort(bases)

	groups := make([]Group, 0, len(bases))
	for _, base := range bases {
		files := byBase[base]
		natsort.Sort(files)
		groups = append(groups, Group{Basename: base, Files: files})
	}
	return groups, nil
}

// ZipAll writes one <basename>.zip per group into outDir and returns the
// archive paths. Existing archives are overwritten.
func ZipAll(groups []Group, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	archives := make([]string, 0, len(groups))
	for _, g := range groups {
		path := filepath.Join(outDir, g.Basename+".zip")
		if err := zipGroup(g, path); err != nil {
			return archives, err
		}
		archives = append(archives, path)
	}
	return archives, nil
}

func zipGroup(g Group, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, file := range g.Files {
		if err := addFile(zw, file); err != nil {
			zw.Close()
			return fmt.Errorf("zip %s: %w", file, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return out.Close()
}

func addFile(zw *zip.Writer, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.Create(filepath.Base(file))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func isSidecar(ext string) bool {
	for _, e := range SidecarExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
