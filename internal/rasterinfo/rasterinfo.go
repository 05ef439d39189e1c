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

// Package rasterinfo is the boundary to the external raster-introspection
// tool. It shells out to gdalinfo and turns the result into the metadata
// CSV the upload commands consume.
package rasterinfo

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cartoflow/terraload/internal/natsort"
)

// Info is one raster's shape.
type Info struct {
	Name  string
	XSize int
	YSize int
	Bands int
}

// Runner executes the introspection tool on one file and returns its JSON
// output. The default shells out to gdalinfo.
type Runner func(ctx context.Context, path string) ([]byte, error)

// GDALInfo runs `gdalinfo -json` on path.
func GDALInfo(ctx context.Context, path string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "gdalinfo", "-json", path).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("gdalinfo %s: %s", path, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("gdalinfo %s: %w", path, err)
	}
	return out, nil
}

// Inspect runs the tool on every .tif under dir, in natural order. Files the
// tool cannot read are returned as errors keyed by path; readable files
// still produce rows.
func Inspect(ctx context.Context, dir string, run Runner) ([]Info, map[string]error, error) {
	if run == nil {
		run = GDALInfo
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("scan raster directory: %w", err)
	}
	var names []string
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(de.Name()))
		if ext == ".tif" || ext == ".tiff" {
			names = append(names, de.Name())
		}
	}
	natsort.Sort(names)

	var infos []Info
	failures := make(map[string]error)
	for _, name := range names {
		path := filepath.Join(dir, name)
		raw, err := run(ctx, path)
		if err != nil {
			failures[path] = err
			continue
		}
		info, err := parse(raw)
		if err != nil {
			failures[path] = err
			continue
		}
		info.Name = strings.TrimSuffix(name, filepath.Ext(name))
		infos = append(infos, info)
	}
	return infos, failures, nil
}

func parse(raw []byte) (Info, error) {
	var doc struct {
		Size  []int `json:"size"`
		Bands []struct {
			Band int `json:"band"`
		} `json:"bands"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Info{}, fmt.Errorf("decode gdalinfo output: %w", err)
	}
	if len(doc.Size) < 2 {
		return Info{}, fmt.Errorf("gdalinfo output had no raster size")
	}
	return Info{XSize: doc.Size[0], YSize: doc.Size[1], Bands: len(doc.Bands)}, nil
}

// WriteCSV writes the metadata table consumed by the upload commands. The
// first column keys rows by intended asset name.
func WriteCSV(infos []Info, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metadata csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id_no", "xsize", "ysize", "num_bands"}); err != nil {
		return err
	}
	for _, info := range infos {
		row := []string{
			info.Name,
			strconv.Itoa(info.XSize),
			strconv.Itoa(info.YSize),
			strconv.Itoa(info.Bands),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
