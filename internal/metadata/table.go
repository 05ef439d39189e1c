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

// Package metadata loads the per-asset property table that accompanies a
// batch upload. The table is a CSV keyed by intended asset name; the
// remaining columns become asset properties on the ingestion request.
package metadata

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// System properties the catalog understands. Anything else must be a plain
// word property.
var systemProperties = map[string]struct{}{
	"system:index":        {},
	"system:description":  {},
	"system:provider_url": {},
	"system:tags":         {},
	"system:time_end":     {},
	"system:time_start":   {},
	"system:title":        {},
}

// Entry holds the properties for one asset.
type Entry struct {
	AssetID    string
	Properties map[string]any
}

// TimeBounds extracts system:time_start / system:time_end as epoch
// milliseconds, removing them from a copy of the properties. The catalog
// wants them as top-level timestamps on the ingestion request, not as
// free-form properties.
func (e *Entry) TimeBounds() (startMS, endMS int64, props map[string]any) {
	props = make(map[string]any, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	if v, ok := props["system:time_start"]; ok {
		startMS = toMillis(v)
		delete(props, "system:time_start")
	}
	if v, ok := props["system:time_end"]; ok {
		endMS = toMillis(v)
		delete(props, "system:time_end")
	}
	delete(props, "system:index")
	return startMS, endMS, props
}

// Table is the full metadata collection keyed by asset name.
type Table struct {
	entries map[string]*Entry
	folded  map[string]string // lowercased asset id -> canonical id
}

// Lookup finds the entry for an asset name, first by exact match and then
// case-insensitively.
func (t *Table) Lookup(assetID string) (*Entry, bool) {
	if t == nil {
		return nil, false
	}
	if e, ok := t.entries[assetID]; ok {
		return e, true
	}
	if canonical, ok := t.folded[strings.ToLower(assetID)]; ok {
		return t.entries[canonical], true
	}
	return nil, false
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// AssetIDs returns all keyed asset names.
func (t *Table) AssetIDs() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	return ids
}

// LoadCSV reads a metadata table. The first column is the asset identifier
// unless idColumn names another header. Rows with an empty identifier are
// skipped with a warning; malformed headers or values fail the whole load so
// a bad table is caught before any submission happens.
func LoadCSV(path string, idColumn string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata table: %w", err)
	}
	defer f.Close()
	return parseCSV(f, path, idColumn)
}

func parseCSV(r io.Reader, path, idColumn string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("metadata table %s has no header: %w", path, err)
	}

	idIdx := 0
	if idColumn != "" {
		idIdx = -1
		for i, col := range header {
			if col == idColumn {
				idIdx = i
				break
			}
		}
		if idIdx < 0 {
			return nil, fmt.Errorf("id column %q not found in %s (columns: %s)", idColumn, path, strings.Join(header, ", "))
		}
	}

	var merr *multierror.Error
	for i, col := range header {
		if i == idIdx {
			continue
		}
		if !validPropertyKey(col) {
			merr = multierror.Append(merr, fmt.Errorf("invalid column name %q: must be a system property or contain only letters, digits, and underscores", col))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}

	t := &Table{
		entries: make(map[string]*Entry),
		folded:  make(map[string]string),
	}
	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("metadata table %s row %d: %w", path, rowNum, err)
		}
		if idIdx >= len(record) || record[idIdx] == "" {
			slog.Warn("Skipping metadata row with empty asset id", slog.String("path", path), slog.Int("row", rowNum))
			continue
		}
		assetID := record[idIdx]

		props := make(map[string]any)
		for i, value := range record {
			if i == idIdx || i >= len(header) || value == "" {
				continue
			}
			props[header[i]] = parseValue(value)
		}
		t.entries[assetID] = &Entry{AssetID: assetID, Properties: props}
		t.folded[strings.ToLower(assetID)] = assetID
	}
	return t, nil
}

// MissingFor returns the asset names that have no metadata row.
func (t *Table) MissingFor(assetIDs []string) []string {
	var missing []string
	for _, id := range assetIDs {
		if _, ok := t.Lookup(id); !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func validPropertyKey(key string) bool {
	if _, ok := systemProperties[key]; ok {
		return true
	}
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

// parseValue converts a CSV cell to the narrowest useful type: integer,
// float, bool, epoch milliseconds from an ISO date, or the raw string.
func parseValue(value string) any {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if ms, ok := parseISOMillis(value); ok {
		return ms
	}
	return value
}

func parseISOMillis(value string) (int64, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UnixMilli(), true
		}
	}
	return 0, false
}

func toMillis(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		if ms, ok := parseISOMillis(n); ok {
			return ms
		}
		if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
