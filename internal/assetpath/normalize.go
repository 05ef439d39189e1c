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

// Package assetpath maps user-supplied destination strings to the canonical
// asset path form the remote catalog expects. It is pure string work: no
// remote lookups happen here.
package assetpath

import (
	"fmt"
	"strings"
)

const (
	// LegacyProject is the project that hosts legacy user roots.
	LegacyProject = "earthengine-legacy"

	// MaxSegmentLen is the catalog's per-segment name length limit.
	MaxSegmentLen = 100
)

// InvalidPathError reports a destination string that does not parse into a
// recognized legacy or cloud-project form.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid asset path %q: %s", e.Path, e.Reason)
}

// InvalidNameError reports a path segment that violates catalog naming rules.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid asset name %q: %s", e.Name, e.Reason)
}

// ValidateName checks a single path segment against the catalog's character
// rules: letters, digits, hyphen, underscore only, no leading digit, and a
// bounded length.
func ValidateName(name string) error {
	if name == "" {
		return &InvalidNameError{Name: name, Reason: "empty segment"}
	}
	if len(name) > MaxSegmentLen {
		return &InvalidNameError{Name: name, Reason: fmt.Sprintf("longer than %d characters", MaxSegmentLen)}
	}
	if name[0] >= '0' && name[0] <= '9' {
		return &InvalidNameError{Name: name, Reason: "must not start with a digit"}
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return &InvalidNameError{Name: name, Reason: fmt.Sprintf("character %q not allowed", r)}
		}
	}
	return nil
}

// Normalize maps a destination string to its canonical remote form:
//
//	users/<user>/<rest>      -> projects/earthengine-legacy/assets/users/<user>/<rest>
//	projects/<p>/<rest>      -> projects/<p>/assets/<rest>
//	projects/<p>/assets/...  -> unchanged
//
// Segments below the assets root are validated against catalog naming rules.
// Normalizing an already-canonical path returns it unchanged.
func Normalize(dest string) (string, error) {
	dest = strings.Trim(dest, "/")
	if dest == "" {
		return "", &InvalidPathError{Path: dest, Reason: "empty path"}
	}
	parts := strings.Split(dest, "/")

	switch parts[0] {
	case "users":
		if len(parts) < 2 {
			return "", &InvalidPathError{Path: dest, Reason: "legacy path needs a user segment"}
		}
		canonical := fmt.Sprintf("projects/%s/assets/%s", LegacyProject, dest)
		if err := validateBelowAssets(strings.Split(canonical, "/")); err != nil {
			return "", err
		}
		return canonical, nil
	case "projects":
		if len(parts) < 3 {
			return "", &InvalidPathError{Path: dest, Reason: "cloud path needs a project and an asset segment"}
		}
		if parts[2] != "assets" {
			parts = append(parts[:2], append([]string{"assets"}, parts[2:]...)...)
		}
		if len(parts) < 4 {
			return "", &InvalidPathError{Path: dest, Reason: "cloud path needs an asset segment below assets"}
		}
		if err := validateBelowAssets(parts); err != nil {
			return "", err
		}
		return strings.Join(parts, "/"), nil
	default:
		return "", &InvalidPathError{Path: dest, Reason: "must start with users/ or projects/"}
	}
}

// Join appends an asset name to an already-normalized root, validating the
// name first.
func Join(root, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return strings.Trim(root, "/") + "/" + name, nil
}

// validateBelowAssets checks every segment after the "assets" marker. The
// legacy "users/<user>" prefix below assets is part of the grammar, not a
// user-chosen name, so the user segment is checked with the same rules.
func validateBelowAssets(parts []string) error {
	start := -1
	for i, p := range parts {
		if p == "assets" {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}
	for _, seg := range parts[start:] {
		if seg == "users" {
			continue
		}
		if err := ValidateName(seg); err != nil {
			return err
		}
	}
	return nil
}
