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

package uploader

import (
	"fmt"
	"strings"
)

// Failure identifies one permanently failed item for a later retry-failed
// invocation.
type Failure struct {
	DestinationPath string
	LastError       string
	Attempts        int
}

// Summary is the final accounting for one run.
type Summary struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	// Planned counts items a dry run would submit.
	Planned int

	Failures []Failure
}

// Ok reports whether every item ended Succeeded or Skipped. The process
// exits nonzero otherwise.
func (s Summary) Ok() bool { return s.Failed == 0 }

func (s Summary) String() string {
	var b strings.Builder
	if s.Planned > 0 {
		fmt.Fprintf(&b, "planned %d of %d items (%d already done)",
			s.Planned, s.Total, s.Skipped)
		return b.String()
	}
	fmt.Fprintf(&b, "%d items: %d succeeded, %d skipped, %d failed",
		s.Total, s.Succeeded, s.Skipped, s.Failed)
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "\n  failed %s (attempts=%d): %s",
			f.DestinationPath, f.Attempts, f.LastError)
	}
	return b.String()
}
