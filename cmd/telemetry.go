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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	slogmulti "github.com/samber/slog-multi"
)

// setupLogging configures slog for one command invocation: a text handler on
// stdout, plus a per-run JSON log file in runDir when one is given. The
// returned run ID tags all records and names the log file; the closer flushes
// the file.
func setupLogging(servicename, runDir string) (runID string, closer func() error, err error) {
	runID = ulid.Make().String()
	closer = func() error { return nil }

	// Configure slog level based on DEBUG environment variables
	var opts *slog.HandlerOptions
	if os.Getenv("DEBUG") != "" || os.Getenv("TERRALOAD_DEBUG") != "" {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	handler := slog.Handler(slog.NewTextHandler(os.Stdout, opts))
	if runDir != "" {
		logPath := filepath.Join(runDir, fmt.Sprintf("terraload-%s.log.json", runID))
		f, ferr := os.Create(logPath)
		if ferr != nil {
			return "", nil, fmt.Errorf("create run log %s: %w", logPath, ferr)
		}
		handler = slogmulti.Fanout(
			handler,
			slog.NewJSONHandler(f, opts),
		)
		closer = f.Close
	}

	slog.SetDefault(slog.New(handler).With(
		slog.String("service", servicename),
		slog.String("runID", runID),
	))
	return runID, closer, nil
}
