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

	"github.com/spf13/cobra"

	"github.com/cartoflow/terraload/internal/rasterinfo"
)

func newGetmetaCmd() *cobra.Command {
	var (
		source string
		output string
	)

	cmd := &cobra.Command{
		Use:   "getmeta",
		Short: "Write a raster metadata CSV (size and band count) via gdalinfo",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, err := setupLogging(cmd.Name(), ""); err != nil {
				return err
			}
			ctx, cancel := handleSignals(cmd.Context())
			defer cancel()

			infos, failures, err := rasterinfo.Inspect(ctx, source, nil)
			if err != nil {
				return err
			}
			for path, ferr := range failures {
				slog.Warn("Could not introspect raster",
					slog.String("file", path), slog.Any("error", ferr))
			}
			if len(infos) == 0 {
				return fmt.Errorf("no readable rasters in %s", source)
			}

			if err := rasterinfo.WriteCSV(infos, output); err != nil {
				return err
			}
			slog.Info("Wrote metadata CSV",
				slog.String("output", output),
				slog.Int("rows", len(infos)),
				slog.Int("unreadable", len(failures)))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "directory of rasters to introspect")
	cmd.Flags().StringVar(&output, "output", "", "metadata CSV to write")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func init() {
	rootCmd.AddCommand(newGetmetaCmd())
}
