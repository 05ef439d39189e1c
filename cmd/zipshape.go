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

	"github.com/cartoflow/terraload/internal/zipshape"
)

func newZipshapeCmd() *cobra.Command {
	var (
		source string
		output string
	)

	cmd := &cobra.Command{
		Use:   "zipshape",
		Short: "Zip shapefile components per basename for table ingestion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, err := setupLogging(cmd.Name(), ""); err != nil {
				return err
			}
			if output == "" {
				output = source
			}

			groups, err := zipshape.Scan(source)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				return fmt.Errorf("no shapefiles found in %s", source)
			}

			archives, err := zipshape.ZipAll(groups, output)
			if err != nil {
				return err
			}
			slog.Info("Zipped shapefiles",
				slog.Int("groups", len(groups)),
				slog.Int("archives", len(archives)))
			for _, a := range archives {
				fmt.Fprintln(cmd.OutOrStdout(), a)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "directory holding shapefile components")
	cmd.Flags().StringVar(&output, "output", "", "directory for the archives (defaults to source)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func init() {
	rootCmd.AddCommand(newZipshapeCmd())
}
