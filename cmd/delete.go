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

	"github.com/spf13/cobra"

	"github.com/cartoflow/terraload/config"
	"github.com/cartoflow/terraload/internal/assetpath"
	"github.com/cartoflow/terraload/internal/gee"
	"github.com/cartoflow/terraload/internal/remover"
)

func newDeleteCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an asset and everything inside it recursively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if _, _, err := setupLogging(cmd.Name(), ""); err != nil {
				return err
			}

			path, err := assetpath.Normalize(id)
			if err != nil {
				return err
			}

			session, err := newSession(cfg)
			if err != nil {
				return err
			}
			client := gee.NewClient(cfg.BaseURL, cfg.Project, session)
			ctx, cancel := handleSignals(cmd.Context())
			defer cancel()

			n, err := remover.Delete(ctx, client, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d assets under %s\n", n, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "asset path to delete, containers are emptied recursively")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func init() {
	rootCmd.AddCommand(newDeleteCmd())
}
