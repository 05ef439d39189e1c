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
	"github.com/cartoflow/terraload/internal/gee"
	"github.com/cartoflow/terraload/internal/quota"
)

func newQuotaCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Report asset storage quota usage for a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if project == "" {
				project = cfg.Project
			}
			if project == "" {
				return fmt.Errorf("a project is required (--project or TERRALOAD_PROJECT)")
			}
			if _, _, err := setupLogging(cmd.Name(), ""); err != nil {
				return err
			}
			session, err := newSession(cfg)
			if err != nil {
				return err
			}
			client := gee.NewClient(cfg.BaseURL, project, session)
			ctx, cancel := handleSignals(cmd.Context())
			defer cancel()

			report, err := quota.Fetch(ctx, client, project)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "cloud project to report on")
	return cmd
}

func init() {
	rootCmd.AddCommand(newQuotaCmd())
}
