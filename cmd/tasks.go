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
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cartoflow/terraload/config"
	"github.com/cartoflow/terraload/internal/gee"
	"github.com/cartoflow/terraload/internal/tasks"
)

func newTasksCmd() *cobra.Command {
	var (
		stateFilter string
		jobID       string
		cancelSel   string
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List, summarize, or cancel remote ingestion jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if _, _, err := setupLogging(cmd.Name(), ""); err != nil {
				return err
			}
			session, err := newSession(cfg)
			if err != nil {
				return err
			}
			client := gee.NewClient(cfg.BaseURL, cfg.Project, session)
			ctx, cancel := handleSignals(cmd.Context())
			defer cancel()
			out := cmd.OutOrStdout()

			if cancelSel != "" {
				n, err := tasks.Cancel(ctx, client, cancelSel)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "requested cancellation of %d jobs\n", n)
				return nil
			}

			if jobID != "" {
				job, err := tasks.Lookup(ctx, client, jobID)
				if err != nil {
					return err
				}
				printJobs(out, []gee.Job{job})
				return nil
			}

			jobs, err := tasks.List(ctx, client, gee.JobState(strings.ToUpper(stateFilter)))
			if err != nil {
				return err
			}
			printJobs(out, jobs)
			fmt.Fprintln(out)
			for _, sc := range tasks.Summarize(jobs) {
				fmt.Fprintf(out, "%s: %d\n", sc.State, sc.Count)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stateFilter, "state", "", "only show jobs in this state")
	cmd.Flags().StringVar(&jobID, "id", "", "look up one job by identifier")
	cmd.Flags().StringVar(&cancelSel, "cancel", "", "cancel jobs: all, running, pending, or a job id")
	return cmd
}

func printJobs(out io.Writer, jobs []gee.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tDESTINATION\tERROR")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ID, j.State, j.DestinationPath, j.Error)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(newTasksCmd())
}
