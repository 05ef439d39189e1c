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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cartoflow/terraload/internal/gee"
)

func newCookiesCmd() *cobra.Command {
	var (
		input  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Store the browser cookie list used for the staging session",
		Long: `Reads a JSON array of {"name": ..., "value": ...} objects, exported from a
browser session on the platform's code editor, and stores it for the
signed-URL staging transport. Capturing the cookies is done in the browser;
this command only persists them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var data []byte
			var err error
			if input == "" || input == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(input)
			}
			if err != nil {
				return fmt.Errorf("read cookie list: %w", err)
			}

			var cookies []gee.Cookie
			if err := json.Unmarshal(data, &cookies); err != nil {
				return fmt.Errorf("decode cookie list: %w", err)
			}
			if len(cookies) == 0 {
				return fmt.Errorf("cookie list is empty")
			}

			if err := gee.SaveCookies(output, cookies); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d cookies in %s\n", len(cookies), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "-", "cookie JSON file, or - for stdin")
	cmd.Flags().StringVar(&output, "output", gee.DefaultCookieFile, "cookie store to write")
	return cmd
}

func init() {
	rootCmd.AddCommand(newCookiesCmd())
}
