// Copyright 2026 The Memex Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemshift/memex/store/migrate"
)

func newExportCmd(repoFlag *string) *cobra.Command {
	var gzipFlag bool

	cmd := &cobra.Command{
		Use:   "export <archive>",
		Short: "Export the graph to a tar archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(repoFlag)
			if err != nil {
				return err
			}
			defer r.Close()

			out, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("creating archive: %w", err)
			}
			defer out.Close()

			opts := migrate.ExportOptions{
				Gzip:   gzipFlag || strings.HasSuffix(args[0], ".gz"),
				Source: r.Path(),
			}
			if err := migrate.Export(r, out, opts); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&gzipFlag, "gzip", false, "gzip the archive (implied by a .gz name)")
	return cmd
}
