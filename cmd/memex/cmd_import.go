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

	"github.com/spf13/cobra"

	"github.com/systemshift/memex/store/migrate"
)

func newImportCmd(repoFlag *string) *cobra.Command {
	var merge bool
	var prefix string
	var onConflict string

	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Import a tar archive into the repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var policy migrate.ConflictPolicy
			switch onConflict {
			case "skip":
				policy = migrate.Skip
			case "fail":
				policy = migrate.Fail
			default:
				return fmt.Errorf("bad --on-conflict value %q, want skip or fail", onConflict)
			}

			r, err := openRepo(repoFlag)
			if err != nil {
				return err
			}
			defer r.Close()

			in, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening archive: %w", err)
			}
			defer in.Close()

			result, err := migrate.Import(r, in, migrate.ImportOptions{
				OnConflict: policy,
				Merge:      merge,
				Prefix:     prefix,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d nodes (%d skipped), %d links (%d skipped)\n",
				result.NodesImported, result.NodesSkipped,
				result.LinksImported, result.LinksSkipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&merge, "merge", false, "allow importing into a non-empty repository")
	cmd.Flags().StringVar(&prefix, "prefix", "", "prefix for imported node ids")
	cmd.Flags().StringVar(&onConflict, "on-conflict", "skip", "conflict handling: skip or fail")
	return cmd
}
