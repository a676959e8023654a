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

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCompactCmd(repoFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the repository, reclaiming dereferenced chunk bytes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(repoFlag)
			if err != nil {
				return err
			}
			defer r.Close()

			reclaimed, err := r.Compact()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %s\n", humanize.Bytes(uint64(reclaimed)))
			return nil
		},
	}
}
