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
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatsCmd(repoFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print repository statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(repoFlag)
			if err != nil {
				return err
			}
			defer r.Close()

			header := r.Header()
			info, err := os.Stat(r.Path())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:      %s\n", r.Path())
			fmt.Fprintf(out, "size:      %s\n", humanize.Bytes(uint64(info.Size())))
			fmt.Fprintf(out, "format:    %d.%d (%s)\n", header.Major, header.Minor, header.Creator)
			fmt.Fprintf(out, "created:   %s\n", time.Unix(header.Created, 0).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "modified:  %s\n", time.Unix(header.Modified, 0).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "nodes:     %d\n", header.NodeCount)
			fmt.Fprintf(out, "links:     %d\n", header.EdgeCount)
			stats, err := r.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "session:   %s\n", stats)
			return nil
		},
	}
}
