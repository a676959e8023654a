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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLinkCmd(repoFlag *string) *cobra.Command {
	var metaPairs []string

	cmd := &cobra.Command{
		Use:   "link <source> <target> <type>",
		Short: "Create a typed link between two nodes",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta := make(map[string]any)
			for _, pair := range metaPairs {
				key, value, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("bad --meta value %q, want key=value", pair)
				}
				meta[key] = value
			}

			r, err := openRepo(repoFlag)
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.AddLink(args[0], args[1], args[2], meta); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "linked %s -[%s]-> %s\n", args[0], args[2], args[1])
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&metaPairs, "meta", nil, "metadata key=value (repeatable)")
	return cmd
}

func newUnlinkCmd(repoFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <source> <target> <type>",
		Short: "Delete a link",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(repoFlag)
			if err != nil {
				return err
			}
			defer r.Close()

			return r.DeleteLink(args[0], args[1], args[2])
		},
	}
}

func newLinksCmd(repoFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "links <id>",
		Short: "List links touching a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(repoFlag)
			if err != nil {
				return err
			}
			defer r.Close()

			links, err := r.GetLinks(args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, link := range links {
				fmt.Fprintf(tw, "%s\t-[%s]->\t%s\t%s\n",
					link.Source, link.Type, link.Target,
					link.Created.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}
