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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd(repoFlag *string) *cobra.Command {
	var contentOnly bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(repoFlag)
			if err != nil {
				return err
			}
			defer r.Close()

			node, err := r.GetNode(args[0])
			if err != nil {
				return err
			}

			if contentOnly {
				_, err := cmd.OutOrStdout().Write(node.Content)
				return err
			}

			data, err := json.MarshalIndent(node, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&contentOnly, "content", false, "print raw content only")
	return cmd
}
