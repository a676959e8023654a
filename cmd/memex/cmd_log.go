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

func newLogCmd(repoFlag *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the action history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(repoFlag)
			if err != nil {
				return err
			}
			defer r.Close()

			actions, err := r.History()
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(actions, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			for _, action := range actions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s", action.Timestamp.Format("2006-01-02 15:04:05"), action.Type)
				if id, ok := action.Payload["id"].(string); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s", id)
				}
				if src, ok := action.Payload["source"].(string); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %v", src, action.Payload["target"])
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print actions as JSON")
	return cmd
}
