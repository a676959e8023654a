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

	"github.com/spf13/cobra"
)

func newVerifyCmd(repoFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check chunk record integrity and action log linkage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(repoFlag)
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.VerifyStore(cmd.Context()); err != nil {
				return fmt.Errorf("store verification failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store: ok")

			ok, err := r.VerifyHistory()
			if err != nil {
				return fmt.Errorf("verifying history: %w", err)
			}
			if !ok {
				return fmt.Errorf("action log hash chain is broken")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history: ok")
			return nil
		},
	}
}
