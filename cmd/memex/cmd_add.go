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
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newAddCmd(repoFlag *string) *cobra.Command {
	var nodeType string
	var nodeID string
	var metaPairs []string

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Store a file as a node (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content []byte
			var err error
			meta := make(map[string]any)

			if args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(args[0])
				meta["filename"] = filepath.Base(args[0])
			}
			if err != nil {
				return fmt.Errorf("reading content: %w", err)
			}

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

			if nodeID != "" {
				if err := r.AddNodeWithID(nodeID, content, nodeType, meta); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), nodeID)
				return nil
			}

			id, err := r.AddNode(content, nodeType, meta)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeType, "type", "file", "node type")
	cmd.Flags().StringVar(&nodeID, "id", "", "store under this id instead of the content hash")
	cmd.Flags().StringArrayVar(&metaPairs, "meta", nil, "metadata key=value (repeatable)")
	return cmd
}
