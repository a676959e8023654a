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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/systemshift/memex/store/repo"
)

func main() {
	root := &cobra.Command{
		Use:           "memex",
		Short:         "Content-addressed graph storage in a single file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var repoFlag string
	var verbose bool
	root.PersistentFlags().StringVar(&repoFlag, "repo", "", "repository file (overrides MEMEX_REPO and ~/.memexrc)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logrus.SetLevel(logrus.WarnLevel)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(&repoFlag))
	root.AddCommand(newAddCmd(&repoFlag))
	root.AddCommand(newGetCmd(&repoFlag))
	root.AddCommand(newRmCmd(&repoFlag))
	root.AddCommand(newLsCmd(&repoFlag))
	root.AddCommand(newLinkCmd(&repoFlag))
	root.AddCommand(newUnlinkCmd(&repoFlag))
	root.AddCommand(newLinksCmd(&repoFlag))
	root.AddCommand(newExportCmd(&repoFlag))
	root.AddCommand(newImportCmd(&repoFlag))
	root.AddCommand(newLogCmd(&repoFlag))
	root.AddCommand(newVerifyCmd(&repoFlag))
	root.AddCommand(newCompactCmd(&repoFlag))
	root.AddCommand(newStatsCmd(&repoFlag))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "memex %s\n", repo.Version)
		},
	}
}

// openRepo resolves the repository path and opens it. Commands share
// this so path resolution stays uniform.
func openRepo(repoFlag *string) (*repo.Repository, error) {
	path, err := resolveRepoPath(*repoFlag)
	if err != nil {
		return nil, err
	}
	return repo.Open(path)
}
