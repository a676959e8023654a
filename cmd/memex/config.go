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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// defaultRepoName is used when nothing selects a repository.
const defaultRepoName = "memex.mx"

// config is the ~/.memexrc file.
type config struct {
	Repo string `toml:"repo"`
}

// resolveRepoPath picks the repository file: the --repo flag wins, then
// the MEMEX_REPO environment variable, then the repo key in ~/.memexrc,
// then memex.mx in the working directory.
func resolveRepoPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("MEMEX_REPO"); env != "" {
		return env, nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		rcPath := filepath.Join(home, ".memexrc")
		var cfg config
		if _, err := toml.DecodeFile(rcPath, &cfg); err == nil && cfg.Repo != "" {
			return cfg.Repo, nil
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("reading %s: %w", rcPath, err)
		}
	}

	return defaultRepoName, nil
}
