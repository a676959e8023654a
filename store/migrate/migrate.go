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

// Package migrate moves graphs between repositories through tar
// archives. An archive holds a manifest, one JSON document per node,
// and one per link; content travels inside the node documents, so an
// archive is self-contained.
package migrate

import (
	"errors"
	"time"
)

// ManifestVersion is the archive format version this build writes.
const ManifestVersion = 1

// manifestName is the first entry of every archive.
const manifestName = "manifest.json"

var (
	ErrMissingManifest     = errors.New("archive has no manifest")
	ErrUnsupportedManifest = errors.New("unsupported archive version")
	ErrDestinationNotEmpty = errors.New("destination repository is not empty")
	ErrNodeExists          = errors.New("node already exists")
)

// Manifest describes an archive. It is always the archive's first
// entry so readers can validate before unpacking anything.
type Manifest struct {
	Version int       `json:"version"`
	Created time.Time `json:"created"`
	Nodes   int       `json:"nodes"`
	Edges   int       `json:"edges"`
	Source  string    `json:"source"`
}

// ConflictPolicy selects what Import does when an incoming node id
// already exists in the destination.
type ConflictPolicy int

const (
	// Skip drops the incoming node and every link touching it.
	Skip ConflictPolicy = iota
	// Fail aborts the import on the first conflict.
	Fail
)

// ExportOptions control archive writing.
type ExportOptions struct {
	// Gzip compresses the archive stream.
	Gzip bool
	// Source labels the archive's origin in the manifest. Empty means
	// the repository path is used.
	Source string
}

// ImportOptions control archive reading.
type ImportOptions struct {
	// OnConflict selects conflict handling for existing node ids.
	OnConflict ConflictPolicy
	// Merge allows importing into a non-empty repository.
	Merge bool
	// Prefix is prepended to every imported node id and to link
	// endpoints, keeping imported subgraphs distinguishable.
	Prefix string
}

// Result summarizes an import.
type Result struct {
	NodesImported int
	NodesSkipped  int
	LinksImported int
	LinksSkipped  int
}
