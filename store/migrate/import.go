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

package migrate

import (
	"archive/tar"
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/systemshift/memex/store/repo"
)

// Import reads a tar archive (gzipped or plain, detected from the
// stream) into the graph. Nodes are applied before links so endpoint
// existence checks hold; links touching a skipped node are skipped
// with it.
func Import(g repo.Graph, r io.Reader, opts ImportOptions) (*Result, error) {
	if !opts.Merge {
		existing, err := g.ListNodes()
		if err != nil {
			return nil, fmt.Errorf("listing destination nodes: %w", err)
		}
		if len(existing) > 0 {
			return nil, ErrDestinationNotEmpty
		}
	}

	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	var in io.Reader = br
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		in = gz
	}
	tr := tar.NewReader(in)

	manifest, err := readManifest(tr)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	skipped := make(map[string]bool)
	var links []*repo.Link

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", hdr.Name, err)
		}

		switch {
		case strings.HasPrefix(hdr.Name, "nodes/"):
			var node repo.Node
			if err := json.Unmarshal(data, &node); err != nil {
				return nil, fmt.Errorf("unmarshaling %s: %w", hdr.Name, err)
			}
			if node.ID == "" {
				node.ID = strings.TrimSuffix(strings.TrimPrefix(hdr.Name, "nodes/"), ".json")
			}
			id := opts.Prefix + node.ID

			if _, err := g.GetNode(id); err == nil {
				if opts.OnConflict == Fail {
					return nil, fmt.Errorf("%w: %s", ErrNodeExists, id)
				}
				skipped[node.ID] = true
				result.NodesSkipped++
				continue
			}
			if err := g.AddNodeWithID(id, node.Content, node.Type, node.Meta); err != nil {
				return nil, fmt.Errorf("importing node %s: %w", id, err)
			}
			result.NodesImported++

		case strings.HasPrefix(hdr.Name, "edges/"):
			var link repo.Link
			if err := json.Unmarshal(data, &link); err != nil {
				return nil, fmt.Errorf("unmarshaling %s: %w", hdr.Name, err)
			}
			links = append(links, &link)
		}
	}

	for _, link := range links {
		if skipped[link.Source] || skipped[link.Target] {
			result.LinksSkipped++
			continue
		}
		source := opts.Prefix + link.Source
		target := opts.Prefix + link.Target
		if err := g.AddLink(source, target, link.Type, link.Meta); err != nil {
			return nil, fmt.Errorf("importing link %s -> %s: %w", source, target, err)
		}
		result.LinksImported++
	}

	logrus.Infof("imported %d/%d nodes and %d/%d links",
		result.NodesImported, manifest.Nodes, result.LinksImported, manifest.Edges)
	return result, nil
}

// readManifest requires the manifest as the archive's first regular
// entry and validates its version.
func readManifest(tr *tar.Reader) (*Manifest, error) {
	hdr, err := tr.Next()
	if err == io.EOF {
		return nil, ErrMissingManifest
	}
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	if hdr.Name != manifestName {
		return nil, fmt.Errorf("%w: first entry is %s", ErrMissingManifest, hdr.Name)
	}

	data, err := io.ReadAll(tr)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("unmarshaling manifest: %w", err)
	}
	if manifest.Version > ManifestVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedManifest, manifest.Version)
	}
	return &manifest, nil
}
