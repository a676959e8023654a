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
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/systemshift/memex/store/repo"
)

// Export writes the entire graph to w as a tar archive: the manifest
// first, then nodes/<id>.json, then edges/<n>.json. Each link is
// written once, keyed by its source node.
func Export(g repo.Graph, w io.Writer, opts ExportOptions) error {
	ids, err := g.ListNodes()
	if err != nil {
		return fmt.Errorf("listing nodes: %w", err)
	}

	var links []*repo.Link
	for _, id := range ids {
		nodeLinks, err := g.GetLinks(id)
		if err != nil {
			return fmt.Errorf("listing links for %s: %w", id, err)
		}
		for _, link := range nodeLinks {
			if link.Source == id {
				links = append(links, link)
			}
		}
	}

	out := w
	if opts.Gzip {
		gz := gzip.NewWriter(w)
		defer gz.Close()
		out = gz
	}
	tw := tar.NewWriter(out)
	defer tw.Close()

	manifest := Manifest{
		Version: ManifestVersion,
		Created: time.Now().UTC(),
		Nodes:   len(ids),
		Edges:   len(links),
		Source:  opts.Source,
	}
	if err := writeJSONEntry(tw, manifestName, &manifest); err != nil {
		return err
	}

	for _, id := range ids {
		node, err := g.GetNode(id)
		if err != nil {
			return fmt.Errorf("getting node %s: %w", id, err)
		}
		if err := writeJSONEntry(tw, "nodes/"+id+".json", node); err != nil {
			return err
		}
	}

	for i, link := range links {
		name := fmt.Sprintf("edges/%d.json", i)
		if err := writeJSONEntry(tw, name, link); err != nil {
			return err
		}
	}

	logrus.Infof("exported %d nodes and %d links", len(ids), len(links))
	return tw.Flush()
}

func writeJSONEntry(tw *tar.Writer, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: time.Now().UTC(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
