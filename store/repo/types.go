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

package repo

import "time"

// Version is the release version of this build, recorded in the
// repository header's creator field.
const Version = "0.4.0"

// Node is a typed graph node. Meta always carries a "chunks" list of
// hex chunk hashes whose payloads, concatenated in order, reproduce
// Content exactly.
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Content  []byte         `json:"content"`
	Meta     map[string]any `json:"meta"`
	Created  time.Time      `json:"created"`
	Modified time.Time      `json:"modified"`
}

// Link is a typed, directed relationship between two nodes. Links are
// stored as independent envelope records, not as adjacency structures.
type Link struct {
	Source   string         `json:"source"`
	Target   string         `json:"target"`
	Type     string         `json:"type"`
	Meta     map[string]any `json:"meta"`
	Created  time.Time      `json:"created"`
	Modified time.Time      `json:"modified"`
}

// Graph is the repository surface consumed by layers outside the
// storage engine (CLI, services, migration). Callers never touch the
// underlying file directly.
type Graph interface {
	AddNode(content []byte, nodeType string, meta map[string]any) (string, error)
	AddNodeWithID(id string, content []byte, nodeType string, meta map[string]any) error
	GetNode(id string) (*Node, error)
	DeleteNode(id string) error
	ListNodes() ([]string, error)
	GetContent(id string) ([]byte, error)

	AddLink(source, target, linkType string, meta map[string]any) error
	GetLinks(nodeID string) ([]*Link, error)
	DeleteLink(source, target, linkType string) error

	Close() error
}
