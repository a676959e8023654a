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

// Package repo implements the repository: a single file holding a
// fixed header and every chunk record, composed with the hash-chained
// action log. It exposes node and link CRUD and is the sole writer of
// the header.
package repo

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/systemshift/memex/store/chunks"
	"github.com/systemshift/memex/store/journal"
)

var (
	ErrRepositoryClosed = errors.New("repository is closed")
	ErrNodeNotFound     = errors.New("node not found")
)

// Repository is an open memex repository. All mutations are serialized
// through a coarse lock; reads that do not touch the catalogs may run
// concurrently. Every mutation is durable (synced) before it returns,
// and is recorded in the action log; a failure to record aborts the
// mutation.
//
// There is a window between the data write and the log append in which
// a crash leaves the store ahead of the log. This is an accepted
// durability gap, not silently papered over.
type Repository struct {
	path    string
	file    *os.File
	header  Header
	cs      *chunks.ChunkStore
	journal *journal.Journal

	mu     sync.RWMutex
	closed bool
	nodes  map[string]struct{}
	links  []*linkEntry
}

// linkEntry is the in-memory link catalog entry: the stored envelope's
// address plus the decoded link. The catalog is rebuilt by scanning
// the chunk store at open and maintained transactionally with link
// creation and deletion, so link queries never re-scan the store.
type linkEntry struct {
	addr []byte
	link Link
}

// Create creates a new repository file at path and opens it.
func Create(path string) (*Repository, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating repository file: %w", err)
	}

	now := time.Now().UTC().Unix()
	header := Header{
		Major:    FormatMajor,
		Minor:    FormatMinor,
		Creator:  "memex/" + Version,
		Created:  now,
		Modified: now,
	}
	if _, err := file.WriteAt(header.encode(), 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("syncing header: %w", err)
	}

	return finishOpen(path, file, header)
}

// Open opens an existing repository, validating the magic constant and
// format version: the major version must match this build, the minor
// version is forward-tolerant.
func Open(path string) (*Repository, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening repository file: %w", err)
	}

	buf := make([]byte, HeaderSize)
	if _, err := file.ReadAt(buf, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := decodeHeader(buf)
	if err != nil {
		file.Close()
		return nil, err
	}

	return finishOpen(path, file, header)
}

func finishOpen(path string, file *os.File, header Header) (*Repository, error) {
	jrnl, err := journal.Open(path)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("opening action log: %w", err)
	}

	cs, err := chunks.NewStore(path, HeaderSize)
	if err != nil {
		jrnl.Close()
		file.Close()
		return nil, fmt.Errorf("opening chunk store: %w", err)
	}

	r := &Repository{
		path:    path,
		file:    file,
		header:  header,
		cs:      cs,
		journal: jrnl,
		nodes:   make(map[string]struct{}),
	}
	if err := r.buildCatalogs(); err != nil {
		r.cs.Close()
		r.journal.Close()
		r.file.Close()
		return nil, fmt.Errorf("rebuilding catalogs: %w", err)
	}

	return r, nil
}

// buildCatalogs classifies every stored entry as a node envelope, a
// link envelope, or opaque content, restoring the node and link
// catalogs and rebinding caller-chosen node ids (which the chunk file
// format does not persist; the envelope itself carries them).
func (r *Repository) buildCatalogs() error {
	entries, err := r.cs.Entries()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		addr := make([]byte, len(entry.Hash))
		copy(addr, entry.Hash[:])
		payload, err := r.cs.Get([][]byte{addr})
		if err != nil {
			return err
		}

		var probe struct {
			ID     string         `json:"id"`
			Source string         `json:"source"`
			Target string         `json:"target"`
			Meta   map[string]any `json:"meta"`
		}
		if err := json.Unmarshal(payload, &probe); err != nil {
			continue // opaque content chunk
		}

		switch {
		case probe.Source != "" && probe.Target != "":
			var link Link
			if err := json.Unmarshal(payload, &link); err != nil {
				continue
			}
			r.links = append(r.links, &linkEntry{addr: addr, link: link})

		case probe.Meta != nil && probe.Meta["chunks"] != nil:
			id := probe.ID
			if id == "" {
				// Content-addressed node: its id is the hex of its
				// envelope's chunk address.
				id = entry.Hash.String()
			} else if err := r.cs.Bind(id, addr); err != nil {
				return err
			}
			r.nodes[id] = struct{}{}
		}
	}

	sort.Slice(r.links, func(i, j int) bool {
		return r.links[i].link.Created.Before(r.links[j].link.Created)
	})

	logrus.Debugf("opened %s: %d nodes, %d links", r.path, len(r.nodes), len(r.links))
	return nil
}

// Path returns the repository file path.
func (r *Repository) Path() string {
	return r.path
}

// Header returns a copy of the current repository header.
func (r *Repository) Header() Header {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.header
}

// AddNode stores content through the chunk store, wraps it in a node
// envelope (whose metadata records the ordered content chunk hashes),
// stores the envelope, and returns the node's id: the hex of the
// envelope's first chunk address.
func (r *Repository) AddNode(content []byte, nodeType string, meta map[string]any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrRepositoryClosed
	}

	node, data, err := r.storeNodePayload(content, nodeType, meta)
	if err != nil {
		return "", err
	}

	envAddrs, err := r.cs.Put(data)
	if err != nil {
		return "", fmt.Errorf("storing node: %w", err)
	}
	if len(envAddrs) == 0 {
		return "", fmt.Errorf("no chunks generated for node")
	}
	id := hex.EncodeToString(envAddrs[0])
	r.nodes[id] = struct{}{}

	header := r.header
	header.NodeCount++
	header.Modified = time.Now().UTC().Unix()
	if err := r.persistHeader(header); err != nil {
		return "", err
	}

	if err := r.journal.Record(journal.ActionAddNode, map[string]any{
		"id":   id,
		"type": nodeType,
		"meta": node.Meta,
	}, data); err != nil {
		return "", fmt.Errorf("recording action: %w", err)
	}

	return id, nil
}

// AddNodeWithID stores a node under a caller-chosen id instead of a
// content-derived one.
func (r *Repository) AddNodeWithID(id string, content []byte, nodeType string, meta map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRepositoryClosed
	}

	node, data, err := r.storeNodePayload(content, nodeType, meta)
	if err != nil {
		return err
	}
	node.ID = id
	data, err = json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshaling node: %w", err)
	}

	if err := r.cs.PutWithID(id, data); err != nil {
		return fmt.Errorf("storing node: %w", err)
	}
	r.nodes[id] = struct{}{}

	header := r.header
	header.NodeCount++
	header.Modified = time.Now().UTC().Unix()
	if err := r.persistHeader(header); err != nil {
		return err
	}

	if err := r.journal.Record(journal.ActionAddNode, map[string]any{
		"id":   id,
		"type": nodeType,
		"meta": node.Meta,
	}, data); err != nil {
		return fmt.Errorf("recording action: %w", err)
	}

	return nil
}

// storeNodePayload stores content chunks and builds the serialized
// node envelope. The envelope id is left empty for content-addressed
// nodes and filled by the caller for named ones.
func (r *Repository) storeNodePayload(content []byte, nodeType string, meta map[string]any) (*Node, []byte, error) {
	chunkAddrs, err := r.cs.Put(content)
	if err != nil {
		return nil, nil, fmt.Errorf("storing content: %w", err)
	}

	metaCopy, err := copyMeta(meta)
	if err != nil {
		return nil, nil, err
	}
	chunkHashes := make([]string, len(chunkAddrs))
	for i, addr := range chunkAddrs {
		chunkHashes[i] = hex.EncodeToString(addr)
	}
	metaCopy["chunks"] = chunkHashes

	now := time.Now().UTC()
	node := &Node{
		Type:     nodeType,
		Content:  content,
		Meta:     metaCopy,
		Created:  now,
		Modified: now,
	}
	data, err := json.Marshal(node)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling node: %w", err)
	}
	return node, data, nil
}

// GetNode retrieves a node by id. A stored payload that is not a valid
// envelope degrades gracefully to an opaque node wrapping the raw
// bytes, so pre-envelope values remain retrievable.
func (r *Repository) GetNode(id string) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRepositoryClosed
	}
	return r.getNode(id)
}

func (r *Repository) getNode(id string) (*Node, error) {
	data, err := r.cs.Get([][]byte{[]byte(id)})
	if err != nil {
		return nil, fmt.Errorf("getting node: %w", err)
	}

	var node Node
	if err := json.Unmarshal(data, &node); err != nil {
		node = Node{Content: data}
	}
	node.ID = id
	if node.Meta == nil {
		node.Meta = make(map[string]any)
	}
	return &node, nil
}

// GetContent returns the raw content stored at a hex chunk address.
func (r *Repository) GetContent(id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRepositoryClosed
	}

	addr, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("parsing content ID: %w", err)
	}
	return r.cs.Get([][]byte{addr})
}

// ListNodes returns all node ids in lexical order.
func (r *Repository) ListNodes() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRepositoryClosed
	}

	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteNode removes a node: every link touching it first, then its
// content chunks, then the envelope entry itself. Chunk bytes are
// dereferenced, not reclaimed.
func (r *Repository) DeleteNode(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRepositoryClosed
	}

	node, err := r.getNode(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	for _, entry := range r.linksTouching(id) {
		if err := r.deleteLinkLocked(entry.link.Source, entry.link.Target, entry.link.Type); err != nil {
			return fmt.Errorf("deleting link: %w", err)
		}
	}

	if chunkList, ok := node.Meta["chunks"].([]any); ok {
		for _, c := range chunkList {
			chunkStr, ok := c.(string)
			if !ok {
				continue
			}
			addr, err := hex.DecodeString(chunkStr)
			if err != nil {
				continue
			}
			if err := r.cs.Delete([][]byte{addr}); err != nil {
				return fmt.Errorf("deleting content chunk: %w", err)
			}
		}
	}

	if err := r.cs.Delete([][]byte{[]byte(id)}); err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	delete(r.nodes, id)

	header := r.header
	if header.NodeCount > 0 {
		header.NodeCount--
	}
	header.Modified = time.Now().UTC().Unix()
	if err := r.persistHeader(header); err != nil {
		return err
	}

	if err := r.journal.Record(journal.ActionDeleteNode, map[string]any{
		"id": id,
	}, nil); err != nil {
		return fmt.Errorf("recording action: %w", err)
	}

	return nil
}

// AddLink creates a typed link between two existing nodes.
func (r *Repository) AddLink(source, target, linkType string, meta map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRepositoryClosed
	}

	if _, err := r.getNode(source); err != nil {
		return fmt.Errorf("getting source node: %w", err)
	}
	if _, err := r.getNode(target); err != nil {
		return fmt.Errorf("getting target node: %w", err)
	}

	metaCopy, err := copyMeta(meta)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	link := Link{
		Source:   source,
		Target:   target,
		Type:     linkType,
		Meta:     metaCopy,
		Created:  now,
		Modified: now,
	}

	data, err := json.Marshal(&link)
	if err != nil {
		return fmt.Errorf("marshaling link: %w", err)
	}
	addrs, err := r.cs.Put(data)
	if err != nil {
		return fmt.Errorf("storing link: %w", err)
	}
	r.links = append(r.links, &linkEntry{addr: addrs[0], link: link})

	header := r.header
	header.EdgeCount++
	header.Modified = time.Now().UTC().Unix()
	if err := r.persistHeader(header); err != nil {
		return err
	}

	if err := r.journal.Record(journal.ActionAddLink, map[string]any{
		"source": source,
		"target": target,
		"type":   linkType,
		"meta":   metaCopy,
	}, data); err != nil {
		return fmt.Errorf("recording action: %w", err)
	}

	return nil
}

// GetLinks returns every link with the node as source or target,
// ordered by creation time with ties broken by the numeric "order"
// metadata field.
func (r *Repository) GetLinks(nodeID string) ([]*Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRepositoryClosed
	}

	var links []*Link
	for _, entry := range r.linksTouching(nodeID) {
		link := entry.link
		links = append(links, &link)
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].Created.Equal(links[j].Created) {
			orderI, okI := links[i].Meta["order"].(float64)
			orderJ, okJ := links[j].Meta["order"].(float64)
			if okI && okJ {
				return orderI < orderJ
			}
		}
		return links[i].Created.Before(links[j].Created)
	})

	return links, nil
}

// DeleteLink removes the link matching (source, target, type). It is a
// no-op success when no such link exists.
func (r *Repository) DeleteLink(source, target, linkType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRepositoryClosed
	}
	return r.deleteLinkLocked(source, target, linkType)
}

func (r *Repository) deleteLinkLocked(source, target, linkType string) error {
	idx := -1
	for i, entry := range r.links {
		if entry.link.Source == source && entry.link.Target == target && entry.link.Type == linkType {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	if err := r.cs.Delete([][]byte{r.links[idx].addr}); err != nil {
		return fmt.Errorf("deleting link: %w", err)
	}
	r.links = append(r.links[:idx], r.links[idx+1:]...)

	header := r.header
	if header.EdgeCount > 0 {
		header.EdgeCount--
	}
	header.Modified = time.Now().UTC().Unix()
	if err := r.persistHeader(header); err != nil {
		return err
	}

	if err := r.journal.Record(journal.ActionDeleteLink, map[string]any{
		"source": source,
		"target": target,
		"type":   linkType,
	}, nil); err != nil {
		return fmt.Errorf("recording action: %w", err)
	}

	return nil
}

func (r *Repository) linksTouching(nodeID string) []*linkEntry {
	var touching []*linkEntry
	for _, entry := range r.links {
		if entry.link.Source == nodeID || entry.link.Target == nodeID {
			touching = append(touching, entry)
		}
	}
	return touching
}

// History returns the full action log in append order.
func (r *Repository) History() ([]*journal.Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRepositoryClosed
	}
	return r.journal.History()
}

// VerifyHistory replays the action log, checking hash chain linkage.
func (r *Repository) VerifyHistory() (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false, ErrRepositoryClosed
	}
	return r.journal.Verify()
}

// VerifyStore validates every live chunk record's header checksum and
// payload digest.
func (r *Repository) VerifyStore(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRepositoryClosed
	}
	return r.cs.Verify(ctx)
}

// Stats returns the chunk store's operation metrics.
func (r *Repository) Stats() (*chunks.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRepositoryClosed
	}
	return r.cs.Stats(), nil
}

// Compact rewrites live chunk records to a fresh file and swaps it in,
// reclaiming dereferenced bytes. The repository header is carried over
// verbatim. Explicit maintenance only.
func (r *Repository) Compact() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrRepositoryClosed
	}

	reclaimed, err := r.cs.Compact()
	if err != nil {
		return 0, err
	}

	// The store file was replaced; reopen our header handle on it.
	old := r.file
	r.file, err = os.OpenFile(r.path, os.O_RDWR, 0644)
	if err != nil {
		return reclaimed, fmt.Errorf("reopening repository file: %w", err)
	}
	old.Close()

	return reclaimed, nil
}

// Close syncs and closes the chunk store, action log, and repository
// file. The repository is terminal afterward.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.cs.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	if err := r.journal.Close(); err != nil {
		return fmt.Errorf("closing action log: %w", err)
	}
	return r.file.Close()
}

// persistHeader writes h at offset 0 and adopts it as the current
// header only once it is durable, so a failed write cannot leave the
// in-memory counters ahead of the file.
func (r *Repository) persistHeader(h Header) error {
	if _, err := r.file.WriteAt(h.encode(), 0); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("syncing header: %w", err)
	}
	r.header = h
	return nil
}

// copyMeta deep-copies caller metadata through a JSON round trip so
// later caller mutations cannot alias stored state. nil maps become
// empty ones.
func copyMeta(meta map[string]any) (map[string]any, error) {
	if meta == nil {
		return make(map[string]any), nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return out, nil
}
