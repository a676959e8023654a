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

// Package chunks implements the content-addressed, deduplicated chunk
// store: a single append-only file of fixed-header records, indexed in
// memory and reference counted.
package chunks

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/systemshift/memex/store/chunker"
	"github.com/systemshift/memex/store/hash"
)

var ErrChunkNotFound = errors.New("chunk not found")

// ChunkStore is a file-backed content-addressed store. Records are
// only ever appended; deletion drops index entries and leaves the
// bytes in place, so the file grows monotonically until Compact is
// called explicitly.
//
// Two indexes cover two addressing modes: |refs| maps a payload's
// SHA-256 to its record offset (deduplicated storage), and |named|
// binds caller-chosen logical ids to record offsets on top of it.
// Lookups tolerate every historical key representation: raw digest
// bytes, the hex string, and prefixed ids carrying a bare-hash suffix.
type ChunkStore struct {
	file  *os.File
	path  string
	base  int64 // leading bytes that belong to the repository header
	mu    sync.RWMutex
	refs  map[hash.Hash]int64
	named map[string]int64
	stats *Stats
}

// NewStore opens the chunk store backed by the file at path, creating
// it if absent. base is the number of leading bytes reserved for the
// owner's header; the index scan tolerates them by realigning.
func NewStore(path string, base int64) (*ChunkStore, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &ChunkStore{
		file:  file,
		path:  path,
		base:  base,
		refs:  make(map[hash.Hash]int64),
		named: make(map[string]int64),
		stats: newStats(),
	}

	if err := s.loadIndex(); err != nil {
		file.Close()
		return nil, fmt.Errorf("loading index: %w", err)
	}

	return s, nil
}

// Path returns the store's file path.
func (s *ChunkStore) Path() string {
	return s.path
}

// Stats returns the store's operation metrics.
func (s *ChunkStore) Stats() *Stats {
	return s.stats
}

// Put splits content at content-defined boundaries and stores each
// chunk, deduplicating against already-present chunks by incrementing
// their reference counts. It returns the ordered raw addresses needed
// to reconstruct content.
func (s *ChunkStore) Put(content []byte) ([][]byte, error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	pieces := chunker.Split(content)
	addresses := make([][]byte, len(pieces))
	var written, deduped int
	var bytesWritten uint64

	for i, piece := range pieces {
		h := hash.Of(piece)
		if off, ok := s.refs[h]; ok {
			if _, err := s.incrementRefCount(off); err != nil {
				return nil, fmt.Errorf("updating ref count: %w", err)
			}
			deduped++
		} else {
			off, err := s.writeRecord(piece, h)
			if err != nil {
				return nil, fmt.Errorf("writing chunk: %w", err)
			}
			s.refs[h] = off
			written++
			bytesWritten += uint64(len(piece))
		}
		addr := make([]byte, hash.ByteLen)
		copy(addr, h[:])
		addresses[i] = addr
	}

	s.stats.recordPut(start, written, deduped, bytesWritten)
	return addresses, nil
}

// PutWithID stores content verbatim as a single record bound to the
// caller's id, bypassing chunking. Any record previously bound to the
// id is released first.
func (s *ChunkStore) PutWithID(id string, content []byte) error {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.named[id]; ok {
		if err := s.release(old); err != nil {
			return fmt.Errorf("releasing prior record: %w", err)
		}
		delete(s.named, id)
	}

	h := hash.Of(content)
	var written int
	var bytesWritten uint64
	off, ok := s.refs[h]
	if ok {
		if _, err := s.incrementRefCount(off); err != nil {
			return fmt.Errorf("updating ref count: %w", err)
		}
	} else {
		var err error
		off, err = s.writeRecord(content, h)
		if err != nil {
			return fmt.Errorf("writing chunk: %w", err)
		}
		s.refs[h] = off
		written = 1
		bytesWritten = uint64(len(content))
	}

	s.bind(id, off)
	s.stats.recordPut(start, written, 1-written, bytesWritten)
	return nil
}

// Bind associates a logical id with an already-stored address. It is
// used to restore id bindings when the index is rebuilt from a file
// scan, which recovers content hashes but not caller-chosen ids.
func (s *ChunkStore) Bind(id string, addr []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	off, ok := s.resolve(addr)
	if !ok {
		return fmt.Errorf("%w: %x", ErrChunkNotFound, addr)
	}
	s.bind(id, off)
	return nil
}

func (s *ChunkStore) bind(id string, off int64) {
	s.named[id] = off
	// Raw digest ids get a hex alias so both spellings resolve.
	if len(id) == hash.ByteLen {
		s.named[hex.EncodeToString([]byte(id))] = off
	}
}

// Get resolves each address and concatenates the chunk payloads in
// order. An address may be raw digest bytes, a hex string, a logical
// id, or a prefixed id whose trailing 64 characters are a bare hash.
func (s *ChunkStore) Get(addresses [][]byte) ([]byte, error) {
	start := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var content bytes.Buffer
	for _, addr := range addresses {
		off, ok := s.resolve(addr)
		if !ok {
			return nil, fmt.Errorf("%w: %x", ErrChunkNotFound, addr)
		}
		payload, err := s.readRecord(off)
		if err != nil {
			return nil, fmt.Errorf("reading chunk: %w", err)
		}
		content.Write(payload)
	}

	s.stats.recordGet(start, uint64(content.Len()))
	return content.Bytes(), nil
}

// Has reports whether any representation of addr resolves.
func (s *ChunkStore) Has(addr []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.resolve(addr)
	return ok
}

// Delete decrements reference counts for each address. When a count
// reaches zero every index entry for the record is dropped; the bytes
// stay on disk until an explicit Compact.
func (s *ChunkStore) Delete(addresses [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, addr := range addresses {
		off, ok := s.resolve(addr)
		if !ok {
			continue
		}
		if err := s.release(off); err != nil {
			return fmt.Errorf("updating ref count: %w", err)
		}
	}

	return nil
}

// ListChunks enumerates live record addresses in file order. Each
// underlying byte range is reported exactly once, as raw digest bytes,
// regardless of how many id bindings point at it.
func (s *ChunkStore) ListChunks() ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hs := s.sortedByOffset()
	addrs := make([][]byte, len(hs))
	for i, h := range hs {
		addr := make([]byte, hash.ByteLen)
		copy(addr, h[:])
		addrs[i] = addr
	}
	return addrs, nil
}

// Entry describes a live record: its content hash and the logical ids
// bound to it, if any.
type Entry struct {
	Hash hash.Hash
	IDs  []string
}

// Entries enumerates live records in file order along with their id
// bindings. Hex aliases of raw digest ids are omitted.
func (s *ChunkStore) Entries() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byOff := make(map[int64]*Entry, len(s.refs))
	hs := s.sortedByOffset()
	entries := make([]Entry, len(hs))
	for i, h := range hs {
		entries[i] = Entry{Hash: h}
		byOff[s.refs[h]] = &entries[i]
	}
	for id, off := range s.named {
		if e, ok := byOff[off]; ok {
			e.IDs = append(e.IDs, id)
		}
	}
	for i := range entries {
		sort.Strings(entries[i].IDs)
	}
	return entries, nil
}

// Verify reads every live record and validates its header checksum
// and payload digest. Records are checked concurrently with each
// other, but the read lock is held until the last check finishes:
// Compact swaps the backing file and Put/Delete rewrite headers in
// place, so an unlocked reader could see a half-written header or a
// stale descriptor and report corruption that never hit the disk.
func (s *ChunkStore) Verify(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offsets := make([]int64, 0, len(s.refs))
	for _, off := range s.refs {
		offsets = append(offsets, off)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for _, off := range offsets {
		off := off
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			payload, err := s.readRecord(off)
			if err != nil {
				return fmt.Errorf("record at offset %d: %w", off, err)
			}
			hdr, err := s.readHeader(off)
			if err != nil {
				return fmt.Errorf("record at offset %d: %w", off, err)
			}
			if hash.Of(payload) != hdr.hash {
				return fmt.Errorf("record at offset %d: payload hash mismatch", off)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Compact rewrites all live records to a new file and swaps it in,
// reclaiming the bytes of zero-reference records. It is an explicit
// maintenance operation and never runs implicitly.
func (s *ChunkStore) Compact() (reclaimed int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("statting store: %w", err)
	}

	tmpPath := filepath.Join(filepath.Dir(s.path), fmt.Sprintf("memex-compact-%s.tmp", uuid.NewString()))
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("creating compaction file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	// The repository header region is carried over verbatim.
	if s.base > 0 {
		preamble := make([]byte, s.base)
		if _, err = s.file.ReadAt(preamble, 0); err != nil {
			return 0, fmt.Errorf("reading header region: %w", err)
		}
		if _, err = tmp.WriteAt(preamble, 0); err != nil {
			return 0, fmt.Errorf("writing header region: %w", err)
		}
	}

	moved := make(map[int64]int64, len(s.refs))
	next := s.base
	for _, h := range s.sortedByOffset() {
		old := s.refs[h]
		var payload []byte
		payload, err = s.readRecord(old)
		if err != nil {
			return 0, fmt.Errorf("reading record at %d: %w", old, err)
		}
		var hdr recordHeader
		hdr, err = s.readHeader(old)
		if err != nil {
			return 0, fmt.Errorf("reading record at %d: %w", old, err)
		}
		buf := make([]byte, recordHeaderSize+len(payload))
		writeRecordHeader(buf, hdr)
		copy(buf[recordHeaderSize:], payload)
		if _, err = tmp.WriteAt(buf, next); err != nil {
			return 0, fmt.Errorf("writing record: %w", err)
		}
		moved[old] = next
		next += int64(len(buf))
	}

	if err = tmp.Sync(); err != nil {
		return 0, fmt.Errorf("syncing compaction file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing compaction file: %w", err)
	}
	if err = os.Rename(tmpPath, s.path); err != nil {
		return 0, fmt.Errorf("swapping compacted store: %w", err)
	}

	old := s.file
	s.file, err = os.OpenFile(s.path, os.O_RDWR, 0644)
	if err != nil {
		return 0, fmt.Errorf("reopening store: %w", err)
	}
	old.Close()

	for h, off := range s.refs {
		s.refs[h] = moved[off]
	}
	for id, off := range s.named {
		s.named[id] = moved[off]
	}

	reclaimed = info.Size() - next
	logrus.Infof("compacted %s: reclaimed %d bytes", s.path, reclaimed)
	return reclaimed, nil
}

// Close releases the store's file handle.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// resolve maps an address to a record offset, trying every key
// representation: raw digest bytes, a bound id, the hex spelling of
// raw bytes, a hex string, and the bare-hash suffix of a prefixed id.
func (s *ChunkStore) resolve(addr []byte) (int64, bool) {
	if len(addr) == hash.ByteLen {
		if off, ok := s.refs[hash.New(addr)]; ok {
			return off, true
		}
	}
	str := string(addr)
	if off, ok := s.named[str]; ok {
		return off, true
	}
	if off, ok := s.named[hex.EncodeToString(addr)]; ok {
		return off, true
	}
	if h, ok := hash.Parse(str); ok {
		if off, ok := s.refs[h]; ok {
			return off, true
		}
	}
	if len(str) > hash.StringLen {
		suffix := str[len(str)-hash.StringLen:]
		if h, ok := hash.Parse(suffix); ok {
			if off, ok := s.refs[h]; ok {
				return off, true
			}
		}
		if off, ok := s.named[suffix]; ok {
			return off, true
		}
	}
	return 0, false
}

// release decrements the record's reference count and, at zero, drops
// every index entry pointing at it.
func (s *ChunkStore) release(off int64) error {
	count, err := s.decrementRefCount(off)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for h, o := range s.refs {
		if o == off {
			delete(s.refs, h)
		}
	}
	for id, o := range s.named {
		if o == off {
			delete(s.named, id)
		}
	}
	return nil
}

func (s *ChunkStore) sortedByOffset() []hash.Hash {
	hs := make([]hash.Hash, 0, len(s.refs))
	for h := range s.refs {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return s.refs[hs[i]] < s.refs[hs[j]] })
	return hs
}

// loadIndex rebuilds the in-memory index by scanning the file from
// offset 0. A record that fails validation advances the scan by one
// byte to seek realignment, so stray bytes (including the repository
// header itself) cost startup time, not data.
func (s *ChunkStore) loadIndex() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("getting file info: %w", err)
	}

	hdrBuf := make([]byte, recordHeaderSize)
	var off int64
	for off+recordHeaderSize <= info.Size() {
		if _, err := s.file.ReadAt(hdrBuf, off); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("reading header: %w", err)
		}
		hdr, err := readRecordHeader(hdrBuf)
		if err != nil {
			off++ // skip ahead and try again
			continue
		}
		if hdr.refCount > 0 {
			s.refs[hdr.hash] = off
		}
		next := off + recordHeaderSize + int64(hdr.size)
		if next <= off {
			break
		}
		off = next
	}

	if len(s.refs) > 0 {
		logrus.Debugf("indexed %d chunks from %s", len(s.refs), s.path)
	}
	return nil
}

func (s *ChunkStore) writeRecord(payload []byte, h hash.Hash) (int64, error) {
	off, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seeking to end: %w", err)
	}

	buf := make([]byte, recordHeaderSize+len(payload))
	writeRecordHeader(buf, recordHeader{
		size:     uint32(len(payload)),
		hash:     h,
		refCount: 1,
	})
	copy(buf[recordHeaderSize:], payload)

	if _, err := s.file.WriteAt(buf, off); err != nil {
		return 0, fmt.Errorf("writing record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return 0, fmt.Errorf("syncing to disk: %w", err)
	}

	return off, nil
}

func (s *ChunkStore) readHeader(off int64) (recordHeader, error) {
	buf := make([]byte, recordHeaderSize)
	if _, err := s.file.ReadAt(buf, off); err != nil {
		return recordHeader{}, fmt.Errorf("reading header: %w", err)
	}
	hdr, err := readRecordHeader(buf)
	if err != nil {
		return recordHeader{}, err
	}
	return hdr, nil
}

func (s *ChunkStore) readRecord(off int64) ([]byte, error) {
	hdr, err := s.readHeader(off)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, hdr.size)
	if _, err := s.file.ReadAt(payload, off+recordHeaderSize); err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return payload, nil
}

func (s *ChunkStore) setRefCount(off int64, delta int64) (uint32, error) {
	hdr, err := s.readHeader(off)
	if err != nil {
		return 0, err
	}
	switch {
	case delta > 0:
		hdr.refCount++
	case hdr.refCount > 0:
		hdr.refCount--
	}

	buf := make([]byte, recordHeaderSize)
	writeRecordHeader(buf, hdr)
	if _, err := s.file.WriteAt(buf, off); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return 0, fmt.Errorf("syncing to disk: %w", err)
	}
	return hdr.refCount, nil
}

func (s *ChunkStore) incrementRefCount(off int64) (uint32, error) {
	return s.setRefCount(off, 1)
}

func (s *ChunkStore) decrementRefCount(off int64) (uint32, error) {
	return s.setRefCount(off, -1)
}
