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

// Package chunker splits byte payloads into variable-length chunks at
// content-determined boundaries, so that edits localized to one region
// of a payload leave the chunking of unrelated regions unchanged.
package chunker

import (
	"bytes"
	"sync"

	"github.com/kch42/buzhash"
)

const (
	// defaultChunkPattern targets an average chunk size of 4k. A chunk
	// boundary falls wherever the low bits of the rolling hash match
	// the pattern.
	defaultChunkPattern = uint32(1<<12 - 1)

	// chunkWindow is the rolling hash window. Larger than strictly
	// necessary for random data; the extra width gives better boundary
	// distribution on low-entropy input. Prime for better distribution
	// on repeating input.
	chunkWindow = uint32(67)

	// minChunkSize bounds index growth: no boundary is accepted before
	// this many bytes have been consumed.
	minChunkSize = 64

	// maxChunkSize forces a boundary on pathological input that never
	// matches the pattern.
	maxChunkSize = 1 << 20
)

// Only set by tests.
var (
	chunkPattern  = defaultChunkPattern
	chunkConfigMu = &sync.Mutex{}
)

func chunkingConfig() (pattern, window uint32) {
	chunkConfigMu.Lock()
	defer chunkConfigMu.Unlock()
	return chunkPattern, chunkWindow
}

func smallTestChunks() {
	chunkConfigMu.Lock()
	defer chunkConfigMu.Unlock()
	chunkPattern = uint32(1<<7 - 1) // Avg chunk size of 128 bytes
}

func normalProductionChunks() {
	chunkConfigMu.Lock()
	defer chunkConfigMu.Unlock()
	chunkPattern = defaultChunkPattern
}

// TestWithSmallChunks allows testing with small chunks outside of
// package chunker.
func TestWithSmallChunks(cb func()) {
	smallTestChunks()
	defer normalProductionChunks()
	cb()
}

// Split divides content into chunks at content-defined boundaries.
// It is deterministic: identical input always yields identical chunks.
// The concatenation of the returned slices is exactly content; the
// slices alias the input.
//
// Payloads that look like JSON objects are returned whole. Node and
// link envelopes are stored through the same chunk store as raw
// content, and an envelope must remain a single chunk so that its
// first (only) chunk address resolves the complete serialization.
func Split(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	if len(content) <= minChunkSize || isEnvelope(content) {
		return [][]byte{content}
	}

	pattern, window := chunkingConfig()

	var chunks [][]byte
	bz := buzhash.NewBuzHash(window)
	start := 0
	for i, b := range content {
		bz.HashByte(b)
		size := i + 1 - start
		if size < minChunkSize {
			continue
		}
		if bz.Sum32()&pattern == pattern || size >= maxChunkSize {
			chunks = append(chunks, content[start:i+1])
			start = i + 1
			bz = buzhash.NewBuzHash(window)
		}
	}

	if start < len(content) {
		rest := content[start:]
		if len(rest) >= minChunkSize || len(chunks) == 0 {
			chunks = append(chunks, rest)
		} else {
			// A tail shorter than the minimum folds into the last
			// chunk rather than becoming an undersized record.
			last := len(chunks) - 1
			chunks[last] = content[start-len(chunks[last]) : len(content)]
		}
	}

	return chunks
}

func isEnvelope(content []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(content, " \t\r\n"), []byte("{"))
}
