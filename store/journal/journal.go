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

// Package journal maintains the append-only, hash-chained log of every
// repository mutation. The log is the audit trail: a failure to record
// an action aborts the enclosing mutation.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/systemshift/memex/store/hash"
)

const lengthPrefixSize = 4

// Journal is the hash-chained action log. On disk it is a sequence of
// [4-byte little-endian length][JSON action] records in a .actions
// directory beside the repository file.
type Journal struct {
	file     *os.File
	path     string
	mu       sync.RWMutex
	lastHash hash.Hash
}

// Open opens (creating if needed) the action log for the repository
// file at repoPath. If the log is non-empty, the hash of the last
// decodable action is recovered by scanning backward from the end of
// file, which tolerates a tail truncated by a crash mid-write.
func Open(repoPath string) (*Journal, error) {
	dir := filepath.Join(filepath.Dir(repoPath), ".actions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating actions directory: %w", err)
	}

	path := filepath.Join(dir, "log")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening action log: %w", err)
	}

	j := &Journal{file: file, path: path}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("statting action log: %w", err)
	}
	if info.Size() > 0 {
		last, err := j.recoverLastAction(info.Size())
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("recovering action log: %w", err)
		}
		if last != nil {
			j.lastHash, err = last.HashOf()
			if err != nil {
				file.Close()
				return nil, fmt.Errorf("hashing last action: %w", err)
			}
		}
	}

	return j, nil
}

// Record appends an action to the log. state, when non-empty, is the
// affected entity's post-mutation envelope; its digest becomes the
// action's StateHash. The write is synced before Record returns.
func (j *Journal) Record(typ ActionType, payload map[string]any, state []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	action := &Action{
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		PrevHash:  j.lastHash,
	}
	if len(state) > 0 {
		action.StateHash = hash.Of(state)
	}

	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshaling action: %w", err)
	}

	end, err := j.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seeking to end: %w", err)
	}
	buf := make([]byte, lengthPrefixSize+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[lengthPrefixSize:], data)
	if _, err := j.file.WriteAt(buf, end); err != nil {
		return fmt.Errorf("writing action: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("syncing action log: %w", err)
	}

	j.lastHash, err = action.HashOf()
	if err != nil {
		return fmt.Errorf("hashing action: %w", err)
	}
	return nil
}

// History returns all actions in append order, decoding
// length-prefixed records from the start of the log.
func (j *Journal) History() ([]*Action, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.history()
}

func (j *Journal) history() ([]*Action, error) {
	info, err := j.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("statting action log: %w", err)
	}

	var actions []*Action
	var off int64
	for off+lengthPrefixSize <= info.Size() {
		var lenBuf [lengthPrefixSize]byte
		if _, err := j.file.ReadAt(lenBuf[:], off); err != nil {
			return nil, fmt.Errorf("reading length prefix: %w", err)
		}
		length := int64(binary.LittleEndian.Uint32(lenBuf[:]))
		if off+lengthPrefixSize+length > info.Size() {
			// Truncated tail from a crash mid-write; everything
			// before it is still valid history.
			break
		}
		data := make([]byte, length)
		if _, err := j.file.ReadAt(data, off+lengthPrefixSize); err != nil {
			return nil, fmt.Errorf("reading action: %w", err)
		}
		var action Action
		if err := json.Unmarshal(data, &action); err != nil {
			return nil, fmt.Errorf("unmarshaling action: %w", err)
		}
		actions = append(actions, &action)
		off += lengthPrefixSize + length
	}

	return actions, nil
}

// Verify replays the history, checking every action's chain linkage
// and that the final action matches the log's last-known hash. It
// reports false on the first mismatch.
//
// The final-hash comparison is only as strong as lastHash's origin:
// within a process it was computed when the action was recorded, so
// tampering with any record is caught. After a reopen, lastHash is
// recovered by re-hashing the final on-disk record, so a rewrite
// confined to that one record passes; earlier records stay protected
// by their successors' PrevHash linkage. The chain provides custody
// over declared actions, not tamper evidence for an unwitnessed tail.
func (j *Journal) Verify() (bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	actions, err := j.history()
	if err != nil {
		return false, fmt.Errorf("getting history: %w", err)
	}

	var prev *Action
	for _, action := range actions {
		ok, err := action.Verify(prev)
		if err != nil {
			return false, fmt.Errorf("verifying action: %w", err)
		}
		if !ok {
			return false, nil
		}
		prev = action
	}

	if prev != nil {
		last, err := prev.HashOf()
		if err != nil {
			return false, err
		}
		if last != j.lastHash {
			return false, nil
		}
	}

	return true, nil
}

// LastHash returns the self-hash of the most recent action, or the
// zero hash for an empty log.
func (j *Journal) LastHash() hash.Hash {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.lastHash
}

// Close syncs and closes the log file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("syncing action log: %w", err)
	}
	return j.file.Close()
}

// recoverLastAction scans backward from the end of the file one byte
// at a time, attempting to reinterpret each candidate offset as a
// valid length-prefixed record. The first candidate that decodes and
// ends within the file is the last durable action.
func (j *Journal) recoverLastAction(size int64) (*Action, error) {
	for start := size - lengthPrefixSize - 1; start >= 0; start-- {
		var lenBuf [lengthPrefixSize]byte
		if _, err := j.file.ReadAt(lenBuf[:], start); err != nil {
			return nil, fmt.Errorf("reading candidate length: %w", err)
		}
		length := int64(binary.LittleEndian.Uint32(lenBuf[:]))
		if length == 0 || start+lengthPrefixSize+length > size {
			continue
		}
		data := make([]byte, length)
		if _, err := j.file.ReadAt(data, start+lengthPrefixSize); err != nil {
			continue
		}
		var action Action
		if err := json.Unmarshal(data, &action); err != nil {
			continue
		}
		if end := start + lengthPrefixSize + length; end < size {
			// Drop the partial tail so later appends land directly
			// after the last durable record.
			logrus.Warnf("action log %s has a truncated tail after offset %d, discarding it", j.path, end)
			if err := j.file.Truncate(end); err != nil {
				return nil, fmt.Errorf("truncating partial tail: %w", err)
			}
		}
		return &action, nil
	}
	logrus.Warnf("action log %s contains no decodable actions", j.path)
	return nil, nil
}
