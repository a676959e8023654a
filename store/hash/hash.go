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

// Package hash implements the content address used throughout the
// storage engine: the SHA-256 digest of a byte payload, rendered as
// lowercase hex.
package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/systemshift/memex/store/d"
)

const (
	// ByteLen is the number of bytes in a Hash.
	ByteLen = sha256.Size

	// StringLen is the number of characters in the hex form of a Hash.
	StringLen = 2 * ByteLen
)

var empty = Hash{}

// Hash is the SHA-256 address of a chunk payload.
type Hash [ByteLen]byte

// Of returns the Hash of data.
func Of(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// New creates a Hash from a raw 32-byte digest.
func New(digest []byte) Hash {
	d.PanicIfFalse(len(digest) == ByteLen, "hash digest must be %d bytes, got %d", ByteLen, len(digest))
	h := Hash{}
	copy(h[:], digest)
	return h
}

// Parse decodes a 64-character hex string into a Hash. It reports
// false for strings of the wrong length or with non-hex characters.
func Parse(s string) (Hash, bool) {
	if len(s) != StringLen {
		return empty, false
	}
	digest, err := hex.DecodeString(s)
	if err != nil {
		return empty, false
	}
	return New(digest), true
}

// IsEmpty returns true for the zero Hash, which is not the digest of
// any payload but the conventional "no hash" value.
func (h Hash) IsEmpty() bool {
	return h == empty
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Less supports ordering hashes bytewise.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

// MarshalJSON renders the hash as a hex string so that JSON envelopes
// stay readable.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = empty
		return nil
	}
	parsed, ok := Parse(s)
	if !ok {
		return fmt.Errorf("invalid hash string: %q", s)
	}
	*h = parsed
	return nil
}
