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

package journal

import (
	"encoding/json"
	"time"

	"github.com/systemshift/memex/store/hash"
)

// ActionType identifies a mutating repository operation.
type ActionType string

const (
	ActionAddNode       ActionType = "add-node"
	ActionDeleteNode    ActionType = "delete-node"
	ActionAddLink       ActionType = "add-link"
	ActionDeleteLink    ActionType = "delete-link"
	ActionPutContent    ActionType = "put-content"
	ActionDeleteContent ActionType = "delete-content"
)

// Action is one entry in the hash-chained log. PrevHash is the
// self-hash of the immediately preceding action (zero for the first),
// which makes the history a linear, tamper-evident chain. StateHash is
// the digest of the affected entity's post-mutation envelope when the
// mutation has a single affected entity, and zero otherwise; it
// extends the chain's custody from declared actions to the bytes they
// produced.
type Action struct {
	Type      ActionType     `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	PrevHash  hash.Hash      `json:"prev_hash"`
	StateHash hash.Hash      `json:"state_hash"`
}

// HashOf returns the action's self-hash: the SHA-256 of its canonical
// JSON serialization. encoding/json emits map keys in sorted order, so
// the serialization is deterministic.
func (a *Action) HashOf() (hash.Hash, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.Of(data), nil
}

// Verify checks the chain linkage between this action and its
// predecessor. The first action must carry a zero PrevHash; every
// other action's PrevHash must equal the predecessor's self-hash.
func (a *Action) Verify(prev *Action) (bool, error) {
	if prev == nil {
		return a.PrevHash.IsEmpty(), nil
	}
	prevHash, err := prev.HashOf()
	if err != nil {
		return false, err
	}
	return a.PrevHash == prevHash, nil
}
