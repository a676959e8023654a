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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/memex/store/hash"
)

func newTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	repoPath := filepath.Join(t.TempDir(), "repo.mx")
	j, err := Open(repoPath)
	require.NoError(t, err)
	return j, filepath.Join(filepath.Dir(repoPath), ".actions", "log")
}

func TestRecordAndHistory(t *testing.T) {
	assert := assert.New(t)
	j, _ := newTestJournal(t)
	defer j.Close()

	assert.NoError(j.Record(ActionAddNode, map[string]any{"id": "n1"}, []byte(`{"id":"n1"}`)))
	assert.NoError(j.Record(ActionAddLink, map[string]any{"source": "n1", "target": "n2"}, nil))
	assert.NoError(j.Record(ActionDeleteNode, map[string]any{"id": "n1"}, nil))

	actions, err := j.History()
	assert.NoError(err)
	require.Len(t, actions, 3)
	assert.Equal(ActionAddNode, actions[0].Type)
	assert.Equal(ActionAddLink, actions[1].Type)
	assert.Equal(ActionDeleteNode, actions[2].Type)
	assert.Equal("n1", actions[0].Payload["id"])
}

func TestChainLinkage(t *testing.T) {
	assert := assert.New(t)
	j, _ := newTestJournal(t)
	defer j.Close()

	assert.NoError(j.Record(ActionAddNode, map[string]any{"id": "a"}, nil))
	assert.NoError(j.Record(ActionAddNode, map[string]any{"id": "b"}, nil))

	actions, err := j.History()
	assert.NoError(err)
	require.Len(t, actions, 2)

	assert.True(actions[0].PrevHash.IsEmpty())
	first, err := actions[0].HashOf()
	assert.NoError(err)
	assert.Equal(first, actions[1].PrevHash)
	assert.Equal(j.LastHash(), mustHash(t, actions[1]))

	ok, err := j.Verify()
	assert.NoError(err)
	assert.True(ok)
}

func TestStateHash(t *testing.T) {
	assert := assert.New(t)
	j, _ := newTestJournal(t)
	defer j.Close()

	state := []byte(`{"id":"n1","type":"note"}`)
	assert.NoError(j.Record(ActionAddNode, map[string]any{"id": "n1"}, state))
	assert.NoError(j.Record(ActionDeleteNode, map[string]any{"id": "n1"}, nil))

	actions, err := j.History()
	assert.NoError(err)
	require.Len(t, actions, 2)
	assert.Equal(hash.Of(state), actions[0].StateHash)
	assert.True(actions[1].StateHash.IsEmpty())
}

func TestVerifyDetectsTampering(t *testing.T) {
	assert := assert.New(t)
	repoPath := filepath.Join(t.TempDir(), "repo.mx")

	j, err := Open(repoPath)
	require.NoError(t, err)
	assert.NoError(j.Record(ActionAddNode, map[string]any{"id": "original-value"}, nil))
	assert.NoError(j.Record(ActionAddNode, map[string]any{"id": "second"}, nil))
	require.NoError(t, j.Close())

	// Rewrite a payload string in place, keeping the JSON valid and the
	// record length unchanged.
	logPath := filepath.Join(filepath.Dir(repoPath), ".actions", "log")
	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	tampered := bytes.Replace(raw, []byte("original-value"), []byte("tampered-value"), 1)
	require.NotEqual(t, raw, tampered)
	require.NoError(t, os.WriteFile(logPath, tampered, 0644))

	j, err = Open(repoPath)
	require.NoError(t, err)
	defer j.Close()

	ok, err := j.Verify()
	assert.NoError(err)
	assert.False(ok, "rewritten first action must break the second action's linkage")
}

func TestRecoverFromTruncatedTail(t *testing.T) {
	assert := assert.New(t)
	repoPath := filepath.Join(t.TempDir(), "repo.mx")

	j, err := Open(repoPath)
	require.NoError(t, err)
	assert.NoError(j.Record(ActionAddNode, map[string]any{"id": "a"}, nil))
	assert.NoError(j.Record(ActionAddNode, map[string]any{"id": "b"}, nil))
	assert.NoError(j.Record(ActionAddNode, map[string]any{"id": "c"}, nil))
	require.NoError(t, j.Close())

	// Chop off part of the last record, as a crash mid-write would.
	logPath := filepath.Join(filepath.Dir(repoPath), ".actions", "log")
	info, err := os.Stat(logPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(logPath, info.Size()-7))

	j, err = Open(repoPath)
	require.NoError(t, err)
	defer j.Close()

	actions, err := j.History()
	assert.NoError(err)
	require.Len(t, actions, 2)
	assert.Equal("b", actions[1].Payload["id"])

	// New records chain from the last recovered action.
	assert.NoError(j.Record(ActionAddNode, map[string]any{"id": "d"}, nil))
	ok, err := j.Verify()
	assert.NoError(err)
	assert.True(ok)
}

func TestEmptyJournal(t *testing.T) {
	assert := assert.New(t)
	j, _ := newTestJournal(t)
	defer j.Close()

	actions, err := j.History()
	assert.NoError(err)
	assert.Empty(actions)
	assert.True(j.LastHash().IsEmpty())

	ok, err := j.Verify()
	assert.NoError(err)
	assert.True(ok)
}

func mustHash(t *testing.T, a *Action) hash.Hash {
	t.Helper()
	h, err := a.HashOf()
	require.NoError(t, err)
	return h
}
