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

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/memex/store/journal"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Create(filepath.Join(t.TempDir(), "test.mx"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func randomContent(n int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	rng.Read(buf)
	return buf
}

func TestCreateAndOpen(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "test.mx")

	r, err := Create(path)
	require.NoError(t, err)
	header := r.Header()
	assert.Equal(FormatMajor, header.Major)
	assert.Equal(FormatMinor, header.Minor)
	assert.Equal("memex/"+Version, header.Creator)
	assert.NotZero(header.Created)
	require.NoError(t, r.Close())

	// Create refuses to clobber an existing file.
	_, err = Create(path)
	assert.Error(err)

	r, err = Open(path)
	require.NoError(t, err)
	assert.NoError(r.Close())
}

func TestOpenRejectsForeignFiles(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "not-a-repo")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 256), 0644))

	_, err := Open(path)
	assert.ErrorIs(err, ErrInvalidRepository)
}

func TestOpenVersionCompatibility(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "test.mx")

	r, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// A newer minor version still opens.
	patchByte(t, path, int64(len(Magic))+1, FormatMinor+1)
	r, err = Open(path)
	assert.NoError(err)
	require.NoError(t, r.Close())

	// A different major version does not.
	patchByte(t, path, int64(len(Magic)), FormatMajor+1)
	_, err = Open(path)
	assert.ErrorIs(err, ErrIncompatibleVersion)
}

func patchByte(t *testing.T, path string, off int64, b byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{b}, off)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestAddGetNode(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	content := randomContent(8*1024, 1)
	id, err := r.AddNode(content, "file", map[string]any{"filename": "data.bin"})
	assert.NoError(err)
	assert.Len(id, 64)

	node, err := r.GetNode(id)
	assert.NoError(err)
	assert.Equal(id, node.ID)
	assert.Equal("file", node.Type)
	assert.Equal(content, node.Content)
	assert.Equal("data.bin", node.Meta["filename"])

	// The chunk list reassembles the content exactly.
	chunkList, ok := node.Meta["chunks"].([]any)
	require.True(t, ok)
	var joined bytes.Buffer
	for _, c := range chunkList {
		piece, err := r.GetContent(c.(string))
		assert.NoError(err)
		joined.Write(piece)
	}
	assert.Equal(content, joined.Bytes())

	assert.EqualValues(1, r.Header().NodeCount)
}

func TestAddNodeWithID(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	content := []byte("pinned content")
	assert.NoError(r.AddNodeWithID("notes/pinned", content, "note", nil))

	node, err := r.GetNode("notes/pinned")
	assert.NoError(err)
	assert.Equal("notes/pinned", node.ID)
	assert.Equal(content, node.Content)
}

func TestCallerMetadataIsCopied(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	meta := map[string]any{"tag": "before"}
	id, err := r.AddNode([]byte("content"), "note", meta)
	assert.NoError(err)

	meta["tag"] = "after"
	node, err := r.GetNode(id)
	assert.NoError(err)
	assert.Equal("before", node.Meta["tag"])
}

func TestGetNodeDegradesOnOpaquePayload(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	content := randomContent(256, 2)
	id, err := r.AddNode(content, "file", nil)
	assert.NoError(err)

	node, err := r.GetNode(id)
	require.NoError(t, err)
	chunkList := node.Meta["chunks"].([]any)
	require.NotEmpty(t, chunkList)

	// Fetching a raw content chunk by id yields an opaque node wrapping
	// the stored bytes rather than an error.
	raw, err := r.GetNode(chunkList[0].(string))
	assert.NoError(err)
	assert.Empty(raw.Type)
	assert.NotEmpty(raw.Content)
	assert.NotNil(raw.Meta)
}

func TestListNodes(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	assert.NoError(r.AddNodeWithID("b", []byte("2"), "note", nil))
	assert.NoError(r.AddNodeWithID("a", []byte("1"), "note", nil))
	assert.NoError(r.AddNodeWithID("c", []byte("3"), "note", nil))

	ids, err := r.ListNodes()
	assert.NoError(err)
	assert.Equal([]string{"a", "b", "c"}, ids)
}

func TestLinks(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	require.NoError(t, r.AddNodeWithID("a", []byte("node a"), "note", nil))
	require.NoError(t, r.AddNodeWithID("b", []byte("node b"), "note", nil))

	assert.NoError(r.AddLink("a", "b", "references", map[string]any{"weight": 2.0}))

	// Both endpoints must exist.
	assert.Error(r.AddLink("a", "missing", "references", nil))
	assert.Error(r.AddLink("missing", "b", "references", nil))

	links, err := r.GetLinks("a")
	assert.NoError(err)
	require.Len(t, links, 1)
	assert.Equal("a", links[0].Source)
	assert.Equal("b", links[0].Target)
	assert.Equal("references", links[0].Type)
	assert.Equal(2.0, links[0].Meta["weight"])

	// The target sees the same link.
	links, err = r.GetLinks("b")
	assert.NoError(err)
	assert.Len(links, 1)

	assert.EqualValues(1, r.Header().EdgeCount)

	assert.NoError(r.DeleteLink("a", "b", "references"))
	links, err = r.GetLinks("a")
	assert.NoError(err)
	assert.Empty(links)
	assert.EqualValues(0, r.Header().EdgeCount)

	// Deleting an absent link succeeds quietly.
	assert.NoError(r.DeleteLink("a", "b", "references"))
}

func TestGetLinksOrdering(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	require.NoError(t, r.AddNodeWithID("hub", []byte("hub"), "note", nil))
	for _, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, r.AddNodeWithID(id, []byte(id), "note", nil))
	}

	assert.NoError(r.AddLink("hub", "n1", "child", map[string]any{"order": 3.0}))
	assert.NoError(r.AddLink("hub", "n2", "child", map[string]any{"order": 1.0}))
	assert.NoError(r.AddLink("hub", "n3", "child", map[string]any{"order": 2.0}))

	links, err := r.GetLinks("hub")
	assert.NoError(err)
	require.Len(t, links, 3)
	// Creation order dominates; the ties the order field would break
	// require identical timestamps.
	assert.Equal("n1", links[0].Target)
	assert.Equal("n2", links[1].Target)
	assert.Equal("n3", links[2].Target)
}

func TestDeleteNodeCascades(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	content := randomContent(4*1024, 3)
	id, err := r.AddNode(content, "file", nil)
	assert.NoError(err)
	require.NoError(t, r.AddNodeWithID("other", []byte("other"), "note", nil))
	assert.NoError(r.AddLink(id, "other", "references", nil))

	node, err := r.GetNode(id)
	require.NoError(t, err)
	chunkList := node.Meta["chunks"].([]any)

	assert.NoError(r.DeleteNode(id))

	_, err = r.GetNode(id)
	assert.Error(err)
	for _, c := range chunkList {
		_, err := r.GetContent(c.(string))
		assert.Error(err, "content chunk %v should be dereferenced", c)
	}
	links, err := r.GetLinks("other")
	assert.NoError(err)
	assert.Empty(links)

	assert.EqualValues(1, r.Header().NodeCount)
	assert.EqualValues(0, r.Header().EdgeCount)

	assert.ErrorIs(r.DeleteNode(id), ErrNodeNotFound)
}

func TestReopenRestoresCatalogs(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "test.mx")

	r, err := Create(path)
	require.NoError(t, err)

	content := randomContent(8*1024, 4)
	hashID, err := r.AddNode(content, "file", map[string]any{"filename": "a.bin"})
	require.NoError(t, err)
	require.NoError(t, r.AddNodeWithID("named-node", []byte("named"), "note", nil))
	require.NoError(t, r.AddLink(hashID, "named-node", "references", nil))
	require.NoError(t, r.Close())

	r, err = Open(path)
	require.NoError(t, err)
	defer r.Close()

	ids, err := r.ListNodes()
	assert.NoError(err)
	assert.ElementsMatch([]string{hashID, "named-node"}, ids)

	node, err := r.GetNode(hashID)
	assert.NoError(err)
	assert.Equal(content, node.Content)

	// Caller-chosen ids survive reopen via the envelope scan.
	node, err = r.GetNode("named-node")
	assert.NoError(err)
	assert.Equal([]byte("named"), node.Content)

	links, err := r.GetLinks("named-node")
	assert.NoError(err)
	require.Len(t, links, 1)
	assert.Equal(hashID, links[0].Source)

	header := r.Header()
	assert.EqualValues(2, header.NodeCount)
	assert.EqualValues(1, header.EdgeCount)
}

func TestHistoryAndVerify(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	id, err := r.AddNode([]byte("logged"), "note", nil)
	assert.NoError(err)
	require.NoError(t, r.AddNodeWithID("peer", []byte("peer"), "note", nil))
	assert.NoError(r.AddLink(id, "peer", "references", nil))
	assert.NoError(r.DeleteLink(id, "peer", "references"))
	assert.NoError(r.DeleteNode(id))

	actions, err := r.History()
	assert.NoError(err)
	require.Len(t, actions, 5)
	assert.Equal(journal.ActionAddNode, actions[0].Type)
	assert.Equal(journal.ActionAddNode, actions[1].Type)
	assert.Equal(journal.ActionAddLink, actions[2].Type)
	assert.Equal(journal.ActionDeleteLink, actions[3].Type)
	assert.Equal(journal.ActionDeleteNode, actions[4].Type)

	// Creation actions carry the digest of the stored envelope.
	assert.False(actions[0].StateHash.IsEmpty())
	assert.True(actions[4].StateHash.IsEmpty())

	ok, err := r.VerifyHistory()
	assert.NoError(err)
	assert.True(ok)

	assert.NoError(r.VerifyStore(context.Background()))
}

func TestCompact(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	keepID, err := r.AddNode(randomContent(16*1024, 5), "file", nil)
	assert.NoError(err)
	dropID, err := r.AddNode(randomContent(16*1024, 6), "file", nil)
	assert.NoError(err)
	assert.NoError(r.DeleteNode(dropID))

	before, err := os.Stat(r.Path())
	assert.NoError(err)

	reclaimed, err := r.Compact()
	assert.NoError(err)
	assert.Positive(reclaimed)

	after, err := os.Stat(r.Path())
	assert.NoError(err)
	assert.Less(after.Size(), before.Size())

	node, err := r.GetNode(keepID)
	assert.NoError(err)
	assert.NotEmpty(node.Content)

	// The header region survives the rewrite and further mutations
	// land in the new file.
	assert.EqualValues(1, r.Header().NodeCount)
	_, err = r.AddNode([]byte("post-compact"), "note", nil)
	assert.NoError(err)
}

func TestCompactSurvivesReopen(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "test.mx")

	r, err := Create(path)
	require.NoError(t, err)
	keepID, err := r.AddNode(randomContent(8*1024, 7), "file", nil)
	require.NoError(t, err)
	dropID, err := r.AddNode(randomContent(8*1024, 8), "file", nil)
	require.NoError(t, err)
	require.NoError(t, r.DeleteNode(dropID))
	_, err = r.Compact()
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r, err = Open(path)
	require.NoError(t, err)
	defer r.Close()

	node, err := r.GetNode(keepID)
	assert.NoError(err)
	assert.NotEmpty(node.Content)
	assert.NoError(r.VerifyStore(context.Background()))
}

func TestClosedRepositoryRejectsOperations(t *testing.T) {
	assert := assert.New(t)
	r, err := Create(filepath.Join(t.TempDir(), "test.mx"))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.AddNode([]byte("x"), "note", nil)
	assert.ErrorIs(err, ErrRepositoryClosed)
	_, err = r.GetNode("x")
	assert.ErrorIs(err, ErrRepositoryClosed)
	_, err = r.ListNodes()
	assert.ErrorIs(err, ErrRepositoryClosed)
	assert.ErrorIs(r.DeleteNode("x"), ErrRepositoryClosed)
	assert.ErrorIs(r.AddLink("a", "b", "t", nil), ErrRepositoryClosed)
	_, err = r.GetLinks("a")
	assert.ErrorIs(err, ErrRepositoryClosed)
	assert.ErrorIs(r.DeleteLink("a", "b", "t"), ErrRepositoryClosed)
	_, err = r.Compact()
	assert.ErrorIs(err, ErrRepositoryClosed)
	_, err = r.History()
	assert.ErrorIs(err, ErrRepositoryClosed)
	_, err = r.VerifyHistory()
	assert.ErrorIs(err, ErrRepositoryClosed)
	assert.ErrorIs(r.VerifyStore(context.Background()), ErrRepositoryClosed)
	_, err = r.Stats()
	assert.ErrorIs(err, ErrRepositoryClosed)

	// Closing twice is harmless.
	assert.NoError(r.Close())
}

func TestContentDeduplicationAcrossNodes(t *testing.T) {
	assert := assert.New(t)
	r := newTestRepo(t)

	content := randomContent(32*1024, 9)
	_, err := r.AddNode(content, "file", map[string]any{"filename": "one"})
	assert.NoError(err)

	sizeAfterFirst, err := os.Stat(r.Path())
	assert.NoError(err)

	_, err = r.AddNode(content, "file", map[string]any{"filename": "two"})
	assert.NoError(err)

	sizeAfterSecond, err := os.Stat(r.Path())
	assert.NoError(err)

	// The second node shares every content chunk; only its envelope is
	// new, so the file grows by far less than the content size.
	growth := sizeAfterSecond.Size() - sizeAfterFirst.Size()
	assert.Less(growth, int64(len(content)/2))
}
