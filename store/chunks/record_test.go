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

package chunks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systemshift/memex/store/hash"
)

func TestRecordHeaderRoundtrip(t *testing.T) {
	assert := assert.New(t)

	rec := recordHeader{
		size:     1234,
		hash:     hash.Of([]byte("payload")),
		refCount: 3,
	}
	buf := make([]byte, recordHeaderSize)
	writeRecordHeader(buf, rec)

	back, err := readRecordHeader(buf)
	assert.NoError(err)
	assert.Equal(rec, back)
}

func TestRecordHeaderRejectsBadMagic(t *testing.T) {
	assert := assert.New(t)

	buf := make([]byte, recordHeaderSize)
	writeRecordHeader(buf, recordHeader{size: 1, hash: hash.Of([]byte("x")), refCount: 1})
	buf[0] ^= 0xff

	_, err := readRecordHeader(buf)
	assert.ErrorIs(err, ErrMalformedRecord)
}

func TestRecordHeaderRejectsCorruption(t *testing.T) {
	assert := assert.New(t)

	buf := make([]byte, recordHeaderSize)
	writeRecordHeader(buf, recordHeader{size: 77, hash: hash.Of([]byte("y")), refCount: 1})

	// Flip a bit in the size field; the checksum no longer matches.
	buf[recordMagicSz] ^= 0x01
	_, err := readRecordHeader(buf)
	assert.ErrorIs(err, ErrMalformedRecord)
}

func TestRecordHeaderRejectsShortBuffer(t *testing.T) {
	_, err := readRecordHeader(make([]byte, recordHeaderSize-1))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}
