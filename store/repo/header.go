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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/systemshift/memex/store/d"
)

// Magic identifies a memex repository file.
const Magic = "MEMEX01"

const (
	// FormatMajor changes break compatibility: a repository written
	// with a different major version cannot be opened.
	FormatMajor uint8 = 1

	// FormatMinor changes are forward-tolerant: older minors open fine.
	FormatMinor uint8 = 1
)

// HeaderSize is the fixed size of the repository header at offset 0.
const HeaderSize = 128

const (
	magicSize   = 7
	creatorSize = 32
)

var (
	ErrInvalidRepository   = errors.New("invalid repository file")
	ErrIncompatibleVersion = errors.New("incompatible repository version")
)

// Header is the fixed-size record at offset 0 of the repository file:
//
//	magic      [7]byte  "MEMEX01"
//	major      uint8
//	minor      uint8
//	creator    [32]byte version string of the writer
//	created    int64    Unix seconds
//	modified   int64    Unix seconds
//	nodeCount  uint32
//	edgeCount  uint32
//	nodeIndex  uint64   reserved index pointer, currently zero
//	edgeIndex  uint64   reserved index pointer, currently zero
//	reserved   [47]byte
//
// Integers are little-endian. The index pointer fields are carried for
// forward compatibility and are not populated.
type Header struct {
	Major     uint8
	Minor     uint8
	Creator   string
	Created   int64
	Modified  int64
	NodeCount uint32
	EdgeCount uint32
	NodeIndex uint64
	EdgeIndex uint64
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	n := copy(buf, Magic)
	buf[n] = h.Major
	n++
	buf[n] = h.Minor
	n++
	copy(buf[n:n+creatorSize], h.Creator)
	n = magicSize + 2 + creatorSize
	binary.LittleEndian.PutUint64(buf[n:], uint64(h.Created))
	n += 8
	binary.LittleEndian.PutUint64(buf[n:], uint64(h.Modified))
	n += 8
	binary.LittleEndian.PutUint32(buf[n:], h.NodeCount)
	n += 4
	binary.LittleEndian.PutUint32(buf[n:], h.EdgeCount)
	n += 4
	binary.LittleEndian.PutUint64(buf[n:], h.NodeIndex)
	n += 8
	binary.LittleEndian.PutUint64(buf[n:], h.EdgeIndex)
	n += 8
	d.PanicIfFalse(n <= HeaderSize, "header overflow: %d bytes", n)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: short header", ErrInvalidRepository)
	}
	if string(buf[:magicSize]) != Magic {
		return Header{}, fmt.Errorf("%w: bad magic", ErrInvalidRepository)
	}
	h := Header{
		Major: buf[magicSize],
		Minor: buf[magicSize+1],
	}
	creator := buf[magicSize+2 : magicSize+2+creatorSize]
	h.Creator = string(bytes.TrimRight(creator, "\x00"))
	n := magicSize + 2 + creatorSize
	h.Created = int64(binary.LittleEndian.Uint64(buf[n:]))
	n += 8
	h.Modified = int64(binary.LittleEndian.Uint64(buf[n:]))
	n += 8
	h.NodeCount = binary.LittleEndian.Uint32(buf[n:])
	n += 4
	h.EdgeCount = binary.LittleEndian.Uint32(buf[n:])
	n += 4
	h.NodeIndex = binary.LittleEndian.Uint64(buf[n:])
	n += 8
	h.EdgeIndex = binary.LittleEndian.Uint64(buf[n:])

	if h.Major != FormatMajor {
		return Header{}, fmt.Errorf("%w: repository is %d.%d, this build reads %d.x",
			ErrIncompatibleVersion, h.Major, h.Minor, FormatMajor)
	}
	return h, nil
}
