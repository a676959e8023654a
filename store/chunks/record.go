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
	"encoding/binary"
	"errors"

	"github.com/systemshift/memex/store/d"
	"github.com/systemshift/memex/store/hash"
)

// Every stored chunk is a fixed-size header followed by the verbatim
// payload:
//
//	magic    uint32  "CHNK"
//	size     uint32  payload length
//	hash     [32]byte SHA-256 of payload
//	refCount uint32
//	reserved uint32
//	checksum uint32  accumulator over the preceding 48 bytes
//
// All integers are little-endian. The checksum is a weak rolling
// accumulator that detects accidental corruption only; tamper evidence
// comes from the action log's hash chain, not from chunk headers.
const (
	recordMagic uint32 = 0x4B4E4843 // "CHNK"

	recordMagicSz    = 4
	recordSizeSz     = 4
	recordHashSz     = hash.ByteLen
	recordRefCountSz = 4
	recordReservedSz = 4
	recordChecksumSz = 4

	recordHeaderSize = recordMagicSz + recordSizeSz + recordHashSz +
		recordRefCountSz + recordReservedSz + recordChecksumSz

	recordRefCountOff = recordMagicSz + recordSizeSz + recordHashSz
	recordChecksumOff = recordHeaderSize - recordChecksumSz
)

var ErrMalformedRecord = errors.New("malformed chunk record")

type recordHeader struct {
	size     uint32
	hash     hash.Hash
	refCount uint32
}

func writeRecordHeader(buf []byte, rec recordHeader) {
	d.PanicIfFalse(len(buf) >= recordHeaderSize, "record header needs %d bytes, got %d", recordHeaderSize, len(buf))
	n := 0
	binary.LittleEndian.PutUint32(buf[n:], recordMagic)
	n += recordMagicSz
	binary.LittleEndian.PutUint32(buf[n:], rec.size)
	n += recordSizeSz
	copy(buf[n:], rec.hash[:])
	n += recordHashSz
	binary.LittleEndian.PutUint32(buf[n:], rec.refCount)
	n += recordRefCountSz
	binary.LittleEndian.PutUint32(buf[n:], 0) // reserved
	n += recordReservedSz
	binary.LittleEndian.PutUint32(buf[n:], headerChecksum(buf))
	n += recordChecksumSz
	d.PanicIfFalse(n == recordHeaderSize, "wrote %d header bytes, expected %d", n, recordHeaderSize)
}

func readRecordHeader(buf []byte) (recordHeader, error) {
	if len(buf) < recordHeaderSize {
		return recordHeader{}, ErrMalformedRecord
	}
	if binary.LittleEndian.Uint32(buf) != recordMagic {
		return recordHeader{}, ErrMalformedRecord
	}
	if binary.LittleEndian.Uint32(buf[recordChecksumOff:]) != headerChecksum(buf) {
		return recordHeader{}, ErrMalformedRecord
	}
	rec := recordHeader{
		size:     binary.LittleEndian.Uint32(buf[recordMagicSz:]),
		refCount: binary.LittleEndian.Uint32(buf[recordRefCountOff:]),
	}
	copy(rec.hash[:], buf[recordMagicSz+recordSizeSz:])
	return rec, nil
}

// headerChecksum computes the weak rolling accumulator over the header
// bytes that precede the checksum field.
func headerChecksum(buf []byte) uint32 {
	var sum uint32
	for _, b := range buf[:recordChecksumOff] {
		sum = sum<<8 ^ uint32(b)
	}
	return sum
}
