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
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Stats tracks chunk store operation latencies and volumes. Latencies
// are recorded in microseconds.
type Stats struct {
	mu sync.Mutex

	PutLatency *hdrhistogram.Histogram
	GetLatency *hdrhistogram.Histogram

	ChunksWritten uint64
	ChunksDeduped uint64
	BytesWritten  uint64
	BytesRead     uint64
}

func newStats() *Stats {
	return &Stats{
		PutLatency: hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3),
		GetLatency: hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3),
	}
}

func (s *Stats) recordPut(start time.Time, written, deduped int, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutLatency.RecordValue(int64(time.Since(start) / time.Microsecond))
	s.ChunksWritten += uint64(written)
	s.ChunksDeduped += uint64(deduped)
	s.BytesWritten += bytes
}

func (s *Stats) recordGet(start time.Time, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetLatency.RecordValue(int64(time.Since(start) / time.Microsecond))
	s.BytesRead += bytes
}

func (s *Stats) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf(`---Chunk Store Stats---
PutLatency p50/p99 (us): %d/%d
GetLatency p50/p99 (us): %d/%d
ChunksWritten:           %d
ChunksDeduped:           %d
BytesWritten:            %d
BytesRead:               %d
`,
		s.PutLatency.ValueAtQuantile(50), s.PutLatency.ValueAtQuantile(99),
		s.GetLatency.ValueAtQuantile(50), s.GetLatency.ValueAtQuantile(99),
		s.ChunksWritten,
		s.ChunksDeduped,
		s.BytesWritten,
		s.BytesRead)
}
