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

// Package d provides assertion helpers for invariants that indicate
// programmer error rather than runtime failure.
package d

import (
	"fmt"

	"github.com/stretchr/testify/assert"
)

// Chk asserts invariants, panicking on violation.
var Chk = assert.New(&panicker{})

type panicker struct{}

func (p *panicker) Errorf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

// PanicIfError panics if err is non-nil.
func PanicIfError(err error) {
	if err != nil {
		panic(err)
	}
}

// PanicIfFalse panics with a formatted message if b is false.
func PanicIfFalse(b bool, format string, args ...interface{}) {
	if !b {
		panic(fmt.Sprintf(format, args...))
	}
}

// PanicIfTrue panics with a formatted message if b is true.
func PanicIfTrue(b bool, format string, args ...interface{}) {
	if b {
		panic(fmt.Sprintf(format, args...))
	}
}
