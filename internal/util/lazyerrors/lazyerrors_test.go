// Copyright 2021 FerretDB Inc.
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

package lazyerrors

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBase = errors.New("base")

func TestErrors(t *testing.T) {
	t.Parallel()

	err := New("err")
	err1 := Errorf("err1: %w", err)
	err2 := Error(err1)

	assert.Regexp(t, `^\[lazyerrors_test.go:\d+ lazyerrors.TestErrors\] err$`, err.Error())
	assert.Regexp(t, regexp.MustCompile(
		`^\[lazyerrors_test.go:\d+ lazyerrors.TestErrors\] err1: \[lazyerrors_test.go:\d+ lazyerrors.TestErrors\] err$`,
	), err1.Error())
	assert.Contains(t, err2.Error(), "err1: ")

	assert.ErrorIs(t, err2, err1)
	assert.ErrorIs(t, err2, err)
	assert.Equal(t, "err", UnwrapAll(err2).Error())
}

func TestMultipleWrap(t *testing.T) {
	t.Parallel()

	other := errors.New("other")
	err := Errorf("%w: %w", errBase, other)

	assert.ErrorIs(t, err, errBase)
	assert.ErrorIs(t, err, other)
	assert.Equal(t, errBase, UnwrapAll(err))
}

func TestUnwrapAll(t *testing.T) {
	t.Parallel()

	assert.Nil(t, UnwrapAll(nil))
	assert.Equal(t, errBase, UnwrapAll(errBase))
	assert.Equal(t, errBase, UnwrapAll(fmt.Errorf("a: %w", fmt.Errorf("b: %w", errBase))))
}

func TestErrorNil(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { _ = Error(nil) })
}

var drain any

func BenchmarkNew(b *testing.B) {
	for i := 0; i < b.N; i++ {
		drain = New("err")
	}

	b.StopTimer()

	assert.NotNil(b, drain)
}
