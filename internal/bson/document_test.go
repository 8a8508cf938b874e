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

package bson

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/bsonmap/internal/util/must"
)

func TestDocument(t *testing.T) {
	t.Parallel()

	t.Run("NewDocument", func(t *testing.T) {
		t.Parallel()

		doc, err := NewDocument("name", "Ada", "age", int32(36))
		require.NoError(t, err)

		assert.Equal(t, 2, doc.Len())
		assert.Equal(t, []string{"name", "age"}, doc.FieldNames())
		assert.Equal(t, "Ada", doc.Get("name"))
		assert.Equal(t, int32(36), doc.Get("age"))
		assert.Nil(t, doc.Get("missing"))

		name, value := doc.GetByIndex(1)
		assert.Equal(t, "age", name)
		assert.Equal(t, int32(36), value)
	})

	t.Run("OddPairs", func(t *testing.T) {
		t.Parallel()

		_, err := NewDocument("name")
		assert.Error(t, err)
	})

	t.Run("InvalidType", func(t *testing.T) {
		t.Parallel()

		_, err := NewDocument("i", 42)
		assert.ErrorIs(t, err, ErrFormat)

		_, err = NewDocument("doc", (*Document)(nil))
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("Duplicates", func(t *testing.T) {
		t.Parallel()

		doc := MakeDocument(0)
		require.NoError(t, doc.Add("a", int32(1)))
		require.NoError(t, doc.Add("a", int32(2)))

		assert.Equal(t, []string{"a", "a"}, doc.FieldNames())
		assert.Equal(t, int32(1), doc.Get("a"))

		require.NoError(t, doc.Set("a", "x"))
		assert.Equal(t, "x", doc.Get("a"))

		doc.Remove("a")
		assert.Equal(t, int32(2), doc.Get("a"))

		doc.Remove("a")
		doc.Remove("a")
		assert.Equal(t, 0, doc.Len())
	})
}

func TestArray(t *testing.T) {
	t.Parallel()

	arr, err := NewArray("a", int64(1), Null)
	require.NoError(t, err)

	assert.Equal(t, 3, arr.Len())
	assert.Equal(t, int64(1), arr.Get(1))
	assert.Equal(t, []any{"a", int64(1), Null}, arr.Values())

	_, err = NewArray(uint8(1))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestEqual(t *testing.T) {
	t.Parallel()

	now := time.Now()

	for name, tc := range map[string]struct {
		a, b     any
		expected bool
	}{
		"Int32Int64": {
			a: int32(1),
			b: int64(1),
		},
		"Int32": {
			a:        int32(1),
			b:        int32(1),
			expected: true,
		},
		"Time": {
			a:        now,
			b:        now.UTC(),
			expected: true,
		},
		"Binary": {
			a:        Binary{B: []byte{1}, Subtype: BinaryUser},
			b:        Binary{B: []byte{1}, Subtype: BinaryUser},
			expected: true,
		},
		"BinarySubtype": {
			a: Binary{B: []byte{1}, Subtype: BinaryUser},
			b: Binary{B: []byte{1}},
		},
		"Documents": {
			a:        must.NotFail(NewDocument("a", int32(1), "b", must.NotFail(NewArray("x")))),
			b:        must.NotFail(NewDocument("a", int32(1), "b", must.NotFail(NewArray("x")))),
			expected: true,
		},
		"DocumentOrder": {
			a: must.NotFail(NewDocument("a", int32(1), "b", int32(2))),
			b: must.NotFail(NewDocument("b", int32(2), "a", int32(1))),
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, Equal(tc.a, tc.b))
			assert.Equal(t, tc.expected, Equal(tc.b, tc.a))
		})
	}
}

func TestTag(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "long", TagInt64.String())
	assert.Equal(t, "Tag(0x42)", Tag(0x42).String())
	assert.False(t, TagEndOfDocument.Valid())
	assert.True(t, TagMinKey.Valid())

	tag, err := ParseTag("BinData")
	require.NoError(t, err)
	assert.Equal(t, TagBinary, tag)

	_, err = ParseTag("integer")
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.Equal(t, TagDecimal128, TagOf(Decimal128{}))
	assert.Panics(t, func() { TagOf(uint(1)) })
}

func TestObjectIDHex(t *testing.T) {
	t.Parallel()

	id, err := ObjectIDFromHex("0102030405060708090a0b0c")
	require.NoError(t, err)
	assert.Equal(t, ObjectID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, id)
	assert.Equal(t, "0102030405060708090a0b0c", ObjectIDHex(id))

	_, err = ObjectIDFromHex("0102")
	assert.ErrorIs(t, err, ErrFormat)

	_, err = ObjectIDFromHex("zz02030405060708090a0b0c")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLogging(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(NewDocument(
		"f64", 42.0,
		"str", "foo",
		"arr", must.NotFail(NewArray(int32(1), int64(2))),
		"null", Null,
	))

	assert.Equal(t, `{"f64": 42.0, "str": "foo", "arr": [1, int64(2)], "null": null}`, doc.LogMessage())
	assert.True(t, strings.HasPrefix(doc.LogMessageBlock(), "{\n  \"f64\": 42.0,\n"))

	var sb strings.Builder
	l := slog.New(slog.NewTextHandler(&sb, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}

			return a
		},
	}))

	l.Info("msg", "doc", doc)
	assert.Contains(t, sb.String(), `level=INFO msg=msg doc.f64=42 doc.str=foo doc.arr.0=1 doc.arr.1=2`)
}
