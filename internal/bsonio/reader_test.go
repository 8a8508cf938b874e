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

package bsonio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/must"
)

func TestReader(t *testing.T) {
	t.Parallel()

	b := must.NotFail(EncodeDocument(must.NotFail(bson.NewDocument(
		"name", "Ada",
		"age", int32(30),
		"tags", must.NotFail(bson.NewArray("x", "y")),
	))))

	r := NewReader(b)
	assert.Equal(t, StateInitial, r.State())

	require.NoError(t, r.ReadStartDocument())
	assert.Equal(t, 1, r.Depth())

	tag, err := r.ReadBSONType()
	require.NoError(t, err)
	assert.Equal(t, bson.TagString, tag)

	_, err = r.ReadInt32()
	assert.ErrorIs(t, err, bson.ErrFormat, "name is not read yet")

	name, err := r.ReadName()
	require.NoError(t, err)
	assert.Equal(t, "name", name)

	_, err = r.ReadInt32()
	assert.ErrorIs(t, err, bson.ErrFormat, "wrong type")

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "Ada", s)

	tag, err = r.ReadBSONType()
	require.NoError(t, err)
	assert.Equal(t, bson.TagInt32, tag)
	require.NoError(t, r.SkipName())
	require.NoError(t, r.SkipValue())

	tag, err = r.ReadBSONType()
	require.NoError(t, err)
	assert.Equal(t, bson.TagArray, tag)
	require.NoError(t, r.SkipName())
	require.NoError(t, r.ReadStartArray())

	var elements []string

	for {
		tag, err = r.ReadBSONType()
		require.NoError(t, err)

		if tag == bson.TagEndOfDocument {
			break
		}

		s, err = r.ReadString()
		require.NoError(t, err)
		elements = append(elements, s)
	}

	assert.Equal(t, []string{"x", "y"}, elements)
	assert.Equal(t, StateEndOfArray, r.State())

	assert.ErrorIs(t, r.ReadEndDocument(), bson.ErrFormat)
	require.NoError(t, r.ReadEndArray())
	require.NoError(t, r.ReadEndDocument())

	assert.Equal(t, StateDone, r.State())
	assert.True(t, r.IsAtEnd())
}

func TestReaderUnreadElement(t *testing.T) {
	t.Parallel()

	b := must.NotFail(EncodeDocument(must.NotFail(bson.NewDocument("a", int32(1)))))

	r := NewReader(b)
	require.NoError(t, r.ReadStartDocument())

	err := r.ReadEndDocument()
	assert.ErrorIs(t, err, bson.ErrFormat)
}

func TestBookmark(t *testing.T) {
	t.Parallel()

	b := must.NotFail(EncodeDocument(must.NotFail(bson.NewDocument(
		"a", int32(1),
		"nested", must.NotFail(bson.NewDocument("_t", "Dog", "name", "Rex")),
	))))

	r := NewReader(b)
	require.NoError(t, r.ReadStartDocument())

	found, err := r.FindElement("nested")
	require.NoError(t, err)
	require.True(t, found)

	bm := r.Bookmark()
	pos, depth, name, typ := r.Position(), r.Depth(), r.CurrentName(), r.CurrentType()

	require.NoError(t, r.ReadStartDocument())
	assert.Equal(t, 2, r.Depth())

	found, err = r.FindElement("_t")
	require.NoError(t, err)
	require.True(t, found)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "Dog", s)

	found, err = r.FindElement("missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, StateEndOfDocument, r.State())

	r.ReturnToBookmark(bm)
	assert.Equal(t, pos, r.Position())
	assert.Equal(t, depth, r.Depth())
	assert.Equal(t, name, r.CurrentName())
	assert.Equal(t, typ, r.CurrentType())
	assert.Equal(t, StateValue, r.State())

	v, err := r.ReadValue()
	require.NoError(t, err)
	expected := must.NotFail(bson.NewDocument("_t", "Dog", "name", "Rex"))
	assert.True(t, bson.Equal(expected, v))

	require.NoError(t, r.ReadEndDocument())
	assert.True(t, r.IsAtEnd())
}

func TestReadBSONTypeTrie(t *testing.T) {
	t.Parallel()

	trie, err := NewTrie("name", "nam", "age")
	require.NoError(t, err)

	b := must.NotFail(EncodeDocument(must.NotFail(bson.NewDocument(
		"age", int32(30),
		"na", "x",
		"name", "Ada",
		"names", "y",
	))))

	r := NewReader(b)
	require.NoError(t, r.ReadStartDocument())

	type result struct {
		name  string
		index int
		found bool
	}

	var actual []result

	for {
		tag, index, found, err := r.ReadBSONTypeTrie(trie)
		require.NoError(t, err)

		if tag == bson.TagEndOfDocument {
			break
		}

		actual = append(actual, result{name: r.CurrentName(), index: index, found: found})
		require.NoError(t, r.SkipValue())
	}

	require.NoError(t, r.ReadEndDocument())

	expected := []result{
		{name: "age", index: 2, found: true},
		{name: "na", index: -1},
		{name: "name", index: 0, found: true},
		{name: "names", index: -1},
	}
	assert.Equal(t, expected, actual)

	// {"\xff": int32(1)}
	r = NewReader([]byte{0x0c, 0x00, 0x00, 0x00, 0x10, 0xff, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, r.ReadStartDocument())

	_, _, _, err = r.ReadBSONTypeTrie(trie)
	assert.ErrorIs(t, err, bson.ErrFormat)
}

func TestTrie(t *testing.T) {
	t.Parallel()

	trie, err := NewTrie("a", "ab", "")
	require.NoError(t, err)
	assert.Equal(t, 3, trie.Len())

	i, ok := trie.Get("ab")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	i, ok = trie.Get("")
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = trie.Get("abc")
	assert.False(t, ok)

	assert.ErrorIs(t, trie.Add("a", 3), bson.ErrConfiguration)
	assert.ErrorIs(t, trie.Add("a\x00b", 4), bson.ErrConfiguration)

	_, err = NewTrie("x", "x")
	assert.ErrorIs(t, err, bson.ErrConfiguration)
}
