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

package serialization

import (
	"container/list"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/util/must"
	"github.com/FerretDB/bsonmap/internal/util/testutil"
)

// lookup returns the registry serializer for T.
func lookup[T any](tb testing.TB, reg *Registry) Serializer {
	tb.Helper()

	s, err := reg.LookupSerializer(reflect.TypeFor[T]())
	require.NoError(tb, err)

	return s
}

// encodeRaw writes the BSON value v as the element "v" of a document.
func encodeRaw(tb testing.TB, v any) []byte {
	tb.Helper()

	return must.NotFail(bsonio.EncodeDocument(must.NotFail(bson.NewDocument("v", v))))
}

func TestSliceSerializer(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	s := lookup[[]int32](t, reg)

	assert.Equal(t, []int32{1, 2, 3}, roundTrip(t, s, []int32{1, 2, 3}, bson.TagArray))
	assert.Nil(t, roundTrip(t, s, []int32(nil), bson.TagNull))

	empty := roundTrip(t, s, []int32{}, bson.TagArray)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	b := must.NotFail(encodeElement(s, valueOf([]int32{7, 8})))
	testutil.AssertEqual(t, must.NotFail(bson.NewArray(int32(7), int32(8))), wireValue(t, b).(*bson.Array))

	_, err := decodeElement(s, encodeRaw(t, must.NotFail(bson.NewArray(int32(1), "two"))))
	assert.ErrorIs(t, err, bson.ErrFormat)

	_, err = decodeElement(s, encodeRaw(t, "not an array"))
	assert.ErrorIs(t, err, bson.ErrFormat)

	t.Run("Nested", func(t *testing.T) {
		t.Parallel()

		s := lookup[[][]string](t, reg)

		v := [][]string{{"a"}, nil, {}, {"b", "c"}}
		assert.Equal(t, v, roundTrip(t, s, v, bson.TagArray))
	})

	t.Run("ElementSerializer", func(t *testing.T) {
		t.Parallel()

		elem := withRepr(t, lookup[int32](t, reg), bson.TagString)

		s := must.NotFail(NewSliceSerializer(reg, reflect.TypeFor[[]int32]()))
		s = must.NotFail(s.WithElementSerializer(elem))

		b := must.NotFail(encodeElement(s, valueOf([]int32{1, -2})))
		testutil.AssertEqual(t, must.NotFail(bson.NewArray("1", "-2")), wireValue(t, b).(*bson.Array))

		_, err := must.NotFail(NewSliceSerializer(reg, reflect.TypeFor[[]int64]())).WithElementSerializer(elem)
		assert.ErrorIs(t, err, bson.ErrConfiguration)
	})

	t.Run("Any", func(t *testing.T) {
		t.Parallel()

		s := lookup[[]any](t, reg)

		v := []any{int32(1), "two", nil, true, 4.5, int32(6)}
		assert.Equal(t, v, roundTrip(t, s, v, bson.TagArray))

		// Go values without a natural BSON counterpart are read as BSON values
		actual := roundTrip(t, s, []any{int8(1), []string{"x"}}, bson.TagArray)
		require.Len(t, actual, 2)
		assert.Equal(t, int32(1), actual[0])
		testutil.AssertEqual(t, must.NotFail(bson.NewArray("x")), actual[1].(*bson.Array))
	})
}

func TestArraySerializer(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	s := lookup[[3]int](t, reg)

	assert.Equal(t, [3]int{1, 2, 3}, roundTrip(t, s, [3]int{1, 2, 3}, bson.TagArray))
	assert.Equal(t, [3]int{}, roundTrip(t, s, [3]int{}, bson.TagArray))

	for name, arr := range map[string]*bson.Array{
		"Short": must.NotFail(bson.NewArray(int64(1), int64(2))),
		"Long":  must.NotFail(bson.NewArray(int64(1), int64(2), int64(3), int64(4))),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := decodeElement(s, encodeRaw(t, arr))
			assert.ErrorIs(t, err, bson.ErrFormat)
		})
	}

	_, err := decodeElement(s, encodeRaw(t, bson.Null))
	assert.ErrorIs(t, err, bson.ErrFormat)
}

func TestListSerializer(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	s := lookup[*list.List](t, reg)
	assert.IsType(t, (*ListSerializer)(nil), s)

	l := list.New()
	l.PushBack(int32(1))
	l.PushBack("two")
	l.PushBack(nil)

	b := must.NotFail(encodeElement(s, valueOf(l)))
	testutil.AssertEqual(t, must.NotFail(bson.NewArray(int32(1), "two", bson.Null)), wireValue(t, b).(*bson.Array))

	v, err := decodeElement(s, b)
	require.NoError(t, err)

	actual := v.Interface().(*list.List)
	require.Equal(t, 3, actual.Len())

	var values []any
	for e := actual.Front(); e != nil; e = e.Next() {
		values = append(values, e.Value)
	}

	assert.Equal(t, []any{int32(1), "two", nil}, values)

	assert.Nil(t, roundTrip(t, s, (*list.List)(nil), bson.TagNull))
}

func TestMapSerializer(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	s := lookup[map[string]int32](t, reg)

	t.Run("Document", func(t *testing.T) {
		t.Parallel()

		m := map[string]int32{"b": 2, "a": 1, "c": 3}

		b := must.NotFail(encodeElement(s, valueOf(m)))
		expected := must.NotFail(bson.NewDocument("a", int32(1), "b", int32(2), "c", int32(3)))
		testutil.AssertEqual(t, expected, wireValue(t, b).(*bson.Document))

		assert.Equal(t, m, roundTrip(t, s, m, bson.TagDocument))
		assert.Equal(t, map[string]int32{}, roundTrip(t, s, map[string]int32{}, bson.TagDocument))
		assert.Nil(t, roundTrip(t, s, map[string]int32(nil), bson.TagNull))
	})

	t.Run("Dynamic", func(t *testing.T) {
		t.Parallel()

		for name, key := range map[string]string{
			"Dot":    "a.b",
			"Dollar": "$a",
			"Empty":  "",
		} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				m := map[string]int32{"ok": 1, key: 2}

				b := must.NotFail(encodeElement(s, valueOf(m)))
				assert.Equal(t, bson.TagArray, bson.TagOf(wireValue(t, b)))

				assert.Equal(t, m, must.NotFail(decodeElement(s, b)).Interface())
			})
		}

		b := must.NotFail(encodeElement(s, valueOf(map[string]int32{"$a": 2, "b": 1})))
		expected := must.NotFail(bson.NewArray(
			must.NotFail(bson.NewArray("$a", int32(2))),
			must.NotFail(bson.NewArray("b", int32(1))),
		))
		testutil.AssertEqual(t, expected, wireValue(t, b).(*bson.Array))

		// dollars in the middle are fine
		b = must.NotFail(encodeElement(s, valueOf(map[string]int32{"a$": 1})))
		assert.Equal(t, bson.TagDocument, bson.TagOf(wireValue(t, b)))

		for name, expected := range map[string]bool{
			"a":     true,
			"a$":    true,
			"_id":   true,
			"":      false,
			"$a":    false,
			"a.b":   false,
			"a\x00": false,
		} {
			assert.Equal(t, expected, validElementName(name), "%q", name)
		}
	})

	t.Run("ArrayOfDocuments", func(t *testing.T) {
		t.Parallel()

		ms := must.NotFail(s.(*MapSerializer).WithMapRepresentation(MapArrayOfDocuments))
		assert.Equal(t, bson.TagArray, ms.Representation())

		m := map[string]int32{"x": 1, "y": 2}

		b := must.NotFail(encodeElement(ms, valueOf(m)))
		expected := must.NotFail(bson.NewArray(
			must.NotFail(bson.NewDocument("k", "x", "v", int32(1))),
			must.NotFail(bson.NewDocument("k", "y", "v", int32(2))),
		))
		testutil.AssertEqual(t, expected, wireValue(t, b).(*bson.Array))

		// all representations are read by any map serializer
		assert.Equal(t, m, must.NotFail(decodeElement(s, b)).Interface())
	})

	t.Run("IntegerKeys", func(t *testing.T) {
		t.Parallel()

		s := lookup[map[int]string](t, reg)

		m := map[int]string{10: "ten", -1: "minus one", 2: "two"}

		b := must.NotFail(encodeElement(s, valueOf(m)))
		expected := must.NotFail(bson.NewDocument("-1", "minus one", "2", "two", "10", "ten"))
		testutil.AssertEqual(t, expected, wireValue(t, b).(*bson.Document))

		assert.Equal(t, m, roundTrip(t, s, m, bson.TagDocument))

		_, err := decodeElement(s, encodeRaw(t, must.NotFail(bson.NewDocument("x", "not a number"))))
		assert.ErrorIs(t, err, bson.ErrFormat)

		_, err = decodeElement(
			lookup[map[uint8]string](t, reg),
			encodeRaw(t, must.NotFail(bson.NewDocument("256", "too big"))),
		)
		assert.ErrorIs(t, err, bson.ErrDataLoss)
	})

	t.Run("ComplexKeys", func(t *testing.T) {
		t.Parallel()

		type point struct {
			X int32 `bson:"x"`
			Y int32 `bson:"y"`
		}

		s := lookup[map[bool]point](t, reg)

		m := map[bool]point{true: {X: 1}, false: {Y: 2}}
		assert.Equal(t, m, roundTrip(t, s, m, bson.TagArray))

		_, err := s.(*MapSerializer).WithMapRepresentation(MapDocument)
		assert.ErrorIs(t, err, bson.ErrConfiguration)
	})

	t.Run("InvalidPairs", func(t *testing.T) {
		t.Parallel()

		for name, v := range map[string]any{
			"ShortArray":  must.NotFail(bson.NewArray(must.NotFail(bson.NewArray("a")))),
			"LongArray":   must.NotFail(bson.NewArray(must.NotFail(bson.NewArray("a", int32(1), int32(2))))),
			"NoValue":     must.NotFail(bson.NewArray(must.NotFail(bson.NewDocument("k", "a")))),
			"ExtraField":  must.NotFail(bson.NewArray(must.NotFail(bson.NewDocument("k", "a", "v", int32(1), "x", true)))),
			"ScalarPair":  must.NotFail(bson.NewArray("a")),
			"WrongTypeKV": must.NotFail(bson.NewArray(must.NotFail(bson.NewArray(int32(1), int32(1))))),
		} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				_, err := decodeElement(s, encodeRaw(t, v))
				assert.ErrorIs(t, err, bson.ErrFormat)
			})
		}
	})

	t.Run("AnyKeys", func(t *testing.T) {
		t.Parallel()

		s := lookup[map[any]int32](t, reg)

		m := map[any]int32{"b": 4, int64(1): 2, "a": 3, int32(2): 1}

		b := must.NotFail(encodeElement(s, valueOf(m)))
		expected := must.NotFail(bson.NewArray(
			must.NotFail(bson.NewArray(int32(2), int32(1))),
			must.NotFail(bson.NewArray(int64(1), int32(2))),
			must.NotFail(bson.NewArray("a", int32(3))),
			must.NotFail(bson.NewArray("b", int32(4))),
		))
		testutil.AssertEqual(t, expected, wireValue(t, b).(*bson.Array))

		assert.Equal(t, m, roundTrip(t, s, m, bson.TagArray))

		for name, pair := range map[string]any{
			"ArrayPair":    must.NotFail(bson.NewArray(bson.Binary{B: []byte{1}}, int32(1))),
			"DocumentPair": must.NotFail(bson.NewDocument("k", bson.Binary{B: []byte{1}}, "v", int32(1))),
		} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				_, err := decodeElement(s, encodeRaw(t, must.NotFail(bson.NewArray(pair))))
				assert.ErrorIs(t, err, bson.ErrFormat)
			})
		}
	})

	t.Run("AnyValues", func(t *testing.T) {
		t.Parallel()

		s := lookup[map[string]any](t, reg)

		m := map[string]any{"a": int32(1), "b": "x", "c": nil, "d": must.NotFail(bson.NewDocument("e", false))}

		actual := roundTrip(t, s, m, bson.TagDocument)
		require.Len(t, actual, 4)
		assert.Equal(t, int32(1), actual["a"])
		assert.Equal(t, "x", actual["b"])
		assert.Nil(t, actual["c"])
		testutil.AssertEqual(t, m["d"].(*bson.Document), actual["d"].(*bson.Document))
	})
}

func TestMapRepresentation(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	s := must.NotFail(NewMapSerializer(reg, reflect.TypeFor[map[string]int]()))
	assert.Equal(t, MapDynamic, s.MapRepresentation())
	assert.Equal(t, bson.TagDocument, s.Representation())

	arr, err := s.WithRepresentation(bson.TagArray)
	require.NoError(t, err)
	assert.Equal(t, MapArrayOfArrays, arr.(*MapSerializer).MapRepresentation())

	doc := must.NotFail(s.WithMapRepresentation(MapDocument))

	// explicit Document representation does not check keys
	b := must.NotFail(encodeElement(doc, valueOf(map[string]int{"a.b": 1})))
	testutil.AssertEqual(t, must.NotFail(bson.NewDocument("a.b", int64(1))), wireValue(t, b).(*bson.Document))

	_, err = encodeElement(doc, valueOf(map[string]int{"a\x00": 1}))
	assert.ErrorIs(t, err, bson.ErrFormat)

	_, err = s.WithRepresentation(bson.TagString)
	assert.ErrorIs(t, err, bson.ErrConfiguration)

	_, err = s.WithMapRepresentation(MapRepresentation(42))
	assert.ErrorIs(t, err, bson.ErrConfiguration)

	assert.Equal(t, "ArrayOfDocuments", MapArrayOfDocuments.String())
	assert.Equal(t, "MapRepresentation(42)", MapRepresentation(42).String())

	_, err = NewMapSerializer(reg, reflect.TypeFor[[]int]())
	assert.ErrorIs(t, err, bson.ErrConfiguration)
}

func TestSetSerializer(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	s := lookup[map[string]struct{}](t, reg)

	set := map[string]struct{}{"c": {}, "a": {}, "b": {}}

	b := must.NotFail(encodeElement(s, valueOf(set)))
	testutil.AssertEqual(t, must.NotFail(bson.NewArray("a", "b", "c")), wireValue(t, b).(*bson.Array))

	assert.Equal(t, set, roundTrip(t, s, set, bson.TagArray))
	assert.Nil(t, roundTrip(t, s, map[string]struct{}(nil), bson.TagNull))

	// duplicates collapse
	v, err := decodeElement(s, encodeRaw(t, must.NotFail(bson.NewArray("x", "x"))))
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"x": {}}, v.Interface())

	is := lookup[map[int32]struct{}](t, reg)
	assert.Equal(t, map[int32]struct{}{3: {}, 1: {}}, roundTrip(t, is, map[int32]struct{}{3: {}, 1: {}}, bson.TagArray))

	// Binary is not hashable
	_, err = decodeElement(lookup[map[any]struct{}](t, reg), encodeRaw(t, must.NotFail(bson.NewArray(bson.Binary{B: []byte{1}}))))
	assert.ErrorIs(t, err, bson.ErrFormat)

	_, err = NewSetSerializer(reg, reflect.TypeFor[map[string]bool]())
	assert.ErrorIs(t, err, bson.ErrConfiguration)
}
