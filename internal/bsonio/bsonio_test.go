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
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mongobson "go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/must"
	"github.com/FerretDB/bsonmap/internal/util/testutil"
)

// testCase represents a single encode/decode test case.
type testCase struct {
	name string
	doc  *bson.Document
	b    []byte
}

var testCases = []testCase{
	{
		name: "empty",
		doc:  must.NotFail(bson.NewDocument()),
		b:    []byte{0x05, 0x00, 0x00, 0x00, 0x00},
	},
	{
		name: "ada",
		doc: must.NotFail(bson.NewDocument(
			"name", "Ada",
			"age", int32(30),
			"tags", must.NotFail(bson.NewArray("x", "y")),
		)),
		b: testutil.MustParseDump(`
			00000000  39 00 00 00 02 6e 61 6d  65 00 04 00 00 00 41 64  |9....name.....Ad|
			00000010  61 00 10 61 67 65 00 1e  00 00 00 04 74 61 67 73  |a..age......tags|
			00000020  00 17 00 00 00 02 30 00  02 00 00 00 78 00 02 31  |......0.....x..1|
			00000030  00 02 00 00 00 79 00 00  00                       |.....y...|
		`),
	},
	{
		name: "scalars",
		doc: must.NotFail(bson.NewDocument(
			"f64", 42.0,
			"bool", true,
			"null", bson.Null,
			"i64", int64(math.MaxInt64),
		)),
		b: testutil.MustParseDump(`
			00000000  2c 00 00 00 01 66 36 34  00 00 00 00 00 00 00 45  |,....f64.......E|
			00000010  40 08 62 6f 6f 6c 00 01  0a 6e 75 6c 6c 00 12 69  |@.bool...null..i|
			00000020  36 34 00 ff ff ff ff ff  ff ff 7f 00              |64..........|
		`),
	},
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b, err := EncodeDocument(tc.doc)
			require.NoError(t, err)
			testutil.AssertEqualBytes(t, tc.b, b)

			doc, err := DecodeDocument(tc.b)
			require.NoError(t, err)
			testutil.AssertEqual(t, tc.doc, doc)

			l, err := Size(tc.b)
			require.NoError(t, err)
			assert.Equal(t, len(tc.b), l)
		})
	}
}

// allTypes returns a document with values of every BSON type and the same document for mongo-driver.
func allTypes(t testing.TB) (*bson.Document, mongobson.D) {
	t.Helper()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	id := bson.ObjectID{0x65, 0x8f, 0x3a, 0x50, 1, 2, 3, 4, 5, 6, 7, 8}

	scope := must.NotFail(bson.NewDocument("x", int32(1)))

	doc := must.NotFail(bson.NewDocument(
		"double", 3.14,
		"string", "foo",
		"document", must.NotFail(bson.NewDocument("a", "b")),
		"array", must.NotFail(bson.NewArray(int32(1), "two")),
		"binary", bson.Binary{B: []byte{1, 2, 3}, Subtype: bson.BinaryUser},
		"undefined", bson.Undefined,
		"objectid", id,
		"bool", false,
		"datetime", ts,
		"null", bson.Null,
		"regex", bson.Regex{Pattern: "^a", Options: "i"},
		"dbpointer", bson.DBPointer{Namespace: "db.coll", ID: id},
		"javascript", bson.JavaScript("function() {}"),
		"symbol", bson.Symbol("sym"),
		"scope", bson.JavaScriptScope{Code: "x", Scope: scope},
		"int32", int32(-42),
		"timestamp", bson.Timestamp(42<<32|1),
		"int64", int64(-1),
		"decimal", bson.Decimal128{H: 0x3040000000000000, L: 42},
		"minkey", bson.MinKey,
		"maxkey", bson.MaxKey,
	))

	d := mongobson.D{
		{Key: "double", Value: 3.14},
		{Key: "string", Value: "foo"},
		{Key: "document", Value: mongobson.D{{Key: "a", Value: "b"}}},
		{Key: "array", Value: mongobson.A{int32(1), "two"}},
		{Key: "binary", Value: primitive.Binary{Subtype: 0x80, Data: []byte{1, 2, 3}}},
		{Key: "undefined", Value: primitive.Undefined{}},
		{Key: "objectid", Value: primitive.ObjectID(id)},
		{Key: "bool", Value: false},
		{Key: "datetime", Value: primitive.NewDateTimeFromTime(ts)},
		{Key: "null", Value: primitive.Null{}},
		{Key: "regex", Value: primitive.Regex{Pattern: "^a", Options: "i"}},
		{Key: "dbpointer", Value: primitive.DBPointer{DB: "db.coll", Pointer: primitive.ObjectID(id)}},
		{Key: "javascript", Value: primitive.JavaScript("function() {}")},
		{Key: "symbol", Value: primitive.Symbol("sym")},
		{Key: "scope", Value: primitive.CodeWithScope{
			Code:  "x",
			Scope: mongobson.D{{Key: "x", Value: int32(1)}},
		}},
		{Key: "int32", Value: int32(-42)},
		{Key: "timestamp", Value: primitive.Timestamp{T: 42, I: 1}},
		{Key: "int64", Value: int64(-1)},
		{Key: "decimal", Value: primitive.NewDecimal128(0x3040000000000000, 42)},
		{Key: "minkey", Value: primitive.MinKey{}},
		{Key: "maxkey", Value: primitive.MaxKey{}},
	}

	return doc, d
}

func TestMongoDriverCompatibility(t *testing.T) {
	t.Parallel()

	doc, d := allTypes(t)

	expected, err := mongobson.Marshal(d)
	require.NoError(t, err)

	actual, err := EncodeDocument(doc)
	require.NoError(t, err)
	testutil.AssertEqualBytes(t, expected, actual)

	decoded, err := DecodeDocument(expected)
	require.NoError(t, err)
	testutil.AssertEqual(t, doc, decoded)

	var raw mongobson.Raw = actual
	require.NoError(t, raw.Validate())
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	for name, b := range map[string][]byte{
		"Empty":         {},
		"Short":         {0x05, 0x00, 0x00},
		"LengthTooLow":  {0x04, 0x00, 0x00, 0x00, 0x00},
		"LengthTooHigh": {0x06, 0x00, 0x00, 0x00, 0x00},
		"NoTerminator":  {0x05, 0x00, 0x00, 0x00, 0x01},
		"ExtraBytes":    {0x05, 0x00, 0x00, 0x00, 0x00, 0x00},
		"UnknownType":   {0x08, 0x00, 0x00, 0x00, 0x42, 0x61, 0x00, 0x00},
		"StringOverrun": {
			0x0e, 0x00, 0x00, 0x00,
			0x02, 0x61, 0x00, 0x10, 0x00, 0x00, 0x00, 0x62, 0x00,
			0x00,
		},
		"NestedOverrun": {
			0x0d, 0x00, 0x00, 0x00,
			0x03, 0x61, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00,
			0x00,
		},
		"InvalidUTF8String": {
			0x0e, 0x00, 0x00, 0x00,
			0x02, 0x61, 0x00, 0x02, 0x00, 0x00, 0x00, 0xff, 0x00,
			0x00,
		},
		"InvalidUTF8Symbol": {
			0x0e, 0x00, 0x00, 0x00,
			0x0e, 0x61, 0x00, 0x02, 0x00, 0x00, 0x00, 0xc3, 0x00,
			0x00,
		},
		"InvalidUTF8Name": {
			0x0c, 0x00, 0x00, 0x00,
			0x10, 0xff, 0x00, 0x01, 0x00, 0x00, 0x00,
			0x00,
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeDocument(b)
			assert.ErrorIs(t, err, bson.ErrFormat)
		})
	}
}

func TestDepth(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(bson.NewDocument())
	for range DefaultMaxDepth {
		doc = must.NotFail(bson.NewDocument("d", doc))
	}

	_, err := EncodeDocument(doc)
	assert.ErrorIs(t, err, bson.ErrFormat)

	w := NewWriter()
	w.SetMaxDepth(DefaultMaxDepth + 1)
	require.NoError(t, w.writeDocument(doc))
	b := must.NotFail(w.Bytes())

	_, err = DecodeDocument(b)
	assert.ErrorIs(t, err, bson.ErrFormat)

	r := NewReader(b)
	r.SetMaxDepth(DefaultMaxDepth + 1)
	_, err = r.ReadValue()
	assert.NoError(t, err)
}

func FuzzDecode(f *testing.F) {
	for _, tc := range testCases {
		f.Add(tc.b)
	}

	doc, _ := allTypes(f)
	f.Add(must.NotFail(EncodeDocument(doc)))

	f.Fuzz(func(t *testing.T, b []byte) {
		t.Parallel()

		doc, err := DecodeDocument(b)
		if err != nil {
			t.Skip()
		}

		b2, err := EncodeDocument(doc)
		require.NoError(t, err)

		doc2, err := DecodeDocument(b2)
		require.NoError(t, err)
		testutil.AssertEqual(t, doc, doc2)
	})
}
