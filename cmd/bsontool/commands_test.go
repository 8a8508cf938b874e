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

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/serialization"
	"github.com/FerretDB/bsonmap/internal/util/hex"
	"github.com/FerretDB/bsonmap/internal/util/must"
	"github.com/FerretDB/bsonmap/internal/util/testutil"
)

// testData returns two concatenated documents.
func testData(tb testing.TB) []byte {
	tb.Helper()

	doc1 := must.NotFail(bson.NewDocument(
		"name", "Ada",
		"age", int32(30),
		"tags", must.NotFail(bson.NewArray("x", "y")),
	))
	doc2 := must.NotFail(bson.NewDocument(
		"name", "Bob",
		"age", int64(40),
		"address", must.NotFail(bson.NewDocument("city", "Paris")),
	))

	return append(must.NotFail(bsonio.EncodeDocument(doc1)), must.NotFail(bsonio.EncodeDocument(doc2))...)
}

// failingWriter fails all writes.
type failingWriter struct{}

// Write implements io.Writer.
func (failingWriter) Write([]byte) (int, error) {
	return 0, io.ErrClosedPipe
}

// writeFile writes b to a new temporary file and returns its path.
func writeFile(tb testing.TB, b []byte) string {
	tb.Helper()

	f := filepath.Join(tb.TempDir(), "data.bson")
	require.NoError(tb, os.WriteFile(f, b, 0o666))

	return f
}

func newTestRegistry(tb testing.TB) *serialization.Registry {
	tb.Helper()

	return serialization.NewRegistry(&serialization.NewRegistryOpts{Logger: testutil.Logger(tb)})
}

func TestDump(t *testing.T) {
	t.Parallel()

	b := testData(t)
	f := writeFile(t, b)
	first := must.NotFail(bsonio.Size(b))

	var buf bytes.Buffer
	err := dump(&buf, newTestRegistry(t), new(inputs), []string{f}, new(dumpOpts))
	require.NoError(t, err)

	expected := "# " + f + " @ 0\n" +
		`{"name": "Ada", "age": 30, "tags": ["x", "y"]}` + "\n" +
		"# " + f + " @ " + strconv.Itoa(first) + "\n" +
		`{"name": "Bob", "age": int64(40), "address": {"city": "Paris"}}` + "\n"
	assert.Equal(t, expected, buf.String())

	t.Run("Block", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		err := dump(&buf, newTestRegistry(t), new(inputs), []string{f}, &dumpOpts{block: true})
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "{\n  \"name\": \"Ada\",\n")
	})

	t.Run("Hex", func(t *testing.T) {
		t.Parallel()

		in := &inputs{hex: true, stdin: strings.NewReader(hex.Dump(b))}

		var buf bytes.Buffer
		err := dump(&buf, newTestRegistry(t), in, []string{"-"}, &dumpOpts{hexDump: true})
		require.NoError(t, err)

		out := buf.String()
		assert.Contains(t, out, "# - @ 0\n")
		assert.Contains(t, out, hex.Dump(b[:first]))
		assert.Contains(t, out, `"city": "Paris"`)
	})

	t.Run("InvalidHex", func(t *testing.T) {
		t.Parallel()

		in := &inputs{hex: true, stdin: strings.NewReader("zz")}

		err := dump(new(bytes.Buffer), newTestRegistry(t), in, []string{"-"}, new(dumpOpts))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	b := testData(t)
	first := must.NotFail(bsonio.Size(b))

	corrupted := bytes.Clone(b)
	corrupted[first+4] = 0x99 // type of the first element of the second document

	valid := writeFile(t, b)
	truncated := writeFile(t, b[:len(b)-1])
	invalid := writeFile(t, corrupted)
	missing := filepath.Join(t.TempDir(), "missing.bson")

	opts := &validateOpts{l: testutil.Logger(t)}

	var buf bytes.Buffer
	err := validate(&buf, newTestRegistry(t), new(inputs), []string{valid}, opts)
	require.NoError(t, err)
	assert.Equal(t, valid+": 2 documents\n", buf.String())

	buf.Reset()
	err = validate(&buf, newTestRegistry(t), new(inputs), []string{truncated, invalid, valid}, opts)
	assert.ErrorIs(t, err, bson.ErrFormat)
	assert.ErrorContains(t, err, truncated)

	expected := truncated + ": invalid after 1 documents\n" +
		invalid + ": invalid after 1 documents\n" +
		valid + ": 2 documents\n"
	assert.Equal(t, expected, buf.String())

	buf.Reset()
	err = validate(&buf, newTestRegistry(t), new(inputs), []string{missing}, opts)
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = validate(failingWriter{}, newTestRegistry(t), new(inputs), []string{valid}, opts)
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	err = validate(failingWriter{}, newTestRegistry(t), new(inputs), []string{truncated}, opts)
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	t.Run("Record", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		opts := &validateOpts{record: dir, l: testutil.Logger(t)}

		err := validate(new(bytes.Buffer), newTestRegistry(t), new(inputs), []string{truncated, invalid, valid}, opts)
		assert.ErrorIs(t, err, bson.ErrFormat)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		var recorded []string
		for _, e := range entries {
			recorded = append(recorded, string(must.NotFail(os.ReadFile(filepath.Join(dir, e.Name())))))
		}

		assert.Contains(t, recorded, fmt.Sprintf("go test fuzz v1\n[]byte(%q)\n", b[first:len(b)-1]))
		assert.Contains(t, recorded, fmt.Sprintf("go test fuzz v1\n[]byte(%q)\n", corrupted[first:]))
	})
}

func TestSplit(t *testing.T) {
	t.Parallel()

	b := testData(t)
	first := must.NotFail(bsonio.Size(b))

	raws, err := split(b)
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, 0, raws[0].offset)
	assert.Equal(t, first, raws[1].offset)
	assert.Equal(t, b[first:], raws[1].b)

	raws, err = split(append(b, 1, 2))
	assert.ErrorIs(t, err, bson.ErrFormat)
	assert.ErrorContains(t, err, "offset "+strconv.Itoa(len(b)))
	assert.Len(t, raws, 2)

	raws, err = split(nil)
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestSchema(t *testing.T) {
	t.Parallel()

	f := writeFile(t, testData(t))

	var buf bytes.Buffer
	err := schema(&buf, newTestRegistry(t), new(inputs), []string{f, f})
	require.NoError(t, err)

	expected := strings.Join([]string{
		"address\tobject\t2",
		"address.city\tstring\t2",
		"age\tint\t2",
		"age\tlong\t2",
		"name\tstring\t4",
		"tags\tarray\t2",
		"tags.[]\tstring\t4",
	}, "\n") + "\n"
	assert.Equal(t, expected, buf.String())
}
