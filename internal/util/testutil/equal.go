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

package testutil

import (
	"fmt"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/hex"
)

// AssertEqual asserts that two BSON values are equal.
//
// Values are compared with [bson.Equal], so NaNs with the same bits are equal,
// and times are compared by their instants.
func AssertEqual[T bson.Type](tb testing.TB, expected, actual T) bool {
	tb.Helper()

	if bson.Equal(expected, actual) {
		return true
	}

	expectedS, actualS := logMessage(expected), logMessage(actual)
	msg := fmt.Sprintf("Not equal: \nexpected: %s\nactual  : %s\n%s", expectedS, actualS, diff(tb, expectedS, actualS))

	return assert.Fail(tb, msg)
}

// AssertEqualBytes asserts that two byte slices are equal, showing the diff of their hex dumps.
func AssertEqualBytes(tb testing.TB, expected, actual []byte) bool {
	tb.Helper()

	if string(expected) == string(actual) {
		return true
	}

	expectedS, actualS := hex.Dump(expected), hex.Dump(actual)
	msg := fmt.Sprintf("Not equal: \nexpected:\n%s\nactual:\n%s\n%s", expectedS, actualS, diff(tb, expectedS, actualS))

	return assert.Fail(tb, msg)
}

// logMessage returns a multi-line representation of a BSON value suitable for diffing.
func logMessage(v any) string {
	switch v := v.(type) {
	case *bson.Document:
		if v != nil {
			return v.LogMessageBlock()
		}
	case *bson.Array:
		if v != nil {
			return v.LogMessage()
		}
	}

	return fmt.Sprintf("%#v", v)
}

// diff returns a unified diff of two multi-line strings.
func diff(tb testing.TB, expected, actual string) string {
	tb.Helper()

	res, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		FromFile: "expected",
		B:        difflib.SplitLines(actual),
		ToFile:   "actual",
		Context:  1,
	})
	require.NoError(tb, err)

	return res
}
