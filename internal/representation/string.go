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

package representation

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// FormatFloat returns the shortest string that parses back to exactly the same value.
//
// Infinities and NaN are formatted as "Infinity", "-Infinity", and "NaN".
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// ParseFloat parses a string produced by [FormatFloat] or any other valid float representation.
//
// Values too large for float64 are an overflow.
func ParseFloat(c Converter, s string) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			if math.IsInf(f, 0) {
				return f, c.Overflow(s, "float64")
			}

			// underflow to zero
			return f, c.Truncation(s, "float64")
		}

		return 0, lazyerrors.Errorf("%q is not a number: %w", s, bson.ErrFormat)
	}

	return f, nil
}

// FormatInteger returns the decimal representation of an integer.
func FormatInteger[T constraints.Integer](v T) string {
	if v < 0 {
		return strconv.FormatInt(int64(v), 10)
	}

	return strconv.FormatUint(uint64(v), 10)
}

// ParseInteger parses the decimal representation of an integer of type T.
func ParseInteger[T constraints.Integer](c Converter, s string) (T, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "-") {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return parseIntegerError[T](c, s, err)
		}

		return ToInteger[T](c, i)
	}

	u, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 10, 64)
	if err != nil {
		return parseIntegerError[T](c, s, err)
	}

	return ToInteger[T](c, u)
}

// parseIntegerError converts strconv error to overflow or format error.
func parseIntegerError[T constraints.Integer](c Converter, s string, err error) (T, error) {
	if !errors.Is(err, strconv.ErrRange) {
		return 0, lazyerrors.Errorf("%q is not an integer: %w", s, bson.ErrFormat)
	}

	minV, maxV, _ := integerLimits[T]()
	res := maxV

	if strings.HasPrefix(s, "-") {
		res = minV
	}

	return res, c.Overflow(s, typeName[T]())
}
