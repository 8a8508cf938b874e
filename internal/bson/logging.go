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
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// logFlowLimit is the maximum length of a flow/inline/compact representation of a BSON value.
// It may be set to 0 to disable flow representation.
const logFlowLimit = 80

const logDepthLimit = 20

// nanBits is the most common pattern of a NaN float64 value, the same as math.Float64bits(math.NaN()).
const nanBits = 0b111111111111000000000000000000000000000000000000000000000000001

// slogValue returns a compact representation of any BSON value as [slog.Value].
// It may change over time.
//
// Some information is lost;
// for example, both int32 and int64 values are returned with [slog.KindInt64],
// and arrays are treated as documents with "0", "1", ... keys.
func slogValue(v any, depth int) slog.Value {
	switch v := v.(type) {
	case *Document:
		if depth > logDepthLimit {
			return slog.StringValue("Document<...>")
		}

		var attrs []slog.Attr

		for _, f := range v.fields {
			attrs = append(attrs, slog.Attr{Key: f.name, Value: slogValue(f.value, depth+1)})
		}

		return slog.GroupValue(attrs...)

	case *Array:
		if depth > logDepthLimit {
			return slog.StringValue("Array<...>")
		}

		var attrs []slog.Attr

		for i, e := range v.elements {
			attrs = append(attrs, slog.Attr{Key: strconv.Itoa(i), Value: slogValue(e, depth+1)})
		}

		return slog.GroupValue(attrs...)

	case float64:
		// for JSON handler to work
		switch {
		case math.IsNaN(v):
			return slog.StringValue("NaN")
		case math.IsInf(v, 1):
			return slog.StringValue("+Inf")
		case math.IsInf(v, -1):
			return slog.StringValue("-Inf")
		}

		return slog.Float64Value(v)

	case string:
		return slog.StringValue(v)

	case bool:
		return slog.BoolValue(v)

	case time.Time:
		return slog.TimeValue(v.Truncate(time.Millisecond).UTC())

	case NullType:
		return slog.Value{}

	case int32:
		return slog.Int64Value(int64(v))

	case int64:
		return slog.Int64Value(v)

	default:
		return slog.StringValue(logMessage(v, logFlowLimit, "", depth))
	}
}

// logMessage returns an indented representation of any BSON value as a string,
// somewhat similar (but not identical) to JSON or Go syntax.
// It may change over time.
//
// Values shorter than flowLimit are written on a single line.
// All information is preserved.
func logMessage(v any, flowLimit int, indent string, depth int) string {
	switch v := v.(type) {
	case *Document:
		l := len(v.fields)
		if l == 0 {
			return "{}"
		}

		if depth > logDepthLimit {
			return "{...}"
		}

		if flowLimit > 0 {
			res := "{"

			for i, f := range v.fields {
				res += strconv.Quote(f.name) + `: `
				res += logMessage(f.value, flowLimit, "", depth+1)

				if i != l-1 {
					res += ", "
				}
			}

			res += `}`

			if len(res) < flowLimit {
				return res
			}
		}

		res := "{\n"

		for _, f := range v.fields {
			res += indent + "  "
			res += strconv.Quote(f.name) + `: `
			res += logMessage(f.value, flowLimit, indent+"  ", depth+1) + ",\n"
		}

		res += indent + `}`

		return res

	case *Array:
		l := len(v.elements)
		if l == 0 {
			return "[]"
		}

		if depth > logDepthLimit {
			return "[...]"
		}

		if flowLimit > 0 {
			res := "["

			for i, e := range v.elements {
				res += logMessage(e, flowLimit, "", depth+1)

				if i != l-1 {
					res += ", "
				}
			}

			res += `]`

			if len(res) < flowLimit {
				return res
			}
		}

		res := "[\n"

		for _, e := range v.elements {
			res += indent + "  "
			res += logMessage(e, flowLimit, indent+"  ", depth+1) + ",\n"
		}

		res += indent + `]`

		return res

	case float64:
		switch {
		case math.IsNaN(v):
			if bits := math.Float64bits(v); bits != nanBits {
				return fmt.Sprintf("NaN(%b)", bits)
			}

			return "NaN"

		case math.IsInf(v, 1):
			return "+Inf"
		case math.IsInf(v, -1):
			return "-Inf"
		default:
			res := strconv.FormatFloat(v, 'f', -1, 64)
			if !strings.Contains(res, ".") {
				res += ".0"
			}

			return res
		}

	case string:
		return strconv.Quote(v)

	case Binary:
		return "Binary(" + v.Subtype.String() + ":" + base64.StdEncoding.EncodeToString(v.B) + ")"

	case UndefinedType:
		return "undefined"

	case ObjectID:
		return "ObjectID(" + ObjectIDHex(v) + ")"

	case bool:
		return strconv.FormatBool(v)

	case time.Time:
		return v.Truncate(time.Millisecond).UTC().Format(time.RFC3339Nano)

	case NullType:
		return "null"

	case Regex:
		return "/" + v.Pattern + "/" + v.Options

	case DBPointer:
		return "DBPointer(" + strconv.Quote(v.Namespace) + ", " + ObjectIDHex(v.ID) + ")"

	case JavaScript:
		return "JavaScript(" + strconv.Quote(string(v)) + ")"

	case Symbol:
		return "Symbol(" + strconv.Quote(string(v)) + ")"

	case JavaScriptScope:
		return "JavaScript(" + strconv.Quote(v.Code) + ", " + logMessage(v.Scope, flowLimit, indent, depth+1) + ")"

	case int32:
		return strconv.FormatInt(int64(v), 10)

	case Timestamp:
		return "Timestamp(" + strconv.FormatUint(uint64(v), 10) + ")"

	case int64:
		return "int64(" + strconv.FormatInt(v, 10) + ")"

	case Decimal128:
		return fmt.Sprintf("Decimal128(%#016x, %#016x)", v.H, v.L)

	case MinKeyType:
		return "MinKey"

	case MaxKeyType:
		return "MaxKey"

	default:
		panic(fmt.Sprintf("invalid BSON type %T", v))
	}
}
