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
	"bytes"
	"math"
	"time"
)

// Equal returns true if a and b are the same BSON values.
//
// Documents are equal if they have the same fields in the same order.
// Values of different types are never equal, so int32(1) and int64(1) are different.
// NaNs are equal to each other if their bit patterns match;
// times are compared by their instant with millisecond precision.
func Equal(a, b any) bool {
	switch a := a.(type) {
	case *Document:
		b, ok := b.(*Document)
		if !ok || a.Len() != b.Len() {
			return false
		}

		for i, f := range a.fields {
			bf := b.fields[i]
			if f.name != bf.name || !Equal(f.value, bf.value) {
				return false
			}
		}

		return true

	case *Array:
		b, ok := b.(*Array)
		if !ok || a.Len() != b.Len() {
			return false
		}

		for i, e := range a.elements {
			if !Equal(e, b.elements[i]) {
				return false
			}
		}

		return true

	case float64:
		b, ok := b.(float64)
		if !ok {
			return false
		}

		if math.IsNaN(a) || math.IsNaN(b) {
			return math.Float64bits(a) == math.Float64bits(b)
		}

		return a == b

	case Binary:
		b, ok := b.(Binary)
		return ok && a.Subtype == b.Subtype && bytes.Equal(a.B, b.B)

	case time.Time:
		b, ok := b.(time.Time)
		return ok && a.UnixMilli() == b.UnixMilli()

	case JavaScriptScope:
		b, ok := b.(JavaScriptScope)
		return ok && a.Code == b.Code && Equal(a.Scope, b.Scope)

	default:
		return a == b
	}
}
