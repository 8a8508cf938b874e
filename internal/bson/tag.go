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
	"fmt"
	"strings"
)

// Tag represents a BSON wire type tag.
//
// Tags are also used to name representations: the wire type a Go value is encoded as.
type Tag byte

// BSON wire type tags.
const (
	TagEndOfDocument   = Tag(0x00)
	TagDouble          = Tag(0x01)
	TagString          = Tag(0x02)
	TagDocument        = Tag(0x03)
	TagArray           = Tag(0x04)
	TagBinary          = Tag(0x05)
	TagUndefined       = Tag(0x06)
	TagObjectID        = Tag(0x07)
	TagBoolean         = Tag(0x08)
	TagDateTime        = Tag(0x09)
	TagNull            = Tag(0x0a)
	TagRegex           = Tag(0x0b)
	TagDBPointer       = Tag(0x0c)
	TagJavaScript      = Tag(0x0d)
	TagSymbol          = Tag(0x0e)
	TagJavaScriptScope = Tag(0x0f)
	TagInt32           = Tag(0x10)
	TagTimestamp       = Tag(0x11)
	TagInt64           = Tag(0x12)
	TagDecimal128      = Tag(0x13)
	TagMinKey          = Tag(0xff)
	TagMaxKey          = Tag(0x7f)
)

// tagNames contains aliases used by MongoDB's $type operator.
var tagNames = map[Tag]string{
	TagEndOfDocument:   "endOfDocument",
	TagDouble:          "double",
	TagString:          "string",
	TagDocument:        "object",
	TagArray:           "array",
	TagBinary:          "binData",
	TagUndefined:       "undefined",
	TagObjectID:        "objectId",
	TagBoolean:         "bool",
	TagDateTime:        "date",
	TagNull:            "null",
	TagRegex:           "regex",
	TagDBPointer:       "dbPointer",
	TagJavaScript:      "javascript",
	TagSymbol:          "symbol",
	TagJavaScriptScope: "javascriptWithScope",
	TagInt32:           "int",
	TagTimestamp:       "timestamp",
	TagInt64:           "long",
	TagDecimal128:      "decimal",
	TagMinKey:          "minKey",
	TagMaxKey:          "maxKey",
}

// String returns MongoDB alias of the tag, or a hex representation for unknown tags.
func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}

	return fmt.Sprintf("Tag(0x%02x)", byte(t))
}

// Valid returns true if t is a known BSON wire type tag (excluding the end of document marker).
func (t Tag) Valid() bool {
	_, ok := tagNames[t]
	return ok && t != TagEndOfDocument
}

// ParseTag returns the tag for the given MongoDB alias; the comparison is case-insensitive.
func ParseTag(s string) (Tag, error) {
	for t, name := range tagNames {
		if t != TagEndOfDocument && strings.EqualFold(name, s) {
			return t, nil
		}
	}

	return 0, fmt.Errorf("unknown BSON type %q: %w", s, ErrConfiguration)
}
