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

// Package bson implements the BSON value model as defined by https://bsonspec.org/spec.html.
//
// # Types
//
// Every BSON value is represented by exactly one Go type:
//
//	BSON                   Go
//
//	Document               *bson.Document
//	Array                  *bson.Array
//
//	Double                 float64
//	String                 string
//	Binary data            bson.Binary
//	Undefined              bson.UndefinedType
//	ObjectId               bson.ObjectID
//	Boolean                bool
//	Date                   time.Time
//	Null                   bson.NullType
//	Regular Expression     bson.Regex
//	DBPointer              bson.DBPointer
//	JavaScript             bson.JavaScript
//	Symbol                 bson.Symbol
//	JavaScript with scope  bson.JavaScriptScope
//	32-bit integer         int32
//	Timestamp              bson.Timestamp
//	64-bit integer         int64
//	Decimal128             bson.Decimal128
//	Min key                bson.MinKeyType
//	Max key                bson.MaxKeyType
//
// Composite types (Document and Array) are passed by pointers.
// Scalars are passed by values.
//
// Encoding and decoding of values live in the bsonio package.
package bson

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cristalhq/bson/bsonproto"

	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

type (
	// Binary represents BSON Binary data type.
	Binary = bsonproto.Binary

	// BinarySubtype represents BSON Binary's subtype.
	BinarySubtype = bsonproto.BinarySubtype

	// ObjectID represents BSON ObjectId data type.
	ObjectID = bsonproto.ObjectID

	// NullType represents BSON Null data type.
	NullType = bsonproto.NullType

	// Regex represents BSON Regular expression data type.
	Regex = bsonproto.Regex

	// Timestamp represents BSON Timestamp data type.
	Timestamp = bsonproto.Timestamp

	// Decimal128 represents BSON Decimal128 data type.
	Decimal128 = bsonproto.Decimal128
)

// Binary subtypes.
const (
	BinaryGeneric    = bsonproto.BinaryGeneric
	BinaryFunction   = bsonproto.BinaryFunction
	BinaryGenericOld = bsonproto.BinaryGenericOld
	BinaryUUIDOld    = bsonproto.BinaryUUIDOld
	BinaryUUID       = bsonproto.BinaryUUID
	BinaryMD5        = bsonproto.BinaryMD5
	BinaryEncrypted  = bsonproto.BinaryEncrypted
	BinaryUser       = bsonproto.BinaryUser
)

// Null represents BSON value Null.
var Null = bsonproto.Null

// UndefinedType represents BSON Undefined data type (deprecated).
type UndefinedType struct{}

// Undefined represents BSON value Undefined.
var Undefined = UndefinedType{}

// MinKeyType represents BSON Min key data type.
type MinKeyType struct{}

// MinKey represents BSON value Min key.
var MinKey = MinKeyType{}

// MaxKeyType represents BSON Max key data type.
type MaxKeyType struct{}

// MaxKey represents BSON value Max key.
var MaxKey = MaxKeyType{}

// JavaScript represents BSON JavaScript code data type.
type JavaScript string

// Symbol represents BSON Symbol data type (deprecated).
type Symbol string

// JavaScriptScope represents BSON JavaScript code with scope data type.
type JavaScriptScope struct {
	Scope *Document
	Code  string
}

// DBPointer represents BSON DBPointer data type (deprecated).
type DBPointer struct {
	Namespace string
	ID        ObjectID
}

// Type represents a BSON type.
type Type interface {
	ScalarType | CompositeType | OtherType
}

// ScalarType represents a BSON scalar type encoded by the bsonproto package.
type ScalarType interface {
	float64 | string | Binary | ObjectID | bool | time.Time | NullType | Regex | int32 | Timestamp | int64 | Decimal128
}

// CompositeType represents a BSON composite type.
type CompositeType interface {
	*Document | *Array
}

// OtherType represents rarely used and deprecated BSON scalar types.
type OtherType interface {
	UndefinedType | MinKeyType | MaxKeyType | JavaScript | Symbol | JavaScriptScope | DBPointer
}

// validType returns an error if v is not a valid BSON type.
func validType(v any) error {
	switch v := v.(type) {
	case *Document:
		if v == nil {
			return lazyerrors.Errorf("nil *Document: %w", ErrFormat)
		}
	case *Array:
		if v == nil {
			return lazyerrors.Errorf("nil *Array: %w", ErrFormat)
		}
	case JavaScriptScope:
		if v.Scope == nil {
			return lazyerrors.Errorf("nil JavaScriptScope.Scope: %w", ErrFormat)
		}
	case float64, string, Binary, UndefinedType, ObjectID, bool, time.Time, NullType, Regex,
		DBPointer, JavaScript, Symbol, int32, Timestamp, int64, Decimal128, MinKeyType, MaxKeyType:
	default:
		return lazyerrors.Errorf("invalid BSON type %T: %w", v, ErrFormat)
	}

	return nil
}

// IsValue returns true if v is a valid BSON value.
func IsValue(v any) bool {
	return validType(v) == nil
}

// TagOf returns the wire type tag of the given BSON value.
//
// It panics if v is not a valid BSON type.
func TagOf(v any) Tag {
	switch v.(type) {
	case float64:
		return TagDouble
	case string:
		return TagString
	case *Document:
		return TagDocument
	case *Array:
		return TagArray
	case Binary:
		return TagBinary
	case UndefinedType:
		return TagUndefined
	case ObjectID:
		return TagObjectID
	case bool:
		return TagBoolean
	case time.Time:
		return TagDateTime
	case NullType:
		return TagNull
	case Regex:
		return TagRegex
	case DBPointer:
		return TagDBPointer
	case JavaScript:
		return TagJavaScript
	case Symbol:
		return TagSymbol
	case JavaScriptScope:
		return TagJavaScriptScope
	case int32:
		return TagInt32
	case Timestamp:
		return TagTimestamp
	case int64:
		return TagInt64
	case Decimal128:
		return TagDecimal128
	case MinKeyType:
		return TagMinKey
	case MaxKeyType:
		return TagMaxKey
	default:
		panic(fmt.Sprintf("invalid BSON type %T", v))
	}
}

// ObjectIDFromHex parses a 24 characters long hex string as ObjectID.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var res ObjectID

	if len(s) != 2*len(res) {
		return res, lazyerrors.Errorf("invalid ObjectID length %d: %w", len(s), ErrFormat)
	}

	if _, err := hex.Decode(res[:], []byte(s)); err != nil {
		return res, lazyerrors.Errorf("%w: %w", ErrFormat, err)
	}

	return res, nil
}

// ObjectIDHex returns a 24 characters long lowercase hex representation of ObjectID.
func ObjectIDHex(id ObjectID) string {
	return hex.EncodeToString(id[:])
}
