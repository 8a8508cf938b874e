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
	"reflect"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// valueTypes contains BSON value model types handled by ValueSerializer.
var valueTypes = map[reflect.Type]bson.Tag{
	reflect.TypeFor[*bson.Document]():       bson.TagDocument,
	reflect.TypeFor[*bson.Array]():          bson.TagArray,
	reflect.TypeFor[bson.Binary]():          bson.TagBinary,
	reflect.TypeFor[bson.UndefinedType]():   bson.TagUndefined,
	reflect.TypeFor[bson.NullType]():        bson.TagNull,
	reflect.TypeFor[bson.Regex]():           bson.TagRegex,
	reflect.TypeFor[bson.DBPointer]():       bson.TagDBPointer,
	reflect.TypeFor[bson.JavaScript]():      bson.TagJavaScript,
	reflect.TypeFor[bson.Symbol]():          bson.TagSymbol,
	reflect.TypeFor[bson.JavaScriptScope](): bson.TagJavaScriptScope,
	reflect.TypeFor[bson.Timestamp]():       bson.TagTimestamp,
	reflect.TypeFor[bson.Decimal128]():      bson.TagDecimal128,
	reflect.TypeFor[bson.MinKeyType]():      bson.TagMinKey,
	reflect.TypeFor[bson.MaxKeyType]():      bson.TagMaxKey,
}

// ValueSerializer handles types of the BSON value model that have no other Go representation.
//
// Nil documents and arrays are written as Null and read back from it.
type ValueSerializer struct {
	t   reflect.Type
	tag bson.Tag
}

// NewValueSerializer creates a new serializer for the given BSON value model type.
func NewValueSerializer(t reflect.Type) (*ValueSerializer, error) {
	tag, ok := valueTypes[t]
	if !ok {
		return nil, lazyerrors.Errorf("%s is not a BSON value type: %w", t, bson.ErrConfiguration)
	}

	return &ValueSerializer{t: t, tag: tag}, nil
}

// ValueType implements [Serializer].
func (s *ValueSerializer) ValueType() reflect.Type {
	return s.t
}

// Serialize implements [Serializer].
func (s *ValueSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return w.WriteNull()
	}

	if err := w.WriteValue(v.Interface()); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *ValueSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	t := r.CurrentType()

	if t == bson.TagNull && s.t.Kind() == reflect.Pointer {
		if err := r.ReadNull(); err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		return reflect.Zero(s.t), nil
	}

	if t != s.tag {
		return reflect.Value{}, wireTypeError(s, t)
	}

	v, err := r.ReadValue()
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return reflect.ValueOf(v), nil
}

// check interfaces
var (
	_ Serializer = (*ValueSerializer)(nil)
)
