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
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// builtinProvider constructs serializers for all supported types.
//
// Exact types are checked first, then kinds.
type builtinProvider struct{}

// GetSerializer implements [Provider].
func (builtinProvider) GetSerializer(reg *Registry, t reflect.Type) (Serializer, error) {
	switch t {
	case reflect.TypeFor[time.Time]():
		return NewTimeSerializer(), nil
	case reflect.TypeFor[time.Duration]():
		return NewDurationSerializer(), nil
	case reflect.TypeFor[bson.ObjectID]():
		return NewObjectIDSerializer(), nil
	case reflect.TypeFor[uuid.UUID]():
		return NewUUIDSerializer(), nil
	case reflect.TypeFor[decimal.Decimal]():
		return NewDecimalSerializer(), nil
	case reflect.TypeFor[*list.List]():
		return NewListSerializer(reg), nil
	}

	if _, ok := valueTypes[t]; ok {
		return NewValueSerializer(t)
	}

	switch t.Kind() {
	case reflect.Bool:
		return NewBoolSerializer(t), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NewIntegerSerializer(t)

	case reflect.Float32, reflect.Float64:
		return NewFloatSerializer(t)

	case reflect.String:
		return NewStringSerializer(t), nil

	case reflect.Pointer:
		return NewPointerSerializer(reg, t)

	case reflect.Interface:
		return NewInterfaceSerializer(reg, t)

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return NewBytesSerializer(t), nil
		}

		return NewSliceSerializer(reg, t)

	case reflect.Array:
		return NewSliceSerializer(reg, t)

	case reflect.Map:
		if isSet(t) {
			return NewSetSerializer(reg, t)
		}

		return NewMapSerializer(reg, t)

	case reflect.Struct:
		cm, err := reg.LookupClassMap(t)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		return NewClassMapSerializer(cm)

	default:
		// uintptr, complex numbers, channels, functions, unsafe pointers
		return nil, nil
	}
}

// check interfaces
var (
	_ Provider = builtinProvider{}
)
