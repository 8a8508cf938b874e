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
	"github.com/FerretDB/bsonmap/internal/representation"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// IntegerSerializer handles signed and unsigned integer types of all sizes.
//
// Small types are written as Int32 by default, others as Int64.
// Values of any numeric BSON type and strings are accepted when reading.
type IntegerSerializer struct {
	t    reflect.Type
	repr bson.Tag
	conv representation.Converter
}

// NewIntegerSerializer creates a new serializer for the given integer type.
func NewIntegerSerializer(t reflect.Type) (*IntegerSerializer, error) {
	repr := bson.TagInt64

	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		repr = bson.TagInt32
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
	default:
		return nil, lazyerrors.Errorf("%s is not an integer type: %w", t, bson.ErrConfiguration)
	}

	return &IntegerSerializer{
		t:    t,
		repr: repr,
		conv: representation.Default,
	}, nil
}

// ValueType implements [Serializer].
func (s *IntegerSerializer) ValueType() reflect.Type {
	return s.t
}

// Representation implements [RepresentationConfigurable].
func (s *IntegerSerializer) Representation() bson.Tag {
	return s.repr
}

// WithRepresentation implements [RepresentationConfigurable].
func (s *IntegerSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagInt32, bson.TagInt64, bson.TagDouble, bson.TagString, bson.TagDecimal128:
	default:
		return nil, reprError(s.t, repr)
	}

	res := *s
	res.repr = repr

	return &res, nil
}

// Converter implements [ConverterConfigurable].
func (s *IntegerSerializer) Converter() representation.Converter {
	return s.conv
}

// WithConverter implements [ConverterConfigurable].
func (s *IntegerSerializer) WithConverter(c representation.Converter) Serializer {
	res := *s
	res.conv = c

	return &res
}

// unsigned returns true for unsigned types.
func (s *IntegerSerializer) unsigned() bool {
	switch s.t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// Serialize implements [Serializer].
func (s *IntegerSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	var err error

	if s.unsigned() {
		u := v.Uint()

		switch s.repr {
		case bson.TagString:
			err = w.WriteString(representation.FormatInteger(u))
		case bson.TagDecimal128:
			err = w.WriteDecimal128(representation.Decimal128FromUint64(u))
		default:
			err = writeNumber(w, s.repr, s.conv, u)
		}
	} else {
		i := v.Int()

		switch s.repr {
		case bson.TagString:
			err = w.WriteString(representation.FormatInteger(i))
		case bson.TagDecimal128:
			err = w.WriteDecimal128(representation.Decimal128FromInt64(i))
		default:
			err = writeNumber(w, s.repr, s.conv, i)
		}
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *IntegerSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	res := reflect.New(s.t).Elem()

	var err error

	switch t := r.CurrentType(); t {
	case bson.TagInt32:
		var i int32
		if i, err = r.ReadInt32(); err == nil {
			err = setInteger(s.conv, res, i)
		}

	case bson.TagInt64:
		var i int64
		if i, err = r.ReadInt64(); err == nil {
			err = setInteger(s.conv, res, i)
		}

	case bson.TagDouble:
		var f float64
		if f, err = r.ReadDouble(); err == nil {
			err = setInteger(s.conv, res, f)
		}

	case bson.TagString:
		var str string
		if str, err = r.ReadString(); err == nil {
			if s.unsigned() {
				var u uint64
				if u, err = representation.ParseInteger[uint64](s.conv, str); err == nil {
					err = setInteger(s.conv, res, u)
				}
			} else {
				var i int64
				if i, err = representation.ParseInteger[int64](s.conv, str); err == nil {
					err = setInteger(s.conv, res, i)
				}
			}
		}

	case bson.TagDecimal128:
		var d bson.Decimal128
		if d, err = r.ReadDecimal128(); err == nil {
			if s.unsigned() {
				var u uint64
				if u, err = s.conv.Decimal128ToUint64(d); err == nil {
					err = setInteger(s.conv, res, u)
				}
			} else {
				var i int64
				if i, err = s.conv.Decimal128ToInt64(d); err == nil {
					err = setInteger(s.conv, res, i)
				}
			}
		}

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return res, nil
}

// FloatSerializer handles float32 and float64 types.
type FloatSerializer struct {
	t    reflect.Type
	repr bson.Tag
	conv representation.Converter
}

// NewFloatSerializer creates a new serializer for the given floating point type.
func NewFloatSerializer(t reflect.Type) (*FloatSerializer, error) {
	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
	default:
		return nil, lazyerrors.Errorf("%s is not a floating point type: %w", t, bson.ErrConfiguration)
	}

	return &FloatSerializer{
		t:    t,
		repr: bson.TagDouble,
		conv: representation.Default,
	}, nil
}

// ValueType implements [Serializer].
func (s *FloatSerializer) ValueType() reflect.Type {
	return s.t
}

// Representation implements [RepresentationConfigurable].
func (s *FloatSerializer) Representation() bson.Tag {
	return s.repr
}

// WithRepresentation implements [RepresentationConfigurable].
func (s *FloatSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagDouble, bson.TagInt32, bson.TagInt64, bson.TagString, bson.TagDecimal128:
	default:
		return nil, reprError(s.t, repr)
	}

	res := *s
	res.repr = repr

	return &res, nil
}

// Converter implements [ConverterConfigurable].
func (s *FloatSerializer) Converter() representation.Converter {
	return s.conv
}

// WithConverter implements [ConverterConfigurable].
func (s *FloatSerializer) WithConverter(c representation.Converter) Serializer {
	res := *s
	res.conv = c

	return &res
}

// Serialize implements [Serializer].
func (s *FloatSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	f := v.Float()

	var err error

	switch s.repr {
	case bson.TagString:
		err = w.WriteString(representation.FormatFloat(f))

	case bson.TagDecimal128:
		var d bson.Decimal128
		if d, err = s.conv.Decimal128FromFloat64(f); err == nil {
			err = w.WriteDecimal128(d)
		}

	default:
		err = writeNumber(w, s.repr, s.conv, f)
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *FloatSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	res := reflect.New(s.t).Elem()

	var err error

	switch t := r.CurrentType(); t {
	case bson.TagDouble:
		var f float64
		if f, err = r.ReadDouble(); err == nil {
			err = setFloat(s.conv, res, f)
		}

	case bson.TagInt32:
		var i int32
		if i, err = r.ReadInt32(); err == nil {
			err = setFloat(s.conv, res, i)
		}

	case bson.TagInt64:
		var i int64
		if i, err = r.ReadInt64(); err == nil {
			err = setFloat(s.conv, res, i)
		}

	case bson.TagString:
		var str string
		if str, err = r.ReadString(); err == nil {
			var f float64
			if f, err = representation.ParseFloat(s.conv, str); err == nil {
				err = setFloat(s.conv, res, f)
			}
		}

	case bson.TagDecimal128:
		var d bson.Decimal128
		if d, err = r.ReadDecimal128(); err == nil {
			var f float64
			if f, err = s.conv.Decimal128ToFloat64(d); err == nil {
				err = setFloat(s.conv, res, f)
			}
		}

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return res, nil
}

// writeNumber writes v as Int32, Int64 or Double.
func writeNumber[T representation.Number](w *bsonio.Writer, repr bson.Tag, c representation.Converter, v T) error {
	switch repr {
	case bson.TagInt32:
		i, err := representation.ToInteger[int32](c, v)
		if err != nil {
			return lazyerrors.Error(err)
		}

		return w.WriteInt32(i)

	case bson.TagInt64:
		i, err := representation.ToInteger[int64](c, v)
		if err != nil {
			return lazyerrors.Error(err)
		}

		return w.WriteInt64(i)

	case bson.TagDouble:
		f, err := representation.ToFloat[float64](c, v)
		if err != nil {
			return lazyerrors.Error(err)
		}

		return w.WriteDouble(f)

	default:
		return lazyerrors.Errorf("unexpected representation %s: %w", repr, bson.ErrConfiguration)
	}
}

// setInteger converts v to the integer kind of res and stores it.
func setInteger[T representation.Number](c representation.Converter, res reflect.Value, v T) error {
	var err error

	switch res.Kind() {
	case reflect.Int:
		var i int
		i, err = representation.ToInteger[int](c, v)
		res.SetInt(int64(i))
	case reflect.Int8:
		var i int8
		i, err = representation.ToInteger[int8](c, v)
		res.SetInt(int64(i))
	case reflect.Int16:
		var i int16
		i, err = representation.ToInteger[int16](c, v)
		res.SetInt(int64(i))
	case reflect.Int32:
		var i int32
		i, err = representation.ToInteger[int32](c, v)
		res.SetInt(int64(i))
	case reflect.Int64:
		var i int64
		i, err = representation.ToInteger[int64](c, v)
		res.SetInt(i)
	case reflect.Uint:
		var u uint
		u, err = representation.ToInteger[uint](c, v)
		res.SetUint(uint64(u))
	case reflect.Uint8:
		var u uint8
		u, err = representation.ToInteger[uint8](c, v)
		res.SetUint(uint64(u))
	case reflect.Uint16:
		var u uint16
		u, err = representation.ToInteger[uint16](c, v)
		res.SetUint(uint64(u))
	case reflect.Uint32:
		var u uint32
		u, err = representation.ToInteger[uint32](c, v)
		res.SetUint(uint64(u))
	case reflect.Uint64:
		var u uint64
		u, err = representation.ToInteger[uint64](c, v)
		res.SetUint(u)
	default:
		return lazyerrors.Errorf("%s is not an integer type: %w", res.Type(), bson.ErrNotSupported)
	}

	return err
}

// setFloat converts v to the floating point kind of res and stores it.
func setFloat[T representation.Number](c representation.Converter, res reflect.Value, v T) error {
	var err error

	switch res.Kind() {
	case reflect.Float32:
		var f float32
		f, err = representation.ToFloat[float32](c, v)
		res.SetFloat(float64(f))
	case reflect.Float64:
		var f float64
		f, err = representation.ToFloat[float64](c, v)
		res.SetFloat(f)
	default:
		return lazyerrors.Errorf("%s is not a floating point type: %w", res.Type(), bson.ErrNotSupported)
	}

	return err
}

// check interfaces
var (
	_ RepresentationConfigurable = (*IntegerSerializer)(nil)
	_ ConverterConfigurable      = (*IntegerSerializer)(nil)
	_ RepresentationConfigurable = (*FloatSerializer)(nil)
	_ ConverterConfigurable      = (*FloatSerializer)(nil)
)
