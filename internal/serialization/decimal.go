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
	"math"
	"reflect"

	"github.com/shopspring/decimal"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/representation"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// DecimalSerializer handles [decimal.Decimal].
//
// Decimal128 representation holds up to 34 significant digits;
// longer values are rounded only if the converter allows truncation.
type DecimalSerializer struct {
	repr bson.Tag
	conv representation.Converter
}

// NewDecimalSerializer creates a new decimal serializer.
func NewDecimalSerializer() *DecimalSerializer {
	return &DecimalSerializer{
		repr: bson.TagDecimal128,
		conv: representation.Default,
	}
}

// ValueType implements [Serializer].
func (s *DecimalSerializer) ValueType() reflect.Type {
	return reflect.TypeFor[decimal.Decimal]()
}

// Representation implements [RepresentationConfigurable].
func (s *DecimalSerializer) Representation() bson.Tag {
	return s.repr
}

// WithRepresentation implements [RepresentationConfigurable].
func (s *DecimalSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagDecimal128, bson.TagString, bson.TagDouble, bson.TagInt64, bson.TagInt32:
	default:
		return nil, reprError(s.ValueType(), repr)
	}

	res := *s
	res.repr = repr

	return &res, nil
}

// Converter implements [ConverterConfigurable].
func (s *DecimalSerializer) Converter() representation.Converter {
	return s.conv
}

// WithConverter implements [ConverterConfigurable].
func (s *DecimalSerializer) WithConverter(c representation.Converter) Serializer {
	res := *s
	res.conv = c

	return &res
}

// Serialize implements [Serializer].
func (s *DecimalSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	d := v.Interface().(decimal.Decimal)

	var err error

	switch s.repr {
	case bson.TagString:
		err = w.WriteString(d.String())

	case bson.TagDouble:
		f, exact := d.Float64()
		if !exact {
			if err = s.conv.Truncation(d, "float64"); err != nil {
				break
			}
		}

		err = w.WriteDouble(f)

	case bson.TagInt64, bson.TagInt32:
		t := d.Truncate(0)
		if !t.Equal(d) {
			if err = s.conv.Truncation(d, s.repr.String()); err != nil {
				break
			}
		}

		i := t.IntPart()

		if !t.BigInt().IsInt64() {
			if err = s.conv.Overflow(d, s.repr.String()); err != nil {
				break
			}

			i = math.MaxInt64
			if t.Sign() < 0 {
				i = math.MinInt64
			}
		}

		err = writeNumber(w, s.repr, s.conv, i)

	default:
		var d128 bson.Decimal128
		if d128, err = s.conv.DecimalToDecimal128(d); err == nil {
			err = w.WriteDecimal128(d128)
		}
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *DecimalSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	var d decimal.Decimal
	var err error

	switch t := r.CurrentType(); t {
	case bson.TagDecimal128:
		var d128 bson.Decimal128
		if d128, err = r.ReadDecimal128(); err == nil {
			d, err = s.conv.Decimal128ToDecimal(d128)
		}

	case bson.TagString:
		var str string
		if str, err = r.ReadString(); err == nil {
			if d, err = decimal.NewFromString(str); err != nil {
				err = lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
			}
		}

	case bson.TagDouble:
		var f float64
		if f, err = r.ReadDouble(); err == nil {
			// NaN and infinities can't be represented
			if math.IsNaN(f) || math.IsInf(f, 0) {
				err = s.conv.Overflow(f, "decimal.Decimal")
				break
			}

			d = decimal.NewFromFloat(f)
		}

	case bson.TagInt64:
		var i int64
		i, err = r.ReadInt64()
		d = decimal.NewFromInt(i)

	case bson.TagInt32:
		var i int32
		i, err = r.ReadInt32()
		d = decimal.NewFromInt32(i)

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return reflect.ValueOf(d), nil
}

// check interfaces
var (
	_ RepresentationConfigurable = (*DecimalSerializer)(nil)
	_ ConverterConfigurable      = (*DecimalSerializer)(nil)
)
