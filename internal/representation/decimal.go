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
	"math"
	"math/big"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

var (
	minInt64  = decimal.NewFromInt(math.MinInt64)
	maxInt64  = decimal.NewFromInt(math.MaxInt64)
	maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
)

// toPrimitive converts Decimal128 to mongo-driver's type that implements decimal arithmetic.
func toPrimitive(v bson.Decimal128) primitive.Decimal128 {
	return primitive.NewDecimal128(v.H, v.L)
}

// fromPrimitive converts mongo-driver's Decimal128 back.
func fromPrimitive(v primitive.Decimal128) bson.Decimal128 {
	h, l := v.GetBytes()
	return bson.Decimal128{H: h, L: l}
}

// FormatDecimal128 returns the string representation of Decimal128 value.
func FormatDecimal128(v bson.Decimal128) string {
	return toPrimitive(v).String()
}

// ParseDecimal128 parses the string representation of Decimal128 value,
// including "NaN", "Infinity", and "-Infinity".
func ParseDecimal128(s string) (bson.Decimal128, error) {
	d, err := primitive.ParseDecimal128(s)
	if err != nil {
		return bson.Decimal128{}, lazyerrors.Errorf("%q: %w: %w", s, bson.ErrFormat, err)
	}

	return fromPrimitive(d), nil
}

// Decimal128ToDecimal converts Decimal128 value to [decimal.Decimal].
//
// NaNs and infinities can't be represented and are an overflow.
func (c Converter) Decimal128ToDecimal(v bson.Decimal128) (decimal.Decimal, error) {
	p := toPrimitive(v)

	if p.IsNaN() || p.IsInf() != 0 {
		if err := c.Overflow(p, "decimal.Decimal"); err != nil {
			return decimal.Zero, err
		}

		return decimal.Zero, nil
	}

	bi, exp, err := p.BigInt()
	if err != nil {
		return decimal.Zero, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
	}

	return decimal.NewFromBigInt(bi, int32(exp)), nil
}

// DecimalToDecimal128 converts [decimal.Decimal] value to Decimal128.
//
// Values with more than 34 significant digits are rounded if truncation is allowed.
// Values with too large exponents are an overflow.
func (c Converter) DecimalToDecimal128(d decimal.Decimal) (bson.Decimal128, error) {
	p, ok := primitive.ParseDecimal128FromBigInt(d.Coefficient(), int(d.Exponent()))
	if ok {
		return fromPrimitive(p), nil
	}

	// too many digits: round to 34 significant digits
	if extra := d.NumDigits() - 34; extra > 0 {
		rounded := d.Round(-d.Exponent() - int32(extra))

		if p, ok = primitive.ParseDecimal128FromBigInt(rounded.Coefficient(), int(rounded.Exponent())); ok {
			return fromPrimitive(p), c.Truncation(d, "decimal128")
		}
	}

	return bson.Decimal128{}, lazyerrors.Errorf("%s does not fit decimal128: %w", d, ErrOverflow)
}

// Decimal128ToFloat64 converts Decimal128 value to float64.
//
// Values that do not convert back to the same Decimal128 value are a truncation.
func (c Converter) Decimal128ToFloat64(v bson.Decimal128) (float64, error) {
	p := toPrimitive(v)

	switch {
	case p.IsNaN():
		return math.NaN(), nil
	case p.IsInf() > 0:
		return math.Inf(1), nil
	case p.IsInf() < 0:
		return math.Inf(-1), nil
	}

	d, err := c.Decimal128ToDecimal(v)
	if err != nil {
		return 0, lazyerrors.Error(err)
	}

	f, _ := d.Float64()

	if math.IsInf(f, 0) {
		return f, c.Overflow(d, "float64")
	}

	if !decimal.NewFromFloat(f).Equal(d) {
		return f, c.Truncation(d, "float64")
	}

	return f, nil
}

// Decimal128FromFloat64 converts float64 value to Decimal128.
//
// The shortest decimal representation that parses back to the same float64 value is used.
func (c Converter) Decimal128FromFloat64(f float64) (bson.Decimal128, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ParseDecimal128(FormatFloat(f))
	}

	return c.DecimalToDecimal128(decimal.NewFromFloat(f))
}

// Decimal128ToInt64 converts Decimal128 value to int64.
func (c Converter) Decimal128ToInt64(v bson.Decimal128) (int64, error) {
	p := toPrimitive(v)

	switch {
	case p.IsNaN():
		return 0, c.Overflow(p, "int64")
	case p.IsInf() > 0:
		return math.MaxInt64, c.Overflow(p, "int64")
	case p.IsInf() < 0:
		return math.MinInt64, c.Overflow(p, "int64")
	}

	d, err := c.Decimal128ToDecimal(v)
	if err != nil {
		return 0, lazyerrors.Error(err)
	}

	t := d.Truncate(0)

	switch {
	case t.LessThan(minInt64):
		return math.MinInt64, c.Overflow(d, "int64")
	case t.GreaterThan(maxInt64):
		return math.MaxInt64, c.Overflow(d, "int64")
	}

	if !t.Equal(d) {
		return t.IntPart(), c.Truncation(d, "int64")
	}

	return t.IntPart(), nil
}

// Decimal128FromInt64 converts int64 value to Decimal128; that is always exact.
func Decimal128FromInt64(i int64) bson.Decimal128 {
	p, ok := primitive.ParseDecimal128FromBigInt(decimal.NewFromInt(i).Coefficient(), 0)
	if !ok {
		panic("int64 does not fit decimal128")
	}

	return fromPrimitive(p)
}

// Decimal128FromUint64 converts uint64 value to Decimal128; that is always exact.
func Decimal128FromUint64(u uint64) bson.Decimal128 {
	p, ok := primitive.ParseDecimal128FromBigInt(new(big.Int).SetUint64(u), 0)
	if !ok {
		panic("uint64 does not fit decimal128")
	}

	return fromPrimitive(p)
}

// Decimal128ToUint64 converts Decimal128 value to uint64.
func (c Converter) Decimal128ToUint64(v bson.Decimal128) (uint64, error) {
	p := toPrimitive(v)

	switch {
	case p.IsNaN(), p.IsInf() < 0:
		return 0, c.Overflow(p, "uint64")
	case p.IsInf() > 0:
		return math.MaxUint64, c.Overflow(p, "uint64")
	}

	d, err := c.Decimal128ToDecimal(v)
	if err != nil {
		return 0, lazyerrors.Error(err)
	}

	t := d.Truncate(0)

	switch {
	case t.Sign() < 0:
		return 0, c.Overflow(d, "uint64")
	case t.GreaterThan(maxUint64):
		return math.MaxUint64, c.Overflow(d, "uint64")
	}

	if !t.Equal(d) {
		return t.BigInt().Uint64(), c.Truncation(d, "uint64")
	}

	return t.BigInt().Uint64(), nil
}
