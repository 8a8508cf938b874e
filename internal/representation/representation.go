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

// Package representation converts values between Go types and alternative BSON representations.
//
// All conversions detect data loss: overflow (the value does not fit the target type)
// and truncation (the value fits, but loses precision or a fractional part).
// A [Converter] decides whether each kind of loss is an error.
package representation

import (
	"fmt"
	"math"
	"math/big"
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

var (
	// ErrOverflow indicates that the value does not fit the target type.
	ErrOverflow = fmt.Errorf("%w: overflow", bson.ErrDataLoss)

	// ErrTruncation indicates that the value would lose precision or a fractional part.
	ErrTruncation = fmt.Errorf("%w: truncation", bson.ErrDataLoss)
)

// Number is a constraint for all types the converter works with.
type Number interface {
	constraints.Integer | constraints.Float
}

// Converter converts numbers with the given data loss policy.
//
// The zero value disallows both overflow and truncation.
type Converter struct {
	AllowOverflow   bool
	AllowTruncation bool
}

// Default is the converter that disallows any data loss.
var Default = Converter{}

// Lossy is the converter that allows any data loss.
var Lossy = Converter{AllowOverflow: true, AllowTruncation: true}

// String implements [fmt.Stringer].
func (c Converter) String() string {
	return fmt.Sprintf("Converter(overflow=%t, truncation=%t)", c.AllowOverflow, c.AllowTruncation)
}

// Overflow returns ErrOverflow unless overflow is allowed.
func (c Converter) Overflow(v any, to string) error {
	if c.AllowOverflow {
		return nil
	}

	return lazyerrors.Errorf("%v does not fit %s: %w", v, to, ErrOverflow)
}

// Truncation returns ErrTruncation unless truncation is allowed.
func (c Converter) Truncation(v any, to string) error {
	if c.AllowTruncation {
		return nil
	}

	return lazyerrors.Errorf("%v can't be represented as %s exactly: %w", v, to, ErrTruncation)
}

// integerLimits returns the minimal and the maximal values of the integer type T,
// and the smallest power of two that does not fit T.
func integerLimits[T constraints.Integer]() (minV, maxV T, bound float64) {
	var zero T

	bits := 8 * int(unsafe.Sizeof(zero))

	if ^zero < 0 {
		maxV = T(uint64(math.MaxUint64) >> (64 - bits + 1))
		minV = -maxV - 1
		bound = math.Ldexp(1, bits-1)

		return
	}

	maxV = T(uint64(math.MaxUint64) >> (64 - bits))
	bound = math.Ldexp(1, bits)

	return
}

// isFloat returns true if T is a floating point type.
func isFloat[T Number]() bool {
	var v T = 1
	v /= 2

	return v != 0
}

// typeName returns the name of T for error messages.
func typeName[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

// ToInteger converts an integer or a floating point value v to the integer type To.
//
// Floating point values are truncated toward zero;
// out-of-range values are clamped to the target range if overflow is allowed.
// NaN converts to zero if overflow is allowed.
func ToInteger[To constraints.Integer, From Number](c Converter, v From) (To, error) {
	name := typeName[To]()

	if !isFloat[From]() {
		res := To(v)
		if From(res) != v || (res < 0) != (v < 0) {
			return res, c.Overflow(v, name)
		}

		return res, nil
	}

	f := float64(v)
	minV, maxV, bound := integerLimits[To]()

	if math.IsNaN(f) {
		return 0, c.Overflow(v, name)
	}

	t := math.Trunc(f)

	switch {
	case t < float64(minV):
		return minV, c.Overflow(v, name)
	case t >= bound:
		return maxV, c.Overflow(v, name)
	}

	res := To(t)

	if t != f {
		return res, c.Truncation(v, name)
	}

	return res, nil
}

// ToFloat converts an integer or a floating point value v to the floating point type To.
//
// Integers that can't be represented exactly are a truncation.
// Finite float64 values outside of float32 range are an overflow;
// if overflow is allowed, they become infinities.
// NaNs and infinities are converted as-is.
func ToFloat[To constraints.Float, From Number](c Converter, v From) (To, error) {
	name := typeName[To]()
	res := To(v)

	if !isFloat[From]() {
		var i big.Int
		if v < 0 {
			i.SetInt64(int64(v))
		} else {
			i.SetUint64(uint64(v))
		}

		if new(big.Float).SetFloat64(float64(res)).Cmp(new(big.Float).SetInt(&i)) != 0 {
			return res, c.Truncation(v, name)
		}

		return res, nil
	}

	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return res, nil
	}

	if math.IsInf(float64(res), 0) {
		return res, c.Overflow(v, name)
	}

	if float64(res) != f {
		return res, c.Truncation(v, name)
	}

	return res, nil
}
