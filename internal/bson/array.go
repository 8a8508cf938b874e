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
	"log/slog"

	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// Array represents a BSON array.
//
// Elements keep their order; on the wire they are encoded as a document with "0", "1", ... field names.
type Array struct {
	elements []any
}

// NewArray creates a new Array from the given values.
func NewArray(values ...any) (*Array, error) {
	res := MakeArray(len(values))

	for i, v := range values {
		if err := res.Add(v); err != nil {
			return nil, lazyerrors.Errorf("%d: %w", i, err)
		}
	}

	return res, nil
}

// MakeArray creates a new empty Array with the given capacity.
func MakeArray(cap int) *Array {
	return &Array{
		elements: make([]any, 0, cap),
	}
}

// Len returns the number of elements in the Array.
func (arr *Array) Len() int {
	return len(arr.elements)
}

// Get returns the element at the given index.
// It panics if index is out of bounds.
func (arr *Array) Get(index int) any {
	return arr.elements[index]
}

// Add appends a new element to the Array.
func (arr *Array) Add(value any) error {
	if err := validType(value); err != nil {
		return lazyerrors.Error(err)
	}

	arr.elements = append(arr.elements, value)

	return nil
}

// Values returns a copy of the Array's elements.
func (arr *Array) Values() []any {
	res := make([]any, len(arr.elements))
	copy(res, arr.elements)

	return res
}

// LogValue implements [slog.LogValuer] interface.
func (arr *Array) LogValue() slog.Value {
	return slogValue(arr, 1)
}

// LogMessage returns an indented representation as a string,
// somewhat similar (but not identical) to JSON or Go syntax.
// It may change over time.
func (arr *Array) LogMessage() string {
	return logMessage(arr, logFlowLimit, "", 1)
}

// check interfaces
var (
	_ slog.LogValuer = (*Array)(nil)
)
