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

// field represents a single Document field.
type field struct {
	value any
	name  string
}

// Document represents a BSON document a.k.a object.
//
// Fields keep their insertion order; it is a part of the document identity.
// Document may contain duplicate field names.
type Document struct {
	fields []field
}

// NewDocument creates a new Document from the given pairs of field names and values.
func NewDocument(pairs ...any) (*Document, error) {
	l := len(pairs)
	if l%2 != 0 {
		return nil, lazyerrors.Errorf("invalid number of arguments: %d", l)
	}

	res := MakeDocument(l / 2)

	for i := 0; i < l; i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			return nil, lazyerrors.Errorf("invalid field name type: %T", pairs[i])
		}

		if err := res.Add(name, pairs[i+1]); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	return res, nil
}

// MakeDocument creates a new empty Document with the given capacity.
func MakeDocument(cap int) *Document {
	return &Document{
		fields: make([]field, 0, cap),
	}
}

// Len returns the number of fields in the Document.
func (doc *Document) Len() int {
	return len(doc.fields)
}

// FieldNames returns a slice of field names in the Document in their order.
//
// If document contains duplicate field names, the same name may appear multiple times.
func (doc *Document) FieldNames() []string {
	res := make([]string, len(doc.fields))
	for i, f := range doc.fields {
		res[i] = f.name
	}

	return res
}

// Get returns a value of the field with the given name.
//
// It returns nil if the field is not found.
// If document contains duplicate field names, it returns the first one.
func (doc *Document) Get(name string) any {
	for _, f := range doc.fields {
		if f.name == name {
			return f.value
		}
	}

	return nil
}

// GetByIndex returns the name and the value of the field at the given index.
// It panics if index is out of bounds.
func (doc *Document) GetByIndex(i int) (string, any) {
	f := doc.fields[i]
	return f.name, f.value
}

// Add adds a new field to the end of the Document.
func (doc *Document) Add(name string, value any) error {
	if err := validType(value); err != nil {
		return lazyerrors.Errorf("%q: %w", name, err)
	}

	doc.fields = append(doc.fields, field{
		name:  name,
		value: value,
	})

	return nil
}

// Set replaces the value of the first field with the given name,
// or adds a new field if there is no such field.
func (doc *Document) Set(name string, value any) error {
	if err := validType(value); err != nil {
		return lazyerrors.Errorf("%q: %w", name, err)
	}

	for i, f := range doc.fields {
		if f.name == name {
			doc.fields[i].value = value
			return nil
		}
	}

	doc.fields = append(doc.fields, field{
		name:  name,
		value: value,
	})

	return nil
}

// Remove removes the first existing field with the given name.
// It does nothing if the field with that name does not exist.
func (doc *Document) Remove(name string) {
	for i, f := range doc.fields {
		if f.name == name {
			doc.fields = append(doc.fields[:i], doc.fields[i+1:]...)
			return
		}
	}
}

// LogValue implements [slog.LogValuer] interface.
func (doc *Document) LogValue() slog.Value {
	return slogValue(doc, 1)
}

// LogMessage returns an indented representation as a string,
// somewhat similar (but not identical) to JSON or Go syntax.
// It may change over time.
func (doc *Document) LogMessage() string {
	return logMessage(doc, logFlowLimit, "", 1)
}

// LogMessageBlock is a variant of [Document.LogMessage] that never uses a flow style.
func (doc *Document) LogMessageBlock() string {
	return logMessage(doc, 0, "", 1)
}

// check interfaces
var (
	_ slog.LogValuer = (*Document)(nil)
)
