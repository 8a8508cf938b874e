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

// Package serialization converts Go values to BSON documents and back.
//
// Every Go type is handled by a [Serializer] obtained from a [Registry].
// Serializers are constructed on first use and cached for the lifetime of the registry.
// Serializers never change after construction;
// reconfiguration (see [RepresentationConfigurable]) returns a new instance.
//
// Struct types are mapped to documents by [ClassMap]s.
// Values of interface types are written with a discriminator element
// chosen by a [DiscriminatorConvention], so they can be read back as the same concrete type.
package serialization

import (
	"reflect"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/representation"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// Serializer is a bidirectional codec for values of a single Go type.
type Serializer interface {
	// ValueType returns the Go type handled by the serializer.
	ValueType() reflect.Type

	// Serialize writes v of ValueType.
	//
	// The writer is positioned at the value:
	// the element name was already written, or v is the top-level document.
	Serialize(w *bsonio.Writer, v reflect.Value) error

	// Deserialize reads a value of ValueType.
	//
	// The reader is positioned at the value, and its current type is already known.
	Deserialize(r *bsonio.Reader) (reflect.Value, error)
}

// RepresentationConfigurable is implemented by serializers
// that can write values as different BSON types.
type RepresentationConfigurable interface {
	Serializer

	// Representation returns the BSON type values are written as.
	Representation() bson.Tag

	// WithRepresentation returns a new serializer that writes values as the given BSON type.
	// It returns an error wrapping [bson.ErrConfiguration] if that is not possible.
	WithRepresentation(repr bson.Tag) (Serializer, error)
}

// ConverterConfigurable is implemented by serializers that convert numbers.
type ConverterConfigurable interface {
	Serializer

	// Converter returns the converter used by the serializer.
	Converter() representation.Converter

	// WithConverter returns a new serializer that uses the given converter.
	WithConverter(c representation.Converter) Serializer
}

// PolymorphicSerializer is implemented by serializers of document-shaped values
// that write a discriminator as one of the document's elements.
type PolymorphicSerializer interface {
	Serializer

	// SerializeNominal is a variant of Serialize that writes a discriminator
	// when the nominal type differs from ValueType.
	SerializeNominal(w *bsonio.Writer, v reflect.Value, nominal reflect.Type) error
}

// asPolymorphic returns the serializer as a PolymorphicSerializer
// if it writes document-shaped values with discriminators.
func asPolymorphic(s Serializer) (PolymorphicSerializer, bool) {
	switch s := s.(type) {
	case *PointerSerializer:
		elem, err := s.elem.get()
		if err != nil {
			return nil, false
		}

		if _, ok := asPolymorphic(elem); !ok {
			return nil, false
		}

		return s, true

	case PolymorphicSerializer:
		return s, true

	default:
		return nil, false
	}
}

// wireTypeError returns an error for a BSON type the serializer can't read.
func wireTypeError(s Serializer, t bson.Tag) error {
	return lazyerrors.Errorf("can't deserialize %s from BSON %s: %w", s.ValueType(), t, bson.ErrFormat)
}

// reprError returns an error for an invalid representation.
func reprError(t reflect.Type, repr bson.Tag) error {
	return lazyerrors.Errorf("%s can't be represented as BSON %s: %w", t, repr, bson.ErrConfiguration)
}

// Marshal encodes v as a BSON document using the default registry.
func Marshal(v any) ([]byte, error) {
	return MarshalWith(Default(), v)
}

// MarshalWith encodes v as a BSON document using the given registry.
//
// The serializer for v's type must write a document.
func MarshalWith(reg *Registry, v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, lazyerrors.Errorf("can't marshal untyped nil: %w", bson.ErrNotSupported)
	}

	s, err := reg.LookupSerializer(rv.Type())
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return marshal(s, rv)
}

// Unmarshal decodes a BSON document into a value of type T using the default registry.
func Unmarshal[T any](b []byte) (T, error) {
	return UnmarshalWith[T](Default(), b)
}

// UnmarshalWith decodes a BSON document into a value of type T using the given registry.
func UnmarshalWith[T any](reg *Registry, b []byte) (T, error) {
	var zero T

	s, err := reg.LookupSerializer(reflect.TypeFor[T]())
	if err != nil {
		return zero, lazyerrors.Error(err)
	}

	v, err := unmarshal(s, b)
	if err != nil {
		return zero, lazyerrors.Error(err)
	}

	return valueAs[T](v), nil
}

// marshal writes v as a top-level document.
func marshal(s Serializer, v reflect.Value) ([]byte, error) {
	w := bsonio.NewWriter()

	if err := s.Serialize(w, v); err != nil {
		return nil, lazyerrors.Error(err)
	}

	b, err := w.Bytes()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return b, nil
}

// unmarshal reads a top-level document and checks that b contains nothing else.
func unmarshal(s Serializer, b []byte) (reflect.Value, error) {
	r := bsonio.NewReader(b)

	if _, err := r.ReadBSONType(); err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	v, err := s.Deserialize(r)
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	if r.State() != bsonio.StateDone {
		return reflect.Value{}, lazyerrors.Errorf("%s was not read completely: %w", s.ValueType(), bson.ErrFormat)
	}

	if !r.IsAtEnd() {
		return reflect.Value{}, lazyerrors.Errorf("%d extra bytes after document: %w", len(b)-r.Position(), bson.ErrFormat)
	}

	return v, nil
}

// valueAs returns v as T; nil interface values become zero T.
func valueAs[T any](v reflect.Value) T {
	res, _ := v.Interface().(T)
	return res
}

// Codec is a typed facade over a Serializer.
type Codec[T any] struct {
	s Serializer
}

// CodecFor returns a Codec for type T from the given registry.
func CodecFor[T any](reg *Registry) (*Codec[T], error) {
	s, err := reg.LookupSerializer(reflect.TypeFor[T]())
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return &Codec[T]{s: s}, nil
}

// NewCodec returns a Codec that uses the given serializer.
//
// It is used with reconfigured serializers that are never cached by the registry.
func NewCodec[T any](s Serializer) (*Codec[T], error) {
	if t := reflect.TypeFor[T](); s.ValueType() != t {
		return nil, lazyerrors.Errorf("serializer for %s can't be used for %s: %w", s.ValueType(), t, bson.ErrConfiguration)
	}

	return &Codec[T]{s: s}, nil
}

// Serializer returns the underlying serializer.
func (c *Codec[T]) Serializer() Serializer {
	return c.s
}

// Serialize writes v at the current writer position.
func (c *Codec[T]) Serialize(w *bsonio.Writer, v T) error {
	// take the address so interface types are not unwrapped
	return c.s.Serialize(w, reflect.ValueOf(&v).Elem())
}

// Deserialize reads a value at the current reader position.
func (c *Codec[T]) Deserialize(r *bsonio.Reader) (T, error) {
	var zero T

	v, err := c.s.Deserialize(r)
	if err != nil {
		return zero, lazyerrors.Error(err)
	}

	return valueAs[T](v), nil
}

// Marshal encodes v as a BSON document.
func (c *Codec[T]) Marshal(v T) ([]byte, error) {
	return marshal(c.s, reflect.ValueOf(&v).Elem())
}

// Unmarshal decodes a BSON document.
func (c *Codec[T]) Unmarshal(b []byte) (T, error) {
	var zero T

	v, err := unmarshal(c.s, b)
	if err != nil {
		return zero, lazyerrors.Error(err)
	}

	return valueAs[T](v), nil
}
