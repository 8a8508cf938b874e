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

// PointerSerializer handles pointer types.
//
// Nil pointers are written as Null and read back from it;
// other values are handled by the serializer of the element type.
type PointerSerializer struct {
	t    reflect.Type
	elem *lazySerializer
}

// NewPointerSerializer creates a new serializer for the given pointer type.
func NewPointerSerializer(reg *Registry, t reflect.Type) (*PointerSerializer, error) {
	if t.Kind() != reflect.Pointer {
		return nil, lazyerrors.Errorf("%s is not a pointer type: %w", t, bson.ErrConfiguration)
	}

	return &PointerSerializer{
		t:    t,
		elem: newLazySerializer(reg, t.Elem()),
	}, nil
}

// NewPointerSerializerWith creates a new serializer for the pointer type
// that uses the given serializer for elements.
func NewPointerSerializerWith(elem Serializer) *PointerSerializer {
	return &PointerSerializer{
		t:    reflect.PointerTo(elem.ValueType()),
		elem: resolvedSerializer(elem),
	}
}

// ValueType implements [Serializer].
func (s *PointerSerializer) ValueType() reflect.Type {
	return s.t
}

// Serialize implements [Serializer].
func (s *PointerSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	return s.SerializeNominal(w, v, s.t)
}

// SerializeNominal implements [PolymorphicSerializer].
func (s *PointerSerializer) SerializeNominal(w *bsonio.Writer, v reflect.Value, nominal reflect.Type) error {
	if v.IsNil() {
		return w.WriteNull()
	}

	elem, err := s.elem.get()
	if err != nil {
		return lazyerrors.Error(err)
	}

	if ps, ok := asPolymorphic(elem); ok && nominal != s.t {
		err = ps.SerializeNominal(w, v.Elem(), nominal)
	} else {
		err = elem.Serialize(w, v.Elem())
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *PointerSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	if r.CurrentType() == bson.TagNull {
		if err := r.ReadNull(); err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		return reflect.Zero(s.t), nil
	}

	elem, err := s.elem.get()
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	v, err := elem.Deserialize(r)
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	res := reflect.New(s.t.Elem())
	res.Elem().Set(v)

	return res, nil
}

// InterfaceSerializer handles interface types, including any.
//
// Nil values are written as Null.
// Other values are written by the serializer of their actual type
// with a discriminator chosen by the convention of the interface type.
// Documents get the discriminator as the first element;
// other values are wrapped into a document with the discriminator and the value.
//
// For any, values without discriminators are read as BSON value model types.
type InterfaceSerializer struct {
	reg *Registry
	t   reflect.Type
}

// NewInterfaceSerializer creates a new serializer for the given interface type.
func NewInterfaceSerializer(reg *Registry, t reflect.Type) (*InterfaceSerializer, error) {
	if t.Kind() != reflect.Interface {
		return nil, lazyerrors.Errorf("%s is not an interface type: %w", t, bson.ErrConfiguration)
	}

	return &InterfaceSerializer{reg: reg, t: t}, nil
}

// ValueType implements [Serializer].
func (s *InterfaceSerializer) ValueType() reflect.Type {
	return s.t
}

// Serialize implements [Serializer].
func (s *InterfaceSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return w.WriteNull()
		}

		v = v.Elem()
	}

	actual, err := s.reg.LookupSerializer(v.Type())
	if err != nil {
		return lazyerrors.Error(err)
	}

	return s.serializeActual(w, v, actual)
}

// serializeActual writes the concrete value v with its serializer.
//
// It is used by collections that cache serializers of elements.
func (s *InterfaceSerializer) serializeActual(w *bsonio.Writer, v reflect.Value, actual Serializer) error {
	// the actual serializer must never be another interface serializer
	if actual.ValueType() != v.Type() {
		return lazyerrors.Errorf(
			"serializer for %s can't write %s: %w", actual.ValueType(), v.Type(), bson.ErrConfiguration,
		)
	}

	conv := s.reg.LookupDiscriminatorConvention(s.t)

	d, err := conv.GetDiscriminator(s.t, v.Type())
	if err != nil {
		return lazyerrors.Error(err)
	}

	if d == nil {
		return actual.Serialize(w, v)
	}

	if ps, ok := asPolymorphic(actual); ok {
		return ps.SerializeNominal(w, v, s.t)
	}

	if err = w.WriteStartDocument(); err != nil {
		return lazyerrors.Error(err)
	}

	if err = w.WriteName(conv.ElementName()); err != nil {
		return lazyerrors.Error(err)
	}

	if err = w.WriteValue(d); err != nil {
		return lazyerrors.Error(err)
	}

	if err = w.WriteName(wrappedValueElement); err != nil {
		return lazyerrors.Error(err)
	}

	if err = actual.Serialize(w, v); err != nil {
		return lazyerrors.Error(err)
	}

	return w.WriteEndDocument()
}

// Deserialize implements [Serializer].
func (s *InterfaceSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	res := reflect.New(s.t).Elem()

	if r.CurrentType() == bson.TagNull {
		if err := r.ReadNull(); err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		return res, nil
	}

	conv := s.reg.LookupDiscriminatorConvention(s.t)

	actualType, err := conv.GetActualType(r, s.t)
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	if actualType == s.t {
		if s.t.NumMethod() > 0 {
			return reflect.Value{}, lazyerrors.Errorf(
				"no discriminator for %s in BSON %s: %w", s.t, r.CurrentType(), bson.ErrFormat,
			)
		}

		v, err := r.ReadValue()
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		res.Set(reflect.ValueOf(v))

		return res, nil
	}

	actual, err := s.reg.LookupSerializer(actualType)
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	var v reflect.Value

	if _, ok := asPolymorphic(actual); ok {
		v, err = actual.Deserialize(r)
	} else {
		v, err = readWrapped(r, conv.ElementName(), actual)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	res.Set(v)

	return res, nil
}

// readWrapped reads a value wrapped into a document with a discriminator.
func readWrapped(r *bsonio.Reader, discriminatorElement string, s Serializer) (reflect.Value, error) {
	if err := r.ReadStartDocument(); err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	var res reflect.Value

	for {
		t, err := r.ReadBSONType()
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		if t == bson.TagEndOfDocument {
			break
		}

		name, err := r.ReadName()
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		switch name {
		case discriminatorElement:
			err = r.SkipValue()
		case wrappedValueElement:
			res, err = s.Deserialize(r)
		default:
			err = lazyerrors.Errorf("unexpected element %q in wrapped %s: %w", name, s.ValueType(), bson.ErrFormat)
		}

		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}
	}

	if err := r.ReadEndDocument(); err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	if !res.IsValid() {
		return reflect.Value{}, lazyerrors.Errorf("no %q element in wrapped %s: %w", wrappedValueElement, s.ValueType(), bson.ErrFormat)
	}

	return res, nil
}

// check interfaces
var (
	_ PolymorphicSerializer = (*PointerSerializer)(nil)
	_ Serializer            = (*InterfaceSerializer)(nil)
)
