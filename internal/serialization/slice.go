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

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// elementWriter writes elements of a collection with the given element serializer.
//
// For interface element types, it remembers the serializer of the last seen actual type,
// so homogeneous collections do not look up the registry for each element.
type elementWriter struct {
	reg        *Registry
	elem       Serializer
	iface      *InterfaceSerializer
	lastType   reflect.Type
	lastActual Serializer
}

// newElementWriter returns a new elementWriter for a single serialization.
func newElementWriter(reg *Registry, elem Serializer) *elementWriter {
	ew := &elementWriter{reg: reg, elem: elem}
	ew.iface, _ = elem.(*InterfaceSerializer)

	return ew
}

// write writes a single element.
func (ew *elementWriter) write(w *bsonio.Writer, v reflect.Value) error {
	if ew.iface == nil || v.IsNil() {
		return ew.elem.Serialize(w, v)
	}

	v = v.Elem()

	if t := v.Type(); t != ew.lastType {
		actual, err := ew.reg.LookupSerializer(t)
		if err != nil {
			return lazyerrors.Error(err)
		}

		ew.lastType, ew.lastActual = t, actual
	}

	return ew.iface.serializeActual(w, v, ew.lastActual)
}

// SliceSerializer handles slices and arrays as BSON arrays.
//
// Nil slices are written as Null and read back from it.
// Arrays must have exactly the same number of elements as the Go array type.
type SliceSerializer struct {
	reg  *Registry
	t    reflect.Type
	elem *lazySerializer
}

// NewSliceSerializer creates a new serializer for the given slice or array type.
func NewSliceSerializer(reg *Registry, t reflect.Type) (*SliceSerializer, error) {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return nil, lazyerrors.Errorf("%s is not a slice or array type: %w", t, bson.ErrConfiguration)
	}

	return &SliceSerializer{
		reg:  reg,
		t:    t,
		elem: newLazySerializer(reg, t.Elem()),
	}, nil
}

// WithElementSerializer returns a new serializer that uses the given serializer for elements.
func (s *SliceSerializer) WithElementSerializer(elem Serializer) (*SliceSerializer, error) {
	if elem.ValueType() != s.t.Elem() {
		return nil, lazyerrors.Errorf(
			"serializer for %s can't be used for elements of %s: %w", elem.ValueType(), s.t, bson.ErrConfiguration,
		)
	}

	res := *s
	res.elem = resolvedSerializer(elem)

	return &res, nil
}

// ValueType implements [Serializer].
func (s *SliceSerializer) ValueType() reflect.Type {
	return s.t
}

// Serialize implements [Serializer].
func (s *SliceSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	if s.t.Kind() == reflect.Slice && v.IsNil() {
		return w.WriteNull()
	}

	elem, err := s.elem.get()
	if err != nil {
		return lazyerrors.Error(err)
	}

	if err = w.WriteStartArray(); err != nil {
		return lazyerrors.Error(err)
	}

	ew := newElementWriter(s.reg, elem)

	for i := range v.Len() {
		if err = ew.write(w, v.Index(i)); err != nil {
			return lazyerrors.Errorf("%d: %w", i, err)
		}
	}

	return w.WriteEndArray()
}

// Deserialize implements [Serializer].
func (s *SliceSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	switch t := r.CurrentType(); t {
	case bson.TagNull:
		if s.t.Kind() != reflect.Slice {
			return reflect.Value{}, wireTypeError(s, t)
		}

		if err := r.ReadNull(); err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		return reflect.Zero(s.t), nil

	case bson.TagArray:
		// read below

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	elem, err := s.elem.get()
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	var res reflect.Value
	if s.t.Kind() == reflect.Slice {
		res = reflect.MakeSlice(s.t, 0, 0)
	} else {
		res = reflect.New(s.t).Elem()
	}

	var n int

	err = readArray(r, func() error {
		v, err := elem.Deserialize(r)
		if err != nil {
			return lazyerrors.Errorf("%d: %w", n, err)
		}

		if s.t.Kind() == reflect.Slice {
			res = reflect.Append(res, v)
		} else {
			if n >= s.t.Len() {
				return lazyerrors.Errorf("too many elements for %s: %w", s.t, bson.ErrFormat)
			}

			res.Index(n).Set(v)
		}

		n++

		return nil
	})
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	if s.t.Kind() == reflect.Array && n != s.t.Len() {
		return reflect.Value{}, lazyerrors.Errorf("%d elements for %s: %w", n, s.t, bson.ErrFormat)
	}

	return res, nil
}

// readArray reads the current array value, calling f for each element.
//
// When f is called, the reader is positioned at the element value.
func readArray(r *bsonio.Reader, f func() error) error {
	if err := r.ReadStartArray(); err != nil {
		return lazyerrors.Error(err)
	}

	for {
		t, err := r.ReadBSONType()
		if err != nil {
			return lazyerrors.Error(err)
		}

		if t == bson.TagEndOfDocument {
			break
		}

		if err = f(); err != nil {
			return err
		}
	}

	return r.ReadEndArray()
}

// ListSerializer handles [*list.List] as an array of elements of any type.
type ListSerializer struct {
	reg  *Registry
	elem *lazySerializer
}

// NewListSerializer creates a new list serializer.
func NewListSerializer(reg *Registry) *ListSerializer {
	return &ListSerializer{
		reg:  reg,
		elem: newLazySerializer(reg, reflect.TypeFor[any]()),
	}
}

// ValueType implements [Serializer].
func (s *ListSerializer) ValueType() reflect.Type {
	return reflect.TypeFor[*list.List]()
}

// Serialize implements [Serializer].
func (s *ListSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	if v.IsNil() {
		return w.WriteNull()
	}

	elem, err := s.elem.get()
	if err != nil {
		return lazyerrors.Error(err)
	}

	if err = w.WriteStartArray(); err != nil {
		return lazyerrors.Error(err)
	}

	ew := newElementWriter(s.reg, elem)

	var i int
	for e := v.Interface().(*list.List).Front(); e != nil; e = e.Next() {
		// take the address so the value is not unwrapped
		if err = ew.write(w, reflect.ValueOf(&e.Value).Elem()); err != nil {
			return lazyerrors.Errorf("%d: %w", i, err)
		}

		i++
	}

	return w.WriteEndArray()
}

// Deserialize implements [Serializer].
func (s *ListSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	switch t := r.CurrentType(); t {
	case bson.TagNull:
		if err := r.ReadNull(); err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		return reflect.Zero(s.ValueType()), nil

	case bson.TagArray:
		// read below

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	elem, err := s.elem.get()
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	res := list.New()

	err = readArray(r, func() error {
		v, err := elem.Deserialize(r)
		if err != nil {
			return lazyerrors.Errorf("%d: %w", res.Len(), err)
		}

		res.PushBack(v.Interface())

		return nil
	})
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return reflect.ValueOf(res), nil
}

// check interfaces
var (
	_ Serializer = (*SliceSerializer)(nil)
	_ Serializer = (*ListSerializer)(nil)
)
