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
	"cmp"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/representation"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// MapRepresentation defines how maps are written.
type MapRepresentation int

// Map representations.
const (
	// MapDynamic writes a document if all keys are valid element names, and MapArrayOfArrays otherwise.
	MapDynamic MapRepresentation = iota

	// MapDocument writes a document with keys as element names.
	MapDocument

	// MapArrayOfArrays writes an array of two-element [key, value] arrays.
	MapArrayOfArrays

	// MapArrayOfDocuments writes an array of {k: key, v: value} documents.
	MapArrayOfDocuments
)

// String implements [fmt.Stringer].
func (mr MapRepresentation) String() string {
	switch mr {
	case MapDynamic:
		return "Dynamic"
	case MapDocument:
		return "Document"
	case MapArrayOfArrays:
		return "ArrayOfArrays"
	case MapArrayOfDocuments:
		return "ArrayOfDocuments"
	default:
		return "MapRepresentation(" + strconv.Itoa(int(mr)) + ")"
	}
}

// Element names of MapArrayOfDocuments pairs.
const (
	mapKeyElement   = "k"
	mapValueElement = "v"
)

// MapSerializer handles map types.
//
// Keys are written in sorted order. Nil maps are written as Null and read back from it.
// All representations are accepted when reading.
type MapSerializer struct {
	reg   *Registry
	t     reflect.Type
	key   *lazySerializer
	value *lazySerializer
	repr  MapRepresentation
}

// NewMapSerializer creates a new serializer for the given map type.
func NewMapSerializer(reg *Registry, t reflect.Type) (*MapSerializer, error) {
	if t.Kind() != reflect.Map {
		return nil, lazyerrors.Errorf("%s is not a map type: %w", t, bson.ErrConfiguration)
	}

	return &MapSerializer{
		reg:   reg,
		t:     t,
		key:   newLazySerializer(reg, t.Key()),
		value: newLazySerializer(reg, t.Elem()),
		repr:  MapDynamic,
	}, nil
}

// ValueType implements [Serializer].
func (s *MapSerializer) ValueType() reflect.Type {
	return s.t
}

// MapRepresentation returns the map representation.
func (s *MapSerializer) MapRepresentation() MapRepresentation {
	return s.repr
}

// WithMapRepresentation returns a new serializer with the given map representation.
//
// Document representation requires keys convertible to strings.
func (s *MapSerializer) WithMapRepresentation(repr MapRepresentation) (*MapSerializer, error) {
	switch repr {
	case MapDynamic, MapArrayOfArrays, MapArrayOfDocuments:
	case MapDocument:
		if !stringKey(s.t.Key()) {
			return nil, lazyerrors.Errorf("%s keys can't be element names: %w", s.t, bson.ErrConfiguration)
		}
	default:
		return nil, lazyerrors.Errorf("invalid map representation %s: %w", repr, bson.ErrConfiguration)
	}

	res := *s
	res.repr = repr

	return &res, nil
}

// Representation implements [RepresentationConfigurable].
//
// Dynamic representation is reported as Document.
func (s *MapSerializer) Representation() bson.Tag {
	switch s.repr {
	case MapArrayOfArrays, MapArrayOfDocuments:
		return bson.TagArray
	default:
		return bson.TagDocument
	}
}

// WithRepresentation implements [RepresentationConfigurable].
//
// Document means dynamic representation; Array means an array of arrays.
func (s *MapSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagDocument:
		return s.WithMapRepresentation(MapDynamic)
	case bson.TagArray:
		return s.WithMapRepresentation(MapArrayOfArrays)
	default:
		return nil, reprError(s.t, repr)
	}
}

// stringKey returns true if map keys of type t can be converted to strings and back.
func stringKey(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// keyString returns the string form of the map key.
func keyString(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	default:
		return strconv.FormatUint(k.Uint(), 10)
	}
}

// parseKey converts the element name to the map key of type t.
func parseKey(t reflect.Type, name string) (reflect.Value, error) {
	res := reflect.New(t).Elem()

	var err error

	switch t.Kind() {
	case reflect.String:
		res.SetString(name)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var i int64
		if i, err = representation.ParseInteger[int64](representation.Default, name); err == nil {
			err = setInteger(representation.Default, res, i)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var u uint64
		if u, err = representation.ParseInteger[uint64](representation.Default, name); err == nil {
			err = setInteger(representation.Default, res, u)
		}
	default:
		err = lazyerrors.Errorf("%s keys can't be element names: %w", t, bson.ErrFormat)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Errorf("key %q: %w", name, err)
	}

	return res, nil
}

// validElementName returns true if the map key can be written as an element name.
func validElementName(name string) bool {
	return name != "" && name[0] != '$' && !strings.ContainsAny(name, ".\x00")
}

// sortedKeys returns map keys sorted by [compareKeys].
func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	slices.SortFunc(keys, compareKeys)

	return keys
}

// compareKeys defines a total order of comparable map keys.
//
// Numbers, strings and booleans use their natural order.
// Interface keys are ordered by dynamic type name first, nil first of all.
// Structs and arrays are compared field by field, element by element.
// Pointers and channels are ordered by address.
func compareKeys(a, b reflect.Value) int {
	switch a.Kind() { //nolint:exhaustive // map keys can't have other kinds
	case reflect.String:
		return cmp.Compare(a.String(), b.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	case reflect.Complex64, reflect.Complex128:
		if c := cmp.Compare(real(a.Complex()), real(b.Complex())); c != 0 {
			return c
		}

		return cmp.Compare(imag(a.Complex()), imag(b.Complex()))
	case reflect.Bool:
		return cmp.Compare(boolInt(a.Bool()), boolInt(b.Bool()))
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return cmp.Compare(a.Pointer(), b.Pointer())

	case reflect.Interface:
		switch {
		case a.IsNil() && b.IsNil():
			return 0
		case a.IsNil():
			return -1
		case b.IsNil():
			return 1
		}

		a, b = a.Elem(), b.Elem()
		if at, bt := a.Type(), b.Type(); at != bt {
			if c := cmp.Compare(at.String(), bt.String()); c != 0 {
				return c
			}

			return cmp.Compare(at.PkgPath(), bt.PkgPath())
		}

		return compareKeys(a, b)

	case reflect.Struct:
		for i := range a.NumField() {
			if c := compareKeys(a.Field(i), b.Field(i)); c != 0 {
				return c
			}
		}

		return 0

	case reflect.Array:
		for i := range a.Len() {
			if c := compareKeys(a.Index(i), b.Index(i)); c != 0 {
				return c
			}
		}

		return 0

	default:
		return 0
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

// actualRepresentation decides the representation of the given map value.
//
// Dynamic representation scans all keys first.
func (s *MapSerializer) actualRepresentation(keys []reflect.Value) MapRepresentation {
	if s.repr != MapDynamic {
		return s.repr
	}

	if !stringKey(s.t.Key()) {
		return MapArrayOfArrays
	}

	for _, k := range keys {
		if !validElementName(keyString(k)) {
			return MapArrayOfArrays
		}
	}

	return MapDocument
}

// Serialize implements [Serializer].
func (s *MapSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	if v.IsNil() {
		return w.WriteNull()
	}

	keys := sortedKeys(v)

	var err error

	switch repr := s.actualRepresentation(keys); repr {
	case MapDocument:
		err = s.writeDocument(w, v, keys)
	default:
		err = s.writePairs(w, v, keys, repr)
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// writeDocument writes the map as a document.
func (s *MapSerializer) writeDocument(w *bsonio.Writer, v reflect.Value, keys []reflect.Value) error {
	value, err := s.value.get()
	if err != nil {
		return lazyerrors.Error(err)
	}

	if err = w.WriteStartDocument(); err != nil {
		return lazyerrors.Error(err)
	}

	ew := newElementWriter(s.reg, value)

	for _, k := range keys {
		name := keyString(k)

		if err = w.WriteName(name); err != nil {
			return lazyerrors.Error(err)
		}

		if err = ew.write(w, v.MapIndex(k)); err != nil {
			return lazyerrors.Errorf("%q: %w", name, err)
		}
	}

	return w.WriteEndDocument()
}

// writePairs writes the map as an array of arrays or documents.
func (s *MapSerializer) writePairs(w *bsonio.Writer, v reflect.Value, keys []reflect.Value, repr MapRepresentation) error {
	key, err := s.key.get()
	if err != nil {
		return lazyerrors.Error(err)
	}

	value, err := s.value.get()
	if err != nil {
		return lazyerrors.Error(err)
	}

	if err = w.WriteStartArray(); err != nil {
		return lazyerrors.Error(err)
	}

	kw := newElementWriter(s.reg, key)
	vw := newElementWriter(s.reg, value)

	for i, k := range keys {
		if repr == MapArrayOfDocuments {
			err = writePairDocument(w, kw, vw, k, v.MapIndex(k))
		} else {
			err = writePairArray(w, kw, vw, k, v.MapIndex(k))
		}

		if err != nil {
			return lazyerrors.Errorf("%d: %w", i, err)
		}
	}

	return w.WriteEndArray()
}

// writePairArray writes a [key, value] array.
func writePairArray(w *bsonio.Writer, kw, vw *elementWriter, k, v reflect.Value) error {
	if err := w.WriteStartArray(); err != nil {
		return lazyerrors.Error(err)
	}

	if err := kw.write(w, k); err != nil {
		return lazyerrors.Error(err)
	}

	if err := vw.write(w, v); err != nil {
		return lazyerrors.Error(err)
	}

	return w.WriteEndArray()
}

// writePairDocument writes a {k: key, v: value} document.
func writePairDocument(w *bsonio.Writer, kw, vw *elementWriter, k, v reflect.Value) error {
	if err := w.WriteStartDocument(); err != nil {
		return lazyerrors.Error(err)
	}

	if err := w.WriteName(mapKeyElement); err != nil {
		return lazyerrors.Error(err)
	}

	if err := kw.write(w, k); err != nil {
		return lazyerrors.Error(err)
	}

	if err := w.WriteName(mapValueElement); err != nil {
		return lazyerrors.Error(err)
	}

	if err := vw.write(w, v); err != nil {
		return lazyerrors.Error(err)
	}

	return w.WriteEndDocument()
}

// Deserialize implements [Serializer].
func (s *MapSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	var res reflect.Value
	var err error

	switch t := r.CurrentType(); t {
	case bson.TagNull:
		if err = r.ReadNull(); err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		return reflect.Zero(s.t), nil

	case bson.TagDocument:
		res, err = s.readDocument(r)

	case bson.TagArray:
		res, err = s.readPairs(r)

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return res, nil
}

// readDocument reads the map from a document.
func (s *MapSerializer) readDocument(r *bsonio.Reader) (reflect.Value, error) {
	value, err := s.value.get()
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	if err = r.ReadStartDocument(); err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	res := reflect.MakeMap(s.t)

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

		k, err := parseKey(s.t.Key(), name)
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		v, err := value.Deserialize(r)
		if err != nil {
			return reflect.Value{}, lazyerrors.Errorf("%q: %w", name, err)
		}

		res.SetMapIndex(k, v)
	}

	if err = r.ReadEndDocument(); err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return res, nil
}

// readPairs reads the map from an array of arrays or documents.
func (s *MapSerializer) readPairs(r *bsonio.Reader) (reflect.Value, error) {
	key, err := s.key.get()
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	value, err := s.value.get()
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	res := reflect.MakeMap(s.t)

	err = readArray(r, func() error {
		var k, v reflect.Value
		var err error

		switch t := r.CurrentType(); t {
		case bson.TagArray:
			k, v, err = readPairArray(r, key, value)
		case bson.TagDocument:
			k, v, err = readPairDocument(r, key, value)
		default:
			err = lazyerrors.Errorf("unexpected BSON %s as %s pair: %w", t, s.t, bson.ErrFormat)
		}

		if err != nil {
			return lazyerrors.Errorf("%d: %w", res.Len(), err)
		}

		if err = setMapIndex(res, k, v); err != nil {
			return lazyerrors.Errorf("%d: %w", res.Len(), err)
		}

		return nil
	})
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return res, nil
}

// setMapIndex sets m[k] to v.
//
// Keys that can't be hashed, such as Binary or Array values decoded into an interface,
// are rejected instead of panicking.
func setMapIndex(m, k, v reflect.Value) error {
	if !k.Comparable() {
		return lazyerrors.Errorf("key of type %s can't be used as %s key: %w", k.Type(), m.Type(), bson.ErrFormat)
	}

	m.SetMapIndex(k, v)

	return nil
}

// readPairArray reads a [key, value] array.
func readPairArray(r *bsonio.Reader, key, value Serializer) (reflect.Value, reflect.Value, error) {
	var k, v reflect.Value
	var n int

	err := readArray(r, func() error {
		var err error

		switch n {
		case 0:
			k, err = key.Deserialize(r)
		case 1:
			v, err = value.Deserialize(r)
		default:
			err = lazyerrors.Errorf("too many elements in key/value pair: %w", bson.ErrFormat)
		}

		n++

		return err
	})
	if err != nil {
		return reflect.Value{}, reflect.Value{}, lazyerrors.Error(err)
	}

	if n != 2 {
		return reflect.Value{}, reflect.Value{}, lazyerrors.Errorf("%d elements in key/value pair: %w", n, bson.ErrFormat)
	}

	return k, v, nil
}

// readPairDocument reads a {k: key, v: value} document.
func readPairDocument(r *bsonio.Reader, key, value Serializer) (reflect.Value, reflect.Value, error) {
	if err := r.ReadStartDocument(); err != nil {
		return reflect.Value{}, reflect.Value{}, lazyerrors.Error(err)
	}

	var k, v reflect.Value

	for {
		t, err := r.ReadBSONType()
		if err != nil {
			return reflect.Value{}, reflect.Value{}, lazyerrors.Error(err)
		}

		if t == bson.TagEndOfDocument {
			break
		}

		name, err := r.ReadName()
		if err != nil {
			return reflect.Value{}, reflect.Value{}, lazyerrors.Error(err)
		}

		switch name {
		case mapKeyElement:
			k, err = key.Deserialize(r)
		case mapValueElement:
			v, err = value.Deserialize(r)
		default:
			err = lazyerrors.Errorf("unexpected element %q in key/value pair: %w", name, bson.ErrFormat)
		}

		if err != nil {
			return reflect.Value{}, reflect.Value{}, lazyerrors.Error(err)
		}
	}

	if err := r.ReadEndDocument(); err != nil {
		return reflect.Value{}, reflect.Value{}, lazyerrors.Error(err)
	}

	if !k.IsValid() || !v.IsValid() {
		return reflect.Value{}, reflect.Value{}, lazyerrors.Errorf("incomplete key/value pair: %w", bson.ErrFormat)
	}

	return k, v, nil
}

// SetSerializer handles sets represented as map[K]struct{}.
//
// Sets are written as arrays of sorted keys. Nil sets are written as Null and read back from it.
type SetSerializer struct {
	reg *Registry
	t   reflect.Type
	key *lazySerializer
}

// NewSetSerializer creates a new serializer for the given set type.
func NewSetSerializer(reg *Registry, t reflect.Type) (*SetSerializer, error) {
	if !isSet(t) {
		return nil, lazyerrors.Errorf("%s is not a set type: %w", t, bson.ErrConfiguration)
	}

	return &SetSerializer{
		reg: reg,
		t:   t,
		key: newLazySerializer(reg, t.Key()),
	}, nil
}

// isSet returns true for map types with empty struct values.
func isSet(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0
}

// ValueType implements [Serializer].
func (s *SetSerializer) ValueType() reflect.Type {
	return s.t
}

// Serialize implements [Serializer].
func (s *SetSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	if v.IsNil() {
		return w.WriteNull()
	}

	key, err := s.key.get()
	if err != nil {
		return lazyerrors.Error(err)
	}

	if err = w.WriteStartArray(); err != nil {
		return lazyerrors.Error(err)
	}

	kw := newElementWriter(s.reg, key)

	for i, k := range sortedKeys(v) {
		if err = kw.write(w, k); err != nil {
			return lazyerrors.Errorf("%d: %w", i, err)
		}
	}

	return w.WriteEndArray()
}

// Deserialize implements [Serializer].
func (s *SetSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	switch t := r.CurrentType(); t {
	case bson.TagNull:
		if err := r.ReadNull(); err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		return reflect.Zero(s.t), nil

	case bson.TagArray:
		// read below

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	key, err := s.key.get()
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	res := reflect.MakeMap(s.t)
	empty := reflect.New(s.t.Elem()).Elem()

	err = readArray(r, func() error {
		k, err := key.Deserialize(r)
		if err != nil {
			return lazyerrors.Errorf("%d: %w", res.Len(), err)
		}

		if err = setMapIndex(res, k, empty); err != nil {
			return lazyerrors.Errorf("%d: %w", res.Len(), err)
		}

		return nil
	})
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return res, nil
}

// check interfaces
var (
	_ RepresentationConfigurable = (*MapSerializer)(nil)
	_ Serializer                 = (*SetSerializer)(nil)
)
