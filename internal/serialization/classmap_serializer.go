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

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// ClassMapSerializer handles struct types described by a [ClassMap].
//
// Structs are written as documents.
// The identifier member is written first, then the discriminator (if needed),
// then other members in declaration order, then extra elements.
type ClassMapSerializer struct {
	cm *ClassMap
}

// NewClassMapSerializer creates a new serializer for the class map.
//
// The class map is frozen if it was not.
func NewClassMapSerializer(cm *ClassMap) (*ClassMapSerializer, error) {
	if err := cm.Freeze(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return &ClassMapSerializer{cm: cm}, nil
}

// ValueType implements [Serializer].
func (s *ClassMapSerializer) ValueType() reflect.Type {
	return s.cm.t
}

// ClassMap returns the class map.
func (s *ClassMapSerializer) ClassMap() *ClassMap {
	return s.cm
}

// Serialize implements [Serializer].
func (s *ClassMapSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	return s.SerializeNominal(w, v, s.cm.t)
}

// SerializeNominal implements [PolymorphicSerializer].
func (s *ClassMapSerializer) SerializeNominal(w *bsonio.Writer, v reflect.Value, nominal reflect.Type) error {
	cm := s.cm

	if err := w.WriteStartDocument(); err != nil {
		return lazyerrors.Error(err)
	}

	if cm.idMember != nil {
		if err := s.writeMember(w, v, cm.idMember); err != nil {
			return lazyerrors.Error(err)
		}
	}

	if nominal != cm.t || cm.discriminatorRequired {
		if err := s.writeDiscriminator(w, nominal); err != nil {
			return lazyerrors.Error(err)
		}
	}

	for _, mm := range cm.members {
		if mm == cm.idMember || mm.extra {
			continue
		}

		if err := s.writeMember(w, v, mm); err != nil {
			return lazyerrors.Error(err)
		}
	}

	if cm.extraMember != nil {
		if err := s.writeExtraElements(w, v.FieldByIndex(cm.extraMember.index)); err != nil {
			return lazyerrors.Error(err)
		}
	}

	return w.WriteEndDocument()
}

// writeDiscriminator writes the discriminator element for the nominal type.
func (s *ClassMapSerializer) writeDiscriminator(w *bsonio.Writer, nominal reflect.Type) error {
	conv := s.cm.registry.LookupDiscriminatorConvention(nominal)

	d, err := conv.GetDiscriminator(nominal, s.cm.t)
	if err != nil {
		return lazyerrors.Error(err)
	}

	if d == nil {
		if !s.cm.discriminatorRequired {
			return nil
		}

		// the nominal type is the struct type itself
		d = s.cm.discriminator
		if alias, ok := s.cm.registry.TypeAlias(s.cm.t); ok {
			d = alias
		}
	}

	if err = w.WriteName(conv.ElementName()); err != nil {
		return lazyerrors.Error(err)
	}

	return w.WriteValue(d)
}

// writeMember writes the member of the struct value v unless it should be skipped.
func (s *ClassMapSerializer) writeMember(w *bsonio.Writer, v reflect.Value, mm *MemberMap) error {
	fv := v.FieldByIndex(mm.index)

	if mm.shouldSerialize != nil && !mm.shouldSerialize(v.Interface()) {
		return nil
	}

	if mm.ignoreIfNull && isNil(fv) {
		return nil
	}

	if mm.ignoreIfDefault {
		if mm.defaultValue.IsValid() {
			if reflect.DeepEqual(fv.Interface(), mm.defaultValue.Interface()) {
				return nil
			}
		} else if fv.IsZero() {
			return nil
		}
	}

	ser, err := mm.serializer.get()
	if err != nil {
		return lazyerrors.Error(err)
	}

	if err = w.WriteName(mm.elementName); err != nil {
		return lazyerrors.Error(err)
	}

	if err = ser.Serialize(w, fv); err != nil {
		return lazyerrors.Errorf("%s.%s: %w", s.cm.t, mm.fieldName, err)
	}

	return nil
}

// isNil returns true for nil values of nillable kinds.
func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

// writeExtraElements writes captured extra elements after all members.
func (s *ClassMapSerializer) writeExtraElements(w *bsonio.Writer, extra reflect.Value) error {
	if extra.IsNil() {
		return nil
	}

	switch extra := extra.Interface().(type) {
	case *bson.Document:
		for i := range extra.Len() {
			name, v := extra.GetByIndex(i)

			if err := w.WriteName(name); err != nil {
				return lazyerrors.Error(err)
			}

			if err := w.WriteValue(v); err != nil {
				return lazyerrors.Errorf("%q: %w", name, err)
			}
		}

	case map[string]any:
		elem, err := s.cm.registry.LookupSerializer(reflect.TypeFor[any]())
		if err != nil {
			return lazyerrors.Error(err)
		}

		ew := newElementWriter(s.cm.registry, elem)

		names := maps.Keys(extra)
		slices.Sort(names)

		for _, name := range names {
			if err = w.WriteName(name); err != nil {
				return lazyerrors.Error(err)
			}

			if err = ew.write(w, reflect.ValueOf(extra).MapIndex(reflect.ValueOf(name))); err != nil {
				return lazyerrors.Errorf("%q: %w", name, err)
			}
		}
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *ClassMapSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	cm := s.cm

	if t := r.CurrentType(); t != bson.TagDocument {
		return reflect.Value{}, wireTypeError(s, t)
	}

	if err := r.ReadStartDocument(); err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	values := make([]reflect.Value, len(cm.members))

	var extra reflect.Value
	if cm.extraMember != nil {
		extra = reflect.New(cm.extraMember.t).Elem()
	}

	for {
		t, i, found, err := r.ReadBSONTypeTrie(cm.trie)
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		if t == bson.TagEndOfDocument {
			break
		}

		name := r.CurrentName()

		switch {
		case found && cm.members[i].readOnly:
			err = r.SkipValue()

		case found:
			values[i], err = s.readMember(r, cm.members[i])

		case name == cm.discriminatorElement && cm.lenientDiscriminator:
			err = r.SkipValue()

		case name == cm.discriminatorElement:
			err = s.checkDiscriminator(r)

		case cm.extraMember != nil:
			extra, err = s.readExtraElement(r, extra, name)

		case cm.ignoreExtra:
			err = r.SkipValue()

		default:
			err = lazyerrors.Errorf("unexpected element %q for %s: %w", name, cm.t, bson.ErrFormat)
		}

		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}
	}

	if err := r.ReadEndDocument(); err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	for i, mm := range cm.members {
		if values[i].IsValid() || mm.extra || mm.readOnly {
			continue
		}

		if mm.required {
			return reflect.Value{}, lazyerrors.Errorf(
				"missing required element %q for %s: %w", mm.elementName, cm.t, bson.ErrFormat,
			)
		}

		if mm.defaultValue.IsValid() {
			values[i] = deepCopy(mm.defaultValue)
		}
	}

	if cm.extraMember != nil && !extra.IsNil() {
		values[slices.Index(cm.members, cm.extraMember)] = extra
	}

	res, err := s.create(values)
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return res, nil
}

// readMember reads the value of the member.
func (s *ClassMapSerializer) readMember(r *bsonio.Reader, mm *MemberMap) (reflect.Value, error) {
	ser, err := mm.serializer.get()
	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	v, err := ser.Deserialize(r)
	if err != nil {
		return reflect.Value{}, lazyerrors.Errorf("%s.%s: %w", s.cm.t, mm.fieldName, err)
	}

	return v, nil
}

// checkDiscriminator reads the discriminator and checks that it names the struct type.
func (s *ClassMapSerializer) checkDiscriminator(r *bsonio.Reader) error {
	v, err := r.ReadValue()
	if err != nil {
		return lazyerrors.Error(err)
	}

	alias, err := discriminatorString(v)
	if err != nil {
		return lazyerrors.Error(err)
	}

	if alias == s.cm.discriminator {
		return nil
	}

	t, ok := s.cm.registry.LookupType(alias)
	if !ok {
		return lazyerrors.Errorf("%q: %w", alias, ErrUnknownDiscriminator)
	}

	if t != s.cm.t {
		return lazyerrors.Errorf("discriminator %q (%s) does not match %s: %w", alias, t, s.cm.t, bson.ErrFormat)
	}

	return nil
}

// readExtraElement reads the unknown element into extra elements, creating them if needed.
func (s *ClassMapSerializer) readExtraElement(r *bsonio.Reader, extra reflect.Value, name string) (reflect.Value, error) {
	switch e := extra.Interface().(type) {
	case *bson.Document:
		v, err := r.ReadValue()
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		if e == nil {
			e = bson.MakeDocument(1)
		}

		if err = e.Add(name, v); err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		return reflect.ValueOf(e), nil

	case map[string]any:
		elem, err := s.cm.registry.LookupSerializer(reflect.TypeFor[any]())
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		v, err := elem.Deserialize(r)
		if err != nil {
			return reflect.Value{}, lazyerrors.Errorf("%q: %w", name, err)
		}

		if e == nil {
			e = make(map[string]any)
		}

		e[name] = valueAs[any](v)

		return reflect.ValueOf(e), nil

	default:
		panic("unreachable")
	}
}

// create creates a new struct value from member values.
//
// Without creators, members are set directly.
// Otherwise, the creator with the most available arguments is called,
// and other members are set directly.
func (s *ClassMapSerializer) create(values []reflect.Value) (reflect.Value, error) {
	cm := s.cm

	res := reflect.New(cm.t).Elem()
	used := make([]bool, len(values))

	if len(cm.creators) > 0 {
		c := chooseCreator(cm.creators, values)
		if c == nil {
			return reflect.Value{}, lazyerrors.Errorf("no creator for %s can be called: %w", cm.t, bson.ErrFormat)
		}

		args := make([]reflect.Value, len(c.members))
		for j, i := range c.members {
			args[j] = values[i]
			used[i] = true
		}

		out := c.fn.Call(args)

		if c.hasError {
			if err, _ := out[1].Interface().(error); err != nil {
				return reflect.Value{}, lazyerrors.Errorf("creator for %s: %w", cm.t, err)
			}
		}

		v := out[0]

		if c.pointer {
			if v.IsNil() {
				return reflect.Value{}, lazyerrors.Errorf("creator for %s returned nil: %w", cm.t, bson.ErrFormat)
			}

			v = v.Elem()
		}

		res.Set(v)
	}

	for i, v := range values {
		if !v.IsValid() || used[i] {
			continue
		}

		res.FieldByIndex(cm.members[i].index).Set(v)
	}

	return res, nil
}

// chooseCreator returns the first creator (in the order of decreasing number of arguments)
// with all arguments available, or nil.
func chooseCreator(creators []*creatorMap, values []reflect.Value) *creatorMap {
	for _, c := range creators {
		ok := true

		for _, i := range c.members {
			if !values[i].IsValid() {
				ok = false
				break
			}
		}

		if ok {
			return c
		}
	}

	return nil
}

// check interfaces
var (
	_ PolymorphicSerializer = (*ClassMapSerializer)(nil)
)
