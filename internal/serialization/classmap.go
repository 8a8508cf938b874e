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
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// IDElement is the element name of the identifier member.
const IDElement = "_id"

// Struct tags used by [ClassMap.AutoMap].
const (
	// Tag is `bson:"name,option,..."`; "-" skips the field.
	// Options are omitempty, omitnull, required, readonly, extra and id.
	Tag = "bson"

	// ReprTag is `bsonrepr:"type"` with a BSON type alias like "string" or "long".
	ReprTag = "bsonrepr"
)

// ClassMap describes how a struct type is mapped to a BSON document.
//
// Class maps are created by [Registry.NewClassMap], configured by builder methods, and frozen
// when registered or used. Builder errors are sticky: the first one is returned by [ClassMap.Freeze].
// A frozen class map is immutable and safe for concurrent use.
type ClassMap struct {
	registry *Registry
	t        reflect.Type

	members     []*MemberMap
	idMember    *MemberMap
	extraMember *MemberMap
	ignoreExtra bool

	discriminator         string
	discriminatorRequired bool
	discriminatorElement  string
	lenientDiscriminator  bool

	creators []*creatorMap

	m      sync.Mutex
	frozen bool
	err    error
	trie   *bsonio.Trie
}

// creatorMap describes a function that creates struct values from member values.
type creatorMap struct {
	fn       reflect.Value
	names    []string
	members  []int
	hasError bool
	pointer  bool
}

// NewClassMap creates a new empty class map for the struct type t.
//
// Use [ClassMap.AutoMap] to map all exported fields.
func (r *Registry) NewClassMap(t reflect.Type) (*ClassMap, error) {
	if t.Kind() != reflect.Struct {
		return nil, lazyerrors.Errorf("%s is not a struct type: %w", t, bson.ErrConfiguration)
	}

	discriminator := t.Name()
	if discriminator == "" {
		discriminator = t.String()
	}

	return &ClassMap{
		registry:      r,
		t:             t,
		discriminator: discriminator,
	}, nil
}

// NewClassMapFor is a generic variant of [Registry.NewClassMap].
func NewClassMapFor[T any](r *Registry) (*ClassMap, error) {
	return r.NewClassMap(reflect.TypeFor[T]())
}

// Type returns the struct type.
func (cm *ClassMap) Type() reflect.Type {
	return cm.t
}

// Discriminator returns the discriminator value of the struct type.
func (cm *ClassMap) Discriminator() string {
	return cm.discriminator
}

// Members returns mapped members in declaration order.
func (cm *ClassMap) Members() []*MemberMap {
	return slices.Clone(cm.members)
}

// LookupMember returns the member mapped to the given struct field.
func (cm *ClassMap) LookupMember(fieldName string) (*MemberMap, bool) {
	for _, mm := range cm.members {
		if mm.fieldName == fieldName {
			return mm, true
		}
	}

	return nil, false
}

// IDMember returns the identifier member, if any.
func (cm *ClassMap) IDMember() *MemberMap {
	return cm.idMember
}

// ExtraElementsMember returns the extra elements member, if any.
func (cm *ClassMap) ExtraElementsMember() *MemberMap {
	return cm.extraMember
}

// setErr records the first builder error.
func (cm *ClassMap) setErr(err error) {
	if cm.err == nil {
		cm.err = err
	}
}

// checkMutable records an error if the class map is frozen.
func (cm *ClassMap) checkMutable(op string) bool {
	if cm.frozen {
		cm.setErr(lazyerrors.Errorf("%s: class map for %s is frozen: %w", op, cm.t, bson.ErrConfiguration))
		return false
	}

	return true
}

// AutoMap maps all exported fields using struct tags.
//
// Fields of embedded structs without tags are mapped as if they were declared in the outer struct.
// A field named ID without an explicit element name becomes the identifier member.
func (cm *ClassMap) AutoMap() error {
	if !cm.checkMutable("AutoMap") {
		return cm.err
	}

	if err := cm.autoMap(cm.t, nil); err != nil {
		cm.setErr(err)
		return err
	}

	return nil
}

// autoMap maps fields of the struct type t found at the given index path.
func (cm *ClassMap) autoMap(t reflect.Type, index []int) error {
	for i := range t.NumField() {
		f := t.Field(i)

		tag, ok := f.Tag.Lookup(Tag)
		if tag == "-" {
			continue
		}

		fieldIndex := append(slices.Clone(index), i)

		if f.Anonymous && !ok && f.Type.Kind() == reflect.Struct {
			if err := cm.autoMap(f.Type, fieldIndex); err != nil {
				return lazyerrors.Error(err)
			}

			continue
		}

		if !f.IsExported() {
			continue
		}

		if _, mapped := cm.LookupMember(f.Name); mapped {
			continue
		}

		mm := cm.newMemberMap(f, fieldIndex)

		name, opts, _ := strings.Cut(tag, ",")
		if name != "" {
			mm.elementName = name
		}

		var id, extra bool

		for _, opt := range strings.Split(opts, ",") {
			switch opt {
			case "":
			case "omitempty":
				mm.ignoreIfDefault = true
			case "omitnull":
				mm.ignoreIfNull = true
			case "required":
				mm.required = true
			case "readonly":
				mm.readOnly = true
			case "extra":
				extra = true
			case "id":
				id = true
			default:
				return lazyerrors.Errorf("%s.%s: unknown option %q: %w", cm.t, f.Name, opt, bson.ErrConfiguration)
			}
		}

		if r := f.Tag.Get(ReprTag); r != "" {
			repr, err := bson.ParseTag(r)
			if err != nil {
				return lazyerrors.Errorf("%s.%s: %w: %w", cm.t, f.Name, bson.ErrConfiguration, err)
			}

			mm.repr = repr
		}

		if (f.Name == "ID" && name == "") || mm.elementName == IDElement {
			id = true
		}

		cm.members = append(cm.members, mm)

		switch {
		case extra:
			cm.MapExtraElementsMember(f.Name)
		case id:
			cm.MapIDMember(f.Name)
		}
	}

	return nil
}

// newMemberMap returns a new member map for the given struct field.
func (cm *ClassMap) newMemberMap(f reflect.StructField, index []int) *MemberMap {
	return &MemberMap{
		cm:          cm,
		fieldName:   f.Name,
		index:       index,
		t:           f.Type,
		elementName: f.Name,
	}
}

// MapMember maps the struct field with the given name, if it is not mapped yet, and returns its member map.
func (cm *ClassMap) MapMember(fieldName string) *MemberMap {
	if mm, ok := cm.LookupMember(fieldName); ok {
		return mm
	}

	f, ok := cm.t.FieldByName(fieldName)

	switch {
	case !ok:
		cm.setErr(lazyerrors.Errorf("%s has no field %q: %w", cm.t, fieldName, bson.ErrConfiguration))
	case !f.IsExported():
		cm.setErr(lazyerrors.Errorf("%s.%s is not exported: %w", cm.t, fieldName, bson.ErrConfiguration))
	case throughPointer(cm.t, f.Index):
		cm.setErr(lazyerrors.Errorf("%s.%s is promoted through a pointer: %w", cm.t, fieldName, bson.ErrConfiguration))
		ok = false
	}

	mm := cm.newMemberMap(f, f.Index)

	// detached member maps allow chaining after an error
	if !ok || !f.IsExported() || !cm.checkMutable("MapMember") {
		return mm
	}

	cm.members = append(cm.members, mm)

	return mm
}

// throughPointer returns true if the field with the given index path is promoted through an embedded pointer.
func throughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		t = t.Field(i).Type
		if t.Kind() == reflect.Pointer {
			return true
		}
	}

	return false
}

// UnmapMember removes the member mapped to the given struct field.
func (cm *ClassMap) UnmapMember(fieldName string) *ClassMap {
	if !cm.checkMutable("UnmapMember") {
		return cm
	}

	cm.members = slices.DeleteFunc(cm.members, func(mm *MemberMap) bool {
		return mm.fieldName == fieldName
	})

	if cm.idMember != nil && cm.idMember.fieldName == fieldName {
		cm.idMember = nil
	}

	if cm.extraMember != nil && cm.extraMember.fieldName == fieldName {
		cm.extraMember = nil
	}

	return cm
}

// SetIgnoreExtraElements sets whether unknown elements are skipped when reading.
func (cm *ClassMap) SetIgnoreExtraElements(ignore bool) *ClassMap {
	if cm.checkMutable("SetIgnoreExtraElements") {
		cm.ignoreExtra = ignore
	}

	return cm
}

// MapExtraElementsMember maps the struct field that captures unknown elements.
//
// The field must be of type *bson.Document or map[string]any.
func (cm *ClassMap) MapExtraElementsMember(fieldName string) *MemberMap {
	mm := cm.MapMember(fieldName)

	if cm.extraMember != nil && cm.extraMember != mm {
		cm.setErr(lazyerrors.Errorf(
			"%s already has extra elements member %s: %w", cm.t, cm.extraMember.fieldName, bson.ErrConfiguration,
		))

		return mm
	}

	if cm.checkMutable("MapExtraElementsMember") {
		mm.extra = true
		cm.extraMember = mm
	}

	return mm
}

// MapIDMember maps the struct field that is written as the "_id" element.
func (cm *ClassMap) MapIDMember(fieldName string) *MemberMap {
	mm := cm.MapMember(fieldName)

	if cm.idMember != nil && cm.idMember != mm {
		cm.setErr(lazyerrors.Errorf(
			"%s already has id member %s: %w", cm.t, cm.idMember.fieldName, bson.ErrConfiguration,
		))

		return mm
	}

	if cm.checkMutable("MapIDMember") {
		mm.elementName = IDElement
		cm.idMember = mm
	}

	return mm
}

// SetDiscriminator sets the discriminator value; the type name is used by default.
func (cm *ClassMap) SetDiscriminator(discriminator string) *ClassMap {
	if !cm.checkMutable("SetDiscriminator") {
		return cm
	}

	if discriminator == "" {
		cm.setErr(lazyerrors.Errorf("empty discriminator for %s: %w", cm.t, bson.ErrConfiguration))
		return cm
	}

	cm.discriminator = discriminator

	return cm
}

// SetDiscriminatorIsRequired sets whether the discriminator is always written,
// even if the nominal type is the struct type itself.
func (cm *ClassMap) SetDiscriminatorIsRequired(required bool) *ClassMap {
	if cm.checkMutable("SetDiscriminatorIsRequired") {
		cm.discriminatorRequired = required
	}

	return cm
}

// SetLenientDiscriminator sets whether the discriminator element is skipped
// when the struct type is read directly.
//
// By default, a discriminator naming an unknown or another type is an error.
func (cm *ClassMap) SetLenientDiscriminator(lenient bool) *ClassMap {
	if cm.checkMutable("SetLenientDiscriminator") {
		cm.lenientDiscriminator = lenient
	}

	return cm
}

// MapCreator adds a function that creates struct values.
//
// The function takes values of members with given element names as arguments,
// and returns the struct or a pointer to it, optionally with an error.
// When reading, the creator with the most arguments available is used;
// other members are set directly.
func (cm *ClassMap) MapCreator(fn any, elementNames ...string) *ClassMap {
	if !cm.checkMutable("MapCreator") {
		return cm
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		cm.setErr(lazyerrors.Errorf("creator for %s is %T, not a function: %w", cm.t, fn, bson.ErrConfiguration))
		return cm
	}

	ft := v.Type()

	if ft.NumIn() != len(elementNames) || ft.IsVariadic() {
		cm.setErr(lazyerrors.Errorf(
			"creator %s for %s does not take %d arguments: %w", ft, cm.t, len(elementNames), bson.ErrConfiguration,
		))

		return cm
	}

	c := &creatorMap{fn: v, names: slices.Clone(elementNames)}

	var ok bool

	switch ft.NumOut() {
	case 1:
		ok = true
	case 2:
		c.hasError = ft.Out(1) == reflect.TypeFor[error]()
		ok = c.hasError
	}

	switch {
	case ok && ft.Out(0) == cm.t:
	case ok && ft.Out(0) == reflect.PointerTo(cm.t):
		c.pointer = true
	default:
		cm.setErr(lazyerrors.Errorf("creator %s does not return %s: %w", ft, cm.t, bson.ErrConfiguration))
		return cm
	}

	cm.creators = append(cm.creators, c)

	return cm
}

// Freeze validates the class map and makes it immutable.
//
// It is called automatically when the class map is registered or used;
// calling it again returns the same result.
func (cm *ClassMap) Freeze() error {
	cm.m.Lock()
	defer cm.m.Unlock()

	if cm.frozen || cm.err != nil {
		return cm.err
	}

	if err := cm.freeze(); err != nil {
		cm.setErr(err)
		return err
	}

	cm.frozen = true

	return nil
}

// freeze validates members and builds the element name trie.
func (cm *ClassMap) freeze() error {
	cm.discriminatorElement = cm.registry.LookupDiscriminatorConvention(cm.t).ElementName()

	trie, err := bsonio.NewTrie()
	if err != nil {
		return lazyerrors.Error(err)
	}

	for i, mm := range cm.members {
		if err = mm.freeze(); err != nil {
			return lazyerrors.Errorf("%s.%s: %w", cm.t, mm.fieldName, err)
		}

		if mm.extra {
			continue
		}

		if mm.elementName == cm.discriminatorElement {
			return lazyerrors.Errorf(
				"%s.%s: element %q is used for discriminator: %w", cm.t, mm.fieldName, mm.elementName, bson.ErrConfiguration,
			)
		}

		if err = trie.Add(mm.elementName, i); err != nil {
			return lazyerrors.Errorf("%s.%s: %w", cm.t, mm.fieldName, err)
		}
	}

	for _, c := range cm.creators {
		c.members = make([]int, len(c.names))

		for j, name := range c.names {
			i, ok := trie.Get(name)
			if !ok {
				return lazyerrors.Errorf("creator for %s: unknown element %q: %w", cm.t, name, bson.ErrConfiguration)
			}

			if in := c.fn.Type().In(j); !cm.members[i].t.AssignableTo(in) {
				return lazyerrors.Errorf(
					"creator for %s: %q of %s can't be used as %s: %w", cm.t, name, cm.members[i].t, in, bson.ErrConfiguration,
				)
			}

			c.members[j] = i
		}
	}

	// the longest creators are tried first; stable sort keeps the registration order for ties
	slices.SortStableFunc(cm.creators, func(a, b *creatorMap) int {
		return len(b.members) - len(a.members)
	})

	cm.trie = trie

	return nil
}

// MemberMap describes how a struct field is mapped to a document element.
type MemberMap struct {
	cm        *ClassMap
	fieldName string
	index     []int
	t         reflect.Type

	elementName     string
	defaultValue    reflect.Value
	required        bool
	readOnly        bool
	extra           bool
	ignoreIfDefault bool
	ignoreIfNull    bool
	shouldSerialize func(obj any) bool

	repr       bson.Tag
	override   Serializer
	serializer *lazySerializer
}

// FieldName returns the struct field name.
func (mm *MemberMap) FieldName() string {
	return mm.fieldName
}

// ElementName returns the document element name.
func (mm *MemberMap) ElementName() string {
	return mm.elementName
}

// MemberType returns the struct field type.
func (mm *MemberMap) MemberType() reflect.Type {
	return mm.t
}

// IsRequired returns true if the element must be present when reading.
func (mm *MemberMap) IsRequired() bool {
	return mm.required
}

// IsReadOnly returns true if the member is written, but never read.
func (mm *MemberMap) IsReadOnly() bool {
	return mm.readOnly
}

// SetElementName sets the document element name.
func (mm *MemberMap) SetElementName(name string) *MemberMap {
	if !mm.cm.checkMutable("SetElementName") {
		return mm
	}

	if name == "" {
		mm.cm.setErr(lazyerrors.Errorf("%s.%s: empty element name: %w", mm.cm.t, mm.fieldName, bson.ErrConfiguration))
		return mm
	}

	mm.elementName = name

	return mm
}

// SetDefaultValue sets the value used when the element is missing.
//
// Each deserialized value gets its own deep copy of maps, slices and pointers.
func (mm *MemberMap) SetDefaultValue(v any) *MemberMap {
	if !mm.cm.checkMutable("SetDefaultValue") {
		return mm
	}

	dv := reflect.New(mm.t).Elem()

	if v != nil {
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(mm.t) {
			mm.cm.setErr(lazyerrors.Errorf(
				"%s.%s: default value of %T can't be used as %s: %w", mm.cm.t, mm.fieldName, v, mm.t, bson.ErrConfiguration,
			))

			return mm
		}

		dv.Set(rv)
	}

	mm.defaultValue = dv

	return mm
}

// SetIsRequired sets whether the element must be present when reading.
func (mm *MemberMap) SetIsRequired(required bool) *MemberMap {
	if mm.cm.checkMutable("SetIsRequired") {
		mm.required = required
	}

	return mm
}

// SetIsReadOnly sets whether the member is only written.
func (mm *MemberMap) SetIsReadOnly(readOnly bool) *MemberMap {
	if mm.cm.checkMutable("SetIsReadOnly") {
		mm.readOnly = readOnly
	}

	return mm
}

// SetIgnoreIfDefault sets whether the member is skipped when it has the default value
// (or the zero value, if there is no default).
func (mm *MemberMap) SetIgnoreIfDefault(ignore bool) *MemberMap {
	if mm.cm.checkMutable("SetIgnoreIfDefault") {
		mm.ignoreIfDefault = ignore
	}

	return mm
}

// SetIgnoreIfNull sets whether the member is skipped when it is nil.
func (mm *MemberMap) SetIgnoreIfNull(ignore bool) *MemberMap {
	if mm.cm.checkMutable("SetIgnoreIfNull") {
		mm.ignoreIfNull = ignore
	}

	return mm
}

// SetShouldSerialize sets the predicate that decides if the member is written.
// It is called with the struct value.
func (mm *MemberMap) SetShouldSerialize(f func(obj any) bool) *MemberMap {
	if mm.cm.checkMutable("SetShouldSerialize") {
		mm.shouldSerialize = f
	}

	return mm
}

// SetSerializer sets the serializer of the member.
func (mm *MemberMap) SetSerializer(s Serializer) *MemberMap {
	if !mm.cm.checkMutable("SetSerializer") {
		return mm
	}

	if s.ValueType() != mm.t {
		mm.cm.setErr(lazyerrors.Errorf(
			"%s.%s: serializer for %s can't be used for %s: %w", mm.cm.t, mm.fieldName, s.ValueType(), mm.t, bson.ErrConfiguration,
		))

		return mm
	}

	mm.override = s

	return mm
}

// SetRepresentation sets the BSON type the member is written as.
//
// It is validated by [ClassMap.Freeze].
func (mm *MemberMap) SetRepresentation(repr bson.Tag) *MemberMap {
	if mm.cm.checkMutable("SetRepresentation") {
		mm.repr = repr
	}

	return mm
}

// freeze validates the member and resolves its serializer.
func (mm *MemberMap) freeze() error {
	if mm.extra {
		switch mm.t {
		case reflect.TypeFor[*bson.Document](), reflect.TypeFor[map[string]any]():
		default:
			return lazyerrors.Errorf("extra elements member of type %s: %w", mm.t, bson.ErrConfiguration)
		}

		if mm.repr != 0 || mm.override != nil {
			return lazyerrors.Errorf("extra elements member can't be configured: %w", bson.ErrConfiguration)
		}

		mm.serializer = newLazySerializer(mm.cm.registry, mm.t)

		return nil
	}

	if mm.elementName == "" {
		return lazyerrors.Errorf("empty element name: %w", bson.ErrConfiguration)
	}

	s := mm.override

	if mm.repr != 0 {
		var err error
		if s, err = withRepresentation(mm.cm.registry, mm.t, s, mm.repr); err != nil {
			return lazyerrors.Error(err)
		}
	}

	if s == nil {
		mm.serializer = newLazySerializer(mm.cm.registry, mm.t)
	} else {
		mm.serializer = resolvedSerializer(s)
	}

	return nil
}

// withRepresentation returns the serializer for t with the given representation.
//
// If s is nil, the registry serializer is used.
// For pointer types, the representation of the element serializer is changed.
func withRepresentation(reg *Registry, t reflect.Type, s Serializer, repr bson.Tag) (Serializer, error) {
	if s == nil && t.Kind() == reflect.Pointer {
		elem, err := withRepresentation(reg, t.Elem(), nil, repr)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		return NewPointerSerializerWith(elem), nil
	}

	if s == nil {
		var err error
		if s, err = reg.LookupSerializer(t); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	rc, ok := s.(RepresentationConfigurable)
	if !ok {
		return nil, lazyerrors.Errorf("%T does not support representations: %w", s, bson.ErrConfiguration)
	}

	res, err := rc.WithRepresentation(repr)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}

// deepCopy returns a copy of v that shares no maps, slices or pointers with it.
//
// Unexported struct fields are copied shallowly. Cyclic values are not supported.
func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() { //nolint:exhaustive // other kinds are copied by value
	case reflect.Map:
		if v.IsNil() {
			return v
		}

		res := reflect.MakeMapWithSize(v.Type(), v.Len())

		iter := v.MapRange()
		for iter.Next() {
			res.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}

		return res

	case reflect.Slice:
		if v.IsNil() {
			return v
		}

		res := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			res.Index(i).Set(deepCopy(v.Index(i)))
		}

		return res

	case reflect.Pointer:
		if v.IsNil() {
			return v
		}

		res := reflect.New(v.Type().Elem())
		res.Elem().Set(deepCopy(v.Elem()))

		return res

	case reflect.Interface:
		if v.IsNil() {
			return v
		}

		res := reflect.New(v.Type()).Elem()
		res.Set(deepCopy(v.Elem()))

		return res

	case reflect.Array:
		res := reflect.New(v.Type()).Elem()
		for i := range v.Len() {
			res.Index(i).Set(deepCopy(v.Index(i)))
		}

		return res

	case reflect.Struct:
		res := reflect.New(v.Type()).Elem()
		res.Set(v)

		for i := range v.NumField() {
			if f := res.Field(i); f.CanSet() {
				f.Set(deepCopy(v.Field(i)))
			}
		}

		return res

	default:
		return v
	}
}
