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
	"encoding/hex"
	"reflect"
	"strconv"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// BoolSerializer handles bool types.
type BoolSerializer struct {
	t    reflect.Type
	repr bson.Tag
}

// NewBoolSerializer creates a new serializer for the given bool type.
func NewBoolSerializer(t reflect.Type) *BoolSerializer {
	return &BoolSerializer{t: t, repr: bson.TagBoolean}
}

// ValueType implements [Serializer].
func (s *BoolSerializer) ValueType() reflect.Type {
	return s.t
}

// Representation implements [RepresentationConfigurable].
func (s *BoolSerializer) Representation() bson.Tag {
	return s.repr
}

// WithRepresentation implements [RepresentationConfigurable].
func (s *BoolSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagBoolean, bson.TagInt32, bson.TagInt64, bson.TagDouble, bson.TagString:
	default:
		return nil, reprError(s.t, repr)
	}

	return &BoolSerializer{t: s.t, repr: repr}, nil
}

// Serialize implements [Serializer].
func (s *BoolSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	b := v.Bool()

	var n int32
	if b {
		n = 1
	}

	var err error

	switch s.repr {
	case bson.TagInt32:
		err = w.WriteInt32(n)
	case bson.TagInt64:
		err = w.WriteInt64(int64(n))
	case bson.TagDouble:
		err = w.WriteDouble(float64(n))
	case bson.TagString:
		err = w.WriteString(strconv.FormatBool(b))
	default:
		err = w.WriteBoolean(b)
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *BoolSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	var b bool
	var err error

	switch t := r.CurrentType(); t {
	case bson.TagBoolean:
		b, err = r.ReadBoolean()

	case bson.TagInt32:
		var i int32
		i, err = r.ReadInt32()
		b = i != 0

	case bson.TagInt64:
		var i int64
		i, err = r.ReadInt64()
		b = i != 0

	case bson.TagDouble:
		var f float64
		f, err = r.ReadDouble()
		b = f != 0 // NaN is true

	case bson.TagString:
		var str string
		if str, err = r.ReadString(); err == nil {
			if b, err = strconv.ParseBool(str); err != nil {
				err = lazyerrors.Errorf("%q is not a boolean: %w", str, bson.ErrFormat)
			}
		}

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	res := reflect.New(s.t).Elem()
	res.SetBool(b)

	return res, nil
}

// StringSerializer handles string types.
type StringSerializer struct {
	t    reflect.Type
	repr bson.Tag
}

// NewStringSerializer creates a new serializer for the given string type.
func NewStringSerializer(t reflect.Type) *StringSerializer {
	return &StringSerializer{t: t, repr: bson.TagString}
}

// ValueType implements [Serializer].
func (s *StringSerializer) ValueType() reflect.Type {
	return s.t
}

// Representation implements [RepresentationConfigurable].
func (s *StringSerializer) Representation() bson.Tag {
	return s.repr
}

// WithRepresentation implements [RepresentationConfigurable].
//
// With ObjectId representation, values must be 24 hex characters long.
func (s *StringSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagString, bson.TagSymbol, bson.TagObjectID:
	default:
		return nil, reprError(s.t, repr)
	}

	return &StringSerializer{t: s.t, repr: repr}, nil
}

// Serialize implements [Serializer].
func (s *StringSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	str := v.String()

	var err error

	switch s.repr {
	case bson.TagSymbol:
		err = w.WriteSymbol(bson.Symbol(str))

	case bson.TagObjectID:
		var id bson.ObjectID
		if id, err = bson.ObjectIDFromHex(str); err == nil {
			err = w.WriteObjectID(id)
		}

	default:
		err = w.WriteString(str)
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *StringSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	var str string
	var err error

	switch t := r.CurrentType(); t {
	case bson.TagString:
		str, err = r.ReadString()

	case bson.TagSymbol:
		var sym bson.Symbol
		sym, err = r.ReadSymbol()
		str = string(sym)

	case bson.TagObjectID:
		var id bson.ObjectID
		id, err = r.ReadObjectID()
		str = bson.ObjectIDHex(id)

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	res := reflect.New(s.t).Elem()
	res.SetString(str)

	return res, nil
}

// BytesSerializer handles byte slices.
//
// Nil slices are written as Null.
type BytesSerializer struct {
	t       reflect.Type
	repr    bson.Tag
	subtype bson.BinarySubtype
}

// NewBytesSerializer creates a new serializer for the given byte slice type.
func NewBytesSerializer(t reflect.Type) *BytesSerializer {
	return &BytesSerializer{t: t, repr: bson.TagBinary, subtype: bson.BinaryGeneric}
}

// ValueType implements [Serializer].
func (s *BytesSerializer) ValueType() reflect.Type {
	return s.t
}

// Representation implements [RepresentationConfigurable].
func (s *BytesSerializer) Representation() bson.Tag {
	return s.repr
}

// WithRepresentation implements [RepresentationConfigurable].
//
// With String representation, values are hex-encoded.
func (s *BytesSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagBinary, bson.TagString:
	default:
		return nil, reprError(s.t, repr)
	}

	res := *s
	res.repr = repr

	return &res, nil
}

// WithSubtype returns a new serializer that writes Binary values with the given subtype.
func (s *BytesSerializer) WithSubtype(subtype bson.BinarySubtype) *BytesSerializer {
	res := *s
	res.subtype = subtype

	return &res
}

// Serialize implements [Serializer].
func (s *BytesSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	var err error

	switch {
	case v.IsNil():
		err = w.WriteNull()
	case s.repr == bson.TagString:
		err = w.WriteString(hex.EncodeToString(v.Bytes()))
	default:
		err = w.WriteBinary(bson.Binary{B: v.Bytes(), Subtype: s.subtype})
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *BytesSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	res := reflect.New(s.t).Elem()

	switch t := r.CurrentType(); t {
	case bson.TagNull:
		if err := r.ReadNull(); err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		return res, nil

	case bson.TagBinary:
		bin, err := r.ReadBinary()
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		// never share the reader's buffer
		b := make([]byte, len(bin.B))
		copy(b, bin.B)
		res.SetBytes(b)

	case bson.TagString:
		str, err := r.ReadString()
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		b, err := hex.DecodeString(str)
		if err != nil {
			return reflect.Value{}, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
		}

		res.SetBytes(b)

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	return res, nil
}

// ObjectIDSerializer handles [bson.ObjectID].
type ObjectIDSerializer struct {
	repr bson.Tag
}

// NewObjectIDSerializer creates a new ObjectID serializer.
func NewObjectIDSerializer() *ObjectIDSerializer {
	return &ObjectIDSerializer{repr: bson.TagObjectID}
}

// ValueType implements [Serializer].
func (s *ObjectIDSerializer) ValueType() reflect.Type {
	return reflect.TypeFor[bson.ObjectID]()
}

// Representation implements [RepresentationConfigurable].
func (s *ObjectIDSerializer) Representation() bson.Tag {
	return s.repr
}

// WithRepresentation implements [RepresentationConfigurable].
func (s *ObjectIDSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagObjectID, bson.TagString:
	default:
		return nil, reprError(s.ValueType(), repr)
	}

	return &ObjectIDSerializer{repr: repr}, nil
}

// Serialize implements [Serializer].
func (s *ObjectIDSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	id := v.Interface().(bson.ObjectID)

	var err error
	if s.repr == bson.TagString {
		err = w.WriteString(bson.ObjectIDHex(id))
	} else {
		err = w.WriteObjectID(id)
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *ObjectIDSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	var id bson.ObjectID
	var err error

	switch t := r.CurrentType(); t {
	case bson.TagObjectID:
		id, err = r.ReadObjectID()

	case bson.TagString:
		var str string
		if str, err = r.ReadString(); err == nil {
			id, err = bson.ObjectIDFromHex(str)
		}

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return reflect.ValueOf(id), nil
}

// check interfaces
var (
	_ RepresentationConfigurable = (*BoolSerializer)(nil)
	_ RepresentationConfigurable = (*StringSerializer)(nil)
	_ RepresentationConfigurable = (*BytesSerializer)(nil)
	_ RepresentationConfigurable = (*ObjectIDSerializer)(nil)
)
