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

	"github.com/google/uuid"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// UUIDSerializer handles [uuid.UUID].
//
// By default, values are written as Binary with the standard UUID subtype.
// The legacy subtype uses the same byte order.
type UUIDSerializer struct {
	repr    bson.Tag
	subtype bson.BinarySubtype
}

// NewUUIDSerializer creates a new UUID serializer.
func NewUUIDSerializer() *UUIDSerializer {
	return &UUIDSerializer{
		repr:    bson.TagBinary,
		subtype: bson.BinaryUUID,
	}
}

// ValueType implements [Serializer].
func (s *UUIDSerializer) ValueType() reflect.Type {
	return reflect.TypeFor[uuid.UUID]()
}

// Representation implements [RepresentationConfigurable].
func (s *UUIDSerializer) Representation() bson.Tag {
	return s.repr
}

// WithRepresentation implements [RepresentationConfigurable].
func (s *UUIDSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagBinary, bson.TagString:
	default:
		return nil, reprError(s.ValueType(), repr)
	}

	res := *s
	res.repr = repr

	return &res, nil
}

// WithLegacySubtype returns a new serializer that writes the legacy UUID subtype.
func (s *UUIDSerializer) WithLegacySubtype() *UUIDSerializer {
	res := *s
	res.subtype = bson.BinaryUUIDOld

	return &res
}

// Serialize implements [Serializer].
func (s *UUIDSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	u := v.Interface().(uuid.UUID)

	var err error
	if s.repr == bson.TagString {
		err = w.WriteString(u.String())
	} else {
		err = w.WriteBinary(bson.Binary{B: u[:], Subtype: s.subtype})
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
//
// Both standard and legacy subtypes are accepted.
func (s *UUIDSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	var u uuid.UUID

	switch t := r.CurrentType(); t {
	case bson.TagBinary:
		bin, err := r.ReadBinary()
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		if bin.Subtype != bson.BinaryUUID && bin.Subtype != bson.BinaryUUIDOld {
			return reflect.Value{}, lazyerrors.Errorf("unexpected UUID subtype %s: %w", bin.Subtype, bson.ErrFormat)
		}

		if u, err = uuid.FromBytes(bin.B); err != nil {
			return reflect.Value{}, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
		}

	case bson.TagString:
		str, err := r.ReadString()
		if err != nil {
			return reflect.Value{}, lazyerrors.Error(err)
		}

		if u, err = uuid.Parse(str); err != nil {
			return reflect.Value{}, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
		}

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	return reflect.ValueOf(u), nil
}

// check interfaces
var (
	_ RepresentationConfigurable = (*UUIDSerializer)(nil)
)
