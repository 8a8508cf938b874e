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
	"math"
	"reflect"
	"time"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/representation"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// Element names of time values with Document representation.
const (
	timeDateTimeElement = "DateTime"
	timeTicksElement    = "Ticks"
)

// TimeSerializer handles [time.Time].
//
// BSON DateTime values have millisecond precision;
// Int64 representation contains milliseconds since the Unix epoch.
// String and Document representations keep nanoseconds.
// Values are always read in UTC.
type TimeSerializer struct {
	repr bson.Tag
}

// NewTimeSerializer creates a new time serializer.
func NewTimeSerializer() *TimeSerializer {
	return &TimeSerializer{repr: bson.TagDateTime}
}

// ValueType implements [Serializer].
func (s *TimeSerializer) ValueType() reflect.Type {
	return reflect.TypeFor[time.Time]()
}

// Representation implements [RepresentationConfigurable].
func (s *TimeSerializer) Representation() bson.Tag {
	return s.repr
}

// WithRepresentation implements [RepresentationConfigurable].
func (s *TimeSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagDateTime, bson.TagInt64, bson.TagString, bson.TagDocument:
	default:
		return nil, reprError(s.ValueType(), repr)
	}

	return &TimeSerializer{repr: repr}, nil
}

// Serialize implements [Serializer].
func (s *TimeSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	t := v.Interface().(time.Time)

	var err error

	switch s.repr {
	case bson.TagInt64:
		err = w.WriteInt64(t.UnixMilli())

	case bson.TagString:
		err = w.WriteString(t.UTC().Format(time.RFC3339Nano))

	case bson.TagDocument:
		err = writeTimeDocument(w, t)

	default:
		err = w.WriteDateTime(t)
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// writeTimeDocument writes time as a document with both DateTime and nanosecond ticks.
func writeTimeDocument(w *bsonio.Writer, t time.Time) error {
	if err := w.WriteStartDocument(); err != nil {
		return lazyerrors.Error(err)
	}

	if err := w.WriteName(timeDateTimeElement); err != nil {
		return lazyerrors.Error(err)
	}

	if err := w.WriteDateTime(t); err != nil {
		return lazyerrors.Error(err)
	}

	if err := w.WriteName(timeTicksElement); err != nil {
		return lazyerrors.Error(err)
	}

	if err := w.WriteInt64(t.UnixNano()); err != nil {
		return lazyerrors.Error(err)
	}

	return w.WriteEndDocument()
}

// Deserialize implements [Serializer].
func (s *TimeSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	var t time.Time
	var err error

	switch tag := r.CurrentType(); tag {
	case bson.TagDateTime:
		t, err = r.ReadDateTime()

	case bson.TagInt64:
		var ms int64
		ms, err = r.ReadInt64()
		t = time.UnixMilli(ms)

	case bson.TagString:
		var str string
		if str, err = r.ReadString(); err == nil {
			if t, err = time.Parse(time.RFC3339Nano, str); err != nil {
				err = lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
			}
		}

	case bson.TagDocument:
		t, err = readTimeDocument(r)

	default:
		return reflect.Value{}, wireTypeError(s, tag)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return reflect.ValueOf(t.UTC()), nil
}

// readTimeDocument reads time written by writeTimeDocument.
//
// Ticks take precedence over DateTime.
func readTimeDocument(r *bsonio.Reader) (time.Time, error) {
	if err := r.ReadStartDocument(); err != nil {
		return time.Time{}, lazyerrors.Error(err)
	}

	var res time.Time
	var ticks bool

	for {
		t, err := r.ReadBSONType()
		if err != nil {
			return time.Time{}, lazyerrors.Error(err)
		}

		if t == bson.TagEndOfDocument {
			break
		}

		name, err := r.ReadName()
		if err != nil {
			return time.Time{}, lazyerrors.Error(err)
		}

		switch name {
		case timeDateTimeElement:
			dt, err := r.ReadDateTime()
			if err != nil {
				return time.Time{}, lazyerrors.Error(err)
			}

			if !ticks {
				res = dt
			}

		case timeTicksElement:
			ns, err := r.ReadInt64()
			if err != nil {
				return time.Time{}, lazyerrors.Error(err)
			}

			res = time.Unix(0, ns)
			ticks = true

		default:
			return time.Time{}, lazyerrors.Errorf("unexpected time element %q: %w", name, bson.ErrFormat)
		}
	}

	if err := r.ReadEndDocument(); err != nil {
		return time.Time{}, lazyerrors.Error(err)
	}

	return res, nil
}

// DurationSerializer handles [time.Duration].
//
// String representation uses [time.Duration.String] format.
// Numeric representations contain a number of units (milliseconds by default).
type DurationSerializer struct {
	repr bson.Tag
	unit time.Duration
	conv representation.Converter
}

// NewDurationSerializer creates a new duration serializer.
func NewDurationSerializer() *DurationSerializer {
	return &DurationSerializer{
		repr: bson.TagString,
		unit: time.Millisecond,
		conv: representation.Default,
	}
}

// ValueType implements [Serializer].
func (s *DurationSerializer) ValueType() reflect.Type {
	return reflect.TypeFor[time.Duration]()
}

// Representation implements [RepresentationConfigurable].
func (s *DurationSerializer) Representation() bson.Tag {
	return s.repr
}

// WithRepresentation implements [RepresentationConfigurable].
func (s *DurationSerializer) WithRepresentation(repr bson.Tag) (Serializer, error) {
	switch repr {
	case bson.TagString, bson.TagInt32, bson.TagInt64, bson.TagDouble:
	default:
		return nil, reprError(s.ValueType(), repr)
	}

	res := *s
	res.repr = repr

	return &res, nil
}

// WithUnit returns a new serializer that writes numbers of the given units.
func (s *DurationSerializer) WithUnit(unit time.Duration) (*DurationSerializer, error) {
	if unit <= 0 {
		return nil, lazyerrors.Errorf("invalid duration unit %s: %w", unit, bson.ErrConfiguration)
	}

	res := *s
	res.unit = unit

	return &res, nil
}

// Converter implements [ConverterConfigurable].
func (s *DurationSerializer) Converter() representation.Converter {
	return s.conv
}

// WithConverter implements [ConverterConfigurable].
func (s *DurationSerializer) WithConverter(c representation.Converter) Serializer {
	res := *s
	res.conv = c

	return &res
}

// Serialize implements [Serializer].
func (s *DurationSerializer) Serialize(w *bsonio.Writer, v reflect.Value) error {
	d := time.Duration(v.Int())

	var err error

	switch s.repr {
	case bson.TagString:
		err = w.WriteString(d.String())

	case bson.TagDouble:
		err = w.WriteDouble(float64(d) / float64(s.unit))

	default:
		n := int64(d / s.unit)

		if d%s.unit != 0 {
			if err = s.conv.Truncation(d, s.unit.String()); err != nil {
				return lazyerrors.Error(err)
			}
		}

		err = writeNumber(w, s.repr, s.conv, n)
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Deserialize implements [Serializer].
func (s *DurationSerializer) Deserialize(r *bsonio.Reader) (reflect.Value, error) {
	var d time.Duration
	var err error

	switch t := r.CurrentType(); t {
	case bson.TagString:
		var str string
		if str, err = r.ReadString(); err == nil {
			if d, err = time.ParseDuration(str); err != nil {
				err = lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
			}
		}

	case bson.TagInt32:
		var i int32
		if i, err = r.ReadInt32(); err == nil {
			d, err = s.fromUnits(float64(i))
		}

	case bson.TagInt64:
		var i int64
		if i, err = r.ReadInt64(); err == nil {
			d, err = s.fromInt64(i)
		}

	case bson.TagDouble:
		var f float64
		if f, err = r.ReadDouble(); err == nil {
			d, err = s.fromUnits(f)
		}

	default:
		return reflect.Value{}, wireTypeError(s, t)
	}

	if err != nil {
		return reflect.Value{}, lazyerrors.Error(err)
	}

	return reflect.ValueOf(d), nil
}

// fromInt64 converts an integer number of units to duration.
//
// Out of range values are clamped if the converter allows overflow.
func (s *DurationSerializer) fromInt64(i int64) (time.Duration, error) {
	unit := int64(s.unit)

	switch {
	case i > math.MaxInt64/unit:
		return math.MaxInt64, s.conv.Overflow(i, "time.Duration")
	case i < math.MinInt64/unit:
		return math.MinInt64, s.conv.Overflow(i, "time.Duration")
	default:
		return time.Duration(i * unit), nil
	}
}

// fromUnits converts a number of units to duration.
func (s *DurationSerializer) fromUnits(f float64) (time.Duration, error) {
	ns, err := representation.ToInteger[int64](s.conv, f*float64(s.unit))
	return time.Duration(ns), err
}

// check interfaces
var (
	_ RepresentationConfigurable = (*TimeSerializer)(nil)
	_ RepresentationConfigurable = (*DurationSerializer)(nil)
	_ ConverterConfigurable      = (*DurationSerializer)(nil)
)
