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

package bsonio

import (
	"time"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// ReadValue reads the current value of any type.
//
// Documents and arrays are read recursively into *bson.Document and *bson.Array.
func (r *Reader) ReadValue() (any, error) {
	if r.state == StateInitial {
		if _, err := r.ReadBSONType(); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	if r.state != StateValue {
		return nil, lazyerrors.Errorf("ReadValue can't be called in state %s: %w", r.state, bson.ErrFormat)
	}

	var v any
	var err error

	switch t := r.curType; t {
	case bson.TagDocument:
		v, err = r.readDocument()
	case bson.TagArray:
		v, err = r.readArray()
	case bson.TagDouble:
		v, err = r.ReadDouble()
	case bson.TagString:
		v, err = r.ReadString()
	case bson.TagBinary:
		v, err = r.ReadBinary()
	case bson.TagUndefined:
		v, err = bson.Undefined, r.ReadUndefined()
	case bson.TagObjectID:
		v, err = r.ReadObjectID()
	case bson.TagBoolean:
		v, err = r.ReadBoolean()
	case bson.TagDateTime:
		v, err = r.ReadDateTime()
	case bson.TagNull:
		v, err = bson.Null, r.ReadNull()
	case bson.TagRegex:
		v, err = r.ReadRegex()
	case bson.TagDBPointer:
		v, err = r.ReadDBPointer()
	case bson.TagJavaScript:
		v, err = r.ReadJavaScript()
	case bson.TagSymbol:
		v, err = r.ReadSymbol()
	case bson.TagJavaScriptScope:
		v, err = r.ReadJavaScriptScope()
	case bson.TagInt32:
		v, err = r.ReadInt32()
	case bson.TagTimestamp:
		v, err = r.ReadTimestamp()
	case bson.TagInt64:
		v, err = r.ReadInt64()
	case bson.TagDecimal128:
		v, err = r.ReadDecimal128()
	case bson.TagMinKey:
		v, err = bson.MinKey, r.ReadMinKey()
	case bson.TagMaxKey:
		v, err = bson.MaxKey, r.ReadMaxKey()
	default:
		return nil, lazyerrors.Errorf("unexpected %s: %w", t, bson.ErrFormat)
	}

	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return v, nil
}

// readDocument reads the current document value.
func (r *Reader) readDocument() (*bson.Document, error) {
	if err := r.ReadStartDocument(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	doc := bson.MakeDocument(0)

	for {
		t, err := r.ReadBSONType()
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		if t == bson.TagEndOfDocument {
			break
		}

		name, err := r.ReadName()
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		v, err := r.ReadValue()
		if err != nil {
			return nil, lazyerrors.Errorf("%q: %w", name, err)
		}

		if err = doc.Add(name, v); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	if err := r.ReadEndDocument(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return doc, nil
}

// readArray reads the current array value.
func (r *Reader) readArray() (*bson.Array, error) {
	if err := r.ReadStartArray(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	arr := bson.MakeArray(0)

	for {
		t, err := r.ReadBSONType()
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		if t == bson.TagEndOfDocument {
			break
		}

		v, err := r.ReadValue()
		if err != nil {
			return nil, lazyerrors.Errorf("%d: %w", arr.Len(), err)
		}

		if err = arr.Add(v); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	if err := r.ReadEndArray(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return arr, nil
}

// WriteValue writes a value of any BSON type.
//
// Documents and arrays are written recursively.
func (w *Writer) WriteValue(v any) error {
	var err error

	switch v := v.(type) {
	case *bson.Document:
		err = w.writeDocument(v)
	case *bson.Array:
		err = w.writeArray(v)
	case float64:
		err = w.WriteDouble(v)
	case string:
		err = w.WriteString(v)
	case bson.Binary:
		err = w.WriteBinary(v)
	case bson.UndefinedType:
		err = w.WriteUndefined()
	case bson.ObjectID:
		err = w.WriteObjectID(v)
	case bool:
		err = w.WriteBoolean(v)
	case time.Time:
		err = w.WriteDateTime(v)
	case bson.NullType:
		err = w.WriteNull()
	case bson.Regex:
		err = w.WriteRegex(v)
	case bson.DBPointer:
		err = w.WriteDBPointer(v)
	case bson.JavaScript:
		err = w.WriteJavaScript(v)
	case bson.Symbol:
		err = w.WriteSymbol(v)
	case bson.JavaScriptScope:
		err = w.WriteJavaScriptScope(v)
	case int32:
		err = w.WriteInt32(v)
	case bson.Timestamp:
		err = w.WriteTimestamp(v)
	case int64:
		err = w.WriteInt64(v)
	case bson.Decimal128:
		err = w.WriteDecimal128(v)
	case bson.MinKeyType:
		err = w.WriteMinKey()
	case bson.MaxKeyType:
		err = w.WriteMaxKey()
	default:
		return lazyerrors.Errorf("invalid BSON type %T: %w", v, bson.ErrFormat)
	}

	if err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// writeDocument writes a document value, or the top-level document.
func (w *Writer) writeDocument(doc *bson.Document) error {
	if doc == nil {
		return lazyerrors.Errorf("nil *bson.Document: %w", bson.ErrFormat)
	}

	if err := w.WriteStartDocument(); err != nil {
		return lazyerrors.Error(err)
	}

	for i := range doc.Len() {
		name, v := doc.GetByIndex(i)

		if err := w.WriteName(name); err != nil {
			return lazyerrors.Error(err)
		}

		if err := w.WriteValue(v); err != nil {
			return lazyerrors.Errorf("%q: %w", name, err)
		}
	}

	if err := w.WriteEndDocument(); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// writeArray writes an array value.
func (w *Writer) writeArray(arr *bson.Array) error {
	if arr == nil {
		return lazyerrors.Errorf("nil *bson.Array: %w", bson.ErrFormat)
	}

	if err := w.WriteStartArray(); err != nil {
		return lazyerrors.Error(err)
	}

	for i := range arr.Len() {
		if err := w.WriteValue(arr.Get(i)); err != nil {
			return lazyerrors.Errorf("%d: %w", i, err)
		}
	}

	if err := w.WriteEndArray(); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}
