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
	"encoding/binary"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cristalhq/bson/bsonproto"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// writerContext describes a document or an array being written.
type writerContext struct {
	parent *writerContext
	kind   containerKind
	start  int // offset of the length prefix
	index  int // next array element index
	depth  int
}

// Writer writes a single top-level BSON document into a byte slice.
//
// Writer is a state machine: the caller writes the name of the next element, then its value.
// Array element names are generated automatically.
// Lengths of documents and arrays are patched when they end.
//
// Writer is not safe for concurrent use.
type Writer struct {
	buf      []byte
	ctx      *writerContext
	name     string
	maxDepth int
	state    State
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{
		maxDepth: DefaultMaxDepth,
	}
}

// SetMaxDepth sets the maximum nesting depth of documents and arrays.
//
// Deeper output is rejected with [bson.ErrFormat];
// that stops serialization of cyclic object graphs.
func (w *Writer) SetMaxDepth(depth int) {
	w.maxDepth = depth
}

// State returns the current state of the Writer.
func (w *Writer) State() State {
	return w.state
}

// Depth returns the number of containers the writer is in.
func (w *Writer) Depth() int {
	if w.ctx == nil {
		return 0
	}

	return w.ctx.depth
}

// Bytes returns the written document.
//
// It fails if the top-level document is not complete.
func (w *Writer) Bytes() ([]byte, error) {
	if w.state != StateDone {
		return nil, lazyerrors.Errorf("Bytes can't be called in state %s: %w", w.state, bson.ErrFormat)
	}

	return w.buf, nil
}

// WriteName writes the name of the next document element.
func (w *Writer) WriteName(name string) error {
	if w.state != StateName {
		return lazyerrors.Errorf("WriteName can't be called in state %s: %w", w.state, bson.ErrFormat)
	}

	if strings.IndexByte(name, 0) >= 0 {
		return lazyerrors.Errorf("element name %q contains NUL byte: %w", name, bson.ErrFormat)
	}

	if !utf8.ValidString(name) {
		return lazyerrors.Errorf("element name %q is not valid UTF-8: %w", name, bson.ErrFormat)
	}

	w.name = name
	w.state = StateValue

	return nil
}

// WriteStartDocument writes the start of a document value, or of the top-level document.
func (w *Writer) WriteStartDocument() error {
	switch w.state {
	case StateInitial:
		// top-level document
	case StateValue:
		if err := w.writeHeader("WriteStartDocument", bson.TagDocument); err != nil {
			return err
		}
	default:
		return lazyerrors.Errorf("WriteStartDocument can't be called in state %s: %w", w.state, bson.ErrFormat)
	}

	if err := w.push(kindDocument); err != nil {
		return err
	}

	w.state = StateName

	return nil
}

// WriteEndDocument writes the end of the current document.
func (w *Writer) WriteEndDocument() error {
	if w.ctx == nil || w.ctx.kind != kindDocument || w.state != StateName {
		return lazyerrors.Errorf("WriteEndDocument can't be called in state %s: %w", w.state, bson.ErrFormat)
	}

	w.pop()

	return nil
}

// WriteStartArray writes the start of an array value.
func (w *Writer) WriteStartArray() error {
	if err := w.writeHeader("WriteStartArray", bson.TagArray); err != nil {
		return err
	}

	if err := w.push(kindArray); err != nil {
		return err
	}

	w.state = StateValue

	return nil
}

// WriteEndArray writes the end of the current array.
func (w *Writer) WriteEndArray() error {
	if w.ctx == nil || w.ctx.kind != kindArray || w.state != StateValue {
		return lazyerrors.Errorf("WriteEndArray can't be called in state %s: %w", w.state, bson.ErrFormat)
	}

	w.pop()

	return nil
}

// push starts a new container with a length placeholder.
func (w *Writer) push(kind containerKind) error {
	depth := w.Depth() + 1
	if depth > w.maxDepth {
		return lazyerrors.Errorf("nesting depth exceeds %d: %w", w.maxDepth, bson.ErrFormat)
	}

	w.ctx = &writerContext{
		parent: w.ctx,
		kind:   kind,
		start:  len(w.buf),
		depth:  depth,
	}
	w.buf = append(w.buf, 0, 0, 0, 0)

	return nil
}

// pop ends the current container and patches its length.
func (w *Writer) pop() {
	w.buf = append(w.buf, 0)
	binary.LittleEndian.PutUint32(w.buf[w.ctx.start:], uint32(len(w.buf)-w.ctx.start))

	w.ctx = w.ctx.parent
	w.setStateAfterValue()
}

// writeHeader writes the type tag and the name of the next element.
func (w *Writer) writeHeader(op string, t bson.Tag) error {
	if w.state != StateValue || w.ctx == nil {
		return lazyerrors.Errorf("%s can't be called in state %s: %w", op, w.state, bson.ErrFormat)
	}

	name := w.name
	if w.ctx.kind == kindArray {
		name = strconv.Itoa(w.ctx.index)
		w.ctx.index++
	}

	w.buf = append(w.buf, byte(t))
	bsonproto.EncodeCString(w.grow(bsonproto.SizeCString(name)), name)

	return nil
}

// grow extends the buffer by n bytes and returns them.
func (w *Writer) grow(n int) []byte {
	l := len(w.buf)
	w.buf = slices.Grow(w.buf, n)[:l+n]

	return w.buf[l:]
}

// setStateAfterValue updates the state after a value was written.
func (w *Writer) setStateAfterValue() {
	switch {
	case w.ctx == nil:
		w.state = StateDone
	case w.ctx.kind == kindArray:
		w.state = StateValue
	default:
		w.state = StateName
	}
}

// writeScalar writes an element with bsonproto's encode and size functions.
func writeScalar[T any](w *Writer, op string, t bson.Tag, v T, encode func([]byte, T), size int) error {
	if err := w.writeHeader(op, t); err != nil {
		return err
	}

	encode(w.grow(size), v)
	w.setStateAfterValue()

	return nil
}

// writeString writes an element of a string type, rejecting invalid UTF-8.
func (w *Writer) writeString(op string, t bson.Tag, v string) error {
	if !utf8.ValidString(v) {
		return lazyerrors.Errorf("%s: %q is not valid UTF-8: %w", op, v, bson.ErrFormat)
	}

	return writeScalar(w, op, t, v, bsonproto.EncodeString, bsonproto.SizeString(v))
}

// writeEmpty writes an element of a type without payload.
func (w *Writer) writeEmpty(op string, t bson.Tag) error {
	if err := w.writeHeader(op, t); err != nil {
		return err
	}

	w.setStateAfterValue()

	return nil
}

// WriteDouble writes a Double value.
func (w *Writer) WriteDouble(v float64) error {
	return writeScalar(w, "WriteDouble", bson.TagDouble, v, bsonproto.EncodeFloat64, bsonproto.SizeFloat64)
}

// WriteString writes a String value.
func (w *Writer) WriteString(v string) error {
	return w.writeString("WriteString", bson.TagString, v)
}

// WriteBinary writes a Binary data value.
func (w *Writer) WriteBinary(v bson.Binary) error {
	return writeScalar(w, "WriteBinary", bson.TagBinary, v, bsonproto.EncodeBinary, bsonproto.SizeBinary(v))
}

// WriteUndefined writes an Undefined value.
func (w *Writer) WriteUndefined() error {
	return w.writeEmpty("WriteUndefined", bson.TagUndefined)
}

// WriteObjectID writes an ObjectId value.
func (w *Writer) WriteObjectID(v bson.ObjectID) error {
	return writeScalar(w, "WriteObjectID", bson.TagObjectID, v, bsonproto.EncodeObjectID, bsonproto.SizeObjectID)
}

// WriteBoolean writes a Boolean value.
func (w *Writer) WriteBoolean(v bool) error {
	return writeScalar(w, "WriteBoolean", bson.TagBoolean, v, bsonproto.EncodeBool, bsonproto.SizeBool)
}

// WriteDateTime writes a UTC datetime value with millisecond precision.
func (w *Writer) WriteDateTime(v time.Time) error {
	return writeScalar(w, "WriteDateTime", bson.TagDateTime, v, bsonproto.EncodeTime, bsonproto.SizeTime)
}

// WriteNull writes a Null value.
func (w *Writer) WriteNull() error {
	return w.writeEmpty("WriteNull", bson.TagNull)
}

// WriteRegex writes a Regular expression value.
func (w *Writer) WriteRegex(v bson.Regex) error {
	if strings.IndexByte(v.Pattern, 0) >= 0 || strings.IndexByte(v.Options, 0) >= 0 {
		return lazyerrors.Errorf("regex contains NUL byte: %w", bson.ErrFormat)
	}

	return writeScalar(w, "WriteRegex", bson.TagRegex, v, bsonproto.EncodeRegex, bsonproto.SizeRegex(v))
}

// WriteDBPointer writes a DBPointer value.
func (w *Writer) WriteDBPointer(v bson.DBPointer) error {
	return writeScalar(w, "WriteDBPointer", bson.TagDBPointer, v, encodeDBPointer, sizeDBPointer(v))
}

// WriteJavaScript writes a JavaScript code value.
func (w *Writer) WriteJavaScript(v bson.JavaScript) error {
	return w.writeString("WriteJavaScript", bson.TagJavaScript, string(v))
}

// WriteSymbol writes a Symbol value.
func (w *Writer) WriteSymbol(v bson.Symbol) error {
	return w.writeString("WriteSymbol", bson.TagSymbol, string(v))
}

// WriteJavaScriptScope writes a JavaScript code with scope value.
func (w *Writer) WriteJavaScriptScope(v bson.JavaScriptScope) error {
	scope := NewWriter()
	scope.SetMaxDepth(w.maxDepth - w.Depth())

	if err := scope.writeDocument(v.Scope); err != nil {
		return lazyerrors.Error(err)
	}

	if err := w.writeHeader("WriteJavaScriptScope", bson.TagJavaScriptScope); err != nil {
		return err
	}

	size := bsonproto.SizeInt32 + bsonproto.SizeString(v.Code) + len(scope.buf)

	b := w.grow(size)
	bsonproto.EncodeInt32(b, int32(size))
	bsonproto.EncodeString(b[bsonproto.SizeInt32:], v.Code)
	copy(b[bsonproto.SizeInt32+bsonproto.SizeString(v.Code):], scope.buf)

	w.setStateAfterValue()

	return nil
}

// WriteInt32 writes a 32-bit integer value.
func (w *Writer) WriteInt32(v int32) error {
	return writeScalar(w, "WriteInt32", bson.TagInt32, v, bsonproto.EncodeInt32, bsonproto.SizeInt32)
}

// WriteTimestamp writes a Timestamp value.
func (w *Writer) WriteTimestamp(v bson.Timestamp) error {
	return writeScalar(w, "WriteTimestamp", bson.TagTimestamp, v, bsonproto.EncodeTimestamp, bsonproto.SizeTimestamp)
}

// WriteInt64 writes a 64-bit integer value.
func (w *Writer) WriteInt64(v int64) error {
	return writeScalar(w, "WriteInt64", bson.TagInt64, v, bsonproto.EncodeInt64, bsonproto.SizeInt64)
}

// WriteDecimal128 writes a Decimal128 value.
func (w *Writer) WriteDecimal128(v bson.Decimal128) error {
	return writeScalar(w, "WriteDecimal128", bson.TagDecimal128, v, bsonproto.EncodeDecimal128, bsonproto.SizeDecimal128)
}

// WriteMinKey writes a Min key value.
func (w *Writer) WriteMinKey() error {
	return w.writeEmpty("WriteMinKey", bson.TagMinKey)
}

// WriteMaxKey writes a Max key value.
func (w *Writer) WriteMaxKey() error {
	return w.writeEmpty("WriteMaxKey", bson.TagMaxKey)
}

// encodeDBPointer encodes DBPointer value v into b.
func encodeDBPointer(b []byte, v bson.DBPointer) {
	bsonproto.EncodeString(b, v.Namespace)
	bsonproto.EncodeObjectID(b[bsonproto.SizeString(v.Namespace):], v.ID)
}
