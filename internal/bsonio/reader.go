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
	"bytes"
	"time"
	"unicode/utf8"

	"github.com/cristalhq/bson/bsonproto"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// readerContext describes a document or an array the reader is in.
//
// Contexts are never modified after creation, so bookmarks can share them.
type readerContext struct {
	parent *readerContext
	kind   containerKind
	start  int // offset of the length prefix
	end    int // offset just after the trailing NUL byte
	depth  int
}

// Reader reads BSON values from a byte slice.
//
// Reader is a state machine: the caller reads the type of the next element,
// then its name, then its value.
// Type and name reading for array elements is combined; array element names are not checked.
// Element names, String, JavaScript and Symbol values must be valid UTF-8.
//
// Reader is not safe for concurrent use.
type Reader struct {
	b        []byte
	ctx      *readerContext
	curName  string
	pos      int
	maxDepth int
	state    State
	curType  bson.Tag
}

// Bookmark is an opaque snapshot of the Reader's position and state.
type Bookmark struct {
	ctx     *readerContext
	curName string
	pos     int
	state   State
	curType bson.Tag
}

// NewReader creates a new Reader for a single top-level document stored in b.
//
// The caller must not modify b while it is in use.
func NewReader(b []byte) *Reader {
	return &Reader{
		b:        b,
		maxDepth: DefaultMaxDepth,
	}
}

// SetMaxDepth sets the maximum nesting depth of documents and arrays.
// Deeper input is rejected with [bson.ErrFormat].
func (r *Reader) SetMaxDepth(depth int) {
	r.maxDepth = depth
}

// State returns the current state of the Reader.
func (r *Reader) State() State {
	return r.state
}

// CurrentType returns the type of the current element.
func (r *Reader) CurrentType() bson.Tag {
	return r.curType
}

// CurrentName returns the name of the current element.
//
// It is empty for the top-level document.
func (r *Reader) CurrentName() string {
	return r.curName
}

// Position returns the offset of the next byte to read.
func (r *Reader) Position() int {
	return r.pos
}

// Depth returns the number of containers the reader is in.
func (r *Reader) Depth() int {
	if r.ctx == nil {
		return 0
	}

	return r.ctx.depth
}

// IsAtEnd returns true if all bytes were consumed.
func (r *Reader) IsAtEnd() bool {
	return r.pos >= len(r.b)
}

// Bookmark returns a snapshot of the current position and state.
func (r *Reader) Bookmark() Bookmark {
	return Bookmark{
		ctx:     r.ctx,
		curName: r.curName,
		pos:     r.pos,
		state:   r.state,
		curType: r.curType,
	}
}

// ReturnToBookmark restores position and state saved by [Reader.Bookmark].
func (r *Reader) ReturnToBookmark(b Bookmark) {
	r.ctx = b.ctx
	r.curName = b.curName
	r.pos = b.pos
	r.state = b.state
	r.curType = b.curType
}

// ReadBSONType reads the type of the next element.
//
// For the top-level document, it returns [bson.TagDocument] without consuming input.
// At the end of a document or an array, it returns [bson.TagEndOfDocument].
func (r *Reader) ReadBSONType() (bson.Tag, error) {
	switch r.state {
	case StateInitial:
		r.curType = bson.TagDocument
		r.state = StateValue

		return r.curType, nil

	case StateType:
		// expected

	default:
		return 0, lazyerrors.Errorf("ReadBSONType can't be called in state %s: %w", r.state, bson.ErrFormat)
	}

	if r.pos >= r.ctx.end {
		return 0, lazyerrors.Errorf("unexpected end of %s at offset %d: %w", r.ctx.kind, r.pos, bson.ErrFormat)
	}

	t := bson.Tag(r.b[r.pos])
	r.pos++

	if t == bson.TagEndOfDocument {
		r.curType = t
		r.curName = ""

		if r.ctx.kind == kindArray {
			r.state = StateEndOfArray
		} else {
			r.state = StateEndOfDocument
		}

		return t, nil
	}

	if !t.Valid() {
		return 0, lazyerrors.Errorf("unexpected %s at offset %d: %w", t, r.pos-1, bson.ErrFormat)
	}

	r.curType = t

	if r.ctx.kind == kindArray {
		n := bytes.IndexByte(r.b[r.pos:r.ctx.end], 0)
		if n < 0 {
			return 0, lazyerrors.Errorf("unterminated array element name at offset %d: %w", r.pos, bson.ErrFormat)
		}

		r.curName = string(r.b[r.pos : r.pos+n])
		r.pos += n + 1
		r.state = StateValue

		return t, nil
	}

	r.state = StateName

	return t, nil
}

// ReadBSONTypeTrie is a variant of [Reader.ReadBSONType] that also reads the element name
// and matches it against the given Trie in a single pass.
//
// It returns the index of the name in the Trie if it was found.
// The name is available via [Reader.CurrentName] in both cases.
func (r *Reader) ReadBSONTypeTrie(t *Trie) (bson.Tag, int, bool, error) {
	tag, err := r.ReadBSONType()
	if err != nil {
		return 0, -1, false, lazyerrors.Error(err)
	}

	if r.state != StateName {
		return tag, -1, false, nil
	}

	n, index, found := t.match(r.b[r.pos:r.ctx.end])
	if n < 0 {
		return 0, -1, false, lazyerrors.Errorf("unterminated element name at offset %d: %w", r.pos, bson.ErrFormat)
	}

	switch {
	case found:
		r.curName = t.names[index]
	case !utf8.Valid(r.b[r.pos : r.pos+n]):
		return 0, -1, false, lazyerrors.Errorf("invalid UTF-8 in element name at offset %d: %w", r.pos, bson.ErrFormat)
	default:
		r.curName = string(r.b[r.pos : r.pos+n])
	}

	r.pos += n + 1
	r.state = StateValue

	return tag, index, found, nil
}

// ReadName reads the name of the current element.
func (r *Reader) ReadName() (string, error) {
	if r.state != StateName {
		return "", lazyerrors.Errorf("ReadName can't be called in state %s: %w", r.state, bson.ErrFormat)
	}

	n := bytes.IndexByte(r.b[r.pos:r.ctx.end], 0)
	if n < 0 {
		return "", lazyerrors.Errorf("unterminated element name at offset %d: %w", r.pos, bson.ErrFormat)
	}

	if !utf8.Valid(r.b[r.pos : r.pos+n]) {
		return "", lazyerrors.Errorf("invalid UTF-8 in element name at offset %d: %w", r.pos, bson.ErrFormat)
	}

	r.curName = string(r.b[r.pos : r.pos+n])
	r.pos += n + 1
	r.state = StateValue

	return r.curName, nil
}

// SkipName skips the name of the current element.
func (r *Reader) SkipName() error {
	if _, err := r.ReadName(); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// FindElement scans the rest of the current document for an element with the given name.
//
// If it is found, the reader is left in [StateValue] positioned at its value.
// Otherwise, false is returned and the reader is at the end of the document.
func (r *Reader) FindElement(name string) (bool, error) {
	for {
		t, err := r.ReadBSONType()
		if err != nil {
			return false, lazyerrors.Error(err)
		}

		if t == bson.TagEndOfDocument {
			return false, nil
		}

		if r.state == StateName {
			if _, err = r.ReadName(); err != nil {
				return false, lazyerrors.Error(err)
			}
		}

		if r.curName == name {
			return true, nil
		}

		if err = r.SkipValue(); err != nil {
			return false, lazyerrors.Error(err)
		}
	}
}

// ReadStartDocument reads the start of the current document value,
// or of the top-level document.
func (r *Reader) ReadStartDocument() error {
	if r.state == StateInitial {
		if _, err := r.ReadBSONType(); err != nil {
			return lazyerrors.Error(err)
		}
	}

	if err := r.checkValue("ReadStartDocument", bson.TagDocument); err != nil {
		return err
	}

	return r.push(kindDocument)
}

// ReadEndDocument reads the end of the current document.
//
// It fails if the document contains unread elements
// or if the document's length prefix does not match its content.
func (r *Reader) ReadEndDocument() error {
	return r.pop(kindDocument, StateEndOfDocument)
}

// ReadStartArray reads the start of the current array value.
func (r *Reader) ReadStartArray() error {
	if err := r.checkValue("ReadStartArray", bson.TagArray); err != nil {
		return err
	}

	return r.push(kindArray)
}

// ReadEndArray reads the end of the current array.
func (r *Reader) ReadEndArray() error {
	return r.pop(kindArray, StateEndOfArray)
}

// push enters the container value at the current position.
func (r *Reader) push(kind containerKind) error {
	depth := 1
	if r.ctx != nil {
		depth = r.ctx.depth + 1
	}

	if depth > r.maxDepth {
		return lazyerrors.Errorf("nesting depth exceeds %d: %w", r.maxDepth, bson.ErrFormat)
	}

	b := r.valueBytes()

	size, err := bsonproto.DecodeInt32(b)
	if err != nil {
		return lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
	}

	if size < 5 || int(size) > len(b) {
		return lazyerrors.Errorf(
			"invalid %s length %d at offset %d (%d bytes available): %w", kind, size, r.pos, len(b), bson.ErrFormat,
		)
	}

	r.ctx = &readerContext{
		parent: r.ctx,
		kind:   kind,
		start:  r.pos,
		end:    r.pos + int(size),
		depth:  depth,
	}
	r.pos += 4
	r.state = StateType

	return nil
}

// pop leaves the current container.
func (r *Reader) pop(kind containerKind, endState State) error {
	if r.ctx == nil || r.ctx.kind != kind {
		return lazyerrors.Errorf("not in %s: %w", kind, bson.ErrFormat)
	}

	if r.state == StateType {
		if _, err := r.ReadBSONType(); err != nil {
			return lazyerrors.Error(err)
		}
	}

	if r.state != endState {
		return lazyerrors.Errorf("%s has unread element %q: %w", kind, r.curName, bson.ErrFormat)
	}

	if r.pos != r.ctx.end {
		return lazyerrors.Errorf(
			"%s length is %d, but %d bytes were read: %w", kind, r.ctx.end-r.ctx.start, r.pos-r.ctx.start, bson.ErrFormat,
		)
	}

	r.ctx = r.ctx.parent
	r.curType = bson.TagEndOfDocument
	r.setStateAfterValue()

	return nil
}

// SkipValue skips the current value.
func (r *Reader) SkipValue() error {
	if r.state != StateValue {
		return lazyerrors.Errorf("SkipValue can't be called in state %s: %w", r.state, bson.ErrFormat)
	}

	n, err := valueSize(r.curType, r.valueBytes())
	if err != nil {
		return lazyerrors.Error(err)
	}

	r.pos += n
	r.setStateAfterValue()

	return nil
}

// valueBytes returns bytes available for the current value.
func (r *Reader) valueBytes() []byte {
	if r.ctx == nil {
		return r.b[r.pos:]
	}

	return r.b[r.pos:r.ctx.end]
}

// setStateAfterValue updates the state after a value was read or skipped.
func (r *Reader) setStateAfterValue() {
	if r.ctx == nil {
		r.state = StateDone
		return
	}

	r.state = StateType
}

// checkValue checks that the reader is positioned at the value of the given type.
func (r *Reader) checkValue(op string, t bson.Tag) error {
	if r.state != StateValue {
		return lazyerrors.Errorf("%s can't be called in state %s: %w", op, r.state, bson.ErrFormat)
	}

	if r.curType != t {
		return lazyerrors.Errorf("%s can't be called when the current type is %s: %w", op, r.curType, bson.ErrFormat)
	}

	return nil
}

// readScalar reads the current value with bsonproto's decode and size functions.
func readScalar[T any](r *Reader, op string, t bson.Tag, decode func([]byte) (T, error), size func(T) int) (T, error) {
	var zero T

	if err := r.checkValue(op, t); err != nil {
		return zero, err
	}

	v, err := decode(r.valueBytes())
	if err != nil {
		return zero, lazyerrors.Errorf("%s: %w: %w", op, bson.ErrFormat, err)
	}

	r.pos += size(v)
	r.setStateAfterValue()

	return v, nil
}

// readEmpty reads the current value of a type without payload.
func (r *Reader) readEmpty(op string, t bson.Tag) error {
	if err := r.checkValue(op, t); err != nil {
		return err
	}

	r.setStateAfterValue()

	return nil
}

func fixedSize[T any](n int) func(T) int {
	return func(T) int { return n }
}

// ReadDouble reads a Double value.
func (r *Reader) ReadDouble() (float64, error) {
	return readScalar(r, "ReadDouble", bson.TagDouble, bsonproto.DecodeFloat64, fixedSize[float64](bsonproto.SizeFloat64))
}

// ReadString reads a String value.
func (r *Reader) ReadString() (string, error) {
	return readScalar(r, "ReadString", bson.TagString, decodeString, bsonproto.SizeString)
}

// ReadBinary reads a Binary data value.
func (r *Reader) ReadBinary() (bson.Binary, error) {
	return readScalar(r, "ReadBinary", bson.TagBinary, bsonproto.DecodeBinary, bsonproto.SizeBinary)
}

// ReadUndefined reads an Undefined value.
func (r *Reader) ReadUndefined() error {
	return r.readEmpty("ReadUndefined", bson.TagUndefined)
}

// ReadObjectID reads an ObjectId value.
func (r *Reader) ReadObjectID() (bson.ObjectID, error) {
	return readScalar(
		r, "ReadObjectID", bson.TagObjectID, bsonproto.DecodeObjectID, fixedSize[bson.ObjectID](bsonproto.SizeObjectID),
	)
}

// ReadBoolean reads a Boolean value.
func (r *Reader) ReadBoolean() (bool, error) {
	return readScalar(r, "ReadBoolean", bson.TagBoolean, bsonproto.DecodeBool, fixedSize[bool](bsonproto.SizeBool))
}

// ReadDateTime reads a UTC datetime value.
func (r *Reader) ReadDateTime() (time.Time, error) {
	return readScalar(r, "ReadDateTime", bson.TagDateTime, bsonproto.DecodeTime, fixedSize[time.Time](bsonproto.SizeTime))
}

// ReadNull reads a Null value.
func (r *Reader) ReadNull() error {
	return r.readEmpty("ReadNull", bson.TagNull)
}

// ReadRegex reads a Regular expression value.
func (r *Reader) ReadRegex() (bson.Regex, error) {
	return readScalar(r, "ReadRegex", bson.TagRegex, bsonproto.DecodeRegex, bsonproto.SizeRegex)
}

// ReadDBPointer reads a DBPointer value.
func (r *Reader) ReadDBPointer() (bson.DBPointer, error) {
	return readScalar(r, "ReadDBPointer", bson.TagDBPointer, decodeDBPointer, sizeDBPointer)
}

// ReadJavaScript reads a JavaScript code value.
func (r *Reader) ReadJavaScript() (bson.JavaScript, error) {
	s, err := readScalar(r, "ReadJavaScript", bson.TagJavaScript, decodeString, bsonproto.SizeString)
	return bson.JavaScript(s), err
}

// ReadSymbol reads a Symbol value.
func (r *Reader) ReadSymbol() (bson.Symbol, error) {
	s, err := readScalar(r, "ReadSymbol", bson.TagSymbol, decodeString, bsonproto.SizeString)
	return bson.Symbol(s), err
}

// ReadJavaScriptScope reads a JavaScript code with scope value.
func (r *Reader) ReadJavaScriptScope() (bson.JavaScriptScope, error) {
	var res bson.JavaScriptScope

	if err := r.checkValue("ReadJavaScriptScope", bson.TagJavaScriptScope); err != nil {
		return res, err
	}

	b := r.valueBytes()

	size, err := bsonproto.DecodeInt32(b)
	if err != nil {
		return res, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
	}

	// length prefix, empty string, empty document
	if size < 14 || int(size) > len(b) {
		return res, lazyerrors.Errorf("invalid JavaScript with scope length %d: %w", size, bson.ErrFormat)
	}

	b = b[4:size]

	if res.Code, err = bsonproto.DecodeString(b); err != nil {
		return res, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
	}

	depth := r.Depth()

	scope := NewReader(b[bsonproto.SizeString(res.Code):])
	scope.SetMaxDepth(r.maxDepth - depth)

	if res.Scope, err = scope.readDocument(); err != nil {
		return res, lazyerrors.Error(err)
	}

	if !scope.IsAtEnd() {
		return res, lazyerrors.Errorf("JavaScript with scope has %d extra bytes: %w", len(scope.b)-scope.pos, bson.ErrFormat)
	}

	r.pos += int(size)
	r.setStateAfterValue()

	return res, nil
}

// ReadInt32 reads a 32-bit integer value.
func (r *Reader) ReadInt32() (int32, error) {
	return readScalar(r, "ReadInt32", bson.TagInt32, bsonproto.DecodeInt32, fixedSize[int32](bsonproto.SizeInt32))
}

// ReadTimestamp reads a Timestamp value.
func (r *Reader) ReadTimestamp() (bson.Timestamp, error) {
	return readScalar(
		r, "ReadTimestamp", bson.TagTimestamp, bsonproto.DecodeTimestamp, fixedSize[bson.Timestamp](bsonproto.SizeTimestamp),
	)
}

// ReadInt64 reads a 64-bit integer value.
func (r *Reader) ReadInt64() (int64, error) {
	return readScalar(r, "ReadInt64", bson.TagInt64, bsonproto.DecodeInt64, fixedSize[int64](bsonproto.SizeInt64))
}

// ReadDecimal128 reads a Decimal128 value.
func (r *Reader) ReadDecimal128() (bson.Decimal128, error) {
	return readScalar(
		r, "ReadDecimal128", bson.TagDecimal128, bsonproto.DecodeDecimal128, fixedSize[bson.Decimal128](bsonproto.SizeDecimal128),
	)
}

// ReadMinKey reads a Min key value.
func (r *Reader) ReadMinKey() error {
	return r.readEmpty("ReadMinKey", bson.TagMinKey)
}

// ReadMaxKey reads a Max key value.
func (r *Reader) ReadMaxKey() error {
	return r.readEmpty("ReadMaxKey", bson.TagMaxKey)
}

// decodeString decodes a string value from b, rejecting invalid UTF-8.
func decodeString(b []byte) (string, error) {
	s, err := bsonproto.DecodeString(b)
	if err != nil {
		return "", err
	}

	if !utf8.ValidString(s) {
		return "", lazyerrors.New("invalid UTF-8 string")
	}

	return s, nil
}

// decodeDBPointer decodes DBPointer value from b.
func decodeDBPointer(b []byte) (bson.DBPointer, error) {
	var res bson.DBPointer

	ns, err := bsonproto.DecodeString(b)
	if err != nil {
		return res, err
	}

	id, err := bsonproto.DecodeObjectID(b[bsonproto.SizeString(ns):])
	if err != nil {
		return res, err
	}

	res.Namespace = ns
	res.ID = id

	return res, nil
}

// sizeDBPointer returns a size of the encoding of DBPointer value in bytes.
func sizeDBPointer(v bson.DBPointer) int {
	return bsonproto.SizeString(v.Namespace) + bsonproto.SizeObjectID
}

// valueSize returns the size of the encoded value of the given type at the beginning of b.
func valueSize(t bson.Tag, b []byte) (int, error) {
	var n int

	switch t {
	case bson.TagUndefined, bson.TagNull, bson.TagMinKey, bson.TagMaxKey:
		return 0, nil

	case bson.TagBoolean:
		n = bsonproto.SizeBool
	case bson.TagInt32:
		n = bsonproto.SizeInt32
	case bson.TagDouble, bson.TagDateTime, bson.TagTimestamp, bson.TagInt64:
		n = 8
	case bson.TagObjectID:
		n = bsonproto.SizeObjectID
	case bson.TagDecimal128:
		n = bsonproto.SizeDecimal128

	case bson.TagString, bson.TagJavaScript, bson.TagSymbol:
		s, err := bsonproto.DecodeString(b)
		if err != nil {
			return 0, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
		}

		n = bsonproto.SizeString(s)

	case bson.TagBinary:
		v, err := bsonproto.DecodeBinary(b)
		if err != nil {
			return 0, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
		}

		n = bsonproto.SizeBinary(v)

	case bson.TagRegex:
		v, err := bsonproto.DecodeRegex(b)
		if err != nil {
			return 0, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
		}

		n = bsonproto.SizeRegex(v)

	case bson.TagDBPointer:
		v, err := decodeDBPointer(b)
		if err != nil {
			return 0, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
		}

		n = sizeDBPointer(v)

	case bson.TagDocument, bson.TagArray, bson.TagJavaScriptScope:
		l, err := bsonproto.DecodeInt32(b)
		if err != nil {
			return 0, lazyerrors.Errorf("%w: %w", bson.ErrFormat, err)
		}

		if l < 5 {
			return 0, lazyerrors.Errorf("invalid %s length %d: %w", t, l, bson.ErrFormat)
		}

		n = int(l)

	default:
		return 0, lazyerrors.Errorf("unexpected %s: %w", t, bson.ErrFormat)
	}

	if n > len(b) {
		return 0, lazyerrors.Errorf("%s needs %d bytes, %d available: %w", t, n, len(b), bson.ErrFormat)
	}

	return n, nil
}
