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

// Package bsonio implements low-level reading and writing of BSON documents.
//
// [Reader] and [Writer] are state machines over a byte slice;
// they are used by serializers to stream values without building an intermediate tree.
// [EncodeDocument] and [DecodeDocument] convert whole documents to and from the value model.
package bsonio

import (
	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// EncodeDocument encodes the given document.
func EncodeDocument(doc *bson.Document) ([]byte, error) {
	w := NewWriter()

	if err := w.writeDocument(doc); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return w.Bytes()
}

// DecodeDocument decodes a single document that should occupy all of b.
func DecodeDocument(b []byte) (*bson.Document, error) {
	r := NewReader(b)

	doc, err := r.readDocument()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if !r.IsAtEnd() {
		return nil, lazyerrors.Errorf("%d extra bytes after document: %w", len(b)-r.pos, bson.ErrFormat)
	}

	return doc, nil
}

// Size returns the length of the document at the beginning of b, as declared by its length prefix.
// It can be used to split a stream of concatenated documents.
func Size(b []byte) (int, error) {
	n, err := valueSize(bson.TagDocument, b)
	if err != nil {
		return 0, lazyerrors.Error(err)
	}

	return n, nil
}
