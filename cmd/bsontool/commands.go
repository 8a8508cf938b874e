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

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/serialization"
	"github.com/FerretDB/bsonmap/internal/util/fuzz"
	"github.com/FerretDB/bsonmap/internal/util/hex"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// inputs reads command inputs.
type inputs struct {
	hex   bool
	stdin io.Reader
}

// read returns the content of the file; "-" is stdin.
func (in *inputs) read(file string) ([]byte, error) {
	var b []byte
	var err error

	if file == "-" {
		b, err = io.ReadAll(in.stdin)
	} else {
		b, err = os.ReadFile(file)
	}

	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if !in.hex {
		return b, nil
	}

	if b, err = hex.ParseDump(string(b)); err != nil {
		return nil, lazyerrors.Errorf("%s: %w", file, err)
	}

	return b, nil
}

// rawDocument is a single encoded document of the input.
type rawDocument struct {
	offset int
	b      []byte
}

// split splits concatenated documents.
//
// Documents before the first invalid length prefix are returned together with the error.
func split(b []byte) ([]rawDocument, error) {
	var res []rawDocument

	for offset := 0; offset < len(b); {
		n, err := bsonio.Size(b[offset:])
		if err != nil {
			return res, lazyerrors.Errorf("offset %d: %w", offset, err)
		}

		res = append(res, rawDocument{offset: offset, b: b[offset : offset+n]})
		offset += n
	}

	return res, nil
}

// invalidError is returned by decode for invalid input.
type invalidError struct {
	b   []byte // invalid document or the rest of the input
	err error
}

// Error implements error interface.
func (e *invalidError) Error() string {
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *invalidError) Unwrap() error {
	return e.err
}

// decode decodes all documents of the file.
func decode(reg *serialization.Registry, in *inputs, file string, f func(raw rawDocument, doc *bson.Document) error) error {
	b, err := in.read(file)
	if err != nil {
		return lazyerrors.Error(err)
	}

	// documents before the invalid length prefix are still processed
	raws, splitErr := split(b)

	for _, raw := range raws {
		doc, err := serialization.UnmarshalWith[*bson.Document](reg, raw.b)
		if err != nil {
			return &invalidError{b: raw.b, err: lazyerrors.Errorf("%s: offset %d: %w", file, raw.offset, err)}
		}

		if err = f(raw, doc); err != nil {
			return lazyerrors.Error(err)
		}
	}

	if splitErr != nil {
		var end int
		if l := len(raws); l > 0 {
			end = raws[l-1].offset + len(raws[l-1].b)
		}

		return &invalidError{b: b[end:], err: lazyerrors.Errorf("%s: %w", file, splitErr)}
	}

	return nil
}

// dumpOpts represents `dump` command options.
type dumpOpts struct {
	block   bool
	hexDump bool
}

// dump prints all documents of all files.
func dump(w io.Writer, reg *serialization.Registry, in *inputs, files []string, opts *dumpOpts) error {
	for _, file := range files {
		err := decode(reg, in, file, func(raw rawDocument, doc *bson.Document) error {
			if _, err := fmt.Fprintf(w, "# %s @ %d\n", file, raw.offset); err != nil {
				return err
			}

			if opts.hexDump {
				if _, err := io.WriteString(w, hex.Dump(raw.b)); err != nil {
					return err
				}
			}

			msg := doc.LogMessage()
			if opts.block {
				msg = doc.LogMessageBlock()
			}

			_, err := fmt.Fprintln(w, msg)

			return err
		})
		if err != nil {
			return lazyerrors.Error(err)
		}
	}

	return nil
}

// validateOpts represents `validate` command options.
type validateOpts struct {
	record string // directory for fuzz corpus entries, if not empty
	l      *zap.Logger
}

// validate checks all documents of all files and prints the number of valid documents per file.
//
// All files are checked; the first error is returned.
// Invalid documents are recorded as fuzz corpus entries if requested.
func validate(w io.Writer, reg *serialization.Registry, in *inputs, files []string, opts *validateOpts) error {
	var res error

	for _, file := range files {
		var n int

		err := decode(reg, in, file, func(rawDocument, *bson.Document) error {
			n++
			return nil
		})
		if err == nil {
			if _, err = fmt.Fprintf(w, "%s: %d documents\n", file, n); err != nil {
				return lazyerrors.Error(err)
			}

			continue
		}

		opts.l.Warn("Invalid file", zap.String("file", file), zap.Int("valid", n), zap.Error(err))

		if res == nil {
			res = err
		}

		if _, werr := fmt.Fprintf(w, "%s: invalid after %d documents\n", file, n); werr != nil {
			return lazyerrors.Error(werr)
		}

		var ie *invalidError
		if opts.record == "" || !errors.As(err, &ie) {
			continue
		}

		path, created, err := fuzz.Record(opts.record, ie.b)
		if err != nil {
			return lazyerrors.Error(err)
		}

		opts.l.Info("Recorded", zap.String("path", path), zap.Bool("new", created))
	}

	return res
}

// schema prints field paths of all documents with their BSON types and counts.
//
// Array elements are reported under the "path.[]" path.
func schema(w io.Writer, reg *serialization.Registry, in *inputs, files []string) error {
	counts := make(map[string]map[bson.Tag]int)

	for _, file := range files {
		err := decode(reg, in, file, func(_ rawDocument, doc *bson.Document) error {
			collect(counts, "", doc)
			return nil
		})
		if err != nil {
			return lazyerrors.Error(err)
		}
	}

	paths := maps.Keys(counts)
	slices.Sort(paths)

	for _, path := range paths {
		tags := maps.Keys(counts[path])
		slices.Sort(tags)

		for _, t := range tags {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%d\n", path, t, counts[path][t]); err != nil {
				return lazyerrors.Error(err)
			}
		}
	}

	return nil
}

// collect adds types of all fields of the document (recursively) to counts.
func collect(counts map[string]map[bson.Tag]int, prefix string, doc *bson.Document) {
	for i := range doc.Len() {
		name, v := doc.GetByIndex(i)
		collectValue(counts, prefix+name, v)
	}
}

// collectValue adds the type of v at the given path to counts.
func collectValue(counts map[string]map[bson.Tag]int, path string, v any) {
	if counts[path] == nil {
		counts[path] = make(map[bson.Tag]int)
	}

	counts[path][bson.TagOf(v)]++

	switch v := v.(type) {
	case *bson.Document:
		collect(counts, path+".", v)
	case *bson.Array:
		for _, e := range v.Values() {
			collectValue(counts, path+".[]", e)
		}
	}
}
