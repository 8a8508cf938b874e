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

// Package lazyerrors provides error wrapping that records the caller location.
//
// Every error returned by the codec layer passes through this package,
// so a failed deep deserialization reports the whole path of calls that led to it.
package lazyerrors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// located is an error annotated with the program counter of the function that created it.
type located struct {
	err error
	pc  uintptr
}

// Error implements error interface.
func (e located) Error() string {
	if e.pc == 0 {
		return e.err.Error()
	}

	f, _ := runtime.CallersFrames([]uintptr{e.pc}).Next()
	if f.File == "" {
		return "[unknown] " + e.err.Error()
	}

	loc := filepath.Base(f.File) + ":" + strconv.Itoa(f.Line)
	if f.Function != "" {
		loc += " " + f.Function[strings.LastIndex(f.Function, "/")+1:]
	}

	return "[" + loc + "] " + e.err.Error()
}

// Unwrap returns the wrapped error.
func (e located) Unwrap() error {
	return e.err
}

// caller returns the program counter of the caller of the exported function.
func caller() uintptr {
	var pcs [1]uintptr

	// skip runtime.Callers, caller, and the exported function
	if runtime.Callers(3, pcs[:]) < 1 {
		return 0
	}

	return pcs[0]
}

// New returns a new error with the given text, enriched with the caller location.
func New(s string) error {
	return located{err: errors.New(s), pc: caller()}
}

// Error wraps err with the caller location.
//
// It panics if err is nil; returning a nil error wrapped into a non-nil interface is always a bug.
func Error(err error) error {
	if err == nil {
		panic("err is nil")
	}

	return located{err: err, pc: caller()}
}

// Errorf is a variant of [fmt.Errorf] that records the caller location.
// All %w verbs are supported.
func Errorf(format string, a ...any) error {
	return located{err: fmt.Errorf(format, a...), pc: caller()}
}

// UnwrapAll returns the innermost error of the chain, or nil if err is nil.
//
// Errors wrapping several errors at once are followed through the first one.
func UnwrapAll(err error) error {
	for err != nil {
		var next error

		switch e := err.(type) {
		case interface{ Unwrap() error }:
			next = e.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := e.Unwrap(); len(errs) > 0 {
				next = errs[0]
			}
		}

		if next == nil {
			return err
		}

		err = next
	}

	return nil
}
