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

import "fmt"

// State represents the state of a Reader or a Writer.
type State int

// Reader and Writer states.
//
// Writer uses only StateInitial, StateName, StateValue, and StateDone.
const (
	// StateInitial means that nothing was read or written yet; a top-level document is expected.
	StateInitial State = iota

	// StateType means that the reader expects the type tag of the next element.
	StateType

	// StateName means that the next element's name should be read or written.
	StateName

	// StateValue means that the current element's value should be read or written.
	StateValue

	// StateEndOfDocument means that the reader reached the end of the current document.
	StateEndOfDocument

	// StateEndOfArray means that the reader reached the end of the current array.
	StateEndOfArray

	// StateDone means that the top-level document was fully read or written.
	StateDone
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateType:
		return "Type"
	case StateName:
		return "Name"
	case StateValue:
		return "Value"
	case StateEndOfDocument:
		return "EndOfDocument"
	case StateEndOfArray:
		return "EndOfArray"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultMaxDepth is the default maximum nesting depth of documents and arrays.
const DefaultMaxDepth = 100

// containerKind represents a kind of container the reader or the writer is in.
type containerKind int

const (
	kindDocument containerKind = iota
	kindArray
)

// String implements [fmt.Stringer].
func (k containerKind) String() string {
	if k == kindArray {
		return "array"
	}

	return "document"
}
