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

package bson

import (
	"errors"

	"github.com/cristalhq/bson/bsonproto"
)

// Errors are always wrapped; use [errors.Is] to check for them.
var (
	// ErrFormat indicates that the structure or a wire type of the data is incompatible
	// with the requested Go type.
	ErrFormat = errors.New("invalid BSON format")

	// ErrDataLoss indicates that a representation conversion would change the value.
	ErrDataLoss = errors.New("data loss")

	// ErrConfiguration indicates an invalid serializer or class map configuration.
	ErrConfiguration = errors.New("invalid serialization configuration")

	// ErrNotSupported indicates that the type can't be handled at all.
	ErrNotSupported = errors.New("not supported")
)

// Low-level decoding errors returned by bsonproto.
// The bsonio package wraps them into ErrFormat.
var (
	ErrDecodeShortInput   = bsonproto.ErrDecodeShortInput
	ErrDecodeInvalidInput = bsonproto.ErrDecodeInvalidInput
)
