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

// Package hex provides helpers for working with hex dumps.
package hex

import (
	"bufio"
	"encoding/hex"
	"strings"

	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// Dump makes a hex dump of byte array.
func Dump(b []byte) string {
	return hex.Dump(b)
}

// ParseDump decodes from hex dump to the byte array.
//
// It accepts the output of [Dump] (and `hexdump -C`), Wireshark's "Copy as Hex Dump",
// and plain hex strings with optional whitespace.
func ParseDump(s string) ([]byte, error) {
	var res []byte

	scanner := bufio.NewScanner(strings.NewReader(strings.TrimSpace(s)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		b, err := parseLine(line)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		res = append(res, b...)
	}

	if err := scanner.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}

// parseLine decodes a single line of a hex dump.
func parseLine(line string) ([]byte, error) {
	fields := strings.Fields(line)

	// plain hex without offsets
	if len(fields) < 2 || len(fields[0]) < 4 || len(fields[1]) != 2 {
		b, err := hex.DecodeString(strings.Join(fields, ""))
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		return b, nil
	}

	// Go dump: "00000000  xx xx ...  |ascii|"; Wireshark dump: "0000   xx xx ...   ascii"
	if i := strings.IndexByte(line, '|'); i > 0 {
		fields = strings.Fields(line[:i])
	}

	var res []byte

	for _, f := range fields[1:] {
		if len(f) != 2 || len(res) == 16 {
			break
		}

		b, err := hex.DecodeString(f)
		if err != nil {
			break
		}

		res = append(res, b...)
	}

	return res, nil
}
