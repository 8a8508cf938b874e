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

package hex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// {"name": "Ada", "age": int32(30), "tags": ["x", "y"]}
var expected = []byte{
	0x39, 0x00, 0x00, 0x00, 0x02, 0x6e, 0x61, 0x6d, 0x65, 0x00, 0x04, 0x00, 0x00, 0x00, 0x41, 0x64,
	0x61, 0x00, 0x10, 0x61, 0x67, 0x65, 0x00, 0x1e, 0x00, 0x00, 0x00, 0x04, 0x74, 0x61, 0x67, 0x73,
	0x00, 0x17, 0x00, 0x00, 0x00, 0x02, 0x30, 0x00, 0x02, 0x00, 0x00, 0x00, 0x78, 0x00, 0x02, 0x31,
	0x00, 0x02, 0x00, 0x00, 0x00, 0x79, 0x00, 0x00, 0x00,
}

func TestParseDump(t *testing.T) {
	t.Parallel()

	for name, dump := range map[string]string{
		"Go": `
			00000000  39 00 00 00 02 6e 61 6d  65 00 04 00 00 00 41 64  |9....name.....Ad|
			00000010  61 00 10 61 67 65 00 1e  00 00 00 04 74 61 67 73  |a..age......tags|
			00000020  00 17 00 00 00 02 30 00  02 00 00 00 78 00 02 31  |......0.....x..1|
			00000030  00 02 00 00 00 79 00 00  00                       |.....y...|
		`,
		"Wireshark": `
			0000   39 00 00 00 02 6e 61 6d 65 00 04 00 00 00 41 64   9....name.....Ad
			0010   61 00 10 61 67 65 00 1e 00 00 00 04 74 61 67 73   a..age......tags
			0020   00 17 00 00 00 02 30 00 02 00 00 00 78 00 02 31   ......0.....x..1
			0030   00 02 00 00 00 79 00 00 00                        .....y...
		`,
		"Plain": `
			390000 00026e616d6500040000004164
			61001061676500 1e000000047461677300170000000230000200000078000231000200000079000000
		`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			actual, err := ParseDump(dump)
			require.NoError(t, err)
			assert.Equal(t, expected, actual)
		})
	}

	t.Run("RoundTrip", func(t *testing.T) {
		t.Parallel()

		actual, err := ParseDump(Dump(expected))
		require.NoError(t, err)
		assert.Equal(t, expected, actual)
	})
}
