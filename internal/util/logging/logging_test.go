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

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfig(t *testing.T) {
	t.Parallel()

	for _, format := range Formats {
		t.Run(format, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "log")

			l, err := newConfig(zap.InfoLevel, format, path).Build()
			require.NoError(t, err)

			l.Named("test").Debug("hidden")
			l.Named("test").Info("shown", zap.Int("n", 42))
			require.NoError(t, l.Sync())

			b, err := os.ReadFile(path)
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(string(b)), "\n")
			require.Len(t, lines, 1)

			switch format {
			case "json":
				var entry map[string]any
				require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
				assert.Equal(t, "INFO", entry["L"])
				assert.Equal(t, "test", entry["N"])
				assert.Equal(t, "shown", entry["M"])
				assert.Equal(t, float64(42), entry["n"])

			default:
				assert.Contains(t, lines[0], "INFO\ttest\t")
				assert.Contains(t, lines[0], `shown	{"n": 42}`)
			}
		})
	}

	_, err := newConfig(zap.InfoLevel, "xml", "stderr").Build()
	assert.Error(t, err)
}

func TestLevels(t *testing.T) {
	t.Parallel()

	for _, s := range Levels {
		level, err := zap.ParseAtomicLevel(s)
		require.NoError(t, err)
		assert.Equal(t, s, level.String())
	}
}
