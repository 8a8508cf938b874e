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

package testutil

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Logger returns zap test logger at debug level with caller annotations.
func Logger(tb testing.TB) *zap.Logger {
	return zaptest.NewLogger(
		tb,
		zaptest.Level(zap.DebugLevel),
		zaptest.WrapOptions(zap.AddCaller(), zap.Development()),
	)
}

// SLogger returns slog test logger.
func SLogger(tb testing.TB) *slog.Logger {
	return slogt.New(tb)
}
