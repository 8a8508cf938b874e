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

// Package fuzz provides helpers for fuzz corpora.
package fuzz

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// Record saves b as a corpus entry of fuzz targets with a single []byte argument,
// such as FuzzDecode of the bsonio package.
//
// Entries are named by content hash.
// It returns the entry path, and false if the same input was recorded before.
func Record(dir string, b []byte) (string, bool, error) {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return "", false, lazyerrors.Error(err)
	}

	path := filepath.Join(dir, fmt.Sprintf("rec-%x", sha256.Sum256(b)))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if errors.Is(err, fs.ErrExist) {
		return path, false, nil
	}

	if err != nil {
		return "", false, lazyerrors.Error(err)
	}

	_, err = fmt.Fprintf(f, "go test fuzz v1\n[]byte(%q)\n", b)

	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)
		return "", false, lazyerrors.Error(err)
	}

	return path, true, nil
}
