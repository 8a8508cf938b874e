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

// Package testutil provides testing helpers.
package testutil

import (
	"runtime"
	"sync"
	"testing"
)

// NumGoroutines is the total count of goroutines created by [Stress].
var NumGoroutines = runtime.GOMAXPROCS(-1) * 10

// Stress runs function f in multiple goroutines.
//
// Function f should do a needed setup, send a message to ready channel when it is ready to start,
// wait for start channel to be closed, and then do the actual work.
func Stress(tb testing.TB, f func(ready chan<- struct{}, start <-chan struct{})) {
	tb.Helper()

	var wg sync.WaitGroup
	readyCh := make(chan struct{}, NumGoroutines)
	startCh := make(chan struct{})
	doneCh := make(chan struct{})

	var once sync.Once
	failed := func() { once.Do(func() { close(doneCh) }) }

	for range NumGoroutines {
		wg.Add(1)

		go func() {
			var ok bool

			defer func() {
				wg.Done()

				// handles f calling testify/require.XXX or `testing.TB.FailNow()`
				if !ok {
					failed()
				}
			}()

			f(readyCh, startCh)

			ok = true
		}()
	}

	for range NumGoroutines {
		select {
		case <-readyCh:
		case <-doneCh:
		}
	}

	close(startCh)

	wg.Wait()
}
