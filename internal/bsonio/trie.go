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

import (
	"strings"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// trieNode is a node of the Trie; index is -1 for nodes that do not end a name.
type trieNode struct {
	children map[byte]*trieNode
	index    int
}

// Trie is a prefix tree of expected element names.
//
// It allows the Reader to match an element name against all known names
// while scanning its bytes once, without allocating a string for known names.
// Trie is not safe for concurrent modification, but it is safe for concurrent reads.
type Trie struct {
	root  trieNode
	names map[int]string
}

// NewTrie creates a new Trie with the given names; the index of each name is its position.
func NewTrie(names ...string) (*Trie, error) {
	t := &Trie{
		root:  trieNode{index: -1},
		names: make(map[int]string, len(names)),
	}

	for i, name := range names {
		if err := t.Add(name, i); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	return t, nil
}

// Add adds a name with the given non-negative index.
//
// Duplicate names and names with NUL bytes are rejected.
func (t *Trie) Add(name string, index int) error {
	if index < 0 {
		return lazyerrors.Errorf("invalid index %d: %w", index, bson.ErrConfiguration)
	}

	if strings.IndexByte(name, 0) >= 0 {
		return lazyerrors.Errorf("name %q contains NUL byte: %w", name, bson.ErrConfiguration)
	}

	node := &t.root

	for i := 0; i < len(name); i++ {
		c := name[i]

		if node.children == nil {
			node.children = make(map[byte]*trieNode)
		}

		next := node.children[c]
		if next == nil {
			next = &trieNode{index: -1}
			node.children[c] = next
		}

		node = next
	}

	if node.index >= 0 {
		return lazyerrors.Errorf("duplicate name %q: %w", name, bson.ErrConfiguration)
	}

	node.index = index
	t.names[index] = name

	return nil
}

// Get returns the index of the given name.
func (t *Trie) Get(name string) (int, bool) {
	node := &t.root

	for i := 0; i < len(name); i++ {
		if node = node.children[name[i]]; node == nil {
			return -1, false
		}
	}

	return node.index, node.index >= 0
}

// Len returns the number of names in the Trie.
func (t *Trie) Len() int {
	return len(t.names)
}

// match matches a NUL-terminated name at the beginning of b.
//
// It returns the length of the name without the NUL byte (-1 if there is no NUL byte),
// and the name's index if it is known.
func (t *Trie) match(b []byte) (n, index int, found bool) {
	node := &t.root

	for i, c := range b {
		if c == 0 {
			if node == nil {
				return i, -1, false
			}

			return i, node.index, node.index >= 0
		}

		if node != nil {
			node = node.children[c]
		}
	}

	return -1, -1, false
}
