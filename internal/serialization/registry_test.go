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

package serialization

import (
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	prometheustestutil "github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/must"
	"github.com/FerretDB/bsonmap/internal/util/testutil"
)

type node struct {
	Value    int     `bson:"value"`
	Next     *node   `bson:"next"`
	Children []*node `bson:"children,omitempty"`
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	for name, tc := range map[string]struct {
		t        reflect.Type
		expected Serializer
		err      error
	}{
		"Int": {
			t:        reflect.TypeFor[int](),
			expected: (*IntegerSerializer)(nil),
		},
		"Bytes": {
			t:        reflect.TypeFor[[]byte](),
			expected: (*BytesSerializer)(nil),
		},
		"ObjectID": {
			t:        reflect.TypeFor[bson.ObjectID](),
			expected: (*ObjectIDSerializer)(nil),
		},
		"Array": {
			t:        reflect.TypeFor[[3]int](),
			expected: (*SliceSerializer)(nil),
		},
		"Set": {
			t:        reflect.TypeFor[map[string]struct{}](),
			expected: (*SetSerializer)(nil),
		},
		"Map": {
			t:        reflect.TypeFor[map[string]bool](),
			expected: (*MapSerializer)(nil),
		},
		"Struct": {
			t:        reflect.TypeFor[node](),
			expected: (*ClassMapSerializer)(nil),
		},
		"Any": {
			t:        reflect.TypeFor[any](),
			expected: (*InterfaceSerializer)(nil),
		},
		"Document": {
			t:        reflect.TypeFor[*bson.Document](),
			expected: (*ValueSerializer)(nil),
		},
		"Chan": {
			t:   reflect.TypeFor[chan int](),
			err: ErrNoSerializer,
		},
		"Complex": {
			t:   reflect.TypeFor[complex128](),
			err: ErrNoSerializer,
		},
		"Uintptr": {
			t:   reflect.TypeFor[uintptr](),
			err: ErrNoSerializer,
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, err := reg.LookupSerializer(tc.t)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.ErrorIs(t, err, bson.ErrNotSupported)
				assert.Nil(t, s)

				return
			}

			require.NoError(t, err)
			assert.IsType(t, tc.expected, s)
			assert.Equal(t, tc.t, s.ValueType())

			again, err := reg.LookupSerializer(tc.t)
			require.NoError(t, err)
			assert.Same(t, s, again)
		})
	}
}

func TestRegistryRecursive(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	n := node{
		Value: 1,
		Next:  &node{Value: 2},
		Children: []*node{
			{Value: 3, Next: &node{Value: 4}},
		},
	}

	b, err := MarshalWith(reg, n)
	require.NoError(t, err)

	actual, err := UnmarshalWith[node](reg, b)
	require.NoError(t, err)
	assert.Equal(t, n, actual)
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	t.Run("Serializer", func(t *testing.T) {
		t.Parallel()

		reg := newTestRegistry(t)

		s, err := must.NotFail(NewIntegerSerializer(reflect.TypeFor[int64]())).WithRepresentation(bson.TagString)
		require.NoError(t, err)

		require.NoError(t, reg.RegisterSerializer(s))

		actual, err := reg.LookupSerializer(reflect.TypeFor[int64]())
		require.NoError(t, err)
		assert.Same(t, s, actual)

		err = reg.RegisterSerializer(s)
		assert.ErrorIs(t, err, bson.ErrConfiguration)

		_, err = reg.LookupSerializer(reflect.TypeFor[int32]())
		require.NoError(t, err)

		err = reg.RegisterSerializer(must.NotFail(NewIntegerSerializer(reflect.TypeFor[int32]())))
		assert.ErrorIs(t, err, bson.ErrConfiguration, "already constructed")
	})

	t.Run("Provider", func(t *testing.T) {
		t.Parallel()

		reg := newTestRegistry(t)

		var called int

		reg.RegisterProvider(ProviderFunc(func(reg *Registry, t reflect.Type) (Serializer, error) {
			called++

			if t != reflect.TypeFor[string]() {
				return nil, nil
			}

			return NewStringSerializer(t).WithRepresentation(bson.TagSymbol)
		}))

		s, err := reg.LookupSerializer(reflect.TypeFor[string]())
		require.NoError(t, err)
		assert.Equal(t, bson.TagSymbol, s.(RepresentationConfigurable).Representation())

		s, err = reg.LookupSerializer(reflect.TypeFor[bool]())
		require.NoError(t, err)
		assert.IsType(t, (*BoolSerializer)(nil), s)

		assert.Equal(t, 2, called)
	})

	t.Run("WrongProvider", func(t *testing.T) {
		t.Parallel()

		reg := newTestRegistry(t)

		reg.RegisterProvider(ProviderFunc(func(reg *Registry, t reflect.Type) (Serializer, error) {
			return NewBoolSerializer(reflect.TypeFor[bool]()), nil
		}))

		_, err := reg.LookupSerializer(reflect.TypeFor[string]())
		assert.ErrorIs(t, err, bson.ErrConfiguration)
	})

	t.Run("Type", func(t *testing.T) {
		t.Parallel()

		reg := newTestRegistry(t)

		require.NoError(t, reg.RegisterType(reflect.TypeFor[*node](), "Node", "LegacyNode"))
		require.NoError(t, reg.RegisterType(reflect.TypeFor[node](), "Node"), "same type")

		alias, ok := reg.TypeAlias(reflect.TypeFor[node]())
		assert.True(t, ok)
		assert.Equal(t, "Node", alias)

		for _, a := range []string{"Node", "LegacyNode", reflect.TypeFor[node]().String()} {
			actual, ok := reg.LookupType(a)
			assert.True(t, ok, a)
			assert.Equal(t, reflect.TypeFor[node](), actual, a)
		}

		_, ok = reg.LookupType("node")
		assert.False(t, ok)

		assert.Equal(t, []string{"LegacyNode", "Node"}, reg.Aliases())

		err := reg.RegisterType(reflect.TypeFor[person](), "Node")
		assert.ErrorIs(t, err, bson.ErrConfiguration)

		err = reg.RegisterType(reflect.TypeFor[struct{}]())
		assert.ErrorIs(t, err, bson.ErrConfiguration, "unnamed")

		err = reg.RegisterType(reflect.TypeFor[person](), "")
		assert.ErrorIs(t, err, bson.ErrConfiguration)
	})
}

func TestRegistryConcurrentLookup(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	types := []reflect.Type{
		reflect.TypeFor[node](),
		reflect.TypeFor[person](),
		reflect.TypeFor[map[string][]int](),
		reflect.TypeFor[[]any](),
	}

	results := make(chan []Serializer, testutil.NumGoroutines)

	testutil.Stress(t, func(ready chan<- struct{}, start <-chan struct{}) {
		ready <- struct{}{}
		<-start

		res := make([]Serializer, len(types))

		for i, typ := range types {
			s, err := reg.LookupSerializer(typ)
			require.NoError(t, err)

			res[i] = s
		}

		results <- res
	})

	close(results)

	expected := make([]Serializer, len(types))
	for i, typ := range types {
		expected[i] = must.NotFail(reg.LookupSerializer(typ))
	}

	for res := range results {
		for i := range types {
			assert.Same(t, expected[i], res[i], "%s", types[i])
		}
	}

	n := node{Value: 1, Next: &node{Value: 2}}
	actual := must.NotFail(UnmarshalWith[node](reg, must.NotFail(MarshalWith(reg, n))))
	assert.Equal(t, n, actual)
}

func TestRegistryMetrics(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	_, err := reg.LookupSerializer(reflect.TypeFor[person]())
	require.NoError(t, err)

	_, err = reg.LookupSerializer(reflect.TypeFor[person]())
	require.NoError(t, err)

	// string, int32 and []string are constructed; string is then found for []string elements
	_, err = MarshalWith(reg, person{Tags: []string{"a"}})
	require.NoError(t, err)

	expected := strings.NewReader(`
		# HELP bsonmap_serialization_constructions_total Total number of constructed and cached serializers.
		# TYPE bsonmap_serialization_constructions_total counter
		bsonmap_serialization_constructions_total 4
	`)
	assert.NoError(t, prometheustestutil.CollectAndCompare(reg, expected, "bsonmap_serialization_constructions_total"))

	assert.Equal(t, 3, prometheustestutil.CollectAndCount(reg, "bsonmap_serialization_lookups_total", "bsonmap_serialization_cached"))

	pr := prometheus.NewPedanticRegistry()
	require.NoError(t, pr.Register(reg))

	families, err := pr.Gather()
	require.NoError(t, err)

	metrics := make(map[string][]*dto.Metric, len(families))
	for _, mf := range families {
		metrics[mf.GetName()] = mf.GetMetric()
	}

	require.Len(t, metrics["bsonmap_serialization_cached"], 1)
	assert.Equal(t, float64(4), metrics["bsonmap_serialization_cached"][0].GetGauge().GetValue())

	lookups := make(map[string]float64)
	for _, m := range metrics["bsonmap_serialization_lookups_total"] {
		require.Len(t, m.GetLabel(), 1)
		lookups[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}

	assert.Equal(t, float64(4), lookups["miss"])
	assert.Equal(t, float64(3), lookups["hit"])
}
