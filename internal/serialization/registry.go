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
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// ErrNoSerializer is returned when no serializer can handle the type.
var ErrNoSerializer = fmt.Errorf("no serializer: %w", bson.ErrNotSupported)

// Provider constructs serializers for the types it knows about.
type Provider interface {
	// GetSerializer returns a new serializer for t,
	// or nil without error if the provider does not handle t.
	//
	// It must not have side effects: the result may be discarded.
	GetSerializer(reg *Registry, t reflect.Type) (Serializer, error)
}

// ProviderFunc is an adapter to allow the use of ordinary functions as providers.
type ProviderFunc func(reg *Registry, t reflect.Type) (Serializer, error)

// GetSerializer implements [Provider].
func (f ProviderFunc) GetSerializer(reg *Registry, t reflect.Type) (Serializer, error) {
	return f(reg, t)
}

// Registry maps Go types to serializers.
//
// It also keeps type aliases used as discriminators,
// discriminator conventions and class maps.
//
// Registry is safe for concurrent use.
// Two goroutines looking up the same type for the first time may both construct a serializer;
// only one of them is cached and returned to both.
type Registry struct {
	l *zap.Logger

	serializers sync.Map // reflect.Type -> Serializer
	classMaps   sync.Map // reflect.Type -> *ClassMap

	rw          sync.RWMutex
	providers   []Provider
	names       map[string]reflect.Type
	aliases     map[reflect.Type]string
	conventions map[reflect.Type]DiscriminatorConvention

	defaultConvention DiscriminatorConvention

	m *registryMetrics
}

// NewRegistryOpts represents options for NewRegistry.
type NewRegistryOpts struct {
	Logger *zap.Logger // defaults to no-op logger

	// DiscriminatorElement is the discriminator element name of the default convention.
	// Defaults to "_t".
	DiscriminatorElement string
}

// NewRegistry creates a new registry with built-in serializers.
func NewRegistry(opts *NewRegistryOpts) *Registry {
	if opts == nil {
		opts = new(NewRegistryOpts)
	}

	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}

	r := &Registry{
		l:           l.Named("serialization"),
		names:       make(map[string]reflect.Type),
		aliases:     make(map[reflect.Type]string),
		conventions: make(map[reflect.Type]DiscriminatorConvention),
		m:           newRegistryMetrics(),
	}

	r.defaultConvention = NewScalarDiscriminatorConvention(r, opts.DiscriminatorElement)

	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(&NewRegistryOpts{
			Logger: zap.L(),
		})
	})

	return defaultRegistry
}

// LookupSerializer returns the serializer for t, constructing and caching it if needed.
//
// It returns an error wrapping [ErrNoSerializer] if no provider handles t.
func (r *Registry) LookupSerializer(t reflect.Type) (Serializer, error) {
	if t == nil {
		return nil, lazyerrors.Errorf("nil type: %w", ErrNoSerializer)
	}

	if s, ok := r.serializers.Load(t); ok {
		r.m.lookups.WithLabelValues("hit").Inc()
		return s.(Serializer), nil
	}

	r.m.lookups.WithLabelValues("miss").Inc()

	s, err := r.construct(t)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	actual, loaded := r.serializers.LoadOrStore(t, s)
	if !loaded {
		r.m.constructions.Inc()
		r.m.cached.Add(1)

		r.l.Debug(
			"Serializer constructed",
			zap.Stringer("type", t), zap.String("serializer", fmt.Sprintf("%T", s)),
		)
	}

	return actual.(Serializer), nil
}

// construct creates a new serializer for t using user providers first, then built-in ones.
func (r *Registry) construct(t reflect.Type) (Serializer, error) {
	r.rw.RLock()
	providers := slices.Clone(r.providers)
	r.rw.RUnlock()

	providers = append(providers, builtinProvider{})

	for _, p := range providers {
		s, err := p.GetSerializer(r, t)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		if s == nil {
			continue
		}

		if s.ValueType() != t {
			return nil, lazyerrors.Errorf(
				"%T returned serializer for %s instead of %s: %w", p, s.ValueType(), t, bson.ErrConfiguration,
			)
		}

		return s, nil
	}

	return nil, lazyerrors.Errorf("%s: %w", t, ErrNoSerializer)
}

// RegisterSerializer registers the serializer for its value type.
//
// It fails if a serializer for that type is already cached,
// including one constructed by an earlier lookup.
func (r *Registry) RegisterSerializer(s Serializer) error {
	t := s.ValueType()

	if _, loaded := r.serializers.LoadOrStore(t, s); loaded {
		return lazyerrors.Errorf("serializer for %s is already registered: %w", t, bson.ErrConfiguration)
	}

	r.m.cached.Add(1)
	r.l.Debug("Serializer registered", zap.Stringer("type", t), zap.String("serializer", fmt.Sprintf("%T", s)))

	return nil
}

// RegisterProvider adds a provider.
// Providers are tried in the registration order before built-in serializers.
//
// It affects only types that are not looked up yet.
func (r *Registry) RegisterProvider(p Provider) {
	r.rw.Lock()
	defer r.rw.Unlock()

	r.providers = append(r.providers, p)
}

// RegisterType registers aliases of t used as discriminator values.
//
// The first alias is written; all of them are recognized when reading.
// Without aliases, the name of t is used.
// Registering an alias that is already used by another type is an error.
func (r *Registry) RegisterType(t reflect.Type, aliases ...string) error {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if len(aliases) == 0 {
		if t.Name() == "" {
			return lazyerrors.Errorf("unnamed type %s requires an alias: %w", t, bson.ErrConfiguration)
		}

		aliases = []string{t.Name()}
	}

	r.rw.Lock()
	defer r.rw.Unlock()

	for _, a := range aliases {
		if a == "" {
			return lazyerrors.Errorf("empty alias for %s: %w", t, bson.ErrConfiguration)
		}

		if other, ok := r.names[a]; ok && other != t {
			return lazyerrors.Errorf("alias %q is already used by %s: %w", a, other, bson.ErrConfiguration)
		}
	}

	for _, a := range aliases {
		r.names[a] = t
	}

	if _, ok := r.aliases[t]; !ok {
		r.aliases[t] = aliases[0]
	}

	return nil
}

// TypeAlias returns the discriminator value of t (or of the type t points to), if registered.
func (r *Registry) TypeAlias(t reflect.Type) (string, bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.rw.RLock()
	defer r.rw.RUnlock()

	a, ok := r.aliases[t]

	return a, ok
}

// LookupType returns the type registered with the given alias.
//
// A full type name (as returned by [reflect.Type.String]) of a registered type is also accepted.
func (r *Registry) LookupType(alias string) (reflect.Type, bool) {
	r.rw.RLock()
	defer r.rw.RUnlock()

	if t, ok := r.names[alias]; ok {
		return t, true
	}

	for t := range r.aliases {
		if t.String() == alias {
			return t, true
		}
	}

	return nil, false
}

// Aliases returns all registered aliases in sorted order.
func (r *Registry) Aliases() []string {
	r.rw.RLock()
	res := maps.Keys(r.names)
	r.rw.RUnlock()

	slices.Sort(res)

	return res
}

// RegisterDiscriminatorConvention registers the convention for the given nominal type
// and all types that implement it.
func (r *Registry) RegisterDiscriminatorConvention(t reflect.Type, c DiscriminatorConvention) error {
	r.rw.Lock()
	defer r.rw.Unlock()

	if _, ok := r.conventions[t]; ok {
		return lazyerrors.Errorf("discriminator convention for %s is already registered: %w", t, bson.ErrConfiguration)
	}

	r.conventions[t] = c

	return nil
}

// LookupDiscriminatorConvention returns the convention for t.
//
// For a concrete type, the convention of the interface type it implements is used.
// If there is none, the default scalar convention is returned.
func (r *Registry) LookupDiscriminatorConvention(t reflect.Type) DiscriminatorConvention {
	r.rw.RLock()
	defer r.rw.RUnlock()

	if c, ok := r.conventions[t]; ok {
		return c
	}

	if t.Kind() != reflect.Interface {
		pt := reflect.PointerTo(t)

		// sort for a deterministic choice between several implemented interfaces
		roots := maps.Keys(r.conventions)
		slices.SortFunc(roots, func(a, b reflect.Type) int {
			switch {
			case a.String() < b.String():
				return -1
			case a.String() > b.String():
				return 1
			default:
				return 0
			}
		})

		for _, root := range roots {
			if root.Kind() == reflect.Interface && (t.Implements(root) || pt.Implements(root)) {
				return r.conventions[root]
			}
		}
	}

	return r.defaultConvention
}

// RegisterClassMap freezes and registers the class map.
//
// It fails if a class map or a serializer for the same type already exists.
func (r *Registry) RegisterClassMap(cm *ClassMap) error {
	if cm.registry != r {
		return lazyerrors.Errorf("class map for %s belongs to another registry: %w", cm.t, bson.ErrConfiguration)
	}

	if err := cm.Freeze(); err != nil {
		return lazyerrors.Error(err)
	}

	if _, ok := r.serializers.Load(cm.t); ok {
		return lazyerrors.Errorf("serializer for %s is already in use: %w", cm.t, bson.ErrConfiguration)
	}

	if _, loaded := r.classMaps.LoadOrStore(cm.t, cm); loaded {
		return lazyerrors.Errorf("class map for %s is already registered: %w", cm.t, bson.ErrConfiguration)
	}

	if err := r.RegisterType(cm.t, cm.discriminator); err != nil {
		r.classMaps.Delete(cm.t)
		return lazyerrors.Error(err)
	}

	return nil
}

// LookupClassMap returns the class map for the struct type t.
//
// If none is registered, it is created with [ClassMap.AutoMap], frozen, and cached.
func (r *Registry) LookupClassMap(t reflect.Type) (*ClassMap, error) {
	if cm, ok := r.classMaps.Load(t); ok {
		return cm.(*ClassMap), nil
	}

	cm, err := r.NewClassMap(t)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if err = cm.AutoMap(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	if err = cm.Freeze(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	actual, loaded := r.classMaps.LoadOrStore(t, cm)
	if !loaded {
		// another type with the same name may use the alias already
		if err = r.RegisterType(t, cm.discriminator); err != nil {
			r.l.Debug("Using full type name as discriminator", zap.Stringer("type", t), zap.Error(err))
			_ = r.RegisterType(t, t.String())
		}

		r.l.Debug("Class map created", zap.Stringer("type", t), zap.Int("members", len(cm.members)))
	}

	return actual.(*ClassMap), nil
}

// lazySerializer resolves a child serializer on first use.
//
// That allows serializers of recursive types to be constructed.
type lazySerializer struct {
	reg *Registry
	t   reflect.Type
	s   atomic.Pointer[Serializer]
}

// newLazySerializer returns a lazySerializer for t.
func newLazySerializer(reg *Registry, t reflect.Type) *lazySerializer {
	return &lazySerializer{reg: reg, t: t}
}

// resolvedSerializer returns a lazySerializer that is already resolved.
func resolvedSerializer(s Serializer) *lazySerializer {
	l := &lazySerializer{t: s.ValueType()}
	l.s.Store(&s)

	return l
}

// get returns the serializer.
func (l *lazySerializer) get() (Serializer, error) {
	if s := l.s.Load(); s != nil {
		return *s, nil
	}

	s, err := l.reg.LookupSerializer(l.t)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	l.s.Store(&s)

	return s, nil
}
