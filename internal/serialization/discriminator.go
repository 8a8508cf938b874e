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

	"github.com/FerretDB/bsonmap/internal/bson"
	"github.com/FerretDB/bsonmap/internal/bsonio"
	"github.com/FerretDB/bsonmap/internal/util/lazyerrors"
)

// DefaultDiscriminatorElement is the default name of the discriminator element.
const DefaultDiscriminatorElement = "_t"

// wrappedValueElement is the name of the element that holds a discriminated value
// that is not a document.
const wrappedValueElement = "_v"

// ErrUnknownDiscriminator is returned when a discriminator value does not name a registered type.
var ErrUnknownDiscriminator = fmt.Errorf("unknown discriminator: %w", bson.ErrFormat)

// DiscriminatorConvention maps concrete types of interface values to discriminator values and back.
//
// Conventions are immutable and safe for concurrent use.
type DiscriminatorConvention interface {
	// ElementName returns the name of the discriminator element.
	ElementName() string

	// GetActualType returns the concrete type of the value the reader is positioned at.
	//
	// For a non-interface nominal type, it is returned as is, and no input is consumed.
	// Otherwise, the current document is scanned for the discriminator element,
	// and the reader is returned to the original position.
	// If there is no discriminator, the nominal type is returned.
	GetActualType(r *bsonio.Reader, nominal reflect.Type) (reflect.Type, error)

	// GetDiscriminator returns the discriminator value of the actual type
	// used in a place of the nominal type, or nil if it should not be written.
	GetDiscriminator(nominal, actual reflect.Type) (any, error)
}

// ScalarDiscriminatorConvention writes the type alias as a string.
type ScalarDiscriminatorConvention struct {
	reg         *Registry
	elementName string
}

// NewScalarDiscriminatorConvention creates a new convention
// that resolves type aliases in the given registry.
//
// An empty element name means [DefaultDiscriminatorElement].
func NewScalarDiscriminatorConvention(reg *Registry, elementName string) *ScalarDiscriminatorConvention {
	if elementName == "" {
		elementName = DefaultDiscriminatorElement
	}

	return &ScalarDiscriminatorConvention{
		reg:         reg,
		elementName: elementName,
	}
}

// ElementName implements [DiscriminatorConvention].
func (c *ScalarDiscriminatorConvention) ElementName() string {
	return c.elementName
}

// GetActualType implements [DiscriminatorConvention].
func (c *ScalarDiscriminatorConvention) GetActualType(r *bsonio.Reader, nominal reflect.Type) (reflect.Type, error) {
	return getActualType(c.reg, c.elementName, r, nominal)
}

// GetDiscriminator implements [DiscriminatorConvention].
func (c *ScalarDiscriminatorConvention) GetDiscriminator(nominal, actual reflect.Type) (any, error) {
	alias, err := discriminatorAlias(c.reg, nominal, actual)
	if err != nil || alias == "" {
		return nil, err
	}

	return alias, nil
}

// HierarchicalDiscriminatorConvention writes an array of the root alias and the type alias,
// so documents of all types of the hierarchy can be found by the root alias.
type HierarchicalDiscriminatorConvention struct {
	reg         *Registry
	elementName string
	root        string
}

// NewHierarchicalDiscriminatorConvention creates a new convention with the given root alias.
//
// An empty element name means [DefaultDiscriminatorElement].
func NewHierarchicalDiscriminatorConvention(reg *Registry, elementName, root string) *HierarchicalDiscriminatorConvention {
	if elementName == "" {
		elementName = DefaultDiscriminatorElement
	}

	return &HierarchicalDiscriminatorConvention{
		reg:         reg,
		elementName: elementName,
		root:        root,
	}
}

// ElementName implements [DiscriminatorConvention].
func (c *HierarchicalDiscriminatorConvention) ElementName() string {
	return c.elementName
}

// GetActualType implements [DiscriminatorConvention].
func (c *HierarchicalDiscriminatorConvention) GetActualType(r *bsonio.Reader, nominal reflect.Type) (reflect.Type, error) {
	return getActualType(c.reg, c.elementName, r, nominal)
}

// GetDiscriminator implements [DiscriminatorConvention].
func (c *HierarchicalDiscriminatorConvention) GetDiscriminator(nominal, actual reflect.Type) (any, error) {
	alias, err := discriminatorAlias(c.reg, nominal, actual)
	if err != nil || alias == "" {
		return nil, err
	}

	if c.root == "" || c.root == alias {
		return alias, nil
	}

	return bson.NewArray(c.root, alias)
}

// discriminatorAlias returns the alias of the actual type, or an empty string if it should not be written.
func discriminatorAlias(reg *Registry, nominal, actual reflect.Type) (string, error) {
	if actual == nominal {
		return "", nil
	}

	if alias, ok := reg.TypeAlias(actual); ok {
		return alias, nil
	}

	// values in empty interfaces are read back as BSON values without discriminators
	if nominal.Kind() == reflect.Interface && nominal.NumMethod() == 0 {
		return "", nil
	}

	t := actual
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Name() == "" {
		return "", lazyerrors.Errorf("unnamed type %s can't be discriminated: %w", actual, bson.ErrConfiguration)
	}

	return t.Name(), nil
}

// getActualType implements GetActualType for both conventions.
func getActualType(reg *Registry, elementName string, r *bsonio.Reader, nominal reflect.Type) (reflect.Type, error) {
	if nominal.Kind() != reflect.Interface || r.CurrentType() != bson.TagDocument {
		return nominal, nil
	}

	alias, found, err := peekDiscriminator(r, elementName)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if !found {
		return nominal, nil
	}

	t, ok := reg.LookupType(alias)
	if !ok {
		return nil, lazyerrors.Errorf("%q: %w", alias, ErrUnknownDiscriminator)
	}

	switch {
	case t.Implements(nominal):
		return t, nil
	case t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(nominal):
		return reflect.PointerTo(t), nil
	default:
		return nil, lazyerrors.Errorf("%s (%q) does not implement %s: %w", t, alias, nominal, bson.ErrFormat)
	}
}

// peekDiscriminator reads the discriminator value of the current document
// without changing the reader position.
func peekDiscriminator(r *bsonio.Reader, elementName string) (string, bool, error) {
	bm := r.Bookmark()
	defer r.ReturnToBookmark(bm)

	if err := r.ReadStartDocument(); err != nil {
		return "", false, lazyerrors.Error(err)
	}

	found, err := r.FindElement(elementName)
	if err != nil || !found {
		return "", false, err
	}

	v, err := r.ReadValue()
	if err != nil {
		return "", false, lazyerrors.Error(err)
	}

	s, err := discriminatorString(v)
	if err != nil {
		return "", false, lazyerrors.Error(err)
	}

	return s, true, nil
}

// discriminatorString returns the type alias from the discriminator value.
//
// For arrays written by the hierarchical convention, the last element is used.
func discriminatorString(v any) (string, error) {
	if arr, ok := v.(*bson.Array); ok && arr.Len() > 0 {
		v = arr.Get(arr.Len() - 1)
	}

	s, ok := v.(string)
	if !ok {
		return "", lazyerrors.Errorf("invalid discriminator %s: %w", bson.TagOf(v), bson.ErrFormat)
	}

	return s, nil
}

// check interfaces
var (
	_ DiscriminatorConvention = (*ScalarDiscriminatorConvention)(nil)
	_ DiscriminatorConvention = (*HierarchicalDiscriminatorConvention)(nil)
)
