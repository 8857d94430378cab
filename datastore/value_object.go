/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"sort"
	"strings"

	"github.com/suparena/kvstore/errors"
	"github.com/suparena/kvstore/registry"
	"github.com/suparena/kvstore/storagemodels"
)

// ValueObject is a named bag of typed attributes bound to a store's
// TypeRegistry. Every write is type-checked against that registry.
type ValueObject struct {
	attributes map[string]storagemodels.AttributeValue
	registry   *registry.TypeRegistry
}

// NewValueObject creates an empty value bound to reg. A nil reg leaves the
// value unbound: writes are not type-checked until the value is installed
// with Store.PutObject, which validates every attribute.
func NewValueObject(reg *registry.TypeRegistry) *ValueObject {
	return &ValueObject{
		attributes: make(map[string]storagemodels.AttributeValue),
		registry:   reg,
	}
}

// BuildValueObject coerces each raw pair and checks the whole set against reg
// before registering anything. Two pairs in the same call that coerce to
// different types for one name are also rejected. On error reg is unchanged.
func BuildValueObject(reg *registry.TypeRegistry, pairs []storagemodels.AttributePair) (*ValueObject, error) {
	attrs := make([]storagemodels.Attribute, len(pairs))
	for i, pair := range pairs {
		attrs[i] = storagemodels.Attribute{Name: pair.Name, Value: storagemodels.ParseAttributeValue(pair.Value)}
	}
	return BuildTypedValueObject(reg, attrs)
}

// BuildTypedValueObject is BuildValueObject for already-typed attributes.
// Attributes are validated and then registered in the given order.
func BuildTypedValueObject(reg *registry.TypeRegistry, attrs []storagemodels.Attribute) (*ValueObject, error) {
	seen := make(map[string]storagemodels.AttributeType, len(attrs))

	for _, a := range attrs {
		if err := storagemodels.CheckUTF8(a.Name, "UTF-8 attribute name"); err != nil {
			return nil, err
		}
		t, err := storagemodels.TypeOf(a.Value)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[a.Name]; ok && prev != t {
			return nil, errors.NewTypeMismatchError(a.Name, prev.String(), t.String())
		}
		seen[a.Name] = t

		if reg != nil {
			if err := reg.Validate(a.Name, t); err != nil {
				return nil, err
			}
		}
	}

	vo := NewValueObject(reg)
	for _, a := range attrs {
		if err := vo.SetAttribute(a.Name, a.Value); err != nil {
			return nil, err
		}
	}
	return vo, nil
}

// SetAttribute type-checks v against the bound registry and stores a copy.
func (vo *ValueObject) SetAttribute(name string, v storagemodels.AttributeValue) error {
	t, err := storagemodels.TypeOf(v)
	if err != nil {
		return err
	}
	if vo.registry != nil {
		if err := vo.registry.ValidateAndRegisterType(name, t); err != nil {
			return err
		}
	}
	vo.attributes[name] = storagemodels.CloneAttributeValue(v)
	return nil
}

// Attribute returns the named attribute.
func (vo *ValueObject) Attribute(name string) (storagemodels.AttributeValue, bool) {
	v, ok := vo.attributes[name]
	return v, ok
}

// HasAttribute reports whether the named attribute is present.
func (vo *ValueObject) HasAttribute(name string) bool {
	_, ok := vo.attributes[name]
	return ok
}

// AttributeNames returns the attribute names in sorted order.
func (vo *ValueObject) AttributeNames() []string {
	names := make([]string, 0, len(vo.attributes))
	for name := range vo.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Attributes returns a copy of the attribute map.
func (vo *ValueObject) Attributes() map[string]storagemodels.AttributeValue {
	result := make(map[string]storagemodels.AttributeValue, len(vo.attributes))
	for name, v := range vo.attributes {
		result[name] = storagemodels.CloneAttributeValue(v)
	}
	return result
}

// Len returns the number of attributes.
func (vo *ValueObject) Len() int {
	return len(vo.attributes)
}

// String renders the value as "name: value, name: value" sorted by name.
func (vo *ValueObject) String() string {
	var sb strings.Builder
	for i, name := range vo.AttributeNames() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(storagemodels.FormatAttributeValue(vo.attributes[name]))
	}
	return sb.String()
}

// Clone copies the attribute map by value. The copy is unbound; it must be
// installed through Store.PutObject to be checked against a registry.
func (vo *ValueObject) Clone() *ValueObject {
	return &ValueObject{attributes: vo.Attributes()}
}

// bind re-validates every attribute against reg, registers the types and
// attaches the value to reg.
func (vo *ValueObject) bind(reg *registry.TypeRegistry) error {
	names := vo.AttributeNames()
	types := make([]storagemodels.AttributeType, len(names))
	for i, name := range names {
		if err := storagemodels.CheckUTF8(name, "UTF-8 attribute name"); err != nil {
			return err
		}
		t, err := storagemodels.TypeOf(vo.attributes[name])
		if err != nil {
			return err
		}
		if err := reg.Validate(name, t); err != nil {
			return err
		}
		types[i] = t
	}
	for i, name := range names {
		if err := reg.ValidateAndRegisterType(name, types[i]); err != nil {
			return err
		}
	}
	vo.registry = reg
	return nil
}
