/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"sync"

	"github.com/suparena/kvstore/errors"
	"github.com/suparena/kvstore/storagemodels"
)

// TypeRegistry maps attribute names to the type they were first written with.
// Each store owns exactly one registry; a name's type never changes until
// the registry is cleared.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]storagemodels.AttributeType
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string]storagemodels.AttributeType),
	}
}

// ValidateAndRegisterType registers t for name on first sight. A later call
// with the same type is a no-op; a different type yields a TypeMismatchError.
func (r *TypeRegistry) ValidateAndRegisterType(name string, t storagemodels.AttributeType) error {
	if !t.Valid() {
		return errors.NewInvalidValueError(t.String(), "attribute type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.types[name]; exists {
		if registered != t {
			return errors.NewTypeMismatchError(name, registered.String(), t.String())
		}
		return nil
	}
	r.types[name] = t
	return nil
}

// Validate checks t against the registration for name without registering it.
func (r *TypeRegistry) Validate(name string, t storagemodels.AttributeType) error {
	if !t.Valid() {
		return errors.NewInvalidValueError(t.String(), "attribute type")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if registered, exists := r.types[name]; exists && registered != t {
		return errors.NewTypeMismatchError(name, registered.String(), t.String())
	}
	return nil
}

// RegisteredType returns the type registered for name, if any.
func (r *TypeRegistry) RegisteredType(name string) (storagemodels.AttributeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// IsRegistered reports whether name has a registered type.
func (r *TypeRegistry) IsRegistered(name string) bool {
	_, ok := r.RegisteredType(name)
	return ok
}

// Snapshot returns a copy of all registrations.
func (r *TypeRegistry) Snapshot() map[string]storagemodels.AttributeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]storagemodels.AttributeType, len(r.types))
	for k, v := range r.types {
		result[k] = v
	}
	return result
}

// Len returns the number of registered attribute names.
func (r *TypeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Clear drops all registrations.
func (r *TypeRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[string]storagemodels.AttributeType)
}
