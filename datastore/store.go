/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"sort"
	"sync"

	"github.com/suparena/kvstore/registry"
	"github.com/suparena/kvstore/storagemodels"
)

// Store is one isolated key to ValueObject namespace with its own type
// history. Every public method holds the store lock for its whole duration.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*ValueObject
	registry *registry.TypeRegistry
	autosave bool
}

// NewStore creates an empty store with an empty TypeRegistry.
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*ValueObject),
		registry: registry.NewTypeRegistry(),
	}
}

// Get returns a read-only copy of the value stored under key.
func (s *Store) Get(key string) (ValueView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vo, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return vo.Clone(), true
}

// Put builds a value from raw pairs and replaces any entry under key. On
// error the previous entry and the registry are left untouched.
func (s *Store) Put(key string, pairs []storagemodels.AttributePair) error {
	if err := storagemodels.CheckUTF8(key, "UTF-8 key"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vo, err := BuildValueObject(s.registry, pairs)
	if err != nil {
		return err
	}
	s.entries[key] = vo
	return nil
}

// PutAttributes is Put for already-typed attributes. The persisted type is
// authoritative; nothing is re-inferred from text.
func (s *Store) PutAttributes(key string, attrs []storagemodels.Attribute) error {
	if err := storagemodels.CheckUTF8(key, "UTF-8 key"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vo, err := BuildTypedValueObject(s.registry, attrs)
	if err != nil {
		return err
	}
	s.entries[key] = vo
	return nil
}

// PutObject installs a copy of vo under key after checking every attribute
// against this store's registry.
func (s *Store) PutObject(key string, vo *ValueObject) error {
	if err := storagemodels.CheckUTF8(key, "UTF-8 key"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := vo.Clone()
	if err := clone.bind(s.registry); err != nil {
		return err
	}
	s.entries[key] = clone
	return nil
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		return false
	}
	delete(s.entries, key)
	return true
}

// Search returns the sorted keys whose attribute matches value in its
// canonical string form.
func (s *Store) Search(attribute, value string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]string, 0)
	for key, vo := range s.entries {
		if v, ok := vo.Attribute(attribute); ok && storagemodels.FormatAttributeValue(v) == value {
			result = append(result, key)
		}
	}
	sort.Strings(result)
	return result
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedKeys()
}

// Size returns the number of entries.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// IsEmpty reports whether the store has no entries.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) == 0
}

// Clear drops every entry and the type history. The autosave flag is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*ValueObject)
	s.registry.Clear()
}

// SetAutosave sets the autosave flag.
func (s *Store) SetAutosave(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autosave = enabled
}

// Autosave returns the autosave flag.
func (s *Store) Autosave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autosave
}

// Types returns a copy of the store's type registry.
func (s *Store) Types() map[string]storagemodels.AttributeType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Snapshot()
}

// Stats summarizes the store.
func (s *Store) Stats() storagemodels.StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	attributes := 0
	for _, vo := range s.entries {
		attributes += vo.Len()
	}
	return storagemodels.StoreStats{
		Keys:       len(s.entries),
		Attributes: attributes,
		Types:      s.registry.Snapshot(),
		Autosave:   s.autosave,
	}
}

// Snapshot copies the contents in sorted key order together with the
// autosave flag, all under one lock acquisition.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.sortedKeys()
	entries := make([]Entry, len(keys))
	for i, key := range keys {
		entries[i] = Entry{Key: key, Value: s.entries[key].Clone()}
	}
	return Snapshot{Entries: entries, Autosave: s.autosave}
}

// ReplaceWith moves the contents of staging into s, replacing everything s
// held, and leaves staging empty. The registry of s is rebuilt from the
// registrations of staging, so type history follows the order in which
// staging was filled.
func (s *Store) ReplaceWith(staging *Store) {
	if staging == s {
		return
	}

	staging.mu.Lock()
	entries := staging.entries
	types := staging.registry.Snapshot()
	autosave := staging.autosave
	staging.entries = make(map[string]*ValueObject)
	staging.registry.Clear()
	staging.autosave = false
	staging.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.Clear()
	for name, t := range types {
		// staging registrations are mutually consistent
		_ = s.registry.ValidateAndRegisterType(name, t)
	}
	for _, vo := range entries {
		vo.registry = s.registry
	}
	s.entries = entries
	s.autosave = autosave
}

func (s *Store) sortedKeys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
