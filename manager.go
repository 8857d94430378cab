/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suparena/kvstore/datastore"
	"github.com/suparena/kvstore/errors"
	"github.com/suparena/kvstore/persistence"
	"github.com/suparena/kvstore/storagemodels"
)

const (
	// DefaultStorageDir is where store files live unless configured otherwise.
	DefaultStorageDir = "store"

	// FileExtension is appended to store file names that lack it.
	FileExtension = ".json"

	// ValueAttribute is the implicit attribute used by the single-value
	// Put/Get/Remove helpers.
	ValueAttribute = "value"
)

// StoreManager owns the named stores of a process. Its lock guards only the
// token to Store table; each Store carries its own lock, so operations on
// different tokens run in parallel.
type StoreManager struct {
	mu         sync.RWMutex
	stores     map[string]*datastore.Store
	storageDir string
	codec      *persistence.Codec
	logger     *zap.Logger
	parallel   int
}

// ManagerOption configures a StoreManager.
type ManagerOption func(*StoreManager)

// WithStorageDir sets the directory relative store file names resolve into.
func WithStorageDir(dir string) ManagerOption {
	return func(m *StoreManager) {
		m.storageDir = dir
	}
}

// WithLogger sets the manager logger. The default codec logs through it too.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *StoreManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCodec replaces the persistence codec.
func WithCodec(codec *persistence.Codec) ManagerOption {
	return func(m *StoreManager) {
		m.codec = codec
	}
}

// WithParallelism bounds the number of concurrent saves/loads in SaveAll and
// LoadAll (default 4).
func WithParallelism(n int) ManagerOption {
	return func(m *StoreManager) {
		if n > 0 {
			m.parallel = n
		}
	}
}

// NewStoreManager creates an empty manager.
func NewStoreManager(opts ...ManagerOption) *StoreManager {
	m := &StoreManager{
		stores:     make(map[string]*datastore.Store),
		storageDir: DefaultStorageDir,
		logger:     zap.NewNop(),
		parallel:   4,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.codec == nil {
		m.codec = persistence.NewCodec(persistence.WithLogger(m.logger))
	}
	return m
}

// GetOrCreateStore returns the store for token, creating an empty one on
// first use.
func (m *StoreManager) GetOrCreateStore(token string) *datastore.Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.stores[token]; exists {
		return s
	}
	s := datastore.NewStore()
	m.stores[token] = s
	m.logger.Debug("store created", zap.String("token", token))
	return s
}

// Lookup returns the store for token without creating it.
func (m *StoreManager) Lookup(token string) (*datastore.Store, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stores[token]
	return s, ok
}

// Put stores value under key as the single "value" attribute, creating the
// store if needed.
func (m *StoreManager) Put(token, key, value string) error {
	return m.GetOrCreateStore(token).Put(key, []storagemodels.AttributePair{{Name: ValueAttribute, Value: value}})
}

// Get returns the "value" attribute of key in its canonical text form. Keys
// written through the general attribute API without a "value" attribute are
// rendered whole.
func (m *StoreManager) Get(token, key string) (string, error) {
	s, ok := m.Lookup(token)
	if !ok {
		return "", errors.NewKeyNotFoundError("store", token)
	}
	view, ok := s.Get(key)
	if !ok {
		return "", errors.NewKeyNotFoundError("key", key)
	}
	if v, ok := view.Attribute(ValueAttribute); ok {
		return storagemodels.FormatAttributeValue(v), nil
	}
	return view.String(), nil
}

// GetAttribute returns one attribute of key.
func (m *StoreManager) GetAttribute(token, key, name string) (storagemodels.AttributeValue, error) {
	s, ok := m.Lookup(token)
	if !ok {
		return nil, errors.NewKeyNotFoundError("store", token)
	}
	view, ok := s.Get(key)
	if !ok {
		return nil, errors.NewKeyNotFoundError("key", key)
	}
	v, ok := view.Attribute(name)
	if !ok {
		return nil, errors.NewAttributeNotFoundError(name, key)
	}
	return v, nil
}

// Remove deletes key from the store for token.
func (m *StoreManager) Remove(token, key string) error {
	s, ok := m.Lookup(token)
	if !ok {
		return errors.NewKeyNotFoundError("store", token)
	}
	if !s.Delete(key) {
		return errors.NewKeyNotFoundError("key", key)
	}
	return nil
}

// ResolvePath maps a store file name to a path: an empty name becomes
// "<token>.json", the .json extension is added when missing and relative
// names are placed under the storage directory.
func (m *StoreManager) ResolvePath(token, filename string) string {
	name := filename
	if name == "" {
		name = token
	}
	if !strings.HasSuffix(name, FileExtension) {
		name += FileExtension
	}
	if filepath.IsAbs(name) || m.storageDir == "" {
		return name
	}

	dir := filepath.Clean(m.storageDir)
	clean := filepath.Clean(name)
	if clean == dir || strings.HasPrefix(clean, dir+string(filepath.Separator)) {
		return clean
	}
	return filepath.Join(dir, clean)
}

// SaveStore writes the store for token to filename (see ResolvePath).
func (m *StoreManager) SaveStore(token, filename string) error {
	s, ok := m.Lookup(token)
	if !ok {
		return errors.NewKeyNotFoundError("store", token)
	}
	path := m.ResolvePath(token, filename)
	if err := m.codec.Save(s, path); err != nil {
		return err
	}
	m.logger.Info("store saved", zap.String("token", token), zap.String("path", path))
	return nil
}

// LoadStore replaces the store for token with the contents of filename,
// creating the store if needed. A missing file leaves the store unchanged.
func (m *StoreManager) LoadStore(token, filename string) error {
	s := m.GetOrCreateStore(token)
	path := m.ResolvePath(token, filename)
	if err := m.codec.Load(s, path); err != nil {
		return err
	}
	m.logger.Info("store loaded", zap.String("token", token), zap.String("path", path), zap.Int("keys", s.Size()))
	return nil
}

// SaveIfAutosave saves the store when its autosave flag is set and reports
// whether it did. Mutating front ends call it after each write.
func (m *StoreManager) SaveIfAutosave(token, filename string) (bool, error) {
	s, ok := m.Lookup(token)
	if !ok {
		return false, errors.NewKeyNotFoundError("store", token)
	}
	if !s.Autosave() {
		return false, nil
	}
	if err := m.SaveStore(token, filename); err != nil {
		return false, err
	}
	return true, nil
}

// SaveAll writes every store to its default file.
func (m *StoreManager) SaveAll(ctx context.Context) error {
	tokens := m.Tokens()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)
	for _, token := range tokens {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := m.SaveStore(token, "")
			if errors.IsNotFound(err) {
				// removed since the token list was taken
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// LoadAll loads every store file found in the storage directory, using the
// file name without extension as token. A missing directory loads nothing.
func (m *StoreManager) LoadAll(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(m.storageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewPersistenceError("scan", m.storageDir, err)
	}

	var tokens []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, FileExtension) {
			continue
		}
		tokens = append(tokens, strings.TrimSuffix(name, FileExtension))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)
	for _, token := range tokens {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return m.LoadStore(token, "")
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Tokens returns the tokens of all stores in sorted order.
func (m *StoreManager) Tokens() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tokens := make([]string, 0, len(m.stores))
	for token := range m.stores {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// RemoveStore drops the store for token and reports whether it existed.
func (m *StoreManager) RemoveStore(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.stores[token]; !exists {
		return false
	}
	delete(m.stores, token)
	return true
}

// ClearAllStores drops every store.
func (m *StoreManager) ClearAllStores() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores = make(map[string]*datastore.Store)
}
