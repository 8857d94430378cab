/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package persistence

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"

	"github.com/suparena/kvstore/datastore"
	"github.com/suparena/kvstore/errors"
	"github.com/suparena/kvstore/storagemodels"
)

// AutosaveField is the top-level document field holding the autosave flag.
const AutosaveField = "autosave"

// legacyStoreField wraps the entries in documents written by older tools:
// {"store": {..., "autosave": true}}.
const legacyStoreField = "store"

var (
	errMalformed = stderrors.New("malformed document")
	errNotObject = stderrors.New("top-level value is not an object")
)

// Codec serializes stores to JSON documents and back. Save and Load calls on
// one Codec that target the same path are serialized; different paths
// proceed in parallel.
type Codec struct {
	mu       sync.Mutex
	paths    map[string]*pathLock
	logger   *zap.Logger
	fileMode os.FileMode
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger used for save/load diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFileMode sets the permission bits of written files (default 0644).
func WithFileMode(mode os.FileMode) Option {
	return func(c *Codec) {
		c.fileMode = mode
	}
}

// NewCodec creates a Codec.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		paths:    make(map[string]*pathLock),
		logger:   zap.NewNop(),
		fileMode: 0o644,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Serialize renders store as
//
//	{
//	  "<key>": {"<attr>": <value>, ...},
//	  ...
//	  "autosave": true|false
//	}
//
// Keys and attribute names are written in sorted order.
func (c *Codec) Serialize(store *datastore.Store) ([]byte, error) {
	snap := store.Snapshot()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, entry := range snap.Entries {
		if err := writeString(&buf, entry.Key); err != nil {
			return nil, errors.NewPersistenceError("encode", "", err)
		}
		buf.WriteString(":{")
		for i, name := range entry.Value.AttributeNames() {
			if i > 0 {
				buf.WriteByte(',')
			}
			v, _ := entry.Value.Attribute(name)
			if err := writeString(&buf, name); err != nil {
				return nil, errors.NewPersistenceError("encode", "", err)
			}
			buf.WriteByte(':')
			if err := writeValue(&buf, v); err != nil {
				return nil, errors.NewPersistenceError("encode", "", fmt.Errorf("key %q attribute %q: %w", entry.Key, name, err))
			}
		}
		buf.WriteString("},")
	}
	buf.WriteString(strconv.Quote(AutosaveField))
	buf.WriteByte(':')
	buf.WriteString(strconv.FormatBool(snap.Autosave))
	buf.WriteByte('}')

	return pretty.Pretty(buf.Bytes()), nil
}

// Deserialize replaces the contents of into with the document in data.
// Entries are replayed in document order through typed writes, so the type
// history after a load depends only on the order of the file. The document
// is decoded into a staging store first; on error into is left unchanged.
func (c *Codec) Deserialize(data []byte, into *datastore.Store) error {
	if !gjson.ValidBytes(data) {
		return errors.NewPersistenceError("decode", "", errMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return errors.NewPersistenceError("decode", "", errNotObject)
	}
	body := unwrapLegacy(root)

	staging := datastore.NewStore()
	var decodeErr error
	body.ForEach(func(k, v gjson.Result) bool {
		key := k.String()

		if key == AutosaveField && (v.Type == gjson.True || v.Type == gjson.False) {
			staging.SetAutosave(v.Bool())
			return true
		}
		if !v.IsObject() {
			decodeErr = fmt.Errorf("entry %q is not an object", key)
			return false
		}

		attrs, err := decodeAttributes(v)
		if err != nil {
			decodeErr = fmt.Errorf("entry %q: %w", key, err)
			return false
		}
		if err := staging.PutAttributes(key, attrs); err != nil {
			decodeErr = fmt.Errorf("entry %q: %w", key, err)
			return false
		}
		return true
	})
	if decodeErr != nil {
		return errors.NewPersistenceError("decode", "", decodeErr)
	}

	into.ReplaceWith(staging)
	return nil
}

// Save writes store to path, creating parent directories and replacing any
// existing file.
func (c *Codec) Save(store *datastore.Store, path string) error {
	unlock := c.lockPath(path)
	defer unlock()

	data, err := c.Serialize(store)
	if err != nil {
		return withPath(err, "save", path)
	}
	if err := writeFile(path, data, c.fileMode); err != nil {
		return errors.NewPersistenceError("save", path, err)
	}

	c.logger.Debug("store saved", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// Load replaces the contents of store with the document at path. A missing
// file is not an error and leaves store unchanged.
func (c *Codec) Load(store *datastore.Store, path string) error {
	unlock := c.lockPath(path)
	defer unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Debug("store file missing, nothing to load", zap.String("path", path))
			return nil
		}
		return errors.NewPersistenceError("load", path, err)
	}

	if err := c.Deserialize(data, store); err != nil {
		return withPath(err, "load", path)
	}

	c.logger.Debug("store loaded", zap.String("path", path), zap.Int("keys", store.Size()))
	return nil
}

// pathLock is held by every Save or Load waiting on one path. The entry is
// dropped from Codec.paths when the last holder releases it.
type pathLock struct {
	mu   sync.Mutex
	refs int
}

func (c *Codec) lockPath(path string) func() {
	key := filepath.Clean(path)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}

	c.mu.Lock()
	l, ok := c.paths[key]
	if !ok {
		l = &pathLock{}
		c.paths[key] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.paths, key)
		}
		c.mu.Unlock()
	}
}

func unwrapLegacy(root gjson.Result) gjson.Result {
	fields := 0
	var inner gjson.Result
	root.ForEach(func(k, v gjson.Result) bool {
		fields++
		if k.String() == legacyStoreField {
			inner = v
		}
		return fields < 2
	})
	flag := inner.Get(AutosaveField).Type
	if fields == 1 && inner.IsObject() && (flag == gjson.True || flag == gjson.False) {
		return inner
	}
	return root
}

func decodeAttributes(obj gjson.Result) ([]storagemodels.Attribute, error) {
	var attrs []storagemodels.Attribute
	var err error
	obj.ForEach(func(k, v gjson.Result) bool {
		var value storagemodels.AttributeValue
		value, err = decodeValue(v)
		if err != nil {
			err = fmt.Errorf("attribute %q: %w", k.String(), err)
			return false
		}
		attrs = append(attrs, storagemodels.Attribute{Name: k.String(), Value: value})
		return true
	})
	return attrs, err
}

func decodeValue(v gjson.Result) (storagemodels.AttributeValue, error) {
	switch v.Type {
	case gjson.String:
		return &storagemodels.AttributeValueMemberS{Value: v.Str}, nil
	case gjson.True:
		return &storagemodels.AttributeValueMemberB{Value: true}, nil
	case gjson.False:
		return &storagemodels.AttributeValueMemberB{Value: false}, nil
	case gjson.Number:
		n, err := storagemodels.ParseNumber(v.Raw)
		if err != nil {
			// out of range for its type, keep the text
			return &storagemodels.AttributeValueMemberS{Value: v.Raw}, nil
		}
		return n, nil
	default:
		return nil, errors.NewInvalidValueError(v.Raw, "string, number or boolean")
	}
}

func writeValue(buf *bytes.Buffer, v storagemodels.AttributeValue) error {
	if _, err := storagemodels.TypeOf(v); err != nil {
		return err
	}
	switch tv := v.(type) {
	case *storagemodels.AttributeValueMemberS:
		return writeString(buf, tv.Value)
	case *storagemodels.AttributeValueMemberB:
		buf.WriteString(strconv.FormatBool(tv.Value))
	default:
		n, _ := storagemodels.FormatNumber(v)
		buf.WriteString(n)
	}
	return nil
}

// writeString appends s as a JSON string without HTML escaping.
func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates every value with a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}

func writeFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// withPath stamps op and path onto a PersistenceError produced by the
// in-memory codec.
func withPath(err error, op, path string) error {
	var pe *errors.PersistenceError
	if stderrors.As(err, &pe) {
		return errors.NewPersistenceError(op, path, pe.Err)
	}
	return errors.NewPersistenceError(op, path, err)
}
