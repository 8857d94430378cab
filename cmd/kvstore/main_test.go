/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/suparena/kvstore"
	"github.com/suparena/kvstore/config"
	"github.com/suparena/kvstore/datastore/ddb"
	"github.com/suparena/kvstore/datastore/mock"
	"github.com/suparena/kvstore/errors"
)

type harness struct {
	t   *testing.T
	dir string
	db  *mock.DynamoDB
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	t.Setenv("KVSTORE_STORAGE_DIR", filepath.Join(dir, "store"))
	t.Setenv("KVSTORE_AUTOSAVE", "true")
	t.Setenv("KVSTORE_LOG_LEVEL", "error")
	return &harness{t: t, dir: dir, db: mock.New()}
}

// run executes one command line against a fresh command tree.
func (h *harness) run(args ...string) (string, error) {
	c := &cli{
		newSnapshots: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ddb.SnapshotStore, error) {
			return ddb.NewSnapshotStore(h.db, cfg.DynamoDB.Table, ddb.WithLogger(logger)), nil
		},
	}
	cmd := buildRootCmd(c)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(h.dir, "kvstore.yaml"), "--store", "tenant"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func TestPutGetAcrossInvocations(t *testing.T) {
	h := newHarness(t)

	h.mustRun("put", "user:1", "name:alice", "age:30", "active:true")
	_, err := os.Stat(filepath.Join(h.dir, "store", "tenant.json"))
	require.NoError(t, err)

	out := h.mustRun("get", "user:1")
	assert.Equal(t, "user:1: {active: true, age: 30, name: alice}\n", out)

	out = h.mustRun("--json", "get", "user:1")
	assert.JSONEq(t, `{"active": true, "age": 30, "name": "alice"}`, out)

	h.mustRun("put", "user:2", "name:bob", "age:30")
	assert.Equal(t, "user:1\nuser:2\n", h.mustRun("search", "age", "30"))
	assert.Equal(t, "user:1\nuser:2\n", h.mustRun("keys"))
}

func TestTypeMismatchIsReported(t *testing.T) {
	h := newHarness(t)
	h.mustRun("put", "user:1", "age:30")

	_, err := h.run("put", "user:2", "age:thirty")
	require.Error(t, err)
	assert.True(t, errors.IsTypeMismatch(err))

	// the failed put did not reach the file
	assert.Equal(t, "user:1\n", h.mustRun("keys"))
}

func TestGetSingleAttribute(t *testing.T) {
	h := newHarness(t)
	h.mustRun("put", "user:1", "name:alice", "score:9.0")

	assert.Equal(t, "9\n", h.mustRun("get", "user:1", "score"))
	assert.Equal(t, "\"alice\"\n", h.mustRun("--json", "get", "user:1", "name"))

	_, err := h.run("get", "user:1", "email")
	assert.True(t, errors.IsAttributeNotFound(err))
}

func TestGetMissingKey(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("get", "absent")
	assert.True(t, errors.IsNotFound(err))

	out := h.mustRun("delete", "absent")
	assert.Contains(t, out, "not found")
}

func TestInvalidAttributeArgument(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("put", "k", "novalue")
	assert.ErrorContains(t, err, "expected name:value")

	// the value may itself contain colons
	h.mustRun("put", "k", "url:http://example.com")
	assert.Contains(t, h.mustRun("get", "k"), "url: http://example.com")
}

func TestAutosaveControl(t *testing.T) {
	h := newHarness(t)

	h.mustRun("--no-autosave", "put", "k", "v:1")
	_, err := h.run("get", "k")
	assert.True(t, errors.IsNotFound(err))

	h.mustRun("autosave", "off")
	h.mustRun("put", "k", "v:1")
	_, err = h.run("get", "k")
	assert.True(t, errors.IsNotFound(err))

	out := h.mustRun("stats")
	assert.Contains(t, out, "autosave:   false")

	h.mustRun("autosave", "on")
	h.mustRun("put", "k", "v:1")
	h.mustRun("get", "k")

	_, err = h.run("autosave", "maybe")
	assert.Error(t, err)
}

func TestTypesAndInspect(t *testing.T) {
	h := newHarness(t)
	h.mustRun("put", "user:1", "name:alice", "score:9.5", "active:false")

	assert.JSONEq(t, `{"active": "boolean", "name": "string", "score": "float"}`, h.mustRun("--json", "types"))
	assert.Equal(t, "active: boolean\nname: string\nscore: float\n", h.mustRun("types"))

	out := h.mustRun("inspect", "user:1")
	assert.Contains(t, out, `name = "alice" (string)`)
	assert.Contains(t, out, "score = 9.5 (float)")

	assert.JSONEq(t, `{"keys": 1, "attributes": 3, "autosave": true, "types": {"active": "boolean", "name": "string", "score": "float"}}`,
		h.mustRun("--json", "stats"))
}

func TestSaveLoadAndClear(t *testing.T) {
	h := newHarness(t)
	h.mustRun("put", "k", "n:1")
	h.mustRun("save", "backup")

	h.mustRun("clear")
	assert.Empty(t, h.mustRun("keys"))

	out := h.mustRun("load", "backup")
	assert.Contains(t, out, "loaded 1 keys")
	assert.Equal(t, "k\n", h.mustRun("keys"))
}

func TestLoadMissingFileKeepsStore(t *testing.T) {
	h := newHarness(t)
	h.mustRun("put", "k", "n:1")

	_, err := h.run("load", "typo-does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.Equal(t, "k\n", h.mustRun("keys"))
	_, err = os.Stat(filepath.Join(h.dir, "store", "typo-does-not-exist.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestTokens(t *testing.T) {
	h := newHarness(t)
	h.mustRun("put", "k", "n:1")
	h.mustRun("--store", "other", "put", "a", "n:x")
	h.mustRun("--store", "other", "put", "b", "n:y")

	out := h.mustRun("--json", "tokens")
	assert.JSONEq(t, `{"tenant": 1, "other": 2}`, out)
}

func TestBackupRestore(t *testing.T) {
	h := newHarness(t)
	h.mustRun("put", "user:1", "name:alice", "age:30")

	out := h.mustRun("backup")
	assert.Contains(t, out, "1 keys")

	h.mustRun("clear")
	out = h.mustRun("restore")
	assert.Contains(t, out, "restored 1 keys")
	assert.Equal(t, "user:1\n", h.mustRun("keys"))

	_, err := h.run("--store", "never-backed-up", "restore")
	assert.True(t, errors.IsNotFound(err))
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, kvstore.GetVersionInfo().String()+"\n", h.mustRun("version"))

	out := h.mustRun("--json", "version")
	assert.Equal(t, kvstore.Version, gjson.Get(out, "version").String())
	assert.Equal(t, runtime.Version(), gjson.Get(out, "goVersion").String())
}

func TestJSONStatus(t *testing.T) {
	h := newHarness(t)
	assert.JSONEq(t, `{"status": "success", "key": "a.b"}`, h.mustRun("--json", "put", "a.b", "n:1"))
	assert.JSONEq(t, `{"deleted": true}`, h.mustRun("--json", "delete", "a.b"))
	assert.JSONEq(t, `{"deleted": false}`, h.mustRun("--json", "delete", "a.b"))
}
