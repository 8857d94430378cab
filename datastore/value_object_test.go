/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/kvstore/errors"
	"github.com/suparena/kvstore/registry"
	"github.com/suparena/kvstore/storagemodels"
)

func TestBuildValueObject(t *testing.T) {
	reg := registry.NewTypeRegistry()

	vo, err := BuildValueObject(reg, storagemodels.Pairs("name", "alice", "age", "30", "score", "9.5", "active", "true"))
	require.NoError(t, err)
	assert.Equal(t, 4, vo.Len())
	assert.Equal(t, "active: true, age: 30, name: alice, score: 9.5", vo.String())

	types := reg.Snapshot()
	assert.Equal(t, storagemodels.TypeString, types["name"])
	assert.Equal(t, storagemodels.TypeInteger, types["age"])
	assert.Equal(t, storagemodels.TypeFloat, types["score"])
	assert.Equal(t, storagemodels.TypeBoolean, types["active"])
}

func TestBuildValueObjectValidatesBeforeCommit(t *testing.T) {
	reg := registry.NewTypeRegistry()
	require.NoError(t, reg.ValidateAndRegisterType("age", storagemodels.TypeInteger))

	vo, err := BuildValueObject(reg, storagemodels.Pairs("city", "Paris", "age", "unknown"))
	require.Error(t, err)
	assert.Nil(t, vo)

	var tm *errors.TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "age", tm.Attribute)
	assert.Equal(t, "integer", tm.Expected)
	assert.Equal(t, "string", tm.Actual)

	assert.False(t, reg.IsRegistered("city"))
}

func TestSetAttribute(t *testing.T) {
	reg := registry.NewTypeRegistry()
	vo := NewValueObject(reg)

	require.NoError(t, vo.SetAttribute("n", &storagemodels.AttributeValueMemberI{Value: 1}))
	require.NoError(t, vo.SetAttribute("n", &storagemodels.AttributeValueMemberI{Value: 2}))
	assert.True(t, errors.IsTypeMismatch(vo.SetAttribute("n", &storagemodels.AttributeValueMemberF{Value: 2.5})))
	assert.True(t, errors.IsInvalidValue(vo.SetAttribute("bad", nil)))
	assert.True(t, errors.IsInvalidValue(vo.SetAttribute("nan", &storagemodels.AttributeValueMemberF{Value: math.NaN()})))

	v, ok := vo.Attribute("n")
	require.True(t, ok)
	assert.Equal(t, &storagemodels.AttributeValueMemberI{Value: 2}, v)
	assert.False(t, vo.HasAttribute("bad"))
	assert.False(t, reg.IsRegistered("bad"))
}

func TestSetAttributeStoresCopy(t *testing.T) {
	vo := NewValueObject(registry.NewTypeRegistry())
	in := &storagemodels.AttributeValueMemberS{Value: "a"}
	require.NoError(t, vo.SetAttribute("s", in))
	in.Value = "b"

	v, _ := vo.Attribute("s")
	assert.Equal(t, "a", v.(*storagemodels.AttributeValueMemberS).Value)
}

func TestCloneIsUnbound(t *testing.T) {
	reg := registry.NewTypeRegistry()
	vo, err := BuildValueObject(reg, storagemodels.Pairs("n", "1"))
	require.NoError(t, err)

	clone := vo.Clone()
	require.NoError(t, clone.SetAttribute("n", &storagemodels.AttributeValueMemberS{Value: "x"}))

	// the original registry never saw the clone's write
	got, _ := reg.RegisteredType("n")
	assert.Equal(t, storagemodels.TypeInteger, got)
	assert.Equal(t, "n: 1", vo.String())

	other := registry.NewTypeRegistry()
	require.NoError(t, clone.bind(other))
	got, _ = other.RegisteredType("n")
	assert.Equal(t, storagemodels.TypeString, got)
}

func TestEmptyValueObjectString(t *testing.T) {
	assert.Equal(t, "", NewValueObject(nil).String())
}
