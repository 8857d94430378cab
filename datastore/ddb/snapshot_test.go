/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/kvstore/datastore"
	"github.com/suparena/kvstore/datastore/mock"
	"github.com/suparena/kvstore/errors"
	"github.com/suparena/kvstore/storagemodels"
)

func sampleStore(t *testing.T) *datastore.Store {
	t.Helper()
	s := datastore.NewStore()
	s.SetAutosave(true)
	require.NoError(t, s.Put("user:1", storagemodels.Pairs("name", "alice", "age", "30", "score", "9.0", "active", "true")))
	require.NoError(t, s.Put("user:2", storagemodels.Pairs("name", "bob", "age", "41")))
	require.NoError(t, s.Put("empty", nil))
	return s
}

func newTestSnapshots(db *mock.DynamoDB) *SnapshotStore {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSnapshotStore(db, "snapshots", WithPageSize(2), WithRetry(2, time.Millisecond))
	s.now = func() time.Time { return fixed }
	return s
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := mock.New()
	snapshots := newTestSnapshots(db)
	src := sampleStore(t)

	info, err := snapshots.Backup(ctx, "tenant", src)
	require.NoError(t, err)
	assert.NotEmpty(t, info.SnapshotID)
	assert.Equal(t, 3, info.Keys)
	assert.Equal(t, []string{"KEY#empty", "KEY#user:1", "KEY#user:2", "META"}, db.SortKeys("STORE#tenant"))

	dst := datastore.NewStore()
	restored, err := snapshots.Restore(ctx, "tenant", dst)
	require.NoError(t, err)
	assert.Equal(t, info.SnapshotID, restored.SnapshotID)
	assert.Equal(t, "2025-03-01T12:00:00.000Z", restored.SavedAt.String())
	assert.True(t, restored.Autosave)

	assert.Equal(t, src.Keys(), dst.Keys())
	assert.Equal(t, src.Types(), dst.Types())
	assert.True(t, dst.Autosave())

	view, ok := dst.Get("user:1")
	require.True(t, ok)
	score, _ := view.Attribute("score")
	assert.Equal(t, &storagemodels.AttributeValueMemberF{Value: 9}, score)
}

func TestBackupItemLayout(t *testing.T) {
	db := mock.New()
	_, err := newTestSnapshots(db).Backup(context.Background(), "t", sampleStore(t))
	require.NoError(t, err)

	item, ok := db.Item("STORE#t", "KEY#user:1")
	require.True(t, ok)
	attrs := item["Attributes"].(*types.AttributeValueMemberM).Value
	assert.Equal(t, &types.AttributeValueMemberN{Value: "30"}, attrs["age"])
	// DynamoDB drops the fractional zero; the tag keeps the float
	assert.Equal(t, &types.AttributeValueMemberN{Value: "9"}, attrs["score"])
	assert.Equal(t, &types.AttributeValueMemberBOOL{Value: true}, attrs["active"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "alice"}, attrs["name"])

	kinds := item["Types"].(*types.AttributeValueMemberM).Value
	assert.Equal(t, map[string]types.AttributeValue{
		"name":   &types.AttributeValueMemberS{Value: "string"},
		"age":    &types.AttributeValueMemberS{Value: "integer"},
		"score":  &types.AttributeValueMemberS{Value: "float"},
		"active": &types.AttributeValueMemberS{Value: "boolean"},
	}, kinds)

	meta, ok := db.Item("STORE#t", "META")
	require.True(t, ok)
	var decoded metaItem
	require.NoError(t, attributevalue.UnmarshalMap(meta, &decoded))
	assert.Equal(t, 3, decoded.Keys)
	assert.True(t, decoded.Autosave)
}

func TestRestoreIntegralFloats(t *testing.T) {
	ctx := context.Background()
	db := mock.New()
	snapshots := newTestSnapshots(db)

	src := datastore.NewStore()
	require.NoError(t, src.Put("a", storagemodels.Pairs("ratio", "2.0")))
	require.NoError(t, src.Put("b", storagemodels.Pairs("ratio", "0.5")))
	_, err := snapshots.Backup(ctx, "t", src)
	require.NoError(t, err)

	dst := datastore.NewStore()
	_, err = snapshots.Restore(ctx, "t", dst)
	require.NoError(t, err)
	assert.Equal(t, map[string]storagemodels.AttributeType{"ratio": storagemodels.TypeFloat}, dst.Types())
	view, ok := dst.Get("a")
	require.True(t, ok)
	v, _ := view.Attribute("ratio")
	assert.Equal(t, &storagemodels.AttributeValueMemberF{Value: 2}, v)
}

func TestDecodeEntry(t *testing.T) {
	entry := func(value types.AttributeValue, kind string) map[string]types.AttributeValue {
		item := map[string]types.AttributeValue{
			"Key":        &types.AttributeValueMemberS{Value: "k"},
			"Attributes": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{"v": value}},
		}
		if kind != "" {
			item["Types"] = &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"v": &types.AttributeValueMemberS{Value: kind},
			}}
		}
		return item
	}

	tests := []struct {
		name     string
		item     map[string]types.AttributeValue
		expected storagemodels.AttributeValue
	}{
		{"typed float", entry(&types.AttributeValueMemberN{Value: "9"}, "float"), &storagemodels.AttributeValueMemberF{Value: 9}},
		{"typed integer", entry(&types.AttributeValueMemberN{Value: "30"}, "integer"), &storagemodels.AttributeValueMemberI{Value: 30}},
		{"integer in exponent form", entry(&types.AttributeValueMemberN{Value: "3E+1"}, "integer"), &storagemodels.AttributeValueMemberI{Value: 30}},
		{"typed string", entry(&types.AttributeValueMemberS{Value: "1.0"}, "string"), &storagemodels.AttributeValueMemberS{Value: "1.0"}},
		{"untyped float text", entry(&types.AttributeValueMemberN{Value: "9.0"}, ""), &storagemodels.AttributeValueMemberF{Value: 9}},
		{"untyped integer text", entry(&types.AttributeValueMemberN{Value: "9"}, ""), &storagemodels.AttributeValueMemberI{Value: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, attrs, err := decodeEntry(tt.item)
			require.NoError(t, err)
			assert.Equal(t, "k", key)
			require.Len(t, attrs, 1)
			assert.Equal(t, tt.expected, attrs[0].Value)
		})
	}

	for name, item := range map[string]map[string]types.AttributeValue{
		"fractional integer": entry(&types.AttributeValueMemberN{Value: "9.5"}, "integer"),
		"number as string":   entry(&types.AttributeValueMemberN{Value: "9"}, "string"),
		"bool as float":      entry(&types.AttributeValueMemberBOOL{Value: true}, "float"),
		"unknown type":       entry(&types.AttributeValueMemberN{Value: "9"}, "decimal"),
	} {
		_, _, err := decodeEntry(item)
		assert.Error(t, err, name)
	}
}

func TestBackupRemovesStaleKeys(t *testing.T) {
	ctx := context.Background()
	db := mock.New()
	snapshots := newTestSnapshots(db)
	src := sampleStore(t)

	_, err := snapshots.Backup(ctx, "t", src)
	require.NoError(t, err)

	src.Delete("user:2")
	src.Delete("empty")
	_, err = snapshots.Backup(ctx, "t", src)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEY#user:1", "META"}, db.SortKeys("STORE#t"))
}

func TestTokensAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := mock.New()
	snapshots := newTestSnapshots(db)

	a := datastore.NewStore()
	require.NoError(t, a.Put("k", storagemodels.Pairs("age", "30")))
	b := datastore.NewStore()
	require.NoError(t, b.Put("k", storagemodels.Pairs("age", "thirty")))

	_, err := snapshots.Backup(ctx, "a", a)
	require.NoError(t, err)
	_, err = snapshots.Backup(ctx, "b", b)
	require.NoError(t, err)

	dst := datastore.NewStore()
	_, err = snapshots.Restore(ctx, "b", dst)
	require.NoError(t, err)
	assert.Equal(t, storagemodels.TypeString, dst.Types()["age"])

	require.NoError(t, snapshots.Delete(ctx, "b"))
	assert.Empty(t, db.SortKeys("STORE#b"))
	assert.NotEmpty(t, db.SortKeys("STORE#a"))
}

func TestRestoreMissingSnapshot(t *testing.T) {
	dst := datastore.NewStore()
	require.NoError(t, dst.Put("keep", storagemodels.Pairs("n", "1")))

	_, err := newTestSnapshots(mock.New()).Restore(context.Background(), "absent", dst)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, []string{"keep"}, dst.Keys())
}

func TestRestoreConflictLeavesTargetUnchanged(t *testing.T) {
	ctx := context.Background()
	db := mock.New()
	put := func(sk string, attrs map[string]types.AttributeValue) {
		_, err := db.PutItem(ctx, &sdk.PutItemInput{Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: "STORE#t"},
			"SK":         &types.AttributeValueMemberS{Value: sk},
			"Key":        &types.AttributeValueMemberS{Value: sk[len("KEY#"):]},
			"Attributes": &types.AttributeValueMemberM{Value: attrs},
		}})
		require.NoError(t, err)
	}
	put("KEY#a", map[string]types.AttributeValue{"n": &types.AttributeValueMemberN{Value: "1"}})
	put("KEY#b", map[string]types.AttributeValue{"n": &types.AttributeValueMemberS{Value: "one"}})

	dst := datastore.NewStore()
	require.NoError(t, dst.Put("keep", storagemodels.Pairs("n", "text")))

	_, err := newTestSnapshots(db).Restore(ctx, "t", dst)
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
	assert.True(t, errors.IsTypeMismatch(err))
	assert.Equal(t, []string{"keep"}, dst.Keys())

	// unsupported attribute kinds are rejected
	put("KEY#a", map[string]types.AttributeValue{"n": &types.AttributeValueMemberL{}})
	_, err = newTestSnapshots(db).Restore(ctx, "t", dst)
	assert.True(t, errors.IsInvalidValue(err))
}

func TestBackupErrors(t *testing.T) {
	ctx := context.Background()

	queryErr := stderrors.New("unavailable")
	_, err := newTestSnapshots(mock.New().WithQueryError(queryErr)).Backup(ctx, "t", sampleStore(t))
	assert.True(t, errors.IsPersistence(err))
	assert.ErrorIs(t, err, queryErr)

	putErr := stderrors.New("denied")
	_, err = newTestSnapshots(mock.New().WithPutError(putErr)).Backup(ctx, "t", sampleStore(t))
	assert.ErrorIs(t, err, putErr)

	ctxCancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = newTestSnapshots(mock.New()).Backup(ctxCancelled, "t", sampleStore(t))
	assert.Error(t, err)
}

func TestWritesRetryThrottling(t *testing.T) {
	db := mock.New().WithPutError(&types.ProvisionedThroughputExceededException{Message: new(string)})
	_, err := newTestSnapshots(db).Backup(context.Background(), "t", sampleStore(t))
	require.Error(t, err)

	// one store entry, attempted 1 + 2 retries
	puts, _, _ := db.Calls()
	assert.Equal(t, 3, puts)
	assert.ErrorContains(t, err, "failed after 2 retries")
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(&types.RequestLimitExceeded{}))
	assert.True(t, isRetryableError(&types.InternalServerError{}))
	assert.False(t, isRetryableError(&types.ConditionalCheckFailedException{}))
	assert.False(t, isRetryableError(stderrors.New("plain")))
}
