/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suparena/kvstore/datastore"
	"github.com/suparena/kvstore/errors"
	"github.com/suparena/kvstore/storagemodels"
)

const (
	partitionPrefix = "STORE#"
	keyPrefix       = "KEY#"
	metaSortKey     = "META"

	attrPK         = "PK"
	attrSK         = "SK"
	attrKey        = "Key"
	attrAttributes = "Attributes"
	attrTypes      = "Types"
)

// SnapshotInfo describes one backup of a store.
type SnapshotInfo struct {
	SnapshotID string          `json:"snapshotId"`
	SavedAt    strfmt.DateTime `json:"savedAt"`
	Keys       int             `json:"keys"`
	Autosave   bool            `json:"autosave"`
}

// metaItem is the stored form of SnapshotInfo.
type metaItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	SnapshotID string `dynamodbav:"SnapshotID"`
	SavedAt    string `dynamodbav:"SavedAt"`
	Keys       int    `dynamodbav:"Keys"`
	Autosave   bool   `dynamodbav:"Autosave"`
}

// SnapshotStore backs stores up to a single DynamoDB table, one item per key
// under partition STORE#<token>, plus a META item describing the snapshot.
type SnapshotStore struct {
	client       API
	tableName    string
	logger       *zap.Logger
	pageSize     int32
	maxRetries   int
	retryBackoff time.Duration
	now          func() time.Time
}

// Option configures a SnapshotStore.
type Option func(*SnapshotStore)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SnapshotStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPageSize sets the Query page size used by Restore (default 100).
func WithPageSize(n int32) Option {
	return func(s *SnapshotStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithRetry sets how often throttled writes are retried and the base backoff.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(s *SnapshotStore) {
		s.maxRetries = maxRetries
		s.retryBackoff = backoff
	}
}

// NewSnapshotStore creates a SnapshotStore writing to tableName.
func NewSnapshotStore(client API, tableName string, opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		client:       client,
		tableName:    tableName,
		logger:       zap.NewNop(),
		pageSize:     100,
		maxRetries:   3,
		retryBackoff: 100 * time.Millisecond,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backup writes the current contents of store under token. Items for keys
// no longer present in store are removed, so the table mirrors the store.
func (s *SnapshotStore) Backup(ctx context.Context, token string, store *datastore.Store) (*SnapshotInfo, error) {
	snap := store.Snapshot()
	pk := partitionPrefix + token

	existing, err := s.sortKeys(ctx, pk)
	if err != nil {
		return nil, errors.NewPersistenceError("backup", s.tableName, err)
	}

	live := make(map[string]bool, len(snap.Entries))
	for _, entry := range snap.Entries {
		item, err := encodeEntry(pk, entry)
		if err != nil {
			return nil, errors.NewPersistenceError("backup", s.tableName, err)
		}
		if err := s.putItem(ctx, item); err != nil {
			return nil, errors.NewPersistenceError("backup", s.tableName, fmt.Errorf("key %q: %w", entry.Key, err))
		}
		live[keyPrefix+entry.Key] = true
	}

	info := &SnapshotInfo{
		SnapshotID: uuid.NewString(),
		SavedAt:    strfmt.DateTime(s.now().UTC()),
		Keys:       len(snap.Entries),
		Autosave:   snap.Autosave,
	}
	meta, err := attributevalue.MarshalMap(metaItem{
		PK:         pk,
		SK:         metaSortKey,
		SnapshotID: info.SnapshotID,
		SavedAt:    info.SavedAt.String(),
		Keys:       info.Keys,
		Autosave:   info.Autosave,
	})
	if err != nil {
		return nil, errors.NewPersistenceError("backup", s.tableName, fmt.Errorf("failed to marshal snapshot meta: %w", err))
	}
	if err := s.putItem(ctx, meta); err != nil {
		return nil, errors.NewPersistenceError("backup", s.tableName, err)
	}

	stale := 0
	for _, sk := range existing {
		if sk == metaSortKey || live[sk] {
			continue
		}
		if err := s.deleteItem(ctx, pk, sk); err != nil {
			return nil, errors.NewPersistenceError("backup", s.tableName, err)
		}
		stale++
	}

	s.logger.Info("store backed up",
		zap.String("token", token),
		zap.String("snapshot", info.SnapshotID),
		zap.Int("keys", info.Keys),
		zap.Int("removed", stale))
	return info, nil
}

// Restore replaces the contents of into with the snapshot stored under
// token. Items are replayed in key order with attribute names sorted, so the
// restored type history is deterministic. On error into is left unchanged.
// A token with no snapshot yields a KeyNotFoundError.
func (s *SnapshotStore) Restore(ctx context.Context, token string, into *datastore.Store) (*SnapshotInfo, error) {
	pk := partitionPrefix + token
	staging := datastore.NewStore()

	var info *SnapshotInfo
	found := false
	err := s.eachItem(ctx, pk, func(item map[string]types.AttributeValue) error {
		found = true
		sk, _ := stringAttr(item[attrSK])
		switch {
		case sk == metaSortKey:
			meta, err := decodeMeta(item)
			if err != nil {
				return err
			}
			info = meta
			staging.SetAutosave(meta.Autosave)
		case strings.HasPrefix(sk, keyPrefix):
			key, attrs, err := decodeEntry(item)
			if err != nil {
				return fmt.Errorf("item %q: %w", sk, err)
			}
			if err := staging.PutAttributes(key, attrs); err != nil {
				return fmt.Errorf("key %q: %w", key, err)
			}
		default:
			s.logger.Warn("skipping unknown snapshot item", zap.String("token", token), zap.String("sk", sk))
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewPersistenceError("restore", s.tableName, err)
	}
	if !found {
		return nil, errors.NewKeyNotFoundError("snapshot", token)
	}

	if info == nil {
		info = &SnapshotInfo{Keys: staging.Size(), Autosave: staging.Autosave()}
	}
	into.ReplaceWith(staging)

	s.logger.Info("store restored",
		zap.String("token", token),
		zap.String("snapshot", info.SnapshotID),
		zap.Int("keys", into.Size()))
	return info, nil
}

// Delete removes every item of the snapshot under token.
func (s *SnapshotStore) Delete(ctx context.Context, token string) error {
	pk := partitionPrefix + token
	sks, err := s.sortKeys(ctx, pk)
	if err != nil {
		return errors.NewPersistenceError("delete", s.tableName, err)
	}
	for _, sk := range sks {
		if err := s.deleteItem(ctx, pk, sk); err != nil {
			return errors.NewPersistenceError("delete", s.tableName, err)
		}
	}
	return nil
}

func (s *SnapshotStore) eachItem(ctx context.Context, pk string, fn func(map[string]types.AttributeValue) error) error {
	paginator := sdk.NewQueryPaginator(s.client, &sdk.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ConsistentRead: aws.Bool(true),
		Limit:          aws.Int32(s.pageSize),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("Query failed: %w", err)
		}
		for _, item := range page.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SnapshotStore) sortKeys(ctx context.Context, pk string) ([]string, error) {
	var sks []string
	err := s.eachItem(ctx, pk, func(item map[string]types.AttributeValue) error {
		if sk, ok := stringAttr(item[attrSK]); ok {
			sks = append(sks, sk)
		}
		return nil
	})
	return sks, err
}

func (s *SnapshotStore) putItem(ctx context.Context, item map[string]types.AttributeValue) error {
	return s.withRetry(ctx, func() error {
		_, err := s.client.PutItem(ctx, &sdk.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      item,
		})
		if err != nil {
			return fmt.Errorf("PutItem failed: %w", err)
		}
		return nil
	})
}

func (s *SnapshotStore) deleteItem(ctx context.Context, pk, sk string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.client.DeleteItem(ctx, &sdk.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				attrPK: &types.AttributeValueMemberS{Value: pk},
				attrSK: &types.AttributeValueMemberS{Value: sk},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete item %q: %w", sk, err)
		}
		return nil
	})
}

// withRetry runs op, retrying retryable DynamoDB errors with linear backoff.
func (s *SnapshotStore) withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil || !isRetryableError(lastErr) {
			return lastErr
		}

		// Don't sleep after last attempt
		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt+1) * s.retryBackoff):
			}
		}
	}
	return fmt.Errorf("failed after %d retries: %w", s.maxRetries, lastErr)
}

func encodeEntry(pk string, entry datastore.Entry) (map[string]types.AttributeValue, error) {
	attrs := make(map[string]types.AttributeValue, entry.Value.Len())
	kinds := make(map[string]types.AttributeValue, entry.Value.Len())
	for _, name := range entry.Value.AttributeNames() {
		v, _ := entry.Value.Attribute(name)
		t, err := storagemodels.TypeOf(v)
		if err != nil {
			return nil, fmt.Errorf("key %q attribute %q: %w", entry.Key, name, err)
		}
		attrs[name] = encodeValue(v)
		kinds[name] = &types.AttributeValueMemberS{Value: t.String()}
	}
	return map[string]types.AttributeValue{
		attrPK:         &types.AttributeValueMemberS{Value: pk},
		attrSK:         &types.AttributeValueMemberS{Value: keyPrefix + entry.Key},
		attrKey:        &types.AttributeValueMemberS{Value: entry.Key},
		attrAttributes: &types.AttributeValueMemberM{Value: attrs},
		attrTypes:      &types.AttributeValueMemberM{Value: kinds},
	}, nil
}

// encodeValue maps strings to S, booleans to BOOL and numbers to N. DynamoDB
// normalizes N ("9.0" comes back as "9"), so the tag is stored separately in
// the Types map. v must already have passed TypeOf.
func encodeValue(v storagemodels.AttributeValue) types.AttributeValue {
	switch tv := v.(type) {
	case *storagemodels.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: tv.Value}
	case *storagemodels.AttributeValueMemberB:
		return &types.AttributeValueMemberBOOL{Value: tv.Value}
	default:
		n, _ := storagemodels.FormatNumber(v)
		return &types.AttributeValueMemberN{Value: n}
	}
}

func decodeEntry(item map[string]types.AttributeValue) (string, []storagemodels.Attribute, error) {
	key, ok := stringAttr(item[attrKey])
	if !ok {
		return "", nil, fmt.Errorf("missing %s attribute", attrKey)
	}
	m, ok := item[attrAttributes].(*types.AttributeValueMemberM)
	if !ok {
		return "", nil, fmt.Errorf("missing %s map", attrAttributes)
	}
	kinds, err := decodeTypes(item[attrTypes])
	if err != nil {
		return "", nil, err
	}

	names := make([]string, 0, len(m.Value))
	for name := range m.Value {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]storagemodels.Attribute, 0, len(names))
	for _, name := range names {
		var v storagemodels.AttributeValue
		if t, typed := kinds[name]; typed {
			v, err = decodeTypedValue(m.Value[name], t)
		} else {
			v, err = decodeValue(m.Value[name])
		}
		if err != nil {
			return "", nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		attrs = append(attrs, storagemodels.Attribute{Name: name, Value: v})
	}
	return key, attrs, nil
}

// decodeTypes reads the Types map. Items written without one decode to an
// empty map and fall back to inferring numbers from their text.
func decodeTypes(av types.AttributeValue) (map[string]storagemodels.AttributeType, error) {
	kinds := map[string]storagemodels.AttributeType{}
	if av == nil {
		return kinds, nil
	}
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("%s is %T, want a map", attrTypes, av)
	}
	for name, raw := range m.Value {
		text, ok := stringAttr(raw)
		if !ok {
			return nil, fmt.Errorf("%s entry %q is not a string", attrTypes, name)
		}
		var t storagemodels.AttributeType
		if err := t.UnmarshalText([]byte(text)); err != nil {
			return nil, fmt.Errorf("%s entry %q: %w", attrTypes, name, err)
		}
		kinds[name] = t
	}
	return kinds, nil
}

func decodeValue(av types.AttributeValue) (storagemodels.AttributeValue, error) {
	switch tv := av.(type) {
	case *types.AttributeValueMemberS:
		return &storagemodels.AttributeValueMemberS{Value: tv.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return &storagemodels.AttributeValueMemberB{Value: tv.Value}, nil
	case *types.AttributeValueMemberN:
		return storagemodels.ParseNumber(tv.Value)
	default:
		return nil, errors.NewInvalidValueError(fmt.Sprintf("%T", av), "S, N or BOOL")
	}
}

// decodeTypedValue decodes av as the recorded type t. N text is parsed by t
// alone, so "9" restores as a float when t says float.
func decodeTypedValue(av types.AttributeValue, t storagemodels.AttributeType) (storagemodels.AttributeValue, error) {
	n, isNumber := av.(*types.AttributeValueMemberN)
	switch {
	case isNumber && t == storagemodels.TypeInteger:
		return parseInteger(n.Value)
	case isNumber && t == storagemodels.TypeFloat:
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errors.NewInvalidValueError(n.Value, "finite float")
		}
		return &storagemodels.AttributeValueMemberF{Value: f}, nil
	case isNumber:
		return nil, errors.NewInvalidValueError("N", t.String())
	}

	v, err := decodeValue(av)
	if err != nil {
		return nil, err
	}
	got, err := storagemodels.TypeOf(v)
	if err != nil {
		return nil, err
	}
	if got != t {
		return nil, errors.NewInvalidValueError(got.String(), t.String())
	}
	return v, nil
}

// parseInteger accepts any exact integral N text, including the exponent
// forms another writer may have used.
func parseInteger(s string) (storagemodels.AttributeValue, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &storagemodels.AttributeValueMemberI{Value: i}, nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || !r.IsInt() || !r.Num().IsInt64() {
		return nil, errors.NewInvalidValueError(s, "64-bit integer")
	}
	return &storagemodels.AttributeValueMemberI{Value: r.Num().Int64()}, nil
}

func decodeMeta(item map[string]types.AttributeValue) (*SnapshotInfo, error) {
	var meta metaItem
	if err := attributevalue.UnmarshalMap(item, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot meta: %w", err)
	}
	savedAt, err := strfmt.ParseDateTime(meta.SavedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot time %q: %w", meta.SavedAt, err)
	}
	return &SnapshotInfo{
		SnapshotID: meta.SnapshotID,
		SavedAt:    savedAt,
		Keys:       meta.Keys,
		Autosave:   meta.Autosave,
	}, nil
}

func stringAttr(av types.AttributeValue) (string, bool) {
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}
