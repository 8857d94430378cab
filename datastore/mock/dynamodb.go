/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides an in-memory DynamoDB table for testing the snapshot
// backend without AWS.
package mock

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"

	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key attribute names of the emulated table.
const (
	PartitionKey = "PK"
	SortKey      = "SK"
)

// DynamoDB is a single-table DynamoDB fake keyed by PK and SK. It serves the
// subset of Query used by the snapshot backend: equality on PK through the
// ":pk" expression value and, when ":prefix" is present, begins_with on SK.
// Results come back in SK order and honour Limit and ExclusiveStartKey.
type DynamoDB struct {
	mu          sync.RWMutex
	items       map[string]map[string]map[string]types.AttributeValue
	queryError  error
	putError    error
	deleteError error
	putCalls    int
	deleteCalls int
	queryCalls  int
}

// New creates an empty table.
func New() *DynamoDB {
	return &DynamoDB{
		items: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

// WithQueryError makes Query operations return an error
func (m *DynamoDB) WithQueryError(err error) *DynamoDB {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryError = err
	return m
}

// WithPutError makes PutItem operations return an error
func (m *DynamoDB) WithPutError(err error) *DynamoDB {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putError = err
	return m
}

// WithDeleteError makes DeleteItem operations return an error
func (m *DynamoDB) WithDeleteError(err error) *DynamoDB {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteError = err
	return m
}

// PutItem stores a copy of the item, replacing any item with the same key.
// Numbers are normalized the way DynamoDB stores them, so "9.0" reads back
// as "9".
func (m *DynamoDB) PutItem(ctx context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.putCalls++
	if m.putError != nil {
		return nil, m.putError
	}
	pk, sk, err := keyOf(in.Item)
	if err != nil {
		return nil, err
	}

	partition, ok := m.items[pk]
	if !ok {
		partition = make(map[string]map[string]types.AttributeValue)
		m.items[pk] = partition
	}
	stored := make(map[string]types.AttributeValue, len(in.Item))
	for k, v := range in.Item {
		stored[k] = normalize(v)
	}
	partition[sk] = stored
	return &sdk.PutItemOutput{}, nil
}

// DeleteItem removes the item with the given key. Deleting a missing item
// succeeds, as it does in DynamoDB.
func (m *DynamoDB) DeleteItem(ctx context.Context, in *sdk.DeleteItemInput, _ ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteCalls++
	if m.deleteError != nil {
		return nil, m.deleteError
	}
	pk, sk, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	if partition, ok := m.items[pk]; ok {
		delete(partition, sk)
		if len(partition) == 0 {
			delete(m.items, pk)
		}
	}
	return &sdk.DeleteItemOutput{}, nil
}

// Query returns the items of one partition in SK order.
func (m *DynamoDB) Query(ctx context.Context, in *sdk.QueryInput, _ ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queryCalls++
	if m.queryError != nil {
		return nil, m.queryError
	}
	pk, ok := stringValue(in.ExpressionAttributeValues[":pk"])
	if !ok {
		return nil, fmt.Errorf("mock: query requires a string :pk value")
	}
	prefix, _ := stringValue(in.ExpressionAttributeValues[":prefix"])

	partition := m.items[pk]
	sks := make([]string, 0, len(partition))
	for sk := range partition {
		if len(sk) >= len(prefix) && sk[:len(prefix)] == prefix {
			sks = append(sks, sk)
		}
	}
	sort.Strings(sks)

	start := 0
	if in.ExclusiveStartKey != nil {
		after, _ := stringValue(in.ExclusiveStartKey[SortKey])
		start = sort.SearchStrings(sks, after)
		if start < len(sks) && sks[start] == after {
			start++
		}
	}

	out := &sdk.QueryOutput{}
	for i := start; i < len(sks); i++ {
		if in.Limit != nil && *in.Limit > 0 && int32(len(out.Items)) == *in.Limit {
			out.LastEvaluatedKey = map[string]types.AttributeValue{
				PartitionKey: &types.AttributeValueMemberS{Value: pk},
				SortKey:      &types.AttributeValueMemberS{Value: sks[i-1]},
			}
			break
		}
		out.Items = append(out.Items, copyItem(partition[sks[i]]))
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// Helper methods for testing

// Item returns a copy of the item stored under pk and sk.
func (m *DynamoDB) Item(pk, sk string) (map[string]types.AttributeValue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[pk][sk]
	if !ok {
		return nil, false
	}
	return copyItem(item), true
}

// SortKeys returns the sorted SKs stored in partition pk.
func (m *DynamoDB) SortKeys(pk string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sks := make([]string, 0, len(m.items[pk]))
	for sk := range m.items[pk] {
		sks = append(sks, sk)
	}
	sort.Strings(sks)
	return sks
}

// Count returns the number of stored items across all partitions.
func (m *DynamoDB) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, partition := range m.items {
		n += len(partition)
	}
	return n
}

// Calls reports how many PutItem, DeleteItem and Query calls were made.
func (m *DynamoDB) Calls() (puts, deletes, queries int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.putCalls, m.deleteCalls, m.queryCalls
}

// Clear removes all data and injected errors.
func (m *DynamoDB) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]map[string]map[string]types.AttributeValue)
	m.queryError, m.putError, m.deleteError = nil, nil, nil
}

func keyOf(item map[string]types.AttributeValue) (string, string, error) {
	pk, ok := stringValue(item[PartitionKey])
	if !ok {
		return "", "", fmt.Errorf("mock: missing string %s", PartitionKey)
	}
	sk, ok := stringValue(item[SortKey])
	if !ok {
		return "", "", fmt.Errorf("mock: missing string %s", SortKey)
	}
	return pk, sk, nil
}

func stringValue(av types.AttributeValue) (string, bool) {
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

// copyItem copies the item map. Attribute values are treated as immutable.
func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// normalize rewrites N values, including those nested in M and L, into the
// canonical text DynamoDB returns: no exponent, no leading zeros and no
// trailing fractional zeros.
func normalize(av types.AttributeValue) types.AttributeValue {
	switch tv := av.(type) {
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: NormalizeNumber(tv.Value)}
	case *types.AttributeValueMemberM:
		m := make(map[string]types.AttributeValue, len(tv.Value))
		for k, v := range tv.Value {
			m[k] = normalize(v)
		}
		return &types.AttributeValueMemberM{Value: m}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(tv.Value))
		for i, v := range tv.Value {
			l[i] = normalize(v)
		}
		return &types.AttributeValueMemberL{Value: l}
	default:
		return av
	}
}

// NormalizeNumber returns the text DynamoDB stores for the number s. Text that
// does not parse is returned unchanged.
func NormalizeNumber(s string) string {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return s
	}
	if r.IsInt() {
		return r.Num().String()
	}
	f, _ := r.Float64()
	return strconv.FormatFloat(f, 'f', -1, 64)
}
