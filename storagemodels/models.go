/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

// AttributePair is one raw (name, value) input to a string-based put.
// Pairs are applied in order.
type AttributePair struct {
	Name  string
	Value string
}

// Pairs builds an ordered pair list from alternating name/value arguments.
// A trailing name without a value is ignored.
func Pairs(kv ...string) []AttributePair {
	pairs := make([]AttributePair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, AttributePair{Name: kv[i], Value: kv[i+1]})
	}
	return pairs
}

// Attribute is one already-typed (name, value) input to a typed put.
type Attribute struct {
	Name  string
	Value AttributeValue
}

// StoreStats summarizes a store's contents.
type StoreStats struct {
	// Keys is the number of stored entries.
	Keys int `json:"keys"`
	// Attributes is the number of attribute values across all entries.
	Attributes int `json:"attributes"`
	// Types is the store's type registry at the time of the call.
	Types map[string]AttributeType `json:"types"`
	// Autosave reflects the store's autosave flag.
	Autosave bool `json:"autosave"`
}
