/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"github.com/suparena/kvstore/storagemodels"
)

// ValueView is the read-only face of a stored value handed out by Store.Get.
type ValueView interface {
	Attribute(name string) (storagemodels.AttributeValue, bool)

	HasAttribute(name string) bool

	AttributeNames() []string

	Attributes() map[string]storagemodels.AttributeValue

	Len() int

	String() string
}

// Entry is one key and its value as captured by Store.Snapshot.
type Entry struct {
	Key   string
	Value ValueView
}

// Snapshot is a consistent copy of a store's contents.
type Snapshot struct {
	Entries  []Entry
	Autosave bool
}
