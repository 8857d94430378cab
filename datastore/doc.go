/*
Package datastore defines the in-memory store at the heart of the key/value service.

A Store maps string keys to ValueObjects. A ValueObject is a bag of typed
attributes; every attribute write goes through the owning store's
registry.TypeRegistry, so an attribute name keeps the type it was first
written with for the lifetime of the store:

	s := datastore.NewStore()
	_ = s.Put("k", storagemodels.Pairs("n", "7"))       // n registered as integer
	err := s.Put("k2", storagemodels.Pairs("n", "seven")) // TypeMismatchError

Put replaces the whole entry; there is no per-attribute merge. A failed Put
leaves both the previous entry and the registry untouched because all pairs
are validated before any type is registered.

Get hands out a read-only ValueView backed by a copy, so stored values can
only change through the store. Every public method holds the store's mutex
for its full duration; reads and writes are equally exclusive.

Implementations:
  - ddb: DynamoDB snapshot backend that backs a Store up to a table and restores it
  - mock: In-memory fake of the DynamoDB API for testing the backend
*/
package datastore
