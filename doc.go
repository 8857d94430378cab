/*
Package kvstore provides a multi-tenant, in-memory key/value store whose values are
typed attribute bags, with per-store type consistency and JSON file persistence.

The library is organised in layers:
  - storagemodels: the closed AttributeValue union and string coercion rules
  - registry: the per-store TypeRegistry enforcing one type per attribute name
  - datastore: ValueObject and Store, the locked key to value namespace
  - persistence: the JSON codec that saves and reloads a Store
  - StoreManager (this package): token to Store table shared by front ends

Key Features:
  - First write of an attribute name fixes its type for that store
  - Stores are fully isolated; "age" may be an integer in one and a string in another
  - A failed put never leaves partial state behind
  - Round-trip safe persistence that rebuilds type history on load
  - Two-level locking: the manager table and each store lock independently
  - Optional DynamoDB snapshot backend (datastore/ddb)

Basic Usage:

	// Create a manager once at startup and pass it to every front end
	mgr := kvstore.NewStoreManager(kvstore.WithStorageDir("store"))

	// Work with a tenant's store
	users := mgr.GetOrCreateStore("tenant-a")
	err := users.Put("user:1", storagemodels.Pairs("name", "alice", "age", "30"))

	// Single-value convenience API
	_ = mgr.Put("tenant-b", "greeting", "hello")
	v, _ := mgr.Get("tenant-b", "greeting")

	// Persist to store/tenant-a.json and reload later
	err = mgr.SaveStore("tenant-a", "")
	err = mgr.LoadStore("tenant-a", "")
*/
package kvstore
