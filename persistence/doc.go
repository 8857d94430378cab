/*
Package persistence saves stores to JSON documents and loads them back.

Document layout:

	{
	  "user:1": {"active": true, "age": 30, "name": "alice", "score": 9.5},
	  "user:2": {"age": 41, "name": "bob"},
	  "autosave": false
	}

Strings are quoted and escaped, numbers are bare and booleans are true/false.
Integers are written without a decimal point and floats always with one
(42.0), so the persisted text alone fixes each attribute's type.

Loading replays the document in order through typed writes, rebuilding the
store's type registry from the first entry outward. A document whose entries
disagree on an attribute's type fails with a PersistenceError wrapping the
TypeMismatchError. Loading a missing file is a no-op.

Documents written by the older command-line tool, which nested everything
under a single "store" field, are read transparently.
*/
package persistence
