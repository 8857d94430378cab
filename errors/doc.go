/*
Package errors provides semantic error types for the key/value store.

The package defines the failure kinds surfaced by the store with specific types that
can be checked using the standard errors.Is() function or the provided helper functions.

Common Errors:

	var (
	    ErrTypeMismatch      = errors.New("attribute type mismatch")
	    ErrInvalidValue      = errors.New("invalid attribute value")
	    ErrKeyNotFound       = errors.New("key not found")
	    ErrAttributeNotFound = errors.New("attribute not found")
	    ErrPersistence       = errors.New("persistence error")
	)

Usage:

	// Check error type
	err := store.Put("user:1", pairs)
	if err != nil {
	    if errors.IsTypeMismatch(err) {
	        // An attribute was previously registered with another type
	        var tm *errors.TypeMismatchError
	        stderrors.As(err, &tm)
	        return fmt.Errorf("attribute %s must be %s", tm.Attribute, tm.Expected)
	    }
	    return err
	}

	// Create typed errors
	err := errors.NewTypeMismatchError("age", "integer", "string")
	err := errors.NewKeyNotFoundError("store", "tenant-a")
	err := errors.NewPersistenceError("load", "store/tenant-a.json", cause)

The error types implement the error interface and support wrapping,
making them compatible with Go's standard error handling patterns.
PersistenceError additionally unwraps to its cause, so a type conflict found
while loading a file matches both ErrPersistence and ErrTypeMismatch.
*/
package errors
