/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrTypeMismatch is returned when an attribute is written with a type other than the registered one
	ErrTypeMismatch = errors.New("attribute type mismatch")

	// ErrInvalidValue is returned when a value has no supported attribute type
	ErrInvalidValue = errors.New("invalid attribute value")

	// ErrKeyNotFound is returned when a token or key is absent where presence was required
	ErrKeyNotFound = errors.New("key not found")

	// ErrAttributeNotFound is returned when a stored value lacks a requested attribute
	ErrAttributeNotFound = errors.New("attribute not found")

	// ErrPersistence is returned when a store cannot be saved or loaded
	ErrPersistence = errors.New("persistence error")
)

// TypeMismatchError reports a write whose type conflicts with the registry
type TypeMismatchError struct {
	Attribute string
	Expected  string
	Actual    string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch for attribute %q: expected %s, got %s", e.Attribute, e.Expected, e.Actual)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// InvalidValueError represents a value that cannot be used as an attribute
type InvalidValueError struct {
	Value    string
	Expected string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("cannot use %q as %s", e.Value, e.Expected)
}

func (e *InvalidValueError) Is(target error) bool {
	return target == ErrInvalidValue
}

// KeyNotFoundError represents a missing store token or key
type KeyNotFoundError struct {
	Scope string
	Key   string
}

func (e *KeyNotFoundError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("%s %q not found", e.Scope, e.Key)
	}
	return fmt.Sprintf("key %q not found", e.Key)
}

func (e *KeyNotFoundError) Is(target error) bool {
	return target == ErrKeyNotFound
}

// AttributeNotFoundError represents a stored value without the requested attribute
type AttributeNotFoundError struct {
	Attribute string
	Key       string
}

func (e *AttributeNotFoundError) Error() string {
	return fmt.Sprintf("attribute %q not found in key %q", e.Attribute, e.Key)
}

func (e *AttributeNotFoundError) Is(target error) bool {
	return target == ErrAttributeNotFound
}

// PersistenceError wraps an I/O or document failure during save or load
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("persistence error: %s %s: %v", e.Op, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("persistence error: %s", e.Op)
	}
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Helper functions for creating errors

// NewTypeMismatchError creates a new TypeMismatchError
func NewTypeMismatchError(attribute, expected, actual string) error {
	return &TypeMismatchError{Attribute: attribute, Expected: expected, Actual: actual}
}

// NewInvalidValueError creates a new InvalidValueError
func NewInvalidValueError(value, expected string) error {
	return &InvalidValueError{Value: value, Expected: expected}
}

// NewKeyNotFoundError creates a new KeyNotFoundError
func NewKeyNotFoundError(scope, key string) error {
	return &KeyNotFoundError{Scope: scope, Key: key}
}

// NewAttributeNotFoundError creates a new AttributeNotFoundError
func NewAttributeNotFoundError(attribute, key string) error {
	return &AttributeNotFoundError{Attribute: attribute, Key: key}
}

// NewPersistenceError creates a new PersistenceError
func NewPersistenceError(op, path string, err error) error {
	return &PersistenceError{Op: op, Path: path, Err: err}
}

// IsTypeMismatch checks if an error is a type mismatch error
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

// IsInvalidValue checks if an error is an invalid value error
func IsInvalidValue(err error) bool {
	return errors.Is(err, ErrInvalidValue)
}

// IsNotFound checks if an error is a key not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsAttributeNotFound checks if an error is an attribute not found error
func IsAttributeNotFound(err error) bool {
	return errors.Is(err, ErrAttributeNotFound)
}

// IsPersistence checks if an error is a persistence error
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}
