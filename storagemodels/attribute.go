/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/suparena/kvstore/errors"
)

// AttributeType is the tag of an AttributeValue.
type AttributeType int

const (
	TypeString AttributeType = iota
	TypeInteger
	TypeFloat
	TypeBoolean
)

// String returns the lower-case type name used in error messages.
func (t AttributeType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the four supported types.
func (t AttributeType) Valid() bool {
	return t >= TypeString && t <= TypeBoolean
}

// MarshalText renders t by name, so JSON output reads "integer" rather than 1.
func (t AttributeType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid attribute type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText parses a type name written by MarshalText.
func (t *AttributeType) UnmarshalText(text []byte) error {
	for candidate := TypeString; candidate <= TypeBoolean; candidate++ {
		if candidate.String() == string(text) {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown attribute type %q", text)
}

// AttributeValue is a typed attribute held by a stored value. The set of
// members is closed:
//
//	*AttributeValueMemberS
//	*AttributeValueMemberI
//	*AttributeValueMemberF
//	*AttributeValueMemberB
type AttributeValue interface {
	isAttributeValue()
}

// AttributeValueMemberS is a String attribute.
type AttributeValueMemberS struct {
	Value string
}

// AttributeValueMemberI is an Integer attribute.
type AttributeValueMemberI struct {
	Value int64
}

// AttributeValueMemberF is a Float attribute.
type AttributeValueMemberF struct {
	Value float64
}

// AttributeValueMemberB is a Boolean attribute.
type AttributeValueMemberB struct {
	Value bool
}

func (*AttributeValueMemberS) isAttributeValue() {}
func (*AttributeValueMemberI) isAttributeValue() {}
func (*AttributeValueMemberF) isAttributeValue() {}
func (*AttributeValueMemberB) isAttributeValue() {}

// TypeOf returns the tag of v. A nil value, a nil member pointer, a
// non-finite float or a string that is not valid UTF-8 is rejected with an
// InvalidValue error.
func TypeOf(v AttributeValue) (AttributeType, error) {
	switch tv := v.(type) {
	case *AttributeValueMemberS:
		if tv != nil {
			if err := CheckUTF8(tv.Value, "UTF-8 string"); err != nil {
				return 0, err
			}
			return TypeString, nil
		}
	case *AttributeValueMemberI:
		if tv != nil {
			return TypeInteger, nil
		}
	case *AttributeValueMemberF:
		if tv != nil {
			if math.IsNaN(tv.Value) || math.IsInf(tv.Value, 0) {
				return 0, errors.NewInvalidValueError(FormatAttributeValue(tv), "finite float")
			}
			return TypeFloat, nil
		}
	case *AttributeValueMemberB:
		if tv != nil {
			return TypeBoolean, nil
		}
	}
	return 0, errors.NewInvalidValueError("<nil>", "attribute value")
}

// CheckUTF8 rejects text that is not valid UTF-8. Keys, attribute names and
// string values must survive a JSON round trip byte for byte.
func CheckUTF8(s, expected string) error {
	if utf8.ValidString(s) {
		return nil
	}
	return errors.NewInvalidValueError(strconv.QuoteToASCII(s), expected)
}

// CloneAttributeValue returns a copy of v that shares no memory with it.
func CloneAttributeValue(v AttributeValue) AttributeValue {
	switch tv := v.(type) {
	case *AttributeValueMemberS:
		return &AttributeValueMemberS{Value: tv.Value}
	case *AttributeValueMemberI:
		return &AttributeValueMemberI{Value: tv.Value}
	case *AttributeValueMemberF:
		return &AttributeValueMemberF{Value: tv.Value}
	case *AttributeValueMemberB:
		return &AttributeValueMemberB{Value: tv.Value}
	default:
		return nil
	}
}

// EqualAttributeValues reports whether a and b have the same type and value.
func EqualAttributeValues(a, b AttributeValue) bool {
	switch av := a.(type) {
	case *AttributeValueMemberS:
		bv, ok := b.(*AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *AttributeValueMemberI:
		bv, ok := b.(*AttributeValueMemberI)
		return ok && av.Value == bv.Value
	case *AttributeValueMemberF:
		bv, ok := b.(*AttributeValueMemberF)
		return ok && av.Value == bv.Value
	case *AttributeValueMemberB:
		bv, ok := b.(*AttributeValueMemberB)
		return ok && av.Value == bv.Value
	default:
		return false
	}
}
