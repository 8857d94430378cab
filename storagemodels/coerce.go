/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"math"
	"strconv"
	"strings"
)

// ParseAttributeValue coerces a raw input string into the best matching
// typed value. The first rule that matches wins:
//
//  1. "true" or "false" (case-sensitive) becomes a Boolean
//  2. a whole-string base-10 signed 64-bit integer becomes an Integer
//  3. a whole-string finite floating point number becomes a Float
//  4. anything else is kept verbatim as a String
func ParseAttributeValue(raw string) AttributeValue {
	switch raw {
	case "true":
		return &AttributeValueMemberB{Value: true}
	case "false":
		return &AttributeValueMemberB{Value: false}
	}

	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &AttributeValueMemberI{Value: i}
	}

	// NaN and Inf are spelled as words, keep them as text so they stay
	// representable in the JSON document.
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return &AttributeValueMemberF{Value: f}
	}

	return &AttributeValueMemberS{Value: raw}
}

// FormatAttributeValue renders v in the canonical form used by search and
// debug output: strings verbatim, booleans as true/false and numbers as
// their shortest decimal text.
func FormatAttributeValue(v AttributeValue) string {
	switch tv := v.(type) {
	case *AttributeValueMemberS:
		return tv.Value
	case *AttributeValueMemberI:
		return strconv.FormatInt(tv.Value, 10)
	case *AttributeValueMemberF:
		return formatFloat(tv.Value)
	case *AttributeValueMemberB:
		return strconv.FormatBool(tv.Value)
	default:
		return ""
	}
}

// FormatNumber renders a numeric value for persistence. Integers never carry
// a decimal point and floats always carry one (or an exponent), so the text
// alone tells the two apart on reload. ok is false for non-numeric values.
func FormatNumber(v AttributeValue) (s string, ok bool) {
	switch tv := v.(type) {
	case *AttributeValueMemberI:
		return strconv.FormatInt(tv.Value, 10), true
	case *AttributeValueMemberF:
		s = formatFloat(tv.Value)
		if !strings.ContainsAny(s, ".eE") && !math.IsNaN(tv.Value) && !math.IsInf(tv.Value, 0) {
			s += ".0"
		}
		return s, true
	default:
		return "", false
	}
}

// ParseNumber is the inverse of FormatNumber: text holding a decimal point or
// exponent is a Float, anything else must be an Integer.
func ParseNumber(s string) (AttributeValue, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return &AttributeValueMemberF{Value: f}, nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &AttributeValueMemberI{Value: i}, nil
}

// formatFloat follows the encoding/json float layout: plain decimal for
// ordinary magnitudes, exponent form for very large or very small ones.
func formatFloat(f float64) string {
	abs := math.Abs(f)
	layout := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		layout = 'e'
	}
	s := strconv.FormatFloat(f, layout, -1, 64)
	if layout == 'e' {
		// clean up e-09 to e-9
		n := len(s)
		if n >= 4 && s[n-4] == 'e' && s[n-3] == '-' && s[n-2] == '0' {
			s = s[:n-2] + s[n-1:]
		}
	}
	return s
}
